package models

import (
	"fmt"
	"math"
	"time"

	"github.com/justyntemme/bookhaven/internal/apperror"
)

// Preference keys
const (
	PrefTheme             = "theme"
	PrefFontFamily        = "font_family"
	PrefFontSize          = "font_size"
	PrefLineSpacing       = "line_spacing"
	PrefMarginSize        = "margin_size"
	PrefBrightness        = "brightness"
	PrefAutoNightMode     = "auto_night_mode"
	PrefPageTurnAnimation = "page_turn_animation"
)

// Preference limits
const (
	MinFontSize    = 12
	MaxFontSize    = 32
	MinLineSpacing = 1.0
	MaxLineSpacing = 3.0
	MinBrightness  = 50
	MaxBrightness  = 100
)

var (
	Themes       = []string{"light", "sepia", "dark", "soft-beige"}
	FontFamilies = []string{"Merriweather", "Georgia", "Times New Roman", "Inter", "Roboto"}
	MarginSizes  = []string{"small", "medium", "large"}
)

// Preferences holds a user's reading display configuration.
type Preferences struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Theme             string    `json:"theme"`
	FontFamily        string    `json:"font_family"`
	FontSize          int       `json:"font_size"`
	LineSpacing       float64   `json:"line_spacing"`
	MarginSize        string    `json:"margin_size"`
	Brightness        int       `json:"brightness"`
	AutoNightMode     bool      `json:"auto_night_mode"`
	PageTurnAnimation bool      `json:"page_turn_animation"`
	CreatedAt         time.Time `json:"created_at"`
}

// DefaultPreferences returns the preferences every new account starts with.
func DefaultPreferences(id, userID string) *Preferences {
	return &Preferences{
		ID:                id,
		UserID:            userID,
		Theme:             "soft-beige",
		FontFamily:        "Merriweather",
		FontSize:          16,
		LineSpacing:       1.5,
		MarginSize:        "medium",
		Brightness:        100,
		AutoNightMode:     true,
		PageTurnAnimation: true,
		CreatedAt:         time.Now(),
	}
}

// PreferencesUpdate is a partial preferences write. Nil fields are left
// as they are.
type PreferencesUpdate struct {
	Theme             *string  `json:"theme,omitempty"`
	FontFamily        *string  `json:"font_family,omitempty"`
	FontSize          *int     `json:"font_size,omitempty"`
	LineSpacing       *float64 `json:"line_spacing,omitempty"`
	MarginSize        *string  `json:"margin_size,omitempty"`
	Brightness        *int     `json:"brightness,omitempty"`
	AutoNightMode     *bool    `json:"auto_night_mode,omitempty"`
	PageTurnAnimation *bool    `json:"page_turn_animation,omitempty"`
}

// Empty reports whether no field is set.
func (u PreferencesUpdate) Empty() bool {
	return u == PreferencesUpdate{}
}

// Validate checks every set field against its allowed range or values.
func (u PreferencesUpdate) Validate() error {
	if u.Theme != nil && !contains(Themes, *u.Theme) {
		return apperror.ValidationFailed(PrefTheme, fmt.Sprintf("theme must be one of %v", Themes))
	}
	if u.FontFamily != nil && !contains(FontFamilies, *u.FontFamily) {
		return apperror.ValidationFailed(PrefFontFamily, fmt.Sprintf("font_family must be one of %v", FontFamilies))
	}
	if u.FontSize != nil && (*u.FontSize < MinFontSize || *u.FontSize > MaxFontSize) {
		return apperror.ValidationFailed(PrefFontSize, fmt.Sprintf("font_size must be between %d and %d", MinFontSize, MaxFontSize))
	}
	if u.LineSpacing != nil && (*u.LineSpacing < MinLineSpacing || *u.LineSpacing > MaxLineSpacing) {
		return apperror.ValidationFailed(PrefLineSpacing, fmt.Sprintf("line_spacing must be between %.1f and %.1f", MinLineSpacing, MaxLineSpacing))
	}
	if u.MarginSize != nil && !contains(MarginSizes, *u.MarginSize) {
		return apperror.ValidationFailed(PrefMarginSize, fmt.Sprintf("margin_size must be one of %v", MarginSizes))
	}
	if u.Brightness != nil && (*u.Brightness < MinBrightness || *u.Brightness > MaxBrightness) {
		return apperror.ValidationFailed(PrefBrightness, fmt.Sprintf("brightness must be between %d and %d", MinBrightness, MaxBrightness))
	}
	return nil
}

// Apply copies the set fields onto p.
func (u PreferencesUpdate) Apply(p *Preferences) {
	if u.Theme != nil {
		p.Theme = *u.Theme
	}
	if u.FontFamily != nil {
		p.FontFamily = *u.FontFamily
	}
	if u.FontSize != nil {
		p.FontSize = *u.FontSize
	}
	if u.LineSpacing != nil {
		p.LineSpacing = *u.LineSpacing
	}
	if u.MarginSize != nil {
		p.MarginSize = *u.MarginSize
	}
	if u.Brightness != nil {
		p.Brightness = *u.Brightness
	}
	if u.AutoNightMode != nil {
		p.AutoNightMode = *u.AutoNightMode
	}
	if u.PageTurnAnimation != nil {
		p.PageTurnAnimation = *u.PageTurnAnimation
	}
}

// PreferenceField builds a single-field update from a key and a loosely
// typed value. Numbers may arrive as int or float64 (decoded JSON, CLI
// arguments parsed upstream); integer fields reject fractional values.
func PreferenceField(key string, value any) (PreferencesUpdate, error) {
	var u PreferencesUpdate
	switch key {
	case PrefTheme, PrefFontFamily, PrefMarginSize:
		s, ok := value.(string)
		if !ok {
			return u, apperror.ValidationFailed(key, key+" must be a string")
		}
		switch key {
		case PrefTheme:
			u.Theme = &s
		case PrefFontFamily:
			u.FontFamily = &s
		default:
			u.MarginSize = &s
		}
	case PrefFontSize, PrefBrightness:
		n, ok := toInt(value)
		if !ok {
			return u, apperror.ValidationFailed(key, key+" must be an integer")
		}
		if key == PrefFontSize {
			u.FontSize = &n
		} else {
			u.Brightness = &n
		}
	case PrefLineSpacing:
		f, ok := toFloat(value)
		if !ok {
			return u, apperror.ValidationFailed(key, key+" must be a number")
		}
		u.LineSpacing = &f
	case PrefAutoNightMode, PrefPageTurnAnimation:
		b, ok := value.(bool)
		if !ok {
			return u, apperror.ValidationFailed(key, key+" must be a boolean")
		}
		if key == PrefAutoNightMode {
			u.AutoNightMode = &b
		} else {
			u.PageTurnAnimation = &b
		}
	default:
		return u, apperror.ValidationFailed(key, "unknown preference "+key)
	}
	return u, u.Validate()
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
