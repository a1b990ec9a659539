package reader

import "github.com/justyntemme/bookhaven/internal/models"

// PreferenceStore holds the user's display preferences. There is no
// rollback: once set, a field keeps its value whatever the server says
// until the next Replace.
type PreferenceStore struct {
	prefs models.Preferences
}

// NewPreferenceStore wraps a copy of p
func NewPreferenceStore(p models.Preferences) *PreferenceStore {
	return &PreferenceStore{prefs: p}
}

// Set validates and applies a single field, returning the partial update
// to send to the server. Nothing changes when validation fails.
func (s *PreferenceStore) Set(key string, value any) (models.PreferencesUpdate, error) {
	update, err := models.PreferenceField(key, value)
	if err != nil {
		return update, err
	}
	update.Apply(&s.prefs)
	return update, nil
}

// Replace swaps in the record returned by the server
func (s *PreferenceStore) Replace(p models.Preferences) {
	s.prefs = p
}

// Snapshot returns a copy of the current preferences
func (s *PreferenceStore) Snapshot() models.Preferences {
	return s.prefs
}
