// Package metadata looks up catalog records for uploaded books so that
// missing covers, descriptions and categories can be filled in.
package metadata

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrNoMatch     = errors.New("no matching metadata found")
	ErrRateLimited = errors.New("rate limited by provider")
)

// BookMetadata is a catalog record returned by a provider
type BookMetadata struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Description string   `json:"description,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	Subjects    []string `json:"subjects,omitempty"`
	Source      string   `json:"source"`
	Confidence  float64  `json:"confidence"` // 0.0 - 1.0
}

// Provider searches an external catalog
type Provider interface {
	// Name returns the provider identifier (e.g., "openlibrary")
	Name() string

	// Search finds books matching title and optional author
	Search(ctx context.Context, title, author string) ([]BookMetadata, error)
}
