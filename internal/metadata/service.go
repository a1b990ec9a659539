package metadata

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/justyntemme/bookhaven/internal/models"
)

// DefaultMinConfidence is the lowest score accepted as a match
const DefaultMinConfidence = 0.5

// Service picks the best catalog match for an upload and copies its
// fields onto the book
type Service struct {
	provider      Provider
	rateLimit     *RateLimiter
	minConfidence float64
}

// NewService creates a metadata service backed by provider
func NewService(provider Provider) *Service {
	return &Service{
		provider:      provider,
		rateLimit:     NewRateLimiter(500 * time.Millisecond),
		minConfidence: DefaultMinConfidence,
	}
}

// LookupBook returns the best match for title and author
func (s *Service) LookupBook(ctx context.Context, title, author string) (*BookMetadata, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrNoMatch
	}
	if err := s.rateLimit.Wait(ctx); err != nil {
		return nil, err
	}

	results, err := s.provider.Search(ctx, title, author)
	if err != nil {
		return nil, err
	}

	ranked := rankResults(results, title, author)
	if len(ranked) == 0 || ranked[0].Confidence < s.minConfidence {
		return nil, ErrNoMatch
	}
	return &ranked[0], nil
}

// Enrich fills the book's empty cover, description and category from the
// best catalog match. Fields already set are never overwritten. Enrich
// reports whether anything changed.
func (s *Service) Enrich(ctx context.Context, book *models.Book) (bool, error) {
	if book.CoverURL != "" && book.Description != "" && book.Category != "" {
		return false, nil
	}

	author := book.Author
	if author == "Unknown" {
		author = ""
	}
	match, err := s.LookupBook(ctx, book.Title, author)
	if err != nil {
		return false, err
	}

	changed := false
	if book.CoverURL == "" && match.CoverURL != "" {
		book.CoverURL = match.CoverURL
		changed = true
	}
	if book.Description == "" && match.Description != "" {
		book.Description = match.Description
		changed = true
	}
	if book.Category == "" {
		if category := CategoryForSubjects(match.Subjects); category != "" {
			book.Category = category
			changed = true
		}
	}
	return changed, nil
}

// subjectCategories maps catalog subject keywords to library categories.
// Order matters: "science fiction" must win over "science".
var subjectCategories = []struct {
	keyword  string
	category string
}{
	{"science fiction", "fiction"},
	{"fantasy", "fantasy"},
	{"romance", "romance"},
	{"love stories", "romance"},
	{"mystery", "mystery"},
	{"detective", "mystery"},
	{"crime", "mystery"},
	{"history", "history"},
	{"historical", "history"},
	{"business", "business"},
	{"economics", "business"},
	{"management", "business"},
	{"science", "science"},
	{"fiction", "fiction"},
}

// CategoryForSubjects returns the library category of the first subject
// that matches a known keyword, or "" when none does
func CategoryForSubjects(subjects []string) string {
	for _, subject := range subjects {
		subject = strings.ToLower(subject)
		for _, rule := range subjectCategories {
			if strings.Contains(subject, rule.keyword) {
				return rule.category
			}
		}
	}
	return ""
}

// rankResults scores every result and sorts by confidence descending
func rankResults(results []BookMetadata, title, author string) []BookMetadata {
	for i := range results {
		results[i].Confidence = calculateConfidence(&results[i], title, author)
	}
	slices.SortStableFunc(results, func(a, b BookMetadata) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return results
}

// calculateConfidence weights title similarity 60% and author 40%
func calculateConfidence(meta *BookMetadata, title, author string) float64 {
	titleScore := stringSimilarity(normalize(meta.Title), normalize(title))

	authorScore := 0.0
	if author == "" {
		authorScore = 1.0
	} else {
		normalizedAuthor := normalize(author)
		for _, a := range meta.Authors {
			authorScore = max(authorScore, stringSimilarity(normalize(a), normalizedAuthor))
		}
	}

	return titleScore*0.6 + authorScore*0.4
}

// normalize lowercases, strips a leading article and punctuation, and
// collapses whitespace
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "the ")
	s = strings.TrimPrefix(s, "a ")
	s = strings.TrimPrefix(s, "an ")
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(result.String()), " ")
}

// stringSimilarity is the token overlap of a and b (0.0 - 1.0)
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	matches := 0
	for _, ta := range tokensA {
		if slices.Contains(tokensB, ta) {
			matches++
		}
	}
	return float64(matches) / float64(len(tokensA)+len(tokensB)-matches)
}

// RateLimiter spaces out calls to a provider
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	lastCall time.Time
}

// NewRateLimiter creates a rate limiter with the given minimum interval
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Wait blocks until the interval since the previous call has passed or
// ctx is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wait := r.interval - time.Since(r.lastCall); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.lastCall = time.Now()
	return nil
}
