// Package library holds the client-side view of the book grid: search,
// category filter, sort order and the reading stats dashboard.
package library

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/justyntemme/bookhaven/internal/models"
)

// CategoryAll disables the category filter
const CategoryAll = "all"

// Categories are the categories offered when uploading and filtering
var Categories = []string{CategoryAll, "fiction", "science", "fantasy", "romance", "mystery", "history", "business"}

// Sort orders
const (
	SortPopular = "popular"
	SortRecent  = "recent"
	SortRating  = "rating"
	SortTitle   = "title"
)

// Query narrows and orders the grid
type Query struct {
	Search   string
	Category string
	Sort     string
}

// Filter returns the books whose title or author contains search
// (case-insensitive) and that belong to category. An empty category or
// CategoryAll matches every book.
func Filter(books []models.Book, search, category string) []models.Book {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]models.Book, 0, len(books))
	for _, b := range books {
		if search != "" &&
			!strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) {
			continue
		}
		if category != "" && category != CategoryAll && b.Category != category {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Sort orders books in place. Unknown orders keep the input order.
func Sort(books []models.Book, by string) {
	switch by {
	case SortPopular:
		slices.SortStableFunc(books, func(a, b models.Book) int {
			if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
				return c
			}
			return cmp.Compare(b.Reviews, a.Reviews)
		})
	case SortRating:
		slices.SortStableFunc(books, func(a, b models.Book) int {
			return cmp.Compare(b.Rating, a.Rating)
		})
	case SortRecent:
		slices.SortStableFunc(books, func(a, b models.Book) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	case SortTitle:
		slices.SortStableFunc(books, func(a, b models.Book) int {
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		})
	}
}

// Apply filters and sorts a copy of books
func Apply(books []models.Book, q Query) []models.Book {
	out := Filter(books, q.Search, q.Category)
	Sort(out, q.Sort)
	return out
}

// Stats is the library dashboard
type Stats struct {
	BooksRead    int
	Favorites    int
	ReadingHours int
}

// ComputeStats derives the dashboard from the local progress mirror and
// favorites. Reading hours is a rough estimate: every 20 percentage points
// read count as one hour.
func ComputeStats(progress map[string]float64, favorites []string) Stats {
	var s Stats
	var total float64
	for _, pct := range progress {
		if pct >= 100 {
			s.BooksRead++
		}
		total += pct
	}
	s.Favorites = len(favorites)
	s.ReadingHours = int(math.Round(total / 20))
	return s
}

// ContinueLabel is the label of a book's read button
func ContinueLabel(pct float64) string {
	if pct > 0 {
		return fmt.Sprintf("Continue (%d%%)", int(math.Round(pct)))
	}
	return "Start reading"
}
