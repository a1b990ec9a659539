package reader

import "math"

// DefaultTotalPages is the page count assumed when the book does not know
// its own
const DefaultTotalPages = 100

// Tracker holds the reading position within one book. It is not safe for
// concurrent use; Session guards it.
type Tracker struct {
	currentPage int
	totalPages  int
	percentage  float64
	location    string
}

// NewTracker starts a tracker at page (clamped to [1, totalPages]) with
// the last known percentage and location token.
func NewTracker(page, totalPages int, percentage float64, location string) *Tracker {
	if totalPages < 1 {
		totalPages = DefaultTotalPages
	}
	page = max(1, min(page, totalPages))
	return &Tracker{
		currentPage: page,
		totalPages:  totalPages,
		percentage:  percentage,
		location:    location,
	}
}

func (t *Tracker) CurrentPage() int { return t.currentPage }
func (t *Tracker) TotalPages() int  { return t.totalPages }
func (t *Tracker) Location() string { return t.location }

// InRange reports whether page is a valid navigation target
func (t *Tracker) InRange(page int) bool {
	return page >= 1 && page <= t.totalPages
}

// MoveTo sets the current page and recomputes the percentage from the
// current page count. It returns false and changes nothing when page is
// out of range.
func (t *Tracker) MoveTo(page int) bool {
	if !t.InRange(page) {
		return false
	}
	t.currentPage = page
	t.percentage = float64(page) / float64(t.totalPages) * 100
	return true
}

// Ratio is the unrounded completion percentage, the value persisted
func (t *Tracker) Ratio() float64 {
	return t.percentage
}

// Percentage is the completion percentage rounded for display
func (t *Tracker) Percentage() int {
	return int(math.Round(t.percentage))
}

// SetTotalPages changes the denominator used by later moves. A current
// page past the new end is pulled back to the last page. The stored
// percentage is left as it is.
func (t *Tracker) SetTotalPages(n int) {
	if n < 1 {
		return
	}
	t.totalPages = n
	t.currentPage = min(t.currentPage, n)
}

// Relocate records an opaque location token for reflowable formats. The
// percentage keeps its last known value.
func (t *Tracker) Relocate(token string) {
	t.location = token
}
