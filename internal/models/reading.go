package models

import (
	"fmt"
	"time"
)

// Progress tracks a user's reading progress in one book.
type Progress struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	BookID             string    `json:"book_id"`
	CurrentPage        int       `json:"current_page"`
	CurrentChapter     int       `json:"current_chapter"`
	PercentageComplete float64   `json:"percentage_complete"`
	LastPosition       string    `json:"last_position"`
	TotalReadingTime   int       `json:"total_reading_time"`
	IsFinished         bool      `json:"is_finished"`
	LastReadAt         time.Time `json:"last_read_at"`
}

// NewProgress returns the progress record created on first view.
func NewProgress(id, userID, bookID string) *Progress {
	return &Progress{
		ID:             id,
		UserID:         userID,
		BookID:         bookID,
		CurrentPage:    1,
		CurrentChapter: 1,
		LastReadAt:     time.Now(),
	}
}

// ProgressUpdate is a partial progress write. Nil fields are left as they are.
type ProgressUpdate struct {
	CurrentPage        *int     `json:"current_page,omitempty"`
	CurrentChapter     *int     `json:"current_chapter,omitempty"`
	PercentageComplete *float64 `json:"percentage_complete,omitempty"`
	LastPosition       *string  `json:"last_position,omitempty"`
	TotalReadingTime   *int     `json:"total_reading_time,omitempty"`
	IsFinished         *bool    `json:"is_finished,omitempty"`
}

// Validate checks the ranges of the fields that are set.
func (u ProgressUpdate) Validate() error {
	if u.CurrentPage != nil && *u.CurrentPage < 1 {
		return fmt.Errorf("current_page must be at least 1")
	}
	if u.CurrentChapter != nil && *u.CurrentChapter < 1 {
		return fmt.Errorf("current_chapter must be at least 1")
	}
	if u.PercentageComplete != nil && (*u.PercentageComplete < 0 || *u.PercentageComplete > 100) {
		return fmt.Errorf("percentage_complete must be between 0 and 100")
	}
	if u.TotalReadingTime != nil && *u.TotalReadingTime < 0 {
		return fmt.Errorf("total_reading_time must not be negative")
	}
	return nil
}

// Apply copies the set fields onto p.
func (u ProgressUpdate) Apply(p *Progress) {
	if u.CurrentPage != nil {
		p.CurrentPage = *u.CurrentPage
	}
	if u.CurrentChapter != nil {
		p.CurrentChapter = *u.CurrentChapter
	}
	if u.PercentageComplete != nil {
		p.PercentageComplete = *u.PercentageComplete
	}
	if u.LastPosition != nil {
		p.LastPosition = *u.LastPosition
	}
	if u.TotalReadingTime != nil {
		p.TotalReadingTime = *u.TotalReadingTime
	}
	if u.IsFinished != nil {
		p.IsFinished = *u.IsFinished
	}
}

// DefaultHighlightColor is used for bookmarks and annotations without a color.
const DefaultHighlightColor = "#FFEB3B"

// Bookmark is a saved position within a book.
type Bookmark struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	BookID     string    `json:"book_id"`
	Position   string    `json:"position"`
	Chapter    *int      `json:"chapter,omitempty"`
	PageNumber *int      `json:"page_number,omitempty"`
	Note       string    `json:"note,omitempty"`
	Color      string    `json:"color"`
	CreatedAt  time.Time `json:"created_at"`
}

// Page returns the bookmark's page number, or 0 when it has none.
func (b Bookmark) Page() int {
	if b.PageNumber == nil {
		return 0
	}
	return *b.PageNumber
}

// BookmarkCreate is the body of a create-bookmark request.
type BookmarkCreate struct {
	BookID     string `json:"book_id" binding:"required"`
	Position   string `json:"position" binding:"required"`
	Chapter    *int   `json:"chapter,omitempty"`
	PageNumber *int   `json:"page_number,omitempty"`
	Note       string `json:"note,omitempty"`
	Color      string `json:"color,omitempty"`
}

// Annotation is a highlighted passage with an optional note.
type Annotation struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	BookID          string    `json:"book_id"`
	HighlightedText string    `json:"highlighted_text"`
	PositionStart   string    `json:"position_start,omitempty"`
	PositionEnd     string    `json:"position_end,omitempty"`
	Note            string    `json:"note,omitempty"`
	Color           string    `json:"color"`
	CreatedAt       time.Time `json:"created_at"`
}

// AnnotationCreate is the body of a create-annotation request.
type AnnotationCreate struct {
	BookID          string `json:"book_id" binding:"required"`
	HighlightedText string `json:"highlighted_text" binding:"required"`
	PositionStart   string `json:"position_start,omitempty"`
	PositionEnd     string `json:"position_end,omitempty"`
	Note            string `json:"note,omitempty"`
	Color           string `json:"color,omitempty"`
}

// ReadingStats summarizes a user's reading activity.
type ReadingStats struct {
	BooksStarted     int `json:"books_started"`
	BooksFinished    int `json:"books_finished"`
	Bookmarks        int `json:"bookmarks"`
	Annotations      int `json:"annotations"`
	TotalReadingTime int `json:"total_reading_time"`
}
