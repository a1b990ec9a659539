package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/justyntemme/bookhaven/internal/auth"
	"github.com/justyntemme/bookhaven/internal/models"
)

// GetProgress returns the reading progress for a book, creating it on
// first view
func (h *Handler) GetProgress(c *gin.Context) {
	progress, err := h.db.GetOrCreateProgress(auth.GetUserID(c), c.Param("book_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get reading progress"})
		return
	}

	c.JSON(http.StatusOK, progress)
}

// UpdateProgress writes the fields present in the body
func (h *Handler) UpdateProgress(c *gin.Context) {
	var update models.ProgressUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := update.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	progress, err := h.db.UpdateProgress(auth.GetUserID(c), c.Param("book_id"), update)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save reading progress"})
		return
	}

	c.JSON(http.StatusOK, progress)
}

// GetReadingStats returns the current user's reading totals
func (h *Handler) GetReadingStats(c *gin.Context) {
	stats, err := h.db.GetReadingStats(auth.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// bookVisible reports whether the book exists for the user, writing the
// error response when it does not
func (h *Handler) bookVisible(c *gin.Context, bookID string) bool {
	if _, err := h.db.GetBookForUser(bookID, auth.GetUserID(c)); err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get book"})
		return false
	}
	return true
}

// ListBookmarks returns the user's bookmarks for a book
func (h *Handler) ListBookmarks(c *gin.Context) {
	bookmarks, err := h.db.ListBookmarks(auth.GetUserID(c), c.Param("book_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list bookmarks"})
		return
	}

	c.JSON(http.StatusOK, bookmarks)
}

// CreateBookmark saves a bookmark
func (h *Handler) CreateBookmark(c *gin.Context) {
	var req models.BookmarkCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id and position are required"})
		return
	}

	if !h.bookVisible(c, req.BookID) {
		return
	}

	color := req.Color
	if color == "" {
		color = models.DefaultHighlightColor
	}

	bookmark := &models.Bookmark{
		ID:         uuid.New().String(),
		UserID:     auth.GetUserID(c),
		BookID:     req.BookID,
		Position:   req.Position,
		Chapter:    req.Chapter,
		PageNumber: req.PageNumber,
		Note:       req.Note,
		Color:      color,
		CreatedAt:  time.Now(),
	}

	if err := h.db.CreateBookmark(bookmark); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create bookmark"})
		return
	}

	c.JSON(http.StatusCreated, bookmark)
}

// DeleteBookmark removes one of the user's bookmarks
func (h *Handler) DeleteBookmark(c *gin.Context) {
	if err := h.db.DeleteBookmark(c.Param("bookmark_id"), auth.GetUserID(c)); err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Bookmark not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete bookmark"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Bookmark deleted"})
}

// ListAnnotations returns the user's annotations for a book
func (h *Handler) ListAnnotations(c *gin.Context) {
	annotations, err := h.db.ListAnnotations(auth.GetUserID(c), c.Param("book_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list annotations"})
		return
	}

	c.JSON(http.StatusOK, annotations)
}

// CreateAnnotation saves a highlight
func (h *Handler) CreateAnnotation(c *gin.Context) {
	var req models.AnnotationCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id and highlighted_text are required"})
		return
	}

	if !h.bookVisible(c, req.BookID) {
		return
	}

	color := req.Color
	if color == "" {
		color = models.DefaultHighlightColor
	}

	annotation := &models.Annotation{
		ID:              uuid.New().String(),
		UserID:          auth.GetUserID(c),
		BookID:          req.BookID,
		HighlightedText: req.HighlightedText,
		PositionStart:   req.PositionStart,
		PositionEnd:     req.PositionEnd,
		Note:            req.Note,
		Color:           color,
		CreatedAt:       time.Now(),
	}

	if err := h.db.CreateAnnotation(annotation); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create annotation"})
		return
	}

	c.JSON(http.StatusCreated, annotation)
}

// DeleteAnnotation removes one of the user's annotations
func (h *Handler) DeleteAnnotation(c *gin.Context) {
	if err := h.db.DeleteAnnotation(c.Param("annotation_id"), auth.GetUserID(c)); err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Annotation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete annotation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Annotation deleted"})
}

// GetPreferences returns the user's reading preferences
func (h *Handler) GetPreferences(c *gin.Context) {
	prefs, err := h.db.GetOrCreatePreferences(auth.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get preferences"})
		return
	}

	c.JSON(http.StatusOK, prefs)
}

// UpdatePreferences applies a partial preferences update
func (h *Handler) UpdatePreferences(c *gin.Context) {
	var update models.PreferencesUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := update.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prefs, err := h.db.UpdatePreferences(auth.GetUserID(c), update)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preferences"})
		return
	}

	c.JSON(http.StatusOK, prefs)
}
