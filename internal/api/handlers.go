package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/justyntemme/bookhaven/internal/auth"
	"github.com/justyntemme/bookhaven/internal/epub"
	"github.com/justyntemme/bookhaven/internal/metadata"
	"github.com/justyntemme/bookhaven/internal/models"
	"github.com/justyntemme/bookhaven/internal/pdf"
	"github.com/justyntemme/bookhaven/internal/storage"
	"github.com/justyntemme/bookhaven/internal/text"
)

const (
	// DefaultMaxUploadSize is the largest accepted book file
	DefaultMaxUploadSize = 100 * 1024 * 1024

	metadataLookupTimeout = 5 * time.Second
)

// Handler contains the book and reading handlers
type Handler struct {
	db            *storage.Database
	blobs         storage.BlobStore
	texts         storage.TextCache
	catalog       *metadata.Service
	maxUploadSize int64
}

// NewHandler creates a new handler instance
func NewHandler(db *storage.Database, blobs storage.BlobStore) *Handler {
	return &Handler{
		db:            db,
		blobs:         blobs,
		maxUploadSize: DefaultMaxUploadSize,
	}
}

// SetTextCache enables caching of extracted text
func (h *Handler) SetTextCache(cache storage.TextCache) {
	h.texts = cache
}

// SetMetadata enables catalog lookups that fill missing cover,
// description and category on upload
func (h *Handler) SetMetadata(service *metadata.Service) {
	h.catalog = service
}

// SetMaxUploadSize overrides the upload limit in bytes
func (h *Handler) SetMaxUploadSize(n int64) {
	if n > 0 {
		h.maxUploadSize = n
	}
}

// HealthCheck returns server health status
func (h *Handler) HealthCheck(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "time": time.Now()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now()})
}

// bookInfo is what inspecting an uploaded file tells us about the book
type bookInfo struct {
	Title         string
	Author        string
	Description   string
	Language      string
	TotalPages    int
	TotalChapters int
}

func inspectBook(format models.FileFormat, filePath string) (*bookInfo, error) {
	switch format {
	case models.FileFormatPDF:
		if err := pdf.ValidatePDF(filePath); err != nil {
			return nil, err
		}
		meta, err := pdf.ParsePDF(filePath)
		if err != nil {
			return nil, err
		}
		return &bookInfo{Title: meta.Title, Author: meta.Author, Description: meta.Subject, TotalPages: meta.PageCount}, nil

	case models.FileFormatEPUB:
		meta, err := epub.ParseEPUB(filePath)
		if err != nil {
			return nil, err
		}
		return &bookInfo{
			Title:         meta.Title,
			Author:        meta.Author,
			Description:   meta.Description,
			Language:      meta.Language,
			TotalChapters: meta.ChapterCount,
		}, nil

	case models.FileFormatTXT:
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, err
		}
		if !text.Valid(data) {
			return nil, errors.New("not a UTF-8 text file")
		}
		pages, err := text.PageCount(filePath)
		if err != nil {
			return nil, err
		}
		return &bookInfo{TotalPages: pages}, nil
	}

	return nil, fmt.Errorf("unsupported format %q", format)
}

// UploadBook handles PDF, EPUB and TXT uploads
func (h *Handler) UploadBook(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("File too large (max %dMB)", h.maxUploadSize/(1024*1024))})
		return
	}

	format := models.FormatFromFilename(header.Filename)
	if !format.Supported() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file format. Please upload PDF, EPUB, or TXT files."})
		return
	}

	// Inspect a local copy before it reaches the blob store
	tmp, err := os.CreateTemp("", "bookhaven-upload-*"+format.Ext())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer os.Remove(tmp.Name())
	size, err := io.Copy(tmp, file)
	tmp.Close()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	info, err := inspectBook(format, tmp.Name())
	if err != nil {
		slog.Warn("rejected upload", "filename", header.Filename, "format", format, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s file", strings.ToUpper(string(format)))})
		return
	}

	bookID := uuid.New().String()
	book := &models.Book{
		ID:            bookID,
		Title:         firstNonEmpty(c.PostForm("title"), info.Title, strings.TrimSuffix(header.Filename, format.Ext())),
		Author:        firstNonEmpty(c.PostForm("author"), info.Author, "Unknown"),
		Description:   firstNonEmpty(c.PostForm("description"), info.Description),
		CoverURL:      strings.TrimSpace(c.PostForm("cover_url")),
		FileURL:       "/uploads/" + bookID + format.Ext(),
		FileFormat:    format,
		FileSize:      size,
		StorageKey:    bookID + format.Ext(),
		Language:      firstNonEmpty(c.PostForm("language"), info.Language, models.DefaultLanguage),
		Category:      strings.TrimSpace(c.PostForm("category")),
		TotalPages:    firstPositive(info.TotalPages, formInt(c, "total_pages")),
		TotalChapters: firstPositive(info.TotalChapters, formInt(c, "total_chapters")),
		Rating:        math.Round((3.5+rand.Float64()*1.5)*10) / 10,
		Reviews:       10 + rand.IntN(491),
		Trending:      rand.IntN(2) == 1,
		IsPublic:      formBool(c, "is_public", true),
		UploadedBy:    auth.GetUserID(c),
		CreatedAt:     time.Now(),
	}

	h.enrich(c, book)
	if book.Category == "" {
		book.Category = models.DefaultCategory
	}

	f, err := os.Open(tmp.Name())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer f.Close()

	if err := h.blobs.Put(c.Request.Context(), book.StorageKey, f, size, format.ContentType()); err != nil {
		slog.Error("store upload", "book_id", bookID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	if err := h.db.CreateBook(book); err != nil {
		slog.Error("save book", "book_id", bookID, "error", err)
		if err := h.blobs.Delete(c.Request.Context(), book.StorageKey); err != nil {
			slog.Warn("rollback upload file", "book_id", bookID, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save book metadata"})
		return
	}

	c.JSON(http.StatusCreated, book)
}

// enrich fills gaps from the metadata catalog. Lookup failures never
// block an upload.
func (h *Handler) enrich(c *gin.Context, book *models.Book) {
	if h.catalog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), metadataLookupTimeout)
	defer cancel()

	changed, err := h.catalog.Enrich(ctx, book)
	switch {
	case errors.Is(err, metadata.ErrNoMatch):
		slog.Debug("no catalog match", "title", book.Title)
	case err != nil:
		slog.Warn("metadata lookup failed", "title", book.Title, "error", err)
	case changed:
		slog.Info("enriched upload from catalog", "book_id", book.ID, "title", book.Title)
	}
}

// ListBooks returns the books visible to the current user
func (h *Handler) ListBooks(c *gin.Context) {
	books, err := h.db.ListBooksForUser(auth.GetUserID(c), storage.BookQuery{
		Search:   strings.TrimSpace(c.Query("search")),
		Category: c.Query("category"),
		Sort:     c.Query("sort"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list books"})
		return
	}

	c.JSON(http.StatusOK, books)
}

// GetBook returns a single book
func (h *Handler) GetBook(c *gin.Context) {
	book, err := h.db.GetBookForUser(c.Param("id"), auth.GetUserID(c))
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get book"})
		return
	}

	c.JSON(http.StatusOK, book)
}

// DeleteBook removes a book uploaded by the current user
func (h *Handler) DeleteBook(c *gin.Context) {
	id := c.Param("id")

	book, err := h.db.GetBook(id)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get book"})
		return
	}

	if book.UploadedBy != auth.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
		return
	}

	if err := h.db.DeleteBook(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete book"})
		return
	}

	ctx := c.Request.Context()
	if err := h.blobs.Delete(ctx, book.StorageKey); err != nil {
		slog.Warn("delete book file", "book_id", id, "error", err)
	}
	if h.texts != nil {
		if err := h.texts.Delete(ctx, id); err != nil {
			slog.Warn("drop cached text", "book_id", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Book deleted"})
}

// ServeUpload streams a stored book file by its public file name
func (h *Handler) ServeUpload(c *gin.Context) {
	name := c.Param("file")
	format := models.FormatFromFilename(name)
	id := strings.TrimSuffix(name, format.Ext())

	book, err := h.db.GetBook(id)
	if err != nil || book.StorageKey != name {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	rc, err := h.blobs.Open(c.Request.Context(), book.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open file"})
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, book.FileSize, format.ContentType(), rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`inline; filename="%s"`, name),
	})
}

// ExtractText returns the book's text split into pages
func (h *Handler) ExtractText(c *gin.Context) {
	ctx := c.Request.Context()

	book, err := h.db.GetBookForUser(c.Param("id"), auth.GetUserID(c))
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get book"})
		return
	}

	if h.texts != nil {
		cached, ok, err := h.texts.Get(ctx, book.ID)
		if err != nil {
			slog.Warn("read cached text", "book_id", book.ID, "error", err)
		} else if ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	path, cleanup, err := storage.LocalCopy(ctx, h.blobs, book.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open book file"})
		return
	}
	defer cleanup()

	var pages []models.ExtractedPage
	switch book.FileFormat {
	case models.FileFormatPDF:
		pages, err = pdf.ExtractPages(path)
	case models.FileFormatEPUB:
		pages, err = epub.ExtractChapters(path)
	case models.FileFormatTXT:
		pages, err = text.ExtractPages(path)
	default:
		err = fmt.Errorf("unsupported format %q", book.FileFormat)
	}
	if err != nil {
		slog.Error("extract text", "book_id", book.ID, "format", book.FileFormat, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to extract text"})
		return
	}
	if pages == nil {
		pages = []models.ExtractedPage{}
	}

	result := &models.ExtractedText{Pages: pages}
	if h.texts != nil {
		if err := h.texts.Set(ctx, book.ID, result); err != nil {
			slog.Warn("cache extracted text", "book_id", book.ID, "error", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func formInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.PostForm(key))
	return n
}

func formBool(c *gin.Context, key string, defaultValue bool) bool {
	v, ok := c.GetPostForm(key)
	if !ok || v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
