package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/bookhaven/internal/metadata"
	"github.com/justyntemme/bookhaven/internal/models"
	"github.com/justyntemme/bookhaven/internal/storage"
)

// setupTestHandler creates a test handler with a temporary database
func setupTestHandler(t *testing.T) (*Handler, func()) {
	tmpDir, err := os.MkdirTemp("", "bookhaven-test-*")
	require.NoError(t, err)

	db, err := storage.NewDatabase(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)

	files, err := storage.NewFileStorage(tmpDir)
	require.NoError(t, err)

	handler := NewHandler(db, files)

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return handler, cleanup
}

// setupTestUser creates a test user and returns the user ID
func setupTestUser(t *testing.T, handler *Handler, username string) string {
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, handler.db.CreateUser(user))
	return user.ID
}

// setupTestBook stores a small TXT book uploaded by userID
func setupTestBook(t *testing.T, handler *Handler, userID string, public bool) *models.Book {
	id := uuid.New().String()
	content := []byte("Once upon a time there was a small test book.")
	book := &models.Book{
		ID:         id,
		Title:      "Test Book",
		Author:     "Test Author",
		FileURL:    "/uploads/" + id + ".txt",
		FileFormat: models.FileFormatTXT,
		FileSize:   int64(len(content)),
		StorageKey: id + ".txt",
		Language:   models.DefaultLanguage,
		Category:   models.DefaultCategory,
		TotalPages: 1,
		IsPublic:   public,
		UploadedBy: userID,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, handler.blobs.Put(context.Background(), book.StorageKey, bytes.NewReader(content), book.FileSize, "text/plain"))
	require.NoError(t, handler.db.CreateBook(book))
	return book
}

// createAuthenticatedContext creates a gin context as auth.Middleware leaves it
func createAuthenticatedContext(userID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("user_id", userID)
	return c, w
}

func jsonRequest(method, url string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newUploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/api/books", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadBook_TXT(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	userID := setupTestUser(t, handler, "reader")
	content := []byte(strings.Repeat("It was the best of times. ", 200))

	c, w := createAuthenticatedContext(userID)
	c.Request = newUploadRequest(t, "tale.txt", content, map[string]string{
		"title":     "A Tale of Two Cities",
		"author":    "Charles Dickens",
		"category":  "classics",
		"is_public": "false",
	})

	handler.UploadBook(c)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var book models.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	assert.Equal(t, "A Tale of Two Cities", book.Title)
	assert.Equal(t, "Charles Dickens", book.Author)
	assert.Equal(t, "classics", book.Category)
	assert.Equal(t, models.DefaultLanguage, book.Language)
	assert.Equal(t, models.FileFormatTXT, book.FileFormat)
	assert.Equal(t, "/uploads/"+book.ID+".txt", book.FileURL)
	assert.Equal(t, int64(len(content)), book.FileSize)
	assert.Equal(t, 3, book.TotalPages)
	assert.False(t, book.IsPublic)
	assert.Equal(t, userID, book.UploadedBy)
	assert.GreaterOrEqual(t, book.Rating, 3.5)
	assert.LessOrEqual(t, book.Rating, 5.0)

	stored, err := handler.db.GetBook(book.ID)
	require.NoError(t, err)
	rc, err := handler.blobs.Open(context.Background(), stored.StorageKey)
	require.NoError(t, err)
	rc.Close()
}

func TestUploadBook_Defaults(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	userID := setupTestUser(t, handler, "reader")

	c, w := createAuthenticatedContext(userID)
	c.Request = newUploadRequest(t, "notes.txt", []byte("short"), nil)
	handler.UploadBook(c)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var book models.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	assert.Equal(t, "notes", book.Title)
	assert.Equal(t, "Unknown", book.Author)
	assert.Equal(t, models.DefaultCategory, book.Category)
	assert.True(t, book.IsPublic)
	assert.Equal(t, 1, book.TotalPages)
}

func TestUploadBook_CatalogEnrichment(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"numFound": 1, "docs": [{
			"title": "Dom Casmurro",
			"author_name": ["Machado de Assis"],
			"cover_i": 42,
			"subject": ["Love stories", "Brazilian fiction"],
			"first_sentence": ["Uma noite destas, vindo da cidade para o Engenho Novo."]
		}]}`))
	}))
	defer catalog.Close()
	handler.SetMetadata(metadata.NewService(metadata.NewOpenLibraryProvider(catalog.URL, time.Second)))

	userID := setupTestUser(t, handler, "reader")

	c, w := createAuthenticatedContext(userID)
	c.Request = newUploadRequest(t, "dom.txt", []byte("Capitulo primeiro."), map[string]string{
		"title":  "Dom Casmurro",
		"author": "Machado de Assis",
	})
	handler.UploadBook(c)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var book models.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	assert.Equal(t, "https://covers.openlibrary.org/b/id/42-M.jpg", book.CoverURL)
	assert.Equal(t, "Uma noite destas, vindo da cidade para o Engenho Novo.", book.Description)
	assert.Equal(t, "romance", book.Category)
}

func TestUploadBook_CatalogDownStillUploads(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer catalog.Close()
	handler.SetMetadata(metadata.NewService(metadata.NewOpenLibraryProvider(catalog.URL, time.Second)))

	userID := setupTestUser(t, handler, "reader")

	c, w := createAuthenticatedContext(userID)
	c.Request = newUploadRequest(t, "notes.txt", []byte("short"), map[string]string{"cover_url": "/covers/mine.jpg"})
	handler.UploadBook(c)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var book models.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	assert.Equal(t, "/covers/mine.jpg", book.CoverURL)
	assert.Equal(t, models.DefaultCategory, book.Category)
}

// failingDeleteStore stores blobs normally but cannot delete them
type failingDeleteStore struct {
	storage.BlobStore
	deletes []string
}

func (s *failingDeleteStore) Delete(ctx context.Context, key string) error {
	s.deletes = append(s.deletes, key)
	return errors.New("bucket unavailable")
}

func TestUploadBook_RollbackFailureIsLogged(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	blobs := &failingDeleteStore{BlobStore: handler.blobs}
	handler.blobs = blobs
	require.NoError(t, handler.db.Close())

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(prev)

	c, w := createAuthenticatedContext("someone")
	c.Request = newUploadRequest(t, "notes.txt", []byte("short"), nil)
	handler.UploadBook(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to save book metadata")
	require.Len(t, blobs.deletes, 1)
	assert.Contains(t, logs.String(), "rollback upload file")
	assert.Contains(t, logs.String(), "bucket unavailable")
	assert.Contains(t, logs.String(), strings.TrimSuffix(blobs.deletes[0], ".txt"))
}

func TestUploadBook_Rejected(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	userID := setupTestUser(t, handler, "reader")

	tests := []struct {
		name     string
		filename string
		content  []byte
		limit    int64
		errText  string
	}{
		{"unsupported format", "book.docx", []byte("data"), 0, "Invalid file format"},
		{"broken pdf", "book.pdf", []byte("not a pdf"), 0, "Invalid PDF file"},
		{"broken epub", "book.epub", []byte("not a zip"), 0, "Invalid EPUB file"},
		{"binary txt", "book.txt", []byte{0xff, 0x00, 0xfe}, 0, "Invalid TXT file"},
		{"too large", "book.txt", []byte(strings.Repeat("a", 2*1024*1024)), 1024 * 1024, "File too large (max 1MB)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler.maxUploadSize = DefaultMaxUploadSize
			handler.SetMaxUploadSize(tt.limit)

			c, w := createAuthenticatedContext(userID)
			c.Request = newUploadRequest(t, tt.filename, tt.content, map[string]string{"title": "x", "author": "y"})
			handler.UploadBook(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.errText)
		})
	}

	books, err := handler.db.ListBooksForUser(userID, storage.BookQuery{})
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestUploadBook_NoFile(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	c, w := createAuthenticatedContext("someone")
	c.Request = jsonRequest(http.MethodPost, "/api/books", gin.H{"title": "x"})
	handler.UploadBook(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No file provided")
}

func TestListBooks(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	alice := setupTestUser(t, handler, "alice")
	bob := setupTestUser(t, handler, "bob")
	setupTestBook(t, handler, alice, true)
	setupTestBook(t, handler, alice, false)

	c, w := createAuthenticatedContext(bob)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/books", nil)
	handler.ListBooks(c)

	require.Equal(t, http.StatusOK, w.Code)
	var books []models.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	assert.Len(t, books, 1)

	c, w = createAuthenticatedContext(alice)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/books?search=test&category=all&sort=recent", nil)
	handler.ListBooks(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	assert.Len(t, books, 2)

	c, w = createAuthenticatedContext(alice)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/books?search=nothing-matches", nil)
	handler.ListBooks(c)
	assert.Equal(t, "[]", w.Body.String())
}

func TestGetBook(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	alice := setupTestUser(t, handler, "alice")
	bob := setupTestUser(t, handler, "bob")
	private := setupTestBook(t, handler, alice, false)

	c, w := createAuthenticatedContext(alice)
	c.Params = []gin.Param{{Key: "id", Value: private.ID}}
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/books/"+private.ID, nil)
	handler.GetBook(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = createAuthenticatedContext(bob)
	c.Params = []gin.Param{{Key: "id", Value: private.ID}}
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/books/"+private.ID, nil)
	handler.GetBook(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Book not found")
}

func TestDeleteBook(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	alice := setupTestUser(t, handler, "alice")
	bob := setupTestUser(t, handler, "bob")
	book := setupTestBook(t, handler, alice, true)

	c, w := createAuthenticatedContext(bob)
	c.Params = []gin.Param{{Key: "id", Value: book.ID}}
	c.Request, _ = http.NewRequest(http.MethodDelete, "/api/books/"+book.ID, nil)
	handler.DeleteBook(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = createAuthenticatedContext(alice)
	c.Params = []gin.Param{{Key: "id", Value: book.ID}}
	c.Request, _ = http.NewRequest(http.MethodDelete, "/api/books/"+book.ID, nil)
	handler.DeleteBook(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Book deleted")

	_, err := handler.blobs.Open(context.Background(), book.StorageKey)
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)

	c, w = createAuthenticatedContext(alice)
	c.Params = []gin.Param{{Key: "id", Value: book.ID}}
	c.Request, _ = http.NewRequest(http.MethodDelete, "/api/books/"+book.ID, nil)
	handler.DeleteBook(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtractText_TXTWithCache(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	mr := miniredis.RunT(t)
	cache := storage.NewRedisTextCache(mr.Addr(), "", 0, time.Hour)
	defer cache.Close()
	handler.SetTextCache(cache)

	userID := setupTestUser(t, handler, "reader")
	book := setupTestBook(t, handler, userID, true)

	extract := func() *httptest.ResponseRecorder {
		c, w := createAuthenticatedContext(userID)
		c.Params = []gin.Param{{Key: "id", Value: book.ID}}
		c.Request, _ = http.NewRequest(http.MethodGet, "/api/books/"+book.ID+"/extract-text", nil)
		handler.ExtractText(c)
		return w
	}

	w := extract()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.ExtractedText
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Pages, 1)
	assert.Equal(t, 1, result.Pages[0].Page)
	assert.Equal(t, "Once upon a time there was a small test book.", result.Pages[0].Text)
	assert.NotNil(t, result.Pages[0].Images)

	// Served from Redis once the file is gone
	require.NoError(t, handler.blobs.Delete(context.Background(), book.StorageKey))
	w = extract()
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result.Pages, 1)
}

func TestExtractText_MissingFile(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	userID := setupTestUser(t, handler, "reader")
	book := setupTestBook(t, handler, userID, true)
	require.NoError(t, handler.blobs.Delete(context.Background(), book.StorageKey))

	c, w := createAuthenticatedContext(userID)
	c.Params = []gin.Param{{Key: "id", Value: book.ID}}
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/books/"+book.ID+"/extract-text", nil)
	handler.ExtractText(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeUpload(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	userID := setupTestUser(t, handler, "reader")
	book := setupTestBook(t, handler, userID, true)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = []gin.Param{{Key: "file", Value: book.ID + ".txt"}}
	c.Request, _ = http.NewRequest(http.MethodGet, "/uploads/"+book.ID+".txt", nil)
	handler.ServeUpload(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Once upon a time there was a small test book.", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Params = []gin.Param{{Key: "file", Value: book.ID + ".pdf"}}
	c.Request, _ = http.NewRequest(http.MethodGet, "/uploads/"+book.ID+".pdf", nil)
	handler.ServeUpload(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
