// Package client is the HTTP client for the bookhaven API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/justyntemme/bookhaven/internal/apperror"
	"github.com/justyntemme/bookhaven/internal/models"
)

// DefaultTimeout bounds every request made by the client
const DefaultTimeout = 30 * time.Second

// Client is the HTTP client for the bookhaven API
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

// NewClient creates a new API client. A zero timeout uses DefaultTimeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetToken updates the authentication token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current authentication token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// OnUnauthorized registers fn to run whenever the server answers 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// request makes an HTTP request to the API
func (c *Client) request(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.mu.RLock()
		hook := c.onUnauthorized
		c.mu.RUnlock()
		if hook != nil {
			hook()
		}
	}
	return resp, nil
}

// parseResponse reads and unmarshals the response body
func parseResponse[T any](resp *http.Response) (T, error) {
	var result T
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, err
	}

	if resp.StatusCode >= 400 {
		msg := string(body)
		var errResp models.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return result, statusError(resp.StatusCode, msg)
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return result, err
	}

	return result, nil
}

// statusError maps an HTTP error status onto an apperror kind
func statusError(status int, msg string) error {
	switch status {
	case http.StatusUnauthorized:
		return apperror.Auth(msg)
	case http.StatusForbidden:
		return apperror.Forbidden(msg)
	case http.StatusNotFound:
		return &apperror.Error{Kind: apperror.ErrNotFound, Message: msg}
	case http.StatusConflict:
		return apperror.Conflict(msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperror.ValidationFailed("", msg)
	}
	return fmt.Errorf("HTTP %d: %s", status, msg)
}

type message struct {
	Message string `json:"message"`
}

// Authentication methods

// Login authenticates a user
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	resp, err := c.request(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.AuthResponse](resp)
}

// Register creates a new user account
func (c *Client) Register(ctx context.Context, email, username, password string) (*models.AuthResponse, error) {
	resp, err := c.request(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.AuthResponse](resp)
}

// GetCurrentUser returns the authenticated user
func (c *Client) GetCurrentUser(ctx context.Context) (*models.User, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.User](resp)
}

// Book methods

// BookQuery filters the book listing. Empty fields are not sent.
type BookQuery struct {
	Search   string
	Category string
	Sort     string
}

// ListBooks returns the books visible to the current user
func (c *Client) ListBooks(ctx context.Context, q BookQuery) ([]models.Book, error) {
	params := url.Values{}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}

	path := "/api/books"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return parseResponse[[]models.Book](resp)
}

// GetBook returns a single book by ID
func (c *Client) GetBook(ctx context.Context, id string) (*models.Book, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/books/"+id, nil)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.Book](resp)
}

// UploadOptions are the optional form fields sent with an upload
type UploadOptions struct {
	Title       string
	Author      string
	Description string
	CoverURL    string
	Category    string
	Language    string
	Private     bool
}

// UploadBook uploads a PDF, EPUB or TXT file to the server
func (c *Client) UploadBook(ctx context.Context, filePath string, opts UploadOptions) (*models.Book, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"title":       opts.Title,
		"author":      opts.Author,
		"description": opts.Description,
		"cover_url":   opts.CoverURL,
		"category":    opts.Category,
		"language":    opts.Language,
		"is_public":   strconv.FormatBool(!opts.Private),
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}

	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/books", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.Book](resp)
}

// DeleteBook removes a book uploaded by the current user
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	resp, err := c.request(ctx, http.MethodDelete, "/api/books/"+id, nil)
	if err != nil {
		return err
	}
	_, err = parseResponse[message](resp)
	return err
}

// ExtractText returns the book's text split into pages
func (c *Client) ExtractText(ctx context.Context, id string) (*models.ExtractedText, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/books/"+id+"/extract-text", nil)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.ExtractedText](resp)
}

// Reading methods

// GetProgress returns the reading progress for a book
func (c *Client) GetProgress(ctx context.Context, bookID string) (*models.Progress, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/reading/progress/"+bookID, nil)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.Progress](resp)
}

// UpdateProgress writes the set fields of update
func (c *Client) UpdateProgress(ctx context.Context, bookID string, update models.ProgressUpdate) (*models.Progress, error) {
	resp, err := c.request(ctx, http.MethodPut, "/api/reading/progress/"+bookID, update)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.Progress](resp)
}

// GetReadingStats returns the user's reading totals
func (c *Client) GetReadingStats(ctx context.Context) (*models.ReadingStats, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/reading/stats", nil)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.ReadingStats](resp)
}

// ListBookmarks returns the user's bookmarks for a book
func (c *Client) ListBookmarks(ctx context.Context, bookID string) ([]models.Bookmark, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/bookmarks/"+bookID, nil)
	if err != nil {
		return nil, err
	}
	return parseResponse[[]models.Bookmark](resp)
}

// CreateBookmark saves a bookmark
func (c *Client) CreateBookmark(ctx context.Context, req models.BookmarkCreate) (*models.Bookmark, error) {
	resp, err := c.request(ctx, http.MethodPost, "/api/bookmarks", req)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.Bookmark](resp)
}

// DeleteBookmark removes a bookmark
func (c *Client) DeleteBookmark(ctx context.Context, id string) error {
	resp, err := c.request(ctx, http.MethodDelete, "/api/bookmarks/"+id, nil)
	if err != nil {
		return err
	}
	_, err = parseResponse[message](resp)
	return err
}

// ListAnnotations returns the user's annotations for a book
func (c *Client) ListAnnotations(ctx context.Context, bookID string) ([]models.Annotation, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/annotations/"+bookID, nil)
	if err != nil {
		return nil, err
	}
	return parseResponse[[]models.Annotation](resp)
}

// CreateAnnotation saves a highlight
func (c *Client) CreateAnnotation(ctx context.Context, req models.AnnotationCreate) (*models.Annotation, error) {
	resp, err := c.request(ctx, http.MethodPost, "/api/annotations", req)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.Annotation](resp)
}

// DeleteAnnotation removes an annotation
func (c *Client) DeleteAnnotation(ctx context.Context, id string) error {
	resp, err := c.request(ctx, http.MethodDelete, "/api/annotations/"+id, nil)
	if err != nil {
		return err
	}
	_, err = parseResponse[message](resp)
	return err
}

// GetPreferences returns the user's reading preferences
func (c *Client) GetPreferences(ctx context.Context) (*models.Preferences, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/preferences", nil)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.Preferences](resp)
}

// UpdatePreferences applies a partial preferences update
func (c *Client) UpdatePreferences(ctx context.Context, update models.PreferencesUpdate) (*models.Preferences, error) {
	resp, err := c.request(ctx, http.MethodPut, "/api/preferences", update)
	if err != nil {
		return nil, err
	}
	return parseResponse[*models.Preferences](resp)
}

// Health checks that the server is up
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.request(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	_, err = parseResponse[map[string]any](resp)
	return err
}
