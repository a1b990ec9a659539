package models

import (
	"path/filepath"
	"strings"
	"time"
)

// User represents a registered user
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// FileFormat is the format of an uploaded book file.
type FileFormat string

const (
	FileFormatPDF  FileFormat = "pdf"
	FileFormatEPUB FileFormat = "epub"
	FileFormatTXT  FileFormat = "txt"
)

// Supported reports whether the format can be uploaded and read.
func (f FileFormat) Supported() bool {
	switch f {
	case FileFormatPDF, FileFormatEPUB, FileFormatTXT:
		return true
	}
	return false
}

// Paginated reports whether positions in the format are page numbers.
// EPUB positions are opaque location tokens.
func (f FileFormat) Paginated() bool {
	return f == FileFormatPDF || f == FileFormatTXT
}

// Ext returns the file extension including the leading dot.
func (f FileFormat) Ext() string {
	return "." + string(f)
}

// ContentType returns the MIME type served for the format.
func (f FileFormat) ContentType() string {
	switch f {
	case FileFormatPDF:
		return "application/pdf"
	case FileFormatEPUB:
		return "application/epub+zip"
	case FileFormatTXT:
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// FormatFromFilename detects the format from a file name's extension.
func FormatFromFilename(name string) FileFormat {
	return FileFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."))
}

// Default book attributes
const (
	DefaultCategory = "fiction"
	DefaultLanguage = "pt"
)

// Book represents an uploaded book in the library
type Book struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	Description   string     `json:"description,omitempty"`
	CoverURL      string     `json:"cover_url,omitempty"`
	FileURL       string     `json:"file_url"`
	FileFormat    FileFormat `json:"file_format"`
	FileSize      int64      `json:"file_size"`
	Language      string     `json:"language"`
	Category      string     `json:"category"`
	TotalPages    int        `json:"total_pages"`
	TotalChapters int        `json:"total_chapters"`
	Rating        float64    `json:"rating"`
	Reviews       int        `json:"reviews"`
	Trending      bool       `json:"trending"`
	IsPublic      bool       `json:"is_public"`
	UploadedBy    string     `json:"uploaded_by"`
	CreatedAt     time.Time  `json:"created_at"`

	// Key of the stored file in the blob store
	StorageKey string `json:"-"`
}

// ExtractedPage is one page of text extracted from a book file.
type ExtractedPage struct {
	Page   int      `json:"page"`
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

// ExtractedText is the response of the extract-text endpoint.
type ExtractedText struct {
	Pages []ExtractedPage `json:"pages"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error string `json:"error"`
}
