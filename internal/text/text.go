// Package text pages plain-text books.
package text

import (
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/justyntemme/bookhaven/internal/models"
)

// PageSize is the number of characters shown on one page of a TXT book
const PageSize = 2000

// Paginate splits text into pages of at most size runes, breaking at the
// last whitespace before the limit when there is one.
func Paginate(text string, size int) []string {
	if size <= 0 {
		size = PageSize
	}
	text = strings.ToValidUTF8(strings.ReplaceAll(text, "\r\n", "\n"), "")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var pages []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if !unicode.IsSpace(runes[end]) {
			if cut := lastSpace(runes[start:end]); cut > 0 {
				end = start + cut
			}
		}

		if page := strings.TrimSpace(string(runes[start:end])); page != "" {
			pages = append(pages, page)
		}
		start = end
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return pages
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// PageCount estimates the number of pages in a TXT file
func PageCount(filePath string) (int, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return 0, err
	}
	n := len(Paginate(string(data), PageSize))
	if n == 0 {
		n = 1
	}
	return n, nil
}

// ExtractPages returns the pages of a TXT file
func ExtractPages(filePath string) ([]models.ExtractedPage, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	parts := Paginate(string(data), PageSize)
	pages := make([]models.ExtractedPage, len(parts))
	for i, part := range parts {
		pages[i] = models.ExtractedPage{Page: i + 1, Text: part, Images: []string{}}
	}
	return pages, nil
}

// Valid reports whether data looks like UTF-8 text
func Valid(data []byte) bool {
	return utf8.Valid(data) && !strings.ContainsRune(string(data), 0)
}
