package reader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/justyntemme/bookhaven/internal/models"
)

var (
	// ErrUnsupportedFormat is returned for book formats that cannot be read
	ErrUnsupportedFormat = errors.New("unsupported book format")
	// ErrPageOutOfRange is returned when rendering a page the document lacks
	ErrPageOutOfRange = errors.New("page out of range")
)

// Renderer turns the extracted text of one book format into displayable
// pages.
type Renderer interface {
	Format() models.FileFormat
	// Reflowable formats are positioned by a location token as well as a
	// page number
	Reflowable() bool
	// Render returns page n (1-based) of doc
	Render(doc *models.ExtractedText, n int) (string, error)
	// Location is the location token recorded for page n
	Location(n int) string
}

// RendererFor returns the renderer for a book format
func RendererFor(format models.FileFormat) (Renderer, error) {
	switch format {
	case models.FileFormatPDF:
		return pdfRenderer{}, nil
	case models.FileFormatEPUB:
		return epubRenderer{}, nil
	case models.FileFormatTXT:
		return txtRenderer{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func pageOf(doc *models.ExtractedText, n int) (models.ExtractedPage, error) {
	if doc == nil || n < 1 || n > len(doc.Pages) {
		return models.ExtractedPage{}, ErrPageOutOfRange
	}
	return doc.Pages[n-1], nil
}

// pdfRenderer shows PDFs in text mode. Images are listed, not drawn.
type pdfRenderer struct{}

func (pdfRenderer) Format() models.FileFormat { return models.FileFormatPDF }
func (pdfRenderer) Reflowable() bool          { return false }
func (pdfRenderer) Location(n int) string     { return fmt.Sprintf("page-%d", n) }

func (pdfRenderer) Render(doc *models.ExtractedText, n int) (string, error) {
	p, err := pageOf(doc, n)
	if err != nil {
		return "", err
	}
	text := p.Text
	if strings.TrimSpace(text) == "" {
		text = "(no text on this page)"
	}
	if len(p.Images) > 0 {
		text += fmt.Sprintf("\n\n[%d image(s)]", len(p.Images))
	}
	return text, nil
}

// epubRenderer shows one chapter per page
type epubRenderer struct{}

func (epubRenderer) Format() models.FileFormat { return models.FileFormatEPUB }
func (epubRenderer) Reflowable() bool          { return true }
func (epubRenderer) Location(n int) string     { return fmt.Sprintf("chapter-%d", n) }

func (epubRenderer) Render(doc *models.ExtractedText, n int) (string, error) {
	p, err := pageOf(doc, n)
	if err != nil {
		return "", err
	}
	return p.Text, nil
}

type txtRenderer struct{}

func (txtRenderer) Format() models.FileFormat { return models.FileFormatTXT }
func (txtRenderer) Reflowable() bool          { return false }
func (txtRenderer) Location(n int) string     { return fmt.Sprintf("page-%d", n) }

func (txtRenderer) Render(doc *models.ExtractedText, n int) (string, error) {
	p, err := pageOf(doc, n)
	if err != nil {
		return "", err
	}
	return p.Text, nil
}

// Margins in columns per margin_size preference
var marginColumns = map[string]int{
	"small":  2,
	"medium": 4,
	"large":  8,
}

// Layout word-wraps text to width columns, indenting each line by the
// margin the preferences ask for. Paragraph breaks are kept.
func Layout(text string, width int, prefs models.Preferences) string {
	margin := marginColumns[prefs.MarginSize]
	lineWidth := width - 2*margin
	if lineWidth < 20 {
		lineWidth = 20
	}
	indent := strings.Repeat(" ", margin)

	var b strings.Builder
	for i, para := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		b.WriteString(indent)
		col := 0
		for _, w := range words {
			n := len([]rune(w))
			if col > 0 && col+1+n > lineWidth {
				b.WriteByte('\n')
				b.WriteString(indent)
				col = 0
			}
			if col > 0 {
				b.WriteByte(' ')
				col++
			}
			b.WriteString(w)
			col += n
		}
	}
	return b.String()
}
