package pdf

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/justyntemme/bookhaven/internal/models"
)

// Metadata contains extracted PDF metadata
type Metadata struct {
	Title     string
	Author    string
	Subject   string
	PageCount int
}

// ParsePDF extracts metadata from a PDF file
func ParsePDF(filePath string) (*Metadata, error) {
	meta := &Metadata{
		Title:  extractTitleFromFilename(filePath),
		Author: "Unknown",
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := api.PDFInfo(f, filePath, nil, false, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("read pdf info: %w", err)
	}

	meta.PageCount = info.PageCount
	if info.Title != "" {
		meta.Title = info.Title
	}
	if info.Author != "" {
		meta.Author = info.Author
	}
	if info.Subject != "" {
		meta.Subject = info.Subject
	}

	return meta, nil
}

// ValidatePDF checks if a file is a valid PDF
func ValidatePDF(filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	return api.Validate(f, model.NewDefaultConfiguration())
}

// GetPageCount returns the number of pages in a PDF
func GetPageCount(filePath string) (int, error) {
	meta, err := ParsePDF(filePath)
	if err != nil {
		return 0, err
	}
	return meta.PageCount, nil
}

// ExtractPages returns the plain text and embedded images of every page.
// Pages whose text cannot be decoded come back empty rather than failing
// the whole book.
func ExtractPages(filePath string) ([]models.ExtractedPage, error) {
	file, reader, err := lpdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	totalPages := reader.NumPage()
	pages := make([]models.ExtractedPage, 0, totalPages)
	for i := 1; i <= totalPages; i++ {
		page := models.ExtractedPage{Page: i, Images: []string{}}

		p := reader.Page(i)
		if !p.V.IsNull() {
			if text, err := p.GetPlainText(nil); err == nil {
				page.Text = normalizeText(text)
			}
		}

		pages = append(pages, page)
	}

	images, err := extractImages(filePath, totalPages)
	if err == nil {
		for i := range pages {
			if imgs, ok := images[pages[i].Page]; ok {
				pages[i].Images = imgs
			}
		}
	}

	return pages, nil
}

// extractImages returns data URIs of the images on each page, keyed by
// page number
func extractImages(filePath string, totalPages int) (map[int][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	result := make(map[int][]string)

	for i := 1; i <= totalPages; i++ {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}

		pageMaps, err := api.ExtractImagesRaw(f, []string{strconv.Itoa(i)}, conf)
		if err != nil {
			continue
		}

		for _, pageMap := range pageMaps {
			for _, img := range pageMap {
				data, err := io.ReadAll(img)
				if err != nil || len(data) == 0 {
					continue
				}
				uri := "data:" + imageMIME(img.FileType) + ";base64," + base64.StdEncoding.EncodeToString(data)
				result[i] = append(result[i], uri)
			}
		}
	}

	return result, nil
}

// imageMIME returns the MIME type for an image file type
func imageMIME(imageType string) string {
	switch strings.ToLower(imageType) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "tiff", "tif":
		return "image/tiff"
	case "bmp":
		return "image/bmp"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// extractTitleFromFilename extracts a title from the filename
func extractTitleFromFilename(filePath string) string {
	base := filepath.Base(filePath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}
