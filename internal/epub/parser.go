package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/justyntemme/bookhaven/internal/models"
)

// Metadata contains extracted EPUB metadata
type Metadata struct {
	Title        string
	Author       string
	Description  string
	Language     string
	ChapterCount int
}

// Container represents the META-INF/container.xml structure
type Container struct {
	XMLName   xml.Name `xml:"container"`
	RootFiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// Package represents the OPF package document
type Package struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		Title       []string `xml:"title"`
		Creator     []string `xml:"creator"`
		Description []string `xml:"description"`
		Language    []string `xml:"language"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Items []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// Chapter represents a spine entry in the EPUB
type Chapter struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Href  string `json:"href"`
	Title string `json:"title"`
}

// book is an opened EPUB archive with its package document
type book struct {
	zip      *zip.ReadCloser
	pkg      *Package
	chapters []Chapter
}

func openBook(filePath string) (*book, error) {
	r, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}

	containerFile, err := findFile(&r.Reader, "META-INF/container.xml")
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("missing container.xml: %w", err)
	}
	container := &Container{}
	err = parseXML(containerFile, container)
	containerFile.Close()
	if err != nil {
		r.Close()
		return nil, err
	}
	if len(container.RootFiles) == 0 {
		r.Close()
		return nil, fmt.Errorf("container.xml lists no package document")
	}

	opfPath := container.RootFiles[0].FullPath
	opfFile, err := findFile(&r.Reader, opfPath)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("missing package document %s: %w", opfPath, err)
	}
	pkg := &Package{}
	err = parseXML(opfFile, pkg)
	opfFile.Close()
	if err != nil {
		r.Close()
		return nil, err
	}

	manifest := make(map[string]string)
	for _, item := range pkg.Manifest.Items {
		manifest[item.ID] = item.Href
	}

	opfDir := path.Dir(opfPath)
	var chapters []Chapter
	for _, item := range pkg.Spine.Items {
		href := manifest[item.IDRef]
		if href == "" {
			continue
		}
		fullPath := href
		if opfDir != "." {
			fullPath = path.Join(opfDir, href)
		}
		chapters = append(chapters, Chapter{
			Index: len(chapters),
			ID:    item.IDRef,
			Href:  fullPath,
		})
	}

	return &book{zip: r, pkg: pkg, chapters: chapters}, nil
}

func (b *book) Close() error {
	return b.zip.Close()
}

// parseChapter reads and parses the XHTML of a chapter
func (b *book) parseChapter(ch Chapter) (*html.Node, error) {
	file, err := findFile(&b.zip.Reader, ch.Href)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return html.Parse(bytes.NewReader(data))
}

// ParseEPUB extracts metadata from an EPUB file
func ParseEPUB(filePath string) (*Metadata, error) {
	b, err := openBook(filePath)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	meta := &Metadata{
		Title:        "Unknown",
		Author:       "Unknown",
		ChapterCount: len(b.chapters),
	}
	md := b.pkg.Metadata
	if v := first(md.Title); v != "" {
		meta.Title = v
	}
	if v := first(md.Creator); v != "" {
		meta.Author = v
	}
	meta.Description = first(md.Description)
	meta.Language = first(md.Language)

	return meta, nil
}

// ValidateEPUB checks if a file is a readable EPUB
func ValidateEPUB(filePath string) error {
	b, err := openBook(filePath)
	if err != nil {
		return err
	}
	return b.Close()
}

// GetTableOfContents returns the book's chapters in spine order
func GetTableOfContents(filePath string) ([]Chapter, error) {
	b, err := openBook(filePath)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	chapters := make([]Chapter, len(b.chapters))
	for i, ch := range b.chapters {
		ch.Title = "Chapter " + strconv.Itoa(i+1)
		if doc, err := b.parseChapter(ch); err == nil {
			if title := chapterTitle(doc); title != "" {
				ch.Title = title
			}
		}
		chapters[i] = ch
	}
	return chapters, nil
}

// ExtractChapters returns the plain text of every chapter, one page per
// spine entry
func ExtractChapters(filePath string) ([]models.ExtractedPage, error) {
	b, err := openBook(filePath)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	pages := make([]models.ExtractedPage, 0, len(b.chapters))
	for i, ch := range b.chapters {
		page := models.ExtractedPage{Page: i + 1, Images: []string{}}
		doc, err := b.parseChapter(ch)
		if err != nil {
			return nil, fmt.Errorf("read chapter %s: %w", ch.Href, err)
		}
		page.Text = extractText(doc)
		pages = append(pages, page)
	}
	return pages, nil
}

func findFile(r *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range r.File {
		if f.Name == name || strings.EqualFold(f.Name, name) {
			return f.Open()
		}
	}
	return nil, os.ErrNotExist
}

func parseXML(r io.Reader, v interface{}) error {
	decoder := xml.NewDecoder(r)
	return decoder.Decode(v)
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// chapterTitle returns the document <title>, falling back to the first <h1>
func chapterTitle(doc *html.Node) string {
	if n := findElement(doc, "title"); n != nil {
		if title := strings.TrimSpace(nodeText(n)); title != "" && title != "Unknown" {
			return title
		}
	}
	if n := findElement(doc, "h1"); n != nil {
		return strings.TrimSpace(nodeText(n))
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			buf.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// extractText returns the readable body text, one line per block element
func extractText(doc *html.Node) string {
	root := findElement(doc, "body")
	if root == nil {
		root = doc
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if node.Type == html.ElementNode && blockElements[node.Data] {
			buf.WriteString("\n")
		}
	}
	walk(root)

	var lines []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
