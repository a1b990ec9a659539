package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultOpenLibraryURL is the public Open Library API
	DefaultOpenLibraryURL = "https://openlibrary.org"

	coverBaseURL = "https://covers.openlibrary.org"
	maxSubjects  = 8
)

// OpenLibraryProvider searches the Open Library catalog
type OpenLibraryProvider struct {
	client  *http.Client
	baseURL string
}

// NewOpenLibraryProvider creates a provider against baseURL. An empty
// baseURL uses the public API.
func NewOpenLibraryProvider(baseURL string, timeout time.Duration) *OpenLibraryProvider {
	if baseURL == "" {
		baseURL = DefaultOpenLibraryURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenLibraryProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Name returns the provider identifier
func (p *OpenLibraryProvider) Name() string {
	return "openlibrary"
}

type olSearchResponse struct {
	NumFound int           `json:"numFound"`
	Docs     []olSearchDoc `json:"docs"`
}

type olSearchDoc struct {
	Key           string   `json:"key"`
	Title         string   `json:"title"`
	AuthorName    []string `json:"author_name"`
	CoverI        int      `json:"cover_i"`
	Subject       []string `json:"subject"`
	FirstSentence []string `json:"first_sentence"`
}

// Search finds books matching title and optional author
func (p *OpenLibraryProvider) Search(ctx context.Context, title, author string) ([]BookMetadata, error) {
	params := url.Values{}
	params.Set("title", title)
	if author != "" {
		params.Set("author", author)
	}
	params.Set("limit", "5")
	params.Set("fields", "key,title,author_name,cover_i,subject,first_sentence")

	searchURL := fmt.Sprintf("%s/search.json?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var data olSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	if data.NumFound == 0 || len(data.Docs) == 0 {
		return nil, ErrNoMatch
	}

	results := make([]BookMetadata, 0, len(data.Docs))
	for i := range data.Docs {
		results = append(results, p.convertSearchDoc(&data.Docs[i]))
	}
	return results, nil
}

func (p *OpenLibraryProvider) convertSearchDoc(doc *olSearchDoc) BookMetadata {
	meta := BookMetadata{
		Title:       doc.Title,
		Authors:     doc.AuthorName,
		Description: firstOrEmpty(doc.FirstSentence),
		Subjects:    doc.Subject,
		Source:      p.Name(),
	}
	if len(meta.Subjects) > maxSubjects {
		meta.Subjects = meta.Subjects[:maxSubjects]
	}
	if doc.CoverI > 0 {
		meta.CoverURL = fmt.Sprintf("%s/b/id/%d-M.jpg", coverBaseURL, doc.CoverI)
	}
	return meta
}

func firstOrEmpty(s []string) string {
	if len(s) > 0 {
		return s[0]
	}
	return ""
}
