// Package cache is the client's persistent local state: the auth token,
// display flags, favorites, a mirror of reading progress and the recently
// read list. Every mutation is flushed to disk. The server stays the
// source of truth for everything but favorites and dark mode.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// MaxRecentlyRead is the number of recently read books kept
const MaxRecentlyRead = 10

// RecentlyReadEntry represents a recently read book
type RecentlyReadEntry struct {
	BookID   string    `json:"book_id"`
	Title    string    `json:"title"`
	OpenedAt time.Time `json:"opened_at"`
}

type state struct {
	Token        string              `json:"token,omitempty"`
	Username     string              `json:"username,omitempty"`
	DarkMode     bool                `json:"dark_mode"`
	Favorites    []string            `json:"favorites"`
	Progress     map[string]float64  `json:"progress"`
	RecentlyRead []RecentlyReadEntry `json:"recently_read,omitempty"`
}

// Cache is the client state stored in a JSON file
type Cache struct {
	path string

	mu sync.Mutex
	st state
}

// Load reads the cache file at path. A missing file yields an empty cache.
func Load(path string) (*Cache, error) {
	c := &Cache{
		path: path,
		st:   state{Progress: map[string]float64{}},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &c.st); err != nil {
		return nil, err
	}
	if c.st.Progress == nil {
		c.st.Progress = map[string]float64{}
	}
	return c, nil
}

// Path returns the file the cache is stored in
func (c *Cache) Path() string {
	return c.path
}

// Save persists the cache to disk
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Cache) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&c.st, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so a crash never leaves a truncated file
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func (c *Cache) update(fn func(st *state)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.st)
	return c.saveLocked()
}

// SetAuth stores the token and username after a login
func (c *Cache) SetAuth(token, username string) error {
	return c.update(func(st *state) {
		st.Token = token
		st.Username = username
	})
}

// Token returns the stored auth token
func (c *Cache) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.Token
}

// Username returns the stored username
func (c *Cache) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.Username
}

// IsAuthenticated returns true if a token is stored
func (c *Cache) IsAuthenticated() bool {
	return c.Token() != ""
}

// Invalidate drops the credentials and the progress mirror. It runs at
// logout and whenever the server rejects the token.
func (c *Cache) Invalidate() error {
	return c.update(func(st *state) {
		st.Token = ""
		st.Username = ""
		st.Progress = map[string]float64{}
	})
}

// DarkMode reports the stored dark-mode flag
func (c *Cache) DarkMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.DarkMode
}

// SetDarkMode stores the dark-mode flag
func (c *Cache) SetDarkMode(on bool) error {
	return c.update(func(st *state) { st.DarkMode = on })
}

// Favorites returns the favorite book ids in the order they were added
func (c *Cache) Favorites() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.st.Favorites)
}

// IsFavorite reports whether bookID is a favorite
func (c *Cache) IsFavorite(bookID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.st.Favorites, bookID)
}

// ToggleFavorite adds bookID to the favorites or removes it, returning
// whether it is a favorite afterwards.
func (c *Cache) ToggleFavorite(bookID string) (bool, error) {
	var added bool
	err := c.update(func(st *state) {
		if i := slices.Index(st.Favorites, bookID); i >= 0 {
			st.Favorites = slices.Delete(st.Favorites, i, i+1)
			return
		}
		st.Favorites = append(st.Favorites, bookID)
		added = true
	})
	return added, err
}

// Progress returns the mirrored completion percentage for a book
func (c *Cache) Progress(bookID string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pct, ok := c.st.Progress[bookID]
	return pct, ok
}

// ProgressMap returns a copy of the progress mirror
func (c *Cache) ProgressMap() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.st.Progress))
	for k, v := range c.st.Progress {
		out[k] = v
	}
	return out
}

// SetProgress mirrors a book's completion percentage
func (c *Cache) SetProgress(bookID string, pct float64) error {
	return c.update(func(st *state) { st.Progress[bookID] = pct })
}

// AddRecentlyRead moves a book to the front of the recently read list
func (c *Cache) AddRecentlyRead(bookID, title string) error {
	return c.update(func(st *state) {
		list := make([]RecentlyReadEntry, 0, MaxRecentlyRead)
		list = append(list, RecentlyReadEntry{BookID: bookID, Title: title, OpenedAt: time.Now()})
		for _, entry := range st.RecentlyRead {
			if entry.BookID != bookID {
				list = append(list, entry)
			}
		}
		if len(list) > MaxRecentlyRead {
			list = list[:MaxRecentlyRead]
		}
		st.RecentlyRead = list
	})
}

// RecentlyRead returns the recently read list, most recent first
func (c *Cache) RecentlyRead() []RecentlyReadEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.st.RecentlyRead)
}
