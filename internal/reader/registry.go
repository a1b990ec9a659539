package reader

import (
	"cmp"
	"slices"

	"github.com/justyntemme/bookhaven/internal/models"
)

// Registry is the ordered bookmark set of one book. The server is the
// only source of entries: the whole set is replaced from each listing.
type Registry struct {
	items []models.Bookmark
	index map[string]int
}

// NewRegistry builds a registry from a server listing
func NewRegistry(list []models.Bookmark) *Registry {
	r := &Registry{}
	r.Replace(list)
	return r
}

// Replace swaps in a new listing, keeping its order. A repeated id keeps
// its first entry.
func (r *Registry) Replace(list []models.Bookmark) {
	r.items = make([]models.Bookmark, 0, len(list))
	r.index = make(map[string]int, len(list))
	for _, b := range list {
		if _, dup := r.index[b.ID]; dup {
			continue
		}
		r.index[b.ID] = len(r.items)
		r.items = append(r.items, b)
	}
}

func (r *Registry) Len() int { return len(r.items) }

// All returns the bookmarks in insertion order
func (r *Registry) All() []models.Bookmark {
	return slices.Clone(r.items)
}

// Get looks up a bookmark by id
func (r *Registry) Get(id string) (models.Bookmark, bool) {
	i, ok := r.index[id]
	if !ok {
		return models.Bookmark{}, false
	}
	return r.items[i], true
}

// ByPage returns the bookmarks sorted by page number. Bookmarks on the
// same page keep their insertion order; those without a page come last.
func (r *Registry) ByPage() []models.Bookmark {
	out := slices.Clone(r.items)
	slices.SortStableFunc(out, func(a, b models.Bookmark) int {
		switch {
		case a.PageNumber == nil && b.PageNumber == nil:
			return 0
		case a.PageNumber == nil:
			return 1
		case b.PageNumber == nil:
			return -1
		}
		return cmp.Compare(*a.PageNumber, *b.PageNumber)
	})
	return out
}
