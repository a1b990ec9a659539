package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/bookhaven/internal/models"
)

func intPtr(n int) *int { return &n }

func bookmarkIDs(list []models.Bookmark) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.ID
	}
	return out
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry([]models.Bookmark{
		{ID: "a", PageNumber: intPtr(5)},
		{ID: "b", PageNumber: intPtr(2)},
		{ID: "a", PageNumber: intPtr(9)},
	})

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a", "b"}, bookmarkIDs(r.All()))

	a, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 5, a.Page())

	r.Replace([]models.Bookmark{{ID: "c"}})
	assert.Equal(t, []string{"c"}, bookmarkIDs(r.All()))
	_, ok = r.Get("a")
	assert.False(t, ok)
}

func TestRegistry_ByPage(t *testing.T) {
	r := NewRegistry([]models.Bookmark{
		{ID: "no-page"},
		{ID: "p9", PageNumber: intPtr(9)},
		{ID: "p2-first", PageNumber: intPtr(2)},
		{ID: "p2-second", PageNumber: intPtr(2)},
	})

	assert.Equal(t, []string{"p2-first", "p2-second", "p9", "no-page"}, bookmarkIDs(r.ByPage()))
	// Insertion order is untouched
	assert.Equal(t, []string{"no-page", "p9", "p2-first", "p2-second"}, bookmarkIDs(r.All()))
}

func TestRegistry_AllReturnsCopy(t *testing.T) {
	r := NewRegistry([]models.Bookmark{{ID: "a", Note: "original"}})
	list := r.All()
	list[0].Note = "changed"

	a, _ := r.Get("a")
	assert.Equal(t, "original", a.Note)
}
