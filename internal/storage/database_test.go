package storage

import (
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/bookhaven/internal/models"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	tmpFile, err := os.CreateTemp("", "bookhaven-test-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	db, err := NewDatabase(tmpFile.Name())
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(tmpFile.Name())
	}

	return db, cleanup
}

func createTestBook(t *testing.T, db *Database, id, uploader string, public bool) *models.Book {
	book := &models.Book{
		ID:         id,
		Title:      "Book " + id,
		Author:     "Author " + id,
		FileURL:    "/uploads/" + id + ".pdf",
		FileFormat: models.FileFormatPDF,
		FileSize:   1024,
		StorageKey: id + ".pdf",
		Language:   models.DefaultLanguage,
		Category:   models.DefaultCategory,
		TotalPages: 120,
		IsPublic:   public,
		UploadedBy: uploader,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, db.CreateBook(book))
	return book
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }

func TestCreateAndGetUser(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	user := &models.User{
		ID:           "test-user-id",
		Username:     "testuser",
		Email:        "test@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now(),
	}

	err := db.CreateUser(user)
	require.NoError(t, err)

	retrieved, err := db.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, retrieved.Username)
	assert.Equal(t, user.Email, retrieved.Email)
	assert.Equal(t, user.PasswordHash, retrieved.PasswordHash)

	retrieved, err = db.GetUserByEmail(user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, retrieved.ID)

	_, err = db.GetUserByEmail("nobody@example.com")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestUserExists(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	exists, err := db.UserExists("testuser", "test@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.CreateUser(&models.User{
		ID: "u1", Username: "testuser", Email: "test@example.com", PasswordHash: "x", CreatedAt: time.Now(),
	}))

	exists, err = db.UserExists("testuser", "other@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.UserExists("other", "test@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	// Unique constraint still guards direct inserts
	err = db.CreateUser(&models.User{ID: "u2", Username: "testuser", Email: "x@example.com", PasswordHash: "x"})
	assert.Error(t, err)
}

func TestBookVisibility(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	createTestBook(t, db, "public", "alice", true)
	createTestBook(t, db, "private", "alice", false)

	book, err := db.GetBookForUser("public", "bob")
	require.NoError(t, err)
	assert.Equal(t, "Book public", book.Title)
	assert.Equal(t, models.FileFormatPDF, book.FileFormat)
	assert.Equal(t, 120, book.TotalPages)
	assert.True(t, book.IsPublic)

	_, err = db.GetBookForUser("private", "bob")
	assert.Equal(t, sql.ErrNoRows, err)

	book, err = db.GetBookForUser("private", "alice")
	require.NoError(t, err)
	assert.False(t, book.IsPublic)

	books, err := db.ListBooksForUser("bob", BookQuery{})
	require.NoError(t, err)
	assert.Len(t, books, 1)

	books, err = db.ListBooksForUser("alice", BookQuery{})
	require.NoError(t, err)
	assert.Len(t, books, 2)
}

func TestListBooksForUser_Query(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	createTestBook(t, db, "b1", "alice", true)
	b2 := &models.Book{
		ID: "b2", Title: "Sapiens", Author: "Harari", FileURL: "/uploads/b2.epub",
		FileFormat: models.FileFormatEPUB, StorageKey: "b2.epub", Language: "en",
		Category: "history", Rating: 4.8, IsPublic: true, UploadedBy: "alice",
		CreatedAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.CreateBook(b2))

	books, err := db.ListBooksForUser("alice", BookQuery{Search: "hara"})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "b2", books[0].ID)

	books, err = db.ListBooksForUser("alice", BookQuery{Category: "history"})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "b2", books[0].ID)

	books, err = db.ListBooksForUser("alice", BookQuery{Category: "all"})
	require.NoError(t, err)
	assert.Len(t, books, 2)

	books, err = db.ListBooksForUser("alice", BookQuery{Sort: "recent"})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "b2", books[0].ID)

	books, err = db.ListBooksForUser("alice", BookQuery{Sort: "rating"})
	require.NoError(t, err)
	assert.Equal(t, "b2", books[0].ID)

	books, err = db.ListBooksForUser("nobody", BookQuery{Search: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
}

func TestDeleteBookRemovesReadingRecords(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	createTestBook(t, db, "b1", "alice", true)
	_, err := db.GetOrCreateProgress("alice", "b1")
	require.NoError(t, err)
	require.NoError(t, db.CreateBookmark(&models.Bookmark{
		ID: "bm1", UserID: "alice", BookID: "b1", Position: "page-3", PageNumber: intPtr(3),
		Color: models.DefaultHighlightColor, CreatedAt: time.Now(),
	}))

	require.NoError(t, db.DeleteBook("b1"))

	_, err = db.GetBook("b1")
	assert.Equal(t, sql.ErrNoRows, err)
	_, err = db.GetProgress("alice", "b1")
	assert.Equal(t, sql.ErrNoRows, err)
	bookmarks, err := db.ListBookmarks("alice", "b1")
	require.NoError(t, err)
	assert.Empty(t, bookmarks)
}

func TestGetOrCreateProgress(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	p, err := db.GetOrCreateProgress("alice", "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentPage)
	assert.Equal(t, 1, p.CurrentChapter)
	assert.Equal(t, 0.0, p.PercentageComplete)
	assert.False(t, p.IsFinished)
	assert.NotEmpty(t, p.ID)

	again, err := db.GetOrCreateProgress("alice", "b1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
}

func TestUpdateProgress_Partial(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	p, err := db.UpdateProgress("alice", "b1", models.ProgressUpdate{
		CurrentPage:        intPtr(30),
		PercentageComplete: floatPtr(25),
	})
	require.NoError(t, err)
	assert.Equal(t, 30, p.CurrentPage)
	assert.Equal(t, 25.0, p.PercentageComplete)
	firstRead := p.LastReadAt

	time.Sleep(10 * time.Millisecond)

	// Only last_position is written; page and percentage survive
	p, err = db.UpdateProgress("alice", "b1", models.ProgressUpdate{LastPosition: strPtr("epubcfi(/6/4)")})
	require.NoError(t, err)
	assert.Equal(t, 30, p.CurrentPage)
	assert.Equal(t, 25.0, p.PercentageComplete)
	assert.Equal(t, "epubcfi(/6/4)", p.LastPosition)
	assert.True(t, p.LastReadAt.After(firstRead))
}

func TestUpdateProgress_LastWriterWins(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.UpdateProgress("alice", "b1", models.ProgressUpdate{CurrentPage: intPtr(52)})
	require.NoError(t, err)
	_, err = db.UpdateProgress("alice", "b1", models.ProgressUpdate{CurrentPage: intPtr(51)})
	require.NoError(t, err)

	p, err := db.GetProgress("alice", "b1")
	require.NoError(t, err)
	assert.Equal(t, 51, p.CurrentPage)
}

func TestUpdateProgress_Concurrent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			_, err := db.UpdateProgress("alice", "b1", models.ProgressUpdate{CurrentPage: intPtr(page)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := db.GetProgress("alice", "b1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.CurrentPage, 1)
	assert.LessOrEqual(t, p.CurrentPage, 10)
}

func TestBookmarks(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i, page := range []int{40, 10, 25} {
		require.NoError(t, db.CreateBookmark(&models.Bookmark{
			ID:         "bm" + string(rune('a'+i)),
			UserID:     "alice",
			BookID:     "b1",
			Position:   "page-" + string(rune('0'+i)),
			PageNumber: intPtr(page),
			Note:       "note",
			Color:      models.DefaultHighlightColor,
			CreatedAt:  time.Now(),
		}))
	}
	require.NoError(t, db.CreateBookmark(&models.Bookmark{
		ID: "other", UserID: "bob", BookID: "b1", Position: "page-1", Color: "#000000", CreatedAt: time.Now(),
	}))

	bookmarks, err := db.ListBookmarks("alice", "b1")
	require.NoError(t, err)
	require.Len(t, bookmarks, 3)
	assert.Equal(t, []string{"bma", "bmb", "bmc"}, []string{bookmarks[0].ID, bookmarks[1].ID, bookmarks[2].ID})
	assert.Equal(t, 40, bookmarks[0].Page())
	assert.Nil(t, bookmarks[0].Chapter)

	// Only the owner can delete
	assert.Equal(t, sql.ErrNoRows, db.DeleteBookmark("bma", "bob"))
	require.NoError(t, db.DeleteBookmark("bma", "alice"))
	assert.Equal(t, sql.ErrNoRows, db.DeleteBookmark("bma", "alice"))

	bookmarks, err = db.ListBookmarks("alice", "b1")
	require.NoError(t, err)
	assert.Len(t, bookmarks, 2)
}

func TestAnnotations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, db.CreateAnnotation(&models.Annotation{
		ID: "a1", UserID: "alice", BookID: "b1", HighlightedText: "Call me Ishmael.",
		PositionStart: "10", PositionEnd: "26", Note: "opening", Color: models.DefaultHighlightColor,
		CreatedAt: time.Now(),
	}))

	annotations, err := db.ListAnnotations("alice", "b1")
	require.NoError(t, err)
	require.Len(t, annotations, 1)
	assert.Equal(t, "Call me Ishmael.", annotations[0].HighlightedText)
	assert.Equal(t, "opening", annotations[0].Note)

	assert.Equal(t, sql.ErrNoRows, db.DeleteAnnotation("a1", "bob"))
	require.NoError(t, db.DeleteAnnotation("a1", "alice"))

	annotations, err = db.ListAnnotations("alice", "b1")
	require.NoError(t, err)
	assert.Empty(t, annotations)
}

func TestPreferences(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.GetPreferences("alice")
	assert.Equal(t, sql.ErrNoRows, err)

	p, err := db.GetOrCreatePreferences("alice")
	require.NoError(t, err)
	assert.Equal(t, "soft-beige", p.Theme)
	assert.Equal(t, "Merriweather", p.FontFamily)
	assert.Equal(t, 16, p.FontSize)
	assert.Equal(t, 1.5, p.LineSpacing)
	assert.Equal(t, "medium", p.MarginSize)
	assert.Equal(t, 100, p.Brightness)
	assert.True(t, p.AutoNightMode)
	assert.True(t, p.PageTurnAnimation)

	theme := "dark"
	p, err = db.UpdatePreferences("alice", models.PreferencesUpdate{Theme: &theme, FontSize: intPtr(20)})
	require.NoError(t, err)
	assert.Equal(t, "dark", p.Theme)
	assert.Equal(t, 20, p.FontSize)
	assert.Equal(t, "Merriweather", p.FontFamily)

	stored, err := db.GetPreferences("alice")
	require.NoError(t, err)
	assert.Equal(t, "dark", stored.Theme)
	assert.Equal(t, 20, stored.FontSize)
	assert.Equal(t, p.ID, stored.ID)
}

func TestGetReadingStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	stats, err := db.GetReadingStats("alice")
	require.NoError(t, err)
	assert.Equal(t, models.ReadingStats{}, *stats)

	finished := true
	_, err = db.UpdateProgress("alice", "b1", models.ProgressUpdate{TotalReadingTime: intPtr(600), IsFinished: &finished})
	require.NoError(t, err)
	_, err = db.UpdateProgress("alice", "b2", models.ProgressUpdate{TotalReadingTime: intPtr(300), PercentageComplete: floatPtr(40)})
	require.NoError(t, err)
	require.NoError(t, db.CreateBookmark(&models.Bookmark{
		ID: "bm1", UserID: "alice", BookID: "b1", Position: "page-1", Color: models.DefaultHighlightColor, CreatedAt: time.Now(),
	}))

	stats, err = db.GetReadingStats("alice")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.BooksStarted)
	assert.Equal(t, 1, stats.BooksFinished)
	assert.Equal(t, 900, stats.TotalReadingTime)
	assert.Equal(t, 1, stats.Bookmarks)
	assert.Equal(t, 0, stats.Annotations)
}
