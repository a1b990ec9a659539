// Package reader keeps one open book's reading position, bookmarks and the
// user's display preferences in step with the server.
//
// A Session is optimistic: navigation moves the local pointer at once and
// persists in the background, last writer wins. Bookmarks are only ever
// taken from server listings. Preference changes apply locally before the
// server answers and are not rolled back when it fails.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/justyntemme/bookhaven/internal/apperror"
	"github.com/justyntemme/bookhaven/internal/models"
)

// ErrNotReady is returned by operations on a session that is not Ready
var ErrNotReady = errors.New("reading session is not ready")

// State is the lifecycle state of a Session
type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Navigating
	Bookmarking
	PreferenceSaving
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Navigating:
		return "navigating"
	case Bookmarking:
		return "bookmarking"
	case PreferenceSaving:
		return "preference-saving"
	case Failed:
		return "failed"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Remote is the part of the API a session reads from and writes to.
// *client.Client implements it.
type Remote interface {
	GetBook(ctx context.Context, id string) (*models.Book, error)
	GetProgress(ctx context.Context, bookID string) (*models.Progress, error)
	UpdateProgress(ctx context.Context, bookID string, update models.ProgressUpdate) (*models.Progress, error)
	ListBookmarks(ctx context.Context, bookID string) ([]models.Bookmark, error)
	CreateBookmark(ctx context.Context, req models.BookmarkCreate) (*models.Bookmark, error)
	GetPreferences(ctx context.Context) (*models.Preferences, error)
	UpdatePreferences(ctx context.Context, update models.PreferencesUpdate) (*models.Preferences, error)
}

// LocalCache is the client-side mirror a session keeps up to date.
// *cache.Cache implements it.
type LocalCache interface {
	SetProgress(bookID string, pct float64) error
	AddRecentlyRead(bookID, title string) error
}

// Notifier shows the user one transient message per failure
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Session binds one open book to its progress, bookmarks and the user's
// preferences.
type Session struct {
	remote Remote
	local  LocalCache
	notify Notifier
	logger *slog.Logger

	// op serializes mutating operations
	op sync.Mutex

	mu        sync.Mutex
	state     State
	book      *models.Book
	tracker   *Tracker
	bookmarks *Registry
	prefs     *PreferenceStore

	writes sync.WaitGroup
}

// NewSession creates an unloaded session. local and notify may be nil.
func NewSession(remote Remote, local LocalCache, notify Notifier) *Session {
	return &Session{
		remote: remote,
		local:  local,
		notify: notify,
		logger: slog.Default(),
		state:  Unloaded,
	}
}

// SetLogger replaces the logger used for background failures
func (s *Session) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Open loads a book, its progress, its bookmarks and the preferences
// concurrently. If any fetch fails the session ends up Failed and a load
// error is returned; nothing of the partial result is kept. Opening again
// discards the previous book.
func (s *Session) Open(ctx context.Context, bookID string) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.state = Loading
	s.book, s.tracker, s.bookmarks, s.prefs = nil, nil, nil, nil
	s.mu.Unlock()

	var (
		book      *models.Book
		progress  *models.Progress
		bookmarks []models.Bookmark
		prefs     *models.Preferences
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		book, err = s.remote.GetBook(gctx, bookID)
		return wrapFetch("book", err)
	})
	g.Go(func() (err error) {
		progress, err = s.remote.GetProgress(gctx, bookID)
		return wrapFetch("progress", err)
	})
	g.Go(func() (err error) {
		bookmarks, err = s.remote.ListBookmarks(gctx, bookID)
		return wrapFetch("bookmarks", err)
	})
	g.Go(func() (err error) {
		prefs, err = s.remote.GetPreferences(gctx)
		return wrapFetch("preferences", err)
	})

	if err := g.Wait(); err != nil {
		s.mu.Lock()
		s.state = Failed
		s.mu.Unlock()
		return apperror.Load("book "+bookID, err)
	}
	if book == nil || prefs == nil {
		s.mu.Lock()
		s.state = Failed
		s.mu.Unlock()
		return apperror.Load("book "+bookID, errors.New("empty response"))
	}
	if progress == nil {
		progress = models.NewProgress("", "", bookID)
	}

	tracker := NewTracker(progress.CurrentPage, totalPages(book), progress.PercentageComplete, progress.LastPosition)

	s.mu.Lock()
	s.book = book
	s.tracker = tracker
	s.bookmarks = NewRegistry(bookmarks)
	s.prefs = NewPreferenceStore(*prefs)
	s.state = Ready
	s.mu.Unlock()

	if s.local != nil {
		if err := s.local.AddRecentlyRead(book.ID, book.Title); err != nil {
			s.logger.Warn("record recently read", "book_id", book.ID, "error", err)
		}
		if err := s.local.SetProgress(book.ID, progress.PercentageComplete); err != nil {
			s.logger.Warn("mirror progress", "book_id", book.ID, "error", err)
		}
	}
	return nil
}

func wrapFetch(what string, err error) error {
	if err != nil {
		return fmt.Errorf("fetch %s: %w", what, err)
	}
	return nil
}

// totalPages picks the page count used for percentages. EPUB chapters are
// read as pages.
func totalPages(book *models.Book) int {
	if book.TotalPages > 0 {
		return book.TotalPages
	}
	if book.FileFormat == models.FileFormatEPUB && book.TotalChapters > 0 {
		return book.TotalChapters
	}
	return DefaultTotalPages
}

// begin moves a Ready session into a transient state
func (s *Session) begin(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return fmt.Errorf("%w (state %s)", ErrNotReady, s.state)
	}
	s.state = state
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.state = Ready
	s.mu.Unlock()
}

// Navigate moves to page. Out-of-range pages are ignored and Navigate
// returns false. The move is visible at once; the new position is
// persisted in the background and a failed write is only logged.
func (s *Session) Navigate(ctx context.Context, page int) (bool, error) {
	s.op.Lock()
	defer s.op.Unlock()

	if err := s.begin(Navigating); err != nil {
		return false, err
	}
	defer s.end()

	s.mu.Lock()
	if !s.tracker.MoveTo(page) {
		s.mu.Unlock()
		return false, nil
	}
	bookID := s.book.ID
	pct := s.tracker.Ratio()
	s.mu.Unlock()

	s.persist(ctx, bookID, models.ProgressUpdate{CurrentPage: &page, PercentageComplete: &pct})

	if s.local != nil {
		if err := s.local.SetProgress(bookID, pct); err != nil {
			s.logger.Warn("mirror progress", "book_id", bookID, "error", err)
		}
	}
	return true, nil
}

// Next moves one page forward
func (s *Session) Next(ctx context.Context) (bool, error) {
	return s.Navigate(ctx, s.CurrentPage()+1)
}

// Prev moves one page back
func (s *Session) Prev(ctx context.Context) (bool, error) {
	return s.Navigate(ctx, s.CurrentPage()-1)
}

// Relocate records a location token for reflowable formats and persists
// it in the background. The percentage keeps its last known value.
func (s *Session) Relocate(ctx context.Context, token string) error {
	s.op.Lock()
	defer s.op.Unlock()

	if err := s.begin(Navigating); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	s.tracker.Relocate(token)
	bookID := s.book.ID
	s.mu.Unlock()

	s.persist(ctx, bookID, models.ProgressUpdate{LastPosition: &token})
	return nil
}

// persist writes a progress update without waiting for it. Writes are not
// ordered; the server keeps whichever arrives last.
func (s *Session) persist(ctx context.Context, bookID string, update models.ProgressUpdate) {
	ctx = context.WithoutCancel(ctx)
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		if _, err := s.remote.UpdateProgress(ctx, bookID, update); err != nil {
			s.logger.Warn("save reading progress", "book_id", bookID, "error", err)
		}
	}()
}

// Wait blocks until every background progress write has finished
func (s *Session) Wait() {
	s.writes.Wait()
}

// AddBookmark bookmarks the current page and reloads the bookmark list
// from the server. An empty note is replaced by a default one.
func (s *Session) AddBookmark(ctx context.Context, note string) (*models.Bookmark, error) {
	s.op.Lock()
	defer s.op.Unlock()

	if err := s.begin(Bookmarking); err != nil {
		return nil, err
	}
	defer s.end()

	s.mu.Lock()
	bookID := s.book.ID
	page := s.tracker.CurrentPage()
	s.mu.Unlock()

	if strings.TrimSpace(note) == "" {
		note = fmt.Sprintf("Bookmark on page %d", page)
	}

	created, err := s.remote.CreateBookmark(ctx, models.BookmarkCreate{
		BookID:     bookID,
		Position:   fmt.Sprintf("page-%d", page),
		PageNumber: &page,
		Note:       note,
	})
	if err != nil {
		s.fail("Failed to add bookmark")
		return nil, apperror.Mutation("add bookmark", err)
	}

	list, err := s.remote.ListBookmarks(ctx, bookID)
	if err != nil {
		s.fail("Failed to add bookmark")
		return nil, apperror.Mutation("reload bookmarks", err)
	}

	s.mu.Lock()
	s.bookmarks.Replace(list)
	s.mu.Unlock()
	return created, nil
}

// JumpToBookmark navigates to a bookmark's page
func (s *Session) JumpToBookmark(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if s.bookmarks == nil {
		s.mu.Unlock()
		return false, ErrNotReady
	}
	b, ok := s.bookmarks.Get(id)
	s.mu.Unlock()
	if !ok {
		return false, apperror.NotFound("bookmark", id)
	}

	page := b.Page()
	if page == 0 {
		page = positionPage(b.Position)
	}
	return s.Navigate(ctx, page)
}

// positionPage reads the page out of a "page-<n>" position
func positionPage(position string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(position, "page-"))
	if err != nil {
		return 0
	}
	return n
}

// UpdatePreference changes one preference field. Invalid values are
// rejected before any request. The local value changes as soon as the
// request is sent; when the server fails the user is notified and the
// local value is kept.
func (s *Session) UpdatePreference(ctx context.Context, key string, value any) error {
	s.op.Lock()
	defer s.op.Unlock()

	if err := s.begin(PreferenceSaving); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	update, err := s.prefs.Set(key, value)
	s.mu.Unlock()
	if err != nil {
		s.fail(err.Error())
		return err
	}

	saved, err := s.remote.UpdatePreferences(ctx, update)
	if err != nil {
		s.fail("Failed to save preferences")
		return apperror.Mutation("update "+key, err)
	}

	if saved != nil {
		s.mu.Lock()
		s.prefs.Replace(*saved)
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) fail(message string) {
	if s.notify != nil {
		s.notify.Notify(message)
	}
}

// State returns the session's lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Book returns the open book, or nil
func (s *Session) Book() *models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.book == nil {
		return nil
	}
	b := *s.book
	return &b
}

// CurrentPage returns the local page pointer, 0 when no book is open
func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		return 0
	}
	return s.tracker.CurrentPage()
}

// TotalPages returns the page count percentages are computed against
func (s *Session) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		return 0
	}
	return s.tracker.TotalPages()
}

// SetTotalPages refines the page count for later navigations, for
// instance once the text has been extracted. The current page is clamped
// to the new count; stored percentages are not recomputed.
func (s *Session) SetTotalPages(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker != nil {
		s.tracker.SetTotalPages(n)
	}
}

// Percentage returns the rounded completion percentage
func (s *Session) Percentage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		return 0
	}
	return s.tracker.Percentage()
}

// Location returns the last location token
func (s *Session) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		return ""
	}
	return s.tracker.Location()
}

// Bookmarks returns the bookmarks in insertion order
func (s *Session) Bookmarks() []models.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bookmarks == nil {
		return nil
	}
	return s.bookmarks.All()
}

// BookmarksByPage returns the bookmarks sorted by page
func (s *Session) BookmarksByPage() []models.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bookmarks == nil {
		return nil
	}
	return s.bookmarks.ByPage()
}

// Preferences returns a copy of the local preferences
func (s *Session) Preferences() models.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs == nil {
		return models.Preferences{}
	}
	return s.prefs.Snapshot()
}
