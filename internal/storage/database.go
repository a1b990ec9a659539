package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/justyntemme/bookhaven/internal/models"
)

// Database handles all database operations
type Database struct {
	db *sql.DB
}

// NewDatabase creates and initializes the SQLite database
func NewDatabase(dbPath string) (*Database, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		description TEXT DEFAULT '',
		cover_url TEXT DEFAULT '',
		file_url TEXT NOT NULL,
		file_format TEXT NOT NULL,
		file_size INTEGER DEFAULT 0,
		storage_key TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'pt',
		category TEXT NOT NULL DEFAULT 'fiction',
		total_pages INTEGER DEFAULT 0,
		total_chapters INTEGER DEFAULT 0,
		rating REAL DEFAULT 0,
		reviews INTEGER DEFAULT 0,
		trending INTEGER DEFAULT 0,
		is_public INTEGER DEFAULT 1,
		uploaded_by TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS reading_progress (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		book_id TEXT NOT NULL,
		current_page INTEGER NOT NULL DEFAULT 1,
		current_chapter INTEGER NOT NULL DEFAULT 1,
		percentage_complete REAL NOT NULL DEFAULT 0,
		last_position TEXT DEFAULT '',
		total_reading_time INTEGER DEFAULT 0,
		is_finished INTEGER DEFAULT 0,
		last_read_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, book_id)
	);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		book_id TEXT NOT NULL,
		position TEXT NOT NULL,
		chapter INTEGER,
		page_number INTEGER,
		note TEXT DEFAULT '',
		color TEXT NOT NULL DEFAULT '#FFEB3B',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS annotations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		book_id TEXT NOT NULL,
		highlighted_text TEXT NOT NULL,
		position_start TEXT DEFAULT '',
		position_end TEXT DEFAULT '',
		note TEXT DEFAULT '',
		color TEXT NOT NULL DEFAULT '#FFEB3B',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS preferences (
		id TEXT PRIMARY KEY,
		user_id TEXT UNIQUE NOT NULL,
		theme TEXT NOT NULL,
		font_family TEXT NOT NULL,
		font_size INTEGER NOT NULL,
		line_spacing REAL NOT NULL,
		margin_size TEXT NOT NULL,
		brightness INTEGER NOT NULL,
		auto_night_mode INTEGER NOT NULL,
		page_turn_animation INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_books_uploaded_by ON books(uploaded_by);
	CREATE INDEX IF NOT EXISTS idx_books_category ON books(category);
	CREATE INDEX IF NOT EXISTS idx_bookmarks_user_book ON bookmarks(user_id, book_id);
	CREATE INDEX IF NOT EXISTS idx_annotations_user_book ON annotations(user_id, book_id);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks that the database is reachable
func (d *Database) Ping() error {
	return d.db.Ping()
}

// CreateUser creates a new user
func (d *Database) CreateUser(user *models.User) error {
	_, err := d.db.Exec(`
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt,
	)
	return err
}

// GetUserByID retrieves a user by ID
func (d *Database) GetUserByID(id string) (*models.User, error) {
	user := &models.User{}
	err := d.db.QueryRow(`
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (d *Database) GetUserByEmail(email string) (*models.User, error) {
	user := &models.User{}
	err := d.db.QueryRow(`
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE email = ?`, email,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UserExists checks if a username or email is already taken
func (d *Database) UserExists(username, email string) (bool, error) {
	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`,
		username, email,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

const bookColumns = `id, title, author, description, cover_url, file_url, file_format, file_size, storage_key,
	language, category, total_pages, total_chapters, rating, reviews, trending, is_public, uploaded_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*models.Book, error) {
	book := &models.Book{}
	err := row.Scan(&book.ID, &book.Title, &book.Author, &book.Description, &book.CoverURL, &book.FileURL,
		&book.FileFormat, &book.FileSize, &book.StorageKey, &book.Language, &book.Category,
		&book.TotalPages, &book.TotalChapters, &book.Rating, &book.Reviews, &book.Trending,
		&book.IsPublic, &book.UploadedBy, &book.CreatedAt)
	if err != nil {
		return nil, err
	}
	return book, nil
}

// CreateBook inserts a new book into the database
func (d *Database) CreateBook(book *models.Book) error {
	_, err := d.db.Exec(`
		INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, book.Description, book.CoverURL, book.FileURL,
		book.FileFormat, book.FileSize, book.StorageKey, book.Language, book.Category,
		book.TotalPages, book.TotalChapters, book.Rating, book.Reviews, book.Trending,
		book.IsPublic, book.UploadedBy, book.CreatedAt,
	)
	return err
}

// GetBook retrieves a book by ID
func (d *Database) GetBook(id string) (*models.Book, error) {
	return scanBook(d.db.QueryRow(`SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
}

// GetBookForUser retrieves a book by ID if it is public or uploaded by the user
func (d *Database) GetBookForUser(id, userID string) (*models.Book, error) {
	return scanBook(d.db.QueryRow(`
		SELECT `+bookColumns+` FROM books
		WHERE id = ? AND (is_public = 1 OR uploaded_by = ?)`, id, userID))
}

// BookQuery narrows and orders a book listing
type BookQuery struct {
	Search   string
	Category string
	Sort     string
}

// ListBooksForUser returns the books visible to a user
func (d *Database) ListBooksForUser(userID string, q BookQuery) ([]models.Book, error) {
	validSort := map[string]string{
		"popular": "rating DESC, reviews DESC",
		"rating":  "rating DESC",
		"recent":  "created_at DESC",
		"title":   "title ASC",
	}

	sortColumn, ok := validSort[q.Sort]
	if !ok {
		sortColumn = validSort["recent"]
	}

	query := `SELECT ` + bookColumns + ` FROM books WHERE (is_public = 1 OR uploaded_by = ?)`
	args := []interface{}{userID}

	if q.Search != "" {
		searchTerm := "%" + q.Search + "%"
		query += ` AND (title LIKE ? OR author LIKE ?)`
		args = append(args, searchTerm, searchTerm)
	}
	if q.Category != "" && q.Category != "all" {
		query += ` AND category = ?`
		args = append(args, q.Category)
	}
	query += ` ORDER BY ` + sortColumn

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []models.Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *book)
	}

	return books, rows.Err()
}

// DeleteBook removes a book and every reading record attached to it
func (d *Database) DeleteBook(id string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}

	for _, stmt := range []string{
		"DELETE FROM reading_progress WHERE book_id = ?",
		"DELETE FROM bookmarks WHERE book_id = ?",
		"DELETE FROM annotations WHERE book_id = ?",
		"DELETE FROM books WHERE id = ?",
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

const progressColumns = `id, user_id, book_id, current_page, current_chapter, percentage_complete,
	last_position, total_reading_time, is_finished, last_read_at`

func scanProgress(row rowScanner) (*models.Progress, error) {
	p := &models.Progress{}
	err := row.Scan(&p.ID, &p.UserID, &p.BookID, &p.CurrentPage, &p.CurrentChapter, &p.PercentageComplete,
		&p.LastPosition, &p.TotalReadingTime, &p.IsFinished, &p.LastReadAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProgress retrieves the progress record for a user and book
func (d *Database) GetProgress(userID, bookID string) (*models.Progress, error) {
	return scanProgress(d.db.QueryRow(`
		SELECT `+progressColumns+` FROM reading_progress
		WHERE user_id = ? AND book_id = ?`, userID, bookID))
}

// GetOrCreateProgress returns the progress record, creating a fresh one
// on first view
func (d *Database) GetOrCreateProgress(userID, bookID string) (*models.Progress, error) {
	p, err := d.GetProgress(userID, bookID)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	p = models.NewProgress(uuid.New().String(), userID, bookID)
	_, err = d.db.Exec(`
		INSERT INTO reading_progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, book_id) DO NOTHING`,
		p.ID, p.UserID, p.BookID, p.CurrentPage, p.CurrentChapter, p.PercentageComplete,
		p.LastPosition, p.TotalReadingTime, p.IsFinished, p.LastReadAt,
	)
	if err != nil {
		return nil, err
	}

	// A concurrent first view may have won the insert
	return d.GetProgress(userID, bookID)
}

// UpdateProgress writes only the fields set in the update and always
// refreshes last_read_at. The record is created when missing.
func (d *Database) UpdateProgress(userID, bookID string, update models.ProgressUpdate) (*models.Progress, error) {
	p, err := d.GetOrCreateProgress(userID, bookID)
	if err != nil {
		return nil, err
	}

	sets := []string{"last_read_at = ?"}
	args := []interface{}{time.Now()}
	if update.CurrentPage != nil {
		sets = append(sets, "current_page = ?")
		args = append(args, *update.CurrentPage)
	}
	if update.CurrentChapter != nil {
		sets = append(sets, "current_chapter = ?")
		args = append(args, *update.CurrentChapter)
	}
	if update.PercentageComplete != nil {
		sets = append(sets, "percentage_complete = ?")
		args = append(args, *update.PercentageComplete)
	}
	if update.LastPosition != nil {
		sets = append(sets, "last_position = ?")
		args = append(args, *update.LastPosition)
	}
	if update.TotalReadingTime != nil {
		sets = append(sets, "total_reading_time = ?")
		args = append(args, *update.TotalReadingTime)
	}
	if update.IsFinished != nil {
		sets = append(sets, "is_finished = ?")
		args = append(args, *update.IsFinished)
	}
	args = append(args, p.ID)

	if _, err := d.db.Exec(`UPDATE reading_progress SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, err
	}

	return d.GetProgress(userID, bookID)
}

// CreateBookmark inserts a bookmark
func (d *Database) CreateBookmark(b *models.Bookmark) error {
	_, err := d.db.Exec(`
		INSERT INTO bookmarks (id, user_id, book_id, position, chapter, page_number, note, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.BookID, b.Position, b.Chapter, b.PageNumber, b.Note, b.Color, b.CreatedAt,
	)
	return err
}

func scanBookmark(row rowScanner) (*models.Bookmark, error) {
	b := &models.Bookmark{}
	var chapter, page sql.NullInt64
	err := row.Scan(&b.ID, &b.UserID, &b.BookID, &b.Position, &chapter, &page, &b.Note, &b.Color, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if chapter.Valid {
		v := int(chapter.Int64)
		b.Chapter = &v
	}
	if page.Valid {
		v := int(page.Int64)
		b.PageNumber = &v
	}
	return b, nil
}

// ListBookmarks returns a user's bookmarks for a book in insertion order
func (d *Database) ListBookmarks(userID, bookID string) ([]models.Bookmark, error) {
	rows, err := d.db.Query(`
		SELECT id, user_id, book_id, position, chapter, page_number, note, color, created_at
		FROM bookmarks WHERE user_id = ? AND book_id = ?
		ORDER BY rowid`, userID, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookmarks := []models.Bookmark{}
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, *b)
	}
	return bookmarks, rows.Err()
}

// DeleteBookmark removes a bookmark owned by the user. It returns
// sql.ErrNoRows when there is no such bookmark.
func (d *Database) DeleteBookmark(id, userID string) error {
	return d.deleteOwned("bookmarks", id, userID)
}

// CreateAnnotation inserts an annotation
func (d *Database) CreateAnnotation(a *models.Annotation) error {
	_, err := d.db.Exec(`
		INSERT INTO annotations (id, user_id, book_id, highlighted_text, position_start, position_end, note, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.BookID, a.HighlightedText, a.PositionStart, a.PositionEnd, a.Note, a.Color, a.CreatedAt,
	)
	return err
}

// ListAnnotations returns a user's annotations for a book in insertion order
func (d *Database) ListAnnotations(userID, bookID string) ([]models.Annotation, error) {
	rows, err := d.db.Query(`
		SELECT id, user_id, book_id, highlighted_text, position_start, position_end, note, color, created_at
		FROM annotations WHERE user_id = ? AND book_id = ?
		ORDER BY rowid`, userID, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	annotations := []models.Annotation{}
	for rows.Next() {
		var a models.Annotation
		if err := rows.Scan(&a.ID, &a.UserID, &a.BookID, &a.HighlightedText, &a.PositionStart,
			&a.PositionEnd, &a.Note, &a.Color, &a.CreatedAt); err != nil {
			return nil, err
		}
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}

// DeleteAnnotation removes an annotation owned by the user
func (d *Database) DeleteAnnotation(id, userID string) error {
	return d.deleteOwned("annotations", id, userID)
}

func (d *Database) deleteOwned(table, id, userID string) error {
	result, err := d.db.Exec("DELETE FROM "+table+" WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const preferenceColumns = `id, user_id, theme, font_family, font_size, line_spacing, margin_size,
	brightness, auto_night_mode, page_turn_animation, created_at`

// GetPreferences retrieves a user's preferences
func (d *Database) GetPreferences(userID string) (*models.Preferences, error) {
	p := &models.Preferences{}
	err := d.db.QueryRow(`SELECT `+preferenceColumns+` FROM preferences WHERE user_id = ?`, userID).Scan(
		&p.ID, &p.UserID, &p.Theme, &p.FontFamily, &p.FontSize, &p.LineSpacing, &p.MarginSize,
		&p.Brightness, &p.AutoNightMode, &p.PageTurnAnimation, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SavePreferences inserts or replaces a user's preferences
func (d *Database) SavePreferences(p *models.Preferences) error {
	_, err := d.db.Exec(`
		INSERT INTO preferences (`+preferenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			theme = excluded.theme,
			font_family = excluded.font_family,
			font_size = excluded.font_size,
			line_spacing = excluded.line_spacing,
			margin_size = excluded.margin_size,
			brightness = excluded.brightness,
			auto_night_mode = excluded.auto_night_mode,
			page_turn_animation = excluded.page_turn_animation`,
		p.ID, p.UserID, p.Theme, p.FontFamily, p.FontSize, p.LineSpacing, p.MarginSize,
		p.Brightness, p.AutoNightMode, p.PageTurnAnimation, p.CreatedAt,
	)
	return err
}

// GetOrCreatePreferences returns a user's preferences, creating the
// defaults when none exist
func (d *Database) GetOrCreatePreferences(userID string) (*models.Preferences, error) {
	p, err := d.GetPreferences(userID)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	p = models.DefaultPreferences(uuid.New().String(), userID)
	if _, err := d.db.Exec(`
		INSERT INTO preferences (`+preferenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		p.ID, p.UserID, p.Theme, p.FontFamily, p.FontSize, p.LineSpacing, p.MarginSize,
		p.Brightness, p.AutoNightMode, p.PageTurnAnimation, p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return d.GetPreferences(userID)
}

// UpdatePreferences applies a partial update to a user's preferences
func (d *Database) UpdatePreferences(userID string, update models.PreferencesUpdate) (*models.Preferences, error) {
	p, err := d.GetOrCreatePreferences(userID)
	if err != nil {
		return nil, err
	}
	update.Apply(p)
	if err := d.SavePreferences(p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetReadingStats summarizes a user's progress, bookmarks and annotations
func (d *Database) GetReadingStats(userID string) (*models.ReadingStats, error) {
	stats := &models.ReadingStats{}
	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_finished = 1 OR percentage_complete >= 100 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(total_reading_time), 0)
		FROM reading_progress WHERE user_id = ?`, userID,
	).Scan(&stats.BooksStarted, &stats.BooksFinished, &stats.TotalReadingTime)
	if err != nil {
		return nil, err
	}

	if err := d.db.QueryRow(`SELECT COUNT(*) FROM bookmarks WHERE user_id = ?`, userID).Scan(&stats.Bookmarks); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM annotations WHERE user_id = ?`, userID).Scan(&stats.Annotations); err != nil {
		return nil, err
	}

	return stats, nil
}
