package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/justyntemme/bookhaven/internal/apperror"
	"github.com/justyntemme/bookhaven/internal/cache"
	"github.com/justyntemme/bookhaven/internal/client"
	"github.com/justyntemme/bookhaven/internal/config"
	"github.com/justyntemme/bookhaven/internal/library"
	"github.com/justyntemme/bookhaven/internal/models"
)

// app is what every command needs
type app struct {
	cfg    *config.Client
	cache  *cache.Cache
	client *client.Client
}

func main() {
	serverURL := flag.String("url", "", "Server URL (e.g., http://myserver:8000)")
	flag.StringVar(serverURL, "s", "", "Server URL (shorthand)")
	showHelp := flag.Bool("help", false, "Show help message")
	flag.BoolVar(showHelp, "h", false, "Show help (shorthand)")
	flag.Usage = printUsage
	flag.Parse()

	if *showHelp || flag.NArg() == 0 {
		printUsage()
		os.Exit(0)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadClient(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	c, err := cache.Load(cfg.CachePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading cache: %v\n", err)
		os.Exit(1)
	}

	a := &app{
		cfg:    cfg,
		cache:  c,
		client: client.NewClient(cfg.ServerURL, c.Token(), cfg.Timeout),
	}
	// A rejected token is dropped so the next command asks for a login
	a.client.OnUnauthorized(func() {
		if err := a.cache.Invalidate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not clear cached token: %v\n", err)
		}
	})

	if err := a.run(context.Background(), flag.Arg(0), flag.Args()[1:]); err != nil {
		if apperror.IsAuth(err) {
			fmt.Fprintf(os.Stderr, "Error: %v (run 'bookhaven-cli login' again)\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		if err := a.cache.Invalidate(); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	case "whoami":
		return a.whoami(ctx)
	case "books":
		return a.books(ctx, args)
	case "stats":
		return a.stats(ctx)
	case "upload":
		return a.upload(ctx, args)
	case "delete":
		return a.deleteBook(ctx, args)
	case "favorite":
		return a.favorite(args)
	case "dark-mode":
		return a.darkMode(args)
	case "read":
		return a.read(ctx, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func printUsage() {
	fmt.Println("bookhaven-cli - Command-line client for the BookHaven library")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bookhaven-cli [options] <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  register <email> <username> <password>   Create an account")
	fmt.Println("  login <email> <password>                 Log in and store the token")
	fmt.Println("  logout                                   Forget the stored token")
	fmt.Println("  whoami                                   Show the logged in user")
	fmt.Println("  books [-search q] [-category c] [-sort s] [-favorites]")
	fmt.Println("                                           List the library")
	fmt.Println("  stats                                    Show reading stats")
	fmt.Println("  upload [-title t] [-author a] [-category c] [-private] <files...>")
	fmt.Println("                                           Upload PDF, EPUB or TXT files")
	fmt.Println("  delete <book-id>                         Delete one of your books")
	fmt.Println("  favorite <book-id>                       Toggle a favorite")
	fmt.Println("  dark-mode on|off                         Store the dark mode flag")
	fmt.Println("  read [-width n] <book-id>                Open the reader")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -s, --url <url>        Server URL (default $BOOKHAVEN_SERVER_URL or http://localhost:8000)")
	fmt.Println("  -h, --help             Show this help message")
	fmt.Println()
	fmt.Println("Cache: ~/.config/bookhaven/cache.json")
}

func (a *app) requireAuth() error {
	if !a.cache.IsAuthenticated() {
		return fmt.Errorf("not authenticated. Please run 'bookhaven-cli login' first")
	}
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: register <email> <username> <password>")
	}
	resp, err := a.client.Register(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	if err := a.cache.SetAuth(resp.AccessToken, resp.User.Username); err != nil {
		return err
	}
	fmt.Printf("Welcome, %s!\n", resp.User.Username)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <email> <password>")
	}
	resp, err := a.client.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if err := a.cache.SetAuth(resp.AccessToken, resp.User.Username); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", resp.User.Username)
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	user, err := a.client.GetCurrentUser(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s>\n", user.Username, user.Email)
	return nil
}

func (a *app) books(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("books", flag.ContinueOnError)
	search := fs.String("search", "", "Search title and author")
	category := fs.String("category", library.CategoryAll, "Category ("+strings.Join(library.Categories, ", ")+")")
	sortBy := fs.String("sort", library.SortPopular, "Sort order (popular, recent, rating, title)")
	favoritesOnly := fs.Bool("favorites", false, "Only show favorites")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	books, err := a.client.ListBooks(ctx, client.BookQuery{})
	if err != nil {
		return err
	}
	books = library.Apply(books, library.Query{Search: *search, Category: *category, Sort: *sortBy})

	if *favoritesOnly {
		filtered := books[:0]
		for _, b := range books {
			if a.cache.IsFavorite(b.ID) {
				filtered = append(filtered, b)
			}
		}
		books = filtered
	}

	if len(books) == 0 {
		fmt.Println("No books found")
		return nil
	}

	for _, b := range books {
		star := " "
		if a.cache.IsFavorite(b.ID) {
			star = "*"
		}
		pct, _ := a.cache.Progress(b.ID)
		fmt.Printf("%s %s  %-32s %-20s %-4s %.1f  %s\n",
			star, b.ID, truncate(b.Title, 32), truncate(b.Author, 20), b.FileFormat, b.Rating, library.ContinueLabel(pct))
	}
	fmt.Printf("\n%d book(s) found\n", len(books))
	return nil
}

func (a *app) stats(ctx context.Context) error {
	if err := a.requireAuth(); err != nil {
		return err
	}

	local := library.ComputeStats(a.cache.ProgressMap(), a.cache.Favorites())
	fmt.Printf("Books read:     %d\n", local.BooksRead)
	fmt.Printf("Favorites:      %d\n", local.Favorites)
	fmt.Printf("Reading hours:  %dh\n", local.ReadingHours)

	remote, err := a.client.GetReadingStats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Books started:  %d\n", remote.BooksStarted)
	fmt.Printf("Finished:       %d\n", remote.BooksFinished)
	fmt.Printf("Bookmarks:      %d\n", remote.Bookmarks)
	fmt.Printf("Annotations:    %d\n", remote.Annotations)
	return nil
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	title := fs.String("title", "", "Book title (default from the file)")
	author := fs.String("author", "", "Book author (default from the file)")
	description := fs.String("description", "", "Book description")
	category := fs.String("category", models.DefaultCategory, "Book category")
	language := fs.String("language", "", "Book language")
	private := fs.Bool("private", false, "Only visible to you")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	// Expand globs
	var files []string
	for _, pattern := range fs.Args() {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			matches = []string{pattern}
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files to upload")
	}

	fmt.Printf("Uploading %d file(s) to %s...\n", len(files), a.cfg.ServerURL)

	successCount := 0
	for _, filePath := range files {
		fmt.Printf("  Uploading %s... ", filepath.Base(filePath))

		opts := client.UploadOptions{
			Description: *description,
			Category:    *category,
			Language:    *language,
			Private:     *private,
		}
		// Title and author only make sense for a single file
		if len(files) == 1 {
			opts.Title = *title
			opts.Author = *author
		}

		book, err := a.client.UploadBook(ctx, filePath, opts)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			continue
		}

		fmt.Printf("OK\n")
		fmt.Printf("    ID: %s\n", book.ID)
		fmt.Printf("    Title: %s\n", book.Title)
		fmt.Printf("    Author: %s\n", book.Author)
		successCount++
	}

	fmt.Printf("\nUploaded %d/%d files successfully.\n", successCount, len(files))

	if successCount < len(files) {
		return fmt.Errorf("some uploads failed")
	}
	return nil
}

func (a *app) deleteBook(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: delete <book-id>")
	}
	if err := a.requireAuth(); err != nil {
		return err
	}
	if err := a.client.DeleteBook(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("Book deleted")
	return nil
}

func (a *app) favorite(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: favorite <book-id>")
	}
	added, err := a.cache.ToggleFavorite(args[0])
	if err != nil {
		return err
	}
	if added {
		fmt.Println("Added to favorites")
	} else {
		fmt.Println("Removed from favorites")
	}
	return nil
}

func (a *app) darkMode(args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return errors.New("usage: dark-mode on|off")
	}
	return a.cache.SetDarkMode(args[0] == "on")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
