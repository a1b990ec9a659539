package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/justyntemme/bookhaven/internal/models"
	"github.com/justyntemme/bookhaven/internal/reader"
)

// textSource yields a book's extracted pages
type textSource interface {
	ExtractText(ctx context.Context, id string) (*models.ExtractedText, error)
}

func (a *app) read(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	width := fs.Int("width", 80, "Line width")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: read [-width n] <book-id>")
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	notify := reader.NotifierFunc(func(msg string) {
		fmt.Fprintf(os.Stderr, "! %s\n", msg)
	})
	sess := reader.NewSession(a.client, a.cache, notify)
	if err := sess.Open(ctx, fs.Arg(0)); err != nil {
		return err
	}
	defer sess.Wait()

	return runReader(ctx, sess, a.client, os.Stdin, os.Stdout, *width)
}

// runReader is the reading loop: it shows the current page and applies
// one command per input line until "q" or end of input.
func runReader(ctx context.Context, sess *reader.Session, texts textSource, in io.Reader, out io.Writer, width int) error {
	book := sess.Book()
	if book == nil {
		return reader.ErrNotReady
	}

	r, err := reader.RendererFor(book.FileFormat)
	if err != nil {
		return err
	}

	doc, err := texts.ExtractText(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("load text: %w", err)
	}
	// The extracted page count is better than any estimate
	if n := len(doc.Pages); n > 0 && n != sess.TotalPages() {
		sess.SetTotalPages(n)
	}

	show := func() {
		page := sess.CurrentPage()
		fmt.Fprintf(out, "\n%s | page %d/%d | %d%%\n\n", book.Title, page, sess.TotalPages(), sess.Percentage())
		text, err := r.Render(doc, page)
		if err != nil {
			fmt.Fprintf(out, "(%v)\n", err)
			return
		}
		fmt.Fprintln(out, reader.Layout(text, width, sess.Preferences()))
	}

	moved := func(ok bool, err error) {
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		if !ok {
			fmt.Fprintln(out, "No such page")
			return
		}
		if r.Reflowable() {
			if err := sess.Relocate(ctx, r.Location(sess.CurrentPage())); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
		}
		show()
	}

	show()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "":
			continue
		case "n", "next":
			moved(sess.Next(ctx))
		case "p", "prev":
			moved(sess.Prev(ctx))
		case "g", "goto":
			page, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Fprintln(out, "Usage: g <page>")
				continue
			}
			moved(sess.Navigate(ctx, page))
		case "b", "bookmark":
			bm, err := sess.AddBookmark(ctx, arg)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Bookmarked page %d: %s\n", bm.Page(), bm.Note)
		case "bl", "bookmarks":
			marks := sess.BookmarksByPage()
			if len(marks) == 0 {
				fmt.Fprintln(out, "No bookmarks")
			}
			for _, bm := range marks {
				fmt.Fprintf(out, "  %s  page %-5d %s\n", bm.ID, bm.Page(), bm.Note)
			}
		case "j", "jump":
			moved(sess.JumpToBookmark(ctx, arg))
		case "set":
			key, value, ok := strings.Cut(arg, " ")
			if !ok {
				fmt.Fprintln(out, "Usage: set <preference> <value>")
				continue
			}
			if err := sess.UpdatePreference(ctx, key, parsePrefValue(strings.TrimSpace(value))); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			show()
		case "prefs":
			p := sess.Preferences()
			fmt.Fprintf(out, "  theme=%s font_family=%q font_size=%d line_spacing=%.1f\n", p.Theme, p.FontFamily, p.FontSize, p.LineSpacing)
			fmt.Fprintf(out, "  margin_size=%s brightness=%d auto_night_mode=%t page_turn_animation=%t\n", p.MarginSize, p.Brightness, p.AutoNightMode, p.PageTurnAnimation)
		case "h", "help":
			printReaderHelp(out)
		case "q", "quit":
			return nil
		default:
			fmt.Fprintf(out, "Unknown command %q (h for help)\n", cmd)
		}
	}
	return scanner.Err()
}

func printReaderHelp(out io.Writer) {
	fmt.Fprintln(out, "  n, next              Next page")
	fmt.Fprintln(out, "  p, prev              Previous page")
	fmt.Fprintln(out, "  g, goto <page>       Go to a page")
	fmt.Fprintln(out, "  b, bookmark [note]   Bookmark the current page")
	fmt.Fprintln(out, "  bl, bookmarks        List bookmarks by page")
	fmt.Fprintln(out, "  j, jump <id>         Go to a bookmark")
	fmt.Fprintln(out, "  set <key> <value>    Change a preference (e.g. set font_size 18)")
	fmt.Fprintln(out, "  prefs                Show preferences")
	fmt.Fprintln(out, "  q, quit              Leave the reader")
}

// parsePrefValue turns a typed-in value into the bool, number or string
// the preference store expects
func parsePrefValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil && !isNumeric(s) {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
