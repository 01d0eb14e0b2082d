// Package cli is the interactive terminal front end of the store.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bookstore/quantumstore/internal/books"
	"github.com/bookstore/quantumstore/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Catalog is what the menu drives.
type Catalog interface {
	AddBook(ctx context.Context, req store.AddRequest) (books.Book, error)
	Buy(ctx context.Context, req store.BuyRequest) (*store.Receipt, error)
	List(ctx context.Context) ([]books.Book, error)
	Showcase(ctx context.Context) ([]*books.ShowcaseBook, error)
}

var errQuit = errors.New("quit")

const menuText = `
Quantum Book Store Menu:
1. Add PaperBook
2. Add EBook
3. Add AudioBook
4. Add ShowcaseBook
5. Buy Book
6. List Books
7. Showcase Books
8. Exit
`

// Menu reads choices from in and writes everything the user sees to out.
type Menu struct {
	catalog Catalog
	in      *bufio.Scanner
	out     io.Writer
	log     *zap.Logger
}

// NewMenu returns a menu driving catalog.
func NewMenu(catalog Catalog, in io.Reader, out io.Writer, log *zap.Logger) *Menu {
	return &Menu{
		catalog: catalog,
		in:      bufio.NewScanner(in),
		out:     out,
		log:     log,
	}
}

// Run loops until the user exits, input ends or ctx is cancelled.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(m.out, menuText)
		choice, err := m.prompt("Enter your choice: ")
		if errors.Is(err, errQuit) {
			m.bye()
			return nil
		}
		if err != nil {
			return err
		}

		err = m.dispatch(ctx, choice)
		switch {
		case errors.Is(err, errQuit):
			m.bye()
			return nil
		case err != nil:
			fmt.Fprintf(m.out, "Error: %v\n", err)
			if errors.Is(err, books.ErrNotForSale) {
				fmt.Fprintln(m.out, "Showcase books are on display only. Choose 7 to view them.")
			}
			m.log.Debug("Menu action failed", zap.String("choice", choice), zap.Error(err))
		}
	}
}

func (m *Menu) dispatch(ctx context.Context, choice string) error {
	switch choice {
	case "1":
		return m.addBook(ctx, books.KindPaper)
	case "2":
		return m.addBook(ctx, books.KindEBook)
	case "3":
		return m.addBook(ctx, books.KindAudio)
	case "4":
		return m.addBook(ctx, books.KindShowcase)
	case "5":
		return m.buyBook(ctx)
	case "6":
		return m.listBooks(ctx)
	case "7":
		return m.showcase(ctx)
	case "8":
		return errQuit
	default:
		fmt.Fprintln(m.out, "Invalid choice. Try again.")
		return nil
	}
}

func (m *Menu) bye() {
	fmt.Fprintln(m.out, "Exiting Quantum Book Store. Bye!")
}

func (m *Menu) addBook(ctx context.Context, kind books.Kind) error {
	var (
		req = store.AddRequest{Kind: kind}
		err error
	)

	if req.ISBN, err = m.prompt("ISBN (press Enter to generate): "); err != nil {
		return err
	}
	if req.Title, err = m.prompt("Title: "); err != nil {
		return err
	}
	if req.Author, err = m.prompt("Author: "); err != nil {
		return err
	}
	if req.Year, err = m.promptInt("Year: "); err != nil {
		return err
	}

	if kind != books.KindShowcase {
		if req.Price, err = m.promptPrice("Price: "); err != nil {
			return err
		}
		if req.Stock, err = m.promptInt32("Stock: "); err != nil {
			return err
		}
	}

	switch kind {
	case books.KindEBook:
		if req.FileType, err = m.prompt("Filetype (pdf, epub, etc.): "); err != nil {
			return err
		}
		if req.FileSizeKB, err = m.promptOptionalInt64("File size in KB (press Enter to skip): "); err != nil {
			return err
		}
	case books.KindAudio:
		if req.Format, err = m.prompt("Format (mp3, wav, etc.): "); err != nil {
			return err
		}
		if req.Narrator, err = m.prompt("Narrator (press Enter to skip): "); err != nil {
			return err
		}
		if req.DurationMinutes, err = m.promptOptionalInt32("Duration in minutes (press Enter to skip): "); err != nil {
			return err
		}
	}

	book, err := m.catalog.AddBook(ctx, req)
	if err != nil {
		return err
	}
	info := book.Info()
	fmt.Fprintf(m.out, "Quantum book store: Book added -> %s (ISBN: %s)\n", info.Title, info.ISBN)
	return nil
}

func (m *Menu) buyBook(ctx context.Context) error {
	isbn, err := m.prompt("Enter ISBN to buy: ")
	if err != nil {
		return err
	}
	qty, err := m.promptInt32("Quantity: ")
	if err != nil {
		return err
	}
	email, err := m.prompt("Email (press Enter if not needed): ")
	if err != nil {
		return err
	}
	address, err := m.prompt("Address (press Enter if not needed): ")
	if err != nil {
		return err
	}

	receipt, err := m.catalog.Buy(ctx, store.BuyRequest{
		ISBN:     isbn,
		Quantity: qty,
		Email:    email,
		Address:  address,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Purchase successful. Total: $%s\n", receipt.Total.StringFixed(2))
	fmt.Fprintf(m.out, "Order: %s | %d left in stock\n", receipt.OrderID, receipt.Remaining)
	for _, nerr := range receipt.NotifyErrors {
		fmt.Fprintf(m.out, "Warning: %v\n", nerr)
	}
	return nil
}

func (m *Menu) listBooks(ctx context.Context) error {
	all, err := m.catalog.List(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(m.out, "No books available in store.")
		return nil
	}

	fmt.Fprintln(m.out, "\nBooks in Quantum Book Store:")
	for _, b := range all {
		fmt.Fprintln(m.out, FormatLine(b))
	}
	return nil
}

func (m *Menu) showcase(ctx context.Context) error {
	items, err := m.catalog.Showcase(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(m.out, "No showcase books on display.")
		return nil
	}
	for _, b := range items {
		fmt.Fprintln(m.out, "Quantum book store: SHOWCASE")
		fmt.Fprintf(m.out, "Title: %s\nAuthor: %s\nYear: %d\nISBN: %s\n", b.Title, b.Author, b.Year, b.ISBN)
	}
	return nil
}

// FormatLine renders one catalog entry for the listing.
func FormatLine(b books.Book) string {
	info := b.Info()
	line := fmt.Sprintf("- %s by %s (%d) | ISBN: %s | %s", info.Title, info.Author, info.Year, info.ISBN, b.Kind().Label())
	if !b.ForSale() {
		return line + " | Showcase"
	}

	line += fmt.Sprintf(" | $%s | Stock: %d", info.Price.StringFixed(2), info.Stock)
	switch v := b.(type) {
	case *books.EBook:
		if v.FileType != "" {
			line += " | " + v.FileType
		}
	case *books.AudioBook:
		if v.Format != "" {
			line += " | " + v.Format
		}
		if v.Narrator != "" {
			line += " | narrated by " + v.Narrator
		}
	}
	return line + " | For Sale"
}

func (m *Menu) prompt(label string) (string, error) {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		if err := m.in.Err(); err != nil {
			return "", err
		}
		fmt.Fprintln(m.out)
		return "", errQuit
	}
	return strings.TrimSpace(m.in.Text()), nil
}

func (m *Menu) promptInt(label string) (int, error) {
	n, err := m.promptBits(label, strconv.IntSize, false)
	return int(n), err
}

func (m *Menu) promptInt32(label string) (int32, error) {
	n, err := m.promptBits(label, 32, false)
	return int32(n), err
}

func (m *Menu) promptOptionalInt32(label string) (int32, error) {
	n, err := m.promptBits(label, 32, true)
	return int32(n), err
}

func (m *Menu) promptOptionalInt64(label string) (int64, error) {
	return m.promptBits(label, 64, true)
}

// promptBits reads a whole number that must fit in bitSize bits. Empty
// input is 0 when optional.
func (m *Menu) promptBits(label string, bitSize int, optional bool) (int64, error) {
	s, err := m.prompt(label)
	if err != nil || (optional && s == "") {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, bitSize)
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	if err != nil {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return n, nil
}

func (m *Menu) promptPrice(label string) (decimal.Decimal, error) {
	s, err := m.prompt(label)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "$"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a price", s)
	}
	return d, nil
}
