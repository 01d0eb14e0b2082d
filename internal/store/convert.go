package store

import (
	"fmt"
	"math"

	"github.com/bookstore/quantumstore/internal/books"
	"github.com/bookstore/quantumstore/internal/db"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// maxUnitCents keeps price times the largest quantity within int64 cents.
	maxUnitCents = decimal.NewFromInt(math.MaxInt64 / math.MaxInt32)
)

// priceCents converts a catalog price to cents, refusing prices that round
// to nothing or that could overflow an order total.
func priceCents(d decimal.Decimal) (int64, error) {
	cents := d.Mul(hundred).Round(0)
	if !cents.IsPositive() {
		return 0, fmt.Errorf("%w: %s rounds to zero cents", books.ErrInvalidPrice, d.String())
	}
	if cents.GreaterThan(maxUnitCents) {
		return 0, fmt.Errorf("%w: %s is above the maximum of %s", books.ErrInvalidPrice, d.String(), fromCents(maxUnitCents.IntPart()).StringFixed(2))
	}
	return cents.IntPart(), nil
}

// toCents converts a price to the smallest currency unit, rounding half
// away from zero.
func toCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func toRecord(req AddRequest, currency string) *db.Book {
	record := &db.Book{
		SKU:      req.ISBN,
		Kind:     string(req.Kind),
		Title:    req.Title,
		Author:   req.Author,
		Year:     req.Year,
		Price:    toCents(req.Price),
		Currency: currency,
		Stock:    req.Stock,
	}

	switch req.Kind {
	case books.KindEBook:
		record.FileType = req.FileType
		record.FileSizeKB = req.FileSizeKB
	case books.KindAudio:
		record.Format = req.Format
		record.Narrator = req.Narrator
		record.DurationMinutes = req.DurationMinutes
	}
	return record
}

func fromRecord(r *db.Book) books.Book {
	d := books.Details{
		ISBN:   r.SKU,
		Title:  r.Title,
		Author: r.Author,
		Year:   r.Year,
		Price:  fromCents(r.Price),
		Stock:  r.Stock,
	}

	switch books.Kind(r.Kind) {
	case books.KindEBook:
		return &books.EBook{Details: d, FileType: r.FileType, FileSizeKB: r.FileSizeKB}
	case books.KindAudio:
		return &books.AudioBook{Details: d, Format: r.Format, Narrator: r.Narrator, DurationMinutes: r.DurationMinutes}
	case books.KindPaper:
		return &books.PaperBook{Details: d}
	default:
		// Unknown kinds are displayed but never sold
		d.Price = decimal.Zero
		d.Stock = 0
		return &books.ShowcaseBook{Details: d}
	}
}

func fromRecords(records []*db.Book) []books.Book {
	out := make([]books.Book, len(records))
	for i, r := range records {
		out[i] = fromRecord(r)
	}
	return out
}
