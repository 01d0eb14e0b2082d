// Package books holds the catalog variants and the rules that decide whether
// a given purchase of one of them is allowed.
package books

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotForSale is returned for any purchase attempt on a showcase book
	ErrNotForSale = errors.New("book is not for sale")

	// ErrInsufficientStock is returned when the requested quantity exceeds stock
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrEmailRequired   = errors.New("email is required for delivery")
	ErrSingleCopyOnly  = errors.New("ebooks can only be bought one at a time")
	ErrInvalidPrice    = errors.New("price must be positive")
)

// Kind identifies a book variant.
type Kind string

const (
	KindPaper    Kind = "paper"
	KindEBook    Kind = "ebook"
	KindAudio    Kind = "audio"
	KindShowcase Kind = "showcase"
)

// Label is the human name of the kind as printed by the menu.
func (k Kind) Label() string {
	switch k {
	case KindPaper:
		return "PaperBook"
	case KindEBook:
		return "EBook"
	case KindAudio:
		return "AudioBook"
	case KindShowcase:
		return "ShowcaseBook"
	}
	return string(k)
}

// ParseKind accepts the kind identifiers used in storage and on the wire.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPaper, KindEBook, KindAudio, KindShowcase:
		return k, nil
	}
	return "", fmt.Errorf("unknown book kind %q", s)
}

// Details are the fields every variant carries.
type Details struct {
	ISBN   string
	Title  string
	Author string
	Year   int
	Price  decimal.Decimal
	Stock  int32
}

// Purchase is what a customer asks for.
type Purchase struct {
	Quantity int32
	Email    string
	Address  string
}

// Book is implemented by every catalog variant.
type Book interface {
	Info() Details
	Kind() Kind
	ForSale() bool
	// CheckPurchase reports whether p may be fulfilled against the book as
	// it is now. It never mutates the book.
	CheckPurchase(p Purchase) error
}

// Total is the amount due for qty copies of b.
func Total(b Book, qty int32) decimal.Decimal {
	return b.Info().Price.Mul(decimal.NewFromInt32(qty))
}

func checkQuantityAndStock(d Details, qty int32) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > d.Stock {
		return fmt.Errorf("%w for ISBN %s: available=%d, requested=%d", ErrInsufficientStock, d.ISBN, d.Stock, qty)
	}
	return nil
}

// PaperBook is a physical book shipped to the buyer.
type PaperBook struct {
	Details
}

func (b *PaperBook) Info() Details { return b.Details }
func (b *PaperBook) Kind() Kind    { return KindPaper }
func (b *PaperBook) ForSale() bool { return true }

// CheckPurchase only checks quantity against stock.
func (b *PaperBook) CheckPurchase(p Purchase) error {
	return checkQuantityAndStock(b.Details, p.Quantity)
}

// EBook is delivered by email, one copy per purchase.
type EBook struct {
	Details
	FileType   string
	FileSizeKB int64
}

func (b *EBook) Info() Details { return b.Details }
func (b *EBook) Kind() Kind    { return KindEBook }
func (b *EBook) ForSale() bool { return true }

// CheckPurchase allows a single copy sent to an email address.
func (b *EBook) CheckPurchase(p Purchase) error {
	if p.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if p.Quantity > 1 {
		return ErrSingleCopyOnly
	}
	if p.Email == "" {
		return ErrEmailRequired
	}
	return checkQuantityAndStock(b.Details, p.Quantity)
}

// AudioBook is delivered by email.
type AudioBook struct {
	Details
	Format          string
	Narrator        string
	DurationMinutes int32
}

func (b *AudioBook) Info() Details { return b.Details }
func (b *AudioBook) Kind() Kind    { return KindAudio }
func (b *AudioBook) ForSale() bool { return true }

// CheckPurchase requires an email address to send the files to.
func (b *AudioBook) CheckPurchase(p Purchase) error {
	if p.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if p.Email == "" {
		return ErrEmailRequired
	}
	return checkQuantityAndStock(b.Details, p.Quantity)
}

// ShowcaseBook is on display only.
type ShowcaseBook struct {
	Details
}

func (b *ShowcaseBook) Info() Details { return b.Details }
func (b *ShowcaseBook) Kind() Kind    { return KindShowcase }
func (b *ShowcaseBook) ForSale() bool { return false }

// CheckPurchase always fails with ErrNotForSale.
func (b *ShowcaseBook) CheckPurchase(Purchase) error {
	return fmt.Errorf("%w: %s", ErrNotForSale, b.Title)
}

// Delivery says which collaborators a fulfilled purchase goes through.
type Delivery struct {
	Email bool
	Ship  bool
}

// DeliveryFor returns the delivery channels for p against b. Digital
// variants always mail; paper books ship when an address is given and send a
// confirmation mail when an email is given.
func DeliveryFor(b Book, p Purchase) Delivery {
	switch b.Kind() {
	case KindEBook, KindAudio:
		return Delivery{Email: true}
	case KindPaper:
		return Delivery{Email: p.Email != "", Ship: p.Address != ""}
	}
	return Delivery{}
}
