package httpserver

import (
	"time"

	"github.com/bookstore/quantumstore/internal/books"
	"github.com/bookstore/quantumstore/internal/db"
	"github.com/shopspring/decimal"
)

type bookView struct {
	ISBN    string `json:"isbn"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Year    int    `json:"year"`
	ForSale bool   `json:"for_sale"`
	Price   string `json:"price,omitempty"`
	Stock   int32  `json:"stock"`

	FileType        string `json:"file_type,omitempty"`
	FileSizeKB      int64  `json:"file_size_kb,omitempty"`
	Format          string `json:"format,omitempty"`
	Narrator        string `json:"narrator,omitempty"`
	DurationMinutes int32  `json:"duration_minutes,omitempty"`
}

func toView(b books.Book) bookView {
	info := b.Info()
	v := bookView{
		ISBN:    info.ISBN,
		Kind:    string(b.Kind()),
		Title:   info.Title,
		Author:  info.Author,
		Year:    info.Year,
		ForSale: b.ForSale(),
		Stock:   info.Stock,
	}
	if v.ForSale {
		v.Price = info.Price.StringFixed(2)
	}

	switch bb := b.(type) {
	case *books.EBook:
		v.FileType = bb.FileType
		v.FileSizeKB = bb.FileSizeKB
	case *books.AudioBook:
		v.Format = bb.Format
		v.Narrator = bb.Narrator
		v.DurationMinutes = bb.DurationMinutes
	}
	return v
}

type orderView struct {
	OrderID   string    `json:"order_id"`
	ISBN      string    `json:"isbn"`
	Kind      string    `json:"kind"`
	Quantity  int32     `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Total     string    `json:"total"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func toOrderView(o *db.Order) orderView {
	return orderView{
		OrderID:   o.OrderID,
		ISBN:      o.SKU,
		Kind:      o.Kind,
		Quantity:  o.Quantity,
		UnitPrice: decimal.New(o.UnitPrice, -2).StringFixed(2),
		Total:     decimal.New(o.Total, -2).StringFixed(2),
		Currency:  o.Currency,
		CreatedAt: o.CreatedAt,
	}
}

type statsView struct {
	Total    int64 `json:"total"`
	ForSale  int64 `json:"for_sale"`
	Showcase int64 `json:"showcase"`
	Units    int64 `json:"units_in_stock"`
}

type errorView struct {
	Error string `json:"error"`
}
