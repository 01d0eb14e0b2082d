package db

import (
	"time"

	"gorm.io/gorm"
)

// Book is one catalog row. Every variant shares the table; columns that do
// not apply to a kind stay at their zero value.
type Book struct {
	SKU             string    `gorm:"primaryKey;type:varchar(50)" json:"sku"`
	Kind            string    `gorm:"type:varchar(20);not null;index:idx_books_kind" json:"kind"`
	Title           string    `gorm:"type:varchar(255);not null;index:idx_books_title" json:"title"`
	Author          string    `gorm:"type:varchar(255);not null;index:idx_books_author" json:"author"`
	Year            int       `gorm:"not null;default:0" json:"year"`
	Price           int64     `gorm:"not null;default:0" json:"price"`                        // Price in smallest currency unit (cents)
	Currency        string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"` // ISO 4217
	Stock           int32     `gorm:"not null;default:0;check:chk_books_stock,stock >= 0" json:"stock"`
	FileType        string    `gorm:"type:varchar(20)" json:"file_type,omitempty"`
	FileSizeKB      int64     `gorm:"default:0" json:"file_size_kb,omitempty"`
	Format          string    `gorm:"type:varchar(20)" json:"format,omitempty"`
	Narrator        string    `gorm:"type:varchar(255)" json:"narrator,omitempty"`
	DurationMinutes int32     `gorm:"default:0" json:"duration_minutes,omitempty"`
	CreatedAt       time.Time `gorm:"not null;index:idx_books_created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// BeforeCreate hook to set timestamps
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}
	return nil
}

// Order records one completed purchase.
type Order struct {
	OrderID   string    `gorm:"primaryKey;type:varchar(36)" json:"order_id"`
	SKU       string    `gorm:"type:varchar(50);not null;index:idx_orders_sku" json:"sku"`
	Kind      string    `gorm:"type:varchar(20);not null" json:"kind"`
	Quantity  int32     `gorm:"not null" json:"quantity"`
	UnitPrice int64     `gorm:"not null" json:"unit_price"`
	Total     int64     `gorm:"not null" json:"total"`
	Currency  string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Email     string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	Address   string    `gorm:"type:text" json:"address,omitempty"`
	CreatedAt time.Time `gorm:"not null;index:idx_orders_created_at" json:"created_at"`
}

// TableName specifies the table name for Order model
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate stamps the order time
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	return nil
}
