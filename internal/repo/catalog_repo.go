package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookstore/quantumstore/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrBookAlreadyExists is returned when trying to create a book that already exists
	ErrBookAlreadyExists = errors.New("book already exists")

	// ErrInsufficientStock is returned when a decrement would take stock below zero
	ErrInsufficientStock = errors.New("insufficient stock")
)

// CatalogRepository handles book catalog and order persistence
type CatalogRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(database *db.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:  database,
		log: logger,
	}
}

// ListFilter narrows ListBooks. Zero value lists everything.
type ListFilter struct {
	Kind        string
	ForSaleOnly bool
}

// ListBooks returns books in the order they were added
func (r *CatalogRepository) ListBooks(ctx context.Context, filter ListFilter) ([]*db.Book, error) {
	query := r.db.WithContext(ctx).Model(&db.Book{})

	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.ForSaleOnly {
		query = query.Where("kind <> ?", "showcase")
	}

	var books []*db.Book
	if err := query.Order("created_at ASC").Order("sku ASC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, err
	}

	return books, nil
}

// GetBook retrieves a book by SKU
func (r *CatalogRepository) GetBook(ctx context.Context, sku string) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.String("sku", sku), zap.Error(err))
		return nil, err
	}

	return &book, nil
}

// CreateBook adds a new book to the catalog
func (r *CatalogRepository) CreateBook(ctx context.Context, book *db.Book) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if book.SKU == "" {
			sku, err := generateNextSKU(tx)
			if err != nil {
				r.log.Error("Failed to generate SKU", zap.Error(err))
				return err
			}
			book.SKU = sku
		}

		var existing db.Book
		err := tx.Where("sku = ?", book.SKU).First(&existing).Error
		if err == nil {
			return ErrBookAlreadyExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Error("Failed to check book existence", zap.String("sku", book.SKU), zap.Error(err))
			return err
		}

		if err := tx.Create(book).Error; err != nil {
			r.log.Error("Failed to create book", zap.String("sku", book.SKU), zap.Error(err))
			return err
		}

		r.log.Info("Book created", zap.String("sku", book.SKU), zap.String("kind", book.Kind), zap.String("title", book.Title))
		return nil
	})
}

// generateNextSKU generates the next sequential SKU (BOOK-001, BOOK-002, etc.)
func generateNextSKU(tx *gorm.DB) (string, error) {
	var lastBook db.Book

	err := tx.Where("sku LIKE ?", "BOOK-%").
		Order("sku DESC").
		First(&lastBook).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "BOOK-001", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last book: %w", err)
	}

	var lastNum int
	if _, err := fmt.Sscanf(lastBook.SKU, "BOOK-%d", &lastNum); err != nil {
		var count int64
		if err := tx.Model(&db.Book{}).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to count books: %w", err)
		}
		return fmt.Sprintf("BOOK-%03d", count+1), nil
	}

	return fmt.Sprintf("BOOK-%03d", lastNum+1), nil
}

// Purchase takes qty copies of sku out of stock and records order in the
// same transaction. Stock is left untouched when it cannot cover qty.
// It returns the stock remaining after the purchase.
func (r *CatalogRepository) Purchase(ctx context.Context, sku string, qty int32, order *db.Order) (int32, error) {
	var remaining int32

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Book{}).
			Where("sku = ? AND kind <> ? AND stock >= ?", sku, "showcase", qty).
			Update("stock", gorm.Expr("stock - ?", qty))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&db.Book{}).Where("sku = ?", sku).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrBookNotFound
			}
			return ErrInsufficientStock
		}

		if err := tx.Model(&db.Book{}).Where("sku = ?", sku).Select("stock").Scan(&remaining).Error; err != nil {
			return err
		}

		if order != nil {
			order.SKU = sku
			order.Quantity = qty
			if err := tx.Create(order).Error; err != nil {
				return fmt.Errorf("failed to record order: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrInsufficientStock) && !errors.Is(err, ErrBookNotFound) {
			r.log.Error("Failed to purchase book", zap.String("sku", sku), zap.Int32("quantity", qty), zap.Error(err))
		}
		return 0, err
	}

	r.log.Info("Stock decremented",
		zap.String("sku", sku),
		zap.Int32("quantity", qty),
		zap.Int32("remaining", remaining),
	)
	return remaining, nil
}

// ListOrders returns recorded purchases, newest first. An empty sku lists all.
func (r *CatalogRepository) ListOrders(ctx context.Context, sku string) ([]*db.Order, error) {
	query := r.db.WithContext(ctx).Model(&db.Order{})
	if sku != "" {
		query = query.Where("sku = ?", sku)
	}

	var orders []*db.Order
	if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
		r.log.Error("Failed to list orders", zap.String("sku", sku), zap.Error(err))
		return nil, err
	}
	return orders, nil
}

// Stats summarises the catalog.
type Stats struct {
	Total    int64
	ForSale  int64
	Showcase int64
	Units    int64
}

// GetStats returns catalog statistics for metrics and the ops endpoints
func (r *CatalogRepository) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := r.db.WithContext(ctx).Model(&db.Book{}).Count(&s.Total).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count total books: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&db.Book{}).Where("kind = ?", "showcase").Count(&s.Showcase).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count showcase books: %w", err)
	}
	s.ForSale = s.Total - s.Showcase

	if err := r.db.WithContext(ctx).Model(&db.Book{}).Select("COALESCE(SUM(stock), 0)").Scan(&s.Units).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to sum stock: %w", err)
	}

	return s, nil
}
