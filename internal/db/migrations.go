package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &Order{}); err != nil {
		return err
	}

	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	// Plain b-tree indexes understood by both postgres and sqlite
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_books_kind_created ON books(kind, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_sku_created ON orders(sku, created_at)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
