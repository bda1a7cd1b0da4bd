// Package history persists the append-only trade ledger. Every fill is
// written synchronously so a crash loses at most the in-flight fill.
package history

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Entry is one immutable fill record. RealizedPnL is null for opening fills
// (nothing was closed) and for fills where no entry price could be recovered.
type Entry struct {
	ID          uint      `gorm:"primaryKey"`
	Time        time.Time `gorm:"index"`
	Symbol      string    `gorm:"index"`
	Side        string
	Qty         decimal.Decimal
	Price       decimal.Decimal
	RealizedPnL decimal.NullDecimal
	OrdType     string
}

// TableName keeps the legacy table name stable across schema migrations.
func (Entry) TableName() string { return "trade_history" }

// Store is the durable trade-history ledger.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the sqlite-backed store and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Append durably writes one fill.
func (s *Store) Append(e *Entry) error {
	if err := s.db.Create(e).Error; err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// Load returns all entries in append order.
func (s *Store) Load() ([]Entry, error) {
	var entries []Entry
	if err := s.db.Order("id asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}
