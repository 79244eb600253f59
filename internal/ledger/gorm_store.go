package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// accountRow is the gorm model backing GormStore.
type accountRow struct {
	Key   []byte `gorm:"primaryKey;size:32"`
	Owner []byte `gorm:"size:32"`
	Data  []byte
}

func (accountRow) TableName() string { return "accounts" }

// GormStore is a durable Store on top of gorm. PutBatch runs inside a single
// database transaction, which is what gives instructions their all-or-nothing
// persistence.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenSQLite opens (or creates) a sqlite-backed GormStore at path.
func OpenSQLite(path string, log *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	if err := db.AutoMigrate(&accountRow{}); err != nil {
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}
	return &GormStore{db: db, logger: log}, nil
}

// NewGormStore wraps an existing gorm handle.
func NewGormStore(db *gorm.DB, log *zap.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&accountRow{}); err != nil {
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}
	return &GormStore{db: db, logger: log}, nil
}

// Get fetches the record at key.
func (s *GormStore) Get(ctx context.Context, key Address) (*Record, error) {
	var row accountRow
	err := s.db.WithContext(ctx).First(&row, "key = ?", key[:]).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account record: %w", err)
	}
	rec := &Record{Data: row.Data}
	copy(rec.Key[:], row.Key)
	copy(rec.Owner[:], row.Owner)
	return rec, nil
}

// PutBatch upserts all records inside one database transaction.
func (s *GormStore) PutBatch(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		for _, rec := range records {
			row := accountRow{Key: rec.Key[:], Owner: rec.Owner[:], Data: rec.Data}
			if err := dbtx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"owner", "data"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("upsert account record %s: %w", rec.Key, err)
			}
		}
		return nil
	})
}
