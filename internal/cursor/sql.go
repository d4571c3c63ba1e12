package cursor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type cursorRow struct {
	Key       string    `gorm:"column:key;primaryKey"`
	CommitID  string    `gorm:"column:commit_id"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (cursorRow) TableName() string {
	return "release_cursors"
}

// SQLStore keeps one cursor row per key. It supports CompareAndSet, so
// overlapping invocations cannot both advance the same cursor.
type SQLStore struct {
	db  *gorm.DB
	key string
}

// NewSQLStore wraps an open database and ensures the table exists.
func NewSQLStore(db *gorm.DB, key string) (*SQLStore, error) {
	if err := db.AutoMigrate(&cursorRow{}); err != nil {
		return nil, fmt.Errorf("migrate cursor table: %w", err)
	}
	return &SQLStore{db: db, key: key}, nil
}

// OpenSQLStore connects to postgres using dsn.
func OpenSQLStore(dsn, key string) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect cursor database: %w", err)
	}
	return NewSQLStore(db, key)
}

func (s *SQLStore) Get(ctx context.Context) (string, error) {
	var row cursorRow
	err := s.db.WithContext(ctx).Where("key = ?", s.key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoCursor
	}
	if err != nil {
		return "", &ReadError{Err: err}
	}
	if row.CommitID == "" {
		return "", ErrNoCursor
	}
	return row.CommitID, nil
}

func (s *SQLStore) Set(ctx context.Context, commitID string) error {
	row := cursorRow{Key: s.key, CommitID: commitID, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"commit_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}

// CompareAndSet advances the cursor only if it still holds old.
func (s *SQLStore) CompareAndSet(ctx context.Context, old, commitID string) error {
	db := s.db.WithContext(ctx)
	now := time.Now()

	var res *gorm.DB
	if old == "" {
		res = db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&cursorRow{Key: s.key, CommitID: commitID, UpdatedAt: now})
	} else {
		res = db.Model(&cursorRow{}).
			Where("key = ? AND commit_id = ?", s.key, old).
			Updates(map[string]any{"commit_id": commitID, "updated_at": now})
	}
	if res.Error != nil {
		return fmt.Errorf("write cursor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
