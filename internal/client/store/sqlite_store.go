package store

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type recordRow struct {
	Namespace string `gorm:"primaryKey;size:64"`
	Key       string `gorm:"primaryKey;size:128"`
	Kind      string `gorm:"size:16"`
	Data      string
	Value     int64
}

func (recordRow) TableName() string { return "records" }

// SQLiteStore keeps records in a local SQLite database, for clients
// that outgrow the flat file store.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrStorage, err)
	}
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorage, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(namespace, key string) (Record, error) {
	var row recordRow
	err := s.db.Where("namespace = ? AND key = ?", namespace, key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return Record{Kind: row.Kind, Data: row.Data, Value: row.Value}, nil
}

func (s *SQLiteStore) Put(namespace, key string, rec Record) error {
	row := recordRow{Namespace: namespace, Key: key, Kind: rec.Kind, Data: rec.Data, Value: rec.Value}
	err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(namespace, key string) error {
	err := s.db.Where("namespace = ? AND key = ?", namespace, key).Delete(&recordRow{}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) List(namespace string) (map[string]Record, error) {
	var rows []recordRow
	if err := s.db.Where("namespace = ?", namespace).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	out := make(map[string]Record, len(rows))
	for _, row := range rows {
		out[row.Key] = Record{Kind: row.Kind, Data: row.Data, Value: row.Value}
	}
	return out, nil
}
