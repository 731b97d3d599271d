// Package postgres provides a StateStore backed by a single PostgreSQL table via gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Document is one row per (collection, id).
type Document struct {
	Collection string `gorm:"primaryKey;size:64"`
	ID         string `gorm:"primaryKey;size:255"`
	Body       []byte `gorm:"type:bytea;not null"`
	UpdatedAt  time.Time
}

// TableName keeps the table name stable regardless of gorm's naming strategy.
func (Document) TableName() string { return "parley_documents" }

// Store implements ports.StateStore using gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the documents table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the documents table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the document.
func (s *Store) Save(ctx context.Context, collection domain.Collection, id string, doc []byte) error {
	row := Document{Collection: string(collection), ID: id, Body: doc}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", collection, id, err)
	}
	return nil
}

// Load reads a document back.
func (s *Store) Load(ctx context.Context, collection domain.Collection, id string) ([]byte, error) {
	var row Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", string(collection), id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s: %w", collection, id, err)
	}
	return row.Body, nil
}

// Delete removes a document; a missing row is not an error.
func (s *Store) Delete(ctx context.Context, collection domain.Collection, id string) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", string(collection), id).
		Delete(&Document{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// List returns the IDs in a collection, sorted.
func (s *Store) List(ctx context.Context, collection domain.Collection) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("collection = ?", string(collection)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return ids, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
