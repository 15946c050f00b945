package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qr-mac-backend/internal/model"
)

// Storage is the on-device key/value storage the code list is mirrored to.
type Storage interface {
	// GetItem returns the value stored under key and whether it exists.
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
}

// gormStorage implements Storage on the storage_items table.
type gormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) Storage {
	return &gormStorage{db: db}
}

func (s *gormStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	var item model.StorageItem
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read storage key %q: %w", key, err)
	}
	return item.Value, true, nil
}

func (s *gormStorage) SetItem(ctx context.Context, key, value string) error {
	item := model.StorageItem{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&item).Error
	if err != nil {
		return fmt.Errorf("failed to write storage key %q: %w", key, err)
	}
	return nil
}

// memoryStorage keeps items in process memory. Nothing survives a restart.
type memoryStorage struct {
	items *cache.Cache
}

// NewMemoryStorage creates a Storage that never expires its items.
func NewMemoryStorage() Storage {
	return &memoryStorage{items: cache.New(cache.NoExpiration, 0)}
}

func (s *memoryStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *memoryStorage) SetItem(_ context.Context, key, value string) error {
	s.items.Set(key, value, cache.NoExpiration)
	return nil
}
