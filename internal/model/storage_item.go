package model

import "time"

// StorageItem is one key/value entry of the on-device storage.
type StorageItem struct {
	Key       string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
