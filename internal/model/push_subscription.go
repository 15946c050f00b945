package model

import "time"

// PushSubscription is a browser push subscription notified about new codes.
// Endpoint is stored exactly as the browser reported it.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}
