package model

import "time"

// Session is the immutable billing record written when a device session ends.
type Session struct {
	ID            string      `gorm:"primaryKey;size:36" json:"id"`
	DeviceID      string      `gorm:"size:36;not null;index" json:"device_id"`
	Kind          SessionKind `gorm:"size:8;not null" json:"kind"`
	StartedAt     time.Time   `gorm:"not null" json:"started_at"`
	EndedAt       time.Time   `gorm:"not null;index" json:"ended_at"`
	DurationHours float64     `gorm:"not null;check:duration_hours >= 0" json:"duration_hours"`
	GamePrice     float64     `gorm:"not null" json:"game_price"`
	TotalPrice    float64     `gorm:"not null" json:"total_price"`
	OrderID       *string     `gorm:"size:36" json:"order_id"` // order open on the device at end time
	CreatedAt     time.Time   `gorm:"not null" json:"created_at"`
}
