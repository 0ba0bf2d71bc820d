package model

import "time"

// SessionKind selects which hourly rate a device bills at.
type SessionKind string

const (
	SessionKindDuo   SessionKind = "DUO"
	SessionKindMulti SessionKind = "MULTI"
)

// Valid reports whether k is a known session kind.
func (k SessionKind) Valid() bool {
	return k == SessionKindDuo || k == SessionKindMulti
}

// DeviceState is the occupancy state of a device.
type DeviceState string

const (
	DeviceStateEmpty    DeviceState = "EMPTY"
	DeviceStateOccupied DeviceState = "OCCUPIED"
)

// Device represents a gaming station customers occupy for timed sessions.
// StartedAt is set iff State is OCCUPIED; LinkedOrderID may only be set while
// OCCUPIED.
type Device struct {
	ID            string      `gorm:"primaryKey;size:36" json:"id"`
	Name          string      `gorm:"uniqueIndex;size:30;not null" json:"name"`
	Category      string      `gorm:"size:64;not null" json:"category"`
	DuoRate       float64     `gorm:"not null;check:duo_rate >= 0" json:"duo_rate"`
	MultiRate     float64     `gorm:"not null;check:multi_rate >= 0" json:"multi_rate"`
	SessionKind   SessionKind `gorm:"size:8;not null;default:DUO" json:"session_kind"`
	State         DeviceState `gorm:"size:16;not null;default:EMPTY;index" json:"state"`
	StartedAt     *time.Time  `json:"started_at"`
	LinkedOrderID *string     `gorm:"size:36;uniqueIndex" json:"linked_order_id"`
	Version       int64       `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// IsOccupied reports whether a session is running on the device.
func (d *Device) IsOccupied() bool {
	return d.State == DeviceStateOccupied && d.StartedAt != nil
}

// Rate returns the hourly rate for the given kind.
func (d *Device) Rate(kind SessionKind) float64 {
	if kind == SessionKindDuo {
		return d.DuoRate
	}
	return d.MultiRate
}
