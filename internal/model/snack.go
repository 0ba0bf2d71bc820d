package model

import "time"

// Snack is an inventory record. Stock and SoldCount only change through the
// conditional updates in the store package.
type Snack struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"uniqueIndex;size:30;not null" json:"name"`
	SellingPrice float64   `gorm:"not null;check:selling_price >= 0" json:"selling_price"`
	Stock        int       `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	SoldCount    int       `gorm:"not null;default:0;check:sold_count >= 0" json:"sold_count"`
	Version      int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
