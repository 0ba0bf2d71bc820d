package model

import "time"

// OrderKind tells whether an order is attached to a running device session.
type OrderKind string

const (
	OrderKindInDevice  OrderKind = "IN_DEVICE"
	OrderKindOutDevice OrderKind = "OUT_DEVICE"
)

// Order is a snack purchase. DeviceID is set iff Kind is IN_DEVICE.
type Order struct {
	ID         string      `gorm:"primaryKey;size:36" json:"id"`
	Kind       OrderKind   `gorm:"size:16;not null" json:"kind"`
	DeviceID   *string     `gorm:"size:36;index" json:"device_id"`
	TotalPrice float64     `gorm:"not null" json:"total_price"`
	Version    int64       `gorm:"not null;default:1" json:"version"`
	Items      []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// OrderItem is one line of an order. Position keeps insertion order.
type OrderItem struct {
	ID        int64   `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderID   string  `gorm:"size:36;not null;index" json:"-"`
	Position  int     `gorm:"not null" json:"position"`
	SnackID   string  `gorm:"size:36;not null" json:"snack_id"`
	UnitPrice float64 `gorm:"not null" json:"unit_price"`
	Quantity  int     `gorm:"not null;check:quantity > 0" json:"quantity"`
}

// ItemIndex returns the index of the line for snackID, or -1.
func (o *Order) ItemIndex(snackID string) int {
	for i := range o.Items {
		if o.Items[i].SnackID == snackID {
			return i
		}
	}
	return -1
}

// Recalculate sets TotalPrice to the sum of unit price times quantity.
func (o *Order) Recalculate() {
	var total float64
	for _, it := range o.Items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	o.TotalPrice = total
}
