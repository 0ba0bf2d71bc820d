package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"venue-backend/internal/model"
)

func itemsByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

// CreateOrder inserts the order together with its items.
func (s *gormStore) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.Version == 0 {
		o.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return errors.Wrapf(err, "create order %s", o.ID)
	}
	return nil
}

func (s *gormStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Preload("Items", itemsByPosition).First(&o, "id = ?", id).Error
	if err != nil {
		return nil, getErr(err, "order", id)
	}
	return &o, nil
}

func (s *gormStore) ListOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).Preload("Items", itemsByPosition).Order("created_at DESC").Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// PutOrder version-checks the order row, then writes its items. New items
// (zero ID) are inserted, existing ones updated in place.
func (s *gormStore) PutOrder(ctx context.Context, o *model.Order) error {
	db := s.db.WithContext(ctx)
	res := db.Model(&model.Order{}).
		Where("id = ? AND version = ?", o.ID, o.Version).
		Updates(map[string]any{
			"total_price": o.TotalPrice,
			"version":     o.Version + 1,
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "put order %s", o.ID)
	}
	if res.RowsAffected == 0 {
		return s.versionMiss(ctx, &model.Order{}, "order", o.ID)
	}
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		if item.ID == 0 {
			if err := db.Create(item).Error; err != nil {
				return errors.Wrapf(err, "add item to order %s", o.ID)
			}
			continue
		}
		err := db.Model(&model.OrderItem{}).Where("id = ?", item.ID).Updates(map[string]any{
			"position":   item.Position,
			"unit_price": item.UnitPrice,
			"quantity":   item.Quantity,
		}).Error
		if err != nil {
			return errors.Wrapf(err, "update item %d of order %s", item.ID, o.ID)
		}
	}
	o.Version++
	return nil
}

func (s *gormStore) DeleteOrder(ctx context.Context, o *model.Order) error {
	db := s.db.WithContext(ctx)
	res := db.Where("id = ? AND version = ?", o.ID, o.Version).Delete(&model.Order{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete order %s", o.ID)
	}
	if res.RowsAffected == 0 {
		return s.versionMiss(ctx, &model.Order{}, "order", o.ID)
	}
	if err := db.Where("order_id = ?", o.ID).Delete(&model.OrderItem{}).Error; err != nil {
		return errors.Wrapf(err, "delete items of order %s", o.ID)
	}
	return nil
}
