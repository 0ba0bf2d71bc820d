package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"venue-backend/internal/apperr"
	"venue-backend/internal/model"
)

func (s *gormStore) CreateSnack(ctx context.Context, sn *model.Snack) error {
	if sn.Version == 0 {
		sn.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(sn).Error; err != nil {
		return writeErr(err, "snack", sn.Name, "create")
	}
	return nil
}

func (s *gormStore) GetSnack(ctx context.Context, id string) (*model.Snack, error) {
	var sn model.Snack
	if err := s.db.WithContext(ctx).First(&sn, "id = ?", id).Error; err != nil {
		return nil, getErr(err, "snack", id)
	}
	return &sn, nil
}

func (s *gormStore) ListSnacks(ctx context.Context) ([]model.Snack, error) {
	var snacks []model.Snack
	if err := s.db.WithContext(ctx).Order("name").Find(&snacks).Error; err != nil {
		return nil, errors.Wrap(err, "list snacks")
	}
	return snacks, nil
}

// PutSnack writes name and price under a version check. Stock columns are
// only ever changed by the conditional updates below.
func (s *gormStore) PutSnack(ctx context.Context, sn *model.Snack) error {
	res := s.db.WithContext(ctx).Model(&model.Snack{}).
		Where("id = ? AND version = ?", sn.ID, sn.Version).
		Updates(map[string]any{
			"name":          sn.Name,
			"selling_price": sn.SellingPrice,
			"version":       sn.Version + 1,
		})
	if res.Error != nil {
		return writeErr(res.Error, "snack", sn.Name, "put")
	}
	if res.RowsAffected == 0 {
		return s.versionMiss(ctx, &model.Snack{}, "snack", sn.ID)
	}
	sn.Version++
	return nil
}

func (s *gormStore) SnackNameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	return s.nameTaken(ctx, &model.Snack{}, name, exceptID)
}

// DeleteSnack removes sn if its stored version still equals sn.Version.
func (s *gormStore) DeleteSnack(ctx context.Context, sn *model.Snack) error {
	res := s.db.WithContext(ctx).Where("id = ? AND version = ?", sn.ID, sn.Version).Delete(&model.Snack{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete snack %s", sn.ID)
	}
	if res.RowsAffected == 0 {
		return s.versionMiss(ctx, &model.Snack{}, "snack", sn.ID)
	}
	return nil
}

// SnackOrdered reports whether any order line refers to the snack.
func (s *gormStore) SnackOrdered(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.OrderItem{}).Where("snack_id = ?", id).Count(&n).Error; err != nil {
		return false, errors.Wrapf(err, "count order lines of snack %s", id)
	}
	return n > 0, nil
}

// DeductStock removes qty units in a single conditional update. It never
// drives stock below zero.
func (s *gormStore) DeductStock(ctx context.Context, id string, qty int) (*model.Snack, error) {
	res := s.db.WithContext(ctx).Model(&model.Snack{}).
		Where("id = ? AND stock >= ?", id, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"sold_count": gorm.Expr("sold_count + ?", qty),
			"version":    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "deduct %d of snack %s", qty, id)
	}
	if res.RowsAffected == 0 {
		ok, err := s.exists(ctx, &model.Snack{}, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("snack %s not found", id)
		}
		return nil, apperr.OutOfStock("not enough stock of snack %s for %d", id, qty)
	}
	return s.GetSnack(ctx, id)
}

// ReturnStock is the inverse of DeductStock, conditional on sold_count.
func (s *gormStore) ReturnStock(ctx context.Context, id string, qty int) (*model.Snack, error) {
	res := s.db.WithContext(ctx).Model(&model.Snack{}).
		Where("id = ? AND sold_count >= ?", id, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"sold_count": gorm.Expr("sold_count - ?", qty),
			"version":    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "return %d of snack %s", qty, id)
	}
	if res.RowsAffected == 0 {
		ok, err := s.exists(ctx, &model.Snack{}, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("snack %s not found", id)
		}
		return nil, apperr.InvalidState("cannot return %d of snack %s: more than sold", qty, id)
	}
	return s.GetSnack(ctx, id)
}

// AddStock restocks without touching sold_count.
func (s *gormStore) AddStock(ctx context.Context, id string, qty int) (*model.Snack, error) {
	res := s.db.WithContext(ctx).Model(&model.Snack{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stock":   gorm.Expr("stock + ?", qty),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "add %d to snack %s", qty, id)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("snack %s not found", id)
	}
	return s.GetSnack(ctx, id)
}
