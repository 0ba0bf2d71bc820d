package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"venue-backend/internal/model"
)

func (s *gormStore) CreateDevice(ctx context.Context, d *model.Device) error {
	if d.Version == 0 {
		d.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return writeErr(err, "device", d.Name, "create")
	}
	return nil
}

func (s *gormStore) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	var d model.Device
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, getErr(err, "device", id)
	}
	return &d, nil
}

func (s *gormStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).Order("name").Find(&devices).Error; err != nil {
		return nil, errors.Wrap(err, "list devices")
	}
	return devices, nil
}

// PutDevice writes every mutable column of d if the stored version still
// equals d.Version, then bumps d.Version.
func (s *gormStore) PutDevice(ctx context.Context, d *model.Device) error {
	res := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ? AND version = ?", d.ID, d.Version).
		Updates(map[string]any{
			"name":            d.Name,
			"category":        d.Category,
			"duo_rate":        d.DuoRate,
			"multi_rate":      d.MultiRate,
			"session_kind":    d.SessionKind,
			"state":           d.State,
			"started_at":      d.StartedAt,
			"linked_order_id": d.LinkedOrderID,
			"version":         d.Version + 1,
		})
	if res.Error != nil {
		return writeErr(res.Error, "device", d.Name, "put")
	}
	if res.RowsAffected == 0 {
		return s.versionMiss(ctx, &model.Device{}, "device", d.ID)
	}
	d.Version++
	return nil
}

func (s *gormStore) DeleteDevice(ctx context.Context, d *model.Device) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("DELETE FROM subscription_device_mapping WHERE device_id = ?", d.ID).Error; err != nil {
		return errors.Wrapf(err, "unsubscribe device %s", d.ID)
	}
	res := db.Where("id = ? AND version = ?", d.ID, d.Version).Delete(&model.Device{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete device %s", d.ID)
	}
	if res.RowsAffected == 0 {
		return s.versionMiss(ctx, &model.Device{}, "device", d.ID)
	}
	return nil
}

func (s *gormStore) DeviceNameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	return s.nameTaken(ctx, &model.Device{}, name, exceptID)
}
