package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"venue-backend/internal/model"
)

// PutSubscription creates or replaces a subscription and the set of devices
// it waits for.
func (s *gormStore) PutSubscription(ctx context.Context, sub *model.PushSubscription, deviceIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return errors.Wrap(err, "upsert subscription")
		}

		var devices []*model.Device
		if len(deviceIDs) > 0 {
			if err := tx.Where("id IN ?", deviceIDs).Find(&devices).Error; err != nil {
				return errors.Wrap(err, "load subscribed devices")
			}
		}
		if err := tx.Model(sub).Association("Devices").Replace(&devices); err != nil {
			return errors.Wrap(err, "replace subscribed devices")
		}
		sub.Devices = devices
		return nil
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Devices").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, getErr(err, "subscription", endpoint)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM subscription_device_mapping WHERE push_subscription_endpoint = ?", endpoint).Error; err != nil {
			return errors.Wrap(err, "delete subscription mapping")
		}
		if err := tx.Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
			return errors.Wrap(err, "delete subscription")
		}
		return nil
	})
}

func (s *gormStore) SubscriptionsForDevice(ctx context.Context, deviceID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_device_mapping sdm ON sdm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sdm.device_id = ?", deviceID).
		Find(&subs).Error
	if err != nil {
		return nil, errors.Wrapf(err, "subscriptions for device %s", deviceID)
	}
	return subs, nil
}
