package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"venue-backend/internal/model"
)

// AppendSession inserts an immutable session record. There is no update or
// delete counterpart.
func (s *gormStore) AppendSession(ctx context.Context, sess *model.Session) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return errors.Wrapf(err, "append session for device %s", sess.DeviceID)
	}
	return nil
}

func (s *gormStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, getErr(err, "session", id)
	}
	return &sess, nil
}

func (s *gormStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	q := s.db.WithContext(ctx).Order("ended_at DESC")
	if filter.DeviceID != "" {
		q = q.Where("device_id = ?", filter.DeviceID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var sessions []model.Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	return sessions, nil
}

func (s *gormStore) CountSessions(ctx context.Context, deviceID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Session{}).Where("device_id = ?", deviceID).Count(&n).Error
	if err != nil {
		return 0, errors.Wrapf(err, "count sessions of device %s", deviceID)
	}
	return n, nil
}
