// Package ledger is the append-only record of finished device sessions.
package ledger

import (
	"context"

	"github.com/google/uuid"

	"venue-backend/internal/apperr"
	"venue-backend/internal/model"
	"venue-backend/internal/store"
)

// Ledger is the append-only record of finished sessions.
type Ledger struct {
	store store.Store
}

// New creates a Ledger reading through st.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Append records sess inside tx. The ID is assigned here and TotalPrice is
// the game price; records are never modified afterwards.
func (l *Ledger) Append(ctx context.Context, tx store.Store, sess *model.Session) error {
	if sess.DeviceID == "" {
		return apperr.BadRequest("session has no device")
	}
	if sess.EndedAt.Before(sess.StartedAt) {
		return apperr.New(apperr.KindInvalidInterval, "session for device %s ends before it starts", sess.DeviceID)
	}
	sess.ID = uuid.NewString()
	sess.TotalPrice = sess.GamePrice
	return tx.AppendSession(ctx, sess)
}

// Get returns one session record.
func (l *Ledger) Get(ctx context.Context, id string) (*model.Session, error) {
	return l.store.GetSession(ctx, id)
}

// List returns sessions newest first, optionally only those of one device.
func (l *Ledger) List(ctx context.Context, deviceID string, limit int) ([]model.Session, error) {
	return l.store.ListSessions(ctx, store.SessionFilter{DeviceID: deviceID, Limit: limit})
}
