package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"venue-backend/internal/apperr"
)

const defaultBackoff = 20 * time.Millisecond

// RetryPolicy bounds how often RunInTx retries a transaction that lost an
// optimistic version check.
type RetryPolicy struct {
	Attempts int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
	// OnConflict, if set, is called for every conflicting attempt.
	OnConflict func(attempt int, err error)
}

// RunInTx executes fn in a transaction. When fn fails with a conflict the
// transaction has already rolled back, so the whole unit is run again from
// scratch until the policy's attempts are exhausted.
func RunInTx(ctx context.Context, s Store, p RetryPolicy, fn func(tx Store) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.InTx(ctx, fn)
		if err == nil || !errors.Is(err, apperr.ErrConflict) {
			return err
		}
		if p.OnConflict != nil {
			p.OnConflict(attempt, err)
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
