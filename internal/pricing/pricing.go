// Package pricing computes what a finished device session costs.
package pricing

import (
	"time"

	"venue-backend/internal/apperr"
	"venue-backend/internal/model"
)

// Quote is the result of pricing one session.
type Quote struct {
	DurationHours float64 `json:"durationHours"`
	Price         float64 `json:"price"`
}

// ComputeSessionPrice bills the fractional hours between startedAt and
// endedAt at the rate matching kind. Values are not rounded.
func ComputeSessionPrice(kind model.SessionKind, startedAt, endedAt time.Time, duoRate, multiRate float64) (Quote, error) {
	if endedAt.Before(startedAt) {
		return Quote{}, apperr.New(apperr.KindInvalidInterval, "session ends at %s before it starts at %s",
			endedAt.Format(time.RFC3339), startedAt.Format(time.RFC3339))
	}
	hours := endedAt.Sub(startedAt).Hours()

	rate := multiRate
	if kind == model.SessionKindDuo {
		rate = duoRate
	}
	return Quote{DurationHours: hours, Price: hours * rate}, nil
}
