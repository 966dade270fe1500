package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/iliyamo/foodshare/internal/observability"
	"github.com/iliyamo/foodshare/internal/queue"
)

// Page size bounds for every list endpoint.
const (
	DefaultPageSize = 15
	MaxPageSize     = 100
)

// Paged is the list envelope returned by every query.
type Paged[T any] struct {
	Data     []T   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// normalizePage clamps page to >= 1 and size to [1, MaxPageSize], with
// DefaultPageSize for zero.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return page, size
}

// Clock returns the current time.  Tests substitute a fixed one.
type Clock func() time.Time

// now returns the clock's time in UTC at the precision stored in the
// database.
func (c Clock) now() time.Time {
	if c == nil {
		c = time.Now
	}
	return c().UTC().Truncate(time.Second)
}

// EventPublisher hands domain events to the broker.  queue.Publisher and
// queue.NopPublisher implement it.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// emit publishes ev after a successful commit.  Failures are counted and
// logged; they never undo the committed state.
func emit(ctx context.Context, pub EventPublisher, log *slog.Logger, ev queue.Event) {
	if pub == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	if err := pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		observability.ObservePublishFailure()
		log.Warn("event publish failed", "event", ev.Type, "err", err)
	}
}

// withTx runs fn inside a transaction and commits when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// checkGeo validates a radius search: all three values or none, in range,
// and sorting by distance only with them.
func checkGeo(lat, lng, radiusKm *float64, sortBy string) error {
	n := 0
	for _, p := range []*float64{lat, lng, radiusKm} {
		if p != nil {
			n++
		}
	}
	switch {
	case n != 0 && n != 3:
		return Validation("lat, lng and radius_km must be given together")
	case n == 0 && sortBy == "distance":
		return Validation("sorting by distance needs lat, lng and radius_km")
	case n == 0:
		return nil
	case *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180:
		return Validation("coordinates out of range")
	case *radiusKm <= 0:
		return Validation("radius_km must be positive")
	}
	return nil
}
