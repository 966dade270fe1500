package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/foodshare/internal/model"
)

// StatsRepo runs the aggregate queries behind the admin dashboard.
type StatsRepo struct{ db *sql.DB }

func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

// AccountStats counts accounts and profiles.
type AccountStats struct {
	UsersByRole        map[string]int64 `json:"users_by_role"`
	TotalBusinesses    int64            `json:"total_businesses"`
	TotalOrganizations int64            `json:"total_organizations"`
	PendingValidations int64            `json:"pending_validations"`
}

// ListingStats sums listing quantities.  Expired counts AVAILABLE rows
// whose window has already closed.
type ListingStats struct {
	ByStatus             map[string]int64 `json:"by_status"`
	TotalCount           int64            `json:"total_count"`
	Expired              int64            `json:"expired"`
	AvailableQuantity    float64          `json:"available_quantity"`
	DistributedThisMonth float64          `json:"distributed_this_month"`
}

// ReservationStats counts reservations per status.
type ReservationStats struct {
	ByStatus map[string]int64 `json:"by_status"`
	Total    int64            `json:"total"`
	Pending  int64            `json:"pending"`
	Accepted int64            `json:"accepted"`
}

func (r *StatsRepo) groupCount(ctx context.Context, query string, args ...any) (map[string]int64, int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := map[string]int64{}
	var total int64
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, 0, err
		}
		out[key] = n
		total += n
	}
	return out, total, rows.Err()
}

func (r *StatsRepo) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *StatsRepo) Accounts(ctx context.Context) (AccountStats, error) {
	var (
		st  AccountStats
		err error
	)
	if st.UsersByRole, _, err = r.groupCount(ctx, "SELECT role, COUNT(*) FROM users GROUP BY role"); err != nil {
		return st, err
	}
	if st.TotalBusinesses, err = r.count(ctx, "SELECT COUNT(*) FROM businesses"); err != nil {
		return st, err
	}
	if st.TotalOrganizations, err = r.count(ctx, "SELECT COUNT(*) FROM organizations"); err != nil {
		return st, err
	}
	st.PendingValidations, err = r.count(ctx,
		"SELECT (SELECT COUNT(*) FROM businesses WHERE approved = ?) + (SELECT COUNT(*) FROM organizations WHERE approved = ?)",
		false, false)
	return st, err
}

// Listings aggregates at now; the month is now's calendar month in UTC.
func (r *StatsRepo) Listings(ctx context.Context, now time.Time) (ListingStats, error) {
	var (
		st  ListingStats
		err error
	)
	if st.ByStatus, st.TotalCount, err = r.groupCount(ctx, "SELECT status, COUNT(*) FROM listings GROUP BY status"); err != nil {
		return st, err
	}
	if st.Expired, err = r.count(ctx,
		"SELECT COUNT(*) FROM listings WHERE status = ? AND available_until <= ?", model.ListingAvailable, now); err != nil {
		return st, err
	}
	if err = r.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(quantity), 0) FROM listings WHERE status = ? AND available_until > ?",
		model.ListingAvailable, now).Scan(&st.AvailableQuantity); err != nil {
		return st, err
	}
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	err = r.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(quantity), 0) FROM listings WHERE status = ? AND updated_at >= ?",
		model.ListingDistributed, monthStart).Scan(&st.DistributedThisMonth)
	return st, err
}

func (r *StatsRepo) Reservations(ctx context.Context) (ReservationStats, error) {
	var (
		st  ReservationStats
		err error
	)
	st.ByStatus, st.Total, err = r.groupCount(ctx, "SELECT status, COUNT(*) FROM reservations GROUP BY status")
	st.Pending = st.ByStatus[model.ReservationPending]
	st.Accepted = st.ByStatus[model.ReservationAccepted]
	return st, err
}
