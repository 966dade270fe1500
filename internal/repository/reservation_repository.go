package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/foodshare/internal/model"
)

// ReservationRepo provides persistence for reservations.  Writes that
// change a status take the expected current status and fail with
// ErrConflict when another writer got there first.  All timestamps are
// stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle so services can open transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

const reservationColumns = "r.id, r.listing_id, r.organization_id, r.collect_at, r.status, r.comment, r.idempotency_key, r.created_at, r.updated_at"

// reservationViewFrom joins the parties used for authorization and display.
const reservationViewFrom = ` FROM reservations r
	JOIN listings l ON l.id = r.listing_id
	JOIN businesses b ON b.id = l.business_id
	JOIN organizations o ON o.id = r.organization_id`

func scanReservation(row interface{ Scan(...any) error }, extra ...any) (model.Reservation, error) {
	var (
		res           model.Reservation
		comment, idem sql.NullString
	)
	dest := []any{&res.ID, &res.ListingID, &res.OrganizationID, &res.CollectAt, &res.Status, &comment, &idem, &res.CreatedAt, &res.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return res, notFound(err)
	}
	res.Comment = nullString(comment)
	res.IdempotencyKey = nullString(idem)
	return res, nil
}

func scanReservationView(row interface{ Scan(...any) error }) (model.ReservationView, error) {
	var v model.ReservationView
	res, err := scanReservation(row, &v.ListingTitle, &v.ListingStatus, &v.BusinessID, &v.BusinessOwnerID, &v.OrganizationName, &v.OrganizationOwnerID)
	if err != nil {
		return v, err
	}
	v.Reservation = res
	return v, nil
}

const reservationViewSelect = "SELECT " + reservationColumns + ", l.title, l.status, b.id, b.owner_user_id, o.name, o.owner_user_id" + reservationViewFrom

// CreateTx inserts a PENDING reservation inside tx and returns the stored
// row.  A reused idempotency key for the same organization yields
// ErrDuplicate.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, in model.Reservation) (model.Reservation, error) {
	now := stamp()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (listing_id, organization_id, collect_at, status, comment, idempotency_key, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		in.ListingID, in.OrganizationID, in.CollectAt.UTC().Truncate(time.Second), model.ReservationPending,
		in.Comment, in.IdempotencyKey, now, now)
	if err != nil {
		if isDuplicate(err) {
			return model.Reservation{}, ErrDuplicate
		}
		return model.Reservation{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Reservation{}, err
	}
	return r.get(ctx, tx, uint64(id))
}

func (r *ReservationRepo) get(ctx context.Context, q querier, id uint64) (model.Reservation, error) {
	return scanReservation(q.QueryRowContext(ctx, "SELECT "+reservationColumns+" FROM reservations r WHERE r.id=?", id))
}

// GetByIDTx loads a bare reservation inside tx.
func (r *ReservationRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	return r.get(ctx, tx, id)
}

// GetView loads a reservation with listing, business and organization
// fields.
func (r *ReservationRepo) GetView(ctx context.Context, id uint64) (model.ReservationView, error) {
	return scanReservationView(r.db.QueryRowContext(ctx, reservationViewSelect+" WHERE r.id=?", id))
}

// GetViewTx is GetView inside tx.
func (r *ReservationRepo) GetViewTx(ctx context.Context, tx *sql.Tx, id uint64) (model.ReservationView, error) {
	return scanReservationView(tx.QueryRowContext(ctx, reservationViewSelect+" WHERE r.id=?", id))
}

func (r *ReservationRepo) byKey(ctx context.Context, q querier, orgID uint64, key string) (model.Reservation, error) {
	return scanReservation(q.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations r WHERE r.organization_id=? AND r.idempotency_key=?", orgID, key))
}

// FindByIdempotencyKey returns the reservation an organization created
// with key, or ErrNotFound.
func (r *ReservationRepo) FindByIdempotencyKey(ctx context.Context, orgID uint64, key string) (model.Reservation, error) {
	return r.byKey(ctx, r.db, orgID, key)
}

// FindByIdempotencyKeyTx is FindByIdempotencyKey inside tx.
func (r *ReservationRepo) FindByIdempotencyKeyTx(ctx context.Context, tx *sql.Tx, orgID uint64, key string) (model.Reservation, error) {
	return r.byKey(ctx, tx, orgID, key)
}

// UpdateStatusTx moves a reservation from one status to another.  A nil
// comment keeps the stored one.  ErrConflict means the row was no longer
// in status from.
func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string, comment *string) error {
	q := "UPDATE reservations SET status=?, updated_at=?"
	args := []any{to, stamp()}
	if comment != nil {
		q += ", comment=?"
		args = append(args, *comment)
	}
	q += " WHERE id=? AND status=?"
	args = append(args, id, from)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteTx removes a reservation that is still in status from.
func (r *ReservationRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64, from string) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM reservations WHERE id=? AND status=?", id, from)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ActiveForListingTx returns the PENDING or ACCEPTED reservations of a
// listing.  A consistent database holds at most one.
func (r *ReservationRepo) ActiveForListingTx(ctx context.Context, tx *sql.Tx, listingID uint64) ([]model.Reservation, error) {
	return r.active(ctx, tx, "r.listing_id=?", listingID)
}

// ActiveForOrganizationTx returns the PENDING or ACCEPTED reservations
// held by an organization.
func (r *ReservationRepo) ActiveForOrganizationTx(ctx context.Context, tx *sql.Tx, orgID uint64) ([]model.Reservation, error) {
	return r.active(ctx, tx, "r.organization_id=?", orgID)
}

func (r *ReservationRepo) active(ctx context.Context, tx *sql.Tx, cond string, id uint64) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations r WHERE "+cond+" AND r.status IN (?,?) ORDER BY r.id",
		id, model.ReservationPending, model.ReservationAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// DeleteByListingTx removes every reservation of a listing.
func (r *ReservationRepo) DeleteByListingTx(ctx context.Context, tx *sql.Tx, listingID uint64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM reservations WHERE listing_id=?", listingID)
	return err
}

// ReservationFilter narrows List.  At most one of OrganizationID and
// BusinessID is expected; zero for both lists everything.
type ReservationFilter struct {
	OrganizationID uint64
	BusinessID     uint64
	Status         string
	From, To       *time.Time // created_at range, inclusive
	Page           int
	PageSize       int
}

// List returns one page of reservation views, newest first, plus the total.
func (r *ReservationRepo) List(ctx context.Context, f ReservationFilter) ([]model.ReservationView, int64, error) {
	where := []string{}
	args := []any{}
	if f.OrganizationID != 0 {
		where = append(where, "r.organization_id = ?")
		args = append(args, f.OrganizationID)
	}
	if f.BusinessID != 0 {
		where = append(where, "l.business_id = ?")
		args = append(args, f.BusinessID)
	}
	if f.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		where = append(where, "r.created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "r.created_at <= ?")
		args = append(args, f.To.UTC())
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+reservationViewFrom+" WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := reservationViewSelect + " WHERE " + cond + " ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, q, append(args, f.PageSize, (f.Page-1)*f.PageSize)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.ReservationView, 0, f.PageSize)
	for rows.Next() {
		v, err := scanReservationView(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}
