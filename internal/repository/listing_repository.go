package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/foodshare/internal/model"
)

// ListingRepo provides persistence for surplus-food listings.  Status
// changes are conditional updates so that two writers racing on the same
// row cannot both succeed; the loser gets ErrConflict.
type ListingRepo struct {
	db *sql.DB
}

func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

// DB exposes the underlying handle so services can open transactions.
func (r *ListingRepo) DB() *sql.DB { return r.db }

const listingColumns = "l.id, l.business_id, l.title, l.description, l.quantity, l.unit, l.available_from, l.available_until, l.urgent, l.allergens, l.temperature, l.status, l.created_at, l.updated_at"

func scanListing(row interface{ Scan(...any) error }, extra ...any) (model.Listing, error) {
	var (
		l                  model.Listing
		desc, allerg, temp sql.NullString
	)
	dest := []any{&l.ID, &l.BusinessID, &l.Title, &desc, &l.Quantity, &l.Unit, &l.AvailableFrom, &l.AvailableUntil,
		&l.Urgent, &allerg, &temp, &l.Status, &l.CreatedAt, &l.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return l, notFound(err)
	}
	l.Description = nullString(desc)
	l.Allergens = nullString(allerg)
	l.Temperature = nullString(temp)
	return l, nil
}

// Create inserts a listing and returns the stored row.
func (r *ListingRepo) Create(ctx context.Context, l model.Listing) (model.Listing, error) {
	now := stamp()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO listings (business_id, title, description, quantity, unit, available_from, available_until, urgent, allergens, temperature, status, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.BusinessID, l.Title, l.Description, l.Quantity, l.Unit, l.AvailableFrom, l.AvailableUntil,
		l.Urgent, l.Allergens, l.Temperature, l.Status, now, now)
	if err != nil {
		return model.Listing{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Listing{}, err
	}
	return r.get(ctx, r.db, uint64(id))
}

func (r *ListingRepo) get(ctx context.Context, q querier, id uint64) (model.Listing, error) {
	return scanListing(q.QueryRowContext(ctx, "SELECT "+listingColumns+" FROM listings l WHERE l.id=?", id))
}

// GetByID loads a listing.
func (r *ListingRepo) GetByID(ctx context.Context, id uint64) (model.Listing, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx loads a listing inside tx.
func (r *ListingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Listing, error) {
	return r.get(ctx, tx, id)
}

// UpdateTx writes every editable column of l.  When requireStatus is not
// empty the row must still carry that status or ErrConflict is returned.
func (r *ListingRepo) UpdateTx(ctx context.Context, tx *sql.Tx, l model.Listing, requireStatus string) (model.Listing, error) {
	q := `UPDATE listings SET title=?, description=?, quantity=?, unit=?, available_from=?, available_until=?,
		urgent=?, allergens=?, temperature=?, status=?, updated_at=? WHERE id=?`
	args := []any{l.Title, l.Description, l.Quantity, l.Unit, l.AvailableFrom, l.AvailableUntil,
		l.Urgent, l.Allergens, l.Temperature, l.Status, stamp(), l.ID}
	if requireStatus != "" {
		q += " AND status=?"
		args = append(args, requireStatus)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return model.Listing{}, err
	}
	if err := expectOne(res); err != nil {
		return model.Listing{}, err
	}
	return r.get(ctx, tx, l.ID)
}

// TransitionTx moves a listing from one status to another.  It returns
// ErrConflict when the listing is not in status from.
func (r *ListingRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE listings SET status=?, updated_at=? WHERE id=? AND status=?",
		to, stamp(), id, from)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SetStatusTx overwrites the status regardless of the current one.  Only
// the admin override uses it, after settling the reservation side.
func (r *ListingRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, to string) error {
	res, err := tx.ExecContext(ctx, "UPDATE listings SET status=?, updated_at=? WHERE id=?", to, stamp(), id)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

// DeleteTx removes a listing.  When forbidStatus is not empty a listing in
// that status is left alone and ErrConflict is returned.
func (r *ListingRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64, forbidStatus string) error {
	q := "DELETE FROM listings WHERE id=?"
	args := []any{id}
	if forbidStatus != "" {
		q += " AND status<>?"
		args = append(args, forbidStatus)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return expectOne(res)
}
