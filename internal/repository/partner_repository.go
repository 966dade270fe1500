package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/foodshare/internal/model"
)

// businesses and organizations share one shape, so both repositories are
// thin wrappers over partnerTable.  Rows are scanned as model.Business and
// converted for organizations.
type partnerTable struct {
	db    *sql.DB
	table string
}

const partnerColumns = "id, owner_user_id, name, description, address, postal_code, locality, canton, latitude, longitude, website, registration_id, approved, created_at, updated_at"

func scanPartner(row interface{ Scan(...any) error }) (model.Business, error) {
	var (
		b         model.Business
		desc, web sql.NullString
		lat, lng  sql.NullFloat64
	)
	err := row.Scan(&b.ID, &b.OwnerUserID, &b.Name, &desc, &b.Address, &b.PostalCode, &b.Locality, &b.Canton,
		&lat, &lng, &web, &b.RegistrationID, &b.Approved, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, notFound(err)
	}
	b.Description = nullString(desc)
	b.Website = nullString(web)
	b.Latitude = nullFloat(lat)
	b.Longitude = nullFloat(lng)
	return b, nil
}

func (p partnerTable) create(ctx context.Context, q querier, owner uint64, in model.PartnerProfile) (model.Business, error) {
	now := stamp()
	res, err := q.ExecContext(ctx,
		"INSERT INTO "+p.table+" (owner_user_id, name, description, address, postal_code, locality, canton, latitude, longitude, website, registration_id, approved, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		owner, in.Name, in.Description, in.Address, in.PostalCode, in.Locality, in.Canton,
		in.Latitude, in.Longitude, in.Website, in.RegistrationID, false, now, now)
	if err != nil {
		if isDuplicate(err) {
			return model.Business{}, ErrDuplicate
		}
		return model.Business{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Business{}, err
	}
	return p.get(ctx, q, uint64(id))
}

func (p partnerTable) get(ctx context.Context, q querier, id uint64) (model.Business, error) {
	return scanPartner(q.QueryRowContext(ctx, "SELECT "+partnerColumns+" FROM "+p.table+" WHERE id=?", id))
}

func (p partnerTable) byOwner(ctx context.Context, q querier, owner uint64) (model.Business, error) {
	return scanPartner(q.QueryRowContext(ctx,
		"SELECT "+partnerColumns+" FROM "+p.table+" WHERE owner_user_id=? ORDER BY id LIMIT 1", owner))
}

func (p partnerTable) update(ctx context.Context, id uint64, in model.PartnerProfile) (model.Business, error) {
	res, err := p.db.ExecContext(ctx,
		"UPDATE "+p.table+" SET name=?, description=?, address=?, postal_code=?, locality=?, canton=?, latitude=?, longitude=?, website=?, registration_id=?, updated_at=? WHERE id=?",
		in.Name, in.Description, in.Address, in.PostalCode, in.Locality, in.Canton,
		in.Latitude, in.Longitude, in.Website, in.RegistrationID, stamp(), id)
	if err != nil {
		if isDuplicate(err) {
			return model.Business{}, ErrDuplicate
		}
		return model.Business{}, err
	}
	if err := expectOne(res); err != nil {
		return model.Business{}, ErrNotFound
	}
	return p.get(ctx, p.db, id)
}

func (p partnerTable) setApproved(ctx context.Context, q querier, id uint64, approved bool) error {
	res, err := q.ExecContext(ctx, "UPDATE "+p.table+" SET approved=?, updated_at=? WHERE id=?", approved, stamp(), id)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

// BusinessRepo persists rows of the businesses table.
type BusinessRepo struct{ t partnerTable }

func NewBusinessRepo(db *sql.DB) *BusinessRepo {
	return &BusinessRepo{t: partnerTable{db: db, table: "businesses"}}
}

func (r *BusinessRepo) Create(ctx context.Context, owner uint64, in model.PartnerProfile) (model.Business, error) {
	return r.t.create(ctx, r.t.db, owner, in)
}

func (r *BusinessRepo) CreateTx(ctx context.Context, tx *sql.Tx, owner uint64, in model.PartnerProfile) (model.Business, error) {
	return r.t.create(ctx, tx, owner, in)
}

func (r *BusinessRepo) GetByID(ctx context.Context, id uint64) (model.Business, error) {
	return r.t.get(ctx, r.t.db, id)
}

func (r *BusinessRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Business, error) {
	return r.t.get(ctx, tx, id)
}

func (r *BusinessRepo) GetByOwner(ctx context.Context, owner uint64) (model.Business, error) {
	return r.t.byOwner(ctx, r.t.db, owner)
}

func (r *BusinessRepo) GetByOwnerTx(ctx context.Context, tx *sql.Tx, owner uint64) (model.Business, error) {
	return r.t.byOwner(ctx, tx, owner)
}

func (r *BusinessRepo) Update(ctx context.Context, id uint64, in model.PartnerProfile) (model.Business, error) {
	return r.t.update(ctx, id, in)
}

func (r *BusinessRepo) SetApproved(ctx context.Context, id uint64, approved bool) error {
	return r.t.setApproved(ctx, r.t.db, id, approved)
}

func (r *BusinessRepo) SetApprovedTx(ctx context.Context, tx *sql.Tx, id uint64, approved bool) error {
	return r.t.setApproved(ctx, tx, id, approved)
}

// OrganizationRepo persists rows of the organizations table.
type OrganizationRepo struct{ t partnerTable }

func NewOrganizationRepo(db *sql.DB) *OrganizationRepo {
	return &OrganizationRepo{t: partnerTable{db: db, table: "organizations"}}
}

func (r *OrganizationRepo) Create(ctx context.Context, owner uint64, in model.PartnerProfile) (model.Organization, error) {
	b, err := r.t.create(ctx, r.t.db, owner, in)
	return model.Organization(b), err
}

func (r *OrganizationRepo) CreateTx(ctx context.Context, tx *sql.Tx, owner uint64, in model.PartnerProfile) (model.Organization, error) {
	b, err := r.t.create(ctx, tx, owner, in)
	return model.Organization(b), err
}

func (r *OrganizationRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Organization, error) {
	b, err := r.t.get(ctx, tx, id)
	return model.Organization(b), err
}

func (r *OrganizationRepo) GetByID(ctx context.Context, id uint64) (model.Organization, error) {
	b, err := r.t.get(ctx, r.t.db, id)
	return model.Organization(b), err
}

func (r *OrganizationRepo) GetByOwner(ctx context.Context, owner uint64) (model.Organization, error) {
	b, err := r.t.byOwner(ctx, r.t.db, owner)
	return model.Organization(b), err
}

func (r *OrganizationRepo) GetByOwnerTx(ctx context.Context, tx *sql.Tx, owner uint64) (model.Organization, error) {
	b, err := r.t.byOwner(ctx, tx, owner)
	return model.Organization(b), err
}

func (r *OrganizationRepo) Update(ctx context.Context, id uint64, in model.PartnerProfile) (model.Organization, error) {
	b, err := r.t.update(ctx, id, in)
	return model.Organization(b), err
}

func (r *OrganizationRepo) SetApproved(ctx context.Context, id uint64, approved bool) error {
	return r.t.setApproved(ctx, r.t.db, id, approved)
}

func (r *OrganizationRepo) SetApprovedTx(ctx context.Context, tx *sql.Tx, id uint64, approved bool) error {
	return r.t.setApproved(ctx, tx, id, approved)
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
