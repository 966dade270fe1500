package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/utils"
)

// stamp returns the current time as stored in DATETIME columns.
func stamp() time.Time { return time.Now().UTC().Truncate(time.Second) }

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// NewUser carries registration fields.  Password is plain text and hashed
// by Create.
type NewUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Role      string
}

const userColumns = "id,email,password_hash,first_name,last_name,phone,role,created_at,updated_at"

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u     model.User
		phone sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if phone.Valid {
		p := phone.String
		u.Phone = &p
	}
	return u, err
}

// Create inserts user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, in NewUser, cost int) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	hash, err := utils.HashPassword(in.Password, cost)
	if err != nil {
		return 0, err
	}
	now := stamp()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, first_name, last_name, phone, role, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?)",
		email, hash, in.FirstName, in.LastName, in.Phone, in.Role, now, now)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
	return u, notFound(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	return u, notFound(err)
}

// GetByIDTx is GetByID inside a transaction.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	return u, notFound(err)
}

// SetRoleTx replaces the role label.
func (r *UserRepo) SetRoleTx(ctx context.Context, tx *sql.Tx, id uint64, role string) error {
	res, err := tx.ExecContext(ctx, "UPDATE users SET role=?, updated_at=? WHERE id=?", role, stamp(), id)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile replaces the editable personal fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, first, last string, phone *string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET first_name=?, last_name=?, phone=?, updated_at=? WHERE id=?", first, last, phone, stamp(), id)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

// SetPassword stores a new bcrypt hash, but only while the stored hash is
// still oldHash; a concurrent change makes it return ErrConflict.
func (r *UserRepo) SetPassword(ctx context.Context, id uint64, oldHash, newHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=? WHERE id=? AND password_hash=?", newHash, stamp(), id, oldHash)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteTx removes a user.  Owned rows go with it through ON DELETE CASCADE.
func (r *UserRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

// UserFilter narrows List.
type UserFilter struct {
	Role     string
	Search   string
	Page     int
	PageSize int
}

// List returns one page of users ordered newest first plus the total count.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]model.User, int64, error) {
	where := []string{}
	args := []any{}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, "(LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)")
		args = append(args, like, like, like)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := "SELECT " + userColumns + " FROM users WHERE " + cond + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.DB.QueryContext(ctx, q, append(args, f.PageSize, (f.Page-1)*f.PageSize)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.User, 0, f.PageSize)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}
