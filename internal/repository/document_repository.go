package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/foodshare/internal/model"
)

// DocumentRepo persists document metadata.  The file bytes live in the
// blob store under StorageKey.
type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo { return &DocumentRepo{db: db} }

// DB exposes the underlying handle so services can open transactions.
func (r *DocumentRepo) DB() *sql.DB { return r.db }

const documentColumns = "id, user_id, kind, storage_key, original_name, content_type, size_bytes, status, comment, submitted_at, updated_at"

func scanDocument(row interface{ Scan(...any) error }) (model.Document, error) {
	var (
		d       model.Document
		comment sql.NullString
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Kind, &d.StorageKey, &d.OriginalName, &d.ContentType,
		&d.SizeBytes, &d.Status, &comment, &d.SubmittedAt, &d.UpdatedAt)
	if err != nil {
		return d, notFound(err)
	}
	d.Comment = nullString(comment)
	return d, nil
}

// Create inserts a PENDING document and returns the stored row.
func (r *DocumentRepo) Create(ctx context.Context, d model.Document) (model.Document, error) {
	now := stamp()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO documents (user_id, kind, storage_key, original_name, content_type, size_bytes, status, comment, submitted_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)",
		d.UserID, d.Kind, d.StorageKey, d.OriginalName, d.ContentType, d.SizeBytes, model.DocumentPending, d.Comment, now, now)
	if err != nil {
		if isDuplicate(err) {
			return model.Document{}, ErrDuplicate
		}
		return model.Document{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Document{}, err
	}
	return r.get(ctx, r.db, uint64(id))
}

func (r *DocumentRepo) get(ctx context.Context, q querier, id uint64) (model.Document, error) {
	return scanDocument(q.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id=?", id))
}

func (r *DocumentRepo) GetByID(ctx context.Context, id uint64) (model.Document, error) {
	return r.get(ctx, r.db, id)
}

func (r *DocumentRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Document, error) {
	return r.get(ctx, tx, id)
}

// UpdateReviewTx records an admin decision.  The comment is replaced only
// when one is given.
func (r *DocumentRepo) UpdateReviewTx(ctx context.Context, tx *sql.Tx, id uint64, status string, comment *string) error {
	q := "UPDATE documents SET status=?, updated_at=?"
	args := []any{status, stamp()}
	if comment != nil {
		q += ", comment=?"
		args = append(args, *comment)
	}
	res, err := tx.ExecContext(ctx, q+" WHERE id=?", append(args, id)...)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

// Delete removes the metadata row.  The caller deletes the blob.  With
// allowed statuses the row is only removed while it is in one of them;
// a row in any other status is kept and ErrConflict is returned.
func (r *DocumentRepo) Delete(ctx context.Context, id uint64, allowed ...string) error {
	q := "DELETE FROM documents WHERE id=?"
	args := []any{id}
	if len(allowed) > 0 {
		q += " AND status IN (?" + strings.Repeat(",?", len(allowed)-1) + ")"
		for _, st := range allowed {
			args = append(args, st)
		}
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if expectOne(res) == nil {
		return nil
	}
	if len(allowed) == 0 {
		return ErrNotFound
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

// ListByUser returns every document of one account, newest first.
func (r *DocumentRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE user_id=? ORDER BY submitted_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DocumentFilter narrows List.
type DocumentFilter struct {
	UserID   uint64
	Status   string
	Kind     string
	Page     int
	PageSize int
}

// List returns one page of documents, newest first, plus the total count.
func (r *DocumentRepo) List(ctx context.Context, f DocumentFilter) ([]model.Document, int64, error) {
	where := []string{}
	args := []any{}
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE "+cond+" ORDER BY submitted_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, f.PageSize, (f.Page-1)*f.PageSize)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Document, 0, f.PageSize)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}
