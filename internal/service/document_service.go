package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/observability"
	"github.com/iliyamo/foodshare/internal/queue"
	"github.com/iliyamo/foodshare/internal/repository"
	"github.com/iliyamo/foodshare/internal/storage"
)

// DefaultMaxUploadBytes caps a document upload when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

const maxDocumentComment = 500

// allowedUploads maps a sniffed content type to the stored extension.
var allowedUploads = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// BlobStore keeps document bytes.  storage.Local implements it.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Upload is one submitted file.
type Upload struct {
	Filename string
	Body     io.Reader
	Kind     string
	Comment  *string
}

// DocumentStatus summarises the caller's submissions.
type DocumentStatus struct {
	Documents   []model.Document `json:"documents"`
	HasPending  bool             `json:"has_pending"`
	HasAccepted bool             `json:"has_accepted"`
}

// DocumentService is the eligibility gate.  Accepting a BUSINESS or
// ORGANIZATION document approves the submitter's entity in the same
// transaction as the review.
type DocumentService struct {
	DB            *sql.DB
	Documents     *repository.DocumentRepo
	Businesses    *repository.BusinessRepo
	Organizations *repository.OrganizationRepo
	Blobs         BlobStore
	Events        EventPublisher
	Log           *slog.Logger
	MaxBytes      int64
}

func NewDocumentService(db *sql.DB, docs *repository.DocumentRepo, businesses *repository.BusinessRepo,
	orgs *repository.OrganizationRepo, blobs BlobStore, events EventPublisher, log *slog.Logger, maxBytes int64) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &DocumentService{
		DB: db, Documents: docs, Businesses: businesses, Organizations: orgs,
		Blobs: blobs, Events: events, Log: log, MaxBytes: maxBytes,
	}
}

// Submit stores the file under a generated key and records it as PENDING.
// The content type is sniffed from the bytes; the client's header and
// filename are never trusted.
func (s *DocumentService) Submit(ctx context.Context, actor Actor, up Upload) (model.Document, error) {
	kind := strings.ToUpper(strings.TrimSpace(up.Kind))
	if !model.ValidDocumentKind(kind) {
		return model.Document{}, Validation("kind must be one of IDENTITY, BUSINESS, ORGANIZATION, OTHER")
	}
	if up.Comment != nil && utf8.RuneCountInString(*up.Comment) > maxDocumentComment {
		return model.Document{}, Validation("comment must be at most %d characters", maxDocumentComment)
	}
	if up.Body == nil {
		return model.Document{}, Validation("file is required")
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, s.MaxBytes+1))
	if err != nil {
		return model.Document{}, err
	}
	if len(data) == 0 {
		return model.Document{}, Validation("file is empty")
	}
	if int64(len(data)) > s.MaxBytes {
		return model.Document{}, Validation("file exceeds %d bytes", s.MaxBytes)
	}
	ctype := http.DetectContentType(data)
	if i := strings.IndexByte(ctype, ';'); i >= 0 {
		ctype = ctype[:i]
	}
	ext, ok := allowedUploads[ctype]
	if !ok {
		return model.Document{}, Validation("file type %s is not accepted; use PDF, JPEG or PNG", ctype)
	}

	key := storage.NewKey(actor.UserID, ext)
	if err := s.Blobs.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return model.Document{}, err
	}
	doc, err := s.Documents.Create(ctx, model.Document{
		UserID:       actor.UserID,
		Kind:         kind,
		StorageKey:   key,
		OriginalName: displayName(up.Filename),
		ContentType:  ctype,
		SizeBytes:    int64(len(data)),
		Comment:      up.Comment,
	})
	if err != nil {
		if derr := s.Blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.Log.Error("orphaned document blob", "key", key, "err", derr)
		}
		return model.Document{}, err
	}

	s.Log.Info("document submitted", "document_id", doc.ID, "user_id", actor.UserID, "kind", kind)
	emit(ctx, s.Events, s.Log, queue.Event{
		Type: queue.DocumentSubmitted, ActorID: actor.UserID, DocumentID: doc.ID, AccountID: actor.UserID, Status: doc.Status,
	})
	return doc, nil
}

// displayName keeps the base name of a client filename for display.
func displayName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	if utf8.RuneCountInString(name) > 255 {
		name = string([]rune(name)[:255])
	}
	return name
}

// Review records an admin decision.  Re-reviewing is allowed; rejecting
// never revokes an approval granted earlier.
func (s *DocumentService) Review(ctx context.Context, actor Actor, id uint64, decision string, comment *string) (model.Document, error) {
	if !actor.IsAdmin() {
		return model.Document{}, Forbidden("only an admin may review documents")
	}
	decision = strings.ToUpper(strings.TrimSpace(decision))
	if decision != model.DocumentAccepted && decision != model.DocumentRejected {
		return model.Document{}, Validation("decision must be ACCEPTED or REJECTED")
	}
	if comment != nil && utf8.RuneCountInString(*comment) > maxDocumentComment {
		return model.Document{}, Validation("comment must be at most %d characters", maxDocumentComment)
	}

	var doc model.Document
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		doc, err = s.Documents.GetByIDTx(ctx, tx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("document %d not found", id)
		}
		if err != nil {
			return err
		}
		if err := s.Documents.UpdateReviewTx(ctx, tx, id, decision, comment); err != nil {
			return err
		}
		if decision == model.DocumentAccepted {
			if err := s.approveEntityTx(ctx, tx, doc); err != nil {
				return err
			}
		}
		doc, err = s.Documents.GetByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Document{}, err
	}

	observability.ObserveDocumentReview(doc.Kind, decision)
	s.Log.Info("document reviewed", "document_id", id, "kind", doc.Kind, "decision", decision, "actor_id", actor.UserID)
	emit(ctx, s.Events, s.Log, queue.Event{
		Type: queue.DocumentReviewed, ActorID: actor.UserID, DocumentID: id, AccountID: doc.UserID, Status: decision,
	})
	return doc, nil
}

// approveEntityTx applies the side effect of an accepted document.
func (s *DocumentService) approveEntityTx(ctx context.Context, tx *sql.Tx, doc model.Document) error {
	switch doc.Kind {
	case model.DocumentBusiness:
		b, err := s.Businesses.GetByOwnerTx(ctx, tx, doc.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			s.Log.Warn("accepted business document without a business", "document_id", doc.ID, "user_id", doc.UserID)
			return nil
		}
		if err != nil {
			return err
		}
		return s.Businesses.SetApprovedTx(ctx, tx, b.ID, true)
	case model.DocumentOrganization:
		o, err := s.Organizations.GetByOwnerTx(ctx, tx, doc.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			s.Log.Warn("accepted organization document without an organization", "document_id", doc.ID, "user_id", doc.UserID)
			return nil
		}
		if err != nil {
			return err
		}
		return s.Organizations.SetApprovedTx(ctx, tx, o.ID, true)
	}
	s.Log.Info("accepted document has no approval effect", "document_id", doc.ID, "kind", doc.Kind)
	return nil
}

// owned loads a document the actor may see.
func (s *DocumentService) owned(ctx context.Context, actor Actor, id uint64) (model.Document, error) {
	doc, err := s.Documents.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return doc, NotFound("document %d not found", id)
	}
	if err != nil {
		return doc, err
	}
	if doc.UserID != actor.UserID && !actor.IsAdmin() {
		return model.Document{}, Forbidden("not your document")
	}
	return doc, nil
}

// Delete removes a document and its file.  Owners may only delete while
// the document is PENDING or REJECTED.
func (s *DocumentService) Delete(ctx context.Context, actor Actor, id uint64) error {
	doc, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	var allowed []string
	if !actor.IsAdmin() {
		if doc.Status == model.DocumentAccepted {
			return Conflict("an accepted document can no longer be deleted")
		}
		// A review may land after the read above.
		allowed = []string{model.DocumentPending, model.DocumentRejected}
	}
	if err := s.Documents.Delete(ctx, id, allowed...); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NotFound("document %d not found", id)
		case errors.Is(err, repository.ErrConflict):
			return Conflict("an accepted document can no longer be deleted")
		}
		return err
	}
	if err := s.Blobs.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.Log.Error("orphaned document blob", "key", doc.StorageKey, "document_id", id, "err", err)
	}
	s.Log.Info("document deleted", "document_id", id, "actor_id", actor.UserID)
	return nil
}

// Status lists the caller's documents with summary flags.
func (s *DocumentService) Status(ctx context.Context, actor Actor) (DocumentStatus, error) {
	docs, err := s.Documents.ListByUser(ctx, actor.UserID)
	if err != nil {
		return DocumentStatus{}, err
	}
	st := DocumentStatus{Documents: docs}
	for _, d := range docs {
		switch d.Status {
		case model.DocumentPending:
			st.HasPending = true
		case model.DocumentAccepted:
			st.HasAccepted = true
		}
	}
	return st, nil
}

func (s *DocumentService) Get(ctx context.Context, actor Actor, id uint64) (model.Document, error) {
	return s.owned(ctx, actor, id)
}

// Download opens the stored file.  The caller closes the reader.
func (s *DocumentService) Download(ctx context.Context, actor Actor, id uint64) (model.Document, io.ReadCloser, error) {
	doc, err := s.owned(ctx, actor, id)
	if err != nil {
		return doc, nil, err
	}
	rc, err := s.Blobs.Open(ctx, doc.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return doc, nil, NotFound("file of document %d is missing", id)
	}
	if err != nil {
		return doc, nil, err
	}
	return doc, rc, nil
}

// DocumentQuery narrows the admin list.
type DocumentQuery struct {
	UserID   uint64
	Status   string
	Kind     string
	Page     int
	PageSize int
}

// List pages through every document.  Admin only.
func (s *DocumentService) List(ctx context.Context, actor Actor, q DocumentQuery) (Paged[model.Document], error) {
	if !actor.IsAdmin() {
		return Paged[model.Document]{}, Forbidden("admin only")
	}
	switch q.Status {
	case "", model.DocumentPending, model.DocumentAccepted, model.DocumentRejected:
	default:
		return Paged[model.Document]{}, Validation("unknown document status %q", q.Status)
	}
	if q.Kind != "" && !model.ValidDocumentKind(q.Kind) {
		return Paged[model.Document]{}, Validation("unknown document kind %q", q.Kind)
	}
	page, size := normalizePage(q.Page, q.PageSize)
	rows, total, err := s.Documents.List(ctx, repository.DocumentFilter{
		UserID: q.UserID, Status: q.Status, Kind: q.Kind, Page: page, PageSize: size,
	})
	if err != nil {
		return Paged[model.Document]{}, err
	}
	return Paged[model.Document]{Data: rows, Total: total, Page: page, PageSize: size}, nil
}

// purgeBlobs deletes the files of docs, logging any it cannot remove.
func (s *DocumentService) purgeBlobs(ctx context.Context, docs []model.Document) {
	for _, d := range docs {
		if err := s.Blobs.Delete(ctx, d.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.Log.Error("orphaned document blob", "key", d.StorageKey, "document_id", d.ID, "err", err)
		}
	}
}
