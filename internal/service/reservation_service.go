package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/observability"
	"github.com/iliyamo/foodshare/internal/queue"
	"github.com/iliyamo/foodshare/internal/repository"
)

var tracer = otel.Tracer("github.com/iliyamo/foodshare/internal/service")

// ReservationService is the reservation engine.  Every write changes a
// reservation and its listing in one transaction, and every status write
// is conditional on the status it read, so concurrent requests resolve to
// one winner and ConflictErrors for the rest.
type ReservationService struct {
	DB            *sql.DB
	Listings      *repository.ListingRepo
	Businesses    *repository.BusinessRepo
	Organizations *repository.OrganizationRepo
	Reservations  *repository.ReservationRepo
	Events        EventPublisher
	Log           *slog.Logger
	Clock         Clock
}

func NewReservationService(db *sql.DB, listings *repository.ListingRepo, businesses *repository.BusinessRepo,
	orgs *repository.OrganizationRepo, reservations *repository.ReservationRepo, events EventPublisher, log *slog.Logger) *ReservationService {
	return &ReservationService{
		DB: db, Listings: listings, Businesses: businesses, Organizations: orgs,
		Reservations: reservations, Events: events, Log: log,
	}
}

// sameRequest rejects an idempotency key reused for a different request.
func sameRequest(prev model.Reservation, in CreateReservation) error {
	if prev.ListingID != in.ListingID || !prev.CollectAt.Equal(in.CollectAt.UTC().Truncate(time.Second)) {
		return Conflict("idempotency key was already used for a different reservation")
	}
	return nil
}

// CreateReservation carries a reservation request.
type CreateReservation struct {
	ListingID      uint64
	CollectAt      time.Time
	Comment        *string
	IdempotencyKey string
}

const maxIdempotencyKey = 100

// finish closes span and counts the outcome of one engine operation.
func finish(span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.ObserveReservation(op, outcome)
	span.End()
}

// Create reserves a listing for the caller's organization.  With an
// idempotency key a retried request returns the reservation the first
// attempt created; replayed reports that case.
func (s *ReservationService) Create(ctx context.Context, actor Actor, in CreateReservation) (res model.Reservation, replayed bool, err error) {
	ctx, span := tracer.Start(ctx, "ReservationService.Create",
		trace.WithAttributes(attribute.Int64("listing.id", int64(in.ListingID))))
	defer func() { finish(span, "create", err) }()

	org, err := s.Organizations.GetByOwner(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return res, false, Forbidden("an organization profile is required to reserve listings")
	}
	if err != nil {
		return res, false, err
	}
	if !org.Approved {
		return res, false, Ineligible("organization %d is not approved yet", org.ID)
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if utf8.RuneCountInString(key) > maxIdempotencyKey {
		return res, false, Validation("idempotency key must be at most %d characters", maxIdempotencyKey)
	}
	if key != "" {
		prev, err := s.Reservations.FindByIdempotencyKey(ctx, org.ID, key)
		if err == nil {
			if err := sameRequest(prev, in); err != nil {
				return res, false, err
			}
			return prev, true, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return res, false, err
		}
	}
	if in.CollectAt.IsZero() {
		return res, false, Validation("collect_at is required")
	}
	collectAt := in.CollectAt.UTC().Truncate(time.Second)

	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		l, err := s.Listings.GetByIDTx(ctx, tx, in.ListingID)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("listing %d not found", in.ListingID)
		}
		if err != nil {
			return err
		}
		if l.Status != model.ListingAvailable {
			return Conflict("listing is %s, not available", l.Status)
		}
		if l.AvailableUntil.Before(s.Clock.now()) {
			return Expired("listing availability ended at %s", l.AvailableUntil.Format(time.RFC3339))
		}
		if collectAt.Before(l.AvailableFrom) || collectAt.After(l.AvailableUntil) {
			return Validation("collect_at must fall between %s and %s",
				l.AvailableFrom.Format(time.RFC3339), l.AvailableUntil.Format(time.RFC3339))
		}
		b, err := s.Businesses.GetByIDTx(ctx, tx, l.BusinessID)
		if err != nil {
			return err
		}
		if !b.Approved {
			return Conflict("the publishing business is not approved")
		}

		if err := s.Listings.TransitionTx(ctx, tx, l.ID, model.ListingAvailable, model.ListingReserved); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return Conflict("listing was reserved concurrently")
			}
			return err
		}
		r := model.Reservation{ListingID: l.ID, OrganizationID: org.ID, CollectAt: collectAt, Comment: in.Comment}
		if key != "" {
			r.IdempotencyKey = &key
		}
		res, err = s.Reservations.CreateTx(ctx, tx, r)
		return err
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// A concurrent retry with the same key won; hand back its row.
		prev, ferr := s.Reservations.FindByIdempotencyKey(ctx, org.ID, key)
		if ferr != nil {
			return res, false, ferr
		}
		if err := sameRequest(prev, in); err != nil {
			return res, false, err
		}
		return prev, true, nil
	}
	if err != nil {
		return model.Reservation{}, false, err
	}

	s.Log.Info("reservation created", "reservation_id", res.ID, "listing_id", res.ListingID, "organization_id", org.ID)
	emit(ctx, s.Events, s.Log, queue.Event{
		Type: queue.ReservationCreated, ActorID: actor.UserID, ReservationID: res.ID,
		ListingID: res.ListingID, OrganizationID: org.ID, Status: res.Status,
	})
	return res, false, nil
}

// party describes how actor relates to a reservation.
type party struct {
	admin, business, organization bool
}

func partyOf(actor Actor, v model.ReservationView) party {
	return party{
		admin:        actor.IsAdmin(),
		business:     v.BusinessOwnerID == actor.UserID,
		organization: v.OrganizationOwnerID == actor.UserID,
	}
}

func (p party) any() bool { return p.admin || p.business || p.organization }

// listingTargetFor returns the listing status a reservation status
// propagates to, or "" for none.
func listingTargetFor(reservationStatus string) string {
	switch reservationStatus {
	case model.ReservationCancelled, model.ReservationRefused:
		return model.ListingAvailable
	case model.ReservationCompleted:
		return model.ListingDistributed
	}
	return ""
}

// Transition moves a reservation to status and propagates the change to
// its listing.  The organization side may only cancel; the business side
// and admins may accept, refuse, complete or cancel.  Terminal
// reservations never move again.
func (s *ReservationService) Transition(ctx context.Context, actor Actor, id uint64, status string, comment *string) (v model.ReservationView, err error) {
	ctx, span := tracer.Start(ctx, "ReservationService.Transition",
		trace.WithAttributes(attribute.Int64("reservation.id", int64(id)), attribute.String("reservation.target", status)))
	defer func() { finish(span, "transition", err) }()

	switch status {
	case model.ReservationAccepted, model.ReservationRefused, model.ReservationCompleted, model.ReservationCancelled:
	default:
		return v, Validation("status must be one of ACCEPTED, REFUSED, COMPLETED, CANCELLED")
	}

	var from string
	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		cur, err := s.Reservations.GetViewTx(ctx, tx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("reservation %d not found", id)
		}
		if err != nil {
			return err
		}
		p := partyOf(actor, cur)
		if !p.any() {
			return Forbidden("not a party to this reservation")
		}
		if model.Terminal(cur.Status) {
			return Conflict("reservation is %s and can no longer be modified", cur.Status)
		}
		if cur.Status == status {
			return Conflict("reservation is already %s", status)
		}
		if !p.admin && !p.business && status != model.ReservationCancelled {
			return Forbidden("the organization may only cancel a reservation")
		}
		from = cur.Status

		if err := s.Reservations.UpdateStatusTx(ctx, tx, id, cur.Status, status, comment); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return Conflict("reservation changed concurrently")
			}
			return err
		}
		if target := listingTargetFor(status); target != "" {
			if err := s.Listings.TransitionTx(ctx, tx, cur.ListingID, model.ListingReserved, target); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return Conflict("listing %d is not reserved", cur.ListingID)
				}
				return err
			}
		}
		v, err = s.Reservations.GetViewTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.ReservationView{}, err
	}

	s.Log.Info("reservation transitioned", "reservation_id", id, "from", from, "to", status, "actor_id", actor.UserID)
	emit(ctx, s.Events, s.Log, queue.Event{
		Type: queue.ReservationTransitioned, ActorID: actor.UserID, ReservationID: id, ListingID: v.ListingID,
		OrganizationID: v.OrganizationID, BusinessID: v.BusinessID, From: from, Status: status,
	})
	return v, nil
}

// Delete removes a PENDING or ACCEPTED reservation and makes its listing
// available again.  Only the organization side and admins may delete.
func (s *ReservationService) Delete(ctx context.Context, actor Actor, id uint64) (err error) {
	ctx, span := tracer.Start(ctx, "ReservationService.Delete",
		trace.WithAttributes(attribute.Int64("reservation.id", int64(id))))
	defer func() { finish(span, "delete", err) }()

	var cur model.ReservationView
	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		cur, err = s.Reservations.GetViewTx(ctx, tx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("reservation %d not found", id)
		}
		if err != nil {
			return err
		}
		p := partyOf(actor, cur)
		if !p.admin && !p.organization {
			return Forbidden("only the reserving organization or an admin may delete a reservation")
		}
		if cur.Status != model.ReservationPending && cur.Status != model.ReservationAccepted {
			return Conflict("reservation is %s and can no longer be deleted", cur.Status)
		}
		if err := s.Reservations.DeleteTx(ctx, tx, id, cur.Status); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return Conflict("reservation changed concurrently")
			}
			return err
		}
		if err := s.Listings.TransitionTx(ctx, tx, cur.ListingID, model.ListingReserved, model.ListingAvailable); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return Conflict("listing %d is not reserved", cur.ListingID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Log.Info("reservation deleted", "reservation_id", id, "listing_id", cur.ListingID, "actor_id", actor.UserID)
	emit(ctx, s.Events, s.Log, queue.Event{
		Type: queue.ReservationDeleted, ActorID: actor.UserID, ReservationID: id, ListingID: cur.ListingID,
		OrganizationID: cur.OrganizationID, BusinessID: cur.BusinessID, From: cur.Status,
	})
	return nil
}

// Get returns one reservation to any of its parties.
func (s *ReservationService) Get(ctx context.Context, actor Actor, id uint64) (model.ReservationView, error) {
	v, err := s.Reservations.GetView(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return v, NotFound("reservation %d not found", id)
	}
	if err != nil {
		return v, err
	}
	if !partyOf(actor, v).any() {
		return model.ReservationView{}, Forbidden("not a party to this reservation")
	}
	return v, nil
}

// ReservationQuery narrows the list views.
type ReservationQuery struct {
	Status   string
	From, To *time.Time
	Page     int
	PageSize int
}

func (s *ReservationService) list(ctx context.Context, f repository.ReservationFilter, q ReservationQuery) (Paged[model.ReservationView], error) {
	if q.Status != "" {
		switch q.Status {
		case model.ReservationPending, model.ReservationAccepted, model.ReservationRefused, model.ReservationCompleted, model.ReservationCancelled:
		default:
			return Paged[model.ReservationView]{}, Validation("unknown reservation status %q", q.Status)
		}
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return Paged[model.ReservationView]{}, Validation("to must not precede from")
	}
	f.Status, f.From, f.To = q.Status, q.From, q.To
	f.Page, f.PageSize = normalizePage(q.Page, q.PageSize)
	rows, total, err := s.Reservations.List(ctx, f)
	if err != nil {
		return Paged[model.ReservationView]{}, err
	}
	return Paged[model.ReservationView]{Data: rows, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// ForOrganization lists the reservations made by the caller's organization.
func (s *ReservationService) ForOrganization(ctx context.Context, actor Actor, q ReservationQuery) (Paged[model.ReservationView], error) {
	org, err := s.Organizations.GetByOwner(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return Paged[model.ReservationView]{}, Forbidden("an organization profile is required")
	}
	if err != nil {
		return Paged[model.ReservationView]{}, err
	}
	return s.list(ctx, repository.ReservationFilter{OrganizationID: org.ID}, q)
}

// ForBusiness lists the reservations on the caller's business listings.
func (s *ReservationService) ForBusiness(ctx context.Context, actor Actor, q ReservationQuery) (Paged[model.ReservationView], error) {
	b, err := s.Businesses.GetByOwner(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return Paged[model.ReservationView]{}, Forbidden("a business profile is required")
	}
	if err != nil {
		return Paged[model.ReservationView]{}, err
	}
	return s.list(ctx, repository.ReservationFilter{BusinessID: b.ID}, q)
}

// All lists every reservation.  Admin only.
func (s *ReservationService) All(ctx context.Context, actor Actor, q ReservationQuery) (Paged[model.ReservationView], error) {
	if !actor.IsAdmin() {
		return Paged[model.ReservationView]{}, Forbidden("admin only")
	}
	return s.list(ctx, repository.ReservationFilter{}, q)
}

func overrideTarget(status string) bool {
	switch status {
	case model.ListingAvailable, model.ListingCancelled, model.ListingExpired, model.ListingDistributed:
		return true
	}
	return false
}

// OverrideListingStatus is the admin correction path.  Any active
// reservation is settled first with the normal propagation rules, then the
// listing takes target, and the resulting pair is checked before commit.
func (s *ReservationService) OverrideListingStatus(ctx context.Context, actor Actor, listingID uint64, target string) (l model.Listing, err error) {
	ctx, span := tracer.Start(ctx, "ReservationService.OverrideListingStatus",
		trace.WithAttributes(attribute.Int64("listing.id", int64(listingID)), attribute.String("listing.target", target)))
	defer func() { finish(span, "override", err) }()

	if !actor.IsAdmin() {
		return l, Forbidden("only an admin may override a listing status")
	}
	if !overrideTarget(target) {
		return l, Validation("status must be one of AVAILABLE, CANCELLED, EXPIRED, DISTRIBUTED")
	}

	var settled []model.Reservation
	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		settled, err = s.overrideTx(ctx, tx, listingID, target)
		if err != nil {
			return err
		}
		l, err = s.Listings.GetByIDTx(ctx, tx, listingID)
		return err
	})
	if err != nil {
		return model.Listing{}, err
	}

	s.Log.Warn("listing status overridden", "listing_id", listingID, "status", target,
		"actor_id", actor.UserID, "settled_reservations", len(settled))
	for _, r := range settled {
		emit(ctx, s.Events, s.Log, queue.Event{
			Type: queue.ReservationTransitioned, ActorID: actor.UserID, ReservationID: r.ID,
			ListingID: listingID, OrganizationID: r.OrganizationID, From: r.Status, Status: reservationTargetFor(target),
		})
	}
	emit(ctx, s.Events, s.Log, queue.Event{
		Type: queue.ListingOverridden, ActorID: actor.UserID, ListingID: listingID, BusinessID: l.BusinessID, Status: target,
	})
	return l, nil
}

// reservationTargetFor is the reservation status an override to listing
// status target settles active reservations with.
func reservationTargetFor(target string) string {
	if target == model.ListingDistributed {
		return model.ReservationCompleted
	}
	return model.ReservationCancelled
}

// overrideTx settles active reservations of a listing and sets its status
// inside tx.  It returns the settled reservations as they were before.
func (s *ReservationService) overrideTx(ctx context.Context, tx *sql.Tx, listingID uint64, target string) ([]model.Reservation, error) {
	if _, err := s.Listings.GetByIDTx(ctx, tx, listingID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NotFound("listing %d not found", listingID)
		}
		return nil, err
	}
	active, err := s.Reservations.ActiveForListingTx(ctx, tx, listingID)
	if err != nil {
		return nil, err
	}
	to := reservationTargetFor(target)
	for _, r := range active {
		if err := s.Reservations.UpdateStatusTx(ctx, tx, r.ID, r.Status, to, nil); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return nil, Conflict("reservation %d changed concurrently", r.ID)
			}
			return nil, err
		}
	}
	if err := s.Listings.SetStatusTx(ctx, tx, listingID, target); err != nil {
		return nil, err
	}

	left, err := s.Reservations.ActiveForListingTx(ctx, tx, listingID)
	if err != nil {
		return nil, err
	}
	after, err := s.Listings.GetByIDTx(ctx, tx, listingID)
	if err != nil {
		return nil, err
	}
	if len(left) != 0 || after.Status != target {
		return nil, fmt.Errorf("override of listing %d left an inconsistent pair: status %s, %d active reservations",
			listingID, after.Status, len(left))
	}
	return active, nil
}
