package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/repository"
)

// ListingInput carries the fields of a new listing.
type ListingInput struct {
	Title          string
	Description    *string
	Quantity       float64
	Unit           string
	AvailableFrom  time.Time
	AvailableUntil time.Time
	Urgent         bool
	Allergens      *string
	Temperature    *string
}

// ListingPatch carries a partial update.  Nil fields are left unchanged.
type ListingPatch struct {
	Title          *string
	Description    *string
	Quantity       *float64
	Unit           *string
	AvailableFrom  *time.Time
	AvailableUntil *time.Time
	Urgent         *bool
	Allergens      *string
	Temperature    *string
	Status         *string
}

// ListingService is the listing registry: it creates, edits, deletes and
// searches listings.  Status changes that touch a reservation are
// delegated to the reservation engine.
type ListingService struct {
	DB           *sql.DB
	Listings     *repository.ListingRepo
	Businesses   *repository.BusinessRepo
	Reservations *repository.ReservationRepo
	Engine       *ReservationService
	Log          *slog.Logger
	Clock        Clock
}

func NewListingService(db *sql.DB, listings *repository.ListingRepo, businesses *repository.BusinessRepo,
	reservations *repository.ReservationRepo, engine *ReservationService, log *slog.Logger) *ListingService {
	return &ListingService{DB: db, Listings: listings, Businesses: businesses, Reservations: reservations, Engine: engine, Log: log}
}

func validateListing(l model.Listing) error {
	switch {
	case strings.TrimSpace(l.Title) == "":
		return Validation("title is required")
	case utf8.RuneCountInString(l.Title) > 100:
		return Validation("title must be at most 100 characters")
	case strings.TrimSpace(l.Unit) == "":
		return Validation("unit is required")
	case utf8.RuneCountInString(l.Unit) > 20:
		return Validation("unit must be at most 20 characters")
	case l.Temperature != nil && utf8.RuneCountInString(*l.Temperature) > 50:
		return Validation("temperature must be at most 50 characters")
	case math.IsNaN(l.Quantity) || math.IsInf(l.Quantity, 0) || l.Quantity <= 0:
		return Validation("quantity must be greater than zero")
	case l.AvailableFrom.IsZero() || l.AvailableUntil.IsZero():
		return Validation("available_from and available_until are required")
	case !l.AvailableUntil.After(l.AvailableFrom):
		return Validation("available_until must be after available_from")
	}
	return nil
}

// Create publishes a listing for the caller's business.
func (s *ListingService) Create(ctx context.Context, actor Actor, in ListingInput) (model.Listing, error) {
	b, err := s.Businesses.GetByOwner(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Listing{}, Forbidden("a business profile is required to publish listings")
	}
	if err != nil {
		return model.Listing{}, err
	}
	l := model.Listing{
		BusinessID:     b.ID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Quantity:       in.Quantity,
		Unit:           strings.TrimSpace(in.Unit),
		AvailableFrom:  in.AvailableFrom.UTC().Truncate(time.Second),
		AvailableUntil: in.AvailableUntil.UTC().Truncate(time.Second),
		Urgent:         in.Urgent,
		Allergens:      in.Allergens,
		Temperature:    in.Temperature,
		Status:         model.ListingAvailable,
	}
	if err := validateListing(l); err != nil {
		return model.Listing{}, err
	}
	created, err := s.Listings.Create(ctx, l)
	if err != nil {
		return model.Listing{}, err
	}
	s.Log.Info("listing created", "listing_id", created.ID, "business_id", b.ID)
	return created, nil
}

// authorizeListing returns whether actor may manage a listing of business
// b.  Admins always may.
func authorizeListing(actor Actor, b model.Business) error {
	if actor.IsAdmin() || b.OwnerUserID == actor.UserID {
		return nil
	}
	return Forbidden("only the owning business or an admin may change this listing")
}

// Update applies patch.  Owners may only edit AVAILABLE listings and may
// only move them to CANCELLED or EXPIRED.  An admin status change runs
// through the reservation engine's override inside the same transaction.
func (s *ListingService) Update(ctx context.Context, actor Actor, id uint64, patch ListingPatch) (model.Listing, error) {
	var out model.Listing
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		l, err := s.Listings.GetByIDTx(ctx, tx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("listing %d not found", id)
		}
		if err != nil {
			return err
		}
		b, err := s.Businesses.GetByIDTx(ctx, tx, l.BusinessID)
		if err != nil {
			return err
		}
		if err := authorizeListing(actor, b); err != nil {
			return err
		}
		if !actor.IsAdmin() && l.Status != model.ListingAvailable {
			return Conflict("listing is %s and can no longer be modified", l.Status)
		}

		if patch.Status != nil && !knownListingStatus(*patch.Status) {
			return Validation("unknown listing status %q", *patch.Status)
		}
		merged := mergeListing(l, patch)
		if err := validateListing(merged); err != nil {
			return err
		}

		requireStatus := model.ListingAvailable
		if patch.Status != nil && *patch.Status != l.Status {
			target := *patch.Status
			if actor.IsAdmin() {
				if !overrideTarget(target) {
					return Validation("status %q cannot be set directly", target)
				}
				if _, err := s.Engine.overrideTx(ctx, tx, l.ID, target); err != nil {
					return err
				}
			} else if target != model.ListingCancelled && target != model.ListingExpired {
				return Forbidden("an owner may only move a listing to CANCELLED or EXPIRED")
			}
		}
		if actor.IsAdmin() {
			requireStatus = ""
		}

		out, err = s.Listings.UpdateTx(ctx, tx, merged, requireStatus)
		if errors.Is(err, repository.ErrConflict) {
			return Conflict("listing changed concurrently and can no longer be modified")
		}
		return err
	})
	if err != nil {
		return model.Listing{}, err
	}
	s.Log.Info("listing updated", "listing_id", id, "actor_id", actor.UserID, "status", out.Status)
	return out, nil
}

func knownListingStatus(s string) bool {
	switch s {
	case model.ListingAvailable, model.ListingReserved, model.ListingCancelled, model.ListingExpired, model.ListingDistributed:
		return true
	}
	return false
}

func mergeListing(l model.Listing, p ListingPatch) model.Listing {
	if p.Title != nil {
		l.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		l.Description = p.Description
	}
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		l.Unit = strings.TrimSpace(*p.Unit)
	}
	if p.AvailableFrom != nil {
		l.AvailableFrom = p.AvailableFrom.UTC().Truncate(time.Second)
	}
	if p.AvailableUntil != nil {
		l.AvailableUntil = p.AvailableUntil.UTC().Truncate(time.Second)
	}
	if p.Urgent != nil {
		l.Urgent = *p.Urgent
	}
	if p.Allergens != nil {
		l.Allergens = p.Allergens
	}
	if p.Temperature != nil {
		l.Temperature = p.Temperature
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	return l
}

// Delete removes a listing and the reservations that reference it.
// Non-admins cannot delete a RESERVED listing.
func (s *ListingService) Delete(ctx context.Context, actor Actor, id uint64) error {
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		l, err := s.Listings.GetByIDTx(ctx, tx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("listing %d not found", id)
		}
		if err != nil {
			return err
		}
		b, err := s.Businesses.GetByIDTx(ctx, tx, l.BusinessID)
		if err != nil {
			return err
		}
		if err := authorizeListing(actor, b); err != nil {
			return err
		}
		forbid := ""
		if !actor.IsAdmin() {
			if l.Status == model.ListingReserved {
				return Conflict("a reserved listing cannot be deleted")
			}
			forbid = model.ListingReserved
		}
		if err := s.Reservations.DeleteByListingTx(ctx, tx, id); err != nil {
			return err
		}
		err = s.Listings.DeleteTx(ctx, tx, id, forbid)
		if errors.Is(err, repository.ErrConflict) {
			return Conflict("listing was reserved concurrently")
		}
		return err
	})
	if err != nil {
		return err
	}
	s.Log.Info("listing deleted", "listing_id", id, "actor_id", actor.UserID)
	return nil
}

// Get returns one listing.  Listings of an unapproved business are only
// shown to their owner and to admins.
func (s *ListingService) Get(ctx context.Context, actor Actor, id uint64) (repository.ListingRow, error) {
	l, err := s.Listings.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.ListingRow{}, NotFound("listing %d not found", id)
	}
	if err != nil {
		return repository.ListingRow{}, err
	}
	b, err := s.Businesses.GetByID(ctx, l.BusinessID)
	if err != nil {
		return repository.ListingRow{}, err
	}
	if !b.Approved && !actor.IsAdmin() && b.OwnerUserID != actor.UserID {
		return repository.ListingRow{}, Forbidden("the publishing business is not approved")
	}
	return repository.ListingRow{
		Listing:         l,
		EffectiveStatus: l.EffectiveStatus(s.Clock.now()),
		BusinessName:    b.Name,
		Locality:        b.Locality,
		PostalCode:      b.PostalCode,
		Canton:          b.Canton,
	}, nil
}

var listingSortKeys = map[string]bool{
	"": true, "available_until": true, "available_from": true, "created_at": true,
	"quantity": true, "title": true, "distance": true,
}

// Query searches listings.  Non-admins always get the default visibility
// rule; only admins may filter by stored status.
func (s *ListingService) Query(ctx context.Context, actor Actor, q repository.ListingQuery) (Paged[repository.ListingRow], error) {
	q.Page, q.PageSize = normalizePage(q.Page, q.PageSize)
	q.SortBy = strings.ToLower(q.SortBy)
	q.SortDir = strings.ToLower(q.SortDir)
	if !listingSortKeys[q.SortBy] {
		return Paged[repository.ListingRow]{}, Validation("unknown sort field %q", q.SortBy)
	}
	if q.SortDir != "" && q.SortDir != "asc" && q.SortDir != "desc" {
		return Paged[repository.ListingRow]{}, Validation("sort direction must be asc or desc")
	}
	if err := checkGeo(q.Lat, q.Lng, q.RadiusKm, q.SortBy); err != nil {
		return Paged[repository.ListingRow]{}, err
	}
	if q.AvailableAfter != nil && q.AvailableBefore != nil && q.AvailableBefore.Before(*q.AvailableAfter) {
		return Paged[repository.ListingRow]{}, Validation("available_before must not precede available_after")
	}

	q.IncludeAll = actor.IsAdmin()
	if !q.IncludeAll {
		q.Status = ""
	}
	rows, total, err := s.Listings.Search(ctx, q, s.Clock.now())
	if err != nil {
		return Paged[repository.ListingRow]{}, err
	}
	return Paged[repository.ListingRow]{Data: rows, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// Mine lists every listing of the caller's business, whatever its status.
func (s *ListingService) Mine(ctx context.Context, actor Actor, status string, page, size int) (Paged[repository.ListingRow], error) {
	b, err := s.Businesses.GetByOwner(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return Paged[repository.ListingRow]{}, Forbidden("a business profile is required")
	}
	if err != nil {
		return Paged[repository.ListingRow]{}, err
	}
	page, size = normalizePage(page, size)
	rows, total, err := s.Listings.Search(ctx, repository.ListingQuery{
		BusinessID: b.ID, Status: status, IncludeAll: true, SortBy: "created_at", SortDir: "desc",
		Page: page, PageSize: size,
	}, s.Clock.now())
	if err != nil {
		return Paged[repository.ListingRow]{}, err
	}
	return Paged[repository.ListingRow]{Data: rows, Total: total, Page: page, PageSize: size}, nil
}
