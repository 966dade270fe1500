package service

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func TestListingWindowInvariant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	biz, _ := e.business(t, "shop@example.com", true)

	for name, in := range map[string]ListingInput{
		"until before from": {Title: "Soup", Quantity: 1, Unit: "l", AvailableFrom: e.now, AvailableUntil: e.now.Add(-time.Minute)},
		"empty window":      {Title: "Soup", Quantity: 1, Unit: "l", AvailableFrom: e.now, AvailableUntil: e.now},
		"zero quantity":     {Title: "Soup", Quantity: 0, Unit: "l", AvailableFrom: e.now, AvailableUntil: e.now.Add(time.Hour)},
		"no title":          {Title: "  ", Quantity: 1, Unit: "l", AvailableFrom: e.now, AvailableUntil: e.now.Add(time.Hour)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.listings.Create(ctx, biz, in)
			wantKind(t, err, KindValidation)
		})
	}

	l := e.listing(t, biz, e.now, e.now.Add(time.Hour))
	_, err := e.listings.Update(ctx, biz, l.ID, ListingPatch{AvailableUntil: ptr(e.now.Add(-time.Hour))})
	wantKind(t, err, KindValidation)

	got, err := e.listings.Update(ctx, biz, l.ID, ListingPatch{Title: ptr("Croissants"), Urgent: ptr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Croissants" || !got.Urgent || !got.AvailableUntil.After(got.AvailableFrom) {
		t.Fatalf("update = %+v", got)
	}
}

func TestCreateListingNeedsBusiness(t *testing.T) {
	e := newEnv(t)
	org, _ := e.organization(t, "food@example.com", true)
	_, err := e.listings.Create(context.Background(), org, ListingInput{
		Title: "Bread", Quantity: 1, Unit: "kg", AvailableFrom: e.now, AvailableUntil: e.now.Add(time.Hour),
	})
	wantKind(t, err, KindAuthorization)
}

func TestOwnerListingEdits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.market(t)
	other, _ := e.business(t, "rival@example.com", true)

	_, err := e.listings.Update(ctx, other, m.listing.ID, ListingPatch{Title: ptr("Mine now")})
	wantKind(t, err, KindAuthorization)

	_, err = e.listings.Update(ctx, m.biz, m.listing.ID, ListingPatch{Status: ptr(model.ListingDistributed)})
	wantKind(t, err, KindAuthorization)

	_, err = e.listings.Update(ctx, m.biz, m.listing.ID, ListingPatch{Status: ptr("GONE")})
	wantKind(t, err, KindValidation)

	e.reserve(t, m)
	_, err = e.listings.Update(ctx, m.biz, m.listing.ID, ListingPatch{Title: ptr("Late edit")})
	wantKind(t, err, KindConflict)
	wantKind(t, e.listings.Delete(ctx, m.biz, m.listing.ID), KindConflict)

	l := e.listing(t, m.biz, e.now, e.now.Add(time.Hour))
	got, err := e.listings.Update(ctx, m.biz, l.ID, ListingPatch{Status: ptr(model.ListingCancelled)})
	if err != nil || got.Status != model.ListingCancelled {
		t.Fatalf("cancel own listing = %+v, %v", got, err)
	}
}

func TestAdminStatusEditSettlesReservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.market(t)
	r := e.reserve(t, m)

	got, err := e.listings.Update(ctx, e.admin, m.listing.ID, ListingPatch{Status: ptr(model.ListingAvailable)})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.ListingAvailable {
		t.Fatalf("listing = %s", got.Status)
	}
	v, err := e.reservations.Get(ctx, e.admin, r.ID)
	if err != nil || v.Status != model.ReservationCancelled {
		t.Fatalf("reservation = %+v, %v", v, err)
	}

	_, err = e.listings.Update(ctx, e.admin, m.listing.ID, ListingPatch{Status: ptr(model.ListingReserved)})
	wantKind(t, err, KindValidation)
}

func TestAdminDeletesReservedListing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.market(t)
	r := e.reserve(t, m)

	if err := e.listings.Delete(ctx, e.admin, m.listing.ID); err != nil {
		t.Fatal(err)
	}
	_, err := e.listings.Get(ctx, e.admin, m.listing.ID)
	wantKind(t, err, KindNotFound)
	_, err = e.reservations.Get(ctx, e.admin, r.ID)
	wantKind(t, err, KindNotFound)
}

func TestListingVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner, _ := e.business(t, "pending-shop@example.com", false)
	org, _ := e.organization(t, "food@example.com", true)
	l := e.listing(t, owner, e.now, e.now.Add(time.Hour))

	_, err := e.listings.Get(ctx, org, l.ID)
	wantKind(t, err, KindAuthorization)
	if _, err := e.listings.Get(ctx, owner, l.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	page, err := e.listings.Query(ctx, org, repository.ListingQuery{})
	if err != nil || page.Total != 0 {
		t.Fatalf("unapproved listing visible: %+v %v", page, err)
	}
	page, err = e.listings.Query(ctx, e.admin, repository.ListingQuery{})
	if err != nil || page.Total != 1 {
		t.Fatalf("admin should see everything: %+v %v", page, err)
	}

	mine, err := e.listings.Mine(ctx, owner, "", 0, 0)
	if err != nil || mine.Total != 1 || mine.PageSize != DefaultPageSize {
		t.Fatalf("mine = %+v %v", mine, err)
	}
}

func TestListingQueryValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	org, _ := e.organization(t, "food@example.com", true)
	lat, lng, r := 46.5, 6.6, 10.0
	before := e.now.Add(-time.Hour)

	for name, q := range map[string]repository.ListingQuery{
		"partial geo":        {Lat: &lat, Lng: &lng},
		"bad latitude":       {Lat: ptr(91.0), Lng: &lng, RadiusKm: &r},
		"zero radius":        {Lat: &lat, Lng: &lng, RadiusKm: ptr(0.0)},
		"distance sort only": {SortBy: "distance"},
		"unknown sort":       {SortBy: "price"},
		"bad direction":      {SortDir: "up"},
		"reversed window":    {AvailableAfter: &e.now, AvailableBefore: &before},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.listings.Query(ctx, org, q)
			wantKind(t, err, KindValidation)
		})
	}

	if _, err := e.listings.Query(ctx, org, repository.ListingQuery{Lat: &lat, Lng: &lng, RadiusKm: &r, SortBy: "distance"}); err != nil {
		t.Fatalf("geo query: %v", err)
	}
}
