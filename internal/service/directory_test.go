package service

import (
	"context"
	"testing"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/repository"
)

func TestDirectoryHidesUnapprovedFromOthers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, shown := e.business(t, "shown@example.com", true)
	e.business(t, "hidden@example.com", false)
	org, _ := e.organization(t, "org@example.com", true)

	page, err := e.accounts.SearchBusinesses(ctx, org, repository.PartnerQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Data) != 1 || page.Data[0].ID != shown.ID {
		t.Fatalf("organization sees %+v", page)
	}

	// Asking for unapproved entries does not widen the result.
	no := false
	page, err = e.accounts.SearchBusinesses(ctx, org, repository.PartnerQuery{Approved: &no})
	if err != nil || page.Total != 1 {
		t.Fatalf("approved=false as organization: %+v %v", page, err)
	}

	page, err = e.accounts.SearchBusinesses(ctx, e.admin, repository.PartnerQuery{})
	if err != nil || page.Total != 2 {
		t.Fatalf("admin sees %+v %v", page, err)
	}
	page, err = e.accounts.SearchBusinesses(ctx, e.admin, repository.PartnerQuery{Approved: &no})
	if err != nil || page.Total != 1 || page.Data[0].Approved {
		t.Fatalf("admin approved=false: %+v %v", page, err)
	}
	if page.Page != 1 || page.PageSize != DefaultPageSize {
		t.Fatalf("paging = %d/%d", page.Page, page.PageSize)
	}
}

func TestOrganizationDirectoryNearby(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, near := e.organization(t, "near@example.com", true)
	e.organization(t, "pending@example.com", false)
	biz, _ := e.business(t, "shop@example.com", true)

	// partnerInput places everyone in Lausanne.
	lat, lng, far, small := 46.52, 6.63, 500.0, 5.0
	page, err := e.accounts.SearchOrganizations(ctx, biz, repository.PartnerQuery{Lat: &lat, Lng: &lng, RadiusKm: &small})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Data[0].ID != near.ID || page.Data[0].DistanceKm == nil {
		t.Fatalf("nearby organizations = %+v", page)
	}
	zurichLat, zurichLng := 47.3769, 8.5417
	page, err = e.accounts.SearchOrganizations(ctx, biz, repository.PartnerQuery{Lat: &zurichLat, Lng: &zurichLng, RadiusKm: &small})
	if err != nil || page.Total != 0 {
		t.Fatalf("from Zurich within 5 km: %+v %v", page, err)
	}
	page, err = e.accounts.SearchOrganizations(ctx, biz, repository.PartnerQuery{Lat: &zurichLat, Lng: &zurichLng, RadiusKm: &far})
	if err != nil || page.Total != 1 {
		t.Fatalf("from Zurich within 500 km: %+v %v", page, err)
	}
}

func TestDirectoryQueryValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "user@example.com", model.RoleNone)
	lat, radius := 46.5, -1.0

	cases := []repository.PartnerQuery{
		{SortBy: "owner_user_id"},
		{SortDir: "sideways"},
		{Lat: &lat},
		{SortBy: "distance"},
		{Lat: &lat, Lng: &lat, RadiusKm: &radius},
	}
	for i, q := range cases {
		_, err := e.accounts.SearchBusinesses(ctx, a, q)
		if !Is(err, KindValidation) {
			t.Errorf("case %d: want validation error, got %v", i, err)
		}
	}
}
