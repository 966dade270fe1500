package service

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/repository"
)

func TestStatsAreAdminOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	stats := NewStatsService(repository.NewStatsRepo(e.db))
	stats.Clock = func() time.Time { return e.now }

	m := e.market(t)
	e.reserve(t, m)
	e.business(t, "pending@example.com", false)

	_, err := stats.Accounts(ctx, m.biz)
	wantKind(t, err, KindAuthorization)
	_, err = stats.Reservations(ctx, m.org)
	wantKind(t, err, KindAuthorization)

	acc, err := stats.Accounts(ctx, e.admin)
	if err != nil {
		t.Fatal(err)
	}
	if acc.UsersByRole[model.RoleAdmin] != 1 || acc.UsersByRole[model.RoleBusiness] != 2 || acc.UsersByRole[model.RoleOrganization] != 1 {
		t.Fatalf("users by role = %v", acc.UsersByRole)
	}
	if acc.TotalBusinesses != 2 || acc.TotalOrganizations != 1 || acc.PendingValidations != 1 {
		t.Fatalf("account stats = %+v", acc)
	}

	ls, err := stats.Listings(ctx, e.admin)
	if err != nil {
		t.Fatal(err)
	}
	if ls.TotalCount != 1 || ls.ByStatus[model.ListingReserved] != 1 || ls.AvailableQuantity != 0 {
		t.Fatalf("listing stats = %+v", ls)
	}

	rs, err := stats.Reservations(ctx, e.admin)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Total != 1 || rs.Pending != 1 || rs.Accepted != 0 {
		t.Fatalf("reservation stats = %+v", rs)
	}
}
