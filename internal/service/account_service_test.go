package service

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/utils"
)

func TestCreatePartnerSetsRoleOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "owner@example.com", model.RoleNone)

	b, err := e.accounts.CreateBusiness(ctx, a, e.partnerInput("B"))
	if err != nil {
		t.Fatal(err)
	}
	if b.Approved {
		t.Fatal("new business must not be approved")
	}
	me, err := e.accounts.Me(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if me.Role != model.RoleBusiness || me.Kind.Kind != model.KindBusiness || *me.Kind.BusinessID != b.ID {
		t.Fatalf("me = %+v", me)
	}

	_, err = e.accounts.CreateBusiness(ctx, a, e.partnerInput("B"))
	wantKind(t, err, KindConflict)

	// A second entity of the other kind is allowed and keeps the role.
	if _, err := e.accounts.CreateOrganization(ctx, a, e.partnerInput("O")); err != nil {
		t.Fatal(err)
	}
	me, _ = e.accounts.Me(ctx, a)
	if me.Role != model.RoleBusiness || me.Organization == nil || me.Kind.Kind != model.KindBusiness {
		t.Fatalf("me after organization = %+v", me)
	}
}

func TestPartnerValidationAndUniqueness(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "a@example.com", model.RoleNone)
	b := e.account(t, "b@example.com", model.RoleNone)

	in := e.partnerInput("B")
	if _, err := e.accounts.CreateBusiness(ctx, a, in); err != nil {
		t.Fatal(err)
	}
	_, err := e.accounts.CreateBusiness(ctx, b, in)
	wantKind(t, err, KindConflict)
	me, _ := e.accounts.Me(ctx, b)
	if me.Role != model.RoleNone {
		t.Fatalf("failed creation changed role to %s", me.Role)
	}

	bad := e.partnerInput("B")
	bad.Name = ""
	_, err = e.accounts.CreateBusiness(ctx, b, bad)
	wantKind(t, err, KindValidation)

	bad = e.partnerInput("O")
	bad.Longitude = nil
	_, err = e.accounts.CreateOrganization(ctx, b, bad)
	wantKind(t, err, KindValidation)
}

func TestPartnerProfileAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner, b := e.business(t, "shop@example.com", false)
	stranger := e.account(t, "stranger@example.com", model.RoleNone)

	_, err := e.accounts.GetBusiness(ctx, stranger, b.ID)
	wantKind(t, err, KindAuthorization)
	if _, err := e.accounts.GetBusiness(ctx, owner, b.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	in := e.partnerInput("B")
	in.Name = "Renamed"
	_, err = e.accounts.UpdateBusiness(ctx, stranger, b.ID, in)
	wantKind(t, err, KindAuthorization)
	got, err := e.accounts.UpdateBusiness(ctx, owner, b.ID, in)
	if err != nil || got.Name != "Renamed" || got.Approved {
		t.Fatalf("update = %+v %v", got, err)
	}

	if _, err := e.accounts.SetBusinessApproval(ctx, owner, b.ID, true); !Is(err, KindAuthorization) {
		t.Fatalf("owner approved own business: %v", err)
	}
	if _, err := e.accounts.SetBusinessApproval(ctx, e.admin, b.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := e.accounts.GetBusiness(ctx, stranger, b.ID); err != nil {
		t.Fatalf("approved business hidden: %v", err)
	}

	_, err = e.accounts.MyOrganization(ctx, owner)
	wantKind(t, err, KindNotFound)
	_, err = e.accounts.GetOrganization(ctx, owner, 12345)
	wantKind(t, err, KindNotFound)
}

func TestChangeRoleReconciles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	orgOwner, _ := e.organization(t, "food@example.com", true)
	bizOwner, _ := e.business(t, "shop@example.com", true)

	_, err := e.accounts.ChangeRole(ctx, e.admin, orgOwner.UserID, model.RoleBusiness)
	wantKind(t, err, KindConflict)
	_, err = e.accounts.ChangeRole(ctx, e.admin, bizOwner.UserID, model.RoleOrganization)
	wantKind(t, err, KindConflict)
	_, err = e.accounts.ChangeRole(ctx, e.admin, bizOwner.UserID, "OWNER")
	wantKind(t, err, KindValidation)
	_, err = e.accounts.ChangeRole(ctx, bizOwner, bizOwner.UserID, model.RoleAdmin)
	wantKind(t, err, KindAuthorization)

	d, err := e.accounts.ChangeRole(ctx, e.admin, bizOwner.UserID, model.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if d.Role != model.RoleAdmin || d.Kind.Kind != model.KindAdmin {
		t.Fatalf("detail = %+v", d)
	}
}

func TestListAccounts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.business(t, "shop@example.com", true)
	e.organization(t, "food@example.com", true)

	page, err := e.accounts.ListAccounts(ctx, e.admin, AccountQuery{Role: model.RoleBusiness})
	if err != nil || page.Total != 1 || page.Data[0].Email != "shop@example.com" {
		t.Fatalf("role filter = %+v %v", page, err)
	}
	page, err = e.accounts.ListAccounts(ctx, e.admin, AccountQuery{Search: "FOOD"})
	if err != nil || page.Total != 1 {
		t.Fatalf("search = %+v %v", page, err)
	}
	_, err = e.accounts.ListAccounts(ctx, e.admin, AccountQuery{Role: "OWNER"})
	wantKind(t, err, KindValidation)
	_, err = e.accounts.GetAccount(ctx, Actor{UserID: page.Data[0].ID, Role: model.RoleOrganization}, e.admin.UserID)
	wantKind(t, err, KindAuthorization)
}

func TestDeleteAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.market(t)
	e.reserve(t, m)
	e.submit(t, m.org, model.DocumentOrganization, pdfBytes)

	wantKind(t, e.accounts.DeleteAccount(ctx, e.admin, e.admin.UserID), KindAuthorization)
	wantKind(t, e.accounts.DeleteAccount(ctx, m.biz, m.org.UserID), KindAuthorization)

	if err := e.accounts.DeleteAccount(ctx, e.admin, m.org.UserID); err != nil {
		t.Fatal(err)
	}
	if got := e.listingStatus(t, m.listing.ID); got != model.ListingAvailable {
		t.Fatalf("listing = %s after the reserving organization was deleted", got)
	}
	if e.blobs.len() != 0 {
		t.Fatalf("%d blobs left", e.blobs.len())
	}
	_, err := e.accounts.GetAccount(ctx, e.admin, m.org.UserID)
	wantKind(t, err, KindNotFound)

	// The listing can be reserved again by someone else.
	other, _ := e.organization(t, "next@example.com", true)
	if _, _, err := e.reservations.Create(ctx, other, CreateReservation{ListingID: m.listing.ID, CollectAt: e.now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.accounts.EnsureAdmin(ctx, "Root@Example.com", "secret-pass", 4); err != nil {
		t.Fatal(err)
	}
	u, err := e.users.GetByEmail(ctx, "root@example.com")
	if err != nil || u.Role != model.RoleAdmin {
		t.Fatalf("bootstrap admin = %+v %v", u, err)
	}
	if err := e.accounts.EnsureAdmin(ctx, "root@example.com", "secret-pass", 4); err != nil {
		t.Fatalf("second run: %v", err)
	}

	plain := e.account(t, "plain@example.com", model.RoleNone)
	if err := e.accounts.EnsureAdmin(ctx, "plain@example.com", "ignored", 4); err != nil {
		t.Fatal(err)
	}
	d, _ := e.accounts.GetAccount(ctx, e.admin, plain.UserID)
	if d.Role != model.RoleAdmin {
		t.Fatalf("role = %s", d.Role)
	}
}

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "me@example.com", model.RoleNone)

	phone := " +41 21 000 00 00 "
	d, err := e.accounts.UpdateProfile(ctx, a, ProfilePatch{FirstName: ptr("Ada"), Phone: &phone})
	if err != nil {
		t.Fatal(err)
	}
	if d.FirstName != "Ada" || d.LastName != "User" || d.Phone == nil || *d.Phone != "+41 21 000 00 00" {
		t.Fatalf("after update = %+v", d.User)
	}

	d, err = e.accounts.UpdateProfile(ctx, a, ProfilePatch{Phone: ptr("")})
	if err != nil || d.Phone != nil {
		t.Fatalf("clearing phone: %+v %v", d.User, err)
	}

	_, err = e.accounts.UpdateProfile(ctx, a, ProfilePatch{LastName: ptr("  ")})
	wantKind(t, err, KindValidation)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "me@example.com", model.RoleNone)

	wantKind(t, e.accounts.ChangePassword(ctx, a, "wrong-one", "new-password", 4), KindValidation)
	wantKind(t, e.accounts.ChangePassword(ctx, a, "password1", "short", 4), KindValidation)

	if err := e.accounts.ChangePassword(ctx, a, "password1", "new-password", 4); err != nil {
		t.Fatal(err)
	}
	u, err := e.users.GetByID(ctx, a.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, "new-password") || utils.VerifyPassword(u.PasswordHash, "password1") {
		t.Fatal("stored hash does not match the new password")
	}
}
