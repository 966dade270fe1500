package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/repository"
	"github.com/iliyamo/foodshare/internal/utils"
)

// PartnerInput is the owner-editable profile of a business or organization.
type PartnerInput struct {
	Name           string
	Description    *string
	Address        string
	PostalCode     string
	Locality       string
	Canton         string
	Latitude       *float64
	Longitude      *float64
	Website        *string
	RegistrationID string
}

// AccountDetail is an account with its derived kind and owned entities.
type AccountDetail struct {
	model.User
	Kind         model.AccountKind   `json:"account"`
	Business     *model.Business     `json:"business,omitempty"`
	Organization *model.Organization `json:"organization,omitempty"`
}

// AccountService administers accounts and their business or organization
// profiles, and keeps the role label consistent with what an account owns.
type AccountService struct {
	DB            *sql.DB
	Users         *repository.UserRepo
	Businesses    *repository.BusinessRepo
	Organizations *repository.OrganizationRepo
	Listings      *repository.ListingRepo
	Reservations  *repository.ReservationRepo
	Documents     *DocumentService
	Log           *slog.Logger
}

func NewAccountService(db *sql.DB, users *repository.UserRepo, businesses *repository.BusinessRepo,
	orgs *repository.OrganizationRepo, listings *repository.ListingRepo, reservations *repository.ReservationRepo,
	documents *DocumentService, log *slog.Logger) *AccountService {
	return &AccountService{
		DB: db, Users: users, Businesses: businesses, Organizations: orgs,
		Listings: listings, Reservations: reservations, Documents: documents, Log: log,
	}
}

// detail loads user id together with the entities it owns.
func (s *AccountService) detail(ctx context.Context, id uint64) (AccountDetail, error) {
	u, err := s.Users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return AccountDetail{}, NotFound("account %d not found", id)
	}
	if err != nil {
		return AccountDetail{}, err
	}
	d := AccountDetail{User: u}
	var bid, oid *uint64
	if b, err := s.Businesses.GetByOwner(ctx, id); err == nil {
		d.Business, bid = &b, &b.ID
	} else if !errors.Is(err, repository.ErrNotFound) {
		return AccountDetail{}, err
	}
	if o, err := s.Organizations.GetByOwner(ctx, id); err == nil {
		d.Organization, oid = &o, &o.ID
	} else if !errors.Is(err, repository.ErrNotFound) {
		return AccountDetail{}, err
	}
	d.Kind = model.KindOf(u.Role, bid, oid)
	return d, nil
}

// Me returns the caller's own account.
func (s *AccountService) Me(ctx context.Context, actor Actor) (AccountDetail, error) {
	return s.detail(ctx, actor.UserID)
}

// ProfilePatch carries the personal fields an account may change on
// itself.  Nil leaves a field alone; an empty phone clears it.
type ProfilePatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// UpdateProfile edits the caller's own name and phone.
func (s *AccountService) UpdateProfile(ctx context.Context, actor Actor, p ProfilePatch) (AccountDetail, error) {
	u, err := s.Users.GetByID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return AccountDetail{}, NotFound("account %d not found", actor.UserID)
	}
	if err != nil {
		return AccountDetail{}, err
	}
	if p.FirstName != nil {
		u.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.Phone != nil {
		u.Phone = nil
		if v := strings.TrimSpace(*p.Phone); v != "" {
			u.Phone = &v
		}
	}
	if err := checkLen("first_name", u.FirstName, 1, 100); err != nil {
		return AccountDetail{}, err
	}
	if err := checkLen("last_name", u.LastName, 1, 100); err != nil {
		return AccountDetail{}, err
	}
	if u.Phone != nil {
		if err := checkLen("phone", *u.Phone, 0, 30); err != nil {
			return AccountDetail{}, err
		}
	}
	if err := s.Users.UpdateProfile(ctx, u.ID, u.FirstName, u.LastName, u.Phone); err != nil {
		return AccountDetail{}, err
	}
	return s.detail(ctx, u.ID)
}

// ChangePassword replaces the caller's password after checking the
// current one.  The caller is expected to revoke existing sessions.
func (s *AccountService) ChangePassword(ctx context.Context, actor Actor, current, next string, cost int) error {
	u, err := s.Users.GetByID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("account %d not found", actor.UserID)
	}
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return Validation("current password is incorrect")
	}
	if err := checkLen("new_password", next, 8, 72); err != nil {
		return err
	}
	hash, err := utils.HashPassword(next, cost)
	if err != nil {
		return err
	}
	if err := s.Users.SetPassword(ctx, u.ID, u.PasswordHash, hash); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return Conflict("password changed concurrently")
		}
		return err
	}
	s.Log.Info("password changed", "account_id", u.ID)
	return nil
}

// GetAccount returns any account.  Admin only.
func (s *AccountService) GetAccount(ctx context.Context, actor Actor, id uint64) (AccountDetail, error) {
	if !actor.IsAdmin() {
		return AccountDetail{}, Forbidden("admin only")
	}
	return s.detail(ctx, id)
}

// AccountQuery narrows ListAccounts.
type AccountQuery struct {
	Role     string
	Search   string
	Page     int
	PageSize int
}

func (s *AccountService) ListAccounts(ctx context.Context, actor Actor, q AccountQuery) (Paged[model.User], error) {
	if !actor.IsAdmin() {
		return Paged[model.User]{}, Forbidden("admin only")
	}
	if q.Role != "" && !model.ValidRole(q.Role) {
		return Paged[model.User]{}, Validation("unknown role %q", q.Role)
	}
	page, size := normalizePage(q.Page, q.PageSize)
	rows, total, err := s.Users.List(ctx, repository.UserFilter{Role: q.Role, Search: q.Search, Page: page, PageSize: size})
	if err != nil {
		return Paged[model.User]{}, err
	}
	return Paged[model.User]{Data: rows, Total: total, Page: page, PageSize: size}, nil
}

func checkLen(field, v string, min, max int) error {
	n := utf8.RuneCountInString(v)
	if n < min || n > max {
		if min > 0 {
			return Validation("%s must be between %d and %d characters", field, min, max)
		}
		return Validation("%s must be at most %d characters", field, max)
	}
	return nil
}

func validatePartner(in *PartnerInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	in.PostalCode = strings.TrimSpace(in.PostalCode)
	in.Locality = strings.TrimSpace(in.Locality)
	in.Canton = strings.TrimSpace(in.Canton)
	in.RegistrationID = strings.TrimSpace(in.RegistrationID)
	for _, c := range []struct {
		field, v string
		min, max int
	}{
		{"name", in.Name, 1, 100},
		{"address", in.Address, 1, 200},
		{"postal_code", in.PostalCode, 1, 10},
		{"locality", in.Locality, 1, 100},
		{"canton", in.Canton, 1, 50},
		{"registration_id", in.RegistrationID, 1, 30},
	} {
		if err := checkLen(c.field, c.v, c.min, c.max); err != nil {
			return err
		}
	}
	if in.Website != nil {
		if err := checkLen("website", *in.Website, 0, 255); err != nil {
			return err
		}
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return Validation("latitude and longitude go together")
	}
	if in.Latitude != nil {
		if math.IsNaN(*in.Latitude) || *in.Latitude < -90 || *in.Latitude > 90 {
			return Validation("latitude must be between -90 and 90")
		}
		if math.IsNaN(*in.Longitude) || *in.Longitude < -180 || *in.Longitude > 180 {
			return Validation("longitude must be between -180 and 180")
		}
	}
	return nil
}

func (in PartnerInput) profile() model.PartnerProfile {
	return model.PartnerProfile{
		Name: in.Name, Description: in.Description, Address: in.Address, PostalCode: in.PostalCode,
		Locality: in.Locality, Canton: in.Canton, Latitude: in.Latitude, Longitude: in.Longitude,
		Website: in.Website, RegistrationID: in.RegistrationID,
	}
}

// claimRoleTx locks the account row and, when its role is NONE, sets role.
// The write happens even when the role stays, so concurrent creations for
// one account serialize on the row.
func (s *AccountService) claimRoleTx(ctx context.Context, tx *sql.Tx, userID uint64, role string) error {
	u, err := s.Users.GetByIDTx(ctx, tx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("account %d not found", userID)
	}
	if err != nil {
		return err
	}
	next := u.Role
	if next == model.RoleNone {
		next = role
	}
	return s.Users.SetRoleTx(ctx, tx, userID, next)
}

// CreateBusiness registers the caller's business.  An account owns at most
// one.
func (s *AccountService) CreateBusiness(ctx context.Context, actor Actor, in PartnerInput) (model.Business, error) {
	if err := validatePartner(&in); err != nil {
		return model.Business{}, err
	}
	var b model.Business
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.claimRoleTx(ctx, tx, actor.UserID, model.RoleBusiness); err != nil {
			return err
		}
		if _, err := s.Businesses.GetByOwnerTx(ctx, tx, actor.UserID); err == nil {
			return Conflict("this account already owns a business")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		var err error
		b, err = s.Businesses.CreateTx(ctx, tx, actor.UserID, in.profile())
		if errors.Is(err, repository.ErrDuplicate) {
			return Conflict("registration id %s is already registered", in.RegistrationID)
		}
		return err
	})
	if err != nil {
		return model.Business{}, err
	}
	s.Log.Info("business created", "business_id", b.ID, "owner_id", actor.UserID)
	return b, nil
}

// CreateOrganization registers the caller's organization.  An account owns
// at most one.
func (s *AccountService) CreateOrganization(ctx context.Context, actor Actor, in PartnerInput) (model.Organization, error) {
	if err := validatePartner(&in); err != nil {
		return model.Organization{}, err
	}
	var o model.Organization
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.claimRoleTx(ctx, tx, actor.UserID, model.RoleOrganization); err != nil {
			return err
		}
		if _, err := s.Organizations.GetByOwnerTx(ctx, tx, actor.UserID); err == nil {
			return Conflict("this account already owns an organization")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		var err error
		o, err = s.Organizations.CreateTx(ctx, tx, actor.UserID, in.profile())
		if errors.Is(err, repository.ErrDuplicate) {
			return Conflict("registration id %s is already registered", in.RegistrationID)
		}
		return err
	})
	if err != nil {
		return model.Organization{}, err
	}
	s.Log.Info("organization created", "organization_id", o.ID, "owner_id", actor.UserID)
	return o, nil
}

// visible hides an unapproved profile from everyone but its owner and admins.
func visible(actor Actor, owner uint64, approved bool) bool {
	return approved || owner == actor.UserID || actor.IsAdmin()
}

func (s *AccountService) GetBusiness(ctx context.Context, actor Actor, id uint64) (model.Business, error) {
	b, err := s.Businesses.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return b, NotFound("business %d not found", id)
	}
	if err != nil {
		return b, err
	}
	if !visible(actor, b.OwnerUserID, b.Approved) {
		return model.Business{}, Forbidden("business %d is not approved yet", id)
	}
	return b, nil
}

func (s *AccountService) GetOrganization(ctx context.Context, actor Actor, id uint64) (model.Organization, error) {
	o, err := s.Organizations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return o, NotFound("organization %d not found", id)
	}
	if err != nil {
		return o, err
	}
	if !visible(actor, o.OwnerUserID, o.Approved) {
		return model.Organization{}, Forbidden("organization %d is not approved yet", id)
	}
	return o, nil
}

func (s *AccountService) MyBusiness(ctx context.Context, actor Actor) (model.Business, error) {
	b, err := s.Businesses.GetByOwner(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return b, NotFound("this account owns no business")
	}
	return b, err
}

func (s *AccountService) MyOrganization(ctx context.Context, actor Actor) (model.Organization, error) {
	o, err := s.Organizations.GetByOwner(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return o, NotFound("this account owns no organization")
	}
	return o, err
}

// UpdateBusiness replaces the profile fields.  Approval is never touched.
func (s *AccountService) UpdateBusiness(ctx context.Context, actor Actor, id uint64, in PartnerInput) (model.Business, error) {
	cur, err := s.Businesses.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return cur, NotFound("business %d not found", id)
	}
	if err != nil {
		return cur, err
	}
	if cur.OwnerUserID != actor.UserID && !actor.IsAdmin() {
		return model.Business{}, Forbidden("not your business")
	}
	if err := validatePartner(&in); err != nil {
		return model.Business{}, err
	}
	b, err := s.Businesses.Update(ctx, id, in.profile())
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return model.Business{}, Conflict("registration id %s is already registered", in.RegistrationID)
	case errors.Is(err, repository.ErrNotFound):
		return model.Business{}, NotFound("business %d not found", id)
	}
	return b, err
}

// UpdateOrganization replaces the profile fields.  Approval is never touched.
func (s *AccountService) UpdateOrganization(ctx context.Context, actor Actor, id uint64, in PartnerInput) (model.Organization, error) {
	cur, err := s.Organizations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return cur, NotFound("organization %d not found", id)
	}
	if err != nil {
		return cur, err
	}
	if cur.OwnerUserID != actor.UserID && !actor.IsAdmin() {
		return model.Organization{}, Forbidden("not your organization")
	}
	if err := validatePartner(&in); err != nil {
		return model.Organization{}, err
	}
	o, err := s.Organizations.Update(ctx, id, in.profile())
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return model.Organization{}, Conflict("registration id %s is already registered", in.RegistrationID)
	case errors.Is(err, repository.ErrNotFound):
		return model.Organization{}, NotFound("organization %d not found", id)
	}
	return o, err
}

func (s *AccountService) SetBusinessApproval(ctx context.Context, actor Actor, id uint64, approved bool) (model.Business, error) {
	if !actor.IsAdmin() {
		return model.Business{}, Forbidden("admin only")
	}
	if err := s.Businesses.SetApproved(ctx, id, approved); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Business{}, NotFound("business %d not found", id)
		}
		return model.Business{}, err
	}
	s.Log.Info("business approval set", "business_id", id, "approved", approved, "actor_id", actor.UserID)
	return s.Businesses.GetByID(ctx, id)
}

func (s *AccountService) SetOrganizationApproval(ctx context.Context, actor Actor, id uint64, approved bool) (model.Organization, error) {
	if !actor.IsAdmin() {
		return model.Organization{}, Forbidden("admin only")
	}
	if err := s.Organizations.SetApproved(ctx, id, approved); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Organization{}, NotFound("organization %d not found", id)
		}
		return model.Organization{}, err
	}
	s.Log.Info("organization approval set", "organization_id", id, "approved", approved, "actor_id", actor.UserID)
	return s.Organizations.GetByID(ctx, id)
}

// ChangeRole replaces an account's role label.  A label that contradicts
// the owned entities is refused: BUSINESS on an account owning only an
// organization, ORGANIZATION on one owning only a business.  The new role
// reaches access tokens on the next refresh.
func (s *AccountService) ChangeRole(ctx context.Context, actor Actor, id uint64, role string) (AccountDetail, error) {
	if !actor.IsAdmin() {
		return AccountDetail{}, Forbidden("admin only")
	}
	role = strings.ToUpper(strings.TrimSpace(role))
	if !model.ValidRole(role) {
		return AccountDetail{}, Validation("role must be one of ADMIN, BUSINESS, ORGANIZATION, NONE")
	}
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := s.Users.GetByIDTx(ctx, tx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NotFound("account %d not found", id)
			}
			return err
		}
		_, berr := s.Businesses.GetByOwnerTx(ctx, tx, id)
		if berr != nil && !errors.Is(berr, repository.ErrNotFound) {
			return berr
		}
		_, oerr := s.Organizations.GetByOwnerTx(ctx, tx, id)
		if oerr != nil && !errors.Is(oerr, repository.ErrNotFound) {
			return oerr
		}
		ownsBusiness, ownsOrg := berr == nil, oerr == nil
		switch {
		case role == model.RoleBusiness && ownsOrg && !ownsBusiness:
			return Conflict("account %d owns an organization, not a business", id)
		case role == model.RoleOrganization && ownsBusiness && !ownsOrg:
			return Conflict("account %d owns a business, not an organization", id)
		}
		return s.Users.SetRoleTx(ctx, tx, id, role)
	})
	if err != nil {
		return AccountDetail{}, err
	}
	s.Log.Info("account role changed", "account_id", id, "role", role, "actor_id", actor.UserID)
	return s.detail(ctx, id)
}

// DeleteAccount removes a non-admin account with everything it owns.
// Listings held by the account's organization are released first so no
// listing stays RESERVED without a reservation.
func (s *AccountService) DeleteAccount(ctx context.Context, actor Actor, id uint64) error {
	if !actor.IsAdmin() {
		return Forbidden("admin only")
	}
	u, err := s.Users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound("account %d not found", id)
	}
	if err != nil {
		return err
	}
	if u.Role == model.RoleAdmin {
		return Forbidden("an admin account cannot be deleted")
	}
	docs, err := s.Documents.Documents.ListByUser(ctx, id)
	if err != nil {
		return err
	}

	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		o, err := s.Organizations.GetByOwnerTx(ctx, tx, id)
		if err == nil {
			held, err := s.Reservations.ActiveForOrganizationTx(ctx, tx, o.ID)
			if err != nil {
				return err
			}
			for _, r := range held {
				if err := s.Listings.TransitionTx(ctx, tx, r.ListingID, model.ListingReserved, model.ListingAvailable); err != nil &&
					!errors.Is(err, repository.ErrConflict) {
					return err
				}
			}
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := s.Users.DeleteTx(ctx, tx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NotFound("account %d not found", id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Documents.purgeBlobs(ctx, docs)
	s.Log.Warn("account deleted", "account_id", id, "actor_id", actor.UserID, "documents", len(docs))
	return nil
}

// EnsureAdmin makes sure the bootstrap account exists with the ADMIN role.
// An existing account with that email is promoted; its password is left
// alone.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, password string, cost int) error {
	u, err := s.Users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		id, err := s.Users.Create(ctx, repository.NewUser{
			Email: email, Password: password, FirstName: "Admin", LastName: "Admin", Role: model.RoleAdmin,
		}, cost)
		if err != nil && !errors.Is(err, repository.ErrEmailExists) {
			return err
		}
		s.Log.Info("bootstrap admin created", "account_id", id)
		return nil
	case err != nil:
		return err
	case u.Role == model.RoleAdmin:
		return nil
	}
	err = withTx(ctx, s.DB, func(tx *sql.Tx) error {
		return s.Users.SetRoleTx(ctx, tx, u.ID, model.RoleAdmin)
	})
	if err == nil {
		s.Log.Warn("bootstrap account promoted to admin", "account_id", u.ID)
	}
	return err
}
