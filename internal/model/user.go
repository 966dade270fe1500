package model

import "time"

// Role labels stored in users.role.  The label is an authorization
// attribute only; what an account *is* comes from Kind below.
const (
	RoleAdmin        = "ADMIN"
	RoleBusiness     = "BUSINESS"
	RoleOrganization = "ORGANIZATION"
	RoleNone         = "NONE"
)

// ValidRole reports whether r is one of the known role labels.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleBusiness, RoleOrganization, RoleNone:
		return true
	}
	return false
}

// User represents an account record as stored in the `users` table.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password (never serialized).
//  FirstName    – given name.
//  LastName     – family name.
//  Phone        – optional phone number.
//  Role         – ADMIN, BUSINESS, ORGANIZATION or NONE.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    `json:"id"`         // users.id
	Email        string    `json:"email"`      // users.email
	PasswordHash string    `json:"-"`          // users.password_hash
	FirstName    string    `json:"first_name"` // users.first_name
	LastName     string    `json:"last_name"`  // users.last_name
	Phone        *string   `json:"phone,omitempty"`
	Role         string    `json:"role"`       // users.role
	CreatedAt    time.Time `json:"created_at"` // users.created_at
	UpdatedAt    time.Time `json:"updated_at"` // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the raw token is persisted.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// Account kinds.  KindOf derives one of these from the role label and the
// entities the account owns.
const (
	KindAdmin        = "ADMIN"
	KindBusiness     = "BUSINESS"
	KindOrganization = "ORGANIZATION"
	KindUnaffiliated = "UNAFFILIATED"
)

// AccountKind is the derived variant of an account.  Exactly one of
// BusinessID/OrganizationID is set when Kind is BUSINESS/ORGANIZATION.
type AccountKind struct {
	Kind           string  `json:"kind"`
	BusinessID     *uint64 `json:"business_id,omitempty"`
	OrganizationID *uint64 `json:"organization_id,omitempty"`
}

// KindOf derives the account kind.  Admin wins, then an owned Business,
// then an owned Organization.
func KindOf(role string, businessID, organizationID *uint64) AccountKind {
	switch {
	case role == RoleAdmin:
		return AccountKind{Kind: KindAdmin}
	case businessID != nil:
		return AccountKind{Kind: KindBusiness, BusinessID: businessID}
	case organizationID != nil:
		return AccountKind{Kind: KindOrganization, OrganizationID: organizationID}
	}
	return AccountKind{Kind: KindUnaffiliated}
}
