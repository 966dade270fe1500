package service

import "github.com/iliyamo/foodshare/internal/model"

// Permission names one guarded capability.
type Permission string

const (
	PermListingPublish         Permission = "listing:publish"
	PermListingBrowse          Permission = "listing:browse"
	PermListingManage          Permission = "listing:manage"
	PermListingOverride        Permission = "listing:override"
	PermReservationCreate      Permission = "reservation:create"
	PermReservationOwnOrg      Permission = "reservation:list_organization"
	PermReservationOwnBiz      Permission = "reservation:list_business"
	PermReservationAll         Permission = "reservation:list_all"
	PermReservationParticipate Permission = "reservation:participate"
	PermDocumentSubmit         Permission = "document:submit"
	PermDocumentReview         Permission = "document:review"
	PermPartnerManage          Permission = "partner:manage"
	PermAccountAdmin           Permission = "account:admin"
)

// Policy maps role labels to permissions.  It is built once by NewPolicy
// and never mutated afterwards, so it is safe to share between requests.
type Policy struct {
	grants map[string]map[Permission]bool
}

// NewPolicy returns the role table.  Ownership checks (is this my listing,
// my reservation) live in the services; the policy only answers whether a
// role may attempt an operation at all.
func NewPolicy() *Policy {
	common := []Permission{PermListingBrowse, PermReservationParticipate, PermDocumentSubmit, PermPartnerManage}
	table := map[string][]Permission{
		model.RoleAdmin: append([]Permission{
			PermListingManage, PermListingOverride, PermReservationAll, PermDocumentReview, PermAccountAdmin,
		}, common...),
		model.RoleBusiness: append([]Permission{
			PermListingPublish, PermListingManage, PermReservationOwnBiz,
		}, common...),
		model.RoleOrganization: append([]Permission{
			PermReservationCreate, PermReservationOwnOrg,
		}, common...),
		model.RoleNone: common,
	}
	p := &Policy{grants: make(map[string]map[Permission]bool, len(table))}
	for role, perms := range table {
		set := make(map[Permission]bool, len(perms))
		for _, perm := range perms {
			set[perm] = true
		}
		p.grants[role] = set
	}
	return p
}

// Allows reports whether role holds perm.  Unknown roles hold nothing.
func (p *Policy) Allows(role string, perm Permission) bool {
	return p.grants[role][perm]
}

// Actor is the authenticated caller as seen by the services.
type Actor struct {
	UserID uint64
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }
