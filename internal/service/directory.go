package service

import (
	"context"
	"strings"

	"github.com/iliyamo/foodshare/internal/repository"
)

var partnerSortKeys = map[string]bool{"": true, "name": true, "created_at": true, "locality": true, "distance": true}

// directoryQuery normalises q for one directory read.  Only admins see
// unapproved entries or may filter on approval.
func directoryQuery(actor Actor, q repository.PartnerQuery) (repository.PartnerQuery, error) {
	q.Page, q.PageSize = normalizePage(q.Page, q.PageSize)
	q.SortBy = strings.ToLower(q.SortBy)
	q.SortDir = strings.ToLower(q.SortDir)
	q.Text = strings.TrimSpace(q.Text)
	if !partnerSortKeys[q.SortBy] {
		return q, Validation("unknown sort field %q", q.SortBy)
	}
	if q.SortDir != "" && q.SortDir != "asc" && q.SortDir != "desc" {
		return q, Validation("sort direction must be asc or desc")
	}
	if err := checkGeo(q.Lat, q.Lng, q.RadiusKm, q.SortBy); err != nil {
		return q, err
	}
	if !actor.IsAdmin() {
		approved := true
		q.Approved = &approved
	}
	return q, nil
}

// SearchBusinesses lists the business directory.
func (s *AccountService) SearchBusinesses(ctx context.Context, actor Actor, q repository.PartnerQuery) (Paged[repository.PartnerRow], error) {
	q, err := directoryQuery(actor, q)
	if err != nil {
		return Paged[repository.PartnerRow]{}, err
	}
	rows, total, err := s.Businesses.Search(ctx, q)
	if err != nil {
		return Paged[repository.PartnerRow]{}, err
	}
	return Paged[repository.PartnerRow]{Data: rows, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// SearchOrganizations lists the organization directory.
func (s *AccountService) SearchOrganizations(ctx context.Context, actor Actor, q repository.PartnerQuery) (Paged[repository.OrganizationRow], error) {
	q, err := directoryQuery(actor, q)
	if err != nil {
		return Paged[repository.OrganizationRow]{}, err
	}
	rows, total, err := s.Organizations.Search(ctx, q)
	if err != nil {
		return Paged[repository.OrganizationRow]{}, err
	}
	return Paged[repository.OrganizationRow]{Data: rows, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}
