package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/utils"
)

// PartnerQuery filters the business and organization directories.
type PartnerQuery struct {
	Locality   string
	PostalCode string
	Canton     string
	Text       string // name or description
	Approved   *bool

	Lat, Lng, RadiusKm *float64

	SortBy   string
	SortDir  string
	Page     int
	PageSize int
}

func (q PartnerQuery) place() place {
	return place{q.Locality, q.PostalCode, q.Canton, q.Lat, q.Lng, q.RadiusKm}
}

// PartnerRow is one directory entry.
type PartnerRow struct {
	model.Business
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// OrganizationRow is PartnerRow for the organizations table.
type OrganizationRow struct {
	model.Organization
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

var partnerSortColumns = map[string]string{
	"name":       "p.name",
	"created_at": "p.created_at",
	"locality":   "p.locality",
}

func (p partnerTable) search(ctx context.Context, q PartnerQuery) ([]PartnerRow, int64, error) {
	where, args := placeClauses("p", q.place())
	if q.Approved != nil {
		where = append(where, "p.approved = ?")
		args = append(args, *q.Approved)
	}
	if q.Text != "" {
		like := "%" + strings.ToLower(q.Text) + "%"
		where = append(where, "(LOWER(p.name) LIKE ? OR LOWER(COALESCE(p.description, '')) LIKE ?)")
		args = append(args, like, like)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	from := " FROM " + p.table + " p WHERE " + cond

	col, ok := partnerSortColumns[strings.ToLower(q.SortBy)]
	if !ok {
		col = "p.name"
	}
	dir := "ASC"
	if strings.EqualFold(q.SortDir, "desc") {
		dir = "DESC"
	}
	cols := "p." + strings.ReplaceAll(partnerColumns, ", ", ", p.")
	selectSQL := "SELECT " + cols + from + " ORDER BY " + col + " " + dir + ", p.id " + dir

	if q.place().geo() {
		rows, err := p.scanRows(ctx, selectSQL, args)
		if err != nil {
			return nil, 0, err
		}
		kept := rankPartners(rows, q)
		return pageOf(kept, q.Page, q.PageSize), int64(len(kept)), nil
	}

	var total int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	out, err := p.scanRows(ctx, selectSQL+" LIMIT ? OFFSET ?",
		append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize))
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (p partnerTable) scanRows(ctx context.Context, query string, args []any) ([]PartnerRow, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PartnerRow{}
	for rows.Next() {
		b, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, PartnerRow{Business: b})
	}
	return out, rows.Err()
}

// rankPartners drops rows outside the radius and orders by distance unless
// another sort key was asked for.
func rankPartners(rows []PartnerRow, q PartnerQuery) []PartnerRow {
	kept := rows[:0]
	for _, row := range rows {
		if row.Latitude == nil || row.Longitude == nil {
			continue
		}
		d := utils.HaversineKm(*q.Lat, *q.Lng, *row.Latitude, *row.Longitude)
		if d > *q.RadiusKm {
			continue
		}
		row.DistanceKm = &d
		kept = append(kept, row)
	}
	if q.SortBy == "" || strings.EqualFold(q.SortBy, "distance") {
		desc := strings.EqualFold(q.SortDir, "desc")
		sort.SliceStable(kept, func(i, j int) bool {
			if desc {
				return *kept[i].DistanceKm > *kept[j].DistanceKm
			}
			return *kept[i].DistanceKm < *kept[j].DistanceKm
		})
	}
	return kept
}

// Search lists businesses matching q.
func (r *BusinessRepo) Search(ctx context.Context, q PartnerQuery) ([]PartnerRow, int64, error) {
	return r.t.search(ctx, q)
}

// Search lists organizations matching q.
func (r *OrganizationRepo) Search(ctx context.Context, q PartnerQuery) ([]OrganizationRow, int64, error) {
	rows, total, err := r.t.search(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	out := make([]OrganizationRow, len(rows))
	for i, row := range rows {
		out[i] = OrganizationRow{Organization: model.Organization(row.Business), DistanceKm: row.DistanceKm}
	}
	return out, total, nil
}
