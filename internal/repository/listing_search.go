package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/utils"
)

// ListingQuery defines filters & pagination for searching listings.
type ListingQuery struct {
	BusinessID      uint64
	Urgent          *bool
	AvailableAfter  *time.Time // window starts at or after
	AvailableBefore *time.Time // window ends at or before
	Locality        string
	PostalCode      string
	Canton          string
	Text            string
	Status          string // honoured only with IncludeAll

	Lat, Lng, RadiusKm *float64

	SortBy   string
	SortDir  string
	Page     int
	PageSize int

	// IncludeAll drops the default visibility predicate (admins, owners).
	IncludeAll bool
}

// Geo reports whether a radius search was requested.
func (q ListingQuery) Geo() bool { return q.Lat != nil && q.Lng != nil && q.RadiusKm != nil }

// ListingRow is a listing joined with the business fields shown in search.
type ListingRow struct {
	model.Listing
	EffectiveStatus string   `json:"effective_status"`
	BusinessName    string   `json:"business_name"`
	Locality        string   `json:"locality"`
	PostalCode      string   `json:"postal_code"`
	Canton          string   `json:"canton"`
	DistanceKm      *float64 `json:"distance_km,omitempty"`

	lat, lng *float64
}

// listingSortColumns whitelists sort keys; anything else falls back to
// available_until.
var listingSortColumns = map[string]string{
	"available_until": "l.available_until",
	"available_from":  "l.available_from",
	"created_at":      "l.created_at",
	"quantity":        "l.quantity",
	"title":           "l.title",
}

// visibleListingClause is the read-time visibility rule: available, window
// still open and the business approved.  Every non-privileged read goes
// through it together with model.Listing.EffectiveStatus.
func visibleListingClause(now time.Time) (string, []any) {
	return "l.status = ? AND l.available_until > ? AND b.approved = ?", []any{model.ListingAvailable, now, true}
}

// place is the address and radius part of a search.  Listings are placed
// by their business.
type place struct {
	Locality, PostalCode, Canton string
	Lat, Lng, RadiusKm           *float64
}

func (p place) geo() bool { return p.Lat != nil && p.Lng != nil && p.RadiusKm != nil }

// placeClauses builds the WHERE fragments for p against the partner table
// aliased as alias.  A radius becomes a bounding box here; callers refine
// it with the haversine distance.
func placeClauses(alias string, p place) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if p.Locality != "" {
		where = append(where, "LOWER("+alias+".locality) LIKE ?")
		args = append(args, "%"+strings.ToLower(p.Locality)+"%")
	}
	if p.PostalCode != "" {
		where = append(where, alias+".postal_code = ?")
		args = append(args, p.PostalCode)
	}
	if p.Canton != "" {
		where = append(where, "LOWER("+alias+".canton) = ?")
		args = append(args, strings.ToLower(p.Canton))
	}
	if p.geo() {
		minLat, maxLat, minLng, maxLng := utils.BoundingBox(*p.Lat, *p.Lng, *p.RadiusKm)
		where = append(where, alias+".latitude IS NOT NULL AND "+alias+".longitude IS NOT NULL AND "+
			alias+".latitude BETWEEN ? AND ? AND "+alias+".longitude BETWEEN ? AND ?")
		args = append(args, minLat, maxLat, minLng, maxLng)
	}
	return where, args
}

// pageOf slices one page out of rows ranked in memory.
func pageOf[T any](rows []T, pageNo, size int) []T {
	start := (pageNo - 1) * size
	if start >= len(rows) {
		return []T{}
	}
	end := start + size
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// Search returns one page of listings matching q plus the total count.
// Radius searches prefilter with a bounding box in SQL and then rank and
// page in memory on the exact haversine distance.
func (r *ListingRepo) Search(ctx context.Context, q ListingQuery, now time.Time) ([]ListingRow, int64, error) {
	where := []string{}
	args := []any{}

	if q.IncludeAll {
		if q.Status != "" {
			where = append(where, "l.status = ?")
			args = append(args, q.Status)
		}
	} else {
		c, a := visibleListingClause(now)
		where = append(where, c)
		args = append(args, a...)
	}
	if q.BusinessID != 0 {
		where = append(where, "l.business_id = ?")
		args = append(args, q.BusinessID)
	}
	if q.Urgent != nil {
		where = append(where, "l.urgent = ?")
		args = append(args, *q.Urgent)
	}
	if q.AvailableAfter != nil {
		where = append(where, "l.available_from >= ?")
		args = append(args, *q.AvailableAfter)
	}
	if q.AvailableBefore != nil {
		where = append(where, "l.available_until <= ?")
		args = append(args, *q.AvailableBefore)
	}
	w, a := placeClauses("b", place{q.Locality, q.PostalCode, q.Canton, q.Lat, q.Lng, q.RadiusKm})
	where = append(where, w...)
	args = append(args, a...)
	if q.Text != "" {
		like := "%" + strings.ToLower(q.Text) + "%"
		where = append(where, "(LOWER(l.title) LIKE ? OR LOWER(COALESCE(l.description, '')) LIKE ?)")
		args = append(args, like, like)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	from := ` FROM listings l JOIN businesses b ON b.id = l.business_id WHERE ` + cond

	col, ok := listingSortColumns[strings.ToLower(q.SortBy)]
	if !ok {
		col = "l.available_until"
	}
	dir := "ASC"
	if strings.EqualFold(q.SortDir, "desc") {
		dir = "DESC"
	}
	selectSQL := "SELECT " + listingColumns + ", b.name, b.locality, b.postal_code, b.canton, b.latitude, b.longitude" +
		from + " ORDER BY " + col + " " + dir + ", l.id " + dir

	if q.Geo() {
		rows, err := r.scanRows(ctx, selectSQL, args, now)
		if err != nil {
			return nil, 0, err
		}
		kept := rankByDistance(rows, q)
		return pageOf(kept, q.Page, q.PageSize), int64(len(kept)), nil
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize
	out, err := r.scanRows(ctx, selectSQL+" LIMIT ? OFFSET ?", append(append([]any{}, args...), limit, offset), now)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ListingRepo) scanRows(ctx context.Context, query string, args []any, now time.Time) ([]ListingRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ListingRow{}
	for rows.Next() {
		var (
			d        ListingRow
			lat, lng sql.NullFloat64
		)
		l, err := scanListing(rows, &d.BusinessName, &d.Locality, &d.PostalCode, &d.Canton, &lat, &lng)
		if err != nil {
			return nil, err
		}
		d.Listing = l
		d.EffectiveStatus = l.EffectiveStatus(now)
		d.lat, d.lng = nullFloat(lat), nullFloat(lng)
		out = append(out, d)
	}
	return out, rows.Err()
}

// rankByDistance keeps rows inside the radius and, unless another sort key
// was asked for, orders them nearest first.
func rankByDistance(rows []ListingRow, q ListingQuery) []ListingRow {
	kept := rows[:0]
	for _, row := range rows {
		if row.lat == nil || row.lng == nil {
			continue
		}
		d := utils.HaversineKm(*q.Lat, *q.Lng, *row.lat, *row.lng)
		if d > *q.RadiusKm {
			continue
		}
		row.DistanceKm = &d
		kept = append(kept, row)
	}
	// Rows arrive in the requested SQL order; a stable sort on distance keeps
	// that order among equal distances.
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
