package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/repository"
	"github.com/iliyamo/foodshare/internal/service"
)

// ListingHandler exposes the listing registry.
type ListingHandler struct {
	Listings     *service.ListingService
	Reservations *service.ReservationService
	Log          *slog.Logger
}

func NewListingHandler(listings *service.ListingService, reservations *service.ReservationService, log *slog.Logger) *ListingHandler {
	return &ListingHandler{Listings: listings, Reservations: reservations, Log: log}
}

type createListingReq struct {
	Title          string    `json:"title" validate:"required,max=100"`
	Description    *string   `json:"description"`
	Quantity       float64   `json:"quantity" validate:"gt=0"`
	Unit           string    `json:"unit" validate:"required,max=20"`
	AvailableFrom  time.Time `json:"available_from" validate:"required"`
	AvailableUntil time.Time `json:"available_until" validate:"required"`
	Urgent         bool      `json:"urgent"`
	Allergens      *string   `json:"allergens"`
	Temperature    *string   `json:"temperature" validate:"omitempty,max=50"`
}

type updateListingReq struct {
	Title          *string    `json:"title" validate:"omitempty,max=100"`
	Description    *string    `json:"description"`
	Quantity       *float64   `json:"quantity" validate:"omitempty,gt=0"`
	Unit           *string    `json:"unit" validate:"omitempty,max=20"`
	AvailableFrom  *time.Time `json:"available_from"`
	AvailableUntil *time.Time `json:"available_until"`
	Urgent         *bool      `json:"urgent"`
	Allergens      *string    `json:"allergens"`
	Temperature    *string    `json:"temperature" validate:"omitempty,max=50"`
	Status         *string    `json:"status"`
}

type statusReq struct {
	Status string `json:"status" validate:"required"`
}

// listingResp adds the derived status to a freshly written listing.
type listingResp struct {
	model.Listing
	EffectiveStatus string `json:"effective_status"`
}

func withEffective(l model.Listing) listingResp {
	return listingResp{Listing: l, EffectiveStatus: l.EffectiveStatus(time.Now().UTC())}
}

// Create handles POST /v1/listings.
func (h *ListingHandler) Create(c echo.Context) error {
	var req createListingReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	l, err := h.Listings.Create(c.Request().Context(), actor(c), service.ListingInput{
		Title: req.Title, Description: req.Description, Quantity: req.Quantity, Unit: req.Unit,
		AvailableFrom: req.AvailableFrom, AvailableUntil: req.AvailableUntil,
		Urgent: req.Urgent, Allergens: req.Allergens, Temperature: req.Temperature,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, withEffective(l))
}

// Update handles PUT /v1/listings/:id.
func (h *ListingHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing id")
	}
	var req updateListingReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	if req.Status != nil {
		up := strings.ToUpper(strings.TrimSpace(*req.Status))
		req.Status = &up
	}
	l, err := h.Listings.Update(c.Request().Context(), actor(c), id, service.ListingPatch{
		Title: req.Title, Description: req.Description, Quantity: req.Quantity, Unit: req.Unit,
		AvailableFrom: req.AvailableFrom, AvailableUntil: req.AvailableUntil,
		Urgent: req.Urgent, Allergens: req.Allergens, Temperature: req.Temperature, Status: req.Status,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, withEffective(l))
}

// Delete handles DELETE /v1/listings/:id.
func (h *ListingHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing id")
	}
	if err := h.Listings.Delete(c.Request().Context(), actor(c), id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /v1/listings/:id.
func (h *ListingHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing id")
	}
	row, err := h.Listings.Get(c.Request().Context(), actor(c), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, row)
}

// Search handles GET /v1/listings.
func (h *ListingHandler) Search(c echo.Context) error {
	q, err := listingQuery(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	page, err := h.Listings.Query(c.Request().Context(), actor(c), q)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if exp, ok := firstExpiry(page.Data); ok {
		c.Response().Header().Set("Expires", exp.Format(http.TimeFormat))
	}
	return c.JSON(http.StatusOK, page)
}

// firstExpiry is the earliest end of window among the available rows: the
// moment the page stops being accurate without any write.
func firstExpiry(rows []repository.ListingRow) (time.Time, bool) {
	var first time.Time
	for _, r := range rows {
		if r.EffectiveStatus != model.ListingAvailable {
			continue
		}
		if first.IsZero() || r.AvailableUntil.Before(first) {
			first = r.AvailableUntil
		}
	}
	return first, !first.IsZero()
}

// Mine handles GET /v1/listings/mine.
func (h *ListingHandler) Mine(c echo.Context) error {
	pageNo, size := pageParams(c)
	status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	page, err := h.Listings.Mine(c.Request().Context(), actor(c), status, pageNo, size)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Override handles PUT /v1/admin/listings/:id/status.
func (h *ListingHandler) Override(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing id")
	}
	var req statusReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	l, err := h.Reservations.OverrideListingStatus(c.Request().Context(), actor(c), id, strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, withEffective(l))
}

// listingQuery reads the search filters from the query string.
func listingQuery(c echo.Context) (repository.ListingQuery, error) {
	q := repository.ListingQuery{
		Locality:   strings.TrimSpace(c.QueryParam("locality")),
		PostalCode: strings.TrimSpace(c.QueryParam("postal_code")),
		Canton:     strings.TrimSpace(c.QueryParam("canton")),
		Text:       strings.TrimSpace(c.QueryParam("q")),
		Status:     strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))),
		SortBy:     c.QueryParam("sort_by"),
		SortDir:    c.QueryParam("sort_dir"),
	}
	q.Page, q.PageSize = pageParams(c)
	if v := c.QueryParam("business_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return q, service.Validation("business_id must be a positive integer")
		}
		q.BusinessID = id
	}
	var err error
	if q.Urgent, err = queryBool(c, "urgent"); err != nil {
		return q, err
	}
	if q.AvailableAfter, err = queryTime(c, "available_after"); err != nil {
		return q, err
	}
	if q.AvailableBefore, err = queryTime(c, "available_before"); err != nil {
		return q, err
	}
	if q.Lat, err = queryFloat(c, "lat"); err != nil {
		return q, err
	}
	if q.Lng, err = queryFloat(c, "lng"); err != nil {
		return q, err
	}
	if q.RadiusKm, err = queryFloat(c, "radius_km"); err != nil {
		return q, err
	}
	return q, nil
}
