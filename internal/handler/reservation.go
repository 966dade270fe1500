package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/middleware"
	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/service"
)

// ReservationHandler exposes the reservation engine.
type ReservationHandler struct {
	Reservations *service.ReservationService
	Log          *slog.Logger
}

func NewReservationHandler(reservations *service.ReservationService, log *slog.Logger) *ReservationHandler {
	return &ReservationHandler{Reservations: reservations, Log: log}
}

type createReservationReq struct {
	ListingID uint64    `json:"listing_id" validate:"required"`
	CollectAt time.Time `json:"collect_at" validate:"required"`
	Comment   *string   `json:"comment" validate:"omitempty,max=500"`
}

type transitionReq struct {
	Status  string  `json:"status" validate:"required"`
	Comment *string `json:"comment" validate:"omitempty,max=500"`
}

// Create handles POST /v1/reservations.  A retry carrying the same
// Idempotency-Key returns the reservation created by the first attempt,
// with 200 instead of 201.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	r, replayed, err := h.Reservations.Create(c.Request().Context(), actor(c), service.CreateReservation{
		ListingID:      req.ListingID,
		CollectAt:      req.CollectAt,
		Comment:        req.Comment,
		IdempotencyKey: strings.TrimSpace(c.Request().Header.Get(middleware.HeaderIdempotencyKey)),
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if replayed {
		return c.JSON(http.StatusOK, r)
	}
	return c.JSON(http.StatusCreated, r)
}

// Transition handles PUT /v1/reservations/:id.
func (h *ReservationHandler) Transition(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var req transitionReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	v, err := h.Reservations.Transition(c.Request().Context(), actor(c), id, strings.ToUpper(strings.TrimSpace(req.Status)), req.Comment)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Delete handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	if err := h.Reservations.Delete(c.Request().Context(), actor(c), id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "reservation deleted", "id": id})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	v, err := h.Reservations.Get(c.Request().Context(), actor(c), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, v)
}

func reservationQuery(c echo.Context) (service.ReservationQuery, error) {
	q := service.ReservationQuery{Status: strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))}
	q.Page, q.PageSize = pageParams(c)
	var err error
	if q.From, err = queryTime(c, "from"); err != nil {
		return q, err
	}
	if q.To, err = queryTime(c, "to"); err != nil {
		return q, err
	}
	return q, nil
}

// listView is the shape shared by ForOrganization, ForBusiness and All.
type listView func(ctx context.Context, a service.Actor, q service.ReservationQuery) (service.Paged[model.ReservationView], error)

func (h *ReservationHandler) list(c echo.Context, view listView) error {
	q, err := reservationQuery(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	page, err := view(c.Request().Context(), actor(c), q)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, page)
}

// ForOrganization handles GET /v1/reservations/organization.
func (h *ReservationHandler) ForOrganization(c echo.Context) error {
	return h.list(c, h.Reservations.ForOrganization)
}

// ForBusiness handles GET /v1/reservations/business.
func (h *ReservationHandler) ForBusiness(c echo.Context) error {
	return h.list(c, h.Reservations.ForBusiness)
}

// All handles GET /v1/admin/reservations.
func (h *ReservationHandler) All(c echo.Context) error {
	return h.list(c, h.Reservations.All)
}
