package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/repository"
	"github.com/iliyamo/foodshare/internal/service"
)

// PartnerHandler exposes business and organization profiles and the
// admin account endpoints.
type PartnerHandler struct {
	Accounts *service.AccountService
	Log      *slog.Logger
}

func NewPartnerHandler(accounts *service.AccountService, log *slog.Logger) *PartnerHandler {
	return &PartnerHandler{Accounts: accounts, Log: log}
}

// partnerReq is the body of create and update for both entity kinds.
// Length rules are enforced again by the service.
type partnerReq struct {
	Name           string   `json:"name" validate:"required,max=100"`
	Description    *string  `json:"description"`
	Address        string   `json:"address" validate:"required,max=200"`
	PostalCode     string   `json:"postal_code" validate:"required,max=10"`
	Locality       string   `json:"locality" validate:"required,max=100"`
	Canton         string   `json:"canton" validate:"required,max=50"`
	Latitude       *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Website        *string  `json:"website" validate:"omitempty,max=255"`
	RegistrationID string   `json:"registration_id" validate:"required,max=30"`
}

func (r partnerReq) input() service.PartnerInput {
	return service.PartnerInput{
		Name: r.Name, Description: r.Description, Address: r.Address, PostalCode: r.PostalCode,
		Locality: r.Locality, Canton: r.Canton, Latitude: r.Latitude, Longitude: r.Longitude,
		Website: r.Website, RegistrationID: r.RegistrationID,
	}
}

type approvalReq struct {
	Approved *bool `json:"approved" validate:"required"`
}

type roleReq struct {
	Role string `json:"role" validate:"required,role"`
}

// reply writes v with status, or the error.
func (h *PartnerHandler) reply(c echo.Context, status int, v any, err error) error {
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(status, v)
}

// CreateBusiness handles POST /v1/businesses.
func (h *PartnerHandler) CreateBusiness(c echo.Context) error {
	var req partnerReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	b, err := h.Accounts.CreateBusiness(c.Request().Context(), actor(c), req.input())
	return h.reply(c, http.StatusCreated, b, err)
}

// CreateOrganization handles POST /v1/organizations.
func (h *PartnerHandler) CreateOrganization(c echo.Context) error {
	var req partnerReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	o, err := h.Accounts.CreateOrganization(c.Request().Context(), actor(c), req.input())
	return h.reply(c, http.StatusCreated, o, err)
}

// directoryQuery reads the filters shared by both directories.
func directoryQuery(c echo.Context) (repository.PartnerQuery, error) {
	q := repository.PartnerQuery{
		Locality:   strings.TrimSpace(c.QueryParam("locality")),
		PostalCode: strings.TrimSpace(c.QueryParam("postal_code")),
		Canton:     strings.TrimSpace(c.QueryParam("canton")),
		Text:       c.QueryParam("q"),
		SortBy:     c.QueryParam("sort_by"),
		SortDir:    c.QueryParam("sort_dir"),
	}
	q.Page, q.PageSize = pageParams(c)
	var err error
	if q.Approved, err = queryBool(c, "approved"); err != nil {
		return q, err
	}
	if q.Lat, err = queryFloat(c, "lat"); err != nil {
		return q, err
	}
	if q.Lng, err = queryFloat(c, "lng"); err != nil {
		return q, err
	}
	q.RadiusKm, err = queryFloat(c, "radius_km")
	return q, err
}

// Businesses handles GET /v1/businesses.
func (h *PartnerHandler) Businesses(c echo.Context) error {
	q, err := directoryQuery(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	page, err := h.Accounts.SearchBusinesses(c.Request().Context(), actor(c), q)
	return h.reply(c, http.StatusOK, page, err)
}

// Organizations handles GET /v1/organizations.
func (h *PartnerHandler) Organizations(c echo.Context) error {
	q, err := directoryQuery(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	page, err := h.Accounts.SearchOrganizations(c.Request().Context(), actor(c), q)
	return h.reply(c, http.StatusOK, page, err)
}

// GetBusiness handles GET /v1/businesses/:id.
func (h *PartnerHandler) GetBusiness(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid business id")
	}
	b, err := h.Accounts.GetBusiness(c.Request().Context(), actor(c), id)
	return h.reply(c, http.StatusOK, b, err)
}

// GetOrganization handles GET /v1/organizations/:id.
func (h *PartnerHandler) GetOrganization(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid organization id")
	}
	o, err := h.Accounts.GetOrganization(c.Request().Context(), actor(c), id)
	return h.reply(c, http.StatusOK, o, err)
}

// MyBusiness handles GET /v1/businesses/me.
func (h *PartnerHandler) MyBusiness(c echo.Context) error {
	b, err := h.Accounts.MyBusiness(c.Request().Context(), actor(c))
	return h.reply(c, http.StatusOK, b, err)
}

// MyOrganization handles GET /v1/organizations/me.
func (h *PartnerHandler) MyOrganization(c echo.Context) error {
	o, err := h.Accounts.MyOrganization(c.Request().Context(), actor(c))
	return h.reply(c, http.StatusOK, o, err)
}

// UpdateBusiness handles PUT /v1/businesses/:id.
func (h *PartnerHandler) UpdateBusiness(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid business id")
	}
	var req partnerReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	b, err := h.Accounts.UpdateBusiness(c.Request().Context(), actor(c), id, req.input())
	return h.reply(c, http.StatusOK, b, err)
}

// UpdateOrganization handles PUT /v1/organizations/:id.
func (h *PartnerHandler) UpdateOrganization(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid organization id")
	}
	var req partnerReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	o, err := h.Accounts.UpdateOrganization(c.Request().Context(), actor(c), id, req.input())
	return h.reply(c, http.StatusOK, o, err)
}

// ----- admin -----

// ListAccounts handles GET /v1/admin/accounts.
func (h *PartnerHandler) ListAccounts(c echo.Context) error {
	q := service.AccountQuery{Role: strings.ToUpper(strings.TrimSpace(c.QueryParam("role"))), Search: c.QueryParam("search")}
	q.Page, q.PageSize = pageParams(c)
	page, err := h.Accounts.ListAccounts(c.Request().Context(), actor(c), q)
	return h.reply(c, http.StatusOK, page, err)
}

// GetAccount handles GET /v1/admin/accounts/:id.
func (h *PartnerHandler) GetAccount(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid account id")
	}
	d, err := h.Accounts.GetAccount(c.Request().Context(), actor(c), id)
	return h.reply(c, http.StatusOK, d, err)
}

// ChangeRole handles PUT /v1/admin/accounts/:id/role.
func (h *PartnerHandler) ChangeRole(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid account id")
	}
	var req roleReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	d, err := h.Accounts.ChangeRole(c.Request().Context(), actor(c), id, req.Role)
	return h.reply(c, http.StatusOK, d, err)
}

// DeleteAccount handles DELETE /v1/admin/accounts/:id.
func (h *PartnerHandler) DeleteAccount(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid account id")
	}
	if err := h.Accounts.DeleteAccount(c.Request().Context(), actor(c), id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetBusinessApproval handles PUT /v1/admin/businesses/:id/approval.
func (h *PartnerHandler) SetBusinessApproval(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid business id")
	}
	var req approvalReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	b, err := h.Accounts.SetBusinessApproval(c.Request().Context(), actor(c), id, *req.Approved)
	return h.reply(c, http.StatusOK, b, err)
}

// SetOrganizationApproval handles PUT /v1/admin/organizations/:id/approval.
func (h *PartnerHandler) SetOrganizationApproval(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid organization id")
	}
	var req approvalReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	o, err := h.Accounts.SetOrganizationApproval(c.Request().Context(), actor(c), id, *req.Approved)
	return h.reply(c, http.StatusOK, o, err)
}
