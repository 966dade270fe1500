package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/service"
)

// StatsHandler serves GET /v1/admin/stats/*.
type StatsHandler struct {
	Stats *service.StatsService
	Log   *slog.Logger
}

func NewStatsHandler(stats *service.StatsService, log *slog.Logger) *StatsHandler {
	return &StatsHandler{Stats: stats, Log: log}
}

func (h *StatsHandler) Accounts(c echo.Context) error {
	st, err := h.Stats.Accounts(c.Request().Context(), actor(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *StatsHandler) Listings(c echo.Context) error {
	st, err := h.Stats.Listings(c.Request().Context(), actor(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *StatsHandler) Reservations(c echo.Context) error {
	st, err := h.Stats.Reservations(c.Request().Context(), actor(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}
