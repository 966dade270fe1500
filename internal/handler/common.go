package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/middleware"
	"github.com/iliyamo/foodshare/internal/service"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error   string       `json:"error"`
	Kind    string       `json:"kind,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

var kindStatus = map[service.Kind]int{
	service.KindValidation:    http.StatusUnprocessableEntity,
	service.KindAuthorization: http.StatusForbidden,
	service.KindEligibility:   http.StatusForbidden,
	service.KindNotFound:      http.StatusNotFound,
	service.KindConflict:      http.StatusUnprocessableEntity,
	service.KindExpired:       http.StatusUnprocessableEntity,
}

// writeError turns a service error into its status code.  Anything that
// is not a service.Error is logged and reported as a bare 500.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	var se *service.Error
	if errors.As(err, &se) {
		return c.JSON(kindStatus[se.Kind], errorBody{Error: se.Message, Kind: string(se.Kind)})
	}
	attrs := []any{"method", c.Request().Method, "route", c.Path(), "err", err}
	if id, ok := c.Get("request_id").(string); ok {
		attrs = append(attrs, "request_id", id)
	}
	log.Error("request failed", attrs...)
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: msg})
}

// bind decodes the body into req and validates it.  It writes the 400 or
// 422 itself and reports whether the handler may go on.
func bind(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, badRequest(c, "invalid body")
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusUnprocessableEntity, errorBody{
			Error:   "validation failed",
			Kind:    string(service.KindValidation),
			Details: ToFieldErrors(err),
		})
	}
	return true, nil
}

// actor is the authenticated caller.  JWTAuth guarantees both values on
// protected routes.
func actor(c echo.Context) service.Actor {
	id, _ := middleware.UserID(c)
	return service.Actor{UserID: id, Role: middleware.Role(c)}
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// pageParams reads page and page_size.  The services clamp them.
func pageParams(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	return page, size
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(c echo.Context, name string) (*time.Time, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, service.Validation("%s must be an RFC 3339 timestamp", name)
	}
	t = t.UTC()
	return &t, nil
}

// queryFloat parses an optional float query parameter.
func queryFloat(c echo.Context, name string) (*float64, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, service.Validation("%s must be a number", name)
	}
	return &f, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(c echo.Context, name string) (*bool, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, service.Validation("%s must be true or false", name)
	}
	return &b, nil
}
