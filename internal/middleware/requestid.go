package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestID propagates X-Request-ID, generating a UUID when the client
// did not send one.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			c.Set("request_id", id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// AccessLog writes one structured line per request.
func AccessLog(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			attrs := []any{
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"route", c.Path(),
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
			}
			if id, ok := c.Get("request_id").(string); ok {
				attrs = append(attrs, "request_id", id)
			}
			if uid, ok := UserID(c); ok {
				attrs = append(attrs, "user_id", uid)
			}
			switch {
			case status >= 500:
				log.Error("request", attrs...)
			case status >= 400:
				log.Warn("request", attrs...)
			default:
				log.Info("request", attrs...)
			}
			return nil
		}
	}
}
