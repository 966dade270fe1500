package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health is the liveness check.  It answers as long as the process runs.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready returns the readiness check: the database must answer a ping, and
// Redis too when it is configured.
func Ready(db *sql.DB, rdb *redis.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		checks := echo.Map{"database": "ok"}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if rdb != nil {
			checks["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		return c.JSON(status, checks)
	}
}
