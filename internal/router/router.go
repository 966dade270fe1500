// Package router registers every HTTP route and the middleware that guards
// it.
package router

import (
	"database/sql"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/foodshare/internal/config"
	"github.com/iliyamo/foodshare/internal/handler"
	"github.com/iliyamo/foodshare/internal/middleware"
	"github.com/iliyamo/foodshare/internal/service"
)

// Deps is everything the routes need.  Redis may be nil.
type Deps struct {
	Cfg         config.Config
	RateLimit   config.RateLimitConfig
	Cache       config.CacheConfig
	Idempotency config.IdempotencyConfig
	Policy      *service.Policy
	DB          *sql.DB
	Redis       *redis.Client
	Log         *slog.Logger

	Auth         *handler.AuthHandler
	Listings     *handler.ListingHandler
	Reservations *handler.ReservationHandler
	Documents    *handler.DocumentHandler
	Partners     *handler.PartnerHandler
	Stats        *handler.StatsHandler
}

// Register wires all routes onto e.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d)
	RegisterAuth(e, d)

	v1 := protected(e, d)
	RegisterListings(v1, d)
	RegisterReservations(v1, d)
	RegisterDocuments(v1, d)
	RegisterPartners(v1, d)
	RegisterAdmin(v1, d)
}

// RegisterRoutes registers the unauthenticated health checks and metrics.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(d.DB, d.Redis))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the token endpoints.  They are rate limited per
// client address since there is no account yet.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth", middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)
}

// protected returns the /v1 group behind JWTAuth.  Rate limiting runs after
// authentication so buckets can be keyed by account.
func protected(e *echo.Echo, d Deps) *echo.Group {
	g := e.Group("/v1",
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log),
		middleware.InvalidateOnWrite(d.Cache, d.Redis),
	)
	g.GET("/me", d.Auth.Me)
	g.PUT("/me", d.Auth.UpdateProfile)
	g.PUT("/me/password", d.Auth.ChangePassword)
	return g
}

// idem guards a creation route with Idempotency-Key replay.
func idem(d Deps) echo.MiddlewareFunc {
	return middleware.NewIdempotency(d.Idempotency, d.Redis, d.Log)
}

func can(d Deps, perm service.Permission) echo.MiddlewareFunc {
	return middleware.RequirePermission(d.Policy, perm)
}
