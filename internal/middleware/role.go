package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/service"
)

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "kind": string(service.KindAuthorization)})
}

// RequireRole aborts with 403 unless the token's role is one of roles.
// It must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return forbidden(c)
			}
			return next(c)
		}
	}
}

// RequirePermission aborts with 403 unless policy grants perm to the
// token's role.  Ownership is still checked by the services.
func RequirePermission(policy *service.Policy, perm service.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !policy.Allows(Role(c), perm) {
				return forbidden(c)
			}
			return next(c)
		}
	}
}
