package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// revokeUserRequest is the request body for POST /auth/revoke-user.
type revokeUserRequest struct {
	UserID string `json:"user_id"`
}

// RegisterRevocationRoutes registers logout and the admin-only bulk
// revocation endpoint on the /auth group.
func RegisterRevocationRoutes(g *echo.Group, store RevocationStore) {
	authGroup := g.Group("/auth")
	authGroup.POST("/logout", handleLogout(store))
	authGroup.POST("/revoke-user", handleRevokeUser(store), RequireRole(RoleAdmin))
}

// handleLogout revokes the token presented with the request.
func handleLogout(store RevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		jti, exp := TokenFromContext(c.Request().Context())
		if jti == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "token has no id")
		}
		if exp.IsZero() {
			exp = time.Now().Add(time.Hour)
		}
		if err := store.Revoke(c.Request().Context(), jti, exp); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "could not revoke token")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// handleRevokeUser invalidates every token issued to a user so far.
func handleRevokeUser(store RevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req revokeUserRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}

		if req.UserID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
		}

		if err := store.RevokeUser(c.Request().Context(), req.UserID, time.Now()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "could not revoke tokens")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
