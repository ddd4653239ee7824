package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// OwnerHeader names the header carrying the credential-scoping owner id.
const OwnerHeader = "X-Owner-ID"

// defaultOwner scopes credentials when the client sends no owner header.
const defaultOwner = "default"

// AuthMiddleware creates an Echo middleware that validates the master key
// if it's configured. If masterKey is empty, no authentication is required.
// skipPaths are always allowed through.
func AuthMiddleware(masterKey string, skipPaths []string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if masterKey == "" || skip[c.Path()] {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return authError(c, "missing authorization header")
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return authError(c, "invalid authorization header format, expected 'Bearer <token>'")
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if subtle.ConstantTimeCompare([]byte(token), []byte(masterKey)) != 1 {
				return authError(c, "invalid master key")
			}

			return next(c)
		}
	}
}

func authError(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, map[string]any{
		"error": map[string]any{
			"type":    "authentication_error",
			"message": message,
		},
	})
}

// ownerID extracts the credential owner from the request headers.
func ownerID(c echo.Context) string {
	if owner := c.Request().Header.Get(OwnerHeader); owner != "" {
		return owner
	}
	return defaultOwner
}
