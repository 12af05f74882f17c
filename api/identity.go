package api

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"
)

// contextKey for storing the caller identity on the echo context.
type contextKey string

const identityContextKey contextKey = "jobq_identity"

// Identity is the authenticated caller. The engine never sees it; the API
// only logs the ID on enqueue.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// SetIdentity attaches the caller to the request context.
func SetIdentity(c echo.Context, id *Identity) {
	c.Set(string(identityContextKey), id)
}

// GetIdentity returns the caller attached by SetIdentity, or nil.
func GetIdentity(c echo.Context) *Identity {
	if id, ok := c.Get(string(identityContextKey)).(*Identity); ok {
		return id
	}
	return nil
}

// RequireIdentity rejects requests without an Identity with 401.
func RequireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := GetIdentity(c); id == nil || id.ID == "" {
			return errUnauthorized
		}
		return next(c)
	}
}

// StaticToken returns an authenticator that attaches id when the request
// carries "Authorization: Bearer <token>". Requests without a matching
// token pass through unauthenticated.
func StaticToken(token string, id Identity) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			bearer, ok := strings.CutPrefix(auth, "Bearer ")
			if ok && token != "" && subtle.ConstantTimeCompare([]byte(bearer), []byte(token)) == 1 {
				caller := id
				SetIdentity(c, &caller)
			}
			return next(c)
		}
	}
}
