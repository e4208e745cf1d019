package middleware

// identity.go holds the accessors for the caller identity that JWTAuth
// stores in the Echo context.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// UserID returns the authenticated user's id.  ok is false on routes that
// did not run JWTAuth.
func UserID(c echo.Context) (int64, bool) {
	id, ok := c.Get(userIDKey).(int64)
	return id, ok && id > 0
}

// Role returns the authenticated role or "" for anonymous callers.
func Role(c echo.Context) string {
	r, _ := c.Get(roleKey).(string)
	return r
}

// IsAdmin reports whether the caller holds the ADMIN role.
func IsAdmin(c echo.Context) bool { return Role(c) == RoleAdmin }

// parseSubject accepts the numeric forms a "sub" claim arrives in once the
// token has been decoded from JSON.
func parseSubject(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil && n > 0
	case int64:
		return t, t > 0
	case int:
		return int64(t), t > 0
	}
	return 0, false
}
