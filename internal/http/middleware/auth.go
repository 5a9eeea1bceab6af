// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the requesting user from a bearer token. Authentication
// is optional on this API: a missing or invalid token leaves the request
// anonymous instead of rejecting it. Anonymous requests are not metered per
// user; the rate limiter is their backstop. Handlers read the result via
// UserIDFrom.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserResolver validates an access token and returns the user id it belongs
// to.
type UserResolver interface {
	ResolveUserID(ctx context.Context, accessToken string) (string, error)
}

// Auth returns a Gin middleware that stores the resolved user id in the
// context under "userID". A nil resolver or a failed resolution leaves the
// request anonymous; failures are logged, not surfaced.
func Auth(resolver UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if resolver == nil {
			c.Next()
			return
		}
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}
		uid, err := resolver.ResolveUserID(c.Request.Context(), token)
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("token resolution failed, treating request as anonymous")
			c.Next()
			return
		}
		c.Set("userID", uid)
		c.Next()
	}
}

// UserIDFrom returns the authenticated user id, or "" for anonymous
// requests.
func UserIDFrom(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
