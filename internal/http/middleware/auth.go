// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates requests. A session token is read from the
// Authorization header ("Bearer <token>") or, for EventSource and WebSocket
// clients that cannot set headers, from the "token" query parameter. The
// verified domain.Session is stored in the Gin context; the profile id is
// also stored under "userID" so the rate limiter and loggers key on it.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

const (
	ctxKeySession   = "session"
	ctxKeyProfileID = "userID"

	// TokenQueryParam carries the session token for header-less clients.
	TokenQueryParam = "token"
)

// VerifyFunc turns a raw token into a session or fails.
type VerifyFunc func(ctx context.Context, token string) (domain.Session, error)

// Auth rejects requests without a valid session with 401.
func Auth(verify VerifyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := verify(c.Request.Context(), bearerToken(c))
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="smsbridge"`)
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or missing session")
			return
		}
		c.Set(ctxKeySession, sess)
		c.Set(ctxKeyProfileID, sess.ProfileID)
		c.Next()
	}
}

// RequireAdmin must run after Auth. Non-admin sessions get 403.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := SessionFrom(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or missing session")
			return
		}
		if !sess.IsAdmin {
			abortJSON(c, http.StatusForbidden, "forbidden", "admin only")
			return
		}
		c.Next()
	}
}

// SessionFrom returns the session stored by Auth.
func SessionFrom(c *gin.Context) (domain.Session, bool) {
	v, ok := c.Get(ctxKeySession)
	if !ok {
		return domain.Session{}, false
	}
	s, ok := v.(domain.Session)
	return s, ok
}

func bearerToken(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return strings.TrimSpace(c.Query(TokenQueryParam))
}

// abortJSON writes the same envelope as the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
