// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. Phone numbers are
// the identity of every participant, so they are scrubbed from query strings
// and header values before anything is emitted. Session tokens are masked
// whether they arrive as a header or as the "token" query parameter.
//
// Request and response bodies are never logged.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders lists extra header names (case-insensitive) whose values are
// replaced with "[REDACTED]", on top of Authorization, Cookie and Set-Cookie.
// MaskQuery lists extra query parameters masked the same way, on top of the
// session token parameter.
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// E.164 and loosely separated local numbers, 8 to 15 digits.
	phoneRE = regexp.MustCompile(`(?:\+|%2[bB])?\d(?:[ .\-]?\d){7,14}`)
)

// Redact scrubs ids, emails and phone numbers from s. UUIDs go first so the
// phone pattern never eats their digit groups.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger attaches a request-scoped logger (see LoggerFrom) and emits
// one access line per request once the handler returns. For streams that is
// when the client disconnects. Level follows status: 5xx error, 4xx warn,
// otherwise info.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}
	maskQuery := map[string]struct{}{TokenQueryParam: {}}
	for _, q := range opts.MaskQuery {
		if q = strings.TrimSpace(q); q != "" {
			maskQuery[q] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		scoped := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &scoped)

		safeQuery := scrubQuery(c.Request.URL.Query(), maskQuery)
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = Redact(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		ev := scoped.Info()
		switch {
		case status >= 500:
			ev = scoped.Error()
		case status >= 400:
			ev = scoped.Warn()
		}
		if pid, ok := c.Get(ctxKeyProfileID); ok {
			ev = ev.Str("profile_id", asString(pid))
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

func scrubQuery(q url.Values, mask map[string]struct{}) string {
	if len(q) == 0 {
		return ""
	}
	for k := range q {
		if _, ok := mask[k]; ok {
			q[k] = []string{"[REDACTED]"}
			continue
		}
		for i, v := range q[k] {
			q[k][i] = Redact(v)
		}
	}
	// Encode escapes brackets; decoding keeps the log readable.
	out, err := url.QueryUnescape(q.Encode())
	if err != nil {
		return q.Encode()
	}
	return out
}
