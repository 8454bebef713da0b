// Package authmw implements the session-API-key auth gate and CORS policy
// shared by internal/httpapi and internal/wsapi.
package authmw

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionKeyHeader is the REST auth header name, per spec.md §6.6/§7.
const SessionKeyHeader = "X-Session-API-Key"

// SessionKeyQueryParam is the WebSocket equivalent, since browsers cannot
// set custom headers on a WS handshake.
const SessionKeyQueryParam = "session_api_key"

// Checker validates a presented session API key against the configured
// list. An empty configured list means auth is disabled.
type Checker struct {
	keys map[string]bool
}

// NewChecker builds a Checker from the configured session_api_keys list.
func NewChecker(keys []string) *Checker {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return &Checker{keys: set}
}

// Enabled reports whether any session API key is configured.
func (c *Checker) Enabled() bool { return len(c.keys) > 0 }

// Valid reports whether key matches a configured session API key.
func (c *Checker) Valid(key string) bool {
	if !c.Enabled() {
		return true
	}
	return key != "" && c.keys[key]
}

// RequireSessionKey is gin middleware enforcing the REST auth contract: HTTP
// 401 with a JSON detail when the header is missing or wrong, a no-op when
// no keys are configured.
func RequireSessionKey(checker *Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !checker.Enabled() {
			c.Next()
			return
		}
		if !checker.Valid(c.GetHeader(SessionKeyHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing or invalid session API key"})
			return
		}
		c.Next()
	}
}

// CORS builds gin middleware that always allows localhost/127.0.0.1 origins
// (any port, any scheme) in addition to the configured allow-list, per
// spec.md §6.6.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed[origin] || isLocalhostOrigin(origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, "+SessionKeyHeader)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || strings.HasSuffix(host, ".localhost")
}
