package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"gymhub/backend/internal/audit"
)

// ClientIPContext records gin's view of the client IP in the request context so services
// can read it without the gin context.
func ClientIPContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// Audit records an audit log entry after each mutating request of an authenticated caller.
// The action and resource come from the matched route. Writes are best-effort.
func Audit(logger audit.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		userID, ok := GetUserID(c.Request.Context())
		if !ok || c.FullPath() == "" {
			return
		}
		ar := audit.ParseRoute(c.Request.Method, c.FullPath())
		meta := fmt.Sprintf(`{"status":%d}`, c.Writer.Status())
		logger.LogEvent(c.Request.Context(), userID, ar.Action, ar.Resource, c.Param("id"), meta)
	}
}
