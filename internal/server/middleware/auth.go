package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/logger"
	"gymhub/backend/internal/platform/apperr"
	"gymhub/backend/internal/platform/httpx"
	userdomain "gymhub/backend/internal/user/domain"
)

const (
	bearerPrefix = "bearer "
	// ensuredProfilesCap bounds how many user ids Auth remembers as having a profile.
	ensuredProfilesCap = 10000
)

// ProfileEnsurer creates the caller's profile on first sign-in.
type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, id backend.Identity) (*userdomain.Profile, error)
}

// Auth resolves the Bearer access token through authn and stores the identity in the
// request context. Requests without a valid token are rejected with 401. When profiles is
// set, the caller's profile is ensured unless the user is among the recently ensured ids.
func Auth(authn backend.Authenticator, profiles ProfileEnsurer, log *zap.Logger) gin.HandlerFunc {
	return auth(authn, profiles, log, ensuredProfilesCap)
}

func auth(authn backend.Authenticator, profiles ProfileEnsurer, log *zap.Logger, capacity int) gin.HandlerFunc {
	log = logger.OrNop(log)
	seen, err := lru.New[string, struct{}](capacity)
	if err != nil {
		panic(fmt.Sprintf("middleware: ensured profile cache: %v", err))
	}
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			httpx.WriteError(c, apperr.NewUnauthenticated("missing or invalid authorization"))
			return
		}
		id, err := authn.CurrentUser(c.Request.Context(), token)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		if id == nil || id.ID == "" {
			httpx.WriteError(c, apperr.NewUnauthenticated("missing or invalid authorization"))
			return
		}
		ctx := WithIdentity(c.Request.Context(), id.ID, id.Email)
		if profiles != nil {
			if !seen.Contains(id.ID) {
				if _, err := profiles.EnsureProfile(ctx, *id); err != nil {
					log.Warn("auth: ensure profile failed", zap.String("user_id", id.ID), zap.Error(err))
				} else {
					seen.Add(id.ID, struct{}{})
				}
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// extractBearer returns the token of an Authorization header, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// UserID returns the authenticated caller of c, or "".
func UserID(c *gin.Context) string {
	id, _ := GetUserID(c.Request.Context())
	return id
}

// Identity returns the authenticated caller of c.
func Identity(c *gin.Context) backend.Identity {
	id, _ := GetUserID(c.Request.Context())
	email, _ := GetEmail(c.Request.Context())
	return backend.Identity{ID: id, Email: email}
}
