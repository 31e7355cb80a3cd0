// Package rbac gates HTTP routes on the caller's application role.
package rbac

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"gymhub/backend/internal/platform/apperr"
	"gymhub/backend/internal/platform/httpx"
	"gymhub/backend/internal/role/domain"
	"gymhub/backend/internal/server/middleware"
)

// RoleGetter returns a user's current role.
type RoleGetter interface {
	GetRole(ctx context.Context, userID string) (domain.Role, error)
}

// RequireRoleCtx ensures the caller in ctx is authenticated and holds one of allowed.
// It returns the caller's id and role, or an *apperr.AuthorizationError.
func RequireRoleCtx(ctx context.Context, getter RoleGetter, allowed ...domain.Role) (userID string, role domain.Role, err error) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return "", "", apperr.NewUnauthenticated("user context required")
	}
	role, err = getter.GetRole(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if !slices.Contains(allowed, role) {
		return "", "", apperr.NewForbidden(fmt.Sprintf("%s role required", joinRoles(allowed)))
	}
	return userID, role, nil
}

// RequireRole is gin middleware that aborts unless the caller holds one of allowed.
func RequireRole(getter RoleGetter, allowed ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := RequireRoleCtx(c.Request.Context(), getter, allowed...); err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.Next()
	}
}

func joinRoles(roles []domain.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, " or ")
}
