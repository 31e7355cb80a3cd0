package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gymhub/backend/internal/backend"
)

// Auth resolves access tokens through the Supabase auth service.
type Auth struct {
	c *Client
}

// NewAuth returns an Authenticator that calls GET /auth/v1/user.
func NewAuth(c *Client) *Auth {
	return &Auth{c: c}
}

// CurrentUser implements backend.Authenticator. Rejected tokens return (nil, nil).
func (a *Auth) CurrentUser(ctx context.Context, accessToken string) (*backend.Identity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, nil
	}
	resp, err := a.c.do(ctx, "get user", request{method: http.MethodGet, path: "/auth/v1/user", bearer: accessToken})
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
			return nil, nil
		}
		return nil, err
	}
	var id backend.Identity
	if err := json.Unmarshal(resp.Body, &id); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if id.ID == "" {
		return nil, nil
	}
	return &id, nil
}
