package audit

import (
	"testing"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		method, route    string
		action, resource string
	}{
		{"POST", "/v1/applications", "create", "application"},
		{"GET", "/v1/applications/me", "get", "application"},
		{"GET", "/v1/admin/applications", "list", "application"},
		{"GET", "/v1/admin/applications/:id", "get", "application"},
		{"POST", "/v1/admin/applications/:id/approve", "approve", "application"},
		{"POST", "/v1/admin/applications/:id/reject", "reject", "application"},
		{"POST", "/v1/admin/applications/:id/retry-promotion", "retry_promotion", "application"},
		{"PUT", "/v1/admin/users/:id/role", "role_changed", "user"},
		{"PUT", "/v1/me", "update", "profile"},
		{"POST", "/v1/me/onboarding", "complete_onboarding", "profile"},
		{"POST", "/v1/owner/gyms", "create", "gym"},
		{"DELETE", "/v1/owner/gyms/:id", "delete", "gym"},
		{"POST", "/v1/owner/gyms/:id/photos", "upload_photo", "gym"},
		{"DELETE", "/v1/owner/gyms/:id/photos", "delete_photo", "gym"},
		{"POST", "/v1/owner/plans/:id/toggle", "toggle", "plan"},
		{"POST", "/v1/payments/:id/confirm", "confirm", "payment"},
		{"POST", "/v1/gyms/:id/check-in", "check_in", "gym"},
		{"GET", "", "unknown", "unknown"},
	}
	for _, tt := range tests {
		ar := ParseRoute(tt.method, tt.route)
		if ar.Action != tt.action {
			t.Errorf("%s %s: action = %q, want %q", tt.method, tt.route, ar.Action, tt.action)
		}
		if ar.Resource != tt.resource {
			t.Errorf("%s %s: resource = %q, want %q", tt.method, tt.route, ar.Resource, tt.resource)
		}
	}
}
