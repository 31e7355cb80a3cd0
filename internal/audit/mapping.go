package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// subActions maps trailing route segments that name an action on the parent resource.
var subActions = map[string]string{
	"approve":         "approve",
	"reject":          "reject",
	"retry-promotion": "retry_promotion",
	"toggle":          "toggle",
	"confirm":         "confirm",
	"check-in":        "check_in",
	"onboarding":      "complete_onboarding",
	"role":            ActionRoleChanged,
}

// scopeSegments are route prefixes that do not name a resource.
var scopeSegments = map[string]bool{"v1": true, "admin": true, "owner": true}

// ParseRoute returns action and resource for an HTTP method and route pattern
// (e.g. "POST", "/v1/admin/applications/:id/approve").
// Action is a verb: get, list, create, update, delete, or the named sub-action.
// Resource is the singular collection name (applications -> application, me -> profile).
func ParseRoute(method, route string) ActionResource {
	var names []string
	endsWithParam := false
	for _, seg := range strings.Split(strings.Trim(route, "/"), "/") {
		if seg == "" || scopeSegments[seg] {
			continue
		}
		// A trailing "me" after a collection addresses the caller's own item.
		if strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*") || (seg == "me" && len(names) > 0) {
			endsWithParam = true
			continue
		}
		endsWithParam = false
		names = append(names, seg)
	}
	if len(names) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	last := names[len(names)-1]
	if action, ok := subActions[last]; ok && len(names) > 1 {
		return ActionResource{Action: action, Resource: toResource(names[len(names)-2])}
	}
	if last == "photos" && len(names) > 1 {
		action := "upload_photo"
		if method == http.MethodDelete {
			action = "delete_photo"
		}
		return ActionResource{Action: action, Resource: toResource(names[len(names)-2])}
	}
	return ActionResource{Action: methodToAction(method, endsWithParam || last == "me"), Resource: toResource(last)}
}

func toResource(segment string) string {
	if segment == "me" {
		return "profile"
	}
	return strings.TrimSuffix(strings.ReplaceAll(segment, "-", "_"), "s")
}

func methodToAction(method string, single bool) string {
	switch method {
	case http.MethodGet:
		if single {
			return "get"
		}
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
