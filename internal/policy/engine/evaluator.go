// Package engine decides gym and plan access with an OPA Rego policy.
package engine

import (
	"context"
)

// Actions evaluated by the gym access policy.
const (
	ActionGymCreate  = "gym:create"
	ActionGymList    = "gym:list"
	ActionGymUpdate  = "gym:update"
	ActionGymDelete  = "gym:delete"
	ActionGymPhoto   = "gym:photo"
	ActionPlanCreate = "plan:create"
	ActionPlanUpdate = "plan:update"
	ActionPlanDelete = "plan:delete"
	ActionPlanList   = "plan:list"
)

// AccessRequest is the input to an access decision. ResourceOwnerID is the owner of the
// target gym, or empty when the action does not target an existing gym.
type AccessRequest struct {
	SubjectID       string
	SubjectRole     string
	Action          string
	ResourceOwnerID string
}

// Decision is the policy outcome. Reason explains a denial.
type Decision struct {
	Allow  bool
	Reason string
}

// Evaluator evaluates gym access policies using OPA or other engines.
type Evaluator interface {
	Authorize(ctx context.Context, req AccessRequest) (Decision, error)
}
