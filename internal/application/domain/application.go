// Package domain holds the owner application record, its lifecycle states and the
// submission field rules.
package domain

import (
	"time"
)

// Status is the lifecycle state of an owner application.
type Status string

const (
	// StatusNone means the user has no application on file. It is never stored.
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is a stored status.
func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// CanTransition reports whether an application may move from s to next.
// Only pending applications move, and only to a terminal state.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.Terminal()
}

// Application is the gym_owners row.
type Application struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"user_id"`
	Status Status `json:"status"`
	Fields
	CreatedAt  time.Time  `json:"created_at,omitzero"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy *string    `json:"reviewed_by,omitempty"`
	// PendingKey holds the user id while the application is pending under a policy that
	// allows one pending application per user. A unique index on it rejects a second one.
	PendingKey *string `json:"pending_key,omitempty"`
}

// PendingKeyFor returns the pending_key value for a new application by userID under p,
// or nil when p allows several pending applications.
func (p ReapplyPolicy) PendingKeyFor(userID string) *string {
	if p == PolicyAllowMultiple {
		return nil
	}
	return &userID
}

// ReapplyPolicy decides whether a user with an application on file may submit another.
type ReapplyPolicy string

const (
	// PolicySinglePending allows a submission only when the user has no application.
	PolicySinglePending ReapplyPolicy = "single_pending"
	// PolicyAllowAfterRejection also allows a submission when the latest application was rejected.
	PolicyAllowAfterRejection ReapplyPolicy = "allow_after_rejection"
	// PolicyAllowMultiple never blocks a submission.
	PolicyAllowMultiple ReapplyPolicy = "allow_multiple"
)

// Valid reports whether p is a known policy.
func (p ReapplyPolicy) Valid() bool {
	switch p {
	case PolicySinglePending, PolicyAllowAfterRejection, PolicyAllowMultiple:
		return true
	}
	return false
}
