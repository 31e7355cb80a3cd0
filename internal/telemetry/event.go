package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Application lifecycle event types.
const (
	EventApplicationSubmitted   = "application.submitted"
	EventApplicationApproved    = "application.approved"
	EventApplicationRejected    = "application.rejected"
	EventRolePromotionFailed    = "role.promotion_failed"
	EventRolePromotionRecovered = "role.promotion_recovered"
)

// Source is the source field of events emitted by this service.
const Source = "gymhub-backend"

// Event is an application lifecycle event. It is published as JSON.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	UserID     string    `json:"user_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent returns an event of the given type with id, source and timestamp set.
func NewEvent(eventType, resourceID, userID, actorID string) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Source:     Source,
		UserID:     userID,
		ActorID:    actorID,
		ResourceID: resourceID,
		OccurredAt: time.Now().UTC(),
	}
}
