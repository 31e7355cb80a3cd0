package domain

import (
	"gymhub/backend/internal/platform/apperr"
)

// CheckReapply returns nil when a user whose latest application is latest may submit a
// new one under p. latest is nil when the user has none.
func (p ReapplyPolicy) CheckReapply(userID string, latest *Application) error {
	if latest == nil || p == PolicyAllowMultiple {
		return nil
	}
	switch latest.Status {
	case StatusPending:
		return &apperr.DuplicateApplicationError{UserID: userID, ExistingID: latest.ID, Status: string(latest.Status)}
	case StatusRejected:
		if p == PolicyAllowAfterRejection {
			return nil
		}
	}
	return &apperr.InvalidTransitionError{ID: latest.ID, From: string(latest.Status), To: string(StatusPending)}
}
