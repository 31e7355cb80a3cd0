package domain

import (
	"strings"
	"time"

	"gymhub/backend/internal/platform/apperr"
	roledomain "gymhub/backend/internal/role/domain"
)

// Profile is the user profile row, keyed by the auth user id.
type Profile struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	Phone               string    `json:"phone,omitempty"`
	OnboardingCompleted bool      `json:"onboarding_completed"`
	CreatedAt           time.Time `json:"created_at,omitzero"`
}

// UserWithRole is a profile joined with its role, as listed to admins.
type UserWithRole struct {
	Profile
	Role roledomain.Role `json:"role"`
}

// ProfileUpdate is the user-editable part of a profile.
type ProfileUpdate struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Validate trims the update and returns a ValidationError describing every invalid field.
func (u *ProfileUpdate) Validate() error {
	u.Name = strings.TrimSpace(u.Name)
	u.Phone = strings.TrimSpace(u.Phone)
	var fields []apperr.FieldError
	if u.Name == "" {
		fields = append(fields, apperr.FieldError{Field: "name", Message: "is required"})
	} else if len([]rune(u.Name)) > 100 {
		fields = append(fields, apperr.FieldError{Field: "name", Message: "must be at most 100 characters"})
	}
	if len(u.Phone) > 20 {
		fields = append(fields, apperr.FieldError{Field: "phone", Message: "must be at most 20 characters"})
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

// DisplayName derives a name from an email for profiles created on first sign-in.
func DisplayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	if email == "" {
		return "member"
	}
	return email
}
