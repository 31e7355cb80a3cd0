package domain

import (
	"strings"

	"gymhub/backend/internal/platform/validation"
)

// Fields are the business details an applicant submits.
type Fields struct {
	BusinessName      string `json:"business_name" validate:"min=2,max=100"`
	BusinessAddress   string `json:"business_address" validate:"min=10"`
	BusinessPhone     string `json:"business_phone" validate:"phone"`
	BusinessEmail     string `json:"business_email" validate:"required,email"`
	YearsInBusiness   int    `json:"years_in_business" validate:"min=0"`
	NumberOfLocations int    `json:"number_of_locations" validate:"min=1"`
	Description       string `json:"description" validate:"min=50,max=1000"`
	TermsAccepted     bool   `json:"terms_accepted" validate:"eq=true"`
}

// Normalize trims surrounding whitespace from the text fields.
func (f *Fields) Normalize() {
	f.BusinessName = strings.TrimSpace(f.BusinessName)
	f.BusinessAddress = strings.TrimSpace(f.BusinessAddress)
	f.BusinessPhone = strings.TrimSpace(f.BusinessPhone)
	f.BusinessEmail = strings.TrimSpace(f.BusinessEmail)
	f.Description = strings.TrimSpace(f.Description)
}

// Validate normalizes f and returns a *apperr.ValidationError listing every invalid field.
func (f *Fields) Validate() error {
	f.Normalize()
	return validation.Struct(f)
}
