// Package domain holds gyms and their membership plans.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gymhub/backend/internal/platform/apperr"
	"gymhub/backend/internal/platform/validation"
)

// Gym is the gyms row.
type Gym struct {
	ID          string    `json:"id,omitempty"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location"`
	Timings     string    `json:"timings"`
	Photos      []string  `json:"photos"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// GymInput is the owner-editable part of a gym.
type GymInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Location    string `json:"location" validate:"required,max=300"`
	Timings     string `json:"timings" validate:"required,max=200"`
}

// Validate trims in and checks its fields.
func (in *GymInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.Timings = strings.TrimSpace(in.Timings)
	return validation.Struct(in)
}

// Plan is the plans row.
type Plan struct {
	ID              string           `json:"id,omitempty"`
	GymID           string           `json:"gym_id"`
	Name            string           `json:"name"`
	DurationDays    int              `json:"duration_days"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price"`
	Features        []string         `json:"features"`
	Amenities       []string         `json:"amenities"`
	IsActive        bool             `json:"is_active"`
	MaxUsers        *int             `json:"max_users"`
	Badge           string           `json:"badge,omitempty"`
	Color           string           `json:"color,omitempty"`
	CreatedAt       time.Time        `json:"created_at,omitzero"`
}

// EffectivePrice is the discounted price when one is set below the list price.
func (p Plan) EffectivePrice() decimal.Decimal {
	if p.DiscountedPrice != nil && p.DiscountedPrice.LessThan(p.Price) {
		return *p.DiscountedPrice
	}
	return p.Price
}

// PlanInput is the owner-editable part of a plan.
type PlanInput struct {
	Name            string           `json:"name" validate:"required,max=100"`
	DurationDays    int              `json:"duration_days" validate:"min=1,max=3650"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price"`
	Features        []string         `json:"features" validate:"max=50,dive,max=200"`
	Amenities       []string         `json:"amenities" validate:"max=50,dive,max=200"`
	MaxUsers        *int             `json:"max_users" validate:"omitempty,min=1"`
	Badge           string           `json:"badge" validate:"max=30"`
	Color           string           `json:"color" validate:"omitempty,hexcolor"`
}

// Validate trims in, drops blank list entries and checks every field. Prices must be
// non-negative and a discount must be below the list price.
func (in *PlanInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Badge = strings.TrimSpace(in.Badge)
	in.Color = strings.TrimSpace(in.Color)
	in.Features = compact(in.Features)
	in.Amenities = compact(in.Amenities)

	var fields []apperr.FieldError
	if err := validation.Struct(in); err != nil {
		ve, ok := err.(*apperr.ValidationError)
		if !ok {
			return err
		}
		fields = ve.Fields
	}
	if in.Price.IsNegative() {
		fields = append(fields, apperr.FieldError{Field: "price", Message: "must be at least 0"})
	}
	if d := in.DiscountedPrice; d != nil {
		if d.IsNegative() {
			fields = append(fields, apperr.FieldError{Field: "discounted_price", Message: "must be at least 0"})
		} else if !d.LessThan(in.Price) {
			fields = append(fields, apperr.FieldError{Field: "discounted_price", Message: "must be below price"})
		}
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Summary is a gym as listed when browsing: only gyms with an active plan, with the
// lowest effective price among those plans.
type Summary struct {
	Gym
	MinPrice    decimal.Decimal `json:"min_price"`
	ActivePlans int             `json:"active_plans"`
}

// Details is a gym with its active plans, cheapest first.
type Details struct {
	Gym
	Plans []Plan `json:"plans"`
}
