// Package domain holds memberships, their placeholder payments and gym check-ins.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the format of membership start and end dates.
const DateLayout = "2006-01-02"

// PaymentStatus is the lifecycle of a placeholder payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Payment is the payments row. There is no real gateway; a payment is created pending and
// confirmed by its payer.
type Payment struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"user_id"`
	GymID     string          `json:"gym_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at,omitzero"`
}

// Membership is the memberships row. Dates are calendar days in UTC, both inclusive.
type Membership struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	PlanID    string    `json:"plan_id"`
	GymID     string    `json:"gym_id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	PaymentID string    `json:"payment_id"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// CoversDay reports whether day (DateLayout) falls within the membership.
func (m Membership) CoversDay(day string) bool {
	return m.StartDate <= day && day <= m.EndDate
}

// Attendance is the attendance row written on check-in.
type Attendance struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id"`
	GymID       string    `json:"gym_id"`
	CheckInTime time.Time `json:"check_in_time"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Subscription is the result of subscribing to a plan.
type Subscription struct {
	Membership Membership `json:"membership"`
	Payment    Payment    `json:"payment"`
}

// View is a membership as listed to its holder.
type View struct {
	Membership
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Amount        decimal.Decimal `json:"amount"`
	Active        bool            `json:"active"`
}
