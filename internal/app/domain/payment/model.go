// Package payment defines checkout records for lesson packages.
package payment

import "time"

// Payment statuses.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// Payment tracks one checkout session from creation to settlement.
type Payment struct {
	ID          string    `json:"id" db:"id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	LessonID    string    `json:"lesson_id,omitempty" db:"lesson_id"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	Currency    string    `json:"currency" db:"currency"`
	Status      string    `json:"status" db:"status"`
	CheckoutID  string    `json:"checkout_id,omitempty" db:"checkout_id"`
	CheckoutURL string    `json:"checkout_url,omitempty" db:"checkout_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
