// Package referral defines referral codes and their redemptions.
package referral

import "time"

// Code is a shareable referral code owned by a student.
type Code struct {
	ID        string    `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Redemption records one referee redeeming a code. A referee can redeem at
// most one code, ever.
type Redemption struct {
	ID            string    `json:"id" db:"id"`
	CodeID        string    `json:"code_id" db:"code_id"`
	RefereeID     string    `json:"referee_id" db:"referee_id"`
	CreditMinutes int       `json:"credit_minutes" db:"credit_minutes"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
