package model

import "time"

// User is a row from the users table, as much of it as the checks need.
type User struct {
	ID            string     `json:"id"              db:"id"`
	Email         string     `json:"email"           db:"email"`
	Name          string     `json:"name"            db:"name"`
	CreatedAt     time.Time  `json:"created_at"      db:"created_at"`
	LastCheckinAt *time.Time `json:"last_checkin_at" db:"last_checkin_at"`
}

// License is an issued software license tied to a payment event.
type License struct {
	ID        string     `json:"id"         db:"id"`
	UserID    string     `json:"user_id"    db:"user_id"`
	Email     string     `json:"email"      db:"email"`
	PaymentID string     `json:"payment_id" db:"payment_id"`
	Plan      string     `json:"plan"       db:"plan"`
	Status    string     `json:"status"     db:"status"`
	PaidAt    *time.Time `json:"paid_at"    db:"paid_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// UpsertLicenseRequest creates or refreshes a license keyed by the payment
// provider's id, so webhook redelivery cannot mint duplicate licenses.
type UpsertLicenseRequest struct {
	UserID    string
	Email     string
	PaymentID string
	Plan      string
	Status    string
	PaidAt    time.Time
}
