package models

import "time"

// VerificationCode is one OTP issuance. Only the bcrypt hash of the code is kept.
type VerificationCode struct {
	ID        string    `json:"id" firestore:"-"`
	Phone     string    `json:"phone" firestore:"phone"`
	CodeHash  string    `json:"-" firestore:"codeHash"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	ExpiresAt time.Time `json:"expires_at" firestore:"expiresAt"`
	Attempts  int       `json:"attempts" firestore:"attempts"`
	Used      bool      `json:"used" firestore:"used"`
}
