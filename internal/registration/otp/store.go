// Package otp is the backend-issued phone code fallback: for flows that
// bypass the identity provider entirely, this service mints, delivers and
// checks its own 6-digit codes. Codes are hashed at rest, expire with a TTL
// and allow a bounded number of guesses.
package otp

import (
	"context"
	"time"

	id "enroll/pkg/domain"
)

// Record is one outstanding backend-issued code.
type Record struct {
	CodeHash []byte    `json:"code_hash"`
	PhoneE164 string   `json:"phone_e164"`
	IssuedAt time.Time `json:"issued_at"`
	Attempts int       `json:"attempts"`
}

// Error Contract:
// - Find returns ErrNotFound (wrapped) when no live code exists
// - Save replaces any previous record; one live code per flow
type Store interface {
	Save(ctx context.Context, flowID id.FlowID, rec Record) error
	Find(ctx context.Context, flowID id.FlowID) (Record, error)
	Clear(ctx context.Context, flowID id.FlowID) error
}
