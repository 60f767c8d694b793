// Package domain holds typed identifiers shared across features. Distinct ID
// types stop a flow ID from ever being passed where a user ID is expected;
// the compiler enforces the boundary.
package domain

import (
	"github.com/google/uuid"

	dErrors "enroll/pkg/domain-errors"
)

// UserID identifies a provisioned storefront account.
type UserID uuid.UUID

// FlowID identifies one registration flow, minted per browser and carried in
// a cookie so the flow survives reloads and tab closes.
type FlowID uuid.UUID

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id FlowID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id FlowID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// NewUserID mints a fresh user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewFlowID mints a fresh flow ID.
func NewFlowID() FlowID { return FlowID(uuid.New()) }

// ParseUserID parses and validates a user ID string.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseFlowID parses and validates a flow ID string.
func ParseFlowID(s string) (FlowID, error) {
	u, err := parseUUID(s, "flow id")
	return FlowID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", what)
	}
	return u, nil
}
