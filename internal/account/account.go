// Package account owns provisioned storefront accounts: the terminal output
// of the registration flow. The existence guard reads it before any channel
// send; the provisioner writes it exactly once per registration.
package account

import (
	"context"
	"time"

	id "enroll/pkg/domain"
)

// Account is a provisioned storefront account.
type Account struct {
	ID               id.UserID
	ProviderSubject  string
	Name             string
	Username         string
	Email            string
	PhoneCountryCode string
	PhoneLocalNumber string
	EmailVerified    bool
	PhoneVerified    bool
	OnboardingStep   string
	CreatedAt        time.Time
}

// OnboardingStepInitial is where the external onboarding pipeline picks a
// fresh account up.
const OnboardingStepInitial = "profile"

// Error Contract:
// - Create returns ErrConflict (wrapped) when email or phone is taken
// - FindByID returns ErrNotFound (wrapped) for unknown IDs
// - existence checks return (false, nil) for absent identifiers
type Store interface {
	Create(ctx context.Context, acc Account) error
	FindByID(ctx context.Context, userID id.UserID) (Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhone(ctx context.Context, dialCode, localNumber string) (bool, error)
}
