// Package guard answers one question before any verification message goes
// out: does an account already own this identifier? A positive answer is
// terminal for the attempt and the provider is never contacted for it.
package guard

import (
	"context"
	"log/slog"

	"enroll/internal/account"
	dErrors "enroll/pkg/domain-errors"
	"enroll/pkg/phone"
)

// Guard checks identifiers against the account store.
type Guard struct {
	accounts account.Store
	logger   *slog.Logger
}

func New(accounts account.Store, logger *slog.Logger) *Guard {
	return &Guard{accounts: accounts, logger: logger}
}

// CheckEmail returns nil when the email is free to register.
// The check fails closed: if the store cannot answer, the send is blocked.
func (g *Guard) CheckEmail(ctx context.Context, email string) error {
	exists, err := g.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		g.logger.ErrorContext(ctx, "email existence check failed", "error", err)
		return dErrors.Wrap(err, dErrors.CodeBackend, "could not check email availability")
	}
	if exists {
		return dErrors.New(dErrors.CodeDuplicateIdentifier, "an account with this email already exists")
	}
	return nil
}

// CheckPhone returns nil when the phone number is free to register.
func (g *Guard) CheckPhone(ctx context.Context, num phone.Number) error {
	exists, err := g.accounts.ExistsByPhone(ctx, num.DialCode, num.Local)
	if err != nil {
		g.logger.ErrorContext(ctx, "phone existence check failed", "error", err)
		return dErrors.Wrap(err, dErrors.CodeBackend, "could not check phone availability")
	}
	if exists {
		return dErrors.New(dErrors.CodeDuplicateIdentifier, "an account with this phone number already exists")
	}
	return nil
}
