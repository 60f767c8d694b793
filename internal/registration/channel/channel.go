// Package channel implements the per-channel verifiers: each one knows how
// to send a credential for its channel through the provider and how to check
// the proof the user presents back. The stage controller drives them; they
// own the guard check, the cooldown gate and the pending-token bookkeeping,
// so no caller can reach the provider around those.
package channel

//go:generate mockgen -source=channel.go -destination=mocks/mocks.go -package=mocks ProviderAPI

import (
	"context"
	"log/slog"

	"enroll/internal/provider"
	"enroll/internal/registration/models"
	id "enroll/pkg/domain"
	"enroll/pkg/phone"
	audit "enroll/pkg/platform/audit"
	"enroll/pkg/platform/audit/publisher"
)

// ProviderAPI is the slice of the provider client the verifiers use.
type ProviderAPI interface {
	SendLink(ctx context.Context, identifier, returnURL string) error
	VerifyLink(ctx context.Context, identifier, linkURL string) (provider.Identity, error)
	SendChallenge(ctx context.Context, phoneE164, anchorToken string) (provider.Challenge, error)
	VerifyChallenge(ctx context.Context, challengeToken, code, anchorToken string) (provider.Identity, error)
}

// Target identifies where a credential should be delivered.
type Target struct {
	// Email fields.
	Email   string
	PageURL string // page the magic link returns to

	// Phone fields.
	Phone  phone.Number
	Anchor string // email credential to link the phone proof to, if any
}

// Proof is what the user presents back after a send.
type Proof struct {
	// Email fields.
	Email      string
	CurrentURL string // the full magic-link return URL

	// Phone fields.
	Code   string
	Anchor string
}

// Verifier is one channel's send/verify capability.
type Verifier interface {
	Channel() models.Channel
	Send(ctx context.Context, flowID id.FlowID, target Target) error
	Verify(ctx context.Context, flowID id.FlowID, proof Proof) (models.VerifiedIdentity, error)
}

// emitAudit turns the log line's key/value list into an audit event, so the
// trail and the log never disagree about what happened. Best-effort: a nil
// publisher or a failed emit never fails the send or verify.
func emitAudit(ctx context.Context, pub *publisher.Publisher, logger *slog.Logger, action audit.AuditEvent, attrList []any) {
	if pub == nil {
		return
	}
	if err := pub.Emit(ctx, audit.FromAttrs(action, attrList)); err != nil {
		logger.WarnContext(ctx, "emit audit event", "action", action, "error", err)
	}
}
