// Package channelstate tracks per-channel send state for a flow: when the
// last send happened (feeding the cooldown gate) and the opaque pending
// token required to complete the matching verify. It also holds the two
// flow-local recovery values: the email an outstanding magic link was sent
// to (the same-device shortcut consulted before falling back to the draft)
// and the provider subject ID correlating a partially-registered user across
// pages.
package channelstate

import (
	"context"

	id "enroll/pkg/domain"
	"enroll/internal/registration/models"
)

// Error Contract:
// - Find/LinkEmail/PendingUser return ErrNotFound (wrapped) for absent state
// - writes return nil on success, wrapped infrastructure errors otherwise
type Store interface {
	// Save upserts the channel state. Saving replaces any previous pending
	// token, which keeps the "at most one live pending token per channel"
	// invariant: the store never accumulates tokens.
	Save(ctx context.Context, flowID id.FlowID, state models.ChannelState) error

	// Find returns the state for one channel of a flow.
	Find(ctx context.Context, flowID id.FlowID, channel models.Channel) (models.ChannelState, error)

	// ClearPendingToken invalidates the live token after a successful verify
	// while keeping LastSentAt for the cooldown gate.
	ClearPendingToken(ctx context.Context, flowID id.FlowID, channel models.Channel) error

	// MarkVerified durably records a completed ownership proof for the
	// channel. Provisioning refuses to run until the phone channel carries
	// this mark. A later Save (a fresh send) resets it.
	MarkVerified(ctx context.Context, flowID id.FlowID, channel models.Channel) error

	// Verified reports whether the channel's proof was completed. Absent
	// state is simply false, not an error.
	Verified(ctx context.Context, flowID id.FlowID, channel models.Channel) (bool, error)

	// RecordLinkEmail remembers which email the outstanding magic link was
	// sent to. Flow-local: a link opened on another device has a different
	// flow ID and finds nothing here, which is exactly why the identifier is
	// also embedded in the return URL.
	RecordLinkEmail(ctx context.Context, flowID id.FlowID, email string) error

	// LinkEmail returns the recorded link email.
	LinkEmail(ctx context.Context, flowID id.FlowID) (string, error)

	// SavePendingUser records the provider subject for a user who verified a
	// channel but has not been provisioned yet.
	SavePendingUser(ctx context.Context, flowID id.FlowID, subject string) error

	// PendingUser returns the recorded provider subject.
	PendingUser(ctx context.Context, flowID id.FlowID) (string, error)
}
