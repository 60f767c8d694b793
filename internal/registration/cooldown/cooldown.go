// Package cooldown gates resends per channel. The gate is advisory: it keeps
// the UI honest and spares the provider obvious hammering, but the provider
// and backend enforce the real limit. Arithmetic is done on the
// request-scoped clock so every check in one request agrees on "now".
package cooldown

import (
	"context"
	"time"

	"enroll/pkg/requestcontext"
)

// Gate computes resend availability from a channel's last send time.
type Gate struct {
	window time.Duration
}

// NewGate builds a gate with the given window (60s in production).
func NewGate(window time.Duration) *Gate {
	return &Gate{window: window}
}

// Window returns the configured cooldown window.
func (g *Gate) Window() time.Duration { return g.window }

// Remaining returns how long until resend unlocks, or zero at and after the
// boundary. A zero lastSentAt (never sent) is always unlocked.
func (g *Gate) Remaining(ctx context.Context, lastSentAt time.Time) time.Duration {
	if lastSentAt.IsZero() {
		return 0
	}
	elapsed := requestcontext.Now(ctx).Sub(lastSentAt)
	if elapsed >= g.window {
		return 0
	}
	return g.window - elapsed
}

// Allow reports whether a send is permitted. Enabled at exactly the window
// boundary: elapsed == window allows.
func (g *Gate) Allow(ctx context.Context, lastSentAt time.Time) bool {
	return g.Remaining(ctx, lastSentAt) == 0
}

// RemainingSeconds rounds Remaining up to whole seconds for the UI counter,
// so 100ms left still shows 1, never a premature 0.
func (g *Gate) RemainingSeconds(ctx context.Context, lastSentAt time.Time) int {
	rem := g.Remaining(ctx, lastSentAt)
	if rem <= 0 {
		return 0
	}
	secs := int(rem / time.Second)
	if rem%time.Second != 0 {
		secs++
	}
	return secs
}
