package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"enroll/pkg/requestcontext"
)

func TestGate_BoundarySemantics(t *testing.T) {
	gate := NewGate(60 * time.Second)
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		elapsed   time.Duration
		allowed   bool
		remaining time.Duration
	}{
		{"immediately after send", 0, false, 60 * time.Second},
		{"45s after send", 45 * time.Second, false, 15 * time.Second},
		{"one nanosecond before boundary", 60*time.Second - time.Nanosecond, false, time.Nanosecond},
		{"exactly at the 60s boundary", 60 * time.Second, true, 0},
		{"after the boundary", 61 * time.Second, true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := requestcontext.WithTime(context.Background(), sentAt.Add(tc.elapsed))
			assert.Equal(t, tc.allowed, gate.Allow(ctx, sentAt))
			assert.Equal(t, tc.remaining, gate.Remaining(ctx, sentAt))
		})
	}
}

func TestGate_ResendAt45SecondsShows15(t *testing.T) {
	gate := NewGate(60 * time.Second)
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), sentAt.Add(45*time.Second))

	assert.False(t, gate.Allow(ctx, sentAt))
	assert.Equal(t, 15, gate.RemainingSeconds(ctx, sentAt))
}

func TestGate_NeverSentIsUnlocked(t *testing.T) {
	gate := NewGate(60 * time.Second)
	ctx := context.Background()

	assert.True(t, gate.Allow(ctx, time.Time{}))
	assert.Zero(t, gate.RemainingSeconds(ctx, time.Time{}))
}

func TestGate_RemainingSecondsRoundsUp(t *testing.T) {
	gate := NewGate(60 * time.Second)
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 59.9s elapsed: 100ms left must still show 1 second.
	ctx := requestcontext.WithTime(context.Background(), sentAt.Add(59*time.Second+900*time.Millisecond))
	assert.Equal(t, 1, gate.RemainingSeconds(ctx, sentAt))
}

func TestCountdown_TicksToZero(t *testing.T) {
	var seen []int
	Countdown(context.Background(), 0, func(remaining int) {
		seen = append(seen, remaining)
	})
	assert.Equal(t, []int{0}, seen, "zero countdown fires once and returns")
}

func TestCountdown_CancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var seen []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		Countdown(ctx, 3600, func(remaining int) {
			seen = append(seen, remaining)
			cancel()
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not stop after cancellation")
	}
	assert.Equal(t, []int{3600}, seen, "cancelled countdown stops after the initial tick")
}
