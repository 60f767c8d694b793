package cooldown

import (
	"context"
	"time"
)

// Countdown drives a 1 Hz counter from secs down to zero, invoking tick with
// each remaining value (starting with secs itself, ending with 0). It stops
// early when ctx is cancelled — the caller's "unmount". Stopping the counter
// never invalidates an already-issued provider token; those expire on the
// provider's schedule, not ours.
func Countdown(ctx context.Context, secs int, tick func(remaining int)) {
	if secs < 0 {
		secs = 0
	}
	tick(secs)
	if secs == 0 {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for remaining := secs - 1; remaining >= 0; remaining-- {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(remaining)
		}
	}
}
