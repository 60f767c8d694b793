package provider

import (
	"context"
	"log/slog"

	dErrors "enroll/pkg/domain-errors"
	"enroll/pkg/platform/circuit"
)

// API is the provider surface the breaker wraps. *Client satisfies it.
type API interface {
	SendLink(ctx context.Context, identifier, returnURL string) error
	VerifyLink(ctx context.Context, identifier, linkURL string) (Identity, error)
	SendChallenge(ctx context.Context, phoneE164, anchorToken string) (Challenge, error)
	VerifyChallenge(ctx context.Context, challengeToken, code, anchorToken string) (Identity, error)
}

// Guarded wraps a provider client with a circuit breaker. Only transport-level
// failures trip it: an answer from the provider, even a rejection, proves the
// dependency is up. With the circuit open every call fails fast instead of
// burning the request timeout against a dead upstream.
type Guarded struct {
	api     API
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewGuarded wraps api with a breaker.
func NewGuarded(api API, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	return &Guarded{api: api, breaker: breaker, logger: logger}
}

func (g *Guarded) SendLink(ctx context.Context, identifier, returnURL string) error {
	if err := g.before(ctx); err != nil {
		return err
	}
	return g.after(ctx, g.api.SendLink(ctx, identifier, returnURL))
}

func (g *Guarded) VerifyLink(ctx context.Context, identifier, linkURL string) (Identity, error) {
	if err := g.before(ctx); err != nil {
		return Identity{}, err
	}
	identity, err := g.api.VerifyLink(ctx, identifier, linkURL)
	return identity, g.after(ctx, err)
}

func (g *Guarded) SendChallenge(ctx context.Context, phoneE164, anchorToken string) (Challenge, error) {
	if err := g.before(ctx); err != nil {
		return Challenge{}, err
	}
	ch, err := g.api.SendChallenge(ctx, phoneE164, anchorToken)
	return ch, g.after(ctx, err)
}

func (g *Guarded) VerifyChallenge(ctx context.Context, challengeToken, code, anchorToken string) (Identity, error) {
	if err := g.before(ctx); err != nil {
		return Identity{}, err
	}
	identity, err := g.api.VerifyChallenge(ctx, challengeToken, code, anchorToken)
	return identity, g.after(ctx, err)
}

func (g *Guarded) before(ctx context.Context) error {
	if g.breaker.IsOpen() {
		g.logger.WarnContext(ctx, "provider circuit open, failing fast", "breaker", g.breaker.Name())
		return dErrors.New(dErrors.CodeProviderUnknown, "verification provider is temporarily unavailable")
	}
	return nil
}

func (g *Guarded) after(ctx context.Context, err error) error {
	if err == nil || !transportFailure(err) {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "provider circuit closed", "breaker", g.breaker.Name())
		}
		return err
	}

	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.ErrorContext(ctx, "provider circuit opened", "breaker", g.breaker.Name(), "error", err)
	}
	return err
}

// transportFailure distinguishes "the provider is down" from "the provider
// said no". Expired links, bad codes and rate limits are verdicts, not
// outages.
func transportFailure(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeProviderUnknown)
}
