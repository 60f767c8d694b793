// Package provider wraps the external identity-verification provider behind
// a small typed client. The provider owns credential delivery and checking:
// it emails magic links, texts one-time codes, and mints identity tokens.
// Nothing else in the service talks to it directly.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "enroll/pkg/domain-errors"
)

// Identity is a verified identity credential minted by the provider. The
// token is opaque to this service: it is held by the browser between
// verification and provisioning and echoed back on later calls.
type Identity struct {
	IDToken string `json:"id_token"`
	Subject string `json:"subject"`
}

// Challenge references a pending phone code delivery. The token must be
// echoed back on verification so the provider can pair code and send.
type Challenge struct {
	ChallengeToken string `json:"challenge_token"`
}

// Client calls the provider's verification REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a provider API client.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendLink asks the provider to email a magic link to identifier. The link
// the provider builds returns the browser to returnURL with the provider's
// verification token appended.
func (c *Client) SendLink(ctx context.Context, identifier, returnURL string) error {
	req := map[string]string{
		"identifier": identifier,
		"return_url": returnURL,
	}
	return c.post(ctx, "/v1/link/send", "", req, nil)
}

// VerifyLink redeems a magic-link return URL against the identifier the link
// was sent to. The provider checks that the token in the URL matches a live
// send for that identifier.
func (c *Client) VerifyLink(ctx context.Context, identifier, linkURL string) (Identity, error) {
	req := map[string]string{
		"identifier": identifier,
		"url":        linkURL,
	}
	var identity Identity
	if err := c.post(ctx, "/v1/link/verify", "", req, &identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// SendChallenge asks the provider to text a one-time code to phoneE164.
// When anchorToken is non-empty the challenge is linked to an existing
// verified identity, so the eventual phone credential extends it instead of
// standing alone.
func (c *Client) SendChallenge(ctx context.Context, phoneE164, anchorToken string) (Challenge, error) {
	req := map[string]string{
		"phone": phoneE164,
	}
	var ch Challenge
	if err := c.post(ctx, "/v1/challenge/send", anchorToken, req, &ch); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

// VerifyChallenge redeems a code against a pending challenge.
func (c *Client) VerifyChallenge(ctx context.Context, challengeToken, code, anchorToken string) (Identity, error) {
	req := map[string]string{
		"challenge_token": challengeToken,
		"code":            code,
	}
	var identity Identity
	if err := c.post(ctx, "/v1/challenge/verify", anchorToken, req, &identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// errorEnvelope is the provider's error response body.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path, anchorToken string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode provider request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build provider request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if anchorToken != "" {
		req.Header.Set("Authorization", "Bearer "+anchorToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeProviderUnknown, "provider unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeProviderUnknown, "read provider response")
	}

	if resp.StatusCode >= 400 {
		return c.mapError(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeProviderUnknown, "decode provider response")
		}
	}
	return nil
}

// mapError translates the provider's error vocabulary into coded domain
// errors. Only codes the flow reacts to get their own bucket; the rest
// collapse into CodeProviderUnknown.
func (c *Client) mapError(status int, raw []byte) error {
	var env errorEnvelope
	_ = json.Unmarshal(raw, &env)

	msg := env.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("provider returned status %d", status)
	}

	switch env.Error.Code {
	case "expired", "link_expired", "challenge_expired", "token_expired":
		return dErrors.New(dErrors.CodeProviderExpired, msg)
	case "invalid_code", "code_mismatch", "already_used":
		return dErrors.New(dErrors.CodeProviderInvalidCode, msg)
	case "rate_limited", "too_many_requests":
		return dErrors.New(dErrors.CodeProviderRateLimited, msg)
	}

	switch status {
	case http.StatusGone:
		return dErrors.New(dErrors.CodeProviderExpired, msg)
	case http.StatusUnprocessableEntity:
		return dErrors.New(dErrors.CodeProviderInvalidCode, msg)
	case http.StatusTooManyRequests:
		return dErrors.New(dErrors.CodeProviderRateLimited, msg)
	}
	return dErrors.New(dErrors.CodeProviderUnknown, msg)
}
