// Package models holds the registration flow's domain types: the draft
// profile, per-channel send state, verified credentials and the stage
// machine's vocabulary.
package models

import (
	"time"
)

// Channel is one identity-proof mechanism.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

// Stage is the registration flow's position. Transitions are monotonic
// forward with a single user-initiated back-edge (phone_verifying →
// phone_input); errors overlay a stage, they never change it.
type Stage string

const (
	StageStart          Stage = "start"
	StageLinkSent       Stage = "link_sent"
	StageEmailVerifying Stage = "email_verifying"
	StagePhoneInput     Stage = "phone_input"
	StagePhoneVerifying Stage = "phone_verifying"
	StageProvisioned    Stage = "provisioned"
)

// Terminal reports whether the flow is finished.
func (s Stage) Terminal() bool { return s == StageProvisioned }

// Draft is the in-progress profile entered before any identity is confirmed.
// It is created on the first keystroke in the start form, persisted under one
// fixed key per flow, mutated only by the user, and cleared exactly once on
// successful provisioning.
type Draft struct {
	Name             string    `json:"name"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PhoneCountryCode string    `json:"phone_country_code"`
	PhoneLocalNumber string    `json:"phone_local_number"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsZero reports whether no field has been entered yet.
func (d Draft) IsZero() bool {
	return d.Name == "" && d.Username == "" && d.Email == "" &&
		d.PhoneCountryCode == "" && d.PhoneLocalNumber == ""
}

// ChannelState tracks one channel's send history for a flow. At most one
// live PendingToken exists per channel: a new successful send or a
// successful verify invalidates the previous one. Verified is the durable
// record of a completed proof: a new send resets it, because the proof
// belongs to the number or address that was challenged, not to the flow.
type ChannelState struct {
	Channel      Channel   `json:"channel"`
	LastSentAt   time.Time `json:"last_sent_at"`
	PendingToken string    `json:"pending_token,omitempty"`
	Verified     bool      `json:"verified,omitempty"`
}

// HasPendingToken reports whether a verify can still be completed against
// the last send.
func (s ChannelState) HasPendingToken() bool { return s.PendingToken != "" }

// VerifiedIdentity is the credential produced by a successful verify. It is
// consumed exactly once by the provisioner and never persisted server-side;
// the client holds it between verify and provision.
type VerifiedIdentity struct {
	IDToken string  `json:"id_token"`
	Channel Channel `json:"channel"`
}

// SessionStatus is the externally-owned account status observed by entry
// resolution. This subsystem never mutates it directly; it only triggers a
// refresh (token re-issue) after provisioning.
type SessionStatus struct {
	Authenticated  bool
	EmailVerified  bool
	PhoneVerified  bool
	OnboardingStep string
}
