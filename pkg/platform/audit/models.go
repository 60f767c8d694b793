// Package audit captures the registration flow's security- and
// compliance-relevant actions as structured events. Domain code emits
// through a Publisher; stores decide where events land (memory for tests
// and dev, Kafka for the real pipeline).
package audit

import (
	"context"
	"time"

	"enroll/pkg/attrs"
	id "enroll/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// account creation above all. Long retention, tamper-evident storage.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events that feed monitoring and alerting:
	// blocked duplicates, rejected provisioning, throttled resends.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine flow activity useful for debugging:
	// sends, verifies, recoveries. Short retention, samplable.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from flow logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	FlowID    string
	UserID    id.UserID
	Email     string
	Channel   string
	Action    string
	Reason    string
	RequestID string
	ClientIP  string
	UserAgent string
}

type AuditEvent string

const (
	EventLinkSent          AuditEvent = "link_sent"
	EventLinkVerified      AuditEvent = "link_verified"
	EventChallengeSent     AuditEvent = "challenge_sent"
	EventChallengeVerified AuditEvent = "challenge_verified"
	EventRecoveryFailed    AuditEvent = "recovery_failed"
	EventDuplicateBlocked  AuditEvent = "duplicate_blocked"
	EventResendThrottled   AuditEvent = "resend_throttled"
	EventOTPIssued         AuditEvent = "otp_issued"
	EventOTPVerified       AuditEvent = "otp_verified"
	EventOTPExhausted      AuditEvent = "otp_exhausted"
	EventAccountCreated    AuditEvent = "account_created"
	EventProvisionRejected AuditEvent = "provision_rejected"
)

// eventCategories is the source of truth for routing and retention.
var eventCategories = map[AuditEvent]EventCategory{
	EventLinkSent:          CategoryOperations,
	EventLinkVerified:      CategoryOperations,
	EventChallengeSent:     CategoryOperations,
	EventChallengeVerified: CategoryOperations,
	EventRecoveryFailed:    CategoryOperations,
	EventDuplicateBlocked:  CategorySecurity,
	EventResendThrottled:   CategorySecurity,
	EventOTPIssued:         CategoryOperations,
	EventOTPVerified:       CategoryOperations,
	EventOTPExhausted:      CategorySecurity,
	EventAccountCreated:    CategoryCompliance,
	EventProvisionRejected: CategorySecurity,
}

// Category returns the event's routing category, defaulting to operations
// for unknown actions.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByFlow(ctx context.Context, flowID string) ([]Event, error)
}

// FromAttrs builds an event from slog-style key/value attributes, the same
// shape handler logging already produces. Unknown keys are ignored.
func FromAttrs(action AuditEvent, attrList []any) Event {
	return Event{
		Category:  action.Category(),
		Action:    string(action),
		FlowID:    attrs.ExtractString(attrList, "flow_id"),
		Email:     attrs.ExtractString(attrList, "email"),
		Channel:   attrs.ExtractString(attrList, "channel"),
		Reason:    attrs.ExtractString(attrList, "reason"),
		RequestID: attrs.ExtractString(attrList, "request_id"),
		ClientIP:  attrs.ExtractString(attrList, "client_ip"),
		UserAgent: attrs.ExtractString(attrList, "user_agent"),
	}
}
