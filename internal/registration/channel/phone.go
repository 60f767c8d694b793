package channel

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"enroll/internal/registration/channelstate"
	"enroll/internal/registration/cooldown"
	"enroll/internal/registration/guard"
	"enroll/internal/registration/metrics"
	"enroll/internal/registration/models"
	dErrors "enroll/pkg/domain-errors"
	id "enroll/pkg/domain"
	"enroll/pkg/otp"
	audit "enroll/pkg/platform/audit"
	"enroll/pkg/platform/audit/publisher"
	"enroll/pkg/platform/sentinel"
	"enroll/pkg/requestcontext"
)

var phoneTracer = otel.Tracer("enroll/registration/channel/phone")

// PhoneCode verifies ownership of a phone number through a provider-texted
// one-time code. The challenge token from the send is the pending token; a
// verify without one has nothing to redeem. When the flow already holds an
// email credential it is passed as the anchor so the provider links both
// proofs to one identity.
type PhoneCode struct {
	provider ProviderAPI
	state    channelstate.Store
	guard    *guard.Guard
	cooldown *cooldown.Gate
	metrics  *metrics.Metrics
	audit    *publisher.Publisher
	logger   *slog.Logger
}

// NewPhoneCode constructs the phone-code verifier.
func NewPhoneCode(p ProviderAPI, state channelstate.Store, g *guard.Guard, gate *cooldown.Gate, m *metrics.Metrics, auditPub *publisher.Publisher, logger *slog.Logger) *PhoneCode {
	return &PhoneCode{provider: p, state: state, guard: g, cooldown: gate, metrics: m, audit: auditPub, logger: logger}
}

func (v *PhoneCode) Channel() models.Channel { return models.ChannelPhone }

// Send texts a one-time code to target.Phone. Guard first, cooldown second,
// provider last; the returned challenge token becomes the live pending token,
// replacing any earlier one.
func (v *PhoneCode) Send(ctx context.Context, flowID id.FlowID, target Target) error {
	ctx, span := phoneTracer.Start(ctx, "channel.phone.send")
	defer span.End()
	span.SetAttributes(attribute.String("flow_id", flowID.String()))

	if target.Phone.Local == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "phone number is required")
	}

	if err := v.guard.CheckPhone(ctx, target.Phone); err != nil {
		if dErrors.HasCode(err, dErrors.CodeDuplicateIdentifier) {
			v.metrics.RecordGuardDuplicate()
			emitAudit(ctx, v.audit, v.logger, audit.EventDuplicateBlocked, []any{
				"flow_id", flowID.String(),
				"channel", "phone",
				"request_id", requestcontext.RequestID(ctx),
				"client_ip", requestcontext.ClientIP(ctx),
			})
		}
		return err
	}

	state, err := v.state.Find(ctx, flowID, models.ChannelPhone)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeBackend, "read phone channel state")
	}
	if !v.cooldown.Allow(ctx, state.LastSentAt) {
		v.metrics.RecordCooldownRejected()
		return dErrors.Newf(dErrors.CodeProviderRateLimited, "resend available in %ds", v.cooldown.RemainingSeconds(ctx, state.LastSentAt))
	}

	challenge, err := v.provider.SendChallenge(ctx, target.Phone.E164(), target.Anchor)
	if err != nil {
		v.metrics.RecordSend("phone", "error")
		return err
	}

	if err := v.state.Save(ctx, flowID, models.ChannelState{
		Channel:      models.ChannelPhone,
		LastSentAt:   requestcontext.Now(ctx),
		PendingToken: challenge.ChallengeToken,
	}); err != nil {
		v.logger.ErrorContext(ctx, "record phone send state", "error", err, "request_id", requestcontext.RequestID(ctx))
		return dErrors.Wrap(err, dErrors.CodeBackend, "record phone send")
	}

	v.metrics.RecordSend("phone", "ok")
	attrList := []any{
		"flow_id", flowID.String(),
		"channel", "phone",
		"request_id", requestcontext.RequestID(ctx),
		"client_ip", requestcontext.ClientIP(ctx),
	}
	v.logger.InfoContext(ctx, "phone challenge sent", attrList...)
	emitAudit(ctx, v.audit, v.logger, audit.EventChallengeSent, attrList)
	return nil
}

// Verify redeems the entered code against the live challenge. An incomplete
// code is rejected locally; the provider only ever sees six digits.
func (v *PhoneCode) Verify(ctx context.Context, flowID id.FlowID, proof Proof) (models.VerifiedIdentity, error) {
	ctx, span := phoneTracer.Start(ctx, "channel.phone.verify")
	defer span.End()
	span.SetAttributes(attribute.String("flow_id", flowID.String()))

	if !otp.Valid(proof.Code) {
		return models.VerifiedIdentity{}, dErrors.New(dErrors.CodeInvalidInput, "enter all six digits of the code")
	}

	state, err := v.state.Find(ctx, flowID, models.ChannelPhone)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.VerifiedIdentity{}, dErrors.New(dErrors.CodeProviderExpired, "no code was sent to this flow")
		}
		return models.VerifiedIdentity{}, dErrors.Wrap(err, dErrors.CodeBackend, "read phone channel state")
	}
	if !state.HasPendingToken() {
		return models.VerifiedIdentity{}, dErrors.New(dErrors.CodeProviderExpired, "the code was already used, request a new one")
	}

	identity, err := v.provider.VerifyChallenge(ctx, state.PendingToken, proof.Code, proof.Anchor)
	if err != nil {
		v.metrics.RecordVerify("phone", "error")
		return models.VerifiedIdentity{}, err
	}

	// The mark is what provisioning checks, so it must land before the
	// token is burned: a flow with neither can simply request a new code.
	if err := v.state.MarkVerified(ctx, flowID, models.ChannelPhone); err != nil {
		return models.VerifiedIdentity{}, dErrors.Wrap(err, dErrors.CodeBackend, "record phone verification")
	}
	if err := v.state.ClearPendingToken(ctx, flowID, models.ChannelPhone); err != nil {
		v.logger.WarnContext(ctx, "clear phone pending token", "error", err)
	}
	if err := v.state.SavePendingUser(ctx, flowID, identity.Subject); err != nil {
		v.logger.WarnContext(ctx, "record pending user", "error", err)
	}

	v.metrics.RecordVerify("phone", "ok")
	attrList := []any{
		"flow_id", flowID.String(),
		"channel", "phone",
		"request_id", requestcontext.RequestID(ctx),
		"client_ip", requestcontext.ClientIP(ctx),
	}
	v.logger.InfoContext(ctx, "phone challenge verified", attrList...)
	emitAudit(ctx, v.audit, v.logger, audit.EventChallengeVerified, attrList)
	return models.VerifiedIdentity{IDToken: identity.IDToken, Channel: models.ChannelPhone}, nil
}
