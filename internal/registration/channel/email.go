package channel

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"enroll/internal/provider"
	"enroll/internal/registration/channelstate"
	"enroll/internal/registration/cooldown"
	"enroll/internal/registration/guard"
	"enroll/internal/registration/metrics"
	"enroll/internal/registration/models"
	dErrors "enroll/pkg/domain-errors"
	id "enroll/pkg/domain"
	"enroll/pkg/email"
	audit "enroll/pkg/platform/audit"
	"enroll/pkg/platform/audit/publisher"
	"enroll/pkg/platform/sentinel"
	"enroll/pkg/requestcontext"
)

var emailTracer = otel.Tracer("enroll/registration/channel/email")

// EmailLink verifies ownership of an email address through a provider-sent
// magic link. The link returns the browser to the registration page; the
// proof is the full return URL plus the identifier the link was sent to.
type EmailLink struct {
	provider ProviderAPI
	state    channelstate.Store
	guard    *guard.Guard
	cooldown *cooldown.Gate
	metrics  *metrics.Metrics
	audit    *publisher.Publisher
	logger   *slog.Logger
}

// NewEmailLink constructs the email-link verifier.
func NewEmailLink(p ProviderAPI, state channelstate.Store, g *guard.Guard, gate *cooldown.Gate, m *metrics.Metrics, auditPub *publisher.Publisher, logger *slog.Logger) *EmailLink {
	return &EmailLink{provider: p, state: state, guard: g, cooldown: gate, metrics: m, audit: auditPub, logger: logger}
}

func (v *EmailLink) Channel() models.Channel { return models.ChannelEmail }

// Send emails a magic link to target.Email. The guard runs first: a taken
// identifier never generates provider traffic. The cooldown gate runs
// second, keyed on this flow's last email send.
func (v *EmailLink) Send(ctx context.Context, flowID id.FlowID, target Target) error {
	ctx, span := emailTracer.Start(ctx, "channel.email.send")
	defer span.End()
	span.SetAttributes(attribute.String("flow_id", flowID.String()))

	if !email.Valid(target.Email) {
		return dErrors.New(dErrors.CodeInvalidInput, "email address is not valid")
	}

	if err := v.guard.CheckEmail(ctx, target.Email); err != nil {
		if dErrors.HasCode(err, dErrors.CodeDuplicateIdentifier) {
			v.metrics.RecordGuardDuplicate()
			emitAudit(ctx, v.audit, v.logger, audit.EventDuplicateBlocked, []any{
				"flow_id", flowID.String(),
				"channel", "email",
				"email", target.Email,
				"request_id", requestcontext.RequestID(ctx),
				"client_ip", requestcontext.ClientIP(ctx),
			})
		}
		return err
	}

	state, err := v.state.Find(ctx, flowID, models.ChannelEmail)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeBackend, "read email channel state")
	}
	if !v.cooldown.Allow(ctx, state.LastSentAt) {
		v.metrics.RecordCooldownRejected()
		return dErrors.Newf(dErrors.CodeProviderRateLimited, "resend available in %ds", v.cooldown.RemainingSeconds(ctx, state.LastSentAt))
	}

	returnURL, err := provider.BuildReturnURL(target.PageURL, target.Email)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "page url is not valid")
	}

	if err := v.provider.SendLink(ctx, target.Email, returnURL); err != nil {
		v.metrics.RecordSend("email", "error")
		return err
	}

	// A fresh send replaces whatever token was live before it.
	now := requestcontext.Now(ctx)
	if err := v.state.Save(ctx, flowID, models.ChannelState{
		Channel:      models.ChannelEmail,
		LastSentAt:   now,
		PendingToken: uuid.NewString(),
	}); err != nil {
		v.logger.ErrorContext(ctx, "record email send state", "error", err, "request_id", requestcontext.RequestID(ctx))
		return dErrors.Wrap(err, dErrors.CodeBackend, "record email send")
	}
	if err := v.state.RecordLinkEmail(ctx, flowID, target.Email); err != nil {
		v.logger.WarnContext(ctx, "record link email failed, same-device recovery degraded", "error", err)
	}

	v.metrics.RecordSend("email", "ok")
	attrList := []any{
		"flow_id", flowID.String(),
		"channel", "email",
		"email", target.Email,
		"request_id", requestcontext.RequestID(ctx),
		"client_ip", requestcontext.ClientIP(ctx),
	}
	v.logger.InfoContext(ctx, "magic link sent", attrList...)
	emitAudit(ctx, v.audit, v.logger, audit.EventLinkSent, attrList)
	return nil
}

// Verify exchanges the magic-link return URL and the recovered identifier
// for an identity credential.
func (v *EmailLink) Verify(ctx context.Context, flowID id.FlowID, proof Proof) (models.VerifiedIdentity, error) {
	ctx, span := emailTracer.Start(ctx, "channel.email.verify")
	defer span.End()
	span.SetAttributes(attribute.String("flow_id", flowID.String()))

	if proof.Email == "" || proof.CurrentURL == "" {
		return models.VerifiedIdentity{}, dErrors.New(dErrors.CodeInvalidInput, "missing link identifier or url")
	}

	identity, err := v.provider.VerifyLink(ctx, proof.Email, proof.CurrentURL)
	if err != nil {
		v.metrics.RecordVerify("email", "error")
		return models.VerifiedIdentity{}, err
	}

	if err := v.state.ClearPendingToken(ctx, flowID, models.ChannelEmail); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		// Cross-device returns land on a flow that never sent; nothing to clear.
		v.logger.WarnContext(ctx, "clear email pending token", "error", err)
	}
	if err := v.state.SavePendingUser(ctx, flowID, identity.Subject); err != nil {
		v.logger.WarnContext(ctx, "record pending user", "error", err)
	}

	v.metrics.RecordVerify("email", "ok")
	attrList := []any{
		"flow_id", flowID.String(),
		"channel", "email",
		"email", proof.Email,
		"request_id", requestcontext.RequestID(ctx),
		"client_ip", requestcontext.ClientIP(ctx),
	}
	v.logger.InfoContext(ctx, "magic link verified", attrList...)
	emitAudit(ctx, v.audit, v.logger, audit.EventLinkVerified, attrList)
	return models.VerifiedIdentity{IDToken: identity.IDToken, Channel: models.ChannelEmail}, nil
}
