// Package provision is the terminal step of the registration flow: it
// exchanges a verified identity credential plus the stored draft for a real
// account row and an activated session.
package provision

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"enroll/internal/account"
	"enroll/internal/registration/channelstate"
	"enroll/internal/registration/draft"
	"enroll/internal/registration/flow"
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

var tracer = otel.Tracer("enroll/registration/provision")

// TokenIssuer re-issues the application session after the account exists.
// Implemented by internal/session.
type TokenIssuer interface {
	Issue(userID id.UserID, emailVerified, phoneVerified bool, onboardingStep string) (string, error)
}

// Provisioner creates accounts from completed registrations.
type Provisioner struct {
	accounts account.Store
	drafts   draft.Store
	state    channelstate.Store
	flow     *flow.Controller
	sessions TokenIssuer
	audit    *publisher.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger

	onboardingRedirect string
}

// New constructs the provisioner.
func New(accounts account.Store, drafts draft.Store, state channelstate.Store,
	fc *flow.Controller, sessions TokenIssuer, auditPub *publisher.Publisher,
	m *metrics.Metrics, logger *slog.Logger) *Provisioner {

	return &Provisioner{
		accounts:           accounts,
		drafts:             drafts,
		state:              state,
		flow:               fc,
		sessions:           sessions,
		audit:              auditPub,
		metrics:            m,
		logger:             logger,
		onboardingRedirect: "/onboarding",
	}
}

// Provision exchanges the credential and the draft for an account. On a
// backend rejection the draft and the recorded stage stay untouched, so the
// client can retry with the same credential without re-verifying either
// channel. The draft is cleared exactly once, only after the account row
// exists.
func (p *Provisioner) Provision(ctx context.Context, flowID id.FlowID, idToken string) (models.ProvisionResponse, error) {
	ctx, span := tracer.Start(ctx, "provision")
	defer span.End()
	span.SetAttributes(attribute.String("flow_id", flowID.String()))
	start := time.Now()

	release, err := p.flow.GuardProvision(ctx, flowID)
	if err != nil {
		return models.ProvisionResponse{}, err
	}
	defer release()

	if idToken == "" {
		return models.ProvisionResponse{}, dErrors.New(dErrors.CodeInvalidInput, "missing verified credential")
	}

	d, err := p.drafts.Find(ctx, flowID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.ProvisionResponse{}, dErrors.New(dErrors.CodeInvalidInput, "no registration draft for this flow")
	}
	if err != nil {
		return models.ProvisionResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "read draft")
	}
	if d.Email == "" {
		return models.ProvisionResponse{}, dErrors.New(dErrors.CodeInvalidInput, "draft has no email identifier")
	}

	subject, err := p.state.PendingUser(ctx, flowID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return models.ProvisionResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "read pending user")
	}

	name := strings.TrimSpace(d.Name)
	if name == "" {
		first, last := email.DeriveNameFromEmail(d.Email)
		name = first + " " + last
	}

	acc := account.Account{
		ID:               id.NewUserID(),
		ProviderSubject:  subject,
		Name:             name,
		Username:         d.Username,
		Email:            d.Email,
		PhoneCountryCode: d.PhoneCountryCode,
		PhoneLocalNumber: d.PhoneLocalNumber,
		EmailVerified:    true,
		PhoneVerified:    true,
		OnboardingStep:   account.OnboardingStepInitial,
		CreatedAt:        requestcontext.Now(ctx),
	}

	if err := p.accounts.Create(ctx, acc); err != nil {
		p.metrics.RecordProvisionFailed()
		p.emit(ctx, flowID, audit.EventProvisionRejected, acc, err.Error())

		if errors.Is(err, sentinel.ErrConflict) {
			// The identifier got registered between the guard check and now.
			// A race, not a bug; the credential stays valid for retry.
			return models.ProvisionResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "identifier was registered by another attempt")
		}
		return models.ProvisionResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "create account")
	}

	// The account exists: clear the draft exactly once. A failure here is
	// logged, not returned; the registration has already succeeded.
	if err := p.drafts.Clear(ctx, flowID); err != nil {
		p.logger.ErrorContext(ctx, "clear draft after provisioning",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if err := p.flow.MarkProvisioned(ctx, flowID); err != nil {
		p.logger.ErrorContext(ctx, "record terminal stage", "error", err)
	}

	token, err := p.sessions.Issue(acc.ID, true, true, acc.OnboardingStep)
	if err != nil {
		// The account is real; the client can obtain a session by logging in.
		p.logger.ErrorContext(ctx, "issue session after provisioning", "error", err)
	}

	p.metrics.RecordAccountCreated()
	p.metrics.ObserveProvision(start)
	p.emit(ctx, flowID, audit.EventAccountCreated, acc, "")

	return models.ProvisionResponse{
		UserID:         acc.ID.String(),
		SessionToken:   token,
		OnboardingStep: acc.OnboardingStep,
		Redirect:       p.onboardingRedirect,
	}, nil
}

func (p *Provisioner) emit(ctx context.Context, flowID id.FlowID, action audit.AuditEvent, acc account.Account, reason string) {
	if p.audit == nil {
		return
	}
	event := audit.Event{
		Category:  action.Category(),
		FlowID:    flowID.String(),
		UserID:    acc.ID,
		Email:     acc.Email,
		Action:    string(action),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
	}
	if err := p.audit.Emit(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "emit audit event", "action", action, "error", err)
	}
}
