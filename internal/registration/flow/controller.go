// Package flow is the registration stage machine. It decides which stage a
// flow is at on every page load, validates every user-triggered transition
// against one declarative table, and drives the channel verifiers. It owns
// recovery: an interrupted flow is re-derived from the URL, the stored
// channel state and the draft, in that order, never from coordination
// between devices.
package flow

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"enroll/internal/provider"
	"enroll/internal/registration/channel"
	"enroll/internal/registration/channelstate"
	"enroll/internal/registration/cooldown"
	"enroll/internal/registration/draft"
	"enroll/internal/registration/models"
	"enroll/internal/registration/stage"
	dErrors "enroll/pkg/domain-errors"
	id "enroll/pkg/domain"
	"enroll/pkg/phone"
	"enroll/pkg/platform/sentinel"
	"enroll/pkg/requestcontext"
)

var tracer = otel.Tracer("enroll/registration/flow")

// Controller drives the registration stage machine for one deployment.
type Controller struct {
	stages   stage.Store
	drafts   draft.Store
	state    channelstate.Store
	email    channel.Verifier
	phone    channel.Verifier
	cooldown *cooldown.Gate
	inflight *inflightGate
	logger   *slog.Logger

	postFlowRedirect string
}

// Option configures a Controller.
type Option func(*Controller)

// WithPostFlowRedirect overrides where a fully-verified session is sent.
func WithPostFlowRedirect(path string) Option {
	return func(c *Controller) { c.postFlowRedirect = path }
}

// New constructs the stage controller.
func New(stages stage.Store, drafts draft.Store, state channelstate.Store,
	email, phone channel.Verifier, gate *cooldown.Gate, logger *slog.Logger, opts ...Option) *Controller {

	c := &Controller{
		stages:           stages,
		drafts:           drafts,
		state:            state,
		email:            email,
		phone:            phone,
		cooldown:         gate,
		inflight:         newInflightGate(),
		logger:           logger,
		postFlowRedirect: "/onboarding",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve decides the entry stage for a page load. Order matters: a
// magic-link shaped URL wins over everything because a fresh browser context
// may carry no other signal; then the externally-owned session status; then
// whatever draft and send history this flow left behind.
func (c *Controller) Resolve(ctx context.Context, flowID id.FlowID, currentURL string, status models.SessionStatus) (models.ResolveResponse, error) {
	ctx, span := tracer.Start(ctx, "flow.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("flow_id", flowID.String()))

	if provider.IsLinkRedirect(currentURL) {
		if err := c.stages.Save(ctx, flowID, models.StageEmailVerifying); err != nil {
			return models.ResolveResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
		}
		return models.ResolveResponse{Stage: models.StageEmailVerifying, Draft: c.draftIfAny(ctx, flowID)}, nil
	}

	if status.Authenticated && status.EmailVerified && status.PhoneVerified {
		return models.ResolveResponse{Stage: models.StageProvisioned, Redirect: c.postFlowRedirect}, nil
	}

	if status.Authenticated && status.EmailVerified {
		if err := c.stages.Save(ctx, flowID, models.StagePhoneInput); err != nil {
			return models.ResolveResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
		}
		return models.ResolveResponse{Stage: models.StagePhoneInput, Draft: c.draftIfAny(ctx, flowID)}, nil
	}

	// A recorded pending user means this flow verified its email even though
	// the credential itself lives only in the client. A live phone challenge
	// resumes code entry; otherwise the phone step starts over.
	if subject, err := c.state.PendingUser(ctx, flowID); err == nil && subject != "" {
		st := models.StagePhoneInput
		phoneState, err := c.state.Find(ctx, flowID, models.ChannelPhone)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return models.ResolveResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "read channel state")
		}
		if phoneState.HasPendingToken() {
			st = models.StagePhoneVerifying
		}
		if err := c.stages.Save(ctx, flowID, st); err != nil {
			return models.ResolveResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
		}
		return models.ResolveResponse{
			Stage:           st,
			Draft:           c.draftIfAny(ctx, flowID),
			CooldownSeconds: c.cooldown.RemainingSeconds(ctx, phoneState.LastSentAt),
		}, nil
	}

	d := c.draftIfAny(ctx, flowID)
	if d == nil {
		if err := c.stages.Save(ctx, flowID, models.StageStart); err != nil {
			return models.ResolveResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
		}
		return models.ResolveResponse{Stage: models.StageStart}, nil
	}

	// A draft exists. Resume at link_sent when an email send was made,
	// otherwise back at start with the fields filled in.
	emailState, err := c.state.Find(ctx, flowID, models.ChannelEmail)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return models.ResolveResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "read channel state")
	}

	resp := models.ResolveResponse{Stage: models.StageStart, Draft: d}
	if !emailState.LastSentAt.IsZero() {
		resp.Stage = models.StageLinkSent
		resp.CooldownSeconds = c.cooldown.RemainingSeconds(ctx, emailState.LastSentAt)
		// One automatic resend when the link went stale and the window is
		// open again; a live token inside the window means the user waits.
		resp.AutoSend = !emailState.HasPendingToken() && c.cooldown.Allow(ctx, emailState.LastSentAt)
	}

	if err := c.stages.Save(ctx, flowID, resp.Stage); err != nil {
		return models.ResolveResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
	}
	return resp, nil
}

// SaveDraft upserts the in-progress profile. Legal at any pre-terminal
// stage: the user can keep typing while a link is outstanding.
func (c *Controller) SaveDraft(ctx context.Context, flowID id.FlowID, d models.Draft) error {
	st := c.currentStage(ctx, flowID)
	if st.Terminal() {
		return dErrors.New(dErrors.CodeInvalidInput, "registration is already complete")
	}
	d.UpdatedAt = requestcontext.Now(ctx)
	if err := c.drafts.Save(ctx, flowID, d); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBackend, "save draft")
	}
	return nil
}

// Draft returns the stored draft, or an empty one when nothing was saved.
func (c *Controller) Draft(ctx context.Context, flowID id.FlowID) (models.Draft, error) {
	d, err := c.drafts.Find(ctx, flowID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Draft{}, nil
	}
	if err != nil {
		return models.Draft{}, dErrors.Wrap(err, dErrors.CodeBackend, "read draft")
	}
	return d, nil
}

// SendEmail triggers the magic-link send for the draft email. A send with no
// resolvable draft identifier is refused: nothing would anchor the flow.
func (c *Controller) SendEmail(ctx context.Context, flowID id.FlowID, emailOverride, pageURL string) (models.SendResponse, error) {
	ctx, span := tracer.Start(ctx, "flow.send_email")
	defer span.End()

	if err := c.inflight.acquire(flowID, ActionSendEmail); err != nil {
		return models.SendResponse{}, err
	}
	defer c.inflight.release(flowID, ActionSendEmail)

	st := c.currentStage(ctx, flowID)
	next, err := Next(st, ActionSendEmail)
	if err != nil {
		return models.SendResponse{}, err
	}

	addr := emailOverride
	if addr == "" {
		d, err := c.Draft(ctx, flowID)
		if err != nil {
			return models.SendResponse{}, err
		}
		addr = d.Email
	}
	if addr == "" {
		return models.SendResponse{}, dErrors.New(dErrors.CodeInvalidInput, "no email to send to: save the form first")
	}

	if err := c.email.Send(ctx, flowID, channel.Target{Email: addr, PageURL: pageURL}); err != nil {
		return models.SendResponse{}, err
	}

	if err := c.stages.Save(ctx, flowID, next); err != nil {
		return models.SendResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
	}
	return models.SendResponse{Stage: next, CooldownSeconds: c.cooldown.RemainingSeconds(ctx, requestcontext.Now(ctx))}, nil
}

// VerifyEmail completes the email channel on link return. The identifier is
// recovered through an ordered fallback chain; each source is consulted only
// when the previous one yields nothing.
func (c *Controller) VerifyEmail(ctx context.Context, flowID id.FlowID, currentURL, promptEmail string) (models.VerifyResponse, error) {
	ctx, span := tracer.Start(ctx, "flow.verify_email")
	defer span.End()

	if err := c.inflight.acquire(flowID, ActionVerifyEmail); err != nil {
		return models.VerifyResponse{}, err
	}
	defer c.inflight.release(flowID, ActionVerifyEmail)

	st := c.currentStage(ctx, flowID)
	if _, err := Next(st, ActionVerifyEmail); err != nil {
		return models.VerifyResponse{}, err
	}

	addr, err := c.recoverEmail(ctx, flowID, currentURL, promptEmail)
	if err != nil {
		return models.VerifyResponse{}, err
	}

	identity, err := c.email.Verify(ctx, flowID, channel.Proof{Email: addr, CurrentURL: currentURL})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeProviderExpired) {
			// Expired link regresses to the send step; the draft survives.
			if serr := c.stages.Save(ctx, flowID, models.StageStart); serr != nil {
				c.logger.ErrorContext(ctx, "regress stage after expired link", "error", serr)
			}
		}
		return models.VerifyResponse{}, err
	}

	if err := c.stages.Save(ctx, flowID, models.StagePhoneInput); err != nil {
		return models.VerifyResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
	}
	return models.VerifyResponse{Stage: models.StagePhoneInput, Identity: identity}, nil
}

// recoverEmail is the ordered identifier fallback for a magic-link return:
// URL query parameter, flow-local link email, draft email, then the typed
// prompt. All four empty is a recovery error that keeps stage and draft.
func (c *Controller) recoverEmail(ctx context.Context, flowID id.FlowID, currentURL, promptEmail string) (string, error) {
	if addr := provider.EmailFromLink(currentURL); addr != "" {
		return addr, nil
	}
	if addr, err := c.state.LinkEmail(ctx, flowID); err == nil && addr != "" {
		return addr, nil
	}
	if d, err := c.drafts.Find(ctx, flowID); err == nil && d.Email != "" {
		return d.Email, nil
	}
	if promptEmail != "" {
		return promptEmail, nil
	}
	return "", dErrors.New(dErrors.CodeRecovery, "could not determine which email this link was sent to")
}

// SendPhone normalizes the number, stores it on the draft and triggers the
// SMS challenge. The email credential, when the client holds one, rides
// along so the provider links both proofs to one identity.
func (c *Controller) SendPhone(ctx context.Context, flowID id.FlowID, dialCode, rawNumber, anchorToken string) (models.SendResponse, error) {
	ctx, span := tracer.Start(ctx, "flow.send_phone")
	defer span.End()

	if err := c.inflight.acquire(flowID, ActionSendPhone); err != nil {
		return models.SendResponse{}, err
	}
	defer c.inflight.release(flowID, ActionSendPhone)

	st := c.currentStage(ctx, flowID)
	next, err := Next(st, ActionSendPhone)
	if err != nil {
		return models.SendResponse{}, err
	}

	num, err := phone.Normalize(dialCode, rawNumber)
	if err != nil {
		return models.SendResponse{}, err
	}

	if err := c.phone.Send(ctx, flowID, channel.Target{Phone: num, Anchor: anchorToken}); err != nil {
		return models.SendResponse{}, err
	}

	// The draft keeps dial code and local digits separately for the
	// provisioning payload.
	d, err := c.Draft(ctx, flowID)
	if err == nil {
		d.PhoneCountryCode = num.DialCode
		d.PhoneLocalNumber = num.Local
		d.UpdatedAt = requestcontext.Now(ctx)
		if serr := c.drafts.Save(ctx, flowID, d); serr != nil {
			c.logger.WarnContext(ctx, "save phone to draft", "error", serr)
		}
	}

	if err := c.stages.Save(ctx, flowID, next); err != nil {
		return models.SendResponse{}, dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
	}
	return models.SendResponse{Stage: next, CooldownSeconds: c.cooldown.RemainingSeconds(ctx, requestcontext.Now(ctx))}, nil
}

// VerifyPhone redeems the entered code. The credential goes back to the
// client; the stage advances only when provisioning consumes it.
func (c *Controller) VerifyPhone(ctx context.Context, flowID id.FlowID, code, anchorToken string) (models.VerifyResponse, error) {
	ctx, span := tracer.Start(ctx, "flow.verify_phone")
	defer span.End()

	if err := c.inflight.acquire(flowID, ActionVerifyPhone); err != nil {
		return models.VerifyResponse{}, err
	}
	defer c.inflight.release(flowID, ActionVerifyPhone)

	st := c.currentStage(ctx, flowID)
	next, err := Next(st, ActionVerifyPhone)
	if err != nil {
		return models.VerifyResponse{}, err
	}

	identity, err := c.phone.Verify(ctx, flowID, channel.Proof{Code: code, Anchor: anchorToken})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeProviderExpired) {
			if serr := c.stages.Save(ctx, flowID, models.StagePhoneInput); serr != nil {
				c.logger.ErrorContext(ctx, "regress stage after expired challenge", "error", serr)
			}
		}
		return models.VerifyResponse{}, err
	}

	return models.VerifyResponse{Stage: next, Identity: identity}, nil
}

// ChangePhone is the single back edge: the user abandons the outstanding
// challenge to enter a different number. The pending token is released so
// nothing can redeem it later.
func (c *Controller) ChangePhone(ctx context.Context, flowID id.FlowID) (models.Stage, error) {
	st := c.currentStage(ctx, flowID)
	next, err := Next(st, ActionChangePhone)
	if err != nil {
		return "", err
	}

	if err := c.state.ClearPendingToken(ctx, flowID, models.ChannelPhone); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.Wrap(err, dErrors.CodeBackend, "release phone challenge")
	}
	if err := c.stages.Save(ctx, flowID, next); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
	}
	return next, nil
}

// CheckPhoneChallenge reports whether a backend code may be issued at the
// flow's current stage, without recording anything. The caller runs this
// before dispatching the SMS; a stage error here means no message leaves.
func (c *Controller) CheckPhoneChallenge(ctx context.Context, flowID id.FlowID) error {
	st := c.currentStage(ctx, flowID)
	_, err := Next(st, ActionSendPhone)
	return err
}

// NotePhoneChallenge records that a backend-issued code is outstanding for
// the flow's phone number. The OTP fallback shares the provider path's stage
// edges so the UI renders the same code-entry screen either way.
func (c *Controller) NotePhoneChallenge(ctx context.Context, flowID id.FlowID, num phone.Number) (models.Stage, error) {
	st := c.currentStage(ctx, flowID)
	next, err := Next(st, ActionSendPhone)
	if err != nil {
		return "", err
	}

	d, err := c.Draft(ctx, flowID)
	if err == nil {
		d.PhoneCountryCode = num.DialCode
		d.PhoneLocalNumber = num.Local
		d.UpdatedAt = requestcontext.Now(ctx)
		if serr := c.drafts.Save(ctx, flowID, d); serr != nil {
			c.logger.WarnContext(ctx, "save phone to draft", "error", serr)
		}
	}

	if err := c.stages.Save(ctx, flowID, next); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
	}
	return next, nil
}

// MarkProvisioned records the terminal stage. The provisioner calls this
// after the account exists and the draft is gone.
func (c *Controller) MarkProvisioned(ctx context.Context, flowID id.FlowID) error {
	st := c.currentStage(ctx, flowID)
	next, err := Next(st, ActionProvision)
	if err != nil {
		return err
	}
	if err := c.stages.Save(ctx, flowID, next); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBackend, "record stage")
	}
	return nil
}

// GuardProvision validates and single-flights a provisioning attempt. The
// returned release func must be called on every path.
//
// The stage alone is not proof: phone_verifying is entered on send, so the
// guard also demands the durable mark a successful code check leaves in the
// channel state. Without it a credential from the email step could mint an
// account whose phone was never proven.
func (c *Controller) GuardProvision(ctx context.Context, flowID id.FlowID) (func(), error) {
	if err := c.inflight.acquire(flowID, ActionProvision); err != nil {
		return nil, err
	}
	release := func() { c.inflight.release(flowID, ActionProvision) }

	st := c.currentStage(ctx, flowID)
	if _, err := Next(st, ActionProvision); err != nil {
		release()
		return nil, err
	}

	verified, err := c.state.Verified(ctx, flowID, models.ChannelPhone)
	if err != nil {
		release()
		return nil, dErrors.Wrap(err, dErrors.CodeBackend, "read phone verification")
	}
	if !verified {
		release()
		return nil, dErrors.New(dErrors.CodeInvalidInput, "phone number has not been verified")
	}
	return release, nil
}

// currentStage reads the recorded stage, defaulting to start for a flow
// that never resolved.
func (c *Controller) currentStage(ctx context.Context, flowID id.FlowID) models.Stage {
	st, err := c.stages.Find(ctx, flowID)
	if err != nil {
		return models.StageStart
	}
	return st
}

func (c *Controller) draftIfAny(ctx context.Context, flowID id.FlowID) *models.Draft {
	d, err := c.drafts.Find(ctx, flowID)
	if err != nil || d.IsZero() {
		return nil
	}
	return &d
}
