package otp

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"enroll/internal/registration/channelstate"
	"enroll/internal/registration/cooldown"
	"enroll/internal/registration/guard"
	"enroll/internal/registration/models"
	dErrors "enroll/pkg/domain-errors"
	id "enroll/pkg/domain"
	otpcode "enroll/pkg/otp"
	"enroll/pkg/phone"
	audit "enroll/pkg/platform/audit"
	"enroll/pkg/platform/audit/publisher"
	"enroll/pkg/platform/sentinel"
	"enroll/pkg/requestcontext"
)

// Sender delivers a code over SMS. The real gateway lives outside this
// service; dev deployments use LogSender.
type Sender interface {
	SendCode(ctx context.Context, phoneE164, code string) error
}

// LogSender writes the code to the log instead of sending it.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendCode(ctx context.Context, phoneE164, code string) error {
	s.Logger.InfoContext(ctx, "otp code issued (log sender)", "phone", phoneE164, "code", code)
	return nil
}

// Service mints and checks backend-issued codes.
type Service struct {
	store       Store
	states      channelstate.Store
	guard       *guard.Guard
	cooldown    *cooldown.Gate
	sender      Sender
	audit       *publisher.Publisher
	logger      *slog.Logger
	maxAttempts int
}

// New constructs the OTP service.
func New(store Store, states channelstate.Store, g *guard.Guard, gate *cooldown.Gate, sender Sender,
	auditPub *publisher.Publisher, logger *slog.Logger, maxAttempts int) *Service {

	return &Service{
		store:       store,
		states:      states,
		guard:       g,
		cooldown:    gate,
		sender:      sender,
		audit:       auditPub,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Resend issues a fresh code for the flow's phone number, replacing any
// previous one. The same guard and cooldown rules as the provider channel
// apply: taken identifiers and hot resends never generate a message.
func (s *Service) Resend(ctx context.Context, flowID id.FlowID, num phone.Number) error {
	if err := s.guard.CheckPhone(ctx, num); err != nil {
		return err
	}

	prev, err := s.store.Find(ctx, flowID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeBackend, "read otp record")
	}
	if err == nil && !s.cooldown.Allow(ctx, prev.IssuedAt) {
		s.emit(ctx, flowID, audit.EventResendThrottled, num.E164(), "")
		return dErrors.Newf(dErrors.CodeProviderRateLimited, "resend available in %ds", s.cooldown.RemainingSeconds(ctx, prev.IssuedAt))
	}

	code, err := otpcode.Generate()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "generate code")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "hash code")
	}

	if err := s.store.Save(ctx, flowID, Record{
		CodeHash:  hash,
		PhoneE164: num.E164(),
		IssuedAt:  requestcontext.Now(ctx),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBackend, "save otp record")
	}

	if err := s.sender.SendCode(ctx, num.E164(), code); err != nil {
		// The record stays; a delivery hiccup should not unlock an immediate
		// reissue loop.
		return dErrors.Wrap(err, dErrors.CodeBackend, "deliver code")
	}

	// A fresh backend challenge supersedes whatever the provider path had
	// outstanding and resets the verified mark: the proof belongs to the
	// number just challenged, not to the flow.
	if err := s.states.Save(ctx, flowID, models.ChannelState{
		Channel:    models.ChannelPhone,
		LastSentAt: requestcontext.Now(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "record phone channel state", "error", err)
	}

	s.emit(ctx, flowID, audit.EventOTPIssued, num.E164(), "")
	return nil
}

// Verify checks a submitted code against the live record. Wrong guesses are
// counted; hitting the attempt ceiling invalidates the code outright.
func (s *Service) Verify(ctx context.Context, flowID id.FlowID, code string) error {
	if !otpcode.Valid(code) {
		return dErrors.New(dErrors.CodeInvalidInput, "enter all six digits of the code")
	}

	rec, err := s.store.Find(ctx, flowID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeProviderExpired, "the code has expired, request a new one")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBackend, "read otp record")
	}

	if rec.Attempts >= s.maxAttempts {
		if err := s.store.Clear(ctx, flowID); err != nil {
			s.logger.WarnContext(ctx, "clear exhausted otp record", "error", err)
		}
		s.emit(ctx, flowID, audit.EventOTPExhausted, rec.PhoneE164, "attempt ceiling reached")
		return dErrors.New(dErrors.CodeProviderRateLimited, "too many attempts, request a new code")
	}

	if bcrypt.CompareHashAndPassword(rec.CodeHash, []byte(code)) != nil {
		rec.Attempts++
		if err := s.store.Save(ctx, flowID, rec); err != nil {
			s.logger.WarnContext(ctx, "record otp attempt", "error", err)
		}
		return dErrors.New(dErrors.CodeProviderInvalidCode, "the code is not correct")
	}

	// Provisioning checks the mark, so it must land before the record is
	// burned: a flow with neither can retry the same code.
	if err := s.states.MarkVerified(ctx, flowID, models.ChannelPhone); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBackend, "record phone verification")
	}

	// Single use: success burns the record.
	if err := s.store.Clear(ctx, flowID); err != nil {
		s.logger.WarnContext(ctx, "clear redeemed otp record", "error", err)
	}
	s.emit(ctx, flowID, audit.EventOTPVerified, rec.PhoneE164, "")
	return nil
}

func (s *Service) emit(ctx context.Context, flowID id.FlowID, action audit.AuditEvent, phoneE164, reason string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		Category:  action.Category(),
		FlowID:    flowID.String(),
		Channel:   "phone",
		Action:    string(action),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "emit audit event", "action", action, "error", err)
	}
}
