// Package handler wires the registration endpoints to the flow controller,
// provisioner and OTP fallback service. It owns transport concerns only:
// decoding, validation, session status extraction and error translation.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"enroll/internal/platform/middleware"
	"enroll/internal/registration/models"
	id "enroll/pkg/domain"
	"enroll/pkg/phone"
	"enroll/pkg/platform/httputil"
	"enroll/pkg/requestcontext"
)

// FlowService is the stage controller surface the handler depends on.
type FlowService interface {
	Resolve(ctx context.Context, flowID id.FlowID, currentURL string, status models.SessionStatus) (models.ResolveResponse, error)
	SaveDraft(ctx context.Context, flowID id.FlowID, d models.Draft) error
	SendEmail(ctx context.Context, flowID id.FlowID, emailOverride, pageURL string) (models.SendResponse, error)
	VerifyEmail(ctx context.Context, flowID id.FlowID, currentURL, promptEmail string) (models.VerifyResponse, error)
	SendPhone(ctx context.Context, flowID id.FlowID, dialCode, rawNumber, anchorToken string) (models.SendResponse, error)
	VerifyPhone(ctx context.Context, flowID id.FlowID, code, anchorToken string) (models.VerifyResponse, error)
	ChangePhone(ctx context.Context, flowID id.FlowID) (models.Stage, error)
	CheckPhoneChallenge(ctx context.Context, flowID id.FlowID) error
	NotePhoneChallenge(ctx context.Context, flowID id.FlowID, num phone.Number) (models.Stage, error)
}

// ProvisionService exchanges a verified credential for an account.
type ProvisionService interface {
	Provision(ctx context.Context, flowID id.FlowID, idToken string) (models.ProvisionResponse, error)
}

// OTPService is the backend-issued code fallback for the phone step.
type OTPService interface {
	Resend(ctx context.Context, flowID id.FlowID, num phone.Number) error
	Verify(ctx context.Context, flowID id.FlowID, code string) error
}

// Handler wires registration endpoints to their services.
type Handler struct {
	flow      FlowService
	provision ProvisionService
	otp       OTPService
	logger    *slog.Logger
}

// New constructs a registration handler with its dependencies.
func New(flow FlowService, provision ProvisionService, otp OTPService, logger *slog.Logger) *Handler {
	return &Handler{
		flow:      flow,
		provision: provision,
		otp:       otp,
		logger:    logger,
	}
}

// Register mounts registration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/register/resolve", h.HandleResolve)
	r.Put("/register/draft", h.HandleSaveDraft)
	r.Post("/register/email/send", h.HandleSendEmail)
	r.Post("/register/email/verify", h.HandleVerifyEmail)
	r.Post("/register/phone/send", h.HandleSendPhone)
	r.Post("/register/phone/verify", h.HandleVerifyPhone)
	r.Post("/register/phone/change", h.HandleChangePhone)
	r.Post("/register/otp/resend", h.HandleOTPResend)
	r.Post("/register/otp/verify", h.HandleOTPVerify)
	r.Post("/register/provision", h.HandleProvision)
}

// HandleResolve handles POST /register/resolve requests.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.ResolveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.flow.Resolve(ctx, requestcontext.FlowID(ctx), req.CurrentURL, sessionStatus(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "resolve failed",
			"request_id", requestID,
			"flow_id", requestcontext.FlowID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleSaveDraft handles PUT /register/draft requests.
func (h *Handler) HandleSaveDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SaveDraftRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err := h.flow.SaveDraft(ctx, requestcontext.FlowID(ctx), models.Draft{
		Name:             req.Name,
		Username:         req.Username,
		Email:            req.Email,
		PhoneCountryCode: req.PhoneCountryCode,
		PhoneLocalNumber: req.PhoneLocalNumber,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSendEmail handles POST /register/email/send requests.
func (h *Handler) HandleSendEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[models.SendEmailRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.flow.SendEmail(ctx, requestcontext.FlowID(ctx), req.Email, req.CurrentURL)
	if err != nil {
		h.logger.WarnContext(ctx, "email send rejected",
			"request_id", requestID,
			"flow_id", requestcontext.FlowID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "email link sent",
		"request_id", requestID,
		"flow_id", requestcontext.FlowID(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerifyEmail handles POST /register/email/verify requests.
func (h *Handler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.VerifyEmailRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.flow.VerifyEmail(ctx, requestcontext.FlowID(ctx), req.CurrentURL, req.PromptEmail)
	if err != nil {
		h.logger.WarnContext(ctx, "email verify rejected",
			"request_id", requestID,
			"flow_id", requestcontext.FlowID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleSendPhone handles POST /register/phone/send requests.
func (h *Handler) HandleSendPhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SendPhoneRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.flow.SendPhone(ctx, requestcontext.FlowID(ctx), req.DialCode, req.Number, req.IDToken)
	if err != nil {
		h.logger.WarnContext(ctx, "phone send rejected",
			"request_id", requestID,
			"flow_id", requestcontext.FlowID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerifyPhone handles POST /register/phone/verify requests.
func (h *Handler) HandleVerifyPhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.VerifyPhoneRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.flow.VerifyPhone(ctx, requestcontext.FlowID(ctx), req.Code, req.IDToken)
	if err != nil {
		h.logger.WarnContext(ctx, "phone verify rejected",
			"request_id", requestID,
			"flow_id", requestcontext.FlowID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleChangePhone handles POST /register/phone/change requests. No body:
// the only input is the flow itself.
func (h *Handler) HandleChangePhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stage, err := h.flow.ChangePhone(ctx, requestcontext.FlowID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.ChangePhoneResponse{Stage: stage})
}

// HandleOTPResend handles POST /register/otp/resend requests.
func (h *Handler) HandleOTPResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	flowID := requestcontext.FlowID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.OTPResendRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	num, err := phone.Normalize(req.DialCode, req.Number)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Stage gate before dispatch: a flow that may not issue a phone
	// challenge must not cause an SMS to leave.
	if err := h.flow.CheckPhoneChallenge(ctx, flowID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.otp.Resend(ctx, flowID, num); err != nil {
		h.logger.WarnContext(ctx, "otp resend rejected",
			"request_id", requestID,
			"flow_id", flowID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	stage, err := h.flow.NotePhoneChallenge(ctx, flowID, num)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.SendResponse{Stage: stage})
}

// HandleOTPVerify handles POST /register/otp/verify requests. Success yields
// no credential: the phone ownership record lives backend-side and the email
// credential carries the flow into provisioning.
func (h *Handler) HandleOTPVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.OTPVerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.otp.Verify(ctx, requestcontext.FlowID(ctx), req.Code); err != nil {
		h.logger.WarnContext(ctx, "otp verify rejected",
			"request_id", requestID,
			"flow_id", requestcontext.FlowID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleProvision handles POST /register/provision requests.
func (h *Handler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[models.ProvisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.provision.Provision(ctx, requestcontext.FlowID(ctx), req.IDToken)
	if err != nil {
		h.logger.ErrorContext(ctx, "provisioning failed",
			"request_id", requestID,
			"flow_id", requestcontext.FlowID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "account provisioned",
		"request_id", requestID,
		"flow_id", requestcontext.FlowID(ctx),
		"user_id", resp.UserID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

// sessionStatus projects middleware claims into the externally-owned account
// status the resolver consumes. Anonymous requests yield the zero value.
func sessionStatus(ctx context.Context) models.SessionStatus {
	claims := middleware.GetSessionClaims(ctx)
	if claims == nil {
		return models.SessionStatus{}
	}
	return models.SessionStatus{
		Authenticated:  true,
		EmailVerified:  claims.EmailVerified,
		PhoneVerified:  claims.PhoneVerified,
		OnboardingStep: claims.OnboardingStep,
	}
}
