package models

// API payloads for the registration endpoints. Validation tags are enforced
// at the transport boundary with go-playground/validator; anything deeper
// (phone normalization, code completeness) is a domain concern.

// ResolveRequest asks which stage the UI should render. CurrentURL is the
// browser's location so a magic-link return is recognized even on a device
// with no stored state.
type ResolveRequest struct {
	CurrentURL string `json:"current_url" validate:"omitempty,url"`
}

// ResolveResponse carries everything the UI needs to mount.
type ResolveResponse struct {
	Stage           Stage  `json:"stage"`
	Draft           *Draft `json:"draft,omitempty"`
	CooldownSeconds int    `json:"cooldown_seconds"`
	AutoSend        bool   `json:"auto_send"`
	Redirect        string `json:"redirect,omitempty"`
}

// SaveDraftRequest persists the in-progress profile fields.
type SaveDraftRequest struct {
	Name             string `json:"name" validate:"max=200"`
	Username         string `json:"username" validate:"max=100"`
	Email            string `json:"email" validate:"omitempty,email,max=255"`
	PhoneCountryCode string `json:"phone_country_code" validate:"omitempty,numeric,max=4"`
	PhoneLocalNumber string `json:"phone_local_number" validate:"max=20"`
}

// SendEmailRequest triggers the magic-link send. Email may be omitted when a
// draft with one already exists. CurrentURL is the page the link should
// return to.
type SendEmailRequest struct {
	Email      string `json:"email" validate:"omitempty,email,max=255"`
	CurrentURL string `json:"current_url" validate:"required,url"`
}

// VerifyEmailRequest completes the email channel on link return. PromptEmail
// is the last-resort identifier typed by the user when URL, provider-local
// storage and draft all failed to yield one.
type VerifyEmailRequest struct {
	CurrentURL  string `json:"current_url" validate:"required,url"`
	PromptEmail string `json:"prompt_email" validate:"omitempty,email,max=255"`
}

// SendPhoneRequest triggers the SMS challenge. IDToken, when present, is the
// email-channel credential so the provider links the phone to that identity
// instead of minting a second one.
type SendPhoneRequest struct {
	DialCode string `json:"dial_code" validate:"required,numeric,max=4"`
	Number   string `json:"number" validate:"required,max=20"`
	IDToken  string `json:"id_token" validate:"omitempty"`
}

// VerifyPhoneRequest submits the assembled 6-digit code.
type VerifyPhoneRequest struct {
	Code    string `json:"code" validate:"required"`
	IDToken string `json:"id_token" validate:"omitempty"`
}

// SendResponse reports a successful send and when resend unlocks.
type SendResponse struct {
	Stage           Stage `json:"stage"`
	CooldownSeconds int   `json:"cooldown_seconds"`
}

// VerifyResponse reports a successful verify and the credential to carry
// into the next step.
type VerifyResponse struct {
	Stage    Stage            `json:"stage"`
	Identity VerifiedIdentity `json:"identity"`
}

// ChangePhoneResponse reports the stage after the outstanding challenge was
// released.
type ChangePhoneResponse struct {
	Stage Stage `json:"stage"`
}

// OTPResendRequest re-issues a backend OTP code for the draft phone number.
type OTPResendRequest struct {
	DialCode string `json:"dial_code" validate:"required,numeric,max=4"`
	Number   string `json:"number" validate:"required,max=20"`
}

// OTPVerifyRequest checks a backend-issued code.
type OTPVerifyRequest struct {
	Code string `json:"code" validate:"required"`
}

// ProvisionRequest exchanges the verified credential plus the stored draft
// for a real account.
type ProvisionRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// ProvisionResponse returns the created account and activated session.
type ProvisionResponse struct {
	UserID         string `json:"user_id"`
	SessionToken   string `json:"session_token"`
	OnboardingStep string `json:"onboarding_step"`
	Redirect       string `json:"redirect"`
}
