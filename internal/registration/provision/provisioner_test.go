package provision

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"enroll/internal/account"
	"enroll/internal/provider"
	"enroll/internal/registration/channel"
	"enroll/internal/registration/channel/mocks"
	"enroll/internal/registration/channelstate"
	"enroll/internal/registration/cooldown"
	"enroll/internal/registration/draft"
	"enroll/internal/registration/flow"
	"enroll/internal/registration/guard"
	"enroll/internal/registration/models"
	"enroll/internal/registration/stage"
	"enroll/internal/session"
	dErrors "enroll/pkg/domain-errors"
	id "enroll/pkg/domain"
	audit "enroll/pkg/platform/audit"
	"enroll/pkg/platform/audit/publisher"
	"enroll/pkg/platform/audit/store/memory"
	"enroll/pkg/platform/sentinel"
)

type fixture struct {
	provisioner *Provisioner
	controller  *flow.Controller
	provider    *mocks.MockProviderAPI
	accounts    *account.InMemoryStore
	drafts      draft.Store
	stages      stage.Store
	auditStore  *memory.InMemoryStore
	sessions    *session.Service
	flowID      id.FlowID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	p := mocks.NewMockProviderAPI(ctrl)

	stages := stage.NewInMemoryStore()
	drafts := draft.NewInMemoryStore()
	state := channelstate.NewInMemoryStore()
	accounts := account.NewInMemoryStore()
	logger := slog.Default()
	g := guard.New(accounts, logger)
	gate := cooldown.NewGate(60 * time.Second)

	emailVerifier := channel.NewEmailLink(p, state, g, gate, nil, nil, logger)
	phoneVerifier := channel.NewPhoneCode(p, state, g, gate, nil, nil, logger)
	controller := flow.New(stages, drafts, state, emailVerifier, phoneVerifier, gate, logger)

	auditStore := memory.NewInMemoryStore()
	auditPub := publisher.NewPublisher(auditStore)
	t.Cleanup(auditPub.Close)

	sessions := session.NewService("test-key", time.Hour)

	return &fixture{
		provisioner: New(accounts, drafts, state, controller, sessions, auditPub, nil, logger),
		controller:  controller,
		provider:    p,
		accounts:    accounts,
		drafts:      drafts,
		stages:      stages,
		auditStore:  auditStore,
		sessions:    sessions,
		flowID:      id.NewFlowID(),
	}
}

const pageURL = "https://shop.ex/register"

// throughPhoneVerify drives the flow to the point where provisioning is
// legal and returns the phone-channel credential.
func (f *fixture) throughPhoneVerify(t *testing.T, ctx context.Context) models.VerifiedIdentity {
	t.Helper()

	require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, models.Draft{
		Name: "Jane Doe", Username: "jane", Email: "jane@ex.com",
	}))

	f.provider.EXPECT().SendLink(gomock.Any(), "jane@ex.com", gomock.Any()).Return(nil)
	_, err := f.controller.SendEmail(ctx, f.flowID, "", pageURL)
	require.NoError(t, err)

	f.provider.EXPECT().VerifyLink(gomock.Any(), "jane@ex.com", gomock.Any()).
		Return(provider.Identity{IDToken: "tok-email", Subject: "sub-1"}, nil)
	_, err = f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=abc&email=jane%40ex.com", "")
	require.NoError(t, err)

	f.provider.EXPECT().SendChallenge(gomock.Any(), "+971501234567", "tok-email").
		Return(provider.Challenge{ChallengeToken: "ch-1"}, nil)
	_, err = f.controller.SendPhone(ctx, f.flowID, "971", "0501234567", "tok-email")
	require.NoError(t, err)

	f.provider.EXPECT().VerifyChallenge(gomock.Any(), "ch-1", "123456", "tok-email").
		Return(provider.Identity{IDToken: "tok-both", Subject: "sub-1"}, nil)
	resp, err := f.controller.VerifyPhone(ctx, f.flowID, "123456", "tok-email")
	require.NoError(t, err)
	return resp.Identity
}

func TestProvision_CreatesAccountAndClearsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identity := f.throughPhoneVerify(t, ctx)

	resp, err := f.provisioner.Provision(ctx, f.flowID, identity.IDToken)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.UserID)
	assert.NotEmpty(t, resp.SessionToken)
	assert.Equal(t, account.OnboardingStepInitial, resp.OnboardingStep)
	assert.Equal(t, "/onboarding", resp.Redirect)

	// The session token is immediately valid and fully verified.
	claims, err := f.sessions.Validate(resp.SessionToken)
	require.NoError(t, err)
	assert.True(t, claims.EmailVerified)
	assert.True(t, claims.PhoneVerified)

	// The account row carries the draft and the provider subject.
	userID, err := id.ParseUserID(resp.UserID)
	require.NoError(t, err)
	acc, err := f.accounts.FindByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", acc.Name)
	assert.Equal(t, "jane@ex.com", acc.Email)
	assert.Equal(t, "971", acc.PhoneCountryCode)
	assert.Equal(t, "501234567", acc.PhoneLocalNumber)
	assert.Equal(t, "sub-1", acc.ProviderSubject)

	// The draft is gone, exactly once.
	_, err = f.drafts.Find(ctx, f.flowID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// The stage is terminal.
	st, err := f.stages.Find(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, models.StageProvisioned, st)
}

func TestProvision_SubsequentResolveSkipsAhead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identity := f.throughPhoneVerify(t, ctx)
	resp, err := f.provisioner.Provision(ctx, f.flowID, identity.IDToken)
	require.NoError(t, err)

	claims, err := f.sessions.Validate(resp.SessionToken)
	require.NoError(t, err)

	resolved, err := f.controller.Resolve(ctx, f.flowID, pageURL, models.SessionStatus{
		Authenticated:  true,
		EmailVerified:  claims.EmailVerified,
		PhoneVerified:  claims.PhoneVerified,
		OnboardingStep: claims.OnboardingStep,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageProvisioned, resolved.Stage)
	assert.Equal(t, "/onboarding", resolved.Redirect)
	assert.Nil(t, resolved.Draft, "the cleared draft must not resurface")
}

func TestProvision_BackendConflictKeepsCredentialUsable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identity := f.throughPhoneVerify(t, ctx)

	// The race: someone registers the email between guard check and insert.
	require.NoError(t, f.accounts.Create(ctx, account.Account{
		ID:        id.NewUserID(),
		Email:     "jane@ex.com",
		CreatedAt: time.Now(),
	}))

	_, err := f.provisioner.Provision(ctx, f.flowID, identity.IDToken)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBackend))

	// Draft and stage survive for the retry.
	d, err := f.drafts.Find(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, "jane@ex.com", d.Email)
	st, err := f.stages.Find(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneVerifying, st)

	// Retry after the blocker is gone succeeds with the same credential.
	f.accounts.Clear()
	resp, err := f.provisioner.Provision(ctx, f.flowID, identity.IDToken)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.UserID)
}

func TestProvision_NoDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identity := f.throughPhoneVerify(t, ctx)
	require.NoError(t, f.drafts.Clear(ctx, f.flowID))

	_, err := f.provisioner.Provision(ctx, f.flowID, identity.IDToken)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestProvision_RefusedWithoutPhoneProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Everything up to and including the challenge send, but the code is
	// never entered. The email credential alone must not mint an account.
	require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, models.Draft{
		Name: "Jane Doe", Username: "jane", Email: "jane@ex.com",
	}))

	f.provider.EXPECT().SendLink(gomock.Any(), "jane@ex.com", gomock.Any()).Return(nil)
	_, err := f.controller.SendEmail(ctx, f.flowID, "", pageURL)
	require.NoError(t, err)

	f.provider.EXPECT().VerifyLink(gomock.Any(), "jane@ex.com", gomock.Any()).
		Return(provider.Identity{IDToken: "tok-email", Subject: "sub-1"}, nil)
	_, err = f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=abc&email=jane%40ex.com", "")
	require.NoError(t, err)

	f.provider.EXPECT().SendChallenge(gomock.Any(), "+971501234567", "tok-email").
		Return(provider.Challenge{ChallengeToken: "ch-1"}, nil)
	_, err = f.controller.SendPhone(ctx, f.flowID, "971", "0501234567", "tok-email")
	require.NoError(t, err)

	_, err = f.provisioner.Provision(ctx, f.flowID, "tok-email")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	assert.Contains(t, err.Error(), "phone number has not been verified")

	exists, err := f.accounts.ExistsByEmail(ctx, "jane@ex.com")
	require.NoError(t, err)
	assert.False(t, exists, "no account without the phone proof")

	// Draft and stage survive: the user finishes the phone step and retries.
	_, err = f.drafts.Find(ctx, f.flowID)
	require.NoError(t, err)
	st, err := f.stages.Find(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneVerifying, st)
}

func TestProvision_IllegalBeforePhoneVerifyStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, models.Draft{Email: "jane@ex.com"}))

	_, err := f.provisioner.Provision(ctx, f.flowID, "tok-1")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestProvision_DerivesNameFromEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, models.Draft{
		Email: "jane.doe@ex.com",
	}))
	identity := f.throughPhoneVerifyWithoutDraftName(t, ctx)

	resp, err := f.provisioner.Provision(ctx, f.flowID, identity.IDToken)
	require.NoError(t, err)

	userID, err := id.ParseUserID(resp.UserID)
	require.NoError(t, err)
	acc, err := f.accounts.FindByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", acc.Name)
}

// throughPhoneVerifyWithoutDraftName assumes the draft was already saved.
func (f *fixture) throughPhoneVerifyWithoutDraftName(t *testing.T, ctx context.Context) models.VerifiedIdentity {
	t.Helper()

	f.provider.EXPECT().SendLink(gomock.Any(), "jane.doe@ex.com", gomock.Any()).Return(nil)
	_, err := f.controller.SendEmail(ctx, f.flowID, "", pageURL)
	require.NoError(t, err)

	f.provider.EXPECT().VerifyLink(gomock.Any(), "jane.doe@ex.com", gomock.Any()).
		Return(provider.Identity{IDToken: "tok-email", Subject: "sub-1"}, nil)
	_, err = f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=abc&email=jane.doe%40ex.com", "")
	require.NoError(t, err)

	f.provider.EXPECT().SendChallenge(gomock.Any(), "+971501234567", "tok-email").
		Return(provider.Challenge{ChallengeToken: "ch-1"}, nil)
	_, err = f.controller.SendPhone(ctx, f.flowID, "971", "0501234567", "tok-email")
	require.NoError(t, err)

	f.provider.EXPECT().VerifyChallenge(gomock.Any(), "ch-1", "123456", "tok-email").
		Return(provider.Identity{IDToken: "tok-both", Subject: "sub-1"}, nil)
	resp, err := f.controller.VerifyPhone(ctx, f.flowID, "123456", "tok-email")
	require.NoError(t, err)
	return resp.Identity
}

func TestProvision_EmitsAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identity := f.throughPhoneVerify(t, ctx)
	_, err := f.provisioner.Provision(ctx, f.flowID, identity.IDToken)
	require.NoError(t, err)

	events, err := f.auditStore.ListByFlow(ctx, f.flowID.String())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventAccountCreated), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, "jane@ex.com", events[0].Email)
}
