package flow

import (
	"context"
	"log/slog"
	"sync"
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
	"enroll/internal/registration/guard"
	"enroll/internal/registration/models"
	"enroll/internal/registration/stage"
	dErrors "enroll/pkg/domain-errors"
	id "enroll/pkg/domain"
	"enroll/pkg/platform/sentinel"
	"enroll/pkg/requestcontext"
)

type fixture struct {
	controller *Controller
	provider   *mocks.MockProviderAPI
	stages     stage.Store
	drafts     draft.Store
	state      channelstate.Store
	accounts   *account.InMemoryStore
	flowID     id.FlowID
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

	email := channel.NewEmailLink(p, state, g, gate, nil, nil, logger)
	phone := channel.NewPhoneCode(p, state, g, gate, nil, nil, logger)

	return &fixture{
		controller: New(stages, drafts, state, email, phone, gate, logger),
		provider:   p,
		stages:     stages,
		drafts:     drafts,
		state:      state,
		accounts:   accounts,
		flowID:     id.NewFlowID(),
	}
}

const pageURL = "https://shop.ex/register"

var janeDraft = models.Draft{Name: "Jane Doe", Username: "jane", Email: "jane@ex.com"}

func (f *fixture) throughEmailSend(t *testing.T, ctx context.Context) {
	t.Helper()
	require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, janeDraft))
	f.provider.EXPECT().SendLink(gomock.Any(), "jane@ex.com", gomock.Any()).Return(nil)
	_, err := f.controller.SendEmail(ctx, f.flowID, "", pageURL)
	require.NoError(t, err)
}

func (f *fixture) throughEmailVerify(t *testing.T, ctx context.Context) models.VerifiedIdentity {
	t.Helper()
	f.throughEmailSend(t, ctx)
	f.provider.EXPECT().VerifyLink(gomock.Any(), "jane@ex.com", gomock.Any()).
		Return(provider.Identity{IDToken: "tok-email", Subject: "sub-1"}, nil)
	resp, err := f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=abc&email=jane%40ex.com", "")
	require.NoError(t, err)
	return resp.Identity
}

func TestResolve_FreshFlow(t *testing.T) {
	f := newFixture(t)

	resp, err := f.controller.Resolve(context.Background(), f.flowID, pageURL, models.SessionStatus{})
	require.NoError(t, err)
	assert.Equal(t, models.StageStart, resp.Stage)
	assert.Nil(t, resp.Draft)
	assert.Empty(t, resp.Redirect)
}

func TestResolve_LinkURLWinsOverEverything(t *testing.T) {
	f := newFixture(t)

	// Even a fully verified session: the link shape decides.
	resp, err := f.controller.Resolve(context.Background(), f.flowID,
		pageURL+"?pv_token=abc&email=jane%40ex.com",
		models.SessionStatus{Authenticated: true, EmailVerified: true, PhoneVerified: true})
	require.NoError(t, err)
	assert.Equal(t, models.StageEmailVerifying, resp.Stage)
}

func TestResolve_BothVerifiedSkipsToPostFlow(t *testing.T) {
	f := newFixture(t)

	resp, err := f.controller.Resolve(context.Background(), f.flowID, pageURL,
		models.SessionStatus{Authenticated: true, EmailVerified: true, PhoneVerified: true})
	require.NoError(t, err)
	assert.Equal(t, models.StageProvisioned, resp.Stage)
	assert.Equal(t, "/onboarding", resp.Redirect)
}

func TestResolve_EmailVerifiedOnlyLandsOnPhoneInput(t *testing.T) {
	f := newFixture(t)

	resp, err := f.controller.Resolve(context.Background(), f.flowID, pageURL,
		models.SessionStatus{Authenticated: true, EmailVerified: true})
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneInput, resp.Stage)
}

func TestResolve_DraftWithoutSendResumesStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, janeDraft))

	resp, err := f.controller.Resolve(ctx, f.flowID, pageURL, models.SessionStatus{})
	require.NoError(t, err)
	assert.Equal(t, models.StageStart, resp.Stage)
	require.NotNil(t, resp.Draft)
	assert.Equal(t, "jane@ex.com", resp.Draft.Email)
}

func TestResolve_RecentSendResumesLinkSent(t *testing.T) {
	f := newFixture(t)
	base := time.Now()
	ctx := requestcontext.WithTime(context.Background(), base)

	f.throughEmailSend(t, ctx)

	ctx20 := requestcontext.WithTime(context.Background(), base.Add(20*time.Second))
	resp, err := f.controller.Resolve(ctx20, f.flowID, pageURL, models.SessionStatus{})
	require.NoError(t, err)
	assert.Equal(t, models.StageLinkSent, resp.Stage)
	assert.Equal(t, 40, resp.CooldownSeconds)
	assert.False(t, resp.AutoSend, "live link inside the window must not auto-resend")
}

func TestResolve_AfterEmailVerifyLandsOnPhoneInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.throughEmailVerify(t, ctx)

	resp, err := f.controller.Resolve(ctx, f.flowID, pageURL, models.SessionStatus{})
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneInput, resp.Stage,
		"a reloaded page must not fall back to the email step after the email was proven")
}

func TestResolve_LivePhoneChallengeResumesCodeEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.throughEmailVerify(t, ctx)
	f.provider.EXPECT().SendChallenge(gomock.Any(), "+971501234567", "tok-email").
		Return(provider.Challenge{ChallengeToken: "ch-1"}, nil)
	_, err := f.controller.SendPhone(ctx, f.flowID, "971", "0501234567", "tok-email")
	require.NoError(t, err)

	resp, err := f.controller.Resolve(ctx, f.flowID, pageURL, models.SessionStatus{})
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneVerifying, resp.Stage)
	assert.Positive(t, resp.CooldownSeconds)
}

func TestSendEmail_UsesDraftEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, janeDraft))

	f.provider.EXPECT().SendLink(gomock.Any(), "jane@ex.com", gomock.Any()).Return(nil)
	resp, err := f.controller.SendEmail(ctx, f.flowID, "", pageURL)
	require.NoError(t, err)
	assert.Equal(t, models.StageLinkSent, resp.Stage)
	assert.Equal(t, 60, resp.CooldownSeconds)
}

func TestSendEmail_NoDraftNoSend(t *testing.T) {
	f := newFixture(t)

	// No provider expectation: nothing must reach it without an identifier.
	_, err := f.controller.SendEmail(context.Background(), f.flowID, "", pageURL)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSendEmail_IllegalAfterPhoneStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.throughEmailVerify(t, ctx)

	_, err := f.controller.SendEmail(ctx, f.flowID, "", pageURL)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestVerifyEmail_CrossDevice(t *testing.T) {
	// The link is opened on a different device: new flow ID, no draft, no
	// channel state, identifier only in the URL.
	f := newFixture(t)
	ctx := context.Background()
	otherDevice := id.NewFlowID()

	returnURL := pageURL + "?pv_token=abc&email=jane%40ex.com"
	resolved, err := f.controller.Resolve(ctx, otherDevice, returnURL, models.SessionStatus{})
	require.NoError(t, err)
	require.Equal(t, models.StageEmailVerifying, resolved.Stage)

	f.provider.EXPECT().VerifyLink(gomock.Any(), "jane@ex.com", returnURL).
		Return(provider.Identity{IDToken: "tok-1", Subject: "sub-1"}, nil)

	resp, err := f.controller.VerifyEmail(ctx, otherDevice, returnURL, "")
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneInput, resp.Stage)
	assert.Equal(t, "tok-1", resp.Identity.IDToken)
}

func TestVerifyEmail_RecoveryChainOrder(t *testing.T) {
	t.Run("url parameter wins", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, models.Draft{Email: "draft@ex.com"}))
		require.NoError(t, f.stages.Save(ctx, f.flowID, models.StageEmailVerifying))

		f.provider.EXPECT().VerifyLink(gomock.Any(), "url@ex.com", gomock.Any()).
			Return(provider.Identity{IDToken: "t"}, nil)
		_, err := f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=a&email=url%40ex.com", "prompt@ex.com")
		require.NoError(t, err)
	})

	t.Run("stored link email beats draft", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, models.Draft{Email: "draft@ex.com"}))
		require.NoError(t, f.state.RecordLinkEmail(ctx, f.flowID, "link@ex.com"))
		require.NoError(t, f.stages.Save(ctx, f.flowID, models.StageEmailVerifying))

		f.provider.EXPECT().VerifyLink(gomock.Any(), "link@ex.com", gomock.Any()).
			Return(provider.Identity{IDToken: "t"}, nil)
		_, err := f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=a", "")
		require.NoError(t, err)
	})

	t.Run("draft beats prompt", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, models.Draft{Email: "draft@ex.com"}))
		require.NoError(t, f.stages.Save(ctx, f.flowID, models.StageEmailVerifying))

		f.provider.EXPECT().VerifyLink(gomock.Any(), "draft@ex.com", gomock.Any()).
			Return(provider.Identity{IDToken: "t"}, nil)
		_, err := f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=a", "prompt@ex.com")
		require.NoError(t, err)
	})

	t.Run("prompt as last resort", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.stages.Save(ctx, f.flowID, models.StageEmailVerifying))

		f.provider.EXPECT().VerifyLink(gomock.Any(), "prompt@ex.com", gomock.Any()).
			Return(provider.Identity{IDToken: "t"}, nil)
		_, err := f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=a", "prompt@ex.com")
		require.NoError(t, err)
	})

	t.Run("all four empty is a recovery error", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, models.Draft{Name: "Jane Doe"}))
		require.NoError(t, f.stages.Save(ctx, f.flowID, models.StageEmailVerifying))

		_, err := f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=a", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeRecovery))

		// The failure keeps stage and draft untouched.
		st, err := f.stages.Find(ctx, f.flowID)
		require.NoError(t, err)
		assert.Equal(t, models.StageEmailVerifying, st)
		d, err := f.drafts.Find(ctx, f.flowID)
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", d.Name)
	})
}

func TestVerifyEmail_ExpiredLinkRegressesToStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.throughEmailSend(t, ctx)
	require.NoError(t, f.stages.Save(ctx, f.flowID, models.StageEmailVerifying))

	f.provider.EXPECT().VerifyLink(gomock.Any(), "jane@ex.com", gomock.Any()).
		Return(provider.Identity{}, dErrors.New(dErrors.CodeProviderExpired, "link expired"))

	_, err := f.controller.VerifyEmail(ctx, f.flowID, pageURL+"?pv_token=stale&email=jane%40ex.com", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeProviderExpired))

	st, err := f.stages.Find(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, models.StageStart, st)

	// The draft survives the regression.
	d, err := f.drafts.Find(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, "jane@ex.com", d.Email)
}

func TestSendPhone_NormalizesAndStoresParts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.throughEmailVerify(t, ctx)

	f.provider.EXPECT().SendChallenge(gomock.Any(), "+971501234567", "tok-email").
		Return(provider.Challenge{ChallengeToken: "ch-1"}, nil)

	resp, err := f.controller.SendPhone(ctx, f.flowID, "971", "0501234567", "tok-email")
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneVerifying, resp.Stage)

	d, err := f.drafts.Find(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, "971", d.PhoneCountryCode)
	assert.Equal(t, "501234567", d.PhoneLocalNumber)
}

func TestSendPhone_IllegalBeforeEmailVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, janeDraft))

	_, err := f.controller.SendPhone(ctx, f.flowID, "971", "0501234567", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestVerifyPhone_ReturnsCredentialWithoutAdvancing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.throughEmailVerify(t, ctx)
	f.provider.EXPECT().SendChallenge(gomock.Any(), "+971501234567", "tok-email").
		Return(provider.Challenge{ChallengeToken: "ch-1"}, nil)
	_, err := f.controller.SendPhone(ctx, f.flowID, "971", "0501234567", "tok-email")
	require.NoError(t, err)

	f.provider.EXPECT().VerifyChallenge(gomock.Any(), "ch-1", "123456", "tok-email").
		Return(provider.Identity{IDToken: "tok-both", Subject: "sub-1"}, nil)

	resp, err := f.controller.VerifyPhone(ctx, f.flowID, "123456", "tok-email")
	require.NoError(t, err)
	assert.Equal(t, "tok-both", resp.Identity.IDToken)

	st, err := f.stages.Find(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneVerifying, st,
		"only provisioning moves the flow to the terminal stage")
}

func TestVerifyPhone_ExpiredChallengeRegressesToPhoneInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.throughEmailVerify(t, ctx)
	f.provider.EXPECT().SendChallenge(gomock.Any(), "+971501234567", "").
		Return(provider.Challenge{ChallengeToken: "ch-1"}, nil)
	_, err := f.controller.SendPhone(ctx, f.flowID, "971", "0501234567", "")
	require.NoError(t, err)

	f.provider.EXPECT().VerifyChallenge(gomock.Any(), "ch-1", "123456", "").
		Return(provider.Identity{}, dErrors.New(dErrors.CodeProviderExpired, "challenge expired"))

	_, err = f.controller.VerifyPhone(ctx, f.flowID, "123456", "")
	require.Error(t, err)

	st, err := f.stages.Find(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneInput, st)
}

func TestChangePhone_BackEdgeReleasesChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.throughEmailVerify(t, ctx)
	f.provider.EXPECT().SendChallenge(gomock.Any(), "+971501234567", "").
		Return(provider.Challenge{ChallengeToken: "ch-1"}, nil)
	_, err := f.controller.SendPhone(ctx, f.flowID, "971", "0501234567", "")
	require.NoError(t, err)

	next, err := f.controller.ChangePhone(ctx, f.flowID)
	require.NoError(t, err)
	assert.Equal(t, models.StagePhoneInput, next)

	state, err := f.state.Find(ctx, f.flowID, models.ChannelPhone)
	require.NoError(t, err)
	assert.False(t, state.HasPendingToken(), "leaving the stage must release the challenge")
}

func TestChangePhone_OnlyFromPhoneVerifying(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.ChangePhone(context.Background(), f.flowID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestInflight_DuplicateActionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.controller.SaveDraft(ctx, f.flowID, janeDraft))

	started := make(chan struct{})
	unblock := make(chan struct{})
	f.provider.EXPECT().SendLink(gomock.Any(), "jane@ex.com", gomock.Any()).
		DoAndReturn(func(context.Context, string, string) error {
			close(started)
			<-unblock
			return nil
		})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.controller.SendEmail(ctx, f.flowID, "", pageURL)
		assert.NoError(t, err)
	}()

	<-started
	_, err := f.controller.SendEmail(ctx, f.flowID, "", pageURL)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict),
		"a duplicate in-flight send is rejected, not queued")

	close(unblock)
	wg.Wait()
}

func TestStageRecordSurvivesOnlyInStore(t *testing.T) {
	// Sanity: a flow that never resolved defaults to start.
	f := newFixture(t)
	_, err := f.stages.Find(context.Background(), f.flowID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
