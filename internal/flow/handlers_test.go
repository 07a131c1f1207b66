package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"chatagent/internal/authcode"
	"chatagent/internal/bulk"
	"chatagent/internal/conversation"
	"chatagent/internal/domain"
	"chatagent/internal/gateway"
	"chatagent/internal/service"
	"chatagent/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testUser = int64(42)

var testSender = domain.UserProfile{ID: testUser, FirstName: "Ada", Username: "ada", LanguageCode: "en"}

type sent struct {
	chat int64
	text string
}

type fixture struct {
	gw       *testutil.MockGateway
	users    *testutil.MockUserRepository
	settings *testutil.MockSettingsRepository
	jobs     *bulk.Jobs
	machine  *conversation.Machine
	handlers *Handlers

	mu   sync.Mutex
	sent []sent
}

func newFixture(t *testing.T, broadcasts bulk.Options) *fixture {
	t.Helper()
	logger := testutil.NewTestLogger()

	f := &fixture{
		gw:       new(testutil.MockGateway),
		users:    new(testutil.MockUserRepository),
		settings: new(testutil.MockSettingsRepository),
		jobs:     bulk.NewJobs(context.Background(), logger),
	}
	f.handlers = New(Deps{
		Gateway:    f.gw,
		Profiles:   service.NewProfileService(f.users, logger),
		Settings:   service.NewSettingsService(f.settings),
		Jobs:       f.jobs,
		Joins:      bulk.NewRunner("batch", bulk.Options{}, logger),
		Broadcasts: bulk.NewRunner("broadcast", broadcasts, logger),
		Logger:     logger,
	})

	m, err := conversation.NewMachine(f.handlers.Steps(), logger,
		conversation.WithExpireHook(f.handlers.Expired))
	require.NoError(t, err)
	f.machine = m
	t.Cleanup(func() {
		m.Close()
		f.jobs.Wait()
	})
	return f
}

// allowSends accepts every SendText not matched by an earlier expectation
// and records it
func (f *fixture) allowSends() {
	f.gw.On("SendText", mock.Anything, mock.Anything, mock.Anything).
		Return(gateway.MessageRef{}, nil).
		Run(func(args mock.Arguments) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.sent = append(f.sent, sent{chat: args.Get(0).(int64), text: args.String(1)})
		})
}

func (f *fixture) texts(chat int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, s := range f.sent {
		if s.chat == chat {
			texts = append(texts, s.text)
		}
	}
	return texts
}

func (f *fixture) lastText(t *testing.T) string {
	t.Helper()
	texts := f.texts(testUser)
	require.NotEmpty(t, texts)
	return texts[len(texts)-1]
}

func (f *fixture) begin(t *testing.T, kind conversation.Kind, setting conversation.Setting) *conversation.Handle {
	t.Helper()
	h, err := f.machine.Begin(testUser, kind, conversation.Params{Chat: testUser, Setting: setting})
	require.NoError(t, err)
	return h
}

func (f *fixture) route(t *testing.T, in conversation.Input) conversation.Outcome {
	t.Helper()
	outcome, err := f.machine.Route(context.Background(), testUser, in)
	require.NoError(t, err)
	return outcome
}

func text(s string) conversation.Input {
	return conversation.Input{Chat: testUser, MessageID: 7, Text: s, Sender: testSender}
}

func TestSteps_CoverEveryPhase(t *testing.T) {
	h := New(Deps{Logger: testutil.NewTestLogger()})
	steps := h.Steps()
	for _, p := range conversation.Phases() {
		assert.NotNil(t, steps[p], p.String())
	}
}

func TestLogin_InvalidCode(t *testing.T) {
	f := newFixture(t, bulk.Options{})
	f.gw.On("RequestAuthCode", "+15551234567").Return("handle-1", nil).Once()
	f.gw.On("ExchangeAuthCode", "+15551234567", "handle-1", "000000").Return(gateway.ErrInvalidCode)
	f.allowSends()

	handle := f.begin(t, conversation.KindLogin, conversation.SettingNone)

	assert.Equal(t, conversation.Advanced, f.route(t, text("+15551234567")))
	active, ok := f.machine.Active(testUser)
	require.True(t, ok)
	assert.Equal(t, conversation.PhaseAwaitingCode, active.Phase)
	assert.Equal(t, TextAskCode, f.lastText(t))

	assert.Equal(t, conversation.Aborted, f.route(t, text("000000")))
	_, ok = f.machine.Active(testUser)
	assert.False(t, ok)
	assert.Equal(t, TextInvalidCode, f.lastText(t))
	assert.Equal(t, conversation.Aborted, handle.Outcome())

	f.gw.AssertNumberOfCalls(t, "RequestAuthCode", 1)
	f.users.AssertNotCalled(t, "Upsert", mock.Anything)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, bulk.Options{})
	f.gw.On("RequestAuthCode", "+15551234567").Return("handle-1", nil).Once()
	f.gw.On("ExchangeAuthCode", "+15551234567", "handle-1", "123456").Return(nil)
	f.users.On("Upsert", testSender).Return(nil)
	f.users.On("SetAuthenticated", testUser, true).Return(true, nil)
	f.allowSends()

	handle := f.begin(t, conversation.KindLogin, conversation.SettingNone)
	f.route(t, text("+1 555 123 4567"))

	// Spaces inside the code are ignored
	assert.Equal(t, conversation.Completed, f.route(t, text("123 456")))
	assert.Equal(t, TextLoginSucceeded, f.lastText(t))
	assert.Equal(t, conversation.Completed, handle.Outcome())
	_, ok := f.machine.Active(testUser)
	assert.False(t, ok)
	f.users.AssertExpectations(t)
}

func TestLogin_ExchangeFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "two-factor", err: gateway.ErrTwoFactorRequired, expected: TextTwoFactor},
		{name: "platform error", err: &gateway.Error{Op: "exchange auth code", Err: errors.New("flood wait")}, expected: TextLoginFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, bulk.Options{})
			f.gw.On("RequestAuthCode", "+15551234567").Return("handle-1", nil)
			f.gw.On("ExchangeAuthCode", "+15551234567", "handle-1", "123456").Return(tt.err)
			f.allowSends()

			f.begin(t, conversation.KindLogin, conversation.SettingNone)
			f.route(t, text("+15551234567"))

			assert.Equal(t, conversation.Aborted, f.route(t, text("123456")))
			assert.Equal(t, tt.expected, f.lastText(t))
			f.users.AssertNotCalled(t, "Upsert", mock.Anything)
		})
	}
}

func TestLogin_InvalidPhoneReprompts(t *testing.T) {
	f := newFixture(t, bulk.Options{})
	f.allowSends()

	f.begin(t, conversation.KindLogin, conversation.SettingNone)

	assert.Equal(t, conversation.Advanced, f.route(t, text("my number is secret")))
	active, ok := f.machine.Active(testUser)
	require.True(t, ok)
	assert.Equal(t, conversation.PhaseAwaitingPhone, active.Phase)
	assert.Equal(t, TextAskPhone, f.lastText(t))
	f.gw.AssertNotCalled(t, "RequestAuthCode", mock.Anything)
}

func TestLogin_RequestCodeFails(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "phone not linked",
			err:      &gateway.Error{Op: "request auth code", Err: authcode.ErrUnknownPhone},
			expected: TextUnknownPhone,
		},
		{
			name:     "delivery failed",
			err:      &gateway.Error{Op: "request auth code", Err: errors.New("bot was blocked by the user")},
			expected: TextLoginFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, bulk.Options{})
			f.gw.On("RequestAuthCode", "+15551234567").Return("", tt.err)
			f.allowSends()

			f.begin(t, conversation.KindLogin, conversation.SettingNone)

			assert.Equal(t, conversation.Aborted, f.route(t, text("+15551234567")))
			assert.Equal(t, tt.expected, f.lastText(t))
			_, ok := f.machine.Active(testUser)
			assert.False(t, ok)
		})
	}
}

func TestSettings_SingleStep(t *testing.T) {
	tests := []struct {
		name     string
		setting  conversation.Setting
		input    conversation.Input
		setup    func(*testutil.MockSettingsRepository)
		expected string
		outcome  conversation.Outcome
	}{
		{
			name:    "replace word",
			setting: conversation.SettingReplaceWord,
			input:   text("cat->dog"),
			setup: func(r *testutil.MockSettingsRepository) {
				r.On("SaveWordRule", testUser, domain.WordRule{Word: "cat", Replacement: "dog"}).Return(nil)
			},
			expected: "Replaced 'cat' with 'dog'.",
			outcome:  conversation.Completed,
		},
		{
			name:     "replace word without separator",
			setting:  conversation.SettingReplaceWord,
			input:    text("cat dog"),
			setup:    func(*testutil.MockSettingsRepository) {},
			expected: TextInvalidFormat,
			outcome:  conversation.Completed,
		},
		{
			name:    "replace word storage failure",
			setting: conversation.SettingReplaceWord,
			input:   text("cat->dog"),
			setup: func(r *testutil.MockSettingsRepository) {
				r.On("SaveWordRule", testUser, mock.Anything).Return(errors.New("db error"))
			},
			expected: TextSettingsFailed,
			outcome:  conversation.Aborted,
		},
		{
			name:    "delete word",
			setting: conversation.SettingDeleteWord,
			input:   text("spam"),
			setup: func(r *testutil.MockSettingsRepository) {
				r.On("SaveWordRule", testUser, domain.WordRule{Word: "spam"}).Return(nil)
			},
			expected: "'spam' word removed",
			outcome:  conversation.Completed,
		},
		{
			name:     "delete without word",
			setting:  conversation.SettingDeleteWord,
			input:    conversation.Input{Chat: testUser, MessageID: 7, PhotoID: "photo-1"},
			setup:    func(*testutil.MockSettingsRepository) {},
			expected: TextInvalidWord,
			outcome:  conversation.Completed,
		},
		{
			name:    "change thumbnail",
			setting: conversation.SettingChangeThumbnail,
			input:   conversation.Input{Chat: testUser, MessageID: 7, PhotoID: "photo-1"},
			setup: func(r *testutil.MockSettingsRepository) {
				r.On("SetThumbnail", testUser, "photo-1").Return(nil)
			},
			expected: TextThumbnailUpdated,
			outcome:  conversation.Completed,
		},
		{
			name:     "thumbnail without photo",
			setting:  conversation.SettingChangeThumbnail,
			input:    text("here you go"),
			setup:    func(*testutil.MockSettingsRepository) {},
			expected: TextNoThumbnail,
			outcome:  conversation.Completed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, bulk.Options{})
			tt.setup(f.settings)
			f.allowSends()

			f.begin(t, conversation.KindSettings, tt.setting)

			assert.Equal(t, tt.outcome, f.route(t, tt.input))
			assert.Equal(t, tt.expected, f.lastText(t))

			// Terminal even on invalid input
			_, ok := f.machine.Active(testUser)
			assert.False(t, ok)
			assert.Equal(t, conversation.NoActiveFlow, f.route(t, text("cat->dog")))
			f.settings.AssertExpectations(t)
		})
	}
}

func TestSettings_InvalidReplacementRecordsNothing(t *testing.T) {
	f := newFixture(t, bulk.Options{})
	f.allowSends()

	f.begin(t, conversation.KindSettings, conversation.SettingReplaceWord)
	f.route(t, text("no separator here"))

	f.settings.AssertNotCalled(t, "SaveWordRule", mock.Anything, mock.Anything)
}

func TestBatch_CountsFailures(t *testing.T) {
	f := newFixture(t, bulk.Options{})
	f.gw.On("JoinChannel", "@first").Return(nil)
	f.gw.On("JoinChannel", "@second").Return(&gateway.Error{Op: "join channel", Err: errors.New("chat not found")})
	f.gw.On("JoinChannel", "@third").Return(nil)
	f.allowSends()

	f.begin(t, conversation.KindBatch, conversation.SettingNone)

	assert.Equal(t, conversation.Completed, f.route(t, text("@first @second\n@third")))
	f.jobs.Wait()

	texts := f.texts(testUser)
	require.Len(t, texts, 2)
	assert.Equal(t, fmt.Sprintf(TextBatchStarted, 3), texts[0])
	assert.Equal(t, "Batch finished, 2 links joined successfully, 1 failed.", texts[1])
	f.gw.AssertNumberOfCalls(t, "JoinChannel", 3)
}

func TestBatch_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no links", input: "  \n ", expected: TextNoLinks},
		{name: "too many links", input: strings.Repeat("@chan ", bulk.DefaultMaxItems+1), expected: "You can only provide 1000 links in a batch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, bulk.Options{})
			f.allowSends()

			f.begin(t, conversation.KindBatch, conversation.SettingNone)

			assert.Equal(t, conversation.Completed, f.route(t, text(tt.input)))
			f.jobs.Wait()
			assert.Equal(t, []string{tt.expected}, f.texts(testUser))
			f.gw.AssertNotCalled(t, "JoinChannel", mock.Anything)
		})
	}
}

func TestBatch_Cancel(t *testing.T) {
	f := newFixture(t, bulk.Options{})
	entered := make(chan struct{})
	release := make(chan struct{})
	f.gw.On("JoinChannel", "@first").Return(nil).Run(func(mock.Arguments) {
		close(entered)
		<-release
	})
	f.allowSends()

	f.begin(t, conversation.KindBatch, conversation.SettingNone)
	f.route(t, text("@first @second @third"))

	<-entered
	assert.True(t, f.jobs.Cancel(testUser))
	close(release)
	f.jobs.Wait()

	assert.Equal(t, "Batch operation was canceled, 1 links joined successfully, 0 failed, 2 skipped.", f.lastText(t))
	f.gw.AssertNumberOfCalls(t, "JoinChannel", 1)
}

func TestBatch_OneJobPerUser(t *testing.T) {
	f := newFixture(t, bulk.Options{})
	release := make(chan struct{})
	f.gw.On("JoinChannel", "@slow").Return(nil).Run(func(mock.Arguments) { <-release })
	f.allowSends()

	f.begin(t, conversation.KindBatch, conversation.SettingNone)
	f.route(t, text("@slow"))

	f.begin(t, conversation.KindBatch, conversation.SettingNone)
	assert.Equal(t, conversation.Completed, f.route(t, text("@other")))
	assert.Equal(t, TextJobRunning, f.lastText(t))

	close(release)
	f.jobs.Wait()
	f.gw.AssertNotCalled(t, "JoinChannel", "@other")
}

func TestBroadcast_SendsToEveryUser(t *testing.T) {
	// Two recipients per run forces the user list to be split
	f := newFixture(t, bulk.Options{MaxItems: 2, Parallelism: 2})
	f.users.On("Count").Return(3, nil)
	f.users.On("ListAll").Return(testutil.ProfileSeq(
		domain.UserProfile{ID: 1}, domain.UserProfile{ID: 2}, domain.UserProfile{ID: 3},
	))
	f.settings.On("WordRules", testUser).Return([]domain.WordRule{{Word: "cat", Replacement: "dog"}}, nil)
	f.settings.On("Thumbnail", testUser).Return("", nil)
	f.gw.On("SendText", int64(2), mock.Anything, mock.Anything).
		Return(gateway.MessageRef{}, errors.New("bot was blocked by the user"))
	f.allowSends()

	f.begin(t, conversation.KindBroadcast, conversation.SettingNone)

	assert.Equal(t, conversation.Completed, f.route(t, text("feed the cat")))
	f.jobs.Wait()

	assert.Equal(t, []string{"feed the dog"}, f.texts(1))
	assert.Equal(t, []string{"feed the dog"}, f.texts(3))
	assert.Equal(t, "Message sent to 2 users with 1 failed and total users 3.", f.lastText(t))
}

func TestBroadcast_UsesThumbnail(t *testing.T) {
	f := newFixture(t, bulk.Options{})
	f.users.On("Count").Return(1, nil)
	f.users.On("ListAll").Return(testutil.ProfileSeq(domain.UserProfile{ID: 5}))
	f.settings.On("WordRules", testUser).Return(nil, errors.New("db error"))
	f.settings.On("Thumbnail", testUser).Return("thumb-1", nil)
	f.gw.On("SendPhoto", int64(5), "thumb-1", "hello", (*gateway.SendOptions)(nil)).Return(gateway.MessageRef{}, nil)
	f.allowSends()

	f.begin(t, conversation.KindBroadcast, conversation.SettingNone)
	f.route(t, text("hello"))
	f.jobs.Wait()

	assert.Equal(t, "Message sent to 1 users with 0 failed and total users 1.", f.lastText(t))
	f.gw.AssertExpectations(t)
}

func TestBroadcast_EmptyMessage(t *testing.T) {
	f := newFixture(t, bulk.Options{})
	f.allowSends()

	f.begin(t, conversation.KindBroadcast, conversation.SettingNone)

	assert.Equal(t, conversation.Completed, f.route(t, conversation.Input{Chat: testUser, PhotoID: "p"}))
	assert.Equal(t, TextNoBroadcast, f.lastText(t))
	f.users.AssertNotCalled(t, "ListAll")
}

func TestExpired_RepliesPerKind(t *testing.T) {
	tests := []struct {
		kind     conversation.Kind
		expected string
	}{
		{kind: conversation.KindLogin, expected: TextLoginExpired},
		{kind: conversation.KindSettings, expected: TextSettingsExpired},
		{kind: conversation.KindBatch, expected: TextNoLinks},
		{kind: conversation.KindBroadcast, expected: TextNoBroadcast},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			f := newFixture(t, bulk.Options{})
			f.allowSends()

			f.handlers.Expired(context.Background(), conversation.Flow{User: testUser, Chat: testUser, Kind: tt.kind})

			assert.Equal(t, []string{tt.expected}, f.texts(testUser))
		})
	}
}

func TestPrompt(t *testing.T) {
	assert.Equal(t, TextAskPhone, Prompt(conversation.KindLogin, conversation.SettingNone))
	assert.Equal(t, TextAskThumbnail, Prompt(conversation.KindSettings, conversation.SettingChangeThumbnail))
	assert.Equal(t, TextAskReplacement, Prompt(conversation.KindSettings, conversation.SettingReplaceWord))
	assert.Equal(t, TextAskDeletion, Prompt(conversation.KindSettings, conversation.SettingDeleteWord))
	assert.Equal(t, TextAskLinks, Prompt(conversation.KindBatch, conversation.SettingNone))
	assert.Equal(t, TextAskBroadcast, Prompt(conversation.KindBroadcast, conversation.SettingNone))
	assert.Empty(t, Prompt(conversation.KindSettings, conversation.SettingNone))
}
