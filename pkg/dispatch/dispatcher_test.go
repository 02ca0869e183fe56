package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	credential_store "github.com/ethanbaker/agentlink/internal/stores/credential"
	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/dispatch"
	"github.com/ethanbaker/agentlink/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	token, channel, thread, text string
}

type recordingReplier struct {
	mu          sync.Mutex
	posts       []reply
	updates     []reply
	failPosts   int
	failUpdates bool
}

func (r *recordingReplier) Reply(_ context.Context, bot *credential.BotCredential, channel, threadTS, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPosts > 0 {
		r.failPosts--
		return "", errors.New("service unavailable")
	}
	r.posts = append(r.posts, reply{bot.AccessToken, channel, threadTS, text})
	return fmt.Sprintf("ts-%d", len(r.posts)), nil
}

// Update records the edited message ts in the thread field
func (r *recordingReplier) Update(_ context.Context, bot *credential.BotCredential, channel, ts, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdates {
		return errors.New("message_not_found")
	}
	r.updates = append(r.updates, reply{bot.AccessToken, channel, ts, text})
	return nil
}

func (r *recordingReplier) all() ([]reply, []reply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reply(nil), r.posts...), append([]reply(nil), r.updates...)
}

type fakeInvoker struct {
	mu     sync.Mutex
	inputs []string
	err    error
}

func (f *fakeInvoker) Invoke(_ context.Context, agent *credential.AgentCredential, input string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return "", f.err
	}
	return "answer from " + string(agent.Provider), nil
}

type failingRefresher struct{}

func (failingRefresher) Refresh(context.Context, provider.ID, string) (*provider.RefreshedToken, error) {
	return nil, errors.New("invalid_grant")
}

type harness struct {
	dispatcher *dispatch.Dispatcher
	invoker    *fakeInvoker
	replier    *recordingReplier
}

// newHarness installs a bot in T1 linked to an agent expiring at expiry
func newHarness(t *testing.T, expiry time.Time) *harness {
	t.Helper()
	ctx := context.Background()

	credentials := credential.NewService(credential_store.NewInMemoryStore(), failingRefresher{})
	agent, err := credentials.SaveAgentCredential(ctx, "alice", provider.Gmail, &provider.ExchangedToken{
		AccessToken: "tok1", RefreshToken: "ref1", Expiry: expiry,
	})
	require.NoError(t, err)

	_, err = credentials.UpsertBotCredential(ctx, agent, &provider.ExchangedToken{
		AccessToken: "xoxb-1",
		Installation: &provider.Installation{
			AppID: "A1", TeamID: "T1", BotID: "B1", BotUserID: "UBOT", UserID: "UALICE",
		},
	})
	require.NoError(t, err)

	h := &harness{invoker: &fakeInvoker{}, replier: &recordingReplier{}}
	h.dispatcher = dispatch.NewDispatcher(credentials, h.invoker, h.replier, time.Second)
	return h
}

const mention = `{"type":"event_callback","team_id":"T1","event":{"type":"app_mention","user":"UALICE","text":"<@UBOT> what is on my calendar?","channel":"C1","ts":"1.2","thread_ts":"1.1"}}`

func TestHandleDispatchesInThread(t *testing.T) {
	h := newHarness(t, time.Now().Add(time.Hour))

	result, err := h.dispatcher.Handle(context.Background(), []byte(mention), false)
	require.NoError(t, err)
	assert.Equal(t, dispatch.ResultDispatched, result.Kind)

	h.dispatcher.Close()

	assert.Equal(t, []string{"what is on my calendar?"}, h.invoker.inputs)

	posts, updates := h.replier.all()
	assert.Equal(t, []reply{{"xoxb-1", "C1", "1.1", ":mag: Searching..."}}, posts)
	assert.Equal(t, []reply{{"xoxb-1", "C1", "ts-1", "<@UALICE> answer from gmail"}}, updates)
}

func TestHandleRouting(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		retry bool
		want  dispatch.ResultKind
	}{
		{"challenge", `{"type":"url_verification","challenge":"c"}`, false, dispatch.ResultChallenge},
		{"not installed", `{"type":"event_callback","team_id":"T9","event":{"type":"app_mention","user":"U1","text":"hi"}}`, false, dispatch.ResultNotInstalled},
		{"own message", `{"type":"event_callback","team_id":"T1","event":{"type":"message","user":"UBOT","text":"hi"}}`, false, dispatch.ResultIgnored},
		{"retry", mention, true, dispatch.ResultIgnored},
		{"mention as message", `{"type":"event_callback","team_id":"T1","event":{"type":"message","user":"UALICE","text":"<@UBOT> hi"}}`, false, dispatch.ResultIgnored},
		{"reaction", `{"type":"event_callback","team_id":"T1","event":{"type":"reaction_added","user":"UALICE"}}`, false, dispatch.ResultIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Now().Add(time.Hour))

			result, err := h.dispatcher.Handle(context.Background(), []byte(tt.body), tt.retry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Kind)

			h.dispatcher.Close()
			posts, updates := h.replier.all()
			assert.Empty(t, posts)
			assert.Empty(t, updates)
		})
	}

	t.Run("challenge echo", func(t *testing.T) {
		h := newHarness(t, time.Now().Add(time.Hour))
		result, err := h.dispatcher.Handle(context.Background(), []byte(`{"type":"url_verification","challenge":"c-123"}`), false)
		require.NoError(t, err)
		assert.Equal(t, "c-123", result.Challenge)
	})

	t.Run("malformed", func(t *testing.T) {
		h := newHarness(t, time.Now().Add(time.Hour))
		_, err := h.dispatcher.Handle(context.Background(), []byte("nope"), false)
		assert.ErrorIs(t, err, dispatch.ErrMalformedPayload)
	})
}

func TestHandleRefreshFailureAsksToReconnect(t *testing.T) {
	h := newHarness(t, time.Now().Add(-time.Hour))

	result, err := h.dispatcher.Handle(context.Background(), []byte(mention), false)
	require.NoError(t, err)
	assert.Equal(t, dispatch.ResultDispatched, result.Kind)
	h.dispatcher.Close()

	assert.Empty(t, h.invoker.inputs, "an unusable credential is never handed to the agent")
	_, updates := h.replier.all()
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].text, "reconnect")
}

func TestHandleInvokerFailure(t *testing.T) {
	h := newHarness(t, time.Now().Add(time.Hour))
	h.invoker.err = errors.New("model unavailable")

	_, err := h.dispatcher.Handle(context.Background(), []byte(mention), false)
	require.NoError(t, err)
	h.dispatcher.Close()

	_, updates := h.replier.all()
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].text, "<@UALICE> Sorry")
}

func TestHandleReplyFallbacks(t *testing.T) {
	t.Run("placeholder failed", func(t *testing.T) {
		h := newHarness(t, time.Now().Add(time.Hour))
		h.replier.failPosts = 1

		_, err := h.dispatcher.Handle(context.Background(), []byte(mention), false)
		require.NoError(t, err)
		h.dispatcher.Close()

		posts, updates := h.replier.all()
		assert.Empty(t, updates)
		assert.Equal(t, []reply{{"xoxb-1", "C1", "1.1", "<@UALICE> answer from gmail"}}, posts)
	})

	t.Run("update failed", func(t *testing.T) {
		h := newHarness(t, time.Now().Add(time.Hour))
		h.replier.failUpdates = true

		_, err := h.dispatcher.Handle(context.Background(), []byte(mention), false)
		require.NoError(t, err)
		h.dispatcher.Close()

		posts, _ := h.replier.all()
		require.Len(t, posts, 2)
		assert.Equal(t, ":mag: Searching...", posts[0].text)
		assert.Equal(t, "<@UALICE> answer from gmail", posts[1].text)
	})
}

func TestHandleAfterClose(t *testing.T) {
	h := newHarness(t, time.Now().Add(time.Hour))
	h.dispatcher.Close()

	result, err := h.dispatcher.Handle(context.Background(), []byte(mention), false)
	require.NoError(t, err)
	assert.Equal(t, dispatch.ResultIgnored, result.Kind)
}
