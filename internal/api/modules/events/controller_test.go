package events_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ethanbaker/agentlink/internal/api/modules/events"
	credential_store "github.com/ethanbaker/agentlink/internal/stores/credential"
	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/dispatch"
	"github.com/ethanbaker/agentlink/pkg/provider"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "signing-secret"

type echoInvoker struct {
	mu    sync.Mutex
	calls int
}

func (e *echoInvoker) Invoke(_ context.Context, _ *credential.AgentCredential, input string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return "echo " + input, nil
}

type replies struct {
	mu   sync.Mutex
	text []string
}

// Reply returns the message index as its ts so Update can edit it in place
func (r *replies) Reply(_ context.Context, _ *credential.BotCredential, _, _, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = append(r.text, text)
	return strconv.Itoa(len(r.text) - 1), nil
}

func (r *replies) Update(_ context.Context, _ *credential.BotCredential, _, ts, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, err := strconv.Atoi(ts)
	if err != nil || i >= len(r.text) {
		return errors.New("message_not_found")
	}
	r.text[i] = text
	return nil
}

type server struct {
	engine     *gin.Engine
	dispatcher *dispatch.Dispatcher
	invoker    *echoInvoker
	replies    *replies
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	credentials := credential.NewService(credential_store.NewInMemoryStore(), nil)
	agent, err := credentials.SaveAgentCredential(ctx, "alice", provider.Gmail, &provider.ExchangedToken{AccessToken: "tok1"})
	require.NoError(t, err)
	_, err = credentials.UpsertBotCredential(ctx, agent, &provider.ExchangedToken{
		AccessToken:  "xoxb-1",
		Installation: &provider.Installation{AppID: "A1", TeamID: "T1", BotID: "B1", BotUserID: "UBOT", UserID: "UALICE"},
	})
	require.NoError(t, err)

	s := &server{invoker: &echoInvoker{}, replies: &replies{}}
	s.dispatcher = dispatch.NewDispatcher(credentials, s.invoker, s.replies, time.Second)

	s.engine = gin.New()
	events.RegisterRoutes(s.engine.Group("/api"), events.NewController(s.dispatcher, secret))
	return s
}

func (s *server) post(body string, signed bool, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/events", bytes.NewBufferString(body))
	if signed {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte("v0:" + timestamp + ":" + body))
		req.Header.Set(dispatch.HeaderTimestamp, timestamp)
		req.Header.Set(dispatch.HeaderSignature, "v0="+hex.EncodeToString(mac.Sum(nil)))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

const mention = `{"type":"event_callback","team_id":"T1","event":{"type":"app_mention","user":"UALICE","text":"<@UBOT> hello","channel":"C1","ts":"1.1"}}`

func TestPostEventChallenge(t *testing.T) {
	s := newServer(t)

	w := s.post(`{"type":"url_verification","challenge":"xyz"}`, true, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "xyz", body["challenge"])
}

func TestPostEventRejectsBadSignature(t *testing.T) {
	s := newServer(t)

	for name, body := range map[string]string{
		"challenge": `{"type":"url_verification","challenge":"xyz"}`,
		"mention":   mention,
		"garbage":   "not json",
	} {
		t.Run(name, func(t *testing.T) {
			w := s.post(body, false, map[string]string{
				dispatch.HeaderTimestamp: strconv.FormatInt(time.Now().Unix(), 10),
				dispatch.HeaderSignature: "v0=deadbeef",
			})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "Invalid signature")
			assert.NotContains(t, w.Body.String(), "xyz")
		})
	}

	s.dispatcher.Close()
	assert.Zero(t, s.invoker.calls)
}

func TestPostEventDispatches(t *testing.T) {
	s := newServer(t)

	w := s.post(mention, true, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.dispatcher.Close()
	assert.Equal(t, []string{"<@UALICE> echo hello"}, s.replies.text)
}

func TestPostEventRetryIsNotRedispatched(t *testing.T) {
	s := newServer(t)

	w := s.post(mention, true, map[string]string{dispatch.HeaderRetryNum: "1"})
	assert.Equal(t, http.StatusOK, w.Code)

	s.dispatcher.Close()
	assert.Zero(t, s.invoker.calls)
}

func TestPostEventNotInstalled(t *testing.T) {
	s := newServer(t)

	w := s.post(`{"type":"event_callback","team_id":"T404","event":{"type":"app_mention","user":"U1","text":"hi","channel":"C1","ts":"1.1"}}`, true, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Please install this app first!")
}

func TestPostEventMalformed(t *testing.T) {
	s := newServer(t)

	w := s.post("not json", true, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
