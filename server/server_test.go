package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/agentdesk/agent"
	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/flow"
	"github.com/hupe1980/agentdesk/model"
	"github.com/hupe1980/agentdesk/ratelimit"
	"github.com/hupe1980/agentdesk/router"
	"github.com/hupe1980/agentdesk/runner"
	"github.com/hupe1980/agentdesk/session"
	"github.com/hupe1980/agentdesk/store"
	"github.com/hupe1980/agentdesk/tool/commerce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv      *Server
	sessions *session.MemoryStore
	routerM  *model.MockModel
	flowM    *model.MockModel
}

func newTestServer(t *testing.T, optFns ...func(o *Options)) *testServer {
	t.Helper()
	return newTestServerWithProfiles(t, nil, optFns...)
}

func newTestServerWithProfiles(t *testing.T, profiles []byte, optFns ...func(o *Options)) *testServer {
	t.Helper()
	ctx := context.Background()

	entities := store.NewMemoryStore()
	require.NoError(t, store.Seed(ctx, entities))
	sessions := session.NewMemoryStore()
	sel, err := agent.NewSelector(commerce.Toolsets(entities, entities, sessions), func(o *agent.SelectorOptions) {
		o.Profiles = profiles
	})
	require.NoError(t, err)

	ts := &testServer{
		sessions: sessions,
		routerM:  model.NewMockModel("router", "mock"),
		flowM:    model.NewMockModel("agent", "mock"),
	}
	run := runner.New(sessions, router.New(ts.routerM), sel, flow.New(ts.flowM))
	ts.srv = New(run, sessions, append([]func(o *Options){func(o *Options) { o.Agents = sel.Names() }}, optFns...)...)
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := newTestServer(t).do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAgents(t *testing.T) {
	rec := newTestServer(t).do(http.MethodGet, "/api/agents", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"agents":["support","order","billing"]}`, rec.Body.String())
}

func TestChat_StreamsAndPersists(t *testing.T) {
	ts := newTestServer(t)
	ts.routerM.Script(model.Scripted{Text: `<think>order question</think>{"intent":"order","parameters":{"orderId":"ORD-123"}}`})
	ts.flowM.Script(model.Scripted{}, model.Scripted{Text: "Your order ORD-123 has shipped."})

	rec := ts.do(http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"Where is ORD-123?"}]}`, map[string]string{"X-User-Id": "user-7"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Your order ORD-123 has shipped.", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	convID := rec.Header().Get("X-Conversation-Id")
	require.NotEmpty(t, convID)

	conv, err := ts.sessions.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	assert.Equal(t, "user-7", conv.OwnerID)
	assert.Equal(t, "order", conv.ActiveAgent)

	rec = ts.do(http.MethodGet, "/api/conversations/"+convID+"/messages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []core.StoredMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "order", msgs[1].AgentTag)
}

func TestChat_FailureBeforeFlowAnswersWithFallback(t *testing.T) {
	ts := newTestServerWithProfiles(t, []byte(`
profiles:
  - name: support
    tools: support
    default: true
    instruction: "Helping {{ index .UserID 99 }}"
`))
	ts.routerM.Script(model.Scripted{Text: `{"intent":"support"}`})

	rec := ts.do(http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"help"}]}`, map[string]string{"X-User-Id": "user-7"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, flow.DefaultFallbackMessage, rec.Body.String())
	assert.Zero(t, ts.flowM.Calls())

	msgs, err := ts.sessions.Messages(context.Background(), rec.Header().Get("X-Conversation-Id"))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	assert.Equal(t, flow.DefaultFallbackMessage, msgs[1].Content)
}

func TestChat_ContentParts(t *testing.T) {
	ts := newTestServer(t)
	ts.routerM.Script(model.Scripted{Text: `{"intent":"general"}`})
	ts.flowM.Script(model.Scripted{}, model.Scripted{Text: "hi"})

	rec := ts.do(http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":[{"type":"text","text":"hello "},{"type":"text","text":"there"}]}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	msgs, err := ts.sessions.Messages(context.Background(), rec.Header().Get("X-Conversation-Id"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", msgs[0].Content)
	conv, err := ts.sessions.GetConversation(context.Background(), rec.Header().Get("X-Conversation-Id"))
	require.NoError(t, err)
	assert.Equal(t, DefaultUserID, conv.OwnerID)
}

func TestChat_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"invalid json", `{"messages":`, http.StatusBadRequest, "Invalid JSON"},
		{"missing messages", `{}`, http.StatusBadRequest, "Invalid messages format"},
		{"messages not array", `{"messages":"hi"}`, http.StatusBadRequest, "Invalid messages format"},
		{"empty array", `{"messages":[]}`, http.StatusBadRequest, "Invalid messages format"},
		{"last not user", `{"messages":[{"role":"assistant","content":"hi"}]}`, http.StatusBadRequest, "Invalid messages format"},
		{"unknown conversation", `{"conversationId":"nope","messages":[{"role":"user","content":"hi"}]}`, http.StatusNotFound, "Conversation not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/chat", tt.body, nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.msg+`"}`, rec.Body.String())
		})
	}
	assert.Zero(t, ts.flowM.Calls())
}

func TestConversations(t *testing.T) {
	ts := newTestServer(t)
	headers := map[string]string{"X-User-Id": "user-1"}

	rec := ts.do(http.MethodGet, "/api/conversations", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/conversations", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	var conv core.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "user-1", conv.OwnerID)

	rec = ts.do(http.MethodGet, "/api/conversations", "", headers)
	var list []core.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, conv.ID, list[0].ID)

	rec = ts.do(http.MethodGet, "/api/conversations/"+conv.ID, "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(http.MethodDelete, "/api/conversations/"+conv.ID, "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = ts.do(http.MethodDelete, "/api/conversations/"+conv.ID, "", headers)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/conversations/"+conv.ID+"/messages", "", headers)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	mem, err := ratelimit.NewMemoryStore(10)
	require.NoError(t, err)
	limiter := ratelimit.New(mem, func(o *ratelimit.Options) {
		o.Max = 1
		o.Window = time.Minute
	})
	ts := newTestServer(t, func(o *Options) { o.Limiter = limiter })

	headers := map[string]string{"X-Forwarded-For": "5.5.5.5"}
	rec := ts.do(http.MethodGet, "/api/agents", "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = ts.do(http.MethodGet, "/api/agents", "", headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too Many Requests"}`, rec.Body.String())

	// Health is outside the limited group.
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "", headers).Code)
}

func TestCORSPreflight(t *testing.T) {
	rec := newTestServer(t).do(http.MethodOptions, "/api/chat", "", map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-User-Id")
}

func TestRequestIDIsPropagated(t *testing.T) {
	rec := newTestServer(t).do(http.MethodGet, "/health", "", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestAddLogField(t *testing.T) {
	// Outside the middleware it is a no-op.
	AddLogField(context.Background(), "k", "v")
	AddError(context.Background(), nil)
}
