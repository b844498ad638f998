package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/chat-relay/internal/ai"
)

type fakeProvider struct {
	srv      *httptest.Server
	status   int
	body     string
	requests int
}

func newFakeProvider(t *testing.T, status int, body string) *fakeProvider {
	p := &fakeProvider{status: status, body: body}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.requests++
		if p.status != http.StatusOK {
			w.WriteHeader(p.status)
			_, _ = io.WriteString(w, `{"error":{"message":"upstream exploded"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, p.body)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

type testEnv struct {
	store    Store
	provider *fakeProvider
	router   chi.Router
}

func newTestEnv(t *testing.T, status int, body string, apiKey string) *testEnv {
	provider := newFakeProvider(t, status, body)
	store := NewMemStore()
	client := ai.NewOpenAIClient(ai.Options{APIKey: apiKey, BaseURL: provider.srv.URL})

	router := chi.NewRouter()
	RegisterRoutes(router, NewHandler(NewService(store, client, "", 0)))

	return &testEnv{store: store, provider: provider, router: router}
}

func (e *testEnv) post(t *testing.T, payload any) *httptest.ResponseRecorder {
	b, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) conversations(t *testing.T) []Conversation {
	list, err := e.store.ListConversations(context.Background(), ConversationFilter{})
	require.NoError(t, err)
	return list
}

func (e *testEnv) messages(t *testing.T, id string) []Message {
	msgs, err := e.store.ListMessages(context.Background(), id)
	require.NoError(t, err)
	return msgs
}

func userTurn(sessionID, content string) map[string]any {
	return map[string]any{
		"messages":  []map[string]string{{"role": "user", "content": content}},
		"sessionId": sessionID,
	}
}

func TestHandleChatFullTurn(t *testing.T) {
	stream := tokenEvent("Enchanté ") + tokenEvent("Ama") + tokenEvent(", que puis-je faire ?") + "data: [DONE]\n\n"
	env := newTestEnv(t, http.StatusOK, stream, "sk-test")

	rec := env.post(t, userTurn("s1", "Bonjour, je m'appelle Ama Koffi, mon email est ama@test.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n"))

	convs := env.conversations(t)
	require.Len(t, convs, 1)
	c := convs[0]
	assert.Equal(t, c.ID, rec.Header().Get(ConversationIDHeader))
	assert.Equal(t, StatusActive, c.Status)
	require.NotNil(t, c.VisitorEmail)
	assert.Equal(t, "ama@test.com", *c.VisitorEmail)
	require.NotNil(t, c.VisitorName)
	assert.Equal(t, "Ama Koffi", *c.VisitorName)
	assert.Nil(t, c.VisitorPhone)

	msgs := env.messages(t, c.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Enchanté Ama, que puis-je faire ?", msgs[1].Content)
}

func TestHandleChatRelayedTokensMatchStoredReply(t *testing.T) {
	stream := tokenEvent("Nous louons ") + ": ping\n\n" + tokenEvent("des pelles.") + "data: [DONE]\n\n"
	env := newTestEnv(t, http.StatusOK, stream, "sk-test")

	rec := env.post(t, userTurn("s1", "Que louez-vous ?"))
	require.Equal(t, http.StatusOK, rec.Code)

	var relayed strings.Builder
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		relayed.WriteString(deltaContent([]byte(line)))
	}

	msgs := env.messages(t, rec.Header().Get(ConversationIDHeader))
	require.Len(t, msgs, 2)
	assert.Equal(t, relayed.String(), msgs[1].Content)
}

func TestHandleChatSameSessionReusesConversation(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, tokenEvent("oui")+"data: [DONE]\n\n", "sk-test")

	first := env.post(t, userTurn("s1", "premier message"))
	second := env.post(t, userTurn("s1", "second message"))
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)

	convs := env.conversations(t)
	require.Len(t, convs, 1)
	assert.Equal(t, first.Header().Get(ConversationIDHeader), second.Header().Get(ConversationIDHeader))

	var users int
	for _, m := range env.messages(t, convs[0].ID) {
		if m.Role == RoleUser {
			users++
		}
	}
	assert.Equal(t, 2, users)
}

func TestHandleChatExplicitConversationID(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, tokenEvent("ok")+"data: [DONE]\n\n", "sk-test")

	first := env.post(t, userTurn("s1", "bonjour"))
	require.Equal(t, http.StatusOK, first.Code)
	id := first.Header().Get(ConversationIDHeader)

	payload := userTurn("another-session", "mon numéro est +225 07 12 34 56")
	payload["conversationId"] = id
	second := env.post(t, payload)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, id, second.Header().Get(ConversationIDHeader))

	convs := env.conversations(t)
	require.Len(t, convs, 1)
	require.NotNil(t, convs[0].VisitorPhone)
	assert.Equal(t, "+225 07 12 34 56", *convs[0].VisitorPhone)
	assert.Len(t, env.messages(t, id), 4)
}

func TestHandleChatProviderError(t *testing.T) {
	env := newTestEnv(t, http.StatusInternalServerError, "", "sk-test")

	rec := env.post(t, userTurn("s1", "bonjour"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "completion provider error", body["error"])
	assert.NotContains(t, rec.Body.String(), "upstream exploded")

	for _, c := range env.conversations(t) {
		for _, m := range env.messages(t, c.ID) {
			assert.NotEqual(t, RoleAssistant, m.Role)
		}
	}
}

func TestHandleChatEmptyStreamStoresNoReply(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, "data: [DONE]\n\n", "sk-test")

	rec := env.post(t, userTurn("s1", "je suis Kofi"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data: [DONE]\n\n", rec.Body.String())

	convs := env.conversations(t)
	require.Len(t, convs, 1)
	msgs := env.messages(t, convs[0].ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Nil(t, convs[0].VisitorName)
}

func TestHandleChatMissingAPIKey(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, "", "")

	rec := env.post(t, userTurn("s1", "bonjour"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat is not configured")
	assert.Zero(t, env.provider.requests)
}

func TestHandleChatValidation(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, "data: [DONE]\n\n", "sk-test")

	tests := []struct {
		name    string
		payload any
	}{
		{name: "no messages", payload: map[string]any{"messages": []any{}, "sessionId": "s1"}},
		{name: "no session", payload: userTurn("", "bonjour")},
		{name: "bad role", payload: map[string]any{
			"messages":  []map[string]string{{"role": "system", "content": "x"}},
			"sessionId": "s1",
		}},
		{name: "last not user", payload: map[string]any{
			"messages":  []map[string]string{{"role": "user", "content": "a"}, {"role": "assistant", "content": "b"}},
			"sessionId": "s1",
		}},
		{name: "bad conversation id", payload: map[string]any{
			"messages":       []map[string]string{{"role": "user", "content": "a"}},
			"sessionId":      "s1",
			"conversationId": "not-a-uuid",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.post(t, tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}

	assert.Empty(t, env.conversations(t))
	assert.Zero(t, env.provider.requests)
}

func TestHandleChatInvalidJSON(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, "", "sk-test")

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid json"}`, rec.Body.String())
}
