package gigachat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"modelgate/internal/cache"
	"modelgate/internal/core"
	"modelgate/internal/providers"
)

// testUpstream wires an OAuth endpoint and a chat endpoint into one server
// and counts the calls each receives.
type testUpstream struct {
	server *httptest.Server

	tokenCalls int
	chatCalls  int

	lastAuth  string
	lastRqUID string
	lastScope string
	lastBody  providers.OpenAICompatRequest

	// issued is the token returned by the next exchange.
	issued string
	// rejectToken, when non-empty, causes the chat endpoint to answer 401
	// for that bearer token.
	rejectToken string
}

func newTestUpstream(t *testing.T) *testUpstream {
	t.Helper()
	u := &testUpstream{issued: "tok-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		u.tokenCalls++
		u.lastAuth = r.Header.Get("Authorization")
		u.lastRqUID = r.Header.Get("RqUID")
		_ = r.ParseForm()
		u.lastScope = r.PostFormValue("scope")
		resp := tokenResponse{
			AccessToken: u.issued,
			ExpiresAt:   time.Now().Add(30 * time.Minute).UnixMilli(),
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		u.chatCalls++
		bearer := r.Header.Get("Authorization")
		if u.rejectToken != "" && bearer == "Bearer "+u.rejectToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Token has expired"}`))
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&u.lastBody)
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Привет"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`))
	})
	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

func newTestProvider(u *testUpstream) *Provider {
	p := New(u.server.Client(), cache.NewLocalCache())
	p.SetAuthURL(u.server.URL + "/oauth")
	p.SetBaseURL(u.server.URL)
	return p
}

func chatRequest() *core.ProviderRequest {
	return &core.ProviderRequest{
		Model:    "GigaChat-2-Max",
		Messages: []core.Message{{Role: "user", Content: core.TextContent("привет")}},
		Secret:   "auth-key-1",
	}
}

func TestCompleteExchangesToken(t *testing.T) {
	u := newTestUpstream(t)
	p := newTestProvider(u)

	resp, err := p.Complete(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Привет" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 5 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	if u.tokenCalls != 1 {
		t.Errorf("token calls = %d, want 1", u.tokenCalls)
	}
	if u.lastAuth != "Bearer auth-key-1" {
		t.Errorf("oauth Authorization = %q", u.lastAuth)
	}
	if u.lastRqUID == "" {
		t.Error("RqUID header missing on token exchange")
	}
	if u.lastScope != "GIGACHAT_API_PERS" {
		t.Errorf("scope = %q", u.lastScope)
	}
	if u.lastBody.Model != "GigaChat-2-Max" {
		t.Errorf("chat model = %q", u.lastBody.Model)
	}
	if len(u.lastBody.Messages) != 1 || u.lastBody.Messages[0].Content != "привет" {
		t.Errorf("chat messages = %+v", u.lastBody.Messages)
	}
}

func TestTokenReusedAcrossCalls(t *testing.T) {
	u := newTestUpstream(t)
	p := newTestProvider(u)

	for i := 0; i < 3; i++ {
		if _, err := p.Complete(context.Background(), chatRequest()); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}
	if u.tokenCalls != 1 {
		t.Errorf("token calls = %d, want 1 (cached reuse)", u.tokenCalls)
	}
	if u.chatCalls != 3 {
		t.Errorf("chat calls = %d, want 3", u.chatCalls)
	}
}

func TestCachedTokenRejectedTriggersReexchange(t *testing.T) {
	u := newTestUpstream(t)
	p := newTestProvider(u)

	// Prime the cache with tok-1.
	if _, err := p.Complete(context.Background(), chatRequest()); err != nil {
		t.Fatalf("prime: %v", err)
	}

	// The upstream now rejects tok-1; the next exchange issues tok-2.
	u.rejectToken = "tok-1"
	u.issued = "tok-2"

	resp, err := p.Complete(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Complete after rejection: %v", err)
	}
	if resp.Text != "Привет" {
		t.Errorf("Text = %q", resp.Text)
	}
	if u.tokenCalls != 2 {
		t.Errorf("token calls = %d, want 2", u.tokenCalls)
	}
}

func TestFreshTokenRejectedIsNotRetried(t *testing.T) {
	u := newTestUpstream(t)
	// Every issued token is immediately rejected, so the 401 surfaces.
	u.issued = "bad"
	u.rejectToken = "bad"
	p := newTestProvider(u)

	_, err := p.Complete(context.Background(), chatRequest())
	var ge *core.GatewayError
	if !errors.As(err, &ge) || ge.Kind != core.KindProviderAuth {
		t.Fatalf("err = %v, want provider auth error", err)
	}
	if u.tokenCalls != 1 {
		t.Errorf("token calls = %d, want 1 (no retry for fresh token)", u.tokenCalls)
	}
}

func TestTokenExchangeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
	}))
	defer server.Close()

	p := New(server.Client(), cache.NewLocalCache())
	p.SetAuthURL(server.URL)
	p.SetBaseURL(server.URL)

	_, err := p.Complete(context.Background(), chatRequest())
	var ge *core.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if ge.Kind != core.KindProviderAuth || !ge.KeyError() {
		t.Errorf("kind = %v, KeyError = %v", ge.Kind, ge.KeyError())
	}
}

func TestStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: "tok",
			ExpiresAt:   time.Now().Add(time.Hour).UnixMilli(),
		})
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body providers.OpenAICompatRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream {
			t.Error("stream flag not set in request body")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"При\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"вет\"},\"finish_reason\":\"stop\"}]}\n\n" +
				"data: [DONE]\n\n"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := New(server.Client(), cache.NewLocalCache())
	p.SetAuthURL(server.URL + "/oauth")
	p.SetBaseURL(server.URL)

	s, err := p.Stream(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var text string
	for {
		d, err := s.Recv()
		if err != nil {
			break
		}
		text += d.Content
	}
	if text != "Привет" {
		t.Errorf("streamed text = %q", text)
	}
}

func TestTokenCacheKeyStable(t *testing.T) {
	a := tokenCacheKey("secret-a")
	if a != tokenCacheKey("secret-a") {
		t.Error("cache key not deterministic")
	}
	if a == tokenCacheKey("secret-b") {
		t.Error("different secrets share a cache key")
	}
	if len(a) != 32 {
		t.Errorf("key length = %d, want 32 hex chars", len(a))
	}
}
