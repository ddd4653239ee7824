// Package gigachat adapts the Sber GigaChat API, which requires an
// OAuth access token exchanged from the stored authorization key.
package gigachat

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"modelgate/internal/cache"
	"modelgate/internal/core"
	"modelgate/internal/providers"
	"modelgate/internal/stream"
)

const (
	defaultAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	defaultBaseURL = "https://gigachat.devices.sberbank.ru/api/v1"

	defaultScope = "GIGACHAT_API_PERS"
)

// Provider calls the GigaChat API. Access tokens are exchanged from the
// per-request authorization key and cached until they expire.
type Provider struct {
	client  *http.Client
	tokens  cache.TokenCache
	authURL string
	baseURL string
	scope   string
}

// New creates a GigaChat adapter. tokens caches exchanged access tokens
// keyed by authorization key; pass a LocalCache when nothing shared is
// available.
func New(client *http.Client, tokens cache.TokenCache) *Provider {
	return &Provider{
		client:  client,
		tokens:  tokens,
		authURL: defaultAuthURL,
		baseURL: defaultBaseURL,
		scope:   defaultScope,
	}
}

// SetAuthURL overrides the OAuth endpoint, for tests.
func (p *Provider) SetAuthURL(u string) {
	p.authURL = u
}

// SetBaseURL overrides the chat endpoint, for tests.
func (p *Provider) SetBaseURL(u string) {
	p.baseURL = strings.TrimRight(u, "/")
}

// SetScope overrides the OAuth scope requested during token exchange.
func (p *Provider) SetScope(scope string) {
	if scope != "" {
		p.scope = scope
	}
}

// tokenCacheKey derives the cache key from the authorization key without
// storing the key itself.
func tokenCacheKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:16])
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// ExpiresAt is a unix timestamp in milliseconds.
	ExpiresAt int64 `json:"expires_at"`
}

// token returns a valid access token for the authorization key, from
// cache when possible. The second return reports whether the token came
// from the cache, so callers can invalidate and retry on upstream 401.
func (p *Provider) token(ctx context.Context, secret string) (string, bool, error) {
	key := tokenCacheKey(secret)
	if tok, ok, err := p.tokens.Get(ctx, key); err == nil && ok {
		return tok, true, nil
	}

	form := url.Values{"scope": {p.scope}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", false, core.NewInternalError("gigachat: build token request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+secret)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("RqUID", uuid.NewString())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", false, core.NewUnavailableError("gigachat", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, core.NewUnavailableError("gigachat", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, core.ParseProviderError("gigachat", resp.StatusCode, raw)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", false, core.NewInternalError("gigachat: decode token response", err)
	}
	if tr.AccessToken == "" {
		return "", false, core.NewInternalError("gigachat: empty access token", nil)
	}

	// best effort; a failed cache write only costs a re-exchange
	_ = p.tokens.Set(ctx, key, tr.AccessToken, time.UnixMilli(tr.ExpiresAt))
	return tr.AccessToken, false, nil
}

func (p *Provider) invalidateToken(ctx context.Context, secret string) {
	_ = p.tokens.Delete(ctx, tokenCacheKey(secret))
}

func buildBody(req *core.ProviderRequest, streaming bool) providers.OpenAICompatRequest {
	turns := make([]providers.OpenAICompatTurn, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, providers.OpenAICompatTurn{Role: m.Role, Content: m.Content.Text()})
	}
	return providers.OpenAICompatRequest{
		Model:       req.Model,
		Messages:    turns,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      streaming,
	}
}

func (p *Provider) post(ctx context.Context, token string, body providers.OpenAICompatRequest, streaming bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewInternalError("gigachat: marshal request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewInternalError("gigachat: build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, core.NewUnavailableError("gigachat", err)
	}
	return resp, nil
}

// do runs fn with a valid access token. When a cached token is rejected
// with 401 the cache entry is dropped and fn runs once more with a
// freshly exchanged token.
func (p *Provider) do(ctx context.Context, secret string, fn func(token string) (*http.Response, error)) (*http.Response, error) {
	token, cached, err := p.token(ctx, secret)
	if err != nil {
		return nil, err
	}
	resp, err := fn(token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && cached {
		resp.Body.Close()
		p.invalidateToken(ctx, secret)
		token, _, err = p.token(ctx, secret)
		if err != nil {
			return nil, err
		}
		return fn(token)
	}
	return resp, nil
}

// Complete performs a non-streaming chat completion.
func (p *Provider) Complete(ctx context.Context, req *core.ProviderRequest) (*core.ProviderResponse, error) {
	body := buildBody(req, false)
	resp, err := p.do(ctx, req.Secret, func(token string) (*http.Response, error) {
		return p.post(ctx, token, body, false)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewUnavailableError("gigachat", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseProviderError("gigachat", resp.StatusCode, raw)
	}

	var out providers.OpenAICompatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, core.NewInternalError("gigachat: decode response", err)
	}
	if len(out.Choices) == 0 {
		return nil, core.NewInternalError("gigachat: response has no choices", nil)
	}
	choice := out.Choices[0]
	finish := choice.FinishReason
	if finish == "" {
		finish = "stop"
	}
	return &core.ProviderResponse{
		Text:         choice.Message.Content,
		FinishReason: finish,
		Usage:        out.Usage,
	}, nil
}

// Stream opens a streaming chat completion.
func (p *Provider) Stream(ctx context.Context, req *core.ProviderRequest) (core.DeltaStream, error) {
	body := buildBody(req, true)
	resp, err := p.do(ctx, req.Secret, func(token string) (*http.Response, error) {
		return p.post(ctx, token, body, true)
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, core.ParseProviderError("gigachat", resp.StatusCode, raw)
	}
	return &deltaStream{scanner: stream.NewScanner(resp.Body)}, nil
}

type deltaStream struct {
	scanner *stream.Scanner
}

func (s *deltaStream) Recv() (core.Delta, error) {
	data, err := s.scanner.Next()
	if err != nil {
		return core.Delta{}, err
	}
	return providers.ParseOpenAIChunk(data)
}

func (s *deltaStream) Close() error {
	return s.scanner.Close()
}
