// Package sonar adapts the Perplexity chat completions API.
package sonar

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"modelgate/internal/core"
	"modelgate/internal/providers"
	"modelgate/internal/stream"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"

	// Perplexity recommends a fixed nucleus-sampling value; the client
	// request does not carry one.
	topP = 0.9
)

// Provider calls the Perplexity API.
type Provider struct {
	client  *http.Client
	baseURL string
}

// New creates a Sonar adapter using the given HTTP client.
func New(client *http.Client) *Provider {
	return &Provider{client: client, baseURL: defaultBaseURL}
}

// SetBaseURL overrides the upstream endpoint, for tests.
func (p *Provider) SetBaseURL(u string) {
	p.baseURL = strings.TrimRight(u, "/")
}

func buildBody(req *core.ProviderRequest, streaming bool) providers.OpenAICompatRequest {
	turns := make([]providers.OpenAICompatTurn, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, providers.OpenAICompatTurn{Role: m.Role, Content: m.Content.Text()})
	}
	tp := topP
	return providers.OpenAICompatRequest{
		Model:       req.Model,
		Messages:    turns,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        &tp,
		Stream:      streaming,
	}
}

func (p *Provider) post(ctx context.Context, secret string, body providers.OpenAICompatRequest, streaming bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewInternalError("sonar: marshal request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewInternalError("sonar: build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+secret)
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, core.NewUnavailableError("perplexity", err)
	}
	return resp, nil
}

// Complete performs a non-streaming chat completion.
func (p *Provider) Complete(ctx context.Context, req *core.ProviderRequest) (*core.ProviderResponse, error) {
	resp, err := p.post(ctx, req.Secret, buildBody(req, false), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewUnavailableError("perplexity", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseProviderError("perplexity", resp.StatusCode, raw)
	}

	var body providers.OpenAICompatResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.NewInternalError("sonar: decode response", err)
	}
	if len(body.Choices) == 0 {
		return nil, core.NewInternalError("sonar: response has no choices", nil)
	}
	choice := body.Choices[0]
	finish := choice.FinishReason
	if finish == "" {
		finish = "stop"
	}
	return &core.ProviderResponse{
		Text:         choice.Message.Content,
		FinishReason: finish,
		Usage:        body.Usage,
	}, nil
}

// Stream opens a streaming chat completion.
func (p *Provider) Stream(ctx context.Context, req *core.ProviderRequest) (core.DeltaStream, error) {
	resp, err := p.post(ctx, req.Secret, buildBody(req, true), true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, core.ParseProviderError("perplexity", resp.StatusCode, raw)
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
