// Package grok adapts the xAI chat completions API.
package grok

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"modelgate/internal/core"
	"modelgate/internal/providers"
	"modelgate/internal/stream"
)

const (
	defaultBaseURL = "https://api.x.ai/v1"

	visionMaxTokens   = 3000
	visionTemperature = 0.1
)

// refusalPhrases mark vision answers where the model declined instead
// of extracting text. Matched case-insensitively on the reply prefix.
var refusalPhrases = []string{
	"i'm sorry",
	"i am sorry",
	"i cannot",
	"i can't",
	"unable to",
}

// refusalFallback replaces a refusal so callers always get text back.
const refusalFallback = "could not perform the OCR task"

// AllowedImageTypes lists the content types the vision endpoint accepts.
var AllowedImageTypes = []string{"image/png", "image/jpeg"}

// Provider calls the xAI API. Credentials are supplied per request.
type Provider struct {
	client  *http.Client
	baseURL string
}

// New creates a Grok adapter using the given HTTP client.
func New(client *http.Client) *Provider {
	return &Provider{client: client, baseURL: defaultBaseURL}
}

// SetBaseURL overrides the upstream endpoint, for tests.
func (p *Provider) SetBaseURL(u string) {
	p.baseURL = strings.TrimRight(u, "/")
}

func (p *Provider) buildBody(req *core.ProviderRequest, streaming bool) providers.OpenAICompatRequest {
	turns := make([]providers.OpenAICompatTurn, 0, len(req.Messages))
	for _, m := range req.Messages {
		if parts := m.Content.Parts(); parts != nil {
			turns = append(turns, providers.OpenAICompatTurn{Role: m.Role, Content: parts})
			continue
		}
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

func (p *Provider) post(ctx context.Context, secret string, body providers.OpenAICompatRequest, streaming bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewInternalError("grok: marshal request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewInternalError("grok: build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+secret)
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, core.NewUnavailableError("xai", err)
	}
	return resp, nil
}

// Complete performs a non-streaming chat completion.
func (p *Provider) Complete(ctx context.Context, req *core.ProviderRequest) (*core.ProviderResponse, error) {
	resp, err := p.post(ctx, req.Secret, p.buildBody(req, false), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewUnavailableError("xai", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseProviderError("xai", resp.StatusCode, raw)
	}

	var body providers.OpenAICompatResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.NewInternalError("grok: decode response", err)
	}
	if len(body.Choices) == 0 {
		return nil, core.NewInternalError("grok: response has no choices", nil)
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
	resp, err := p.post(ctx, req.Secret, p.buildBody(req, true), true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, core.ParseProviderError("xai", resp.StatusCode, raw)
	}
	return &deltaStream{scanner: stream.NewScanner(resp.Body)}, nil
}

// ExtractVision sends an image with an instruction prompt and returns
// the extracted text.
func (p *Provider) ExtractVision(ctx context.Context, in core.VisionInput) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", in.ContentType, base64.StdEncoding.EncodeToString(in.Data))
	content := []core.ContentPart{
		{Type: "text", Text: in.Prompt},
		{Type: "image_url", ImageURL: &core.ImageURL{URL: dataURL}},
	}
	temp := visionTemperature
	maxTokens := visionMaxTokens
	resp, err := p.Complete(ctx, &core.ProviderRequest{
		Model:       in.Model,
		Messages:    []core.Message{{Role: "user", Content: core.PartsContent(content)}},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Secret:      in.Secret,
	})
	if err != nil {
		return "", err
	}
	if isRefusal(resp.Text) {
		return refusalFallback, nil
	}
	return resp.Text, nil
}

func isRefusal(text string) bool {
	head := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range refusalPhrases {
		if strings.HasPrefix(head, phrase) {
			return true
		}
	}
	return false
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
