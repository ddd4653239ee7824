// Package gemini adapts the Google Generative Language API.
package gemini

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
	"modelgate/internal/normalize"
	"modelgate/internal/stream"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// AllowedImageTypes lists the content types the vision endpoint accepts.
var AllowedImageTypes = []string{"image/png", "image/jpeg", "image/webp", "image/heic", "image/heif"}

// Provider calls the Gemini API.
type Provider struct {
	client  *http.Client
	baseURL string
}

// New creates a Gemini adapter using the given HTTP client.
func New(client *http.Client) *Provider {
	return &Provider{client: client, baseURL: defaultBaseURL}
}

// SetBaseURL overrides the upstream endpoint, for tests.
func (p *Provider) SetBaseURL(u string) {
	p.baseURL = strings.TrimRight(u, "/")
}

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inline_data,omitempty"`
}

type wireInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wireGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type wireRequest struct {
	Contents         []wireContent         `json:"contents"`
	GenerationConfig *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type wireResponse struct {
	Candidates []struct {
		Content struct {
			Parts []wirePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *wireUsage `json:"usageMetadata"`
}

func (u *wireUsage) canonical() *core.Usage {
	if u == nil {
		return nil
	}
	return &core.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}

// mapFinishReason translates Gemini finish reasons to the OpenAI ones.
func mapFinishReason(reason string) string {
	switch reason {
	case "", "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "PROHIBITED_CONTENT", "BLOCKLIST":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

func buildContents(req *core.ProviderRequest) ([]wireContent, error) {
	prompt, history, err := normalize.PromptHistory(req.Messages)
	if err != nil {
		return nil, err
	}
	contents := make([]wireContent, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, wireContent{
			Role:  turn.Role,
			Parts: []wirePart{{Text: turn.Content}},
		})
	}
	contents = append(contents, wireContent{
		Role:  normalize.RoleUser,
		Parts: []wirePart{{Text: prompt}},
	})
	return contents, nil
}

func (p *Provider) post(ctx context.Context, secret, url string, body wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewInternalError("gemini: marshal request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewInternalError("gemini: build request", err)
	}
	httpReq.Header.Set("x-goog-api-key", secret)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, core.NewUnavailableError("google", err)
	}
	return resp, nil
}

func (p *Provider) complete(ctx context.Context, secret, model string, body wireRequest) (*core.ProviderResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	resp, err := p.post(ctx, secret, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewUnavailableError("google", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseProviderError("google", resp.StatusCode, raw)
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, core.NewInternalError("gemini: decode response", err)
	}
	if wr.PromptFeedback != nil && wr.PromptFeedback.BlockReason != "" {
		return nil, &core.GatewayError{
			Kind:     core.KindProviderBadRequest,
			Message:  fmt.Sprintf("prompt blocked: %s", wr.PromptFeedback.BlockReason),
			Provider: "google",
		}
	}
	if len(wr.Candidates) == 0 {
		return nil, core.NewInternalError("gemini: response has no candidates", nil)
	}
	cand := wr.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}
	return &core.ProviderResponse{
		Text:         text.String(),
		FinishReason: mapFinishReason(cand.FinishReason),
		Usage:        wr.UsageMetadata.canonical(),
	}, nil
}

// Complete performs a non-streaming generation.
func (p *Provider) Complete(ctx context.Context, req *core.ProviderRequest) (*core.ProviderResponse, error) {
	contents, err := buildContents(req)
	if err != nil {
		return nil, err
	}
	body := wireRequest{
		Contents: contents,
		GenerationConfig: &wireGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	return p.complete(ctx, req.Secret, req.Model, body)
}

// Stream opens a streaming generation over SSE.
func (p *Provider) Stream(ctx context.Context, req *core.ProviderRequest) (core.DeltaStream, error) {
	contents, err := buildContents(req)
	if err != nil {
		return nil, err
	}
	body := wireRequest{
		Contents: contents,
		GenerationConfig: &wireGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, req.Model)
	resp, err := p.post(ctx, req.Secret, url, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, core.ParseProviderError("google", resp.StatusCode, raw)
	}
	return &deltaStream{scanner: stream.NewScanner(resp.Body)}, nil
}

// ExtractVision sends an image with an instruction prompt and returns
// the extracted text.
func (p *Provider) ExtractVision(ctx context.Context, in core.VisionInput) (string, error) {
	body := wireRequest{
		Contents: []wireContent{{
			Role: normalize.RoleUser,
			Parts: []wirePart{
				{Text: in.Prompt},
				{InlineData: &wireInlineData{
					MimeType: in.ContentType,
					Data:     base64.StdEncoding.EncodeToString(in.Data),
				}},
			},
		}},
	}
	resp, err := p.complete(ctx, in.Secret, in.Model, body)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// deltaStream translates Gemini SSE events, which reuse the response
// shape with partial candidates, into canonical deltas. Gemini marks
// the end by sending finishReason on the final event; content arriving
// alongside it is preserved.
type deltaStream struct {
	scanner *stream.Scanner
}

func (s *deltaStream) Recv() (core.Delta, error) {
	data, err := s.scanner.Next()
	if err != nil {
		return core.Delta{}, err
	}
	var wr wireResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return core.Delta{}, err
	}
	d := core.Delta{Usage: wr.UsageMetadata.canonical()}
	if len(wr.Candidates) == 0 {
		return d, nil
	}
	cand := wr.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}
	d.Content = text.String()
	if cand.FinishReason != "" {
		d.FinishReason = mapFinishReason(cand.FinishReason)
	}
	return d, nil
}

func (s *deltaStream) Close() error {
	return s.scanner.Close()
}
