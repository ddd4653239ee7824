package grok

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"modelgate/internal/core"
)

func textMessages(texts ...string) []core.Message {
	msgs := make([]core.Message, len(texts))
	for i, s := range texts {
		msgs[i] = core.Message{Role: "user", Content: core.TextContent(s)}
	}
	return msgs
}

func TestComplete(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	p := New(server.Client())
	p.SetBaseURL(server.URL)

	resp, err := p.Complete(context.Background(), &core.ProviderRequest{
		Model:    "grok-4",
		Messages: textMessages("hi"),
		Secret:   "sk-test",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Hello!" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "grok-4" {
		t.Errorf("body model = %v", gotBody["model"])
	}
	if _, present := gotBody["stream"]; present {
		t.Errorf("non-streaming body carries stream flag: %v", gotBody["stream"])
	}
}

func TestCompleteErrorMapping(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		wantKind core.ErrorKind
	}{
		{401, `{"error":{"message":"invalid api key"}}`, core.KindProviderAuth},
		{429, `{"error":{"message":"rate limit exceeded"}}`, core.KindProviderRateLimited},
		{400, `{"error":{"message":"bad temperature"}}`, core.KindProviderBadRequest},
		{503, `{"error":{"message":"overloaded"}}`, core.KindProviderUnavailable},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(tt.body))
		}))
		p := New(server.Client())
		p.SetBaseURL(server.URL)

		_, err := p.Complete(context.Background(), &core.ProviderRequest{
			Model:    "grok-4",
			Messages: textMessages("hi"),
			Secret:   "sk",
		})
		server.Close()

		var ge *core.GatewayError
		if !errors.As(err, &ge) {
			t.Fatalf("status %d: expected GatewayError, got %v", tt.status, err)
		}
		if ge.Kind != tt.wantKind {
			t.Errorf("status %d: Kind = %v, want %v", tt.status, ge.Kind, tt.wantKind)
		}
	}
}

func TestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Errorf("stream flag missing in body")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"He\"},\"finish_reason\":null}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"llo\"},\"finish_reason\":null}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":1,\"completion_tokens\":2,\"total_tokens\":3}}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer server.Close()

	p := New(server.Client())
	p.SetBaseURL(server.URL)

	s, err := p.Stream(context.Background(), &core.ProviderRequest{
		Model:    "grok-4",
		Messages: textMessages("hi"),
		Secret:   "sk",
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var contents []string
	var finish string
	for {
		d, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if d.Content != "" {
			contents = append(contents, d.Content)
		}
		if d.FinishReason != "" {
			finish = d.FinishReason
			if d.Usage == nil || d.Usage.TotalTokens != 3 {
				t.Errorf("terminal usage = %+v", d.Usage)
			}
		}
	}
	if strings.Join(contents, "") != "Hello" {
		t.Errorf("content = %q", strings.Join(contents, ""))
	}
	if finish != "stop" {
		t.Errorf("finish = %q", finish)
	}
}

func TestStreamSetupErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	p := New(server.Client())
	p.SetBaseURL(server.URL)

	_, err := p.Stream(context.Background(), &core.ProviderRequest{
		Model:    "grok-4",
		Messages: textMessages("hi"),
		Secret:   "sk",
	})
	var ge *core.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if !ge.KeyError() {
		t.Error("auth failure during stream setup must be a key error")
	}
}

func TestExtractVision(t *testing.T) {
	var gotBody struct {
		Messages []struct {
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL *struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"extracted text"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	p := New(server.Client())
	p.SetBaseURL(server.URL)

	text, err := p.ExtractVision(context.Background(), core.VisionInput{
		Data:        []byte{0x89, 0x50},
		ContentType: "image/png",
		Prompt:      "read it",
		Model:       "grok-4",
		Secret:      "sk",
	})
	if err != nil {
		t.Fatalf("ExtractVision: %v", err)
	}
	if text != "extracted text" {
		t.Errorf("text = %q", text)
	}
	if len(gotBody.Messages) != 1 || len(gotBody.Messages[0].Content) != 2 {
		t.Fatalf("unexpected message shape: %+v", gotBody.Messages)
	}
	img := gotBody.Messages[0].Content[1]
	if img.ImageURL == nil || !strings.HasPrefix(img.ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image url = %+v", img.ImageURL)
	}
	if gotBody.MaxTokens != visionMaxTokens {
		t.Errorf("max_tokens = %d", gotBody.MaxTokens)
	}
}

func TestExtractVisionRefusalFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"I'm sorry, I can't help with that image."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	p := New(server.Client())
	p.SetBaseURL(server.URL)

	text, err := p.ExtractVision(context.Background(), core.VisionInput{
		Data:        []byte{1},
		ContentType: "image/png",
		Prompt:      "read it",
		Model:       "grok-4",
		Secret:      "sk",
	})
	if err != nil {
		t.Fatalf("ExtractVision: %v", err)
	}
	if text != refusalFallback {
		t.Errorf("text = %q, want refusal fallback", text)
	}
}

func TestIsRefusal(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"I'm sorry, I cannot do that", true},
		{"Unable to process the image", true},
		{"  i am sorry but no", true},
		{"The text reads: I'm sorry", false},
		{"INVOICE #42", false},
	}
	for _, tt := range tests {
		if got := isRefusal(tt.text); got != tt.want {
			t.Errorf("isRefusal(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
