package core

import "time"

// ChatRequest represents the incoming OpenAI-compatible chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message represents a single message in the chat.
// Content may be a plain string or a multi-part list (text/image parts).
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int           `json:"index"`
	Message      SimpleMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// SimpleMessage is a role/content pair with plain-text content,
// used in responses where multi-part content never occurs.
type SimpleMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse represents the OpenAI-shaped chat completion response.
// Model always echoes the identifier the client sent, not the
// provider-native name the request was routed with.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// StreamChunk represents one OpenAI-shaped chat.completion.chunk event.
type StreamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice is the choices[] element of a streaming chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta carries the incremental part of a streamed message.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Model represents a single model in the /v1/models list.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

// ModelsResponse represents the response from the /v1/models endpoint.
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// Credential is a provider-scoped secret plus rotation metadata.
// The engine reads credentials and requests mutation of the selection
// and quarantine fields; creation and destruction happen elsewhere.
type Credential struct {
	ID            string
	OwnerID       string
	Provider      string
	Secret        string
	Name          string
	IsSelected    bool
	DisabledUntil *time.Time
	CreatedAt     time.Time
}

// Available reports whether the credential is eligible for selection at t,
// i.e. not quarantined or with an expired quarantine.
func (c *Credential) Available(t time.Time) bool {
	return c.DisabledUntil == nil || !c.DisabledUntil.After(t)
}

// DisplayName returns the human-assigned name, falling back to the id.
func (c *Credential) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
