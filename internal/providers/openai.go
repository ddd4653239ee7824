package providers

import (
	"encoding/json"

	"modelgate/internal/core"
)

// OpenAICompatRequest is the chat body shared by the upstreams that
// speak the OpenAI dialect.
type OpenAICompatRequest struct {
	Model       string             `json:"model"`
	Messages    []OpenAICompatTurn `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// OpenAICompatTurn is a single message on the wire. Content stays an
// untyped value so multimodal parts pass through unchanged.
type OpenAICompatTurn struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// OpenAICompatResponse is the non-streaming completion body.
type OpenAICompatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *core.Usage `json:"usage"`
}

// OpenAICompatChunk is one streaming SSE payload.
type OpenAICompatChunk struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *core.Usage `json:"usage"`
}

// ParseOpenAIChunk decodes one SSE data payload into a canonical delta.
// Payloads with no choices and no usage decode to a zero delta, which
// the stream normalizer drops.
func ParseOpenAIChunk(data []byte) (core.Delta, error) {
	var chunk OpenAICompatChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return core.Delta{}, err
	}
	d := core.Delta{Usage: chunk.Usage}
	if len(chunk.Choices) > 0 {
		c := chunk.Choices[0]
		d.Role = c.Delta.Role
		d.Content = c.Delta.Content
		if c.FinishReason != nil && *c.FinishReason != "" {
			d.FinishReason = *c.FinishReason
		}
	}
	return d, nil
}
