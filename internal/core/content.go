package core

import (
	"encoding/json"
	"strings"
)

// ContentPart is one element of a multi-part message content list.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds an image reference, typically a data URL.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// MessageContent is either a plain string or a list of content parts,
// matching the two shapes the OpenAI chat API accepts.
type MessageContent struct {
	text  string
	parts []ContentPart
	multi bool
}

// Text returns the textual content: the plain string, or all text
// parts concatenated in order for multi-part content.
func (c MessageContent) Text() string {
	if !c.multi {
		return c.text
	}
	var b strings.Builder
	for _, p := range c.parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Parts returns the content parts, or nil for plain-string content.
func (c MessageContent) Parts() []ContentPart {
	if !c.multi {
		return nil
	}
	return c.parts
}

// HasImage reports whether any part is an image reference.
func (c MessageContent) HasImage() bool {
	for _, p := range c.parts {
		if p.Type == "image_url" {
			return true
		}
	}
	return false
}

// TextContent builds plain-string content.
func TextContent(s string) MessageContent {
	return MessageContent{text: s}
}

// PartsContent builds multi-part content.
func PartsContent(parts []ContentPart) MessageContent {
	return MessageContent{parts: parts, multi: true}
}

// UnmarshalJSON accepts either a JSON string or a part list.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = MessageContent{text: s}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*c = MessageContent{parts: parts, multi: true}
	return nil
}

// MarshalJSON emits the original shape: string or part list.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.multi {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}
