package core

import (
	"encoding/json"
	"testing"
)

func TestMessageContentUnmarshalString(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Content.Text() != "hello" {
		t.Errorf("Text() = %q", m.Content.Text())
	}
	if m.Content.HasImage() {
		t.Error("HasImage() = true for plain string")
	}
}

func TestMessageContentUnmarshalParts(t *testing.T) {
	raw := `{"role":"user","content":[
		{"type":"text","text":"look at "},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}},
		{"type":"text","text":"this"}
	]}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Content.Text() != "look at this" {
		t.Errorf("Text() = %q", m.Content.Text())
	}
	if !m.Content.HasImage() {
		t.Error("HasImage() = false for part list with image")
	}
	if parts := m.Content.Parts(); len(parts) != 3 {
		t.Errorf("Parts() length = %d", len(parts))
	}
}

func TestMessageContentMarshalRoundShape(t *testing.T) {
	m := Message{Role: "user", Content: TextContent("hi")}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// A string content marshals back to a JSON string, not a part list.
	if string(data) != `{"role":"user","content":"hi"}` {
		t.Errorf("marshaled = %s", data)
	}
}
