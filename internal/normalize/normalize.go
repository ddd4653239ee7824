// Package normalize converts the canonical OpenAI-style message list into
// the request shapes the provider adapters consume.
package normalize

import (
	"modelgate/internal/core"
)

// Turn is one history entry in the prompt+history protocol.
type Turn struct {
	Role    string
	Content string
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// PromptHistory converts a flat message list into the prompt+history pair
// used by providers whose native chat protocol is not a message list.
//
// The first system message wins (later ones are ignored) and is prepended
// to the prompt. The chronologically last user message becomes the prompt.
// Every other non-system message becomes a history turn; consecutive turns
// of the same role are collapsed to the first, because the native chat API
// rejects consecutive same-role turns; for the same reason the returned
// history never ends with a user turn. Only text parts contribute content.
func PromptHistory(messages []core.Message) (prompt string, history []Turn, err error) {
	var system string
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content.Text()
			break
		}
	}

	// Locate the last user message; it becomes the current prompt.
	promptIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			promptIdx = i
			break
		}
	}
	if promptIdx == -1 {
		return "", nil, core.NewInvalidRequestError("no user message in request")
	}

	prompt = messages[promptIdx].Content.Text()
	if prompt == "" {
		return "", nil, core.NewInvalidRequestError("user message has no text content")
	}
	if system != "" {
		prompt = system + "\n\n" + prompt
	}

	for i, m := range messages {
		if m.Role == "system" || i == promptIdx {
			continue
		}
		role := RoleUser
		if m.Role != "user" {
			role = RoleModel
		}
		if n := len(history); n > 0 && history[n-1].Role == role {
			continue
		}
		text := m.Content.Text()
		if text == "" {
			continue
		}
		history = append(history, Turn{Role: role, Content: text})
	}

	// The prompt is appended by callers as a user turn, so a trailing
	// user turn in the history would recreate the consecutive same-role
	// sequence the collapse above removed.
	if n := len(history); n > 0 && history[n-1].Role == RoleUser {
		history = history[:n-1]
	}

	return prompt, history, nil
}

// Flat passes the message list through for providers that accept an
// OpenAI-style list natively, translating role names via rename when a
// provider spells a role differently. rename may be nil.
func Flat(messages []core.Message, rename func(role string) string) []core.Message {
	if rename == nil {
		return messages
	}
	out := make([]core.Message, len(messages))
	for i, m := range messages {
		out[i] = core.Message{Role: rename(m.Role), Content: m.Content}
	}
	return out
}
