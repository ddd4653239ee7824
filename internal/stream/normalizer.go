package stream

import (
	"io"

	"modelgate/internal/core"
)

// Normalizer turns a provider-native delta stream into the canonical
// chunk sequence: at most one role announcement, zero or more content
// deltas, exactly one terminal chunk carrying finish_reason (and usage
// when computable). The caller appends the [DONE] sentinel.
//
// A Normalizer is single-pass and not safe for concurrent use, matching
// the stream it wraps.
type Normalizer struct {
	src     core.DeltaStream
	id      string
	model   string
	created int64

	roleSent bool
	finished bool
	emitted  bool
	usage    *core.Usage
}

// NewNormalizer wraps src. The id/model/created triple is stamped onto
// every chunk; model is the identifier the client sent.
func NewNormalizer(src core.DeltaStream, id, model string, created int64) *Normalizer {
	return &Normalizer{src: src, id: id, model: model, created: created}
}

// Emitted reports whether any chunk has been handed to the caller.
// Once true, failures are terminal: content already left the building
// and a retry would duplicate it.
func (n *Normalizer) Emitted() bool { return n.emitted }

// Next returns the next canonical chunk. io.EOF follows the terminal
// chunk. Any other error is an upstream mid-stream failure; the caller
// must surface it as a final error event, never retry.
func (n *Normalizer) Next() (*core.StreamChunk, error) {
	if n.finished {
		return nil, io.EOF
	}

	for {
		delta, err := n.src.Recv()
		if err == io.EOF {
			// Upstream ended without an explicit finish signal.
			n.finished = true
			return n.terminalChunk("stop"), nil
		}
		if err != nil {
			n.finished = true
			return nil, err
		}

		if delta.Usage != nil {
			n.usage = delta.Usage
		}

		if delta.FinishReason != "" {
			n.finished = true
			chunk := n.terminalChunk(delta.FinishReason)
			if delta.Content != "" {
				chunk.Choices[0].Delta.Content = delta.Content
				if !n.roleSent {
					role := delta.Role
					if role == "" {
						role = "assistant"
					}
					chunk.Choices[0].Delta.Role = role
					n.roleSent = true
				}
			}
			return chunk, nil
		}

		if delta.Content == "" && delta.Role == "" {
			// Keep-alive or usage-only event; nothing to forward.
			continue
		}

		chunk := n.baseChunk()
		chunk.Choices = []core.ChunkChoice{{Index: 0, Delta: core.ChunkDelta{Content: delta.Content}}}
		if !n.roleSent {
			role := delta.Role
			if role == "" {
				role = "assistant"
			}
			chunk.Choices[0].Delta.Role = role
			n.roleSent = true
		}
		n.emitted = true
		return chunk, nil
	}
}

// Close releases the underlying stream.
func (n *Normalizer) Close() error { return n.src.Close() }

func (n *Normalizer) baseChunk() *core.StreamChunk {
	return &core.StreamChunk{
		ID:      n.id,
		Object:  "chat.completion.chunk",
		Created: n.created,
		Model:   n.model,
	}
}

func (n *Normalizer) terminalChunk(reason string) *core.StreamChunk {
	chunk := n.baseChunk()
	chunk.Choices = []core.ChunkChoice{{Index: 0, Delta: core.ChunkDelta{}, FinishReason: &reason}}
	chunk.Usage = n.usage
	n.emitted = true
	return chunk
}
