package core

import (
	"context"
	"time"
)

// ProviderRequest is the normalized request an adapter turns into its
// upstream's native wire format. Secret is the credential for this
// attempt; the failover controller swaps it between attempts.
type ProviderRequest struct {
	// Model is the provider-native model name (prefix already stripped).
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
	Secret      string
}

// ProviderResponse is the canonical non-streaming completion result.
type ProviderResponse struct {
	Text         string
	FinishReason string
	Usage        *Usage
}

// VisionInput carries an image for text extraction.
type VisionInput struct {
	Data        []byte
	ContentType string
	Prompt      string
	Model       string
	Secret      string
}

// DeltaStream is a single-pass, non-restartable sequence of native
// deltas already translated into the canonical shape. Recv returns
// io.EOF when the upstream stream ends cleanly.
type DeltaStream interface {
	Recv() (Delta, error)
	Close() error
}

// Delta is one incremental streaming event from an upstream.
type Delta struct {
	Role         string
	Content      string
	FinishReason string
	Usage        *Usage
}

// Provider is the uniform adapter contract every upstream implements.
type Provider interface {
	// Complete executes a chat completion request.
	Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// Stream opens a streaming completion. Errors returned here happened
	// before any delta was produced and are safe to retry with another
	// credential; errors from the returned stream are not.
	Stream(ctx context.Context, req *ProviderRequest) (DeltaStream, error)
}

// VisionProvider is implemented by adapters whose upstream can extract
// text from images.
type VisionProvider interface {
	ExtractVision(ctx context.Context, img VisionInput) (string, error)
}

// CredentialStore is the consumed interface to credential storage.
// Implementations must be safe for concurrent use. ListCandidates
// excludes credentials whose quarantine has not yet expired and returns
// the rest ordered by creation time.
type CredentialStore interface {
	GetSelected(ctx context.Context, owner, provider string) (*Credential, error)
	ListCandidates(ctx context.Context, owner, provider string) ([]*Credential, error)
	Select(ctx context.Context, id string) error
	Unselect(ctx context.Context, id string) error
	Quarantine(ctx context.Context, id string, until time.Time) error
}

// ActivityAction labels a credential-lifecycle event.
type ActivityAction string

const (
	ActionSelect    ActivityAction = "SELECT"
	ActionUnselect  ActivityAction = "UNSELECT"
	ActionExhausted ActivityAction = "FAILOVER_EXHAUSTED"
	ActionRetryFail ActivityAction = "RETRY_FAILED"
	ActionError     ActivityAction = "ERROR"
)

// ActivityLogger is the consumed, fire-and-forget activity log interface.
// Implementations must never block the request path.
type ActivityLogger interface {
	Log(owner, provider, credentialID string, action ActivityAction, description string)
}

// NopActivityLogger discards all events.
type NopActivityLogger struct{}

func (NopActivityLogger) Log(string, string, string, ActivityAction, string) {}
