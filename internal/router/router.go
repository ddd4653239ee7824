// Package router orchestrates a request end to end: resolve the model,
// pick a credential, call the provider under failover control, and shape
// the response.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"modelgate/internal/catalog"
	"modelgate/internal/core"
	"modelgate/internal/failover"
	"modelgate/internal/observability"
	"modelgate/internal/providers"
	"modelgate/internal/providers/gemini"
	"modelgate/internal/providers/grok"
	"modelgate/internal/resolver"
	"modelgate/internal/stream"
)

// DefaultVisionPrompt is used when the client supplies no prompt.
const DefaultVisionPrompt = "Extract all visible text from this image. Returns only the text content."

// defaultVisionModels are the per-provider models used when the vision
// request names none.
var defaultVisionModels = map[string]string{
	resolver.ProviderGoogle: "gemini-2.5-flash",
	resolver.ProviderXAI:    "grok-4",
}

// visionImageTypes is the per-provider content-type allow list.
var visionImageTypes = map[string][]string{
	resolver.ProviderGoogle: gemini.AllowedImageTypes,
	resolver.ProviderXAI:    grok.AllowedImageTypes,
}

// Router is the request-routing facade used by the HTTP handlers.
type Router struct {
	registry *providers.Registry
	failover *failover.Controller
	catalog  *catalog.Catalog
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a Router. metrics may be nil.
func New(registry *providers.Registry, fc *failover.Controller, cat *catalog.Catalog, metrics *observability.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		failover: fc,
		catalog:  cat,
		metrics:  metrics,
		logger:   logger,
	}
}

func newCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

func validate(req *core.ChatRequest) error {
	if len(req.Messages) == 0 {
		return core.NewInvalidRequestError("messages must not be empty")
	}
	return nil
}

// ChatCompletion executes a non-streaming chat completion.
func (r *Router) ChatCompletion(ctx context.Context, owner string, req *core.ChatRequest) (*core.ChatResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	res, err := resolver.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	adapter, err := r.registry.Get(res.Provider)
	if err != nil {
		return nil, core.NewInternalError("provider adapter missing", err)
	}

	start := time.Now()
	var out *core.ProviderResponse
	err = r.failover.Run(ctx, owner, res.Provider, func(cred *core.Credential) error {
		resp, attemptErr := adapter.Complete(ctx, &core.ProviderRequest{
			Model:       res.Model,
			Messages:    req.Messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Secret:      cred.Secret,
		})
		if attemptErr != nil {
			return attemptErr
		}
		out = resp
		return nil
	})
	if err != nil {
		r.metrics.ObserveRequest(res.Provider, "error", start)
		return nil, err
	}
	r.metrics.ObserveRequest(res.Provider, "ok", start)

	return &core.ChatResponse{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   res.Original,
		Choices: []core.Choice{{
			Index:        0,
			Message:      core.SimpleMessage{Role: "assistant", Content: out.Text},
			FinishReason: out.FinishReason,
		}},
		Usage: out.Usage,
	}, nil
}

// StreamChatCompletion establishes a streaming completion. Failover only
// wraps stream establishment; once deltas flow, failures are terminal
// and surface through the returned normalizer. The provider tag is
// returned for instrumentation.
func (r *Router) StreamChatCompletion(ctx context.Context, owner string, req *core.ChatRequest) (*stream.Normalizer, string, error) {
	if err := validate(req); err != nil {
		return nil, "", err
	}
	res, err := resolver.Resolve(req.Model)
	if err != nil {
		return nil, "", err
	}
	adapter, err := r.registry.Get(res.Provider)
	if err != nil {
		return nil, "", core.NewInternalError("provider adapter missing", err)
	}

	var src core.DeltaStream
	err = r.failover.Run(ctx, owner, res.Provider, func(cred *core.Credential) error {
		s, attemptErr := adapter.Stream(ctx, &core.ProviderRequest{
			Model:       res.Model,
			Messages:    req.Messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Secret:      cred.Secret,
		})
		if attemptErr != nil {
			return attemptErr
		}
		src = s
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	n := stream.NewNormalizer(src, newCompletionID(), res.Original, time.Now().Unix())
	return n, res.Provider, nil
}

// ExtractVision runs OCR-style text extraction on an image. model may be
// empty, selecting the provider's default vision model.
func (r *Router) ExtractVision(ctx context.Context, owner, model, contentType string, data []byte, prompt string) (string, error) {
	if len(data) == 0 {
		return "", core.NewInvalidRequestError("image payload is empty")
	}
	if model == "" {
		model = defaultVisionModels[resolver.ProviderGoogle]
	}
	res, err := resolver.Resolve(model)
	if err != nil {
		return "", err
	}
	allowed, ok := visionImageTypes[res.Provider]
	if !ok {
		return "", core.NewInvalidRequestError(
			fmt.Sprintf("provider %s does not support vision extraction", res.Provider))
	}
	if !contains(allowed, contentType) {
		return "", core.NewInvalidRequestError(
			fmt.Sprintf("unsupported image content type %q for provider %s", contentType, res.Provider))
	}
	vp, err := r.registry.Vision(res.Provider)
	if err != nil {
		return "", core.NewInternalError("vision adapter missing", err)
	}
	if prompt == "" {
		prompt = DefaultVisionPrompt
	}

	start := time.Now()
	var text string
	err = r.failover.Run(ctx, owner, res.Provider, func(cred *core.Credential) error {
		out, attemptErr := vp.ExtractVision(ctx, core.VisionInput{
			Data:        data,
			ContentType: contentType,
			Prompt:      prompt,
			Model:       res.Model,
			Secret:      cred.Secret,
		})
		if attemptErr != nil {
			return attemptErr
		}
		text = out
		return nil
	})
	if err != nil {
		r.metrics.ObserveRequest(res.Provider, "error", start)
		return "", err
	}
	r.metrics.ObserveRequest(res.Provider, "ok", start)
	return text, nil
}

// ListModels returns the advertised model catalog.
func (r *Router) ListModels() core.ModelsResponse {
	return r.catalog.List()
}

// ObserveStream records the outcome of a finished stream.
func (r *Router) ObserveStream(provider, outcome string, start time.Time) {
	r.metrics.ObserveRequest(provider, outcome, start)
}

// RecordStreamChunk counts one emitted chunk.
func (r *Router) RecordStreamChunk(provider string) {
	r.metrics.RecordStreamChunk(provider)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
