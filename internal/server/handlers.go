// Package server provides HTTP handlers and server setup for the gateway.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"modelgate/internal/core"
	"modelgate/internal/router"
	"modelgate/internal/stream"
)

// Handler holds the HTTP handlers
type Handler struct {
	router *router.Router
}

// NewHandler creates a new handler with the given router
func NewHandler(rt *router.Router) *Handler {
	return &Handler{router: rt}
}

// ChatCompletion handles POST /v1/chat/completions
func (h *Handler) ChatCompletion(c echo.Context) error {
	var req core.ChatRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error()))
	}

	ctx := core.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
	owner := ownerID(c)

	if req.Stream {
		return h.streamChatCompletion(c, owner, &req)
	}

	resp, err := h.router.ChatCompletion(ctx, owner, &req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// streamChatCompletion writes the normalized chunk sequence as SSE.
// Errors before the first byte map to normal JSON error responses;
// errors after emission become a final error event followed by [DONE].
func (h *Handler) streamChatCompletion(c echo.Context, owner string, req *core.ChatRequest) error {
	ctx := core.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
	start := time.Now()

	n, provider, err := h.router.StreamChatCompletion(ctx, owner, req)
	if err != nil {
		return handleError(c, err)
	}
	defer n.Close()

	w := stream.NewWriter(c.Response())
	c.Response().WriteHeader(http.StatusOK)

	outcome := "ok"
	for {
		chunk, err := n.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Upstream died mid-stream. The status line already went out,
			// so surface the failure as a final event.
			slog.Warn("stream failed mid-flight", "provider", provider, "error", err)
			_ = w.Event(errorEnvelope(err))
			outcome = "stream_error"
			break
		}
		if werr := w.Event(chunk); werr != nil {
			// Client went away; nothing more to write.
			outcome = "client_gone"
			break
		}
		h.router.RecordStreamChunk(provider)
	}
	if outcome != "client_gone" {
		_ = w.Done()
	}
	h.router.ObserveStream(provider, outcome, start)
	return nil
}

// ExtractVision handles POST /v1/vision/extract-text (multipart form
// with an "image" file plus optional "prompt" and "model" fields).
func (h *Handler) ExtractVision(c echo.Context) error {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("multipart field \"image\" is required"))
	}
	file, err := fileHeader.Open()
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("could not open uploaded image"))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return handleError(c, core.NewInternalError("read uploaded image", err))
	}
	contentType := fileHeader.Header.Get("Content-Type")

	text, err := h.router.ExtractVision(
		c.Request().Context(),
		ownerID(c),
		c.FormValue("model"),
		contentType,
		data,
		c.FormValue("prompt"),
	)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"text": text})
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, h.router.ListModels())
}

// handleError converts gateway errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.Envelope())
	}

	// Fallback for unexpected errors
	slog.Error("unhandled error", "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}

// errorEnvelope shapes an error for a mid-stream SSE event.
func errorEnvelope(err error) map[string]any {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Envelope()
	}
	return map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": "stream interrupted",
		},
	}
}
