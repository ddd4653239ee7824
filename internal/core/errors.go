// Package core defines the shared types, interfaces and error taxonomy
// for the gateway.
package core

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorKind classifies a gateway failure.
type ErrorKind string

const (
	// KindUnmappableModel means no provider could be inferred from the model id.
	KindUnmappableModel ErrorKind = "unmappable_model"
	// KindInvalidRequest means the client request was malformed or empty.
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindNoCredential means no credential is configured for (owner, provider).
	KindNoCredential ErrorKind = "no_credential_configured"
	// KindProviderAuth means the upstream rejected the credential (401/403).
	KindProviderAuth ErrorKind = "provider_auth_error"
	// KindProviderRateLimited means the upstream rate-limited the credential (429).
	KindProviderRateLimited ErrorKind = "provider_rate_limited"
	// KindProviderBadRequest means the upstream rejected the payload itself.
	KindProviderBadRequest ErrorKind = "provider_bad_request"
	// KindProviderUnavailable means the upstream is unreachable or erroring (5xx).
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	// KindCredentialsExhausted means every eligible credential was tried and failed.
	KindCredentialsExhausted ErrorKind = "credentials_exhausted"
	// KindInternal is the catch-all for unexpected failures.
	KindInternal ErrorKind = "internal_error"
)

// GatewayError is the error type carried through the routing and
// failover layers. Kind drives retry classification; UpstreamStatus
// preserves the raw status the provider returned, when there was one.
type GatewayError struct {
	Kind           ErrorKind
	Message        string
	Provider       string
	UpstreamStatus int
	// keyShaped marks upstream 400s that are really credential problems
	// (malformed key, revoked project). Auth and rate-limit kinds are key
	// errors regardless of this flag.
	keyShaped bool
	Err       error `json:"-"`
}

func (e *GatewayError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// KeyError reports whether the failure is attributable to the credential
// itself, making it eligible for rotation by the failover controller.
func (e *GatewayError) KeyError() bool {
	switch e.Kind {
	case KindProviderAuth, KindProviderRateLimited:
		return true
	case KindProviderBadRequest:
		return e.keyShaped
	}
	return false
}

// HTTPStatusCode maps the error kind to the status the gateway surfaces.
// Exhaustion is always 503, never the last upstream's raw status.
func (e *GatewayError) HTTPStatusCode() int {
	switch e.Kind {
	case KindUnmappableModel:
		return http.StatusNotFound
	case KindInvalidRequest, KindNoCredential, KindProviderBadRequest:
		return http.StatusBadRequest
	case KindProviderAuth:
		return http.StatusUnauthorized
	case KindProviderRateLimited:
		return http.StatusTooManyRequests
	case KindProviderUnavailable, KindCredentialsExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// envelopeType maps the kind to the OpenAI error envelope "type" field.
func (e *GatewayError) envelopeType() string {
	switch e.Kind {
	case KindUnmappableModel:
		return "not_found_error"
	case KindInvalidRequest, KindNoCredential, KindProviderBadRequest:
		return "invalid_request_error"
	case KindProviderAuth:
		return "authentication_error"
	case KindProviderRateLimited:
		return "rate_limit_error"
	case KindProviderUnavailable, KindCredentialsExhausted:
		return "service_unavailable_error"
	default:
		return "internal_error"
	}
}

// Envelope returns the OpenAI-style error body {error:{message,type,code}}.
func (e *GatewayError) Envelope() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message": e.Message,
			"type":    e.envelopeType(),
			"code":    string(e.Kind),
		},
	}
}

// NewError creates a GatewayError of the given kind.
func NewError(kind ErrorKind, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message}
}

// NewInvalidRequestError creates a 400-mapped client error.
func NewInvalidRequestError(message string) *GatewayError {
	return &GatewayError{Kind: KindInvalidRequest, Message: message}
}

// NewUnmappableModelError creates the 404-mapped resolver failure.
func NewUnmappableModelError(model string) *GatewayError {
	return &GatewayError{
		Kind:    KindUnmappableModel,
		Message: fmt.Sprintf("no provider found for model %q", model),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, err error) *GatewayError {
	return &GatewayError{Kind: KindInternal, Message: message, Err: err}
}

// keyShapedHints are substrings in upstream 400 bodies that indicate the
// request failed because of the key, not the payload.
var keyShapedHints = []string{
	"api key",
	"api_key",
	"invalid key",
	"incorrect api",
	"credential",
	"unauthoriz",
	"authentication",
	"permission",
}

// ParseProviderError translates an upstream HTTP status and error body into
// the gateway taxonomy. The body may be any of the providers' error shapes;
// the message is probed from the usual locations.
func ParseProviderError(provider string, status int, body []byte) *GatewayError {
	message := extractUpstreamMessage(body)
	if message == "" {
		message = fmt.Sprintf("%s API error (status %d)", provider, status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &GatewayError{Kind: KindProviderAuth, Message: message, Provider: provider, UpstreamStatus: status}
	case status == http.StatusTooManyRequests:
		return &GatewayError{Kind: KindProviderRateLimited, Message: message, Provider: provider, UpstreamStatus: status}
	case status >= 400 && status < 500:
		ge := &GatewayError{Kind: KindProviderBadRequest, Message: message, Provider: provider, UpstreamStatus: status}
		ge.keyShaped = looksKeyShaped(message)
		return ge
	default:
		return &GatewayError{Kind: KindProviderUnavailable, Message: message, Provider: provider, UpstreamStatus: status}
	}
}

// NewUnavailableError creates a transport-level provider failure (no response).
func NewUnavailableError(provider string, err error) *GatewayError {
	return &GatewayError{
		Kind:     KindProviderUnavailable,
		Message:  fmt.Sprintf("could not reach %s: %v", provider, err),
		Provider: provider,
		Err:      err,
	}
}

// extractUpstreamMessage probes common error-body shapes:
// {"error":{"message":...}}, {"message":...}, {"detail":...},
// {"error_description":...} and, for Gemini, {"error":{"status":...}}.
func extractUpstreamMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		s := string(body)
		if len(s) > 300 {
			s = s[:300]
		}
		return s
	}
	for _, path := range []string{"error.message", "message", "detail", "error_description", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func looksKeyShaped(message string) bool {
	lower := strings.ToLower(message)
	for _, hint := range keyShapedHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
