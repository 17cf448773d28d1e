// Package llm defines the abstract language-model capability the core
// depends on. Concrete provider adapters live outside this repository;
// the core only consumes completions and classifies failures so callers
// can degrade to deterministic fallbacks.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Feature names used for feature-routed completion calls, so a configured
// feature-to-model map can route each call to the appropriate model.
const (
	FeatureSummaries   = "summaries"
	FeatureScoring     = "scoring"
	FeatureImprovement = "improvement"
)

// ErrUnavailable indicates no capability is bound or it is not initialized.
var ErrUnavailable = errors.New("language model capability unavailable")

// Request is a single non-streaming completion request.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Result is a completed generation.
type Result struct {
	Text     string
	Model    string
	Provider string
}

// ProviderInfo describes the active provider.
type ProviderInfo struct {
	Type  string
	Model string
}

// Capability is the abstract language-model contract. Retries are the
// capability's responsibility; the core never retries.
type Capability interface {
	GenerateCompletion(ctx context.Context, req Request) (*Result, error)
	GenerateCompletionForFeature(ctx context.Context, feature string, req Request) (*Result, error)
	ActiveProviderInfo() *ProviderInfo
	IsInitialized() bool
	Initialize(ctx context.Context) error
}

// ErrorKind classifies a capability failure for fallback reporting.
type ErrorKind string

const (
	ErrKindRateLimit  ErrorKind = "rate_limit"
	ErrKindAuthFailed ErrorKind = "auth_failed"
	ErrKindNetwork    ErrorKind = "network"
	ErrKindNoProvider ErrorKind = "no_provider"
	ErrKindUnknown    ErrorKind = "unknown"
)

// Error is a typed capability failure. Adapters that can classify their
// errors wrap them in this type; ClassifyError falls back to sniffing.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ClassifyError maps a capability error to an ErrorKind. Typed hints win;
// otherwise the message is sniffed for well-known failure shapes.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if errors.Is(err, ErrUnavailable) {
		return ErrKindNoProvider
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return ErrKindRateLimit
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "auth") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return ErrKindAuthFailed
	case strings.Contains(msg, "network") || strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "dns"):
		return ErrKindNetwork
	case strings.Contains(msg, "no provider") || strings.Contains(msg, "not initialized"):
		return ErrKindNoProvider
	default:
		return ErrKindUnknown
	}
}

// Suggestion returns a one-line remediation hint for an error kind,
// attached to fallback summaries.
func (k ErrorKind) Suggestion() string {
	switch k {
	case ErrKindRateLimit:
		return "Wait a moment and try again, or switch to a provider with more headroom."
	case ErrKindAuthFailed:
		return "Check the provider API key configuration."
	case ErrKindNetwork:
		return "Check the network connection and retry."
	case ErrKindNoProvider:
		return "Configure a language model provider to enable AI summaries."
	default:
		return "Retry; if the problem persists check the provider status page."
	}
}
