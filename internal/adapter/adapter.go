package adapter

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"lmsbridge/internal/domain"
)

// DefaultTimeout bounds every network round trip.
const DefaultTimeout = 8 * time.Second

// Adapter drives one completion protocol.
type Adapter interface {
	// Kind returns the protocol family served.
	Kind() domain.ApiKind

	// Name returns a display name.
	Name() string

	// Complete writes req through h. Protocol failures are recorded in the
	// result, never returned.
	Complete(ctx context.Context, h *domain.ApiHandle, req domain.CompletionRequest) domain.CompletionResult

	// Verify reads h back and compares against the class of want. It does
	// not write and does not retry.
	Verify(ctx context.Context, h *domain.ApiHandle, want domain.Status) domain.VerificationOutcome

	// Test runs a round trip against h.
	Test(ctx context.Context, h *domain.ApiHandle) domain.Functional
}

// CMIReader is implemented by adapters that can read learner state back.
type CMIReader interface {
	ReadCMI(ctx context.Context, h *domain.ApiHandle) (map[string]string, error)
}

// Finisher is implemented by adapters whose session can be closed apart
// from Complete. Completing with TerminateSession unset and then calling
// Finish lets the status be read back while the session is still open.
type Finisher interface {
	Finish(ctx context.Context, h *domain.ApiHandle) domain.CompletionOperation
}

// AdapterConfig holds configuration for an adapter instance
type AdapterConfig struct {
	// Enabled determines if the adapter takes part in completion
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Priority orders the fallback cascade (higher = tried first)
	Priority int `json:"priority" yaml:"priority"`
}

// Options are shared by all adapters.
type Options struct {
	Timeout time.Duration
	Client  *http.Client
	Now     func() time.Time
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// missingRef fails a result whose handle lacks the reference its kind needs.
func missingRef(h *domain.ApiHandle, what string) domain.CompletionResult {
	res := domain.NewResult(h)
	return res.Fail(domain.Errorf(domain.KindNotFound, "complete", "handle %s has no %s", locationOf(h), what))
}

func locationOf(h *domain.ApiHandle) string {
	if h == nil {
		return "<nil>"
	}
	return h.Location
}
