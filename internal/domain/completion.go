package domain

import (
	"fmt"
	"strings"
	"time"
)

// CompletionRequest is the input to every adapter.
type CompletionRequest struct {
	Status   Status  `json:"status"`
	Score    float64 `json:"score"`
	MinScore float64 `json:"min_score"`
	MaxScore float64 `json:"max_score"`
	// SessionTime is computed from StartedAt when zero.
	SessionTime              time.Duration `json:"session_time,omitempty"`
	StartedAt                time.Time     `json:"started_at,omitempty"`
	IncludeInteractionRecord bool          `json:"include_interaction_record"`
	TerminateSession         bool          `json:"terminate_session"`
}

// DefaultRequest returns a passing, full-score request that commits without
// terminating the session.
func DefaultRequest() CompletionRequest {
	return CompletionRequest{
		Status:   StatusCompleted,
		Score:    100,
		MinScore: 0,
		MaxScore: 100,
	}
}

// Duration returns the session time to report.
func (r CompletionRequest) Duration(now time.Time) time.Duration {
	if r.SessionTime > 0 {
		return r.SessionTime
	}
	if r.StartedAt.IsZero() || now.Before(r.StartedAt) {
		return 0
	}
	return now.Sub(r.StartedAt)
}

// RawScore returns the score clamped into [MinScore, MaxScore].
func (r CompletionRequest) RawScore() float64 {
	return ClampScore(r.Score, r.MinScore, r.MaxScore)
}

// Scaled returns the clamped scaled score in [-1, 1].
func (r CompletionRequest) Scaled() float64 {
	return ScaledScore(r.Score, r.MinScore, r.MaxScore)
}

// CompletionOperation is one write or protocol round trip against a handle.
type CompletionOperation struct {
	Method  string   `json:"method"`
	Args    []string `json:"args,omitempty"`
	Success bool     `json:"success"`
	Result  string   `json:"result,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (op CompletionOperation) String() string {
	call := fmt.Sprintf("%s(%s)", op.Method, strings.Join(op.Args, ", "))
	if op.Success {
		return call + " -> " + op.Result
	}
	if op.Error != "" {
		return call + " failed: " + op.Error
	}
	return call + " -> " + op.Result + " (failed)"
}

// CompletionResult is the output of one adapter invocation.
type CompletionResult struct {
	Kind       ApiKind               `json:"kind"`
	Location   string                `json:"location"`
	Success    bool                  `json:"success"`
	Operations []CompletionOperation `json:"operations"`
	Errors     []string              `json:"errors"`
}

// NewResult starts an empty result for h.
func NewResult(h *ApiHandle) CompletionResult {
	r := CompletionResult{
		Operations: []CompletionOperation{},
		Errors:     []string{},
	}
	if h != nil {
		r.Kind = h.Kind
		r.Location = h.Location
	}
	return r
}

// Record appends op to the audit trail.
func (r *CompletionResult) Record(op CompletionOperation) {
	if op.Args != nil {
		op.Args = append([]string(nil), op.Args...)
	}
	r.Operations = append(r.Operations, op)
}

// Errorf appends a formatted error message.
func (r *CompletionResult) Errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Fail records err and marks the result unsuccessful.
func (r *CompletionResult) Fail(err error) CompletionResult {
	r.Errors = append(r.Errors, err.Error())
	r.Success = false
	return *r
}

// VerificationOutcome is the read-back of a handle after completion.
type VerificationOutcome struct {
	Verified bool `json:"verified"`
	// Meaningful is false for protocols that cannot be read back; such
	// outcomes are optimistic and do not gate overall success.
	Meaningful     bool   `json:"meaningful"`
	ObservedStatus Status `json:"observed_status,omitempty"`
	ObservedScore  string `json:"observed_score,omitempty"`
	Location       string `json:"location,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Optimistic returns the assumed-true outcome for protocols without read-back.
func Optimistic(h *ApiHandle) VerificationOutcome {
	return VerificationOutcome{Verified: true, Location: h.Location}
}

// FallbackAttempt is one adapter run during the kitchen-sink phase.
type FallbackAttempt struct {
	Order  int              `json:"order"`
	Kind   ApiKind          `json:"kind"`
	Result CompletionResult `json:"result"`
}

// ForceCompletionReport aggregates one forceCompletion invocation. Every
// slice is non-nil so the shape is the same whatever happened.
type ForceCompletionReport struct {
	ID             string                    `json:"id"`
	Root           string                    `json:"root"`
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     time.Time                 `json:"finished_at"`
	Request        CompletionRequest         `json:"request"`
	RequestedIndex int                       `json:"requested_index"`
	Handles        []ApiHandle               `json:"handles"`
	Inaccessible   []InaccessibleEnvironment `json:"inaccessible"`
	Injected       bool                      `json:"injected"`
	Primary        *CompletionResult         `json:"primary,omitempty"`
	FallbackUsed   bool                      `json:"fallback_used"`
	Fallback       []FallbackAttempt         `json:"fallback"`
	SucceededVia   []string                  `json:"succeeded_via"`
	Verification   *VerificationOutcome      `json:"verification,omitempty"`
	Operations     []CompletionOperation     `json:"operations"`
	Success        bool                      `json:"success"`
	Verified       bool                      `json:"verified"`
	Errors         []string                  `json:"errors"`
	Warnings       []string                  `json:"warnings"`
}

// NewForceCompletionReport returns a report with every slice initialized.
func NewForceCompletionReport(id, root string, req CompletionRequest, index int, started time.Time) *ForceCompletionReport {
	return &ForceCompletionReport{
		ID:             id,
		Root:           root,
		StartedAt:      started,
		Request:        req,
		RequestedIndex: index,
		Handles:        []ApiHandle{},
		Inaccessible:   []InaccessibleEnvironment{},
		Fallback:       []FallbackAttempt{},
		SucceededVia:   []string{},
		Operations:     []CompletionOperation{},
		Errors:         []string{},
		Warnings:       []string{},
	}
}

// Summary renders the outcome in one line.
func (r *ForceCompletionReport) Summary() string {
	switch {
	case r.Success && r.Verified:
		return "completion reported, verified"
	case r.Success:
		return "completion reported, unverified"
	case len(r.Errors) > 0:
		return "completion failed: " + r.Errors[len(r.Errors)-1]
	default:
		return "completion failed"
	}
}
