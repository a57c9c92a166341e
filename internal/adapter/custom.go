package adapter

import (
	"context"
	"strconv"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

// Custom calls a bare completion function such as SetCompletion(1).
type Custom struct {
	opts Options
}

// NewCustom returns the custom function adapter.
func NewCustom(opts Options) *Custom {
	return &Custom{opts: opts.withDefaults()}
}

// Kind returns the protocol family.
func (a *Custom) Kind() domain.ApiKind { return domain.APICustom }

// Name returns the display name.
func (a *Custom) Name() string { return "custom function" }

// Complete passes 1 for passed or completed and 0 otherwise. Only a throw
// is a failure; any return value, or none, counts as success.
func (a *Custom) Complete(ctx context.Context, h *domain.ApiHandle, req domain.CompletionRequest) domain.CompletionResult {
	if h == nil || h.Ref.Env == nil || len(h.Ref.Path) == 0 {
		return missingRef(h, "completion function")
	}
	res := domain.NewResult(h)

	signal := domain.PassSignal(req.Status)
	name := h.Ref.Path[len(h.Ref.Path)-1]
	op := domain.CompletionOperation{Method: name, Args: []string{strconv.Itoa(signal)}}

	ret, err := h.Ref.Env.Invoke(ctx, h.Ref.Path, "", signal)
	if err != nil {
		op.Error = domain.E(domain.KindProtocolError, name, err).Error()
		res.Record(op)
		return res.Fail(domain.E(domain.KindProtocolError, name, err))
	}
	op.Success = true
	op.Result = host.Stringify(ret)
	res.Record(op)
	res.Success = true
	return res
}

// Verify is optimistic; a bare function has no read-back.
func (a *Custom) Verify(_ context.Context, h *domain.ApiHandle, _ domain.Status) domain.VerificationOutcome {
	return domain.Optimistic(h)
}

// Test cannot call the function without completing, so the handle stays
// unknown.
func (a *Custom) Test(context.Context, *domain.ApiHandle) domain.Functional {
	return domain.FunctionalUnknown
}
