package service

import (
	"context"

	"go.uber.org/zap"

	"lmsbridge/internal/adapter"
	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

// handleAt discovers and returns the handle at index with its adapter.
func (o *Orchestrator) handleAt(ctx context.Context, root host.Environment, index int) (*domain.ApiHandle, adapter.Adapter, error) {
	found, err := o.discoverer.Discover(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	h, err := o.pick(found.Handles, index)
	if err != nil {
		return nil, nil, err
	}
	a, ok := o.registry.Get(h.Kind)
	if !ok {
		return h, nil, domain.Errorf(domain.KindNotFound, "select adapter", "no enabled adapter for %s", h.Kind)
	}
	return h, a, nil
}

// SetCompletion runs the adapter for the handle at index once, without
// fallback or verification.
func (o *Orchestrator) SetCompletion(ctx context.Context, root host.Environment, index int, req domain.CompletionRequest) (domain.CompletionResult, error) {
	h, a, err := o.handleAt(ctx, root, index)
	if err != nil {
		return domain.NewResult(h), err
	}
	if req.StartedAt.IsZero() {
		req.StartedAt = o.now()
	}
	report := &domain.ForceCompletionReport{}
	return o.attempt(ctx, report, a, h, req), nil
}

// TestHandles round-trips the handle at index, or every handle when index
// is negative, and returns them with Functional set.
func (o *Orchestrator) TestHandles(ctx context.Context, root host.Environment, index int) ([]domain.ApiHandle, error) {
	found, err := o.discoverer.Discover(ctx, root)
	if err != nil {
		return nil, err
	}

	targets := found.Handles
	if index >= 0 {
		h, err := o.pick(found.Handles, index)
		if err != nil {
			return nil, err
		}
		targets = []domain.ApiHandle{*h}
	}

	out := make([]domain.ApiHandle, 0, len(targets))
	for _, h := range targets {
		h := h
		if a, ok := o.registry.Get(h.Kind); ok {
			h.Functional = o.test(ctx, a, &h)
		}
		o.logger.Debug("handle tested", zap.String("location", h.Location), zap.String("functional", string(h.Functional)))
		out = append(out, h)
	}
	return out, nil
}

func (o *Orchestrator) test(ctx context.Context, a adapter.Adapter, h *domain.ApiHandle) (f domain.Functional) {
	release, err := o.locks.Acquire(ctx, h)
	if err != nil {
		return domain.FunctionalUnknown
	}
	defer release()
	defer func() {
		if p := recover(); p != nil {
			f = domain.FunctionalFailed
		}
	}()
	return a.Test(ctx, h)
}

// ReadCMI reads learner state from the handle at index.
func (o *Orchestrator) ReadCMI(ctx context.Context, root host.Environment, index int) (map[string]string, *domain.ApiHandle, error) {
	h, a, err := o.handleAt(ctx, root, index)
	if err != nil {
		return nil, h, err
	}
	reader, ok := a.(adapter.CMIReader)
	if !ok {
		return nil, h, domain.Errorf(domain.KindNotFound, "read cmi", "%s handles have no readable data model", h.Kind)
	}

	release, err := o.locks.Acquire(ctx, h)
	if err != nil {
		return nil, h, err
	}
	defer release()
	data, err := reader.ReadCMI(ctx, h)
	return data, h, err
}

// Verify reads back the handle at index against want.
func (o *Orchestrator) Verify(ctx context.Context, root host.Environment, index int, want domain.Status) (domain.VerificationOutcome, error) {
	h, a, err := o.handleAt(ctx, root, index)
	if err != nil {
		return domain.VerificationOutcome{}, err
	}
	return o.verify(ctx, a, h, want), nil
}
