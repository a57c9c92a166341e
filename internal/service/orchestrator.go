package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lmsbridge/internal/adapter"
	"lmsbridge/internal/discovery"
	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

// Injector seeds host variables before completion. It is best effort.
type Injector interface {
	Inject(ctx context.Context, root host.Environment) (bool, error)
}

// ReportStore archives finished reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report *domain.ForceCompletionReport) error
}

// CompletionOptions controls the phases of ForceCompletion.
type CompletionOptions struct {
	Fallback      bool `json:"fallback" yaml:"fallback"`
	StopOnSuccess bool `json:"stop_on_success" yaml:"stop_on_success"`
	Verify        bool `json:"verify" yaml:"verify"`
}

// DefaultCompletionOptions enables every phase.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{Fallback: true, StopOnSuccess: true, Verify: true}
}

// Orchestrator runs discovery, adapters and verification against one
// environment graph. It holds no per-run state; runs are independent.
type Orchestrator struct {
	discoverer *discovery.Discoverer
	registry   *adapter.Registry
	locks      *adapter.HandleLocks
	eventBus   *EventBus
	store      ReportStore
	injector   Injector
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// NewOrchestrator creates an orchestrator. eventBus may be nil.
func NewOrchestrator(discoverer *discovery.Discoverer, registry *adapter.Registry, eventBus *EventBus, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		discoverer: discoverer,
		registry:   registry,
		locks:      adapter.NewHandleLocks(),
		eventBus:   eventBus,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetReportStore archives every ForceCompletion report in store.
func (o *Orchestrator) SetReportStore(store ReportStore) {
	o.store = store
}

// SetInjector installs the pre-completion injection step.
func (o *Orchestrator) SetInjector(injector Injector) {
	o.injector = injector
}

// Registry returns the adapter registry.
func (o *Orchestrator) Registry() *adapter.Registry {
	return o.registry
}

// Discover runs one discovery pass.
func (o *Orchestrator) Discover(ctx context.Context, root host.Environment) (*discovery.Result, error) {
	res, err := o.discoverer.Discover(ctx, root)
	if err != nil {
		return res, err
	}
	o.eventBus.Publish(Event{Type: EventDiscoveryComplete, Payload: res})
	return res, nil
}

// ForceCompletion completes through the handle at index, falls back across
// every discovered handle when that fails, verifies and aggregates. It
// always returns a fully shaped report; failures are recorded in it.
func (o *Orchestrator) ForceCompletion(ctx context.Context, root host.Environment, index int, req domain.CompletionRequest, opts CompletionOptions) *domain.ForceCompletionReport {
	started := o.now()
	if req.StartedAt.IsZero() {
		req.StartedAt = started
	}
	report := domain.NewForceCompletionReport(o.newID(), rootLocation(ctx, root), req, index, started)
	log := o.logger.With(zap.String("report", report.ID))
	run := &completionRun{report: report, finishes: map[string]bool{}}

	// Phase 1: injection.
	if o.injector != nil {
		injected, err := o.injector.Inject(ctx, root)
		report.Injected = injected
		if err != nil {
			report.Warnings = append(report.Warnings, "injection: "+err.Error())
		}
	}

	// Phase 2: primary attempt.
	var target *domain.ApiHandle
	var primaryOK, fallbackOK bool

	found, err := o.discoverer.Discover(ctx, root)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	}
	if found != nil {
		report.Handles = append(report.Handles, found.Handles...)
		report.Inaccessible = append(report.Inaccessible, found.Inaccessible...)
		o.publish(report, EventDiscoveryComplete, found)
	}

	switch h, err := o.pick(report.Handles, index); {
	case err != nil:
		report.Errors = append(report.Errors, err.Error())
		for _, inacc := range report.Inaccessible {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s inaccessible: %s", inacc.Location, inacc.Reason))
		}
	default:
		a, ok := o.registry.Get(h.Kind)
		if !ok {
			report.Errors = append(report.Errors, domain.Errorf(domain.KindNotFound, "primary", "no enabled adapter for %s", h.Kind).Error())
			break
		}
		result := o.attempt(ctx, run, a, h, req)
		report.Primary = &result
		report.Operations = append(report.Operations, result.Operations...)
		if result.Success {
			primaryOK = true
			target = h
			report.SucceededVia = append(report.SucceededVia, h.Location)
		}
		log.Info("primary attempt",
			zap.String("kind", string(h.Kind)),
			zap.String("location", h.Location),
			zap.Bool("success", result.Success))
	}

	// Phase 3: kitchen-sink fallback.
	if !primaryOK && opts.Fallback {
		report.FallbackUsed = true
		var first *domain.ApiHandle
		first, fallbackOK = o.fallback(ctx, run, root, req, opts.StopOnSuccess)
		if target == nil {
			target = first
		}
	}

	// Phase 4: verification.
	if target != nil && opts.Verify {
		if a, ok := o.registry.Get(target.Kind); ok {
			out := o.verify(ctx, a, target, req.Status)
			report.Verification = &out
			o.publish(report, EventVerification, out)
		}
	}

	// Sessions are closed only once the status has been read back.
	o.finish(ctx, run)

	// Phase 5: aggregation.
	report.Success = primaryOK || fallbackOK
	if v := report.Verification; v != nil {
		report.Verified = v.Verified
		if v.Meaningful && !v.Verified {
			report.Success = false
			msg := v.Error
			if msg == "" {
				msg = domain.Errorf(domain.KindVerificationMismatch, "verify", "%s not confirmed", v.Location).Error()
			}
			report.Errors = append(report.Errors, msg)
		}
	}
	o.attributeErrors(report)

	report.FinishedAt = o.now()
	log.Info("completion finished",
		zap.Bool("success", report.Success),
		zap.Bool("verified", report.Verified),
		zap.Strings("succeeded_via", report.SucceededVia),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))

	if o.store != nil {
		if err := o.store.SaveReport(ctx, report); err != nil {
			log.Warn("report not archived", zap.Error(err))
			report.Warnings = append(report.Warnings, "archive: "+err.Error())
		}
	}
	o.publish(report, EventCompletionReport, map[string]any{
		"success":  report.Success,
		"verified": report.Verified,
		"summary":  report.Summary(),
	})
	return report
}

// fallback re-discovers and tries every enabled adapter, in priority order,
// against every handle of its kind. Attempts run one at a time.
func (o *Orchestrator) fallback(ctx context.Context, run *completionRun, root host.Environment, req domain.CompletionRequest, stopOnSuccess bool) (*domain.ApiHandle, bool) {
	report := run.report
	found, err := o.discoverer.Discover(ctx, root)
	if err != nil {
		report.Warnings = append(report.Warnings, "fallback discovery: "+err.Error())
		if found == nil {
			return nil, false
		}
	}

	var first *domain.ApiHandle
	order := 0
	for _, a := range o.registry.Ordered() {
		for _, h := range domain.FilterKind(found.Handles, a.Kind()) {
			h := h
			order++
			result := o.attempt(ctx, run, a, &h, req)
			report.Fallback = append(report.Fallback, domain.FallbackAttempt{Order: order, Kind: a.Kind(), Result: result})
			report.Operations = append(report.Operations, result.Operations...)
			o.publish(report, EventFallbackAttempt, map[string]any{
				"order":    order,
				"kind":     a.Kind(),
				"location": h.Location,
				"success":  result.Success,
			})

			if !result.Success {
				continue
			}
			report.SucceededVia = append(report.SucceededVia, h.Location)
			if first == nil {
				first = &h
			}
			if stopOnSuccess {
				return first, true
			}
		}
	}
	if order == 0 {
		report.Errors = append(report.Errors, domain.Errorf(domain.KindNotFound, "fallback", "no handles to fall back to").Error())
	}
	return first, first != nil
}

// completionRun is the state of one ForceCompletion.
type completionRun struct {
	report *domain.ForceCompletionReport
	// pending sessions to terminate after verification, in attempt order.
	pending  []pendingFinish
	finishes map[string]bool
}

type pendingFinish struct {
	finisher adapter.Finisher
	handle   *domain.ApiHandle
}

// deferFinish takes over session termination from the adapter when it can
// be done separately.
func (r *completionRun) deferFinish(a adapter.Adapter, h *domain.ApiHandle, req domain.CompletionRequest) domain.CompletionRequest {
	f, ok := a.(adapter.Finisher)
	if !ok || !req.TerminateSession {
		return req
	}
	req.TerminateSession = false
	if key := adapter.LockKey(h); !r.finishes[key] {
		r.finishes[key] = true
		r.pending = append(r.pending, pendingFinish{finisher: f, handle: h})
	}
	return req
}

// attempt runs one adapter under the handle's lock. A panic inside the
// adapter or host binding becomes a recorded ProtocolError.
func (o *Orchestrator) attempt(ctx context.Context, run *completionRun, a adapter.Adapter, h *domain.ApiHandle, req domain.CompletionRequest) (res domain.CompletionResult) {
	report := run.report
	req = run.deferFinish(a, h, req)

	release, err := o.locks.Acquire(ctx, h)
	if err != nil {
		r := domain.NewResult(h)
		return r.Fail(err)
	}
	defer release()

	defer func() {
		if p := recover(); p != nil {
			perr := domain.Errorf(domain.KindProtocolError, a.Name(), "panic: %v", p)
			o.logger.Error("adapter panicked", zap.String("location", h.Location), zap.Any("panic", p))
			res = domain.NewResult(h)
			res.Record(domain.CompletionOperation{Method: a.Name(), Error: perr.Error()})
			res.Fail(perr)
		}
	}()

	o.publish(report, EventCompletionAttempt, map[string]any{"kind": h.Kind, "location": h.Location})
	return a.Complete(ctx, h, req)
}

// finish terminates every session whose termination was deferred. A
// failure is a warning: the status was already written and read back.
func (o *Orchestrator) finish(ctx context.Context, run *completionRun) {
	for _, p := range run.pending {
		op := o.finishOne(ctx, p)
		run.report.Operations = append(run.report.Operations, op)
		if !op.Success {
			run.report.Warnings = append(run.report.Warnings, fmt.Sprintf("finish %s: %s", p.handle.Location, op.String()))
		}
	}
}

func (o *Orchestrator) finishOne(ctx context.Context, p pendingFinish) (op domain.CompletionOperation) {
	release, err := o.locks.Acquire(ctx, p.handle)
	if err != nil {
		return domain.CompletionOperation{Method: "finish", Error: err.Error()}
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			op = domain.CompletionOperation{Method: "finish", Error: domain.Errorf(domain.KindProtocolError, "finish", "panic: %v", r).Error()}
		}
	}()
	return p.finisher.Finish(ctx, p.handle)
}

func (o *Orchestrator) verify(ctx context.Context, a adapter.Adapter, h *domain.ApiHandle, want domain.Status) (out domain.VerificationOutcome) {
	release, err := o.locks.Acquire(ctx, h)
	if err != nil {
		return domain.VerificationOutcome{Meaningful: true, Location: h.Location, Error: err.Error()}
	}
	defer release()

	defer func() {
		if p := recover(); p != nil {
			out = domain.VerificationOutcome{
				Meaningful: true,
				Location:   h.Location,
				Error:      domain.Errorf(domain.KindProtocolError, "verify", "panic: %v", p).Error(),
			}
		}
	}()
	return a.Verify(ctx, h, want)
}

// attributeErrors moves adapter errors into the report: as errors when the
// run failed, as warnings when another path succeeded.
func (o *Orchestrator) attributeErrors(report *domain.ForceCompletionReport) {
	add := func(prefix string, msgs []string) {
		for _, m := range msgs {
			line := prefix + ": " + m
			if report.Success {
				report.Warnings = append(report.Warnings, line)
			} else {
				report.Errors = append(report.Errors, line)
			}
		}
	}
	if report.Primary != nil {
		add(report.Primary.Location, report.Primary.Errors)
	}
	for _, f := range report.Fallback {
		add(fmt.Sprintf("fallback #%d %s", f.Order, f.Result.Location), f.Result.Errors)
	}
}

func (o *Orchestrator) pick(handles []domain.ApiHandle, index int) (*domain.ApiHandle, error) {
	if len(handles) == 0 {
		return nil, domain.Errorf(domain.KindNotFound, "select handle", "no completion API discovered")
	}
	if index < 0 || index >= len(handles) {
		return nil, domain.Errorf(domain.KindNotFound, "select handle", "no handle at index %d (%d discovered)", index, len(handles))
	}
	return &handles[index], nil
}

func (o *Orchestrator) publish(report *domain.ForceCompletionReport, t EventType, payload any) {
	o.eventBus.Publish(Event{Type: t, ReportID: report.ID, Time: o.now(), Payload: payload})
}

func rootLocation(ctx context.Context, root host.Environment) string {
	if root == nil {
		return ""
	}
	loc, err := root.Location(ctx)
	if err != nil {
		return root.ID()
	}
	return loc
}
