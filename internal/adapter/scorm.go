package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

// dialect names the run-time methods and elements of one SCORM version.
type dialect struct {
	kind        domain.ApiKind
	name        string
	initialize  string
	finish      string
	getValue    string
	setValue    string
	commit      string
	lastError   string
	errorString string
	// alreadyInitialized is the error code a second initialize returns.
	alreadyInitialized string
	// cmiElements are read by ReadCMI.
	cmiElements []string
	// writes lists the element/value pairs for a request.
	writes func(req domain.CompletionRequest, dur time.Duration, now time.Time) [][2]string
	// observe reads the status and score back.
	observe func(s *session) (domain.Status, string, error)
}

// SCORM adapts a SCORM run-time API object.
type SCORM struct {
	d    dialect
	opts Options
}

// Kind returns the protocol family.
func (a *SCORM) Kind() domain.ApiKind { return a.d.kind }

// Name returns the display name.
func (a *SCORM) Name() string { return a.d.name }

// Complete initializes on demand, writes every element, commits and
// finishes only when asked to. A rejected write is recorded and the
// remaining writes still run.
func (a *SCORM) Complete(ctx context.Context, h *domain.ApiHandle, req domain.CompletionRequest) domain.CompletionResult {
	if h == nil || h.Ref.Env == nil || len(h.Ref.Path) == 0 {
		return missingRef(h, "API object")
	}
	res := domain.NewResult(h)
	s := a.session(ctx, h, &res)

	if coerced := domain.CoerceScorm12(req.Status); coerced != domain.ParseStatus(string(req.Status)) {
		a.opts.Logger.Debug("status coerced",
			zap.String("requested", string(req.Status)),
			zap.String("written", string(coerced)))
	}

	s.initialize()
	now := a.opts.Now()
	for _, w := range a.d.writes(req, req.Duration(now), now) {
		s.set(w[0], w[1])
	}
	s.call(a.d.commit, "")
	if req.TerminateSession {
		s.call(a.d.finish, "")
	}

	res.Success = len(res.Errors) == 0
	return res
}

// Finish terminates the session on h.
func (a *SCORM) Finish(ctx context.Context, h *domain.ApiHandle) domain.CompletionOperation {
	if h == nil || h.Ref.Env == nil || len(h.Ref.Path) == 0 {
		return domain.CompletionOperation{Method: a.d.finish, Error: domain.Errorf(domain.KindNotFound, "finish", "no API object").Error()}
	}
	res := domain.NewResult(h)
	a.session(ctx, h, &res).call(a.d.finish, "")
	return res.Operations[len(res.Operations)-1]
}

// Verify reads the status back through the same handle.
func (a *SCORM) Verify(ctx context.Context, h *domain.ApiHandle, want domain.Status) domain.VerificationOutcome {
	out := domain.VerificationOutcome{Meaningful: true, Location: locationOf(h)}
	if h == nil || h.Ref.Env == nil || len(h.Ref.Path) == 0 {
		out.Error = domain.Errorf(domain.KindNotFound, "verify", "no API object").Error()
		return out
	}

	s := a.session(ctx, h, nil)
	observed, score, err := a.d.observe(s)
	out.ObservedStatus = observed
	out.ObservedScore = score
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.Verified = domain.Satisfies(want, observed)
	if !out.Verified {
		out.Error = domain.Errorf(domain.KindVerificationMismatch, "verify",
			"requested %s, host reports %q", domain.CoerceScorm12(want), observed).Error()
	}
	return out
}

// Test initializes on demand and reads the status element.
func (a *SCORM) Test(ctx context.Context, h *domain.ApiHandle) domain.Functional {
	if h == nil || h.Ref.Env == nil || len(h.Ref.Path) == 0 {
		return domain.FunctionalFailed
	}
	res := domain.NewResult(h)
	s := a.session(ctx, h, &res)
	if !s.initialize() {
		return domain.FunctionalFailed
	}
	if _, _, err := a.d.observe(s); err != nil {
		return domain.FunctionalFailed
	}
	return domain.FunctionalConfirmed
}

// ReadCMI returns the learner elements the host will give out.
func (a *SCORM) ReadCMI(ctx context.Context, h *domain.ApiHandle) (map[string]string, error) {
	if h == nil || h.Ref.Env == nil || len(h.Ref.Path) == 0 {
		return nil, domain.Errorf(domain.KindNotFound, "read cmi", "handle %s has no API object", locationOf(h))
	}
	res := domain.NewResult(h)
	s := a.session(ctx, h, &res)
	s.initialize()

	data := make(map[string]string, len(a.d.cmiElements))
	for _, element := range a.d.cmiElements {
		v, err := s.get(element)
		if err != nil {
			var thrown *host.ThrownError
			if errors.As(err, &thrown) || errors.Is(err, host.ErrAccessDenied) {
				return data, err
			}
			continue
		}
		data[element] = v
	}
	return data, nil
}

func (a *SCORM) session(ctx context.Context, h *domain.ApiHandle, res *domain.CompletionResult) *session {
	return &session{ctx: ctx, env: h.Ref.Env, path: h.Ref.Path, d: &a.d, res: res}
}

// session is one pass of calls against a run-time object. res may be nil
// for read-only passes.
type session struct {
	ctx  context.Context
	env  host.Environment
	path []string
	d    *dialect
	res  *domain.CompletionResult
}

func (s *session) invoke(method string, args ...string) (string, error) {
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a
	}
	ret, err := s.env.Invoke(s.ctx, s.path, method, vals...)
	if err != nil {
		return "", err
	}
	return host.Stringify(ret), nil
}

func (s *session) record(op domain.CompletionOperation) {
	if s.res == nil {
		return
	}
	s.res.Record(op)
	if !op.Success {
		s.res.Errorf("%s", op.String())
	}
}

// lastError reads the host's last error code and message. Failures here
// are swallowed; the caller already has a failure to report.
func (s *session) lastError() (string, string) {
	code, err := s.invoke(s.d.lastError)
	if err != nil {
		return "", ""
	}
	msg, _ := s.invoke(s.d.errorString, code)
	return strings.TrimSpace(code), msg
}

// call invokes a boolean-returning method and records the outcome.
func (s *session) call(method string, args ...string) bool {
	op := domain.CompletionOperation{Method: method, Args: args}
	ret, err := s.invoke(method, args...)
	op.Result = ret
	switch {
	case err != nil:
		op.Error = domain.E(domain.KindProtocolError, method, err).Error()
	case ret == "true":
		op.Success = true
	default:
		code, msg := s.lastError()
		op.Error = describeCode(code, msg)
	}
	s.record(op)
	return op.Success
}

// initialize starts the session unless the host reports it already runs.
func (s *session) initialize() bool {
	op := domain.CompletionOperation{Method: s.d.initialize, Args: []string{""}}
	ret, err := s.invoke(s.d.initialize, "")
	op.Result = ret
	switch {
	case err != nil:
		op.Error = domain.E(domain.KindProtocolError, s.d.initialize, err).Error()
	case ret == "true":
		op.Success = true
	default:
		code, msg := s.lastError()
		if code == s.d.alreadyInitialized {
			op.Success = true
			op.Result = "already initialized"
		} else {
			op.Error = describeCode(code, msg)
		}
	}
	s.record(op)
	return op.Success
}

func (s *session) set(element, value string) bool {
	return s.call(s.d.setValue, element, value)
}

// get reads element. An empty value with a non-zero last error is an error.
func (s *session) get(element string) (string, error) {
	v, err := s.invoke(s.d.getValue, element)
	if err != nil {
		return "", domain.E(domain.KindProtocolError, s.d.getValue, err)
	}
	if v == "" {
		if code, msg := s.lastError(); code != "" && code != "0" {
			return "", domain.Errorf(domain.KindProtocolError, s.d.getValue+"("+element+")", "%s", describeCode(code, msg))
		}
	}
	return v, nil
}

func describeCode(code, msg string) string {
	switch {
	case code == "" && msg == "":
		return "host returned false"
	case msg == "":
		return "error " + code
	}
	return fmt.Sprintf("error %s: %s", code, msg)
}
