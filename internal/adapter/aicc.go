package adapter

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"lmsbridge/internal/codec"
	"lmsbridge/internal/domain"
)

// hacpVersion is the AICC CMI version sent with every command.
const hacpVersion = "4.0"

// AICC speaks HACP to the endpoint from the launch URL.
type AICC struct {
	opts Options
}

// NewAICC returns the AICC/HACP adapter.
func NewAICC(opts Options) *AICC {
	return &AICC{opts: opts.withDefaults()}
}

// Kind returns the protocol family.
func (a *AICC) Kind() domain.ApiKind { return domain.APIAICC }

// Name returns the display name.
func (a *AICC) Name() string { return "AICC HACP" }

// Complete sends PutParam then ExitAU. Each must answer error=0; an HTTP
// 200 alone is not success.
func (a *AICC) Complete(ctx context.Context, h *domain.ApiHandle, req domain.CompletionRequest) domain.CompletionResult {
	if h == nil || h.Ref.AICC == nil {
		return missingRef(h, "AICC session")
	}
	res := domain.NewResult(h)
	sess := h.Ref.AICC

	core := &codec.INISection{Name: "core"}
	core.Set("lesson_status", domain.AICCStatusCode(req.Status)).
		Set("score", domain.FormatScore(req.RawScore())).
		Set("time", domain.AICCTime(req.Duration(a.opts.Now())))

	data, err := codec.EncodeINI(core)
	if err != nil {
		op := domain.CompletionOperation{Method: "PutParam", Args: []string{sess.SessionID}, Error: domain.E(domain.KindProtocolError, "encode aicc_data", err).Error()}
		res.Record(op)
		res.Errorf("%s", op.String())
	} else {
		a.command(ctx, sess, "PutParam", data, &res)
	}
	a.command(ctx, sess, "ExitAU", "", &res)

	res.Success = len(res.Errors) == 0
	return res
}

// Verify re-issues GetParam and compares [core] lesson_status.
func (a *AICC) Verify(ctx context.Context, h *domain.ApiHandle, want domain.Status) domain.VerificationOutcome {
	out := domain.VerificationOutcome{Meaningful: true, Location: locationOf(h)}
	if h == nil || h.Ref.AICC == nil {
		out.Error = domain.Errorf(domain.KindNotFound, "verify", "no AICC session").Error()
		return out
	}

	resp, err := a.getParam(ctx, h.Ref.AICC)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	status := resp.Get("core.lesson_status")
	if status == "" {
		status = resp.Get("lesson_status")
	}
	// lesson_status may carry an exit flag: "p,a".
	status, _, _ = strings.Cut(status, ",")
	out.ObservedStatus = domain.NormalizeObserved(status)
	out.ObservedScore = resp.Get("core.score")
	out.Verified = domain.Satisfies(want, out.ObservedStatus)
	if !out.Verified {
		out.Error = domain.Errorf(domain.KindVerificationMismatch, "verify",
			"requested %s, HACP reports %q", domain.CoerceScorm12(want), status).Error()
	}
	return out
}

// Test issues GetParam.
func (a *AICC) Test(ctx context.Context, h *domain.ApiHandle) domain.Functional {
	if h == nil || h.Ref.AICC == nil {
		return domain.FunctionalFailed
	}
	if _, err := a.getParam(ctx, h.Ref.AICC); err != nil {
		return domain.FunctionalFailed
	}
	return domain.FunctionalConfirmed
}

// ReadCMI returns the GetParam values.
func (a *AICC) ReadCMI(ctx context.Context, h *domain.ApiHandle) (map[string]string, error) {
	if h == nil || h.Ref.AICC == nil {
		return nil, domain.Errorf(domain.KindNotFound, "read cmi", "handle %s has no AICC session", locationOf(h))
	}
	resp, err := a.getParam(ctx, h.Ref.AICC)
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (a *AICC) getParam(ctx context.Context, sess *domain.AICCSession) (*codec.HACPResponse, error) {
	resp, err := a.send(ctx, sess, "GetParam", "")
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, hacpError("GetParam", resp)
	}
	return resp, nil
}

// command sends one HACP command and records it.
func (a *AICC) command(ctx context.Context, sess *domain.AICCSession, cmd, data string, res *domain.CompletionResult) bool {
	op := domain.CompletionOperation{Method: cmd, Args: []string{sess.SessionID}}
	resp, err := a.send(ctx, sess, cmd, data)
	switch {
	case err != nil:
		op.Error = err.Error()
	case !resp.OK():
		op.Result = resp.Values["error"]
		op.Error = hacpError(cmd, resp).Error()
	default:
		op.Success = true
		op.Result = "error=0"
		if resp.ErrorText != "" {
			op.Result += " " + resp.ErrorText
		}
	}
	res.Record(op)
	if !op.Success {
		res.Errorf("%s", op.String())
	}
	return op.Success
}

// send POSTs a form-encoded HACP command and parses the body whatever the
// HTTP status.
func (a *AICC) send(ctx context.Context, sess *domain.AICCSession, cmd, data string) (*codec.HACPResponse, error) {
	form := url.Values{
		"command":    {cmd},
		"version":    {hacpVersion},
		"session_id": {sess.SessionID},
	}
	if data != "" {
		form.Set("aicc_data", data)
	}

	code, body, err := httpPost(ctx, a.opts, sess.URL, "application/x-www-form-urlencoded", []byte(form.Encode()), nil)
	if err != nil {
		return nil, err
	}
	resp := codec.ParseHACPResponse(string(body))
	if code/100 != 2 && resp.OK() {
		return nil, domain.Errorf(domain.KindProtocolError, cmd, "HTTP %d", code)
	}
	return resp, nil
}

func hacpError(cmd string, resp *codec.HACPResponse) error {
	if !resp.HasError {
		return domain.Errorf(domain.KindProtocolError, cmd, "response has no error field")
	}
	msg := "error " + strconv.Itoa(resp.ErrorCode)
	if resp.ErrorText != "" {
		msg += ": " + resp.ErrorText
	}
	return domain.Errorf(domain.KindProtocolError, cmd, "%s", msg)
}
