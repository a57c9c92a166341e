package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lmsbridge/internal/codec"
	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

// maxBody caps how much of an HTTP response is read.
const maxBody = 1 << 20

// XAPI sends one completion statement, to the LRS directly for launches
// that carry an endpoint, otherwise through the page's xAPI library.
type XAPI struct {
	opts  Options
	cfg   XAPIConfig
	newID func() string
}

// NewXAPI returns the xAPI adapter.
func NewXAPI(opts Options, cfg XAPIConfig) *XAPI {
	return &XAPI{opts: opts.withDefaults(), cfg: cfg, newID: uuid.NewString}
}

// Kind returns the protocol family.
func (a *XAPI) Kind() domain.ApiKind { return domain.APIXAPI }

// Name returns the display name.
func (a *XAPI) Name() string { return "xAPI" }

// Complete fails fast without an identified actor; no statement is sent.
func (a *XAPI) Complete(ctx context.Context, h *domain.ApiHandle, req domain.CompletionRequest) domain.CompletionResult {
	if h == nil || (!hasLibrary(h) && a.endpoint(h) == nil) {
		return missingRef(h, "xAPI library or LRS endpoint")
	}
	res := domain.NewResult(h)

	actor, source, err := resolveActor(ctx, h, a.cfg)
	if err != nil {
		return res.Fail(err)
	}
	a.opts.Logger.Debug("actor resolved", zap.String("location", h.Location), zap.String("source", source))

	now := a.opts.Now()
	st := codec.BuildStatement(codec.StatementInput{
		ID:           a.newID(),
		Actor:        *actor,
		ActivityID:   a.activityID(ctx, h),
		ActivityName: a.cfg.ActivityName,
		Registration: registrationOf(h),
		Request:      req,
		Duration:     req.Duration(now),
		Timestamp:    now,
	})

	if hasLibrary(h) {
		a.sendLibrary(ctx, h, st, &res)
	} else {
		a.sendLRS(ctx, a.endpoint(h), st, &res)
	}

	res.Success = len(res.Errors) == 0
	return res
}

// Verify is optimistic: reading statements back means querying an LRS
// this tool does not own.
func (a *XAPI) Verify(_ context.Context, h *domain.ApiHandle, _ domain.Status) domain.VerificationOutcome {
	return domain.Optimistic(h)
}

// Test fetches <endpoint>/about for LRS handles. Library handles cannot be
// tested without sending a statement.
func (a *XAPI) Test(ctx context.Context, h *domain.ApiHandle) domain.Functional {
	lrs := a.endpoint(h)
	if lrs == nil || hasLibrary(h) {
		return domain.FunctionalUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(lrs.Endpoint, "/")+"/about", nil)
	if err != nil {
		return domain.FunctionalFailed
	}
	req.Header.Set("X-Experience-API-Version", codec.XAPIVersion)
	resp, err := a.opts.Client.Do(req)
	if err != nil {
		return domain.FunctionalFailed
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))

	if resp.StatusCode/100 != 2 {
		return domain.FunctionalFailed
	}
	return domain.FunctionalConfirmed
}

// endpoint returns the LRS to POST to: the handle's own, then configuration.
func (a *XAPI) endpoint(h *domain.ApiHandle) *domain.LRSConfig {
	if h == nil {
		return nil
	}
	if h.Ref.LRS != nil && h.Ref.LRS.Endpoint != "" {
		return h.Ref.LRS
	}
	if a.cfg.Endpoint != "" {
		return &domain.LRSConfig{Endpoint: a.cfg.Endpoint, Auth: a.cfg.Authorization()}
	}
	return nil
}

func (a *XAPI) activityID(ctx context.Context, h *domain.ApiHandle) string {
	if h.Ref.LRS != nil && h.Ref.LRS.ActivityID != "" {
		return h.Ref.LRS.ActivityID
	}
	if a.cfg.ActivityID != "" {
		return a.cfg.ActivityID
	}
	if h.Ref.Env != nil {
		if loc, err := h.Ref.Env.Location(ctx); err == nil {
			if i := strings.IndexAny(loc, "?#"); i >= 0 {
				loc = loc[:i]
			}
			return loc
		}
	}
	return "urn:lmsbridge:activity:" + h.Location
}

func hasLibrary(h *domain.ApiHandle) bool {
	return len(h.Ref.Path) > 0 && h.Ref.Env != nil
}

func registrationOf(h *domain.ApiHandle) string {
	if h.Ref.LRS != nil {
		return h.Ref.LRS.Registration
	}
	return ""
}

// sendLibrary hands the statement to sendStatement(stmt, cb) or
// saveStatement(stmt, {callback}). The callback, a non-nil return value, a
// throw and the timeout all race; the first one settles the send.
func (a *XAPI) sendLibrary(ctx context.Context, h *domain.ApiHandle, st codec.Statement, res *domain.CompletionResult) {
	method := "sendStatement"
	if !slices.Contains(h.Methods, method) && slices.Contains(h.Methods, "saveStatement") {
		method = "saveStatement"
	}
	op := domain.CompletionOperation{Method: method, Args: []string{st.ID}}

	payload, err := st.Map()
	if err != nil {
		op.Error = err.Error()
		res.Record(op)
		res.Errorf("%s", op.String())
		return
	}

	guard := newSettleOnce()
	cb := host.Callback(func(args ...any) {
		var v any
		if len(args) > 0 {
			v = args[0]
		}
		guard.resolve(signal{source: "callback", value: v})
	})
	var cbArg any = cb
	if method == "saveStatement" {
		cbArg = map[string]any{"callback": cb}
	}

	ret, err := h.Ref.Env.Invoke(ctx, h.Ref.Path, method, payload, cbArg)
	switch {
	case err != nil:
		guard.resolve(signal{source: "throw", err: err})
	case ret != nil:
		guard.resolve(signal{source: "return", value: ret})
	}
	s := guard.wait(ctx, a.opts.Timeout)

	op.Result = s.source
	switch {
	case s.source == "timeout":
		op.Error = domain.Errorf(domain.KindTimeout, method, "no response within %s", a.opts.Timeout).Error()
	case s.err != nil:
		op.Error = domain.E(domain.KindProtocolError, method, s.err).Error()
	default:
		if code, ok := statusCode(s.value); ok {
			op.Result = s.source + " " + strconv.Itoa(code)
			if code/100 != 2 {
				op.Error = domain.Errorf(domain.KindProtocolError, method, "LRS answered %d", code).Error()
				break
			}
		}
		op.Success = true
	}
	res.Record(op)
	if !op.Success {
		res.Errorf("%s", op.String())
	}
}

// statusCode pulls an HTTP status out of a library response object.
func statusCode(v any) (int, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return 0, false
	}
	switch n := m["status"].(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// sendLRS POSTs the statement to <endpoint>/statements, first trading the
// cmi5 fetch URL for an auth token when needed.
func (a *XAPI) sendLRS(ctx context.Context, lrs *domain.LRSConfig, st codec.Statement, res *domain.CompletionResult) {
	auth := authorizationHeader(lrs.Auth)
	if auth == "" && lrs.FetchURL != "" {
		token, err := a.fetchToken(ctx, lrs.FetchURL)
		op := domain.CompletionOperation{Method: "POST fetch", Args: []string{lrs.FetchURL}}
		if err != nil {
			op.Error = err.Error()
			res.Record(op)
			res.Errorf("%s", op.String())
			return
		}
		op.Success, op.Result = true, "auth-token"
		res.Record(op)
		auth = "Basic " + token
	}
	if auth == "" {
		auth = a.cfg.Authorization()
	}

	body, err := json.Marshal(st)
	if err != nil {
		res.Errorf("encode statement: %v", err)
		return
	}

	target := strings.TrimRight(lrs.Endpoint, "/") + "/statements"
	op := domain.CompletionOperation{Method: "POST statements", Args: []string{target, st.ID}}

	code, respBody, err := httpPost(ctx, a.opts, target, "application/json", body, map[string]string{
		"X-Experience-API-Version": codec.XAPIVersion,
		"Authorization":            auth,
	})
	switch {
	case err != nil:
		op.Error = err.Error()
	case code/100 != 2:
		op.Result = strconv.Itoa(code)
		op.Error = domain.Errorf(domain.KindProtocolError, "POST statements", "LRS answered %d: %s", code, snippet(respBody)).Error()
	default:
		op.Result = strconv.Itoa(code)
		op.Success = true
	}
	res.Record(op)
	if !op.Success {
		res.Errorf("%s", op.String())
	}
}

// fetchToken performs the cmi5 fetch: a POST that returns {"auth-token": ...}.
func (a *XAPI) fetchToken(ctx context.Context, fetchURL string) (string, error) {
	code, body, err := httpPost(ctx, a.opts, fetchURL, "application/json", nil, nil)
	if err != nil {
		return "", err
	}
	if code/100 != 2 {
		return "", domain.Errorf(domain.KindProtocolError, "fetch", "fetch URL answered %d", code)
	}
	var out struct {
		Token     string `json:"auth-token"`
		ErrorCode *int   `json:"error-code"`
		ErrorText string `json:"error-text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", domain.E(domain.KindProtocolError, "fetch", fmt.Errorf("decode token: %w", err))
	}
	if out.ErrorCode != nil || out.Token == "" {
		return "", domain.Errorf(domain.KindProtocolError, "fetch", "no auth-token: %s", out.ErrorText)
	}
	return out.Token, nil
}

// httpPost runs one bounded HTTP POST. Deadline expiry becomes a Timeout
// error.
func httpPost(ctx context.Context, opts Options, target, contentType string, body []byte, headers map[string]string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, domain.E(domain.KindProtocolError, "POST "+target, err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := opts.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, nil, domain.E(domain.KindTimeout, "POST "+target, err)
		}
		return 0, nil, domain.E(domain.KindProtocolError, "POST "+target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, domain.E(domain.KindProtocolError, "read "+target, err)
	}
	return resp.StatusCode, data, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
