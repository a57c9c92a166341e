package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/repository"
	"lmsbridge/internal/service"
)

type fakeRunner struct {
	got  []service.Command
	resp service.Response
}

func (f *fakeRunner) Handle(ctx context.Context, cmd service.Command) service.Response {
	f.got = append(f.got, cmd)
	resp := f.resp
	resp.Name = cmd.Name
	return resp
}

type fakeReports struct {
	reports map[string]*domain.ForceCompletionReport
	filter  repository.ReportFilter
}

func (f *fakeReports) GetReport(ctx context.Context, id string) (*domain.ForceCompletionReport, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "get report", "no report %q", id)
	}
	return r, nil
}

func (f *fakeReports) ListReports(ctx context.Context, filter repository.ReportFilter) ([]repository.ReportSummary, error) {
	f.filter = filter
	out := []repository.ReportSummary{}
	for id, r := range f.reports {
		out = append(out, repository.ReportSummary{ID: id, Success: r.Success})
	}
	return out, nil
}

func (f *fakeReports) ListOperations(ctx context.Context, reportID string) ([]domain.CompletionOperation, error) {
	return f.reports[reportID].Operations, nil
}

func newServer(t *testing.T, runner CommandRunner, reports ReportReader) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mux := http.NewServeMux()
	h := NewCompletionHandler(runner, reports, logger)
	h.Routes(mux, nil)
	return Chain(mux, Recover(logger), CORS, Logger(logger))
}

func do(t *testing.T, srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestCommandDispatches(t *testing.T) {
	runner := &fakeRunner{resp: service.Response{Handles: []domain.ApiHandle{{Kind: domain.APIScorm12, Location: "window.API"}}}}
	srv := newServer(t, runner, nil)

	rec := do(t, srv, http.MethodPost, "/api/command", `{"name":"forceCompletion","index":2,"request":{"status":"passed","score":80,"min_score":0,"max_score":100}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	require.Len(t, runner.got, 1)
	cmd := runner.got[0]
	assert.Equal(t, service.CmdForceCompletion, cmd.Name)
	assert.Equal(t, 2, cmd.Index)
	require.NotNil(t, cmd.Request)
	assert.Equal(t, domain.StatusPassed, cmd.Request.Status)
	assert.Nil(t, cmd.Options)

	var resp service.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, service.CmdForceCompletion, resp.Name)
	assert.Equal(t, "window.API", resp.Handles[0].Location)
}

func TestCommandFailureStillOK(t *testing.T) {
	runner := &fakeRunner{resp: service.Response{Error: "no completion API discovered", ErrorKind: domain.KindNotFound}}
	srv := newServer(t, runner, nil)

	rec := do(t, srv, http.MethodPost, "/api/command", `{"name":"getCmiData"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp service.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.KindNotFound, resp.ErrorKind)
}

func TestCommandRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"unknown field", `{"name":"testApi","bogus":1}`},
		{"no name", `{"index":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := do(t, newServer(t, runner, nil), http.MethodPost, "/api/command", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, runner.got)

			var e ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestReports(t *testing.T) {
	report := domain.NewForceCompletionReport("r1", "window", domain.DefaultRequest(), 0, time.Now())
	report.Success = true
	report.Operations = []domain.CompletionOperation{{Method: "Commit", Args: []string{""}, Success: true, Result: "true"}}
	reports := &fakeReports{reports: map[string]*domain.ForceCompletionReport{"r1": report}}
	srv := newServer(t, &fakeRunner{}, reports)

	rec := do(t, srv, http.MethodGet, "/api/reports?success=true&limit=5&since=2026-01-02T15:04:05Z&root=window", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []repository.ReportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.NotNil(t, reports.filter.Success)
	assert.True(t, *reports.filter.Success)
	assert.Equal(t, 5, reports.filter.Limit)
	assert.Equal(t, "window", reports.filter.Root)
	assert.Equal(t, 2026, reports.filter.Since.Year())

	rec = do(t, srv, http.MethodGet, "/api/reports/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.ForceCompletionReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "r1", got.ID)

	rec = do(t, srv, http.MethodGet, "/api/reports/r1/operations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ops []domain.CompletionOperation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ops))
	assert.Equal(t, report.Operations, ops)

	rec = do(t, srv, http.MethodGet, "/api/reports/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/reports/missing/operations", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportsBadQuery(t *testing.T) {
	srv := newServer(t, &fakeRunner{}, &fakeReports{})
	for _, q := range []string{"success=maybe", "since=yesterday", "limit=-1"} {
		rec := do(t, srv, http.MethodGet, "/api/reports?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestReportsWithoutArchive(t *testing.T) {
	srv := newServer(t, &fakeRunner{}, nil)
	rec := do(t, srv, http.MethodGet, "/api/reports", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	srv := Chain(panicky, Recover(logger), CORS, Logger(logger))

	rec := do(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, srv, http.MethodOptions, "/api/command", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// slowRunner takes delay to answer unless its context ends first.
type slowRunner struct {
	delay time.Duration
}

func (s slowRunner) Handle(ctx context.Context, cmd service.Command) service.Response {
	select {
	case <-time.After(s.delay):
		return service.Response{Name: cmd.Name}
	case <-ctx.Done():
		return service.Response{Name: cmd.Name, Error: ctx.Err().Error(), ErrorKind: domain.KindTimeout}
	}
}

func TestCommandOutlivesWriteTimeout(t *testing.T) {
	srv := httptest.NewUnstartedServer(newServer(t, slowRunner{delay: 600 * time.Millisecond}, nil))
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/api/command", "application/json", strings.NewReader(`{"name":"forceCompletion"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got service.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, service.CmdForceCompletion, got.Name)
	assert.Empty(t, got.Error)
}

func TestCommandTimeout(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mux := http.NewServeMux()
	h := NewCompletionHandler(slowRunner{delay: time.Minute}, nil, logger)
	h.SetCommandTimeout(20 * time.Millisecond)
	h.Routes(mux, nil)

	rec := do(t, mux, http.MethodPost, "/api/command", `{"name":"testApi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got service.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.KindTimeout, got.ErrorKind)
	assert.Contains(t, got.Error, "deadline exceeded")
}
