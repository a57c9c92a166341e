package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newReport builds a finished report started offset after epoch
func newReport(id string, offset time.Duration, success bool) *domain.ForceCompletionReport {
	req := domain.DefaultRequest()
	r := domain.NewForceCompletionReport(id, "course", req, 0, epoch.Add(offset))
	r.FinishedAt = r.StartedAt.Add(150 * time.Millisecond)
	r.Success = success
	r.Verified = success
	if success {
		r.SucceededVia = []string{"window.API"}
	} else {
		r.Errors = []string{"no completion API discovered"}
	}
	r.Operations = []domain.CompletionOperation{
		{Method: "LMSInitialize", Args: []string{""}, Success: true, Result: "true"},
		{Method: "LMSSetValue", Args: []string{"cmi.core.lesson_status", "passed"}, Success: success, Result: "true", Error: errorIf(!success, "error 403: Element is read only")},
		{Method: "LMSCommit", Success: true, Result: "true"},
	}
	return r
}

func errorIf(cond bool, msg string) string {
	if cond {
		return msg
	}
	return ""
}

// ============================================================================
// Tests
// ============================================================================

func TestSaveAndGetReport(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	want := newReport("r1", 0, true)
	assertNoError(t, repo.SaveReport(ctx, want))

	got, err := repo.GetReport(ctx, "r1")
	assertNoError(t, err)
	assertEqual(t, want.ID, got.ID)
	assertEqual(t, want.Success, got.Success)
	assertEqual(t, want.SucceededVia, got.SucceededVia)
	assertEqual(t, want.Operations, got.Operations)
	assertEqual(t, want.Request.Status, got.Request.Status)
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Fatalf("started_at: expected %v, got %v", want.StartedAt, got.StartedAt)
	}
}

func TestGetReportNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetReport(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveReportRejectsMissingID(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SaveReport(context.Background(), newReport("", 0, true))
	if err == nil {
		t.Fatal("expected error for report without id")
	}
}

func TestSaveReportReplaces(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newReport("r1", 0, false)
	assertNoError(t, repo.SaveReport(ctx, first))

	second := newReport("r1", 0, true)
	second.Operations = second.Operations[:1]
	assertNoError(t, repo.SaveReport(ctx, second))

	got, err := repo.GetReport(ctx, "r1")
	assertNoError(t, err)
	assertEqual(t, true, got.Success)

	ops, err := repo.ListOperations(ctx, "r1")
	assertNoError(t, err)
	assertEqual(t, 1, len(ops))

	all, err := repo.ListReports(ctx, repository.ReportFilter{})
	assertNoError(t, err)
	assertEqual(t, 1, len(all))
}

func TestListOperationsInOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	report := newReport("r1", 0, false)
	assertNoError(t, repo.SaveReport(ctx, report))

	ops, err := repo.ListOperations(ctx, "r1")
	assertNoError(t, err)
	assertEqual(t, report.Operations, ops)
	assertEqual(t, "error 403: Element is read only", ops[1].Error)
}

func TestListReportsFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.SaveReport(ctx, newReport("old", 0, true)))
	assertNoError(t, repo.SaveReport(ctx, newReport("failed", time.Hour, false)))
	assertNoError(t, repo.SaveReport(ctx, newReport("new", 2*time.Hour, true)))

	yes, no := true, false
	tests := []struct {
		name   string
		filter repository.ReportFilter
		want   []string
	}{
		{"all newest first", repository.ReportFilter{}, []string{"new", "failed", "old"}},
		{"successful", repository.ReportFilter{Success: &yes}, []string{"new", "old"}},
		{"failed", repository.ReportFilter{Success: &no}, []string{"failed"}},
		{"since", repository.ReportFilter{Since: epoch.Add(30 * time.Minute)}, []string{"new", "failed"}},
		{"limit", repository.ReportFilter{Limit: 1}, []string{"new"}},
		{"other root", repository.ReportFilter{Root: "elsewhere"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListReports(ctx, tt.filter)
			assertNoError(t, err)
			ids := []string{}
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			assertEqual(t, tt.want, ids)
		})
	}
}

func TestListReportsSummaryFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	report := newReport("r1", 0, true)
	report.FallbackUsed = true
	assertNoError(t, repo.SaveReport(ctx, report))

	got, err := repo.ListReports(ctx, repository.ReportFilter{})
	assertNoError(t, err)
	assertEqual(t, 1, len(got))

	s := got[0]
	assertEqual(t, domain.StatusCompleted, s.Status)
	assertEqual(t, true, s.FallbackUsed)
	assertEqual(t, []string{"window.API"}, s.SucceededVia)
	assertEqual(t, "completion reported, verified", s.Summary)
	if !s.FinishedAt.Equal(report.FinishedAt) {
		t.Fatalf("finished_at: expected %v, got %v", report.FinishedAt, s.FinishedAt)
	}
}

func TestDeleteReportsBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.SaveReport(ctx, newReport("old", 0, true)))
	assertNoError(t, repo.SaveReport(ctx, newReport("new", 2*time.Hour, true)))

	n, err := repo.DeleteReportsBefore(ctx, epoch.Add(time.Hour))
	assertNoError(t, err)
	assertEqual(t, int64(1), n)

	ops, err := repo.ListOperations(ctx, "old")
	assertNoError(t, err)
	assertEqual(t, 0, len(ops))

	_, err = repo.GetReport(ctx, "new")
	assertNoError(t, err)
}

func TestReopenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.db")
	ctx := context.Background()

	repo, err := New(path)
	assertNoError(t, err)
	assertNoError(t, repo.SaveReport(ctx, newReport("r1", 0, true)))
	assertNoError(t, repo.Close())

	repo, err = New(path)
	assertNoError(t, err)
	defer repo.Close()

	got, err := repo.GetReport(ctx, "r1")
	assertNoError(t, err)
	assertEqual(t, "r1", got.ID)
}
