package repository

import (
	"context"
	"time"

	"lmsbridge/internal/domain"
)

// ReportSummary is the indexed part of an archived report.
type ReportSummary struct {
	ID             string        `json:"id"`
	Root           string        `json:"root"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	RequestedIndex int           `json:"requested_index"`
	Status         domain.Status `json:"status"`
	Success        bool          `json:"success"`
	Verified       bool          `json:"verified"`
	FallbackUsed   bool          `json:"fallback_used"`
	SucceededVia   []string      `json:"succeeded_via"`
	Summary        string        `json:"summary"`
}

// ReportFilter narrows ListReports. Zero values do not filter.
type ReportFilter struct {
	Success *bool
	Since   time.Time
	Root    string
	Limit   int
}

// ReportRepository archives ForceCompletion reports. The archive is an
// audit log; nothing reads course state back from it.
type ReportRepository interface {
	// Write operations
	SaveReport(ctx context.Context, report *domain.ForceCompletionReport) error
	DeleteReportsBefore(ctx context.Context, before time.Time) (int64, error)

	// Read operations
	GetReport(ctx context.Context, id string) (*domain.ForceCompletionReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]ReportSummary, error)
	ListOperations(ctx context.Context, reportID string) ([]domain.CompletionOperation, error)

	// Close releases resources
	Close() error
}
