package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/repository"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// boolToInt stores booleans as 0/1
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ============================================================================
// Time Helpers
// ============================================================================

// timeLayout is fixed width so TEXT columns sort chronologically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// formatTime renders t in UTC, or "" for the zero time
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime reverses formatTime
func parseTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, ns.String)
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals a value to a nullable JSON string
// Returns empty NullString for nil or empty slices
func marshalToNull(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if s, ok := v.([]string); ok && len(s) == 0 {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to reports table:
// 1. Add field to reportRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update reportColumns constant - APPEND to end
// 4. Update toSummary() to map the new field
// 5. Update reportInsertArgs() and the INSERT in SaveReport
// 6. Add migration in sqlite.go migrate() using addColumnIfNotExists()
//
// CRITICAL: Column order must match between reportColumns, scanArgs() and
// every SELECT using reportColumns.

// ============================================================================
// Report Row Scanner
// ============================================================================

const reportColumns = `id, root, started_at, finished_at, requested_index, status,
	success, verified, fallback_used, succeeded_via, summary`

// reportRow holds the indexed columns of a report query for scanning
type reportRow struct {
	ID               string
	Root             string
	StartedAt        sql.NullString
	FinishedAt       sql.NullString
	RequestedIndex   int
	Status           string
	Success          int
	Verified         int
	FallbackUsed     int
	SucceededViaJSON sql.NullString
	Summary          string
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match reportColumns order exactly
func (r *reportRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,               // 1
		&r.Root,             // 2
		&r.StartedAt,        // 3
		&r.FinishedAt,       // 4
		&r.RequestedIndex,   // 5
		&r.Status,           // 6
		&r.Success,          // 7
		&r.Verified,         // 8
		&r.FallbackUsed,     // 9
		&r.SucceededViaJSON, // 10
		&r.Summary,          // 11
	}
}

// toSummary converts the scanned row to a repository.ReportSummary
func (r *reportRow) toSummary() (repository.ReportSummary, error) {
	s := repository.ReportSummary{
		ID:             r.ID,
		Root:           r.Root,
		RequestedIndex: r.RequestedIndex,
		Status:         domain.Status(r.Status),
		Success:        r.Success != 0,
		Verified:       r.Verified != 0,
		FallbackUsed:   r.FallbackUsed != 0,
		SucceededVia:   []string{},
		Summary:        r.Summary,
	}

	var err error
	if s.StartedAt, err = parseTime(r.StartedAt); err != nil {
		return s, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if s.FinishedAt, err = parseTime(r.FinishedAt); err != nil {
		return s, fmt.Errorf("failed to parse finished_at: %w", err)
	}
	if err := unmarshalJSONField(r.SucceededViaJSON, &s.SucceededVia); err != nil {
		return s, fmt.Errorf("failed to unmarshal succeeded_via: %w", err)
	}
	return s, nil
}

// ============================================================================
// Insert Argument Builders
// ============================================================================

// reportInsertArgs returns the INSERT arguments for report, in the order
// of the INSERT in SaveReport
func reportInsertArgs(report *domain.ForceCompletionReport) ([]interface{}, error) {
	via, err := marshalToNull(report.SucceededVia)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal succeeded_via: %w", err)
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	return []interface{}{
		report.ID,
		report.Root,
		formatTime(report.StartedAt),
		stringToNull(formatTime(report.FinishedAt)),
		report.RequestedIndex,
		string(report.Request.Status),
		boolToInt(report.Success),
		boolToInt(report.Verified),
		boolToInt(report.FallbackUsed),
		via,
		report.Summary(),
		string(data),
	}, nil
}

// operationInsertArgs returns the INSERT arguments for one operation
func operationInsertArgs(reportID string, seq int, op domain.CompletionOperation) ([]interface{}, error) {
	args, err := marshalToNull(op.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal operation args: %w", err)
	}
	return []interface{}{
		reportID,
		seq,
		op.Method,
		args,
		boolToInt(op.Success),
		stringToNull(op.Result),
		stringToNull(op.Error),
	}, nil
}
