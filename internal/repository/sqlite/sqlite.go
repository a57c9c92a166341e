package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/repository"
)

// Repository implements repository.ReportRepository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.ReportRepository = (*Repository)(nil)

// New opens (or creates) the archive at dbPath. ":memory:" gives a
// private in-memory archive.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		requested_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 0,
		verified INTEGER NOT NULL DEFAULT 0,
		fallback_used INTEGER NOT NULL DEFAULT 0,
		succeeded_via JSON,
		summary TEXT NOT NULL DEFAULT '',
		data JSON NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS report_operations (
		report_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		method TEXT NOT NULL,
		args JSON,
		success INTEGER NOT NULL DEFAULT 0,
		result TEXT,
		error TEXT,
		PRIMARY KEY (report_id, seq),
		FOREIGN KEY (report_id) REFERENCES reports(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_reports_started ON reports(started_at);
	CREATE INDEX IF NOT EXISTS idx_reports_success ON reports(success);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return err
	}

	// Archives written before fallback tracking lack these columns.
	if err := r.addColumnIfNotExists("reports", "fallback_used", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	return r.addColumnIfNotExists("reports", "succeeded_via", "JSON")
}

// addColumnIfNotExists adds a column to an existing table for databases
// created by an older schema.
func (r *Repository) addColumnIfNotExists(table, column, definition string) error {
	rows, err := r.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to read %s schema: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("failed to scan %s schema: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = r.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// SaveReport stores report and its operation log. Saving the same ID
// again replaces the earlier copy.
func (r *Repository) SaveReport(ctx context.Context, report *domain.ForceCompletionReport) error {
	if report == nil || report.ID == "" {
		return domain.Errorf(domain.KindProtocolError, "save report", "report has no id")
	}

	args, err := reportInsertArgs(report)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, report.ID); err != nil {
		return fmt.Errorf("failed to clear report %s: %w", report.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reports (id, root, started_at, finished_at, requested_index, status,
			success, verified, fallback_used, succeeded_via, summary, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...); err != nil {
		return fmt.Errorf("failed to insert report %s: %w", report.ID, err)
	}

	opStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO report_operations (report_id, seq, method, args, success, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare operation statement: %w", err)
	}
	defer opStmt.Close()

	for i, op := range report.Operations {
		opArgs, err := operationInsertArgs(report.ID, i, op)
		if err != nil {
			return err
		}
		if _, err := opStmt.ExecContext(ctx, opArgs...); err != nil {
			return fmt.Errorf("failed to insert operation %d of %s: %w", i, report.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetReport returns the full report stored under id.
func (r *Repository) GetReport(ctx context.Context, id string) (*domain.ForceCompletionReport, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM reports WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, "get report", "no report %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}

	report := &domain.ForceCompletionReport{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report data: %w", err)
	}
	return report, nil
}

// ListReports returns summaries, newest first.
func (r *Repository) ListReports(ctx context.Context, filter repository.ReportFilter) ([]repository.ReportSummary, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Success != nil {
		where = append(where, "success = ?")
		args = append(args, boolToInt(*filter.Success))
	}
	if !filter.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if filter.Root != "" {
		where = append(where, "root = ?")
		args = append(args, filter.Root)
	}

	query := "SELECT " + reportColumns + " FROM reports"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	out := []repository.ReportSummary{}
	for rows.Next() {
		var row reportRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		summary, err := row.toSummary()
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// ListOperations returns the operation log of one report in call order.
func (r *Repository) ListOperations(ctx context.Context, reportID string) ([]domain.CompletionOperation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT method, args, success, result, error
		FROM report_operations WHERE report_id = ? ORDER BY seq
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	out := []domain.CompletionOperation{}
	for rows.Next() {
		var (
			op                  domain.CompletionOperation
			args, result, opErr sql.NullString
			success             int
		)
		if err := rows.Scan(&op.Method, &args, &success, &result, &opErr); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		if err := unmarshalJSONField(args, &op.Args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal operation args: %w", err)
		}
		op.Success = success != 0
		op.Result = nullToString(result)
		op.Error = nullToString(opErr)
		out = append(out, op)
	}
	return out, rows.Err()
}

// DeleteReportsBefore prunes reports started before the cutoff and
// returns how many were removed.
func (r *Repository) DeleteReportsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE started_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
