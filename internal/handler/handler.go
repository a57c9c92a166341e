package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"lmsbridge/internal/domain"
	"lmsbridge/internal/repository"
	"lmsbridge/internal/service"
)

// maxCommandBody bounds POST /api/command bodies
const maxCommandBody = 1 << 20

// DefaultCommandTimeout bounds one bus command, fallback cascade included.
const DefaultCommandTimeout = 2 * time.Minute

// replySlack is the time left to write the reply once a command stops.
const replySlack = 10 * time.Second

// CommandRunner executes host bus commands
type CommandRunner interface {
	Handle(ctx context.Context, cmd service.Command) service.Response
}

// ReportReader reads the report archive
type ReportReader interface {
	GetReport(ctx context.Context, id string) (*domain.ForceCompletionReport, error)
	ListReports(ctx context.Context, filter repository.ReportFilter) ([]repository.ReportSummary, error)
	ListOperations(ctx context.Context, reportID string) ([]domain.CompletionOperation, error)
}

// CompletionHandler handles command bus and report API requests
type CompletionHandler struct {
	commands       CommandRunner
	reports        ReportReader
	logger         *zap.Logger
	commandTimeout time.Duration
}

// NewCompletionHandler creates a new handler. reports may be nil when no
// archive is configured.
func NewCompletionHandler(commands CommandRunner, reports ReportReader, logger *zap.Logger) *CompletionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionHandler{commands: commands, reports: reports, logger: logger, commandTimeout: DefaultCommandTimeout}
}

// SetCommandTimeout bounds each command run by Command.
func (h *CompletionHandler) SetCommandTimeout(d time.Duration) {
	if d > 0 {
		h.commandTimeout = d
	}
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Routes registers the API on mux. events serves GET /events when set.
func (h *CompletionHandler) Routes(mux *http.ServeMux, events http.Handler) {
	mux.HandleFunc("POST /api/command", h.Command)
	mux.HandleFunc("GET /api/reports", h.ListReports)
	mux.HandleFunc("GET /api/reports/{id}", h.GetReport)
	mux.HandleFunc("GET /api/reports/{id}/operations", h.ListOperations)
	if events != nil {
		mux.Handle("GET /events", events)
	}
}

// Command runs one bus command. Command failures are part of the
// response body and still answer 200.
func (h *CompletionHandler) Command(w http.ResponseWriter, r *http.Request) {
	var cmd service.Command
	dec := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if cmd.Name == "" {
		h.writeError(w, "Command name required", "", http.StatusBadRequest)
		return
	}

	// The command may run longer than the server's WriteTimeout; the reply
	// deadline follows the command's own bound instead.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.commandTimeout + replySlack)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("write deadline not extended", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.commandTimeout)
	defer cancel()

	resp := h.commands.Handle(ctx, cmd)
	if resp.Error != "" {
		h.logger.Info("command failed",
			zap.String("name", string(cmd.Name)),
			zap.String("kind", string(resp.ErrorKind)),
			zap.String("error", resp.Error))
	}
	h.writeJSON(w, resp, http.StatusOK)
}

// ListReports returns archived report summaries. Query parameters:
// success=true|false, since=RFC3339, root, limit.
func (h *CompletionHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.writeError(w, "Report archive not configured", "", http.StatusServiceUnavailable)
		return
	}

	filter, err := parseReportFilter(r)
	if err != nil {
		h.writeError(w, "Invalid query", err.Error(), http.StatusBadRequest)
		return
	}

	reports, err := h.reports.ListReports(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list reports", zap.Error(err))
		h.writeError(w, "Failed to list reports", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, reports, http.StatusOK)
}

// GetReport returns one archived report
func (h *CompletionHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.writeError(w, "Report archive not configured", "", http.StatusServiceUnavailable)
		return
	}

	report, err := h.reports.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(w, "Failed to get report", err)
		return
	}
	h.writeJSON(w, report, http.StatusOK)
}

// ListOperations returns the operation log of one archived report
func (h *CompletionHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.writeError(w, "Report archive not configured", "", http.StatusServiceUnavailable)
		return
	}

	id := r.PathValue("id")
	if _, err := h.reports.GetReport(r.Context(), id); err != nil {
		h.writeLookupError(w, "Failed to get report", err)
		return
	}
	ops, err := h.reports.ListOperations(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list operations", zap.String("report", id), zap.Error(err))
		h.writeError(w, "Failed to list operations", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, ops, http.StatusOK)
}

func parseReportFilter(r *http.Request) (repository.ReportFilter, error) {
	q := r.URL.Query()
	filter := repository.ReportFilter{Root: q.Get("root")}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("success must be true or false")
		}
		filter.Success = &b
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("since must be an RFC3339 timestamp")
		}
		filter.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	return filter, nil
}

// Helper methods

func (h *CompletionHandler) writeLookupError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error(msg, zap.Error(err))
	h.writeError(w, msg, err.Error(), http.StatusInternalServerError)
}

func (h *CompletionHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode JSON", zap.Error(err))
	}
}

func (h *CompletionHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
