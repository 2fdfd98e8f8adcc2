package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/backflowhq/platform/services/scheduling-service/internal/audit"
	"github.com/backflowhq/platform/services/scheduling-service/internal/report"
	"github.com/backflowhq/platform/services/scheduling-service/internal/storage"
)

type ReportHandler struct {
	repo      *storage.AppointmentRepository
	auditRepo *audit.Repository
	logger    *slog.Logger
}

func NewReportHandler(repo *storage.AppointmentRepository, auditRepo *audit.Repository, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{repo: repo, auditRepo: auditRepo, logger: logger}
}

// ScheduleExport streams the compliance workbook for a date window: every
// appointment in the window plus the reschedule audit trail.
func (h *ReportHandler) ScheduleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	company := companyID(r)
	if company == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "X-Company-Id header required", nil)
		return
	}

	from, to, err := parseWindow(r, 30)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error(), nil)
		return
	}

	appts, err := h.repo.ListWindow(r.Context(), company, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to load appointments", nil)
		return
	}
	entries, err := h.auditRepo.ListWindow(r.Context(), company, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to load audit trail", nil)
		return
	}

	// Build in memory first so a mid-render failure still yields a clean
	// JSON error instead of a truncated workbook.
	var buf bytes.Buffer
	if err := report.ScheduleWorkbook(&buf, appts, entries); err != nil {
		h.logger.Error("schedule export failed", "err", err)
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to build workbook", nil)
		return
	}

	filename := fmt.Sprintf("schedule_%s_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
