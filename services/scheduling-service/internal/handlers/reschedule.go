package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/backflowhq/platform/libs/metricsx"
	"github.com/backflowhq/platform/services/scheduling-service/internal/audit"
	"github.com/backflowhq/platform/services/scheduling-service/internal/model"
	"github.com/backflowhq/platform/services/scheduling-service/internal/outbox"
	"github.com/backflowhq/platform/services/scheduling-service/internal/schedule"
	"github.com/backflowhq/platform/services/scheduling-service/internal/storage"
)

type RescheduleHandler struct {
	repo       *storage.AppointmentRepository
	auditRepo  *audit.Repository
	outboxRepo *outbox.Repository
	validator  *schedule.Validator
	logger     *slog.Logger
	now        func() time.Time
}

func NewRescheduleHandler(repo *storage.AppointmentRepository, auditRepo *audit.Repository, outboxRepo *outbox.Repository, validator *schedule.Validator, logger *slog.Logger) *RescheduleHandler {
	return &RescheduleHandler{
		repo:       repo,
		auditRepo:  auditRepo,
		outboxRepo: outboxRepo,
		validator:  validator,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	CustomerID    string `json:"customer_id"`
	NewDate       string `json:"new_date"`
	NewTime       string `json:"new_time"`
	Reason        string `json:"reason"`
}

type rescheduleResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Zone          string `json:"zone"`
	OldDate       string `json:"old_date"`
	OldTime       string `json:"old_time"`
	NewDate       string `json:"new_date"`
	NewTime       string `json:"new_time"`
}

// Reschedule moves an appointment to a new slot. The customer must own the
// appointment; the new slot goes through the same business-hours and conflict
// validation as a fresh booking, with the appointment's current slot excluded
// from the conflict scan. The update, its audit row, and the outbox event
// commit in one transaction.
func (h *RescheduleHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	company := companyID(r)
	if company == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "X-Company-Id header required", nil)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json body", nil)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.AppointmentID == "" || req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "appointment_id and customer_id required", nil)
		return
	}

	newDate, err := schedule.ParseDate(strings.TrimSpace(req.NewDate))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error(), nil)
		return
	}
	newClock, err := schedule.ParseClock(strings.TrimSpace(req.NewTime))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error(), nil)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		metricsx.IncReschedule("error")
		writeError(w, http.StatusInternalServerError, kindInternal, "db error", nil)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, company, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			metricsx.IncReschedule("not_found")
			writeError(w, http.StatusNotFound, kindNotFound, "appointment not found", nil)
			return
		}
		metricsx.IncReschedule("error")
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to load appointment", nil)
		return
	}
	// Ownership mismatch reads the same as a missing appointment so customer
	// ids cannot be probed.
	if appt.CustomerID != req.CustomerID {
		metricsx.IncReschedule("not_found")
		writeError(w, http.StatusNotFound, kindNotFound, "appointment not found", nil)
		return
	}

	now := h.now()
	if err := schedule.CheckRescheduleEligibility(appt, now, newClock.At(newDate)); err != nil {
		h.writeEligibilityError(w, err)
		return
	}

	zone := schedule.ResolveZone(newDate)
	if err := h.validator.ValidateSlot(ctx, company, newDate, newClock, zone, appt.ID); err != nil {
		var outside *schedule.OutsideHoursError
		var taken *schedule.SlotTakenError
		switch {
		case errors.As(err, &outside):
			metricsx.IncReschedule("outside_hours")
			writeOutsideHours(w, outside)
		case errors.As(err, &taken):
			metricsx.IncReschedule("conflict")
			writeSlotTaken(w, taken)
		default:
			metricsx.IncReschedule("error")
			writeError(w, http.StatusInternalServerError, kindInternal, "slot validation failed", nil)
		}
		return
	}

	if err := applyReschedule(ctx, tx, h.repo, h.auditRepo, h.outboxRepo, appt, newDate, newClock, req.CustomerID, req.Reason); err != nil {
		if storage.IsConflict(err) {
			metricsx.IncReschedule("conflict")
			writeError(w, http.StatusConflict, kindSlotUnavailable, "slot was booked concurrently", map[string]any{
				"date": newDate.Format("2006-01-02"),
				"time": newClock.String(),
			})
			return
		}
		metricsx.IncReschedule("error")
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to reschedule appointment", nil)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		metricsx.IncReschedule("error")
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to commit", nil)
		return
	}

	metricsx.IncReschedule("success")
	writeJSON(w, http.StatusOK, rescheduleResponse{
		AppointmentID: appt.ID,
		Status:        string(model.StatusScheduled),
		Zone:          string(zone),
		OldDate:       appt.ScheduledDate.Format("2006-01-02"),
		OldTime:       appt.ScheduledTime,
		NewDate:       newDate.Format("2006-01-02"),
		NewTime:       newClock.String(),
	})
}

// applyReschedule performs the writes for a validated reschedule: the
// appointment update, the audit trail row, and the outbox event, all on the
// caller's transaction. Shared with the conflict resolver.
func applyReschedule(ctx context.Context, tx pgx.Tx, repo *storage.AppointmentRepository, auditRepo *audit.Repository, outboxRepo *outbox.Repository, appt model.Appointment, newDate time.Time, newClock schedule.Clock, actorID, reason string) error {
	if err := repo.Reschedule(ctx, tx, appt.CompanyID, appt.ID, newDate, newClock.String()); err != nil {
		return err
	}
	if err := auditRepo.Record(ctx, tx, audit.Entry{
		AppointmentID: appt.ID,
		CompanyID:     appt.CompanyID,
		ActorID:       actorID,
		OldDate:       appt.ScheduledDate,
		OldTime:       appt.ScheduledTime,
		NewDate:       newDate,
		NewTime:       newClock.String(),
		Reason:        reason,
	}); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"company_id":     appt.CompanyID,
		"customer_id":    appt.CustomerID,
		"customer_email": appt.CustomerEmail,
		"customer_phone": appt.CustomerPhone,
		"device_id":      appt.DeviceID,
		"old_date":       appt.ScheduledDate.Format("2006-01-02"),
		"old_time":       appt.ScheduledTime,
		"new_date":       newDate.Format("2006-01-02"),
		"new_time":       newClock.String(),
		"reason":         reason,
	})
	if err != nil {
		return err
	}
	return outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentRescheduled,
		Payload:       payload,
	})
}

func (h *RescheduleHandler) writeEligibilityError(w http.ResponseWriter, err error) {
	var notResched *schedule.NotReschedulableError
	var tooLate *schedule.TooLateError
	switch {
	case errors.As(err, &notResched):
		metricsx.IncReschedule("terminal_status")
		writeError(w, http.StatusBadRequest, kindCannotReschedule, err.Error(), map[string]any{
			"status": string(notResched.Status),
		})
	case errors.As(err, &tooLate):
		metricsx.IncReschedule("too_late")
		writeError(w, http.StatusBadRequest, kindTooLate, err.Error(), map[string]any{
			"hours_until_appointment": tooLate.Remaining.Hours(),
			"minimum_notice_hours":    schedule.MinNoticeWindow.Hours(),
		})
	case errors.Is(err, schedule.ErrNewTimeNotFuture):
		metricsx.IncReschedule("not_future")
		writeError(w, http.StatusBadRequest, kindInvalidNewTime, err.Error(), nil)
	default:
		metricsx.IncReschedule("error")
		writeError(w, http.StatusInternalServerError, kindInternal, "eligibility check failed", nil)
	}
}
