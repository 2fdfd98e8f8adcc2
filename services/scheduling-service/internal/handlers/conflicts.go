package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// Conflict resolution actions accepted by the batch endpoint.
const (
	actionReschedule = "reschedule"
	actionShorten    = "shorten"
	actionNotify     = "notify"
	actionCancel     = "cancel"
)

// minShortenMinutes is the floor for the shorten action; a backflow test
// cannot realistically finish faster.
const minShortenMinutes = 15

type ConflictHandler struct {
	repo       *storage.AppointmentRepository
	auditRepo  *audit.Repository
	outboxRepo *outbox.Repository
	validator  *schedule.Validator
	logger     *slog.Logger
}

func NewConflictHandler(repo *storage.AppointmentRepository, auditRepo *audit.Repository, outboxRepo *outbox.Repository, validator *schedule.Validator, logger *slog.Logger) *ConflictHandler {
	return &ConflictHandler{
		repo:       repo,
		auditRepo:  auditRepo,
		outboxRepo: outboxRepo,
		validator:  validator,
		logger:     logger,
	}
}

type overlapGroupItem struct {
	Date         string            `json:"date"`
	Appointments []appointmentItem `json:"appointments"`
}

type overCapacityItem struct {
	Date     string `json:"date"`
	Zone     string `json:"zone"`
	Count    int    `json:"count"`
	Capacity int    `json:"capacity"`
}

type conflictReportResponse struct {
	From         string             `json:"from"`
	To           string             `json:"to"`
	Overlaps     []overlapGroupItem `json:"overlaps"`
	OverCapacity []overCapacityItem `json:"over_capacity"`
}

// Report scans [from, to] for overlapping bookings and over-capacity days.
// Defaults to the next seven days when the window is omitted.
func (h *ConflictHandler) Report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	company := companyID(r)
	if company == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "X-Company-Id header required", nil)
		return
	}

	from, to, err := parseWindow(r, 7)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error(), nil)
		return
	}

	appts, err := h.repo.ListWindow(r.Context(), company, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to load appointments", nil)
		return
	}

	overlaps := schedule.FindOverlaps(appts)
	overCap := schedule.FindOverCapacity(appts)
	metricsx.AddConflictsDetected(len(overlaps) + len(overCap))

	resp := conflictReportResponse{
		From:         from.Format("2006-01-02"),
		To:           to.Format("2006-01-02"),
		Overlaps:     make([]overlapGroupItem, 0, len(overlaps)),
		OverCapacity: make([]overCapacityItem, 0, len(overCap)),
	}
	for _, g := range overlaps {
		items := make([]appointmentItem, 0, len(g.Appointments))
		for _, a := range g.Appointments {
			items = append(items, appointmentItemFrom(a))
		}
		resp.Overlaps = append(resp.Overlaps, overlapGroupItem{
			Date:         g.Date.Format("2006-01-02"),
			Appointments: items,
		})
	}
	for _, d := range overCap {
		resp.OverCapacity = append(resp.OverCapacity, overCapacityItem{
			Date:     d.Date.Format("2006-01-02"),
			Zone:     string(d.Zone),
			Count:    d.Count,
			Capacity: d.Capacity,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type resolutionItem struct {
	AppointmentID   string `json:"appointment_id"`
	Action          string `json:"action"`
	NewDate         string `json:"new_date,omitempty"`
	NewTime         string `json:"new_time,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Message         string `json:"message,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type resolveRequest struct {
	Resolutions []resolutionItem `json:"resolutions"`
}

type resolutionResult struct {
	AppointmentID string `json:"appointment_id"`
	Action        string `json:"action"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
}

type resolveResponse struct {
	Results     []resolutionResult `json:"results"`
	Applied     int                `json:"applied"`
	Failed      int                `json:"failed"`
	SuccessRate float64            `json:"success_rate"`
}

// Resolve applies a batch of operator resolutions. Each resolution runs in
// its own transaction so one failure never rolls back the rest; the response
// reports per-item outcomes and the aggregate success rate. Operator
// reschedules bypass the 24-hour customer notice rule but still go through
// business-hours and conflict validation.
func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	company := companyID(r)
	if company == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "X-Company-Id header required", nil)
		return
	}
	actorID := strings.TrimSpace(r.Header.Get("X-Actor-Id"))

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json body", nil)
		return
	}
	if len(req.Resolutions) == 0 {
		writeError(w, http.StatusBadRequest, kindValidation, "resolutions required", nil)
		return
	}
	if len(req.Resolutions) > 100 {
		writeError(w, http.StatusBadRequest, kindValidation, "at most 100 resolutions per request", nil)
		return
	}

	results := make([]resolutionResult, 0, len(req.Resolutions))
	applied := 0
	for _, item := range req.Resolutions {
		res := resolutionResult{
			AppointmentID: strings.TrimSpace(item.AppointmentID),
			Action:        strings.TrimSpace(item.Action),
		}
		err := h.applyResolution(r.Context(), company, actorID, item)
		if err == nil {
			res.Success = true
			applied++
			metricsx.IncResolution(res.Action, "success")
		} else {
			res.Error = err.Error()
			res.ErrorKind = resolutionErrorKind(err)
			metricsx.IncResolution(res.Action, "failure")
			h.logger.Warn("conflict resolution failed",
				"appointment_id", res.AppointmentID, "action", res.Action, "err", err)
		}
		results = append(results, res)
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		Results:     results,
		Applied:     applied,
		Failed:      len(results) - applied,
		SuccessRate: float64(applied) / float64(len(results)),
	})
}

var (
	errUnknownAction  = errors.New("unknown action")
	errMissingFields  = errors.New("missing fields for action")
	errTerminalStatus = errors.New("appointment is in a terminal status")
)

func (h *ConflictHandler) applyResolution(ctx context.Context, company, actorID string, item resolutionItem) error {
	appointmentID := strings.TrimSpace(item.AppointmentID)
	if appointmentID == "" {
		return fmt.Errorf("%w: appointment_id required", errMissingFields)
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, company, appointmentID)
	if err != nil {
		return err
	}

	switch strings.TrimSpace(item.Action) {
	case actionReschedule:
		if err := h.resolveReschedule(ctx, tx, appt, actorID, item); err != nil {
			return err
		}
	case actionShorten:
		if item.DurationMinutes < minShortenMinutes {
			return fmt.Errorf("%w: duration_minutes must be at least %d", errMissingFields, minShortenMinutes)
		}
		if appt.Status.Terminal() {
			return errTerminalStatus
		}
		if err := h.repo.Shorten(ctx, tx, company, appt.ID, item.DurationMinutes); err != nil {
			return err
		}
	case actionNotify:
		if err := h.resolveNotify(ctx, tx, appt, item.Message); err != nil {
			return err
		}
	case actionCancel:
		if appt.Status.Terminal() {
			return errTerminalStatus
		}
		if err := h.resolveCancel(ctx, tx, appt, item.Reason); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, item.Action)
	}

	return tx.Commit(ctx)
}

func (h *ConflictHandler) resolveReschedule(ctx context.Context, tx pgx.Tx, appt model.Appointment, actorID string, item resolutionItem) error {
	newDate, err := schedule.ParseDate(strings.TrimSpace(item.NewDate))
	if err != nil {
		return fmt.Errorf("%w: %v", errMissingFields, err)
	}
	newClock, err := schedule.ParseClock(strings.TrimSpace(item.NewTime))
	if err != nil {
		return fmt.Errorf("%w: %v", errMissingFields, err)
	}
	if appt.Status.Terminal() {
		return errTerminalStatus
	}

	// Operator-driven moves skip the customer notice window but never skip
	// zone hours or conflict checks.
	zone := schedule.ResolveZone(newDate)
	if err := h.validator.ValidateSlot(ctx, appt.CompanyID, newDate, newClock, zone, appt.ID); err != nil {
		return err
	}
	reason := item.Reason
	if reason == "" {
		reason = "conflict resolution"
	}
	return applyReschedule(ctx, tx, h.repo, h.auditRepo, h.outboxRepo, appt, newDate, newClock, actorID, reason)
}

func (h *ConflictHandler) resolveNotify(ctx context.Context, tx pgx.Tx, appt model.Appointment, message string) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"company_id":     appt.CompanyID,
		"customer_id":    appt.CustomerID,
		"customer_email": appt.CustomerEmail,
		"customer_phone": appt.CustomerPhone,
		"scheduled_date": appt.ScheduledDate.Format("2006-01-02"),
		"scheduled_time": appt.ScheduledTime,
		"message":        strings.TrimSpace(message),
	})
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventNotifyRequested,
		Payload:       payload,
	})
}

func (h *ConflictHandler) resolveCancel(ctx context.Context, tx pgx.Tx, appt model.Appointment, reason string) error {
	cancelledAt, err := h.repo.Cancel(ctx, tx, appt.CompanyID, appt.ID, reason)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"company_id":     appt.CompanyID,
		"customer_id":    appt.CustomerID,
		"customer_email": appt.CustomerEmail,
		"customer_phone": appt.CustomerPhone,
		"scheduled_date": appt.ScheduledDate.Format("2006-01-02"),
		"scheduled_time": appt.ScheduledTime,
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
		"reason":         strings.TrimSpace(reason),
	})
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	})
}

func resolutionErrorKind(err error) string {
	var outside *schedule.OutsideHoursError
	var taken *schedule.SlotTakenError
	switch {
	case errors.As(err, &outside):
		return kindOutsideHours
	case errors.As(err, &taken):
		return kindSlotUnavailable
	case errors.Is(err, errTerminalStatus):
		return kindCannotReschedule
	case errors.Is(err, errMissingFields), errors.Is(err, errUnknownAction):
		return kindValidation
	case storage.IsNotFound(err):
		return kindNotFound
	case storage.IsConflict(err):
		return kindSlotUnavailable
	}
	return kindInternal
}

// parseWindow reads from/to query dates, defaulting to [today, today+days].
func parseWindow(r *http.Request, days int) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, days)

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		d, err := schedule.ParseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = d
		to = from.AddDate(0, 0, days)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		d, err := schedule.ParseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = d
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	if to.Sub(from) > 92*24*time.Hour {
		return time.Time{}, time.Time{}, errors.New("window must not exceed 92 days")
	}
	return from, to, nil
}
