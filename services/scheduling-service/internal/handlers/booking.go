package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/backflowhq/platform/libs/metricsx"
	"github.com/backflowhq/platform/services/scheduling-service/internal/model"
	"github.com/backflowhq/platform/services/scheduling-service/internal/outbox"
	"github.com/backflowhq/platform/services/scheduling-service/internal/schedule"
	"github.com/backflowhq/platform/services/scheduling-service/internal/storage"
)

type BookingHandler struct {
	repo         *storage.AppointmentRepository
	entitlements *storage.EntitlementsRepository
	outboxRepo   *outbox.Repository
	validator    *schedule.Validator
	logger       *slog.Logger
}

func NewBookingHandler(repo *storage.AppointmentRepository, entitlements *storage.EntitlementsRepository, outboxRepo *outbox.Repository, validator *schedule.Validator, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		repo:         repo,
		entitlements: entitlements,
		outboxRepo:   outboxRepo,
		validator:    validator,
		logger:       logger,
	}
}

type createAppointmentRequest struct {
	CustomerID      string `json:"customer_id"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
	DeviceID        string `json:"device_id"`
	ScheduledDate   string `json:"scheduled_date"`
	ScheduledTime   string `json:"scheduled_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

type createAppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Zone          string `json:"zone"`
	Status        string `json:"status"`
}

type cancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelAppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

func companyID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get("X-Company-Id"))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("company_id"))
	}
	return id
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	company := companyID(r)
	if company == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "X-Company-Id header required", nil)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json body", nil)
		return
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.CustomerID == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "customer_id and device_id required", nil)
		return
	}

	date, err := schedule.ParseDate(strings.TrimSpace(req.ScheduledDate))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error(), nil)
		return
	}
	clock, err := schedule.ParseClock(strings.TrimSpace(req.ScheduledTime))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error(), nil)
		return
	}
	zone := schedule.ResolveZone(date)

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "db error", nil)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, company, idempotencyKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, kindInternal, "failed to lock idempotency key", nil)
			return
		}
		if exists && rec.StatusCode > 0 && len(rec.ResponsePayload) > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	if err := h.enforceMonthlyLimit(ctx, tx, company, date); err != nil {
		if errors.Is(err, errLimitReached) {
			body := marshalError(kindLimitReached, err.Error(), nil)
			if idempotencyKey != "" {
				if ferr := h.repo.FinalizeIdempotency(ctx, tx, company, idempotencyKey, "", http.StatusPaymentRequired, body); ferr == nil {
					_ = tx.Commit(ctx)
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write(body)
			return
		}
		writeError(w, http.StatusInternalServerError, kindInternal, "entitlements check failed", nil)
		return
	}

	if err := h.validator.ValidateSlot(ctx, company, date, clock, zone, ""); err != nil {
		var outside *schedule.OutsideHoursError
		var taken *schedule.SlotTakenError
		switch {
		case errors.As(err, &outside):
			metricsx.IncSlotValidation("outside_hours")
			writeOutsideHours(w, outside)
		case errors.As(err, &taken):
			metricsx.IncSlotValidation("conflict")
			writeSlotTaken(w, taken)
		default:
			writeError(w, http.StatusInternalServerError, kindInternal, "slot validation failed", nil)
		}
		return
	}
	metricsx.IncSlotValidation("ok")

	appt := &model.Appointment{
		CompanyID:       company,
		CustomerID:      req.CustomerID,
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		DeviceID:        req.DeviceID,
		ScheduledDate:   date,
		ScheduledTime:   clock.String(),
		DurationMinutes: req.DurationMinutes,
		Status:          model.StatusScheduled,
		Notes:           strings.TrimSpace(req.Notes),
	}
	id, err := h.repo.Create(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			// Unique index caught a concurrent booking of the same slot.
			metricsx.IncSlotValidation("conflict")
			writeError(w, http.StatusConflict, kindSlotUnavailable, "slot was booked concurrently", map[string]any{
				"date": date.Format("2006-01-02"),
				"time": clock.String(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to create appointment", nil)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"company_id":     company,
		"customer_id":    appt.CustomerID,
		"customer_email": appt.CustomerEmail,
		"customer_phone": appt.CustomerPhone,
		"device_id":      appt.DeviceID,
		"zone":           string(zone),
		"scheduled_date": date.Format("2006-01-02"),
		"scheduled_time": clock.String(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to build event payload", nil)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to write outbox event", nil)
		return
	}

	respBody, err := json.Marshal(createAppointmentResponse{
		AppointmentID: id,
		Zone:          string(zone),
		Status:        string(model.StatusScheduled),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to build response", nil)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, company, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			writeError(w, http.StatusInternalServerError, kindInternal, "failed to finalize idempotency key", nil)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to commit", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

var errLimitReached = errors.New("monthly appointment limit reached for the current plan")

// enforceMonthlyLimit caps non-cancelled appointments per calendar month of
// the requested date. Companies without a cached entitlement row default to
// the free tier.
func (h *BookingHandler) enforceMonthlyLimit(ctx context.Context, tx pgx.Tx, company string, date time.Time) error {
	const defaultFreeMax = 50

	ent, ok, err := h.entitlements.Get(ctx, tx, company)
	if err != nil {
		return err
	}
	max := defaultFreeMax
	if ok && ent.MaxMonthlyAppointments > 0 {
		max = ent.MaxMonthlyAppointments
	}
	if max <= 0 {
		return nil
	}

	monthStart := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	cnt, err := h.repo.CountScheduledInMonth(ctx, tx, company, monthStart, monthEnd)
	if err != nil {
		return err
	}
	if cnt >= max {
		return errLimitReached
	}
	return nil
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	company := companyID(r)
	if company == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "X-Company-Id header required", nil)
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json body", nil)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "appointment_id required", nil)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "db error", nil)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, company, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, kindNotFound, "appointment not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to load appointment", nil)
		return
	}

	if appt.Status == model.StatusCancelled && appt.CancelledAt != nil {
		// Already cancelled: replay the terminal state instead of erroring.
		h.writeCancelResponse(w, appt.ID, appt.CancelledAt.UTC())
		return
	}
	if appt.Status == model.StatusCompleted {
		writeError(w, http.StatusConflict, kindCannotCancel, "completed appointments cannot be cancelled", nil)
		return
	}

	cancelledAt, err := h.repo.Cancel(ctx, tx, company, appt.ID, req.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to cancel appointment", nil)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"company_id":     appt.CompanyID,
		"customer_id":    appt.CustomerID,
		"customer_email": appt.CustomerEmail,
		"customer_phone": appt.CustomerPhone,
		"device_id":      appt.DeviceID,
		"scheduled_date": appt.ScheduledDate.Format("2006-01-02"),
		"scheduled_time": appt.ScheduledTime,
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
		"reason":         req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to build cancellation event", nil)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to write outbox event", nil)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to commit", nil)
		return
	}
	h.writeCancelResponse(w, appt.ID, cancelledAt.UTC())
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	company := companyID(r)
	if company == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "X-Company-Id header required", nil)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.repo.ListByCompany(r.Context(), company, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kindInternal, "failed to list appointments", nil)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, appointmentItemFrom(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) writeCancelResponse(w http.ResponseWriter, appointmentID string, cancelledAt time.Time) {
	writeJSON(w, http.StatusOK, cancelAppointmentResponse{
		AppointmentID: appointmentID,
		Status:        string(model.StatusCancelled),
		CancelledAt:   cancelledAt.Format(time.RFC3339),
	})
}

func marshalError(kind, message string, details map[string]any) []byte {
	body, err := json.Marshal(errorResponse{Error: errorBody{Kind: kind, Message: message, Details: details}})
	if err != nil {
		return []byte(`{"error":{"kind":"internal_error","message":"failed to encode error"}}`)
	}
	return body
}
