package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/backflowhq/platform/services/scheduling-service/internal/model"
	"github.com/backflowhq/platform/services/scheduling-service/internal/schedule"
)

// Error kinds surfaced to the front end. Machine-readable: the portal keys
// remediation UI off these.
const (
	kindValidation       = "validation_error"
	kindNotFound         = "not_found"
	kindOutsideHours     = "outside_business_hours"
	kindSlotUnavailable  = "slot_unavailable"
	kindCannotReschedule = "cannot_reschedule"
	kindTooLate          = "too_late_to_reschedule"
	kindInvalidNewTime   = "invalid_new_time"
	kindCannotCancel     = "cannot_cancel"
	kindLimitReached     = "appointment_limit_reached"
	kindInternal         = "internal_error"
)

type errorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, kind, message string, details map[string]any) {
	writeJSON(w, status, errorResponse{Error: errorBody{
		Kind:    kind,
		Message: message,
		Details: details,
	}})
}

type slotItem struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func slotItems(slots []schedule.Slot) []slotItem {
	out := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotItem{
			Date: s.Date.Format("2006-01-02"),
			Time: s.Clock.String(),
		})
	}
	return out
}

// writeOutsideHours and writeSlotTaken render the two slot validation
// rejections with enough context to re-render the booking form.
func writeOutsideHours(w http.ResponseWriter, e *schedule.OutsideHoursError) {
	writeError(w, http.StatusBadRequest, kindOutsideHours, e.Error(), map[string]any{
		"zone":           string(e.Zone),
		"business_hours": e.Window,
		"valid_hours":    e.ValidHours,
	})
}

func writeSlotTaken(w http.ResponseWriter, e *schedule.SlotTakenError) {
	writeError(w, http.StatusConflict, kindSlotUnavailable, e.Error(), map[string]any{
		"date":         e.Slot.Date.Format("2006-01-02"),
		"time":         e.Slot.Clock.String(),
		"conflicts":    e.Conflicts,
		"alternatives": slotItems(e.Alternatives),
	})
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	CustomerID      string `json:"customer_id"`
	DeviceID        string `json:"device_id"`
	ScheduledDate   string `json:"scheduled_date"`
	ScheduledTime   string `json:"scheduled_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func appointmentItemFrom(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:   appt.ID,
		CustomerID:      appt.CustomerID,
		DeviceID:        appt.DeviceID,
		ScheduledDate:   appt.ScheduledDate.Format("2006-01-02"),
		ScheduledTime:   appt.ScheduledTime,
		DurationMinutes: appt.DurationMinutes,
		Status:          string(appt.Status),
		Notes:           appt.Notes,
		CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}
