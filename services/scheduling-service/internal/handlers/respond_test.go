package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/backflowhq/platform/services/scheduling-service/internal/schedule"
)

func TestWriteOutsideHours(t *testing.T) {
	rec := httptest.NewRecorder()
	writeOutsideHours(rec, &schedule.OutsideHoursError{
		Zone:       schedule.ZoneSouth,
		Window:     "5:00 PM - 10:00 PM",
		ValidHours: []int{17, 18, 19, 20, 21},
	})

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Kind != kindOutsideHours {
		t.Fatalf("kind = %q, want %q", resp.Error.Kind, kindOutsideHours)
	}
	if resp.Error.Details["zone"] != "South" {
		t.Fatalf("zone detail = %v", resp.Error.Details["zone"])
	}
	if resp.Error.Details["business_hours"] != "5:00 PM - 10:00 PM" {
		t.Fatalf("business_hours detail = %v", resp.Error.Details["business_hours"])
	}
	hours, ok := resp.Error.Details["valid_hours"].([]any)
	if !ok || len(hours) != 5 {
		t.Fatalf("valid_hours detail = %v", resp.Error.Details["valid_hours"])
	}
}

func TestWriteSlotTaken(t *testing.T) {
	date := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	rec := httptest.NewRecorder()
	writeSlotTaken(rec, &schedule.SlotTakenError{
		Slot:      schedule.Slot{Date: date, Clock: schedule.Clock{Hour: 18}},
		Conflicts: 1,
		Alternatives: []schedule.Slot{
			{Date: date, Clock: schedule.Clock{Hour: 19}},
			{Date: date, Clock: schedule.Clock{Hour: 20}},
		},
	})

	if rec.Code != 409 {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Kind != kindSlotUnavailable {
		t.Fatalf("kind = %q, want %q", resp.Error.Kind, kindSlotUnavailable)
	}
	if resp.Error.Details["date"] != "2026-09-02" || resp.Error.Details["time"] != "18:00" {
		t.Fatalf("slot details = %v", resp.Error.Details)
	}
	alts, ok := resp.Error.Details["alternatives"].([]any)
	if !ok || len(alts) != 2 {
		t.Fatalf("alternatives = %v", resp.Error.Details["alternatives"])
	}
	first, ok := alts[0].(map[string]any)
	if !ok || first["time"] != "19:00" {
		t.Fatalf("first alternative = %v", alts[0])
	}
}

func TestMarshalErrorFallsBackToValidJSON(t *testing.T) {
	body := marshalError(kindValidation, "bad input", map[string]any{"field": "new_date"})
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Kind != kindValidation || resp.Error.Message != "bad input" {
		t.Fatalf("unexpected body: %s", body)
	}
}
