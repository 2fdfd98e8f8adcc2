package handlers

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/backflowhq/platform/services/scheduling-service/internal/schedule"
)

func TestParseWindowDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/conflicts", nil)
	from, to, err := parseWindow(r, 7)
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	if !to.Equal(from.AddDate(0, 0, 7)) {
		t.Fatalf("default window = [%s, %s], want 7 days", from, to)
	}
	if from.Hour() != 0 || from.Location() != time.UTC {
		t.Fatalf("from not midnight UTC: %s", from)
	}
}

func TestParseWindowExplicit(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/conflicts?from=2026-09-01&to=2026-09-03", nil)
	from, to, err := parseWindow(r, 7)
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	if from.Format("2006-01-02") != "2026-09-01" || to.Format("2006-01-02") != "2026-09-03" {
		t.Fatalf("window = [%s, %s]", from, to)
	}
}

func TestParseWindowRejectsBadInput(t *testing.T) {
	cases := []string{
		"from=not-a-date",
		"from=2026-09-10&to=2026-09-01",
		"from=2026-01-01&to=2026-12-31",
	}
	for _, q := range cases {
		r := httptest.NewRequest("GET", "/api/v1/conflicts?"+q, nil)
		if _, _, err := parseWindow(r, 7); err == nil {
			t.Fatalf("parseWindow(%q) should fail", q)
		}
	}
}

func TestResolutionErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&schedule.OutsideHoursError{Zone: schedule.ZoneNorth}, kindOutsideHours},
		{&schedule.SlotTakenError{Conflicts: 1}, kindSlotUnavailable},
		{errTerminalStatus, kindCannotReschedule},
		{errUnknownAction, kindValidation},
		{errMissingFields, kindValidation},
		{pgx.ErrNoRows, kindNotFound},
		{errors.New("boom"), kindInternal},
	}
	for _, tc := range cases {
		if got := resolutionErrorKind(tc.err); got != tc.want {
			t.Errorf("resolutionErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
