package message

import (
	"strings"
	"testing"
)

func TestForRescheduled(t *testing.T) {
	c := ForRescheduled(Event{
		OldDate: "2026-09-07",
		OldTime: "18:00",
		NewDate: "2026-09-08",
		NewTime: "19:00",
		Reason:  "technician availability",
	})
	if c.Subject == "" {
		t.Fatal("expected non-empty subject")
	}
	for _, want := range []string{"2026-09-07 18:00", "2026-09-08 19:00", "technician availability"} {
		if !strings.Contains(c.Body, want) {
			t.Errorf("body missing %q: %s", want, c.Body)
		}
	}
}

func TestForRescheduledWithoutReason(t *testing.T) {
	c := ForRescheduled(Event{OldDate: "2026-09-07", OldTime: "18:00", NewDate: "2026-09-08", NewTime: "19:00"})
	if strings.Contains(c.Body, "Reason") {
		t.Fatalf("body should omit reason clause: %s", c.Body)
	}
}

func TestForCancelled(t *testing.T) {
	c := ForCancelled(Event{ScheduledDate: "2026-09-05", ScheduledTime: "08:00", Reason: "customer request"})
	if !strings.Contains(c.Body, "2026-09-05") || !strings.Contains(c.Body, "cancelled") {
		t.Fatalf("unexpected body: %s", c.Body)
	}
	if !strings.Contains(c.Body, "customer request") {
		t.Fatalf("body missing reason: %s", c.Body)
	}
}

func TestForNotifyUsesOperatorMessage(t *testing.T) {
	c := ForNotify(Event{ScheduledDate: "2026-09-05", ScheduledTime: "08:00", Message: "please arrive 10 minutes early"})
	if !strings.Contains(c.Body, "please arrive 10 minutes early") {
		t.Fatalf("body missing operator message: %s", c.Body)
	}

	fallback := ForNotify(Event{ScheduledDate: "2026-09-05", ScheduledTime: "08:00"})
	if !strings.Contains(fallback.Body, "contact us") {
		t.Fatalf("fallback body unexpected: %s", fallback.Body)
	}
}
