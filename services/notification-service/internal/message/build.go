// Package message composes the customer-facing text for scheduling events.
package message

import "fmt"

// Event mirrors the fields shared by the scheduling event payloads; not
// every event populates every field.
type Event struct {
	AppointmentID string `json:"appointment_id"`
	CompanyID     string `json:"company_id"`
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
	OldDate       string `json:"old_date"`
	OldTime       string `json:"old_time"`
	NewDate       string `json:"new_date"`
	NewTime       string `json:"new_time"`
	Reason        string `json:"reason"`
	Message       string `json:"message"`
}

type Content struct {
	Subject string
	Body    string
}

// ForRescheduled builds the notice sent after a successful reschedule.
func ForRescheduled(e Event) Content {
	body := fmt.Sprintf(
		"Your backflow test appointment has been moved from %s %s to %s %s.",
		e.OldDate, e.OldTime, e.NewDate, e.NewTime,
	)
	if e.Reason != "" {
		body += fmt.Sprintf(" Reason: %s.", e.Reason)
	}
	return Content{
		Subject: "Your backflow test appointment was rescheduled",
		Body:    body,
	}
}

// ForCancelled builds the notice sent after a cancellation.
func ForCancelled(e Event) Content {
	body := fmt.Sprintf(
		"Your backflow test appointment on %s at %s has been cancelled.",
		e.ScheduledDate, e.ScheduledTime,
	)
	if e.Reason != "" {
		body += fmt.Sprintf(" Reason: %s.", e.Reason)
	}
	body += " Please contact us to book a new time."
	return Content{
		Subject: "Your backflow test appointment was cancelled",
		Body:    body,
	}
}

// ForNotify builds an operator-initiated message about an upcoming
// appointment, typically sent while resolving schedule conflicts.
func ForNotify(e Event) Content {
	body := fmt.Sprintf(
		"About your backflow test appointment on %s at %s:",
		e.ScheduledDate, e.ScheduledTime,
	)
	if e.Message != "" {
		body += " " + e.Message
	} else {
		body += " please contact us regarding your scheduled time."
	}
	return Content{
		Subject: "About your backflow test appointment",
		Body:    body,
	}
}
