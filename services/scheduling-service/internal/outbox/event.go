package outbox

// Event is the domain event envelope written to the outbox table. The Kafka
// topic name equals EventType (one event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the scheduling service.
const (
	EventAppointmentBooked      = "scheduling.appointment.booked.v1"
	EventAppointmentRescheduled = "scheduling.appointment.rescheduled.v1"
	EventAppointmentCancelled   = "scheduling.appointment.cancelled.v1"
	EventNotifyRequested        = "scheduling.notify.requested.v1"
)
