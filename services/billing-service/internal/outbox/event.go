package outbox

// Event is the domain event envelope written to the outbox table. The Kafka
// topic name equals EventType (one event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the billing service. Scheduling consumes these to
// keep its entitlement cache current.
const (
	EventSubscriptionActivated = "billing.subscription.activated.v1"
	EventSubscriptionCanceled  = "billing.subscription.canceled.v1"
)
