package outbox

const (
	TopicSessionBooked    = "mentorslots.session.booked.v1"
	TopicSessionCancelled = "mentorslots.session.cancelled.v1"
)

// Event is the envelope written to outbox_events next to the state change it describes.
// EventType doubles as the Kafka topic.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
