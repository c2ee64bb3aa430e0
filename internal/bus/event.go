package bus

import "time"

// Event represents a domain event published on the bus.
// Kind is a dotted name such as "conv.<sid>.message_added" or "session.status_changed".
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
