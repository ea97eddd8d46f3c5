package bus

import "time"

// Event is a domain event published on the bus. Kind is a dotted name such
// as "chat.message_received" or "socket.status_changed"; subscribers filter
// on a namespace prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
