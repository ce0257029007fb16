package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced: "chat.message", "chat.roster", "feed.status_changed",
// "connection.updated", "notification.received".
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
