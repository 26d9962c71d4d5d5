package core

// Message is the domain model for a chat message. Timestamp is the display
// string composed by the sending client; delivery order is the only ordering.
type Message struct {
	ID        int64
	Room      string
	From      string
	Content   string
	Timestamp string
}
