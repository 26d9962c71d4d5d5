package core

// Client is a connected participant as seen by the core layer. Name is empty
// until an identity is claimed or resumed; Room is the single currently open
// room, empty when none.
type Client struct {
	ID       string
	Name     string
	Room     string
	Commands chan *Command
	Events   chan *Event
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 8),
	}
}

func (c *Client) send(event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
	}
}

func (c *Client) sendError(code, msg string) {
	c.send(&Event{Kind: EventError, Error: coreError(code, msg)})
}
