package core

// subscribers groups the clients that currently have the same room open.
// Only they receive message pushes for that room; durable room state lives
// in the store.
type subscribers struct {
	room    string
	clients map[*Client]struct{}
}

func newSubscribers(room string) *subscribers {
	return &subscribers{
		room:    room,
		clients: make(map[*Client]struct{}),
	}
}

// add inserts a client into the group. Returns true if newly added.
func (s *subscribers) add(c *Client) bool {
	if _, exists := s.clients[c]; exists {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

// remove deletes a client from the group. Returns true if removed.
func (s *subscribers) remove(c *Client) bool {
	if _, exists := s.clients[c]; !exists {
		return false
	}
	delete(s.clients, c)
	return true
}

// broadcast sends an event to all clients in the group.
func (s *subscribers) broadcast(event *Event) {
	for client := range s.clients {
		client.send(event)
	}
}

// empty returns true if no clients have the room open.
func (s *subscribers) empty() bool {
	return len(s.clients) == 0
}
