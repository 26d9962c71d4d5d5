package core

import "github.com/izbachat/izba/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNameCheck answers a uniqueness check.
	EventNameCheck EventKind = iota
	// EventIdentity confirms a claimed or resumed display name.
	EventIdentity
	// EventIdentityRejected tells a resuming client its remembered name is
	// now held by someone else.
	EventIdentityRejected
	// EventLoggedOut acknowledges a logout.
	EventLoggedOut
	// EventRoomList delivers the full directory for one visibility.
	EventRoomList
	// EventRoomCreated announces a newly created room.
	EventRoomCreated
	// EventRoomCreateFailed rejects a create request over a duplicate name.
	EventRoomCreateFailed
	// EventRoomOpened delivers history and members upon opening a room.
	EventRoomOpened
	// EventRoomMissing signals a stale room reference.
	EventRoomMissing
	// EventMemberAdded announces a private room's updated member set.
	EventMemberAdded
	// EventRoomMessage pushes a chat message to room subscribers.
	EventRoomMessage
	// EventError notifies the requesting client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind       EventKind
	Name       string // display name for identity events
	Available  bool   // for EventNameCheck
	Room       string
	Visibility store.Visibility
	Rooms      []string // for EventRoomList
	Members    []string // for EventRoomOpened, EventMemberAdded
	Message    Message
	Messages   []Message // for EventRoomOpened
	Error      *CoreError
}
