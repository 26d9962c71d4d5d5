package core

import "github.com/izbachat/izba/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandCheckName asks whether a display name is free.
	CommandCheckName CommandKind = iota
	// CommandClaimName registers a display name as the client's identity.
	CommandClaimName
	// CommandRememberName resumes a previously persisted identity.
	CommandRememberName
	// CommandLogout frees the client's identity.
	CommandLogout
	// CommandListRooms requests the full directory for one visibility.
	CommandListRooms
	// CommandCreateRoom requests creation of a room.
	CommandCreateRoom
	// CommandOpenRoom opens a room, replacing any previously open one.
	CommandOpenRoom
	// CommandAddMember adds a user to a private room's member set.
	CommandAddMember
	// CommandSendMessage publishes a message to a room.
	CommandSendMessage
)

// Command represents an action requested by a client.
type Command struct {
	Kind       CommandKind
	Name       string // candidate display name
	Room       string
	Member     string // candidate member for CommandAddMember
	Visibility store.Visibility
	Message    Message
}
