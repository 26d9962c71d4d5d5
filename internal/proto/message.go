package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeCheckName  = "check_name"
	InboundTypeClaimName  = "claim_name"
	InboundTypeRemember   = "remember_name"
	InboundTypeLogout     = "logout"
	InboundTypeListRooms  = "list_rooms"
	InboundTypeCreateRoom = "create_room"
	InboundTypeOpenRoom   = "open_room"
	InboundTypeAddMember  = "add_member"
	InboundTypeMsg        = "msg"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameCheck        = "name_check"
	EventIdentity         = "identity"
	EventIdentityRejected = "identity_rejected"
	EventLoggedOut        = "logged_out"
	EventRoomList         = "room_list"
	EventRoomCreated      = "room_created"
	EventRoomCreateFailed = "room_create_failed"
	EventRoomOpened       = "room_opened"
	EventRoomMissing      = "room_missing"
	EventMemberAdded      = "member_added"
	EventMessage          = "message"
)

// NameData carries a display name candidate (check, claim, remember, logout).
type NameData struct {
	Name string `json:"name"`
}

// ListRoomsData requests a full directory list for one visibility.
type ListRoomsData struct {
	Visibility string `json:"visibility"`
	User       string `json:"user,omitempty"`
}

// CreateRoomData requests creation of a room.
type CreateRoomData struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
	User       string `json:"user"`
}

// OpenRoomData requests to open a room as a user.
type OpenRoomData struct {
	User string `json:"user"`
	Room string `json:"room"`
}

// AddMemberData requests adding a user to a private room.
type AddMemberData struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// MsgData is a chat message from the client. TS is the display timestamp the
// client composed at send time.
type MsgData struct {
	Room    string `json:"room"`
	User    string `json:"user"`
	Content string `json:"content"`
	TS      string `json:"ts"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventNameCheckData answers a uniqueness check.
type EventNameCheckData struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// EventIdentityData confirms a claimed or resumed display name.
type EventIdentityData struct {
	Name string `json:"name"`
}

// EventRoomListData replaces the client's cached list for one visibility.
type EventRoomListData struct {
	Visibility string   `json:"visibility"`
	Rooms      []string `json:"rooms"`
}

// EventRoomCreatedData announces a newly created room.
type EventRoomCreatedData struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
}

// EventRoomOpenedData delivers a room's history and member list upon opening.
// Members is empty for public rooms.
type EventRoomOpenedData struct {
	Room       string         `json:"room"`
	Visibility string         `json:"visibility"`
	Messages   []EventMessage `json:"messages"`
	Members    []string       `json:"members"`
}

/// EventRoomMissingData signals a stale room reference: the room does not
// exist, or the requester may not see it.
type EventRoomMissingData struct {
	Room string `json:"room"`
}

// EventMemberAddedData announces a private room's updated member set.
type EventMemberAddedData struct {
	Room    string   `json:"room"`
	Members []string `json:"members"`
}

// EventMessage is a chat message pushed to room subscribers.
type EventMessage struct {
	ID      int64  `json:"id,omitempty"`
	Room    string `json:"room"`
	User    string `json:"user"`
	Content string `json:"content"`
	TS      string `json:"ts"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
