package store

import (
	"context"
	"errors"
	"time"
)

// Visibility defines who may open a room.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// User is an active display name. Name uniqueness is the whole identity:
// there are no passwords or tokens.
type User struct {
	Name      string
	CreatedAt time.Time
}

// Room is a named message channel. Private rooms gate open requests on
// membership; public rooms have no member set.
type Room struct {
	ID         int64
	Name       string
	Visibility Visibility
	CreatedAt  time.Time
}

// Message is a persisted chat message. Timestamp is the display string the
// sending client composed; ordering comes from insertion order, never from it.
type Message struct {
	ID        int64
	Room      string
	Author    string
	Content   string
	Timestamp string
}

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
)

// Store is the persistence shim behind the hub. The hub is the only writer,
// so implementations may assume serialized access.
//
// Rooms, members and messages are ephemeral: implementations reset them when
// the store opens, so nothing survives a server restart.
type Store interface {
	// Users (active display names).
	CreateUser(ctx context.Context, name string) error
	UserExists(ctx context.Context, name string) (bool, error)
	DeleteUser(ctx context.Context, name string) error

	// Rooms. Name uniqueness is global across both visibilities.
	CreateRoom(ctx context.Context, name string, visibility Visibility) (*Room, error)
	GetRoom(ctx context.Context, name string) (*Room, error)
	ListPublicRooms(ctx context.Context) ([]string, error)
	// ListPrivateRooms returns names of private rooms the member belongs to.
	ListPrivateRooms(ctx context.Context, member string) ([]string, error)

	// Membership (private rooms only). AddMember reports whether the member
	// was newly added; adding an existing member is a no-op.
	AddMember(ctx context.Context, room, member string) (bool, error)
	IsMember(ctx context.Context, room, member string) (bool, error)
	ListMembers(ctx context.Context, room string) ([]string, error)

	// Messages, ordered by insertion. AppendMessage trims the room's history
	// to limit entries when limit > 0.
	AppendMessage(ctx context.Context, msg Message, limit int) error
	ListMessages(ctx context.Context, room string) ([]Message, error)

	Close() error
}
