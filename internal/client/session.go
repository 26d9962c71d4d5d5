package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/izbachat/izba/internal/core"
	"github.com/izbachat/izba/internal/proto"
	"github.com/izbachat/izba/internal/utils"
)

// RoomState is the room session state machine.
type RoomState int

const (
	// RoomNone means no room is open.
	RoomNone RoomState = iota
	// RoomOpening means an open request is in flight.
	RoomOpening
	// RoomOpen means a room is open and message composition is enabled.
	RoomOpen
)

// Message is a chat message as the client renders it. Own marks the viewer's
// messages; it has no protocol effect.
type Message struct {
	Room      string
	Author    string
	Content   string
	Timestamp string
	Own       bool
}

// Sender pushes an inbound frame to the server. The websocket connection
// satisfies it in production; tests substitute a recorder.
type Sender interface {
	Send(ctx context.Context, inbound proto.Inbound) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, inbound proto.Inbound) error

func (f SenderFunc) Send(ctx context.Context, inbound proto.Inbound) error {
	return f(ctx, inbound)
}

// Frame mirrors proto.Outbound with a raw payload so handlers decode only
// the variant they need.
type Frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

// NotificationKind labels what the presentation layer should react to.
type NotificationKind int

const (
	// NotifyPromptName asks the UI to (re-)prompt for a display name.
	NotifyPromptName NotificationKind = iota
	// NotifyLoggedIn signals an established identity.
	NotifyLoggedIn
	// NotifyLoggedOut signals the logged-out baseline.
	NotifyLoggedOut
	// NotifyRoomLists signals that a cached directory list changed.
	NotifyRoomLists
	// NotifyRoomOpened signals a freshly opened room: clear the board and
	// render the history.
	NotifyRoomOpened
	// NotifyRoomClosed signals the no-room state, including silent stale
	// resume recovery. It is not an error.
	NotifyRoomClosed
	// NotifyMembersChanged signals an updated member list for the open room.
	NotifyMembersChanged
	// NotifyMessage signals one appended message.
	NotifyMessage
	// NotifyError carries a user-visible error line.
	NotifyError
)

// Notification is a UI hint. Protocol state never depends on whether one
// was consumed.
type Notification struct {
	Kind    NotificationKind
	Reason  string
	Message Message
}

// Session is the client-side state machine for identity, room directory,
// the single open room, membership and message delivery.
//
// All methods must be called from the same goroutine that feeds Handle and
// CheckTimeouts; state mutates only there, mirroring the single-threaded
// event dispatch the protocol assumes.
type Session struct {
	sender Sender
	state  *LocalState
	log    *zerolog.Logger

	now            func() time.Time
	requestTimeout time.Duration

	user       string
	roomState  RoomState
	room       string
	roomPublic bool

	publicRooms  []string
	privateRooms []string
	messages     []Message
	members      []string

	pendingClaim  string
	claimDeadline time.Time
	pendingOpen   string
	openDeadline  time.Time
	pendingCreate string
	previousRoom  string

	notifications chan Notification
}

// DefaultRequestTimeout bounds how long a claim or open request may stay in
// flight before its state machine reverts.
const DefaultRequestTimeout = 10 * time.Second

// NewSession builds a session around a sender and the persisted local state.
func NewSession(sender Sender, state *LocalState, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if state == nil {
		state = &LocalState{}
	}
	return &Session{
		sender:         sender,
		state:          state,
		log:            logger,
		now:            time.Now,
		requestTimeout: DefaultRequestTimeout,
		notifications:  make(chan Notification, 32),
	}
}

// Notifications returns the UI hint channel. Hints are dropped, never
// blocked on, when the consumer lags.
func (s *Session) Notifications() <-chan Notification {
	return s.notifications
}

// User returns the established display name, empty when logged out.
func (s *Session) User() string { return s.user }

// Room returns the currently open room name, empty when none.
func (s *Session) Room() string { return s.room }

// State returns the room session state.
func (s *Session) State() RoomState { return s.roomState }

// PublicRooms returns the cached public directory.
func (s *Session) PublicRooms() []string { return s.publicRooms }

// PrivateRooms returns the cached private directory.
func (s *Session) PrivateRooms() []string { return s.privateRooms }

// Members returns the open room's member list; empty for public rooms.
func (s *Session) Members() []string { return s.members }

// Messages returns the open room's rendered messages in arrival order.
func (s *Session) Messages() []Message { return s.messages }

// Header renders the status line for the current state.
func (s *Session) Header() string {
	switch {
	case s.user == "":
		return "Log in and start chatting!"
	case s.roomState != RoomOpen:
		return fmt.Sprintf("Welcome, %s. Choose a room and start chatting.", s.user)
	case s.roomPublic:
		return fmt.Sprintf("Chatting as %s in %s (public room).", s.user, s.room)
	default:
		return fmt.Sprintf("Chatting as %s in %s (%s).", s.user, s.room, strings.Join(s.members, ", "))
	}
}

// ==== Identity Resolver ====

// RequestName starts the check-then-claim flow for a candidate name. Empty
// or whitespace candidates are dropped before any round trip.
func (s *Session) RequestName(ctx context.Context, candidate string) error {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil
	}
	s.pendingClaim = candidate
	s.claimDeadline = s.now().Add(s.requestTimeout)
	return s.send(ctx, proto.InboundTypeCheckName, proto.NameData{Name: candidate})
}

// Resume re-establishes a remembered identity, if any. Returns true if a
// resume request was sent.
func (s *Session) Resume(ctx context.Context) (bool, error) {
	if s.state.DisplayName == "" {
		s.notify(Notification{Kind: NotifyPromptName})
		return false, nil
	}
	// Good faith: act logged-in with the remembered name until the server
	// says otherwise.
	s.user = s.state.DisplayName
	return true, s.send(ctx, proto.InboundTypeRemember, proto.NameData{Name: s.state.DisplayName})
}

// Logout ends the session server-side; local state clears on the ack.
func (s *Session) Logout(ctx context.Context) error {
	if s.user == "" {
		return nil
	}
	return s.send(ctx, proto.InboundTypeLogout, proto.NameData{Name: s.user})
}

// ==== Room Directory ====

// RefreshRooms re-fetches both directory lists. Each reply replaces the
// cached list wholesale.
func (s *Session) RefreshRooms(ctx context.Context) error {
	if err := s.send(ctx, proto.InboundTypeListRooms, proto.ListRoomsData{
		Visibility: string(visibilityPublic),
	}); err != nil {
		return err
	}
	if s.user == "" {
		return nil
	}
	return s.send(ctx, proto.InboundTypeListRooms, proto.ListRoomsData{
		Visibility: string(visibilityPrivate),
		User:       s.user,
	})
}

// CreateRoom requests creation of a room and optimistically records it as
// the current room; the server auto-opens it on success.
func (s *Session) CreateRoom(ctx context.Context, name string, public bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	visibility := visibilityPrivate
	if public {
		visibility = visibilityPublic
	}

	s.pendingCreate = name
	s.previousRoom = s.state.Room
	s.openDeadline = s.now().Add(s.requestTimeout)
	if err := s.state.SetRoom(name); err != nil {
		s.log.Warn().Err(err).Msg("persist optimistic room")
	}

	return s.send(ctx, proto.InboundTypeCreateRoom, proto.CreateRoomData{
		Name:       name,
		Visibility: string(visibility),
		User:       s.user,
	})
}

// ==== Room Session ====

// OpenRoom requests to open a room, replacing any currently open one.
func (s *Session) OpenRoom(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || s.user == "" {
		return nil
	}
	s.roomState = RoomOpening
	s.pendingOpen = name
	s.openDeadline = s.now().Add(s.requestTimeout)
	return s.send(ctx, proto.InboundTypeOpenRoom, proto.OpenRoomData{User: s.user, Room: name})
}

// ResumeLastRoom re-opens the persisted room, if any. Stale references
// recover silently through the room_missing handler.
func (s *Session) ResumeLastRoom(ctx context.Context) error {
	if s.state.Room == "" || s.user == "" {
		return nil
	}
	return s.OpenRoom(ctx, s.state.Room)
}

// ==== Membership Manager ====

// AddMember asks the server to add a user to the open private room. The
// candidate's existence is not checked first; the server is authoritative.
func (s *Session) AddMember(ctx context.Context, candidate string) error {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil
	}
	if s.roomState != RoomOpen || s.roomPublic {
		return fmt.Errorf("no private room open")
	}
	return s.send(ctx, proto.InboundTypeAddMember, proto.AddMemberData{
		Room: s.room,
		User: candidate,
	})
}

// ==== Message Channel ====

// Send publishes a message to the open room, stamping the display timestamp
// locally. Empty content is dropped before any round trip.
func (s *Session) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if s.roomState != RoomOpen {
		return fmt.Errorf("no room open")
	}
	return s.send(ctx, proto.InboundTypeMsg, proto.MsgData{
		Room:    s.room,
		User:    s.user,
		Content: content,
		TS:      utils.FormatTimestamp(s.now()),
	})
}

// ==== Event dispatch ====

// Handle applies one server frame to the state machine. Every server push
// is authoritative and overwrites the local cache.
func (s *Session) Handle(ctx context.Context, frame Frame) error {
	if frame.Type == proto.OutboundTypeError {
		s.handleError(frame.Error)
		return nil
	}

	switch frame.Event {
	case proto.EventNameCheck:
		return s.onNameCheck(ctx, frame.Data)
	case proto.EventIdentity:
		return s.onIdentity(ctx, frame.Data)
	case proto.EventIdentityRejected:
		return s.onIdentityRejected(frame.Data)
	case proto.EventLoggedOut:
		return s.onLoggedOut()
	case proto.EventRoomList:
		return s.onRoomList(frame.Data)
	case proto.EventRoomCreated:
		return s.onRoomCreated(frame.Data)
	case proto.EventRoomCreateFailed:
		return s.onRoomCreateFailed()
	case proto.EventRoomOpened:
		return s.onRoomOpened(frame.Data)
	case proto.EventRoomMissing:
		return s.onRoomMissing(frame.Data)
	case proto.EventMemberAdded:
		return s.onMemberAdded(ctx, frame.Data)
	case proto.EventMessage:
		return s.onMessage(frame.Data)
	default:
		s.log.Debug().Str("event", frame.Event).Msg("ignoring unknown event")
		return nil
	}
}

func (s *Session) onNameCheck(ctx context.Context, data json.RawMessage) error {
	var check proto.EventNameCheckData
	if err := json.Unmarshal(data, &check); err != nil {
		return err
	}
	if check.Name != s.pendingClaim {
		// An abandoned check; its late reply changes nothing.
		return nil
	}
	if !check.Available {
		s.pendingClaim = ""
		s.notify(Notification{Kind: NotifyPromptName, Reason: "name is taken, choose another"})
		return nil
	}
	s.claimDeadline = s.now().Add(s.requestTimeout)
	return s.send(ctx, proto.InboundTypeClaimName, proto.NameData{Name: check.Name})
}

func (s *Session) onIdentity(ctx context.Context, data json.RawMessage) error {
	var identity proto.EventIdentityData
	if err := json.Unmarshal(data, &identity); err != nil {
		return err
	}
	s.user = identity.Name
	s.pendingClaim = ""
	if err := s.state.SetName(identity.Name); err != nil {
		s.log.Warn().Err(err).Msg("persist display name")
	}
	s.notify(Notification{Kind: NotifyLoggedIn, Reason: identity.Name})

	if err := s.RefreshRooms(ctx); err != nil {
		return err
	}
	return s.ResumeLastRoom(ctx)
}

func (s *Session) onIdentityRejected(data json.RawMessage) error {
	var identity proto.EventIdentityData
	if err := json.Unmarshal(data, &identity); err != nil {
		return err
	}
	// The remembered name now belongs to someone else. Drop it and fall
	// back to the prompt flow; no stale value survives.
	s.resetToLoggedOut()
	s.notify(Notification{Kind: NotifyPromptName, Reason: "your name was taken while you were away"})
	return nil
}

func (s *Session) onLoggedOut() error {
	s.resetToLoggedOut()
	s.notify(Notification{Kind: NotifyLoggedOut})
	return nil
}

func (s *Session) resetToLoggedOut() {
	s.user = ""
	s.room = ""
	s.roomState = RoomNone
	s.roomPublic = false
	s.publicRooms = nil
	s.privateRooms = nil
	s.messages = nil
	s.members = nil
	s.pendingClaim = ""
	s.pendingOpen = ""
	s.pendingCreate = ""
	if err := s.state.Clear(); err != nil {
		s.log.Warn().Err(err).Msg("clear session file")
	}
}

func (s *Session) onRoomList(data json.RawMessage) error {
	var list proto.EventRoomListData
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	switch visibility(list.Visibility) {
	case visibilityPublic:
		s.publicRooms = list.Rooms
	case visibilityPrivate:
		s.privateRooms = list.Rooms
	default:
		return nil
	}
	s.notify(Notification{Kind: NotifyRoomLists})
	return nil
}

func (s *Session) onRoomCreated(data json.RawMessage) error {
	var created proto.EventRoomCreatedData
	if err := json.Unmarshal(data, &created); err != nil {
		return err
	}
	switch visibility(created.Visibility) {
	case visibilityPublic:
		s.publicRooms = appendUnique(s.publicRooms, created.Name)
	case visibilityPrivate:
		s.privateRooms = appendUnique(s.privateRooms, created.Name)
	default:
		return nil
	}
	s.notify(Notification{Kind: NotifyRoomLists})
	return nil
}

func (s *Session) onRoomCreateFailed() error {
	if s.pendingCreate != "" {
		// Roll back the optimistic current-room record.
		if err := s.state.SetRoom(s.previousRoom); err != nil {
			s.log.Warn().Err(err).Msg("restore previous room")
		}
		s.pendingCreate = ""
	}
	s.notify(Notification{Kind: NotifyError, Reason: "such room already exists, try another name"})
	return nil
}

func (s *Session) onRoomOpened(data json.RawMessage) error {
	var opened proto.EventRoomOpenedData
	if err := json.Unmarshal(data, &opened); err != nil {
		return err
	}

	s.room = opened.Room
	s.roomState = RoomOpen
	s.roomPublic = visibility(opened.Visibility) == visibilityPublic
	s.members = opened.Members
	s.pendingOpen = ""
	s.pendingCreate = ""
	if err := s.state.SetRoom(opened.Room); err != nil {
		s.log.Warn().Err(err).Msg("persist current room")
	}

	// Previously displayed messages are gone; the returned history is the
	// whole board.
	s.messages = make([]Message, 0, len(opened.Messages))
	for _, msg := range opened.Messages {
		s.messages = append(s.messages, s.renderMessage(msg))
	}

	s.notify(Notification{Kind: NotifyRoomOpened, Reason: opened.Room})
	return nil
}

func (s *Session) onRoomMissing(data json.RawMessage) error {
	var missing proto.EventRoomMissingData
	if err := json.Unmarshal(data, &missing); err != nil {
		return err
	}
	// Stale reference: the server no longer knows this room. Clear it and
	// settle in the no-room state; this is recovery, not an error.
	s.room = ""
	s.roomState = RoomNone
	s.roomPublic = false
	s.messages = nil
	s.members = nil
	s.pendingOpen = ""
	s.pendingCreate = ""
	if err := s.state.SetRoom(""); err != nil {
		s.log.Warn().Err(err).Msg("clear stale room")
	}
	s.notify(Notification{Kind: NotifyRoomClosed})
	return nil
}

func (s *Session) onMemberAdded(ctx context.Context, data json.RawMessage) error {
	var delta proto.EventMemberAddedData
	if err := json.Unmarshal(data, &delta); err != nil {
		return err
	}
	if s.roomState == RoomOpen && s.room == delta.Room {
		s.members = delta.Members
		s.notify(Notification{Kind: NotifyMembersChanged})
	}
	// If we were just added, the room becomes visible in our directory.
	if s.user != "" && contains(delta.Members, s.user) && !contains(s.privateRooms, delta.Room) {
		return s.send(ctx, proto.InboundTypeListRooms, proto.ListRoomsData{
			Visibility: string(visibilityPrivate),
			User:       s.user,
		})
	}
	return nil
}

func (s *Session) onMessage(data json.RawMessage) error {
	var msg proto.EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	// Only the open room's messages are displayed; everything else is
	// dropped with no buffering and no unread marker.
	if s.roomState != RoomOpen || msg.Room != s.room {
		return nil
	}
	rendered := s.renderMessage(msg)
	s.messages = append(s.messages, rendered)
	s.notify(Notification{Kind: NotifyMessage, Message: rendered})
	return nil
}

func (s *Session) handleError(protoErr *proto.Error) {
	if protoErr == nil {
		s.notify(Notification{Kind: NotifyError, Reason: "unknown error"})
		return
	}
	if protoErr.Code == core.ErrCodeNameTaken {
		s.pendingClaim = ""
		s.notify(Notification{Kind: NotifyPromptName, Reason: "name is taken, choose another"})
		return
	}
	s.notify(Notification{Kind: NotifyError, Reason: protoErr.Msg})
}

// CheckTimeouts reverts any in-flight request whose deadline passed. The
// machine returns to its prior stable state; re-issuing is up to the caller.
func (s *Session) CheckTimeouts() {
	now := s.now()
	if s.pendingClaim != "" && now.After(s.claimDeadline) {
		s.pendingClaim = ""
		s.notify(Notification{Kind: NotifyError, Reason: "login request timed out"})
	}
	if (s.pendingOpen != "" || s.pendingCreate != "") && now.After(s.openDeadline) {
		s.pendingOpen = ""
		s.pendingCreate = ""
		if s.roomState == RoomOpening {
			s.roomState = RoomNone
		}
		s.notify(Notification{Kind: NotifyError, Reason: "room request timed out"})
	}
}

// ==== helpers ====

type visibility string

const (
	visibilityPublic  visibility = "public"
	visibilityPrivate visibility = "private"
)

func (s *Session) renderMessage(msg proto.EventMessage) Message {
	return Message{
		Room:      msg.Room,
		Author:    msg.User,
		Content:   msg.Content,
		Timestamp: msg.TS,
		Own:       msg.User == s.user,
	}
}

func (s *Session) send(ctx context.Context, msgType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return s.sender.Send(ctx, proto.Inbound{Type: msgType, Data: payload})
}

func (s *Session) notify(n Notification) {
	select {
	case s.notifications <- n:
	default:
		// Drop if the consumer lags; hints are not state.
	}
}

func appendUnique(list []string, value string) []string {
	if contains(list, value) {
		return list
	}
	return append(list, value)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
