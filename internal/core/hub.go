package core

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/izbachat/izba/internal/store"
)

// Hub owns all chat state transitions. Every command from every client is
// funneled into one run loop, so identity claims, room creation and message
// fan-out are serialized without locks; a claim race has exactly one winner.
type Hub struct {
	store        store.Store
	log          *zerolog.Logger
	historyLimit int

	register   chan *Client
	unregister chan *Client
	inbox      chan envelope

	clients map[*Client]struct{}
	open    map[string]*subscribers
}

type envelope struct {
	client *Client
	cmd    *Command
}

// NewHub creates a hub backed by the given store. historyLimit caps messages
// retained per room; 0 keeps everything.
func NewHub(st store.Store, logger *zerolog.Logger, historyLimit int) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:        st,
		log:          logger,
		historyLimit: historyLimit,
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inbox:        make(chan envelope, 64),
		clients:      make(map[*Client]struct{}),
		open:         make(map[string]*subscribers),
	}
}

// RegisterClient attaches a connected client to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient detaches a client. The caller must not send on
// c.Commands afterwards.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.pump(ctx, c)
		case c := <-h.unregister:
			h.drop(c)
			close(c.Commands)
		case env := <-h.inbox:
			if _, ok := h.clients[env.client]; !ok {
				continue
			}
			h.handle(ctx, env.client, env.cmd)
		}
	}
}

// pump forwards one client's commands into the shared inbox.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.inbox <- envelope{client: c, cmd: cmd}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// drop removes a client from runtime state. The display name is not freed:
// a dropped connection may resume it, and only logout or a restart evicts it.
func (h *Hub) drop(c *Client) {
	h.leaveCurrent(c)
	delete(h.clients, c)
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandCheckName:
		h.handleCheckName(ctx, c, cmd)
	case CommandClaimName:
		h.handleClaimName(ctx, c, cmd)
	case CommandRememberName:
		h.handleRemember(ctx, c, cmd)
	case CommandLogout:
		h.handleLogout(ctx, c)
	case CommandListRooms:
		h.handleListRooms(ctx, c, cmd)
	case CommandCreateRoom:
		h.handleCreateRoom(ctx, c, cmd)
	case CommandOpenRoom:
		h.handleOpenRoom(ctx, c, cmd)
	case CommandAddMember:
		h.handleAddMember(ctx, c, cmd)
	case CommandSendMessage:
		h.handleSendMessage(ctx, c, cmd)
	default:
		c.sendError(ErrCodeBadRequest, "unknown command")
	}
}

// ==== Identity ====

func (h *Hub) handleCheckName(ctx context.Context, c *Client, cmd *Command) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		c.sendError(ErrCodeBadRequest, "name is required")
		return
	}
	exists, err := h.store.UserExists(ctx, name)
	if err != nil {
		h.fail(c, "check name", err)
		return
	}
	c.send(&Event{Kind: EventNameCheck, Name: name, Available: !exists})
}

func (h *Hub) handleClaimName(ctx context.Context, c *Client, cmd *Command) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		c.sendError(ErrCodeBadRequest, "name is required")
		return
	}
	err := h.store.CreateUser(ctx, name)
	if errors.Is(err, store.ErrUserExists) {
		c.sendError(ErrCodeNameTaken, "name is taken")
		return
	}
	if err != nil {
		h.fail(c, "claim name", err)
		return
	}
	if c.Name != "" && c.Name != name {
		// Re-claim under a new name frees the old registration.
		if delErr := h.store.DeleteUser(ctx, c.Name); delErr != nil && !errors.Is(delErr, store.ErrUserNotFound) {
			h.log.Warn().Err(delErr).Str("name", c.Name).Msg("free previous name")
		}
	}
	c.Name = name
	c.send(&Event{Kind: EventIdentity, Name: name})
}

func (h *Hub) handleRemember(ctx context.Context, c *Client, cmd *Command) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		c.sendError(ErrCodeBadRequest, "name is required")
		return
	}
	if holder := h.clientByName(name); holder != nil && holder != c {
		// Someone else is live under this name; the resuming client must
		// fall back to the prompt flow.
		c.send(&Event{Kind: EventIdentityRejected, Name: name})
		return
	}
	exists, err := h.store.UserExists(ctx, name)
	if err != nil {
		h.fail(c, "remember name", err)
		return
	}
	if !exists {
		// Good-faith re-establish, e.g. after a server restart wiped state.
		if err := h.store.CreateUser(ctx, name); err != nil {
			h.fail(c, "remember name", err)
			return
		}
	}
	c.Name = name
	c.send(&Event{Kind: EventIdentity, Name: name})
}

func (h *Hub) handleLogout(ctx context.Context, c *Client) {
	if c.Name != "" {
		if err := h.store.DeleteUser(ctx, c.Name); err != nil && !errors.Is(err, store.ErrUserNotFound) {
			h.fail(c, "logout", err)
			return
		}
	}
	h.leaveCurrent(c)
	c.Name = ""
	c.send(&Event{Kind: EventLoggedOut})
}

// ==== Directory ====

func (h *Hub) handleListRooms(ctx context.Context, c *Client, cmd *Command) {
	var (
		rooms []string
		err   error
	)
	switch cmd.Visibility {
	case store.VisibilityPublic:
		rooms, err = h.store.ListPublicRooms(ctx)
	case store.VisibilityPrivate:
		if c.Name == "" {
			c.sendError(ErrCodeNotIdentified, "claim a name first")
			return
		}
		rooms, err = h.store.ListPrivateRooms(ctx, c.Name)
	default:
		c.sendError(ErrCodeBadRequest, "unknown visibility")
		return
	}
	if err != nil {
		h.fail(c, "list rooms", err)
		return
	}
	c.send(&Event{Kind: EventRoomList, Visibility: cmd.Visibility, Rooms: rooms})
}

func (h *Hub) handleCreateRoom(ctx context.Context, c *Client, cmd *Command) {
	if c.Name == "" {
		c.sendError(ErrCodeNotIdentified, "claim a name first")
		return
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		c.sendError(ErrCodeBadRequest, "room name is required")
		return
	}
	if !cmd.Visibility.Valid() {
		c.sendError(ErrCodeBadRequest, "unknown visibility")
		return
	}

	room, err := h.store.CreateRoom(ctx, name, cmd.Visibility)
	if errors.Is(err, store.ErrRoomExists) {
		c.send(&Event{Kind: EventRoomCreateFailed, Room: name})
		return
	}
	if err != nil {
		h.fail(c, "create room", err)
		return
	}

	if room.Visibility == store.VisibilityPrivate {
		if _, err := h.store.AddMember(ctx, room.Name, c.Name); err != nil {
			h.fail(c, "create room", err)
			return
		}
	}

	created := &Event{Kind: EventRoomCreated, Room: room.Name, Visibility: room.Visibility}
	if room.Visibility == store.VisibilityPublic {
		h.broadcastIdentified(created)
	} else {
		c.send(created)
	}

	// The creator lands in the new room right away.
	h.openRoomFor(ctx, c, room.Name)
}

// ==== Room session ====

func (h *Hub) handleOpenRoom(ctx context.Context, c *Client, cmd *Command) {
	if c.Name == "" {
		c.sendError(ErrCodeNotIdentified, "claim a name first")
		return
	}
	room := strings.TrimSpace(cmd.Room)
	if room == "" {
		c.sendError(ErrCodeBadRequest, "room is required")
		return
	}
	h.openRoomFor(ctx, c, room)
}

func (h *Hub) openRoomFor(ctx context.Context, c *Client, name string) {
	room, err := h.store.GetRoom(ctx, name)
	if errors.Is(err, store.ErrRoomNotFound) {
		h.missing(c, name)
		return
	}
	if err != nil {
		h.fail(c, "open room", err)
		return
	}

	members := []string{}
	if room.Visibility == store.VisibilityPrivate {
		member, err := h.store.IsMember(ctx, room.Name, c.Name)
		if err != nil {
			h.fail(c, "open room", err)
			return
		}
		if !member {
			// A non-member sees the same outcome as a missing room.
			h.missing(c, name)
			return
		}
		members, err = h.store.ListMembers(ctx, room.Name)
		if err != nil {
			h.fail(c, "open room", err)
			return
		}
	}

	history, err := h.store.ListMessages(ctx, room.Name)
	if err != nil {
		h.fail(c, "open room", err)
		return
	}

	h.leaveCurrent(c)
	c.Room = room.Name
	subs, ok := h.open[room.Name]
	if !ok {
		subs = newSubscribers(room.Name)
		h.open[room.Name] = subs
	}
	subs.add(c)

	messages := make([]Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, Message{
			ID:        m.ID,
			Room:      m.Room,
			From:      m.Author,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	c.send(&Event{
		Kind:       EventRoomOpened,
		Room:       room.Name,
		Visibility: room.Visibility,
		Messages:   messages,
		Members:    members,
	})
}

func (h *Hub) missing(c *Client, room string) {
	h.leaveCurrent(c)
	c.send(&Event{Kind: EventRoomMissing, Room: room})
}

func (h *Hub) leaveCurrent(c *Client) {
	if c.Room == "" {
		return
	}
	if subs, ok := h.open[c.Room]; ok {
		subs.remove(c)
		if subs.empty() {
			delete(h.open, c.Room)
		}
	}
	c.Room = ""
}

// ==== Membership ====

func (h *Hub) handleAddMember(ctx context.Context, c *Client, cmd *Command) {
	if c.Name == "" {
		c.sendError(ErrCodeNotIdentified, "claim a name first")
		return
	}
	member := strings.TrimSpace(cmd.Member)
	if member == "" {
		c.sendError(ErrCodeBadRequest, "member is required")
		return
	}

	room, err := h.store.GetRoom(ctx, cmd.Room)
	if errors.Is(err, store.ErrRoomNotFound) {
		c.sendError(ErrCodeRoomNotFound, "no such room")
		return
	}
	if err != nil {
		h.fail(c, "add member", err)
		return
	}
	if room.Visibility != store.VisibilityPrivate {
		c.sendError(ErrCodeNotPrivate, "only private rooms have members")
		return
	}

	// Only members may grow the member set; to anyone else the room might
	// as well not exist.
	requesterIsMember, err := h.store.IsMember(ctx, room.Name, c.Name)
	if err != nil {
		h.fail(c, "add member", err)
		return
	}
	if !requesterIsMember {
		c.sendError(ErrCodeRoomNotFound, "no such room")
		return
	}

	added, err := h.store.AddMember(ctx, room.Name, member)
	if err != nil {
		h.fail(c, "add member", err)
		return
	}
	members, err := h.store.ListMembers(ctx, room.Name)
	if err != nil {
		h.fail(c, "add member", err)
		return
	}

	event := &Event{Kind: EventMemberAdded, Room: room.Name, Members: members}
	if !added {
		// Already a member; ack the requester only.
		c.send(event)
		return
	}
	h.broadcastIdentified(event)
}

// ==== Messages ====

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, cmd *Command) {
	if c.Name == "" {
		c.sendError(ErrCodeNotIdentified, "claim a name first")
		return
	}
	content := strings.TrimSpace(cmd.Message.Content)
	if content == "" {
		c.sendError(ErrCodeBadRequest, "message content is required")
		return
	}

	room, err := h.store.GetRoom(ctx, cmd.Room)
	if errors.Is(err, store.ErrRoomNotFound) {
		c.sendError(ErrCodeRoomNotFound, "no such room")
		return
	}
	if err != nil {
		h.fail(c, "send message", err)
		return
	}
	if room.Visibility == store.VisibilityPrivate {
		member, err := h.store.IsMember(ctx, room.Name, c.Name)
		if err != nil {
			h.fail(c, "send message", err)
			return
		}
		if !member {
			c.sendError(ErrCodeRoomNotFound, "no such room")
			return
		}
	}

	// The hub, not the client payload, decides the author.
	msg := Message{
		Room:      room.Name,
		From:      c.Name,
		Content:   content,
		Timestamp: cmd.Message.Timestamp,
	}

	if err := h.store.AppendMessage(ctx, store.Message{
		Room:      msg.Room,
		Author:    msg.From,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}, h.historyLimit); err != nil {
		h.fail(c, "send message", err)
		return
	}

	if subs, ok := h.open[room.Name]; ok {
		subs.broadcast(&Event{Kind: EventRoomMessage, Room: room.Name, Message: msg})
	}
}

// ==== Helpers ====

func (h *Hub) broadcastIdentified(event *Event) {
	for client := range h.clients {
		if client.Name != "" {
			client.send(event)
		}
	}
}

func (h *Hub) clientByName(name string) *Client {
	for client := range h.clients {
		if client.Name == name {
			return client
		}
	}
	return nil
}

func (h *Hub) fail(c *Client, op string, err error) {
	h.log.Error().Err(err).Str("client_id", c.ID).Msg(op)
	c.sendError(ErrCodeInternal, op+" failed")
}
