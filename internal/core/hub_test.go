package core

import (
	"context"
	"testing"
	"time"

	"github.com/izbachat/izba/internal/store"
	"github.com/izbachat/izba/internal/store/sqlite"
)

func startHub(t *testing.T) *Hub {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(st, nil, 100)
	go hub.Run(ctx)
	return hub
}

func identify(t *testing.T, hub *Hub, id, name string) *Client {
	t.Helper()

	c := NewClient(id)
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandClaimName, Name: name}
	ev := mustEvent(t, c.Events, EventIdentity)
	if ev.Name != name {
		t.Fatalf("unexpected identity: %+v", ev)
	}
	return c
}

func TestClaimRaceHasOneWinner(t *testing.T) {
	hub := startHub(t)

	a := NewClient("a")
	b := NewClient("b")
	hub.RegisterClient(a)
	hub.RegisterClient(b)

	a.Commands <- &Command{Kind: CommandClaimName, Name: "alice"}
	b.Commands <- &Command{Kind: CommandClaimName, Name: "alice"}

	evA := nextEvent(t, a.Events)
	evB := nextEvent(t, b.Events)

	winners := 0
	for _, ev := range []*Event{evA, evB} {
		switch ev.Kind {
		case EventIdentity:
			winners++
		case EventError:
			if ev.Error == nil || ev.Error.Code != ErrCodeNameTaken {
				t.Fatalf("expected name_taken, got %+v", ev)
			}
		default:
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestCheckNameReportsAvailability(t *testing.T) {
	hub := startHub(t)
	identify(t, hub, "a", "alice")

	probe := NewClient("p")
	hub.RegisterClient(probe)

	probe.Commands <- &Command{Kind: CommandCheckName, Name: "alice"}
	ev := mustEvent(t, probe.Events, EventNameCheck)
	if ev.Available || ev.Name != "alice" {
		t.Fatalf("expected alice to be taken, got %+v", ev)
	}

	probe.Commands <- &Command{Kind: CommandCheckName, Name: "bob"}
	ev = mustEvent(t, probe.Events, EventNameCheck)
	if !ev.Available {
		t.Fatalf("expected bob to be available, got %+v", ev)
	}
}

func TestLogoutFreesName(t *testing.T) {
	hub := startHub(t)
	alice := identify(t, hub, "a", "alice")

	alice.Commands <- &Command{Kind: CommandLogout}
	mustEvent(t, alice.Events, EventLoggedOut)

	// The freed name can be claimed by someone else.
	identify(t, hub, "b", "alice")
}

func TestRememberReestablishesFreeName(t *testing.T) {
	hub := startHub(t)

	c := NewClient("a")
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandRememberName, Name: "carol"}
	ev := mustEvent(t, c.Events, EventIdentity)
	if ev.Name != "carol" {
		t.Fatalf("unexpected identity: %+v", ev)
	}
}

func TestRememberRejectedWhenNameHeldByLiveClient(t *testing.T) {
	hub := startHub(t)
	identify(t, hub, "a", "alice")

	thief := NewClient("b")
	hub.RegisterClient(thief)
	thief.Commands <- &Command{Kind: CommandRememberName, Name: "alice"}

	ev := mustEvent(t, thief.Events, EventIdentityRejected)
	if ev.Name != "alice" {
		t.Fatalf("unexpected rejection: %+v", ev)
	}
}

func TestRoomNameUniqueAcrossVisibilities(t *testing.T) {
	hub := startHub(t)
	alice := identify(t, hub, "a", "alice")

	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "lobby", Visibility: store.VisibilityPublic}
	mustEvent(t, alice.Events, EventRoomCreated)
	mustEvent(t, alice.Events, EventRoomOpened)

	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "lobby", Visibility: store.VisibilityPrivate}
	ev := mustEvent(t, alice.Events, EventRoomCreateFailed)
	if ev.Room != "lobby" {
		t.Fatalf("unexpected create failure: %+v", ev)
	}

	alice.Commands <- &Command{Kind: CommandListRooms, Visibility: store.VisibilityPublic}
	list := mustEvent(t, alice.Events, EventRoomList)
	seen := 0
	for _, room := range list.Rooms {
		if room == "lobby" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("expected lobby exactly once, got %v", list.Rooms)
	}
}

func TestPrivateRoomNonMemberLooksMissing(t *testing.T) {
	hub := startHub(t)
	alice := identify(t, hub, "a", "alice")
	bob := identify(t, hub, "b", "bob")

	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "team", Visibility: store.VisibilityPrivate}
	mustEvent(t, alice.Events, EventRoomOpened)

	bob.Commands <- &Command{Kind: CommandOpenRoom, Room: "team"}
	asNonMember := mustEvent(t, bob.Events, EventRoomMissing)

	bob.Commands <- &Command{Kind: CommandOpenRoom, Room: "ghost"}
	asMissing := mustEvent(t, bob.Events, EventRoomMissing)

	if asNonMember.Kind != asMissing.Kind {
		t.Fatalf("outcomes differ: %+v vs %+v", asNonMember, asMissing)
	}
}

func TestMessageDeliveryFiltersByOpenRoom(t *testing.T) {
	hub := startHub(t)
	alice := identify(t, hub, "a", "alice")
	bob := identify(t, hub, "b", "bob")

	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "general", Visibility: store.VisibilityPublic}
	mustEvent(t, alice.Events, EventRoomOpened)

	bob.Commands <- &Command{Kind: CommandOpenRoom, Room: "general"}
	mustEvent(t, bob.Events, EventRoomOpened)

	alice.Commands <- &Command{
		Kind:    CommandSendMessage,
		Room:    "general",
		Message: Message{Content: "hi", Timestamp: "25 Jan 21:44"},
	}
	ev := mustEvent(t, bob.Events, EventRoomMessage)
	if ev.Message.From != "alice" || ev.Message.Content != "hi" || ev.Message.Room != "general" {
		t.Fatalf("unexpected message event: %+v", ev)
	}

	// Bob switches rooms before the next message; it must not reach him.
	bob.Commands <- &Command{Kind: CommandCreateRoom, Name: "aside", Visibility: store.VisibilityPublic}
	mustEvent(t, bob.Events, EventRoomOpened)

	alice.Commands <- &Command{
		Kind:    CommandSendMessage,
		Room:    "general",
		Message: Message{Content: "still there?", Timestamp: "25 Jan 21:45"},
	}
	mustEvent(t, alice.Events, EventRoomMessage) // sender still has it open
	expectNoEvent(t, bob.Events, EventRoomMessage)
}

func TestOpenRoomReplacesPriorRoom(t *testing.T) {
	hub := startHub(t)
	alice := identify(t, hub, "a", "alice")
	bob := identify(t, hub, "b", "bob")

	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "one", Visibility: store.VisibilityPublic}
	mustEvent(t, alice.Events, EventRoomOpened)
	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "two", Visibility: store.VisibilityPublic}
	mustEvent(t, alice.Events, EventRoomOpened)

	bob.Commands <- &Command{Kind: CommandOpenRoom, Room: "one"}
	mustEvent(t, bob.Events, EventRoomOpened)

	// Alice now has "two" open; a message to "one" must not reach her.
	bob.Commands <- &Command{
		Kind:    CommandSendMessage,
		Room:    "one",
		Message: Message{Content: "hello one", Timestamp: "25 Jan 21:44"},
	}
	expectNoEvent(t, alice.Events, EventRoomMessage)
}

func TestAddMemberOnPublicRoomRejected(t *testing.T) {
	hub := startHub(t)
	alice := identify(t, hub, "a", "alice")

	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "open-room", Visibility: store.VisibilityPublic}
	mustEvent(t, alice.Events, EventRoomOpened)

	alice.Commands <- &Command{Kind: CommandAddMember, Room: "open-room", Member: "bob"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotPrivate {
		t.Fatalf("expected not_private error, got %+v", ev)
	}
}

func TestPrivateRoomScenario(t *testing.T) {
	hub := startHub(t)
	alice := identify(t, hub, "a", "alice")
	bob := identify(t, hub, "b", "bob")

	// Alice creates the private room and lands in it with herself as member.
	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "team", Visibility: store.VisibilityPrivate}
	created := mustEvent(t, alice.Events, EventRoomCreated)
	if created.Visibility != store.VisibilityPrivate {
		t.Fatalf("unexpected room_created: %+v", created)
	}
	opened := mustEvent(t, alice.Events, EventRoomOpened)
	if len(opened.Members) != 1 || opened.Members[0] != "alice" {
		t.Fatalf("expected members [alice], got %v", opened.Members)
	}

	// Alice appears in her own private list.
	alice.Commands <- &Command{Kind: CommandListRooms, Visibility: store.VisibilityPrivate}
	list := mustEvent(t, alice.Events, EventRoomList)
	if len(list.Rooms) != 1 || list.Rooms[0] != "team" {
		t.Fatalf("expected private list [team], got %v", list.Rooms)
	}

	// Adding bob pushes the updated member set to identified clients.
	alice.Commands <- &Command{Kind: CommandAddMember, Room: "team", Member: "bob"}
	delta := mustEvent(t, bob.Events, EventMemberAdded)
	if delta.Room != "team" || len(delta.Members) != 2 {
		t.Fatalf("unexpected member_added: %+v", delta)
	}

	// Bob's next private fetch includes the room, and he can open it.
	bob.Commands <- &Command{Kind: CommandListRooms, Visibility: store.VisibilityPrivate}
	list = mustEvent(t, bob.Events, EventRoomList)
	if len(list.Rooms) != 1 || list.Rooms[0] != "team" {
		t.Fatalf("expected bob's private list [team], got %v", list.Rooms)
	}
	bob.Commands <- &Command{Kind: CommandOpenRoom, Room: "team"}
	mustEvent(t, bob.Events, EventRoomOpened)

	alice.Commands <- &Command{
		Kind:    CommandSendMessage,
		Room:    "team",
		Message: Message{Content: "hi", Timestamp: "25 Jan 21:44"},
	}
	msg := mustEvent(t, bob.Events, EventRoomMessage)
	if msg.Message.From != "alice" || msg.Message.Content != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestOpenRoomDeliversHistoryInOrder(t *testing.T) {
	hub := startHub(t)
	alice := identify(t, hub, "a", "alice")
	bob := identify(t, hub, "b", "bob")

	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "general", Visibility: store.VisibilityPublic}
	mustEvent(t, alice.Events, EventRoomOpened)

	for _, text := range []string{"first", "second", "third"} {
		alice.Commands <- &Command{
			Kind:    CommandSendMessage,
			Room:    "general",
			Message: Message{Content: text, Timestamp: "25 Jan 21:44"},
		}
		mustEvent(t, alice.Events, EventRoomMessage)
	}

	bob.Commands <- &Command{Kind: CommandOpenRoom, Room: "general"}
	opened := mustEvent(t, bob.Events, EventRoomOpened)
	if len(opened.Messages) != 3 {
		t.Fatalf("expected 3 history messages, got %d", len(opened.Messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		if opened.Messages[i].Content != want {
			t.Fatalf("history out of order: %+v", opened.Messages)
		}
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	hub := startHub(t)
	alice := identify(t, hub, "a", "alice")

	alice.Commands <- &Command{Kind: CommandCreateRoom, Name: "general", Visibility: store.VisibilityPublic}
	mustEvent(t, alice.Events, EventRoomOpened)

	alice.Commands <- &Command{
		Kind:    CommandSendMessage,
		Room:    "general",
		Message: Message{Content: "   ", Timestamp: "25 Jan 21:44"},
	}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", ev)
	}
}
