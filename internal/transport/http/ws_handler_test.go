package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/izbachat/izba/internal/config"
	"github.com/izbachat/izba/internal/core"
	"github.com/izbachat/izba/internal/proto"
	"github.com/izbachat/izba/internal/store/sqlite"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := core.NewHub(st, nil, 100)
	go hub.Run(ctx)

	server := NewServer(hub, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		MessageRateLimit:  1000,
	}, testLogger())

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketChatFlow(t *testing.T) {
	ts := startTestServer(t)
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dial(t, ctx, wsURL)
	connB := dial(t, ctx, wsURL)

	// Both clients claim identities.
	sendInbound(t, ctx, connA, proto.InboundTypeClaimName, proto.NameData{Name: "alice"})
	awaitEvent(t, ctx, connA, proto.EventIdentity)
	sendInbound(t, ctx, connB, proto.InboundTypeClaimName, proto.NameData{Name: "bob"})
	awaitEvent(t, ctx, connB, proto.EventIdentity)

	// Alice creates a public room and is dropped into it.
	sendInbound(t, ctx, connA, proto.InboundTypeCreateRoom, proto.CreateRoomData{
		Name:       "general",
		Visibility: "public",
	})
	awaitEvent(t, ctx, connA, proto.EventRoomOpened)

	// Bob saw the broadcast and opens the room too.
	awaitEvent(t, ctx, connB, proto.EventRoomCreated)
	sendInbound(t, ctx, connB, proto.InboundTypeOpenRoom, proto.OpenRoomData{User: "bob", Room: "general"})
	awaitEvent(t, ctx, connB, proto.EventRoomOpened)

	// A message from alice reaches bob with the display timestamp intact.
	sendInbound(t, ctx, connA, proto.InboundTypeMsg, proto.MsgData{
		Room:    "general",
		User:    "alice",
		Content: "hi there",
		TS:      "25 Jan 21:44",
	})

	outbound := awaitEvent(t, ctx, connB, proto.EventMessage)
	var event proto.EventMessage
	decodeData(t, outbound.Data, &event)
	if event.User != "alice" || event.Content != "hi there" || event.Room != "general" || event.TS != "25 Jan 21:44" {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestWebSocketStaleRoom(t *testing.T) {
	ts := startTestServer(t)
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, wsURL)
	sendInbound(t, ctx, conn, proto.InboundTypeClaimName, proto.NameData{Name: "alice"})
	awaitEvent(t, ctx, conn, proto.EventIdentity)

	sendInbound(t, ctx, conn, proto.InboundTypeOpenRoom, proto.OpenRoomData{User: "alice", Room: "forgotten"})
	outbound := awaitEvent(t, ctx, conn, proto.EventRoomMissing)

	var missing proto.EventRoomMissingData
	decodeData(t, outbound.Data, &missing)
	if missing.Room != "forgotten" {
		t.Fatalf("unexpected room_missing payload: %+v", missing)
	}
}

// ==== helpers ====

func testLogger() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// awaitEvent reads outbound frames until one with the wanted event name
// arrives. Unrelated pushes (room lists, broadcasts) are skipped.
func awaitEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) rawOutbound {
	t.Helper()

	for {
		var outbound rawOutbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			t.Fatalf("read waiting for %s: %v", event, err)
		}
		if outbound.Type == proto.OutboundTypeError {
			t.Fatalf("error waiting for %s: %+v", event, outbound.Error)
		}
		if outbound.Event == event {
			return outbound
		}
	}
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func decodeData(t *testing.T, data json.RawMessage, v any) {
	t.Helper()

	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}
