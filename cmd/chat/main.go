package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/izbachat/izba/internal/client"
	"github.com/izbachat/izba/internal/log"
	"github.com/izbachat/izba/internal/proto"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "izba-chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	stateFlag := flag.String("state", "", "session file path (default: user config dir)")
	logLevel := flag.String("log-level", "error", "log level")
	flag.Parse()

	logger := log.New(*logLevel)

	statePath := *stateFlag
	if statePath == "" {
		resolved, err := client.DefaultStatePath()
		if err != nil {
			logger.Warn().Err(err).Msg("session file unavailable, state is memory-only")
		} else {
			statePath = resolved
		}
	}
	state, err := client.LoadLocalState(statePath)
	if err != nil {
		return fmt.Errorf("load session file: %w", err)
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	sender := client.SenderFunc(func(ctx context.Context, inbound proto.Inbound) error {
		return wsjson.Write(ctx, conn, inbound)
	})
	session := client.NewSession(sender, state, logger)

	frames := make(chan client.Frame, 16)
	go func() {
		defer cancel()
		readLoop(ctx, conn, frames)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Commands: /login <name>, /rooms, /join <room>, /create <room> [public], /invite <user>, /logout, /quit.")
	fmt.Println("Anything else is sent to the open room.")

	if _, err := session.Resume(ctx); err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// All session access stays on this goroutine.
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := session.Handle(ctx, frame); err != nil {
				logger.Warn().Err(err).Str("event", frame.Event).Msg("handle frame")
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := dispatch(ctx, session, line)
			if err != nil {
				fmt.Printf("! %v\n", err)
			}
			if quit {
				return nil
			}
		case <-ticker.C:
			session.CheckTimeouts()
		case n := <-session.Notifications():
			printNotification(session, n)
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, frames chan<- client.Frame) {
	defer close(frames)
	for {
		var frame client.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			fmt.Printf("! connection lost: %v\n", err)
			return
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func dispatch(ctx context.Context, s *client.Session, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, s.Send(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/login":
		return false, s.RequestName(ctx, arg)
	case "/rooms":
		return false, s.RefreshRooms(ctx)
	case "/join":
		return false, s.OpenRoom(ctx, arg)
	case "/create":
		name, visibility, _ := strings.Cut(arg, " ")
		return false, s.CreateRoom(ctx, name, strings.TrimSpace(visibility) == "public")
	case "/invite":
		return false, s.AddMember(ctx, arg)
	case "/logout":
		return false, s.Logout(ctx)
	case "/quit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %s", command)
	}
}

func printNotification(s *client.Session, n client.Notification) {
	switch n.Kind {
	case client.NotifyPromptName:
		if n.Reason != "" {
			fmt.Printf("! %s\n", n.Reason)
		}
		fmt.Println("Pick a display name with /login <name>.")
	case client.NotifyLoggedIn:
		fmt.Printf("Logged in as %s.\n", n.Reason)
	case client.NotifyLoggedOut:
		fmt.Println("Logged out.")
	case client.NotifyRoomLists:
		printRooms(s)
	case client.NotifyRoomOpened:
		fmt.Printf("--- %s ---\n", s.Header())
		for _, msg := range s.Messages() {
			printMessage(msg)
		}
	case client.NotifyRoomClosed:
		fmt.Println("That room is gone. Pick another with /join <room>.")
	case client.NotifyMembersChanged:
		fmt.Printf("Members: %s\n", strings.Join(s.Members(), ", "))
	case client.NotifyMessage:
		printMessage(n.Message)
	case client.NotifyError:
		fmt.Printf("! %s\n", n.Reason)
	}
}

func printRooms(s *client.Session) {
	if rooms := s.PublicRooms(); len(rooms) > 0 {
		fmt.Printf("Public rooms: %s\n", strings.Join(rooms, ", "))
	}
	if rooms := s.PrivateRooms(); len(rooms) > 0 {
		fmt.Printf("Your private rooms: %s\n", strings.Join(rooms, ", "))
	}
}

func printMessage(msg client.Message) {
	author := msg.Author
	if msg.Own {
		author = "you"
	}
	fmt.Printf("[%s] %s: %s\n", msg.Timestamp, author, msg.Content)
}
