package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8888/ws", "WebSocket address")
	user := flag.String("user", "", "nickname to set after connecting")
	room := flag.String("room", "lobby", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *user != "" {
		if err := send(ctx, conn, proto.InboundTypeSetNickname, proto.NicknameData{Username: *user}); err != nil {
			return err
		}
	}
	if err := send(ctx, conn, proto.InboundTypeSubscribe, proto.SubscribeData{Rooms: []string{*room}}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s in room %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. /rooms, /users, /nick <name>, /join <room>, /leave <room>. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out frame
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		if out.Type == proto.OutboundTypeError && out.Error != nil {
			fmt.Printf("error %s: %s\n", out.Error.Code, out.Error.Msg)
			continue
		}
		printEvent(out)
	}
}

func printEvent(out frame) {
	switch out.Event {
	case "newMessage":
		var evt proto.EventMessage
		if err := json.Unmarshal(out.Data, &evt); err == nil {
			fmt.Printf("[%s] %s: %s\n", evt.Room, evt.Username, evt.Msg)
			return
		}
	case "userJoinsRoom", "userLeavesRoom":
		var evt proto.EventPresence
		if err := json.Unmarshal(out.Data, &evt); err == nil {
			fmt.Printf("[%s] %s %s\n", evt.Room, evt.Username, evt.Msg)
			return
		}
	case "userNicknameUpdated":
		var evt proto.EventNickname
		if err := json.Unmarshal(out.Data, &evt); err == nil {
			fmt.Printf("[%s] %s is now %s\n", evt.Room, evt.OldUsername, evt.NewUsername)
			return
		}
	case "usersInRoom":
		var evt proto.EventUsers
		if err := json.Unmarshal(out.Data, &evt); err == nil {
			for _, u := range evt.Users {
				fmt.Printf("  %s (%s)\n", u.Username, u.ID)
			}
			return
		}
	}
	fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			cmd, arg, _ := strings.Cut(text, " ")
			switch cmd {
			case "/rooms":
				err = send(ctx, conn, proto.InboundTypeGetRooms, struct{}{})
			case "/users":
				err = send(ctx, conn, proto.InboundTypeGetUsersInRoom, proto.RoomData{Room: room})
			case "/nick":
				err = send(ctx, conn, proto.InboundTypeSetNickname, proto.NicknameData{Username: arg})
			case "/join":
				room = arg
				err = send(ctx, conn, proto.InboundTypeSubscribe, proto.SubscribeData{Rooms: []string{arg}})
			case "/leave":
				err = send(ctx, conn, proto.InboundTypeUnsubscribe, proto.SubscribeData{Rooms: []string{arg}})
			default:
				err = send(ctx, conn, proto.InboundTypeNewMessage, proto.MessageData{Room: room, Msg: text})
			}
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
