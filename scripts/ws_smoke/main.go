package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Ladkan/MeChat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8000/ws", "WebSocket address")
	session := flag.String("session", "", "session token sent as the session_token cookie")
	token := flag.String("token", "", "JWT sent as a Bearer token")
	room := flag.String("room", "general", "room id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	header := http.Header{}
	if *session != "" {
		header.Set("Cookie", "session_token="+*session)
	}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(event string, data any) error {
		env, err := proto.NewEnvelope(event, data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event, err)
		}
		if err := wsjson.Write(ctx, conn, env); err != nil {
			return fmt.Errorf("send %s: %w", event, err)
		}
		return nil
	}

	if err := send(proto.EventJoinRoom, *room); err != nil {
		return err
	}
	if err := send(proto.EventSendMessage, proto.SendMessageData{RoomID: *room, Content: *text}); err != nil {
		return err
	}

	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				return fmt.Errorf("server closed connection: %v", status)
			}
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received %s: %s\n", env.Event, env.Data)
		switch env.Event {
		case proto.EventReceiveMessage:
			return nil
		case proto.EventError:
			return fmt.Errorf("server error: %s", env.Data)
		}
	}
}
