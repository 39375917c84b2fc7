package http

import (
	"context"
	"database/sql"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Ladkan/MeChat/internal/auth"
	"github.com/Ladkan/MeChat/internal/config"
	"github.com/Ladkan/MeChat/internal/core"
	"github.com/Ladkan/MeChat/internal/log"
	"github.com/Ladkan/MeChat/internal/proto"
	"github.com/Ladkan/MeChat/internal/store/sqlite"
)

const testRoom = "r-general"

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	hub   *core.Hub
	jwt   *auth.JWTConfig
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		if _, err := db.Exec(sqlite.Schema()); err != nil {
			return err
		}
		_, err := db.Exec(`
		INSERT INTO users (id, name, email, created_at) VALUES
			('u-alice', 'Alice', 'alice@example.com', 0),
			('u-bob', 'Bob', 'bob@example.com', 0);
		INSERT INTO sessions (token, user_id, expires_at) VALUES
			('tok-alice', 'u-alice', 9000000000000000000),
			('tok-bob', 'u-bob', 9000000000000000000),
			('tok-stale', 'u-bob', 1);
		INSERT INTO rooms (id, name, creator_id, created_at) VALUES
			('r-general', 'general', 'u-alice', 0);
		`)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func startTestServer(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.JWTSecret = "test-secret"
	for _, m := range mutate {
		m(&cfg)
	}

	logger := log.Nop()
	st := newTestStore(t)
	jwtCfg := &auth.JWTConfig{Secret: []byte(cfg.JWTSecret), TTL: time.Hour}
	gate := auth.NewGate(
		auth.NewSessionResolver(st, cfg.SessionCookie),
		auth.NewJWTResolver(jwtCfg, ""),
	)

	var policy core.JoinPolicy = core.AllowAll{}
	if cfg.StrictJoin {
		policy = core.KnownRoomPolicy{Rooms: st}
	}
	hub := core.NewHub(st, policy, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := NewServer(hub, gate, st, &cfg, logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return &testEnv{ts: ts, store: st, hub: hub, jwt: jwtCfg}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// dial connects with a session cookie; an empty token sends no credentials.
func (e *testEnv) dial(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()

	opts := &websocket.DialOptions{HTTPHeader: stdhttp.Header{}}
	if token != "" {
		opts.HTTPHeader.Set("Cookie", "session_token="+token)
	}
	conn, _, err := websocket.Dial(ctx, e.wsURL(), opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func (e *testEnv) request(t *testing.T, method, path, token string) *stdhttp.Response {
	t.Helper()

	req, err := stdhttp.NewRequest(method, e.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.AddCookie(&stdhttp.Cookie{Name: "session_token", Value: token})
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	env, err := proto.NewEnvelope(event, data)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if err := wsjson.Write(ctx, conn, env); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func readEnvelope(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.Envelope {
	t.Helper()

	var env proto.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func expectEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) proto.Envelope {
	t.Helper()

	env := readEnvelope(ctx, t, conn)
	if env.Event != event {
		t.Fatalf("expected %s, got %s (%s)", event, env.Event, env.Data)
	}
	return env
}

func join(ctx context.Context, t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()

	send(ctx, t, conn, proto.EventJoinRoom, room)
	expectEvent(ctx, t, conn, proto.EventRoomJoined)
}

// closeStatus reads until the server closes the connection.
func closeStatus(ctx context.Context, t *testing.T, conn *websocket.Conn) websocket.CloseError {
	t.Helper()

	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			continue
		}
		var ce websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("expected close frame, got %v", err)
		}
		return ce
	}
}
