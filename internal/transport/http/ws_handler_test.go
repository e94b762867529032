package http

import (
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func startTestServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	ts, _ := startHubServer(t, cfg)
	return ts
}

// startHubServer serves NewServer's handler the way the process does and
// returns the hub behind it.
func startHubServer(t *testing.T, cfg config.Config) (*httptest.Server, *core.Hub) {
	t.Helper()

	hub := core.NewHub(core.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	select {
	case <-hub.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("hub not ready")
	}

	disabledLogger := zerolog.Nop()
	server := NewServer(hub, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return ts, hub
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	c := &wsClient{t: t, conn: conn}
	c.expect(core.EventConnected.String(), "")
	c.expect(core.EventSubscriptionConfirmed.String(), core.DefaultMainRoom)
	return c
}

func (c *wsClient) send(typ string, data any) {
	c.t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		c.t.Fatalf("send %s: %v", typ, err)
	}
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// read returns the next frame of the given type and event name, skipping
// others. An empty room matches any room.
func (c *wsClient) read(typ, event, room string) rawOutbound {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, c.conn, &out); err != nil {
			c.t.Fatalf("waiting for %s %s: %v", typ, event, err)
		}
		if out.Type != typ || out.Event != event {
			continue
		}
		if room != "" {
			var r proto.EventRoom
			_ = json.Unmarshal(out.Data, &r)
			if r.Room != room {
				continue
			}
		}
		return out
	}
}

func (c *wsClient) expect(event, room string) json.RawMessage {
	c.t.Helper()
	return c.read(proto.OutboundTypeEvent, event, room).Data
}

func TestHealthAndWelcome(t *testing.T) {
	ts := startTestServer(t, config.Default())

	for path, want := range map[string]string{"/": WelcomeText, "/health": "ok"} {
		resp, err := ts.Client().Get(ts.URL + path)
		if err != nil {
			t.Fatalf("%s request failed: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != stdhttp.StatusOK || string(body) != want {
			t.Fatalf("%s: status %d body %q", path, resp.StatusCode, body)
		}
	}
}

func TestWebSocketLobbyMessage(t *testing.T) {
	ts := startTestServer(t, config.Default())

	alice := dial(t, ts)
	alice.send(proto.InboundTypeSubscribe, proto.SubscribeData{Rooms: []string{"lobby"}})
	alice.expect("subscriptionConfirmed", "lobby")

	bob := dial(t, ts)
	bob.send(proto.InboundTypeSubscribe, proto.SubscribeData{Rooms: []string{"lobby"}})
	bob.expect("subscriptionConfirmed", "lobby")

	var joined proto.EventPresence
	if err := json.Unmarshal(alice.expect("userJoinsRoom", "lobby"), &joined); err != nil {
		t.Fatal(err)
	}
	// Alice sees her own join first, then Bob's.
	if err := json.Unmarshal(alice.expect("userJoinsRoom", "lobby"), &joined); err != nil {
		t.Fatal(err)
	}
	if joined.Msg != core.JoinedNotice || joined.ID == "" {
		t.Fatalf("unexpected join payload: %+v", joined)
	}

	bob.send(proto.InboundTypeSetNickname, proto.NicknameData{Username: "bob"})
	alice.send(proto.InboundTypeNewMessage, proto.MessageData{Room: "lobby", Msg: "hi"})

	var msg proto.EventMessage
	if err := json.Unmarshal(bob.expect("newMessage", "lobby"), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Username != "anonymous" || msg.Msg != "hi" || msg.Date == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339Nano, msg.Date); err != nil {
		t.Fatalf("date %q: %v", msg.Date, err)
	}

	var nick proto.EventNickname
	if err := json.Unmarshal(alice.expect("userNicknameUpdated", "lobby"), &nick); err != nil {
		t.Fatal(err)
	}
	if nick.OldUsername != "anonymous" || nick.NewUsername != "bob" {
		t.Fatalf("unexpected nickname payload: %+v", nick)
	}

	alice.send(proto.InboundTypeGetUsersInRoom, proto.RoomData{Room: "lobby"})
	var users proto.EventUsers
	if err := json.Unmarshal(alice.expect("usersInRoom", ""), &users); err != nil {
		t.Fatal(err)
	}
	if len(users.Users) != 2 {
		t.Fatalf("users = %+v", users.Users)
	}

	alice.send(proto.InboundTypeGetRooms, struct{}{})
	var rooms proto.EventRooms
	if err := json.Unmarshal(alice.expect("roomsReceived", ""), &rooms); err != nil {
		t.Fatal(err)
	}
	if len(rooms.Rooms) != 2 || rooms.Rooms[0] != core.DefaultMainRoom || rooms.Rooms[1] != "lobby" {
		t.Fatalf("rooms = %v", rooms.Rooms)
	}
}

func TestWebSocketDisconnectNotifiesRooms(t *testing.T) {
	ts := startTestServer(t, config.Default())

	alice := dial(t, ts)
	alice.send(proto.InboundTypeSubscribe, proto.SubscribeData{Rooms: []string{"lobby"}})
	alice.expect("subscriptionConfirmed", "lobby")

	bob := dial(t, ts)
	bob.send(proto.InboundTypeSubscribe, proto.SubscribeData{Rooms: []string{"lobby"}})
	bob.expect("subscriptionConfirmed", "lobby")

	bob.conn.Close(websocket.StatusNormalClosure, "bye")

	var left proto.EventPresence
	if err := json.Unmarshal(alice.expect("userLeavesRoom", "lobby"), &left); err != nil {
		t.Fatal(err)
	}
	if left.Msg != core.LeftNotice || left.Username != "anonymous" {
		t.Fatalf("unexpected leave payload: %+v", left)
	}
}

func TestWebSocketProtocolErrors(t *testing.T) {
	ts := startTestServer(t, config.Default())
	alice := dial(t, ts)

	alice.send("hello", struct{}{})
	out := alice.read(proto.OutboundTypeError, "", "")
	if out.Error == nil || out.Error.Code != core.ErrCodeInvalidMessage {
		t.Fatalf("unexpected error frame: %+v", out)
	}

	alice.send(proto.InboundTypeNewMessage, proto.MessageData{Msg: "no room"})
	out = alice.read(proto.OutboundTypeError, "", "")
	if out.Error == nil || out.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("unexpected error frame: %+v", out)
	}

	// The connection stays usable after a protocol error.
	alice.send(proto.InboundTypeSubscribe, proto.SubscribeData{Rooms: []string{"lobby"}})
	alice.expect("subscriptionConfirmed", "lobby")
}

func postBroadcast(t *testing.T, ts *httptest.Server, body, contentType, token string) (int, string) {
	t.Helper()
	req, err := stdhttp.NewRequest(stdhttp.MethodPost, ts.URL+"/api/broadcast/", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("broadcast request: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestBroadcastEndpoint(t *testing.T) {
	ts := startTestServer(t, config.Default())
	alice := dial(t, ts)
	alice.send(proto.InboundTypeSubscribe, proto.SubscribeData{Rooms: []string{"lobby"}})
	alice.expect("subscriptionConfirmed", "lobby")

	status, body := postBroadcast(t, ts, `{}`, "application/json", "")
	if status != stdhttp.StatusBadRequest || body != BroadcastNoMessageText {
		t.Fatalf("empty broadcast: %d %q", status, body)
	}

	status, body = postBroadcast(t, ts, `{"msg":"<b>maintenance</b>"}`, "application/json", "")
	if status != stdhttp.StatusCreated || body != BroadcastSentText {
		t.Fatalf("broadcast: %d %q", status, body)
	}
	for _, room := range []string{core.DefaultMainRoom, "lobby"} {
		var msg proto.EventMessage
		if err := json.Unmarshal(alice.expect("newMessage", room), &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Username != core.ServerBotName || msg.Msg != "maintenance" {
			t.Fatalf("unexpected broadcast in %s: %+v", room, msg)
		}
	}

	form := url.Values{"msg": {"form post"}}.Encode()
	status, _ = postBroadcast(t, ts, form, "application/x-www-form-urlencoded", "")
	if status != stdhttp.StatusCreated {
		t.Fatalf("form broadcast: %d", status)
	}
}

func TestBroadcastRequiresTokenWhenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Admin.JWTSecret = "s3cret"
	cfg.Admin.JWTIssuer = "wirechat"
	ts := startTestServer(t, cfg)

	status, _ := postBroadcast(t, ts, `{"msg":"hi"}`, "application/json", "")
	if status != stdhttp.StatusUnauthorized {
		t.Fatalf("missing token: %d", status)
	}
	status, _ = postBroadcast(t, ts, `{"msg":"hi"}`, "application/json", "garbage")
	if status != stdhttp.StatusUnauthorized {
		t.Fatalf("invalid token: %d", status)
	}

	token, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte("s3cret"), Issuer: "wirechat", TTL: time.Minute}, "ops")
	if err != nil {
		t.Fatal(err)
	}
	status, body := postBroadcast(t, ts, `{"msg":"hi"}`, "application/json", token)
	if status != stdhttp.StatusCreated || body != BroadcastSentText {
		t.Fatalf("authorized broadcast: %d %q", status, body)
	}
}

func TestWebSocketRouteServedByServerHandler(t *testing.T) {
	ts := startTestServer(t, config.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, strings.Replace(ts.URL, "http", "ws", 1)+"/ws", nil)
	if err != nil {
		t.Fatalf("upgrade through the server handler failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var out rawOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatal(err)
	}
	var hello proto.EventConnected
	if err := json.Unmarshal(out.Data, &hello); err != nil {
		t.Fatal(err)
	}
	if out.Event != core.EventConnected.String() || hello.Message != core.WelcomeText {
		t.Fatalf("unexpected greeting: %+v", out)
	}

	// The gin routes stay reachable behind the mux.
	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK || !strings.Contains(string(body), "wirechat_connections_active") {
		t.Fatalf("/metrics: status %d", resp.StatusCode)
	}
}

// readUntilClosed reads frames until the server closes the connection and
// returns the close status.
func readUntilClosed(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func TestDisconnectAllClosesSockets(t *testing.T) {
	ts, hub := startHubServer(t, config.Default())

	alice := dial(t, ts)
	bob := dial(t, ts)

	hub.DisconnectAll(context.Background())

	for name, c := range map[string]*wsClient{"alice": alice, "bob": bob} {
		if status := readUntilClosed(t, c.conn); status != websocket.StatusGoingAway {
			t.Fatalf("%s closed with %v, want going away", name, status)
		}
	}
	if rooms := hub.Registry().Rooms(); len(rooms) != 0 {
		t.Fatalf("rooms left after shutdown: %v", rooms)
	}

	// New connections are refused once the hub is closing.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, strings.Replace(ts.URL, "http", "ws", 1)+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	if status := readUntilClosed(t, conn); status != websocket.StatusGoingAway {
		t.Fatalf("late connection closed with %v, want going away", status)
	}
}

func TestBroadcastSanitizedText(t *testing.T) {
	ts := startTestServer(t, config.Default())
	alice := dial(t, ts)

	tests := []struct {
		in, want string
	}{
		{`Tom & Jerry say "hi" <i>now</i>`, `Tom & Jerry say "hi" now`},
		{`it's <b>up</b>`, `it's up`},
		// Angle brackets in text stay encoded so they never become markup.
		{`1 < 2`, `1 &lt; 2`},
		{`&lt;script&gt;`, `&lt;script&gt;`},
	}
	for _, tt := range tests {
		body, _ := json.Marshal(map[string]string{"msg": tt.in})
		status, _ := postBroadcast(t, ts, string(body), "application/json", "")
		if status != stdhttp.StatusCreated {
			t.Fatalf("broadcast %q: status %d", tt.in, status)
		}
		var msg proto.EventMessage
		if err := json.Unmarshal(alice.expect("newMessage", core.DefaultMainRoom), &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Msg != tt.want {
			t.Fatalf("broadcast %q delivered as %q, want %q", tt.in, msg.Msg, tt.want)
		}
	}

	// Nothing is left of a markup-only message.
	status, body := postBroadcast(t, ts, `{"msg":"<script>alert(1)</script>"}`, "application/json", "")
	if status != stdhttp.StatusBadRequest || body != BroadcastNoMessageText {
		t.Fatalf("markup-only broadcast: %d %q", status, body)
	}
}
