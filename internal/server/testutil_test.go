package server

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"nhooyr.io/websocket"

	"okey/internal/history"
	"okey/internal/room"
	"okey/internal/session"
	"okey/internal/storage"
)

// --- Test environment ---

type testEnv struct {
	ts       *httptest.Server
	reg      *room.Registry
	sessions *session.Manager
	recorder *history.Recorder
}

func setupTestEnv(t *testing.T, opts ...room.Option) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := zaptest.NewLogger(t)
	base := []room.Option{
		room.WithLogger(log),
		room.WithRand(rand.New(rand.NewPCG(3, 4))),
		room.WithBotDelays(10*time.Millisecond, 10*time.Millisecond),
	}
	reg := room.NewRegistry(room.NewMemoryStore(), append(base, opts...)...)
	sessions := session.NewManager(0, log)
	rec := history.NewRecorder(store, log)
	hub := NewHub(reg, sessions, log)

	ctx, cancel := context.WithCancel(context.Background())
	hubEvents, _ := reg.Subscribe(256)
	recEvents, _ := reg.Subscribe(256)
	go hub.Run(ctx, hubEvents)
	go rec.Run(ctx, recEvents)

	ts := httptest.NewServer(New(reg, sessions, rec, log))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		reg.Close()
	})

	return &testEnv{ts: ts, reg: reg, sessions: sessions, recorder: rec}
}

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// --- WebSocket client ---

// testClient wraps a connection and keeps pushes that arrive while the test
// waits for something else.
type testClient struct {
	t       *testing.T
	conn    *websocket.Conn
	id      string
	seq     int
	pending []WSMessage
}

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws"
}

// dial connects and consumes the welcome message.
func dial(t *testing.T, env *testEnv) *testClient {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(env.ts), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	c := &testClient{t: t, conn: conn}
	msg := c.read()
	if msg.Type != msgWelcome {
		t.Fatalf("expected welcome, got %q", msg.Type)
	}
	var w welcomePayload
	if err := json.Unmarshal(msg.Payload, &w); err != nil {
		t.Fatalf("unmarshal welcome: %v", err)
	}
	c.id = w.ConnectionID
	return c
}

func (c *testClient) read() WSMessage {
	c.t.Helper()
	ctx, cancel := timeoutCtx(c.t)
	defer cancel()
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		c.t.Fatalf("ws read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.t.Fatalf("unmarshal ws message: %v", err)
	}
	return msg
}

func (c *testClient) writeRaw(data []byte) {
	c.t.Helper()
	ctx, cancel := timeoutCtx(c.t)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.t.Fatalf("ws write: %v", err)
	}
}

// request sends a message and returns the reply carrying its reqId.
func (c *testClient) request(msgType string, payload any) WSMessage {
	c.t.Helper()
	c.seq++
	reqID := strconv.Itoa(c.seq)
	msg := WSMessage{Type: msgType, ReqID: reqID}
	if payload != nil {
		p, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		msg.Payload = p
	}
	data, _ := json.Marshal(msg)
	c.writeRaw(data)

	for {
		reply := c.read()
		if reply.ReqID == reqID {
			return reply
		}
		c.pending = append(c.pending, reply)
	}
}

// ack sends a request, requires an ack and decodes its payload into out.
func (c *testClient) ack(msgType string, payload, out any) {
	c.t.Helper()
	reply := c.request(msgType, payload)
	if reply.Type != msgAck {
		c.t.Fatalf("%s: expected ack, got %s: %s", msgType, reply.Type, reply.Payload)
	}
	if out != nil {
		if err := json.Unmarshal(reply.Payload, out); err != nil {
			c.t.Fatalf("%s: unmarshal ack: %v", msgType, err)
		}
	}
}

// reject sends a request and requires an error reply.
func (c *testClient) reject(msgType string, payload any) errorPayload {
	c.t.Helper()
	reply := c.request(msgType, payload)
	if reply.Type != msgError {
		c.t.Fatalf("%s: expected error, got %s: %s", msgType, reply.Type, reply.Payload)
	}
	var ep errorPayload
	if err := json.Unmarshal(reply.Payload, &ep); err != nil {
		c.t.Fatalf("unmarshal error payload: %v", err)
	}
	return ep
}

// expect returns the next push of msgType, keeping others for later.
func (c *testClient) expect(msgType string) WSMessage {
	c.t.Helper()
	for i, m := range c.pending {
		if m.Type == msgType {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return m
		}
	}
	for {
		m := c.read()
		if m.Type == msgType {
			return m
		}
		c.pending = append(c.pending, m)
	}
}

// expectInto is expect plus decoding the payload.
func (c *testClient) expectInto(msgType string, out any) WSMessage {
	c.t.Helper()
	m := c.expect(msgType)
	if err := json.Unmarshal(m.Payload, out); err != nil {
		c.t.Fatalf("unmarshal %s: %v", msgType, err)
	}
	return m
}

// expectNone fails if a push of msgType shows up within d. Reading past a
// deadline closes the connection, so this must be the client's last call.
func (c *testClient) expectNone(msgType string, d time.Duration) {
	c.t.Helper()
	for _, m := range c.pending {
		if m.Type == msgType {
			c.t.Fatalf("unexpected %s: %s", msgType, m.Payload)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var m WSMessage
		json.Unmarshal(data, &m)
		if m.Type == msgType {
			c.t.Fatalf("unexpected %s: %s", msgType, m.Payload)
		}
	}
}

// --- Game helpers ---

type roomCodeReq struct {
	RoomCode string `json:"roomCode"`
}

type nameReq struct {
	RoomCode   string `json:"roomCode,omitempty"`
	PlayerName string `json:"playerName"`
}

type drawReq struct {
	RoomCode string `json:"roomCode"`
	Source   string `json:"source"`
}

type discardReq struct {
	RoomCode  string `json:"roomCode"`
	HandIndex int    `json:"handIndex"`
}

// openTable creates a room hosted by the first client and seats the rest.
func openTable(t *testing.T, host *testClient, others ...*testClient) string {
	t.Helper()
	var pub room.PublicRoom
	host.ack(msgCreateRoom, nameReq{PlayerName: "Host"}, &pub)
	for i, c := range others {
		c.ack(msgJoinRoom, nameReq{RoomCode: pub.ID, PlayerName: "Guest " + strconv.Itoa(i+1)}, nil)
	}
	return pub.ID
}
