package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasqually/puppet"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// testServer is a minimal Socket.IO server: it answers the Engine.IO
// handshake, accepts the default namespace and hands every received event to
// the test through frames. Frames written to push are emitted to the client;
// raw engine packets written to rawPush are sent as they are.
type testServer struct {
	URL     string
	frames  chan Frame
	push    chan Frame
	rawPush chan string
	raw     chan string // non-event packets from the client, such as pongs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		frames:  make(chan Frame, 16),
		push:    make(chan Frame, 16),
		rawPush: make(chan string, 16),
		raw:     make(chan string, 16),
	}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != EnginePath || r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send := func(msg string) error { return conn.WriteMessage(websocket.TextMessage, []byte(msg)) }
		if send(`0{"sid":"eio-1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`) != nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil || string(msg) != "40" {
			return
		}
		if send(`40{"sid":"sio-1"}`) != nil {
			return
		}

		done := make(chan struct{})
		defer close(done)
		go func() {
			for {
				select {
				case <-done:
					return
				case f := <-ts.push:
					msg, err := EncodeEvent(f)
					if err != nil || send(string(msg)) != nil {
						return
					}
				case msg := <-ts.rawPush:
					if send(msg) != nil {
						return
					}
				}
			}
		}()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			p, ok, err := decodePacket(msg[1:])
			if msg[0] == engineMessage && err == nil && ok && p.Type == socketEvent {
				ts.frames <- p.Frame
				continue
			}
			ts.raw <- string(msg)
		}
	}))
	t.Cleanup(srv.Close)

	ts.URL = srv.URL
	return ts
}

func waitFrame(t *testing.T, frames <-chan Frame) Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func waitStatus(t *testing.T, c *Client, want bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-c.Status():
			if s.Connected == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for connected=%v", want)
		}
	}
}

func TestClientGreetsAndEmits(t *testing.T) {
	ts := newTestServer(t)
	frames := ts.frames
	c := New(ts.URL, Options{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	hello := waitFrame(t, frames)
	assert.Equal(t, EventConnect, hello.Event)
	assert.JSONEq(t, `{"data":"I'm connected!"}`, string(hello.Data))

	waitStatus(t, c, true)
	c.Emit(EventKeyPress, puppet.KeyPress{KeyVal: "x", Val: 1})
	f := waitFrame(t, frames)
	assert.Equal(t, EventKeyPress, f.Event)
	assert.JSONEq(t, `{"keyVal":"x","val":1}`, string(f.Data))

	c.Emit(EventShowStop, nil)
	f = waitFrame(t, frames)
	assert.Equal(t, EventShowStop, f.Event)
	assert.Empty(t, f.Data)
}

func TestClientDeliversInbound(t *testing.T) {
	ts := newTestServer(t)
	frames, push := ts.frames, ts.push
	c := New(ts.URL, Options{}, quietLogger())

	got := make(chan []puppet.Movement, 1)
	c.On(EventMovementInfo, func(data json.RawMessage) {
		m, err := DecodeMovements(data)
		if assert.NoError(t, err) {
			got <- m
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitFrame(t, frames)

	push <- Frame{Event: EventMovementInfo, Data: json.RawMessage(`[["o",50],["x",56]]`)}
	select {
	case m := <-got:
		assert.Equal(t, []puppet.Movement{{Key: "o", Note: 50}, {Key: "x", Note: 56}}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("movementInfo not delivered")
	}
}

func TestEmitWhileDisconnectedIsDropped(t *testing.T) {
	c := New("http://127.0.0.1:1", Options{}, quietLogger())
	c.Emit(EventKeyPress, puppet.KeyPress{KeyVal: "x", Val: 1})
	assert.False(t, c.Connected())
	assert.Len(t, c.outbox, 0)
}

func TestRunStopsOnCancel(t *testing.T) {
	c := New("http://127.0.0.1:1", Options{ReconnectDelay: 10 * time.Millisecond}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientAnswersPings(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL, Options{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitFrame(t, ts.frames)

	ts.rawPush <- "2"
	select {
	case msg := <-ts.raw:
		assert.Equal(t, "3", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}
}

func TestClientIgnoresOtherNamespaces(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL, Options{}, quietLogger())

	got := make(chan string, 2)
	c.On(EventShowList, func(data json.RawMessage) { got <- string(data) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitFrame(t, ts.frames)

	ts.rawPush <- `42/admin,["showListLoaded",["secret"]]`
	ts.rawPush <- `42["showListLoaded",["row"]]`
	select {
	case data := <-got:
		assert.JSONEq(t, `["row"]`, data)
	case <-time.After(2 * time.Second):
		t.Fatal("showListLoaded not delivered")
	}
}

func TestServerDisconnectRedials(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL, Options{ReconnectDelay: 10 * time.Millisecond}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitFrame(t, ts.frames)
	waitStatus(t, c, true)

	ts.rawPush <- "41"
	waitStatus(t, c, false)
	hello := waitFrame(t, ts.frames)
	assert.Equal(t, EventConnect, hello.Event)
}

func TestRunRejectsBadURL(t *testing.T) {
	c := New("ftp://pasqually.local", Options{}, quietLogger())
	assert.ErrorContains(t, c.Run(context.Background()), "unsupported scheme")
}

func TestEndpointURL(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"http://pasqually.local", "ws://pasqually.local/socket.io/?EIO=4&transport=websocket"},
		{"https://stage:8443/", "wss://stage:8443/socket.io/?EIO=4&transport=websocket"},
		{"ws://stage:5000/custom/", "ws://stage:5000/custom/?EIO=4&transport=websocket"},
	} {
		got, err := EndpointURL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := EndpointURL("pasqually.local")
	assert.Error(t, err)
}

func TestEncodeEvent(t *testing.T) {
	f, err := NewFrame(EventKeyPress, puppet.KeyPress{KeyVal: "x", Val: 1})
	require.NoError(t, err)
	msg, err := EncodeEvent(f)
	require.NoError(t, err)
	assert.Equal(t, `42["onKeyPress",{"keyVal":"x","val":1}]`, string(msg))

	msg, err = EncodeEvent(Frame{Event: EventShowStop})
	require.NoError(t, err)
	assert.Equal(t, `42["showStop"]`, string(msg))
}

func TestDecodePacket(t *testing.T) {
	p, ok, err := decodePacket([]byte(`2["movementInfo",[["o",50]],"extra"]`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "movementInfo", p.Frame.Event)
	assert.JSONEq(t, `[["o",50]]`, string(p.Frame.Data))

	p, ok, err = decodePacket([]byte(`2/,12["showStop"]`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "showStop", p.Frame.Event)
	assert.Empty(t, p.Frame.Data)

	p, ok, err = decodePacket([]byte(`4{"message":"not allowed"}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"message":"not allowed"}`, string(p.Body))

	_, ok, err = decodePacket([]byte(`2/chat,["x"]`))
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = decodePacket([]byte(`2[]`))
	assert.Error(t, err)
}

func TestDecodeOpen(t *testing.T) {
	h, err := decodeOpen([]byte(`0{"sid":"a","pingInterval":25000,"pingTimeout":20000}`))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, h.deadline())

	_, err = decodeOpen([]byte(`40`))
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestDecodeKeyEvent(t *testing.T) {
	key, val, err := DecodeKeyEvent(json.RawMessage(`["W", 1]`))
	require.NoError(t, err)
	assert.Equal(t, "W", key)
	assert.Equal(t, 1, val)

	key, val, err = DecodeKeyEvent(json.RawMessage(`[87, 0]`))
	require.NoError(t, err)
	assert.Equal(t, "w", key)
	assert.Equal(t, 0, val)

	_, _, err = DecodeKeyEvent(json.RawMessage(`[13, 1]`))
	assert.ErrorContains(t, err, "key code 13")

	_, _, err = DecodeKeyEvent(json.RawMessage(`["W"]`))
	assert.Error(t, err)
	_, _, err = DecodeKeyEvent(json.RawMessage(`["W", 0.5]`))
	assert.Error(t, err)
}

func TestDecodeMovementsRejectsBadEntries(t *testing.T) {
	_, err := DecodeMovements(json.RawMessage(`[["o", 50], [12, 51]]`))
	assert.ErrorContains(t, err, "entry 1")

	_, err = DecodeMovements(json.RawMessage(`{"o": 50}`))
	assert.Error(t, err)
}

func TestDecodeSystemInfo(t *testing.T) {
	info, err := DecodeSystemInfo(json.RawMessage(`{"cpu":12.5,"ram":40,"disk":71,"temperature":48.2,"wifi_signal":80}`))
	require.NoError(t, err)
	assert.Equal(t, SystemInfo{CPU: 12.5, RAM: 40, Disk: 71, Temperature: 48.2, WifiSignal: 80}, info)
}

func TestDecodeShowList(t *testing.T) {
	shows, err := DecodeShowList(json.RawMessage(`["row","birthday"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"row", "birthday"}, shows)
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(EventMirroredMode, true)
	require.NoError(t, err)
	assert.Equal(t, "true", string(f.Data))

	_, err = NewFrame(EventShowPlay, make(chan int))
	assert.Error(t, err)
}
