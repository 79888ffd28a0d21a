// Package remote is the realtime channel to the show-control server: a
// Socket.IO client speaking Engine.IO v4 over a websocket, with automatic
// redial.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultReconnectDelay = 2 * time.Second

	outboxSize       = 64
	writeTimeout     = 5 * time.Second
	handshakeTimeout = 10 * time.Second
	defaultHeartbeat = 45 * time.Second
)

// Handler receives the raw data of an inbound event.
type Handler func(data json.RawMessage)

// Status reports connection changes.
type Status struct {
	Connected bool
	Err       error // why the connection ended, nil on connect
}

// Options configure a Client
type Options struct {
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

// Client is a Socket.IO event client on the default namespace. Emit never
// blocks; On handlers run on the reader goroutine.
type Client struct {
	url            string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	logger         *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler

	connected atomic.Bool
	outbox    chan Frame
	pongs     chan struct{}
	status    chan Status
}

// New creates a client for the server at url (http, https, ws or wss).
func New(url string, opts Options, logger *slog.Logger) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:            url,
		reconnectDelay: opts.ReconnectDelay,
		dialer:         opts.Dialer,
		logger:         logger.With("component", "remote"),
		handlers:       make(map[string][]Handler),
		outbox:         make(chan Frame, outboxSize),
		pongs:          make(chan struct{}, 1),
		status:         make(chan Status, 4),
	}
}

// On registers h for event. Several handlers may share an event.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Emit queues an event for sending. While disconnected, or when the outbox is
// full, the event is dropped.
func (c *Client) Emit(event string, payload any) {
	f, err := NewFrame(event, payload)
	if err != nil {
		c.logger.Warn("cannot encode event", "event", event, "error", err)
		return
	}
	if !c.connected.Load() {
		c.logger.Debug("not connected, event dropped", "event", event)
		return
	}
	select {
	case c.outbox <- f:
	default:
		c.logger.Warn("outbox full, event dropped", "event", event)
	}
}

// Status returns connection changes. Updates are dropped if nobody reads.
func (c *Client) Status() <-chan Status {
	return c.status
}

// Connected reports whether a session is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) setStatus(s Status) {
	c.connected.Store(s.Connected)
	select {
	case c.status <- s:
	default:
	}
}

// Run keeps a session open until ctx is cancelled, redialling after
// ReconnectDelay whenever it drops. Only a malformed server URL is returned.
func (c *Client) Run(ctx context.Context) error {
	endpoint, err := EndpointURL(c.url)
	if err != nil {
		return err
	}
	for {
		err := c.connectAndServe(ctx, endpoint)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("connection lost", "url", c.url, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context, endpoint string) error {
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	hs, err := c.handshake(conn)
	if err != nil {
		return err
	}

	c.drainOutbox()
	c.logger.Info("connected", "url", c.url, "sid", hs.SID)
	c.setStatus(Status{Connected: true})
	c.Emit(EventConnect, Connect{Data: "I'm connected!"})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() { writeErr <- c.writeLoop(connCtx, conn) }()

	readErr := c.readLoop(conn, hs.deadline())
	cancel()
	c.setStatus(Status{Connected: false, Err: readErr})
	wErr := <-writeErr
	if readErr == nil {
		return wErr
	}
	return readErr
}

// handshake reads the Engine.IO open packet and joins the default namespace.
func (c *Client) handshake(conn *websocket.Conn) (handshake, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return handshake{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	hs, err := decodeOpen(msg)
	if err != nil {
		return handshake{}, err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte{engineMessage, socketConnect}); err != nil {
		return handshake{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return handshake{}, fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		switch {
		case len(msg) == 1 && msg[0] == enginePing:
			_ = conn.WriteMessage(websocket.TextMessage, []byte{enginePong})
			continue
		case len(msg) < 2 || msg[0] != engineMessage:
			continue
		}
		p, ok, err := decodePacket(msg[1:])
		if err != nil || !ok {
			continue
		}
		switch p.Type {
		case socketConnect:
			return hs, nil
		case socketConnectError:
			return handshake{}, fmt.Errorf("%w: connect refused: %s", ErrHandshake, p.Body)
		}
	}
}

// drainOutbox discards frames and pongs left over from the previous session.
func (c *Client) drainOutbox() {
	for {
		select {
		case <-c.outbox:
		case <-c.pongs:
		default:
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, heartbeat time.Duration) error {
	_ = conn.SetReadDeadline(time.Now().Add(heartbeat))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(heartbeat))
		if len(msg) == 0 {
			continue
		}

		switch msg[0] {
		case enginePing:
			select {
			case c.pongs <- struct{}{}:
			default:
			}
		case engineClose:
			return ErrServerDisconnect
		case engineMessage:
			p, ok, err := decodePacket(msg[1:])
			if err != nil {
				c.logger.Warn("bad packet", "error", err)
				continue
			}
			if !ok {
				continue
			}
			switch p.Type {
			case socketEvent:
				c.deliver(p.Frame)
			case socketDisconnect:
				return ErrServerDisconnect
			}
		case engineNoop, enginePong:
		default:
			c.logger.Debug("unknown engine packet", "type", string(msg[0]))
		}
	}
}

func (c *Client) deliver(f Frame) {
	c.mu.RLock()
	hs := c.handlers[f.Event]
	c.mu.RUnlock()
	if len(hs) == 0 {
		c.logger.Debug("unhandled event", "event", f.Event)
		return
	}
	for _, h := range hs {
		h(f.Data)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	write := func(msg []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, msg)
	}

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.SetWriteDeadline(deadline)
			_ = conn.WriteMessage(websocket.TextMessage, []byte{engineMessage, socketDisconnect})
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = conn.Close()
			return nil
		case f := <-c.outbox:
			msg, err := EncodeEvent(f)
			if err != nil {
				c.logger.Warn("cannot encode event", "event", f.Event, "error", err)
				continue
			}
			if err := write(msg); err != nil {
				_ = conn.Close()
				return fmt.Errorf("write %s: %w", f.Event, err)
			}
		case <-c.pongs:
			if err := write([]byte{enginePong}); err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					return nil
				}
				_ = conn.Close()
				return fmt.Errorf("pong: %w", err)
			}
		}
	}
}
