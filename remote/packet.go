package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Engine.IO v4 packet types, the first byte of every websocket text message.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineNoop    = '6'
)

// Socket.IO v5 packet types, the byte after engineMessage.
const (
	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketConnectError = '4'
)

// EnginePath is where a Socket.IO server mounts its endpoint.
const EnginePath = "/socket.io/"

var (
	ErrHandshake        = errors.New("socket.io handshake failed")
	ErrServerDisconnect = errors.New("server closed the session")
)

// Frame is one Socket.IO event: its name and first argument.
type Frame struct {
	Event string
	Data  json.RawMessage
}

// NewFrame encodes payload into a frame. A nil payload sends no argument.
func NewFrame(event string, payload any) (Frame, error) {
	f := Frame{Event: event}
	if payload == nil {
		return f, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s: %w", event, err)
	}
	f.Data = data
	return f, nil
}

// EncodeEvent renders f as an event on the default namespace: 42["event",data].
func EncodeEvent(f Frame) ([]byte, error) {
	args := []any{f.Event}
	if len(f.Data) > 0 {
		args = append(args, f.Data)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.Event, err)
	}
	return append([]byte{engineMessage, socketEvent}, body...), nil
}

// handshake is the payload of the Engine.IO open packet.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"` // ms
	PingTimeout  int    `json:"pingTimeout"`  // ms
}

// deadline is how long the server may stay silent before the link is dead.
func (h handshake) deadline() time.Duration {
	d := time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
	if d <= 0 {
		return defaultHeartbeat
	}
	return d
}

func decodeOpen(msg []byte) (handshake, error) {
	var h handshake
	if len(msg) == 0 || msg[0] != engineOpen {
		return h, fmt.Errorf("%w: want open packet, got %q", ErrHandshake, truncate(msg))
	}
	if err := json.Unmarshal(msg[1:], &h); err != nil {
		return h, fmt.Errorf("%w: open packet: %v", ErrHandshake, err)
	}
	return h, nil
}

// packet is a decoded Socket.IO packet on the default namespace.
type packet struct {
	Type  byte
	Frame Frame           // socketEvent only
	Body  json.RawMessage // connect or connect-error payload
}

// decodePacket parses the Socket.IO part of an engine message (after the 4).
// Packets for other namespaces report ok=false.
func decodePacket(msg []byte) (p packet, ok bool, err error) {
	if len(msg) == 0 {
		return p, false, errors.New("empty socket.io packet")
	}
	p.Type = msg[0]
	rest := msg[1:]

	if len(rest) > 0 && rest[0] == '/' {
		ns, tail, found := bytes.Cut(rest, []byte{','})
		if !found {
			ns, tail = rest, nil
		}
		if string(ns) != "/" {
			return p, false, nil
		}
		rest = tail
	}
	// Ack ids are digits before the payload; no acks are requested, so skip them.
	for len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
		rest = rest[1:]
	}

	switch p.Type {
	case socketEvent:
		var args []json.RawMessage
		if err := json.Unmarshal(rest, &args); err != nil {
			return p, false, fmt.Errorf("event packet: %w", err)
		}
		if len(args) == 0 {
			return p, false, errors.New("event packet without a name")
		}
		if err := json.Unmarshal(args[0], &p.Frame.Event); err != nil {
			return p, false, fmt.Errorf("event name: %w", err)
		}
		if len(args) > 1 {
			p.Frame.Data = args[1]
		}
	case socketConnect, socketConnectError:
		p.Body = rest
	}
	return p, true, nil
}

// EndpointURL turns a server address into the Engine.IO websocket endpoint.
// http and https map to ws and wss; an empty path becomes /socket.io/.
func EndpointURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url %q: unsupported scheme %q", server, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q: missing host", server)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = EnginePath
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(b []byte) string {
	if len(b) > 32 {
		return string(b[:32]) + "..."
	}
	return string(b)
}
