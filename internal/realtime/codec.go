package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Engine.IO v4 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO v5 packet types, carried inside an Engine.IO message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

var errMalformed = errors.New("malformed packet")

// FrameKind classifies a decoded websocket text frame.
type FrameKind int

const (
	FrameOpen FrameKind = iota
	FrameClose
	FramePing
	FramePong
	FrameConnect
	FrameDisconnect
	FrameEvent
	FrameAck
	FrameConnectError
)

// Frame is one decoded packet.
type Frame struct {
	Kind      FrameKind
	Namespace string
	Event     string
	// Data is the first event argument, or the payload of open/connect packets.
	Data json.RawMessage
}

// Handshake is the Engine.IO open payload.
type Handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// Deadline is how long to wait for the next server packet before giving up on the socket.
func (h Handshake) Deadline() time.Duration {
	interval, timeout := h.PingInterval, h.PingTimeout
	if interval <= 0 {
		interval = 25000
	}
	if timeout <= 0 {
		timeout = 20000
	}
	return time.Duration(interval+timeout) * time.Millisecond
}

// Decode parses a text frame.
func Decode(msg []byte) (Frame, error) {
	if len(msg) == 0 {
		return Frame{}, errMalformed
	}
	switch msg[0] {
	case eioOpen:
		return Frame{Kind: FrameOpen, Data: json.RawMessage(msg[1:])}, nil
	case eioClose:
		return Frame{Kind: FrameClose}, nil
	case eioPing:
		return Frame{Kind: FramePing}, nil
	case eioPong:
		return Frame{Kind: FramePong}, nil
	case eioMessage:
		return decodeSocketPacket(msg[1:])
	}
	return Frame{}, fmt.Errorf("%w: engine type %q", errMalformed, msg[0])
}

func decodeSocketPacket(p []byte) (Frame, error) {
	if len(p) == 0 {
		return Frame{}, errMalformed
	}
	var f Frame
	switch p[0] {
	case sioConnect:
		f.Kind = FrameConnect
	case sioDisconnect:
		f.Kind = FrameDisconnect
	case sioEvent:
		f.Kind = FrameEvent
	case sioAck:
		f.Kind = FrameAck
	case sioConnectError:
		f.Kind = FrameConnectError
	default:
		return Frame{}, fmt.Errorf("%w: socket type %q", errMalformed, p[0])
	}
	rest := p[1:]

	f.Namespace = "/"
	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			f.Namespace = string(rest)
			rest = nil
		} else {
			f.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}

	// ack id
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	rest = rest[i:]

	if f.Kind != FrameEvent && f.Kind != FrameAck {
		if len(rest) > 0 {
			f.Data = json.RawMessage(rest)
		}
		return f, nil
	}

	var args []json.RawMessage
	if err := json.Unmarshal(rest, &args); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if f.Kind == FrameEvent {
		if len(args) == 0 {
			return Frame{}, fmt.Errorf("%w: event without name", errMalformed)
		}
		if err := json.Unmarshal(args[0], &f.Event); err != nil {
			return Frame{}, fmt.Errorf("%w: event name: %v", errMalformed, err)
		}
		args = args[1:]
	}
	if len(args) > 0 {
		f.Data = args[0]
	}
	return f, nil
}

// EncodeConnect asks the server to join namespace.
func EncodeConnect(namespace string) []byte {
	return []byte(string(eioMessage) + string(sioConnect) + nsPrefix(namespace))
}

func EncodeDisconnect(namespace string) []byte {
	return []byte(string(eioMessage) + string(sioDisconnect) + nsPrefix(namespace))
}

// EncodeEvent builds an event packet; a nil data sends the event name alone.
func EncodeEvent(namespace, event string, data any) ([]byte, error) {
	args := []any{event}
	if data != nil {
		args = append(args, data)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	out := make([]byte, 0, len(payload)+len(namespace)+3)
	out = append(out, eioMessage, sioEvent)
	out = append(out, nsPrefix(namespace)...)
	return append(out, payload...), nil
}

func encodePong() []byte { return []byte{eioPong} }

func nsPrefix(namespace string) string {
	if namespace == "" || namespace == "/" {
		return ""
	}
	return namespace + ","
}
