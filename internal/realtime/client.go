// Package realtime is the device's event channel to the backend: a Socket.IO
// client over a single websocket, the event handlers, and an MQTT bridge.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	DefaultNamespace         = "/screen-socket"
	DefaultHeartbeatInterval = 5 * time.Second

	minBackoff   = time.Second
	maxBackoff   = 30 * time.Second
	writeTimeout = 10 * time.Second
	callQueue    = 64
)

// ErrNotConnected is returned by Emit while there is no joined namespace.
var ErrNotConnected = errors.New("realtime channel not connected")

// Emitter sends an event back over whatever channel delivered the current one.
type Emitter interface {
	Emit(event string, data any) error
}

// Listener receives the channel's lifecycle and inbound events.
type Listener interface {
	Connected(ctx context.Context, e Emitter)
	Disconnected(ctx context.Context, e Emitter)
	Event(ctx context.Context, e Emitter, event string, data json.RawMessage)
}

type Options struct {
	// URL is the http(s) or ws(s) base of the Socket.IO server.
	URL               string
	Namespace         string
	HeartbeatInterval time.Duration
	Dialer            *websocket.Dialer
}

// Client keeps one websocket session alive, reconnecting with backoff.
type Client struct {
	opts     Options
	listener Listener
	logger   zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	joined bool
}

func NewClient(opts Options, listener Listener, logger zerolog.Logger) *Client {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:     opts,
		listener: listener,
		logger:   logger.With().Str("component", "realtime").Str("namespace", opts.Namespace).Logger(),
	}
}

// Endpoint turns a base URL into the websocket-only Socket.IO endpoint.
func Endpoint(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid socket url %q: %w", base, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported socket scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io/"
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	return u.String(), nil
}

// Run blocks until ctx is done, reconnecting whenever a session ends.
func (c *Client) Run(ctx context.Context) error {
	endpoint, err := Endpoint(c.opts.URL)
	if err != nil {
		return err
	}

	backoff := minBackoff
	for {
		joined, err := c.session(ctx, endpoint)
		if ctx.Err() != nil {
			return nil
		}
		if joined {
			backoff = minBackoff
		}
		c.logger.Warn().Err(err).Dur("retryIn", backoff).Msg("realtime session ended")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Emit sends an event on the joined namespace.
func (c *Client) Emit(event string, data any) error {
	frame, err := EncodeEvent(c.opts.Namespace, event, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.joined {
		return ErrNotConnected
	}
	return c.write(frame)
}

// Connected reports whether the namespace is currently joined.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Close leaves the namespace and drops the socket. Run's loop still needs its ctx cancelled.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	if c.joined {
		_ = c.write(EncodeDisconnect(c.opts.Namespace))
	}
	c.joined = false
	err := c.conn.Close()
	c.conn = nil
	return err
}

// session runs one connection; joined reports whether the namespace was ever entered.
func (c *Client) session(ctx context.Context, endpoint string) (joined bool, err error) {
	conn, _, err := c.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	// listener calls run in order, off the read loop
	calls := make(chan func(), callQueue)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for call := range calls {
			call()
		}
	}()

	defer func() {
		c.mu.Lock()
		was := c.joined
		c.joined = false
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		close(calls)
		<-drained
		if was {
			c.logger.Info().Msg("realtime disconnected")
			c.listener.Disconnected(ctx, c)
		}
	}()

	deadline := 45 * time.Second
	for {
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return joined, fmt.Errorf("read failed: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		frame, err := Decode(msg)
		if err != nil {
			c.logger.Debug().Err(err).Bytes("frame", msg).Msg("ignoring undecodable frame")
			continue
		}

		switch frame.Kind {
		case FrameOpen:
			var hs Handshake
			if err := json.Unmarshal(frame.Data, &hs); err == nil {
				deadline = hs.Deadline()
			}
			if err := c.locked(func() error { return c.write(EncodeConnect(c.opts.Namespace)) }); err != nil {
				return joined, err
			}
		case FramePing:
			if err := c.locked(func() error { return c.write(encodePong()) }); err != nil {
				return joined, err
			}
		case FrameClose:
			return joined, errors.New("server closed the session")
		case FrameConnect:
			if frame.Namespace != c.opts.Namespace {
				continue
			}
			c.mu.Lock()
			c.joined = true
			c.mu.Unlock()
			joined = true
			c.logger.Info().Msg("realtime connected")
			go c.heartbeat(sessionCtx)
			calls <- func() { c.listener.Connected(ctx, c) }
		case FrameConnectError:
			return joined, fmt.Errorf("namespace rejected: %s", string(frame.Data))
		case FrameDisconnect:
			if frame.Namespace == c.opts.Namespace {
				return joined, errors.New("server left the namespace")
			}
		case FrameEvent:
			if frame.Namespace == c.opts.Namespace {
				event, data := frame.Event, frame.Data
				calls <- func() { c.listener.Event(ctx, c, event, data) }
			}
		}
	}
}

// heartbeat probes the server while the session lasts.
func (c *Client) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Emit(EventCheckConnection, nil); err != nil && !errors.Is(err, ErrNotConnected) {
				c.logger.Debug().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

func (c *Client) locked(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return fn()
}

// write must be called with c.mu held.
func (c *Client) write(frame []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}
