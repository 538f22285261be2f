package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

// fakeMQTT implements the parts of mqtt.Client the bridge uses.
type fakeMQTT struct {
	mqtt.Client

	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published map[string][][]byte
	closed    bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: map[string]mqtt.MessageHandler{}, published: map[string][][]byte{}}
}

func (f *fakeMQTT) Connect() mqtt.Token { return doneToken{} }
func (f *fakeMQTT) IsConnected() bool   { return !f.closed }
func (f *fakeMQTT) Disconnect(uint)     { f.closed = true }

func (f *fakeMQTT) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = cb
	return doneToken{}
}

func (f *fakeMQTT) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.handlers, topic)
	}
	return doneToken{}
}

func (f *fakeMQTT) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], payload.([]byte))
	return doneToken{}
}

func (f *fakeMQTT) deliver(topic string, payload []byte) {
	f.mu.Lock()
	cb := f.handlers[topic]
	f.mu.Unlock()
	cb(f, fakeMessage{payload: payload})
}

type replyingListener struct {
	events []string
}

func (l *replyingListener) Connected(context.Context, Emitter)    {}
func (l *replyingListener) Disconnected(context.Context, Emitter) {}
func (l *replyingListener) Event(_ context.Context, e Emitter, event string, _ json.RawMessage) {
	l.events = append(l.events, event)
	_ = e.Emit(EventStatusResponse, StatusResponse{Identifier: "abc-123", Status: "online", ContentVersion: 1})
}

func TestBridgeRoutesCommands(t *testing.T) {
	client := newFakeMQTT()
	listener := &replyingListener{}
	bridge := NewBridgeWithClient(client, "abc-123", listener, zerolog.Nop())

	require.NoError(t, bridge.Start(context.Background()))
	assert.Contains(t, client.handlers, "tv/abc-123/commands")

	client.deliver("tv/abc-123/commands", []byte(`{"event":"checkScreenStatus","data":{"identifier":"abc-123"}}`))
	client.deliver("tv/abc-123/commands", []byte(`garbage`))
	client.deliver("tv/abc-123/commands", []byte(`{"data":{}}`))

	assert.Equal(t, []string{EventStatusQuery}, listener.events)
	require.Len(t, client.published["tv/abc-123/status"], 1)

	var cmd Command
	require.NoError(t, json.Unmarshal(client.published["tv/abc-123/status"][0], &cmd))
	assert.Equal(t, EventStatusResponse, cmd.Event)
	assert.JSONEq(t, `{"identifier":"abc-123","status":"online","errorMessage":null,"contentVersion":1}`, string(cmd.Data))

	bridge.Stop()
	assert.True(t, client.closed)
	assert.NotContains(t, client.handlers, "tv/abc-123/commands")
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "tv/abc-123/commands", CommandTopic("abc-123"))
	assert.Equal(t, "tv/abc-123/status", StatusTopic("abc-123"))
}
