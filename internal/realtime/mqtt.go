package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	mqttQoS             = 1
	mqttDisconnectQuiet = 250 // ms
	mqttTokenTimeout    = 10 * time.Second
)

// Command is the JSON envelope carried on the MQTT topics.
type Command struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CommandTopic is where the backend publishes events for a device.
func CommandTopic(deviceID string) string { return fmt.Sprintf("tv/%s/commands", deviceID) }

// StatusTopic is where the device publishes its replies.
func StatusTopic(deviceID string) string { return fmt.Sprintf("tv/%s/status", deviceID) }

// Bridge feeds commands from an MQTT broker into the same Listener the websocket uses.
type Bridge struct {
	client   mqtt.Client
	deviceID string
	listener Listener
	logger   zerolog.Logger
}

func NewBridge(brokerURL, deviceID string, listener Listener, logger zerolog.Logger) *Bridge {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("tv-%s", deviceID))
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("deviceId", deviceID).Msg("mqtt connection lost")
	}
	return NewBridgeWithClient(mqtt.NewClient(opts), deviceID, listener, logger)
}

// NewBridgeWithClient wraps an already configured client.
func NewBridgeWithClient(client mqtt.Client, deviceID string, listener Listener, logger zerolog.Logger) *Bridge {
	return &Bridge{
		client:   client,
		deviceID: deviceID,
		listener: listener,
		logger:   logger.With().Str("component", "mqtt").Str("deviceId", deviceID).Logger(),
	}
}

// Start connects and subscribes. Inbound commands are dispatched with ctx.
func (b *Bridge) Start(ctx context.Context) error {
	if token := b.client.Connect(); !token.WaitTimeout(mqttTokenTimeout) || token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %v", token.Error())
	}

	topic := CommandTopic(b.deviceID)
	token := b.client.Subscribe(topic, mqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
		b.handle(ctx, msg.Payload())
	})
	if !token.WaitTimeout(mqttTokenTimeout) || token.Error() != nil {
		b.client.Disconnect(mqttDisconnectQuiet)
		return fmt.Errorf("failed to subscribe to %s: %v", topic, token.Error())
	}

	b.logger.Info().Str("topic", topic).Msg("mqtt bridge subscribed")
	return nil
}

func (b *Bridge) handle(ctx context.Context, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Event == "" {
		b.logger.Warn().Err(err).Bytes("payload", payload).Msg("ignoring malformed mqtt command")
		return
	}
	b.listener.Event(ctx, b, cmd.Event, cmd.Data)
}

// Emit publishes on the device's status topic.
func (b *Bridge) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	payload, err := json.Marshal(Command{Event: event, Data: raw})
	if err != nil {
		return err
	}

	token := b.client.Publish(StatusTopic(b.deviceID), mqttQoS, false, payload)
	if !token.WaitTimeout(mqttTokenTimeout) {
		return fmt.Errorf("publish %s timed out", event)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish %s: %v", event, err)
	}
	return nil
}

func (b *Bridge) Stop() {
	if b.client.IsConnected() {
		b.client.Unsubscribe(CommandTopic(b.deviceID)).WaitTimeout(mqttTokenTimeout)
	}
	b.client.Disconnect(mqttDisconnectQuiet)
}
