// Package pairing decides whether the device still has to be registered,
// is waiting to be linked by an operator, or is linked and may play.
package pairing

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

// SplashDuration is the minimum time the splash stays up.
const SplashDuration = 5 * time.Second

type Phase string

const (
	Unregistered       Phase = "unregistered"
	RegisteredUnlinked Phase = "registered_unlinked"
	Linked             Phase = "linked"
)

type Backend interface {
	GetScreenByIdentifier(ctx context.Context, identifier string) (model.Screen, error)
	RegisterScreen(ctx context.Context, req model.RegisterScreenRequest) error
}

// DeviceInfoSource collects the metadata sent with the registration.
type DeviceInfoSource interface {
	Collect(ctx context.Context) model.DeviceInfo
}

// Display is what the pairing view shows.
type Display struct {
	DeviceID    string           `json:"deviceId"`
	PairingCode string           `json:"pairingCode"`
	QRValue     string           `json:"qrValue"`
	Phase       Phase            `json:"phase"`
	Device      model.DeviceInfo `json:"device"`
}

type Machine struct {
	backend    Backend
	info       DeviceInfoSource
	deviceID   string
	consoleURL string
	logger     zerolog.Logger

	mu     sync.RWMutex
	phase  Phase
	code   string
	device model.DeviceInfo
	ready  bool

	changed chan struct{}
}

func New(backend Backend, info DeviceInfoSource, deviceID, consoleURL string, logger zerolog.Logger) *Machine {
	return &Machine{
		backend:    backend,
		info:       info,
		deviceID:   deviceID,
		consoleURL: strings.TrimSuffix(consoleURL, "/"),
		logger:     logger.With().Str("component", "pairing").Str("deviceId", deviceID).Logger(),
		phase:      Unregistered,
		changed:    make(chan struct{}, 1),
	}
}

// GenerateCode returns a 6-digit pairing code. It is not collision-checked.
func GenerateCode() string {
	return strconv.Itoa(100000 + rand.Intn(900000))
}

// Prepare collects device info, then checks the status while the splash floor
// elapses, and marks the machine ready once both are done.
func (m *Machine) Prepare(ctx context.Context, splash time.Duration) error {
	device := m.info.Collect(ctx)
	m.mu.Lock()
	m.device = device
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := m.CheckStatus(gctx); err != nil {
			// not fatal to readiness, the pairing view shows whatever state we reached
			m.logger.Error().Err(err).Msg("status check failed")
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-time.After(splash):
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()
	m.notify()
	return nil
}

// CheckStatus looks the screen up and registers it when the lookup fails.
func (m *Machine) CheckStatus(ctx context.Context) error {
	screen, err := m.backend.GetScreenByIdentifier(ctx, m.deviceID)
	if err != nil {
		m.logger.Info().Err(err).Msg("screen lookup failed, registering")
		return m.register(ctx)
	}

	phase := RegisteredUnlinked
	if screen.Linked {
		phase = Linked
	}
	m.mu.Lock()
	m.code = screen.PairingCode
	m.mu.Unlock()
	m.setPhase(phase)
	return nil
}

func (m *Machine) register(ctx context.Context) error {
	code := GenerateCode()
	m.mu.Lock()
	m.code = code
	device := m.device
	m.mu.Unlock()

	req := model.RegisterScreenRequest{
		Name:         device.DisplayName(),
		Identifier:   m.deviceID,
		IsVirtual:    false,
		IPAddress:    device.IPAddress,
		DeviceType:   orDefault(device.DeviceType, "UNKNOWN"),
		OSName:       device.OSName,
		OSVersion:    device.OSVersion,
		ModelName:    device.Model,
		TotalStorage: device.TotalStorage,
		FreeStorage:  device.FreeStorage,
		Location:     device.Location,
		PairingCode:  code,
	}
	if err := m.backend.RegisterScreen(ctx, req); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	m.logger.Info().Str("pairingCode", code).Msg("device registered")
	m.setPhase(RegisteredUnlinked)
	return nil
}

// HandleLinked applies a "linked" event. It reports whether the event named this device.
func (m *Machine) HandleLinked(identifier string) bool {
	if identifier != m.deviceID {
		return false
	}
	m.setPhase(Linked)
	return true
}

// HandleUnlinked reports whether an "unlinked" event named this device. The phase is
// left alone; the caller navigates to the pairing view, which checks the status again.
func (m *Machine) HandleUnlinked(identifier string) bool {
	return identifier == m.deviceID
}

func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

func (m *Machine) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// ShouldPlay is true once the device is linked and the splash gate has opened.
func (m *Machine) ShouldPlay() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready && m.phase == Linked
}

func (m *Machine) Display() Display {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Display{
		DeviceID:    m.deviceID,
		PairingCode: m.code,
		QRValue:     m.consoleURL + "/screen/" + m.deviceID,
		Phase:       m.phase,
		Device:      m.device,
	}
}

// Changed fires after the phase or readiness moved.
func (m *Machine) Changed() <-chan struct{} {
	return m.changed
}

func (m *Machine) setPhase(p Phase) {
	m.mu.Lock()
	prev := m.phase
	m.phase = p
	m.mu.Unlock()
	if prev != p {
		m.logger.Info().Str("from", string(prev)).Str("to", string(p)).Msg("pairing phase changed")
		m.notify()
	}
}

func (m *Machine) notify() {
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
