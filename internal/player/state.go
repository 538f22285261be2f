// Package player holds the state shared by the resolver, the realtime
// handlers and the rendering surface, plus the playback loop that walks it.
package player

import (
	"slices"
	"sync"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/metrics"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

// DefaultBackground is used whenever the screen has no background color set.
const DefaultBackground = "black"

// State is the single owner of the mutable player fields. Every field is
// written through one of its methods under the same lock.
type State struct {
	mu         sync.RWMutex
	sequence   []model.PlayableItem
	cursor     int
	diag       model.Diagnostic
	connected  bool
	background string
	loading    bool
	banner     Notification

	// playback is signalled when the sequence or cursor is replaced from outside the loop.
	playback chan struct{}
}

// Snapshot is a copy of State for rendering.
type Snapshot struct {
	Sequence     []model.PlayableItem `json:"sequence"`
	Cursor       int                  `json:"cursor"`
	Diagnostic   model.Diagnostic     `json:"diagnostic"`
	Connected    bool                 `json:"connected"`
	Background   string               `json:"backgroundColor"`
	Loading      bool                 `json:"loading"`
	Notification Notification         `json:"notification"`
}

// NewState starts out loading, disconnected and with an empty sequence.
func NewState() *State {
	return &State{
		sequence:   []model.PlayableItem{},
		background: DefaultBackground,
		loading:    true,
		banner:     Notification{Phase: PhaseHidden},
		playback:   make(chan struct{}, 1),
	}
}

// SetSequence replaces the sequence when it differs structurally from the
// current one and clamps the cursor into range. It reports whether anything changed.
func (s *State) SetSequence(items []model.PlayableItem) bool {
	s.mu.Lock()
	if slices.Equal(s.sequence, items) {
		s.mu.Unlock()
		return false
	}
	s.sequence = slices.Clone(items)
	if s.sequence == nil {
		s.sequence = []model.PlayableItem{}
	}
	s.cursor = clamp(s.cursor, len(s.sequence))
	n := len(s.sequence)
	s.mu.Unlock()

	metrics.SequenceLength.Set(float64(n))
	s.notifyPlayback()
	return true
}

// ClearSequence empties the sequence and rewinds the cursor, the "nothing assigned" state.
func (s *State) ClearSequence() {
	s.mu.Lock()
	changed := len(s.sequence) > 0 || s.cursor != 0
	s.sequence = []model.PlayableItem{}
	s.cursor = 0
	s.mu.Unlock()

	metrics.SequenceLength.Set(0)
	if changed {
		s.notifyPlayback()
	}
}

func (s *State) Sequence() []model.PlayableItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sequence)
}

func (s *State) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Current returns the item under the cursor, false when the sequence is empty.
func (s *State) Current() (model.PlayableItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.sequence) == 0 {
		return model.PlayableItem{}, false
	}
	return s.sequence[s.cursor], true
}

// Next moves the cursor forward and restarts the playback timer.
func (s *State) Next() {
	if s.advance() {
		s.notifyPlayback()
	}
}

// advance is the loop's own step; it does not wake the loop.
func (s *State) advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sequence) == 0 {
		return false
	}
	s.cursor = (s.cursor + 1) % len(s.sequence)
	return true
}

func (s *State) Diagnostic() model.Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diag
}

// HasError is true while any of the triple is set.
func (s *State) HasError() bool {
	return !s.Diagnostic().Empty()
}

func (s *State) SetDiagnostic(d model.Diagnostic) {
	s.mu.Lock()
	s.diag = d
	s.mu.Unlock()
}

func (s *State) ClearDiagnostic() {
	s.SetDiagnostic(model.Diagnostic{})
}

func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *State) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	if connected {
		metrics.RealtimeConnected.Set(1)
	} else {
		metrics.RealtimeConnected.Set(0)
	}
}

func (s *State) Background() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.background
}

// SetBackground applies color, falling back to DefaultBackground when empty.
func (s *State) SetBackground(color string) {
	if color == "" {
		color = DefaultBackground
	}
	s.mu.Lock()
	s.background = color
	s.mu.Unlock()
}

func (s *State) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *State) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

func (s *State) Notification() Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.banner
}

func (s *State) setNotification(n Notification) {
	s.mu.Lock()
	s.banner = n
	s.mu.Unlock()
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Sequence:     slices.Clone(s.sequence),
		Cursor:       s.cursor,
		Diagnostic:   s.diag,
		Connected:    s.connected,
		Background:   s.background,
		Loading:      s.loading,
		Notification: s.banner,
	}
}

// PlaybackChanged fires after the sequence or cursor was replaced from outside the loop.
func (s *State) PlaybackChanged() <-chan struct{} {
	return s.playback
}

func (s *State) notifyPlayback() {
	select {
	case s.playback <- struct{}{}:
	default:
	}
}

func clamp(cursor, length int) int {
	if length == 0 || cursor < 0 {
		return 0
	}
	if cursor >= length {
		return length - 1
	}
	return cursor
}
