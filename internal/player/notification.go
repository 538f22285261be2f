package player

import (
	"sync"
	"time"
)

// Phase of the notification banner.
type Phase string

const (
	PhaseHidden    Phase = "hidden"
	PhaseFadingIn  Phase = "fadingIn"
	PhaseVisible   Phase = "visible"
	PhaseFadingOut Phase = "fadingOut"
)

type Notification struct {
	Message string `json:"message"`
	Visible bool   `json:"visible"`
	Phase   Phase  `json:"phase"`
}

// Banner timings.
const (
	BannerFade = 500 * time.Millisecond
	BannerHold = 5 * time.Second
)

// Banner drives the transient notification shown over playback.
type Banner struct {
	state *State
	fade  time.Duration
	hold  time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   int
}

func NewBanner(state *State) *Banner {
	return NewBannerWithTimings(state, BannerFade, BannerHold)
}

func NewBannerWithTimings(state *State, fade, hold time.Duration) *Banner {
	state.setNotification(Notification{Phase: PhaseHidden})
	return &Banner{state: state, fade: fade, hold: hold}
}

// Show surfaces message, replacing any banner still on screen and restarting its timing.
func (b *Banner) Show(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	b.state.setNotification(Notification{Message: message, Visible: true, Phase: PhaseFadingIn})
	b.schedule(b.gen, b.fade, PhaseVisible)
}

// Stop cancels pending phase changes and hides the banner.
func (b *Banner) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	b.state.setNotification(Notification{Phase: PhaseHidden})
}

// schedule must be called with b.mu held.
func (b *Banner) schedule(gen int, after time.Duration, next Phase) {
	b.timer = time.AfterFunc(after, func() { b.step(gen, next) })
}

func (b *Banner) step(gen int, phase Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return
	}
	current := b.state.Notification()
	switch phase {
	case PhaseVisible:
		b.state.setNotification(Notification{Message: current.Message, Visible: true, Phase: PhaseVisible})
		b.schedule(gen, b.hold, PhaseFadingOut)
	case PhaseFadingOut:
		b.state.setNotification(Notification{Message: current.Message, Visible: true, Phase: PhaseFadingOut})
		b.schedule(gen, b.fade, PhaseHidden)
	case PhaseHidden:
		b.state.setNotification(Notification{Phase: PhaseHidden})
	}
}
