package player

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/metrics"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

// DefaultItemDuration applies to items whose duration is missing or not positive, in seconds.
const DefaultItemDuration = 10

// Loop advances the cursor of a State on a single timer.
type Loop struct {
	state  *State
	logger zerolog.Logger

	// Unit scales item durations, one second unless set.
	Unit time.Duration
	// OnAdvance, when set, is called after every timed step with the new cursor.
	OnAdvance func(cursor int)
}

func NewLoop(state *State, logger zerolog.Logger) *Loop {
	return &Loop{
		state:  state,
		logger: logger.With().Str("component", "playback").Logger(),
		Unit:   time.Second,
	}
}

// Duration is how long item stays on screen.
func (l *Loop) Duration(item model.PlayableItem) time.Duration {
	d := item.Duration
	if d <= 0 {
		d = DefaultItemDuration
	}
	return time.Duration(d) * l.Unit
}

// Run blocks until ctx is done. No timer exists while the sequence is empty.
func (l *Loop) Run(ctx context.Context) {
	for {
		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		if item, ok := l.state.Current(); ok {
			timer = time.NewTimer(l.Duration(item))
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-l.state.PlaybackChanged():
			if timer != nil {
				timer.Stop()
			}
		case <-fire:
			if l.state.advance() {
				metrics.PlaybackAdvances.Inc()
				cursor := l.state.Cursor()
				l.logger.Debug().Int("cursor", cursor).Msg("advanced")
				if l.OnAdvance != nil {
					l.OnAdvance(cursor)
				}
			}
		}
	}
}
