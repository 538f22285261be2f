// Package resolver flattens a screen's assignment graph into the playable sequence.
package resolver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/metrics"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/player"
)

// DefaultInterval between passes.
const DefaultInterval = 5 * time.Second

// Backend is the part of the REST client the resolver reads and reports through.
type Backend interface {
	GetScreenByIdentifier(ctx context.Context, identifier string) (model.Screen, error)
	GetScreenContent(ctx context.Context, screenID int) ([]model.ContentEntry, error)
	GetPlaylist(ctx context.Context, id int) (model.Playlist, error)
	IsPlaylistInSchedule(ctx context.Context, playlistID int) (bool, error)
	GetPlaylistMedia(ctx context.Context, playlistID int) ([]model.PlaylistMediaItem, error)
	GetMedia(ctx context.Context, id int) (model.MediaAsset, error)
	UpdateScreen(ctx context.Context, update model.ScreenUpdate) error
}

// Result is the outcome of one pass before it is applied to the player state.
type Result struct {
	Screen model.Screen
	Items  []model.PlayableItem
	// Diagnostics collects the non-fatal failures, in the order they happened.
	Diagnostics []model.Diagnostic
}

type Resolver struct {
	backend  Backend
	state    *player.State
	logger   zerolog.Logger
	interval time.Duration

	busy    atomic.Bool
	trigger chan struct{}

	// OnPass is called after every successful pass that left items to play.
	OnPass func(items []model.PlayableItem, replaced bool)
	// Persistent, when set, reports whether an outstanding diagnostic outlives a
	// pass without per-item failures. Others are cleared and the device reported online.
	Persistent func(d model.Diagnostic) bool
}

func New(backend Backend, state *player.State, interval time.Duration, logger zerolog.Logger) *Resolver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Resolver{
		backend:  backend,
		state:    state,
		logger:   logger.With().Str("component", "resolver").Logger(),
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Run performs a pass right away and then one per interval until ctx is done.
func (r *Resolver) Run(ctx context.Context, deviceID string) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Pass(ctx, deviceID); err != nil && !errors.Is(err, ErrPassInFlight) && ctx.Err() == nil {
			r.logger.Warn().Err(err).Str("deviceId", deviceID).Msg("resolution pass failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.trigger:
		}
	}
}

// Trigger asks Run for a pass now instead of at the next tick.
func (r *Resolver) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Pass resolves once and applies the result. Only one pass runs at a time.
func (r *Resolver) Pass(ctx context.Context, deviceID string) error {
	if !r.busy.CompareAndSwap(false, true) {
		metrics.ResolutionPasses.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return ErrPassInFlight
	}
	defer r.busy.Store(false)
	defer r.state.SetLoading(false)

	start := time.Now()
	defer func() { metrics.ResolutionDuration.Observe(time.Since(start).Seconds()) }()

	res, err := r.Resolve(ctx, deviceID)
	if err != nil {
		metrics.ResolutionPasses.WithLabelValues(metrics.OutcomeError).Inc()
		var rerr *Error
		if errors.As(err, &rerr) {
			r.state.SetDiagnostic(rerr.Diagnostic)
			r.reportError(ctx, deviceID, rerr.Diagnostic)
		}
		return err
	}

	r.state.SetBackground(res.Screen.BackgroundColor)

	if len(res.Items) == 0 {
		metrics.ResolutionPasses.WithLabelValues(metrics.OutcomeEmpty).Inc()
		r.state.ClearSequence()
		r.state.ClearDiagnostic()
		return nil
	}

	replaced := r.state.SetSequence(res.Items)
	if replaced {
		r.logger.Info().Str("deviceId", deviceID).Int("items", len(res.Items)).Msg("sequence replaced")
	}

	if n := len(res.Diagnostics); n > 0 {
		r.state.SetDiagnostic(res.Diagnostics[n-1])
	} else if d := r.state.Diagnostic(); !d.Empty() && (r.Persistent == nil || !r.Persistent(d)) {
		r.state.ClearDiagnostic()
		r.report(ctx, model.ScreenUpdate{Identifier: deviceID, Status: ptr(model.StatusOnline)})
	}

	// after the diagnostic is settled, so errors raised by the callback stick
	if r.OnPass != nil {
		r.OnPass(r.state.Sequence(), replaced)
	}

	r.report(ctx, model.ScreenUpdate{Identifier: deviceID, ContentVersion: ptr(model.ContentVersionSynced)})
	metrics.ResolutionPasses.WithLabelValues(metrics.OutcomeOK).Inc()
	return nil
}

// Resolve walks screen -> content -> playlists -> media without touching the player state.
// Per-playlist and per-item failures are reported upstream as they happen and collected
// in Result.Diagnostics; only the screen lookups and the schedule re-check are fatal.
func (r *Resolver) Resolve(ctx context.Context, deviceID string) (Result, error) {
	screen, err := r.backend.GetScreenByIdentifier(ctx, deviceID)
	if err != nil {
		return Result{}, fatal("Failed to fetch content.", err)
	}

	entries, err := r.backend.GetScreenContent(ctx, screen.ID)
	if err != nil {
		return Result{}, fatal("Failed to fetch content.", err)
	}

	res := Result{Screen: screen, Items: []model.PlayableItem{}}
	if len(entries) == 0 {
		return res, nil
	}
	slices.SortStableFunc(entries, func(a, b model.ContentEntry) int { return cmp.Compare(a.Position, b.Position) })

	var collected []model.PlayableItem
	for _, entry := range entries {
		if entry.ContentType != model.ContentTypePlaylist {
			continue
		}
		items, diags, err := r.playlistItems(ctx, deviceID, entry.ContentID)
		res.Diagnostics = append(res.Diagnostics, diags...)
		if err != nil {
			d := diagnose(fmt.Sprintf("Error fetching playlist with ID %d", entry.ContentID), err)
			r.logger.Error().Err(err).Int("playlistId", entry.ContentID).Msg("playlist fetch failed")
			r.reportError(ctx, deviceID, d)
			res.Diagnostics = append(res.Diagnostics, d)
			continue
		}
		collected = append(collected, items...)
	}

	filtered, err := r.dropUnscheduled(ctx, collected)
	if err != nil {
		return Result{}, err
	}
	res.Items = filtered
	return res, nil
}

// playlistItems resolves one playlist. A returned error fails only this playlist.
func (r *Resolver) playlistItems(ctx context.Context, deviceID string, playlistID int) ([]model.PlayableItem, []model.Diagnostic, error) {
	playlist, err := r.backend.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, nil, err
	}
	if !playlist.Enabled() {
		return nil, nil, nil
	}

	inSchedule, err := r.backend.IsPlaylistInSchedule(ctx, playlist.ID)
	if err != nil {
		return nil, nil, err
	}
	if !inSchedule {
		return nil, nil, nil
	}

	media, err := r.backend.GetPlaylistMedia(ctx, playlist.ID)
	if err != nil {
		return nil, nil, err
	}
	slices.SortStableFunc(media, func(a, b model.PlaylistMediaItem) int { return cmp.Compare(a.Position, b.Position) })

	var (
		items []model.PlayableItem
		diags []model.Diagnostic
	)
	for _, m := range media {
		asset, err := r.backend.GetMedia(ctx, m.MediaID)
		if err != nil {
			d := diagnose(fmt.Sprintf("Error fetching media with ID %d", m.MediaID), err)
			d.MediaID = ptr(m.MediaID)
			r.logger.Error().Err(err).Int("mediaId", m.MediaID).Int("playlistId", playlist.ID).Msg("media fetch failed")
			r.reportError(ctx, deviceID, d)
			diags = append(diags, d)
			continue
		}
		items = append(items, model.PlayableItem{
			ID:         m.ID,
			MediaID:    asset.ID,
			PlaylistID: playlist.ID,
			Duration:   m.Duration,
			Transition: playlist.Transition,
			MediaType:  asset.MediaType,
		})
	}
	return items, diags, nil
}

// dropUnscheduled re-checks each contributing playlist once, in first-appearance order,
// and renumbers what is left. Any failure here fails the pass.
func (r *Resolver) dropUnscheduled(ctx context.Context, items []model.PlayableItem) ([]model.PlayableItem, error) {
	eligible := make(map[int]bool)
	for _, it := range items {
		if _, seen := eligible[it.PlaylistID]; seen {
			continue
		}
		in, err := r.backend.IsPlaylistInSchedule(ctx, it.PlaylistID)
		if err != nil {
			r.logger.Error().Err(err).Int("playlistId", it.PlaylistID).Msg("schedule re-check failed")
			return nil, fatal("Error in checking and updating playlist items.", fmt.Errorf("playlist %d: %w", it.PlaylistID, err))
		}
		eligible[it.PlaylistID] = in
	}

	kept := make([]model.PlayableItem, 0, len(items))
	for _, it := range items {
		if eligible[it.PlaylistID] {
			kept = append(kept, it)
		}
	}
	return model.Renumber(kept), nil
}

func (r *Resolver) reportError(ctx context.Context, deviceID string, d model.Diagnostic) {
	r.report(ctx, model.ScreenUpdate{
		Identifier:        deviceID,
		Status:            ptr(model.StatusError),
		StatusDescription: ptr(d.StatusDescription()),
	})
}

func (r *Resolver) report(ctx context.Context, update model.ScreenUpdate) {
	if err := r.backend.UpdateScreen(ctx, update); err != nil {
		r.logger.Error().Err(err).Str("deviceId", update.Identifier).Msg("failed to update screen status")
	}
}

func ptr[T any](v T) *T { return &v }
