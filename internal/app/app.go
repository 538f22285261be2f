// Package app runs one device session: pairing, playback, the realtime
// channel and the teardown that reports the device offline.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/backend"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/pairing"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/player"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/realtime"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/resolver"
)

const teardownTimeout = 5 * time.Second

// mediaAssetError is the diagnostic raised for a download that failed without
// a cached copy to fall back on.
const mediaAssetError = "Error fetching media asset."

// ErrNotPlaying is returned by playback controls while the pairing view is up.
var ErrNotPlaying = errors.New("playback is not running")

// Route is the top-level view stack the device is on.
type Route string

const (
	RoutePairing  Route = "pairing"
	RoutePlayback Route = "playback"
)

// Backend is every REST call the session makes.
type Backend interface {
	resolver.Backend
	pairing.Backend
	realtime.Backend
}

// Cache is the part of the media cache the session drives.
type Cache interface {
	Prefetch(ctx context.Context, ids []int, onError func(mediaID int, err error))
	Lookup(mediaID int) (string, bool)
	Refresh(ctx context.Context, mediaID int) (string, error)
	Progress() map[int]float64
}

// RealtimeChannel is the socket the session keeps open.
type RealtimeChannel interface {
	realtime.Emitter
	Run(ctx context.Context) error
	Close() error
}

// CommandBridge is an optional second inbound channel, MQTT in production.
type CommandBridge interface {
	Start(ctx context.Context) error
	Stop()
}

type Options struct {
	DeviceID          string
	ConsoleURL        string
	SocketURL         string
	SocketNamespace   string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	SplashDuration    time.Duration
	MQTTBrokerURL     string
}

type App struct {
	opts    Options
	backend Backend
	cache   Cache
	logger  zerolog.Logger

	state   *player.State
	banner  *player.Banner
	pairing *pairing.Machine
	handler *realtime.Handler
	channel RealtimeChannel
	bridge  CommandBridge

	// networkUp backs the offline view.
	networkUp func() bool

	mu       sync.Mutex
	route    Route
	runCtx   context.Context
	session  *playback
	unitTime time.Duration
}

// playback is one mounted playback view.
type playback struct {
	resolver *resolver.Resolver
	loop     *player.Loop
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	// fetching is set while a prefetch round is in flight.
	fetching atomic.Bool
}

// New wires a session. The realtime client and MQTT bridge are built from opts.
func New(opts Options, api Backend, cache Cache, info pairing.DeviceInfoSource, networkUp func() bool, logger zerolog.Logger) *App {
	a := newApp(opts, api, cache, info, networkUp, logger)
	a.channel = realtime.NewClient(realtime.Options{
		URL:               opts.SocketURL,
		Namespace:         opts.SocketNamespace,
		HeartbeatInterval: opts.HeartbeatInterval,
	}, a.handler, logger)
	if opts.MQTTBrokerURL != "" {
		a.bridge = realtime.NewBridge(opts.MQTTBrokerURL, opts.DeviceID, a.handler, logger)
	}
	return a
}

func newApp(opts Options, api Backend, cache Cache, info pairing.DeviceInfoSource, networkUp func() bool, logger zerolog.Logger) *App {
	if opts.SplashDuration <= 0 {
		opts.SplashDuration = pairing.SplashDuration
	}
	if networkUp == nil {
		networkUp = func() bool { return true }
	}
	state := player.NewState()
	a := &App{
		opts:      opts,
		backend:   api,
		cache:     cache,
		logger:    logger.With().Str("component", "app").Str("deviceId", opts.DeviceID).Logger(),
		state:     state,
		banner:    player.NewBanner(state),
		pairing:   pairing.New(api, info, opts.DeviceID, opts.ConsoleURL, logger),
		networkUp: networkUp,
		route:     RoutePairing,
		runCtx:    context.Background(),
		unitTime:  time.Second,
	}
	a.handler = realtime.NewHandler(opts.DeviceID, api, state, a.banner, a, logger)
	return a
}

func (a *App) State() *player.State       { return a.state }
func (a *App) Pairing() *pairing.Machine  { return a.pairing }
func (a *App) Handler() *realtime.Handler { return a.handler }
func (a *App) DeviceID() string           { return a.opts.DeviceID }

func (a *App) PairingDisplay() pairing.Display { return a.pairing.Display() }

func (a *App) Route() Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}

// Run blocks until ctx is done. The realtime channel lives for the whole
// session; the playback view is mounted whenever the device is linked.
func (a *App) Run(ctx context.Context) error {
	rtCtx, rtCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer rtCancel()

	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	rtDone := make(chan struct{})
	go func() {
		defer close(rtDone)
		if err := a.channel.Run(rtCtx); err != nil {
			a.logger.Error().Err(err).Msg("realtime channel stopped")
		}
	}()

	if a.bridge != nil {
		if err := a.bridge.Start(rtCtx); err != nil {
			a.logger.Warn().Err(err).Msg("mqtt bridge unavailable")
			a.bridge = nil
		}
	}

	if err := a.pairing.Prepare(ctx, a.opts.SplashDuration); err != nil && ctx.Err() == nil {
		a.shutdown(ctx, rtCancel, rtDone)
		return fmt.Errorf("failed to prepare pairing: %w", err)
	}

	prev := pairing.Phase("")
	for {
		if phase := a.pairing.Phase(); phase != prev {
			if phase == pairing.Linked && a.pairing.ShouldPlay() {
				a.navigate(RoutePlayback)
			}
			prev = phase
		}
		select {
		case <-ctx.Done():
			a.shutdown(ctx, rtCancel, rtDone)
			return nil
		case <-a.pairing.Changed():
		}
	}
}

// Linked is called for a "linked" event naming this device.
func (a *App) Linked(_ context.Context) {
	if a.pairing.HandleLinked(a.opts.DeviceID) && a.pairing.ShouldPlay() {
		a.navigate(RoutePlayback)
	}
}

// Unlinked is called for an "unlinked" event naming this device. The pairing
// view takes over and checks the status again.
func (a *App) Unlinked(ctx context.Context) {
	if !a.pairing.HandleUnlinked(a.opts.DeviceID) {
		return
	}
	a.navigate(RoutePairing)
	if err := a.pairing.CheckStatus(ctx); err != nil {
		a.logger.Error().Err(err).Msg("status check after unlink failed")
		return
	}
	// the server may still hold the link
	if a.pairing.ShouldPlay() {
		a.navigate(RoutePlayback)
	}
}

func (a *App) navigate(r Route) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.route == r {
		return
	}
	a.logger.Info().Str("from", string(a.route)).Str("to", string(r)).Msg("navigating")
	a.route = r
	switch r {
	case RoutePlayback:
		a.startPlayback()
	case RoutePairing:
		a.stopPlayback()
	}
}

// startPlayback must be called with a.mu held.
func (a *App) startPlayback() {
	ctx, cancel := context.WithCancel(a.runCtx)
	p := &playback{
		resolver: resolver.New(a.backend, a.state, a.opts.PollInterval, a.logger),
		loop:     player.NewLoop(a.state, a.logger),
		cancel:   cancel,
	}
	p.loop.Unit = a.unitTime
	p.resolver.OnPass = func(items []model.PlayableItem, _ bool) {
		if !p.fetching.CompareAndSwap(false, true) {
			return
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.fetching.Store(false)
			a.prefetch(ctx, items)
		}()
	}
	p.resolver.Persistent = a.downloadPending

	a.state.SetLoading(true)
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.resolver.Run(ctx, a.opts.DeviceID)
	}()
	go func() {
		defer p.wg.Done()
		p.loop.Run(ctx)
	}()
	a.session = p
}

// stopPlayback must be called with a.mu held.
func (a *App) stopPlayback() {
	if a.session == nil {
		return
	}
	a.session.cancel()
	a.session.wg.Wait()
	a.session = nil
	a.state.ClearSequence()
	a.state.SetLoading(true)
}

// prefetch downloads the items of the sequence that are not cached yet, so a
// failed download is retried on the next pass. A failure only surfaces when
// there is no cached copy to keep showing.
func (a *App) prefetch(ctx context.Context, items []model.PlayableItem) {
	ids := make([]int, 0, len(items))
	seen := make(map[int]bool, len(items))
	for _, it := range items {
		if seen[it.MediaID] {
			continue
		}
		seen[it.MediaID] = true
		if _, ok := a.cache.Lookup(it.MediaID); !ok {
			ids = append(ids, it.MediaID)
		}
	}
	if len(ids) == 0 {
		return
	}
	a.cache.Prefetch(ctx, ids, func(mediaID int, err error) {
		if ctx.Err() != nil {
			return
		}
		if _, ok := a.cache.Lookup(mediaID); ok {
			return
		}
		a.logger.Error().Err(err).Int("mediaId", mediaID).Msg("media download failed")
		id := mediaID
		d := model.Diagnostic{
			General:   mediaAssetError,
			Technical: err.Error(),
			Code:      backend.ErrorCode(err),
			MediaID:   &id,
		}
		if sameDiagnostic(a.state.Diagnostic(), d) {
			return
		}
		a.state.SetDiagnostic(d)

		status, desc := model.StatusError, d.StatusDescription()
		update := model.ScreenUpdate{Identifier: a.opts.DeviceID, Status: &status, StatusDescription: &desc}
		if err := a.backend.UpdateScreen(ctx, update); err != nil {
			a.logger.Error().Err(err).Msg("failed to report download error")
		}
	})
}

// downloadPending keeps a download diagnostic up while its media is still
// missing from the cache.
func (a *App) downloadPending(d model.Diagnostic) bool {
	if d.General != mediaAssetError || d.MediaID == nil {
		return false
	}
	_, ok := a.cache.Lookup(*d.MediaID)
	return !ok
}

func sameDiagnostic(a, b model.Diagnostic) bool {
	if a.General != b.General || a.Technical != b.Technical || a.Code != b.Code {
		return false
	}
	if a.MediaID == nil || b.MediaID == nil {
		return a.MediaID == b.MediaID
	}
	return *a.MediaID == *b.MediaID
}

// shutdown clears the playback view, reports the device offline on the still
// open channel, then closes it.
func (a *App) shutdown(ctx context.Context, rtCancel context.CancelFunc, rtDone <-chan struct{}) {
	a.mu.Lock()
	a.stopPlayback()
	a.mu.Unlock()

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	a.handler.Teardown(tctx, a.channel)

	if err := a.channel.Close(); err != nil {
		a.logger.Debug().Err(err).Msg("realtime close")
	}
	if a.bridge != nil {
		a.bridge.Stop()
	}
	rtCancel()
	<-rtDone
	a.banner.Stop()
	a.logger.Info().Msg("session closed")
}

// Resolve asks the running resolver for a pass now.
func (a *App) Resolve() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ErrNotPlaying
	}
	a.session.resolver.Trigger()
	return nil
}

// Next moves playback to the following item.
func (a *App) Next() error {
	if a.Route() != RoutePlayback {
		return ErrNotPlaying
	}
	a.state.Next()
	return nil
}

// RefreshMedia downloads one media file again.
func (a *App) RefreshMedia(ctx context.Context, mediaID int) error {
	_, err := a.cache.Refresh(ctx, mediaID)
	return err
}

// MediaPath returns the cached file for mediaID.
func (a *App) MediaPath(mediaID int) (string, bool) {
	return a.cache.Lookup(mediaID)
}

// View picks what the rendering surface shows right now.
func (a *App) View() player.View {
	if a.Route() == RoutePlayback {
		return player.PlaybackView(a.state.Snapshot())
	}
	switch {
	case !a.networkUp():
		return player.ViewOffline
	case !a.pairing.Ready():
		return player.ViewLoading
	default:
		return player.ViewPairing
	}
}

// Download is one outstanding media download.
type Download struct {
	MediaID  int     `json:"mediaId"`
	Progress float64 `json:"progress"`
}

// Item is the current item with what the renderer needs to draw it.
type Item struct {
	model.PlayableItem
	Effect   player.Effect `json:"effect"`
	Video    bool          `json:"video"`
	MediaURL string        `json:"mediaUrl"`
	Cached   bool          `json:"cached"`
}

// Status is the full picture served to the rendering surface.
type Status struct {
	View           player.View         `json:"view"`
	Route          Route               `json:"route"`
	Current        *Item               `json:"current"`
	SequenceLength int                 `json:"sequenceLength"`
	Cursor         int                 `json:"cursor"`
	Background     string              `json:"backgroundColor"`
	Connected      bool                `json:"connected"`
	Notification   player.Notification `json:"notification"`
	Error          model.Diagnostic    `json:"error"`
	Downloads      []Download          `json:"downloads"`
}

func (a *App) Status() Status {
	snap := a.state.Snapshot()
	st := Status{
		View:           a.View(),
		Route:          a.Route(),
		SequenceLength: len(snap.Sequence),
		Cursor:         snap.Cursor,
		Background:     snap.Background,
		Connected:      snap.Connected,
		Notification:   snap.Notification,
		Error:          snap.Diagnostic,
		Downloads:      []Download{},
	}
	if st.Route == RoutePlayback && snap.Cursor < len(snap.Sequence) {
		it := snap.Sequence[snap.Cursor]
		_, cached := a.cache.Lookup(it.MediaID)
		st.Current = &Item{
			PlayableItem: it,
			Effect:       player.EffectFor(it.Transition),
			Video:        it.IsVideo(),
			MediaURL:     fmt.Sprintf("/media/%d", it.MediaID),
			Cached:       cached,
		}
	}
	for id, p := range a.cache.Progress() {
		st.Downloads = append(st.Downloads, Download{MediaID: id, Progress: p})
	}
	sort.Slice(st.Downloads, func(i, j int) bool { return st.Downloads[i].MediaID < st.Downloads[j].MediaID })
	return st
}
