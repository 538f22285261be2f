package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/backend"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/metrics"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/player"
)

// Inbound events.
const (
	EventLinked          = "consoleLinkedScreen"
	EventUnlinked        = "consoleUnlinkedScreen"
	EventNotification    = "sendNotification"
	EventStatusQuery     = "checkScreenStatus"
	EventBackgroundColor = "backgroundColorChanged"
	EventConnectionState = "connectionStatus"
)

// Outbound events.
const (
	EventPlayStatus      = "playStatus"
	EventStatusResponse  = "screenStatusResponse"
	EventCheckConnection = "checkConnection"
)

type Backend interface {
	GetScreenByIdentifier(ctx context.Context, identifier string) (model.Screen, error)
	UpdateScreen(ctx context.Context, update model.ScreenUpdate) error
	PostAnalytics(ctx context.Context, a model.ScreenAnalytics) error
}

// Links is told about link events naming this device.
type Links interface {
	Linked(ctx context.Context)
	Unlinked(ctx context.Context)
}

type identified struct {
	Identifier string `json:"identifier"`
}

type notificationPayload struct {
	Identifier   string `json:"identifier"`
	Notification string `json:"notification"`
}

type backgroundPayload struct {
	Identifier      string `json:"identifier"`
	BackgroundColor string `json:"backgroundColor"`
}

type connectionPayload struct {
	Connected bool `json:"connected"`
}

type playStatus struct {
	DeviceID string `json:"deviceId"`
}

// StatusResponse answers a status query.
type StatusResponse struct {
	Identifier     string             `json:"identifier"`
	Status         model.ScreenStatus `json:"status"`
	ErrorMessage   *string            `json:"errorMessage"`
	ContentVersion int                `json:"contentVersion"`
}

// Status applies the priority error > out_of_sync > online.
func Status(d model.Diagnostic, contentVersion int) model.ScreenStatus {
	switch {
	case !d.Empty():
		return model.StatusError
	case contentVersion == model.ContentVersionUnsynced:
		return model.StatusOutOfSync
	default:
		return model.StatusOnline
	}
}

// Handler reacts to channel events on behalf of one device.
type Handler struct {
	deviceID string
	backend  Backend
	state    *player.State
	banner   *player.Banner
	links    Links
	logger   zerolog.Logger

	now func() time.Time
}

func NewHandler(deviceID string, backend Backend, state *player.State, banner *player.Banner, links Links, logger zerolog.Logger) *Handler {
	return &Handler{
		deviceID: deviceID,
		backend:  backend,
		state:    state,
		banner:   banner,
		links:    links,
		logger:   logger.With().Str("component", "realtime").Str("deviceId", deviceID).Logger(),
		now:      time.Now,
	}
}

func (h *Handler) Connected(ctx context.Context, e Emitter) {
	h.state.SetConnected(true)
	if !h.state.HasError() {
		h.announceOnline(ctx)
	}
	h.emitPlayStatus(e)
}

func (h *Handler) Disconnected(ctx context.Context, e Emitter) {
	if !h.state.HasError() && ctx.Err() == nil {
		h.patchStatus(ctx, model.StatusOffline)
	}
	h.emitPlayStatus(e)
	h.state.SetConnected(false)
}

// Teardown reports the device offline and announces the play status one last time.
// The channel is still open when this runs; the caller closes it afterwards.
func (h *Handler) Teardown(ctx context.Context, e Emitter) {
	h.patchStatus(ctx, model.StatusOffline)
	h.emitPlayStatus(e)
}

func (h *Handler) Event(ctx context.Context, e Emitter, event string, data json.RawMessage) {
	metrics.RealtimeEvents.WithLabelValues(event).Inc()
	h.logger.Debug().Str("event", event).RawJSON("data", orNull(data)).Msg("realtime event")

	switch event {
	case EventLinked:
		if h.forMe(data) {
			h.links.Linked(ctx)
		}
	case EventUnlinked:
		if h.forMe(data) {
			h.links.Unlinked(ctx)
		}
	case EventNotification:
		var p notificationPayload
		if h.decode(event, data, &p) && p.Identifier == h.deviceID {
			h.banner.Show(p.Notification)
		}
	case EventStatusQuery:
		if h.forMe(data) {
			h.answerStatus(ctx, e)
		}
	case EventBackgroundColor:
		var p backgroundPayload
		if h.decode(event, data, &p) && p.Identifier == h.deviceID {
			h.state.SetBackground(p.BackgroundColor)
		}
	case EventConnectionState:
		var p connectionPayload
		if !h.decode(event, data, &p) {
			return
		}
		h.state.SetConnected(p.Connected)
		if p.Connected && !h.state.HasError() {
			h.announceOnline(ctx)
		}
	default:
		h.logger.Debug().Str("event", event).Msg("unhandled realtime event")
	}
}

// announceOnline looks up the owning user and posts an "online" analytics ping.
// Screens without an owner are skipped.
func (h *Handler) announceOnline(ctx context.Context) {
	screen, err := h.backend.GetScreenByIdentifier(ctx, h.deviceID)
	if err != nil {
		h.fail("Failed to fetch userId", err)
		return
	}
	if screen.UserID == nil {
		return
	}
	err = h.backend.PostAnalytics(ctx, model.ScreenAnalytics{
		ScreenID: h.deviceID,
		UserID:   *screen.UserID,
		Status:   model.StatusOnline,
		Date:     h.now().UTC().Format(http.TimeFormat),
	})
	if err != nil {
		h.fail("Failed to post screen analytics data", err)
	}
}

func (h *Handler) answerStatus(ctx context.Context, e Emitter) {
	screen, err := h.backend.GetScreenByIdentifier(ctx, h.deviceID)
	if err != nil {
		h.fail("Failed to fetch screen details", err)
		return
	}

	d := h.state.Diagnostic()
	resp := StatusResponse{
		Identifier:     h.deviceID,
		Status:         Status(d, screen.ContentVersion),
		ContentVersion: screen.ContentVersion,
	}
	if msg := d.Message(); msg != "" {
		resp.ErrorMessage = &msg
	}
	if err := e.Emit(EventStatusResponse, resp); err != nil {
		h.logger.Warn().Err(err).Msg("failed to answer status query")
	}
}

func (h *Handler) patchStatus(ctx context.Context, status model.ScreenStatus) {
	err := h.backend.UpdateScreen(ctx, model.ScreenUpdate{Identifier: h.deviceID, Status: &status})
	if err != nil {
		h.logger.Error().Err(err).Str("status", string(status)).Msg("failed to update screen status")
	}
}

func (h *Handler) emitPlayStatus(e Emitter) {
	if err := e.Emit(EventPlayStatus, playStatus{DeviceID: h.deviceID}); err != nil {
		if errors.Is(err, ErrNotConnected) {
			h.logger.Debug().Msg("play status not sent, channel down")
			return
		}
		h.logger.Warn().Err(err).Msg("failed to send play status")
	}
}

func (h *Handler) fail(general string, err error) {
	h.logger.Error().Err(err).Msg(general)
	h.state.SetDiagnostic(model.Diagnostic{
		General:   general,
		Technical: err.Error(),
		Code:      backend.ErrorCode(err),
	})
}

func (h *Handler) forMe(data json.RawMessage) bool {
	var p identified
	return h.decode("", data, &p) && p.Identifier == h.deviceID
}

func (h *Handler) decode(event string, data json.RawMessage, v any) bool {
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		h.logger.Warn().Err(err).Str("event", event).Msg("bad event payload")
		return false
	}
	return true
}

func orNull(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
