package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/app"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/api"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/api/player/packets"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/pairing"
)

// Player is what the local API reads and drives.
type Player interface {
	DeviceID() string
	Status() app.Status
	PairingDisplay() pairing.Display
	MediaPath(mediaID int) (string, bool)
	Resolve() error
	Next() error
	RefreshMedia(ctx context.Context, mediaID int) error
}

type PlayerController struct {
	player Player
}

func NewPlayerController(p Player) *PlayerController {
	return &PlayerController{player: p}
}

// StateModule serves the rendering surface.
func StateModule(p Player) api.Module {
	ctl := NewPlayerController(p)
	return api.ModuleFunc(func(c *api.Controller) {
		c.Group.GET("/state", api.ResolveEndpoint(ctl.getState))
		c.Group.GET("/pairing", api.ResolveEndpoint(ctl.getPairing))
	})
}

// ControlModule holds the operator commands, mounted behind JWT.
func ControlModule(p Player) api.Module {
	ctl := NewPlayerController(p)
	return api.ModuleFunc(func(c *api.Controller) {
		c.Group.POST("/resolve", api.ResolveEndpointWithAuth(ctl.resolve))
		c.Group.POST("/next", api.ResolveEndpointWithAuth(ctl.next))
		c.Group.POST("/cache/:id/refresh", api.ResolveEndpointWithAuth(ctl.refresh))
	})
}

// MediaModule serves cached media files by id.
func MediaModule(p Player) api.Module {
	ctl := NewPlayerController(p)
	return api.ModuleFunc(func(c *api.Controller) {
		c.Group.GET("/media/:id", ctl.serveMedia)
		c.Group.GET("/healthz", api.ResolveEndpoint(ctl.health))
	})
}

// GET /api/player/state
func (p *PlayerController) getState(c *gin.Context) (any, *api.Error) {
	return p.player.Status(), nil
}

// GET /api/player/pairing
func (p *PlayerController) getPairing(c *gin.Context) (any, *api.Error) {
	return p.player.PairingDisplay(), nil
}

// GET /healthz
func (p *PlayerController) health(c *gin.Context) (any, *api.Error) {
	return packets.HealthResponse{Status: "ok", DeviceID: p.player.DeviceID()}, nil
}

// POST /api/player/resolve
func (p *PlayerController) resolve(c *gin.Context, subject string) (any, *api.Error) {
	if err := p.player.Resolve(); err != nil {
		return nil, controlError(err)
	}
	log.Info().Str("operator", subject).Msg("resolution pass requested")
	return packets.AcceptedResponse{Accepted: true}, nil
}

// POST /api/player/next
func (p *PlayerController) next(c *gin.Context, subject string) (any, *api.Error) {
	if err := p.player.Next(); err != nil {
		return nil, controlError(err)
	}
	log.Info().Str("operator", subject).Msg("skipped to next item")
	return packets.AcceptedResponse{Accepted: true}, nil
}

// POST /api/player/cache/:id/refresh
func (p *PlayerController) refresh(c *gin.Context, subject string) (any, *api.Error) {
	id, err := mediaID(c)
	if err != nil {
		return nil, api.NewError(http.StatusBadRequest, err)
	}
	if err := p.player.RefreshMedia(c.Request.Context(), id); err != nil {
		log.Error().Err(err).Int("mediaId", id).Msg("media refresh failed")
		return nil, api.NewError(http.StatusBadGateway, err)
	}
	path, _ := p.player.MediaPath(id)
	log.Info().Str("operator", subject).Int("mediaId", id).Msg("media refreshed")
	return packets.RefreshResponse{MediaID: id, Path: path}, nil
}

// GET /media/:id
func (p *PlayerController) serveMedia(c *gin.Context) {
	id, err := mediaID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	path, ok := p.player.MediaPath(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "media not cached"})
		return
	}
	c.File(path)
}

func mediaID(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid media id %q", c.Param("id"))
	}
	return id, nil
}

func controlError(err error) *api.Error {
	if errors.Is(err, app.ErrNotPlaying) {
		return api.NewError(http.StatusConflict, err)
	}
	return api.NewError(http.StatusInternalServerError, err)
}
