package main

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/config"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/api"
	playerapi "github.com/Nixie-Tech-LLC/medusa-player/internal/http/api/player/endpoints"
)

// RegisterRoutes sets up the local API the rendering surface talks to
func RegisterRoutes(r *gin.Engine, cfg *config.Config, p playerapi.Player) error {
	// CORS, the renderer is a local web view on another origin
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"OPTIONS",
			"HEAD",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
			"Range",
		},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Range",
			"Accept-Ranges",
		},
		AllowCredentials: false,
	}))

	if err := api.MountGroup(r, api.GroupConfig{}, playerapi.MediaModule(p)); err != nil {
		return err
	}
	if err := api.MountGroup(r, api.GroupConfig{Prefix: "/api/player"}, playerapi.StateModule(p)); err != nil {
		return err
	}
	if cfg.ControlEnabled() {
		if err := api.MountGroup(r, api.GroupConfig{
			Prefix:    "/api/player",
			Auth:      true,
			SecretKey: cfg.APISecret,
		}, playerapi.ControlModule(p)); err != nil {
			return err
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}
