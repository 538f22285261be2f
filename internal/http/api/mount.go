package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/middleware"
)

// ErrMissingSecret is returned when an authenticated group has no signing secret.
var ErrMissingSecret = errors.New("api: auth enabled but secret key is empty")

// Module is a pluggable feature that attaches its endpoints to a Controller (a gin group).
type Module interface {
	Mount(c *Controller)
}

// ModuleFunc lets you define a Module with a simple function.
type ModuleFunc func(c *Controller)

func (f ModuleFunc) Mount(c *Controller) { f(c) }

// GroupConfig tells the api package how to mount a group.
type GroupConfig struct {
	Prefix     string
	Auth       bool
	SecretKey  string            // required if Auth == true
	Middleware []gin.HandlerFunc // optional additional middleware
}

// MountGroup mounts one or more Modules under a prefix with optional auth.
func MountGroup(parent gin.IRouter, cfg GroupConfig, modules ...Module) error {
	if cfg.Auth && cfg.SecretKey == "" {
		return ErrMissingSecret
	}

	grp := parent.Group(cfg.Prefix)
	for _, mw := range cfg.Middleware {
		grp.Use(mw)
	}
	if cfg.Auth {
		grp.Use(middleware.JWTMiddleware(cfg.SecretKey))
	}

	controller := &Controller{Group: grp}
	for _, m := range modules {
		m.Mount(controller)
	}
	return nil
}
