package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/app"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/config"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/pairing"
)

type stubPlayer struct{}

func (stubPlayer) DeviceID() string                        { return "abc-123" }
func (stubPlayer) Status() app.Status                      { return app.Status{} }
func (stubPlayer) PairingDisplay() pairing.Display         { return pairing.Display{} }
func (stubPlayer) MediaPath(int) (string, bool)            { return "", false }
func (stubPlayer) Resolve() error                          { return nil }
func (stubPlayer) Next() error                             { return nil }
func (stubPlayer) RefreshMedia(context.Context, int) error { return nil }

func serve(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("control disabled without secret", func(t *testing.T) {
		r := gin.New()
		require.NoError(t, RegisterRoutes(r, &config.Config{}, stubPlayer{}))
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/player/state", nil).Code)
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics", nil).Code)
		assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/api/player/next", nil).Code)
	})

	t.Run("control behind jwt", func(t *testing.T) {
		r := gin.New()
		require.NoError(t, RegisterRoutes(r, &config.Config{APISecret: "s3cret"}, stubPlayer{}))
		assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/player/next", nil).Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		r := gin.New()
		require.NoError(t, RegisterRoutes(r, &config.Config{}, stubPlayer{}))
		w := serve(r, http.MethodOptions, "/api/player/state", http.Header{
			"Origin":                        {"http://localhost:3000"},
			"Access-Control-Request-Method": {"GET"},
		})
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})
}
