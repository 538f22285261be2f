package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/app"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/api"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/pairing"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/player"
)

const secret = "test-secret"

type fakePlayer struct {
	status     app.Status
	display    pairing.Display
	media      map[int]string
	playing    bool
	refreshErr error

	resolves  int
	nexts     int
	refreshed []int
}

func (f *fakePlayer) DeviceID() string                { return "abc-123" }
func (f *fakePlayer) Status() app.Status              { return f.status }
func (f *fakePlayer) PairingDisplay() pairing.Display { return f.display }

func (f *fakePlayer) MediaPath(id int) (string, bool) {
	p, ok := f.media[id]
	return p, ok
}

func (f *fakePlayer) Resolve() error {
	if !f.playing {
		return app.ErrNotPlaying
	}
	f.resolves++
	return nil
}

func (f *fakePlayer) Next() error {
	if !f.playing {
		return app.ErrNotPlaying
	}
	f.nexts++
	return nil
}

func (f *fakePlayer) RefreshMedia(_ context.Context, id int) error {
	f.refreshed = append(f.refreshed, id)
	return f.refreshErr
}

func newRouter(t *testing.T, p Player) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	require.NoError(t, api.MountGroup(r, api.GroupConfig{}, MediaModule(p)))
	require.NoError(t, api.MountGroup(r, api.GroupConfig{Prefix: "/api/player"}, StateModule(p)))
	require.NoError(t, api.MountGroup(r, api.GroupConfig{Prefix: "/api/player", Auth: true, SecretKey: secret}, ControlModule(p)))
	return r
}

func do(r http.Handler, method, path string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth {
		token, _ := middleware.GenerateJWT("ops", secret, time.Hour)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetState(t *testing.T) {
	item := model.PlayableItem{ID: 1, MediaID: 7, PlaylistID: 10, Duration: 10, Position: 1, Transition: "Fade In Left", MediaType: "image/png"}
	p := &fakePlayer{status: app.Status{
		View:           player.ViewPlaying,
		Route:          app.RoutePlayback,
		Current:        &app.Item{PlayableItem: item, Effect: player.FadeInLeft, MediaURL: "/media/7", Cached: true},
		SequenceLength: 1,
		Background:     "#112233",
		Connected:      true,
		Downloads:      []app.Download{{MediaID: 8, Progress: 0.4}},
	}}
	w := do(newRouter(t, p), http.MethodGet, "/api/player/state", false)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "playing", body["view"])
	assert.Equal(t, "#112233", body["backgroundColor"])
	current := body["current"].(map[string]any)
	assert.Equal(t, "fadeInLeft", current["effect"])
	assert.Equal(t, "/media/7", current["mediaUrl"])
	assert.Equal(t, float64(7), current["mediaId"])
	downloads := body["downloads"].([]any)
	require.Len(t, downloads, 1)
}

func TestGetPairing(t *testing.T) {
	p := &fakePlayer{display: pairing.Display{DeviceID: "abc-123", PairingCode: "123456", QRValue: "https://console/screen/abc-123", Phase: pairing.RegisteredUnlinked}}
	w := do(newRouter(t, p), http.MethodGet, "/api/player/pairing", false)
	require.Equal(t, http.StatusOK, w.Code)

	var d pairing.Display
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, p.display, d)
}

func TestServeMedia(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media_7")
	require.NoError(t, os.WriteFile(path, []byte("jpeg bytes"), 0o644))
	r := newRouter(t, &fakePlayer{media: map[int]string{7: path}})

	w := do(r, http.MethodGet, "/media/7", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg bytes", w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/media/8", false).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/media/abc", false).Code)
}

func TestHealth(t *testing.T) {
	w := do(newRouter(t, &fakePlayer{}), http.MethodGet, "/healthz", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","deviceId":"abc-123"}`, w.Body.String())
}

func TestControlRequiresToken(t *testing.T) {
	p := &fakePlayer{playing: true}
	r := newRouter(t, p)
	for _, path := range []string{"/api/player/resolve", "/api/player/next", "/api/player/cache/7/refresh"} {
		assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, path, false).Code, path)
	}
	assert.Zero(t, p.resolves)
	assert.Zero(t, p.nexts)
	assert.Empty(t, p.refreshed)
}

func TestControl(t *testing.T) {
	p := &fakePlayer{playing: true, media: map[int]string{7: "/cache/media_7"}}
	r := newRouter(t, p)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/player/resolve", true).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/player/next", true).Code)
	w := do(r, http.MethodPost, "/api/player/cache/7/refresh", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mediaId":7,"path":"/cache/media_7"}`, w.Body.String())

	assert.Equal(t, 1, p.resolves)
	assert.Equal(t, 1, p.nexts)
	assert.Equal(t, []int{7}, p.refreshed)
}

func TestControlErrors(t *testing.T) {
	p := &fakePlayer{refreshErr: errors.New("both sources failed")}
	r := newRouter(t, p)

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/player/resolve", true).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/player/next", true).Code)
	assert.Equal(t, http.StatusBadGateway, do(r, http.MethodPost, "/api/player/cache/7/refresh", true).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/player/cache/0/refresh", true).Code)
}

func TestMountGroupNeedsSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	err := api.MountGroup(gin.New(), api.GroupConfig{Prefix: "/api/player", Auth: true}, ControlModule(&fakePlayer{}))
	assert.ErrorIs(t, err, api.ErrMissingSecret)
}
