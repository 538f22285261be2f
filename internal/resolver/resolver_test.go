package resolver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/backend"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/player"
)

type fakeBackend struct {
	mu sync.Mutex

	screen      model.Screen
	screenErr   error
	content     []model.ContentEntry
	contentErr  error
	playlists   map[int]model.Playlist
	schedule    map[int]bool
	scheduleErr map[int]error
	// recheckErr fails schedule checks after the first one per playlist
	recheckErr  error
	scheduleHit map[int]int
	media       map[int][]model.PlaylistMediaItem
	assets      map[int]model.MediaAsset
	assetErr    map[int]error

	updates []model.ScreenUpdate
	block   chan struct{}
}

func newFake() *fakeBackend {
	return &fakeBackend{
		screen:      model.Screen{ID: 1, Identifier: "abc-123", BackgroundColor: "#000033"},
		playlists:   map[int]model.Playlist{},
		schedule:    map[int]bool{},
		scheduleErr: map[int]error{},
		scheduleHit: map[int]int{},
		media:       map[int][]model.PlaylistMediaItem{},
		assets:      map[int]model.MediaAsset{},
		assetErr:    map[int]error{},
	}
}

func (f *fakeBackend) addPlaylist(p model.Playlist, inSchedule bool, items ...model.PlaylistMediaItem) {
	f.playlists[p.ID] = p
	f.schedule[p.ID] = inSchedule
	f.media[p.ID] = items
	f.content = append(f.content, model.ContentEntry{ID: len(f.content) + 1, ScreenID: 1, ContentType: model.ContentTypePlaylist, ContentID: p.ID, Position: len(f.content) + 1})
	for _, it := range items {
		if _, ok := f.assets[it.MediaID]; !ok {
			f.assets[it.MediaID] = model.MediaAsset{ID: it.MediaID, MediaType: "image/jpeg"}
		}
	}
}

func (f *fakeBackend) GetScreenByIdentifier(_ context.Context, _ string) (model.Screen, error) {
	if f.block != nil {
		<-f.block
	}
	return f.screen, f.screenErr
}

func (f *fakeBackend) GetScreenContent(_ context.Context, _ int) ([]model.ContentEntry, error) {
	return append([]model.ContentEntry(nil), f.content...), f.contentErr
}

func (f *fakeBackend) GetPlaylist(_ context.Context, id int) (model.Playlist, error) {
	p, ok := f.playlists[id]
	if !ok {
		return model.Playlist{}, &backend.APIError{Method: http.MethodGet, Path: "/playlist", StatusCode: http.StatusNotFound}
	}
	return p, nil
}

func (f *fakeBackend) IsPlaylistInSchedule(_ context.Context, id int) (bool, error) {
	f.mu.Lock()
	f.scheduleHit[id]++
	hits := f.scheduleHit[id]
	f.mu.Unlock()
	if err := f.scheduleErr[id]; err != nil {
		return false, err
	}
	if hits > 1 && f.recheckErr != nil {
		return false, f.recheckErr
	}
	return f.schedule[id], nil
}

func (f *fakeBackend) GetPlaylistMedia(_ context.Context, id int) ([]model.PlaylistMediaItem, error) {
	return append([]model.PlaylistMediaItem(nil), f.media[id]...), nil
}

func (f *fakeBackend) GetMedia(_ context.Context, id int) (model.MediaAsset, error) {
	if err := f.assetErr[id]; err != nil {
		return model.MediaAsset{}, err
	}
	return f.assets[id], nil
}

func (f *fakeBackend) UpdateScreen(_ context.Context, u model.ScreenUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeBackend) statuses() []model.ScreenStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ScreenStatus
	for _, u := range f.updates {
		if u.Status != nil {
			out = append(out, *u.Status)
		}
	}
	return out
}

func (f *fakeBackend) versionPatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.updates {
		if u.ContentVersion != nil && *u.ContentVersion == model.ContentVersionSynced {
			n++
		}
	}
	return n
}

func newResolver(f *fakeBackend) (*Resolver, *player.State) {
	state := player.NewState()
	return New(f, state, time.Hour, zerolog.Nop()), state
}

func assertContiguous(t *testing.T, items []model.PlayableItem) {
	t.Helper()
	for i, it := range items {
		assert.Equal(t, i+1, it.Position)
	}
}

func TestSinglePlaylistExample(t *testing.T) {
	f := newFake()
	f.addPlaylist(model.Playlist{ID: 1, Name: "P1", Status: "enabled", Transition: "Fade In"}, true,
		model.PlaylistMediaItem{ID: 11, PlaylistID: 1, MediaID: 101, Duration: 10, Position: 2},
		model.PlaylistMediaItem{ID: 10, PlaylistID: 1, MediaID: 100, Duration: 5, Position: 1},
	)
	r, state := newResolver(f)

	require.NoError(t, r.Pass(context.Background(), "abc-123"))

	seq := state.Sequence()
	require.Len(t, seq, 2)
	assert.Equal(t, model.PlayableItem{ID: 10, MediaID: 100, PlaylistID: 1, Duration: 5, Position: 1, Transition: "Fade In", MediaType: "image/jpeg"}, seq[0])
	assert.Equal(t, 10, seq[1].Duration)
	assert.Equal(t, 2, seq[1].Position)
	assert.Equal(t, "#000033", state.Background())
	assert.False(t, state.Loading())
	assert.True(t, state.Diagnostic().Empty())
	assert.Equal(t, 1, f.versionPatches())
}

func TestPositionsAreGlobalAcrossPlaylists(t *testing.T) {
	f := newFake()
	f.addPlaylist(model.Playlist{ID: 1, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 1, MediaID: 1, Duration: 5, Position: 1},
		model.PlaylistMediaItem{ID: 2, MediaID: 2, Duration: 5, Position: 2})
	f.addPlaylist(model.Playlist{ID: 2, Status: "Enabled", Transition: "Slide In Up"}, true,
		model.PlaylistMediaItem{ID: 3, MediaID: 3, Duration: 5, Position: 1})
	r, _ := newResolver(f)

	res, err := r.Resolve(context.Background(), "abc-123")
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assertContiguous(t, res.Items)
	assert.Equal(t, "Slide In Up", res.Items[2].Transition)
}

func TestDisabledAndUnscheduledPlaylistsContributeNothing(t *testing.T) {
	f := newFake()
	f.addPlaylist(model.Playlist{ID: 1, Status: "disabled"}, true,
		model.PlaylistMediaItem{ID: 1, MediaID: 1, Duration: 5, Position: 1})
	f.addPlaylist(model.Playlist{ID: 2, Status: "enabled"}, false,
		model.PlaylistMediaItem{ID: 2, MediaID: 2, Duration: 5, Position: 1})
	f.addPlaylist(model.Playlist{ID: 3, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 3, MediaID: 3, Duration: 5, Position: 1})
	r, _ := newResolver(f)

	res, err := r.Resolve(context.Background(), "abc-123")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 3, res.Items[0].PlaylistID)
	assertContiguous(t, res.Items)
	assert.Zero(t, f.scheduleHit[1], "a disabled playlist is never schedule-checked")
}

func TestEmptyContentIsNotAnError(t *testing.T) {
	f := newFake()
	r, state := newResolver(f)
	state.SetSequence([]model.PlayableItem{{ID: 1, MediaID: 1, Position: 1}})
	state.SetDiagnostic(model.Diagnostic{General: "old", Technical: "old", Code: "500"})

	require.NoError(t, r.Pass(context.Background(), "abc-123"))

	assert.Empty(t, state.Sequence())
	assert.Equal(t, 0, state.Cursor())
	assert.True(t, state.Diagnostic().Empty())
	assert.Equal(t, player.ViewNoContent, player.PlaybackView(state.Snapshot()))
	assert.Zero(t, f.versionPatches())
}

func TestEqualSequenceKeepsCursorAcrossPasses(t *testing.T) {
	f := newFake()
	f.addPlaylist(model.Playlist{ID: 1, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 1, MediaID: 1, Duration: 5, Position: 1},
		model.PlaylistMediaItem{ID: 2, MediaID: 2, Duration: 5, Position: 2})
	r, state := newResolver(f)
	var passes, replaced int
	r.OnPass = func(_ []model.PlayableItem, changed bool) {
		passes++
		if changed {
			replaced++
		}
	}

	require.NoError(t, r.Pass(context.Background(), "abc-123"))
	state.Next()
	require.NoError(t, r.Pass(context.Background(), "abc-123"))

	assert.Equal(t, 1, state.Cursor())
	assert.Equal(t, 2, passes)
	assert.Equal(t, 1, replaced)
}

func TestMediaFailureSkipsOnlyThatItem(t *testing.T) {
	f := newFake()
	f.addPlaylist(model.Playlist{ID: 1, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 1, MediaID: 1, Duration: 5, Position: 1},
		model.PlaylistMediaItem{ID: 2, MediaID: 2, Duration: 5, Position: 2},
		model.PlaylistMediaItem{ID: 3, MediaID: 3, Duration: 5, Position: 3})
	f.assetErr[2] = &backend.APIError{Method: http.MethodGet, Path: "/media/2", StatusCode: http.StatusInternalServerError}
	r, state := newResolver(f)

	require.NoError(t, r.Pass(context.Background(), "abc-123"))

	seq := state.Sequence()
	require.Len(t, seq, 2)
	assert.Equal(t, []int{1, 3}, []int{seq[0].MediaID, seq[1].MediaID})
	assertContiguous(t, seq)

	d := state.Diagnostic()
	assert.Equal(t, "Error fetching media with ID 2", d.General)
	assert.Equal(t, "500", d.Code)
	require.NotNil(t, d.MediaID)
	assert.Equal(t, 2, *d.MediaID)
	assert.Equal(t, []model.ScreenStatus{model.StatusError}, f.statuses())
	assert.Equal(t, player.ViewPlaying, player.PlaybackView(state.Snapshot()))
}

func TestPlaylistFailureSkipsPlaylist(t *testing.T) {
	f := newFake()
	f.content = append(f.content, model.ContentEntry{ID: 9, ContentType: model.ContentTypePlaylist, ContentID: 404, Position: 0})
	f.addPlaylist(model.Playlist{ID: 1, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 1, MediaID: 1, Duration: 5, Position: 1})
	r, state := newResolver(f)

	require.NoError(t, r.Pass(context.Background(), "abc-123"))
	assert.Len(t, state.Sequence(), 1)
	assert.Equal(t, "Error fetching playlist with ID 404", state.Diagnostic().General)
	assert.Equal(t, "404", state.Diagnostic().Code)
}

func TestScheduleRecheckFailureKeepsPreviousSequence(t *testing.T) {
	f := newFake()
	f.addPlaylist(model.Playlist{ID: 1, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 1, MediaID: 1, Duration: 5, Position: 1})
	r, state := newResolver(f)
	require.NoError(t, r.Pass(context.Background(), "abc-123"))
	before := state.Sequence()

	f.scheduleHit = map[int]int{}
	f.recheckErr = errors.New("connection reset")
	f.media[1] = append(f.media[1], model.PlaylistMediaItem{ID: 2, MediaID: 2, Duration: 5, Position: 2})
	f.assets[2] = model.MediaAsset{ID: 2, MediaType: "video/mp4"}

	err := r.Pass(context.Background(), "abc-123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolution)
	assert.Equal(t, before, state.Sequence())
	assert.Equal(t, "Error in checking and updating playlist items.", state.Diagnostic().General)
	assert.Equal(t, "Unknown", state.Diagnostic().Code)
	assert.Contains(t, f.statuses(), model.StatusError)
}

func TestUnscheduledFilterDropsAndRenumbers(t *testing.T) {
	f := newFake()
	f.addPlaylist(model.Playlist{ID: 1, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 1, MediaID: 1, Duration: 5, Position: 1})
	f.addPlaylist(model.Playlist{ID: 2, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 2, MediaID: 2, Duration: 5, Position: 1})
	r, _ := newResolver(f)

	items := []model.PlayableItem{
		{ID: 1, MediaID: 1, PlaylistID: 1, Position: 1},
		{ID: 2, MediaID: 2, PlaylistID: 2, Position: 2},
		{ID: 3, MediaID: 3, PlaylistID: 2, Position: 3},
	}
	f.schedule[1] = false
	kept, err := r.dropUnscheduled(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assertContiguous(t, kept)
	assert.Equal(t, 1, f.scheduleHit[2], "one check per playlist")
}

func TestScreenLookupFailure(t *testing.T) {
	f := newFake()
	f.screenErr = &backend.APIError{Method: http.MethodGet, Path: "/screen/get-by-identifier/abc-123", StatusCode: http.StatusNotFound}
	r, state := newResolver(f)
	state.SetSequence([]model.PlayableItem{{ID: 1, MediaID: 1, Position: 1}})

	err := r.Pass(context.Background(), "abc-123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolution)
	assert.ErrorIs(t, err, backend.ErrNotFound)
	assert.Len(t, state.Sequence(), 1, "stale content keeps playing")

	d := state.Diagnostic()
	assert.Equal(t, "Failed to fetch content.", d.General)
	assert.Equal(t, "404", d.Code)

	f.mu.Lock()
	last := f.updates[len(f.updates)-1]
	f.mu.Unlock()
	require.NotNil(t, last.StatusDescription)
	assert.Equal(t, "[404] Failed to fetch content.", *last.StatusDescription)
}

func TestRecoveryClearsError(t *testing.T) {
	f := newFake()
	f.addPlaylist(model.Playlist{ID: 1, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 1, MediaID: 1, Duration: 5, Position: 1})
	r, state := newResolver(f)
	state.SetDiagnostic(model.Diagnostic{General: "Failed to fetch content.", Technical: "x", Code: "502"})

	require.NoError(t, r.Pass(context.Background(), "abc-123"))
	assert.True(t, state.Diagnostic().Empty())
	assert.Equal(t, []model.ScreenStatus{model.StatusOnline}, f.statuses())
}

func TestPersistentDiagnosticSurvivesCleanPass(t *testing.T) {
	f := newFake()
	f.addPlaylist(model.Playlist{ID: 1, Status: "enabled"}, true,
		model.PlaylistMediaItem{ID: 1, MediaID: 1, Duration: 5, Position: 1})
	r, state := newResolver(f)
	id := 1
	state.SetDiagnostic(model.Diagnostic{General: "Error fetching media asset.", Technical: "x", Code: "502", MediaID: &id})
	r.Persistent = func(d model.Diagnostic) bool { return d.MediaID != nil && *d.MediaID == 1 }

	require.NoError(t, r.Pass(context.Background(), "abc-123"))
	assert.Equal(t, "Error fetching media asset.", state.Diagnostic().General)
	assert.Empty(t, f.statuses())
}

func TestOnlyOnePassInFlight(t *testing.T) {
	f := newFake()
	f.block = make(chan struct{})
	r, _ := newResolver(f)

	done := make(chan error, 1)
	go func() { done <- r.Pass(context.Background(), "abc-123") }()

	require.Eventually(t, func() bool { return r.busy.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, r.Pass(context.Background(), "abc-123"), ErrPassInFlight)

	close(f.block)
	assert.NoError(t, <-done)
}
