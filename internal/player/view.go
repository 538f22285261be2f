package player

// View is the screen the rendering surface should show.
type View string

const (
	ViewLoading   View = "loading"
	ViewPairing   View = "pairing"
	ViewOffline   View = "offline"
	ViewError     View = "error"
	ViewNoContent View = "no-content"
	ViewPlaying   View = "playing"
)

// PlaybackView picks the view for a linked device. The error view only blocks
// when there is nothing left to play and the whole triple is populated.
func PlaybackView(s Snapshot) View {
	switch {
	case s.Loading:
		return ViewLoading
	case len(s.Sequence) == 0 && s.Diagnostic.Complete():
		return ViewError
	case len(s.Sequence) > 0:
		return ViewPlaying
	default:
		return ViewNoContent
	}
}
