package model

// ContentTypePlaylist is the only content type the player resolves.
const ContentTypePlaylist = "playlist"

// ContentEntry assigns a piece of content to a screen at a position.
type ContentEntry struct {
	ID          int    `json:"id"`
	ScreenID    int    `json:"screenId"`
	ContentType string `json:"contentType"`
	ContentID   int    `json:"contentId"`
	Position    int    `json:"position"`
}
