package model

import "strings"

// PlayableItem is one slot of the flattened sequence. Position is global and starts at 1.
type PlayableItem struct {
	ID         int    `json:"id"`
	MediaID    int    `json:"mediaId"`
	PlaylistID int    `json:"playlistId"`
	Duration   int    `json:"duration"`
	Position   int    `json:"position"`
	Transition string `json:"transition"`
	MediaType  string `json:"mediaType"`
}

// IsVideo reports whether the item plays as a video; every other media type is an image.
func (p PlayableItem) IsVideo() bool {
	return strings.HasPrefix(p.MediaType, "video")
}

// Renumber rewrites positions to 1..n in slice order.
func Renumber(items []PlayableItem) []PlayableItem {
	out := make([]PlayableItem, len(items))
	for i, it := range items {
		it.Position = i + 1
		out[i] = it
	}
	return out
}
