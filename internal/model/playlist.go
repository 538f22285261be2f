package model

import "strings"

// PlaylistStatusEnabled is the only status that makes a playlist eligible.
const PlaylistStatusEnabled = "enabled"

type Playlist struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Transition string `json:"transition"`
}

// Enabled compares the status case-insensitively, the backend is not consistent about it.
func (p Playlist) Enabled() bool {
	return strings.EqualFold(p.Status, PlaylistStatusEnabled)
}

type PlaylistMediaItem struct {
	ID         int `json:"id"`
	PlaylistID int `json:"playlistId"`
	MediaID    int `json:"mediaId"`
	Duration   int `json:"duration"`
	Position   int `json:"position"`
}

// MediaAsset is a media record. S3MediaPath and LocalMediaPath are the backend's
// own locations; the player asks the storage endpoints for downloadable ones.
type MediaAsset struct {
	ID             int    `json:"id"`
	Filename       string `json:"filename"`
	MediaType      string `json:"mediaType"`
	S3MediaPath    string `json:"s3MediaPath"`
	LocalMediaPath string `json:"localMediaPath"`
	FileSize       int64  `json:"fileSize"`
	Resolution     string `json:"resolution"`
}

// S3Media is the response of GET /storage/media/{id}/get-s3-media.
type S3Media struct {
	S3Path string `json:"s3Path"`
}
