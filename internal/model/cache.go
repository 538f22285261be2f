package model

import "time"

// CacheSource names the path a cached file came from.
type CacheSource string

const (
	SourceObjectStorage CacheSource = "s3"
	SourceOrigin        CacheSource = "local"
)

type CacheEntry struct {
	MediaID   int         `db:"media_id"   json:"mediaId"`
	Path      string      `db:"path"       json:"path"`
	Size      int64       `db:"size"       json:"size"`
	Source    CacheSource `db:"source"     json:"source"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}
