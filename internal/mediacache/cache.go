// Package mediacache resolves media ids to local files, downloading on a miss.
package mediacache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/db"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/metrics"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/storage"
)

// prefetchConcurrency bounds parallel downloads started by Prefetch.
const prefetchConcurrency = 2

var (
	// ErrPrimaryUnavailable means the backend handed out no object-storage location.
	ErrPrimaryUnavailable = errors.New("object storage location unavailable")
	// ErrDownload is returned when every source failed and nothing is cached.
	ErrDownload = errors.New("media download failed")
)

// Backend is the part of the REST client the cache needs.
type Backend interface {
	GetS3MediaPath(ctx context.Context, mediaID int) (string, error)
	GetLocalMedia(ctx context.Context, mediaID int) ([]byte, error)
}

type Cache struct {
	dir     string
	backend Backend
	remote  storage.Storage
	index   db.Store // optional
	logger  zerolog.Logger

	strategies []strategy

	mu       sync.Mutex
	resolved map[int]string
	progress map[int]float64
	pending  map[int]chan struct{}
}

// New creates the cache directory if needed. index may be nil.
func New(dir string, backend Backend, remote storage.Storage, index db.Store, logger zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	c := &Cache{
		dir:      dir,
		backend:  backend,
		remote:   remote,
		index:    index,
		logger:   logger.With().Str("component", "mediacache").Logger(),
		resolved: make(map[int]string),
		progress: make(map[int]float64),
		pending:  make(map[int]chan struct{}),
	}
	c.strategies = []strategy{
		{source: model.SourceObjectStorage, fetch: c.fromObjectStorage},
		{source: model.SourceOrigin, fetch: c.fromOrigin},
	}
	return c, nil
}

// Key is the cache file name for a media id.
func Key(mediaID int) string {
	return fmt.Sprintf("media_%d", mediaID)
}

// Path is where mediaID is (or would be) cached.
func (c *Cache) Path(mediaID int) string {
	return filepath.Join(c.dir, Key(mediaID))
}

// Resolve returns the local file for mediaID. A cached file is returned without
// touching the network; concurrent callers for the same id share one download.
func (c *Cache) Resolve(ctx context.Context, mediaID int) (string, error) {
	if path, ok := c.Lookup(mediaID); ok {
		metrics.CacheHits.Inc()
		return path, nil
	}
	return c.fetch(ctx, mediaID, false)
}

// Refresh downloads mediaID again even when cached. The cached file is only replaced
// by a complete download; if every source fails it stays and no error is returned.
func (c *Cache) Refresh(ctx context.Context, mediaID int) (string, error) {
	return c.fetch(ctx, mediaID, true)
}

// Lookup reports a cached file without downloading.
func (c *Cache) Lookup(mediaID int) (string, bool) {
	c.mu.Lock()
	path, ok := c.resolved[mediaID]
	c.mu.Unlock()
	if ok && exists(path) {
		return path, true
	}

	path = c.Path(mediaID)
	if indexed, ok := c.indexed(mediaID); ok {
		path = indexed
	} else if !exists(path) {
		return "", false
	}
	c.mu.Lock()
	c.resolved[mediaID] = path
	c.mu.Unlock()
	return path, true
}

// Prefetch resolves every distinct media id, reporting failures through onError.
func (c *Cache) Prefetch(ctx context.Context, ids []int, onError func(mediaID int, err error)) {
	seen := make(map[int]bool, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		id := id
		g.Go(func() error {
			if _, err := c.Resolve(ctx, id); err != nil && onError != nil {
				onError(id, err)
			}
			// one failed id must not cancel the rest
			return nil
		})
	}
	_ = g.Wait()
}

// Progress is a snapshot of outstanding downloads, mediaId -> fraction in [0,1].
func (c *Cache) Progress() map[int]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]float64, len(c.progress))
	for id, p := range c.progress {
		out[id] = p
	}
	return out
}

// Downloading lists media ids with a download outstanding, ascending.
func (c *Cache) Downloading() []int {
	c.mu.Lock()
	ids := make([]int, 0, len(c.progress))
	for id := range c.progress {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Ints(ids)
	return ids
}

// List returns the index, or the files on disk when there is no index.
func (c *Cache) List() ([]model.CacheEntry, error) {
	if c.index != nil {
		return c.index.ListCacheEntries()
	}
	files, err := filepath.Glob(filepath.Join(c.dir, "media_*"))
	if err != nil {
		return nil, err
	}
	var out []model.CacheEntry
	for _, f := range files {
		var id int
		if _, err := fmt.Sscanf(filepath.Base(f), "media_%d", &id); err != nil || filepath.Base(f) != Key(id) {
			continue
		}
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		out = append(out, model.CacheEntry{MediaID: id, Path: f, Size: info.Size(), CreatedAt: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MediaID < out[j].MediaID })
	return out, nil
}

// Purge deletes every cached file and index row, returning how many files went.
func (c *Cache) Purge() (int, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, "media_*"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if err := os.Remove(f); err == nil {
			removed++
		}
	}
	c.mu.Lock()
	c.resolved = make(map[int]string)
	c.mu.Unlock()
	if c.index != nil {
		if _, err := c.index.DeleteAllCacheEntries(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (c *Cache) fetch(ctx context.Context, mediaID int, force bool) (string, error) {
	c.mu.Lock()
	if wait, busy := c.pending[mediaID]; busy {
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if path, ok := c.Lookup(mediaID); ok {
			return path, nil
		}
		return "", fmt.Errorf("media %d: %w", mediaID, ErrDownload)
	}
	done := make(chan struct{})
	c.pending[mediaID] = done
	c.progress[mediaID] = 0
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, mediaID)
		delete(c.progress, mediaID)
		c.mu.Unlock()
		close(done)
	}()

	if !force {
		// another caller may have finished between Lookup and taking the slot
		if path, ok := c.Lookup(mediaID); ok {
			return path, nil
		}
	}

	var errs []error
	for _, s := range c.strategies {
		path, size, err := c.download(ctx, mediaID, s)
		if err == nil {
			metrics.Downloads.WithLabelValues(string(s.source), metrics.OutcomeOK).Inc()
			c.register(mediaID, path, size, s.source)
			return path, nil
		}
		metrics.Downloads.WithLabelValues(string(s.source), metrics.OutcomeError).Inc()
		c.logger.Warn().Err(err).Int("mediaId", mediaID).Str("source", string(s.source)).Msg("media download failed")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	// a stale file keeps playing rather than turning into an error
	if path, ok := c.Lookup(mediaID); ok {
		c.logger.Warn().Int("mediaId", mediaID).Msg("keeping stale cached media after failed refresh")
		return path, nil
	}
	return "", fmt.Errorf("media %d: %w: %w", mediaID, ErrDownload, errors.Join(errs...))
}

// download runs one strategy into a temp file and renames it over the cache key.
func (c *Cache) download(ctx context.Context, mediaID int, s strategy) (string, int64, error) {
	final := c.Path(mediaID)
	tmp := final + ".part"
	defer os.Remove(tmp)

	c.setProgress(mediaID, 0)
	size, err := s.fetch(ctx, mediaID, tmp)
	if err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", 0, fmt.Errorf("failed to move %s into cache: %w", tmp, err)
	}
	return final, size, nil
}

func (c *Cache) register(mediaID int, path string, size int64, source model.CacheSource) {
	c.mu.Lock()
	c.resolved[mediaID] = path
	c.mu.Unlock()

	c.logger.Info().Int("mediaId", mediaID).Str("source", string(source)).Int64("bytes", size).Msg("media cached")
	if c.index == nil {
		return
	}
	entry := model.CacheEntry{MediaID: mediaID, Path: path, Size: size, Source: source, CreatedAt: time.Now().UTC()}
	if err := c.index.UpsertCacheEntry(entry); err != nil {
		// the file is usable without its index row
		c.logger.Error().Err(err).Int("mediaId", mediaID).Msg("failed to index cached media")
	}
}

// indexed returns the file recorded in the index for mediaID. A row whose file
// is gone is dropped so the next resolve downloads again.
func (c *Cache) indexed(mediaID int) (string, bool) {
	if c.index == nil {
		return "", false
	}
	entry, err := c.index.GetCacheEntry(mediaID)
	if err != nil || entry == nil {
		return "", false
	}
	if exists(entry.Path) {
		return entry.Path, true
	}
	c.logger.Warn().Int("mediaId", mediaID).Str("path", entry.Path).Msg("indexed media file missing, dropping row")
	if err := c.index.DeleteCacheEntry(mediaID); err != nil {
		c.logger.Error().Err(err).Int("mediaId", mediaID).Msg("failed to drop stale index row")
	}
	return "", false
}

func (c *Cache) setProgress(mediaID int, fraction float64) {
	c.mu.Lock()
	if _, ok := c.progress[mediaID]; ok {
		c.progress[mediaID] = fraction
	}
	c.mu.Unlock()
}

func exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
