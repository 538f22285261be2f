package mediacache

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

// strategy writes one media payload into dest and reports its size.
type strategy struct {
	source model.CacheSource
	fetch  func(ctx context.Context, mediaID int, dest string) (int64, error)
}

// fromObjectStorage streams the object-storage copy, reporting progress as it goes.
func (c *Cache) fromObjectStorage(ctx context.Context, mediaID int, dest string) (int64, error) {
	location, err := c.backend.GetS3MediaPath(ctx, mediaID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPrimaryUnavailable, err)
	}
	if location == "" {
		return 0, ErrPrimaryUnavailable
	}

	obj, err := c.remote.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer obj.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer out.Close()

	pr := &progressReader{r: obj.Body, total: obj.Size, report: func(f float64) { c.setProgress(mediaID, f) }}
	n, err := io.Copy(out, pr)
	if err != nil {
		return 0, fmt.Errorf("failed to save media: %w", err)
	}
	if obj.Size > 0 && n != obj.Size {
		return 0, fmt.Errorf("short download: got %d of %d bytes", n, obj.Size)
	}
	if err := out.Sync(); err != nil {
		return 0, err
	}
	c.setProgress(mediaID, 1)
	return n, nil
}

// fromOrigin buffers the server-proxied payload in full, then writes it.
func (c *Cache) fromOrigin(ctx context.Context, mediaID int, dest string) (int64, error) {
	data, err := c.backend.GetLocalMedia(ctx, mediaID)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("empty payload for media %d", mediaID)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to save media: %w", err)
	}
	c.setProgress(mediaID, 1)
	return int64(len(data)), nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		f := float64(p.read) / float64(p.total)
		if f > 1 {
			f = 1
		}
		p.report(f)
	}
	return n, err
}
