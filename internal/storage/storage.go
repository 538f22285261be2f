// Package storage opens remote media objects for download.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Object is an open remote file. Size is -1 when the source does not say.
type Object struct {
	Body io.ReadCloser
	Size int64
}

// Storage opens an object by location.
type Storage interface {
	Open(ctx context.Context, location string) (*Object, error)
}

// HTTPStorage downloads plain http(s) URLs, which is what presigned object-storage links are.
type HTTPStorage struct {
	client *http.Client
}

// Router dispatches s3:// locations to Spaces and everything else to HTTP.
type Router struct {
	http   Storage
	spaces Storage
}

func NewHTTPStorage(client *http.Client) *HTTPStorage {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPStorage{client: client}
}

// NewRouter builds a Router. spaces may be nil, in which case s3:// locations fail.
func NewRouter(httpStorage, spaces Storage) *Router {
	return &Router{http: httpStorage, spaces: spaces}
}

func (r *Router) Open(ctx context.Context, location string) (*Object, error) {
	if strings.HasPrefix(location, "s3://") {
		if r.spaces == nil {
			return nil, fmt.Errorf("no object storage configured for %s", location)
		}
		return r.spaces.Open(ctx, location)
	}
	return r.http.Open(ctx, location)
}

func (hs *HTTPStorage) Open(ctx context.Context, location string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return &Object{Body: resp.Body, Size: resp.ContentLength}, nil
}
