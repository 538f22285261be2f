// Package backend is the REST client for the signage service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

const maxErrorBody = 512

type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient builds a client for baseURL. A nil httpClient gets one without a timeout;
// passes are not time-bounded and a hung fetch only blocks its own pass.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With().Str("component", "backend").Logger(),
	}
}

// BaseURL is the REST root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// GET /screen/get-by-identifier/{id}
func (c *Client) GetScreenByIdentifier(ctx context.Context, identifier string) (model.Screen, error) {
	var s model.Screen
	err := c.do(ctx, http.MethodGet, "/screen/get-by-identifier/"+identifier, nil, &s)
	return s, err
}

// GET /screen/get-screen-content-by-screen/{screenId}
func (c *Client) GetScreenContent(ctx context.Context, screenID int) ([]model.ContentEntry, error) {
	var out []model.ContentEntry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/screen/get-screen-content-by-screen/%d", screenID), nil, &out)
	return out, err
}

// POST /screen/add-screen
func (c *Client) RegisterScreen(ctx context.Context, req model.RegisterScreenRequest) error {
	return c.do(ctx, http.MethodPost, "/screen/add-screen", req, nil)
}

// PATCH /screen/update-by-identifier
func (c *Client) UpdateScreen(ctx context.Context, update model.ScreenUpdate) error {
	return c.do(ctx, http.MethodPatch, "/screen/update-by-identifier", update, nil)
}

// GET /playlist/{id}
func (c *Client) GetPlaylist(ctx context.Context, id int) (model.Playlist, error) {
	var p model.Playlist
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/playlist/%d", id), nil, &p)
	return p, err
}

// GET /playlist/playlist-schedules/is-playlist-in-schedule/{playlistId}
func (c *Client) IsPlaylistInSchedule(ctx context.Context, playlistID int) (bool, error) {
	var in bool
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/playlist/playlist-schedules/is-playlist-in-schedule/%d", playlistID), nil, &in)
	return in, err
}

// GET /playlist-media/by-playlist/{playlistId}
func (c *Client) GetPlaylistMedia(ctx context.Context, playlistID int) ([]model.PlaylistMediaItem, error) {
	var out []model.PlaylistMediaItem
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/playlist-media/by-playlist/%d", playlistID), nil, &out)
	return out, err
}

// GET /media/{id}
func (c *Client) GetMedia(ctx context.Context, id int) (model.MediaAsset, error) {
	var m model.MediaAsset
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/media/%d", id), nil, &m)
	return m, err
}

// GET /storage/media/{id}/get-s3-media
func (c *Client) GetS3MediaPath(ctx context.Context, id int) (string, error) {
	var out model.S3Media
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/storage/media/%d/get-s3-media", id), nil, &out); err != nil {
		return "", err
	}
	return out.S3Path, nil
}

// GET /storage/media/{id}/get-local-media, buffered in full.
func (c *Client) GetLocalMedia(ctx context.Context, id int) ([]byte, error) {
	path := fmt.Sprintf("/storage/media/%d/get-local-media", id)
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// POST /screen-analytics
func (c *Client) PostAnalytics(ctx context.Context, a model.ScreenAnalytics) error {
	return c.do(ctx, http.MethodPost, "/screen-analytics", a, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send returns the response only for 2xx; the caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}
