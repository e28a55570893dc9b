// Package upstream fetches the online roster and presence list from the
// game-server HTTP API.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"raid-status-notifier/config"
	"raid-status-notifier/pkg/status"
)

const maxBodyBytes = 8 << 20

// TransportError means the server could not be reached or did not answer
// in time. The poll loop treats it as fatal.
type TransportError struct {
	Err error
	URL string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsFatal checks if an error is a transport failure talking to the API.
func IsFatal(err error) bool {
	var transport *TransportError
	return errors.As(err, &transport)
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.URL)
}

// Client talks to the game-server API.
type Client struct {
	client       *http.Client
	logger       *slog.Logger
	baseURL      string
	key          string
	playersPath  string
	presencePath string
}

// New creates a new API client from the api section of the config.
func New(cfg config.API, logger *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.SkipVerify() {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed game servers
	}
	// Compression is disabled on the request, so don't let the transport negotiate it either.
	transport.DisableCompression = true

	return &Client{
		client:       &http.Client{Timeout: cfg.Timeout(), Transport: transport},
		logger:       logger,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		key:          cfg.Key,
		playersPath:  cfg.PlayersPath,
		presencePath: cfg.PresencePath,
	}
}

// Players returns the online roster.
func (c *Client) Players(ctx context.Context) ([]status.OnlinePlayer, error) {
	body, err := c.get(ctx, c.playersPath)
	if err != nil {
		return nil, err
	}
	players, err := decodeList[status.OnlinePlayer](body, "players")
	if err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	return players, nil
}

// Presence returns the presence list.
func (c *Client) Presence(ctx context.Context) ([]status.PresenceEntry, error) {
	body, err := c.get(ctx, c.presencePath)
	if err != nil {
		return nil, err
	}
	entries, err := decodeList[status.PresenceEntry](body, "presence")
	if err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	return entries, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("User-Agent", "raid-status-notifier")

	startTime := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("API request failed", "url", url, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, &TransportError{URL: url, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	c.logger.Debug("API request completed",
		"url", url,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		// A body cut off by the client timeout is a transport failure too.
		return nil, &TransportError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// decodeList accepts either a bare JSON array or an object wrapping the
// array under key.
func decodeList[T any](body []byte, key string) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []T
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	raw, ok := wrapped[key]
	if !ok {
		return nil, fmt.Errorf("missing %q array", key)
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}
