// Package webhook publishes status reports as webhook messages.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"raid-status-notifier/pkg/status"
)

// ErrNoMessageID means a create request succeeded but the response did not
// carry a usable message id.
var ErrNoMessageID = errors.New("response carried no message id")

// NotFoundError indicates the message being edited no longer exists.
type NotFoundError struct {
	MessageID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message %d not found", e.MessageID)
}

// IsNotFound checks if an error is a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// StatusError is any other non-2xx answer.
type StatusError struct {
	Body string
	Code int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Footer *embedFooter `json:"footer,omitempty"`
	Title  string       `json:"title"`
	Fields []embedField `json:"fields"`
	Color  int          `json:"color"`
}

type payload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds"`
}

// Client sends create and edit requests to a webhook URL.
type Client struct {
	client    *http.Client
	logger    *slog.Logger
	url       string
	username  string
	avatarURL string
}

// New creates a new webhook client.
func New(webhookURL, username, avatarURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		url:       webhookURL,
		username:  username,
		avatarURL: avatarURL,
	}
}

// Create posts a new message and returns its id.
func (c *Client) Create(ctx context.Context, report status.Report) (uint64, error) {
	target, err := c.endpoint("", true)
	if err != nil {
		return 0, err
	}
	body, err := c.do(ctx, http.MethodPost, target, report)
	if err != nil {
		return 0, err
	}

	id, err := parseMessageID(body)
	if err != nil {
		return 0, err
	}
	c.logger.Info("Status message created", "message_id", id)
	return id, nil
}

// Edit replaces the content of an existing message.
func (c *Client) Edit(ctx context.Context, id uint64, report status.Report) error {
	target, err := c.endpoint("/messages/"+strconv.FormatUint(id, 10), false)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, target, report)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return &NotFoundError{MessageID: id}
	}
	return err
}

// Update points the client at a new webhook identity. Called when the
// configuration is reloaded.
func (c *Client) Update(webhookURL, username, avatarURL string) {
	c.url = webhookURL
	c.username = username
	c.avatarURL = avatarURL
}

// endpoint appends suffix to the webhook path, keeping any query the
// configured URL already carries (such as thread_id).
func (c *Client) endpoint(suffix string, wait bool) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse webhook url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + suffix
	u.RawPath = ""
	if wait {
		q := u.Query()
		q.Set("wait", "true")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, target string, report status.Report) ([]byte, error) {
	jsonData, err := json.Marshal(c.payload(report))
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("Webhook request failed", "method", method, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("webhook %s: %w", method, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("Webhook request completed",
		"method", method,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *Client) payload(report status.Report) payload {
	fields := make([]embedField, 0, len(report.Sections))
	for _, s := range report.Sections {
		fields = append(fields, embedField{Name: s.Name, Value: s.Value, Inline: s.Inline})
	}

	e := embed{
		Title:  report.Title,
		Color:  report.Color,
		Fields: fields,
	}
	if report.Footer != "" {
		e.Footer = &embedFooter{Text: report.Footer}
	}

	return payload{
		Username:  c.username,
		AvatarURL: c.avatarURL,
		Embeds:    []embed{e},
	}
}

// parseMessageID reads the "id" field, which may be a string or a number.
func parseMessageID(body []byte) (uint64, error) {
	var resp struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	raw := strings.Trim(string(resp.ID), `"`)
	if raw == "" || raw == "null" {
		return 0, ErrNoMessageID
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrNoMessageID
	}
	return id, nil
}
