// Package storage handles persistence of the published message state.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"

	"raid-status-notifier/pkg/status"
)

// DefaultObject is the object name used in Cloud Storage.
const DefaultObject = "state.json"

// Store keeps the message state in a local file or a Cloud Storage object.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	object    string
}

// New creates a new storage handler. When localPath is set the local
// filesystem is used and client may be nil.
func New(client *storage.Client, bucket, object, localPath string, logger *slog.Logger) *Store {
	if object == "" {
		object = DefaultObject
	}
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
		object:    object,
	}
}

// Load reads the persisted state. Missing, unreadable or corrupt state is
// reported as not found.
func (s *Store) Load(ctx context.Context) (status.MessageState, bool) {
	data, err := s.read(ctx)
	if err != nil {
		if IsNotFound(err) {
			s.logger.Info("No persisted message state")
		} else {
			s.logger.Warn("Failed to read message state", "error", err)
		}
		return status.MessageState{}, false
	}

	var state status.MessageState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("Persisted message state is corrupt, ignoring it", "error", err)
		return status.MessageState{}, false
	}
	if state.MessageID == 0 {
		return status.MessageState{}, false
	}

	s.logger.Info("Message state loaded", "message_id", state.MessageID)
	return state, true
}

// Save overwrites the persisted state.
func (s *Store) Save(ctx context.Context, state status.MessageState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		if err := writeFile(s.localPath, data); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		s.logger.Info("Message state saved to local storage", "path", s.localPath, "message_id", state.MessageID)
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "object", s.object, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Info("Message state saved", "bucket", s.bucket, "object", s.object, "message_id", state.MessageID)
	return nil
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(s.localPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errNotFound
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
			if openErr != nil {
				// Don't retry on "not found" errors
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(errNotFound)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "object", s.object, "error", retryErr)
		}),
	)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

// writeFile replaces path through a temporary file in the same directory.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var errNotFound = errors.New("storage: object doesn't exist")

// IsNotFound checks if an error indicates the state was never written.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
