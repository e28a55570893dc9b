// Package publish keeps exactly one status message alive on the webhook.
package publish

import (
	"context"
	"fmt"
	"log/slog"

	"raid-status-notifier/pkg/status"
	"raid-status-notifier/webhook"
)

// State is the reconciler's knowledge of the remote message.
type State int

const (
	// Unknown means no message id is held; the next publish creates one.
	Unknown State = iota
	// Tracking means a message id is held and publishes edit it.
	Tracking
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Webhook creates and edits messages.
type Webhook interface {
	Create(ctx context.Context, report status.Report) (uint64, error)
	Edit(ctx context.Context, id uint64, report status.Report) error
}

// StateStore persists the message id across restarts.
type StateStore interface {
	Load(ctx context.Context) (status.MessageState, bool)
	Save(ctx context.Context, state status.MessageState) error
}

// Reconciler decides between creating and editing the status message.
// It is owned by a single goroutine.
type Reconciler struct {
	webhook Webhook
	store   StateStore
	logger  *slog.Logger

	state     State
	messageID uint64

	override uint64 // Fixed message id from config, 0 when unset
	rejected uint64 // Override that turned out not to exist
}

// New creates a reconciler in the Unknown state.
func New(webhook Webhook, store StateStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		webhook: webhook,
		store:   store,
		logger:  logger,
	}
}

// Restore reads the persisted message id once at startup. It is ignored
// when a fixed id override is active.
func (r *Reconciler) Restore(ctx context.Context) {
	if r.override != 0 {
		return
	}
	saved, ok := r.store.Load(ctx)
	if !ok {
		return
	}
	r.track(saved.MessageID)
	r.logger.Info("Resuming status message", "message_id", saved.MessageID)
}

// SetOverride applies the fixed message id from the current config. Zero
// clears it. An override already rejected by a not-found is not re-applied
// until the configured value changes.
func (r *Reconciler) SetOverride(id uint64) {
	if id != r.override {
		r.rejected = 0
	}
	r.override = id

	if id == 0 || id == r.rejected {
		return
	}
	if r.state != Tracking || r.messageID != id {
		r.logger.Info("Using configured message id", "message_id", id)
		r.track(id)
	}
}

// Publish creates or edits the status message.
func (r *Reconciler) Publish(ctx context.Context, report status.Report) error {
	if r.state == Tracking {
		return r.edit(ctx, report)
	}
	return r.create(ctx, report)
}

func (r *Reconciler) create(ctx context.Context, report status.Report) error {
	id, err := r.webhook.Create(ctx, report)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	if id == 0 {
		return fmt.Errorf("create message: %w", webhook.ErrNoMessageID)
	}

	r.track(id)
	if r.override != 0 {
		r.logger.Info("Status message created, fixed id configured so not persisting", "message_id", id)
		return nil
	}

	if err := r.store.Save(ctx, status.MessageState{MessageID: id}); err != nil {
		r.logger.Warn("Failed to persist message id", "message_id", id, "error", err)
	}
	return nil
}

func (r *Reconciler) edit(ctx context.Context, report status.Report) error {
	err := r.webhook.Edit(ctx, r.messageID, report)
	if err == nil {
		return nil
	}

	if webhook.IsNotFound(err) {
		r.logger.Warn("Status message no longer exists, will create a new one", "message_id", r.messageID)
		if r.messageID == r.override {
			r.rejected = r.override
		}
		r.state = Unknown
		r.messageID = 0
		return nil
	}
	return fmt.Errorf("edit message %d: %w", r.messageID, err)
}

func (r *Reconciler) track(id uint64) {
	r.state = Tracking
	r.messageID = id
}

// State returns the current state.
func (r *Reconciler) State() State {
	return r.state
}

// MessageID returns the tracked message id.
func (r *Reconciler) MessageID() (uint64, bool) {
	return r.messageID, r.state == Tracking
}
