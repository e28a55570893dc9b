// Package poll drives the status cycle: reload config, tail the log, fetch
// the roster, render and publish.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"raid-status-notifier/config"
	"raid-status-notifier/logtail"
	"raid-status-notifier/pkg/status"
	"raid-status-notifier/render"
	"raid-status-notifier/upstream"
)

// Fetcher reads the roster and presence list from the game server.
type Fetcher interface {
	Players(ctx context.Context) ([]status.OnlinePlayer, error)
	Presence(ctx context.Context) ([]status.PresenceEntry, error)
}

// Publisher keeps the status message up to date.
type Publisher interface {
	SetOverride(id uint64)
	Publish(ctx context.Context, report status.Report) error
	MessageID() (uint64, bool)
}

// WebhookTarget is re-pointed when the webhook section of the config changes.
type WebhookTarget interface {
	Update(url, username, avatarURL string)
}

// Options configures a Monitor.
type Options struct {
	Reloader   *config.Reloader
	Publisher  Publisher
	Webhook    WebhookTarget                                     // Optional
	NewFetcher func(cfg config.API, logger *slog.Logger) Fetcher // Defaults to the HTTP API client
	Logger     *slog.Logger
	Now        func() time.Time
}

// Snapshot describes the outcome of the most recent cycle.
type Snapshot struct {
	LastCycle time.Time          `json:"last_cycle"`
	Boss      *status.WeeklyBoss `json:"weekly_boss,omitempty"`
	LastError string             `json:"last_error,omitempty"`
	LogFile   string             `json:"log_file,omitempty"`
	Cycles    int                `json:"cycles"`
	Online    int                `json:"online"`
	InRaid    int                `json:"in_raid"`
	Other     int                `json:"other"`
	MessageID uint64             `json:"message_id,omitempty"`
}

// Monitor runs status cycles. Cycle and Run must be called from a single
// goroutine; Snapshot may be called from anywhere.
type Monitor struct {
	reloader   *config.Reloader
	publisher  Publisher
	webhook    WebhookTarget
	newFetcher func(config.API, *slog.Logger) Fetcher
	logger     *slog.Logger
	now        func() time.Time

	fetcher   Fetcher
	api       config.API
	tailer    *logtail.Tailer
	logCfg    config.LogMonitoring
	hook      config.Webhook
	evaluated bool

	mu       sync.Mutex
	snapshot Snapshot
}

// New creates a new poll monitor.
func New(opts Options) *Monitor {
	m := &Monitor{
		reloader:   opts.Reloader,
		publisher:  opts.Publisher,
		webhook:    opts.Webhook,
		newFetcher: opts.NewFetcher,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if m.newFetcher == nil {
		m.newFetcher = func(cfg config.API, logger *slog.Logger) Fetcher {
			return upstream.New(cfg, logger)
		}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Run executes cycles until ctx is cancelled or the upstream API becomes
// unreachable. Only the latter is returned as an error.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Status loop started")
	for {
		err := m.Cycle(ctx)
		if ctx.Err() != nil {
			m.logger.Info("Status loop stopped", "reason", ctx.Err())
			return nil
		}
		if err != nil {
			if upstream.IsFatal(err) {
				m.logger.Error("Game server API unreachable, stopping status loop", "error", err)
				return err
			}
			m.logger.Warn("Status cycle failed", "error", err)
		}

		timer := time.NewTimer(m.reloader.Current().Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("Status loop stopped", "reason", ctx.Err())
			return nil
		case <-timer.C:
		}
	}
}

// Cycle performs one full iteration.
func (m *Monitor) Cycle(ctx context.Context) error {
	startTime := m.now()
	cfg := m.reloader.Reload()

	m.applyLogMonitoring(cfg.LogMonitoring)
	if m.tailer != nil {
		m.tailer.Poll()
	}
	m.applyWebhook(cfg.Webhook)
	m.applyAPI(cfg.API)

	players, presence, err := m.fetch(ctx, cfg.API.Timeout())
	if err != nil {
		m.record(startTime, status.Roster{}, err)
		return err
	}

	idx := status.NewPresenceIndex(presence)
	var boss *status.WeeklyBoss
	if m.tailer != nil {
		if b, ok := m.tailer.Boss(); ok {
			boss = &b
		}
	}
	report := render.Render(cfg.Display, players, idx, boss, m.now())

	override, _ := cfg.Webhook.FixedMessageID()
	m.publisher.SetOverride(override)
	if err := m.publisher.Publish(ctx, report); err != nil {
		err = fmt.Errorf("publish report: %w", err)
		m.record(startTime, render.Categorize(players, idx), err)
		return err
	}

	roster := render.Categorize(players, idx)
	m.record(startTime, roster, nil)
	m.logger.Info("Status cycle completed",
		"online", roster.Total(),
		"in_raid", len(roster.InRaid),
		"other", len(roster.Other),
		"duration_ms", m.now().Sub(startTime).Milliseconds())
	return nil
}

// fetch reads players and presence concurrently under one deadline.
func (m *Monitor) fetch(ctx context.Context, timeout time.Duration) ([]status.OnlinePlayer, []status.PresenceEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var players []status.OnlinePlayer
	var presence []status.PresenceEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		players, err = m.fetcher.Players(gctx)
		if err != nil {
			return fmt.Errorf("fetch players: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		presence, err = m.fetcher.Presence(gctx)
		if err != nil {
			return fmt.Errorf("fetch presence: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return players, presence, nil
}

// applyLogMonitoring starts, restarts or stops the log tailer when the
// log_monitoring section changed since the previous cycle.
func (m *Monitor) applyLogMonitoring(lm config.LogMonitoring) {
	if m.evaluated && lm == m.logCfg {
		return
	}
	m.evaluated = true
	m.logCfg = lm

	if !lm.Enabled {
		if m.tailer != nil {
			m.logger.Info("Log monitoring disabled")
		}
		m.tailer = nil
		return
	}

	m.logger.Info("Log monitoring enabled", "directory", lm.Directory, "pattern", lm.Pattern)
	m.tailer = logtail.New(lm.Directory, lm.Pattern, m.logger)
	m.tailer.Init()
}

func (m *Monitor) applyWebhook(w config.Webhook) {
	if m.webhook == nil {
		return
	}
	if w.URL == m.hook.URL && w.Username == m.hook.Username && w.AvatarURL == m.hook.AvatarURL {
		return
	}
	m.hook = w
	m.webhook.Update(w.URL, w.Username, w.AvatarURL)
}

func (m *Monitor) applyAPI(api config.API) {
	if m.fetcher != nil && sameAPI(api, m.api) {
		return
	}
	if m.fetcher != nil {
		m.logger.Info("API settings changed, recreating client", "base_url", api.BaseURL)
	}
	m.api = api
	m.fetcher = m.newFetcher(api, m.logger)
}

func sameAPI(a, b config.API) bool {
	return a.BaseURL == b.BaseURL &&
		a.Key == b.Key &&
		a.PlayersPath == b.PlayersPath &&
		a.PresencePath == b.PresencePath &&
		a.Timeout() == b.Timeout() &&
		a.SkipVerify() == b.SkipVerify()
}

func (m *Monitor) record(at time.Time, roster status.Roster, err error) {
	snap := Snapshot{
		LastCycle: at,
		Online:    roster.Total(),
		InRaid:    len(roster.InRaid),
		Other:     len(roster.Other),
	}
	if err != nil {
		snap.LastError = err.Error()
	}
	if id, ok := m.publisher.MessageID(); ok {
		snap.MessageID = id
	}
	if m.tailer != nil {
		snap.LogFile = m.tailer.Path()
		if b, ok := m.tailer.Boss(); ok {
			snap.Boss = &b
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	snap.Cycles = m.snapshot.Cycles + 1
	m.snapshot = snap
}

// Snapshot returns the outcome of the most recent cycle.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}
