// Package main runs the raid status notifier: it polls a game server for
// online players and keeps a single webhook status message up to date.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"raid-status-notifier/config"
	"raid-status-notifier/poll"
	"raid-status-notifier/publish"
	"raid-status-notifier/server"
	gcsstore "raid-status-notifier/storage"
	"raid-status-notifier/webhook"
)

const (
	exitFatal  = 1
	exitConfig = 2
)

type options struct {
	configPath string
	statePath  string
	bucket     string
	listen     string
	logLevel   string
	dryRun     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := pflag.NewFlagSet("raid-status-notifier", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "config.json", "path to the JSON (with comments) or YAML configuration file")
	fs.StringVar(&opts.statePath, "state", "state.json", "local file holding the published message id")
	fs.StringVar(&opts.bucket, "bucket", os.Getenv("STORAGE_BUCKET"), "Cloud Storage bucket for the message id (overrides --state)")
	fs.StringVar(&opts.listen, "listen", defaultListen(), "address for the /health and /status endpoints, empty to disable")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "log reports instead of sending them to the webhook")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func defaultListen() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ""
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// reportConfigProblems prints every configuration problem, one per line.
func reportConfigProblems(w io.Writer, err error) {
	var b strings.Builder
	b.WriteString("configuration invalid:\n")
	for _, p := range config.Problems(err) {
		b.WriteString("  - ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	_, _ = io.WriteString(w, b.String())
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		return exitConfig
	}

	logger, err := newLogger(stdout, opts.logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	slog.SetDefault(logger)

	cfg, err := config.LoadValid(opts.configPath)
	if err != nil {
		reportConfigProblems(stderr, err)
		return exitConfig
	}
	logger.Info("Configuration loaded",
		"path", opts.configPath,
		"interval", cfg.Interval().String(),
		"log_monitoring", cfg.LogMonitoring.Enabled)

	store, closeStore, err := openStore(ctx, opts, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		return exitFatal
	}
	defer closeStore()

	monitorOpts := poll.Options{
		Reloader: config.NewReloader(opts.configPath, cfg, logger),
		Logger:   logger,
	}

	var hook publish.Webhook
	if opts.dryRun {
		logger.Info("Dry run enabled, reports will only be logged")
		hook = webhook.NewMockClient(logger)
	} else {
		client := webhook.New(cfg.Webhook.URL, cfg.Webhook.Username, cfg.Webhook.AvatarURL, cfg.API.Timeout(), logger)
		hook = client
		monitorOpts.Webhook = client
	}

	reconciler := publish.New(hook, store, logger)
	if id, ok := cfg.Webhook.FixedMessageID(); ok {
		reconciler.SetOverride(id)
	}
	reconciler.Restore(ctx)
	monitorOpts.Publisher = reconciler

	monitor := poll.New(monitorOpts)

	g, gctx := errgroup.WithContext(ctx)
	if opts.listen != "" {
		srv := server.New(&server.Config{Monitor: monitor, Logger: logger})
		g.Go(func() error {
			return srv.ServeHTTP(gctx, opts.listen)
		})
	}
	g.Go(func() error {
		return monitor.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Notifier stopped", "error", err)
		return exitFatal
	}
	logger.Info("Notifier stopped")
	return 0
}

// openStore returns the Cloud Storage backed store when a bucket is set,
// otherwise a local file store.
//
// In dry-run mode the state lives in a temporary directory so mock message
// ids never reach the real state.
func openStore(ctx context.Context, opts options, logger *slog.Logger) (*gcsstore.Store, func(), error) {
	if opts.dryRun {
		dir, err := os.MkdirTemp("", "raid-status-dry-run-*")
		if err != nil {
			return nil, nil, fmt.Errorf("create dry-run state dir: %w", err)
		}
		path := filepath.Join(dir, "state.json")
		logger.Info("Dry run keeps message state in a temporary file", "path", path)
		cleanup := func() {
			if err := os.RemoveAll(dir); err != nil {
				logger.Warn("Failed to remove dry-run state", "path", dir, "error", err)
			}
		}
		return gcsstore.New(nil, "", "", path, logger), cleanup, nil
	}

	if opts.bucket == "" {
		logger.Info("Using local message state", "path", opts.statePath)
		return gcsstore.New(nil, "", "", opts.statePath, logger), func() {}, nil
	}

	var clientOpts []option.ClientOption
	if credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON"); credsJSON != "" {
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(credsJSON)))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}

	logger.Info("Using Cloud Storage message state", "bucket", opts.bucket, "object", gcsstore.DefaultObject)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close storage client", "error", err)
		}
	}
	return gcsstore.New(client, opts.bucket, gcsstore.DefaultObject, "", logger), closeFn, nil
}
