// Package config loads and validates the notifier configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	defaultInterval     = 30
	defaultTimeout      = 10
	defaultLogPattern   = "server*.log"
	defaultPlayersPath  = "/fika/api/players"
	defaultPresencePath = "/fika/presence/get"
	defaultTitle        = "Server status"
	defaultColor        = 0x5865F2
	defaultLocationIcon = "🗺️"
	minInterval         = time.Second
)

// Config is the full notifier configuration. It is reloaded every cycle.
type Config struct {
	Webhook         Webhook       `json:"webhook" yaml:"webhook"`
	API             API           `json:"api" yaml:"api"`
	LogMonitoring   LogMonitoring `json:"log_monitoring" yaml:"log_monitoring"`
	Display         Display       `json:"display" yaml:"display"`
	IntervalSeconds int           `json:"interval_seconds" yaml:"interval_seconds"`
}

// LogMonitoring controls the weekly boss log tailer.
type LogMonitoring struct {
	Directory string `json:"directory" yaml:"directory"`
	Pattern   string `json:"pattern" yaml:"pattern"` // Glob matched inside Directory
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// Webhook describes where the status message is published.
type Webhook struct {
	URL       string `json:"url" yaml:"url"`
	Username  string `json:"username" yaml:"username"`
	AvatarURL string `json:"avatar_url" yaml:"avatar_url"`
	MessageID int64  `json:"message_id" yaml:"message_id"` // Fixed message to edit; 0 disables the override
}

// API describes the game-server HTTP API.
type API struct {
	VerifySSL      *bool  `json:"verify_ssl" yaml:"verify_ssl"`
	BaseURL        string `json:"base_url" yaml:"base_url"`
	Key            string `json:"key" yaml:"key"`
	PlayersPath    string `json:"players_path" yaml:"players_path"`
	PresencePath   string `json:"presence_path" yaml:"presence_path"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Display holds the label tables and texts used to render the report.
type Display struct {
	Color                *int              `json:"color" yaml:"color"`
	Locations            map[string]string `json:"locations" yaml:"locations"`           // location id -> name
	LocationEmoji        map[string]string `json:"location_emoji" yaml:"location_emoji"` // location name -> emoji
	Activities           map[string]string `json:"activities" yaml:"activities"`         // activity code -> label
	Sides                map[string]string `json:"sides" yaml:"sides"`                   // side code -> label
	Bosses               map[string]string `json:"bosses" yaml:"bosses"`                 // boss id -> label
	Maps                 map[string]string `json:"maps" yaml:"maps"`                     // map id -> label
	Title                string            `json:"title" yaml:"title"`
	DefaultLocationEmoji string            `json:"default_location_emoji" yaml:"default_location_emoji"`
	Text                 Text              `json:"text" yaml:"text"`
}

// Text holds the literal section names and fixed lines of the report.
type Text struct {
	BossSection    string `json:"boss_section" yaml:"boss_section"`
	RaidSection    string `json:"raid_section" yaml:"raid_section"`
	OtherSection   string `json:"other_section" yaml:"other_section"`
	SummarySection string `json:"summary_section" yaml:"summary_section"`
	EmptySection   string `json:"empty_section" yaml:"empty_section"`
	NobodyOnline   string `json:"nobody_online" yaml:"nobody_online"`
	RaidEmpty      string `json:"raid_empty" yaml:"raid_empty"`
	OtherEmpty     string `json:"other_empty" yaml:"other_empty"`
	Summary        string `json:"summary" yaml:"summary"` // Supports {total}, {raid} and {other}
	FooterPrefix   string `json:"footer_prefix" yaml:"footer_prefix"`
	HideoutLine    string `json:"hideout_line" yaml:"hideout_line"`
	MenuLine       string `json:"menu_line" yaml:"menu_line"`
}

// Load reads the configuration at path. YAML is used for .yaml and .yml
// files; everything else is parsed as JSON with comments.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes configuration bytes. ext selects the format.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STATUS_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("STATUS_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
}

func (c *Config) applyDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = defaultInterval
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = defaultTimeout
	}
	if c.API.VerifySSL == nil {
		verify := true
		c.API.VerifySSL = &verify
	}
	if c.API.PlayersPath == "" {
		c.API.PlayersPath = defaultPlayersPath
	}
	if c.API.PresencePath == "" {
		c.API.PresencePath = defaultPresencePath
	}
	if c.LogMonitoring.Pattern == "" {
		c.LogMonitoring.Pattern = defaultLogPattern
	}

	d := &c.Display
	if d.Title == "" {
		d.Title = defaultTitle
	}
	if d.Color == nil {
		color := defaultColor
		d.Color = &color
	}
	if d.Locations == nil {
		d.Locations = map[string]string{}
	}
	if _, ok := d.Locations["0"]; !ok {
		d.Locations["0"] = "Menu"
	}
	if _, ok := d.Locations["1"]; !ok {
		d.Locations["1"] = "Hideout"
	}
	if d.DefaultLocationEmoji == "" {
		d.DefaultLocationEmoji = defaultLocationIcon
	}

	t := &d.Text
	setDefault(&t.BossSection, "Weekly boss")
	setDefault(&t.RaidSection, "In raid")
	setDefault(&t.OtherSection, "Out of raid")
	setDefault(&t.SummarySection, "Summary")
	setDefault(&t.EmptySection, "Players")
	setDefault(&t.NobodyOnline, "Nobody is online right now.")
	setDefault(&t.RaidEmpty, "Nobody is in a raid.")
	setDefault(&t.OtherEmpty, "Nobody is out of raid.")
	setDefault(&t.Summary, "Online: {total} · In raid: {raid} · Out of raid: {other}")
	setDefault(&t.FooterPrefix, "Last updated")
	setDefault(&t.HideoutLine, "🛖 In hideout")
	setDefault(&t.MenuLine, "🏠 In menu")
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if err := validateURL("webhook.url", c.Webhook.URL); err != nil {
		errs = append(errs, err)
	}
	if c.Webhook.MessageID < 0 {
		errs = append(errs, fmt.Errorf("webhook.message_id must not be negative, got %d", c.Webhook.MessageID))
	}

	if err := validateURL("api.base_url", c.API.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.API.Key) == "" {
		errs = append(errs, errors.New("api.key is required"))
	}
	if c.API.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("api.timeout_seconds must not be negative, got %d", c.API.TimeoutSeconds))
	}

	if c.LogMonitoring.Enabled && strings.TrimSpace(c.LogMonitoring.Directory) == "" {
		errs = append(errs, errors.New("log_monitoring.directory is required when log monitoring is enabled"))
	}

	if c.Display.Color != nil && (*c.Display.Color < 0 || *c.Display.Color > 0xFFFFFF) {
		errs = append(errs, fmt.Errorf("display.color must be between 0 and 16777215, got %d", *c.Display.Color))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return nil
}

// Interval returns the pause between cycles, never less than one second.
func (c *Config) Interval() time.Duration {
	d := time.Duration(c.IntervalSeconds) * time.Second
	if d < minInterval {
		return minInterval
	}
	return d
}

// Timeout returns the per-request timeout for API and webhook calls.
func (a API) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return defaultTimeout * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// SkipVerify reports whether TLS certificate checks are disabled.
func (a API) SkipVerify() bool {
	return a.VerifySSL != nil && !*a.VerifySSL
}

// FixedMessageID returns the configured message override, if any.
func (w Webhook) FixedMessageID() (uint64, bool) {
	if w.MessageID <= 0 {
		return 0, false
	}
	return uint64(w.MessageID), true
}

// Problems splits a Validate error into its individual messages.
func Problems(err error) []string {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
