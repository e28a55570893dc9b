// Package logtail follows the newest server log and extracts the weekly
// boss announcement from it.
package logtail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"raid-status-notifier/pkg/status"
)

const (
	announcementMarker = "WeeklyBossAnnouncement"
	placementMarker    = "PlacementSystem"
	bossOfWeekPhrase   = "is boss of the week"
)

var (
	placementRegex  = regexp.MustCompile(`(?i)boss[=:]\s*"?([A-Za-z0-9_-]+)"?.*?map[=:]\s*"?([A-Za-z0-9_-]+)"?`)
	bossOfWeekRegex = regexp.MustCompile(`([A-Za-z0-9_-]+)\s+` + bossOfWeekPhrase)
)

// BossMaps maps boss ids to the map they spawn on. Used when the log only
// names the boss.
var BossMaps = map[string]string{
	"bossBully":    "bigmap",
	"bossKojaniy":  "Woods",
	"bossGluhar":   "RezervBase",
	"bossSanitar":  "Shoreline",
	"bossKilla":    "Interchange",
	"bossTagilla":  "factory4_day",
	"bossKnight":   "Lighthouse",
	"bossZryachiy": "Lighthouse",
	"bossBoar":     "TarkovStreets",
	"bossKolontay": "TarkovStreets",
	"bossPartisan": "Woods",
}

// Tailer keeps a byte cursor into the newest matching log file.
// It is not safe for concurrent use.
type Tailer struct {
	logger  *slog.Logger
	dir     string
	pattern string
	path    string // Empty while dormant
	offset  int64

	boss          status.WeeklyBoss
	authoritative bool
}

// New creates a tailer for files matching pattern inside dir. Call Init
// before the first Poll.
func New(dir, pattern string, logger *slog.Logger) *Tailer {
	return &Tailer{
		logger:  logger,
		dir:     dir,
		pattern: pattern,
	}
}

// Init resets all state, selects the newest log file and scans it once.
func (t *Tailer) Init() {
	t.path = ""
	t.offset = 0
	t.boss = status.WeeklyBoss{}
	t.authoritative = false
	t.attach()
}

// Poll consumes lines appended since the last call. When dormant it retries
// file selection instead; a newly selected file starts from a clean state.
func (t *Tailer) Poll() {
	if t.path == "" {
		t.attach()
		return
	}
	if err := t.readNew(); err != nil {
		t.logger.Debug("Log tail lost its file, going dormant", "path", t.path, "error", err)
		t.path = ""
		t.offset = 0
	}
}

// Boss returns the last detected weekly boss.
func (t *Tailer) Boss() (status.WeeklyBoss, bool) {
	return t.boss, t.boss.Known()
}

// Path returns the file currently followed, or "" while dormant.
func (t *Tailer) Path() string {
	return t.path
}

func (t *Tailer) attach() {
	path, err := newestFile(t.dir, t.pattern)
	if err != nil {
		t.logger.Debug("No log file to follow", "dir", t.dir, "pattern", t.pattern, "error", err)
		return
	}
	// A newly selected file starts without boss state.
	t.path = path
	t.offset = 0
	t.boss = status.WeeklyBoss{}
	t.authoritative = false
	if err := t.readNew(); err != nil {
		t.logger.Debug("Initial log scan failed", "path", path, "error", err)
		t.path = ""
		t.offset = 0
		return
	}
	t.logger.Info("Following server log", "path", path, "offset", t.offset)
}

// readNew reads complete lines from the cursor to the end of the file.
// The file is opened and closed on every call so rotation is tolerated.
func (t *Tailer) readNew() error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < t.offset {
		// Truncated in place: start over from the beginning.
		t.offset = 0
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	// Leave a trailing partial line for the next poll.
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil
	}
	for _, line := range strings.Split(string(data[:end]), "\n") {
		t.matchLine(strings.TrimRight(line, "\r"))
	}
	t.offset += int64(end + 1)
	return nil
}

func (t *Tailer) matchLine(line string) {
	if strings.Contains(line, announcementMarker) && strings.Contains(line, placementMarker) {
		if m := placementRegex.FindStringSubmatch(line); m != nil {
			t.boss = status.WeeklyBoss{BossID: m[1], MapID: m[2]}
			t.authoritative = true
			t.logger.Info("Weekly boss announced", "boss", m[1], "map", m[2])
			return
		}
	}

	if t.authoritative || !strings.Contains(line, bossOfWeekPhrase) {
		return
	}
	if m := bossOfWeekRegex.FindStringSubmatch(line); m != nil {
		t.boss = status.WeeklyBoss{BossID: m[1], MapID: BossMaps[m[1]]}
		t.logger.Info("Weekly boss detected", "boss", m[1], "map", t.boss.MapID)
	}
}

func newestFile(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("glob: %w", err)
	}

	var newest string
	var newestInfo os.FileInfo
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if newestInfo == nil ||
			info.ModTime().After(newestInfo.ModTime()) ||
			(info.ModTime().Equal(newestInfo.ModTime()) && m > newest) {
			newest, newestInfo = m, info
		}
	}
	if newest == "" {
		return "", errors.New("no matching log file")
	}
	return newest, nil
}
