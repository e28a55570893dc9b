package render

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raid-status-notifier/config"
	"raid-status-notifier/pkg/status"
)

func testDisplay(t *testing.T) config.Display {
	t.Helper()
	cfg, err := config.Parse([]byte(`{
		"display": {
			"locations": {"7": "Customs"},
			"location_emoji": {"Customs": "🏭"},
			"activities": {"2": "In stash"},
			"sides": {"1": "USEC"},
			"bosses": {"bossKnight": "Goons"},
			"maps": {"Lighthouse": "Lighthouse"}
		}
	}`), ".json")
	require.NoError(t, err)
	return cfg.Display
}

func intPtr(v int) *int { return &v }

func TestHumanizeElapsed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name    string
		started int64
		want    string
	}{
		{name: "unknown timestamp", started: 0, want: ""},
		{name: "negative timestamp", started: -10, want: ""},
		{name: "thirty seconds ago", started: now.Unix() - 30, want: "just now"},
		{name: "two minutes ago", started: now.Unix() - 125, want: "2m"},
		{name: "fifty nine minutes ago", started: now.Unix() - 3599, want: "59m"},
		{name: "over an hour ago", started: now.Unix() - 3723, want: "1h02m"},
		{name: "future timestamp", started: now.Unix() + 60, want: ""},
		{name: "absurd future timestamp", started: 1 << 62, want: ""},
		{name: "largest timestamp", started: math.MaxInt64, want: ""},
		{name: "near largest timestamp", started: math.MaxInt64 - 1000, want: ""},
		{name: "current second", started: now.Unix(), want: "just now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HumanizeElapsed(tt.started, now))
		})
	}
}

func TestCategorizeIgnoresCase(t *testing.T) {
	players := []status.OnlinePlayer{
		{Nickname: "zed", Location: status.LocationHideout},
		{Nickname: "Alice", Location: status.LocationMenu},
		{Nickname: "bob", Location: 9},
		{Nickname: "Carol", Location: status.LocationHideout},
	}
	idx := status.NewPresenceIndex([]status.PresenceEntry{
		{Nickname: "ZED", Activity: status.ActivityRaid},
		{Nickname: "alice", Activity: status.ActivityRaid},
		{Nickname: "BOB", Activity: status.ActivityStash},
	})

	roster := Categorize(players, idx)
	assert.Equal(t, []string{"Alice", "zed"}, nicknames(roster.InRaid))
	assert.Equal(t, []string{"bob", "Carol"}, nicknames(roster.Other))
	assert.Equal(t, len(players), roster.Total())
}

func TestCategorizeWithoutPresence(t *testing.T) {
	tests := []struct {
		location int
		inRaid   bool
	}{
		{location: status.LocationMenu, inRaid: false},
		{location: status.LocationHideout, inRaid: false},
		{location: 2, inRaid: true},
		{location: 42, inRaid: true},
		{location: -1, inRaid: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("location %d", tt.location), func(t *testing.T) {
			roster := Categorize([]status.OnlinePlayer{{Nickname: "p", Location: tt.location}}, status.PresenceIndex{})
			if tt.inRaid {
				assert.Len(t, roster.InRaid, 1)
				assert.Empty(t, roster.Other)
			} else {
				assert.Empty(t, roster.InRaid)
				assert.Len(t, roster.Other, 1)
			}
		})
	}
}

func TestPresenceIndexLastWriteWins(t *testing.T) {
	idx := status.NewPresenceIndex([]status.PresenceEntry{
		{Nickname: "Dup", Activity: status.ActivityRaid},
		{Nickname: "dup", Activity: status.ActivityFlea},
	})
	e, ok := idx.Lookup("DUP")
	require.True(t, ok)
	assert.Equal(t, status.ActivityFlea, e.Activity)
	assert.Len(t, idx, 1)
}

func TestRenderEmptyWithoutBoss(t *testing.T) {
	d := testDisplay(t)
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)

	report := Render(d, nil, status.PresenceIndex{}, nil, now)

	require.Len(t, report.Sections, 1)
	assert.Equal(t, d.Text.NobodyOnline, report.Sections[0].Value)
	assert.Equal(t, d.Text.FooterPrefix+" 2025-03-04 05:06:07", report.Footer)
	assert.Equal(t, d.Title, report.Title)
}

func TestRenderEmptyWithBoss(t *testing.T) {
	d := testDisplay(t)
	boss := &status.WeeklyBoss{BossID: "bossKnight", MapID: "Lighthouse"}

	report := Render(d, []status.OnlinePlayer{}, status.PresenceIndex{}, boss, time.Now())

	require.Len(t, report.Sections, 2)
	assert.Equal(t, d.Text.BossSection, report.Sections[0].Name)
	assert.Equal(t, "**Goons** on **Lighthouse**", report.Sections[0].Value)
	assert.Equal(t, d.Text.NobodyOnline, report.Sections[1].Value)
}

func TestBossTextFallbacks(t *testing.T) {
	d := testDisplay(t)
	assert.Equal(t, "**bossKilla**", bossText(d, status.WeeklyBoss{BossID: "bossKilla"}))
	assert.Equal(t, "**bossKilla** on **Interchange**", bossText(d, status.WeeklyBoss{BossID: "bossKilla", MapID: "Interchange"}))
}

func TestRenderUnknownLocationInRaid(t *testing.T) {
	d := testDisplay(t)
	players := []status.OnlinePlayer{{Nickname: "Ann", Location: 5}}

	report := Render(d, players, status.NewPresenceIndex(nil), nil, time.Now())

	require.Len(t, report.Sections, 3)
	assert.Equal(t, d.Text.RaidSection, report.Sections[0].Name)
	assert.Equal(t, "Ann — "+d.DefaultLocationEmoji+" Unknown(5)", report.Sections[0].Value)
	assert.Equal(t, d.Text.OtherEmpty, report.Sections[1].Value)
	assert.Equal(t, "Online: 1 · In raid: 1 · Out of raid: 0", report.Sections[2].Value)
}

func TestRenderOtherWithActivity(t *testing.T) {
	d := testDisplay(t)
	now := time.Unix(1_700_000_000, 0)
	players := []status.OnlinePlayer{{Nickname: "Bob", Location: status.LocationHideout}}
	idx := status.NewPresenceIndex([]status.PresenceEntry{
		{Nickname: "Bob", Activity: status.ActivityStash, StartedAt: now.Unix() - 125},
	})

	report := Render(d, players, idx, nil, now)

	require.Len(t, report.Sections, 3)
	assert.Equal(t, d.Text.RaidEmpty, report.Sections[0].Value)
	assert.Equal(t, "Bob — 🎒 In stash · 2m", report.Sections[1].Value)
}

func TestRenderRaidLineWithSideAndElapsed(t *testing.T) {
	d := testDisplay(t)
	now := time.Unix(1_700_000_000, 0)
	players := []status.OnlinePlayer{
		{Nickname: "Cid", Location: 7},
		{Nickname: "Dee", Location: 7},
		{Nickname: "Eve", Location: 7},
	}
	idx := status.NewPresenceIndex([]status.PresenceEntry{
		{Nickname: "cid", Activity: status.ActivityRaid, StartedAt: now.Unix() - 3723, RaidInformation: &status.RaidInformation{Side: intPtr(1)}},
		{Nickname: "dee", Activity: status.ActivityRaid, RaidInformation: &status.RaidInformation{Side: intPtr(4)}},
		{Nickname: "eve", Activity: status.ActivityRaid},
	})

	report := Render(d, players, idx, nil, now)

	lines := strings.Split(report.Sections[0].Value, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Cid — 🏭 Customs — _USEC · 1h02m_", lines[0])
	assert.Equal(t, "Dee — 🏭 Customs — _Unknown_", lines[1])
	assert.Equal(t, "Eve — 🏭 Customs", lines[2])
}

func TestRenderOtherFallbacks(t *testing.T) {
	d := testDisplay(t)
	players := []status.OnlinePlayer{
		{Nickname: "hid", Location: status.LocationHideout},
		{Nickname: "men", Location: status.LocationMenu},
		{Nickname: "odd", Location: 3},
	}
	idx := status.NewPresenceIndex([]status.PresenceEntry{
		{Nickname: "odd", Activity: 9},
	})

	report := Render(d, players, idx, nil, time.Now())

	lines := strings.Split(report.Sections[1].Value, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "hid — "+d.Text.HideoutLine, lines[0])
	assert.Equal(t, "men — "+d.Text.MenuLine, lines[1])
	assert.Equal(t, "odd — "+genericActivityIcon+" Activity(9)", lines[2])
}

func TestActivityIcons(t *testing.T) {
	seen := map[string]bool{}
	for _, code := range []int{status.ActivityMenu, status.ActivityStash, status.ActivityHideout, status.ActivityFlea} {
		icon := activityIcon(code)
		assert.NotEqual(t, genericActivityIcon, icon)
		assert.False(t, seen[icon], "icons must be distinct")
		seen[icon] = true
	}
	assert.Equal(t, genericActivityIcon, activityIcon(status.ActivityRaid))
	assert.Equal(t, genericActivityIcon, activityIcon(77))
}

func TestJoinLinesRespectsLimit(t *testing.T) {
	var lines []string
	for i := range 200 {
		lines = append(lines, fmt.Sprintf("player-%03d — 🏭 Customs", i))
	}

	got := joinLines(lines, "empty")
	assert.LessOrEqual(t, len(got), maxSectionLength)
	assert.Contains(t, got, "more")
	assert.True(t, strings.HasPrefix(got, "player-000"))

	assert.Equal(t, "empty", joinLines(nil, "empty"))
	assert.Equal(t, "a\nb", joinLines([]string{"a", "b"}, "empty"))
}

func nicknames(players []status.OnlinePlayer) []string {
	out := make([]string, 0, len(players))
	for _, p := range players {
		out = append(out, p.Nickname)
	}
	return out
}
