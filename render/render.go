// Package render turns the current roster into the status report.
package render

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"raid-status-notifier/config"
	"raid-status-notifier/pkg/status"
)

const (
	maxSectionLength = 1024 // Webhook embed field limit
	footerLayout     = "2006-01-02 15:04:05"
)

// Categorize splits players into in-raid and other, each sorted by
// nickname ignoring case.
func Categorize(players []status.OnlinePlayer, idx status.PresenceIndex) status.Roster {
	var roster status.Roster
	for _, p := range players {
		if inRaid(p, idx) {
			roster.InRaid = append(roster.InRaid, p)
		} else {
			roster.Other = append(roster.Other, p)
		}
	}
	sortByNickname(roster.InRaid)
	sortByNickname(roster.Other)
	return roster
}

func inRaid(p status.OnlinePlayer, idx status.PresenceIndex) bool {
	if e, ok := idx.Lookup(p.Nickname); ok {
		return e.InRaid()
	}
	return p.Location != status.LocationMenu && p.Location != status.LocationHideout
}

func sortByNickname(players []status.OnlinePlayer) {
	slices.SortStableFunc(players, func(a, b status.OnlinePlayer) int {
		return strings.Compare(strings.ToLower(a.Nickname), strings.ToLower(b.Nickname))
	})
}

// Render builds the report document. boss may be nil when no weekly boss
// is known.
func Render(d config.Display, players []status.OnlinePlayer, idx status.PresenceIndex, boss *status.WeeklyBoss, now time.Time) status.Report {
	report := status.Report{
		Title:  d.Title,
		Footer: d.Text.FooterPrefix + " " + now.Local().Format(footerLayout),
	}
	if d.Color != nil {
		report.Color = *d.Color
	}

	if boss != nil && boss.Known() {
		report.Sections = append(report.Sections, status.Section{
			Name:  d.Text.BossSection,
			Value: bossText(d, *boss),
		})
	}

	if len(players) == 0 {
		report.Sections = append(report.Sections, status.Section{
			Name:  d.Text.EmptySection,
			Value: d.Text.NobodyOnline,
		})
		return report
	}

	roster := Categorize(players, idx)

	raidLines := make([]string, 0, len(roster.InRaid))
	for _, p := range roster.InRaid {
		raidLines = append(raidLines, raidLine(d, p, idx, now))
	}
	otherLines := make([]string, 0, len(roster.Other))
	for _, p := range roster.Other {
		otherLines = append(otherLines, otherLine(d, p, idx, now))
	}

	report.Sections = append(report.Sections,
		status.Section{Name: d.Text.RaidSection, Value: joinLines(raidLines, d.Text.RaidEmpty)},
		status.Section{Name: d.Text.OtherSection, Value: joinLines(otherLines, d.Text.OtherEmpty)},
		status.Section{Name: d.Text.SummarySection, Value: summary(d.Text.Summary, roster)},
	)
	return report
}

func bossText(d config.Display, boss status.WeeklyBoss) string {
	text := "**" + lookup(d.Bosses, boss.BossID) + "**"
	if boss.MapID != "" {
		text += " on **" + lookup(d.Maps, boss.MapID) + "**"
	}
	return text
}

func raidLine(d config.Display, p status.OnlinePlayer, idx status.PresenceIndex, now time.Time) string {
	name := locationName(d, p.Location)
	line := fmt.Sprintf("%s — %s %s", p.Nickname, locationIcon(d, name), name)

	e, ok := idx.Lookup(p.Nickname)
	if !ok {
		return line
	}

	var parts []string
	if side, hasSide := e.Side(); hasSide && e.InRaid() {
		parts = append(parts, sideLabel(d, side))
	}
	if elapsed := HumanizeElapsed(e.StartedAt, now); elapsed != "" {
		parts = append(parts, elapsed)
	}
	if len(parts) == 0 {
		return line
	}
	return line + " — _" + strings.Join(parts, " · ") + "_"
}

func otherLine(d config.Display, p status.OnlinePlayer, idx status.PresenceIndex, now time.Time) string {
	e, ok := idx.Lookup(p.Nickname)
	if !ok {
		if locationName(d, p.Location) == hideoutName {
			return p.Nickname + " — " + d.Text.HideoutLine
		}
		return p.Nickname + " — " + d.Text.MenuLine
	}

	line := fmt.Sprintf("%s — %s %s", p.Nickname, activityIcon(e.Activity), activityLabel(d, e.Activity))
	if elapsed := HumanizeElapsed(e.StartedAt, now); elapsed != "" {
		line += " · " + elapsed
	}
	return line
}

func summary(template string, roster status.Roster) string {
	return strings.NewReplacer(
		"{total}", strconv.Itoa(roster.Total()),
		"{raid}", strconv.Itoa(len(roster.InRaid)),
		"{other}", strconv.Itoa(len(roster.Other)),
	).Replace(template)
}

// joinLines joins lines, or returns empty when there are none. Output that
// would exceed the embed field limit is cut and the rest counted.
func joinLines(lines []string, empty string) string {
	if len(lines) == 0 {
		return empty
	}

	var b strings.Builder
	for i, line := range lines {
		reserve := 0
		if i < len(lines)-1 {
			reserve = 1 + len(moreText(len(lines)-i-1))
		}
		if b.Len()+1+len(line)+reserve > maxSectionLength {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(moreText(len(lines) - i))
			return b.String()
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

func moreText(n int) string {
	return fmt.Sprintf("…and %d more", n)
}

// HumanizeElapsed formats the time since the unix timestamp started. It
// returns "" for unknown or future timestamps.
func HumanizeElapsed(started int64, now time.Time) string {
	// Compared as integers: time.Unix overflows for values near the int64 limit.
	if started <= 0 || started > now.Unix() {
		return ""
	}
	elapsed := now.Sub(time.Unix(started, 0))
	switch {
	case elapsed < 0:
		return ""
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm", int64(elapsed/time.Minute))
	default:
		hours := int64(elapsed / time.Hour)
		minutes := int64((elapsed % time.Hour) / time.Minute)
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	}
}
