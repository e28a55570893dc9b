// Package status contains the core domain types for the raid status notifier.
package status

import "strings"

// Activity codes reported by the presence endpoint.
const (
	ActivityMenu    = 0
	ActivityRaid    = 1
	ActivityStash   = 2
	ActivityHideout = 3
	ActivityFlea    = 4
)

// Location codes that mean the player is not in a raid.
const (
	LocationMenu    = 0
	LocationHideout = 1
)

// OnlinePlayer is one entry of the online roster.
type OnlinePlayer struct {
	ProfileID string `json:"profileId"`
	Nickname  string `json:"nickname"`
	Location  int    `json:"location"`
}

// RaidInformation is the nested raid detail of a presence entry.
type RaidInformation struct {
	Location string `json:"location,omitempty"`
	Side     *int   `json:"side,omitempty"`
}

// PresenceEntry is one player's activity as reported by the server.
type PresenceEntry struct {
	RaidInformation *RaidInformation `json:"raidInformation,omitempty"`
	Nickname        string           `json:"nickname"`
	Level           int              `json:"level"`
	Activity        int              `json:"activity"`
	StartedAt       int64            `json:"activityStartedTimestamp"` // Unix seconds, 0 when unknown
}

// Side returns the raid side when the entry carries one.
func (p PresenceEntry) Side() (int, bool) {
	if p.RaidInformation == nil || p.RaidInformation.Side == nil {
		return 0, false
	}
	return *p.RaidInformation.Side, true
}

// InRaid reports whether the activity code denotes a raid.
func (p PresenceEntry) InRaid() bool {
	return p.Activity == ActivityRaid
}

// PresenceIndex maps lower-cased nicknames to presence entries.
type PresenceIndex map[string]PresenceEntry

// NewPresenceIndex builds an index from the presence list. Duplicate
// nicknames resolve to the last entry in the slice.
func NewPresenceIndex(entries []PresenceEntry) PresenceIndex {
	idx := make(PresenceIndex, len(entries))
	for _, e := range entries {
		if e.Nickname == "" {
			continue
		}
		idx[strings.ToLower(e.Nickname)] = e
	}
	return idx
}

// Lookup finds a presence entry by nickname, ignoring case.
func (idx PresenceIndex) Lookup(nickname string) (PresenceEntry, bool) {
	e, ok := idx[strings.ToLower(nickname)]
	return e, ok
}

// Roster is the per-cycle partition of online players.
type Roster struct {
	InRaid []OnlinePlayer
	Other  []OnlinePlayer
}

// Total returns the number of players in both sets.
func (r Roster) Total() int {
	return len(r.InRaid) + len(r.Other)
}

// WeeklyBoss is the boss announced in the server log.
type WeeklyBoss struct {
	BossID string `json:"boss_id"`
	MapID  string `json:"map_id,omitempty"` // Empty when no map is known
}

// Known reports whether a boss has been detected.
func (w WeeklyBoss) Known() bool {
	return w.BossID != ""
}

// Section is one named block of a report.
type Section struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Report is the rendered status document handed to the publisher.
type Report struct {
	Title    string    `json:"title"`
	Footer   string    `json:"footer"`
	Sections []Section `json:"sections"`
	Color    int       `json:"color"`
}

// MessageState is the persisted publisher state.
type MessageState struct {
	MessageID uint64 `json:"message_id,omitempty"`
}
