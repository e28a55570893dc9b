package render

import (
	"fmt"
	"strconv"

	"raid-status-notifier/config"
	"raid-status-notifier/pkg/status"
)

const hideoutName = "Hideout"

// activityIcons holds the codes with a dedicated icon. Everything else
// gets genericActivityIcon.
var activityIcons = map[int]string{
	status.ActivityMenu:    "🏠",
	status.ActivityStash:   "🎒",
	status.ActivityHideout: "🛖",
	status.ActivityFlea:    "🛒",
}

const genericActivityIcon = "🎮"

func locationName(d config.Display, id int) string {
	if name, ok := d.Locations[strconv.Itoa(id)]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", id)
}

func locationIcon(d config.Display, name string) string {
	if icon, ok := d.LocationEmoji[name]; ok && icon != "" {
		return icon
	}
	return d.DefaultLocationEmoji
}

func activityLabel(d config.Display, code int) string {
	if label, ok := d.Activities[strconv.Itoa(code)]; ok && label != "" {
		return label
	}
	return fmt.Sprintf("Activity(%d)", code)
}

func activityIcon(code int) string {
	if icon, ok := activityIcons[code]; ok {
		return icon
	}
	return genericActivityIcon
}

func sideLabel(d config.Display, side int) string {
	if label, ok := d.Sides[strconv.Itoa(side)]; ok && label != "" {
		return label
	}
	return "Unknown"
}

// lookup returns table[key], or key itself when the table has no entry.
func lookup(table map[string]string, key string) string {
	if v, ok := table[key]; ok && v != "" {
		return v
	}
	return key
}
