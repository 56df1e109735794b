package util

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// DefaultTimezone is used when the configured zone cannot be loaded.
const DefaultTimezone = "Asia/Shanghai"

var (
	isoFolderRe    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	legacyFolderRe = regexp.MustCompile(`^(\d{4})年(\d{2})月(\d{2})日$`)
)

// LoadLocation resolves a timezone name, falling back to DefaultTimezone on
// unknown zones.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("unknown timezone, using default", "timezone", name, "default", DefaultTimezone)
		loc, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			return time.FixedZone("CST", 8*3600)
		}
	}
	return loc
}

// NowIn returns the current time in the named timezone.
func NowIn(timezone string) time.Time {
	return time.Now().In(LoadLocation(timezone))
}

// DateFolder returns the folder name for a date. An empty date means today
// in the given timezone. Folders are always written in ISO form.
func DateFolder(date, timezone string) string {
	if date != "" {
		return date
	}
	return NowIn(timezone).Format("2006-01-02")
}

// TimeFilename returns the HH-MM file name for the current time. Windows
// forbids colons in file names, hence the hyphen.
func TimeFilename(timezone string) string {
	return NowIn(timezone).Format("15-04")
}

// Timestamp returns the canonical stored timestamp form.
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// DisplayTime converts a stored HH-MM value to HH:MM for display. Anything
// not in HH-MM form passes through unchanged.
func DisplayTime(s string) string {
	if len(s) == 5 && s[2] == '-' {
		return s[:2] + ":" + s[3:]
	}
	return s
}

// ParseDateFolder parses a date-folder (or remote object) name in either the
// ISO YYYY-MM-DD form or the legacy YYYY年MM月DD日 form. The legacy form is
// read-only compatibility: it is recognized here but never produced.
func ParseDateFolder(name string, loc *time.Location) (time.Time, bool) {
	m := isoFolderRe.FindStringSubmatch(name)
	if m == nil {
		m = legacyFolderRe.FindStringSubmatch(name)
	}
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
