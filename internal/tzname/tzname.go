// Package tzname derives the short timezone suffix the wire protocol
// appends to process start times (§4.2): a region letter (e/c/m/p),
// standard/daylight marker (s/d), and a trailing t — e.g. "cst", "edt".
package tzname

import (
	"os"
	"strings"
	"time"
)

// regionOffsets maps the recognised region letter to its standard-time UTC
// offset in whole hours. Daylight time is the standard offset plus one hour.
var regionOffsets = map[string]int{
	"e": -5, // Eastern
	"c": -6, // Central
	"m": -7, // Mountain
	"p": -8, // Pacific
}

// defaultRegion is used when the local offset does not match any
// recognised region.
const defaultRegion = "c"

// Abbrev returns the timezone suffix for t, using t's location to
// determine the current UTC offset and daylight status.
func Abbrev(t time.Time) string {
	_, offsetSec := t.Zone()
	marker := "s"
	if t.IsDST() {
		marker = "d"
		offsetSec -= 3600
	}
	offsetHours := offsetSec / 3600

	for _, region := range []string{"e", "c", "m", "p"} {
		if regionOffsets[region] == offsetHours {
			return region + marker + "t"
		}
	}
	return defaultRegion + marker + "t"
}

// Local loads the timezone named by the OS timezone file or the TZ
// environment variable, falling back to the system local zone when
// neither resolves.
func Local() *time.Location {
	if name := os.Getenv("TZ"); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		name := strings.TrimSpace(string(data))
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.Local
}
