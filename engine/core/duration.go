package core

import (
	"strings"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Longer spellings first so "5 seconds" is never split at " second".
var durationUnits = strings.NewReplacer(
	" seconds", "s", " second", "s",
	" minutes", "m", " minute", "m",
	" hours", "h", " hour", "h",
)

// ParseHumanDuration parses the duration spellings the engine accepts in
// configuration: Go's compact form ("90s", "1h30m"), a spelled-out unit
// ("30 seconds", "1 minute"), and multi-part compact forms with day and
// week units ("1d2h", "1w") via str2duration. Spelled-out multi-part
// phrases such as "1 day 2 hours" are not accepted.
func ParseHumanDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if compact := durationUnits.Replace(s); compact != s {
		if d, err := time.ParseDuration(compact); err == nil {
			return d, nil
		}
	}
	return str2duration.ParseDuration(s)
}
