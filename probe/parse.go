package probe

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// rttPattern matches the round-trip time token of ping output across
// platforms and locales: "time=12.3 ms", "time<1ms", "Zeit=12ms",
// "时间=9ms". Summary lines ("= 1.2/1.3/1.4/0.1 ms") don't match since
// the number must be followed directly by the unit.
var rttPattern = regexp.MustCompile(`[=<]\s*(\d+(?:[.,]\d+)?)\s*ms`)

// ParseRTT extracts the first round-trip time from ping output.
func ParseRTT(output string) (time.Duration, bool) {
	m := rttPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}

	ms, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}

	// ping prints at most microsecond precision
	return time.Duration(math.Round(ms*1000)) * time.Microsecond, true
}
