package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseTimestamp converts "SS", "MM:SS" or "HH:MM:SS" into seconds. Every
// field is plain digits; only the seconds field may carry a fraction.
// Fields after the first must be below 60. Malformed input yields 0.
func ParseTimestamp(s string) float64 {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0
	}

	var total float64
	last := len(parts) - 1
	for i, p := range parts {
		p = strings.TrimSpace(p)
		var (
			v  float64
			ok bool
		)
		if i == last {
			v, ok = parseSeconds(p)
		} else {
			v, ok = parseDigits(p)
		}
		if !ok || (i > 0 && v >= 60) {
			return 0
		}
		total = total*60 + v
	}
	return total
}

// parseDigits accepts a non-empty run of ASCII digits.
func parseDigits(p string) (float64, bool) {
	if p == "" {
		return 0, false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(p, 64)
	return v, err == nil
}

// parseSeconds accepts digits with an optional ".digits" fraction.
func parseSeconds(p string) (float64, bool) {
	whole, frac, hasFrac := strings.Cut(p, ".")
	if _, ok := parseDigits(whole); !ok {
		return 0, false
	}
	if hasFrac {
		if _, ok := parseDigits(frac); !ok {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(p, 64)
	return v, err == nil
}

// FormatTimestamp renders whole seconds as "MM:SS", or "HH:MM:SS" past an hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(math.Round(seconds))
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
