package importer

import (
	"fmt"
	"strconv"
	"strings"
)

// parseISODuration converts the ISO-8601 durations the YouTube API returns
// (PT1H2M3S, PT45S, P1DT2H) into whole seconds.
func parseISODuration(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	rest, ok := strings.CutPrefix(s, "P")
	if !ok {
		return 0, fmt.Errorf("malformed duration %q", s)
	}

	total := 0
	components := 0
	inTime := false
	num := ""
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'T':
			if num != "" {
				return 0, fmt.Errorf("malformed duration %q", s)
			}
			inTime = true
		default:
			if num == "" {
				return 0, fmt.Errorf("malformed duration %q", s)
			}
			n, err := strconv.Atoi(num)
			if err != nil {
				return 0, fmt.Errorf("malformed duration %q: %w", s, err)
			}
			num = ""
			components++
			switch {
			case r == 'D' && !inTime:
				total += n * 86400
			case r == 'H' && inTime:
				total += n * 3600
			case r == 'M' && inTime:
				total += n * 60
			case r == 'S' && inTime:
				total += n
			default:
				return 0, fmt.Errorf("unsupported designator %q in %q", r, s)
			}
		}
	}
	if num != "" || components == 0 {
		return 0, fmt.Errorf("malformed duration %q", s)
	}
	return total, nil
}
