package chainage

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse converts a field chainage notation into metres from kilometre zero.
//
// Accepted forms:
//   - "12+500"  → 12500 (kilometres + metres)
//   - "5.5"     → 5500  (bare number below 100 is kilometres)
//   - "5250"    → 5250  (bare number of 100 or more is already metres)
//
// Inspectors write both styles in the field, so the cutoff mirrors how the
// paper forms were read: nobody records a bare metre value under 100.
func Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty chainage")
	}

	if idx := strings.Index(s, "+"); idx >= 0 {
		kmStr := strings.TrimSpace(s[:idx])
		mStr := strings.TrimSpace(s[idx+1:])

		km, err := strconv.ParseFloat(kmStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid kilometre part %q: %w", kmStr, err)
		}
		m, err := strconv.ParseFloat(mStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid metre part %q: %w", mStr, err)
		}
		if km < 0 || m < 0 {
			return 0, fmt.Errorf("negative chainage %q", s)
		}
		return km*1000 + m, nil
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chainage %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative chainage %q", s)
	}

	if n < 100 {
		return n * 1000, nil
	}
	return n, nil
}

// Format renders metres back into km+metres notation, e.g. 12500 → "12+500"
func Format(metres float64) string {
	km := int(metres) / 1000
	m := metres - float64(km)*1000
	if m == float64(int(m)) {
		return fmt.Sprintf("%d+%03d", km, int(m))
	}
	return fmt.Sprintf("%d+%.1f", km, m)
}
