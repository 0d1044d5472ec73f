package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// sizeUnits maps an upper-cased unit to its byte count. Both decimal
// (KB = 1000) and binary (KiB = 1024) units are recognized.
var sizeUnits = map[string]int64{
	"B":   1,
	"KB":  1e3,
	"MB":  1e6,
	"GB":  1e9,
	"TB":  1e12,
	"KIB": 1 << 10,
	"MIB": 1 << 20,
	"GIB": 1 << 30,
	"TIB": 1 << 40,
}

// ParseSize converts a size such as "64MiB", "1.5GB" or "4096" to bytes.
// Empty input and "0" yield 0, which write_buffer_limit reads as unbounded.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	// A leading minus would otherwise reach ParseFloat and turn into a
	// negative buffer limit, so it is refused before any unit handling.
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	num, unit := splitSize(s)
	if unit == "" {
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}

		return n, nil
	}

	mult, ok := sizeUnits[strings.ToUpper(unit)]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q", s, unit)
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	bytes := f * float64(mult)
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}

	return int64(bytes), nil
}

// splitSize cuts s at the first letter into its number and unit.
func splitSize(s string) (num, unit string) {
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	})
	if i < 0 {
		return s, ""
	}

	return strings.TrimSpace(s[:i]), s[i:]
}
