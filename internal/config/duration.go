package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a non-negative duration string. Empty is 0.
// path names the config key in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	return ParseDurationOrDefault(path, raw, 0)
}

// ParseDurationOrDefault is ParseDurationField with def substituted for
// an empty or zero value.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case d == 0:
		return def, nil
	}
	return d, nil
}
