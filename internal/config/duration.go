package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration reads an optional duration field. An empty value falls back
// to def; anything else must parse as a non-negative Go duration string
// ("500ms", "10s", "1m30s").
func Duration(path, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}
