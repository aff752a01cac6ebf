package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(key string, defaultValue bool) bool {
	val := strings.ToLower(strings.TrimSpace(getenv(key, "")))
	switch val {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

// parseSeconds accepts plain seconds ("15", "0.5") or a Go duration ("90s").
func parseSeconds(value string, name string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("%s must be greater than zero (got %s)", name, value)
		}
		return d, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is neither seconds nor a duration", name, value)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %s)", name, value)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// splitList splits on commas or pipes and drops empty items.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '|' }) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
