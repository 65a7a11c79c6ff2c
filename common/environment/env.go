// Package environment reads configuration overrides from environment
// variables. Every helper falls back to the supplied default when the
// variable is unset, empty, or does not parse.
package environment

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Lookup returns the trimmed value of name and whether it was set to a
// non-blank value.
func Lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// StringOr returns the value of name, or defaultValue if it is unset or blank.
func StringOr(name, defaultValue string) string {
	if v, ok := Lookup(name); ok {
		return v
	}
	return defaultValue
}

// BoolOr parses name with strconv.ParseBool.
func BoolOr(name string, defaultValue bool) bool {
	return parseOr(name, defaultValue, strconv.ParseBool)
}

// IntOr parses name as a base-10 integer.
func IntOr(name string, defaultValue int) int {
	return parseOr(name, defaultValue, strconv.Atoi)
}

// FloatOr parses name as a 64-bit float. Used for relevance thresholds and
// sampling temperatures.
func FloatOr(name string, defaultValue float64) float64 {
	return parseOr(name, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// DurationOr parses name as a time.Duration ("30s", "2m").
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	return parseOr(name, defaultValue, time.ParseDuration)
}

// OptionalFloat parses name as a float and returns a pointer to it. The
// literal values "none", "null" and "off" yield nil so that an operator can
// explicitly unset an optional threshold. Any other unparsable value, or an
// unset variable, returns current unchanged.
func OptionalFloat(name string, current *float64) *float64 {
	v, ok := Lookup(name)
	if !ok {
		return current
	}
	switch strings.ToLower(v) {
	case "none", "null", "off":
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return current
	}
	return &f
}

func parseOr[T any](name string, defaultValue T, parse func(string) (T, error)) T {
	v, ok := Lookup(name)
	if !ok {
		return defaultValue
	}
	out, err := parse(v)
	if err != nil {
		return defaultValue
	}
	return out
}
