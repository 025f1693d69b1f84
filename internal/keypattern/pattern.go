// Package keypattern maps concrete store keys onto series identifiers.
//
// A pattern is a literal prefix, a wildcard marking the series segment and a
// trailing wildcard for the per-record suffix:
//
//	price_data:*:*
//	price_data:EUR_USD:1718000000123  ->  series "EUR_USD"
package keypattern

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Separator splits key segments.
	Separator = ":"

	// Wildcard is the glob token marking a variable segment.
	Wildcard = "*"

	// fallbackPrefix is used when a positional pattern starts with its
	// wildcard and has no literal prefix to build the series prefix from.
	fallbackPrefix = "price_data:"
)

var (
	// ErrMalformedKey is returned when a key does not have the shape the
	// pattern describes.
	ErrMalformedKey = errors.New("malformed key")

	// ErrInvalidPattern is returned by Parse for patterns that cannot select
	// any series.
	ErrInvalidPattern = errors.New("invalid key pattern")
)

// Pattern is a parsed key pattern. The zero value is not usable; use Parse.
type Pattern struct {
	raw    string
	prefix string
	// positional is true when the pattern has fewer than two wildcards and
	// keys are split by fixed position instead.
	positional bool
}

// Parse validates a pattern such as "price_data:*:*".
func Parse(pattern string) (Pattern, error) {
	if strings.TrimSpace(pattern) == "" {
		return Pattern{}, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	parts := strings.Split(pattern, Wildcard)
	if len(parts) < 2 {
		return Pattern{}, fmt.Errorf("%w: %q has no %q segment", ErrInvalidPattern, pattern, Wildcard)
	}

	p := Pattern{raw: pattern, prefix: parts[0]}
	if len(parts) < 3 {
		p.positional = true
	}
	return p, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level defaults.
func MustParse(pattern string) Pattern {
	p, err := Parse(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the glob passed to the store when listing keys.
func (p Pattern) String() string {
	return p.raw
}

// Prefix returns the literal part before the first wildcard.
func (p Pattern) Prefix() string {
	return p.prefix
}

// Resolve extracts the series identifier from a concrete key.
func (p Pattern) Resolve(key string) (string, error) {
	if p.positional {
		parts := strings.Split(key, Separator)
		if len(parts) < 3 || parts[1] == "" {
			return "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
		}
		return parts[1], nil
	}

	if !strings.HasPrefix(key, p.prefix) {
		return "", fmt.Errorf("%w: %q does not start with %q", ErrMalformedKey, key, p.prefix)
	}
	rest := key[len(p.prefix):]
	id, _, found := strings.Cut(rest, Separator)
	if !found || id == "" {
		return "", fmt.Errorf("%w: %q has no series segment", ErrMalformedKey, key)
	}
	return id, nil
}

// SeriesPrefix returns the key prefix shared by every record of a series.
// It scopes per-series eviction of the seen-key set.
func (p Pattern) SeriesPrefix(seriesID string) string {
	if p.positional && p.prefix == "" {
		return fallbackPrefix + seriesID + Separator
	}
	return p.prefix + seriesID + Separator
}
