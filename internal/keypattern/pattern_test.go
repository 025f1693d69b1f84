package keypattern

import (
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// Tests: Parse
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		pattern    string
		wantErr    bool
		wantPrefix string
	}{
		{"standard", "price_data:*:*", false, "price_data:"},
		{"nested prefix", "feeds:fx:*:*", false, "feeds:fx:"},
		{"single wildcard", "price_data:*", false, "price_data:"},
		{"empty", "", true, ""},
		{"whitespace", "   ", true, ""},
		{"no wildcard", "price_data:EUR_USD:1", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.pattern)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPattern) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidPattern", tt.pattern, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.pattern, err)
			}
			if p.Prefix() != tt.wantPrefix {
				t.Errorf("Prefix() = %q, want %q", p.Prefix(), tt.wantPrefix)
			}
			if p.String() != tt.pattern {
				t.Errorf("String() = %q, want %q", p.String(), tt.pattern)
			}
		})
	}
}

// =============================================================================
// Tests: Resolve
// =============================================================================

func TestPattern_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		key     string
		want    string
		wantErr bool
	}{
		{"standard key", "price_data:*:*", "price_data:EUR_USD:1718000000123", "EUR_USD", false},
		{"suffix with separators", "price_data:*:*", "price_data:EURUSD:a:b", "EURUSD", false},
		{"nested prefix", "feeds:fx:*:*", "feeds:fx:USD_JPY:42", "USD_JPY", false},
		{"wrong prefix", "price_data:*:*", "other:EUR_USD:1", "", true},
		{"no separator after series", "price_data:*:*", "price_data:EUR_USD", "", true},
		{"empty series segment", "price_data:*:*", "price_data::123", "", true},
		{"positional fallback", "price_data:*", "price_data:GBP_USD:99", "GBP_USD", false},
		{"positional too short", "price_data:*", "price_data:GBP_USD", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustParse(tt.pattern)
			got, err := p.Resolve(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedKey) {
					t.Fatalf("Resolve(%q) error = %v, want ErrMalformedKey", tt.key, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.key, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: SeriesPrefix
// =============================================================================

func TestPattern_SeriesPrefix(t *testing.T) {
	tests := []struct {
		pattern string
		series  string
		want    string
	}{
		{"price_data:*:*", "EUR_USD", "price_data:EUR_USD:"},
		{"feeds:fx:*:*", "USD_JPY", "feeds:fx:USD_JPY:"},
		{"ticks:*", "USD_JPY", "ticks:USD_JPY:"},
		{"*", "USD_JPY", "price_data:USD_JPY:"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p := MustParse(tt.pattern)
			if got := p.SeriesPrefix(tt.series); got != tt.want {
				t.Errorf("SeriesPrefix(%q) = %q, want %q", tt.series, got, tt.want)
			}
		})
	}
}

func TestPattern_SeriesPrefixMatchesResolvedKeys(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
	}{
		{"price_data:*:*", "price_data:EUR_USD:100"},
		{"feeds:fx:*:*", "feeds:fx:USD_JPY:7"},
		{"ticks:*", "ticks:BTC:1"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p := MustParse(tt.pattern)
			id, err := p.Resolve(tt.key)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if prefix := p.SeriesPrefix(id); !strings.HasPrefix(tt.key, prefix) {
				t.Errorf("key %q does not start with series prefix %q", tt.key, prefix)
			}
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse should panic on invalid pattern")
		}
	}()
	MustParse("")
}
