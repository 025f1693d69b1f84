package normalize

import (
	"errors"
	"testing"
	"time"
)

// =============================================================================
// Tests: Normalize
// =============================================================================

func TestNormalize_NumericStringCoercion(t *testing.T) {
	dp, err := Normalize("price_data:EUR_USD:1718000000123", []byte(`{"price": "1.2345"}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	v, ok := dp.Get("price")
	if !ok {
		t.Fatal("price field missing")
	}
	f, ok := v.(float64)
	if !ok || f != 1.2345 {
		t.Errorf("price = %#v, want float64 1.2345", v)
	}
}

func TestNormalize_FieldsAndOrder(t *testing.T) {
	payload := `{
		"timestamp": "2024-06-10T12:00:00.250Z",
		"symbol": "EUR_USD",
		"bid": 1.0841,
		"volume": 1200,
		"count": "17",
		"active": true,
		"note": null,
		"levels": [1, 2, 3],
		"meta": {"source": "demo"}
	}`

	dp, err := Normalize("price_data:EUR_USD:42", []byte(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	wantNames := []string{"symbol", "bid", "volume", "count", "active", "note", "levels", "meta"}
	if len(dp.Fields) != len(wantNames) {
		t.Fatalf("got %d fields, want %d: %+v", len(dp.Fields), len(wantNames), dp.Fields)
	}
	for i, name := range wantNames {
		if dp.Fields[i].Name != name {
			t.Errorf("field %d = %q, want %q", i, dp.Fields[i].Name, name)
		}
	}

	checks := []struct {
		name string
		want any
	}{
		{"symbol", "EUR_USD"},
		{"bid", 1.0841},
		{"volume", int64(1200)},
		{"count", int64(17)},
		{"active", true},
		{"note", nil},
		{"levels", "[1,2,3]"},
		{"meta", `{"source":"demo"}`},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			got, _ := dp.Get(c.name)
			if got != c.want {
				t.Errorf("%s = %#v, want %#v", c.name, got, c.want)
			}
		})
	}

	if _, ok := dp.Get("timestamp"); ok {
		t.Error("timestamp must not appear in Fields")
	}
	if !dp.HasTimestamp {
		t.Fatal("HasTimestamp = false")
	}
	want := time.Date(2024, 6, 10, 12, 0, 0, 250_000_000, time.UTC)
	if !dp.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", dp.Timestamp, want)
	}
	if dp.Sequence != 42 {
		t.Errorf("Sequence = %d, want 42", dp.Sequence)
	}
	if dp.Key != "price_data:EUR_USD:42" {
		t.Errorf("Key = %q", dp.Key)
	}
}

func TestNormalize_DuplicateMemberKeepsLastValue(t *testing.T) {
	dp, err := Normalize("k:1", []byte(`{"a": 1, "b": 2, "a": 3}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(dp.Fields) != 2 || dp.Fields[0].Name != "a" || dp.Fields[0].Value != int64(3) {
		t.Errorf("Fields = %+v", dp.Fields)
	}
}

func TestNormalize_NonStringTimestampPassesThrough(t *testing.T) {
	dp, err := Normalize("k:1", []byte(`{"timestamp": 1718000000, "bid": 1}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if dp.HasTimestamp {
		t.Error("numeric timestamp should not be usable")
	}
	if dp.RawTimestamp != int64(1718000000) {
		t.Errorf("RawTimestamp = %#v", dp.RawTimestamp)
	}
}

func TestNormalize_MissingTimestamp(t *testing.T) {
	dp, err := Normalize("k:1", []byte(`{"bid": 1}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if dp.HasTimestamp || dp.RawTimestamp != nil {
		t.Errorf("unexpected timestamp: %+v", dp)
	}
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"empty", ``, ErrDecode},
		{"malformed", `{"bid": `, ErrDecode},
		{"array", `[1, 2]`, ErrDecode},
		{"scalar", `42`, ErrDecode},
		{"trailing data", `{"a": 1} {"b": 2}`, ErrDecode},
		{"bad timestamp", `{"timestamp": "yesterday"}`, ErrTimestampParse},
		{"wrong timestamp layout", `{"timestamp": "10/06/2024 12:00"}`, ErrTimestampParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize("k:1", []byte(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Errorf("Normalize(%q) error = %v, want %v", tt.payload, err, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: helpers
// =============================================================================

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2025-08-25T11:52:32.755024", time.Date(2025, 8, 25, 11, 52, 32, 755024000, time.UTC)},
		{"2025-08-25T11:52:32+02:00", time.Date(2025, 8, 25, 9, 52, 32, 0, time.UTC)},
		{"2025-08-25 11:52:32.755024", time.Date(2025, 8, 25, 11, 52, 32, 755024000, time.UTC)},
		{"2025-08-25 11:52:32", time.Date(2025, 8, 25, 11, 52, 32, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("ParseTimestamp: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCoerceString(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"1.2345", 1.2345},
		{"1e3", 1000.0},
		{"BULLISH_CROSS", "BULLISH_CROSS"},
		{"12abc", "12abc"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CoerceString(tt.in); got != tt.want {
				t.Errorf("CoerceString(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSequence(t *testing.T) {
	tests := []struct {
		key  string
		want int64
	}{
		{"price_data:EUR_USD:1718000000123", 1718000000123},
		{"price_data:EUR_USD:abc", 0},
		{"price_data:EUR_USD:", 0},
		{"12", 12},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := Sequence(tt.key); got != tt.want {
				t.Errorf("Sequence(%q) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}
