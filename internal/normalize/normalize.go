// Package normalize turns raw store payloads into series data points.
//
// Payloads are JSON objects. Field order is preserved, numeric-looking strings
// become numbers and the reserved "timestamp" field is parsed through a fixed
// list of layouts.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/randomizedcoder/go-flexgraph/internal/series"
)

var (
	// ErrDecode is returned for payloads that are not a JSON object.
	ErrDecode = errors.New("payload decode failed")

	// ErrTimestampParse is returned when a string timestamp matches none of
	// the accepted layouts.
	ErrTimestampParse = errors.New("timestamp parse failed")
)

// Fallback layouts tried after ISO-8601, in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// Normalize decodes the payload stored under key. SeriesID is left empty;
// resolving it is the caller's job.
func Normalize(key string, raw []byte) (series.DataPoint, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return series.DataPoint{}, err
	}

	dp := series.DataPoint{
		Key:      key,
		Sequence: Sequence(key),
		Fields:   make([]series.Field, 0, len(fields)),
	}

	for _, f := range fields {
		if f.Name == series.TimestampField {
			if err := setTimestamp(&dp, f.Value); err != nil {
				return series.DataPoint{}, err
			}
			continue
		}
		if s, ok := f.Value.(string); ok {
			f.Value = CoerceString(s)
		}
		dp.Fields = append(dp.Fields, f)
	}
	return dp, nil
}

func setTimestamp(dp *series.DataPoint, v any) error {
	s, ok := v.(string)
	if !ok {
		dp.RawTimestamp = v
		return nil
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	dp.Timestamp = ts
	dp.HasTimestamp = true
	dp.RawTimestamp = s
	return nil
}

// ParseTimestamp tries ISO-8601 first, then the space separated layouts.
// Values without an offset are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := iso8601.ParseString(s); err == nil {
		return ts, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestampParse, s)
}

// CoerceString converts strings that parse fully as an integer or a float.
// Anything else is returned unchanged.
func CoerceString(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sequence parses the key suffix after the last separator. Returns 0 when the
// suffix is not an integer.
func Sequence(key string) int64 {
	suffix := key
	if i := strings.LastIndex(key, ":"); i >= 0 {
		suffix = key[i+1:]
	}
	n, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// decodeObject reads a single JSON object keeping member order. A repeated
// member keeps its first position and its last value.
func decodeObject(raw []byte) ([]series.Field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: payload is not an object", ErrDecode)
	}

	var fields []series.Field
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrDecode, tok)
		}

		var msg json.RawMessage
		if err := dec.Decode(&msg); err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrDecode, name, err)
		}
		value, err := decodeValue(msg)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrDecode, name, err)
		}

		if i, dup := index[name]; dup {
			fields[i].Value = value
			continue
		}
		index[name] = len(fields)
		fields = append(fields, series.Field{Name: name, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrDecode)
	}
	return fields, nil
}

// decodeValue maps one member value onto the field value types. Nested
// objects and arrays are kept as compact JSON text.
func decodeValue(msg json.RawMessage) (any, error) {
	switch msg[0] {
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, msg); err != nil {
			return nil, err
		}
		return buf.String(), nil
	case '"':
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(msg, &b); err != nil {
			return nil, err
		}
		return b, nil
	case 'n':
		return nil, nil
	}

	num := json.Number(msg)
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	f, err := num.Float64()
	if err != nil {
		return nil, err
	}
	return f, nil
}
