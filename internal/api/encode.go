package api

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/randomizedcoder/go-flexgraph/internal/series"
)

// pointJSON encodes a data point with its payload fields in arrival order.
type pointJSON series.DataPoint

// MarshalJSON writes
//
//	{"key":..,"timestamp":..,"sequence":..,"data":{<fields in order>}}
//
// timestamp is RFC 3339 for timed points, the raw value for non-string
// timestamps and null otherwise. NaN and ±Inf field values encode as null.
func (p pointJSON) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer

	b.WriteString(`{"key":`)
	if err := writeValue(&b, p.Key); err != nil {
		return nil, err
	}

	b.WriteString(`,"timestamp":`)
	var ts any
	switch {
	case p.HasTimestamp:
		ts = p.Timestamp.Format(time.RFC3339Nano)
	case p.RawTimestamp != nil:
		ts = p.RawTimestamp
	}
	if err := writeValue(&b, ts); err != nil {
		return nil, err
	}

	b.WriteString(`,"sequence":`)
	if err := writeValue(&b, p.Sequence); err != nil {
		return nil, err
	}

	b.WriteString(`,"data":{`)
	for i, f := range p.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeValue(&b, f.Name); err != nil {
			return nil, err
		}
		b.WriteByte(':')
		if err := writeValue(&b, f.Value); err != nil {
			return nil, err
		}
	}
	b.WriteString("}}")

	return b.Bytes(), nil
}

func writeValue(b *bytes.Buffer, v any) error {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		b.WriteString("null")
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Write(raw)
	return nil
}
