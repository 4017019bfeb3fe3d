// Package firestore provides a REST client for the Firestore document API,
// including the tagged-value codec and a read-through document cache.
package firestore

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Value is the Firestore REST tagged-value union. Exactly one field is set
// per value on the wire.
type Value struct {
	StringValue    *string         `json:"stringValue,omitempty"`
	IntegerValue   *string         `json:"integerValue,omitempty"`
	DoubleValue    *float64        `json:"doubleValue,omitempty"`
	BooleanValue   *bool           `json:"booleanValue,omitempty"`
	TimestampValue *string         `json:"timestampValue,omitempty"`
	NullValue      json.RawMessage `json:"nullValue,omitempty"`
	ArrayValue     *ArrayValue     `json:"arrayValue,omitempty"`
	MapValue       *MapValue       `json:"mapValue,omitempty"`
}

// ArrayValue wraps an ordered list of values.
type ArrayValue struct {
	Values []Value `json:"values,omitempty"`
}

// MapValue wraps a nested field map.
type MapValue struct {
	Fields map[string]Value `json:"fields,omitempty"`
}

// nullLiteral is what the wire carries for nullValue; the raw bytes survive
// round-tripping through encoding/json.
var nullLiteral = json.RawMessage("null")

// EncodeFields converts a plain Go map into Firestore wire fields. Values of
// unsupported types are dropped from the output; that loss is intentional and
// mirrors the write path's contract.
func EncodeFields(obj map[string]any) map[string]Value {
	fields := make(map[string]Value, len(obj))
	for key, value := range obj {
		if v, ok := encodeValue(value); ok {
			fields[key] = v
		}
	}
	return fields
}

func encodeValue(value any) (Value, bool) {
	switch v := value.(type) {
	case nil:
		return Value{NullValue: nullLiteral}, true
	case string:
		return Value{StringValue: &v}, true
	case bool:
		return Value{BooleanValue: &v}, true
	case int:
		return encodeInt(int64(v)), true
	case int32:
		return encodeInt(int64(v)), true
	case int64:
		return encodeInt(v), true
	case float32:
		return encodeFloat(float64(v)), true
	case float64:
		return encodeFloat(v), true
	case time.Time:
		s := v.UTC().Format(time.RFC3339Nano)
		return Value{TimestampValue: &s}, true
	case []any:
		values := make([]Value, 0, len(v))
		for _, item := range v {
			if ev, ok := encodeValue(item); ok {
				values = append(values, ev)
			}
		}
		return Value{ArrayValue: &ArrayValue{Values: values}}, true
	case []string:
		values := make([]Value, len(v))
		for i := range v {
			values[i] = Value{StringValue: &v[i]}
		}
		return Value{ArrayValue: &ArrayValue{Values: values}}, true
	case map[string]any:
		return Value{MapValue: &MapValue{Fields: EncodeFields(v)}}, true
	default:
		return Value{}, false
	}
}

func encodeInt(v int64) Value {
	// Integers travel as decimal strings so large values keep full precision.
	s := strconv.FormatInt(v, 10)
	return Value{IntegerValue: &s}
}

func encodeFloat(v float64) Value {
	// Integral floats are indistinguishable from ints once encoded; they come
	// back as int64 after a round trip.
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return encodeInt(int64(v))
	}
	return Value{DoubleValue: &v}
}

// DecodeFields converts Firestore wire fields back into a plain Go map.
// Integers decode as int64, timestamps as time.Time, arrays as []any and
// nested maps as map[string]any.
func DecodeFields(fields map[string]Value) map[string]any {
	obj := make(map[string]any, len(fields))
	for key, value := range fields {
		obj[key] = decodeValue(value)
	}
	return obj
}

func decodeValue(v Value) any {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.IntegerValue != nil:
		n, _ := strconv.ParseInt(*v.IntegerValue, 10, 64)
		return n
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.BooleanValue != nil:
		return *v.BooleanValue
	case v.TimestampValue != nil:
		t, err := time.Parse(time.RFC3339Nano, *v.TimestampValue)
		if err != nil {
			return nil
		}
		return t
	case v.ArrayValue != nil:
		items := make([]any, len(v.ArrayValue.Values))
		for i, item := range v.ArrayValue.Values {
			items[i] = decodeValue(item)
		}
		return items
	case v.MapValue != nil:
		return DecodeFields(v.MapValue.Fields)
	default:
		// Covers nullValue and any tag this codec does not model.
		return nil
	}
}
