package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Constants and Errors
// --------------------------------------------------------------------------

const (
	// DateTag is the key of the tagged object a date is encoded to.
	DateTag = "$date"

	// tagPrefix marks reserved keys. User keys starting with it are escaped
	// by doubling the prefix.
	tagPrefix = "$"

	// maxSafeInteger is the largest integer a float64 represents exactly (2^53).
	maxSafeInteger = 1 << 53
)

var (
	// ErrMalformedDate is returned when a date tag does not hold a strict RFC 3339 instant.
	ErrMalformedDate = errors.New("malformed date")
	// ErrUnknownTag is returned when a reserved key other than DateTag is found.
	ErrUnknownTag = errors.New("unknown type tag")
	// ErrUnsupportedType is returned when a value has no wire representation.
	ErrUnsupportedType = errors.New("unsupported type")
)

// --------------------------------------------------------------------------
// Tree Encoding
// --------------------------------------------------------------------------

// Encode converts a value tree into its wire-safe form.
// Dates become {"$date": "<RFC3339Nano, UTC>"}, map keys starting with "$" are
// escaped, nested maps and slices are converted recursively.
func Encode(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return encodeDate(val), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return encodeDate(*val), nil
	case string, bool, json.Number:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return uint64(val), nil
	case uint8:
		return uint64(val), nil
	case uint16:
		return uint64(val), nil
	case uint32:
		return uint64(val), nil
	case uint64:
		return val, nil
	case float32:
		return encodeFloat(float64(val))
	case float64:
		return encodeFloat(val)
	case map[string]any:
		return encodeMap(val)
	case []any:
		return encodeSlice(val)
	}
	return encodeReflect(reflect.ValueOf(v))
}

func encodeDate(t time.Time) map[string]any {
	return map[string]any{DateTag: t.UTC().Format(time.RFC3339Nano)}
}

func encodeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, f)
	}
	return f, nil
}

func encodeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		enc, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[escapeKey(k)] = enc
	}
	return out, nil
}

func encodeSlice(s []any) ([]any, error) {
	out := make([]any, len(s))
	for i, v := range s {
		enc, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = enc
	}
	return out, nil
}

// encodeReflect handles named and typed containers ([]string, map[string]int,
// store.Record, ...) by walking them with reflection.
func encodeReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return Encode(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s", ErrUnsupportedType, rv.Type().Key())
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			enc, err := Encode(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[escapeKey(k)] = enc
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			enc, err := Encode(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return encodeFloat(rv.Float())
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

// --------------------------------------------------------------------------
// Tree Decoding
// --------------------------------------------------------------------------

// Decode reverses Encode. Tagged dates become time.Time (UTC), integral numbers
// become int64 and all other numbers float64.
func Decode(wire any) (any, error) {
	switch val := wire.(type) {
	case map[string]any:
		return decodeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			dec, err := Decode(v)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = dec
		}
		return out, nil
	case json.Number:
		return decodeNumber(val), nil
	case float64:
		return normalizeFloat(val), nil
	case float32:
		return normalizeFloat(float64(val)), nil
	}
	return wire, nil
}

func decodeMap(m map[string]any) (any, error) {
	if raw, ok := m[DateTag]; ok {
		if len(m) != 1 {
			return nil, fmt.Errorf("%w: date tag must be the only key", ErrMalformedDate)
		}
		return decodeDate(raw)
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		key, err := unescapeKey(k)
		if err != nil {
			return nil, err
		}
		dec, err := Decode(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = dec
	}
	return out, nil
}

func decodeDate(raw any) (time.Time, error) {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: expected string, got %T", ErrMalformedDate, raw)
	}
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// ParseDate parses a strict RFC 3339 instant (optionally with fractional seconds)
// and returns it in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return t.UTC(), nil
}

// FormatDate formats t the way Encode does.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeNumber(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	f, err := n.Float64()
	if err != nil {
		return s
	}
	return normalizeFloat(f)
}

// normalizeFloat turns integral floats in the exactly representable range into int64.
func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) <= maxSafeInteger {
		return int64(f)
	}
	return f
}

// --------------------------------------------------------------------------
// Key Escaping
// --------------------------------------------------------------------------

func escapeKey(k string) string {
	if strings.HasPrefix(k, tagPrefix) {
		return tagPrefix + k
	}
	return k
}

func unescapeKey(k string) (string, error) {
	if strings.HasPrefix(k, tagPrefix+tagPrefix) {
		return k[len(tagPrefix):], nil
	}
	if strings.HasPrefix(k, tagPrefix) {
		return "", fmt.Errorf("%w: %q", ErrUnknownTag, k)
	}
	return k, nil
}

// --------------------------------------------------------------------------
// Byte Encoding
// --------------------------------------------------------------------------

// Marshal encodes a record to its JSON wire form.
func Marshal(record map[string]any) ([]byte, error) {
	return MarshalValue(record)
}

// MarshalValue encodes any value tree to JSON.
func MarshalValue(v any) ([]byte, error) {
	enc, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(enc)
}

// Unmarshal decodes a JSON object produced by Marshal.
func Unmarshal(b []byte) (map[string]any, error) {
	v, err := UnmarshalValue(b)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return m, nil
}

// UnmarshalValue decodes any JSON value produced by MarshalValue.
func UnmarshalValue(b []byte) (any, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data")
	}
	return Decode(raw)
}
