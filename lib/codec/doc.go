// Package codec converts records to and from a wire-safe JSON representation
// without losing the type of date values.
//
// JSON has no date type, so a plain ISO-8601 string cannot be told apart from
// a text field that happens to look like a date. The codec therefore tags every
// date explicitly at encode time:
//
//	time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)  ->  {"$date": "2024-03-01T09:30:00Z"}
//
// and only tagged values are turned back into time.Time on decode. A string is
// always decoded as a string.
//
// Rules:
//   - Dates are formatted as RFC 3339 with nanoseconds in UTC and decode to UTC.
//   - Map keys starting with "$" are reserved. User keys with that prefix are
//     escaped by doubling it ("$price" is written as "$$price").
//   - Nested maps and slices are converted recursively, including typed
//     containers such as []string or named map types.
//   - Numbers are decoded with json.Number: integral values become int64,
//     everything else float64. NaN and infinities cannot be encoded.
//   - A malformed date tag fails with ErrMalformedDate, so that callers can
//     skip the affected record instead of returning a wrong value.
//
// Usage:
//
//	b, err := codec.Marshal(map[string]any{"id": "p1", "createdAt": time.Now()})
//	record, err := codec.Unmarshal(b)
package codec
