package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ParseResult is the outcome of parsing raw bytes as JSON. Parse never
// panics or raises; malformed input is reported through Err with byte
// offset context so callers can point at the corruption without dumping
// raw file content.
type ParseResult struct {
	Success bool
	Data    any
	Err     error
}

// previewRadius bounds how much raw content appears around a syntax error.
const previewRadius = 20

// Parse decodes raw JSON into generic Go values (map[string]any, []any,
// float64, string, bool, nil).
func Parse(data []byte) ParseResult {
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return ParseResult{Err: describeParseError(data, err)}
	}
	return ParseResult{Success: true, Data: out}
}

// ParseObject decodes raw JSON and requires the top-level value to be an
// object.
func ParseObject(data []byte) (map[string]any, error) {
	res := Parse(data)
	if !res.Success {
		return nil, res.Err
	}
	obj, ok := res.Data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object at top level, got %T", res.Data)
	}
	return obj, nil
}

// ParseArray decodes raw JSON and requires the top-level value to be an
// array.
func ParseArray(data []byte) ([]any, error) {
	res := Parse(data)
	if !res.Success {
		return nil, res.Err
	}
	arr, ok := res.Data.([]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON array at top level, got %T", res.Data)
	}
	return arr, nil
}

// describeParseError enriches a json error with byte offset context and a
// short preview of the surrounding content.
func describeParseError(data []byte, err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("invalid JSON at byte %d (near %q): %w",
			syntaxErr.Offset, preview(data, syntaxErr.Offset), err)
	case errors.As(err, &typeErr):
		return fmt.Errorf("unexpected JSON type at byte %d: %w", typeErr.Offset, err)
	default:
		return fmt.Errorf("invalid JSON: %w", err)
	}
}

// preview returns a short excerpt of data around offset.
func preview(data []byte, offset int64) string {
	start := offset - previewRadius
	if start < 0 {
		start = 0
	}
	end := offset + previewRadius
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return string(data[start:end])
}
