// Package model holds the typed entities stored in the document store and
// the rules that resolve their loosely-shaped stored fields.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TimestampLayout is the fixed-width UTC layout used for message timestamps,
// so that they sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Decode converts a raw document body into v.
func Decode(data map[string]any, v any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}

// Encode converts v into a raw document body.
func Encode(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling entity: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encoding entity: %w", err)
	}
	return out, nil
}

// FlexString accepts a JSON string, number or bool. Older clients wrote
// service codes and phone numbers as numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = ""
	case string:
		*f = FlexString(t)
	case float64:
		*f = FlexString(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*f = FlexString(strconv.FormatBool(t))
	default:
		return fmt.Errorf("unsupported value %s", string(b))
	}
	return nil
}

func (f FlexString) String() string { return string(f) }

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
