// Package plist parses both XML and binary property lists into a uniform
// typed dictionary view, per SPEC_FULL.md section 4.1. It wraps
// howett.net/plist — the corpus's own answer to this concern — rather than
// hand-rolling a binary-plist trailer/offset-table parser.
package plist

import (
	"errors"
	"fmt"
	"os"
	"time"

	applist "howett.net/plist"
)

// ErrCorruptPlist is returned when the input bytes do not form a valid
// property list document in either encoding.
var ErrCorruptPlist = errors.New("corrupt plist")

// ParseError reports a missing key or a type mismatch at a specific key
// path, so callers can surface exactly what went wrong.
type ParseError struct {
	Key      string
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("plist: key %q: expected %s", e.Key, e.Expected)
}

// Dict is a typed view over a decoded property list dictionary.
type Dict struct {
	raw map[string]interface{}
}

// Parse decodes raw plist bytes (XML or binary, auto-detected) into a Dict.
func Parse(data []byte) (*Dict, error) {
	var raw map[string]interface{}
	if _, err := applist.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPlist, err)
	}
	return &Dict{raw: raw}, nil
}

// ParseFile reads and decodes a plist file at path.
func ParseFile(path string) (*Dict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Has reports whether key is present in the dictionary.
func (d *Dict) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.raw[key]
	return ok
}

// String returns the string value at key.
func (d *Dict) String(key string) (string, error) {
	v, ok := d.raw[key]
	if !ok {
		return "", &ParseError{Key: key, Expected: "string (missing)"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ParseError{Key: key, Expected: "string"}
	}
	return s, nil
}

// StringOr returns the string value at key, or fallback if the key is
// absent or of the wrong type.
func (d *Dict) StringOr(key, fallback string) string {
	s, err := d.String(key)
	if err != nil {
		return fallback
	}
	return s
}

// Bool returns the boolean value at key.
func (d *Dict) Bool(key string) (bool, error) {
	v, ok := d.raw[key]
	if !ok {
		return false, &ParseError{Key: key, Expected: "bool (missing)"}
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ParseError{Key: key, Expected: "bool"}
	}
	return b, nil
}

// BoolOr returns the boolean value at key, or fallback if absent/wrong type.
func (d *Dict) BoolOr(key string, fallback bool) bool {
	b, err := d.Bool(key)
	if err != nil {
		return fallback
	}
	return b
}

// Int returns the integer value at key. howett.net/plist decodes plist
// integers into one of Go's signed/unsigned int kinds depending on size, so
// all of them are accepted here.
func (d *Dict) Int(key string) (int64, error) {
	v, ok := d.raw[key]
	if !ok {
		return 0, &ParseError{Key: key, Expected: "int (missing)"}
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint:
		return int64(n), nil
	default:
		return 0, &ParseError{Key: key, Expected: "int"}
	}
}

// Date returns the absolute-time value at key, already converted to the
// canonical instant representation (time.Time in UTC).
func (d *Dict) Date(key string) (time.Time, error) {
	v, ok := d.raw[key]
	if !ok {
		return time.Time{}, &ParseError{Key: key, Expected: "date (missing)"}
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, &ParseError{Key: key, Expected: "date"}
	}
	return t.UTC(), nil
}

// Dict returns the nested dictionary value at key.
func (d *Dict) Dict(key string) (*Dict, error) {
	v, ok := d.raw[key]
	if !ok {
		return nil, &ParseError{Key: key, Expected: "dict (missing)"}
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, &ParseError{Key: key, Expected: "dict"}
	}
	return &Dict{raw: m}, nil
}
