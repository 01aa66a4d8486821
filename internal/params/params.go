// Package params implements the ordered, typed argument bag carried by every
// command. A Set is self-describing: its JSON form records each value's type
// so a persisted command can be rebuilt without any other state.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalid is wrapped by every lookup or decode failure.
var ErrInvalid = errors.New("invalid parameter")

// Type tags a stored value.
type Type string

const (
	TypeString  Type = "string"
	TypeBool    Type = "bool"
	TypeInt     Type = "int"
	TypeStrings Type = "strings"
)

type entry struct {
	key string
	typ Type
	val any
}

// Set is an ordered key/value mapping. Keys keep the position of their first
// insertion; putting an existing key replaces its value in place.
type Set struct {
	entries []entry
	index   map[string]int
}

// New returns an empty Set.
func New() *Set {
	return &Set{index: make(map[string]int)}
}

func (s *Set) put(key string, typ Type, val any) *Set {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[key]; ok {
		s.entries[i] = entry{key: key, typ: typ, val: val}
		return s
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, entry{key: key, typ: typ, val: val})
	return s
}

// PutString stores a string value.
func (s *Set) PutString(key, v string) *Set { return s.put(key, TypeString, v) }

// PutBool stores a boolean value.
func (s *Set) PutBool(key string, v bool) *Set { return s.put(key, TypeBool, v) }

// PutInt stores an integer value.
func (s *Set) PutInt(key string, v int64) *Set { return s.put(key, TypeInt, v) }

// PutStrings stores a copy of a string list.
func (s *Set) PutStrings(key string, v []string) *Set {
	return s.put(key, TypeStrings, slices.Clone(v))
}

// Len returns the number of keys.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Keys returns the keys in insertion order.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		keys = append(keys, e.key)
	}
	return keys
}

// Has reports whether key is present.
func (s *Set) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[key]
	return ok
}

// TypeOf returns the type tag stored for key.
func (s *Set) TypeOf(key string) (Type, bool) {
	if s == nil {
		return "", false
	}
	i, ok := s.index[key]
	if !ok {
		return "", false
	}
	return s.entries[i].typ, true
}

func (s *Set) lookup(key string, want Type) (any, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: %q missing", ErrInvalid, key)
	}
	i, ok := s.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q missing", ErrInvalid, key)
	}
	e := s.entries[i]
	if e.typ != want {
		return nil, fmt.Errorf("%w: %q is %s, want %s", ErrInvalid, key, e.typ, want)
	}
	return e.val, nil
}

// String returns the string stored under key.
func (s *Set) String(key string) (string, error) {
	v, err := s.lookup(key, TypeString)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Bool returns the boolean stored under key.
func (s *Set) Bool(key string) (bool, error) {
	v, err := s.lookup(key, TypeBool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// BoolOr returns the boolean under key, or def when the key is absent.
// A present key of another type is still an error.
func (s *Set) BoolOr(key string, def bool) (bool, error) {
	if !s.Has(key) {
		return def, nil
	}
	return s.Bool(key)
}

// Int returns the integer stored under key.
func (s *Set) Int(key string) (int64, error) {
	v, err := s.lookup(key, TypeInt)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Strings returns a copy of the string list stored under key.
func (s *Set) Strings(key string) ([]string, error) {
	v, err := s.lookup(key, TypeStrings)
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]string)), nil
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := New()
	if s == nil {
		return out
	}
	for _, e := range s.entries {
		val := e.val
		if l, ok := val.([]string); ok {
			val = slices.Clone(l)
		}
		out.put(e.key, e.typ, val)
	}
	return out
}

// Equal reports whether two sets hold the same keys, in the same order, with
// the same typed values.
func (s *Set) Equal(o *Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := range s.Len() {
		a, b := s.entries[i], o.entries[i]
		if a.key != b.key || a.typ != b.typ {
			return false
		}
		if a.typ == TypeStrings {
			if !slices.Equal(a.val.([]string), b.val.([]string)) {
				return false
			}
			continue
		}
		if a.val != b.val {
			return false
		}
	}
	return true
}

type wireEntry struct {
	Key   string          `json:"key"`
	Type  Type            `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the set as an ordered array of typed entries.
func (s *Set) MarshalJSON() ([]byte, error) {
	wire := make([]wireEntry, 0, s.Len())
	if s != nil {
		for _, e := range s.entries {
			raw, err := json.Marshal(e.val)
			if err != nil {
				return nil, fmt.Errorf("encode %q: %w", e.key, err)
			}
			wire = append(wire, wireEntry{Key: e.key, Type: e.typ, Value: raw})
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the array form produced by MarshalJSON.
func (s *Set) UnmarshalJSON(data []byte) error {
	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	*s = Set{index: make(map[string]int, len(wire))}
	for _, w := range wire {
		if w.Key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalid)
		}
		var err error
		switch w.Type {
		case TypeString:
			var v string
			err = json.Unmarshal(w.Value, &v)
			s.PutString(w.Key, v)
		case TypeBool:
			var v bool
			err = json.Unmarshal(w.Value, &v)
			s.PutBool(w.Key, v)
		case TypeInt:
			var v int64
			err = json.Unmarshal(w.Value, &v)
			s.PutInt(w.Key, v)
		case TypeStrings:
			var v []string
			err = json.Unmarshal(w.Value, &v)
			s.PutStrings(w.Key, v)
		default:
			return fmt.Errorf("%w: %q has unknown type %q", ErrInvalid, w.Key, w.Type)
		}
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalid, w.Key, err)
		}
	}
	return nil
}

// Parse decodes a set from its JSON form.
func Parse(data []byte) (*Set, error) {
	s := New()
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return s, nil
}
