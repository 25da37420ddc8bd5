package tmlanguage

import (
	"bytes"
	"encoding/json"
	"iter"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ReservedSigil prefixes repository keys that belong to the grammar engine
// ($self, $base) rather than to the grammar author.
const ReservedSigil = "$"

// IsReserved reports whether a repository key is engine-internal.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, ReservedSigil)
}

// ruleMap is an insertion-ordered string -> *Rule mapping. A key that appears
// twice keeps its first position and its last value, the same as a JS object.
type ruleMap struct {
	keys   []string
	values map[string]*Rule
}

func (m *ruleMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *ruleMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *ruleMap) Get(key string) (*Rule, bool) {
	if m == nil {
		return nil, false
	}
	r, ok := m.values[key]
	return r, ok
}

// Set adds or replaces an entry. New keys go to the end.
func (m *ruleMap) Set(key string, r *Rule) {
	if m.values == nil {
		m.values = make(map[string]*Rule)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = r
}

// All yields entries in insertion order.
func (m *ruleMap) All() iter.Seq2[string, *Rule] {
	return func(yield func(string, *Rule) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

func (m *ruleMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return errors.Errorf("reading object start: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.Errorf("expected object, got %v", tok)
	}

	m.keys = nil
	m.values = make(map[string]*Rule)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.Errorf("reading key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return errors.Errorf("expected string key, got %v", tok)
		}

		var r *Rule
		if err := dec.Decode(&r); err != nil {
			return errors.Errorf("decoding rule %q: %w", key, err)
		}
		m.Set(key, r)
	}

	if _, err := dec.Token(); err != nil {
		return errors.Errorf("reading object end: %w", err)
	}
	return nil
}

func (m ruleMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, errors.Errorf("encoding rule %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Repository maps rule reference names (the part after '#' in an include) to
// rules.
type Repository struct {
	ruleMap
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Len() int {
	if r == nil {
		return 0
	}
	return r.ruleMap.Len()
}

func (r *Repository) Keys() []string {
	if r == nil {
		return nil
	}
	return r.ruleMap.Keys()
}

func (r *Repository) Get(key string) (*Rule, bool) {
	if r == nil {
		return nil, false
	}
	return r.ruleMap.Get(key)
}

func (r *Repository) All() iter.Seq2[string, *Rule] {
	if r == nil {
		return func(func(string, *Rule) bool) {}
	}
	return r.ruleMap.All()
}

// Captures maps capture group keys ("0", "1", ...) to the rule applied to
// that group.
type Captures struct {
	ruleMap
}

// NewCaptures returns an empty capture table.
func NewCaptures() *Captures {
	return &Captures{}
}

func (c *Captures) Len() int {
	if c == nil {
		return 0
	}
	return c.ruleMap.Len()
}

func (c *Captures) Keys() []string {
	if c == nil {
		return nil
	}
	return c.ruleMap.Keys()
}

func (c *Captures) Get(key string) (*Rule, bool) {
	if c == nil {
		return nil, false
	}
	return c.ruleMap.Get(key)
}

func (c *Captures) All() iter.Seq2[string, *Rule] {
	if c == nil {
		return func(func(string, *Rule) bool) {}
	}
	return c.ruleMap.All()
}

// Indexed returns the capture rules as a slice indexed by group number. Keys
// that are not numbers (named groups) are ignored.
func (c *Captures) Indexed() []*Rule {
	if c.Len() == 0 {
		return nil
	}
	var out []*Rule
	for k, r := range c.All() {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 {
			continue
		}
		for len(out) <= n {
			out = append(out, nil)
		}
		out[n] = r
	}
	return out
}
