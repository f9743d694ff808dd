package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// errNotObject is returned when a dataset line holds valid JSON that is not an object.
var errNotObject = errors.New("expected a JSON object")

// Record is one decoded dataset line: a flat mapping from keys to raw JSON
// values that remembers the order keys appeared in the source.
//
// Records are treated as immutable. With returns a modified copy.
type Record struct {
	// Line is the 1-based physical line the record was decoded from.
	// Zero for records that did not come from a dataset (test prompts).
	Line int

	keys   []string
	values map[string]json.RawMessage
}

// ParseRecord decodes one JSON object, keeping key order.
// Duplicate keys keep their first position and their last value.
func ParseRecord(line int, data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Record{}, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Record{}, errNotObject
	}

	rec := Record{Line: line, values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Record{}, err
		}
		rec.set(key, validUTF8(raw))
	}

	// Closing brace
	if _, err := dec.Token(); err != nil {
		return Record{}, err
	}

	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after JSON object")
		}
		return Record{}, err
	}

	return rec, nil
}

// MustParseRecord is ParseRecord for literals known to be valid. It panics on error.
func MustParseRecord(line int, data string) Record {
	rec, err := ParseRecord(line, []byte(data))
	if err != nil {
		panic(fmt.Sprintf("core: invalid record literal %q: %v", data, err))
	}
	return rec
}

func (r *Record) set(key string, raw json.RawMessage) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = raw
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// Keys returns the field names in source order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Raw returns the raw JSON value stored under key.
func (r Record) Raw(key string) (json.RawMessage, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Text returns the string form of the value stored under key.
//
// JSON strings are returned unquoted, objects and arrays as compact JSON,
// numbers, booleans and null as their literal text.
func (r Record) Text(key string) (string, bool) {
	raw, ok := r.values[key]
	if !ok {
		return "", false
	}
	return valueText(raw), true
}

// With returns a copy of the record with key set to the JSON string value.
// An existing key keeps its position.
func (r Record) With(key, value string) Record {
	out := Record{
		Line:   r.Line,
		keys:   make([]string, len(r.keys), len(r.keys)+1),
		values: make(map[string]json.RawMessage, len(r.values)+1),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	out.set(key, marshalString(value))
	return out
}

// MarshalJSON writes the fields in source order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalString(key))
		buf.WriteByte(':')
		buf.Write(r.values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a single JSON object.
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := ParseRecord(r.Line, data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func valueText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	}
	return string(raw)
}

// validUTF8 replaces each byte of an invalid UTF-8 sequence with U+FFFD, the
// same substitution encoding/json makes when it decodes a string, so a
// record's JSON and the text rendered from it agree.
func validUTF8(raw json.RawMessage) json.RawMessage {
	if utf8.Valid(raw) {
		return raw
	}
	out := make([]byte, 0, len(raw)+8)
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size == 1 {
			out = utf8.AppendRune(out, utf8.RuneError)
		} else {
			out = append(out, raw[i:i+size]...)
		}
		i += size
	}
	return out
}

// marshalString encodes s as a JSON string without HTML escaping.
func marshalString(s string) json.RawMessage {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}
