package event

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Change records one mutated task field. Old is nil for fields where only the
// new value is known; the status transition always carries both sides.
type Change struct {
	Field string
	Old   any
	New   any
}

// FieldChanges is an ordered set of task field changes. On the wire it is a
// JSON object keyed by field name, with `{old,new}` objects for transitions
// and bare values otherwise; document order is preserved through encode and
// decode so notifications list changes the way the producer recorded them.
type FieldChanges []Change

// WithChange appends a bare new-value entry
func (fc FieldChanges) WithChange(field string, newValue any) FieldChanges {
	return append(fc, Change{Field: field, New: newValue})
}

// WithTransition appends an old→new entry
func (fc FieldChanges) WithTransition(field string, oldValue, newValue any) FieldChanges {
	return append(fc, Change{Field: field, Old: oldValue, New: newValue})
}

func (fc FieldChanges) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range fc {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if c.Old != nil {
			val, err = json.Marshal(map[string]any{"old": c.Old, "new": c.New})
		} else {
			val, err = json.Marshal(c.New)
		}
		if err != nil {
			return nil, fmt.Errorf("marshal change %q: %w", c.Field, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (fc *FieldChanges) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("changes: expected object, got %v", tok)
	}

	var out FieldChanges
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		field, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("changes: non-string key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("changes: value for %q: %w", field, err)
		}
		out = append(out, decodeChange(field, raw))
	}

	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}

	*fc = out
	return nil
}

// decodeChange interprets one change value: an object carrying old/new keys
// is a transition, anything else a bare new value.
func decodeChange(field string, raw json.RawMessage) Change {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		_, hasOld := obj["old"]
		_, hasNew := obj["new"]
		if hasOld || hasNew {
			return Change{Field: field, Old: obj["old"], New: obj["new"]}
		}
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return Change{Field: field, New: v}
}
