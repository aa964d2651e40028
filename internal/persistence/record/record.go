// Package record holds the in-memory form of one persisted save unit.
//
// A record with no entries means "nothing saved here yet". Callers must not
// try to tell a never-saved key from one that was saved empty or failed to
// load; the store deliberately reports all three the same way.
package record

import (
	"fmt"
	"sort"
)

// FormatVersion is the encoding revision written by this build.
const FormatVersion = 1

type SaveRecord struct {
	key     Key
	path    string
	entries map[string]Value
	version int
	dirty   bool
}

// New returns an empty record bound to key and the file it resolves to.
func New(key Key, path string) *SaveRecord {
	return &SaveRecord{
		key:     key,
		path:    path,
		entries: map[string]Value{},
		version: FormatVersion,
	}
}

// Loaded wraps decoded entries without marking the record dirty. The map is
// owned by the record afterwards.
func Loaded(key Key, path string, version int, entries map[string]Value) *SaveRecord {
	r := New(key, path)
	r.version = version
	for k, v := range entries {
		if v.valid() {
			r.entries[k] = v
		}
	}
	return r
}

func (r *SaveRecord) Key() Key           { return r.key }
func (r *SaveRecord) SourcePath() string { return r.path }
func (r *SaveRecord) FormatVersion() int { return r.version }
func (r *SaveRecord) Len() int           { return len(r.entries) }
func (r *SaveRecord) IsEmpty() bool      { return len(r.entries) == 0 }

// Dirty reports in-memory changes that have not been saved.
func (r *SaveRecord) Dirty() bool { return r.dirty }

// MarkPersisted is called by the store after a successful write.
func (r *SaveRecord) MarkPersisted() {
	r.dirty = false
	r.version = FormatVersion
}

func (r *SaveRecord) Has(key string) bool {
	_, ok := r.entries[key]
	return ok
}

func (r *SaveRecord) Get(key string) (Value, bool) {
	v, ok := r.entries[key]
	return v, ok
}

func (r *SaveRecord) Set(key string, v Value) {
	if !v.valid() {
		panic(fmt.Sprintf("record: invalid value kind %d for %q", v.Kind, key))
	}
	r.entries[key] = v
	r.dirty = true
}

func (r *SaveRecord) Delete(key string) {
	if _, ok := r.entries[key]; !ok {
		return
	}
	delete(r.entries, key)
	r.dirty = true
}

// Clear drops every entry. Saving a cleared record leaves a file that loads
// as empty.
func (r *SaveRecord) Clear() {
	if len(r.entries) == 0 {
		return
	}
	r.entries = map[string]Value{}
	r.dirty = true
}

// Keys returns entry names in sorted order.
func (r *SaveRecord) Keys() []string {
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Entries returns a copy of the entry map.
func (r *SaveRecord) Entries() map[string]Value {
	out := make(map[string]Value, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

func (r *SaveRecord) SetInt(key string, v int64)     { r.Set(key, Int(v)) }
func (r *SaveRecord) SetFloat(key string, v float64) { r.Set(key, Float(v)) }
func (r *SaveRecord) SetString(key, v string)        { r.Set(key, String(v)) }
func (r *SaveRecord) SetBool(key string, v bool)     { r.Set(key, Bool(v)) }
func (r *SaveRecord) SetBytes(key string, v []byte)  { r.Set(key, Bytes(v)) }

func (r *SaveRecord) SetObject(key string, v any) error {
	val, err := Object(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	r.Set(key, val)
	return nil
}

func (r *SaveRecord) GetInt(key string) (int64, bool) {
	v, ok := r.entries[key]
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

func (r *SaveRecord) GetFloat(key string) (float64, bool) {
	v, ok := r.entries[key]
	if !ok || v.Kind != KindFloat {
		return 0, false
	}
	return v.Float, true
}

func (r *SaveRecord) GetString(key string) (string, bool) {
	v, ok := r.entries[key]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

func (r *SaveRecord) GetBool(key string) (bool, bool) {
	v, ok := r.entries[key]
	if !ok || v.Kind != KindBool {
		return false, false
	}
	return v.Bool, true
}

// GetBytes returns a copy; edit the record through SetBytes.
func (r *SaveRecord) GetBytes(key string) ([]byte, bool) {
	v, ok := r.entries[key]
	if !ok || v.Kind != KindBytes {
		return nil, false
	}
	if v.Bytes == nil {
		return nil, true
	}
	return append([]byte(nil), v.Bytes...), true
}

// GetObject decodes an Object entry into out. It returns false when the key
// is missing or holds another kind.
func (r *SaveRecord) GetObject(key string, out any) (bool, error) {
	v, ok := r.entries[key]
	if !ok || v.Kind != KindObject {
		return false, nil
	}
	if err := v.Decode(out); err != nil {
		return true, fmt.Errorf("%s: %w", key, err)
	}
	return true, nil
}
