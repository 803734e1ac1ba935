// Package env provides an ordered environment-variable mapping.
//
// Keys keep their first-seen position. On the Windows family key lookup is
// case-insensitive while the original spelling of the first occurrence is
// retained for output.
package env

import (
	"os"
	"sort"
	"strings"
)

// Env is an ordered string to string mapping of environment variables. The
// zero value is an empty, case-sensitive mapping ready for use.
type Env struct {
	foldCase bool
	keys     []string
	values   map[string]string
	names    map[string]string
}

// New returns an empty mapping. When foldCase is true keys compare
// case-insensitively.
func New(foldCase bool) *Env {
	return &Env{foldCase: foldCase}
}

// FromOS snapshots the ambient process environment. foldCase selects
// Windows-family key comparison.
func FromOS(foldCase bool) *Env {
	return FromSlice(os.Environ(), foldCase)
}

// FromSlice builds a mapping from KEY=VALUE entries. Later entries override
// earlier ones without moving their position. Entries without a separator are
// ignored. Windows exposes per-drive variables such as "=C:=C:\\", so a
// leading '=' is part of the key.
func FromSlice(entries []string, foldCase bool) *Env {
	e := New(foldCase)
	for _, entry := range entries {
		sep := strings.IndexByte(entry, '=')
		if sep == 0 {
			sep = strings.IndexByte(entry[1:], '=')
			if sep >= 0 {
				sep++
			}
		}
		if sep <= 0 {
			continue
		}
		e.Set(entry[:sep], entry[sep+1:])
	}
	return e
}

// FromMap builds a mapping from a flat map. Map iteration order is random, so
// keys are inserted in sorted order.
func FromMap(values map[string]string, foldCase bool) *Env {
	e := New(foldCase)
	e.Merge(values)
	return e
}

func (e *Env) key(name string) string {
	if e.foldCase {
		return strings.ToUpper(name)
	}
	return name
}

// Lookup returns the value for name and whether it was present.
func (e *Env) Lookup(name string) (string, bool) {
	if e == nil || e.values == nil {
		return "", false
	}
	v, ok := e.values[e.key(name)]
	return v, ok
}

// Get returns the value for name, or the empty string when unset.
func (e *Env) Get(name string) string {
	v, _ := e.Lookup(name)
	return v
}

// Set assigns value to name. New keys are appended; existing keys keep their
// position and original spelling.
func (e *Env) Set(name, value string) {
	if e.values == nil {
		e.values = make(map[string]string)
		e.names = make(map[string]string)
	}
	k := e.key(name)
	if _, ok := e.values[k]; !ok {
		e.keys = append(e.keys, k)
		e.names[k] = name
	}
	e.values[k] = value
}

// Delete removes name from the mapping.
func (e *Env) Delete(name string) {
	if e.values == nil {
		return
	}
	k := e.key(name)
	if _, ok := e.values[k]; !ok {
		return
	}
	delete(e.values, k)
	delete(e.names, k)
	for i, existing := range e.keys {
		if existing == k {
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			break
		}
	}
}

// Merge copies values into the mapping. Keys not yet present are appended in
// sorted order so the result does not depend on map iteration.
func (e *Env) Merge(values map[string]string) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e.Set(name, values[name])
	}
}

// Len returns the number of variables.
func (e *Env) Len() int {
	if e == nil {
		return 0
	}
	return len(e.keys)
}

// Keys returns the variable names in insertion order.
func (e *Env) Keys() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.keys))
	for i, k := range e.keys {
		out[i] = e.names[k]
	}
	return out
}

// Slice renders the mapping as KEY=VALUE entries in insertion order, the
// shape os/exec expects for Cmd.Env.
func (e *Env) Slice() []string {
	if e == nil {
		return []string{}
	}
	out := make([]string, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, e.names[k]+"="+e.values[k])
	}
	return out
}

// Clone returns an independent copy.
func (e *Env) Clone() *Env {
	if e == nil {
		return nil
	}
	dup := New(e.foldCase)
	for _, k := range e.keys {
		dup.Set(e.names[k], e.values[k])
	}
	return dup
}

// FoldsCase reports whether key lookups are case-insensitive.
func (e *Env) FoldsCase() bool {
	return e != nil && e.foldCase
}
