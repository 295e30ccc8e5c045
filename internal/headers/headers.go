// Package headers implements a case-insensitive header map that keeps
// the original casing of whichever name was inserted first, for
// round-trip rendering back onto the wire.
package headers

import (
	"strconv"
	"strings"
)

type entry struct {
	name  string
	value string
}

// Headers is a case-insensitive multimap-of-one: inserting an existing
// key again overwrites its value but keeps the first-seen casing of the
// name.
type Headers struct {
	order []string // lower-cased keys, in insertion order
	m     map[string]entry
}

// New returns an empty header set.
func New() *Headers {
	return &Headers{m: make(map[string]entry)}
}

// Insert sets name's value, case-insensitively. The first casing used
// for a given name is preserved across subsequent overwrites.
func (h *Headers) Insert(name, value string) {
	key := strings.ToLower(name)
	if e, ok := h.m[key]; ok {
		e.value = value
		h.m[key] = e
		return
	}
	h.m[key] = entry{name: name, value: value}
	h.order = append(h.order, key)
}

// Get returns name's value and whether it was present.
func (h *Headers) Get(name string) (string, bool) {
	e, ok := h.m[strings.ToLower(name)]
	return e.value, ok
}

// Contains reports whether name is present, case-insensitively.
func (h *Headers) Contains(name string) bool {
	_, ok := h.m[strings.ToLower(name)]
	return ok
}

// Remove deletes name if present.
func (h *Headers) Remove(name string) {
	key := strings.ToLower(name)
	if _, ok := h.m[key]; !ok {
		return
	}
	delete(h.m, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of distinct header names.
func (h *Headers) Len() int { return len(h.m) }

// IsEmpty reports whether there are no headers.
func (h *Headers) IsEmpty() bool { return len(h.m) == 0 }

// Each calls fn once per header, in insertion order, with the
// originally-cased name.
func (h *Headers) Each(fn func(name, value string)) {
	for _, key := range h.order {
		e := h.m[key]
		fn(e.name, e.value)
	}
}

// ContentLength parses the Content-Length header, if present and valid.
func (h *Headers) ContentLength() (int64, bool) {
	v, ok := h.Get("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// IsChunked reports whether Transfer-Encoding names "chunked" as (one
// of) its codings.
func (h *Headers) IsChunked() bool {
	v, ok := h.Get("Transfer-Encoding")
	if !ok {
		return false
	}
	for _, coding := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(coding), "chunked") {
			return true
		}
	}
	return false
}

// ParseLines parses "Name: value" lines (as produced by splitting a raw
// header block on CRLF) into a Headers set. Lines without a colon are
// skipped.
func ParseLines(lines []string) *Headers {
	h := New()
	for _, line := range lines {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := line[:idx]
		value := strings.TrimSpace(line[idx+1:])
		h.Insert(name, value)
	}
	return h
}
