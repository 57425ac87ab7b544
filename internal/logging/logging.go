// Package logging provides a small dedup-by-message helper layered on top
// of the standard logger, so a repeated parse or connection error only
// gets printed once instead of flooding stdout.
package logging

import (
	"log"
	"sync"
)

// Deduper logs each distinct format string at most once, then silently
// drops repeats; the arguments are not part of the key. No package in
// this module constructs one: the adapters log through the standard
// logger directly.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewDeduper creates an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]bool)}
}

// Once logs msg via log.Printf if it hasn't been seen before.
func (d *Deduper) Once(msg string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[msg] {
		return
	}
	d.seen[msg] = true
	log.Printf(msg, args...)
}

// Reset clears the seen set, useful after a successful reconnect so a
// recurring fault is reported again if it recurs.
func (d *Deduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]bool)
}
