// Package history keeps the short run of recent fan-mode selections used to debounce
// mode changes, and the stores that carry it between invocations.
package history

import (
	"context"
	"strings"
)

// DefaultCapacity is the number of consecutive agreeing selections required to commit a mode
const DefaultCapacity = 3

// Ring is a fixed-capacity FIFO of entries; pushing onto a full ring evicts the oldest
type Ring struct {
	capacity int
	entries  []string
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity, entries: make([]string, 0, capacity)}
}

// Push appends entry, dropping the oldest entries beyond capacity
func (r *Ring) Push(entry string) {
	r.entries = append(r.entries, entry)
	if over := len(r.entries) - r.capacity; over > 0 {
		r.entries = append(r.entries[:0], r.entries[over:]...)
	}
}

// Entries returns the entries oldest first
func (r *Ring) Entries() []string {
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Ring) Len() int   { return len(r.entries) }
func (r *Ring) Full() bool { return len(r.entries) == r.capacity }

// Unanimous reports whether the ring is full and every entry is the same
func (r *Ring) Unanimous() bool {
	if !r.Full() {
		return false
	}
	for _, entry := range r.entries[1:] {
		if entry != r.entries[0] {
			return false
		}
	}
	return true
}

// Encode joins the entries with commas
func (r *Ring) Encode() string {
	return strings.Join(r.entries, ",")
}

// Decode parses a comma-joined history. An empty string is an empty ring.
func Decode(capacity int, encoded string) *Ring {
	ring := NewRing(capacity)
	if encoded == "" {
		return ring
	}
	for _, entry := range strings.Split(encoded, ",") {
		ring.Push(entry)
	}
	return ring
}

// Store loads and saves rings by key
type Store interface {
	Load(ctx context.Context, key string) (*Ring, error)
	Save(ctx context.Context, key string, ring *Ring) error
}
