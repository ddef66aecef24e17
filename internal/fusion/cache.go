package fusion

import "github.com/tfg-ids/fusion/internal/record"

// KeyedEntry pairs a composite key with a value, the unit held in the
// flow-side and protocol-side caches (§3).
type KeyedEntry[T any] struct {
	Key   record.Key
	Value T
}

// KeyedDeque is the bounded FIFO cache of §3: a deque of (key, value)
// pairs awaiting a correlation partner, capacity Q, oldest evicted on
// overflow. Lookup is linear, matching the spec's "search the cache for
// an equal key" wording (there is no secondary index over a value this
// small and short-lived).
type KeyedDeque[T any] struct {
	entries []KeyedEntry[T]
	cap     int
}

func NewKeyedDeque[T any](cap int) *KeyedDeque[T] {
	return &KeyedDeque[T]{cap: cap}
}

// Append adds a new entry, evicting the oldest if at capacity. It
// returns the evicted entry and true if an eviction occurred.
func (d *KeyedDeque[T]) Append(k record.Key, v T) (evicted KeyedEntry[T], didEvict bool) {
	d.entries = append(d.entries, KeyedEntry[T]{Key: k, Value: v})
	if len(d.entries) > d.cap {
		evicted = d.entries[0]
		d.entries = d.entries[1:]
		didEvict = true
	}
	return
}

// Take finds and removes the oldest entry with the given key (§4.2's
// tie-breaking rule: "oldest (earliest-inserted) is chosen").
func (d *KeyedDeque[T]) Take(k record.Key) (T, bool) {
	for i, e := range d.entries {
		if e.Key == k {
			v := e.Value
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Peek finds the oldest entry with the given key without removing it,
// used by the FTP matching path (§4.2 step "search ... without removing
// it on match").
func (d *KeyedDeque[T]) Peek(k record.Key) (T, bool) {
	for _, e := range d.entries {
		if e.Key == k {
			return e.Value, true
		}
	}
	var zero T
	return zero, false
}

func (d *KeyedDeque[T]) Len() int { return len(d.entries) }

// Snapshot returns the current entries in insertion order, for the
// lost-record dump (§4.5: "rewritten in full on every cache mutation").
func (d *KeyedDeque[T]) Snapshot() []KeyedEntry[T] {
	out := make([]KeyedEntry[T], len(d.entries))
	copy(out, d.entries)
	return out
}
