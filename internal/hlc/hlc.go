// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package hlc implements a small hybrid logical clock used to order
// concurrent CRDT mutations deterministically across replicas.
package hlc

import "sync"

// Stamp is a Lamport timestamp paired with the origin that produced it. Two
// stamps compare by Counter first, then by Origin, so that Less orders any
// two stamps with distinct origins one way or the other (total order, no
// true ties).
type Stamp struct {
	Counter uint64
	Origin  string
}

// Less reports whether s sorts before other.
func (s Stamp) Less(other Stamp) bool {
	if s.Counter != other.Counter {
		return s.Counter < other.Counter
	}
	return s.Origin < other.Origin
}

// Zero reports whether s is the zero value (never issued).
func (s Stamp) Zero() bool {
	return s.Counter == 0 && s.Origin == ""
}

// Clock is a per-replica Lamport clock. It is safe for concurrent use; the
// replica holds one instance and stamps every local mutation with it.
type Clock struct {
	mu      sync.Mutex
	counter uint64
	origin  string
}

// New returns a Clock that stamps with the given origin identifier (the
// document's local replica id, not a client id).
func New(origin string) *Clock {
	return &Clock{origin: origin}
}

// Tick advances the clock for a local mutation and returns its stamp.
func (c *Clock) Tick() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return Stamp{Counter: c.counter, Origin: c.origin}
}

// Observe advances the clock to stay causally ahead of a stamp received from
// a remote replica, per the standard Lamport-clock merge rule.
func (c *Clock) Observe(remote Stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote.Counter > c.counter {
		c.counter = remote.Counter
	}
}
