// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lockset implements the small, fixed-capacity set of held
// lock identifiers carried by every task (spec §3, §4.3).
package lockset

import "fmt"

// Capacity is the maximum number of simultaneously held locks a
// LockSet can record. Four is sufficient in practice for OpenMP-style
// programs (spec §4.3); exceeding it is a programmer error.
const Capacity = 4

// LockSet is a small, unordered set of lock identifiers. The zero
// value is an empty set. LockSet is a value type: Add and Remove
// return a new LockSet rather than mutating the receiver, so a
// LockSet embedded in a Record can be safely shared across goroutines
// once published.
type LockSet struct {
	locks [Capacity]uint64
	n     uint8
}

// Add returns a copy of s with lock appended. It panics if s is
// already at Capacity (spec §4.3, §7 "capacity overflow... fatal by
// contract").
func (s LockSet) Add(lock uint64) LockSet {
	if s.n >= Capacity {
		panic(fmt.Sprintf("lockset: capacity %d exceeded", Capacity))
	}
	s.locks[s.n] = lock
	s.n++
	return s
}

// Remove returns a copy of s with the first occurrence of lock
// removed. If lock is not present, Remove returns s unchanged and ok
// is false; callers that consider this an invariant violation may
// downgrade it to a fatal error themselves (spec §7 allows either).
func (s LockSet) Remove(lock uint64) (out LockSet, ok bool) {
	for i := uint8(0); i < s.n; i++ {
		if s.locks[i] == lock {
			s.n--
			s.locks[i] = s.locks[s.n]
			s.locks[s.n] = 0
			return s, true
		}
	}
	return s, false
}

// Len returns the number of locks currently held.
func (s LockSet) Len() int { return int(s.n) }

// Locks returns the held lock identifiers in unspecified order. The
// caller must not retain a reference beyond reading it; the returned
// slice is freshly allocated.
func (s LockSet) Locks() []uint64 {
	out := make([]uint64, s.n)
	copy(out, s.locks[:s.n])
	return out
}

// Intersects reports whether s and o share at least one lock. This is
// the filter applied by AccessCheck (spec §4.5 step 6c): two
// conflicting, unordered accesses are not reported as a race if their
// locksets intersect.
func (s LockSet) Intersects(o LockSet) bool {
	for i := uint8(0); i < s.n; i++ {
		for j := uint8(0); j < o.n; j++ {
			if s.locks[i] == o.locks[j] {
				return true
			}
		}
	}
	return false
}

// IsSubsetOf reports whether every lock in s is also held in o. This
// backs the pruning policy's "cur.lockset ⊆ hist.lockset" condition
// (spec §4.5).
func (s LockSet) IsSubsetOf(o LockSet) bool {
	for i := uint8(0); i < s.n; i++ {
		found := false
		for j := uint8(0); j < o.n; j++ {
			if s.locks[i] == o.locks[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s LockSet) String() string {
	if s.n == 0 {
		return "{}"
	}
	out := "{"
	for i := uint8(0); i < s.n; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%#x", s.locks[i])
	}
	return out + "}"
}
