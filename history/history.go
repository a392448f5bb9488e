// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package history implements AccessHistory, the per-byte cell of the
// shadow memory: a mutex-guarded vector of past Records together with
// the race-found/recycled flags and the dominance-pruning policy of
// spec §4.5.
package history

import (
	"sync"

	"github.com/aclements/go-romp/happensbefore"
	"github.com/aclements/go-romp/record"
)

// recordState is the coarse tag used by the pruning heuristic to allow
// a fast-path skip on repeated same-task accesses (spec §3, §4.5).
type recordState uint8

const (
	// stateInit: the cell holds no records (never accessed, or
	// recycled).
	stateInit recordState = iota
	// stateSingle: exactly one record, no other task has touched the
	// byte yet.
	stateSingle
	// stateSibling: two or more records, all made by the same task
	// (equal TaskPtr).
	stateSibling
	// stateNonSibling: the stored records come from more than one
	// task; the fast path no longer applies.
	stateNonSibling
)

// Race describes a confirmed data race, as reported by Cell.Check.
type Race struct {
	Hist record.Record
	Cur  record.Record
}

// Cell is one AccessHistory entry: the metadata tracked for a single
// shadow-memory byte (or word/longword, depending on granularity).
type Cell struct {
	mu sync.Mutex

	records []record.Record
	state   recordState

	dataRaceFound  bool
	memoryRecycled bool
}

// DataRaceFound reports whether a race has already been confirmed on
// this cell. Once true, the cell's records stay empty forever (spec
// §4.5 step 6a: "first write wins").
func (c *Cell) DataRaceFound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataRaceFound
}

// Recycle marks the cell's backing memory as dead (stack unwound,
// task-private heap freed) and discards its records, per the
// "Recycled range" lifecycle of spec §3/§9.
func (c *Cell) Recycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryRecycled = true
	c.records = nil
	c.state = stateInit
}

// MemoryRecycled reports whether this cell's range was last recycled
// without an intervening fresh access.
func (c *Cell) MemoryRecycled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memoryRecycled
}

// Check runs the per-byte orchestration of spec §4.5 step 6: it
// compares cur against every stored record, reports at most one race,
// and otherwise applies the pruning policy before (maybe) inserting
// cur. hwLock reports whether the access held a hardware lock
// (spec §4.5's ¬hwLock race condition); when true no race is ever
// reported for this access.
//
// Check returns the confirmed race, if any. The caller is responsible
// for surfacing it (spec §4.5: raise the global race flag, record a
// diagnostic, then the cell is quenched).
func (c *Cell) Check(cur record.Record, hwLock bool) (race Race, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.memoryRecycled = false

	if c.dataRaceFound {
		return Race{}, false
	}
	if len(c.records) == 0 {
		c.records = append(c.records, cur)
		c.state = stateSingle
		return Race{}, false
	}

	kept := c.records[:0]
	for _, hist := range c.records {
		if !hwLock && conflicts(hist, cur) {
			c.dataRaceFound = true
			c.records = nil
			return Race{Hist: hist, Cur: cur}, true
		}
		if dominated(hist, cur) {
			// cur subsumes hist: drop hist.
			continue
		}
		kept = append(kept, hist)
	}
	c.records = kept

	if !subsumedByAny(c.records, cur) {
		c.records = append(c.records, cur)
	}
	c.state = classify(c.records)
	return Race{}, false
}

// conflicts implements spec §4.5 step 6c's race predicate: unordered,
// at least one write, and non-intersecting locksets.
func conflicts(hist, cur record.Record) bool {
	if happensbefore.HappensBefore(hist.Label, cur.Label) {
		return false
	}
	if !hist.IsWrite && !cur.IsWrite {
		return false
	}
	if hist.Lockset.Intersects(cur.Lockset) {
		return false
	}
	return true
}

// dominated reports whether hist is subsumed by cur under the pruning
// policy of spec §4.5: hist happens-before cur, they agree on
// read/write, and cur's lockset is a subset of hist's (cur holds no
// lock that hist did not).
func dominated(hist, cur record.Record) bool {
	return happensbefore.HappensBefore(hist.Label, cur.Label) &&
		hist.IsWrite == cur.IsWrite &&
		cur.Lockset.IsSubsetOf(hist.Lockset)
}

// subsumedByAny reports whether cur is already subsumed by some
// surviving record, in which case it need not be inserted (spec §4.5,
// the symmetric "cur ⪯ hist" skip-insert case).
func subsumedByAny(records []record.Record, cur record.Record) bool {
	for _, hist := range records {
		if happensbefore.HappensBefore(cur.Label, hist.Label) &&
			hist.IsWrite == cur.IsWrite &&
			hist.Lockset.IsSubsetOf(cur.Lockset) {
			return true
		}
	}
	return false
}

// classify recomputes the coarse recordState tag after a mutation. It
// is a heuristic only — §4.5 deliberately leaves its exact transition
// table unspecified (see DESIGN.md) — so it never participates in
// correctness, only in the fast-path opportunity a caller might build
// on top of Cell.
func classify(records []record.Record) recordState {
	switch len(records) {
	case 0:
		return stateInit
	case 1:
		return stateSingle
	}
	first := records[0].TaskPtr
	for _, r := range records[1:] {
		if r.TaskPtr != first {
			return stateNonSibling
		}
	}
	return stateSibling
}
