// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shadow implements the two-level sparse shadow-memory page
// table of spec §4.6: a map from program address to the
// history.Cell that tracks that byte's (or word's, or longword's)
// access history.
package shadow

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/aclements/go-romp/history"
)

// Granularity controls how many bytes of the observed address space
// share one history.Cell.
type Granularity uint8

const (
	Byte     Granularity = 1
	Word     Granularity = 4
	Longword Granularity = 8
)

func (g Granularity) shift() uint {
	switch g {
	case Byte:
		return 0
	case Word:
		return 2
	case Longword:
		return 3
	default:
		panic(fmt.Sprintf("shadow: invalid granularity %d", g))
	}
}

// Memory is the process-wide shadow-memory singleton (spec §9,
// "ShadowMemory and the initialization flag are process-wide
// singletons"). Its zero value is not usable; construct with New.
type Memory struct {
	l1Bits, l2Bits, addrBits uint
	granularity              Granularity

	l1Shift, l2Shift, offsetShift uint
	l2Mask, offsetMask            uint64
	pageOffsetBits                uint

	l1 []unsafe.Pointer // *[]unsafe.Pointer, CAS-published

	l1Pool   sync.Pool // *[]unsafe.Pointer, zeroed L2 pages
	leafPool sync.Pool // *[]history.Cell, zeroed leaf pages
}

// New returns a Memory sized for addrBits bits of virtual address
// (48 is the usual assumption on 64-bit targets), split into an
// l1Bits-wide first level and an l2Bits-wide second level, at the
// given granularity.
func New(l1Bits, l2Bits, addrBits uint, granularity Granularity) *Memory {
	gShift := granularity.shift()
	pageOffsetBits := addrBits - l1Bits - l2Bits
	if pageOffsetBits < gShift {
		panic("shadow: addrBits too small for the requested level widths and granularity")
	}

	m := &Memory{
		l1Bits:         l1Bits,
		l2Bits:         l2Bits,
		addrBits:       addrBits,
		granularity:    granularity,
		l1Shift:        addrBits - l1Bits,
		l2Shift:        pageOffsetBits,
		offsetShift:    gShift,
		l2Mask:         1<<l2Bits - 1,
		offsetMask:     1<<pageOffsetBits - 1,
		pageOffsetBits: pageOffsetBits,
		l1:             make([]unsafe.Pointer, 1<<l1Bits),
	}
	l2Len := 1 << l2Bits
	leafLen := 1 << (pageOffsetBits - gShift)
	m.l1Pool.New = func() interface{} {
		p := make([]unsafe.Pointer, l2Len)
		return &p
	}
	m.leafPool.New = func() interface{} {
		p := make([]history.Cell, leafLen)
		return &p
	}
	return m
}

func (m *Memory) split(addr uint64) (i1, i2, off uint64) {
	i1 = addr >> m.l1Shift
	i2 = (addr >> m.l2Shift) & m.l2Mask
	off = (addr & m.offsetMask) >> m.offsetShift
	return
}

// GetOrCreate returns the history.Cell governing addr, installing any
// missing intermediate pages along the way (spec §4.6). Concurrent
// callers racing to install the same page publish with a single CAS;
// the loser returns its now-unused page to the free-cache instead of
// discarding it.
func (m *Memory) GetOrCreate(addr uint64) *history.Cell {
	i1, i2, off := m.split(addr)

	l2p := atomic.LoadPointer(&m.l1[i1])
	if l2p == nil {
		l2p = m.installL2(&m.l1[i1])
	}
	l2 := *(*[]unsafe.Pointer)(l2p)

	leafp := atomic.LoadPointer(&l2[i2])
	if leafp == nil {
		leafp = m.installLeaf(&l2[i2])
	}
	leaf := *(*[]history.Cell)(leafp)
	return &leaf[off]
}

func (m *Memory) installL2(slot *unsafe.Pointer) unsafe.Pointer {
	fresh := m.l1Pool.Get().(*[]unsafe.Pointer)
	p := unsafe.Pointer(fresh)
	if atomic.CompareAndSwapPointer(slot, nil, p) {
		return p
	}
	// Lost the race: return the spare page and read the winner's.
	for i := range *fresh {
		(*fresh)[i] = nil
	}
	m.l1Pool.Put(fresh)
	return atomic.LoadPointer(slot)
}

func (m *Memory) installLeaf(slot *unsafe.Pointer) unsafe.Pointer {
	fresh := m.leafPool.Get().(*[]history.Cell)
	p := unsafe.Pointer(fresh)
	if atomic.CompareAndSwapPointer(slot, nil, p) {
		return p
	}
	*fresh = make([]history.Cell, len(*fresh))
	m.leafPool.Put(fresh)
	return atomic.LoadPointer(slot)
}

// GetAllocated returns the history.Cell for addr if every intermediate
// page is already present, or nil otherwise. It never allocates (spec
// §4.6, "read-only path, no allocation") — used by callers that only
// want to recycle cells that already exist.
func (m *Memory) GetAllocated(addr uint64) *history.Cell {
	i1, i2, off := m.split(addr)

	l2p := atomic.LoadPointer(&m.l1[i1])
	if l2p == nil {
		return nil
	}
	l2 := *(*[]unsafe.Pointer)(l2p)
	leafp := atomic.LoadPointer(&l2[i2])
	if leafp == nil {
		return nil
	}
	leaf := *(*[]history.Cell)(leafp)
	return &leaf[off]
}

// RecycleRange marks every already-allocated cell in [lo, hi) as
// recycled (spec §4.7 "task schedule"). Addresses with no backing
// page are untouched: nothing was ever recorded there.
func (m *Memory) RecycleRange(lo, hi uint64) {
	step := uint64(1) << m.offsetShift
	for a := lo; a < hi; a += step {
		if c := m.GetAllocated(a); c != nil {
			c.Recycle()
		}
	}
}
