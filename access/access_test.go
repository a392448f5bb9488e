// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package access

import (
	"testing"
	"unsafe"

	"github.com/aclements/go-romp/history"
	"github.com/aclements/go-romp/label"
	"github.com/aclements/go-romp/lockset"
	"github.com/aclements/go-romp/ompt"
	"github.com/aclements/go-romp/shadow"
)

// fakeQuerier is a fixed-answer ompt.RuntimeQuerier for exercising
// CheckAccess's dispatch without a real OMPT runtime behind it.
type fakeQuerier struct {
	info    ompt.TaskInfo
	infoOK  bool
	base    uintptr
	size    uintptr
	stackOK bool
}

func (f fakeQuerier) GetTaskInfo(int) (ompt.TaskInfo, bool) { return f.info, f.infoOK }
func (f fakeQuerier) GetParallelInfo(int) (ompt.ParallelInfo, bool) {
	return ompt.ParallelInfo{}, false
}
func (f fakeQuerier) GetThreadData() (*ompt.ThreadData, bool) { return nil, false }
func (f fakeQuerier) GetThreadStackInfo() (uintptr, uintptr, bool) {
	return f.base, f.size, f.stackOK
}
func (f fakeQuerier) GetTaskMemoryInfo() (uintptr, uintptr, bool) { return 0, 0, false }

func TestClassifyDataSharing(t *testing.T) {
	const base, size = 0x1000, 0x1000
	cases := []struct {
		name      string
		addr      uintptr
		exitFrame uintptr
		want      DataSharingClass
	}{
		{"outside stack", 0x5000, base + 0x10, NonThreadPrivate},
		{"no exit frame known", base + 0x10, 0, Undefined},
		{"below exit frame", base + 0x10, base + 0x100, ThreadPrivateBelowExit},
		{"above exit frame", base + 0x200, base + 0x100, ThreadPrivateAboveExit},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ClassifyDataSharing(c.addr, base, size, c.exitFrame)
			if got != c.want {
				t.Errorf("ClassifyDataSharing(%#x) = %v, want %v", c.addr, got, c.want)
			}
		})
	}
}

// S1: sibling parallel-for workers conflicting on the same byte.
func TestCheckerReportsRace(t *testing.T) {
	mem := shadow.New(4, 4, 16, shadow.Byte)
	var races []history.Race
	c := &Checker{
		Shadow:      mem,
		Granularity: shadow.Byte,
		OnRace: func(addr uintptr, r history.Race) {
			races = append(races, r)
		},
	}

	base := label.New()
	w0 := base.Append(label.NewImplicit(0, 4))
	w1 := base.Append(label.NewImplicit(1, 4))

	var t0, t1, instr0, instr1 int
	c.Check(0x100, 1, unsafe.Pointer(&instr0), false, true, unsafe.Pointer(&t0), w0, lockset.LockSet{})
	c.Check(0x100, 1, unsafe.Pointer(&instr1), false, true, unsafe.Pointer(&t1), w1, lockset.LockSet{})

	if len(races) != 1 {
		t.Fatalf("got %d races, want 1", len(races))
	}
}

func TestCheckerLocksetSuppressesRace(t *testing.T) {
	mem := shadow.New(4, 4, 16, shadow.Byte)
	var races []history.Race
	c := &Checker{
		Shadow:      mem,
		Granularity: shadow.Byte,
		OnRace: func(addr uintptr, r history.Race) {
			races = append(races, r)
		},
	}

	base := label.New()
	w0 := base.Append(label.NewImplicit(0, 2))
	w1 := base.Append(label.NewImplicit(1, 2))
	var ls lockset.LockSet
	ls = ls.Add(0x1)

	var t0, t1, instr0, instr1 int
	c.Check(0x200, 1, unsafe.Pointer(&instr0), false, true, unsafe.Pointer(&t0), w0, ls)
	c.Check(0x200, 1, unsafe.Pointer(&instr1), false, true, unsafe.Pointer(&t1), w1, ls)

	if len(races) != 0 {
		t.Fatalf("got %d races, want 0 (shared lockset should mask it)", len(races))
	}
}

func TestCheckerSpansMultipleBytes(t *testing.T) {
	// 4-byte leaf pages, so GetAllocated (which sees pages, not
	// individual cells) can tell where the access stopped.
	mem := shadow.New(4, 10, 16, shadow.Byte)
	c := &Checker{Shadow: mem, Granularity: shadow.Byte}
	var tp, instr int
	l := label.New()
	c.Check(0x300, 4, unsafe.Pointer(&instr), false, true, unsafe.Pointer(&tp), l, lockset.LockSet{})
	for _, a := range []uint64{0x300, 0x301, 0x302, 0x303} {
		if mem.GetAllocated(a) == nil {
			t.Errorf("byte %#x was not touched by a 4-byte access starting at 0x300", a)
		}
	}
	if mem.GetAllocated(0x304) != nil {
		t.Error("byte past the access's end should not have been touched")
	}
}

func TestCheckAccessSkipsInitialTask(t *testing.T) {
	mem := shadow.New(4, 4, 16, shadow.Byte)
	c := &Checker{
		Shadow:      mem,
		Granularity: shadow.Byte,
		Querier: fakeQuerier{
			infoOK: true,
			info:   ompt.TaskInfo{Type: ompt.TaskInitial, Data: &ompt.TaskData{}},
		},
	}
	var instr int
	c.CheckAccess(unsafe.Pointer(uintptr(0x400)), 1, unsafe.Pointer(&instr), false, true)
	if mem.GetAllocated(0x400) != nil {
		t.Fatal("the initial task's accesses should not reach shadow memory")
	}
}

func TestCheckAccessSkipsInReduction(t *testing.T) {
	mem := shadow.New(4, 4, 16, shadow.Byte)
	c := &Checker{
		Shadow:      mem,
		Granularity: shadow.Byte,
		Querier: fakeQuerier{
			infoOK: true,
			info: ompt.TaskInfo{
				Type: ompt.TaskImplicit,
				Data: &ompt.TaskData{InReduction: true},
			},
		},
	}
	var instr int
	c.CheckAccess(unsafe.Pointer(uintptr(0x400)), 1, unsafe.Pointer(&instr), false, true)
	if mem.GetAllocated(0x400) != nil {
		t.Fatal("an access made mid-reduction should not reach shadow memory")
	}
}

func TestCheckAccessFiltersThreadPrivateBelowExit(t *testing.T) {
	mem := shadow.New(4, 4, 16, shadow.Byte)
	c := &Checker{
		Shadow:      mem,
		Granularity: shadow.Byte,
		Querier: fakeQuerier{
			infoOK:  true,
			base:    0x1000,
			size:    0x1000,
			stackOK: true,
			info: ompt.TaskInfo{
				Type:      ompt.TaskImplicit,
				Data:      &ompt.TaskData{},
				TaskFrame: 0x1500,
			},
		},
	}
	var instr int
	c.CheckAccess(unsafe.Pointer(uintptr(0x1100)), 1, unsafe.Pointer(&instr), false, true)
	if mem.GetAllocated(0x1100) != nil {
		t.Fatal("a dead thread-private address below the exit frame should not reach shadow memory")
	}
}

func TestCheckAccessChecksNonThreadPrivate(t *testing.T) {
	mem := shadow.New(4, 4, 16, shadow.Byte)
	c := &Checker{
		Shadow:      mem,
		Granularity: shadow.Byte,
		Querier: fakeQuerier{
			infoOK:  true,
			base:    0x1000,
			size:    0x1000,
			stackOK: true,
			info: ompt.TaskInfo{
				Type:      ompt.TaskImplicit,
				Data:      &ompt.TaskData{Label: label.New()},
				TaskFrame: 0x1500,
			},
		},
	}
	var instr int
	c.CheckAccess(unsafe.Pointer(uintptr(0x2000)), 1, unsafe.Pointer(&instr), false, true)
	if mem.GetAllocated(0x2000) == nil {
		t.Fatal("a heap address outside the accessing thread's stack should reach shadow memory")
	}
}
