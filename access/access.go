// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package access implements CheckAccess, the per-access orchestration
// of spec §4.5: given one load/store, it classifies data sharing,
// builds a Record, and runs checkDataRace against every byte the
// access touches.
package access

import (
	"log"
	"sync/atomic"
	"unsafe"

	"github.com/aclements/go-romp/history"
	"github.com/aclements/go-romp/label"
	"github.com/aclements/go-romp/lockset"
	"github.com/aclements/go-romp/ompt"
	"github.com/aclements/go-romp/record"
	"github.com/aclements/go-romp/shadow"
)

// Logger is used for the "warn at most once" diagnostics of spec §7.
// Tests may replace it to capture output, mirroring stress2's
// reporter taking an io.Writer.
var Logger = log.Default()

var warnedMissingInfo int32

// DataSharingClass classifies an address relative to the accessing
// task's stack frame (spec §4.5 step 4, fleshed out from the
// original's DataSharing.h).
type DataSharingClass int

const (
	NonThreadPrivate DataSharingClass = iota
	ThreadPrivateBelowExit
	ThreadPrivateAboveExit
	Undefined
)

// ClassifyDataSharing implements the original's analyzeDataSharing:
// an address below the task's current exit frame on its own stack is
// thread-private and can never be observed by another task, so it can
// be dropped before ever reaching shadow memory (§9's filtering
// optimization, made concrete per SPEC_FULL.md). stackBase/stackSize
// describe the accessing thread's stack (from
// ompt.RuntimeQuerier.GetThreadStackInfo); exitFrame is the task's
// current exit frame (from ompt.TaskInfo.TaskFrame).
func ClassifyDataSharing(addr, stackBase, stackSize, exitFrame uintptr) DataSharingClass {
	if addr < stackBase || addr >= stackBase+stackSize {
		return NonThreadPrivate
	}
	if exitFrame == 0 {
		return Undefined
	}
	// Stacks grow down: addresses below the exit frame belong to
	// frames already unwound past, i.e. dead by the time any other
	// task could observe them.
	if addr < exitFrame {
		return ThreadPrivateBelowExit
	}
	return ThreadPrivateAboveExit
}

// Checker orchestrates AccessCheck against one shadow.Memory. A
// process normally has exactly one, reached through detector's
// process-wide singleton (spec §9).
type Checker struct {
	Shadow *shadow.Memory

	// Granularity is how many bytes of an access share one
	// history.Cell; it must match Shadow's own granularity.
	Granularity shadow.Granularity

	// OnRace is invoked for every confirmed race (spec §4.5 step
	// 6c). The caller (package detector) is responsible for
	// setting the global race flag and formatting a diagnostic.
	OnRace func(byteAddr uintptr, race history.Race)

	// Querier answers the task/thread queries CheckAccess issues
	// (spec §4.5 steps 2-4). It is nil until the embedding runtime
	// tool has one to hand over; CheckAccess treats a nil Querier
	// the same as an unavailable query.
	Querier ompt.RuntimeQuerier
}

// CheckAccess is the Checker's implementation of the instrumentation
// entry point (spec §6, ompt.CheckAccessFunc): it runs the task-info
// dispatch of spec §4.5 steps 2-4 — skip the initial task, skip a task
// mid-reduction, classify the address against the accessing thread's
// stack to drop reads/writes that are still thread-private below the
// task's exit frame — before handing the survivors to Check for the
// per-byte race check of steps 5-7. Gating on the detector's global
// init flag (step 1) is the caller's job (see detector.Detector.CheckAccess).
func (c *Checker) CheckAccess(address unsafe.Pointer, bytesAccessed uint32, instrAddress unsafe.Pointer, hasHardwareLock, isWrite bool) {
	if c.Querier == nil {
		WarnMissingInfoOnce("runtime querier")
		return
	}
	info, ok := c.Querier.GetTaskInfo(0)
	if !ok {
		WarnMissingInfoOnce("task info")
		return
	}
	if info.Type == ompt.TaskInitial {
		return
	}
	task := info.Data
	if task == nil {
		WarnMissingInfoOnce("task data")
		return
	}
	if task.InReduction {
		return
	}

	addr := uintptr(address)
	if stackBase, stackSize, ok := c.Querier.GetThreadStackInfo(); ok {
		if ClassifyDataSharing(addr, stackBase, stackSize, info.TaskFrame) == ThreadPrivateBelowExit {
			return
		}
	}

	c.Check(addr, bytesAccessed, instrAddress, hasHardwareLock, isWrite, unsafe.Pointer(task), task.Label, task.Lockset)
}

// Check runs spec §4.5's per-access orchestration. curLabel and
// curLockset are the calling task's current state; taskPtr/instrPtr
// identify the task and the callsite for diagnostics. hasHardwareLock
// mirrors the instrumentation entry point's own parameter (spec §6).
// Check does not consult the detector's global init flag itself; the
// caller is expected to gate on it (spec §4.5 step 1).
func (c *Checker) Check(addr uintptr, size uint32, instrPtr unsafe.Pointer, hasHardwareLock, isWrite bool, taskPtr unsafe.Pointer, curLabel label.Label, curLockset lockset.LockSet) {
	if size == 0 {
		return
	}
	rec := record.New(isWrite, curLabel, curLockset, taskPtr, instrPtr)

	step := uintptr(1) << granularityShift(c.Granularity)
	start := addr &^ (step - 1)
	end := addr + uintptr(size)
	for b := start; b < end; b += step {
		cell := c.Shadow.GetOrCreate(uint64(b))
		if race, found := cell.Check(rec, hasHardwareLock); found {
			if c.OnRace != nil {
				c.OnRace(b, race)
			}
		}
	}
}

func granularityShift(g shadow.Granularity) uint {
	switch g {
	case shadow.Byte:
		return 0
	case shadow.Word:
		return 2
	case shadow.Longword:
		return 3
	default:
		return 0
	}
}

// WarnMissingInfoOnce logs the "missing required info" diagnostic of
// spec §7 at most once per process, since a busy instrumented program
// could otherwise flood the log on every subsequent check that hits
// the same unavailable query.
func WarnMissingInfoOnce(context string) {
	if !atomic.CompareAndSwapInt32(&warnedMissingInfo, 0, 1) {
		return
	}
	Logger.Printf("access: task/parallel/thread info unavailable (%s); skipping check", context)
}
