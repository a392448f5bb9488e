// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package events implements EventHandlers (spec §4.7): adapters from
// the runtime-tool callbacks of package ompt to package mutation's
// pure label transformations and to shadow-memory cell lifecycle
// (recycling on task_schedule).
package events

import (
	"fmt"

	"github.com/aclements/go-romp/internal/lockorder"
	"github.com/aclements/go-romp/mutation"
	"github.com/aclements/go-romp/ompt"
	"github.com/aclements/go-romp/shadow"
)

// Handlers wires runtime callbacks to label mutation and shadow-memory
// recycling. A process has exactly one, reached through detector's
// top-level wiring.
type Handlers struct {
	Shadow *shadow.Memory

	// Querier answers the task-memory query TaskSchedule issues
	// (spec §4.7 "Task schedule"). Nil falls back to the TaskData
	// fields a caller populated by hand, which is what the package's
	// own tests do.
	Querier ompt.RuntimeQuerier

	// LockOrder, if set, accumulates a dynamic lock-order graph: an
	// edge from every lock a task already holds to each new lock it
	// acquires while holding it. Nil disables the feed.
	LockOrder *lockorder.Graph

	taskGroupSeq uint32
}

// ParallelBegin allocates a ParRegionData for a newly entered parallel
// region (spec §4.7 "Parallel begin").
func (h *Handlers) ParallelBegin(numThreads int, flags uint32) *ompt.ParRegionData {
	return &ompt.ParRegionData{NumThreads: numThreads, Flags: flags}
}

// ParallelEnd frees a ParRegionData (spec §4.7 "Parallel end"). The
// region data has no resources beyond the struct itself; this exists
// so call sites mirror the begin/end pairing of every other handler.
func (h *Handlers) ParallelEnd(region *ompt.ParRegionData) {}

// ImplicitTaskBegin creates the child TaskData for implicit worker
// index i of width n, descending from the parent task's label.
func (h *Handlers) ImplicitTaskBegin(parent *ompt.TaskData, i, n uint64) *ompt.TaskData {
	return &ompt.TaskData{
		Label:   mutation.ImplicitTaskBegin(parent.Label, i, n),
		Lockset: parent.Lockset,
	}
}

// ImplicitTaskEnd retires a finished implicit worker. When index is 0
// (the region's "primary" implicit task, which continues as the
// parent's own thread of execution after the region), it rewrites the
// parent's label to carry forward the worker's final barrier offset
// (spec §4.7 "on end of index 0, rewrite the parent label").
func (h *Handlers) ImplicitTaskEnd(parent, child *ompt.TaskData, index uint64) {
	if index == 0 {
		parent.Label = mutation.ImplicitTaskEnd(parent.Label, child.Label)
	}
}

// TaskCreate allocates the child TaskData for an explicit task and
// registers it in the parent's outstanding-children list (spec §4.7
// "Task create").
func (h *Handlers) TaskCreate(parent *ompt.TaskData) *ompt.TaskData {
	child, updatedParent := mutation.ExplicitTaskCreate(parent.Label)
	parent.Label = updatedParent
	childData := &ompt.TaskData{Label: child}
	parent.ChildExplicitTasks = append(parent.ChildExplicitTasks, childData)
	return childData
}

// TaskSchedule handles a task being preempted or completing: it
// recycles the shadow-memory range the task is known to have touched
// (spec §4.7 "Task schedule"). It prefers the runtime's own
// task-memory query over the TaskData fields a caller may have
// populated by hand, since the query reflects the task's state at the
// moment of the callback rather than whatever was last written to
// TaskData.
func (h *Handlers) TaskSchedule(task *ompt.TaskData) {
	lo, hi := task.LowestAccessedAddr, task.ExitFrame
	if h.Querier != nil {
		if base, size, ok := h.Querier.GetTaskMemoryInfo(); ok {
			lo, hi = base, base+size
		}
	}
	if lo == 0 || hi == 0 {
		return
	}
	h.Shadow.RecycleRange(uint64(lo), uint64(hi))
}

// SyncRegion applies the label mutation matching a barrier, taskwait,
// or taskgroup begin/end (spec §4.7 "Sync region begin/end"). end
// reports whether this is the region's end callback. Barrier and
// taskwait change the label only on end; taskgroup applies
// TaskgroupBegin on begin and TaskgroupEnd on end.
func (h *Handlers) SyncRegion(task *ompt.TaskData, kind ompt.SyncKind, end bool) {
	if !end {
		if kind == ompt.SyncTaskgroup {
			h.taskGroupSeq++
			task.Label = mutation.TaskgroupBegin(task.Label, h.taskGroupSeq)
		}
		return
	}
	switch kind {
	case ompt.SyncBarrier:
		task.Label = mutation.BarrierEnd(task.Label)
	case ompt.SyncTaskwait:
		task.Label = mutation.TaskwaitEnd(task.Label)
		parentPhase := task.Label.LastKth(1).Phase()
		for _, child := range task.ChildExplicitTasks {
			child.Label = mutation.MarkTaskwaited(child.Label, parentPhase)
		}
		task.ChildExplicitTasks = nil
	case ompt.SyncTaskgroup:
		phase := task.Label.LastKth(1).Phase()
		task.Label = mutation.TaskgroupEnd(task.Label)
		for _, child := range task.ChildExplicitTasks {
			child.Label = mutation.MarkTaskGroupSync(child.Label, phase)
		}
	}
}

// MutexAcquired applies the ordered-section mutation for an `ordered`
// construct, or adds the lock identifier to the task's lockset
// otherwise (spec §4.7 "Mutex acquired/released"). For a plain lock it
// also records, in LockOrder, one edge from every lock the task
// already holds to the newly acquired one — the same "held-lock stack
// at acquire time" rule cmd/romplockcheck applies statically over SSA,
// applied here at runtime over the task's actual lockset.
func (h *Handlers) MutexAcquired(task *ompt.TaskData, kind ompt.MutexKind, waitID uint64) {
	if kind == ompt.MutexOrdered {
		task.Label = mutation.OrderedSectionStep(task.Label)
		return
	}
	if h.LockOrder != nil {
		to := lockName(waitID)
		site := fmt.Sprintf("task %s", task.Label)
		for _, held := range task.Lockset.Locks() {
			h.LockOrder.Add(lockName(held), to, site)
		}
	}
	task.Lockset = task.Lockset.Add(waitID)
}

// MutexReleased applies the ordered-section mutation on `ordered`
// leave, or removes the lock identifier from the task's lockset.
func (h *Handlers) MutexReleased(task *ompt.TaskData, kind ompt.MutexKind, waitID uint64) {
	if kind == ompt.MutexOrdered {
		task.Label = mutation.OrderedSectionStep(task.Label)
		return
	}
	if ls, ok := task.Lockset.Remove(waitID); ok {
		task.Lockset = ls
	}
}

func lockName(waitID uint64) string {
	return fmt.Sprintf("%#x", waitID)
}

// Work applies the workshare mutation matching kind (spec §4.7
// "Work"). end reports whether this is the construct's end callback.
func (h *Handlers) Work(task *ompt.TaskData, kind ompt.WorkKind, end bool) {
	if end {
		switch kind {
		case ompt.WorkLoop, ompt.WorkSections, ompt.WorkWorkshare, ompt.WorkDistribute, ompt.WorkTaskloop:
			task.Label = mutation.WorkshareEnd(task.Label)
		case ompt.WorkSingleExecutor, ompt.WorkSingleOther:
			task.Label = mutation.SingleEnd(task.Label)
		}
		return
	}
	switch kind {
	case ompt.WorkSections:
		task.Label = mutation.WorkshareBegin(task.Label, true)
	case ompt.WorkSingleExecutor:
		task.Label = mutation.SingleBeginExecutor(task.Label)
	case ompt.WorkSingleOther:
		task.Label = mutation.SingleBeginOther(task.Label)
	default:
		task.Label = mutation.WorkshareBegin(task.Label, false)
	}
}

// Dispatch fills in the placeholder WorkShare segment with the
// iteration or section id (spec §4.7 "Dispatch").
func (h *Handlers) Dispatch(task *ompt.TaskData, kind ompt.DispatchKind, instance uint64) {
	if kind == ompt.DispatchSection {
		task.Label = mutation.SectionDispatch(task.Label, instance)
		return
	}
	task.Label = mutation.IterationDispatch(task.Label, instance)
}

// Reduction sets or clears the inReduction flag; while set, data-race
// checks for the task are skipped by its caller (spec §4.7
// "Reduction").
func (h *Handlers) Reduction(task *ompt.TaskData, active bool) {
	task.InReduction = active
}

// ThreadBegin creates a ThreadData and records the thread's stack
// bounds (spec §4.7 "Thread begin/end").
func (h *Handlers) ThreadBegin(stackBase, stackSize uintptr) *ompt.ThreadData {
	return &ompt.ThreadData{StackBase: stackBase, StackSize: stackSize}
}

// ThreadEnd releases a ThreadData. It exists, despite having no
// resources of its own to free, so every begin callback has a
// symmetric end handler.
func (h *Handlers) ThreadEnd(data *ompt.ThreadData) {}
