// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package events

import (
	"testing"

	"github.com/aclements/go-romp/happensbefore"
	"github.com/aclements/go-romp/internal/lockorder"
	"github.com/aclements/go-romp/label"
	"github.com/aclements/go-romp/mutation"
	"github.com/aclements/go-romp/ompt"
	"github.com/aclements/go-romp/shadow"
)

func newHandlers() *Handlers {
	return &Handlers{Shadow: shadow.New(4, 4, 16, shadow.Byte)}
}

// S4: a taskwait synchronizes the parent's post-taskwait access with
// everything its outstanding explicit children did.
func TestSyncRegionTaskwaitSynchronizes(t *testing.T) {
	h := newHandlers()
	parent := &ompt.TaskData{Label: mutation.InitialTask()}

	child := h.TaskCreate(parent)
	childAccess := child.Label

	h.SyncRegion(parent, ompt.SyncTaskwait, true)

	if len(parent.ChildExplicitTasks) != 0 {
		t.Fatal("taskwait should clear the outstanding-children list")
	}
	if !happensbefore.HappensBefore(childAccess, parent.Label) {
		t.Fatal("child's access should happen-before the parent's post-taskwait access")
	}
}

func TestSyncRegionBarrierAdvancesOffset(t *testing.T) {
	h := newHandlers()
	task := &ompt.TaskData{Label: mutation.InitialTask().Append(label.NewImplicit(0, 4))}
	before := task.Label
	h.SyncRegion(task, ompt.SyncBarrier, true)
	if !happensbefore.HappensBefore(before, task.Label) {
		t.Fatal("access before the barrier should happen-before access after it")
	}
}

func TestMutexAcquiredOrderedStepsPhase(t *testing.T) {
	h := newHandlers()
	task := &ompt.TaskData{Label: mutation.InitialTask().Append(label.NewWorkSharePlaceholder(false))}
	h.MutexAcquired(task, ompt.MutexOrdered, 0)
	if task.Label.LastKth(1).Phase() != 1 {
		t.Fatalf("ordered enter should step phase to 1, got %d", task.Label.LastKth(1).Phase())
	}
	h.MutexReleased(task, ompt.MutexOrdered, 0)
	if task.Label.LastKth(1).Phase() != 2 {
		t.Fatalf("ordered leave should step phase to 2, got %d", task.Label.LastKth(1).Phase())
	}
}

func TestMutexAcquiredLockAddsToLockset(t *testing.T) {
	h := newHandlers()
	task := &ompt.TaskData{Label: mutation.InitialTask()}
	h.MutexAcquired(task, ompt.MutexLock, 0x42)
	if task.Lockset.Len() != 1 {
		t.Fatalf("acquiring a plain lock should add it to the lockset, got len %d", task.Lockset.Len())
	}
	h.MutexReleased(task, ompt.MutexLock, 0x42)
	if task.Lockset.Len() != 0 {
		t.Fatal("releasing the lock should remove it from the lockset")
	}
}

func TestWorkLoopDispatchEnd(t *testing.T) {
	h := newHandlers()
	task := &ompt.TaskData{Label: mutation.InitialTask()}
	h.Work(task, ompt.WorkLoop, false)
	if !task.Label.LastKth(1).IsPlaceHolder() {
		t.Fatal("work begin should append a placeholder")
	}
	h.Dispatch(task, ompt.DispatchIteration, 5)
	if task.Label.LastKth(1).WorkShareID() != 5 {
		t.Fatalf("dispatch should set the iteration id, got %d", task.Label.LastKth(1).WorkShareID())
	}
	h.Work(task, ompt.WorkLoop, true)
	if task.Label.LastKth(1).LoopCount() != 1 {
		t.Fatalf("work end should bump loopCount, got %d", task.Label.LastKth(1).LoopCount())
	}
}

func TestImplicitTaskBeginEndRejoinsParent(t *testing.T) {
	h := newHandlers()
	parent := &ompt.TaskData{Label: mutation.InitialTask()}
	child := h.ImplicitTaskBegin(parent, 0, 4)
	h.SyncRegion(child, ompt.SyncBarrier, true)
	h.ImplicitTaskEnd(parent, child, 0)
	if parent.Label.Length() != 1 {
		t.Fatalf("parent label length should stay 1 after rejoining, got %d", parent.Label.Length())
	}
	if parent.Label.LastKth(1).Offset() != 4 {
		t.Fatalf("parent should carry forward the barrier offset, got %d", parent.Label.LastKth(1).Offset())
	}
}

func TestTaskScheduleRecyclesRange(t *testing.T) {
	h := newHandlers()
	cell := h.Shadow.GetOrCreate(0x100)
	task := &ompt.TaskData{LowestAccessedAddr: 0x100, ExitFrame: 0x108}
	h.TaskSchedule(task)
	if !cell.MemoryRecycled() {
		t.Fatal("TaskSchedule should recycle the task's accessed range")
	}
}

type fixedMemQuerier struct {
	base, size uintptr
	ok         bool
}

func (q fixedMemQuerier) GetTaskInfo(int) (ompt.TaskInfo, bool) { return ompt.TaskInfo{}, false }
func (q fixedMemQuerier) GetParallelInfo(int) (ompt.ParallelInfo, bool) {
	return ompt.ParallelInfo{}, false
}
func (q fixedMemQuerier) GetThreadData() (*ompt.ThreadData, bool) { return nil, false }
func (q fixedMemQuerier) GetThreadStackInfo() (uintptr, uintptr, bool) { return 0, 0, false }
func (q fixedMemQuerier) GetTaskMemoryInfo() (uintptr, uintptr, bool) { return q.base, q.size, q.ok }

func TestTaskScheduleQueriesRuntimeMemoryInfo(t *testing.T) {
	h := newHandlers()
	h.Querier = fixedMemQuerier{base: 0x200, size: 0x8, ok: true}
	cell := h.Shadow.GetOrCreate(0x204)
	// Stale TaskData fields that don't cover 0x204; the querier's
	// answer should win.
	task := &ompt.TaskData{LowestAccessedAddr: 0x100, ExitFrame: 0x108}
	h.TaskSchedule(task)
	if !cell.MemoryRecycled() {
		t.Fatal("TaskSchedule should recycle the range GetTaskMemoryInfo reports, not the stale TaskData fields")
	}
}

func TestMutexAcquiredFeedsLockOrder(t *testing.T) {
	h := newHandlers()
	h.LockOrder = lockorder.NewGraph()
	task := &ompt.TaskData{Label: mutation.InitialTask()}

	h.MutexAcquired(task, ompt.MutexLock, 0x1)
	h.MutexAcquired(task, ompt.MutexLock, 0x2)

	if sites := h.LockOrder.Sites(lockName(0x1), lockName(0x2)); len(sites) == 0 {
		t.Fatal("acquiring lock 0x2 while holding 0x1 should add an edge 0x1 -> 0x2")
	}
	if cycles := h.LockOrder.FindCycles(); len(cycles) != 0 {
		t.Fatalf("a single acquire order shouldn't form a cycle, got %v", cycles)
	}
}

func TestMutexAcquiredOrderedSkipsLockOrder(t *testing.T) {
	h := newHandlers()
	h.LockOrder = lockorder.NewGraph()
	task := &ompt.TaskData{Label: mutation.InitialTask().Append(label.NewWorkSharePlaceholder(false))}

	h.MutexAcquired(task, ompt.MutexOrdered, 0)
	if len(h.LockOrder.Sites(lockName(0), lockName(0))) != 0 {
		t.Fatal("an ordered-section step should not be recorded as a lock edge")
	}
}
