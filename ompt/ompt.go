// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ompt defines the narrow interfaces package access and
// package events consume from the runtime-tool layer (spec §6): the
// per-task/per-thread/per-region data the core owns the lifecycle of,
// the callback payloads the runtime delivers, and the queries the core
// issues back into the runtime. Everything in this package is a
// boundary type or interface — no logic lives here, matching spec §1's
// "out of scope... consumed via narrow interfaces" for the
// instrumentation and runtime-tool layers themselves.
package ompt

import (
	"unsafe"

	"github.com/aclements/go-romp/label"
	"github.com/aclements/go-romp/lockset"
)

// TaskData is the per-task state the core attaches to the runtime's
// opaque task handle (spec §3 "TaskData (owned by runtime-tool
// interface)"). The runtime treats it as an opaque blob; the core owns
// its lifecycle from task_create/implicit_task begin through the
// matching end callback.
type TaskData struct {
	Label   label.Label
	Lockset lockset.LockSet

	InReduction bool

	// ChildExplicitTasks holds a pointer to every explicit task
	// spawned directly from this one that has not yet been
	// reaped (spec §9: "children must not strongly own their
	// parent" — the reverse direction, parent owning children, is
	// a plain slice since the parent's own lifetime bounds it).
	ChildExplicitTasks []*TaskData

	// LowestAccessedAddr and ExitFrame bound the task-private
	// region scanned for recycling on task_schedule (spec §4.7).
	LowestAccessedAddr uintptr
	ExitFrame          uintptr
}

// ThreadData is the per-OS-thread state the core attaches on
// thread_begin (spec §4.7 "Thread begin/end").
type ThreadData struct {
	StackBase uintptr
	StackSize uintptr
}

// ParRegionData is the per-parallel-region state allocated on
// parallel_begin and freed on parallel_end (spec §4.7).
type ParRegionData struct {
	NumThreads int
	Flags      uint32
}

// TaskType classifies the task a callback payload refers to, per the
// runtime-tool callback interface of spec §6.
type TaskType int

const (
	TaskInitial TaskType = iota
	TaskImplicit
	TaskExplicit
	TaskTarget
)

// SyncKind enumerates the sync_region callback's kind payload.
type SyncKind int

const (
	SyncBarrier SyncKind = iota
	SyncTaskwait
	SyncTaskgroup
	SyncReduction
)

// MutexKind enumerates the mutex_acquired/mutex_released callback's
// kind payload.
type MutexKind int

const (
	MutexOrdered MutexKind = iota
	MutexLock
	MutexCritical
)

// WorkKind enumerates the work begin/end callback's construct kind.
type WorkKind int

const (
	WorkLoop WorkKind = iota
	WorkSections
	WorkSingleExecutor
	WorkSingleOther
	WorkWorkshare
	WorkDistribute
	WorkTaskloop
)

// DispatchKind enumerates the dispatch callback's payload kind.
type DispatchKind int

const (
	DispatchIteration DispatchKind = iota
	DispatchSection
)

// TaskInfo is the result of RuntimeQuerier.GetTaskInfo.
type TaskInfo struct {
	Type       TaskType
	ThreadNum  int
	Data       *TaskData
	TaskFrame  uintptr
	ParallelID uintptr
}

// ParallelInfo is the result of RuntimeQuerier.GetParallelInfo.
type ParallelInfo struct {
	TeamSize int
	Data     *ParRegionData
}

// RuntimeQuerier is the narrow set of runtime queries the core issues
// (spec §6 "Runtime queries"). ancestorLevel of 0 means the calling
// task/region itself; each query returns available=false rather
// than an error when the runtime cannot answer it mid-callback
// (spec §7 "Missing required info... skip the check; warn at most
// once").
type RuntimeQuerier interface {
	GetTaskInfo(ancestorLevel int) (info TaskInfo, available bool)
	GetParallelInfo(ancestorLevel int) (info ParallelInfo, available bool)
	GetThreadData() (data *ThreadData, available bool)
	GetThreadStackInfo() (base, size uintptr, available bool)
	GetTaskMemoryInfo() (base, size uintptr, available bool)
}

// CheckAccessFunc is the instrumentation entry point's signature (spec
// §6): called by the instrumented binary at every load/store.
type CheckAccessFunc func(address unsafe.Pointer, bytesAccessed uint32, instrAddress unsafe.Pointer, hasHardwareLock, isWrite bool)
