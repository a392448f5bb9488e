// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package record defines the Record type: the immutable snapshot of a
// single memory access stored in an AccessHistory cell (spec §3, C4).
package record

import (
	"fmt"
	"unsafe"

	"github.com/aclements/go-romp/label"
	"github.com/aclements/go-romp/lockset"
)

// Record is one past memory access, as recorded in a shadow-memory
// cell. It is immutable once constructed; a Label and LockSet are
// themselves immutable value types, so a Record may be read by any
// number of goroutines once it is placed under the cell's mutex.
type Record struct {
	IsWrite  bool
	Label    label.Label
	Lockset  lockset.LockSet
	TaskPtr  unsafe.Pointer
	InstrPtr unsafe.Pointer
}

// New builds a Record for the current access.
func New(isWrite bool, l label.Label, ls lockset.LockSet, taskPtr, instrPtr unsafe.Pointer) Record {
	return Record{IsWrite: isWrite, Label: l, Lockset: ls, TaskPtr: taskPtr, InstrPtr: instrPtr}
}

func (r Record) String() string {
	kind := "R"
	if r.IsWrite {
		kind = "W"
	}
	return fmt.Sprintf("%s@%p label=%s lockset=%s task=%p", kind, r.InstrPtr, r.Label, r.Lockset, r.TaskPtr)
}
