// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package label implements the offset-span task label: the bit-packed
// Segment type that describes one level of the fork-join task tree,
// and the Label type, an immutable ordered sequence of segments that
// is the comparison primitive for the happens-before decision
// procedure.
package label

import "fmt"

// Kind identifies which of the three segment variants a Segment is.
// The low two bits of a packed segment's value hold this tag, matching
// the original romp encoding (eImplicit=0x1, eExplicit=0x2,
// eWorkShare=0x3).
type Kind uint8

const (
	Implicit Kind = 1
	Explicit Kind = 2
	WorkShare Kind = 3
)

func (k Kind) String() string {
	switch k {
	case Implicit:
		return "Implicit"
	case Explicit:
		return "Explicit"
	case WorkShare:
		return "WorkShare"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Field widths and shifts for the packed 64-bit word, per spec §4.1.
const (
	shiftKind       = 0
	shiftIsSection  = 2
	shiftTaskwaited = 3
	shiftGroupSync  = 4
	shiftTaskCreate = 5
	shiftLoopCount  = 20
	shiftPhase      = 24
	shiftTaskwait   = 28
	shiftSpan       = 32
	shiftOffset     = 48

	maskKind  = 0x3
	maskBit   = 0x1
	maxTaskCreate = 1<<15 - 1
	maxLoopCount  = 1<<4 - 1
	maxPhase      = 1<<4 - 1
	maxTaskwait   = 1<<4 - 1
	maxSpan       = 1<<16 - 1
	maxOffset     = 1<<16 - 1
)

// Segment is a single, immutable fork-join layer descriptor. The
// common fields (kind, offset/span, and the sync counters) are packed
// into v; taskGroup and orderSec hold the two fields that don't fit
// cleanly alongside it. workShareID is only meaningful when Kind() ==
// WorkShare.
//
// Segment is a value type: every "mutator" in this package and in
// package mutation returns a new Segment rather than editing one in
// place, so Segments may be freely shared between Label versions.
type Segment struct {
	v           uint64
	taskGroup   uint32 // (taskGroupId << 16) | taskGroupLevel
	orderSec    uint32 // (taskGroupPhase << 16) | taskwaitPhase
	workShareID uint64 // top 2 bits: isSingleExecutor, isSingleOther
}

const (
	workShareExecutorBit = uint64(1) << 63
	workShareOtherBit    = uint64(1) << 62
	workShareIDMask      = workShareExecutorBit | workShareOtherBit
)

func packBit(v uint64, shift uint, set bool) uint64 {
	if set {
		return v | (1 << shift)
	}
	return v &^ (1 << shift)
}

func getBit(v uint64, shift uint) bool {
	return v&(1<<shift) != 0
}

func packField(v uint64, shift uint, mask uint64, x uint64) uint64 {
	if x > mask {
		panic(fmt.Sprintf("label: field value %d exceeds range [0,%d]", x, mask))
	}
	return (v &^ (mask << shift)) | (x << shift)
}

func getField(v uint64, shift uint, mask uint64) uint64 {
	return (v >> shift) & mask
}

// NewImplicit returns an Implicit segment for worker offset of span,
// with all counters zeroed. It panics if offset >= span (spec §3
// invariant) or span exceeds its encoded width.
func NewImplicit(offset, span uint64) Segment {
	if span == 0 || span > maxSpan {
		panic(fmt.Sprintf("label: span %d out of range", span))
	}
	if offset >= span {
		panic(fmt.Sprintf("label: offset %d out of range for span %d", offset, span))
	}
	if offset > maxOffset {
		panic(fmt.Sprintf("label: offset %d out of range", offset))
	}
	var s Segment
	s.v = packField(s.v, shiftKind, maskKind, uint64(Implicit))
	s.v = packField(s.v, shiftSpan, maxSpan, span)
	s.v = packField(s.v, shiftOffset, maxOffset, offset)
	return s
}

// NewExplicit returns an Explicit segment (span=1, offset unused).
func NewExplicit() Segment {
	var s Segment
	s.v = packField(s.v, shiftKind, maskKind, uint64(Explicit))
	s.v = packField(s.v, shiftSpan, maxSpan, 1)
	return s
}

// workSharePlaceholderBit is tracked in workShareID, below the two
// single-construct flag bits, so that it travels with the id field it
// gates rather than with the packed word shared by every segment kind.
const workSharePlaceholderBit = uint64(1) << 61

// NewWorkSharePlaceholder returns a placeholder WorkShare segment, as
// inserted at workshare-construct begin before the first iteration or
// section is dispatched.
func NewWorkSharePlaceholder(isSection bool) Segment {
	var s Segment
	s.v = packField(s.v, shiftKind, maskKind, uint64(WorkShare))
	s.v = packField(s.v, shiftSpan, maxSpan, 1)
	s.v = packBit(s.v, shiftIsSection, isSection)
	s.workShareID = workSharePlaceholderBit
	return s
}

// Kind returns the segment's variant tag.
func (s Segment) Kind() Kind {
	return Kind(getField(s.v, shiftKind, maskKind))
}

// Span returns the segment's span (N for Implicit, 1 for Explicit and
// WorkShare).
func (s Segment) Span() uint64 { return getField(s.v, shiftSpan, maxSpan) }

// Offset returns the segment's offset (only meaningful for Implicit).
func (s Segment) Offset() uint64 { return getField(s.v, shiftOffset, maxOffset) }

// WithOffset returns a copy of an Implicit segment with its offset set
// to x, as happens at barrier end (spec §4.2, "offset += span").
func (s Segment) WithOffset(x uint64) Segment {
	s.v = packField(s.v, shiftOffset, maxOffset, x)
	return s
}

// IsSection reports whether a WorkShare segment represents a sections
// construct dispatch rather than a loop iteration.
func (s Segment) IsSection() bool { return getBit(s.v, shiftIsSection) }

// IsTaskwaited reports whether an Explicit segment has been marked
// taskwaited by its parent (§4.2 "Taskwait end").
func (s Segment) IsTaskwaited() bool { return getBit(s.v, shiftTaskwaited) }

// WithTaskwaited returns a copy with the taskwaited flag set.
func (s Segment) WithTaskwaited(v bool) Segment {
	s.v = packBit(s.v, shiftTaskwaited, v)
	return s
}

// IsTaskGroupSync reports whether an Explicit segment has been marked
// as synced by a taskgroup end (§4.2 "Taskgroup end").
func (s Segment) IsTaskGroupSync() bool { return getBit(s.v, shiftGroupSync) }

// WithTaskGroupSync returns a copy with the taskgroup-synced flag set.
func (s Segment) WithTaskGroupSync(v bool) Segment {
	s.v = packBit(s.v, shiftGroupSync, v)
	return s
}

// TaskCreate returns the taskCreate counter (number of explicit tasks
// spawned directly from this segment so far).
func (s Segment) TaskCreate() uint64 { return getField(s.v, shiftTaskCreate, maxTaskCreate) }

// WithTaskCreate returns a copy with the taskCreate counter set. It
// panics if x exceeds the encoded width (spec §4.1, "over-range
// counter is a programmer error").
func (s Segment) WithTaskCreate(x uint64) Segment {
	s.v = packField(s.v, shiftTaskCreate, maxTaskCreate, x)
	return s
}

// LoopCount returns the loopCount counter.
func (s Segment) LoopCount() uint64 { return getField(s.v, shiftLoopCount, maxLoopCount) }

// WithLoopCount returns a copy with loopCount set.
func (s Segment) WithLoopCount(x uint64) Segment {
	s.v = packField(s.v, shiftLoopCount, maxLoopCount, x)
	return s
}

// Phase returns the ordered-section rank counter.
func (s Segment) Phase() uint64 { return getField(s.v, shiftPhase, maxPhase) }

// WithPhase returns a copy with phase set.
func (s Segment) WithPhase(x uint64) Segment {
	s.v = packField(s.v, shiftPhase, maxPhase, x)
	return s
}

// Taskwait returns the taskwait counter.
func (s Segment) Taskwait() uint64 { return getField(s.v, shiftTaskwait, maxTaskwait) }

// WithTaskwait returns a copy with the taskwait counter set.
func (s Segment) WithTaskwait(x uint64) Segment {
	s.v = packField(s.v, shiftTaskwait, maxTaskwait, x)
	return s
}

// TaskGroupLevel returns the taskgroup nesting depth.
func (s Segment) TaskGroupLevel() uint32 { return uint32(s.taskGroup & 0xffff) }

// TaskGroupID returns the monotonic id of the most recently opened
// taskgroup at this segment.
func (s Segment) TaskGroupID() uint32 { return uint32(s.taskGroup >> 16) }

// WithTaskGroup returns a copy with taskGroupLevel and taskGroupId set.
func (s Segment) WithTaskGroup(level, id uint32) Segment {
	s.taskGroup = (id << 16) | (level & 0xffff)
	return s
}

// TaskwaitPhase returns the parent's ordered-section phase recorded on
// this segment when it was marked taskwaited.
func (s Segment) TaskwaitPhase() uint64 { return uint64(s.orderSec & 0xffff) }

// WithTaskwaitPhase returns a copy with taskwaitPhase set.
func (s Segment) WithTaskwaitPhase(x uint64) Segment {
	s.orderSec = (s.orderSec &^ 0xffff) | (uint32(x) & 0xffff)
	return s
}

// TaskGroupPhase returns the ordered-section phase captured when a
// taskgroup end propagated sync state to this segment.
func (s Segment) TaskGroupPhase() uint64 { return uint64(s.orderSec >> 16) }

// WithTaskGroupPhase returns a copy with taskGroupPhase set.
func (s Segment) WithTaskGroupPhase(x uint64) Segment {
	s.orderSec = (s.orderSec & 0xffff) | (uint32(x) << 16)
	return s
}

// WorkShareID returns the monotonic iteration/section identifier of a
// WorkShare segment.
func (s Segment) WorkShareID() uint64 {
	return s.workShareID &^ (workShareIDMask | workSharePlaceholderBit)
}

// IsPlaceHolder reports whether a WorkShare segment has not yet had an
// iteration or section dispatched to it.
func (s Segment) IsPlaceHolder() bool { return s.workShareID&workSharePlaceholderBit != 0 }

// WithWorkShareID returns a WorkShare segment copy with its id set and
// the placeholder flag cleared, as happens on iteration/section
// dispatch (§4.2).
func (s Segment) WithWorkShareID(id uint64, isSection bool) Segment {
	flags := s.workShareID & workShareIDMask
	s.workShareID = flags | (id &^ (workShareIDMask | workSharePlaceholderBit))
	s.v = packBit(s.v, shiftIsSection, isSection)
	return s
}

// IsSingleExecutor reports whether this WorkShare segment is the
// single-construct's chosen executor.
func (s Segment) IsSingleExecutor() bool { return s.workShareID&workShareExecutorBit != 0 }

// IsSingleOther reports whether this WorkShare segment is one of the
// non-executor threads waiting on a single construct.
func (s Segment) IsSingleOther() bool { return s.workShareID&workShareOtherBit != 0 }

// NewSingleExecutor returns the placeholder-free WorkShare segment
// appended for the thread that executes a single construct's body.
func NewSingleExecutor() Segment {
	var s Segment
	s.v = packField(s.v, shiftKind, maskKind, uint64(WorkShare))
	s.v = packField(s.v, shiftSpan, maxSpan, 1)
	s.workShareID = workShareExecutorBit
	return s
}

// NewSingleOther returns the WorkShare segment appended for threads
// that do not execute a single construct's body.
func NewSingleOther() Segment {
	var s Segment
	s.v = packField(s.v, shiftKind, maskKind, uint64(WorkShare))
	s.v = packField(s.v, shiftSpan, maxSpan, 1)
	s.workShareID = workShareOtherBit
	return s
}

// Equal reports whether two segments are identical in every packed
// field, matching the original's component-wise operator==.
func (s Segment) Equal(o Segment) bool {
	return s.v == o.v && s.taskGroup == o.taskGroup && s.orderSec == o.orderSec && s.workShareID == o.workShareID
}

func (s Segment) String() string {
	switch s.Kind() {
	case Implicit:
		return fmt.Sprintf("Imp(off=%d,span=%d,tw=%d,tc=%d)", s.Offset(), s.Span(), s.Taskwait(), s.TaskCreate())
	case Explicit:
		return fmt.Sprintf("Exp(tw=%d,tgl=%d,twaited=%v)", s.Taskwait(), s.TaskGroupLevel(), s.IsTaskwaited())
	case WorkShare:
		kind := "loop"
		if s.IsSection() {
			kind = "section"
		}
		if s.IsSingleExecutor() {
			kind = "single-exec"
		} else if s.IsSingleOther() {
			kind = "single-other"
		}
		ph := ""
		if s.IsPlaceHolder() {
			ph = ",placeholder"
		}
		return fmt.Sprintf("Work(%s,id=%d%s,phase=%d)", kind, s.WorkShareID(), ph, s.Phase())
	default:
		return "Segment(invalid)"
	}
}
