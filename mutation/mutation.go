// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mutation implements LabelMutation: one pure function per
// runtime event, each producing a new label.Label from an old one
// (spec §4.2's event table). Every function here is side-effect free;
// callers own replacing a task's stored "current label" with the
// result.
package mutation

import "github.com/aclements/go-romp/label"

// InitialTask returns the label for a newly created initial task: a
// single Implicit segment of offset 0, span 1.
func InitialTask() label.Label {
	return label.New()
}

// ImplicitTaskBegin returns the child label for implicit worker index
// i of width n, descending from the parallel region's parent label.
func ImplicitTaskBegin(parent label.Label, i, n uint64) label.Label {
	return parent.Append(label.NewImplicit(i, n))
}

// ImplicitTaskEnd returns the parent's label after implicit worker
// index 0 of the region ends: the parent pops its last segment and
// appends a copy of the child's own worker segment, which captures
// whatever barrier offset the child reached before the region closed
// (see the note on BarrierEnd for why this package reads the source's
// "second-last segment" language as the worker's own segment rather
// than the one above it).
func ImplicitTaskEnd(parent, child label.Label) label.Label {
	barrierSeg := child.LastKth(1)
	return parent.Pop().Append(barrierSeg)
}

// ExplicitTaskCreate returns the new child task's label and the
// updated parent label (its last segment's taskCreate counter bumped)
// for an explicit task construct. The child descends from the
// already-bumped parent segment, so that two children spawned in
// sequence from the same parent carry distinct taskCreate values at
// their shared ancestor — the signal HappensBefore uses to tell
// unsynchronized siblings apart.
func ExplicitTaskCreate(parent label.Label) (child, updatedParent label.Label) {
	last := parent.LastKth(1)
	updatedParent = parent.SetLastKth(1, last.WithTaskCreate(last.TaskCreate()+1))
	child = updatedParent.Append(label.NewExplicit())
	return child, updatedParent
}

// BarrierEnd returns l after a barrier completes: the calling worker's
// own Implicit segment (the label's innermost segment, in the common
// case of a barrier with no outstanding workshare or explicit-task
// nesting) has its offset advanced by its span, moving the worker into
// its next barrier-separated stage.
//
// The source's narrative description of this rule names "the segment
// before the innermost" rather than the innermost itself; taken
// literally against a label shaped [initial, worker] that reading
// would bump the span-1 initial-task segment, which can never advance
// without violating the offset<span invariant. Bumping the worker's
// own segment is what the S2 scenario (§8) actually requires and is
// the reading used throughout this package.
func BarrierEnd(l label.Label) label.Label {
	seg := l.LastKth(1)
	return l.SetLastKth(1, seg.WithOffset(seg.Offset()+seg.Span()))
}

// TaskwaitEnd returns l after a taskwait completes: its last
// segment's taskwait counter is bumped. Children outstanding at the
// time of the taskwait are marked via MarkTaskwaited, called
// separately by the event handler for each of the parent's
// childExplicitTasks (spec §4.2, §4.7).
func TaskwaitEnd(l label.Label) label.Label {
	last := l.LastKth(1)
	return l.SetLastKth(1, last.WithTaskwait(last.Taskwait()+1))
}

// MarkTaskwaited returns childLabel with its last segment marked
// taskwaited, recording the parent's ordered-section phase at the
// moment of the taskwait (spec §4.2 "mark all outstanding explicit
// children's last segment as taskwaited").
func MarkTaskwaited(childLabel label.Label, parentPhase uint64) label.Label {
	last := childLabel.LastKth(1)
	last = last.WithTaskwaited(true).WithTaskwaitPhase(parentPhase)
	return childLabel.SetLastKth(1, last)
}

// OrderedSectionStep returns l after an ordered-section enter or
// leave: the last segment's phase counter is bumped (spec §4.4.a's
// even=outside/odd=inside encoding falls directly out of this).
func OrderedSectionStep(l label.Label) label.Label {
	last := l.LastKth(1)
	return l.SetLastKth(1, last.WithPhase(last.Phase()+1))
}

// WorkshareBegin returns l with a placeholder WorkShare segment
// appended, for a loop, sections, or any other worksharing construct
// that dispatches iterations or sections (spec §4.2, "Workshare loop
// begin" / "Sections begin").
func WorkshareBegin(l label.Label, isSection bool) label.Label {
	return l.Append(label.NewWorkSharePlaceholder(isSection))
}

// WorkshareEnd returns l with its placeholder WorkShare segment
// popped and the outer (now innermost) segment's loopCount bumped.
func WorkshareEnd(l label.Label) label.Label {
	popped := l.Pop()
	outer := popped.LastKth(1)
	return popped.SetLastKth(1, outer.WithLoopCount(outer.LoopCount()+1))
}

// SingleBeginExecutor returns l with a WorkShare segment appended for
// the thread chosen to execute a single construct's body.
func SingleBeginExecutor(l label.Label) label.Label {
	return l.Append(label.NewSingleExecutor())
}

// SingleBeginOther returns l with a WorkShare segment appended for a
// thread that does not execute a single construct's body.
func SingleBeginOther(l label.Label) label.Label {
	return l.Append(label.NewSingleOther())
}

// SingleEnd returns l with its WorkShare segment popped.
func SingleEnd(l label.Label) label.Label {
	return l.Pop()
}

// IterationDispatch returns l with its last (placeholder) WorkShare
// segment replaced to carry iteration id x.
func IterationDispatch(l label.Label, x uint64) label.Label {
	seg := l.LastKth(1).WithWorkShareID(x, false)
	return l.SetLastKth(1, seg)
}

// SectionDispatch returns l with its last (placeholder) WorkShare
// segment replaced to carry section id p.
func SectionDispatch(l label.Label, p uint64) label.Label {
	seg := l.LastKth(1).WithWorkShareID(p, true)
	return l.SetLastKth(1, seg)
}

// TaskgroupBegin returns l with its last segment's taskGroupLevel
// incremented and a new taskGroupId assigned.
func TaskgroupBegin(l label.Label, newID uint32) label.Label {
	last := l.LastKth(1)
	return l.SetLastKth(1, last.WithTaskGroup(last.TaskGroupLevel()+1, newID))
}

// TaskgroupEnd returns l with its last segment's taskGroupLevel
// decremented. The parent's current ordered-section phase, needed to
// mark direct explicit children via MarkTaskGroupSync, is whatever the
// caller passes to that function separately (spec §4.2 "Taskgroup
// end").
func TaskgroupEnd(l label.Label) label.Label {
	last := l.LastKth(1)
	return l.SetLastKth(1, last.WithTaskGroup(last.TaskGroupLevel()-1, last.TaskGroupID()))
}

// MarkTaskGroupSync returns childLabel with its last segment marked as
// synced by the taskgroup end that just closed, recording the
// enclosing region's current ordered-section phase.
func MarkTaskGroupSync(childLabel label.Label, phase uint64) label.Label {
	last := childLabel.LastKth(1)
	last = last.WithTaskGroupSync(true).WithTaskGroupPhase(phase)
	return childLabel.SetLastKth(1, last)
}
