// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mutation

import (
	"testing"

	"github.com/aclements/go-romp/label"
)

func TestInitialTask(t *testing.T) {
	l := InitialTask()
	if l.Length() != 1 || l.Kth(0).Kind() != label.Implicit || l.Kth(0).Offset() != 0 || l.Kth(0).Span() != 1 {
		t.Fatalf("InitialTask() = %s", l)
	}
}

func TestImplicitTaskBeginEnd(t *testing.T) {
	parent := InitialTask()
	child0 := ImplicitTaskBegin(parent, 0, 4)
	if child0.Length() != 2 || child0.LastKth(1).Offset() != 0 || child0.LastKth(1).Span() != 4 {
		t.Fatalf("ImplicitTaskBegin = %s", child0)
	}
	barriered := BarrierEnd(child0)
	rejoined := ImplicitTaskEnd(parent, barriered)
	if rejoined.Length() != parent.Length() {
		t.Fatalf("ImplicitTaskEnd changed label length: %s", rejoined)
	}
	if rejoined.LastKth(1).Offset() != 4 {
		t.Fatalf("ImplicitTaskEnd should carry forward the child's barrier offset, got %s", rejoined)
	}
}

func TestExplicitTaskCreateDistinguishesSiblings(t *testing.T) {
	parent := InitialTask()
	child0, parent1 := ExplicitTaskCreate(parent)
	child1, parent2 := ExplicitTaskCreate(parent1)

	if child0.LastKth(2).TaskCreate() == child1.LastKth(2).TaskCreate() {
		t.Fatal("two explicit children spawned in sequence should capture distinct taskCreate values")
	}
	if parent2.LastKth(1).TaskCreate() != 2 {
		t.Fatalf("taskCreate should reach 2 after two spawns, got %d", parent2.LastKth(1).TaskCreate())
	}
}

func TestBarrierEndAdvancesOffset(t *testing.T) {
	l := InitialTask().Append(label.NewImplicit(0, 4))
	after := BarrierEnd(l)
	if after.LastKth(1).Offset() != 4 {
		t.Fatalf("BarrierEnd should advance offset by span, got %s", after)
	}
}

func TestTaskwaitEndAndMark(t *testing.T) {
	parent := OrderedSectionStep(InitialTask()) // parent at phase 1
	child, parent1 := ExplicitTaskCreate(parent)
	parent2 := TaskwaitEnd(parent1)
	if parent2.LastKth(1).Taskwait() != parent1.LastKth(1).Taskwait()+1 {
		t.Fatal("TaskwaitEnd should bump the taskwait counter")
	}
	marked := MarkTaskwaited(child, parent2.LastKth(1).Phase())
	if !marked.LastKth(1).IsTaskwaited() {
		t.Fatal("MarkTaskwaited should set the taskwaited flag")
	}
	if marked.LastKth(1).TaskwaitPhase() != parent2.LastKth(1).Phase() {
		t.Fatal("MarkTaskwaited should record the parent's ordered-section phase")
	}
}

func TestOrderedSectionStepToggles(t *testing.T) {
	l := InitialTask().Append(label.NewWorkSharePlaceholder(false))
	l = OrderedSectionStep(l) // enter
	if l.LastKth(1).Phase() != 1 {
		t.Fatalf("phase should be 1 after entering, got %d", l.LastKth(1).Phase())
	}
	l = OrderedSectionStep(l) // leave
	if l.LastKth(1).Phase() != 2 {
		t.Fatalf("phase should be 2 after leaving, got %d", l.LastKth(1).Phase())
	}
}

func TestWorkshareBeginEndDispatch(t *testing.T) {
	base := InitialTask()
	l := WorkshareBegin(base, false)
	if !l.LastKth(1).IsPlaceHolder() {
		t.Fatal("WorkshareBegin should append a placeholder")
	}
	l = IterationDispatch(l, 3)
	if l.LastKth(1).IsPlaceHolder() || l.LastKth(1).WorkShareID() != 3 {
		t.Fatalf("IterationDispatch = %s", l.LastKth(1))
	}
	l = WorkshareEnd(l)
	if l.Length() != base.Length() {
		t.Fatal("WorkshareEnd should pop the WorkShare segment")
	}
	if l.LastKth(1).LoopCount() != 1 {
		t.Fatalf("WorkshareEnd should bump the outer loopCount, got %d", l.LastKth(1).LoopCount())
	}
}

func TestSectionDispatchSetsIsSection(t *testing.T) {
	l := WorkshareBegin(InitialTask(), true)
	l = SectionDispatch(l, 2)
	if !l.LastKth(1).IsSection() || l.LastKth(1).WorkShareID() != 2 {
		t.Fatalf("SectionDispatch = %s", l.LastKth(1))
	}
}

func TestSingleExecutorVsOther(t *testing.T) {
	exec := SingleBeginExecutor(InitialTask())
	other := SingleBeginOther(InitialTask())
	if !exec.LastKth(1).IsSingleExecutor() || exec.LastKth(1).IsSingleOther() {
		t.Fatal("SingleBeginExecutor should set only the executor flag")
	}
	if !other.LastKth(1).IsSingleOther() || other.LastKth(1).IsSingleExecutor() {
		t.Fatal("SingleBeginOther should set only the other flag")
	}
	if SingleEnd(exec).Length() != InitialTask().Length() {
		t.Fatal("SingleEnd should pop the WorkShare segment")
	}
}

func TestTaskgroupBeginEndAndSync(t *testing.T) {
	parent := InitialTask()
	inGroup := TaskgroupBegin(parent, 1)
	if inGroup.LastKth(1).TaskGroupLevel() != 1 || inGroup.LastKth(1).TaskGroupID() != 1 {
		t.Fatalf("TaskgroupBegin = %s", inGroup.LastKth(1))
	}
	child, inGroup2 := ExplicitTaskCreate(inGroup)
	closed := TaskgroupEnd(inGroup2)
	if closed.LastKth(1).TaskGroupLevel() != 0 {
		t.Fatalf("TaskgroupEnd should decrement taskGroupLevel, got %d", closed.LastKth(1).TaskGroupLevel())
	}
	synced := MarkTaskGroupSync(child, 5)
	if !synced.LastKth(1).IsTaskGroupSync() || synced.LastKth(1).TaskGroupPhase() != 5 {
		t.Fatalf("MarkTaskGroupSync = %s", synced.LastKth(1))
	}
}

// Mutation purity: every function here must leave its input
// untouched (spec §8 property 5).
func TestMutationPurity(t *testing.T) {
	before := InitialTask().Append(label.NewImplicit(0, 4))
	beforeStr := before.String()
	_ = BarrierEnd(before)
	_ = OrderedSectionStep(before)
	if before.String() != beforeStr {
		t.Fatal("mutation functions must not mutate their input label")
	}
}
