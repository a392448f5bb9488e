// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockset

import "testing"

func TestAddRemove(t *testing.T) {
	var s LockSet
	s = s.Add(1).Add(2)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	s, ok := s.Remove(1)
	if !ok || s.Len() != 1 {
		t.Fatalf("Remove(1) = (%v, %v)", s, ok)
	}
	if _, ok := s.Remove(99); ok {
		t.Fatal("Remove of absent lock reported ok")
	}
}

func TestIntersects(t *testing.T) {
	var a, b LockSet
	a = a.Add(1).Add(2)
	b = b.Add(3).Add(2)
	if !a.Intersects(b) {
		t.Fatal("expected intersection on lock 2")
	}
	var c LockSet
	c = c.Add(9)
	if a.Intersects(c) {
		t.Fatal("unexpected intersection")
	}
}

func TestIsSubsetOf(t *testing.T) {
	var a, b LockSet
	a = a.Add(1)
	b = b.Add(1).Add(2)
	if !a.IsSubsetOf(b) {
		t.Fatal("a should be a subset of b")
	}
	if b.IsSubsetOf(a) {
		t.Fatal("b should not be a subset of a")
	}
}

func TestCapacityOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on capacity overflow")
		}
	}()
	var s LockSet
	for i := 0; i < Capacity+1; i++ {
		s = s.Add(uint64(i))
	}
}

func TestValueSemantics(t *testing.T) {
	var a LockSet
	a = a.Add(1)
	b := a
	b = b.Add(2)
	if a.Len() != 1 {
		t.Fatal("Add on b mutated a")
	}
}
