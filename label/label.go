// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package label

import "strings"

// CompareResult classifies the outcome of Compare.
type CompareResult int

const (
	// SameLabel means the two labels are identical segment-wise.
	SameLabel CompareResult = -3
	// LeftIsPrefix means a is a strict prefix of b.
	LeftIsPrefix CompareResult = -1
	// RightIsPrefix means b is a strict prefix of a.
	RightIsPrefix CompareResult = -2
	// Any non-negative value is the smallest index at which the two
	// labels' segments differ.
)

// Label is an immutable, ordered sequence of Segments, innermost
// (most deeply nested) last. Every apparent mutation in this package
// and in package mutation returns a new Label; the segment slice
// backing an existing Label is never written to, so tails may be
// freely shared between versions (spec §3, §4.2, §9).
type Label struct {
	segs []Segment
}

// New returns the initial task label: a single Implicit segment of
// offset 0, span 1 (spec §4.2 "Initial task created").
func New() Label {
	return Label{segs: []Segment{NewImplicit(0, 1)}}
}

// FromSegments returns a Label over a copy of segs, innermost last.
func FromSegments(segs ...Segment) Label {
	cp := make([]Segment, len(segs))
	copy(cp, segs)
	return Label{segs: cp}
}

// Length returns the number of segments in l.
func (l Label) Length() int { return len(l.segs) }

// Kth returns the i'th segment from the head (0-based).
func (l Label) Kth(i int) Segment { return l.segs[i] }

// LastKth returns the k'th segment from the tail, 1-based: LastKth(1)
// is the innermost segment.
func (l Label) LastKth(k int) Segment { return l.segs[len(l.segs)-k] }

// Append returns a new Label with s appended as the new innermost
// segment. The receiver is left unchanged.
func (l Label) Append(s Segment) Label {
	segs := make([]Segment, len(l.segs)+1)
	copy(segs, l.segs)
	segs[len(segs)-1] = s
	return Label{segs: segs}
}

// Pop returns a new Label with its innermost segment removed. It
// panics if l is empty.
func (l Label) Pop() Label {
	if len(l.segs) == 0 {
		panic("label: Pop of empty label")
	}
	segs := make([]Segment, len(l.segs)-1)
	copy(segs, l.segs[:len(l.segs)-1])
	return Label{segs: segs}
}

// SetLastKth returns a new Label with its k'th-from-tail segment (1
// based) replaced by s.
func (l Label) SetLastKth(k int, s Segment) Label {
	segs := make([]Segment, len(l.segs))
	copy(segs, l.segs)
	segs[len(segs)-k] = s
	return Label{segs: segs}
}

// String renders l for diagnostics, e.g. in a race report.
func (l Label) String() string {
	parts := make([]string, len(l.segs))
	for i, s := range l.segs {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Compare implements the label comparison primitive of spec §4.2:
// SameLabel if a and b are segment-wise identical, LeftIsPrefix /
// RightIsPrefix if one is a strict prefix of the other, or else the
// smallest index at which the two labels' segments differ.
func Compare(a, b Label) CompareResult {
	n := len(a.segs)
	if len(b.segs) < n {
		n = len(b.segs)
	}
	for i := 0; i < n; i++ {
		if !a.segs[i].Equal(b.segs[i]) {
			return CompareResult(i)
		}
	}
	switch {
	case len(a.segs) == len(b.segs):
		return SameLabel
	case len(a.segs) < len(b.segs):
		return LeftIsPrefix
	default:
		return RightIsPrefix
	}
}
