// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fatal provides the single error type the core uses for
// invariant violations (spec §7): bugs in the detector itself rather
// than anything the instrumented program did. Every such violation is
// raised with Raise and is expected to propagate as a panic to the
// nearest boundary that can log it and abort (see detector.Recover).
package fatal

import "fmt"

// Violation is an invariant violation as defined by spec §7: a
// history label strictly after the current one, a segment span
// mismatch, a workshare nested inside a workshare, and similar "this
// indicates a core bug" conditions.
type Violation struct {
	msg string
}

func (v *Violation) Error() string { return v.msg }

// Raise panics with a *Violation built from format and args. Callers
// at a checkAccess boundary recover it (see detector.Recover) and
// convert it into a fatal log line; callers inside a single
// check never catch it themselves, since spec §7 requires invariant
// violations to abort rather than merely skip the current check.
func Raise(format string, args ...interface{}) {
	panic(&Violation{msg: fmt.Sprintf(format, args...)})
}
