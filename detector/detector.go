// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package detector wires the core together: the process-wide shadow
// memory and event-handler singletons, the init/teardown flag, the
// recover boundary that turns an internal/fatal.Violation panic into a
// fatal log line (spec §7), and the race-report sink.
package detector

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/aclements/go-romp/access"
	"github.com/aclements/go-romp/events"
	"github.com/aclements/go-romp/history"
	"github.com/aclements/go-romp/internal/fatal"
	"github.com/aclements/go-romp/internal/lockorder"
	"github.com/aclements/go-romp/internal/symtab"
	"github.com/aclements/go-romp/ompt"
	"github.com/aclements/go-romp/shadow"
)

// Logger is used for fatal invariant-violation diagnostics (spec §7)
// and race reports. Defaults to log.Default(); tests may replace it.
var Logger = log.Default()

// dataRaceFound is the global, monotone flag of spec §5 ("Global
// flags: omptInitialized..., dataRaceFound (monotone)").
var dataRaceFound int32

// DataRaceFound reports whether any race has been found by this
// process so far.
func DataRaceFound() bool { return atomic.LoadInt32(&dataRaceFound) != 0 }

// SourceResolver resolves an instruction pointer to a human-readable
// source location for race reports. Source-line resolution is out of
// scope for the core (spec §1); detector only carries the interface.
// internal/symtab.Resolver, wired in by Init below, resolves against
// the running binary's own symbol table via runtime.FuncForPC.
type SourceResolver interface {
	Resolve(instrPtr uintptr) (file string, line int, ok bool)
}

// Report describes one confirmed data race, formatted for a user.
type Report struct {
	ByteAddr         uintptr
	HistInstr        uintptr
	CurInstr         uintptr
	HistFile, CurFile string
	HistLine, CurLine int
}

func (r Report) String() string {
	hist := fmt.Sprintf("%#x", r.HistInstr)
	if r.HistFile != "" {
		hist = fmt.Sprintf("%s:%d", r.HistFile, r.HistLine)
	}
	cur := fmt.Sprintf("%#x", r.CurInstr)
	if r.CurFile != "" {
		cur = fmt.Sprintf("%s:%d", r.CurFile, r.CurLine)
	}
	return fmt.Sprintf("data race on %#x between %s and %s", r.ByteAddr, hist, cur)
}

// Detector is the top-level, process-wide core: one Shadow memory,
// one event-handler set, and the race-report sink (spec §9 "Global
// mutable state").
type Detector struct {
	mu sync.Mutex

	initialized bool

	Shadow    *shadow.Memory
	Events    *events.Handlers
	Checker   *access.Checker
	Resolver  SourceResolver
	LockOrder *lockorder.Graph

	// Reports collects every race found so far, in discovery
	// order. A production embedding would more likely stream these
	// to a log or a channel; the slice is kept here for tests and
	// for ShouldAbort.
	Reports []Report

	// FailFast, if set, causes Init's caller to os.Exit(1) (via
	// ShouldAbort) the first time a race is found, mirroring spec
	// §5's "may abort the process if the user configures
	// failure-on-first-race".
	FailFast bool
}

// Init allocates the process-wide shadow memory and event handlers
// (spec §4.5 step 1, §9 "explicit init/teardown at process start").
// Each call allocates and returns a new, independent Detector; Init
// keeps no package-level instance of its own.
func Init(l1Bits, l2Bits, addrBits uint, granularity shadow.Granularity) *Detector {
	d := &Detector{
		Shadow:    shadow.New(l1Bits, l2Bits, addrBits, granularity),
		Resolver:  symtab.Resolver{},
		LockOrder: lockorder.NewGraph(),
	}
	d.Events = &events.Handlers{Shadow: d.Shadow, LockOrder: d.LockOrder}
	d.Checker = &access.Checker{
		Shadow:      d.Shadow,
		Granularity: granularity,
		OnRace:      d.onRace,
	}
	d.initialized = true
	return d
}

// SetQuerier wires the runtime-tool's RuntimeQuerier into the detector
// once OMPT handshaking hands one over, for CheckAccess's task-info
// dispatch (spec §4.5 steps 2-4) and TaskSchedule's task-memory query
// (spec §4.7).
func (d *Detector) SetQuerier(q ompt.RuntimeQuerier) {
	d.Checker.Querier = q
	d.Events.Querier = q
}

// CheckAccess is the detector's implementation of the instrumentation
// entry point (spec §6, ompt.CheckAccessFunc). It gates on the global
// init flag (spec §4.5 step 1) before handing off to
// access.Checker.CheckAccess for the task-info dispatch and per-byte
// race check of the remaining steps.
func (d *Detector) CheckAccess(address unsafe.Pointer, bytesAccessed uint32, instrAddress unsafe.Pointer, hasHardwareLock, isWrite bool) {
	if !d.Initialized() {
		return
	}
	defer Recover()
	d.Checker.CheckAccess(address, bytesAccessed, instrAddress, hasHardwareLock, isWrite)
}

// Initialized reports whether Init has completed (spec §4.5 step 1:
// "If global initialization incomplete → return").
func (d *Detector) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// Teardown releases the detector's resources. Shadow pages live for
// process lifetime (spec §5), so this only clears the report sink and
// the initialized flag.
func (d *Detector) Teardown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = false
	d.Reports = nil
}

// ShouldAbort reports whether FailFast is set and at least one race
// has been reported, i.e. whether the caller should os.Exit(1) now.
func (d *Detector) ShouldAbort() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.FailFast && len(d.Reports) > 0
}

func (d *Detector) onRace(addr uintptr, race history.Race) {
	atomic.StoreInt32(&dataRaceFound, 1)
	r := Report{
		ByteAddr:  addr,
		HistInstr: uintptr(race.Hist.InstrPtr),
		CurInstr:  uintptr(race.Cur.InstrPtr),
	}
	if file, line, ok := d.Resolver.Resolve(r.HistInstr); ok {
		r.HistFile, r.HistLine = file, line
	}
	if file, line, ok := d.Resolver.Resolve(r.CurInstr); ok {
		r.CurFile, r.CurLine = file, line
	}
	d.mu.Lock()
	d.Reports = append(d.Reports, r)
	d.mu.Unlock()
	Logger.Print(r)
}

// Recover is deferred at every checkAccess boundary. It converts an
// internal/fatal.Violation panic into a fatal log line (spec §7:
// "Invariant violation... fatal, abort with diagnostic") and
// re-panics anything else, since only fatal.Violation is a condition
// this package knows how to report meaningfully.
func Recover() {
	r := recover()
	if r == nil {
		return
	}
	if v, ok := r.(*fatal.Violation); ok {
		Logger.Fatalf("romp: invariant violation: %v", v)
		return
	}
	panic(r)
}
