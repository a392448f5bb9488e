// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab resolves addresses to source locations for race
// reports, behind detector.SourceResolver. The address-sorted lookup
// table is adapted from obj/internal/symtab; the dynamic resolver
// itself instead walks the running binary's own symbol table via
// runtime.FuncForPC, since a checkAccess callsite's instrPtr is a Go
// program counter rather than an address read out of an object file.
package symtab

import (
	"runtime"
	"sort"
)

// Sym is one named, sized region of address space.
type Sym struct {
	Name  string
	Value uint64
	Size  uint64
}

// Table facilitates fast symbol lookup by address or name, for callers
// that already have a flat symbol list from an object file or SSA
// build.
type Table struct {
	addr []Sym
	name map[string]int
}

// NewTable creates a new table for syms, which it sorts in place by
// address.
func NewTable(syms []Sym) *Table {
	sort.Slice(syms, func(i, j int) bool {
		return syms[i].Value < syms[j].Value
	})
	name := make(map[string]int, len(syms))
	for i, s := range syms {
		name[s.Name] = i
	}
	return &Table{syms, name}
}

// Name returns the symbol with the given name.
func (t *Table) Name(name string) (Sym, bool) {
	if i, ok := t.name[name]; ok {
		return t.addr[i], true
	}
	return Sym{}, false
}

// Addr returns the symbol containing addr.
func (t *Table) Addr(addr uint64) (Sym, bool) {
	i := sort.Search(len(t.addr), func(i int) bool {
		return addr < t.addr[i].Value
	})
	if i > 0 {
		s := t.addr[i-1]
		if s.Value != 0 && s.Value <= addr && addr < s.Value+s.Size {
			return s, true
		}
	}
	return Sym{}, false
}

// Resolver implements detector.SourceResolver using the running
// binary's own runtime symbol table. It requires no setup: every
// checkAccess callsite's instrPtr is a live Go program counter, so
// runtime.FuncForPC resolves it directly without reading DWARF from
// disk.
type Resolver struct{}

// Resolve returns the file and line runtime.FuncForPC reports for
// instrPtr, or ok=false if the program counter doesn't fall inside a
// function the runtime recognizes.
func (Resolver) Resolve(instrPtr uintptr) (file string, line int, ok bool) {
	fn := runtime.FuncForPC(instrPtr)
	if fn == nil {
		return "", 0, false
	}
	file, line = fn.FileLine(instrPtr)
	if file == "" {
		return "", 0, false
	}
	return file, line, true
}
