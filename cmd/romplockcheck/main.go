// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command romplockcheck statically scans a Go package for
// inconsistent lock nesting order, the same class of bug rtcheck
// hunts for in the runtime, but simplified: instead of rtcheck's
// whole-program pointer analysis, romplockcheck walks each function's
// SSA body on its own, tracking the stack of locks held at each call
// to Lock, and reports any nesting order that forms a cycle across
// the package (internal/lockorder.Graph.FindCycles).
//
// This is deliberately approximate: a purely intra-procedural scan
// can't see a lock order introduced only by inlining across function
// boundaries. It still catches the common case, a function that locks
// A then B while some other function locks B then A.
package main

import (
	"flag"
	"fmt"
	"go/token"
	"go/types"
	"log"
	"os"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/aclements/go-romp/internal/lockorder"
)

func main() {
	log.SetPrefix("romplockcheck: ")
	log.SetFlags(0)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s package...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	patterns := flag.Args()
	if len(patterns) == 0 {
		patterns = []string{"."}
	}

	cfg := &packages.Config{Mode: packages.LoadAllSyntax}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		log.Fatal(err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}

	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.BuilderMode(0))
	prog.Build()

	fset := prog.Fset
	graph := lockorder.NewGraph()
	for _, p := range ssaPkgs {
		if p == nil {
			continue
		}
		for _, member := range p.Members {
			if fn, ok := member.(*ssa.Function); ok {
				scanFunc(fn, fset, graph)
			}
		}
	}

	cycles := graph.FindCycles()
	if len(cycles) == 0 {
		fmt.Println("no lock-order cycles found")
		return
	}
	for _, cycle := range cycles {
		fmt.Printf("lock cycle: %s -> %s\n", join(cycle), cycle[0])
		for i := 0; i < len(cycle); i++ {
			from, to := cycle[i], cycle[(i+1)%len(cycle)]
			for _, site := range graph.Sites(from, to) {
				fmt.Printf("  %s then %s at %s\n", from, to, site)
			}
		}
	}
	os.Exit(1)
}

func join(cycle []string) string {
	s := ""
	for i, n := range cycle {
		if i > 0 {
			s += " -> "
		}
		s += n
	}
	return s
}

// scanFunc walks fn's instructions in block order, tracking the stack
// of currently held locks (identified by the SSA value of their
// receiver, stringified) and recording an edge for every lock
// acquired while others are held.
func scanFunc(fn *ssa.Function, fset *token.FileSet, graph *lockorder.Graph) {
	if fn.Blocks == nil {
		return
	}
	var held []string
	for _, block := range fn.Blocks {
		for _, instr := range block.Instrs {
			call, ok := instr.(*ssa.Call)
			if !ok {
				continue
			}
			name, recv, isLock := lockCallKind(call)
			if !isLock {
				continue
			}
			switch name {
			case "Lock", "RLock":
				site := fmt.Sprintf("%s at %s", fn.Name(), fset.Position(call.Pos()))
				for _, h := range held {
					graph.Add(h, recv, site)
				}
				held = append(held, recv)
			case "Unlock", "RUnlock":
				for i := len(held) - 1; i >= 0; i-- {
					if held[i] == recv {
						held = append(held[:i], held[i+1:]...)
						break
					}
				}
			}
		}
	}
}

// lockCallKind recognizes calls of the shape recv.Lock()/Unlock() on
// any type named Mutex or RWMutex (sync's, or any other package's
// type of that name), returning a stable name for
// the receiver to key the lock graph on.
func lockCallKind(call *ssa.Call) (method, recv string, ok bool) {
	callee := call.Call.StaticCallee()
	if callee == nil || callee.Signature.Recv() == nil {
		return "", "", false
	}
	recvType := callee.Signature.Recv().Type()
	named, ok2 := derefType(recvType).(*types.Named)
	if !ok2 {
		return "", "", false
	}
	typeName := named.Obj().Name()
	if typeName != "Mutex" && typeName != "RWMutex" {
		return "", "", false
	}
	method = callee.Name()
	switch method {
	case "Lock", "Unlock", "RLock", "RUnlock":
	default:
		return "", "", false
	}
	args := call.Call.Args
	if len(args) == 0 {
		return "", "", false
	}
	return method, args[0].String(), true
}

func derefType(t types.Type) types.Type {
	if p, ok := t.(*types.Pointer); ok {
		return p.Elem()
	}
	return t
}
