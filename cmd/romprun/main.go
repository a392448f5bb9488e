// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command romprun launches an OpenMP program under the ROMP-tool data
// race detector (spec §6's CLI surface): it sets up the environment
// variables the OMPT-enabled runtime and the detector's loader
// expect, then execs the target program.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func main() {
	var program, rompPath, arch, modSuffix string
	flag.StringVar(&program, "program", "", "`path` to the instrumented OpenMP program to run")
	flag.StringVar(&rompPath, "rompPath", os.Getenv("ROMP_LIB_PATH"), "`path` to the ROMP tool shared library")
	flag.StringVar(&arch, "arch", "x86_64", "target `architecture`, used to pick the OMPT preload library variant")
	flag.StringVar(&modSuffix, "modSuffix", "", "`suffix` appended to the OMPT tool library's module name, for side-by-side variants")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s -program path [flags] -- [program args]

romprun runs program under the data race detector's OMPT tool,
forwarding any arguments after -- to program.

`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if program == "" {
		flag.Usage()
		os.Exit(2)
	}
	if rompPath == "" {
		fmt.Fprintln(os.Stderr, "romprun: -rompPath (or $ROMP_LIB_PATH) is required")
		os.Exit(2)
	}

	toolLib := filepath.Join(rompPath, "libromp-"+arch+modSuffix+".so")
	if _, err := os.Stat(toolLib); err != nil {
		fmt.Fprintf(os.Stderr, "romprun: tool library not found: %s\n", toolLib)
		os.Exit(2)
	}

	absProgram, err := filepath.Abs(program)
	if err != nil {
		fmt.Fprintln(os.Stderr, "romprun:", err)
		os.Exit(2)
	}

	cmd := exec.Command(absProgram, flag.Args()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Env = append(os.Environ(),
		"OMP_TOOL=enabled",
		"OMP_TOOL_LIBRARIES="+toolLib,
	)

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, "romprun:", err)
		os.Exit(1)
	}
}
