// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rompbench measures checkAccess overhead across worker
// counts by repeatedly running an instrumented benchmark program and
// timing it, then plots the result. It's a narrowed-down descendant
// of benchmany/benchplot: where those tools track a metric across
// many git commits, rompbench tracks one metric (wall-clock time)
// across one independent variable (OMP_NUM_THREADS).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/aclements/go-gg/gg"
	"github.com/aclements/go-gg/table"

	"github.com/aclements/go-romp/internal/stats"
)

func main() {
	log.SetPrefix("rompbench: ")
	log.SetFlags(0)

	var (
		flagWorkers = flag.String("workers", "1,2,4,8", "comma-separated `list` of OMP_NUM_THREADS values to benchmark")
		flagReps    = flag.Int("reps", 5, "`N` repetitions per worker count")
		flagOut     = flag.String("o", "rompbench.svg", "write plot to `file`")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] command [args...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if len(flag.Args()) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Args()

	var workers []int
	for _, s := range strings.Split(*flagWorkers, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			log.Fatalf("bad -workers value %q: %v", s, err)
		}
		workers = append(workers, n)
	}

	type row struct {
		Workers int
		Seconds float64
	}
	var rows []row
	for _, n := range workers {
		var samples []float64
		for i := 0; i < *flagReps; i++ {
			d, err := timeRun(command, n)
			if err != nil {
				log.Fatalf("running with %d workers: %v", n, err)
			}
			samples = append(samples, d.Seconds())
		}
		summary := stats.Summarize(samples)
		log.Printf("workers=%d: %s", n, summary)
		for _, s := range samples {
			rows = append(rows, row{n, s})
		}
	}

	tb := table.TableFromStructs(rows)
	plot := gg.NewPlot(tb)
	plot.Add(gg.LayerPoints{X: "Workers", Y: "Seconds"})
	plot.Add(gg.LayerLines{X: "Workers", Y: "Seconds"})
	plot.Add(gg.Title(strings.Join(command, " ")))

	f, err := os.Create(*flagOut)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	plot.WriteSVG(f, 800, 500)
	log.Printf("wrote %s", *flagOut)
}

func timeRun(command []string, workers int) (time.Duration, error) {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("OMP_NUM_THREADS=%d", workers))
	start := time.Now()
	err := cmd.Run()
	return time.Since(start), err
}
