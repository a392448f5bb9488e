// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rompstress runs an instrumented OpenMP program repeatedly
// and in parallel, hunting for the runs where the data race detector
// fires. It is adapted from stress2's parallel stress-test harness,
// simplified to rompstress's single pass/race classification and
// shell-quoted repro reporting.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/aclements/go-romp/internal/stats"
)

func main() {
	var parallelism int
	var timeout time.Duration
	var maxRuns int
	flag.IntVar(&parallelism, "p", runtime.NumCPU(), "run `N` instances in parallel")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "kill an instance after `duration`")
	flag.IntVar(&maxRuns, "n", 100, "stop after `N` total runs")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] command [args...]

rompstress repeatedly runs command (typically a romprun invocation)
looking for runs that report a data race.

`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if parallelism <= 0 || len(flag.Args()) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Args()

	reporter := newReporter()
	reporter.start()
	defer reporter.stop()

	var mu sync.Mutex
	var raced, clean int
	var durations []float64
	var repros []string

	jobs := make(chan int, maxRuns)
	for i := 0; i < maxRuns; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < parallelism; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				start := time.Now()
				hit := runOnce(command, timeout)
				elapsed := time.Since(start).Seconds()

				mu.Lock()
				durations = append(durations, elapsed)
				if hit {
					raced++
					repros = append(repros, shellquote.Join(command...))
				} else {
					clean++
				}
				reporter.status(fmt.Sprintf("%d raced, %d clean", raced, clean))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	reporter.stop()

	if len(durations) > 0 {
		fmt.Fprintf(os.Stdout, "run time: %s\n", stats.Summarize(durations))
	}
	if raced > 0 {
		fmt.Fprintf(os.Stdout, "%d of %d runs hit a data race; repro commands:\n", raced, raced+clean)
		seen := map[string]bool{}
		for _, r := range repros {
			if !seen[r] {
				seen[r] = true
				fmt.Fprintln(os.Stdout, " ", r)
			}
		}
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "%d runs, no races found\n", clean)
}

// runOnce runs command once, reporting whether its combined output
// mentions a confirmed race (the text detector.Report.String prints).
// A run killed for running past timeout is judged by the output it
// produced before the kill; the timeout alone does not count as a race.
func runOnce(command []string, timeout time.Duration) (raced bool) {
	cmd := exec.Command(command[0], command[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return false
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-time.After(timeout):
		cmd.Process.Kill()
		<-done
	case <-done:
	}

	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "data race on") {
			return true
		}
	}
	return false
}

// reporter prints a single updating status line when stdout is a
// terminal, or a plain log line otherwise, the way stress2 picks
// between ReporterVT100 and ReporterDumb.
type reporter struct {
	tty    bool
	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
	status_ string
}

func newReporter() *reporter {
	return &reporter{tty: terminal.IsTerminal(int(syscall.Stdout))}
}

func (r *reporter) start() {
	if !r.tty {
		return
	}
	r.stopCh = make(chan struct{})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		tick := time.NewTicker(500 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				r.mu.Lock()
				fmt.Fprintf(os.Stdout, "\r\x1b[2K%s", r.status_)
				r.mu.Unlock()
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *reporter) stop() {
	if !r.tty || r.stopCh == nil {
		return
	}
	close(r.stopCh)
	r.wg.Wait()
	r.stopCh = nil
	fmt.Fprintln(os.Stdout)
}

func (r *reporter) status(s string) {
	r.mu.Lock()
	r.status_ = s
	r.mu.Unlock()
	if !r.tty {
		fmt.Fprintln(os.Stdout, s)
	}
}
