// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats computes summary statistics and confidence intervals
// over repeated stress-run results, the way benchmany's run.go
// summarizes repeated benchmark samples with go-moremath/stats.
package stats

import (
	"fmt"
	"math"

	"github.com/aclements/go-moremath/stats"
)

// Summary is the distribution of one metric (wall-clock time, races
// found, ...) across repeated runs of the same stress workload.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64

	// CILow, CIHigh bound the 95% confidence interval on the mean,
	// using the normal approximation: mean ± 1.96×(stddev/√n).
	CILow, CIHigh float64
}

// Summarize computes a Summary over samples. It panics if samples is
// empty, mirroring LinearLeastSquares's panic on mismatched input
// lengths: there's no meaningful summary of zero runs.
func Summarize(samples []float64) Summary {
	if len(samples) == 0 {
		panic("stats: Summarize called with no samples")
	}
	mean := stats.Mean(samples)

	var sumSq float64
	for _, x := range samples {
		d := x - mean
		sumSq += d * d
	}
	sd := 0.0
	if len(samples) > 1 {
		sd = math.Sqrt(sumSq / float64(len(samples)-1))
	}

	se := sd / math.Sqrt(float64(len(samples)))
	const z95 = 1.96
	return Summary{
		N:      len(samples),
		Mean:   mean,
		StdDev: sd,
		CILow:  mean - z95*se,
		CIHigh: mean + z95*se,
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("%.4g ± %.4g (n=%d, 95%% CI [%.4g, %.4g])", s.Mean, s.StdDev, s.N, s.CILow, s.CIHigh)
}

// GeoMean returns the geometric mean of samples, the way benchmany
// aggregates per-commit speedup ratios across benchmarks.
func GeoMean(samples []float64) float64 {
	return stats.GeoMean(samples)
}
