// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"math"
	"testing"
)

func TestSummarizeConstantSamples(t *testing.T) {
	s := Summarize([]float64{3, 3, 3, 3})
	if s.Mean != 3 {
		t.Fatalf("mean = %v, want 3", s.Mean)
	}
	if s.StdDev != 0 {
		t.Fatalf("stddev = %v, want 0", s.StdDev)
	}
	if s.CILow != 3 || s.CIHigh != 3 {
		t.Fatalf("CI = [%v, %v], want [3, 3]", s.CILow, s.CIHigh)
	}
}

func TestSummarizeSpread(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4, 5})
	if math.Abs(s.Mean-3) > 1e-9 {
		t.Fatalf("mean = %v, want 3", s.Mean)
	}
	if s.CILow >= s.Mean || s.CIHigh <= s.Mean {
		t.Fatalf("CI [%v, %v] should straddle the mean %v", s.CILow, s.CIHigh, s.Mean)
	}
}

func TestSummarizePanicsOnEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on empty input")
		}
	}()
	Summarize(nil)
}

func TestGeoMean(t *testing.T) {
	g := GeoMean([]float64{1, 2, 4})
	if math.Abs(g-2) > 1e-9 {
		t.Fatalf("GeoMean = %v, want 2", g)
	}
}
