// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"golang.org/x/exp/rand"
)

// permTest is one Monte-Carlo significance test: the observed statistic, the
// null distribution from permuted sample/location pairings, and the one-sided
// p-value (r+1)/(nperm+1).
type permTest struct {
	Name         string
	Observed     float64
	P            float64
	Permutations int
	Null         []float64
}

// spectrumStats reduces an eigenvalue spectrum to the global statistic (sum of
// positive eigenvalues) and local statistic (sum of negative magnitudes).
func spectrumStats(values []float64) (global, local float64) {
	for _, v := range values {
		if v > eigenZero {
			global += v
		} else if v < -eigenZero {
			local -= v
		}
	}
	return global, local
}

// permutationTests runs the global, local, and combined structure tests. The
// genotype matrix stays fixed; each permutation relabels the samples on the
// connection network.
func permutationTests(fm *freqMatrix, w *spatialWeights, nperm int, seed uint64) []permTest {
	obsValues, _, err := lagCovSpectrum(fm.Data, w.lagOperator(nil), false)
	if err != nil {
		// the retained decomposition already succeeded on this input
		panic(err)
	}
	obsGlobal, obsLocal := spectrumStats(obsValues)

	tests := []permTest{
		{Name: "global", Observed: obsGlobal, Permutations: nperm},
		{Name: "local", Observed: obsLocal, Permutations: nperm},
		{Name: "combined", Observed: obsGlobal + obsLocal, Permutations: nperm},
	}
	rnd := rand.New(rand.NewSource(seed))
	perm := make([]int, w.N)
	for r := 0; r < nperm; r++ {
		for i := range perm {
			perm[i] = i
		}
		rnd.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		values, _, err := lagCovSpectrum(fm.Data, w.lagOperator(perm), false)
		if err != nil {
			panic(err)
		}
		g, l := spectrumStats(values)
		tests[0].Null = append(tests[0].Null, g)
		tests[1].Null = append(tests[1].Null, l)
		tests[2].Null = append(tests[2].Null, g+l)
	}
	for i := range tests {
		extreme := 0
		for _, v := range tests[i].Null {
			if v >= tests[i].Observed {
				extreme++
			}
		}
		tests[i].P = float64(extreme+1) / float64(nperm+1)
	}
	return tests
}

// printNullHistogram renders the null distribution as a terminal histogram.
func printNullHistogram(out io.Writer, t permTest) {
	fmt.Fprintf(out, "%s null distribution (observed %.6g):\n", t.Name, t.Observed)
	hist := histogram.Hist(10, t.Null)
	histogram.Fprint(out, hist, histogram.Linear(40))
}
