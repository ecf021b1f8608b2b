// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"bytes"

	"gopkg.in/check.v1"
)

type permtestSuite struct{}

var _ = check.Suite(&permtestSuite{})

func (s *permtestSuite) TestPermutationTests(c *check.C) {
	ds := twoColonies()
	w, err := buildWeights(ds.Samples, 0, 50)
	c.Assert(err, check.IsNil)
	fm := ds.alleleFreqs()

	const nperm = 49
	tests := permutationTests(fm, w, nperm, 7)
	c.Assert(tests, check.HasLen, 3)
	names := []string{"global", "local", "combined"}
	for i, t := range tests {
		c.Check(t.Name, check.Equals, names[i])
		c.Check(t.Permutations, check.Equals, nperm)
		c.Assert(t.Null, check.HasLen, nperm)
		// (r+1)/(nperm+1) is bounded away from zero and by one
		c.Check(t.P >= 1.0/(nperm+1), check.Equals, true, check.Commentf("%s p=%v", t.Name, t.P))
		c.Check(t.P <= 1.0, check.Equals, true)
	}
	// no local structure in this layout
	c.Check(tests[1].Observed, check.Equals, 0.0)
	c.Check(tests[2].Observed, check.Equals, tests[0].Observed+tests[1].Observed)
}

func (s *permtestSuite) TestPermutationSeedReproducible(c *check.C) {
	ds := twoColonies()
	w, err := buildWeights(ds.Samples, 0, 50)
	c.Assert(err, check.IsNil)
	fm := ds.alleleFreqs()

	a := permutationTests(fm, w, 29, 42)
	b := permutationTests(fm, w, 29, 42)
	for i := range a {
		c.Check(a[i].P, check.Equals, b[i].P)
		c.Check(a[i].Null, check.DeepEquals, b[i].Null)
	}
	// a different seed permutes differently
	d := permutationTests(fm, w, 29, 43)
	c.Check(d[0].Null, check.Not(check.DeepEquals), a[0].Null)
}

func (s *permtestSuite) TestSpectrumStats(c *check.C) {
	g, l := spectrumStats([]float64{0.5, 0.25, 0, -0.25})
	c.Check(g, check.Equals, 0.75)
	c.Check(l, check.Equals, 0.25)
}

func (s *permtestSuite) TestPrintNullHistogram(c *check.C) {
	var buf bytes.Buffer
	printNullHistogram(&buf, permTest{
		Name:     "global",
		Observed: 0.5,
		Null:     []float64{0.1, 0.2, 0.15, 0.3, 0.25, 0.12, 0.18, 0.22, 0.28, 0.11},
	})
	c.Check(buf.Len() > 0, check.Equals, true)
	c.Check(bytes.Contains(buf.Bytes(), []byte("global")), check.Equals, true)
}
