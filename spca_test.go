// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"math"

	"gopkg.in/check.v1"
)

type spcaSuite struct{}

var _ = check.Suite(&spcaSuite{})

// twoColonies is four samples in two well-separated colonies with fully
// divergent genotypes: the strongest possible global structure.
func twoColonies() *dataset {
	return &dataset{
		Scheme:  "colony",
		Loci:    []string{"loc1"},
		Alleles: [][]string{{"1", "2"}},
		Samples: []sampleRecord{
			{ID: "a1", Group: "A", Lat: 0, Lon: 0, Genotypes: []string{"1/1"}},
			{ID: "a2", Group: "A", Lat: 0, Lon: 0.1, Genotypes: []string{"1/1"}},
			{ID: "b1", Group: "B", Lat: 10, Lon: 10, Genotypes: []string{"2/2"}},
			{ID: "b2", Group: "B", Lat: 10, Lon: 10.1, Genotypes: []string{"2/2"}},
		},
	}
}

func (s *spcaSuite) TestBuildWeights(c *check.C) {
	samples := []sampleRecord{
		{ID: "p1", Lat: 0, Lon: 0},
		{ID: "p2", Lat: 0, Lon: 1},
		{ID: "p3", Lat: 0, Lon: 3},
	}
	w, err := buildWeights(samples, 0, 200)
	c.Assert(err, check.IsNil)
	c.Check(w.N, check.Equals, 3)
	c.Check(w.Neighbors[0], check.DeepEquals, []int{1})
	c.Check(w.Neighbors[1], check.DeepEquals, []int{0})
	c.Check(w.degree(2), check.Equals, 0) // isolated, 222 km from p2
	for i := 0; i < w.N; i++ {
		if w.degree(i) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range w.Weights[i] {
			sum += v
		}
		c.Check(math.Abs(sum-1) < 1e-12, check.Equals, true)
	}
}

func (s *spcaSuite) TestBuildWeightsErrors(c *check.C) {
	samples := []sampleRecord{{ID: "p1"}, {ID: "p2", Lat: 50, Lon: 50}}
	_, err := buildWeights(samples, 100, 100)
	c.Check(err, check.ErrorMatches, `neighbor distance bounds.*`)
	_, err = buildWeights(samples, 0, 1)
	c.Check(err, check.ErrorMatches, `connection network has no edges.*`)
	_, isDQ := err.(dataQualityError)
	c.Check(isDQ, check.Equals, true)
}

func (s *spcaSuite) TestMoranI(c *check.C) {
	ds := twoColonies()
	w, err := buildWeights(ds.Samples, 0, 50)
	c.Assert(err, check.IsNil)
	// each sample's only neighbor shares its value: perfect autocorrelation
	c.Check(math.Abs(w.moranI([]float64{1, 1, -1, -1})-1) < 1e-12, check.Equals, true)
	// constant vector has no variance to correlate
	c.Check(w.moranI([]float64{2, 2, 2, 2}), check.Equals, 0.0)
}

func (s *spcaSuite) TestRunSPCA(c *check.C) {
	ds := twoColonies()
	w, err := buildWeights(ds.Samples, 0, 50)
	c.Assert(err, check.IsNil)
	fm := ds.alleleFreqs()
	res, err := runSPCA(fm, w, 1, 1)
	c.Assert(err, check.IsNil)

	c.Check(res.PosRetained, check.Equals, 1)
	c.Check(res.NegRetained, check.Equals, 0)
	c.Check(res.axisLabel(0), check.Equals, "global1")
	c.Check(math.Abs(res.AxisEigen[0]-0.5) < 1e-9, check.Equals, true, check.Commentf("%v", res.AxisEigen))
	c.Check(math.Abs(res.AxisMoran[0]-1) < 1e-9, check.Equals, true, check.Commentf("%v", res.AxisMoran))

	rows, cols := res.Scores.Dims()
	c.Check(rows, check.Equals, 4)
	c.Check(cols, check.Equals, 1)
	// colonies separate with opposite signs and equal magnitude
	c.Check(math.Abs(res.Scores.At(0, 0)-res.Scores.At(1, 0)) < 1e-9, check.Equals, true)
	c.Check(math.Abs(res.Scores.At(0, 0)+res.Scores.At(3, 0)) < 1e-9, check.Equals, true)

	// deterministic: same inputs, same spectrum
	res2, err := runSPCA(fm, w, 1, 1)
	c.Assert(err, check.IsNil)
	c.Check(res2.Eigenvalues, check.DeepEquals, res.Eigenvalues)
}

func (s *spcaSuite) TestOrdinaryPCA(c *check.C) {
	ds := twoColonies()
	fm := ds.alleleFreqs()
	scores, err := ordinaryPCA(fm, 2)
	c.Assert(err, check.IsNil)
	c.Assert(scores, check.HasLen, 4)
	// colony A and colony B fall on opposite sides of the first component
	c.Check(scores[0][0]*scores[3][0] < 0, check.Equals, true, check.Commentf("%v", scores))
}
