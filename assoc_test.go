// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"gopkg.in/check.v1"
)

type assocSuite struct{}

var _ = check.Suite(&assocSuite{})

func (s *assocSuite) TestScoreGroupAssociation(c *check.C) {
	ds := twoColonies()
	// scores track colony membership with a little noise
	res, err := scoreGroupAssociation(ds, []float64{1.1, 0.9, -1.05, -0.95})
	c.Assert(err, check.IsNil)
	c.Assert(res, check.NotNil)
	c.Check(res.Baseline, check.Equals, "A")
	c.Check(res.Terms, check.DeepEquals, []string{"B"})
	c.Check(res.DF, check.Equals, 1)
	c.Check(res.ChiSq >= 0, check.Equals, true)
	c.Check(res.P >= 0 && res.P <= 1, check.Equals, true, check.Commentf("p=%v", res.P))
}

func (s *assocSuite) TestScoreGroupAssociationSingleStratum(c *check.C) {
	ds := twoColonies()
	for i := range ds.Samples {
		ds.Samples[i].Group = "A"
	}
	res, err := scoreGroupAssociation(ds, []float64{1, 2, 3, 4})
	c.Check(err, check.IsNil)
	c.Check(res, check.IsNil)
}

func (s *assocSuite) TestNormalize(c *check.C) {
	a := []float64{2, 4, 6, 8}
	normalize(a)
	c.Check(a[0], check.Equals, -a[3])
	c.Check(a[1], check.Equals, -a[2])
	// zero variance left untouched
	b := []float64{5, 5, 5}
	normalize(b)
	c.Check(b, check.DeepEquals, []float64{5, 5, 5})
}
