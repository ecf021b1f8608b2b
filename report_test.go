// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"os"
	"strings"

	"gopkg.in/check.v1"
)

type reportSuite struct{}

var _ = check.Suite(&reportSuite{})

func (s *reportSuite) makeSession(c *check.C) *session {
	ds := twoColonies()
	w, err := buildWeights(ds.Samples, 0, 50)
	c.Assert(err, check.IsNil)
	fm := ds.alleleFreqs()
	res, err := runSPCA(fm, w, 1, 1)
	c.Assert(err, check.IsNil)
	tests := permutationTests(fm, w, 19, 1)
	return newSession("round trip", ds, w, res, tests, nil)
}

func (s *reportSuite) TestSnapshotRoundTrip(c *check.C) {
	ses := s.makeSession(c)
	ses.InputDigests["genotypes.csv"] = "abc123"
	path := c.MkDir() + "/session.gob.gz"
	c.Assert(writeSnapshot(path, ses), check.IsNil)

	got, err := readSnapshot(path)
	c.Assert(err, check.IsNil)
	c.Check(got.Title, check.Equals, "round trip")
	c.Check(got.Scheme, check.Equals, "colony")
	c.Check(got.Eigenvalues, check.DeepEquals, ses.Eigenvalues)
	c.Check(got.Scores, check.DeepEquals, ses.Scores)
	c.Check(got.Dataset.Samples, check.HasLen, 4)
	c.Check(got.Weights.Neighbors, check.DeepEquals, ses.Weights.Neighbors)
	c.Check(got.InputDigests["genotypes.csv"], check.Equals, "abc123")
	c.Check(got.Tests, check.HasLen, 3)
}

func (s *reportSuite) TestWriteAnalysisOutputs(c *check.C) {
	ses := s.makeSession(c)
	dir := c.MkDir()
	c.Assert(writeAnalysisOutputs(dir, ses, false), check.IsNil)

	eig, err := os.ReadFile(dir + "/eigenvalues.csv")
	c.Assert(err, check.IsNil)
	c.Check(strings.HasPrefix(string(eig), "rank,eigenvalue\n"), check.Equals, true)

	scores, err := os.ReadFile(dir + "/scores.csv")
	c.Assert(err, check.IsNil)
	lines := strings.Split(strings.TrimRight(string(scores), "\n"), "\n")
	c.Assert(lines, check.HasLen, 5)
	c.Check(strings.HasPrefix(lines[0], "id,stratum,latitude,longitude,global1,global1_lag"), check.Equals, true)

	tests, err := os.ReadFile(dir + "/permtests.csv")
	c.Assert(err, check.IsNil)
	c.Check(strings.Contains(string(tests), "global"), check.Equals, true)
	c.Check(strings.Contains(string(tests), "combined"), check.Equals, true)

	// no npy requested
	_, err = os.Stat(dir + "/scores.npy")
	c.Check(os.IsNotExist(err), check.Equals, true)
}

func (s *reportSuite) TestWriteSummaries(c *check.C) {
	ses := s.makeSession(c)
	dir := c.MkDir()
	c.Assert(writeSummaries(dir, ses), check.IsNil)

	strata, err := os.ReadFile(dir + "/strata_summary.csv")
	c.Assert(err, check.IsNil)
	lines := strings.Split(strings.TrimRight(string(strata), "\n"), "\n")
	c.Assert(lines, check.HasLen, 3) // header + strata A and B
	c.Check(strings.HasPrefix(lines[0], "stratum,n_samples"), check.Equals, true)

	loci, err := os.ReadFile(dir + "/loci_summary.csv")
	c.Assert(err, check.IsNil)
	c.Check(strings.Contains(string(loci), "loc1"), check.Equals, true)

	samples, err := os.ReadFile(dir + "/samples_summary.csv")
	c.Assert(err, check.IsNil)
	c.Check(len(strings.Split(strings.TrimRight(string(samples), "\n"), "\n")), check.Equals, 5)
}

func (s *reportSuite) TestFileDigest(c *check.C) {
	dir := c.MkDir()
	p1, p2 := dir+"/a", dir+"/b"
	c.Assert(os.WriteFile(p1, []byte("hello"), 0644), check.IsNil)
	c.Assert(os.WriteFile(p2, []byte("goodbye"), 0644), check.IsNil)
	d1, err := fileDigest(p1)
	c.Assert(err, check.IsNil)
	c.Check(d1, check.HasLen, 64)
	d1again, err := fileDigest(p1)
	c.Assert(err, check.IsNil)
	c.Check(d1again, check.Equals, d1)
	d2, err := fileDigest(p2)
	c.Assert(err, check.IsNil)
	c.Check(d2, check.Not(check.Equals), d1)
}

func (s *reportSuite) TestRenderPlots(c *check.C) {
	ses := s.makeSession(c)
	dir := c.MkDir()
	c.Assert(renderPlots(dir, ses), check.IsNil)
	for _, name := range []string{"map.png", "screeplot.png", "scoremap.png", "surface.png", "loadings.png", "scatter.png"} {
		fi, err := os.Stat(dir + "/" + name)
		c.Assert(err, check.IsNil, check.Commentf("%s", name))
		c.Check(fi.Size() > 0, check.Equals, true)
	}
}
