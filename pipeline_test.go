// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type pipelineSuite struct{}

var _ = check.Suite(&pipelineSuite{})

// makeInputs writes a 50-sample, 10-locus genotype table where locus_7 is
// monomorphic ("1/1" everywhere), and a strata table assigning every sample
// to population "A" with valid coordinates.
func (s *pipelineSuite) makeInputs(c *check.C) (genotypes, strata string) {
	dir := c.MkDir()
	var gen bytes.Buffer
	gen.WriteString("id")
	for j := 1; j <= 10; j++ {
		fmt.Fprintf(&gen, ",locus_%d,locus_%d", j, j)
	}
	gen.WriteString("\n")
	var str bytes.Buffer
	str.WriteString("id,latitude,longitude,population\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&gen, "s%02d", i)
		for j := 1; j <= 10; j++ {
			if j == 7 {
				gen.WriteString(",1,1")
			} else {
				fmt.Fprintf(&gen, ",%d,1", 1+(i+j)%2)
			}
		}
		gen.WriteString("\n")
		fmt.Fprintf(&str, "s%02d,%g,%g,A\n", i, -44.0+0.1*float64(i), 170.0+0.05*float64(i))
	}
	genotypes = dir + "/genotypes.csv"
	strata = dir + "/strata.csv"
	c.Assert(os.WriteFile(genotypes, gen.Bytes(), 0644), check.IsNil)
	c.Assert(os.WriteFile(strata, str.Bytes(), 0644), check.IsNil)
	return genotypes, strata
}

func (s *pipelineSuite) TestFilterScenario(c *check.C) {
	genotypes, strata := s.makeInputs(c)
	tmpdir := c.MkDir()
	monofile := tmpdir + "/monomorphic.csv"

	stdout := &bytes.Buffer{}
	code := (&filtercmd{}).RunCommand("spagen filter", []string{
		"-genotypes", genotypes,
		"-strata", strata,
		"-scheme", "population",
		"-monomorphic", monofile,
	}, bytes.NewReader(nil), stdout, os.Stderr)
	c.Assert(code, check.Equals, 0)

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	c.Assert(lines, check.HasLen, 51) // header + 50 samples
	header := strings.Split(lines[0], ",")
	c.Check(header, check.HasLen, 4+9) // id, population, lat, lon + 9 polymorphic loci
	c.Check(header[1], check.Equals, "population")
	for _, h := range header[4:] {
		c.Check(h, check.Not(check.Equals), "locus_7")
	}

	mono, err := os.ReadFile(monofile)
	c.Assert(err, check.IsNil)
	c.Check(string(mono), check.Equals, "locus\nlocus_7\n")
}

func (s *pipelineSuite) TestRunEndToEnd(c *check.C) {
	genotypes, strata := s.makeInputs(c)
	tmpdir := c.MkDir()

	code := (&runcmd{}).RunCommand("spagen run", []string{
		"-genotypes", genotypes,
		"-strata", strata,
		"-scheme", "population",
		"-title", "end to end",
		"-dmin", "0", "-dmax", "100",
		"-npos", "1", "-nneg", "1",
		"-nperm", "19", "-seed", "5",
		"-npy",
		"-output-dir", tmpdir,
	}, bytes.NewReader(nil), os.Stdout, os.Stderr)
	c.Assert(code, check.Equals, 0)

	for _, name := range []string{
		"filtered.csv", "eigenvalues.csv", "axes.csv", "permtests.csv",
		"monomorphic_loci.csv", "scores.csv", "loadings.csv", "session.gob.gz",
		"strata_summary.csv", "loci_summary.csv", "samples_summary.csv",
		"scores.npy",
		"map.png", "screeplot.png", "scoremap.png", "surface.png",
		"loadings.png", "scatter.png",
		"permtest_global.png", "permtest_local.png", "permtest_combined.png",
	} {
		_, err := os.Stat(tmpdir + "/" + name)
		c.Check(err, check.IsNil, check.Commentf("%s", name))
	}

	ses, err := readSnapshot(tmpdir + "/session.gob.gz")
	c.Assert(err, check.IsNil)
	c.Check(ses.Title, check.Equals, "end to end")
	c.Check(ses.Scheme, check.Equals, "population")
	c.Check(ses.Dataset.Samples, check.HasLen, 50)
	c.Check(ses.Dataset.Loci, check.HasLen, 9)
	c.Check(ses.Dataset.Monomorphic, check.DeepEquals, []string{"locus_7"})
	c.Check(ses.InputDigests, check.HasLen, 2)
	c.Assert(ses.Tests, check.HasLen, 3)
	for _, t := range ses.Tests {
		c.Check(t.P >= 1.0/20 && t.P <= 1.0, check.Equals, true, check.Commentf("%s p=%v", t.Name, t.P))
	}

	f, err := os.Open(tmpdir + "/scores.npy")
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	scores, err := npy.GetFloat64()
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape[0], check.Equals, 50)
	c.Check(scores, check.HasLen, 50*npy.Shape[1])
}

func (s *pipelineSuite) TestRunMissingFlags(c *check.C) {
	stderr := &bytes.Buffer{}
	code := (&runcmd{}).RunCommand("spagen run", nil, bytes.NewReader(nil), os.Stdout, stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?s).*-genotypes, -strata, and -scheme are required.*`)
}
