// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

type stratumSummary struct {
	Stratum     string  `csv:"stratum"`
	Samples     int     `csv:"n_samples"`
	ScoreMean   float64 `csv:"score_mean"`
	ScoreMedian float64 `csv:"score_median"`
	ScoreIQR    float64 `csv:"score_iqr"`
	MissingRate float64 `csv:"missing_rate"`
}

type locusSummary struct {
	Locus        string  `csv:"locus"`
	Alleles      int     `csv:"n_alleles"`
	MissingRate  float64 `csv:"missing_rate"`
	Contribution float64 `csv:"axis1_contribution"`
}

type sampleSummary struct {
	ID            string  `csv:"id"`
	Stratum       string  `csv:"stratum"`
	Latitude      float64 `csv:"latitude"`
	Longitude     float64 `csv:"longitude"`
	LonNormalized float64 `csv:"longitude_0_360"`
	Neighbors     int     `csv:"n_neighbors"`
	MissingLoci   int     `csv:"n_missing_loci"`
	Score1        float64 `csv:"score1"`
}

type assocRow struct {
	Outcome  string  `csv:"outcome"`
	Baseline string  `csv:"baseline"`
	Terms    string  `csv:"terms"`
	ChiSq    float64 `csv:"chi_squared"`
	DF       int     `csv:"df"`
	PValue   float64 `csv:"p_value"`
}

// writeSummaries writes the per-stratum, per-locus, and per-sample tables,
// plus the score~stratum association test when more than one stratum remains.
func writeSummaries(dir string, ses *session) error {
	ds := ses.Dataset
	lead := ses.leadingScore()

	var strata []stratumSummary
	for _, g := range ds.strata() {
		var scores []float64
		missing, cells := 0, 0
		for i, s := range ds.Samples {
			if s.Group != g {
				continue
			}
			scores = append(scores, lead[i])
			cells += len(s.Genotypes)
			for _, gt := range s.Genotypes {
				if gt == "" {
					missing++
				}
			}
		}
		median, _ := stats.Median(scores)
		iqr, _ := stats.InterQuartileRange(scores)
		strata = append(strata, stratumSummary{
			Stratum:     g,
			Samples:     len(scores),
			ScoreMean:   stat.Mean(scores, nil),
			ScoreMedian: median,
			ScoreIQR:    iqr,
			MissingRate: float64(missing) / float64(cells),
		})
	}
	if err := marshalCSV(filepath.Join(dir, "strata_summary.csv"), &strata); err != nil {
		return err
	}

	// axis-1 contribution per locus = sum of squared loadings of its alleles
	contrib := map[string]float64{}
	for i, col := range ses.ColNames {
		locus := col
		if j := strings.LastIndex(col, "."); j >= 0 {
			locus = col[:j]
		}
		contrib[locus] += ses.Loadings[i][0] * ses.Loadings[i][0]
	}
	var loci []locusSummary
	for li, name := range ds.Loci {
		missing := 0
		for _, s := range ds.Samples {
			if s.Genotypes[li] == "" {
				missing++
			}
		}
		loci = append(loci, locusSummary{
			Locus:        name,
			Alleles:      len(ds.Alleles[li]),
			MissingRate:  float64(missing) / float64(len(ds.Samples)),
			Contribution: contrib[name],
		})
	}
	if err := marshalCSV(filepath.Join(dir, "loci_summary.csv"), &loci); err != nil {
		return err
	}

	var samples []sampleSummary
	for i, s := range ds.Samples {
		missing := 0
		for _, gt := range s.Genotypes {
			if gt == "" {
				missing++
			}
		}
		samples = append(samples, sampleSummary{
			ID:            s.ID,
			Stratum:       s.Group,
			Latitude:      s.Lat,
			Longitude:     s.Lon,
			LonNormalized: normalizeLon(s.Lon),
			Neighbors:     ses.Weights.degree(i),
			MissingLoci:   missing,
			Score1:        lead[i],
		})
	}
	if err := marshalCSV(filepath.Join(dir, "samples_summary.csv"), &samples); err != nil {
		return err
	}

	assoc, err := scoreGroupAssociation(ds, lead)
	if err != nil {
		log.Warnf("score~stratum association: %s", err)
	} else if assoc != nil {
		log.Infof("score~stratum association: chi2 = %.4g on %d df, p = %.4g", assoc.ChiSq, assoc.DF, assoc.P)
		rows := []assocRow{{
			Outcome:  ses.AxisLabels[0],
			Baseline: assoc.Baseline,
			Terms:    strings.Join(assoc.Terms, ";"),
			ChiSq:    assoc.ChiSq,
			DF:       assoc.DF,
			PValue:   assoc.P,
		}}
		if err := marshalCSV(filepath.Join(dir, "association.csv"), &rows); err != nil {
			return err
		}
	}
	return nil
}

type statscmd struct{}

func (cmd *statscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "session.gob.gz", "session snapshot `file`")
	outputDir := flags.String("output-dir", ".", "output `directory`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if err = os.MkdirAll(*outputDir, 0777); err != nil {
		return 1
	}
	var ses *session
	ses, err = readSnapshot(*inputFilename)
	if err != nil {
		return 1
	}
	err = writeSummaries(*outputDir, ses)
	if err != nil {
		return 1
	}
	return 0
}
