// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"io"
	stdlog "log"
	"math"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var glmConfig = &glm.Config{
	Family:         glm.NewFamily(glm.GaussianFamily),
	FitMethod:      "IRLS",
	ConcurrentIRLS: 1000,
	Log:            stdlog.New(io.Discard, "", 0),
}

func normalize(a []float64) {
	mean, std := stat.MeanStdDev(a, nil)
	if std == 0 {
		return
	}
	for i, x := range a {
		a[i] = (x - mean) / std
	}
}

// assocResult is a likelihood-ratio test of whether stratum membership
// explains the leading spatial score.
type assocResult struct {
	Terms    []string // non-baseline strata
	Baseline string
	ChiSq    float64
	DF       int
	P        float64
}

// scoreGroupAssociation regresses the given per-sample score on stratum
// indicator variables (Gaussian GLM) and compares against the intercept-only
// model. Returns nil when there are fewer than two strata.
func scoreGroupAssociation(ds *dataset, score []float64) (res *assocResult, err error) {
	defer func() {
		if recover() != nil {
			// typically "matrix singular or near-singular"
			res, err = nil, dataQualityErrorf("association model did not converge")
		}
	}()

	strata := ds.strata()
	if len(strata) < 2 {
		return nil, nil
	}
	baseline, terms := strata[0], strata[1:]

	outcome := make([]statmodel.Dtype, len(score))
	for i, v := range score {
		outcome[i] = statmodel.Dtype(v)
	}
	normalize(outcome)
	constants := make([]statmodel.Dtype, len(score))
	for i := range constants {
		constants[i] = 1
	}
	data := [][]statmodel.Dtype{outcome, constants}
	names := []string{"outcome", "constants"}
	for _, g := range terms {
		ind := make([]statmodel.Dtype, len(ds.Samples))
		for i, s := range ds.Samples {
			if s.Group == g {
				ind[i] = 1
			}
		}
		data = append(data, ind)
		names = append(names, "stratum_"+g)
	}

	nullData := statmodel.NewDataset(data[:2], names[:2])
	nullModel, err := glm.NewGLM(nullData, "outcome", names[1:2], glmConfig)
	if err != nil {
		return nil, err
	}
	logNull := nullModel.Fit().LogLike()

	fullData := statmodel.NewDataset(data, names)
	fullModel, err := glm.NewGLM(fullData, "outcome", names[1:], glmConfig)
	if err != nil {
		return nil, err
	}
	logFull := fullModel.Fit().LogLike()

	chisq := -2 * (logNull - logFull)
	if chisq < 0 {
		chisq = 0
	}
	df := len(terms)
	dist := distuv.ChiSquared{K: float64(df)}
	p := dist.Survival(chisq)
	if math.IsNaN(p) {
		return nil, dataQualityErrorf("association test produced no p-value")
	}
	return &assocResult{Terms: terms, Baseline: baseline, ChiSq: chisq, DF: df, P: p}, nil
}
