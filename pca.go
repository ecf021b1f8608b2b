// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"github.com/james-bowman/nlp"
)

// ordinaryPCA computes non-spatial principal component scores of the centered
// allele-frequency matrix, as a diagnostic baseline for the spatial axes.
func ordinaryPCA(fm *freqMatrix, components int) ([][]float64, error) {
	n, p := fm.Data.Dims()
	if components > p {
		components = p
	}
	if components > n-1 {
		components = n - 1
	}
	if components < 1 {
		return nil, nil
	}
	// nlp treats columns as observations
	mtx := fm.Data.T()
	transformer := nlp.NewPCA(components)
	transformer.Fit(mtx)
	out, err := transformer.Transform(mtx)
	if err != nil {
		return nil, err
	}
	out = out.T()
	rows, cols := out.Dims()
	scores := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		scores[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			scores[i][j] = out.At(i, j)
		}
	}
	return scores, nil
}
