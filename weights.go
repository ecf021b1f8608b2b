// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// spatialWeights is a row-standardized distance-band connection network:
// samples i and j are neighbors when dmin <= distance(i,j) < dmax (km).
type spatialWeights struct {
	N          int
	DMin, DMax float64
	Neighbors  [][]int
	Weights    [][]float64 // aligned with Neighbors, rows sum to 1
}

func buildWeights(samples []sampleRecord, dmin, dmax float64) (*spatialWeights, error) {
	if dmax <= dmin {
		return nil, schemaErrorf("neighbor distance bounds: dmax (%g) must exceed dmin (%g)", dmax, dmin)
	}
	n := len(samples)
	w := &spatialWeights{
		N:         n,
		DMin:      dmin,
		DMax:      dmax,
		Neighbors: make([][]int, n),
		Weights:   make([][]float64, n),
	}
	edges := 0
	isolated := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			d := haversineKm(samples[i].Lat, samples[i].Lon, samples[j].Lat, samples[j].Lon)
			if d >= dmin && d < dmax {
				w.Neighbors[i] = append(w.Neighbors[i], j)
			}
		}
		deg := len(w.Neighbors[i])
		if deg == 0 {
			isolated++
			continue
		}
		edges += deg
		w.Weights[i] = make([]float64, deg)
		for k := range w.Weights[i] {
			w.Weights[i][k] = 1 / float64(deg)
		}
	}
	if edges == 0 {
		return nil, dataQualityErrorf("connection network has no edges for distance band [%g, %g) km over %d samples", dmin, dmax, n)
	}
	if isolated > 0 {
		log.Warnf("connection network: %d of %d samples have no neighbors in [%g, %g) km", isolated, n, dmin, dmax)
	}
	return w, nil
}

func (w *spatialWeights) degree(i int) int { return len(w.Neighbors[i]) }

// lagVec computes W·x, the spatially lagged vector.
func (w *spatialWeights) lagVec(x []float64) []float64 {
	out := make([]float64, w.N)
	for i, nb := range w.Neighbors {
		for k, j := range nb {
			out[i] += w.Weights[i][k] * x[j]
		}
	}
	return out
}

// lagOperator returns the symmetrized weight matrix L = (W + Wᵀ)/2 with rows
// and columns reordered by perm (identity when perm is nil). Permuting the
// operator relabels the samples on the network, which is how the Monte-Carlo
// tests break the genotype/location pairing.
func (w *spatialWeights) lagOperator(perm []int) *mat.Dense {
	pos := make([]int, w.N)
	for i := 0; i < w.N; i++ {
		pos[i] = i
	}
	if perm != nil {
		pos = perm
	}
	l := mat.NewDense(w.N, w.N, nil)
	for i, nb := range w.Neighbors {
		for k, j := range nb {
			v := w.Weights[i][k] / 2
			l.Set(pos[i], pos[j], l.At(pos[i], pos[j])+v)
			l.Set(pos[j], pos[i], l.At(pos[j], pos[i])+v)
		}
	}
	return l
}

// moranI is Moran's spatial autocorrelation index of x under these weights.
func (w *spatialWeights) moranI(x []float64) float64 {
	n := float64(w.N)
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= n
	var s0, num, den float64
	for i, nb := range w.Neighbors {
		den += (x[i] - mean) * (x[i] - mean)
		for k, j := range nb {
			s0 += w.Weights[i][k]
			num += w.Weights[i][k] * (x[i] - mean) * (x[j] - mean)
		}
	}
	if den == 0 || s0 == 0 {
		return 0
	}
	return (n / s0) * (num / den)
}
