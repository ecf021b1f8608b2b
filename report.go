// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"bufio"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/pgzip"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"gonum.org/v1/gonum/mat"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// session is the full in-memory state of one analysis run, serialized as a
// gzipped gob snapshot at the end of the run.
type session struct {
	Title  string
	Scheme string

	DMin, DMax float64
	NPerm      int
	Seed       uint64

	InputDigests map[string]string

	Dataset *dataset
	Weights *spatialWeights

	Eigenvalues  []float64
	PosRetained  int
	NegRetained  int
	AxisLabels   []string
	AxisEigen    []float64
	AxisMoran    []float64
	AxisVar      []float64
	ColNames     []string
	Scores       [][]float64 // n x retained axes
	LagScores    [][]float64
	Loadings     [][]float64 // p x retained axes
	PCAScores    [][]float64 // n x diagnostic components, may be nil
	Tests        []permTest
}

func denseRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

func newSession(title string, ds *dataset, w *spatialWeights, res *spcaResult, tests []permTest, pcaScores [][]float64) *session {
	ses := &session{
		Title:        title,
		Scheme:       ds.Scheme,
		InputDigests: map[string]string{},
		Dataset:      ds,
		Weights:      w,
		Eigenvalues:  res.Eigenvalues,
		PosRetained:  res.PosRetained,
		NegRetained:  res.NegRetained,
		AxisEigen:    res.AxisEigen,
		AxisMoran:    res.AxisMoran,
		AxisVar:      res.AxisVar,
		ColNames:     res.ColNames,
		Scores:       denseRows(res.Scores),
		LagScores:    denseRows(res.LagScores),
		Loadings:     denseRows(res.Loadings),
		PCAScores:    pcaScores,
		Tests:        tests,
	}
	for k := 0; k < res.retained(); k++ {
		ses.AxisLabels = append(ses.AxisLabels, res.axisLabel(k))
	}
	return ses
}

// leadingScore returns the per-sample scores of the first retained axis.
func (ses *session) leadingScore() []float64 {
	out := make([]float64, len(ses.Scores))
	for i, row := range ses.Scores {
		out[i] = row[0]
	}
	return out
}

func fileDigest(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

func writeSnapshot(path string, ses *session) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	gzw := pgzip.NewWriter(bufw)
	err = gob.NewEncoder(gzw).Encode(ses)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err = gzw.Close(); err != nil {
		return err
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func readSnapshot(path string) (*session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gzr, err := pgzip.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		return nil, err
	}
	defer gzr.Close()
	var ses session
	if err = gob.NewDecoder(gzr).Decode(&ses); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &ses, nil
}

type eigenRow struct {
	Rank       int     `csv:"rank"`
	Eigenvalue float64 `csv:"eigenvalue"`
}

type axisRow struct {
	Axis       string  `csv:"axis"`
	Eigenvalue float64 `csv:"eigenvalue"`
	MoranI     float64 `csv:"moran_i"`
	Variance   float64 `csv:"variance"`
}

type testRow struct {
	Test         string  `csv:"test"`
	Observed     float64 `csv:"observed"`
	PValue       float64 `csv:"p_value"`
	Permutations int     `csv:"permutations"`
}

func marshalCSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeMonomorphicList(path string, loci []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err = fmt.Fprint(f, "locus\n"); err != nil {
		return err
	}
	for _, l := range loci {
		if _, err = fmt.Fprintf(f, "%s\n", l); err != nil {
			return err
		}
	}
	return f.Close()
}

// writeScores writes one row per sample with its metadata, spatial axis
// scores, lagged scores, and any diagnostic PCA scores.
func writeScores(path string, ses *session) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprint(w, "id,stratum,latitude,longitude")
	for _, l := range ses.AxisLabels {
		fmt.Fprintf(w, ",%s,%s_lag", l, l)
	}
	for k := range firstRow(ses.PCAScores) {
		fmt.Fprintf(w, ",pca%d", k+1)
	}
	fmt.Fprint(w, "\n")
	for i, s := range ses.Dataset.Samples {
		fmt.Fprintf(w, "%s,%s,%g,%g", s.ID, s.Group, s.Lat, s.Lon)
		for k := range ses.AxisLabels {
			fmt.Fprintf(w, ",%g,%g", ses.Scores[i][k], ses.LagScores[i][k])
		}
		if ses.PCAScores != nil {
			for _, v := range ses.PCAScores[i] {
				fmt.Fprintf(w, ",%g", v)
			}
		}
		fmt.Fprint(w, "\n")
	}
	if err = w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func firstRow(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

func writeLoadings(path string, ses *session) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprint(w, "allele")
	for _, l := range ses.AxisLabels {
		fmt.Fprintf(w, ",%s", l)
	}
	fmt.Fprint(w, "\n")
	for i, name := range ses.ColNames {
		fmt.Fprintf(w, "%s", name)
		for k := range ses.AxisLabels {
			fmt.Fprintf(w, ",%g", ses.Loadings[i][k])
		}
		fmt.Fprint(w, "\n")
	}
	if err = w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeScoresNpy(path string, ses *session) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	rows, cols := len(ses.Scores), len(ses.AxisLabels)
	out := make([]float64, 0, rows*cols)
	for _, row := range ses.Scores {
		out = append(out, row...)
	}
	npw.Shape = []int{rows, cols}
	if err = npw.WriteFloat64(out); err != nil {
		return err
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// writeAnalysisOutputs writes the analysis tables and the session snapshot.
func writeAnalysisOutputs(dir string, ses *session, npy bool) error {
	var eigens []eigenRow
	for i, v := range ses.Eigenvalues {
		eigens = append(eigens, eigenRow{Rank: i + 1, Eigenvalue: v})
	}
	if err := marshalCSV(filepath.Join(dir, "eigenvalues.csv"), &eigens); err != nil {
		return err
	}
	var axes []axisRow
	for k, l := range ses.AxisLabels {
		axes = append(axes, axisRow{Axis: l, Eigenvalue: ses.AxisEigen[k], MoranI: ses.AxisMoran[k], Variance: ses.AxisVar[k]})
	}
	if err := marshalCSV(filepath.Join(dir, "axes.csv"), &axes); err != nil {
		return err
	}
	var tests []testRow
	for _, t := range ses.Tests {
		tests = append(tests, testRow{Test: t.Name, Observed: t.Observed, PValue: t.P, Permutations: t.Permutations})
	}
	if err := marshalCSV(filepath.Join(dir, "permtests.csv"), &tests); err != nil {
		return err
	}
	if err := writeMonomorphicList(filepath.Join(dir, "monomorphic_loci.csv"), ses.Dataset.Monomorphic); err != nil {
		return err
	}
	if err := writeScores(filepath.Join(dir, "scores.csv"), ses); err != nil {
		return err
	}
	if err := writeLoadings(filepath.Join(dir, "loadings.csv"), ses); err != nil {
		return err
	}
	if npy {
		if err := writeScoresNpy(filepath.Join(dir, "scores.npy"), ses); err != nil {
			return err
		}
	}
	snapshot := filepath.Join(dir, "session.gob.gz")
	log.Infof("writing session snapshot to %s", snapshot)
	return writeSnapshot(snapshot, ses)
}
