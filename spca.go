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
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const eigenZero = 1e-12

// spcaResult holds the spatially weighted eigen axes. Positive eigenvalues
// capture global structure (positive autocorrelation), negative eigenvalues
// local structure.
type spcaResult struct {
	Eigenvalues []float64 // full spectrum, descending
	PosRetained int
	NegRetained int

	AxisEigen []float64 // per retained axis: positives first, then negatives
	AxisMoran []float64
	AxisVar   []float64

	ColNames  []string
	Scores    *mat.Dense // n x retained
	LagScores *mat.Dense
	Loadings  *mat.Dense // p x retained
}

func (r *spcaResult) retained() int { return r.PosRetained + r.NegRetained }

// axisLabel names a retained axis the way the reports and plots refer to it.
func (r *spcaResult) axisLabel(k int) string {
	if k < r.PosRetained {
		return fmt.Sprintf("global%d", k+1)
	}
	return fmt.Sprintf("local%d", k-r.PosRetained+1)
}

// lagCovSpectrum computes the eigen-decomposition of C = ZᵀLZ/n. The returned
// values are descending; vectors is nil when withVectors is false.
func lagCovSpectrum(z *mat.Dense, l *mat.Dense, withVectors bool) (values []float64, vectors *mat.Dense, err error) {
	n, p := z.Dims()
	var lz mat.Dense
	lz.Mul(l, z)
	var c mat.Dense
	c.Mul(z.T(), &lz)
	c.Scale(1/float64(n), &c)

	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			sym.SetSym(i, j, (c.At(i, j)+c.At(j, i))/2)
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(sym, withVectors); !ok {
		return nil, nil, fmt.Errorf("eigen-decomposition of %dx%d lag covariance failed", p, p)
	}
	asc := es.Values(nil)
	values = make([]float64, p)
	for i := range asc {
		values[i] = asc[p-1-i]
	}
	if withVectors {
		var v mat.Dense
		es.VectorsTo(&v)
		vectors = mat.NewDense(p, p, nil)
		for j := 0; j < p; j++ {
			for i := 0; i < p; i++ {
				vectors.Set(i, j, v.At(i, p-1-j))
			}
		}
	}
	return values, vectors, nil
}

// runSPCA decomposes the centered allele-frequency matrix against the spatial
// weights, retaining nPos leading (global) and nNeg trailing (local) axes.
func runSPCA(fm *freqMatrix, w *spatialWeights, nPos, nNeg int) (*spcaResult, error) {
	n, p := fm.Data.Dims()
	if n != w.N {
		return nil, fmt.Errorf("allele matrix has %d rows but connection network has %d nodes", n, w.N)
	}
	values, vectors, err := lagCovSpectrum(fm.Data, w.lagOperator(nil), true)
	if err != nil {
		return nil, err
	}

	var axes []int
	for i := 0; i < len(values) && len(axes) < nPos; i++ {
		if values[i] > eigenZero {
			axes = append(axes, i)
		}
	}
	posRetained := len(axes)
	var neg []int
	for i := len(values) - 1; i >= 0 && len(neg) < nNeg; i-- {
		if values[i] < -eigenZero {
			neg = append(neg, i)
		}
	}
	// trailing axes in descending-eigenvalue order: most negative last
	sort.Ints(neg)
	axes = append(axes, neg...)
	if len(axes) == 0 {
		return nil, dataQualityErrorf("no eigenvalues exceed zero in either direction; nothing to retain")
	}

	res := &spcaResult{
		Eigenvalues: values,
		PosRetained: posRetained,
		NegRetained: len(axes) - posRetained,
		ColNames:    fm.ColNames,
		Scores:      mat.NewDense(n, len(axes), nil),
		LagScores:   mat.NewDense(n, len(axes), nil),
		Loadings:    mat.NewDense(p, len(axes), nil),
	}
	for k, ai := range axes {
		res.AxisEigen = append(res.AxisEigen, values[ai])
		for i := 0; i < p; i++ {
			res.Loadings.Set(i, k, vectors.At(i, ai))
		}
		score := make([]float64, n)
		for s := 0; s < n; s++ {
			dot := 0.0
			for i := 0; i < p; i++ {
				dot += fm.Data.At(s, i) * vectors.At(i, ai)
			}
			score[s] = dot
			res.Scores.Set(s, k, dot)
		}
		for s, v := range w.lagVec(score) {
			res.LagScores.Set(s, k, v)
		}
		res.AxisMoran = append(res.AxisMoran, w.moranI(score))
		res.AxisVar = append(res.AxisVar, stat.Variance(score, nil))
	}
	log.Infof("sPCA: retained %d global and %d local axes (spectrum %g .. %g)",
		res.PosRetained, res.NegRetained, values[0], values[len(values)-1])
	return res, nil
}

// spcacmd runs the full analysis for one stratification scheme and writes the
// analysis tables plus a session snapshot into the output directory.
type spcacmd struct {
	genotypesFile string
	strataFile    string
	scheme        string
	title         string
	dmin, dmax    float64
	npos, nneg    int
	nperm         int
	seed          uint64
	pcaComponents int
	writeNpy      bool
	outputDir     string
}

func (cmd *spcacmd) flags(flags *flag.FlagSet) {
	flags.StringVar(&cmd.genotypesFile, "genotypes", "", "genotype table csv `file` (sample id + paired allele columns)")
	flags.StringVar(&cmd.strataFile, "strata", "", "strata table csv `file` (id, latitude, longitude, scheme columns)")
	flags.StringVar(&cmd.scheme, "scheme", "", "stratification scheme `column` to analyze")
	flags.StringVar(&cmd.title, "title", "spagen analysis", "analysis `title` used on plots and reports")
	flags.Float64Var(&cmd.dmin, "dmin", 0, "minimum neighbor distance, `km`")
	flags.Float64Var(&cmd.dmax, "dmax", 100, "maximum neighbor distance, `km`")
	flags.IntVar(&cmd.npos, "npos", 1, "number of positive (global) axes to retain")
	flags.IntVar(&cmd.nneg, "nneg", 1, "number of negative (local) axes to retain")
	flags.IntVar(&cmd.nperm, "nperm", 99, "permutation count for significance tests")
	flags.Uint64Var(&cmd.seed, "seed", 1, "PRNG seed for permutation tests")
	flags.IntVar(&cmd.pcaComponents, "pca-components", 2, "ordinary PCA diagnostic axes (0 to skip)")
	flags.BoolVar(&cmd.writeNpy, "npy", false, "also write scores.npy")
	flags.StringVar(&cmd.outputDir, "output-dir", ".", "output `directory`")
}

func (cmd *spcacmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *spcacmd) run(args []string, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.flags(flags)
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	}
	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	if cmd.genotypesFile == "" || cmd.strataFile == "" || cmd.scheme == "" {
		return schemaErrorf("-genotypes, -strata, and -scheme are required")
	}
	if err := os.MkdirAll(cmd.outputDir, 0777); err != nil {
		return err
	}

	ses, err := cmd.analyze()
	if err != nil {
		return err
	}
	return writeAnalysisOutputs(cmd.outputDir, ses, cmd.writeNpy)
}

// analyze executes the sequential pipeline: load, merge/filter, reshape,
// spatial analysis, permutation tests.
func (cmd *spcacmd) analyze() (*session, error) {
	log.Infof("loading genotype table %s", cmd.genotypesFile)
	gt, err := loadGenotypes(cmd.genotypesFile)
	if err != nil {
		return nil, err
	}
	log.Infof("loading strata table %s", cmd.strataFile)
	st, err := loadStrata(cmd.strataFile)
	if err != nil {
		return nil, err
	}
	ds, err := buildDataset(gt, st, cmd.scheme)
	if err != nil {
		return nil, err
	}
	log.Infof("scheme %q: %d samples retained (%d joined, %d dropped), %d polymorphic loci",
		cmd.scheme, len(ds.Samples), ds.JoinedRows, ds.DroppedRows, len(ds.Loci))

	w, err := buildWeights(ds.Samples, cmd.dmin, cmd.dmax)
	if err != nil {
		return nil, err
	}
	fm := ds.alleleFreqs()
	res, err := runSPCA(fm, w, cmd.npos, cmd.nneg)
	if err != nil {
		return nil, err
	}
	tests := permutationTests(fm, w, cmd.nperm, cmd.seed)
	for _, t := range tests {
		log.Infof("%s test: observed %.6g, p = %.4g (%d permutations)", t.Name, t.Observed, t.P, t.Permutations)
		if log.IsLevelEnabled(log.DebugLevel) {
			hw := log.StandardLogger().Writer()
			printNullHistogram(hw, t)
			hw.Close()
		}
	}

	var pcaScores [][]float64
	if cmd.pcaComponents > 0 {
		pcaScores, err = ordinaryPCA(fm, cmd.pcaComponents)
		if err != nil {
			// diagnostic only; the sPCA result stands on its own
			log.Warnf("ordinary PCA diagnostic failed: %s", err)
		}
	}

	ses := newSession(cmd.title, ds, w, res, tests, pcaScores)
	ses.DMin, ses.DMax = cmd.dmin, cmd.dmax
	ses.NPerm, ses.Seed = cmd.nperm, cmd.seed
	for _, path := range []string{cmd.genotypesFile, cmd.strataFile} {
		digest, err := fileDigest(path)
		if err != nil {
			return nil, err
		}
		ses.InputDigests[filepath.Base(path)] = digest
	}
	return ses, nil
}
