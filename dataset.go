// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// genotypeSeparator joins the two allele codes of a composite genotype.
// Splitting on it recovers the original codes.
const genotypeSeparator = "/"

type sampleRecord struct {
	ID        string
	Group     string
	Lat, Lon  float64
	Genotypes []string // composite "a1/a2" per retained locus, "" when missing
}

// dataset is the merged, filtered, reshaped table for one stratification
// scheme. Each stage returns a new value; nothing mutates shared state.
type dataset struct {
	Scheme      string
	Loci        []string   // polymorphic loci, input order
	Alleles     [][]string // distinct non-missing alleles per retained locus, sorted
	Monomorphic []string
	Samples     []sampleRecord // sorted by (group, sample id)

	JoinedRows  int
	DroppedRows int
}

func (ds *dataset) strata() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range ds.Samples {
		if !seen[s.Group] {
			seen[s.Group] = true
			out = append(out, s.Group)
		}
	}
	sort.Strings(out)
	return out
}

func splitComposite(g string) (a1, a2 string, ok bool) {
	i := strings.Index(g, genotypeSeparator)
	if i < 0 {
		return "", "", false
	}
	return g[:i], g[i+len(genotypeSeparator):], true
}

// buildDataset joins the genotype and strata tables on sample id for the
// chosen scheme, drops samples missing a group label or coordinates,
// recomputes the monomorphic/polymorphic partition for the retained samples,
// and reshapes allele pairs into composite genotypes.
func buildDataset(gt *genotypeTable, st *strataTable, scheme string) (*dataset, error) {
	schemeOK := false
	for _, s := range st.Schemes {
		if s == scheme {
			schemeOK = true
			break
		}
	}
	if !schemeOK {
		return nil, schemaErrorf("stratification scheme %q not found (have %s)", scheme, strings.Join(st.Schemes, ", "))
	}

	ds := &dataset{Scheme: scheme}

	type joined struct {
		rec   sampleRecord
		pairs []allelePair
	}
	var keep []joined
	for _, id := range gt.Samples {
		row, ok := st.Rows[id]
		if !ok {
			continue
		}
		ds.JoinedRows++
		group := row.Groups[scheme]
		if group == "" || !row.HasCoords {
			ds.DroppedRows++
			continue
		}
		keep = append(keep, joined{
			rec:   sampleRecord{ID: id, Group: group, Lat: row.Lat, Lon: row.Lon},
			pairs: gt.Calls[id],
		})
	}
	if len(keep) == 0 {
		return nil, dataQualityErrorf("no samples retained for scheme %q: %d joined, %d dropped for missing group or coordinates",
			scheme, ds.JoinedRows, ds.DroppedRows)
	}

	// Monomorphic/polymorphic partition over the retained samples only.
	// This must be recomputed per scheme because retention differs.
	polymorphic := make([]bool, len(gt.Loci))
	for li := range gt.Loci {
		distinct := map[string]bool{}
		for _, j := range keep {
			for _, a := range []string{j.pairs[li].A1, j.pairs[li].A2} {
				if !missingAllele(a) {
					distinct[a] = true
				}
			}
		}
		if len(distinct) >= 2 {
			polymorphic[li] = true
			var alleles []string
			for a := range distinct {
				alleles = append(alleles, a)
			}
			sort.Strings(alleles)
			ds.Loci = append(ds.Loci, gt.Loci[li])
			ds.Alleles = append(ds.Alleles, alleles)
		} else {
			ds.Monomorphic = append(ds.Monomorphic, gt.Loci[li])
		}
	}
	if len(ds.Loci) == 0 {
		return nil, dataQualityErrorf("no polymorphic loci remain for scheme %q (%d samples retained, %d loci monomorphic)",
			scheme, len(keep), len(ds.Monomorphic))
	}
	if len(ds.Monomorphic) > 0 {
		log.Infof("scheme %q: %d monomorphic loci excluded, %d polymorphic retained", scheme, len(ds.Monomorphic), len(ds.Loci))
	}

	for _, j := range keep {
		rec := j.rec
		rec.Genotypes = make([]string, 0, len(ds.Loci))
		for li, poly := range polymorphic {
			if !poly {
				continue
			}
			p := j.pairs[li]
			if p.missing() {
				rec.Genotypes = append(rec.Genotypes, "")
			} else {
				rec.Genotypes = append(rec.Genotypes, p.A1+genotypeSeparator+p.A2)
			}
		}
		ds.Samples = append(ds.Samples, rec)
	}
	sort.Slice(ds.Samples, func(i, j int) bool {
		if ds.Samples[i].Group != ds.Samples[j].Group {
			return ds.Samples[i].Group < ds.Samples[j].Group
		}
		return ds.Samples[i].ID < ds.Samples[j].ID
	})
	return ds, nil
}

// freqMatrix is the centered allele-frequency matrix used by the analysis:
// one column per (locus, allele), cell = sample's dose of that allele / 2,
// missing genotypes imputed with the column mean.
type freqMatrix struct {
	ColNames []string
	Means    []float64
	Data     *mat.Dense // n samples x p allele columns, centered
}

func (ds *dataset) alleleFreqs() *freqMatrix {
	n := len(ds.Samples)
	var colNames []string
	type colkey struct{ locus, allele int }
	var cols []colkey
	for li, alleles := range ds.Alleles {
		for ai, a := range alleles {
			colNames = append(colNames, ds.Loci[li]+"."+a)
			cols = append(cols, colkey{li, ai})
		}
	}
	p := len(cols)
	raw := mat.NewDense(n, p, nil)
	obs := make([][]bool, n)
	for si, s := range ds.Samples {
		obs[si] = make([]bool, p)
		for ci, ck := range cols {
			g := s.Genotypes[ck.locus]
			if g == "" {
				continue
			}
			a1, a2, _ := splitComposite(g)
			obs[si][ci] = true
			dose := 0.0
			if a1 == ds.Alleles[ck.locus][ck.allele] {
				dose++
			}
			if a2 == ds.Alleles[ck.locus][ck.allele] {
				dose++
			}
			raw.Set(si, ci, dose/2)
		}
	}
	means := make([]float64, p)
	for ci := 0; ci < p; ci++ {
		sum, cnt := 0.0, 0
		for si := 0; si < n; si++ {
			if obs[si][ci] {
				sum += raw.At(si, ci)
				cnt++
			}
		}
		if cnt > 0 {
			means[ci] = sum / float64(cnt)
		}
		for si := 0; si < n; si++ {
			if obs[si][ci] {
				raw.Set(si, ci, raw.At(si, ci)-means[ci])
			} else {
				raw.Set(si, ci, 0) // mean-imputed, then centered
			}
		}
	}
	return &freqMatrix{ColNames: colNames, Means: means, Data: raw}
}
