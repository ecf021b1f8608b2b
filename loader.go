// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/csimplestring/go-csv/detector"
)

// schemaError reports a problem with the shape of an input table. Schema
// errors are raised before any computation happens.
type schemaError struct{ msg string }

func (e schemaError) Error() string { return e.msg }

func schemaErrorf(format string, args ...interface{}) error {
	return schemaError{fmt.Sprintf(format, args...)}
}

// dataQualityError reports inputs that parse but leave nothing to analyze.
type dataQualityError struct{ msg string }

func (e dataQualityError) Error() string { return e.msg }

func dataQualityErrorf(format string, args ...interface{}) error {
	return dataQualityError{fmt.Sprintf(format, args...)}
}

var missingAlleleCodes = map[string]bool{
	"":     true,
	"00":   true,
	"000":  true,
	"-999": true,
	"na":   true,
}

func missingAllele(s string) bool {
	return missingAlleleCodes[strings.ToLower(strings.TrimSpace(s))]
}

type allelePair struct {
	A1, A2 string
}

func (p allelePair) missing() bool {
	return missingAllele(p.A1) || missingAllele(p.A2)
}

// genotypeTable is the wide two-columns-per-locus input, keyed by sample id.
type genotypeTable struct {
	Loci    []string
	Samples []string
	Calls   map[string][]allelePair
}

// strataRow holds one sample's coordinates and group labels. Blank strings in
// the source table are treated as missing.
type strataRow struct {
	ID        string
	Lat, Lon  float64
	HasCoords bool
	Groups    map[string]string
}

type strataTable struct {
	Schemes []string
	Order   []string
	Rows    map[string]strataRow
}

// readTable slurps a delimited file, sniffing the delimiter the same way for
// comma, tab, and semicolon inputs.
func readTable(path string) ([][]string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	comma := ','
	if delims := detector.New().DetectDelimiter(bytes.NewReader(buf), '"'); len(delims) > 0 {
		comma = rune(delims[0][0])
	}
	rdr := csv.NewReader(bytes.NewReader(buf))
	rdr.Comma = comma
	rdr.TrimLeadingSpace = true
	recs, err := rdr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(recs) < 2 {
		return nil, schemaErrorf("%s: need a header row and at least one data row", path)
	}
	return recs, nil
}

var locusSuffixRe = regexp.MustCompile(`(?i)[._-](a?[12]|[ab])$`)

func stripLocusSuffix(name string) string {
	return locusSuffixRe.ReplaceAllString(name, "")
}

// locusName resolves one (allele 1, allele 2) header pair to a locus name.
// Accepted conventions: identical names, a duplicate-column suffix on the
// second ("loc", "loc.1"), or a pairing suffix on both ("loc.a1", "loc.a2").
// The checks run in that order so a plain name ending in a digit is never
// stripped.
func locusName(h1, h2 string) (string, error) {
	switch {
	case h1 == "" || h2 == "":
		return "", fmt.Errorf("blank locus column name")
	case h1 == h2:
		return h1, nil
	case h1 == stripLocusSuffix(h2):
		return h1, nil
	case stripLocusSuffix(h1) == stripLocusSuffix(h2):
		return stripLocusSuffix(h1), nil
	}
	return "", fmt.Errorf("columns %q and %q do not name the same locus", h1, h2)
}

// loadGenotypes reads the genotype table: first column is the sample id,
// remaining columns come in (allele 1, allele 2) pairs per locus. Malformed
// pairing is a schema error, not an assumption.
func loadGenotypes(path string) (*genotypeTable, error) {
	recs, err := readTable(path)
	if err != nil {
		return nil, err
	}
	header := recs[0]
	if len(header) < 3 {
		return nil, schemaErrorf("%s: genotype table needs a sample id column and at least one locus pair", path)
	}
	if (len(header)-1)%2 != 0 {
		return nil, schemaErrorf("%s: %d allele columns cannot form (allele1, allele2) pairs", path, len(header)-1)
	}
	gt := &genotypeTable{Calls: map[string][]allelePair{}}
	seen := map[string]bool{}
	for c := 1; c < len(header); c += 2 {
		name, err := locusName(strings.TrimSpace(header[c]), strings.TrimSpace(header[c+1]))
		if err != nil {
			return nil, schemaErrorf("%s: %s", path, err)
		}
		if seen[name] {
			return nil, schemaErrorf("%s: duplicate locus %q", path, name)
		}
		seen[name] = true
		gt.Loci = append(gt.Loci, name)
	}
	for i, rec := range recs[1:] {
		if len(rec) != len(header) {
			return nil, schemaErrorf("%s: row %d has %d fields, header has %d", path, i+2, len(rec), len(header))
		}
		id := strings.TrimSpace(rec[0])
		if id == "" {
			return nil, schemaErrorf("%s: row %d has a blank sample id", path, i+2)
		}
		if _, dup := gt.Calls[id]; dup {
			return nil, schemaErrorf("%s: duplicate sample id %q", path, id)
		}
		pairs := make([]allelePair, 0, len(gt.Loci))
		for c := 1; c < len(rec); c += 2 {
			pairs = append(pairs, allelePair{strings.TrimSpace(rec[c]), strings.TrimSpace(rec[c+1])})
		}
		gt.Samples = append(gt.Samples, id)
		gt.Calls[id] = pairs
	}
	return gt, nil
}

func findColumn(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// loadStrata reads the strata table: sample id, latitude, longitude, plus one
// column per stratification scheme.
func loadStrata(path string) (*strataTable, error) {
	recs, err := readTable(path)
	if err != nil {
		return nil, err
	}
	header := recs[0]
	idCol := findColumn(header, "id")
	latCol := findColumn(header, "latitude")
	lonCol := findColumn(header, "longitude")
	for name, col := range map[string]int{"id": idCol, "latitude": latCol, "longitude": lonCol} {
		if col < 0 {
			return nil, schemaErrorf("%s: required column %q not found", path, name)
		}
	}
	st := &strataTable{Rows: map[string]strataRow{}}
	schemeCols := map[string]int{}
	for i, h := range header {
		if i == idCol || i == latCol || i == lonCol {
			continue
		}
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, schemaErrorf("%s: blank column name in header", path)
		}
		schemeCols[name] = i
		st.Schemes = append(st.Schemes, name)
	}
	if len(st.Schemes) == 0 {
		return nil, schemaErrorf("%s: no stratification-scheme columns besides id/latitude/longitude", path)
	}
	for i, rec := range recs[1:] {
		if len(rec) != len(header) {
			return nil, schemaErrorf("%s: row %d has %d fields, header has %d", path, i+2, len(rec), len(header))
		}
		row := strataRow{ID: strings.TrimSpace(rec[idCol]), Groups: map[string]string{}}
		if row.ID == "" {
			return nil, schemaErrorf("%s: row %d has a blank sample id", path, i+2)
		}
		if _, dup := st.Rows[row.ID]; dup {
			return nil, schemaErrorf("%s: duplicate sample id %q", path, row.ID)
		}
		latStr := strings.TrimSpace(rec[latCol])
		lonStr := strings.TrimSpace(rec[lonCol])
		if latStr != "" && lonStr != "" {
			lat, err1 := strconv.ParseFloat(latStr, 64)
			lon, err2 := strconv.ParseFloat(lonStr, 64)
			if err1 != nil || err2 != nil {
				return nil, schemaErrorf("%s: row %d: cannot parse coordinates (%q, %q)", path, i+2, latStr, lonStr)
			}
			row.Lat, row.Lon, row.HasCoords = lat, lon, true
		}
		for scheme, col := range schemeCols {
			if v := strings.TrimSpace(rec[col]); v != "" {
				row.Groups[scheme] = v
			}
		}
		st.Order = append(st.Order, row.ID)
		st.Rows[row.ID] = row
	}
	return st, nil
}
