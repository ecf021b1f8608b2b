// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// filtercmd runs the load/merge/filter/reshape stages only, writing the
// filtered composite-genotype table and the monomorphic-loci list.
type filtercmd struct {
	genotypesFile string
	strataFile    string
	scheme        string
}

func (cmd *filtercmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cmd.genotypesFile, "genotypes", "", "genotype table csv `file`")
	flags.StringVar(&cmd.strataFile, "strata", "", "strata table csv `file`")
	flags.StringVar(&cmd.scheme, "scheme", "", "stratification scheme `column`")
	outputFilename := flags.String("o", "-", "filtered table output `file`")
	monomorphicFilename := flags.String("monomorphic", "", "also write monomorphic locus list to `file`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if cmd.genotypesFile == "" || cmd.strataFile == "" || cmd.scheme == "" {
		err = schemaErrorf("-genotypes, -strata, and -scheme are required")
		return 2
	}

	gt, err := loadGenotypes(cmd.genotypesFile)
	if err != nil {
		return 1
	}
	st, err := loadStrata(cmd.strataFile)
	if err != nil {
		return 1
	}
	ds, err := buildDataset(gt, st, cmd.scheme)
	if err != nil {
		return 1
	}
	log.Infof("retained %d samples and %d polymorphic loci (%d monomorphic)",
		len(ds.Samples), len(ds.Loci), len(ds.Monomorphic))

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	err = writeFilteredTable(bufw, ds)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *monomorphicFilename != "" {
		err = writeMonomorphicList(*monomorphicFilename, ds.Monomorphic)
		if err != nil {
			return 1
		}
	}
	return 0
}

// writeFilteredTable writes the merged, filtered, reshaped table: one row per
// retained sample, one composite-genotype column per polymorphic locus.
func writeFilteredTable(w io.Writer, ds *dataset) error {
	if _, err := fmt.Fprint(w, "id,"+ds.Scheme+",latitude,longitude"); err != nil {
		return err
	}
	for _, l := range ds.Loci {
		if _, err := fmt.Fprintf(w, ",%s", l); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return err
	}
	for _, s := range ds.Samples {
		if _, err := fmt.Fprintf(w, "%s,%s,%g,%g", s.ID, s.Group, s.Lat, s.Lon); err != nil {
			return err
		}
		for _, g := range s.Genotypes {
			if _, err := fmt.Fprintf(w, ",%s", g); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprint(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
