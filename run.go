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
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// runcmd executes the whole pipeline for one stratification scheme: filter,
// spatial analysis, summaries, and plots, all into one output directory.
type runcmd struct {
	spcacmd
	plots bool
}

func (cmd *runcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *runcmd) run(args []string, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.spcacmd.flags(flags)
	flags.BoolVar(&cmd.plots, "plots", true, "render diagnostic plots")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	} else if flags.NArg() > 0 {
		return fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
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

	filtered := filepath.Join(cmd.outputDir, "filtered.csv")
	f, err := os.Create(filtered)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	if err = writeFilteredTable(bufw, ses.Dataset); err != nil {
		return err
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	if err = writeAnalysisOutputs(cmd.outputDir, ses, cmd.writeNpy); err != nil {
		return err
	}
	if err = writeSummaries(cmd.outputDir, ses); err != nil {
		return err
	}
	if cmd.plots {
		if err = renderPlots(cmd.outputDir, ses); err != nil {
			return err
		}
	}
	log.Infof("run complete: outputs in %s", cmd.outputDir)
	return nil
}
