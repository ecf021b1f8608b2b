package spagen

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var version = "development"

// handler is the contract every subcommand implements.
type handler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

type multi map[string]handler

func (m multi) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintf(stderr, "usage: %s <command> [options]\n\ncommands:\n", filepath.Base(prog))
		var names []string
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(stderr, "  %s\n", name)
		}
		return 2
	}
	h, ok := m[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "%s: unrecognized command %q (run with no arguments for a list)\n", prog, args[0])
		return 2
	}
	return h.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
}

type versionCmd struct{}

func (versionCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "spagen %s (%s)\n", version, runtime.Version())
	return 0
}

var handlers = multi{
	"version":   versionCmd{},
	"-version":  versionCmd{},
	"--version": versionCmd{},

	"filter": &filtercmd{},
	"spca":   &spcacmd{},
	"stats":  &statscmd{},
	"plot":   &plotcmd{},
	"run":    &runcmd{},
}

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(handlers.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
