// mxdx: batch multiplexing and demultiplexing of sequence files.
// Copyright (c) 2024 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/mxdx/blob/master/LICENSE.txt>.

package cmd

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/exascience/mxdx/internal"
	"github.com/exascience/mxdx/mxdx"
)

// ConsolidatePartialsHelp is the help string for this command.
const ConsolidatePartialsHelp = "\nConsolidate-partials parameters:\n" +
	"mxdx consolidate-partials --output-base path --extension ext\n" +
	"[--log-path path]\n" +
	"[--timed]\n"

// ConsolidatePartials implements the mxdx consolidate-partials command.
func ConsolidatePartials() error {
	var (
		outputBase, extension, logPath string
		timed                          bool
	)

	var flags flag.FlagSet

	flags.StringVar(&outputBase, "output-base", "", "the directory holding the partial outputs")
	flags.StringVar(&extension, "extension", "", "the extension of the partial outputs")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")

	parseFlags(&flags, 2, ConsolidatePartialsHelp)

	if err := setLogOutput(logPath); err != nil {
		return err
	}

	// sanity checks

	sanityChecksFailed := !checkDirectory("--output-base", outputBase, false)
	if extension == "" {
		log.Println("Error: Missing --extension.")
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, ConsolidatePartialsHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " consolidate-partials --output-base ", outputBase)
	fmt.Fprint(&command, " --extension ", extension)
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	fullOutputBase, err := internal.FullPathname(outputBase)
	if err != nil {
		return err
	}

	cx, err := mxdx.NewConsolidate(fullOutputBase, extension)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	return timedRun(timed, fmt.Sprintf("Consolidating partial outputs in %v.", fullOutputBase), func() error {
		return cx.Start(ctx)
	})
}
