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
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/exascience/mxdx/internal"
	"github.com/exascience/mxdx/mxdx"
	"github.com/exascience/mxdx/utils/codec"
)

// DemuxHelp is the help string for this command.
const DemuxHelp = "\nDemux parameters:\n" +
	"mxdx demux --file-map table --batch n --batch-size size\n" +
	"--output-base path --extension ext\n" +
	"[--mux-input [- | file]]\n" +
	"[--paired-handling [separate | merge]]\n" +
	"[--log-path path]\n" +
	"[--timed]\n"

// Demux implements the mxdx demux command.
func Demux() error {
	var (
		fileMap, muxInput, outputBase, pairedHandling, extension, logPath string
		batch, batchSize                                                  int
		timed                                                             bool
	)

	var flags flag.FlagSet

	flags.StringVar(&fileMap, "file-map", "", "table of source files and their record counts")
	flags.IntVar(&batch, "batch", -1, "the batch to demultiplex, starting at 0")
	flags.IntVar(&batchSize, "batch-size", 0, "the number of records per batch")
	flags.StringVar(&muxInput, "mux-input", codec.Stdio, "where to read the multiplexed records from")
	flags.StringVar(&outputBase, "output-base", "", "the directory to write the outputs to")
	flags.StringVar(&pairedHandling, "paired-handling", string(mxdx.Separate), "how to write paired records")
	flags.StringVar(&extension, "extension", "", "the extension of the outputs, which also selects compression")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")

	parseFlags(&flags, 2, DemuxHelp)

	if err := setLogOutput(logPath); err != nil {
		return err
	}

	// sanity checks

	sanityChecksFailed := !checkExist("--file-map", fileMap)
	if !checkBatch(batch, batchSize, true) {
		sanityChecksFailed = true
	}
	if !oneOf("--paired-handling", pairedHandling, handlingNames(mxdx.MergeHandlings)) {
		sanityChecksFailed = true
	}
	if !codec.IsStdio(muxInput) && !checkExist("--mux-input", muxInput) {
		sanityChecksFailed = true
	}
	if !checkDirectory("--output-base", outputBase, true) {
		sanityChecksFailed = true
	}
	if extension == "" {
		log.Println("Error: Missing --extension.")
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, DemuxHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " demux --file-map ", fileMap)
	fmt.Fprint(&command, " --batch ", batch, " --batch-size ", batchSize)
	fmt.Fprint(&command, " --mux-input ", muxInput)
	fmt.Fprint(&command, " --output-base ", outputBase)
	fmt.Fprint(&command, " --paired-handling ", pairedHandling)
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

	fm, err := openFileMap(fileMap, batchSize)
	if err != nil {
		return err
	}
	dx, err := mxdx.NewDemultiplex(fm, batch, mxdx.MergeHandling(pairedHandling), muxInput, nil, fullOutputBase, extension)
	if errors.Is(err, mxdx.ErrEmptyBatch) {
		log.Println("Nothing to do...")
		return nil
	} else if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	return timedRun(timed, fmt.Sprintf("Demultiplexing batch %v into %v.", batch, fullOutputBase), func() error {
		return dx.Start(ctx)
	})
}
