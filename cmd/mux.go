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

	"github.com/exascience/mxdx/filemap"
	"github.com/exascience/mxdx/mxdx"
	"github.com/exascience/mxdx/utils/codec"
)

// MuxHelp is the help string for this command.
const MuxHelp = "\nMux parameters:\n" +
	"mxdx mux --file-map table --batch n --batch-size size\n" +
	"[--output [- | file]]\n" +
	"[--paired-handling [interleave | sequential | r1-only | r2-only]]\n" +
	"[--log-path path]\n" +
	"[--timed]\n"

func handlingNames[T ~string](handlings []T) []string {
	names := make([]string, len(handlings))
	for i, h := range handlings {
		names[i] = string(h)
	}
	return names
}

func openFileMap(fileMap string, batchSize int) (*filemap.FileMap, error) {
	fm, err := filemap.Open(fileMap, batchSize)
	if err != nil {
		return nil, err
	}
	log.Printf("File map %v: %v records in %v batches of at most %v records\n", fileMap, fm.TotalRecords(), fm.NumberOfBatches(), fm.BatchSize())
	return fm, nil
}

// Mux implements the mxdx mux command.
func Mux() error {
	var (
		fileMap, output, pairedHandling, logPath string
		batch, batchSize                         int
		timed                                    bool
	)

	var flags flag.FlagSet

	flags.StringVar(&fileMap, "file-map", "", "table of source files and their record counts")
	flags.IntVar(&batch, "batch", -1, "the batch to multiplex, starting at 0")
	flags.IntVar(&batchSize, "batch-size", 0, "the number of records per batch")
	flags.StringVar(&output, "output", codec.Stdio, "where to write the multiplexed records")
	flags.StringVar(&pairedHandling, "paired-handling", string(mxdx.Sequential), "how to multiplex paired files")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")

	parseFlags(&flags, 2, MuxHelp)

	if err := setLogOutput(logPath); err != nil {
		return err
	}

	// sanity checks

	sanityChecksFailed := !checkExist("--file-map", fileMap)
	if !checkBatch(batch, batchSize, true) {
		sanityChecksFailed = true
	}
	if !oneOf("--paired-handling", pairedHandling, handlingNames(mxdx.PairedHandlings)) {
		sanityChecksFailed = true
	}
	if !codec.IsStdio(output) && !checkCreate("--output", output) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, MuxHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " mux --file-map ", fileMap)
	fmt.Fprint(&command, " --batch ", batch, " --batch-size ", batchSize)
	fmt.Fprint(&command, " --output ", output)
	fmt.Fprint(&command, " --paired-handling ", pairedHandling)
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	fm, err := openFileMap(fileMap, batchSize)
	if err != nil {
		return err
	}
	if batch == 0 {
		if err := fm.ValidatePaths(); err != nil {
			return err
		}
	}
	mx, err := mxdx.NewMultiplex(fm, batch, mxdx.PairedHandling(pairedHandling), output)
	if errors.Is(err, mxdx.ErrEmptyBatch) {
		log.Println("Nothing to do...")
		return nil
	} else if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	return timedRun(timed, fmt.Sprintf("Multiplexing batch %v of %v %v records.", batch, fm.NumberOfBatches(), mx.Format()), func() error {
		return mx.Start(ctx)
	})
}
