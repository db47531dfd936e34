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

// mxdx splits a collection of FASTA, FASTQ, or headerless SAM files
// into fixed-size batches, multiplexes each batch into one tagged
// stream for processing, and demultiplexes the processed streams back
// into per-file outputs.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/mxdx/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: mux, demux, consolidate-partials, get-max-batch-number")
	fmt.Fprint(os.Stderr, cmd.MuxHelp)
	fmt.Fprint(os.Stderr, cmd.DemuxHelp)
	fmt.Fprint(os.Stderr, cmd.ConsolidatePartialsHelp)
	fmt.Fprint(os.Stderr, cmd.GetMaxBatchNumberHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "mux":
		err = cmd.Mux()
	case "demux":
		err = cmd.Demux()
	case "consolidate-partials":
		err = cmd.ConsolidatePartials()
	case "get-max-batch-number":
		err = cmd.GetMaxBatchNumber()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command:", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
