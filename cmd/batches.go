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
	"flag"
	"fmt"
	"os"
)

// GetMaxBatchNumberHelp is the help string for this command.
const GetMaxBatchNumberHelp = "\nGet-max-batch-number parameters:\n" +
	"mxdx get-max-batch-number --file-map table --batch-size size\n" +
	"[--is-one-based]\n"

// GetMaxBatchNumber implements the mxdx get-max-batch-number command.
// It prints the number of the last batch to the standard output.
func GetMaxBatchNumber() error {
	var (
		fileMap    string
		batchSize  int
		isOneBased bool
	)

	var flags flag.FlagSet

	flags.StringVar(&fileMap, "file-map", "", "table of source files and their record counts")
	flags.IntVar(&batchSize, "batch-size", 0, "the number of records per batch")
	flags.BoolVar(&isOneBased, "is-one-based", false, "number batches starting at 1")

	parseFlags(&flags, 2, GetMaxBatchNumberHelp)

	sanityChecksFailed := !checkExist("--file-map", fileMap)
	if !checkBatch(0, batchSize, false) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, GetMaxBatchNumberHelp)
		os.Exit(1)
	}

	fm, err := openFileMap(fileMap, batchSize)
	if err != nil {
		return err
	}
	n := fm.NumberOfBatches()
	if !isOneBased {
		n--
	}
	fmt.Println(n)
	return nil
}
