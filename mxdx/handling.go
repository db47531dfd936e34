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

// Package mxdx multiplexes batches of sequence files into one tagged
// stream, demultiplexes such streams back into per-file outputs, and
// consolidates the partial outputs of consecutive batches.
package mxdx

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/exascience/mxdx/fastx"
	"github.com/exascience/mxdx/utils/codec"
)

var (
	// ErrInvalidHandling is returned for a paired handling that is
	// unknown or unsupported for the data at hand.
	ErrInvalidHandling = errors.New("invalid paired handling")

	// ErrAmbiguous is returned when a final output file and partial
	// fragments of the same file coexist.
	ErrAmbiguous = errors.New("ambiguous consolidation")

	// ErrEmptyBatch is returned when a batch has no records.
	ErrEmptyBatch = errors.New("empty batch")
)

// PairedHandling determines how the reads of paired files are
// multiplexed.
type PairedHandling string

// Paired handlings for multiplexing.
const (
	Interleave PairedHandling = "interleave"
	Sequential PairedHandling = "sequential"
	R1Only     PairedHandling = "r1-only"
	R2Only     PairedHandling = "r2-only"
)

// PairedHandlings lists the valid paired handlings for multiplexing.
var PairedHandlings = []PairedHandling{Interleave, Sequential, R1Only, R2Only}

// ParsePairedHandling checks that s names a paired handling.
func ParsePairedHandling(s string) (PairedHandling, error) {
	for _, h := range PairedHandlings {
		if string(h) == s {
			return h, nil
		}
	}
	return "", fmt.Errorf("%w %q for multiplexing", ErrInvalidHandling, s)
}

// MergeHandling determines how the reads of paired files are written
// when demultiplexing.
type MergeHandling string

// Paired handlings for demultiplexing.
const (
	Separate MergeHandling = "separate"
	Merge    MergeHandling = "merge"
)

// MergeHandlings lists the valid paired handlings for demultiplexing.
var MergeHandlings = []MergeHandling{Separate, Merge}

// ParseMergeHandling checks that s names a paired handling for
// demultiplexing.
func ParseMergeHandling(s string) (MergeHandling, error) {
	for _, h := range MergeHandlings {
		if string(h) == s {
			return h, nil
		}
	}
	return "", fmt.Errorf("%w %q for demultiplexing", ErrInvalidHandling, s)
}

// PartialPrefix starts the names of output files that hold only part
// of the records of a source file.
const PartialPrefix = "dx-partial"

// OutputName returns the name of the demultiplexed output for a source
// file. Partial outputs are prefixed with PartialPrefix and the tag of
// the batch they belong to.
func OutputName(source, tag string, complete bool, extension string) string {
	name := filepath.Base(source) + "." + strings.TrimPrefix(extension, ".")
	if complete {
		return name
	}
	return PartialPrefix + "." + tag + "." + name
}

func sniffFile(name string) (format fastx.Format, funcErr error) {
	file, err := codec.Open(name)
	if err != nil {
		return fastx.None, err
	}
	defer func() {
		if err := file.Close(); funcErr == nil {
			funcErr = err
		}
	}()
	format, err = fastx.SniffFrom(file.Reader)
	return sniffed(name, format, err)
}

func sniffStream(name string, r *bufio.Reader) (fastx.Format, error) {
	format, err := fastx.SniffReader(r)
	return sniffed(name, format, err)
}

func sniffed(name string, format fastx.Format, err error) (fastx.Format, error) {
	if err != nil {
		return fastx.None, fmt.Errorf("%w, while detecting the record format of %v", err, name)
	}
	if format == fastx.None {
		return fastx.None, fmt.Errorf("%w: %v is not FASTA, FASTQ, or headerless SAM", fastx.ErrParse, name)
	}
	return format, nil
}
