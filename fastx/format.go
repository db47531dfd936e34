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

package fastx

import (
	"bufio"
	"bytes"
	"io"
)

// Format is the record format of a sequence file.
type Format int

// The supported record formats. None means the format is unknown.
const (
	None Format = iota
	Fasta
	Fastq
	Sam
)

var formatNames = [...]string{"none", "fasta", "fastq", "sam"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return "unknown"
	}
	return formatNames[f]
}

// SupportsInterleave reports whether records of read 1 and read 2 can
// be interleaved in one stream of this format.
func (f Format) SupportsInterleave() bool {
	return f == Fasta || f == Fastq
}

// SniffLines is the number of lines a format is detected from.
const SniffLines = 40

var sniffOrder = [...]Format{Fastq, Sam, Fasta}

// Sniff detects the format of sample by decoding its first record as
// FASTQ, headerless SAM, and FASTA, in that order. It returns None if
// none of them succeeds.
func Sniff(sample []byte) Format {
	for _, f := range sniffOrder {
		r := NewReader(bufio.NewReader(bytes.NewReader(sample)), f)
		if _, err := r.Next(); err == nil {
			return f
		}
	}
	return None
}

// sniffTruncated detects a FASTQ sample that was cut off inside its
// first record. Such a record decodes as FASTA, since its quality is
// incomplete, but only FASTQ headers start with '@'.
func sniffTruncated(sample []byte) bool {
	sc := &fastxScanner{r: bufio.NewReader(bytes.NewReader(sample))}
	rec, err := sc.next()
	if err != nil {
		return false
	}
	return rec.Format == Fastq || (sc.pending == nil && sc.marker == '@')
}

// sniffSample detects the format of sample, which is incomplete if it
// may end inside a record.
func sniffSample(sample []byte, complete bool) Format {
	if !complete {
		if i := bytes.LastIndexByte(sample, '\n'); i >= 0 {
			sample = sample[:i+1]
		} else {
			sample = sample[:0]
		}
		if sniffTruncated(sample) {
			return Fastq
		}
	}
	return Sniff(sample)
}

// SniffReader detects the format of the data buffered in r from at most
// SniffLines lines, without consuming any of it. It returns io.EOF if r
// is empty. Records longer than the buffer of r are only partially
// seen.
func SniffReader(r *bufio.Reader) (Format, error) {
	sample, err := r.Peek(r.Size())
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return None, err
	}
	if len(sample) == 0 {
		return None, io.EOF
	}
	complete := err == io.EOF
	end := 0
	for lines := 0; lines < SniffLines; lines++ {
		i := bytes.IndexByte(sample[end:], '\n')
		if i < 0 {
			end = len(sample)
			break
		}
		end += i + 1
		if lines == SniffLines-1 {
			complete = true
		}
	}
	return sniffSample(sample[:end], complete), nil
}

// SniffFrom reads at most SniffLines whole lines from r, and detects
// their format. Unlike SniffReader, it consumes what it reads, and
// lines are not limited by the buffer size of r. It returns io.EOF if r
// is empty.
func SniffFrom(r *bufio.Reader) (Format, error) {
	var sample []byte
	for lines := 0; lines < SniffLines; lines++ {
		line, err := readLine(r)
		sample = append(sample, line...)
		if err == io.EOF {
			break
		} else if err != nil {
			return None, err
		}
	}
	if len(sample) == 0 {
		return None, io.EOF
	}
	return Sniff(sample), nil
}
