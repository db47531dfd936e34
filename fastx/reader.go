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
	"fmt"
	"io"
)

// Reader decodes records of one format from a buffered stream.
type Reader struct {
	format Format
	fastx  *fastxScanner
	sam    *samScanner
}

// NewReader creates a Reader for records of the given format.
func NewReader(r *bufio.Reader, format Format) *Reader {
	reader := &Reader{format: format}
	switch format {
	case Fasta, Fastq:
		reader.fastx = &fastxScanner{r: r}
	case Sam:
		reader.sam = &samScanner{r: r}
	}
	return reader
}

// Format returns the record format of the reader.
func (r *Reader) Format() Format {
	return r.format
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (*Record, error) {
	switch r.format {
	case Fasta, Fastq:
		rec, err := r.fastx.next()
		if err != nil {
			return nil, err
		}
		if rec.Format != r.format {
			return nil, fmt.Errorf("%w: record %v is %v, but the stream is %v", ErrParse, rec.ID, rec.Format, r.format)
		}
		return rec, nil
	case Sam:
		return r.sam.next()
	default:
		return nil, fmt.Errorf("%w: unknown record format", ErrParse)
	}
}

// RangeReader returns the records [start, stop) of a Reader, with an
// orientation suffix applied to their identifiers.
type RangeReader struct {
	r           *Reader
	position    int
	start, stop int
	orientation Orientation
}

// NewRangeReader creates a RangeReader. The records before start are
// skipped on the first call to Next.
func NewRangeReader(r *Reader, start, stop int, orientation Orientation) (*RangeReader, error) {
	if start < 0 || stop < start {
		return nil, fmt.Errorf("%w: [%v, %v)", ErrOutOfRange, start, stop)
	}
	return &RangeReader{r: r, start: start, stop: stop, orientation: orientation}, nil
}

// Next returns the next record in range, or io.EOF after the last one.
// A stream that ends before stop is an ErrParse.
func (rr *RangeReader) Next() (*Record, error) {
	for rr.position < rr.stop {
		rec, err := rr.r.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: stream exhausted after %v records, but %v were expected", ErrParse, rr.position, rr.stop)
		} else if err != nil {
			return nil, err
		}
		rr.position++
		if rr.position > rr.start {
			rec.SetOrientation(rr.orientation)
			return rec, nil
		}
	}
	return nil, io.EOF
}

// ReadRange calls yield for the records [start, stop) of r, with the
// orientation suffix applied.
func ReadRange(r *Reader, start, stop int, orientation Orientation, yield func(*Record) error) error {
	rr, err := NewRangeReader(r, start, stop, orientation)
	if err != nil {
		return err
	}
	for {
		rec, err := rr.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if err := yield(rec); err != nil {
			return err
		}
	}
}
