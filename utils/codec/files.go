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

// Package codec opens and creates sequence files, transparently
// handling compressed data and the standard streams.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// BufferSize is the size of the buffers of input and output files.
// Format sniffing looks at most this many bytes ahead.
const BufferSize = 64 * 1024

const (
	// Stdio names the standard input or standard output stream.
	Stdio = "-"

	devStdin  = "/dev/stdin"
	devStdout = "/dev/stdout"
)

// InputFile is a possibly compressed file opened for input.
type InputFile struct {
	*bufio.Reader
	Compression Compression
	name        string
	closers     []io.Closer
}

// OutputFile is a possibly compressed file opened for output.
type OutputFile struct {
	*bufio.Writer
	Compression Compression
	name        string
	closers     []io.Closer
}

// Name returns the name the file was opened with.
func (f *InputFile) Name() string {
	return f.name
}

// Close closes the decompressor and the underlying file. The standard
// input is left open.
func (f *InputFile) Close() (err error) {
	for _, c := range f.closers {
		if nerr := c.Close(); err == nil {
			err = nerr
		}
	}
	f.closers = nil
	return err
}

// Name returns the name the file was created with.
func (f *OutputFile) Name() string {
	return f.name
}

// Close flushes buffered data, finishes the compressed stream, and
// closes the underlying file. The standard output is flushed but left
// open.
func (f *OutputFile) Close() (err error) {
	err = f.Flush()
	for _, c := range f.closers {
		if nerr := c.Close(); err == nil {
			err = nerr
		}
	}
	f.closers = nil
	return err
}

// IsStdio reports whether name denotes one of the standard streams.
func IsStdio(name string) bool {
	return name == Stdio || name == devStdin || name == devStdout
}

// Open a sequence file for input.
//
// Compressed input is recognized by its leading bytes, not by its
// filename extension.
//
// If the name is "-" or "/dev/stdin", then the input is read from
// os.Stdin.
func Open(name string) (*InputFile, error) {
	var (
		file    *os.File
		closers []io.Closer
	)
	if name == Stdio || name == devStdin {
		file = os.Stdin
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		file = f
		closers = append(closers, f)
	}
	return newInputFile(name, file, closers)
}

// NewInputFile wraps an already open stream as an input file. Closing
// the result does not close r.
func NewInputFile(name string, r io.Reader) (*InputFile, error) {
	return newInputFile(name, r, nil)
}

func newInputFile(name string, r io.Reader, closers []io.Closer) (*InputFile, error) {
	buf := bufio.NewReaderSize(r, BufferSize)
	head, _ := buf.Peek(maxMagicLength)
	compression := Detect(head)
	data, closer, err := detectReader(buf)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, fmt.Errorf("%w, while opening %v stream %v", err, compression, name)
	}
	if closer != nil {
		closers = append([]io.Closer{closer}, closers...)
	}
	if compression != Uncompressed {
		buf = bufio.NewReaderSize(data, BufferSize)
	}
	return &InputFile{
		Reader:      buf,
		Compression: compression,
		name:        name,
		closers:     closers,
	}, nil
}

// Create a sequence file for output.
//
// The compression format is chosen by filename extension: .gz, .bgz, .bz2,
// .xz, and .zst are supported. Any other extension produces
// uncompressed output.
//
// If the name is "-" or "/dev/stdout", then the output is written
// uncompressed to os.Stdout.
func Create(name string) (*OutputFile, error) {
	return CreateAs(name, ForName(name))
}

// CreateAs is Create with an explicit compression format, regardless of
// the filename extension.
func CreateAs(name string, compression Compression) (*OutputFile, error) {
	if name == Stdio || name == devStdout {
		return &OutputFile{
			Writer: bufio.NewWriterSize(os.Stdout, BufferSize),
			name:   name,
		}, nil
	}
	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	w, closer, err := compressWriter(file, compression)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w, while creating %v stream %v", err, compression, name)
	}
	closers := []io.Closer{file}
	if closer != nil {
		closers = append([]io.Closer{closer}, closers...)
	}
	return &OutputFile{
		Writer:      bufio.NewWriterSize(w, BufferSize),
		Compression: compression,
		name:        name,
		closers:     closers,
	}, nil
}
