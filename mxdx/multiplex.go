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

package mxdx

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/exascience/mxdx/fastx"
	"github.com/exascience/mxdx/filemap"
	"github.com/exascience/mxdx/internal"
	"github.com/exascience/mxdx/relay"
	"github.com/exascience/mxdx/utils/codec"
	"github.com/exascience/pargo/pipeline"
)

// Multiplex writes the records of one batch as a single tagged stream.
type Multiplex struct {
	batch    int
	mxFiles  []filemap.MuxFile
	handling PairedHandling
	output   string
	format   fastx.Format
}

// NewMultiplex prepares batch n of fm for multiplexing into output,
// which is "-" for the standard output. The record format is detected
// from the first source file of the batch.
func NewMultiplex(fm *filemap.FileMap, n int, handling PairedHandling, output string) (*Multiplex, error) {
	if _, err := ParsePairedHandling(string(handling)); err != nil {
		return nil, err
	}
	if !fm.IsPaired() && (handling == Interleave || handling == R2Only) {
		return nil, fmt.Errorf("%w: %v requires paired data", ErrInvalidHandling, handling)
	}
	mxFiles, err := fm.Batch(n)
	if err != nil {
		return nil, err
	}
	if len(mxFiles) == 0 {
		return nil, fmt.Errorf("%w: batch %v", ErrEmptyBatch, n)
	}
	sniffed := mxFiles[0].File1
	if handling == R2Only {
		sniffed = mxFiles[0].File2
	}
	format, err := sniffFile(sniffed)
	if err != nil {
		return nil, err
	}
	if handling == Interleave && !format.SupportsInterleave() {
		return nil, fmt.Errorf("%w: %v records cannot be interleaved", ErrInvalidHandling, format)
	}
	return &Multiplex{
		batch:    n,
		mxFiles:  mxFiles,
		handling: handling,
		output:   output,
		format:   format,
	}, nil
}

// Format returns the detected record format.
func (mx *Multiplex) Format() fastx.Format {
	return mx.format
}

// MuxFiles returns the source ranges of the batch.
func (mx *Multiplex) MuxFiles() []filemap.MuxFile {
	return append([]filemap.MuxFile(nil), mx.mxFiles...)
}

// Start runs the multiplexing pipeline and waits for it to finish.
func (mx *Multiplex) Start(ctx context.Context) error {
	queue := relay.NewQueue[*fastx.Record](relay.BlockSize, relay.Capacity)
	return relay.Supervise(ctx, fmt.Sprintf("multiplexing batch %v", mx.batch),
		func(ctx context.Context) error { return mx.read(ctx, queue) },
		func(ctx context.Context) error { return mx.write(ctx, queue) },
	)
}

func (mx *Multiplex) read(ctx context.Context, queue *relay.Queue[*fastx.Record]) error {
	for _, mxFile := range mx.mxFiles {
		if err := mx.readMuxFile(ctx, mxFile, queue); err != nil {
			return fmt.Errorf("%w, while reading records for tag %v", err, mxFile.Tag)
		}
	}
	return queue.Close(ctx)
}

func (mx *Multiplex) openRange(name string, mxFile filemap.MuxFile, orientation fastx.Orientation) (*codec.InputFile, *fastx.RangeReader, error) {
	file, err := codec.Open(name)
	if err != nil {
		return nil, nil, err
	}
	reads, err := fastx.NewRangeReader(fastx.NewReader(file.Reader, mx.format), mxFile.Start, mxFile.Stop, orientation)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return file, reads, nil
}

func closeInput(file *codec.InputFile, funcErr *error) {
	if err := file.Close(); *funcErr == nil {
		*funcErr = err
	}
}

func (mx *Multiplex) readMuxFile(ctx context.Context, mxFile filemap.MuxFile, queue *relay.Queue[*fastx.Record]) (funcErr error) {
	var r1, r2 *fastx.RangeReader
	if mx.handling != R2Only {
		file, reads, err := mx.openRange(mxFile.File1, mxFile, fastx.R1)
		if err != nil {
			return err
		}
		defer closeInput(file, &funcErr)
		r1 = reads
	}
	if mxFile.File2 != "" && mx.handling != R1Only {
		file, reads, err := mx.openRange(mxFile.File2, mxFile, fastx.R2)
		if err != nil {
			return err
		}
		defer closeInput(file, &funcErr)
		r2 = reads
	}

	put := func(rec *fastx.Record) error {
		return queue.Put(ctx, rec.Tag(mxFile.Tag))
	}
	drain := func(reads *fastx.RangeReader) error {
		for {
			rec, err := reads.Next()
			if err == io.EOF {
				return nil
			} else if err != nil {
				return err
			}
			if err := put(rec); err != nil {
				return err
			}
		}
	}

	if mx.handling == Interleave {
		for {
			rec1, err := r1.Next()
			if err == io.EOF {
				return nil
			} else if err != nil {
				return fmt.Errorf("%w, while reading %v", err, mxFile.File1)
			}
			rec2, err := r2.Next()
			if err != nil {
				return fmt.Errorf("%w, while reading %v", err, mxFile.File2)
			}
			if err := put(rec1); err != nil {
				return err
			}
			if err := put(rec2); err != nil {
				return err
			}
		}
	}
	if r1 != nil {
		if err := drain(r1); err != nil {
			return fmt.Errorf("%w, while reading %v", err, mxFile.File1)
		}
	}
	if r2 != nil {
		if err := drain(r2); err != nil {
			return fmt.Errorf("%w, while reading %v", err, mxFile.File2)
		}
	}
	return nil
}

func (mx *Multiplex) write(ctx context.Context, queue *relay.Queue[*fastx.Record]) (funcErr error) {
	output, err := codec.Create(mx.output)
	if err != nil {
		return err
	}
	defer func() {
		if err := output.Close(); funcErr == nil && err != nil {
			funcErr = fmt.Errorf("%w, while closing %v", err, mx.output)
		}
	}()

	var p pipeline.Pipeline
	p.Source(queue.Source(ctx))
	p.SetVariableBatchSize(1, 1)
	p.Add(
		pipeline.LimitedPar(0, fastx.RecordsToBytes()),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			buf := data.([]byte)
			_, err := output.Write(buf)
			internal.ReleaseByteBuffer(buf)
			if err != nil {
				if codec.IsBrokenPipe(err) {
					log.Printf("Output %v was closed downstream", mx.output)
				}
				p.SetErr(err)
			}
			return nil
		})),
	)
	return internal.RunPipeline(&p, fmt.Sprintf("writing %v", mx.output))
}
