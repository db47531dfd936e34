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
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/exascience/mxdx/fastx"
	"github.com/exascience/mxdx/filemap"
	"github.com/exascience/mxdx/internal"
	"github.com/exascience/mxdx/relay"
	"github.com/exascience/mxdx/utils/codec"
	"github.com/exascience/pargo/pipeline"
)

// UnrecognizedName is the base name of the outputs for records whose
// tag does not belong to the batch.
const UnrecognizedName = "unrecognized"

// Demultiplex splits a tagged stream of one batch into per-file
// outputs.
type Demultiplex struct {
	batch        int
	mxFiles      []filemap.MuxFile
	validTags    map[string]bool
	tagIndex     map[string]int
	handling     MergeHandling
	input        string
	inputReader  io.Reader
	outputDir    string
	outputs      [][2]string
	unrecognized [2]string
}

/*
NewDemultiplex prepares the demultiplexing of batch n of fm.

The tagged stream is read from inputReader if it is not nil, and
otherwise from the file named input, which is "-" for the standard
input. The outputs are written to outputDir, with the given extension
appended to the base name of each source file. The extension also
determines the compression of the outputs.
*/
func NewDemultiplex(fm *filemap.FileMap, n int, handling MergeHandling, input string, inputReader io.Reader, outputDir, extension string) (*Demultiplex, error) {
	if _, err := ParseMergeHandling(string(handling)); err != nil {
		return nil, err
	}
	if handling == Merge && !fm.IsPaired() {
		return nil, fmt.Errorf("%w: %v requires paired data", ErrInvalidHandling, handling)
	}
	extension = strings.TrimPrefix(extension, ".")
	if extension == "" {
		return nil, errors.New("missing output extension")
	}
	mxFiles, err := fm.Batch(n)
	if err != nil {
		return nil, err
	}
	if len(mxFiles) == 0 {
		return nil, fmt.Errorf("%w: batch %v", ErrEmptyBatch, n)
	}
	dx := &Demultiplex{
		batch:       n,
		mxFiles:     mxFiles,
		validTags:   make(map[string]bool, len(mxFiles)),
		tagIndex:    make(map[string]int, len(mxFiles)),
		handling:    handling,
		input:       input,
		inputReader: inputReader,
		outputDir:   outputDir,
		outputs:     make([][2]string, len(mxFiles)),
	}
	for i, mxFile := range mxFiles {
		dx.validTags[mxFile.Tag] = true
		dx.tagIndex[mxFile.Tag] = i
		dx.outputs[i][0] = filepath.Join(outputDir, OutputName(mxFile.File1, mxFile.Tag, mxFile.Complete, extension))
		if mxFile.File2 != "" {
			dx.outputs[i][1] = filepath.Join(outputDir, OutputName(mxFile.File2, mxFile.Tag, mxFile.Complete, extension))
		}
	}
	for i, suffix := range []string{".r1.", ".r2."} {
		dx.unrecognized[i] = filepath.Join(outputDir, UnrecognizedName+suffix+extension)
	}
	return dx, nil
}

// Outputs returns the output files of every MuxFile of the batch. The
// second entry is empty for unpaired data.
func (dx *Demultiplex) Outputs() [][2]string {
	return append([][2]string(nil), dx.outputs...)
}

// Start runs the demultiplexing pipeline and waits for it to finish.
func (dx *Demultiplex) Start(ctx context.Context) error {
	if err := os.MkdirAll(dx.outputDir, 0777); err != nil {
		return err
	}
	queue := relay.NewQueue[*fastx.Record](relay.BlockSize, relay.Capacity)
	return relay.Supervise(ctx, fmt.Sprintf("demultiplexing batch %v", dx.batch),
		func(ctx context.Context) error { return dx.read(ctx, queue) },
		func(ctx context.Context) error { return dx.write(ctx, queue) },
	)
}

func (dx *Demultiplex) read(ctx context.Context, queue *relay.Queue[*fastx.Record]) (funcErr error) {
	var (
		input *codec.InputFile
		err   error
	)
	if dx.inputReader != nil {
		input, err = codec.NewInputFile(dx.input, dx.inputReader)
	} else {
		input, err = codec.Open(dx.input)
	}
	if err != nil {
		return err
	}
	defer closeInput(input, &funcErr)

	format, err := sniffStream(dx.input, input.Reader)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("multiplexed input %v is empty, upstream likely failed", dx.input)
	} else if err != nil {
		return err
	}
	reader := fastx.NewReader(input.Reader, format)
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("%w, while reading %v", err, dx.input)
		}
		if err := queue.Put(ctx, rec); err != nil {
			return err
		}
	}
	return queue.Close(ctx)
}

// route determines the output of a record and removes its tag. The
// index of an unrecognized record is -1.
func (dx *Demultiplex) route(rec *fastx.Record) (index int, output string, err error) {
	side := 0
	if dx.handling == Separate && rec.Orientation() == fastx.R2 {
		side = 1
	}
	tag, err := rec.Detag(dx.validTags)
	if err != nil {
		return -1, dx.unrecognized[side], nil
	}
	index = dx.tagIndex[tag]
	if output = dx.outputs[index][side]; output == "" {
		return index, "", fmt.Errorf("record %v of tag %v is a second read, but the data are not paired", rec.ID, tag)
	}
	return index, output, nil
}

type routedRecord struct {
	index      int
	output     string
	start, end int
}

type routedBlock struct {
	buf     []byte
	records []routedRecord
}

func (dx *Demultiplex) write(ctx context.Context, queue *relay.Queue[*fastx.Record]) (funcErr error) {
	outputs := make(map[string]*codec.OutputFile)
	defer func() {
		for name, output := range outputs {
			if err := output.Close(); funcErr == nil && err != nil {
				funcErr = fmt.Errorf("%w, while closing %v", err, name)
			}
		}
	}()

	var (
		received     = bitset.New(uint(len(dx.mxFiles)))
		total        int
		unrecognized int
	)

	var p pipeline.Pipeline
	p.Source(queue.Source(ctx))
	p.SetVariableBatchSize(1, 1)
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			records := data.([]*fastx.Record)
			block := routedBlock{
				buf:     internal.ReserveByteBuffer(),
				records: make([]routedRecord, 0, len(records)),
			}
			for _, rec := range records {
				index, output, err := dx.route(rec)
				if err != nil {
					p.SetErr(err)
					return block
				}
				start := len(block.buf)
				block.buf = rec.Append(block.buf)
				block.records = append(block.records, routedRecord{index, output, start, len(block.buf)})
			}
			return block
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			block := data.(routedBlock)
			defer internal.ReleaseByteBuffer(block.buf)
			for _, rec := range block.records {
				output, ok := outputs[rec.output]
				if !ok {
					var err error
					if output, err = codec.Create(rec.output); err != nil {
						p.SetErr(err)
						return nil
					}
					outputs[rec.output] = output
				}
				if _, err := output.Write(block.buf[rec.start:rec.end]); err != nil {
					p.SetErr(fmt.Errorf("%w, while writing %v", err, rec.output))
					return nil
				}
				total++
				if rec.index < 0 {
					unrecognized++
				} else {
					received.Set(uint(rec.index))
				}
			}
			return nil
		})),
	)
	if err := internal.RunPipeline(&p, fmt.Sprintf("demultiplexing %v", dx.input)); err != nil {
		return err
	}

	log.Printf("Demultiplexed %v records of batch %v", total, dx.batch)
	if unrecognized > 0 {
		log.Printf("Warning: %v records with an unrecognized tag written to %v", unrecognized, filepath.Join(dx.outputDir, UnrecognizedName+".*"))
	}
	if missing := uint(len(dx.mxFiles)) - received.Count(); missing > 0 {
		for i, mxFile := range dx.mxFiles {
			if !received.Test(uint(i)) {
				log.Printf("Warning: no records received for %v with tag %v", mxFile.File1, mxFile.Tag)
			}
		}
	}
	return nil
}
