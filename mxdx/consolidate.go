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
	"regexp"
	"sort"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"github.com/exascience/mxdx/filemap"
	"github.com/exascience/mxdx/internal"
	"github.com/exascience/mxdx/relay"
	"github.com/exascience/mxdx/utils/codec"
	"github.com/exascience/pargo/pipeline"
	"github.com/google/uuid"
)

// ConsolidateBlockSize is the size of the blocks in which fragments are
// copied.
const ConsolidateBlockSize = 1024 * 1024

const consolidateCapacity = 128

var partialPattern = regexp.MustCompile(`^` + regexp.QuoteMeta(PartialPrefix) + `\.(\d+\.\S{3}\.\d+)\.(.+)$`)

type fragment struct {
	path       string
	row, batch int
}

type fragmentGroup struct {
	output    string
	fragments []fragment
}

// Consolidate concatenates the partial outputs of a source file, in
// batch order, into its final output.
type Consolidate struct {
	outputDir string
	extension string
	groups    []fragmentGroup
}

// consolidateMessage either starts a new output, or carries data for
// the current one.
type consolidateMessage struct {
	output string
	data   []byte
}

/*
NewConsolidate scans outputDir for partial outputs with the given
extension, and groups them by the final output they belong to.

It is an error if a final output already exists next to its partial
outputs.
*/
func NewConsolidate(outputDir, extension string) (*Consolidate, error) {
	extension = strings.TrimPrefix(extension, ".")
	names, err := internal.Directory(outputDir, "."+extension)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]fragment)
	for _, name := range names {
		if !strings.HasPrefix(name, PartialPrefix) {
			continue
		}
		match := partialPattern.FindStringSubmatch(name)
		if match == nil {
			return nil, fmt.Errorf("could not extract tag from %v", name)
		}
		row, _, batch, err := filemap.ParseTag(match[1])
		if err != nil {
			return nil, fmt.Errorf("%w, while extracting tag from %v", err, name)
		}
		untagged := match[2]
		exists, err := internal.Exists(filepath.Join(outputDir, untagged))
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %v exists next to partial output %v", ErrAmbiguous, untagged, name)
		}
		groups[untagged] = append(groups[untagged], fragment{
			path:  filepath.Join(outputDir, name),
			row:   row,
			batch: batch,
		})
	}

	cx := &Consolidate{outputDir: outputDir, extension: extension}
	for output, fragments := range groups {
		sort.Slice(fragments, func(i, j int) bool {
			if fragments[i].row != fragments[j].row {
				return fragments[i].row < fragments[j].row
			}
			return fragments[i].batch < fragments[j].batch
		})
		cx.groups = append(cx.groups, fragmentGroup{output: filepath.Join(outputDir, output), fragments: fragments})
	}
	sort.Slice(cx.groups, func(i, j int) bool {
		return cx.groups[i].output < cx.groups[j].output
	})
	return cx, nil
}

// Outputs returns the final outputs that Start creates, and for each
// of them the fragments it is made of, in order.
func (cx *Consolidate) Outputs() map[string][]string {
	outputs := make(map[string][]string, len(cx.groups))
	for _, group := range cx.groups {
		for _, f := range group.fragments {
			outputs[group.output] = append(outputs[group.output], f.path)
		}
	}
	return outputs
}

// Start consolidates all groups and waits for it to finish. The
// fragments are left in place.
func (cx *Consolidate) Start(ctx context.Context) error {
	if len(cx.groups) == 0 {
		log.Printf("No partial outputs with extension %v found in %v", cx.extension, cx.outputDir)
		return nil
	}
	queue := relay.NewQueue[consolidateMessage](1, consolidateCapacity)
	return relay.Supervise(ctx, "consolidating "+cx.outputDir,
		func(ctx context.Context) error { return cx.read(ctx, queue) },
		func(ctx context.Context) error { return cx.write(ctx, queue) },
	)
}

func (cx *Consolidate) read(ctx context.Context, queue *relay.Queue[consolidateMessage]) error {
	for _, group := range cx.groups {
		if err := queue.Put(ctx, consolidateMessage{output: group.output}); err != nil {
			return err
		}
		for _, f := range group.fragments {
			if err := cx.readFragment(ctx, f.path, queue); err != nil {
				return fmt.Errorf("%w, while reading %v", err, f.path)
			}
		}
	}
	return queue.Close(ctx)
}

func (cx *Consolidate) readFragment(ctx context.Context, path string, queue *relay.Queue[consolidateMessage]) (funcErr error) {
	input, err := codec.Open(path)
	if err != nil {
		return err
	}
	defer closeInput(input, &funcErr)
	for {
		block := make([]byte, ConsolidateBlockSize)
		n, err := io.ReadFull(input, block)
		if n > 0 {
			if err := queue.Put(ctx, consolidateMessage{data: block[:n]}); err != nil {
				return err
			}
		}
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return nil
		default:
			return err
		}
	}
}

// destination is a final output under construction. Data is written
// to a temporary file that is renamed on commit.
type destination struct {
	path    string
	tmp     string
	output  *codec.OutputFile
	written int64
}

func createDestination(path string) (*destination, error) {
	tmp := path + "." + uuid.New().String() + ".tmp"
	output, err := codec.CreateAs(tmp, codec.ForName(path))
	if err != nil {
		return nil, err
	}
	return &destination{path: path, tmp: tmp, output: output}, nil
}

func (d *destination) write(data []byte) error {
	n, err := d.output.Write(data)
	d.written += int64(n)
	return err
}

func (d *destination) commit() error {
	if err := d.output.Close(); err != nil {
		_ = os.Remove(d.tmp)
		return fmt.Errorf("%w, while closing %v", err, d.tmp)
	}
	if err := os.Rename(d.tmp, d.path); err != nil {
		_ = os.Remove(d.tmp)
		return err
	}
	log.Printf("Consolidated %v into %v", bytefmt.ByteSize(uint64(d.written)), d.path)
	return nil
}

func (d *destination) discard() {
	_ = d.output.Close()
	_ = os.Remove(d.tmp)
}

func (cx *Consolidate) write(ctx context.Context, queue *relay.Queue[consolidateMessage]) error {
	var current *destination

	var p pipeline.Pipeline
	p.Source(queue.Source(ctx))
	p.SetVariableBatchSize(1, 1)
	p.Add(pipeline.Seq(pipeline.Receive(func(_ int, data interface{}) interface{} {
		for _, msg := range data.([]consolidateMessage) {
			if msg.output != "" {
				if current != nil {
					err := current.commit()
					current = nil
					if err != nil {
						p.SetErr(err)
						return nil
					}
				}
				d, err := createDestination(msg.output)
				if err != nil {
					p.SetErr(err)
					return nil
				}
				current = d
				continue
			}
			if current == nil {
				p.SetErr(errors.New("data received before an output was opened"))
				return nil
			}
			if err := current.write(msg.data); err != nil {
				p.SetErr(fmt.Errorf("%w, while writing %v", err, current.tmp))
				return nil
			}
		}
		return nil
	})))
	err := internal.RunPipeline(&p, "consolidating "+cx.outputDir)
	if current != nil {
		if err != nil {
			current.discard()
		} else {
			err = current.commit()
		}
	}
	return err
}
