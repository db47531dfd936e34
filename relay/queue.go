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

// Package relay connects a reader task to a writer task through a
// bounded queue, and supervises both.
package relay

import (
	"context"
	"io"

	"github.com/exascience/pargo/pipeline"
)

const (
	// BlockSize is the default number of items per block.
	BlockSize = 128

	// Capacity is the default number of blocks a queue can hold.
	Capacity = 256
)

/*
Queue is a bounded FIFO queue between one producer and one consumer.

The producer calls Put for every item, and Close at the end of the
stream. Items are accumulated in blocks, and only full blocks are
passed to the consumer. Close passes the last, partially filled
block before signalling the end of the stream.
*/
type Queue[T any] struct {
	channel   chan []T
	block     []T
	blockSize int
}

// NewQueue creates a queue that passes blocks of blockSize items and
// holds at most capacity blocks.
func NewQueue[T any](blockSize, capacity int) *Queue[T] {
	if blockSize < 1 {
		blockSize = 1
	}
	return &Queue[T]{
		channel:   make(chan []T, capacity),
		block:     make([]T, 0, blockSize),
		blockSize: blockSize,
	}
}

// Put adds an item to the queue. It blocks while the queue is full, or
// until ctx is done.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	q.block = append(q.block, item)
	if len(q.block) < q.blockSize {
		return nil
	}
	return q.flush(ctx)
}

func (q *Queue[T]) flush(ctx context.Context) error {
	if len(q.block) == 0 {
		return nil
	}
	select {
	case q.channel <- q.block:
		q.block = make([]T, 0, q.blockSize)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close passes any remaining items, and then signals the end of the
// stream. It must be called exactly once, and only after a successful
// stream.
func (q *Queue[T]) Close(ctx context.Context) error {
	err := q.flush(ctx)
	close(q.channel)
	return err
}

// Get returns the next block of items. It returns io.EOF after the last
// block, or the error of ctx when it is done first.
func (q *Queue[T]) Get(ctx context.Context) ([]T, error) {
	select {
	case block, ok := <-q.channel:
		if !ok {
			return nil, io.EOF
		}
		return block, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Source returns a pargo pipeline.Source that fetches the blocks of the
// queue until the end of the stream, or until ctx is done.
func (q *Queue[T]) Source(ctx context.Context) pipeline.Source {
	return &source[T]{queue: q, ctx: ctx}
}

type source[T any] struct {
	queue *Queue[T]
	ctx   context.Context
	pctx  context.Context
	data  []T
	err   error
}

func (src *source[T]) Err() error {
	return src.err
}

func (src *source[T]) Prepare(ctx context.Context) int {
	src.pctx = ctx
	return -1
}

func (src *source[T]) Fetch(_ int) int {
	var pipelineDone <-chan struct{}
	if src.pctx != nil {
		pipelineDone = src.pctx.Done()
	}
	src.data = nil
	select {
	case block, ok := <-src.queue.channel:
		if !ok {
			return 0
		}
		src.data = block
		return len(block)
	case <-src.ctx.Done():
		src.err = src.ctx.Err()
		return 0
	case <-pipelineDone:
		return 0
	}
}

func (src *source[T]) Data() interface{} {
	return src.data
}
