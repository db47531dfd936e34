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

package relay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/exascience/pargo/pipeline"
)

func TestQueueOrder(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int](4, 2)
	go func() {
		for i := 0; i < 10; i++ {
			if err := q.Put(ctx, i); err != nil {
				t.Error(err)
				return
			}
		}
		if err := q.Close(ctx); err != nil {
			t.Error(err)
		}
	}()
	var items []int
	var sizes []int
	for {
		block, err := q.Get(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, len(block))
		items = append(items, block...)
	}
	if len(items) != 10 {
		t.Fatalf("queue lost items: %v", items)
	}
	for i, item := range items {
		if item != i {
			t.Errorf("queue order failed at %v: %v", i, item)
		}
	}
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("queue blocks failed: %v", sizes)
	}
}

func TestQueueCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue[int](1, 1)
	if err := q.Put(ctx, 1); err != nil {
		t.Fatal(err)
	}
	done := make(chan error)
	go func() {
		done <- q.Put(ctx, 2)
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Error("Put on a full queue failed")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Put on a full queue is not cancelled")
	}
	if _, err := NewQueue[int](1, 1).Get(ctx); !errors.Is(err, context.Canceled) {
		t.Error("Get on an empty queue is not cancelled")
	}
}

func TestQueueSource(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int](BlockSize, Capacity)
	go func() {
		for i := 0; i < 1000; i++ {
			_ = q.Put(ctx, i)
		}
		_ = q.Close(ctx)
	}()
	var p pipeline.Pipeline
	p.Source(q.Source(ctx))
	p.SetVariableBatchSize(1, 1)
	next := 0
	p.Add(pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
		for _, item := range data.([]int) {
			if item != next {
				p.SetErr(errors.New("out of order"))
			}
			next++
		}
		return nil
	})))
	p.Run()
	if err := p.Err(); err != nil {
		t.Fatal(err)
	}
	if next != 1000 {
		t.Errorf("pipeline received %v items", next)
	}
}

func TestSuperviseComplete(t *testing.T) {
	q := NewQueue[int](2, 2)
	total := 0
	err := Supervise(context.Background(), "test",
		func(ctx context.Context) error {
			for i := 1; i <= 10; i++ {
				if err := q.Put(ctx, i); err != nil {
					return err
				}
			}
			return q.Close(ctx)
		},
		func(ctx context.Context) error {
			for {
				block, err := q.Get(ctx)
				if err == io.EOF {
					return nil
				} else if err != nil {
					return err
				}
				for _, i := range block {
					total += i
				}
			}
		})
	if err != nil {
		t.Fatal(err)
	}
	if total != 55 {
		t.Errorf("Supervise lost items: %v", total)
	}
}

func TestSuperviseReaderError(t *testing.T) {
	q := NewQueue[int](2, 2)
	failure := errors.New("reader failed")
	err := Supervise(context.Background(), "test",
		func(ctx context.Context) error {
			_ = q.Put(ctx, 1)
			_ = q.Put(ctx, 2)
			return failure
		},
		func(ctx context.Context) error {
			for {
				if _, err := q.Get(ctx); err != nil {
					return err
				}
			}
		})
	if err != failure {
		t.Errorf("Supervise failed: %v", err)
	}
}

func TestSuperviseWriterError(t *testing.T) {
	q := NewQueue[int](1, 1)
	failure := errors.New("writer failed")
	err := Supervise(context.Background(), "test",
		func(ctx context.Context) error {
			for i := 0; ; i++ {
				if err := q.Put(ctx, i); err != nil {
					return err
				}
			}
		},
		func(ctx context.Context) error {
			if _, err := q.Get(ctx); err != nil {
				return err
			}
			return failure
		})
	if err != failure {
		t.Errorf("Supervise failed: %v", err)
	}
}

func TestSuperviseCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue[int](1, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Supervise(ctx, "test",
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		func(ctx context.Context) error {
			_, err := q.Get(ctx)
			return err
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Supervise failed: %v", err)
	}
}
