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
	"log"
	"sync"
)

// Message is a control message posted by a supervised task.
type Message int

// Control messages.
const (
	// Complete is posted by the writer task after it has written all
	// data.
	Complete Message = iota

	// Error is posted by a task that failed.
	Error
)

func (m Message) String() string {
	if m == Error {
		return "ERROR"
	}
	return "COMPLETE"
}

const controlCapacity = 16

type report struct {
	task    string
	message Message
	err     error
}

// Task is one side of a supervised pipeline.
type Task func(ctx context.Context) error

/*
Supervise runs read and write concurrently and waits for the outcome.

Both tasks share a context derived from ctx. A task that fails posts
an Error message, after which the supervisor cancels the shared
context, waits for both tasks to return, and returns the error. When
the write task finishes successfully, it posts a Complete message, and
the supervisor waits for both tasks and returns nil.

The read task must close its queue only after a successful stream, so
that the write task cannot complete before a read error is reported.
*/
func Supervise(ctx context.Context, name string, read, write Task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	control := make(chan report, controlCapacity)
	var wait sync.WaitGroup
	wait.Add(2)
	go func() {
		defer wait.Done()
		if err := read(ctx); err != nil {
			control <- report{"reader", Error, err}
		}
	}()
	go func() {
		defer wait.Done()
		if err := write(ctx); err != nil {
			control <- report{"writer", Error, err}
			return
		}
		control <- report{"writer", Complete, nil}
	}()

	var err error
	select {
	case r := <-control:
		if r.message == Error {
			log.Printf("%v received from the %v of %v, terminating", r.message, r.task, name)
			err = r.err
			cancel()
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	wait.Wait()

	if err == nil {
		for len(control) > 0 {
			if r := <-control; r.message == Error {
				return r.err
			}
		}
	}
	return err
}
