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

package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sync"

	"github.com/exascience/mxdx/relay"
	"github.com/exascience/pargo/pipeline"
	"github.com/klauspost/compress/flate"
)

// bgzfBlockSize is the maximum number of uncompressed bytes per BGZF
// block. It leaves room for incompressible data to fit the 16-bit
// block size field.
const bgzfBlockSize = 0xff00

const bgzfCapacity = 16

var (
	bgzfHeader = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
		0x42, 0x43, 0x02, 0x00, 0x00, 0x00,
	}

	bgzfEOF = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
		0x42, 0x43, 0x02, 0x00, 0x1b, 0x00,
		0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	flateWriterPool sync.Pool
)

// bgzfWriter compresses blocks of a BGZF stream in parallel and writes
// them in order. The result is a valid multi-member gzip stream that
// indexing tools can seek in.
type bgzfWriter struct {
	w      io.Writer
	block  []byte
	queue  *relay.Queue[[]byte]
	ctx    context.Context
	cancel context.CancelFunc
	p      pipeline.Pipeline
	wait   sync.WaitGroup
	closed bool
}

func newBgzfWriter(w io.Writer) *bgzfWriter {
	ctx, cancel := context.WithCancel(context.Background())
	bgzf := &bgzfWriter{
		w:      w,
		block:  make([]byte, 0, bgzfBlockSize),
		queue:  relay.NewQueue[[]byte](1, bgzfCapacity),
		ctx:    ctx,
		cancel: cancel,
	}
	bgzf.p.Source(bgzf.queue.Source(ctx))
	bgzf.p.SetVariableBatchSize(1, 1)
	bgzf.p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			compressed, err := compressBgzfBlock(data.([][]byte)[0])
			if err != nil {
				bgzf.p.SetErr(err)
			}
			return compressed
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			if _, err := w.Write(data.([]byte)); err != nil {
				bgzf.p.SetErr(err)
			}
			return nil
		})),
	)
	bgzf.wait.Add(1)
	go func() {
		defer bgzf.wait.Done()
		// unblocks pending Puts when the pipeline stops early
		defer cancel()
		bgzf.p.Run()
	}()
	return bgzf
}

func compressBgzfBlock(block []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(block) + len(bgzfHeader) + 64)
	buf.Write(bgzfHeader)

	var fw *flate.Writer
	if pooled := flateWriterPool.Get(); pooled != nil {
		fw = pooled.(*flate.Writer)
		fw.Reset(&buf)
	} else {
		var err error
		if fw, err = flate.NewWriter(&buf, flate.DefaultCompression); err != nil {
			return nil, err
		}
	}
	defer flateWriterPool.Put(fw)
	if _, err := fw.Write(block); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}

	var trailer [8]byte
	binary.LittleEndian.PutUint32(trailer[0:4], crc32.ChecksumIEEE(block))
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(block)))
	buf.Write(trailer[:])
	result := buf.Bytes()
	binary.LittleEndian.PutUint16(result[16:18], uint16(len(result)-1))
	return result, nil
}

// failure returns the pipeline error in preference to the cancellation
// it caused.
func (bgzf *bgzfWriter) failure(err error) error {
	if perr := bgzf.p.Err(); perr != nil {
		return perr
	}
	return err
}

func (bgzf *bgzfWriter) send() error {
	if err := bgzf.queue.Put(bgzf.ctx, bgzf.block); err != nil {
		return bgzf.failure(err)
	}
	bgzf.block = make([]byte, 0, bgzfBlockSize)
	return nil
}

// Write implements the corresponding method of io.Writer.
func (bgzf *bgzfWriter) Write(p []byte) (n int, err error) {
	if bgzf.closed {
		return 0, io.ErrClosedPipe
	}
	for len(p) > 0 {
		k := bgzfBlockSize - len(bgzf.block)
		if k > len(p) {
			k = len(p)
		}
		bgzf.block = append(bgzf.block, p[:k]...)
		p = p[k:]
		n += k
		if len(bgzf.block) == bgzfBlockSize {
			if err := bgzf.send(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Close writes the remaining data and the BGZF end-of-file marker. It
// does not close the underlying writer.
func (bgzf *bgzfWriter) Close() (err error) {
	if bgzf.closed {
		return io.ErrClosedPipe
	}
	bgzf.closed = true
	if len(bgzf.block) > 0 {
		err = bgzf.send()
	}
	if err == nil {
		err = bgzf.queue.Close(bgzf.ctx)
	} else {
		bgzf.cancel()
	}
	bgzf.wait.Wait()
	if err != nil {
		return bgzf.failure(err)
	}
	if err = bgzf.p.Err(); err != nil {
		return err
	}
	_, err = bgzf.w.Write(bgzfEOF)
	return err
}
