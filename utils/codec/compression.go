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
	"bufio"
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// Compression identifies a stream compression format.
type Compression int

// The supported compression formats.
const (
	Uncompressed Compression = iota
	Gzip
	Bzip2
	Xz
	Zstd
	// Bgzf is blocked gzip. It is only chosen for output, since any
	// gzip reader can read it.
	Bgzf
)

var compressionNames = [...]string{"uncompressed", "gzip", "bzip2", "xz", "zstd", "bgzf"}

func (c Compression) String() string {
	if c < 0 || int(c) >= len(compressionNames) {
		return "unknown"
	}
	return compressionNames[c]
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
	// a bzip2 stream header is followed by a block or end-of-stream magic
	bzip2Block = []byte{0x31, 0x41, 0x59, 0x26, 0x53, 0x59}
	bzip2End   = []byte{0x17, 0x72, 0x45, 0x38, 0x50, 0x90}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// maxMagicLength is the number of bytes Detect needs to see.
const maxMagicLength = 10

// Detect determines the compression format from the leading bytes of
// a stream.
func Detect(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	case bytes.HasPrefix(head, xzMagic):
		return Xz
	case isBzip2(head):
		return Bzip2
	default:
		return Uncompressed
	}
}

func isBzip2(head []byte) bool {
	if len(head) < 10 || !bytes.HasPrefix(head, bzip2Magic) || head[3] < '1' || head[3] > '9' {
		return false
	}
	return bytes.HasPrefix(head[4:], bzip2Block) || bytes.HasPrefix(head[4:], bzip2End)
}

// ForName determines the compression format from a filename
// extension. Files without a known extension are uncompressed.
func ForName(name string) Compression {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		return Gzip
	case ".bgz", ".bgzf":
		return Bgzf
	case ".bz2":
		return Bzip2
	case ".xz":
		return Xz
	case ".zst", ".zstd":
		return Zstd
	default:
		return Uncompressed
	}
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// detectReader peeks at buf and returns a reader that produces the
// decompressed stream, plus a closer for the decompressor, if any.
func detectReader(buf *bufio.Reader) (io.Reader, io.Closer, error) {
	head, err := buf.Peek(maxMagicLength)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, nil, err
	}
	switch Detect(head) {
	case Gzip:
		r, err := pgzip.NewReader(buf)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case Bzip2:
		r, err := bzip2.NewReader(buf, nil)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case Xz:
		r, err := xz.NewReader(buf)
		if err != nil {
			return nil, nil, err
		}
		return r, nil, nil
	case Zstd:
		r, err := zstd.NewReader(buf)
		if err != nil {
			return nil, nil, err
		}
		return r, closerFunc(func() error { r.Close(); return nil }), nil
	default:
		return buf, nil, nil
	}
}

// compressWriter wraps w in a compressor for the given format.
func compressWriter(w io.Writer, c Compression) (io.Writer, io.Closer, error) {
	switch c {
	case Gzip:
		gz := pgzip.NewWriter(w)
		return gz, gz, nil
	case Bzip2:
		bz, err := bzip2.NewWriter(w, nil)
		if err != nil {
			return nil, nil, err
		}
		return bz, bz, nil
	case Xz:
		x, err := xz.NewWriter(w)
		if err != nil {
			return nil, nil, err
		}
		return x, x, nil
	case Zstd:
		z, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, err
		}
		return z, z, nil
	case Bgzf:
		bgzf := newBgzfWriter(w)
		return bgzf, bgzf, nil
	default:
		return w, nil, nil
	}
}
