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

package filemap

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MuxFile is the contiguous range [Start, Stop) of one source file (or
// file pair) that falls into a batch.
type MuxFile struct {
	File1    string
	File2    string
	Start    int
	Stop     int
	Tag      string
	Complete bool
}

// Len returns the number of records in the range.
func (mf MuxFile) Len() int {
	return mf.Stop - mf.Start
}

// HashPrefix returns the first three hexadecimal digits of the MD5
// digest of path.
func HashPrefix(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:2])[:3]
}

// MakeTag returns the tag "<rowIndex>.<hash prefix of file1>.<batch>"
// that identifies the records of one MuxFile. rowIndex is 1-based.
func MakeTag(rowIndex int, file1 string, batch int) string {
	return strconv.Itoa(rowIndex) + "." + HashPrefix(file1) + "." + strconv.Itoa(batch)
}

// ParseTag splits a tag made by MakeTag into its parts.
func ParseTag(tag string) (rowIndex int, hash string, batch int, err error) {
	parts := strings.Split(tag, ".")
	if len(parts) != 3 || len(parts[1]) != 3 {
		return 0, "", 0, fmt.Errorf("malformed tag %q", tag)
	}
	if rowIndex, err = strconv.Atoi(parts[0]); err != nil || rowIndex < 1 {
		return 0, "", 0, fmt.Errorf("malformed row index in tag %q", tag)
	}
	if batch, err = strconv.Atoi(parts[2]); err != nil || batch < 0 {
		return 0, "", 0, fmt.Errorf("malformed batch number in tag %q", tag)
	}
	return rowIndex, parts[1], batch, nil
}

// Batch returns the MuxFiles of batch n in table order. Together their
// ranges cover exactly the records [n*BatchSize, min((n+1)*BatchSize,
// TotalRecords)) of the concatenated table. The result is empty if n is
// at or beyond NumberOfBatches.
func (fm *FileMap) Batch(n int) ([]MuxFile, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRange, n)
	}
	if n >= fm.NumberOfBatches() {
		return nil, nil
	}
	start := n * fm.batchSize
	expected := fm.total - start
	if expected > fm.batchSize {
		expected = fm.batchSize
	}

	row := sort.SearchInts(fm.offsets, start) - 1
	if row < 0 {
		row = 0
	}
	lag := start - fm.offsets[row]
	switch count := fm.rows[row].RecordCount; {
	case lag > count:
		return nil, nil
	case lag == count:
		row++
		lag = 0
	}

	var batch []MuxFile
	remaining := fm.batchSize
	for ; remaining > 0 && row < len(fm.rows); row++ {
		r := fm.rows[row]
		stop := r.RecordCount
		if stop-lag > remaining {
			stop = lag + remaining
		}
		batch = append(batch, MuxFile{
			File1:    r.Filename1,
			File2:    r.Filename2,
			Start:    lag,
			Stop:     stop,
			Tag:      MakeTag(row+1, r.Filename1, n),
			Complete: stop-lag == r.RecordCount,
		})
		remaining -= stop - lag
		lag = 0
	}
	if consumed := fm.batchSize - remaining; consumed != expected {
		return nil, fmt.Errorf("batch %v covers %v records, but %v were expected", n, consumed, expected)
	}
	return batch, nil
}
