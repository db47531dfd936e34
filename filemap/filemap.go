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

// Package filemap indexes a table of source sequence files so that the
// records of all files, taken in table order, can be split into
// fixed-size batches.
package filemap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/exascience/mxdx/utils/codec"
)

var (
	// ErrInvalidTable is returned when a file table cannot be used to
	// build a FileMap.
	ErrInvalidTable = errors.New("invalid file table")

	// ErrOutOfRange is returned when a batch number is negative.
	ErrOutOfRange = errors.New("batch number out of range")
)

// Column names of a file table.
const (
	Filename1Column   = "filename_1"
	Filename2Column   = "filename_2"
	RecordCountColumn = "record_count"
)

var columnAliases = map[string]string{
	"filename1": Filename1Column,
	"filename2": Filename2Column,
}

// SourceRow is one row of a file table.
type SourceRow struct {
	Filename1   string
	Filename2   string
	RecordCount int
}

// FileMap is an immutable index over an ordered list of source files,
// partitioning their concatenated records into batches of a fixed
// size.
type FileMap struct {
	rows      []SourceRow
	offsets   []int
	total     int
	paired    bool
	batchSize int
}

// New creates a FileMap from rows in table order. If paired is false,
// the Filename2 fields are ignored.
func New(rows []SourceRow, paired bool, batchSize int) (*FileMap, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %v must be positive", ErrInvalidTable, batchSize)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: table has no rows", ErrInvalidTable)
	}
	fm := &FileMap{
		rows:      make([]SourceRow, len(rows)),
		offsets:   make([]int, len(rows)),
		paired:    paired,
		batchSize: batchSize,
	}
	for i, row := range rows {
		if row.Filename1 == "" {
			return nil, fmt.Errorf("%w: row %v has an empty %v", ErrInvalidTable, i+1, Filename1Column)
		}
		if paired {
			if row.Filename2 == "" {
				return nil, fmt.Errorf("%w: row %v has an empty %v", ErrInvalidTable, i+1, Filename2Column)
			}
		} else {
			row.Filename2 = ""
		}
		if row.RecordCount < 1 {
			return nil, fmt.Errorf("%w: row %v has %v %v, but at least 1 is required", ErrInvalidTable, i+1, RecordCountColumn, row.RecordCount)
		}
		fm.rows[i] = row
		fm.offsets[i] = fm.total
		fm.total += row.RecordCount
	}
	return fm, nil
}

// Open reads a file table from a (possibly compressed) file.
func Open(name string, batchSize int) (fm *FileMap, funcErr error) {
	file, err := codec.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); funcErr == nil {
			funcErr = err
		}
	}()
	fm, err = Parse(file, batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w, while reading file table %v", err, name)
	}
	return fm, nil
}

// Parse reads a file table. The table is tab-separated text with a
// header line, or comma-separated if the header line contains no tab.
// The header names the columns filename_1, record_count, and for
// paired data filename_2, in any order.
func Parse(r io.Reader, batchSize int) (*FileMap, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, codec.BufferSize)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: missing header", ErrInvalidTable)
	}
	header := bytes.TrimRight(scanner.Bytes(), "\r")
	sep := []byte("\t")
	if !bytes.Contains(header, sep) && bytes.Contains(header, []byte(",")) {
		sep = []byte(",")
	}

	columns := make(map[string]int)
	fields := bytes.Split(header, sep)
	for i, field := range fields {
		name := strings.TrimSpace(string(field))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		switch name {
		case Filename1Column, Filename2Column, RecordCountColumn:
		default:
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidTable, name)
		}
		if _, ok := columns[name]; ok {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidTable, name)
		}
		columns[name] = i
	}
	file1, hasFile1 := columns[Filename1Column]
	count, hasCount := columns[RecordCountColumn]
	file2, paired := columns[Filename2Column]
	if !hasFile1 || !hasCount {
		return nil, fmt.Errorf("%w: header must contain %v and %v", ErrInvalidTable, Filename1Column, RecordCountColumn)
	}

	var rows []SourceRow
	for line := 2; scanner.Scan(); line++ {
		data := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		b := bytes.Split(data, sep)
		if len(b) != len(fields) {
			return nil, fmt.Errorf("%w: line %v has %v fields, but the header has %v", ErrInvalidTable, line, len(b), len(fields))
		}
		recordCount, err := strconv.Atoi(string(bytes.TrimSpace(b[count])))
		if err != nil {
			return nil, fmt.Errorf("%w: %v %q on line %v is not an integer", ErrInvalidTable, RecordCountColumn, b[count], line)
		}
		row := SourceRow{Filename1: string(b[file1]), RecordCount: recordCount}
		if paired {
			row.Filename2 = string(b[file2])
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return New(rows, paired, batchSize)
}

// IsPaired reports whether the table has a filename_2 column.
func (fm *FileMap) IsPaired() bool {
	return fm.paired
}

// BatchSize returns the maximum number of records per batch.
func (fm *FileMap) BatchSize() int {
	return fm.batchSize
}

// Rows returns a copy of the table rows.
func (fm *FileMap) Rows() []SourceRow {
	return append([]SourceRow(nil), fm.rows...)
}

// CumulativeOffsets returns, for every row, the number of records in
// all preceding rows.
func (fm *FileMap) CumulativeOffsets() []int {
	return append([]int(nil), fm.offsets...)
}

// TotalRecords returns the number of records over all rows.
func (fm *FileMap) TotalRecords() int {
	return fm.total
}

// NumberOfBatches returns ceil(TotalRecords / BatchSize).
func (fm *FileMap) NumberOfBatches() int {
	return (fm.total + fm.batchSize - 1) / fm.batchSize
}

// FirstFile returns the filename_1 entry of the first row.
func (fm *FileMap) FirstFile() string {
	return fm.rows[0].Filename1
}
