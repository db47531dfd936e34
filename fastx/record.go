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

// Package fastx reads and writes FASTA, FASTQ, and headerless SAM
// records.
package fastx

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrParse is returned for data that cannot be decoded in the
	// expected format, including streams that end early.
	ErrParse = errors.New("parse error")

	// ErrOutOfRange is returned for an invalid record range.
	ErrOutOfRange = errors.New("record range out of range")

	// ErrUnknownTag is returned by Detag for identifiers without a
	// known tag.
	ErrUnknownTag = errors.New("unknown tag")
)

// TagSeparator separates a tag from the original record identifier.
const TagSeparator = '_'

// Orientation is the read of a pair a record belongs to.
type Orientation int

// Record orientations. Unpaired records have no orientation.
const (
	NoOrientation Orientation = iota
	R1
	R2
)

var orientationSuffixes = [...]string{"", "/1", "/2"}

// Suffix returns "/1" or "/2", or "" for NoOrientation.
func (o Orientation) Suffix() string {
	return orientationSuffixes[o]
}

/*
Record is a single sequence record.

ID is the record identifier, which for FASTA and FASTQ records is the
header up to the first space. Desc is the rest of such a header.
Data is the remainder of the record verbatim, including all line
terminators: the sequence lines of a FASTA record, the sequence, '+',
and quality lines of a FASTQ record, and the fields after QNAME of a
SAM record.
*/
type Record struct {
	Format Format
	ID     string
	Desc   string
	Data   []byte
}

// Tag prefixes the record identifier with tag and TagSeparator.
func (rec *Record) Tag(tag string) *Record {
	rec.ID = tag + string(TagSeparator) + rec.ID
	return rec
}

// Detag removes the tag from the record identifier and returns it. If
// the identifier has no tag, or the tag is not in valid, the record is
// left unchanged and an error wrapping ErrUnknownTag is returned.
func (rec *Record) Detag(valid map[string]bool) (tag string, err error) {
	i := strings.IndexByte(rec.ID, TagSeparator)
	if i < 0 {
		return "", fmt.Errorf("%w: record %v has no tag", ErrUnknownTag, rec.ID)
	}
	tag = rec.ID[:i]
	if !valid[tag] {
		return "", fmt.Errorf("%w: record %v has tag %v", ErrUnknownTag, rec.ID, tag)
	}
	rec.ID = rec.ID[i+1:]
	return tag, nil
}

// Orientation returns R1 or R2 if the identifier ends in "/1" or "/2".
func (rec *Record) Orientation() Orientation {
	switch {
	case strings.HasSuffix(rec.ID, "/1"):
		return R1
	case strings.HasSuffix(rec.ID, "/2"):
		return R2
	default:
		return NoOrientation
	}
}

// SetOrientation appends the orientation suffix to the identifier,
// unless it is already there.
func (rec *Record) SetOrientation(o Orientation) {
	if suffix := o.Suffix(); suffix != "" && !strings.HasSuffix(rec.ID, suffix) {
		rec.ID += suffix
	}
}

// Append appends the textual representation of the record to out.
func (rec *Record) Append(out []byte) []byte {
	switch rec.Format {
	case Fasta:
		out = append(out, '>')
	case Fastq:
		out = append(out, '@')
	}
	out = append(out, rec.ID...)
	switch rec.Format {
	case Sam:
		out = append(out, '\t')
	default:
		if rec.Desc != "" {
			out = append(out, ' ')
			out = append(out, rec.Desc...)
		}
		out = append(out, '\n')
	}
	return append(out, rec.Data...)
}

// WriteTo writes the textual representation of the record to w.
func (rec *Record) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(rec.Append(nil))
	return int64(n), err
}
