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

package fastx

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// readLine returns the next line including its terminator. A final
// line without terminator is returned together with io.EOF.
func readLine(r *bufio.Reader) ([]byte, error) {
	return r.ReadBytes('\n')
}

func trimEOL(line []byte) []byte {
	return bytes.TrimRight(line, "\r\n")
}

func terminated(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	return data
}

func isHeader(line []byte) bool {
	return len(line) > 0 && (line[0] == '>' || line[0] == '@')
}

// fastxScanner decodes FASTA and FASTQ records from one stream. A
// record starts at a line beginning with '>' or '@'. A record with a
// '+' line and enough quality characters is FASTQ, anything else is
// FASTA.
type fastxScanner struct {
	r       *bufio.Reader
	pending []byte
	eof     bool
	records int
	marker  byte
}

func (sc *fastxScanner) readLine() ([]byte, error) {
	if sc.eof {
		return nil, io.EOF
	}
	line, err := readLine(sc.r)
	if err == io.EOF {
		sc.eof = true
	}
	return line, err
}

func (sc *fastxScanner) next() (*Record, error) {
	header := sc.pending
	sc.pending = nil
	for header == nil {
		line, err := sc.readLine()
		if isHeader(line) {
			header = line
			break
		}
		if err == io.EOF {
			if sc.records == 0 {
				return nil, fmt.Errorf("%w: no FASTA or FASTQ records found", ErrParse)
			}
			return nil, io.EOF
		} else if err != nil {
			return nil, err
		}
	}

	sc.marker = header[0]
	rec := &Record{Format: Fasta}
	name := string(trimEOL(header[1:]))
	if i := strings.IndexByte(name, ' '); i >= 0 {
		rec.ID, rec.Desc = name[:i], name[i+1:]
	} else {
		rec.ID = name
	}

	var (
		data      []byte
		seqLength int
		plus      []byte
	)
	for {
		line, err := sc.readLine()
		if len(line) > 0 {
			switch line[0] {
			case '>', '@':
				sc.pending = line
			case '+':
				plus = line
			default:
				data = append(data, line...)
				seqLength += len(trimEOL(line))
			}
			if sc.pending != nil || plus != nil {
				break
			}
		}
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
	}
	sc.records++
	if plus == nil {
		rec.Data = terminated(data)
		return rec, nil
	}

	sequence := len(data)
	data = append(terminated(data), plus...)
	data = terminated(data)
	qualLength := 0
	for {
		line, err := sc.readLine()
		if len(line) > 0 {
			data = append(data, line...)
			qualLength += len(trimEOL(line))
			if qualLength >= seqLength {
				rec.Format = Fastq
				rec.Data = terminated(data)
				return rec, nil
			}
		}
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
	}
	rec.Data = terminated(data[:sequence])
	return rec, nil
}

// samScanner decodes headerless SAM records, one per line.
type samScanner struct {
	r       *bufio.Reader
	fields  fieldScanner
	line    int
	checked bool
}

func (sc *samScanner) next() (*Record, error) {
	for {
		line, err := readLine(sc.r)
		if len(line) > 0 {
			sc.line++
		}
		if len(trimEOL(line)) > 0 {
			sc.fields.reset(line)
			qname, found := sc.fields.readUntil('\t')
			if !found {
				return nil, fmt.Errorf("%w: SAM line %v is not tab-delimited", ErrParse, sc.line)
			}
			if !sc.checked {
				if err := sc.checkFields(); err != nil {
					return nil, err
				}
				sc.checked = true
			}
			return &Record{
				Format: Sam,
				ID:     string(qname),
				Data:   terminated(append([]byte(nil), line[len(qname)+1:]...)),
			}, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// checkFields checks FLAG, RNAME, and POS of the current line.
func (sc *samScanner) checkFields() error {
	flag, _ := sc.fields.readUntil('\t')
	rname, _ := sc.fields.readUntil('\t')
	pos, found := sc.fields.readUntil('\t')
	if !found {
		return fmt.Errorf("%w: SAM line %v has too few fields", ErrParse, sc.line)
	}
	if !isDigits(flag) || isDigits(rname) || !isDigits(pos) {
		return fmt.Errorf("%w: line %v does not look like SAM", ErrParse, sc.line)
	}
	return nil
}
