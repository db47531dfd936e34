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
	"github.com/exascience/mxdx/internal"
	"github.com/exascience/pargo/pipeline"
)

// RecordsToBytes returns a pargo pipeline.Filter that formats slices of
// records into a single slice of bytes each. The slices are reserved
// with internal.ReserveByteBuffer and can be released once written.
func RecordsToBytes() pipeline.Filter {
	return func(_ *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			buf := internal.ReserveByteBuffer()
			for _, rec := range data.([]*Record) {
				buf = rec.Append(buf)
			}
			return buf
		}
		return
	}
}
