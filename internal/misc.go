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

package internal

import (
	"fmt"

	"github.com/exascience/pargo/pipeline"
)

// RunPipeline is p.Run() followed by p.Err(), with the error annotated
// by what the pipeline was doing.
func RunPipeline(p *pipeline.Pipeline, doing string) error {
	p.Run()
	if err := p.Err(); err != nil {
		return fmt.Errorf("%w, while %v", err, doing)
	}
	return nil
}
