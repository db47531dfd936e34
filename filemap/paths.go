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
	"fmt"
	"os"

	"github.com/exascience/pargo/parallel"
)

const maxReportedPaths = 5

// MissingPathsError reports source files that do not exist.
type MissingPathsError struct {
	Paths []string
}

func (err *MissingPathsError) Error() string {
	paths := err.Paths
	if len(paths) > maxReportedPaths {
		paths = paths[:maxReportedPaths]
	}
	return fmt.Sprintf("at least one path cannot be found, here are at most %v: %q", maxReportedPaths, paths)
}

func (fm *FileMap) paths() []string {
	paths := make([]string, 0, 2*len(fm.rows))
	for _, row := range fm.rows {
		paths = append(paths, row.Filename1)
		if fm.paired {
			paths = append(paths, row.Filename2)
		}
	}
	return paths
}

// CheckPaths returns all paths in the table that do not exist, in
// table order. It fails if a path exists but cannot be examined.
func (fm *FileMap) CheckPaths() (missing []string, err error) {
	paths := fm.paths()
	errs := make([]error, len(paths))
	parallel.Range(0, len(paths), 0, func(low, high int) {
		for i := low; i < high; i++ {
			_, errs[i] = os.Stat(paths[i])
		}
	})
	for i, err := range errs {
		switch {
		case err == nil:
		case os.IsNotExist(err):
			missing = append(missing, paths[i])
		default:
			return nil, fmt.Errorf("%w, while checking source files", err)
		}
	}
	return missing, nil
}

// ValidatePaths is CheckPaths with missing paths reported as a
// *MissingPathsError.
func (fm *FileMap) ValidatePaths() error {
	missing, err := fm.CheckPaths()
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &MissingPathsError{Paths: missing}
	}
	return nil
}
