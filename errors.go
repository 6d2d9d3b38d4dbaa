/*
Copyright © 2026 the NoiseMap authors.
This file is part of NoiseMap.

NoiseMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

NoiseMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with NoiseMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package noisemap

import "fmt"

// ConfigurationError reports an invalid or incomplete run configuration. It
// is fatal and never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "noisemap: invalid configuration: " + e.Reason
}

// DataSourceError reports a connectivity or query failure against the
// spatial store. It aborts the enclosing fetch or cell operation; retry
// policy, if any, belongs to the caller.
type DataSourceError struct {
	Table string
	Err   error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("noisemap: querying table %s: %v", e.Table, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// MissingPrimaryKeyError reports that a table whose rows must be
// individually addressable (sources, receivers) has no integer primary key.
type MissingPrimaryKeyError struct {
	Table string
}

func (e *MissingPrimaryKeyError) Error() string {
	return fmt.Sprintf("noisemap: table %s has no integer primary key", e.Table)
}

// MeshBuildError reports that the terrain mesh for a cell could not be
// finalized, usually because of degenerate input geometry. It is fatal for
// the affected cell only.
type MeshBuildError struct {
	CellID int
	Err    error
}

func (e *MeshBuildError) Error() string {
	return fmt.Sprintf("noisemap: building mesh for cell %d: %v", e.CellID, e.Err)
}

func (e *MeshBuildError) Unwrap() error { return e.Err }
