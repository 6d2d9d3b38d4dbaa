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

import "github.com/ctessum/geom"

// SpatialStore is the set of capabilities the cell pipeline needs from a
// relational spatial store. The store package provides an implementation
// backed by SQLite; metadata lookups are expected to be cached per table
// rather than re-discovered per row.
type SpatialStore interface {
	// GeometryColumns lists the geometry-typed columns of a table, in
	// declaration order.
	GeometryColumns(table string) ([]string, error)

	// IntegerPrimaryKey returns the name of the table's integer primary
	// key column, or "" when the table has none.
	IntegerPrimaryKey(table string) (string, error)

	// HasColumn reports whether the table declares the named column.
	HasColumn(table, column string) (bool, error)

	// TableEnvelope returns the bounding envelope of all geometries in
	// the table.
	TableEnvelope(table string) (*geom.Bounds, error)

	// QueryIntersecting streams the rows of table whose geometry bounding
	// box intersects env. columns selects the columns to return; nil
	// selects all of them. fetchSize is a forward-only cursor hint; 0
	// leaves the store's default in place.
	QueryIntersecting(table string, columns []string, env *geom.Bounds, fetchSize int) (SpatialRows, error)

	// ManualCommit runs body inside an explicit non-autocommit scope when
	// the connection defaults to autocommit, restoring the prior
	// autocommit state on every exit path. Streaming cursors require this
	// on some stores.
	ManualCommit(body func() error) error
}

// SpatialRows is a forward-only stream of rows from a spatial query.
// Accessors address the current row; Close must be called when done.
type SpatialRows interface {
	// Next advances to the next row, returning false when the stream is
	// exhausted or has failed.
	Next() bool

	// Columns returns the column names of the result, lower-cased.
	Columns() []string

	// Geometry decodes the named geometry column of the current row. It
	// returns nil without error for a NULL or empty geometry.
	Geometry(column string) (geom.Geom, error)

	// Float returns the named column of the current row as a float64,
	// reporting whether the column exists and holds a non-NULL numeric
	// value.
	Float(column string) (float64, bool)

	// Int64 returns the named column of the current row as an int64,
	// reporting whether the column exists and holds a non-NULL integer
	// value.
	Int64(column string) (int64, bool)

	// Err returns the first error encountered while streaming.
	Err() error

	Close() error
}
