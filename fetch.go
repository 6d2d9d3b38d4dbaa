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

import (
	"math"
	"strconv"

	"github.com/ctessum/geom"

	"github.com/acousticmodel/noisemap/mesh"
)

// elevationColumn holds the vertical coordinate of point-like rows
// (DEM samples, sources, receivers). Geometries in the store are two
// dimensional; elevation travels in this column.
const elevationColumn = "z"

// geometryColumn resolves the geometry column of table: the first
// geometry-typed column found.
func (n *NoiseMap) geometryColumn(st SpatialStore, table string) (string, error) {
	cols, err := st.GeometryColumns(table)
	if err != nil {
		return "", &DataSourceError{Table: table, Err: err}
	}
	if len(cols) == 0 {
		return "", &ConfigurationError{Reason: "table " + table + " must exist and contain a geometry column"}
	}
	return cols[0], nil
}

// fetchCellBuildings streams the buildings intersecting fetchEnvelope into
// b, clipping each footprint to the envelope. Only polygonal clip results
// are kept. When buildingsPK is non-nil and the table has an integer
// primary key, the key of every kept building is appended to it.
func (n *NoiseMap) fetchCellBuildings(st SpatialStore, fetchEnvelope *geom.Bounds, buildingsPK *[]int64, b *mesh.Builder) error {
	table := n.cfg.BuildingsTable
	geomCol, err := n.geometryColumn(st, table)
	if err != nil {
		return err
	}
	fetchAlpha := false
	if n.cfg.AlphaField != "" {
		fetchAlpha, err = st.HasColumn(table, n.cfg.AlphaField)
		if err != nil {
			return &DataSourceError{Table: table, Err: err}
		}
	}
	columns := []string{geomCol}
	if n.cfg.HeightField != "" {
		columns = append(columns, n.cfg.HeightField)
	}
	if fetchAlpha {
		columns = append(columns, n.cfg.AlphaField)
	}
	pkCol := ""
	if buildingsPK != nil {
		pkCol, err = st.IntegerPrimaryKey(table)
		if err != nil {
			return &DataSourceError{Table: table, Err: err}
		}
		if pkCol != "" {
			columns = append(columns, pkCol)
		}
	}

	rows, err := st.QueryIntersecting(table, columns, fetchEnvelope, 0)
	if err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	defer rows.Close()

	envPoly := boundsPolygon(fetchEnvelope)
	for rows.Next() {
		g, err := rows.Geometry(geomCol)
		if err != nil {
			return &DataSourceError{Table: table, Err: err}
		}
		building, ok := g.(geom.Polygonal)
		if !ok {
			continue
		}
		clipped := building.Intersection(envPoly)
		if clipped == nil || clipped.Len() == 0 {
			continue
		}
		height := mesh.UnboundedHeight
		if n.cfg.HeightField != "" {
			if v, ok := rows.Float(n.cfg.HeightField); ok {
				height = v
			}
		}
		alpha := n.cfg.WallAbsorption
		if fetchAlpha {
			if v, ok := rows.Float(n.cfg.AlphaField); ok {
				alpha = v
			}
		}
		b.AddGeometry(clipped, height, alpha)
		if buildingsPK != nil && pkCol != "" {
			if id, ok := rows.Int64(pkCol); ok {
				*buildingsPK = append(*buildingsPK, id)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	return nil
}

// fetchCellDEM streams digital elevation model points intersecting
// fetchEnvelope into b as terrain samples. The DEM table is optional; when
// unconfigured the fetch is skipped entirely.
func (n *NoiseMap) fetchCellDEM(st SpatialStore, fetchEnvelope *geom.Bounds, b *mesh.Builder) error {
	table := n.cfg.DEMTable
	if table == "" {
		return nil
	}
	geomCol, err := n.geometryColumn(st, table)
	if err != nil {
		return err
	}
	columns := []string{geomCol}
	hasZ, err := st.HasColumn(table, elevationColumn)
	if err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	if hasZ {
		columns = append(columns, elevationColumn)
	}
	rows, err := st.QueryIntersecting(table, columns, fetchEnvelope, 0)
	if err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		g, err := rows.Geometry(geomCol)
		if err != nil {
			return &DataSourceError{Table: table, Err: err}
		}
		if g == nil {
			continue
		}
		z := 0.
		if hasZ {
			if v, ok := rows.Float(elevationColumn); ok {
				z = v
			}
		}
		switch pt := g.(type) {
		case geom.Point:
			b.AddTopographicPoint(mesh.Coord{X: pt.X, Y: pt.Y, Z: z})
		case geom.MultiPoint:
			for _, p := range pt {
				b.AddTopographicPoint(mesh.Coord{X: p.X, Y: p.Y, Z: z})
			}
		}
	}
	if err := rows.Err(); err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	return nil
}

// fetchCellGroundAreas streams the ground absorption polygons intersecting
// fetchEnvelope into in. The ground table is optional.
func (n *NoiseMap) fetchCellGroundAreas(st SpatialStore, fetchEnvelope *geom.Bounds, in *CellInput) error {
	table := n.cfg.GroundTable
	if table == "" {
		return nil
	}
	geomCol, err := n.geometryColumn(st, table)
	if err != nil {
		return err
	}
	rows, err := st.QueryIntersecting(table, []string{geomCol, n.cfg.GroundGField}, fetchEnvelope, 0)
	if err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		g, err := rows.Geometry(geomCol)
		if err != nil {
			return &DataSourceError{Table: table, Err: err}
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			continue
		}
		gCoef, _ := rows.Float(n.cfg.GroundGField)
		in.GroundAreas = append(in.GroundAreas, GroundArea{Geom: poly, G: gCoef})
	}
	if err := rows.Err(); err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	return nil
}

// fetchCellSources streams the emission sources intersecting fetchEnvelope
// into in. Sources must be individually identifiable, so the table needs an
// integer primary key. The result is streamed through a forward-only cursor
// with a bounded fetch size inside a manual-commit scope; the store's
// autocommit state is restored on every exit path.
func (n *NoiseMap) fetchCellSources(st SpatialStore, fetchEnvelope *geom.Bounds, in *CellInput) error {
	table := n.cfg.SourcesTable
	geomCol, err := n.geometryColumn(st, table)
	if err != nil {
		return err
	}
	pkCol, err := st.IntegerPrimaryKey(table)
	if err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	if pkCol == "" {
		return &MissingPrimaryKeyError{Table: table}
	}
	err = st.ManualCommit(func() error {
		rows, err := st.QueryIntersecting(table, nil, fetchEnvelope, n.cfg.FetchSize)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			g, err := rows.Geometry(geomCol)
			if err != nil {
				return err
			}
			if g == nil {
				continue
			}
			id, _ := rows.Int64(pkCol)
			z := 0.
			if v, ok := rows.Float(elevationColumn); ok {
				z = v
			}
			in.AddSource(Source{
				ID:         id,
				Geom:       g,
				Coord:      anchorCoord(g, z),
				SpectrumDB: sourceSpectrum(rows, n.cfg.SoundLevelField),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	return nil
}

// sourceSpectrum reads the per-band emission columns of the current row.
// Bands without a column are set to -Inf (no emission).
func sourceSpectrum(rows SpatialRows, prefix string) []float64 {
	spectrum := make([]float64, len(OctaveBands))
	for i, f := range OctaveBands {
		if v, ok := rows.Float(prefix + strconv.Itoa(int(f))); ok {
			spectrum[i] = v
		} else {
			spectrum[i] = math.Inf(-1)
		}
	}
	return spectrum
}

// anchorCoord returns the representative 3D position of a source geometry:
// the point itself for point sources, the centroid for polygonal sources
// and the envelope center otherwise.
func anchorCoord(g geom.Geom, z float64) mesh.Coord {
	switch t := g.(type) {
	case geom.Point:
		return mesh.Coord{X: t.X, Y: t.Y, Z: z}
	case geom.Polygonal:
		c := t.Centroid()
		return mesh.Coord{X: c.X, Y: c.Y, Z: z}
	default:
		b := g.Bounds()
		return mesh.Coord{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2, Z: z}
	}
}

// fetchCellReceivers streams the receivers inside the unexpanded cell
// envelope into in, skipping any receiver whose primary key is already in
// skipReceivers. Rows with an empty geometry are skipped silently.
func (n *NoiseMap) fetchCellReceivers(st SpatialStore, cellEnvelope *geom.Bounds, skipReceivers map[int64]struct{}, in *CellInput) error {
	table := n.cfg.ReceiversTable
	geomCol, err := n.geometryColumn(st, table)
	if err != nil {
		return err
	}
	pkCol, err := st.IntegerPrimaryKey(table)
	if err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	if pkCol == "" {
		return &MissingPrimaryKeyError{Table: table}
	}
	columns := []string{geomCol, pkCol}
	hasZ, err := st.HasColumn(table, elevationColumn)
	if err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	if hasZ {
		columns = append(columns, elevationColumn)
	}
	rows, err := st.QueryIntersecting(table, columns, cellEnvelope, 0)
	if err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		id, ok := rows.Int64(pkCol)
		if !ok {
			continue
		}
		if _, skip := skipReceivers[id]; skip {
			continue
		}
		g, err := rows.Geometry(geomCol)
		if err != nil {
			return &DataSourceError{Table: table, Err: err}
		}
		pt, ok := g.(geom.Point)
		if !ok {
			continue
		}
		z := 0.
		if hasZ {
			if v, ok := rows.Float(elevationColumn); ok {
				z = v
			}
		}
		in.AddReceiver(Receiver{ID: id, Coord: mesh.Coord{X: pt.X, Y: pt.Y, Z: z}})
	}
	if err := rows.Err(); err != nil {
		return &DataSourceError{Table: table, Err: err}
	}
	return nil
}
