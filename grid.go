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

	"github.com/ctessum/geom"
)

// SetMainEnvelope sets the study area envelope and recomputes the grid
// subdivision: the subdivision level is the smallest level for which the
// buffer ratio MaxPropagationDistance / cellSide reaches MinimalBufferRatio,
// and the grid is 2^level cells on each side.
func (n *NoiseMap) SetMainEnvelope(env *geom.Bounds) {
	n.mainEnvelope = env.Copy()
	greatestSideLength := math.Max(env.Max.X-env.Min.X, env.Max.Y-env.Min.Y)
	n.subdivisionLevel = 0
	for n.cfg.MaxPropagationDistance/(greatestSideLength/math.Pow(2, float64(n.subdivisionLevel))) < MinimalBufferRatio {
		n.subdivisionLevel++
	}
	n.gridDim = 1 << uint(n.subdivisionLevel)
}

// CellWidth returns the width of one computation cell.
func (n *NoiseMap) CellWidth() float64 {
	return (n.mainEnvelope.Max.X - n.mainEnvelope.Min.X) / float64(n.gridDim)
}

// CellHeight returns the height of one computation cell.
func (n *NoiseMap) CellHeight() float64 {
	return (n.mainEnvelope.Max.Y - n.mainEnvelope.Min.Y) / float64(n.gridDim)
}

// CellEnv returns the envelope of cell (cellI, cellJ) within mainEnvelope.
// The cells of a grid tile the main envelope exactly, sharing edges without
// gaps or overlaps.
func CellEnv(mainEnvelope *geom.Bounds, cellI, cellJ int, cellWidth, cellHeight float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{
			X: mainEnvelope.Min.X + float64(cellI)*cellWidth,
			Y: mainEnvelope.Min.Y + float64(cellJ)*cellHeight,
		},
		Max: geom.Point{
			X: mainEnvelope.Min.X + float64(cellI)*cellWidth + cellWidth,
			Y: mainEnvelope.Min.Y + float64(cellJ)*cellHeight + cellHeight,
		},
	}
}

// expandBounds returns b grown uniformly by dist on all four sides.
func expandBounds(b *geom.Bounds, dist float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b.Min.X - dist, Y: b.Min.Y - dist},
		Max: geom.Point{X: b.Max.X + dist, Y: b.Max.Y + dist},
	}
}

// boundsPolygon returns the rectangle covering b as a polygon, for clipping
// fetched geometries against an envelope.
func boundsPolygon(b *geom.Bounds) geom.Polygon {
	return geom.Polygon{{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
	}}
}

// Initialize validates the configuration and computes the grid geometry.
// When no main envelope has been set it is derived from the extent of the
// receiver table. Initialize must be called before cells are prepared or
// evaluated.
func (n *NoiseMap) Initialize(st SpatialStore, prog *Progress) error {
	if n.cfg.MaxPropagationDistance < n.cfg.MaxReflectionDistance {
		return &ConfigurationError{Reason: "maximum wall seeking distance cannot be superior than maximum propagation distance"}
	}
	if n.cfg.SourcesTable == "" {
		return &ConfigurationError{Reason: "a sound source table must be provided"}
	}
	if n.mainEnvelope == nil {
		env, err := st.TableEnvelope(n.cfg.ReceiversTable)
		if err != nil {
			return &DataSourceError{Table: n.cfg.ReceiversTable, Err: err}
		}
		n.SetMainEnvelope(env)
	}
	return nil
}
