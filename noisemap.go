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

// Package noisemap partitions a geographic study area into a regular grid of
// computation cells and assembles, for each cell, the spatial inputs
// (buildings, elevation points, ground absorption areas, emission sources and
// receiver points) that a sound propagation engine needs to evaluate that
// cell independently of its neighbors.
package noisemap

import (
	"math"

	"github.com/ctessum/geom"
)

// Version gives the version number.
const Version = "0.1.0"

const (
	// MinimalBufferRatio is the minimum allowed ratio between the maximum
	// propagation distance and the side length of a computation cell. It
	// bounds the fraction of a propagation path that can be truncated at a
	// cell edge.
	MinimalBufferRatio = 0.3

	// DefaultFetchSize is the row streaming hint used when fetching
	// emission sources.
	DefaultFetchSize = 300

	// DefaultWallAbsorption is the wall impedance used for buildings
	// without a per-row absorption value. It corresponds to a cement
	// wall, σ = 1175 kN·s·m⁻⁴.
	DefaultWallAbsorption = 1175
)

// Config holds the run-constant parameters of a noise map computation: the
// spatial tables to read from, the field names within them, and the
// propagation settings shared by every cell. A Config is treated as an
// immutable value once a NoiseMap has been created from it.
type Config struct {
	// BuildingsTable contains building footprint polygons. Z values of the
	// polygon are wall bottom positions relative to sea level. Mandatory.
	BuildingsTable string

	// SourcesTable contains point or line sound sources together with a
	// per-band emission spectrum. Mandatory.
	SourcesTable string

	// ReceiversTable contains the points at which sound levels are
	// evaluated. Mandatory, and must have an integer primary key.
	ReceiversTable string

	// DEMTable contains digital elevation model points. Optional.
	DEMTable string

	// GroundTable contains ground absorption polygons with a
	// dimensionless coefficient G in [0,1]:
	//   - lawn, meadow, field of cereals G=1
	//   - undergrowth (resinous or deciduous) G=1
	//   - compacted earth, track G=0.3
	//   - road surface, smooth concrete G=0
	// Optional.
	GroundTable string

	// HeightField is the buildings-table column holding building height
	// above the ground. When empty, buildings are treated as unbounded
	// obstacles.
	HeightField string

	// AlphaField is the buildings-table column holding the wall
	// absorption coefficient. Rows in tables without this column use
	// WallAbsorption instead.
	AlphaField string

	// GroundGField is the ground-table column holding the ground
	// absorption coefficient.
	GroundGField string

	// SoundLevelField is the prefix of the per-band emission columns in
	// the sources table. A column named <SoundLevelField><freq> holds the
	// emission in dB for the octave band centered at freq Hz, e.g.
	// "db_m500".
	SoundLevelField string

	// MaxPropagationDistance is the distance beyond which propagation
	// stops. Computation cell size is proportional to this value.
	MaxPropagationDistance float64

	// MaxReflectionDistance bounds the search for reflecting walls and
	// corners away from the direct propagation line. It cannot exceed
	// MaxPropagationDistance.
	MaxReflectionDistance float64

	// ReflectionOrder is the maximum number of wall collisions along a
	// reflected path. 0 disables reflections.
	ReflectionOrder int

	// ComputeHorizontalDiffraction enables diffraction around vertical
	// building edges.
	ComputeHorizontalDiffraction bool

	// ComputeVerticalDiffraction enables diffraction over horizontal
	// edges. Building heights must be provided.
	ComputeVerticalDiffraction bool

	// AbsoluteZCoordinates reports whether source and receiver Z values
	// are relative to sea level. When false they are relative to the
	// ground and are converted using the terrain mesh.
	AbsoluteZCoordinates bool

	// WallAbsorption is the process-wide default wall absorption applied
	// when AlphaField is absent.
	WallAbsorption float64

	// MaximumError stops the evaluation of a receiver once the summed
	// contribution of the remaining sources falls below this level in dB.
	MaximumError float64

	// ParallelComputationCount is the number of cells evaluated
	// concurrently. 0 uses all available execution units, 1 runs
	// serially.
	ParallelComputationCount int

	// FetchSize is the forward-only cursor hint for the source fetch.
	FetchSize int
}

// DefaultConfig returns a Config for the given mandatory tables with the
// standard propagation settings filled in.
func DefaultConfig(buildingsTable, sourcesTable, receiversTable string) Config {
	return Config{
		BuildingsTable:               buildingsTable,
		SourcesTable:                 sourcesTable,
		ReceiversTable:               receiversTable,
		AlphaField:                   "alpha",
		GroundGField:                 "g",
		SoundLevelField:              "db_m",
		MaxPropagationDistance:       750,
		MaxReflectionDistance:        100,
		ReflectionOrder:              2,
		ComputeHorizontalDiffraction: true,
		ComputeVerticalDiffraction:   true,
		WallAbsorption:               DefaultWallAbsorption,
		MaximumError:                 math.Inf(-1),
		FetchSize:                    DefaultFetchSize,
	}
}

// NoiseMap evaluates sound levels at receiver points, cell by cell, over a
// gridded study area backed by a relational spatial store.
type NoiseMap struct {
	cfg Config

	mainEnvelope     *geom.Bounds
	subdivisionLevel int
	gridDim          int

	// InputFactory builds the per-cell computation input. The default
	// produces a plain CellInput.
	InputFactory InputFactory

	// AccumulatorFactory builds the result accumulator handed to the
	// propagation engine for each cell. The default produces a
	// LevelAccumulator.
	AccumulatorFactory AccumulatorFactory

	// Engine is the propagation engine invoked for each assembled cell.
	Engine Engine

	// Path holds the acoustic path loss settings shared by all cells.
	Path *PathData
}

// New creates a NoiseMap for the given configuration with the built-in
// engine, factories and path loss settings.
func New(cfg Config) *NoiseMap {
	path := NewPathData()
	return &NoiseMap{
		cfg:                cfg,
		InputFactory:       defaultInputFactory{},
		AccumulatorFactory: defaultAccumulatorFactory{},
		Engine: &FreeFieldEngine{
			Path:         path,
			MaxDistance:  cfg.MaxPropagationDistance,
			MaximumError: cfg.MaximumError,
		},
		Path: path,
	}
}

// Config returns the configuration the map was created with.
func (n *NoiseMap) Config() Config { return n.cfg }

// GridDim returns the per-side computation cell count (the same on X and Y).
// It is zero until the main envelope has been set.
func (n *NoiseMap) GridDim() int { return n.gridDim }

// SubdivisionLevel returns the quadtree subdivision level of the main
// envelope; the grid holds 4^SubdivisionLevel cells.
func (n *NoiseMap) SubdivisionLevel() int { return n.subdivisionLevel }

// MainEnvelope returns a copy of the study area envelope, or nil if it has
// not been set.
func (n *NoiseMap) MainEnvelope() *geom.Bounds {
	if n.mainEnvelope == nil {
		return nil
	}
	return n.mainEnvelope.Copy()
}
