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
	"github.com/ctessum/geom"

	"github.com/acousticmodel/noisemap/mesh"
)

// Source is one emission source within a cell's expanded envelope.
type Source struct {
	ID   int64
	Geom geom.Geom
	// Coord is the representative position of the source. Its Z is
	// ground-relative as stored and converted to an absolute elevation
	// during cell assembly.
	Coord mesh.Coord
	// SpectrumDB holds the per-band emission in dB, aligned with
	// OctaveBands. Bands without data are -Inf.
	SpectrumDB []float64
}

// Receiver is one evaluation point within a cell's tight envelope.
type Receiver struct {
	ID    int64
	Coord mesh.Coord
}

// GroundArea is a ground absorption polygon with its dimensionless
// coefficient G in [0,1].
type GroundArea struct {
	Geom geom.Polygonal
	G    float64
}

// CellInput is the complete, self-contained data set needed to evaluate one
// computation cell. It is created fresh per cell, consumed exactly once by
// the propagation engine, and never shared between cells.
type CellInput struct {
	// FreeFieldFinder answers visibility queries over the cell's
	// buildings and terrain. Read-only once assembled.
	FreeFieldFinder *mesh.ObstructionTest
	// Terrain is the triangulated surface of the cell's expanded
	// envelope.
	Terrain *mesh.Mesh

	ReflectionOrder              int
	MaxReflectionDistance        float64
	ComputeHorizontalDiffraction bool
	ComputeVerticalDiffraction   bool

	// CellID identifies the cell within its grid: i*gridDim + j.
	CellID int
	// CellProgress tracks the evaluation of this cell's receivers.
	CellProgress *Progress

	Sources     []Source
	Receivers   []Receiver
	GroundAreas []GroundArea
}

// AddSource appends an emission source to the cell input.
func (in *CellInput) AddSource(s Source) {
	in.Sources = append(in.Sources, s)
}

// AddReceiver appends a receiver to the cell input.
func (in *CellInput) AddReceiver(r Receiver) {
	in.Receivers = append(in.Receivers, r)
}

// makeSourceZAbsolute converts the ground-relative Z of every source to an
// absolute elevation by sampling the terrain below it. Receivers are
// converted later, during orchestration, and only when the run is not
// already configured with absolute elevations.
func (in *CellInput) makeSourceZAbsolute() {
	for i := range in.Sources {
		if ground, ok := in.Terrain.ElevationAt(in.Sources[i].Coord.Point()); ok {
			in.Sources[i].Coord.Z += ground
		}
	}
}

// makeReceiverZAbsolute converts the ground-relative Z of every receiver to
// an absolute elevation by sampling the terrain below it.
func (in *CellInput) makeReceiverZAbsolute() {
	for i := range in.Receivers {
		if ground, ok := in.Terrain.ElevationAt(in.Receivers[i].Coord.Point()); ok {
			in.Receivers[i].Coord.Z += ground
		}
	}
}

// InputFactory builds the per-cell computation input from the cell's
// obstruction structure and terrain. Implementations may return an input
// pre-seeded with engine-specific state.
type InputFactory interface {
	NewCellInput(finder *mesh.ObstructionTest, terrain *mesh.Mesh) *CellInput
}

type defaultInputFactory struct{}

func (defaultInputFactory) NewCellInput(finder *mesh.ObstructionTest, terrain *mesh.Mesh) *CellInput {
	return &CellInput{FreeFieldFinder: finder, Terrain: terrain}
}

// PrepareCell assembles the computation input for cell (cellI, cellJ):
// buildings and elevation points are fetched into a mesh over the expanded
// cell envelope, the mesh is finalized and indexed for obstruction queries,
// and sources, ground areas and receivers are fetched into the input.
// Receivers whose primary key is in skipReceivers are excluded; the set is
// only read, never written. The caller exclusively owns the returned input.
func (n *NoiseMap) PrepareCell(st SpatialStore, cellI, cellJ int, prog *Progress, skipReceivers map[int64]struct{}) (*CellInput, error) {
	return n.prepareCell(st, cellI, cellJ, prog, skipReceivers, nil)
}

// PrepareCellBuildings is PrepareCell with building primary key
// collection: the key of every building kept for the cell is appended to
// buildingsPK for external bookkeeping.
func (n *NoiseMap) PrepareCellBuildings(st SpatialStore, cellI, cellJ int, prog *Progress, skipReceivers map[int64]struct{}, buildingsPK *[]int64) (*CellInput, error) {
	return n.prepareCell(st, cellI, cellJ, prog, skipReceivers, buildingsPK)
}

func (n *NoiseMap) prepareCell(st SpatialStore, cellI, cellJ int, prog *Progress, skipReceivers map[int64]struct{}, buildingsPK *[]int64) (*CellInput, error) {
	ij := cellI*n.gridDim + cellJ
	cellEnvelope := CellEnv(n.mainEnvelope, cellI, cellJ, n.CellWidth(), n.CellHeight())
	expandedEnvelope := expandBounds(cellEnvelope, n.cfg.MaxPropagationDistance)

	// Feed the obstruction test with everything that can influence
	// propagation into the cell, even geometry outside the cell itself.
	builder := mesh.NewBuilder()
	if err := n.fetchCellBuildings(st, expandedEnvelope, buildingsPK, builder); err != nil {
		return nil, err
	}
	if err := n.fetchCellDEM(st, expandedEnvelope, builder); err != nil {
		return nil, err
	}
	terrain, err := builder.FinishFeeding(expandedEnvelope)
	if err != nil {
		return nil, &MeshBuildError{CellID: ij, Err: err}
	}
	finder := mesh.NewObstructionTest(terrain)

	in := n.InputFactory.NewCellInput(finder, terrain)
	in.ReflectionOrder = n.cfg.ReflectionOrder
	in.MaxReflectionDistance = n.cfg.MaxReflectionDistance
	in.ComputeHorizontalDiffraction = n.cfg.ComputeHorizontalDiffraction
	in.ComputeVerticalDiffraction = n.cfg.ComputeVerticalDiffraction

	if err := n.fetchCellSources(st, expandedEnvelope, in); err != nil {
		return nil, err
	}
	// Source positions are stored relative to the ground; the engine
	// needs absolute elevations.
	in.makeSourceZAbsolute()
	in.CellID = ij

	if err := n.fetchCellGroundAreas(st, expandedEnvelope, in); err != nil {
		return nil, err
	}
	if err := n.fetchCellReceivers(st, cellEnvelope, skipReceivers, in); err != nil {
		return nil, err
	}
	in.CellProgress = prog.SubProcess(len(in.Receivers))
	return in, nil
}
