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
	"fmt"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Engine is a sound propagation engine. Run consumes one assembled cell
// input and reports every receiver contribution through out, returning only
// once the whole cell has been processed.
type Engine interface {
	Run(in *CellInput, out ResultAccumulator) error
}

// ResultAccumulator receives per-receiver contributions from a propagation
// engine. Implementations must be safe for concurrent use; engines may fan
// out internally.
type ResultAccumulator interface {
	// AddReceiverContribution adds a per-band power contribution
	// (aligned with OctaveBands, in power ratio) for one receiver.
	AddReceiverContribution(receiverID int64, wj []float64)
}

// AccumulatorFactory builds the result accumulator handed to the engine for
// one cell.
type AccumulatorFactory interface {
	NewAccumulator(in *CellInput, path *PathData) ResultAccumulator
}

type defaultAccumulatorFactory struct{}

func (defaultAccumulatorFactory) NewAccumulator(in *CellInput, path *PathData) ResultAccumulator {
	return NewLevelAccumulator(path)
}

// LevelAccumulator sums per-band power contributions per receiver. It is
// the default result accumulator and is safe for concurrent use.
type LevelAccumulator struct {
	mu     sync.Mutex
	path   *PathData
	levels map[int64][]float64
}

// NewLevelAccumulator returns an empty accumulator using the given path
// settings.
func NewLevelAccumulator(path *PathData) *LevelAccumulator {
	return &LevelAccumulator{path: path, levels: make(map[int64][]float64)}
}

// AddReceiverContribution adds wj to the receiver's per-band power sums.
func (a *LevelAccumulator) AddReceiverContribution(receiverID int64, wj []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sum, ok := a.levels[receiverID]
	if !ok {
		sum = make([]float64, len(wj))
		a.levels[receiverID] = sum
	}
	floats.Add(sum, wj)
}

// ReceiverLevels returns the accumulated per-band levels in dB for every
// receiver seen so far.
func (a *LevelAccumulator) ReceiverLevels() map[int64][]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int64][]float64, len(a.levels))
	for id, sum := range a.levels {
		db := make([]float64, len(sum))
		for i, w := range sum {
			db[i] = WToDba(w)
		}
		out[id] = db
	}
	return out
}

// ReceiverLevel returns the broadband level in dB for one receiver, the
// power sum over its bands. Receivers with no contribution yield -Inf.
func (a *LevelAccumulator) ReceiverLevel(receiverID int64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return WToDba(floats.Sum(a.levels[receiverID]))
}

// EvaluateCell assembles cell (cellI, cellJ) and runs the propagation
// engine over it, returning the filled result accumulator. Unless the run
// is configured with absolute Z coordinates, receiver elevations are
// converted from ground-relative to absolute before the engine runs.
func (n *NoiseMap) EvaluateCell(st SpatialStore, cellI, cellJ int, prog *Progress, skipReceivers map[int64]struct{}) (ResultAccumulator, error) {
	in, err := n.PrepareCell(st, cellI, cellJ, prog, skipReceivers)
	if err != nil {
		return nil, err
	}
	out := n.AccumulatorFactory.NewAccumulator(in, n.Path)
	if !n.cfg.AbsoluteZCoordinates {
		in.makeReceiverZAbsolute()
	}
	if err := n.Engine.Run(in, out); err != nil {
		return nil, fmt.Errorf("noisemap: evaluating cell %d: %v", in.CellID, err)
	}
	// The cell's sub-progress advances prog when the engine finishes the
	// last receiver; a cell without receivers has to be counted here.
	if len(in.Receivers) == 0 {
		prog.Step()
	}
	return out, nil
}

// CellResult is the outcome of one evaluated cell.
type CellResult struct {
	CellI, CellJ int
	CellID       int
	// Receivers are the receivers the cell was evaluated for, after
	// exclusion filtering.
	Receivers []Receiver
	Out       ResultAccumulator
}

// Run evaluates every cell of the grid, fanning the work out over
// ParallelComputationCount workers (zero or negative uses all available
// execution units). Each worker operates on its own store connection
// obtained from connect. The receiver exclusion set is shared across the
// run: receivers of each completed cell are added to it under a lock, so a
// receiver already handled by one cell is not re-evaluated by a later one.
// Cells in flight concurrently may still each see a receiver lying exactly
// on their shared boundary; runs needing strict de-duplication set
// ParallelComputationCount to 1.
//
// handle is called once per completed cell, serialized with exclusion set
// updates. Initialize must have been called first.
func (n *NoiseMap) Run(connect func() (SpatialStore, error), prog *Progress, handle func(*CellResult) error) error {
	nprocs := n.cfg.ParallelComputationCount
	if nprocs <= 0 {
		nprocs = runtime.GOMAXPROCS(-1)
	}

	type cellIndex struct{ i, j int }
	cellChan := make(chan cellIndex)
	errChan := make(chan error, nprocs)
	skipReceivers := make(map[int64]struct{})
	var mu sync.Mutex // guards skipReceivers and handle

	var wg sync.WaitGroup
	for p := 0; p < nprocs; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := connect()
			if err != nil {
				errChan <- err
				return
			}
			for c := range cellChan {
				mu.Lock()
				skip := make(map[int64]struct{}, len(skipReceivers))
				for id := range skipReceivers {
					skip[id] = struct{}{}
				}
				mu.Unlock()

				in, err := n.PrepareCell(st, c.i, c.j, prog, skip)
				if err != nil {
					errChan <- err
					return
				}
				out := n.AccumulatorFactory.NewAccumulator(in, n.Path)
				if !n.cfg.AbsoluteZCoordinates {
					in.makeReceiverZAbsolute()
				}
				if err := n.Engine.Run(in, out); err != nil {
					errChan <- fmt.Errorf("noisemap: evaluating cell %d: %v", in.CellID, err)
					return
				}
				// Empty cells have no sub-progress steps; count them here.
				if len(in.Receivers) == 0 {
					prog.Step()
				}

				mu.Lock()
				for _, r := range in.Receivers {
					skipReceivers[r.ID] = struct{}{}
				}
				err = handle(&CellResult{
					CellI:     c.i,
					CellJ:     c.j,
					CellID:    in.CellID,
					Receivers: in.Receivers,
					Out:       out,
				})
				mu.Unlock()
				if err != nil {
					errChan <- err
					return
				}
			}
		}()
	}

	var firstErr error
feed:
	for i := 0; i < n.gridDim; i++ {
		for j := 0; j < n.gridDim; j++ {
			select {
			case cellChan <- cellIndex{i, j}:
			case firstErr = <-errChan:
				break feed
			}
		}
	}
	close(cellChan)
	wg.Wait()
	if firstErr == nil {
		select {
		case firstErr = <-errChan:
		default:
		}
	}
	return firstErr
}
