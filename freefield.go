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

	"github.com/acousticmodel/noisemap/mesh"
)

// FreeFieldEngine is the built-in propagation engine. It evaluates direct
// paths only: geometric divergence and atmospheric absorption over lines of
// sight that clear every building wall. Reflection and diffraction settings
// of the cell input are ignored; runs needing them plug in an external
// engine.
type FreeFieldEngine struct {
	Path *PathData
	// MaxDistance is the source-receiver distance cutoff [m].
	MaxDistance float64
	// MaximumError, when finite, drops contributions that would raise the
	// receiver's running level by less than this many dB.
	MaximumError float64
}

// Run evaluates every receiver of in against every source in range and adds
// the resulting per-band power contributions to out. The cell progress
// tracker is stepped once per receiver.
func (e *FreeFieldEngine) Run(in *CellInput, out ResultAccumulator) error {
	nbands := len(e.Path.Frequencies)
	for _, r := range in.Receivers {
		wSum := 0.
		for _, s := range in.Sources {
			d := distance3(s.Coord, r.Coord)
			if e.MaxDistance > 0 && d > e.MaxDistance {
				continue
			}
			if !in.FreeFieldFinder.FreeField(s.Coord, r.Coord) {
				continue
			}
			wj := make([]float64, nbands)
			wSrc := 0.
			for b := 0; b < nbands; b++ {
				lvl := s.SpectrumDB[b] - attenuation(d, e.Path.AtmosphericAbsorption(b))
				wj[b] = DbaToW(lvl)
				wSrc += wj[b]
			}
			if !math.IsInf(e.MaximumError, -1) && wSum > 0 {
				if WToDba(wSum+wSrc)-WToDba(wSum) < e.MaximumError {
					continue
				}
			}
			wSum += wSrc
			out.AddReceiverContribution(r.ID, wj)
		}
		in.CellProgress.Step()
	}
	return nil
}

// attenuation is the free-field path loss [dB] over distance d [m]:
// spherical divergence plus atmospheric absorption (alphaAtmo in dB/km).
func attenuation(d, alphaAtmo float64) float64 {
	if d < 1 {
		d = 1
	}
	return 20*math.Log10(d) + 11 + alphaAtmo*d/1000
}

func distance3(a, b mesh.Coord) float64 {
	dx, dy, dz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
