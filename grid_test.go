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
	"testing"

	"github.com/ctessum/geom"
)

func TestSetMainEnvelope(t *testing.T) {
	// 1 km × 1 km study area.
	env := &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 1000, Y: 1000}}

	tests := []struct {
		maxProp   float64
		wantLevel int
		wantDim   int
	}{
		// 750/1000 = 0.75 ≥ 0.3 at level 0: a single cell.
		{maxProp: 750, wantLevel: 0, wantDim: 1},
		// 100/1000 = 0.1, 100/500 = 0.2, 100/250 = 0.4 ≥ 0.3.
		{maxProp: 100, wantLevel: 2, wantDim: 4},
		{maxProp: 300, wantLevel: 0, wantDim: 1},
	}
	for _, test := range tests {
		cfg := DefaultConfig("buildings", "sources", "receivers")
		cfg.MaxPropagationDistance = test.maxProp
		n := New(cfg)
		n.SetMainEnvelope(env)
		if n.SubdivisionLevel() != test.wantLevel {
			t.Errorf("maxProp %g: subdivision level = %d, want %d",
				test.maxProp, n.SubdivisionLevel(), test.wantLevel)
		}
		if n.GridDim() != test.wantDim {
			t.Errorf("maxProp %g: grid dim = %d, want %d",
				test.maxProp, n.GridDim(), test.wantDim)
		}
	}

	// Increasing the propagation distance never increases the level;
	// growing the study area never decreases it.
	prevLevel := math.MaxInt32
	for _, d := range []float64{50, 100, 200, 400, 800} {
		cfg := DefaultConfig("b", "s", "r")
		cfg.MaxPropagationDistance = d
		cfg.MaxReflectionDistance = 0
		n := New(cfg)
		n.SetMainEnvelope(env)
		if n.SubdivisionLevel() > prevLevel {
			t.Errorf("maxProp %g: level %d above the level for a shorter distance", d, n.SubdivisionLevel())
		}
		prevLevel = n.SubdivisionLevel()
	}
	prevLevel = -1
	for _, side := range []float64{500, 1000, 4000, 16000} {
		cfg := DefaultConfig("b", "s", "r")
		n := New(cfg)
		n.SetMainEnvelope(&geom.Bounds{Max: geom.Point{X: side, Y: side}})
		if n.SubdivisionLevel() < prevLevel {
			t.Errorf("side %g: level %d below the level for a smaller area", side, n.SubdivisionLevel())
		}
		prevLevel = n.SubdivisionLevel()
	}
}

func TestSetMainEnvelopeRatio(t *testing.T) {
	// Every chosen level must satisfy the minimum buffer ratio, and the
	// level below it must not.
	env := &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 40000, Y: 25000}}
	for _, maxProp := range []float64{50, 200, 750, 1500, 5000} {
		cfg := DefaultConfig("b", "s", "r")
		cfg.MaxPropagationDistance = maxProp
		cfg.MaxReflectionDistance = 0
		n := New(cfg)
		n.SetMainEnvelope(env)
		side := 40000 / math.Pow(2, float64(n.SubdivisionLevel()))
		if maxProp/side < MinimalBufferRatio {
			t.Errorf("maxProp %g: level %d side %g violates the buffer ratio",
				maxProp, n.SubdivisionLevel(), side)
		}
		if lvl := n.SubdivisionLevel(); lvl > 0 {
			prev := 40000 / math.Pow(2, float64(lvl-1))
			if maxProp/prev >= MinimalBufferRatio {
				t.Errorf("maxProp %g: level %d is not minimal", maxProp, lvl)
			}
		}
	}
}

func TestCellEnvTiling(t *testing.T) {
	env := &geom.Bounds{Min: geom.Point{X: -500, Y: 1000}, Max: geom.Point{X: 3500, Y: 5000}}
	cfg := DefaultConfig("b", "s", "r")
	cfg.MaxPropagationDistance = 600
	n := New(cfg)
	n.SetMainEnvelope(env)
	dim := n.GridDim()
	w, h := n.CellWidth(), n.CellHeight()

	// Neighboring cells share edges exactly.
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			c := CellEnv(env, i, j, w, h)
			if i+1 < dim {
				right := CellEnv(env, i+1, j, w, h)
				if c.Max.X != right.Min.X {
					t.Fatalf("cells (%d,%d) and (%d,%d): max X %v != min X %v",
						i, j, i+1, j, c.Max.X, right.Min.X)
				}
			}
			if j+1 < dim {
				above := CellEnv(env, i, j+1, w, h)
				if c.Max.Y != above.Min.Y {
					t.Fatalf("cells (%d,%d) and (%d,%d): max Y %v != min Y %v",
						i, j, i, j+1, c.Max.Y, above.Min.Y)
				}
			}
		}
	}
	// The outer cells reach the envelope edges.
	first := CellEnv(env, 0, 0, w, h)
	last := CellEnv(env, dim-1, dim-1, w, h)
	if first.Min.X != env.Min.X || first.Min.Y != env.Min.Y {
		t.Errorf("first cell min = %+v, want %+v", first.Min, env.Min)
	}
	if math.Abs(last.Max.X-env.Max.X) > 1e-9 || math.Abs(last.Max.Y-env.Max.Y) > 1e-9 {
		t.Errorf("last cell max = %+v, want %+v", last.Max, env.Max)
	}
}

func TestExpandBounds(t *testing.T) {
	b := &geom.Bounds{Min: geom.Point{X: 10, Y: 20}, Max: geom.Point{X: 30, Y: 40}}
	e := expandBounds(b, 5)
	want := geom.Bounds{Min: geom.Point{X: 5, Y: 15}, Max: geom.Point{X: 35, Y: 45}}
	if *e != want {
		t.Errorf("expanded bounds = %+v, want %+v", *e, want)
	}
	if b.Min.X != 10 {
		t.Error("expandBounds modified its argument")
	}
}

func TestInitializeValidation(t *testing.T) {
	cfg := DefaultConfig("b", "s", "r")
	cfg.MaxPropagationDistance = 50
	cfg.MaxReflectionDistance = 100
	n := New(cfg)
	err := n.Initialize(nil, nil)
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("reflection > propagation: got %v, want a ConfigurationError", err)
	}

	cfg = DefaultConfig("b", "", "r")
	n = New(cfg)
	err = n.Initialize(nil, nil)
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("missing source table: got %v, want a ConfigurationError", err)
	}
}

func TestInitializeKeepsExplicitEnvelope(t *testing.T) {
	env := &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 1000, Y: 1000}}
	n := New(DefaultConfig("b", "s", "r"))
	n.SetMainEnvelope(env)
	// A nil store proves the receiver extent is not queried.
	if err := n.Initialize(nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := n.MainEnvelope(); *got != *env {
		t.Errorf("main envelope = %+v, want %+v", got, env)
	}
}

func TestProgress(t *testing.T) {
	p := NewProgress(2)
	sub := p.SubProcess(3)
	for i := 0; i < 3; i++ {
		sub.Step()
	}
	if got := p.Done(); got != 1 {
		t.Errorf("after completing one subprocess: parent done = %d, want 1", got)
	}
	if got := p.Fraction(); got != 0.5 {
		t.Errorf("fraction = %g, want 0.5", got)
	}
	p.SubProcess(0) // empty subprocess never advances the parent
	p.Step()
	if got := p.Fraction(); got != 1 {
		t.Errorf("fraction = %g, want 1", got)
	}
}

func TestProgressNil(t *testing.T) {
	var p *Progress
	sub := p.SubProcess(5) // must not panic
	sub.Step()
	if sub.Fraction() != 0 || sub.Done() != 0 {
		t.Error("nil progress should discard updates")
	}
}
