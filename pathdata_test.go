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
)

func TestAtmosphericAbsorption(t *testing.T) {
	p := NewPathData()
	// Absorption grows monotonically with frequency in the reference
	// atmosphere.
	for i := 1; i < len(p.Frequencies); i++ {
		lo, hi := p.AtmosphericAbsorption(i-1), p.AtmosphericAbsorption(i)
		if hi <= lo {
			t.Errorf("absorption at %g Hz (%g dB/km) not above %g Hz (%g dB/km)",
				p.Frequencies[i], hi, p.Frequencies[i-1], lo)
		}
	}
	// Published ISO 9613-1 value at 1 kHz, 15 °C, 70 %: about 4.7 dB/km.
	got := p.AtmosphericAbsorption(4)
	if got < 3 || got > 7 {
		t.Errorf("absorption at 1 kHz = %g dB/km, want roughly 4.7", got)
	}
}

func TestDbaWConversion(t *testing.T) {
	for _, dba := range []float64{0, 35.5, 70, 120} {
		if got := WToDba(DbaToW(dba)); math.Abs(got-dba) > 1e-9 {
			t.Errorf("round trip of %g dB gave %g", dba, got)
		}
	}
	if w := DbaToW(10); math.Abs(w-10) > 1e-9 {
		t.Errorf("DbaToW(10) = %g, want 10", w)
	}
	if !math.IsInf(WToDba(0), -1) {
		t.Error("WToDba(0) should be -Inf")
	}
}
