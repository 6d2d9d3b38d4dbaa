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

import "math"

// OctaveBands are the center frequencies [Hz] of the emission spectrum
// bands handled by the model.
var OctaveBands = []float64{63, 125, 250, 500, 1000, 2000, 4000, 8000}

// PathData holds the acoustic path loss settings shared by all cells of a
// run: the atmospheric conditions and the per-band atmospheric absorption
// derived from them.
type PathData struct {
	// Temperature in °C.
	Temperature float64
	// Humidity is the relative humidity in percent.
	Humidity float64
	// Pressure is the atmospheric pressure in Pa.
	Pressure float64
	// Frequencies are the octave band centers [Hz].
	Frequencies []float64

	alphaAtmo []float64 // absorption per band [dB/km]
}

// NewPathData returns path loss settings for the reference atmosphere
// (15 °C, 70 % relative humidity, 101325 Pa).
func NewPathData() *PathData {
	p := &PathData{
		Temperature: 15,
		Humidity:    70,
		Pressure:    101325,
		Frequencies: OctaveBands,
	}
	p.alphaAtmo = make([]float64, len(p.Frequencies))
	for i, f := range p.Frequencies {
		p.alphaAtmo[i] = atmosphericAbsorption(f, p.Temperature, p.Humidity, p.Pressure)
	}
	return p
}

// AtmosphericAbsorption returns the absorption of band i in dB/km.
func (p *PathData) AtmosphericAbsorption(i int) float64 { return p.alphaAtmo[i] }

// atmosphericAbsorption computes the pure-tone atmospheric attenuation
// coefficient [dB/km] at frequency f [Hz] following ISO 9613-1.
func atmosphericAbsorption(f, tempC, humidity, pressure float64) float64 {
	const (
		t0  = 293.15 // reference temperature [K]
		t01 = 273.16 // triple point of water [K]
		pr  = 101325 // reference pressure [Pa]
	)
	t := tempC + 273.15
	pa := pressure / pr

	// Molar concentration of water vapour [%].
	psat := math.Pow(10, -6.8346*math.Pow(t01/t, 1.261)+4.6151)
	h := humidity * psat / pa

	// Oxygen and nitrogen relaxation frequencies [Hz].
	frO := pa * (24 + 4.04e4*h*(0.02+h)/(0.391+h))
	frN := pa * math.Sqrt(t0/t) * (9 + 280*h*math.Exp(-4.17*(math.Pow(t0/t, 1./3.)-1)))

	f2 := f * f
	alpha := 8.686 * f2 * (1.84e-11*math.Sqrt(t/t0)/pa +
		math.Pow(t/t0, -2.5)*(0.01275*math.Exp(-2239.1/t)/(frO+f2/frO)+
			0.1068*math.Exp(-3352./t)/(frN+f2/frN)))
	return alpha * 1000 // dB/m -> dB/km
}

// DbaToW converts a sound level in dB to the corresponding power ratio.
func DbaToW(dba float64) float64 {
	return math.Pow(10, dba/10)
}

// WToDba converts a power ratio to a sound level in dB.
func WToDba(w float64) float64 {
	return 10 * math.Log10(w)
}
