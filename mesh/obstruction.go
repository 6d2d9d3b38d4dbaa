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

package mesh

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// ObstructionTest is a spatial index over the building walls of a finalized
// mesh, supporting visibility queries along propagation paths. It is
// read-only after construction and safe for concurrent use.
type ObstructionTest struct {
	terrain *Mesh
	tree    *rtree.Rtree
	walls   []wall
}

// wall is one vertical building wall. The embedded segment is the wall's
// horizontal footprint; topZ is the absolute elevation of the wall top, or
// +Inf for buildings of unbounded height.
type wall struct {
	geom.LineString
	topZ  float64
	alpha float64
}

var _ geom.Geom = (*wall)(nil)

// NewObstructionTest indexes the building walls of m for visibility
// queries. Wall top elevations combine the building height with the terrain
// elevation below the wall.
func NewObstructionTest(m *Mesh) *ObstructionTest {
	o := &ObstructionTest{terrain: m, tree: rtree.NewTree(25, 50)}
	for _, ph := range m.polygons {
		for _, poly := range ph.Geom.Polygons() {
			for _, ring := range poly {
				for i := range ring {
					p1 := ring[i]
					p2 := ring[(i+1)%len(ring)]
					if p1 == p2 {
						// Closed rings repeat their first vertex;
						// a zero-length segment is no wall.
						continue
					}
					topZ := math.Inf(1)
					if ph.Height != UnboundedHeight {
						mid := geom.Point{X: (p1.X + p2.X) / 2, Y: (p1.Y + p2.Y) / 2}
						ground, _ := m.ElevationAt(mid)
						topZ = ground + ph.Height
					}
					o.walls = append(o.walls, wall{LineString: geom.LineString{p1, p2}, topZ: topZ, alpha: ph.Alpha})
				}
			}
		}
	}
	for i := range o.walls {
		o.tree.Insert(&o.walls[i])
	}
	return o
}

// Terrain returns the triangulated surface the test was built from.
func (o *ObstructionTest) Terrain() *Mesh { return o.terrain }

// WallCount returns the number of indexed building walls.
func (o *ObstructionTest) WallCount() int { return len(o.walls) }

// FreeField reports whether the straight path from a to b clears every
// building wall. A path is blocked when it crosses a wall below the wall
// top elevation.
func (o *ObstructionTest) FreeField(a, b Coord) bool {
	box := geom.NewBoundsPoint(a.Point())
	box.Extend(geom.NewBoundsPoint(b.Point()))
	for _, hit := range o.tree.SearchIntersect(box) {
		w := hit.(*wall)
		t, ok := segmentIntersection(a.Point(), b.Point(), w.LineString[0], w.LineString[1])
		if !ok {
			continue
		}
		rayZ := a.Z + t*(b.Z-a.Z)
		if rayZ <= w.topZ {
			return false
		}
	}
	return true
}

// segmentIntersection returns the parameter t along a→b at which the two
// segments cross, if they do.
func segmentIntersection(a, b, c, d geom.Point) (t float64, ok bool) {
	rX, rY := b.X-a.X, b.Y-a.Y
	sX, sY := d.X-c.X, d.Y-c.Y
	denom := rX*sY - rY*sX
	if math.Abs(denom) < 1e-12 {
		return 0, false // parallel or collinear
	}
	acX, acY := c.X-a.X, c.Y-a.Y
	t = (acX*sY - acY*sX) / denom
	u := (acX*rY - acY*rX) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}
