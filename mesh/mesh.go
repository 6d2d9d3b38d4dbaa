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

// Package mesh accumulates building footprints and terrain sample points for
// one computation cell and finalizes them into a triangulated terrain
// surface with an obstruction test structure for visibility queries along
// propagation paths.
package mesh

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// UnboundedHeight marks a building without height information. Such
// buildings block every propagation path that crosses their walls.
const UnboundedHeight = math.MaxFloat64

// Coord is a position in three dimensions. X and Y are horizontal map
// coordinates in meters; Z is the elevation.
type Coord struct {
	X, Y, Z float64
}

// Point returns the horizontal projection of c.
func (c Coord) Point() geom.Point { return geom.Point{X: c.X, Y: c.Y} }

// PolygonWithHeight is a building footprint with its height above the ground
// and its wall absorption coefficient.
type PolygonWithHeight struct {
	Geom   geom.Polygonal
	Height float64
	Alpha  float64
}

// Builder accumulates the geometry of one cell prior to triangulation.
// It is not safe for concurrent use.
type Builder struct {
	polygons   []PolygonWithHeight
	topoPoints []Coord
}

// NewBuilder returns an empty accumulator.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddGeometry adds a building footprint with the given height and wall
// absorption coefficient.
func (b *Builder) AddGeometry(g geom.Polygonal, height, alpha float64) {
	b.polygons = append(b.polygons, PolygonWithHeight{Geom: g, Height: height, Alpha: alpha})
}

// AddTopographicPoint adds a terrain elevation sample.
func (b *Builder) AddTopographicPoint(c Coord) {
	b.topoPoints = append(b.topoPoints, c)
}

// Polygons returns the accumulated building footprints.
func (b *Builder) Polygons() []PolygonWithHeight { return b.polygons }

// FinishFeeding triangulates the accumulated terrain samples restricted to
// env and returns the finalized mesh. The envelope corners are always part
// of the triangulation so that the surface covers the whole cell. An error
// is returned for degenerate input (non-finite coordinates, or samples that
// do not span a surface).
func (b *Builder) FinishFeeding(env *geom.Bounds) (*Mesh, error) {
	if env.Empty() {
		return nil, fmt.Errorf("mesh: empty triangulation envelope")
	}
	var pts []Coord
	var zSum float64
	for _, p := range b.topoPoints {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) ||
			math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsInf(p.Z, 0) {
			return nil, fmt.Errorf("mesh: non-finite topographic point (%g,%g,%g)", p.X, p.Y, p.Z)
		}
		if p.X < env.Min.X || p.X > env.Max.X || p.Y < env.Min.Y || p.Y > env.Max.Y {
			continue
		}
		pts = append(pts, p)
		zSum += p.Z
	}
	// The envelope corners anchor the surface at the mean sample
	// elevation so elevation queries are defined everywhere in the cell.
	cornerZ := 0.
	if len(pts) > 0 {
		cornerZ = zSum / float64(len(pts))
	}
	pts = append(pts,
		Coord{X: env.Min.X, Y: env.Min.Y, Z: cornerZ},
		Coord{X: env.Max.X, Y: env.Min.Y, Z: cornerZ},
		Coord{X: env.Max.X, Y: env.Max.Y, Z: cornerZ},
		Coord{X: env.Min.X, Y: env.Max.Y, Z: cornerZ})

	vertices, triangles, err := delaunay(pts, env)
	if err != nil {
		return nil, err
	}

	m := &Mesh{
		Vertices:  vertices,
		Triangles: triangles,
		Neighbors: triangleNeighbors(triangles),
		polygons:  b.polygons,
		tree:      rtree.NewTree(25, 50),
	}
	m.spatials = make([]triangleSpatial, len(triangles))
	for i, t := range triangles {
		m.spatials[i] = triangleSpatial{Polygon: m.trianglePolygon(t), index: i}
		m.tree.Insert(&m.spatials[i])
	}
	return m, nil
}

// Triangle holds the vertex indices of one terrain triangle.
type Triangle [3]int

// Mesh is a finalized triangulated terrain surface together with the
// building footprints that were fed into its builder. It is read-only after
// construction and safe for concurrent use.
type Mesh struct {
	Vertices  []Coord
	Triangles []Triangle
	// Neighbors holds, for each triangle, the indices of the triangles
	// sharing each of its edges, or -1 at the surface boundary.
	Neighbors [][3]int

	polygons []PolygonWithHeight
	spatials []triangleSpatial
	tree     *rtree.Rtree
}

// Polygons returns the building footprints fed into the mesh.
func (m *Mesh) Polygons() []PolygonWithHeight { return m.polygons }

// triangleSpatial adapts one terrain triangle to the geometry interface the
// spatial index stores. The embedded polygon is the triangle outline.
type triangleSpatial struct {
	geom.Polygon
	index int
}

var _ geom.Geom = (*triangleSpatial)(nil)

func (m *Mesh) trianglePolygon(t Triangle) geom.Polygon {
	return geom.Polygon{{
		m.Vertices[t[0]].Point(),
		m.Vertices[t[1]].Point(),
		m.Vertices[t[2]].Point(),
	}}
}

// ElevationAt interpolates the terrain elevation at the horizontal position
// p. The second return value is false when p lies outside the triangulated
// surface.
func (m *Mesh) ElevationAt(p geom.Point) (float64, bool) {
	hits := m.tree.SearchIntersect(geom.NewBoundsPoint(p))
	for _, hit := range hits {
		ts := hit.(*triangleSpatial)
		t := m.Triangles[ts.index]
		a, b, c := m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
		w0, w1, w2, ok := barycentric(p, a, b, c)
		if !ok {
			continue
		}
		return w0*a.Z + w1*b.Z + w2*c.Z, true
	}
	return 0, false
}

// barycentric returns the barycentric weights of p within triangle abc,
// reporting whether p lies inside (or on the edge of) the triangle.
func barycentric(p geom.Point, a, b, c Coord) (w0, w1, w2 float64, inside bool) {
	const eps = 1e-9
	det := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if math.Abs(det) < eps {
		return 0, 0, 0, false
	}
	w0 = ((b.Y-c.Y)*(p.X-c.X) + (c.X-b.X)*(p.Y-c.Y)) / det
	w1 = ((c.Y-a.Y)*(p.X-c.X) + (a.X-c.X)*(p.Y-c.Y)) / det
	w2 = 1 - w0 - w1
	if w0 < -eps || w1 < -eps || w2 < -eps {
		return 0, 0, 0, false
	}
	return w0, w1, w2, true
}

// delaunay runs an incremental Bowyer-Watson triangulation over pts.
func delaunay(pts []Coord, env *geom.Bounds) ([]Coord, []Triangle, error) {
	// Deduplicate sample positions; the last sample at a position wins.
	seen := make(map[geom.Point]int, len(pts))
	var unique []Coord
	for _, p := range pts {
		key := geom.Point{X: p.X, Y: p.Y}
		if i, ok := seen[key]; ok {
			unique[i] = p
			continue
		}
		seen[key] = len(unique)
		unique = append(unique, p)
	}
	if len(unique) < 3 {
		return nil, nil, fmt.Errorf("mesh: %d unique points cannot span a surface", len(unique))
	}

	// Super-triangle strictly containing the envelope.
	cx := (env.Min.X + env.Max.X) / 2
	cy := (env.Min.Y + env.Max.Y) / 2
	d := 20 * math.Max(env.Max.X-env.Min.X, env.Max.Y-env.Min.Y)
	verts := make([]Coord, 0, len(unique)+3)
	verts = append(verts,
		Coord{X: cx - d, Y: cy - d},
		Coord{X: cx + d, Y: cy - d},
		Coord{X: cx, Y: cy + d})
	verts = append(verts, unique...)

	type circumTri struct {
		t      Triangle
		cx, cy float64
		r2     float64
	}
	var tris []circumTri
	addTri := func(i, j, k int) {
		ccx, ccy, r2, ok := circumcircle(verts[i], verts[j], verts[k])
		if !ok {
			// Collinear triple; the cavity is closed by the
			// remaining boundary edges.
			return
		}
		tris = append(tris, circumTri{t: Triangle{i, j, k}, cx: ccx, cy: ccy, r2: r2})
	}
	addTri(0, 1, 2)

	type edge struct{ a, b int }
	for vi := 3; vi < len(verts); vi++ {
		p := verts[vi]
		edgeCount := make(map[edge]int)
		n := 0
		for i := range tris {
			t := tris[i]
			dx, dy := p.X-t.cx, p.Y-t.cy
			if dx*dx+dy*dy <= t.r2 {
				// Inside the circumcircle: the triangle is part
				// of the insertion cavity.
				for e := 0; e < 3; e++ {
					a, b := t.t[e], t.t[(e+1)%3]
					if a > b {
						a, b = b, a
					}
					edgeCount[edge{a, b}]++
				}
			} else {
				tris[n] = t
				n++
			}
		}
		tris = tris[:n]
		for e, count := range edgeCount {
			if count != 1 {
				continue // interior edge of the cavity
			}
			addTri(e.a, e.b, vi)
		}
	}

	// Drop triangles attached to the super-triangle and remap vertex
	// indices to the surviving vertex list.
	remap := make([]int, len(verts))
	for i := range remap {
		remap[i] = -1
	}
	var outVerts []Coord
	var outTris []Triangle
	for _, t := range tris {
		if t.t[0] < 3 || t.t[1] < 3 || t.t[2] < 3 {
			continue
		}
		var mapped Triangle
		for e, vi := range t.t {
			if remap[vi] < 0 {
				remap[vi] = len(outVerts)
				outVerts = append(outVerts, verts[vi])
			}
			mapped[e] = remap[vi]
		}
		outTris = append(outTris, mapped)
	}
	if len(outTris) == 0 {
		return nil, nil, fmt.Errorf("mesh: degenerate input, no triangles produced from %d points", len(unique))
	}
	return outVerts, outTris, nil
}

// circumcircle returns the circumcenter and squared radius of triangle abc.
// ok is false when the points are collinear.
func circumcircle(a, b, c Coord) (x, y, r2 float64, ok bool) {
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	if math.Abs(d) < 1e-12 {
		return 0, 0, 0, false
	}
	a2 := a.X*a.X + a.Y*a.Y
	b2 := b.X*b.X + b.Y*b.Y
	c2 := c.X*c.X + c.Y*c.Y
	x = (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d
	y = (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d
	dx, dy := a.X-x, a.Y-y
	return x, y, dx*dx + dy*dy, true
}

// triangleNeighbors builds the edge adjacency of the triangulation. Entry
// [i][e] is the index of the triangle sharing edge e of triangle i, or -1
// at the boundary.
func triangleNeighbors(tris []Triangle) [][3]int {
	type edge struct{ a, b int }
	byEdge := make(map[edge][]int, len(tris)*3)
	for i, t := range tris {
		for e := 0; e < 3; e++ {
			a, b := t[e], t[(e+1)%3]
			if a > b {
				a, b = b, a
			}
			byEdge[edge{a, b}] = append(byEdge[edge{a, b}], i)
		}
	}
	neighbors := make([][3]int, len(tris))
	for i, t := range tris {
		for e := 0; e < 3; e++ {
			a, b := t[e], t[(e+1)%3]
			if a > b {
				a, b = b, a
			}
			neighbors[i][e] = -1
			for _, j := range byEdge[edge{a, b}] {
				if j != i {
					neighbors[i][e] = j
					break
				}
			}
		}
	}
	return neighbors
}
