package enrich

import (
	"container/heap"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// The maximum number of cells examined by PoleOfInaccessibility.
const POLYLABEL_MAX_CELLS int = 10000

// PoleOfInaccessibility returns the point inside the largest part of geom which is
// furthest from any of that part's edges, to within a precision derived from the size of
// the part.
func PoleOfInaccessibility(geom orb.Geometry) (orb.Point, error) {

	poly, err := largestPolygon(geom)

	if err != nil {
		return orb.Point{}, err
	}

	b := poly.Bound()

	width := b.Max.X() - b.Min.X()
	height := b.Max.Y() - b.Min.Y()

	cell_size := math.Min(width, height)

	if cell_size == 0 {
		return b.Min, nil
	}

	precision := math.Max(width, height) / 1000
	h := cell_size / 2

	q := &cellQueue{}

	for x := b.Min.X(); x < b.Max.X(); x += cell_size {
		for y := b.Min.Y(); y < b.Max.Y(); y += cell_size {
			heap.Push(q, newCell(orb.Point{x + h, y + h}, h, poly))
		}
	}

	best := centroidCell(poly)

	bound_cell := newCell(b.Center(), 0, poly)

	if bound_cell.d > best.d {
		best = bound_cell
	}

	examined := 0

	for q.Len() > 0 && examined < POLYLABEL_MAX_CELLS {

		c := heap.Pop(q).(*cell)
		examined += 1

		if c.d > best.d {
			best = c
		}

		if c.max-best.d <= precision {
			continue
		}

		h = c.h / 2

		heap.Push(q, newCell(orb.Point{c.center.X() - h, c.center.Y() - h}, h, poly))
		heap.Push(q, newCell(orb.Point{c.center.X() + h, c.center.Y() - h}, h, poly))
		heap.Push(q, newCell(orb.Point{c.center.X() - h, c.center.Y() + h}, h, poly))
		heap.Push(q, newCell(orb.Point{c.center.X() + h, c.center.Y() + h}, h, poly))
	}

	return best.center, nil
}

type cell struct {
	center orb.Point
	// half the cell size
	h float64
	// signed distance from the center to the polygon outline
	d float64
	// the maximum distance to the outline within the cell
	max float64
}

func newCell(center orb.Point, h float64, poly orb.Polygon) *cell {

	d := signedDistance(center, poly)

	c := &cell{
		center: center,
		h:      h,
		d:      d,
		max:    d + h*math.Sqrt2,
	}

	return c
}

func centroidCell(poly orb.Polygon) *cell {

	pt, area := planar.CentroidArea(poly)

	if area == 0 {
		pt = poly[0][0]
	}

	return newCell(pt, 0, poly)
}

// signedDistance is positive inside poly and negative outside.
func signedDistance(pt orb.Point, poly orb.Polygon) float64 {

	min_d := math.Inf(1)

	for _, ring := range poly {

		for i := 1; i < len(ring); i++ {

			d := planar.DistanceFromSegmentSquared(ring[i-1], ring[i], pt)

			if d < min_d {
				min_d = d
			}
		}
	}

	d := math.Sqrt(min_d)

	if !planar.PolygonContains(poly, pt) {
		d = -d
	}

	return d
}

// cellQueue is a max-heap of cells ordered by their potential distance.
type cellQueue []*cell

func (q cellQueue) Len() int {
	return len(q)
}

func (q cellQueue) Less(i, j int) bool {
	return q[i].max > q[j].max
}

func (q cellQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *cellQueue) Push(x any) {
	*q = append(*q, x.(*cell))
}

func (q *cellQueue) Pop() any {

	old := *q
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return c
}
