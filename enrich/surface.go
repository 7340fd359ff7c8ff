package enrich

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// PointOnSurface returns a point guaranteed to lie inside the largest part of geom: the
// midpoint of the widest interior interval of a horizontal scan line through the part.
// The scan line is placed between vertex latitudes so it never passes through a vertex.
func PointOnSurface(geom orb.Geometry) (orb.Point, error) {

	poly, err := largestPolygon(geom)

	if err != nil {
		return orb.Point{}, err
	}

	y, err := scanLatitude(poly)

	if err != nil {
		return orb.Point{}, err
	}

	crossings := make([]float64, 0)

	for _, ring := range poly {

		for i := 1; i < len(ring); i++ {

			a := ring[i-1]
			b := ring[i]

			if (a.Y() > y) == (b.Y() > y) {
				continue
			}

			t := (y - a.Y()) / (b.Y() - a.Y())
			crossings = append(crossings, a.X()+t*(b.X()-a.X()))
		}
	}

	if len(crossings) < 2 {
		return orb.Point{}, fmt.Errorf("Scan line does not cross polygon")
	}

	sort.Float64s(crossings)

	best_x := math.NaN()
	best_w := -1.0

	for i := 0; i+1 < len(crossings); i += 2 {

		w := crossings[i+1] - crossings[i]

		if w > best_w {
			best_w = w
			best_x = (crossings[i] + crossings[i+1]) / 2
		}
	}

	if best_w <= 0 {
		return orb.Point{}, fmt.Errorf("Scan line has no interior interval")
	}

	return orb.Point{best_x, y}, nil
}

// scanLatitude returns the midpoint between the two distinct vertex latitudes of the
// polygon closest to the middle of its bounds.
func scanLatitude(poly orb.Polygon) (float64, error) {

	b := poly.Bound()
	mid := (b.Min.Y() + b.Max.Y()) / 2

	below := b.Min.Y()
	above := b.Max.Y()

	for _, ring := range poly {

		for _, pt := range ring {

			y := pt.Y()

			if y <= mid && y > below {
				below = y
			}

			if y > mid && y < above {
				above = y
			}
		}
	}

	if above <= below {
		return 0, fmt.Errorf("Polygon has no height")
	}

	return (below + above) / 2, nil
}
