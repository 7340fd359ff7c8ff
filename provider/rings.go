package provider

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrNoRings = errors.New("Geometry has no valid rings")

// EsriRingsToGeometry groups Esri polygon rings (clockwise exterior rings, counter-clockwise
// holes) into a Polygon or MultiPolygon wound according to RFC 7946.
func EsriRingsToGeometry(rings []orb.Ring) (orb.Geometry, error) {

	outers := make([]orb.Ring, 0)
	holes := make([]orb.Ring, 0)

	for _, r := range rings {

		r, ok := closeRing(r)

		if !ok {
			continue
		}

		switch r.Orientation() {
		case orb.CW:
			outers = append(outers, r)
		case orb.CCW:
			holes = append(holes, r)
		}
	}

	return assemblePolygons(outers, holes)
}

// assemblePolygons assigns each hole to the first exterior ring containing it. Holes which
// are not contained by any exterior ring are promoted to exterior rings.
func assemblePolygons(outers []orb.Ring, holes []orb.Ring) (orb.Geometry, error) {

	polys := make([]orb.Polygon, 0, len(outers))

	for _, r := range outers {

		if r.Orientation() == orb.CW {
			r.Reverse()
		}

		polys = append(polys, orb.Polygon{r})
	}

	for _, h := range holes {

		assigned := false

		for i, p := range polys {

			if !planar.RingContains(p[0], h[0]) {
				continue
			}

			if h.Orientation() == orb.CCW {
				h.Reverse()
			}

			polys[i] = append(polys[i], h)
			assigned = true
			break
		}

		if !assigned {

			if h.Orientation() == orb.CW {
				h.Reverse()
			}

			polys = append(polys, orb.Polygon{h})
		}
	}

	switch len(polys) {
	case 0:
		return nil, ErrNoRings
	case 1:
		return polys[0], nil
	default:
		return orb.MultiPolygon(polys), nil
	}
}

// closeRing returns r with its first point repeated at the end, if necessary. The boolean
// return value is false if r has fewer than three distinct points.
func closeRing(r orb.Ring) (orb.Ring, bool) {

	if len(r) < 3 {
		return nil, false
	}

	if !r[0].Equal(r[len(r)-1]) {
		closed := make(orb.Ring, len(r), len(r)+1)
		copy(closed, r)
		r = append(closed, r[0])
	}

	if len(r) < 4 || r.Orientation() == 0 {
		return nil, false
	}

	return r, true
}
