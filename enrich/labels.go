package enrich

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrNoLabelCandidate = errors.New("No label candidate could be computed")

const (
	STRATEGY_POLE_OF_INACCESSIBILITY string = "pole_of_inaccessibility"
	STRATEGY_POINT_ON_SURFACE        string = "point_on_surface"
	STRATEGY_CENTER_OF_MASS          string = "center_of_mass"
	STRATEGY_CENTROID                string = "centroid"
)

// LabelFunc derives a single label point for a polygonal geometry.
type LabelFunc func(orb.Geometry) (orb.Point, error)

type LabelStrategy struct {
	Name  string
	Label LabelFunc
}

// LabelPoint is a label candidate as recorded in the LABEL_POINTS property.
type LabelPoint struct {
	Strategy  string  `json:"strategy"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Inside    bool    `json:"inside"`
}

type LabelPoints struct {
	Primary    LabelPoint   `json:"primary"`
	Candidates []LabelPoint `json:"candidates"`
}

// DefaultLabelStrategies returns the label strategies in the order they are evaluated.
// Earlier strategies are preferred when choosing the primary label point.
func DefaultLabelStrategies() []LabelStrategy {

	return []LabelStrategy{
		{Name: STRATEGY_POLE_OF_INACCESSIBILITY, Label: PoleOfInaccessibility},
		{Name: STRATEGY_POINT_ON_SURFACE, Label: PointOnSurface},
		{Name: STRATEGY_CENTER_OF_MASS, Label: CenterOfMass},
		{Name: STRATEGY_CENTROID, Label: Centroid},
	}
}

// ResolveLabelPoints runs each strategy against geom independently, skipping the ones
// that fail, and returns the candidates together with the primary label: the first
// candidate inside geom or, if none are, the first candidate.
func ResolveLabelPoints(geom orb.Geometry, strategies []LabelStrategy) (*LabelPoints, error) {

	candidates := make([]LabelPoint, 0, len(strategies))

	for _, s := range strategies {

		pt, err := runStrategy(s, geom)

		if err != nil {
			slog.Debug("Label strategy failed", "strategy", s.Name, "error", err)
			continue
		}

		rounded := orb.Point{roundCoordinate(pt.Lon()), roundCoordinate(pt.Lat())}

		c := LabelPoint{
			Strategy:  s.Name,
			Latitude:  rounded.Lat(),
			Longitude: rounded.Lon(),
			Inside:    Contains(geom, rounded),
		}

		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, ErrNoLabelCandidate
	}

	primary := candidates[0]

	for _, c := range candidates {

		if c.Inside {
			primary = c
			break
		}
	}

	lp := &LabelPoints{
		Primary:    primary,
		Candidates: candidates,
	}

	return lp, nil
}

func runStrategy(s LabelStrategy, geom orb.Geometry) (pt orb.Point, err error) {

	defer func() {

		r := recover()

		if r != nil {
			err = fmt.Errorf("%s panicked, %v", s.Name, r)
		}
	}()

	return s.Label(geom)
}

// Contains reports whether pt lies inside a Polygon or MultiPolygon.
func Contains(geom orb.Geometry, pt orb.Point) bool {

	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	default:
		return false
	}
}

// CenterOfMass returns the area-weighted centroid of geom.
func CenterOfMass(geom orb.Geometry) (orb.Point, error) {

	pt, area := planar.CentroidArea(geom)

	if area == 0 {
		return orb.Point{}, fmt.Errorf("Geometry has no area")
	}

	return pt, nil
}

// Centroid returns the average of the exterior ring vertices of geom.
func Centroid(geom orb.Geometry) (orb.Point, error) {

	var x float64
	var y float64
	var n float64

	for _, p := range polygons(geom) {

		if len(p) == 0 {
			continue
		}

		ring := p[0]

		if len(ring) > 1 && ring[0].Equal(ring[len(ring)-1]) {
			ring = ring[:len(ring)-1]
		}

		for _, pt := range ring {
			x += pt.X()
			y += pt.Y()
			n += 1
		}
	}

	if n == 0 {
		return orb.Point{}, fmt.Errorf("Geometry has no vertices")
	}

	return orb.Point{x / n, y / n}, nil
}

// polygons returns the parts of a Polygon or MultiPolygon.
func polygons(geom orb.Geometry) []orb.Polygon {

	switch g := geom.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		return g
	default:
		return nil
	}
}

// largestPolygon returns the part of geom with the greatest planar area.
func largestPolygon(geom orb.Geometry) (orb.Polygon, error) {

	var largest orb.Polygon
	max_area := -1.0

	for _, p := range polygons(geom) {

		if len(p) == 0 || len(p[0]) < 4 {
			continue
		}

		area := planar.Area(p)

		if area > max_area {
			largest = p
			max_area = area
		}
	}

	if largest == nil {
		return nil, fmt.Errorf("Geometry has no valid polygons")
	}

	return largest, nil
}
