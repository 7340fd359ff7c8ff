// Package enrich clips raw provider regions to a bounding box and decorates each one with
// an identity, a name, label points, areas, population and unit type properties.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
	"github.com/sfomuseum/go-sfomuseum-boundaries/catalog"
)

// Output coordinates are rounded to this factor (6 decimal places).
const COORDINATE_PRECISION int = 1e6

type Options struct {
	// Strategies are the label strategies, in order of preference.
	Strategies []LabelStrategy
	// Simplify is the Douglas-Peucker tolerance, in degrees, applied to output geometries.
	// Zero disables simplification.
	Simplify float64
}

func DefaultOptions() *Options {

	opts := &Options{
		Strategies: DefaultLabelStrategies(),
	}

	return opts
}

type enricher struct {
	bbox     orb.Bound
	desc     *catalog.Descriptor
	opts     *Options
	unmapped map[string]bool
}

// Enrich returns the regions in fc which intersect bbox, clipped to bbox unless they are
// entirely contained by it, with the output properties assigned. Regions which can not be
// enriched are logged and dropped. If pop is not nil it is joined to the regions (by
// the descriptor's identity property) which do not already carry a population.
func Enrich(ctx context.Context, fc *geojson.FeatureCollection, bbox orb.Bound, desc *catalog.Descriptor, pop boundaries.PopulationIndex, opts *Options) (*geojson.FeatureCollection, error) {

	if desc == nil {
		return nil, fmt.Errorf("Missing dataset descriptor")
	}

	if opts == nil {
		opts = DefaultOptions()
	}

	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultLabelStrategies()
	}

	e := &enricher{
		bbox:     bbox,
		desc:     desc,
		opts:     opts,
		unmapped: make(map[string]bool),
	}

	enriched := make([]*geojson.Feature, 0)
	skipped := 0

	for i, f := range fc.Features {

		err := ctx.Err()

		if err != nil {
			return nil, err
		}

		new_f, err := e.enrichFeature(f)

		if err != nil {
			slog.Warn("Skipping region", "dataset", desc.DatasetID, "offset", i, "id", f.ID, "error", err)
			skipped += 1
			continue
		}

		if new_f == nil {
			continue
		}

		enriched = append(enriched, new_f)
	}

	if pop != nil {
		enriched = AttachPopulation(enriched, pop, desc.IDProperty)
	}

	slog.Debug("Enriched regions", "dataset", desc.DatasetID, "input", len(fc.Features), "output", len(enriched), "skipped", skipped)

	new_fc := geojson.NewFeatureCollection()
	new_fc.Features = enriched

	return new_fc, nil
}

// enrichFeature returns nil, nil for features which are not polygonal or which do not
// intersect the bounding box.
func (e *enricher) enrichFeature(f *geojson.Feature) (*geojson.Feature, error) {

	geom := f.Geometry

	switch geom.(type) {
	case orb.Polygon, orb.MultiPolygon:
		// pass
	default:
		return nil, nil
	}

	if !geom.Bound().Intersects(e.bbox) {
		return nil, nil
	}

	clipped, ok := cleanGeometry(clip.Geometry(e.bbox, cloneGeometry(geom)))

	if !ok {
		slog.Debug("Skipping region with degenerate clipped geometry", "dataset", e.desc.DatasetID, "id", f.ID)
		return nil, nil
	}

	within, err := containedPartwise(geom, e.bbox)

	if err != nil {
		slog.Debug("Falling back to bounds containment", "dataset", e.desc.DatasetID, "id", f.ID, "error", err)
		within = boundWithin(geom.Bound(), e.bbox)
	}

	output := clipped

	if within {

		// Parts without area are dropped even when the region is not clipped.
		cleaned, ok := cleanGeometry(cloneGeometry(geom))

		if ok {
			output = cleaned
		}
	}

	props := f.Properties.Clone()

	if props == nil {
		props = geojson.Properties{}
	}

	id, err := boundaries.DeriveIdentity(props, e.desc.IDProperty)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive identity, %w", err)
	}

	name, err := boundaries.DeriveName(props, e.desc.NameProperty, e.desc.ApplicableNameProperties)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive name for %s, %w", id, err)
	}

	// Labels are resolved against the geometry as it will be written.
	final := e.finalizeGeometry(output)

	labels, err := ResolveLabelPoints(final, e.opts.Strategies)

	if err != nil {
		return nil, fmt.Errorf("Failed to resolve label for %s, %w", id, err)
	}

	total_km2 := geo.Area(geom) / 1e6
	within_km2 := total_km2

	if !within {
		within_km2 = geo.Area(output) / 1e6
	}

	props[boundaries.PROPERTY_ID] = id
	props[boundaries.PROPERTY_NAME] = name

	display_name, ok := boundaries.DeriveDisplayName(props, e.desc.ApplicableNameProperties)

	if ok {
		props[boundaries.PROPERTY_DISPLAY_NAME] = display_name
	}

	props[boundaries.PROPERTY_LAT] = labels.Primary.Latitude
	props[boundaries.PROPERTY_LNG] = labels.Primary.Longitude
	props[boundaries.PROPERTY_LABEL_POINTS] = labels
	props[boundaries.PROPERTY_WITHIN_BBOX] = within
	props[boundaries.PROPERTY_AREA_WITHIN_BBOX_KM2] = within_km2
	props[boundaries.PROPERTY_TOTAL_AREA_KM2] = total_km2

	e.assignPopulation(props, id)
	e.assignUnitType(props, id)

	new_f := geojson.NewFeature(final)
	new_f.ID = f.ID
	new_f.Properties = props

	return new_f, nil
}

func (e *enricher) assignPopulation(props geojson.Properties, id string) {

	k := e.desc.PopulationProperty

	if k == "" {
		return
	}

	v, exists := props[k]

	if !exists {
		return
	}

	pop, ok := boundaries.ParsePopulation(v)

	if !ok {
		slog.Debug("Unparseable population", "dataset", e.desc.DatasetID, "id", id, "value", v)
		return
	}

	props[boundaries.PROPERTY_POPULATION] = pop
}

func (e *enricher) assignUnitType(props geojson.Properties, id string) {

	k := e.desc.UnitTypeProperty

	if k == "" || len(e.desc.UnitTypeCodeMap) == 0 {
		return
	}

	raw, ok := boundaries.StringProperty(props, k)

	if !ok {
		return
	}

	code := catalog.NormalizeUnitTypeCode(raw)
	label, ok := e.desc.UnitTypeCodeMap[code]

	if !ok {

		if !e.unmapped[code] {
			slog.Warn("Unmapped unit type code", "dataset", e.desc.DatasetID, "property", k, "code", code, "id", id)
			e.unmapped[code] = true
		}

		return
	}

	props[boundaries.PROPERTY_UNIT_TYPE] = label
	props[boundaries.PROPERTY_UNIT_TYPE_CODE] = code
}

// finalizeGeometry simplifies (optionally) and rounds a copy of geom, keeping the result
// inside the bounding box.
func (e *enricher) finalizeGeometry(geom orb.Geometry) orb.Geometry {

	out := cloneGeometry(geom)

	if e.opts.Simplify > 0 {

		simplified, ok := cleanGeometry(simplify.DouglasPeucker(e.opts.Simplify).Simplify(cloneGeometry(geom)))

		if ok {
			out = simplified
		}
	}

	out = orb.Round(out, COORDINATE_PRECISION)
	clampGeometry(out, e.bbox)

	return out
}

func cloneGeometry(geom orb.Geometry) orb.Geometry {

	switch g := geom.(type) {
	case orb.Polygon:
		return g.Clone()
	case orb.MultiPolygon:
		return g.Clone()
	default:
		return geom
	}
}

// cleanGeometry drops the parts of a Polygon or MultiPolygon which have no area. It
// returns false if nothing is left.
func cleanGeometry(geom orb.Geometry) (orb.Geometry, bool) {

	valid := func(p orb.Polygon) bool {
		return len(p) > 0 && len(p[0]) >= 4 && planar.Area(p) > 0
	}

	switch g := geom.(type) {
	case orb.Polygon:

		if !valid(g) {
			return nil, false
		}

		return g, true

	case orb.MultiPolygon:

		parts := make(orb.MultiPolygon, 0, len(g))

		for _, p := range g {

			if valid(p) {
				parts = append(parts, p)
			}
		}

		if len(parts) == 0 {
			return nil, false
		}

		return parts, true

	default:
		return nil, false
	}
}

// containedPartwise reports whether every part of geom lies inside bbox. Since bbox is
// convex only the exterior rings need to be tested.
func containedPartwise(geom orb.Geometry, bbox orb.Bound) (within bool, err error) {

	defer func() {

		r := recover()

		if r != nil {
			err = fmt.Errorf("Containment check panicked, %v", r)
		}
	}()

	parts := polygons(geom)

	if len(parts) == 0 {
		return false, fmt.Errorf("Geometry has no parts")
	}

	for i, p := range parts {

		if len(p) == 0 || len(p[0]) < 4 {
			return false, fmt.Errorf("Part %d has no exterior ring", i)
		}

		if !boundWithin(p[0].Bound(), bbox) {
			return false, nil
		}
	}

	return true, nil
}

func boundWithin(b orb.Bound, outer orb.Bound) bool {

	return b.Min.X() >= outer.Min.X() && b.Min.Y() >= outer.Min.Y() &&
		b.Max.X() <= outer.Max.X() && b.Max.Y() <= outer.Max.Y()
}

// clampGeometry moves any point which rounding has pushed outside of b back on to its edge.
func clampGeometry(geom orb.Geometry, b orb.Bound) {

	for _, p := range polygons(geom) {
		for _, ring := range p {
			for i, pt := range ring {
				ring[i] = orb.Point{
					math.Min(math.Max(pt.X(), b.Min.X()), b.Max.X()),
					math.Min(math.Max(pt.Y(), b.Min.Y()), b.Max.Y()),
				}
			}
		}
	}
}

func roundCoordinate(v float64) float64 {
	return math.Round(v*float64(COORDINATE_PRECISION)) / float64(COORDINATE_PRECISION)
}
