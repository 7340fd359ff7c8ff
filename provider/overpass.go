package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmgeojson"
	"github.com/sfomuseum/go-sfomuseum-boundaries/fetch"
	"github.com/tidwall/gjson"
)

const OVERPASS_ENDPOINT string = "https://overpass-api.de/api/interpreter"

// The server-side timeout, in seconds, declared in every Overpass query.
const OVERPASS_QUERY_TIMEOUT int = 180

// OverpassQuery selects administrative boundary relations at specific admin levels within a
// bounding box and within a country's top-level area.
type OverpassQuery struct {
	Endpoint    string
	CountryISO  string
	AdminLevels []string
	Timeout     int
}

func (q *OverpassQuery) Query(bbox orb.Bound) string {

	timeout := q.Timeout

	if timeout <= 0 {
		timeout = OVERPASS_QUERY_TIMEOUT
	}

	levels := strings.Join(q.AdminLevels, "|")

	// Overpass bounding boxes are south,west,north,east
	str_bbox := fmt.Sprintf("%s,%s,%s,%s",
		strconv.FormatFloat(bbox.Min[1], 'f', -1, 64),
		strconv.FormatFloat(bbox.Min[0], 'f', -1, 64),
		strconv.FormatFloat(bbox.Max[1], 'f', -1, 64),
		strconv.FormatFloat(bbox.Max[0], 'f', -1, 64),
	)

	var b strings.Builder

	fmt.Fprintf(&b, "[out:json][timeout:%d];\n", timeout)
	fmt.Fprintf(&b, "area[\"ISO3166-1\"=\"%s\"][\"admin_level\"=\"2\"]->.country;\n", strings.ToUpper(q.CountryISO))
	fmt.Fprintf(&b, "(\n  relation[\"boundary\"=\"administrative\"][\"admin_level\"~\"^(%s)$\"](area.country)(%s);\n);\n", levels, str_bbox)
	b.WriteString("out body;\n>;\nout skel qt;\n")

	return b.String()
}

func (q *OverpassQuery) Fetch(ctx context.Context, bbox orb.Bound, opts *fetch.Options) ([]*geojson.Feature, error) {

	endpoint := q.Endpoint

	if endpoint == "" {
		endpoint = OVERPASS_ENDPOINT
	}

	form := url.Values{}
	form.Set("data", q.Query(bbox))

	req := &fetch.Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Header: http.Header{
			"Content-Type": []string{"application/x-www-form-urlencoded"},
		},
		Body: []byte(form.Encode()),
	}

	body, err := fetch.FetchJSON(ctx, req, opts)

	if err != nil {
		return nil, err
	}

	return ParseOverpassResponse(body, opts.Label)
}

// ParseOverpassResponse decodes an "out body; >; out skel qt;" response and assembles its
// boundary relations into polygonal GeoJSON features. Relations whose member ways do not close
// into rings are linear and are discarded.
func ParseOverpassResponse(body []byte, label string) ([]*geojson.Feature, error) {

	elements := gjson.GetBytes(body, "elements")
	remark := gjson.GetBytes(body, "remark").String()

	if !elements.IsArray() || (len(elements.Array()) == 0 && strings.Contains(remark, "error")) {

		svc_err := &ServiceError{
			Provider: label,
			Message:  remark,
		}

		if svc_err.Message == "" {
			svc_err.Message = "Response is missing elements"
		}

		return nil, svc_err
	}

	if remark != "" {
		slog.Warn("Overpass returned a remark", "provider", label, "remark", remark)
	}

	var o osm.OSM

	err := json.Unmarshal(body, &o)

	if err != nil {
		return nil, fmt.Errorf("Failed to decode Overpass response, %w", err)
	}

	fc, err := osmgeojson.Convert(&o, osmgeojson.NoMeta(true), osmgeojson.NoRelationMembership(true))

	if err != nil {
		return nil, fmt.Errorf("Failed to assemble Overpass relations, %w", err)
	}

	tags := make(map[string]osm.Tags)

	for _, r := range o.Relations {
		tags[r.FeatureID().String()] = r.Tags
	}

	features := make([]*geojson.Feature, 0)

	for _, f := range fc.Features {

		osm_id, ok := f.ID.(string)

		if !ok || !strings.HasPrefix(osm_id, "relation/") {
			continue
		}

		geom, err := areaGeometry(f.Geometry)

		if err != nil {
			slog.Debug("Discarding non-area relation", "provider", label, "id", osm_id, "error", err)
			continue
		}

		out := geojson.NewFeature(geom)
		out.ID = osm_id

		for _, t := range tags[osm_id] {
			out.Properties[t.Key] = t.Value
		}

		out.Properties["osm_id"] = osm_id
		out.Properties["osm_type"] = "relation"

		features = append(features, out)
	}

	return features, nil
}

// areaGeometry re-assembles the rings of an assembled relation, dropping any ring which is
// not closed, and winds the result according to RFC 7946.
func areaGeometry(geom orb.Geometry) (orb.Geometry, error) {

	var polys []orb.Polygon

	switch g := geom.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		polys = g
	default:
		return nil, fmt.Errorf("Unsupported geometry type %T", geom)
	}

	outers := make([]orb.Ring, 0)
	holes := make([]orb.Ring, 0)

	for _, p := range polys {

		for i, r := range p {

			if len(r) < 4 || !r[0].Equal(r[len(r)-1]) {
				continue
			}

			r, ok := closeRing(r.Clone())

			if !ok {
				continue
			}

			if i == 0 {
				outers = append(outers, r)
			} else {
				holes = append(holes, r)
			}
		}
	}

	if len(outers) == 0 {
		return nil, ErrNoRings
	}

	return assemblePolygons(outers, holes)
}
