package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jtacoma/uritemplates"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-sfomuseum-boundaries/fetch"
	"github.com/tidwall/gjson"
)

const ARCGIS_QUERY_TEMPLATE string = "{+layer}/query{?where,geometry,geometryType,inSR,spatialRel,outFields,returnGeometry,outSR,f,resultOffset,resultRecordCount}"

// The maximum number of pages requested from a layer which reports exceededTransferLimit.
const ARCGIS_MAX_PAGES int = 50

const (
	ARCGIS_FORMAT_JSON    string = "json"
	ARCGIS_FORMAT_GEOJSON string = "geojson"
)

// ArcGISLayer is a single layer of an ArcGIS REST MapServer or FeatureServer.
type ArcGISLayer struct {
	// URL is the layer URL, for example https://example.com/arcgis/rest/services/X/MapServer/82
	URL string
	// OutFields is the comma-separated list of attributes to return. Defaults to "*".
	OutFields string
	// Format is either "json" (Esri attributes and rings) or "geojson".
	Format string
	// PageSize, if greater than zero, is sent as resultRecordCount.
	PageSize int
}

// QueryURL returns the query URL for bbox, starting at offset.
func (l *ArcGISLayer) QueryURL(bbox orb.Bound, offset int) (string, error) {

	t, err := uritemplates.Parse(ARCGIS_QUERY_TEMPLATE)

	if err != nil {
		return "", fmt.Errorf("Failed to parse query template, %w", err)
	}

	out_fields := l.OutFields

	if out_fields == "" {
		out_fields = "*"
	}

	format := l.Format

	if format == "" {
		format = ARCGIS_FORMAT_JSON
	}

	vars := map[string]interface{}{
		"layer":          l.URL,
		"where":          "1=1",
		"geometry":       formatEnvelope(bbox),
		"geometryType":   "esriGeometryEnvelope",
		"inSR":           "4326",
		"spatialRel":     "esriSpatialRelIntersects",
		"outFields":      out_fields,
		"returnGeometry": "true",
		"outSR":          "4326",
		"f":              format,
	}

	if offset > 0 {
		vars["resultOffset"] = strconv.Itoa(offset)
	}

	if l.PageSize > 0 {
		vars["resultRecordCount"] = strconv.Itoa(l.PageSize)
	}

	return t.Expand(vars)
}

// Query returns every feature of the layer intersecting bbox, following pagination while
// the service reports that its transfer limit was exceeded.
func (l *ArcGISLayer) Query(ctx context.Context, bbox orb.Bound, opts *fetch.Options) ([]*geojson.Feature, error) {

	features := make([]*geojson.Feature, 0)
	offset := 0

	for page := 0; page < ARCGIS_MAX_PAGES; page++ {

		query_url, err := l.QueryURL(bbox, offset)

		if err != nil {
			return nil, fmt.Errorf("Failed to derive query URL, %w", err)
		}

		req := &fetch.Request{
			URL: query_url,
		}

		body, err := fetch.FetchJSON(ctx, req, opts)

		if err != nil {
			return nil, err
		}

		page_features, exceeded, err := ParseArcGISResponse(body, opts.Label)

		if err != nil {
			return nil, err
		}

		features = append(features, page_features...)

		if !exceeded || len(page_features) == 0 {
			return features, nil
		}

		offset += len(page_features)
		slog.Debug("Transfer limit exceeded, fetching next page", "layer", l.URL, "offset", offset)
	}

	return nil, fmt.Errorf("%s exceeded %d pages for %s", opts.Label, ARCGIS_MAX_PAGES, l.URL)
}

// ParseArcGISResponse normalizes either of the two success shapes an ArcGIS query may
// return (a GeoJSON FeatureCollection or Esri JSON attributes and rings) into GeoJSON
// features. Provider error envelopes are returned as a *ServiceError. The boolean return
// value reports whether the service's transfer limit was exceeded.
func ParseArcGISResponse(body []byte, label string) ([]*geojson.Feature, bool, error) {

	err_rsp := gjson.GetBytes(body, "error")

	if err_rsp.Exists() {

		details := make([]string, 0)

		for _, d := range err_rsp.Get("details").Array() {
			details = append(details, d.String())
		}

		svc_err := &ServiceError{
			Provider: label,
			Code:     int(err_rsp.Get("code").Int()),
			Message:  err_rsp.Get("message").String(),
			Details:  details,
		}

		return nil, false, svc_err
	}

	exceeded := gjson.GetBytes(body, "exceededTransferLimit").Bool() || gjson.GetBytes(body, "properties.exceededTransferLimit").Bool()

	if gjson.GetBytes(body, "type").String() == "FeatureCollection" {

		fc, err := geojson.UnmarshalFeatureCollection(body)

		if err != nil {
			return nil, false, fmt.Errorf("Failed to unmarshal %s feature collection, %w", label, err)
		}

		return fc.Features, exceeded, nil
	}

	features_rsp := gjson.GetBytes(body, "features")

	if !features_rsp.IsArray() {
		svc_err := &ServiceError{
			Provider: label,
			Message:  "Response is missing features",
		}

		return nil, false, svc_err
	}

	features := make([]*geojson.Feature, 0)

	for i, f_rsp := range features_rsp.Array() {

		rings := make([]orb.Ring, 0)

		for _, ring_rsp := range f_rsp.Get("geometry.rings").Array() {

			ring := make(orb.Ring, 0)

			for _, pt_rsp := range ring_rsp.Array() {
				coords := pt_rsp.Array()

				if len(coords) < 2 {
					continue
				}

				ring = append(ring, orb.Point{coords[0].Float(), coords[1].Float()})
			}

			rings = append(rings, ring)
		}

		geom, err := EsriRingsToGeometry(rings)

		if err != nil {
			slog.Warn("Skipping feature with invalid rings", "provider", label, "offset", i, "error", err)
			continue
		}

		f := geojson.NewFeature(geom)

		attrs, ok := f_rsp.Get("attributes").Value().(map[string]interface{})

		if ok {
			for k, v := range attrs {
				f.Properties[k] = v
			}
		}

		features = append(features, f)
	}

	return features, exceeded, nil
}

func formatEnvelope(bbox orb.Bound) string {

	return fmt.Sprintf("%s,%s,%s,%s",
		strconv.FormatFloat(bbox.Min[0], 'f', -1, 64),
		strconv.FormatFloat(bbox.Min[1], 'f', -1, 64),
		strconv.FormatFloat(bbox.Max[0], 'f', -1, 64),
		strconv.FormatFloat(bbox.Max[1], 'f', -1, 64),
	)
}
