package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/sfomuseum/go-sfomuseum-boundaries/fetch"
)

const overpassFixture = `{
  "version": 0.6,
  "elements": [
    {
      "type": "relation", "id": 1543125,
      "tags": {"type": "boundary", "boundary": "administrative", "admin_level": "8", "name": "渋谷区", "name:en": "Shibuya", "population": "243,883"},
      "members": [
        {"type": "way", "ref": 10, "role": "outer"},
        {"type": "way", "ref": 11, "role": "outer"},
        {"type": "way", "ref": 12, "role": "inner"},
        {"type": "node", "ref": 9, "role": "admin_centre"}
      ]
    },
    {
      "type": "relation", "id": 99,
      "tags": {"type": "boundary", "boundary": "administrative", "admin_level": "8", "name": "Open"},
      "members": [
        {"type": "way", "ref": 20, "role": "outer"}
      ]
    },
    {"type": "way", "id": 10, "nodes": [1, 2, 3]},
    {"type": "way", "id": 11, "nodes": [1, 4, 3]},
    {"type": "way", "id": 12, "nodes": [5, 6, 7, 8, 5]},
    {"type": "way", "id": 20, "nodes": [30, 31]},
    {"type": "node", "id": 1, "lat": 35.64, "lon": 139.66},
    {"type": "node", "id": 2, "lat": 35.64, "lon": 139.72},
    {"type": "node", "id": 3, "lat": 35.70, "lon": 139.72},
    {"type": "node", "id": 4, "lat": 35.70, "lon": 139.66},
    {"type": "node", "id": 5, "lat": 35.66, "lon": 139.68},
    {"type": "node", "id": 6, "lat": 35.66, "lon": 139.69},
    {"type": "node", "id": 7, "lat": 35.67, "lon": 139.69},
    {"type": "node", "id": 8, "lat": 35.67, "lon": 139.68},
    {"type": "node", "id": 30, "lat": 1, "lon": 1},
    {"type": "node", "id": 31, "lat": 2, "lon": 2}
  ]
}`

func TestParseOverpassResponse(t *testing.T) {

	features, err := ParseOverpassResponse([]byte(overpassFixture), "overpass")

	if err != nil {
		t.Fatalf("Failed to parse response, %v", err)
	}

	if len(features) != 1 {
		t.Fatalf("Expected linear relation to be discarded, got %d features", len(features))
	}

	f := features[0]

	poly, ok := f.Geometry.(orb.Polygon)

	if !ok {
		t.Fatalf("Expected polygon, got %T", f.Geometry)
	}

	if len(poly) != 2 {
		t.Fatalf("Expected exterior ring and hole, got %d rings", len(poly))
	}

	if len(poly[0]) != 5 {
		t.Fatalf("Expected joined exterior ring of 5 points, got %d", len(poly[0]))
	}

	if poly[1].Orientation() != orb.CW {
		t.Fatalf("Expected clockwise hole")
	}

	if poly[0].Orientation() != orb.CCW {
		t.Fatalf("Expected counter-clockwise exterior ring")
	}

	if f.Properties.MustString("osm_id") != "relation/1543125" || f.Properties.MustString("name:en") != "Shibuya" {
		t.Fatalf("Unexpected properties %v", f.Properties)
	}
}

func TestParseOverpassError(t *testing.T) {

	body := `{"elements": [], "remark": "runtime error: Query timed out in \"query\" at line 3 after 181 seconds."}`

	_, err := ParseOverpassResponse([]byte(body), "overpass")

	if !errors.Is(err, ErrProviderReported) {
		t.Fatalf("Expected provider reported error, got %v", err)
	}

	features, err := ParseOverpassResponse([]byte(`{"elements": []}`), "overpass")

	if err != nil || len(features) != 0 {
		t.Fatalf("Expected empty result to succeed, %v", err)
	}
}

func TestOverpassQuery(t *testing.T) {

	q := &OverpassQuery{
		CountryISO:  "jp",
		AdminLevels: []string{"7", "8"},
	}

	bbox := orb.Bound{Min: orb.Point{139.6, 35.6}, Max: orb.Point{139.8, 35.7}}

	str_q := q.Query(bbox)

	for _, expected := range []string{
		`[out:json][timeout:180];`,
		`area["ISO3166-1"="JP"]["admin_level"="2"]->.country;`,
		`["admin_level"~"^(7|8)$"](area.country)(35.6,139.6,35.7,139.8);`,
		"out body;\n>;\nout skel qt;",
	} {

		if !strings.Contains(str_q, expected) {
			t.Fatalf("Expected query to contain '%s', got %s", expected, str_q)
		}
	}
}

func TestOverpassFetch(t *testing.T) {

	handler := func(rsp http.ResponseWriter, req *http.Request) {

		body, _ := io.ReadAll(req.Body)
		form, err := url.ParseQuery(string(body))

		if req.Method != http.MethodPost || err != nil || !strings.Contains(form.Get("data"), "out skel qt;") {
			http.Error(rsp, "bad request", http.StatusBadRequest)
			return
		}

		rsp.Header().Set("Content-Type", "application/json")
		rsp.Write([]byte(overpassFixture))
	}

	s := httptest.NewServer(http.HandlerFunc(handler))
	defer s.Close()

	q := &OverpassQuery{
		Endpoint:    s.URL,
		CountryISO:  "JP",
		AdminLevels: []string{"8"},
	}

	opts := fetch.DefaultOptions()
	opts.RetryDelay = time.Millisecond

	features, err := q.Fetch(context.Background(), orb.Bound{Min: orb.Point{139, 35}, Max: orb.Point{140, 36}}, opts)

	if err != nil {
		t.Fatalf("Failed to fetch, %v", err)
	}

	if len(features) != 1 {
		t.Fatalf("Expected 1 feature, got %d", len(features))
	}
}

func TestAreaGeometry(t *testing.T) {

	open := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}}}

	_, err := areaGeometry(open)

	if !errors.Is(err, ErrNoRings) {
		t.Fatalf("Expected open ring to be discarded, got %v", err)
	}

	_, err = areaGeometry(orb.LineString{{0, 0}, {1, 1}})

	if err == nil {
		t.Fatalf("Expected line string to fail")
	}

	mp := orb.MultiPolygon{
		{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}},
		{{{5, 5}, {6, 5}, {6, 6}, {5, 6}, {5, 5}}},
	}

	geom, err := areaGeometry(mp)

	if err != nil {
		t.Fatalf("Failed to assemble multipolygon, %v", err)
	}

	out, ok := geom.(orb.MultiPolygon)

	if !ok || len(out) != 2 {
		t.Fatalf("Expected multipolygon with 2 parts, got %v", geom)
	}

	for _, p := range out {

		if p[0].Orientation() != orb.CCW {
			t.Fatalf("Expected counter-clockwise exterior rings")
		}
	}
}
