package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sfomuseum/go-sfomuseum-boundaries"
	"github.com/sfomuseum/go-sfomuseum-boundaries/index"
	"github.com/sfomuseum/go-sfomuseum-boundaries/output"
	"github.com/sfomuseum/go-sfomuseum-boundaries/provider"
)

const countiesFixture = `{"features": [{
  "attributes": {"GEOID": "06075", "NAME": "San Francisco County", "LSADC": "06", "STATE": "06", "COUNTY": "075"},
  "geometry": {"rings": [[[-122.6, 37.6], [-122.6, 37.9], [-122.3, 37.9], [-122.3, 37.6], [-122.6, 37.6]]]}
}]}`

func testServer(t *testing.T) (*httptest.Server, *int64) {

	var requests int64

	mux := http.NewServeMux()

	json_handler := func(body string) http.HandlerFunc {

		return func(rsp http.ResponseWriter, req *http.Request) {
			atomic.AddInt64(&requests, 1)
			rsp.Header().Set("Content-Type", "application/json")
			rsp.Write([]byte(body))
		}
	}

	mux.HandleFunc("/tigerweb/82/query", json_handler(countiesFixture))
	mux.HandleFunc("/tigerweb/28/query", json_handler(`{"error": {"code": 400, "message": "Unable to complete operation.", "details": ["Invalid query"]}}`))
	mux.HandleFunc("/tigerweb/2/query", json_handler(`{"features": []}`))
	mux.HandleFunc("/census", json_handler(`[["P1_001N","state","county"],["873965","06","075"]]`))

	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s, &requests
}

func testOptions(s *httptest.Server) *Options {

	params := url.Values{}
	params.Set("tigerweb", s.URL+"/tigerweb")
	params.Set("census", s.URL+"/census")
	params.Set("retry-delay", "1ms")

	opts := DefaultOptions()
	opts.ProviderURI = provider.URI("US", params)

	return opts
}

func sfBoundingBox(t *testing.T) *boundaries.BoundingBox {

	bbox, err := boundaries.NewBoundingBox(-122.52, 37.70, -122.35, 37.83)

	if err != nil {
		t.Fatalf("Failed to create bounding box, %v", err)
	}

	return bbox
}

func TestRun(t *testing.T) {

	ctx := context.Background()
	s, _ := testServer(t)

	out := t.TempDir()

	req := &Request{
		CityCode:    "sfo",
		CountryCode: "us",
		Datasets:    []string{"counties", "places", "zctas", "counties"},
		BBox:        sfBoundingBox(t),
		Compress:    true,
		Out:         out,
	}

	summary, err := Run(ctx, req, testOptions(s))

	if err != nil {
		t.Fatalf("Failed to run extraction, %v", err)
	}

	if strings.Join(summary.Succeeded, ",") != "counties" {
		t.Fatalf("Unexpected succeeded datasets %v", summary.Succeeded)
	}

	if strings.Join(summary.Failed, ",") != "places" {
		t.Fatalf("Unexpected failed datasets %v", summary.Failed)
	}

	if strings.Join(summary.Skipped, ",") != "zctas" {
		t.Fatalf("Unexpected skipped datasets %v", summary.Skipped)
	}

	if summary.Err == nil || !strings.Contains(summary.Err.Error(), "places") {
		t.Fatalf("Expected summary error to name failed dataset, %v", summary.Err)
	}

	fc, err := output.ReadRegions(ctx, filepath.Join(out, "SFO", "counties.geojson.gz"))

	if err != nil {
		t.Fatalf("Failed to read counties, %v", err)
	}

	if len(fc.Features) != 1 {
		t.Fatalf("Expected 1 county, got %d", len(fc.Features))
	}

	props := fc.Features[0].Properties

	if !strings.Contains(props.MustString(boundaries.PROPERTY_NAME), "San Francisco") {
		t.Fatalf("Unexpected name %v", props[boundaries.PROPERTY_NAME])
	}

	if props.MustString(boundaries.PROPERTY_UNIT_TYPE) != "County" {
		t.Fatalf("Unexpected unit type %v", props[boundaries.PROPERTY_UNIT_TYPE])
	}

	if props.MustFloat64(boundaries.PROPERTY_POPULATION) != 873965 {
		t.Fatalf("Unexpected population %v", props[boundaries.PROPERTY_POPULATION])
	}

	_, err = os.Stat(filepath.Join(out, "SFO", "zctas.geojson.gz"))

	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Did not expect an output file for an empty dataset")
	}

	m, err := index.Load(filepath.Join(out, index.FILENAME))

	if err != nil {
		t.Fatalf("Failed to load index, %v", err)
	}

	entries := m["SFO"]

	if len(entries) != 1 || entries[0].DatasetID != "counties" || entries[0].Size == 0 {
		t.Fatalf("Unexpected index entries %v", entries)
	}

	if entries[0].DisplayName != "Counties" {
		t.Fatalf("Unexpected display name %s", entries[0].DisplayName)
	}

	// Running the same request again does not add a second index entry.
	_, err = Run(ctx, req, testOptions(s))

	if err != nil {
		t.Fatalf("Failed to rerun extraction, %v", err)
	}

	m, err = index.Load(filepath.Join(out, index.FILENAME))

	if err != nil {
		t.Fatalf("Failed to load index, %v", err)
	}

	if len(m["SFO"]) != 1 {
		t.Fatalf("Expected 1 index entry after rerun, got %d", len(m["SFO"]))
	}
}

func TestRunAllFailed(t *testing.T) {

	ctx := context.Background()
	s, _ := testServer(t)

	req := &Request{
		CityCode:    "SFO",
		CountryCode: "US",
		Datasets:    []string{"places"},
		BBox:        sfBoundingBox(t),
		Out:         t.TempDir(),
	}

	summary, err := Run(ctx, req, testOptions(s))

	if err == nil {
		t.Fatalf("Expected run to fail when every dataset fails")
	}

	if summary == nil || len(summary.Failed) != 1 {
		t.Fatalf("Unexpected summary %v", summary)
	}

	var svc_err *provider.ServiceError

	if !errors.As(err, &svc_err) || svc_err.Code != 400 {
		t.Fatalf("Expected provider error, got %v", err)
	}
}

func TestRunInvalidRequest(t *testing.T) {

	ctx := context.Background()
	s, requests := testServer(t)

	bad_bbox := &boundaries.BoundingBox{West: -122.35, South: 37.70, East: -122.52, North: 37.83}

	tests := map[string]*Request{
		"bbox":    {CityCode: "SFO", CountryCode: "US", Datasets: []string{"counties"}, BBox: bad_bbox, Out: "out"},
		"country": {CityCode: "XXX", CountryCode: "ZZ", Datasets: []string{"counties"}, BBox: sfBoundingBox(t), Out: "out"},
		"dataset": {CityCode: "SFO", CountryCode: "US", Datasets: []string{"wards"}, BBox: sfBoundingBox(t), Out: "out"},
		"empty":   {CityCode: "SFO", CountryCode: "US", Datasets: []string{}, BBox: sfBoundingBox(t), Out: "out"},
		"city":    {CityCode: " ", CountryCode: "US", Datasets: []string{"counties"}, BBox: sfBoundingBox(t), Out: "out"},
	}

	for label, req := range tests {

		_, err := Run(ctx, req, testOptions(s))

		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("Expected invalid request error for %s, got %v", label, err)
		}
	}

	if atomic.LoadInt64(requests) != 0 {
		t.Fatalf("Expected no provider requests for invalid requests, got %d", *requests)
	}
}

func TestProviderURI(t *testing.T) {

	opts := &Options{
		DataURI:      "fs:///usr/local/data/boundaries",
		CensusAPIKey: "s33kret",
	}

	us_uri := ProviderURI("US", opts)

	if !strings.HasPrefix(us_uri, "us://?") || !strings.Contains(us_uri, "census-api-key=s33kret") {
		t.Fatalf("Unexpected URI %s", us_uri)
	}

	gb_uri := ProviderURI("GB", opts)

	if strings.Contains(gb_uri, "census-api-key") || !strings.Contains(gb_uri, "data=fs") {
		t.Fatalf("Unexpected URI %s", gb_uri)
	}

	opts.ProviderURI = "us://?tigerweb=http://localhost"

	if ProviderURI("US", opts) != opts.ProviderURI {
		t.Fatalf("Expected explicit provider URI")
	}
}
