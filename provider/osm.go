package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-sfomuseum-boundaries/catalog"
	"github.com/sfomuseum/go-sfomuseum-boundaries/fetch"
	"go.uber.org/ratelimit"
)

// The Overpass fetch timeout exceeds the query timeout so the server can report its own
// timeout first.
const OVERPASS_FETCH_TIMEOUT_SECONDS int = OVERPASS_QUERY_TIMEOUT + 20

const (
	DE_DISTRICTS      string = "districts"
	DE_BOROUGHS       string = "boroughs"
	JP_MUNICIPALITIES string = "municipalities"
	JP_WARDS          string = "wards"
)

// OSMProvider extracts administrative boundaries from OpenStreetMap through the Overpass API.
// Each dataset selects one or more admin levels.
type OSMProvider struct {
	country  string
	endpoint string
	levels   map[string][]string
	datasets []string
	opts     *fetch.Options
}

func init() {

	ctx := context.Background()

	err := RegisterProvider(ctx, "de", NewDEProvider)

	if err != nil {
		panic(err)
	}

	err = RegisterProvider(ctx, "jp", NewJPProvider)

	if err != nil {
		panic(err)
	}
}

func NewDEProvider(ctx context.Context, uri string) (Provider, error) {

	levels := map[string][]string{
		DE_DISTRICTS: {"9"},
		DE_BOROUGHS:  {"10"},
	}

	return newOSMProvider(ctx, uri, "DE", []string{DE_DISTRICTS, DE_BOROUGHS}, levels)
}

func NewJPProvider(ctx context.Context, uri string) (Provider, error) {

	levels := map[string][]string{
		JP_MUNICIPALITIES: {"7"},
		JP_WARDS:          {"8"},
	}

	return newOSMProvider(ctx, uri, "JP", []string{JP_MUNICIPALITIES, JP_WARDS}, levels)
}

// newOSMProvider supports the overpass (interpreter endpoint) and rate (requests per
// second) query parameters.
func newOSMProvider(ctx context.Context, uri string, country string, datasets []string, levels map[string][]string) (Provider, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse URI, %w", err)
	}

	q := u.Query()

	endpoint := OVERPASS_ENDPOINT

	if q.Has("overpass") {
		endpoint = q.Get("overpass")
	}

	rate, err := intParam(q, "rate", 1)

	if err != nil {
		return nil, err
	}

	opts := fetch.DefaultOptions()
	opts.Label = "overpass"
	opts.Timeout = time.Duration(OVERPASS_FETCH_TIMEOUT_SECONDS) * time.Second

	if rate > 0 {
		opts.Limiter = ratelimit.New(rate)
	}

	err = applyFetchParams(q, opts)

	if err != nil {
		return nil, err
	}

	p := &OSMProvider{
		country:  strings.ToUpper(country),
		endpoint: endpoint,
		levels:   levels,
		datasets: datasets,
		opts:     opts,
	}

	return p, nil
}

func (p *OSMProvider) Country() string {
	return p.country
}

func (p *OSMProvider) Datasets() []string {
	return p.datasets
}

func (p *OSMProvider) Extract(ctx context.Context, dataset_id string, bbox orb.Bound) (*Extraction, error) {

	levels, ok := p.levels[dataset_id]

	if !ok {
		return nil, fmt.Errorf("%w '%s' for %s", catalog.ErrUnknownDataset, dataset_id, p.country)
	}

	q := &OverpassQuery{
		Endpoint:    p.endpoint,
		CountryISO:  p.country,
		AdminLevels: levels,
	}

	features, err := q.Fetch(ctx, bbox, p.opts)

	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = features

	// Population is read from each relation's population tag by the enrichment stage.
	ex := &Extraction{
		Regions: fc,
	}

	return ex, nil
}
