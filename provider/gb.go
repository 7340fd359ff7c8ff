package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
	"github.com/sfomuseum/go-sfomuseum-boundaries/catalog"
	"github.com/sfomuseum/go-sfomuseum-boundaries/fetch"
	"github.com/whosonfirst/go-reader/v2"
)

const ONS_ENDPOINT string = "https://services1.arcgis.com/ESMARspQHYMw9BZ9/arcgis/rest/services"

const (
	GB_DISTRICTS      string = "districts"
	GB_WARDS          string = "wards"
	GB_CONSTITUENCIES string = "constituencies"
)

// ONS FeatureServer service names, relative to ONS_ENDPOINT.
var ons_services = map[string]string{
	GB_DISTRICTS:      "Local_Authority_Districts_May_2023_UK_BGC_V2",
	GB_WARDS:          "Wards_May_2023_Boundaries_UK_BGC",
	GB_CONSTITUENCIES: "Westminster_Parliamentary_Constituencies_July_2024_Boundaries_UK_BGC",
}

type GBProvider struct {
	ons  string
	data reader.Reader
	opts *fetch.Options
}

func init() {

	ctx := context.Background()
	err := RegisterProvider(ctx, "gb", NewGBProvider)

	if err != nil {
		panic(err)
	}
}

// NewGBProvider returns a Provider for Office for National Statistics boundaries. Supported
// query parameters are: ons (ArcGIS services root) and data (a go-reader URI for the
// bundled population tables, gb/{DATASET}_population.csv).
func NewGBProvider(ctx context.Context, uri string) (Provider, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse URI, %w", err)
	}

	q := u.Query()

	ons := ONS_ENDPOINT

	if q.Has("ons") {
		ons = q.Get("ons")
	}

	opts := fetch.DefaultOptions()
	opts.Label = "ons"

	err = applyFetchParams(q, opts)

	if err != nil {
		return nil, err
	}

	p := &GBProvider{
		ons:  strings.TrimRight(ons, "/"),
		opts: opts,
	}

	if q.Has("data") {

		r, err := reader.NewReader(ctx, q.Get("data"))

		if err != nil {
			return nil, fmt.Errorf("Failed to create data reader, %w", err)
		}

		p.data = r
	}

	return p, nil
}

func (p *GBProvider) Country() string {
	return "GB"
}

func (p *GBProvider) Datasets() []string {
	return []string{GB_DISTRICTS, GB_WARDS, GB_CONSTITUENCIES}
}

func (p *GBProvider) Extract(ctx context.Context, dataset_id string, bbox orb.Bound) (*Extraction, error) {

	switch dataset_id {
	case GB_DISTRICTS, GB_WARDS, GB_CONSTITUENCIES:
		return p.extractService(ctx, dataset_id, bbox)
	default:
		return nil, fmt.Errorf("%w '%s' for GB", catalog.ErrUnknownDataset, dataset_id)
	}
}

func (p *GBProvider) extractService(ctx context.Context, dataset_id string, bbox orb.Bound) (*Extraction, error) {

	layer := &ArcGISLayer{
		URL:    fmt.Sprintf("%s/%s/FeatureServer/0", p.ons, ons_services[dataset_id]),
		Format: ARCGIS_FORMAT_GEOJSON,
	}

	features, err := layer.Query(ctx, bbox, p.opts)

	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = features

	ex := &Extraction{
		Regions:    fc,
		Population: p.population(ctx, dataset_id),
	}

	return ex, nil
}

func (p *GBProvider) population(ctx context.Context, dataset_id string) boundaries.PopulationIndex {

	if p.data == nil {
		return nil
	}

	t := &PopulationTable{
		Reader: p.data,
		Path:   fmt.Sprintf("gb/%s_population.csv", dataset_id),
	}

	idx, err := t.Load(ctx)

	if err != nil {
		slog.Warn("Failed to load population table", "dataset", dataset_id, "error", err)
		return nil
	}

	return idx
}
