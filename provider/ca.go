package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
	"github.com/sfomuseum/go-sfomuseum-boundaries/catalog"
	"github.com/whosonfirst/go-reader/v2"
)

const (
	CA_CENSUS_SUBDIVISIONS string = "census_subdivisions"
	CA_DISSEMINATION_AREAS string = "dissemination_areas"
)

// CAProvider reads Statistics Canada boundaries from local snapshots since the boundary
// files are only published as bulk downloads.
type CAProvider struct {
	data reader.Reader
}

func init() {

	ctx := context.Background()
	err := RegisterProvider(ctx, "ca", NewCAProvider)

	if err != nil {
		panic(err)
	}
}

// NewCAProvider returns a Provider for Statistics Canada snapshots. The data query
// parameter (a go-reader URI) is required; snapshots are read from ca/{DATASET}.geojson[.gz]
// (or .ndjson[.gz]) and population tables from ca/{DATASET}_population.csv.
func NewCAProvider(ctx context.Context, uri string) (Provider, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse URI, %w", err)
	}

	q := u.Query()

	if !q.Has("data") {
		return nil, fmt.Errorf("Missing ?data= parameter, required for CA snapshots")
	}

	r, err := reader.NewReader(ctx, q.Get("data"))

	if err != nil {
		return nil, fmt.Errorf("Failed to create data reader, %w", err)
	}

	p := &CAProvider{
		data: r,
	}

	return p, nil
}

func (p *CAProvider) Country() string {
	return "CA"
}

func (p *CAProvider) Datasets() []string {
	return []string{CA_CENSUS_SUBDIVISIONS, CA_DISSEMINATION_AREAS}
}

func (p *CAProvider) Extract(ctx context.Context, dataset_id string, bbox orb.Bound) (*Extraction, error) {

	switch dataset_id {
	case CA_CENSUS_SUBDIVISIONS, CA_DISSEMINATION_AREAS:
		return p.extractSnapshot(ctx, dataset_id, bbox)
	default:
		return nil, fmt.Errorf("%w '%s' for CA", catalog.ErrUnknownDataset, dataset_id)
	}
}

func (p *CAProvider) extractSnapshot(ctx context.Context, dataset_id string, bbox orb.Bound) (*Extraction, error) {

	s := &Snapshot{
		Reader: p.data,
		Path:   fmt.Sprintf("ca/%s", dataset_id),
	}

	features, err := s.Load(ctx, bbox)

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

func (p *CAProvider) population(ctx context.Context, dataset_id string) boundaries.PopulationIndex {

	t := &PopulationTable{
		Reader: p.data,
		Path:   fmt.Sprintf("ca/%s_population.csv", dataset_id),
	}

	idx, err := t.Load(ctx)

	if err != nil {
		slog.Debug("No population table", "dataset", dataset_id, "error", err)
		return nil
	}

	return idx
}
