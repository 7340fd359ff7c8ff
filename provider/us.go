package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
	"github.com/sfomuseum/go-sfomuseum-boundaries/catalog"
	"github.com/sfomuseum/go-sfomuseum-boundaries/fetch"
	"go.uber.org/ratelimit"
)

const TIGERWEB_ENDPOINT string = "https://tigerweb.geo.census.gov/arcgis/rest/services/TIGERweb/tigerWMS_Current/MapServer"

const (
	US_COUNTIES               string = "counties"
	US_COUNTY_SUBDIVISIONS    string = "county_subdivisions"
	US_PLACES                 string = "places"
	US_ZCTAS                  string = "zctas"
	US_CENSUS_TRACTS          string = "census_tracts"
	US_CONGRESSIONAL_DISTRICT string = "congressional_districts"
)

// TIGERweb layer ids.
const (
	TIGERWEB_LAYER_ZCTAS                  int = 2
	TIGERWEB_LAYER_CENSUS_TRACTS          int = 8
	TIGERWEB_LAYER_COUNTY_SUBDIVISIONS    int = 22
	TIGERWEB_LAYER_INCORPORATED_PLACES    int = 28
	TIGERWEB_LAYER_CONGRESSIONAL_DISTRICT int = 54
	TIGERWEB_LAYER_COUNTIES               int = 82
)

// States whose functional county subdivisions are incorporated places rather than minor
// civil divisions. County subdivisions for these states are sourced from the places layer.
var CITIES_AS_SUBDIVISIONS_STATES = []string{
	"01", "04", "06", "08", "10", "12", "13", "15", "16", "21",
	"30", "35", "40", "41", "45", "47", "48", "49", "53", "56",
}

// LSADC code for county subdivisions whose legal/statistical type is not defined.
const LSADC_NOT_DEFINED string = "00"

const COUSUB_NULL_CODE string = "00000"

var (
	census_county        = &CensusGeography{For: "county", Columns: []string{"state", "county"}}
	census_cousub        = &CensusGeography{For: "county subdivision", InCounty: true, Columns: []string{"state", "county", "county subdivision"}}
	census_place         = &CensusGeography{For: "place", Columns: []string{"state", "place"}}
	census_zcta          = &CensusGeography{For: "zip code tabulation area", Columns: []string{"zip code tabulation area"}}
	census_tract         = &CensusGeography{For: "tract", InCounty: true, Columns: []string{"state", "county", "tract"}}
	census_congressional = &CensusGeography{For: "congressional district", Columns: []string{"state", "congressional district"}}
)

type USProvider struct {
	tigerweb    string
	census      *CensusQuery
	page_size   int
	arcgis_opts *fetch.Options
	census_opts *fetch.Options
}

func init() {

	ctx := context.Background()
	err := RegisterProvider(ctx, "us", NewUSProvider)

	if err != nil {
		panic(err)
	}
}

// NewUSProvider returns a Provider for US Census Bureau datasets. Supported query
// parameters are: tigerweb (MapServer URL), census (data API endpoint), census-api-key
// and page-size.
func NewUSProvider(ctx context.Context, uri string) (Provider, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse URI, %w", err)
	}

	q := u.Query()

	tigerweb := TIGERWEB_ENDPOINT

	if q.Has("tigerweb") {
		tigerweb = q.Get("tigerweb")
	}

	census := &CensusQuery{
		Endpoint: CENSUS_ENDPOINT,
		APIKey:   q.Get("census-api-key"),
	}

	if q.Has("census") {
		census.Endpoint = q.Get("census")
	}

	page_size, err := intParam(q, "page-size", 0)

	if err != nil {
		return nil, err
	}

	arcgis_opts := fetch.DefaultOptions()
	arcgis_opts.Label = "tigerweb"

	census_opts := fetch.DefaultOptions()
	census_opts.Label = "census"
	census_opts.Limiter = ratelimit.New(10)

	err = applyFetchParams(q, arcgis_opts, census_opts)

	if err != nil {
		return nil, err
	}

	p := &USProvider{
		tigerweb:    strings.TrimRight(tigerweb, "/"),
		census:      census,
		page_size:   page_size,
		arcgis_opts: arcgis_opts,
		census_opts: census_opts,
	}

	return p, nil
}

func (p *USProvider) Country() string {
	return "US"
}

func (p *USProvider) Datasets() []string {

	return []string{
		US_COUNTIES,
		US_COUNTY_SUBDIVISIONS,
		US_PLACES,
		US_ZCTAS,
		US_CENSUS_TRACTS,
		US_CONGRESSIONAL_DISTRICT,
	}
}

func (p *USProvider) Extract(ctx context.Context, dataset_id string, bbox orb.Bound) (*Extraction, error) {

	switch dataset_id {
	case US_COUNTIES:
		return p.extractLayer(ctx, bbox, TIGERWEB_LAYER_COUNTIES, census_county)
	case US_COUNTY_SUBDIVISIONS:
		return p.extractCountySubdivisions(ctx, bbox)
	case US_PLACES:
		return p.extractLayer(ctx, bbox, TIGERWEB_LAYER_INCORPORATED_PLACES, census_place)
	case US_ZCTAS:
		return p.extractLayer(ctx, bbox, TIGERWEB_LAYER_ZCTAS, census_zcta)
	case US_CENSUS_TRACTS:
		return p.extractLayer(ctx, bbox, TIGERWEB_LAYER_CENSUS_TRACTS, census_tract)
	case US_CONGRESSIONAL_DISTRICT:
		return p.extractLayer(ctx, bbox, TIGERWEB_LAYER_CONGRESSIONAL_DISTRICT, census_congressional)
	default:
		return nil, fmt.Errorf("%w '%s' for US", catalog.ErrUnknownDataset, dataset_id)
	}
}

func (p *USProvider) layer(id int) *ArcGISLayer {

	return &ArcGISLayer{
		URL:      fmt.Sprintf("%s/%d", p.tigerweb, id),
		Format:   ARCGIS_FORMAT_JSON,
		PageSize: p.page_size,
	}
}

func (p *USProvider) extractLayer(ctx context.Context, bbox orb.Bound, layer_id int, geo *CensusGeography) (*Extraction, error) {

	features, err := p.layer(layer_id).Query(ctx, bbox, p.arcgis_opts)

	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = features

	pop := p.population(ctx, geo, features)

	ex := &Extraction{
		Regions:    fc,
		Population: pop,
	}

	return ex, nil
}

// extractCountySubdivisions queries both the county subdivisions and the incorporated places
// layers, keeping subdivisions for states which use minor civil divisions and places for
// states in CITIES_AS_SUBDIVISIONS_STATES.
func (p *USProvider) extractCountySubdivisions(ctx context.Context, bbox orb.Bound) (*Extraction, error) {

	cousubs, err := p.layer(TIGERWEB_LAYER_COUNTY_SUBDIVISIONS).Query(ctx, bbox, p.arcgis_opts)

	if err != nil {
		return nil, fmt.Errorf("Failed to query county subdivisions, %w", err)
	}

	places, err := p.layer(TIGERWEB_LAYER_INCORPORATED_PLACES).Query(ctx, bbox, p.arcgis_opts)

	if err != nil {
		return nil, fmt.Errorf("Failed to query places, %w", err)
	}

	kept_cousubs, kept_places := FilterCountySubdivisions(cousubs, places)

	fc := geojson.NewFeatureCollection()
	fc.Features = append(kept_cousubs, kept_places...)

	pop := make(boundaries.PopulationIndex)
	pop.Merge(p.population(ctx, census_cousub, kept_cousubs))
	pop.Merge(p.population(ctx, census_place, kept_places))

	ex := &Extraction{
		Regions:    fc,
		Population: pop,
	}

	return ex, nil
}

// FilterCountySubdivisions returns the subdivision features for states not in
// CITIES_AS_SUBDIVISIONS_STATES (excluding undefined and null-coded subdivisions) and the
// place features for states in it. Features whose GEOID has already been seen are dropped.
func FilterCountySubdivisions(cousubs []*geojson.Feature, places []*geojson.Feature) ([]*geojson.Feature, []*geojson.Feature) {

	seen := make(map[string]bool)

	unique := func(f *geojson.Feature) bool {

		id, ok := boundaries.StringProperty(f.Properties, "GEOID")

		if !ok {
			return true
		}

		if seen[id] {
			return false
		}

		seen[id] = true
		return true
	}

	kept_cousubs := make([]*geojson.Feature, 0)
	kept_places := make([]*geojson.Feature, 0)

	for _, f := range cousubs {

		state, _ := boundaries.StringProperty(f.Properties, "STATE")

		if slices.Contains(CITIES_AS_SUBDIVISIONS_STATES, state) {
			continue
		}

		lsadc, _ := boundaries.StringProperty(f.Properties, "LSADC")
		cousub, _ := boundaries.StringProperty(f.Properties, "COUSUB")

		if lsadc == LSADC_NOT_DEFINED || cousub == COUSUB_NULL_CODE {
			continue
		}

		if unique(f) {
			kept_cousubs = append(kept_cousubs, f)
		}
	}

	for _, f := range places {

		state, _ := boundaries.StringProperty(f.Properties, "STATE")

		if !slices.Contains(CITIES_AS_SUBDIVISIONS_STATES, state) {
			continue
		}

		if unique(f) {
			kept_places = append(kept_places, f)
		}
	}

	return kept_cousubs, kept_places
}

// population returns nil, logging a warning, if the Census API can not be queried. A
// missing population count is not a reason to fail a dataset.
func (p *USProvider) population(ctx context.Context, geo *CensusGeography, features []*geojson.Feature) boundaries.PopulationIndex {

	idx, err := p.census.Population(ctx, geo, features, "GEOID", p.census_opts)

	if err != nil {
		slog.Warn("Failed to fetch population", "geography", geo.For, "error", err)
		return nil
	}

	return idx
}
