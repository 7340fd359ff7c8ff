// Package provider implements the per-country adapters which translate a bounding box and
// a dataset id into provider-specific queries and normalize the results into GeoJSON
// features with provider-native properties.
//
// Providers are registered by (lower-cased) country code and instantiated from a URI:
//
//	p, err := provider.NewProvider(ctx, "us://?census-api-key=KEY")
//	ex, err := p.Extract(ctx, "counties", bbox)
package provider

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aaronland/go-roster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
)

// Extraction is the result of querying a provider for a single dataset.
type Extraction struct {
	Regions *geojson.FeatureCollection
	// Population is nil when the provider has no central population source for the dataset.
	Population boundaries.PopulationIndex
}

type Provider interface {
	// Country returns the upper-cased ISO 3166-1 code this provider serves.
	Country() string
	// Datasets returns the dataset ids this provider can extract.
	Datasets() []string
	// Extract fetches the regions for dataset_id intersecting bbox.
	Extract(context.Context, string, orb.Bound) (*Extraction, error)
}

type ProviderInitializationFunc func(ctx context.Context, uri string) (Provider, error)

var provider_roster roster.Roster

func RegisterProvider(ctx context.Context, scheme string, init_func ProviderInitializationFunc) error {

	err := ensureProviderRoster()

	if err != nil {
		return err
	}

	return provider_roster.Register(ctx, scheme, init_func)
}

func ensureProviderRoster() error {

	if provider_roster == nil {

		r, err := roster.NewDefaultRoster()

		if err != nil {
			return err
		}

		provider_roster = r
	}

	return nil
}

func NewProvider(ctx context.Context, uri string) (Provider, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse provider URI, %w", err)
	}

	err = ensureProviderRoster()

	if err != nil {
		return nil, err
	}

	scheme := u.Scheme

	i, err := provider_roster.Driver(ctx, scheme)

	if err != nil {
		return nil, fmt.Errorf("No provider registered for '%s', %w", scheme, err)
	}

	init_func := i.(ProviderInitializationFunc)
	return init_func(ctx, uri)
}

// Schemes returns the list of registered provider schemes.
func Schemes() []string {

	ctx := context.Background()
	schemes := []string{}

	err := ensureProviderRoster()

	if err != nil {
		return schemes
	}

	for _, dr := range provider_roster.Drivers(ctx) {
		scheme := fmt.Sprintf("%s://", strings.ToLower(dr))
		schemes = append(schemes, scheme)
	}

	sort.Strings(schemes)
	return schemes
}

// URI returns the default provider URI for country with the supplied query parameters.
func URI(country string, params url.Values) string {

	uri := fmt.Sprintf("%s://", strings.ToLower(country))

	if len(params) > 0 {
		uri = fmt.Sprintf("%s?%s", uri, params.Encode())
	}

	return uri
}
