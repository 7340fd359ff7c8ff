package provider

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"testing"

	"github.com/sfomuseum/go-sfomuseum-boundaries/catalog"
)

func TestSchemes(t *testing.T) {

	schemes := Schemes()

	countries, err := catalog.Countries()

	if err != nil {
		t.Fatalf("Failed to list countries, %v", err)
	}

	for _, country := range countries {

		scheme := strings.ToLower(country) + "://"

		if !slices.Contains(schemes, scheme) {
			t.Fatalf("Missing provider for %s, registered %v", country, schemes)
		}
	}
}

func TestProviderDatasets(t *testing.T) {

	ctx := context.Background()

	countries, err := catalog.Countries()

	if err != nil {
		t.Fatalf("Failed to list countries, %v", err)
	}

	for _, country := range countries {

		params := url.Values{}

		if country == "CA" {
			params.Set("data", "fs://"+t.TempDir())
		}

		p, err := NewProvider(ctx, URI(country, params))

		if err != nil {
			t.Fatalf("Failed to create provider for %s, %v", country, err)
		}

		if p.Country() != country {
			t.Fatalf("Unexpected country for %s provider, %s", country, p.Country())
		}

		ids, err := catalog.Datasets(country)

		if err != nil {
			t.Fatalf("Failed to list datasets for %s, %v", country, err)
		}

		if !slices.Equal(ids, p.Datasets()) {
			t.Fatalf("Provider datasets for %s (%v) do not match catalog (%v)", country, p.Datasets(), ids)
		}
	}
}

func TestURI(t *testing.T) {

	if URI("DE", nil) != "de://" {
		t.Fatalf("Unexpected URI %s", URI("DE", nil))
	}

	params := url.Values{}
	params.Set("rate", "2")

	if URI("jp", params) != "jp://?rate=2" {
		t.Fatalf("Unexpected URI %s", URI("jp", params))
	}

	_, err := NewProvider(context.Background(), "zz://")

	if err == nil {
		t.Fatalf("Expected unregistered country to fail")
	}
}
