package provider

import (
	"net/url"
	"testing"
)

func TestParseCensusResponse(t *testing.T) {

	body := `[["P1_001N","state","county"],["873965","06","075"],["764442","06","081"],["x","06","001"]]`

	idx, err := ParseCensusResponse([]byte(body), "P1_001N", []string{"state", "county"})

	if err != nil {
		t.Fatalf("Failed to parse census response, %v", err)
	}

	if len(idx) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(idx))
	}

	if idx["06075"] != 873965 || idx["06081"] != 764442 {
		t.Fatalf("Unexpected index %v", idx)
	}

	_, err = ParseCensusResponse([]byte(body), "P1_001N", []string{"state", "tract"})

	if err == nil {
		t.Fatalf("Expected missing column to fail")
	}
}

func TestCensusQueryURL(t *testing.T) {

	q := &CensusQuery{
		Endpoint: "https://api.example.com/data/2020/dec/pl",
		APIKey:   "s33kret",
	}

	query_url, err := q.QueryURL(census_tract, nil, []string{"state:06", "county:*"})

	if err != nil {
		t.Fatalf("Failed to derive query URL, %v", err)
	}

	u, err := url.Parse(query_url)

	if err != nil {
		t.Fatalf("Failed to parse query URL, %v", err)
	}

	v := u.Query()

	if v.Get("get") != "P1_001N" || v.Get("for") != "tract:*" || v.Get("key") != "s33kret" {
		t.Fatalf("Unexpected query %s", u.RawQuery)
	}

	in := v["in"]

	if len(in) != 2 || in[0] != "state:06" || in[1] != "county:*" {
		t.Fatalf("Unexpected in clauses %v", in)
	}

	q.APIKey = ""

	query_url, err = q.QueryURL(census_zcta, []string{"94102", "94103"}, nil)

	if err != nil {
		t.Fatalf("Failed to derive query URL, %v", err)
	}

	u, _ = url.Parse(query_url)
	v = u.Query()

	if v.Get("for") != "zip code tabulation area:94102,94103" || v.Has("key") || v.Has("in") {
		t.Fatalf("Unexpected query %s", u.RawQuery)
	}
}
