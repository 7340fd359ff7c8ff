package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jtacoma/uritemplates"
	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
	"github.com/sfomuseum/go-sfomuseum-boundaries/fetch"
	"github.com/tidwall/gjson"
)

const CENSUS_ENDPOINT string = "https://api.census.gov/data/2020/dec/pl"

const CENSUS_POPULATION_VARIABLE string = "P1_001N"

const CENSUS_QUERY_TEMPLATE string = "{+endpoint}{?get,for,key}{&in*}"

// The maximum number of explicit codes listed in a single "for" clause.
const CENSUS_MAX_CODES int = 50

// CensusQuery issues statistical-table queries against a US Census Bureau data API.
type CensusQuery struct {
	Endpoint string
	Variable string
	APIKey   string
}

// CensusGeography describes how a Census API geography maps on to feature identities.
type CensusGeography struct {
	// For is the Census API geography name, for example "county subdivision".
	For string
	// InCounty adds "in=county:*" to per-state queries.
	InCounty bool
	// Columns are the response columns which, concatenated, yield a feature's GEOID.
	Columns []string
}

// QueryURL returns the query URL for geography restricted by in. If codes is empty every
// unit ("*") is requested.
func (q *CensusQuery) QueryURL(geo *CensusGeography, codes []string, in []string) (string, error) {

	t, err := uritemplates.Parse(CENSUS_QUERY_TEMPLATE)

	if err != nil {
		return "", fmt.Errorf("Failed to parse census template, %w", err)
	}

	endpoint := q.Endpoint

	if endpoint == "" {
		endpoint = CENSUS_ENDPOINT
	}

	variable := q.Variable

	if variable == "" {
		variable = CENSUS_POPULATION_VARIABLE
	}

	str_codes := "*"

	if len(codes) > 0 {
		str_codes = strings.Join(codes, ",")
	}

	vars := map[string]interface{}{
		"endpoint": endpoint,
		"get":      variable,
		"for":      fmt.Sprintf("%s:%s", geo.For, str_codes),
	}

	if q.APIKey != "" {
		vars["key"] = q.APIKey
	}

	if len(in) > 0 {

		in_vars := make([]interface{}, len(in))

		for i, v := range in {
			in_vars[i] = v
		}

		vars["in"] = in_vars
	}

	return t.Expand(vars)
}

// Population fetches population counts for geography, issuing one query per state code
// observed among features (the "STATE" property) and merging the results. Geographies
// which are not nested in states (ZCTAs) are queried by the codes observed in id_property.
func (q *CensusQuery) Population(ctx context.Context, geo *CensusGeography, features []*geojson.Feature, id_property string, opts *fetch.Options) (boundaries.PopulationIndex, error) {

	idx := make(boundaries.PopulationIndex)

	if len(features) == 0 {
		return idx, nil
	}

	if !geo.nestedInState() {

		codes := observedValues(features, id_property)

		for i := 0; i < len(codes); i += CENSUS_MAX_CODES {

			j := min(i+CENSUS_MAX_CODES, len(codes))

			query_url, err := q.QueryURL(geo, codes[i:j], nil)

			if err != nil {
				return nil, err
			}

			rsp_idx, err := q.fetchIndex(ctx, query_url, geo, opts)

			if err != nil {
				return nil, err
			}

			idx.Merge(rsp_idx)
		}

		return idx, nil
	}

	states := observedValues(features, "STATE")

	for _, state := range states {

		in := []string{
			fmt.Sprintf("state:%s", state),
		}

		if geo.InCounty {
			in = append(in, "county:*")
		}

		query_url, err := q.QueryURL(geo, nil, in)

		if err != nil {
			return nil, err
		}

		rsp_idx, err := q.fetchIndex(ctx, query_url, geo, opts)

		if err != nil {
			return nil, fmt.Errorf("Failed to fetch population for state %s, %w", state, err)
		}

		slog.Debug("Fetched population", "geography", geo.For, "state", state, "count", len(rsp_idx))
		idx.Merge(rsp_idx)
	}

	return idx, nil
}

func (q *CensusQuery) fetchIndex(ctx context.Context, query_url string, geo *CensusGeography, opts *fetch.Options) (boundaries.PopulationIndex, error) {

	req := &fetch.Request{
		URL: query_url,
	}

	body, err := fetch.FetchJSON(ctx, req, opts)

	if err != nil {
		return nil, err
	}

	variable := q.Variable

	if variable == "" {
		variable = CENSUS_POPULATION_VARIABLE
	}

	return ParseCensusResponse(body, variable, geo.Columns)
}

// ParseCensusResponse parses a Census API row matrix (a header row followed by data rows)
// into a PopulationIndex keyed by the concatenation of columns.
func ParseCensusResponse(body []byte, variable string, columns []string) (boundaries.PopulationIndex, error) {

	rows := gjson.ParseBytes(body).Array()

	if len(rows) == 0 {
		return nil, &ServiceError{Provider: "census", Message: "Empty response"}
	}

	header := rows[0].Array()
	offsets := make(map[string]int)

	for i, h := range header {
		offsets[h.String()] = i
	}

	var_idx, ok := offsets[variable]

	if !ok {
		return nil, &ServiceError{Provider: "census", Message: fmt.Sprintf("Response is missing %s column", variable)}
	}

	col_idx := make([]int, len(columns))

	for i, c := range columns {

		j, ok := offsets[c]

		if !ok {
			return nil, &ServiceError{Provider: "census", Message: fmt.Sprintf("Response is missing %s column", c)}
		}

		col_idx[i] = j
	}

	idx := make(boundaries.PopulationIndex)

	for _, row := range rows[1:] {

		values := row.Array()

		if len(values) != len(header) {
			continue
		}

		pop, ok := boundaries.ParsePopulation(values[var_idx].String())

		if !ok {
			continue
		}

		var code strings.Builder

		for _, j := range col_idx {
			code.WriteString(values[j].String())
		}

		idx[code.String()] = pop
	}

	return idx, nil
}

func (geo *CensusGeography) nestedInState() bool {
	return len(geo.Columns) > 1 && geo.Columns[0] == "state"
}

// observedValues returns the sorted, distinct string values of k among features.
func observedValues(features []*geojson.Feature, k string) []string {

	seen := make(map[string]bool)

	for _, f := range features {

		v, ok := boundaries.StringProperty(f.Properties, k)

		if ok {
			seen[v] = true
		}
	}

	values := make([]string, 0, len(seen))

	for v := range seen {
		values = append(values, v)
	}

	sort.Strings(values)
	return values
}
