// `extract-boundaries` fetches the administrative boundaries for one or more datasets of a
// country, clips them to a bounding box and writes them, along with an updated dataset
// index, to an output directory.
package main

/*

$> go run cmd/extract-boundaries/main.go \
	-city SFO \
	-country US \
	-dataset counties \
	-dataset county_subdivisions \
	-bbox '-122.52,37.70,-122.35,37.83' \
	-compress \
	-out /usr/local/data/boundaries

2026/10/14 10:21:07 INFO Wrote dataset city=SFO country=US dataset=counties path=/usr/local/data/boundaries/SFO/counties.geojson.gz regions=1 size="14 kB"
2026/10/14 10:21:09 INFO Wrote dataset city=SFO country=US dataset=county_subdivisions path=/usr/local/data/boundaries/SFO/county_subdivisions.geojson.gz regions=1 size="14 kB"
2026/10/14 10:21:09 INFO Extraction complete city=SFO succeeded=2 failed=0 skipped=0

*/

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sfomuseum/go-flags/multi"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
	"github.com/sfomuseum/go-sfomuseum-boundaries/extract"
)

func main() {

	var city string
	var country string
	var datasets multi.MultiString
	var str_bbox string
	var out string
	var compress bool
	var simplify float64
	var census_api_key string
	var data_uri string
	var provider_uri string
	var verbose bool

	flag.StringVar(&city, "city", "", "The code of the city to extract boundaries for, for example SFO.")
	flag.StringVar(&country, "country", "", "The ISO 3166-1 code of the country the city is in.")
	flag.Var(&datasets, "dataset", "One or more dataset ids to extract. Comma-separated values are also accepted.")
	flag.StringVar(&str_bbox, "bbox", "", "The bounding box to clip regions to, as 'west,south,east,north'.")
	flag.StringVar(&out, "out", "data", "The directory to write datasets and the dataset index to.")
	flag.BoolVar(&compress, "compress", false, "Gzip-compress dataset files.")
	flag.Float64Var(&simplify, "simplify", 0, "An optional Douglas-Peucker simplification tolerance, in degrees.")
	flag.StringVar(&census_api_key, "census-api-key", "", "A US Census Bureau API key. If empty the CENSUS_API_KEY environment variable is used.")
	flag.StringVar(&data_uri, "data", "", "A registered whosonfirst/go-reader.Reader URI for bundled snapshots and population tables. If empty the BOUNDARIES_DATA environment variable is used.")
	flag.StringVar(&provider_uri, "provider-uri", "", "An optional provider URI to use instead of the default for -country.")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose (debug level) logging.")

	flag.Parse()

	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}

	err := godotenv.Load()

	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file, %v", err)
	}

	if census_api_key == "" {
		census_api_key = os.Getenv("CENSUS_API_KEY")
	}

	if data_uri == "" {
		data_uri = os.Getenv("BOUNDARIES_DATA")
	}

	bbox, err := boundaries.ParseBoundingBox(str_bbox)

	if err != nil {
		log.Fatalf("Invalid -bbox, %v", err)
	}

	dataset_ids := make([]string, 0)

	for _, v := range datasets {

		for _, id := range strings.Split(v, ",") {

			id = strings.TrimSpace(id)

			if id != "" {
				dataset_ids = append(dataset_ids, id)
			}
		}
	}

	req := &extract.Request{
		CityCode:    city,
		CountryCode: country,
		Datasets:    dataset_ids,
		BBox:        bbox,
		Compress:    compress,
		Out:         out,
		Simplify:    simplify,
	}

	opts := extract.DefaultOptions()
	opts.ProviderURI = provider_uri
	opts.DataURI = data_uri
	opts.CensusAPIKey = census_api_key

	ctx := context.Background()

	summary, err := extract.Run(ctx, req, opts)

	if err != nil {
		log.Fatalf("Failed to extract boundaries, %v", err)
	}

	if len(summary.Failed) > 0 {
		slog.Warn("Some datasets failed", "datasets", strings.Join(summary.Failed, ","), "error", summary.Err)
	}
}
