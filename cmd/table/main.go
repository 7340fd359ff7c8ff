// `table` writes the dataset catalog for one or more countries as JSON to STDOUT.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/sfomuseum/go-flags/multi"
	"github.com/sfomuseum/go-sfomuseum-boundaries/catalog"
)

func main() {

	var countries multi.MultiString
	flag.Var(&countries, "country", "Zero or more country codes to list datasets for. If empty every country is listed.")

	flag.Parse()

	if len(countries) == 0 {

		codes, err := catalog.Countries()

		if err != nil {
			log.Fatalf("Failed to load catalog, %v", err)
		}

		countries = codes
	}

	table := make(map[string][]*catalog.Descriptor)

	for _, country := range countries {

		country = strings.ToUpper(country)

		ids, err := catalog.Datasets(country)

		if err != nil {
			log.Fatalf("Failed to list datasets for %s, %v", country, err)
		}

		descriptors := make([]*catalog.Descriptor, len(ids))

		for i, id := range ids {

			desc, err := catalog.Lookup(country, id)

			if err != nil {
				log.Fatalf("Failed to lookup %s %s, %v", country, id, err)
			}

			descriptors[i] = desc
		}

		table[country] = descriptors
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	err := enc.Encode(table)

	if err != nil {
		log.Fatalf("Failed to encode catalog, %v", err)
	}
}
