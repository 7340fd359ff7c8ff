// `catalog` writes the contents of a dataset index (data_index.json) as CSV to STDOUT, one
// row per city and dataset.
package main

import (
	"encoding/csv"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sfomuseum/go-sfomuseum-boundaries/index"
)

func main() {

	var out string
	var header bool

	flag.StringVar(&out, "out", "data", "The directory containing the dataset index.")
	flag.BoolVar(&header, "header", true, "Write a header row.")

	flag.Parse()

	m, err := index.Load(filepath.Join(out, index.FILENAME))

	if err != nil {
		log.Fatalf("Failed to load index, %v", err)
	}

	csv_wr := csv.NewWriter(os.Stdout)

	if header {

		err := csv_wr.Write([]string{"city", "dataset", "display_name", "unit_plural", "source", "size"})

		if err != nil {
			log.Fatalf("Failed to write header, %v", err)
		}
	}

	for _, city := range m.Cities() {

		for _, e := range m[city] {

			row := []string{
				city,
				e.DatasetID,
				e.DisplayName,
				e.UnitPlural,
				e.Source,
				strconv.FormatInt(e.Size, 10),
			}

			err := csv_wr.Write(row)

			if err != nil {
				log.Fatalf("Failed to write row for %s %s, %v", city, e.DatasetID, err)
			}
		}
	}

	csv_wr.Flush()

	err = csv_wr.Error()

	if err != nil {
		log.Fatalf("Failed to flush CSV writer, %v", err)
	}
}
