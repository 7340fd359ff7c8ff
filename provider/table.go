package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sfomuseum/go-csvdict"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
	"github.com/whosonfirst/go-reader/v2"
)

const DEFAULT_CODE_COLUMN string = "code"

const DEFAULT_POPULATION_COLUMN string = "population"

// PopulationTable is a bundled delimited file mapping region codes to population counts.
type PopulationTable struct {
	Reader           reader.Reader
	Path             string
	CodeColumn       string
	PopulationColumn string
}

func (t *PopulationTable) Load(ctx context.Context) (boundaries.PopulationIndex, error) {

	fh, err := t.Reader.Read(ctx, t.Path)

	if err != nil {
		return nil, fmt.Errorf("Failed to open population table %s, %w", t.Path, err)
	}

	defer fh.Close()

	var r io.Reader = fh

	if strings.HasSuffix(t.Path, ".gz") {

		body, err := readMaybeCompressed(fh, t.Path)

		if err != nil {
			return nil, err
		}

		r = bytes.NewReader(body)
	}

	return UnmarshalPopulationTable(r, t.CodeColumn, t.PopulationColumn)
}

// UnmarshalPopulationTable reads a CSV document with (at least) a code column and a
// population column. Rows with an empty code or an unparseable population are skipped.
func UnmarshalPopulationTable(r io.Reader, code_col string, pop_col string) (boundaries.PopulationIndex, error) {

	if code_col == "" {
		code_col = DEFAULT_CODE_COLUMN
	}

	if pop_col == "" {
		pop_col = DEFAULT_POPULATION_COLUMN
	}

	csv_r, err := csvdict.NewReader(r)

	if err != nil {
		return nil, fmt.Errorf("Failed to create CSV reader, %w", err)
	}

	idx := make(boundaries.PopulationIndex)
	skipped := 0

	for {
		row, err := csv_r.Read()

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		code, ok := row[code_col]

		if !ok {
			return nil, fmt.Errorf("Population table is missing '%s' column", code_col)
		}

		str_pop, ok := row[pop_col]

		if !ok {
			return nil, fmt.Errorf("Population table is missing '%s' column", pop_col)
		}

		code = strings.TrimSpace(code)

		if code == "" {
			skipped += 1
			continue
		}

		pop, ok := boundaries.ParsePopulation(str_pop)

		if !ok {
			skipped += 1
			continue
		}

		idx[code] = pop
	}

	if skipped > 0 {
		slog.Debug("Skipped population table rows", "count", skipped)
	}

	return idx, nil
}
