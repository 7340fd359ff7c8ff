// Package extract runs a boundary extraction request: for each requested dataset it queries
// the country's provider, enriches the regions, writes them to disk and records them in the
// dataset index.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
	"github.com/sfomuseum/go-sfomuseum-boundaries/catalog"
	"github.com/sfomuseum/go-sfomuseum-boundaries/enrich"
	"github.com/sfomuseum/go-sfomuseum-boundaries/index"
	"github.com/sfomuseum/go-sfomuseum-boundaries/output"
	"github.com/sfomuseum/go-sfomuseum-boundaries/provider"
)

var ErrInvalidRequest = errors.New("Invalid request")

type Request struct {
	CityCode    string
	CountryCode string
	Datasets    []string
	BBox        *boundaries.BoundingBox
	Compress    bool
	// Out is the root directory for dataset files and the dataset index.
	Out string
	// Simplify is the simplification tolerance, in degrees. Zero disables simplification.
	Simplify float64
}

type Options struct {
	// ProviderURI, if set, is used instead of the default provider URI for the country.
	ProviderURI string
	// DataURI is a go-reader URI for bundled snapshots and population tables.
	DataURI      string
	CensusAPIKey string
	// Padding, in degrees, is added to the bounding box when querying providers.
	Padding float64
}

func DefaultOptions() *Options {

	opts := &Options{
		Padding: boundaries.DefaultPadding,
	}

	return opts
}

type Summary struct {
	Succeeded []string
	Failed    []string
	// Skipped are the datasets for which no regions intersect the bounding box.
	Skipped []string
	// Err collects the errors for each of Failed.
	Err error
}

// Validate normalizes req and checks it against the catalog. It does not perform any
// network requests.
func (req *Request) Validate() error {

	req.CityCode = strings.ToUpper(strings.TrimSpace(req.CityCode))
	req.CountryCode = strings.ToUpper(strings.TrimSpace(req.CountryCode))

	if req.CityCode == "" {
		return fmt.Errorf("%w, missing city code", ErrInvalidRequest)
	}

	if req.Out == "" {
		return fmt.Errorf("%w, missing output directory", ErrInvalidRequest)
	}

	if req.BBox == nil {
		return fmt.Errorf("%w, missing bounding box", ErrInvalidRequest)
	}

	err := req.BBox.Validate()

	if err != nil {
		return fmt.Errorf("%w, %w", ErrInvalidRequest, err)
	}

	_, err = catalog.Datasets(req.CountryCode)

	if err != nil {
		return fmt.Errorf("%w, %w", ErrInvalidRequest, err)
	}

	if req.Simplify < 0 {
		return fmt.Errorf("%w, simplification tolerance must not be negative", ErrInvalidRequest)
	}

	datasets := make([]string, 0, len(req.Datasets))

	for _, id := range req.Datasets {

		id = strings.TrimSpace(id)

		if id == "" || slices.Contains(datasets, id) {
			continue
		}

		_, err := catalog.Lookup(req.CountryCode, id)

		if err != nil {
			return fmt.Errorf("%w, %w", ErrInvalidRequest, err)
		}

		datasets = append(datasets, id)
	}

	if len(datasets) == 0 {
		return fmt.Errorf("%w, no datasets requested", ErrInvalidRequest)
	}

	req.Datasets = datasets
	return nil
}

// ProviderURI returns the provider URI for country derived from opts.
func ProviderURI(country string, opts *Options) string {

	if opts.ProviderURI != "" {
		return opts.ProviderURI
	}

	params := url.Values{}

	if opts.DataURI != "" {
		params.Set("data", opts.DataURI)
	}

	if opts.CensusAPIKey != "" && strings.EqualFold(country, "US") {
		params.Set("census-api-key", opts.CensusAPIKey)
	}

	return provider.URI(country, params)
}

// Run processes each of req's datasets in order. A failed dataset does not stop the
// remaining ones; Run only returns an error if the request is invalid, the provider can
// not be created or every dataset failed.
func Run(ctx context.Context, req *Request, opts *Options) (*Summary, error) {

	if opts == nil {
		opts = DefaultOptions()
	}

	err := req.Validate()

	if err != nil {
		return nil, err
	}

	p, err := provider.NewProvider(ctx, ProviderURI(req.CountryCode, opts))

	if err != nil {
		return nil, fmt.Errorf("Failed to create provider for %s, %w", req.CountryCode, err)
	}

	summary := &Summary{
		Succeeded: make([]string, 0),
		Failed:    make([]string, 0),
		Skipped:   make([]string, 0),
	}

	var result error

	for _, id := range req.Datasets {

		err := ctx.Err()

		if err != nil {
			return summary, err
		}

		logger := slog.Default().With("city", req.CityCode, "country", req.CountryCode, "dataset", id)

		count, err := runDataset(ctx, p, req, id, opts, logger)

		if err != nil {
			logger.Error("Failed to extract dataset", "error", err)
			summary.Failed = append(summary.Failed, id)
			result = multierror.Append(result, fmt.Errorf("%s, %w", id, err))
			continue
		}

		if count == 0 {
			logger.Warn("No regions intersect bounding box, nothing written")
			summary.Skipped = append(summary.Skipped, id)
			continue
		}

		summary.Succeeded = append(summary.Succeeded, id)
	}

	summary.Err = result

	slog.Info("Extraction complete", "city", req.CityCode, "succeeded", len(summary.Succeeded), "failed", len(summary.Failed), "skipped", len(summary.Skipped))

	if len(summary.Failed) > 0 && len(summary.Failed) == len(req.Datasets) {
		return summary, fmt.Errorf("All datasets failed, %w", result)
	}

	return summary, nil
}

// runDataset returns the number of regions written for dataset_id.
func runDataset(ctx context.Context, p provider.Provider, req *Request, dataset_id string, opts *Options, logger *slog.Logger) (int, error) {

	desc, err := catalog.Lookup(req.CountryCode, dataset_id)

	if err != nil {
		return 0, err
	}

	ex, err := p.Extract(ctx, dataset_id, req.BBox.Padded(opts.Padding))

	if err != nil {
		return 0, fmt.Errorf("Failed to extract regions, %w", err)
	}

	logger.Debug("Extracted regions", "count", len(ex.Regions.Features), "population", len(ex.Population))

	enrich_opts := enrich.DefaultOptions()
	enrich_opts.Simplify = req.Simplify

	fc, err := enrich.Enrich(ctx, ex.Regions, req.BBox.Bound(), desc, ex.Population, enrich_opts)

	if err != nil {
		return 0, fmt.Errorf("Failed to enrich regions, %w", err)
	}

	if len(fc.Features) == 0 {
		return 0, nil
	}

	path := filepath.Join(req.Out, req.CityCode, fmt.Sprintf("%s.geojson", dataset_id))

	final_path, size, err := output.WriteRegions(ctx, path, fc, req.Compress)

	if err != nil {
		return 0, err
	}

	index_path := filepath.Join(req.Out, index.FILENAME)

	err = index.Upsert(index_path, req.CityCode, index.NewEntry(desc, size), req.CountryCode)

	if err != nil {
		return 0, fmt.Errorf("Failed to update index, %w", err)
	}

	logger.Info("Wrote dataset", "path", final_path, "regions", len(fc.Features), "size", humanize.Bytes(uint64(size)))
	return len(fc.Features), nil
}
