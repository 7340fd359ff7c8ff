// Package output persists enriched region collections as (optionally compressed) GeoJSON.
package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/pretty"
	"github.com/whosonfirst/go-reader/v2"
	"github.com/whosonfirst/go-writer/v3"
)

const GZIP_SUFFIX string = ".gz"

// FinalPath returns the path regions are written to: path, or path.gz when compressing.
func FinalPath(path string, compress bool) string {

	if compress && !strings.HasSuffix(path, GZIP_SUFFIX) {
		return path + GZIP_SUFFIX
	}

	return path
}

// WriteRegions writes fc as pretty-printed GeoJSON to path (or path.gz if compress is
// true) replacing any existing file atomically. It returns the final path and the number
// of bytes written.
func WriteRegions(ctx context.Context, path string, fc *geojson.FeatureCollection, compress bool) (string, int64, error) {

	final_path := FinalPath(path, compress)

	body, err := Marshal(fc, compress)

	if err != nil {
		return "", 0, err
	}

	root, err := filepath.Abs(filepath.Dir(final_path))

	if err != nil {
		return "", 0, fmt.Errorf("Failed to derive absolute path for %s, %w", final_path, err)
	}

	err = os.MkdirAll(root, 0755)

	if err != nil {
		return "", 0, fmt.Errorf("Failed to create %s, %w", root, err)
	}

	wr_uri := fmt.Sprintf("fs://%s", root)

	wr, err := writer.NewWriter(ctx, wr_uri)

	if err != nil {
		return "", 0, fmt.Errorf("Failed to create writer for %s, %w", root, err)
	}

	_, err = wr.Write(ctx, filepath.Base(final_path), bytes.NewReader(body))

	if err != nil {
		return "", 0, fmt.Errorf("Failed to write %s, %w", final_path, err)
	}

	err = wr.Close(ctx)

	if err != nil {
		return "", 0, fmt.Errorf("Failed to close writer, %w", err)
	}

	return final_path, int64(len(body)), nil
}

// Marshal encodes fc as pretty-printed GeoJSON, gzip-compressed if compress is true.
func Marshal(fc *geojson.FeatureCollection, compress bool) ([]byte, error) {

	enc, err := fc.MarshalJSON()

	if err != nil {
		return nil, fmt.Errorf("Failed to marshal feature collection, %w", err)
	}

	enc = pretty.Pretty(enc)

	if !compress {
		return enc, nil
	}

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)

	_, err = gz.Write(enc)

	if err != nil {
		return nil, fmt.Errorf("Failed to compress feature collection, %w", err)
	}

	err = gz.Close()

	if err != nil {
		return nil, fmt.Errorf("Failed to close compressor, %w", err)
	}

	return buf.Bytes(), nil
}

// ReadRegions reads a feature collection written by WriteRegions, decompressing it if its
// path ends in ".gz".
func ReadRegions(ctx context.Context, path string) (*geojson.FeatureCollection, error) {

	root, err := filepath.Abs(filepath.Dir(path))

	if err != nil {
		return nil, fmt.Errorf("Failed to derive absolute path for %s, %w", path, err)
	}

	rd_uri := fmt.Sprintf("fs://%s", root)

	r, err := reader.NewReader(ctx, rd_uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to create reader for %s, %w", path, err)
	}

	fh, err := r.Read(ctx, filepath.Base(path))

	if err != nil {
		return nil, fmt.Errorf("Failed to open %s, %w", path, err)
	}

	defer fh.Close()

	var body_r io.Reader = fh

	if strings.HasSuffix(path, GZIP_SUFFIX) {

		gz, err := gzip.NewReader(fh)

		if err != nil {
			return nil, fmt.Errorf("Failed to create gzip reader for %s, %w", path, err)
		}

		defer gz.Close()
		body_r = gz
	}

	body, err := io.ReadAll(body_r)

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", path, err)
	}

	return geojson.UnmarshalFeatureCollection(body)
}
