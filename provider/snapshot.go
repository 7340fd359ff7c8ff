package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/whosonfirst/go-reader/v2"
)

// The suffixes tried, in order, when resolving a snapshot path.
var SNAPSHOT_SUFFIXES = []string{
	".geojson.gz",
	".geojson",
	".ndjson.gz",
	".ndjson",
}

// Snapshot is a pre-fetched geometry file, bundled with the data directory, used for
// datasets which are not reliably queryable live.
type Snapshot struct {
	Reader reader.Reader
	// Path is the path of the snapshot relative to the reader root, without a suffix.
	Path string
}

// Load returns the features in the snapshot whose bounds intersect bbox.
func (s *Snapshot) Load(ctx context.Context, bbox orb.Bound) ([]*geojson.Feature, error) {

	var fh io.ReadSeekCloser
	var path string

	for _, suffix := range SNAPSHOT_SUFFIXES {

		candidate := s.Path + suffix

		r, err := s.Reader.Read(ctx, candidate)

		if err != nil {
			slog.Debug("Snapshot candidate not found", "path", candidate, "error", err)
			continue
		}

		fh = r
		path = candidate
		break
	}

	if fh == nil {
		return nil, fmt.Errorf("Failed to locate snapshot for %s (tried %s)", s.Path, strings.Join(SNAPSHOT_SUFFIXES, ", "))
	}

	defer fh.Close()

	body, err := readMaybeCompressed(fh, path)

	if err != nil {
		return nil, fmt.Errorf("Failed to read snapshot %s, %w", path, err)
	}

	var features []*geojson.Feature

	if strings.Contains(path, ".ndjson") {
		features, err = parseNDJSON(body)
	} else {
		var fc *geojson.FeatureCollection
		fc, err = geojson.UnmarshalFeatureCollection(body)

		if fc != nil {
			features = fc.Features
		}
	}

	if err != nil {
		return nil, fmt.Errorf("Failed to parse snapshot %s, %w", path, err)
	}

	matches := make([]*geojson.Feature, 0)

	for _, f := range features {

		if f.Geometry == nil {
			continue
		}

		if !f.Geometry.Bound().Intersects(bbox) {
			continue
		}

		matches = append(matches, f)
	}

	slog.Debug("Loaded snapshot", "path", path, "features", len(features), "matches", len(matches))
	return matches, nil
}

func readMaybeCompressed(r io.Reader, path string) ([]byte, error) {

	if !strings.HasSuffix(path, ".gz") {
		return io.ReadAll(r)
	}

	gz, err := gzip.NewReader(r)

	if err != nil {
		return nil, fmt.Errorf("Failed to create gzip reader, %w", err)
	}

	defer gz.Close()

	return io.ReadAll(gz)
}

func parseNDJSON(body []byte) ([]*geojson.Feature, error) {

	features := make([]*geojson.Feature, 0)

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)

	ln := 0

	for scanner.Scan() {

		ln += 1
		line := bytes.TrimSpace(scanner.Bytes())

		if len(line) == 0 {
			continue
		}

		f, err := geojson.UnmarshalFeature(line)

		if err != nil {
			return nil, fmt.Errorf("Failed to parse feature at line %d, %w", ln, err)
		}

		features = append(features, f)
	}

	err := scanner.Err()

	if err != nil {
		return nil, err
	}

	return features, nil
}
