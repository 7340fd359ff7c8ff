package output

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func testCollection() *geojson.FeatureCollection {

	fc := geojson.NewFeatureCollection()

	for i, name := range []string{"Mission", "Sunset"} {

		x := float64(i)

		f := geojson.NewFeature(orb.Polygon{{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0}}})
		f.Properties["ID"] = name
		f.Properties["NAME"] = name
		f.Properties["POPULATION"] = int64(1000 * (i + 1))

		fc.Append(f)
	}

	return fc
}

func TestWriteRegionsRoundTrip(t *testing.T) {

	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "SFO")

	fc := testCollection()

	results := make(map[bool]*geojson.FeatureCollection)

	for _, compress := range []bool{false, true} {

		path, size, err := WriteRegions(ctx, filepath.Join(root, "neighbourhoods.geojson"), fc, compress)

		if err != nil {
			t.Fatalf("Failed to write regions (compress: %t), %v", compress, err)
		}

		if compress != strings.HasSuffix(path, ".gz") {
			t.Fatalf("Unexpected path %s (compress: %t)", path, compress)
		}

		info, err := os.Stat(path)

		if err != nil {
			t.Fatalf("Failed to stat %s, %v", path, err)
		}

		if info.Size() != size {
			t.Fatalf("Reported size %d does not match file size %d", size, info.Size())
		}

		read_fc, err := ReadRegions(ctx, path)

		if err != nil {
			t.Fatalf("Failed to read %s, %v", path, err)
		}

		results[compress] = read_fc
	}

	plain := results[false]
	compressed := results[true]

	if len(plain.Features) != len(fc.Features) || len(compressed.Features) != len(plain.Features) {
		t.Fatalf("Feature counts differ, %d and %d", len(plain.Features), len(compressed.Features))
	}

	for i, f := range plain.Features {

		plain_keys := slices.Sorted(maps.Keys(f.Properties))
		compressed_keys := slices.Sorted(maps.Keys(compressed.Features[i].Properties))

		if !slices.Equal(plain_keys, compressed_keys) {
			t.Fatalf("Property keys differ, %v and %v", plain_keys, compressed_keys)
		}

		if f.Properties.MustString("NAME") != compressed.Features[i].Properties.MustString("NAME") {
			t.Fatalf("Properties differ for feature %d", i)
		}
	}
}

func TestWriteRegionsReplaces(t *testing.T) {

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "counties.geojson")

	fc := testCollection()

	_, _, err := WriteRegions(ctx, path, fc, false)

	if err != nil {
		t.Fatalf("Failed to write regions, %v", err)
	}

	fc.Features = fc.Features[:1]

	_, _, err = WriteRegions(ctx, path, fc, false)

	if err != nil {
		t.Fatalf("Failed to rewrite regions, %v", err)
	}

	read_fc, err := ReadRegions(ctx, path)

	if err != nil {
		t.Fatalf("Failed to read regions, %v", err)
	}

	if len(read_fc.Features) != 1 {
		t.Fatalf("Expected 1 feature, got %d", len(read_fc.Features))
	}

	body, err := os.ReadFile(path)

	if err != nil {
		t.Fatalf("Failed to read %s, %v", path, err)
	}

	if !strings.Contains(string(body), "\n  \"type\": \"FeatureCollection\"") && !strings.Contains(string(body), "\n  \"features\": [") {
		t.Fatalf("Expected pretty-printed output")
	}
}

func TestFinalPath(t *testing.T) {

	tests := map[string]bool{
		"out/SFO/counties.geojson":    false,
		"out/SFO/counties.geojson.gz": true,
	}

	for expected, compress := range tests {

		path := FinalPath("out/SFO/counties.geojson", compress)

		if path != expected {
			t.Fatalf("Expected %s, got %s", expected, path)
		}
	}
}
