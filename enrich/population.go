package enrich

import (
	"log/slog"

	"github.com/paulmach/orb/geojson"
	"github.com/sfomuseum/go-sfomuseum-boundaries"
)

// AttachPopulation returns copies of features with the POPULATION property assigned from
// idx, keyed by the value of id_property. Features which already have a population are
// copied unchanged. The input features are not modified.
func AttachPopulation(features []*geojson.Feature, idx boundaries.PopulationIndex, id_property string) []*geojson.Feature {

	attached := make([]*geojson.Feature, len(features))
	missing := 0

	for i, f := range features {

		new_f := *f
		new_f.Properties = f.Properties.Clone()

		if new_f.Properties == nil {
			new_f.Properties = geojson.Properties{}
		}

		attached[i] = &new_f

		_, exists := new_f.Properties[boundaries.PROPERTY_POPULATION]

		if exists {
			continue
		}

		id, ok := boundaries.StringProperty(new_f.Properties, id_property)

		if !ok {
			missing += 1
			continue
		}

		pop, ok := idx[id]

		if !ok {
			slog.Debug("No population for region", "id", id)
			missing += 1
			continue
		}

		new_f.Properties[boundaries.PROPERTY_POPULATION] = pop
	}

	if missing > 0 {
		slog.Info("Regions without population", "count", missing, "total", len(features))
	}

	return attached
}
