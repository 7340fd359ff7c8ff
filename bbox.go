package boundaries

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// DefaultPadding is the number of decimal degrees added to each side of a bounding box
// before it is handed to a provider, so that regions touching the box edges are returned
// in full. The un-padded box is still used for clipping.
const DefaultPadding float64 = 0.01

type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

func NewBoundingBox(west float64, south float64, east float64, north float64) (*BoundingBox, error) {

	b := &BoundingBox{
		West:  west,
		South: south,
		East:  east,
		North: north,
	}

	err := b.Validate()

	if err != nil {
		return nil, err
	}

	return b, nil
}

// ParseBoundingBox parses a "west,south,east,north" string.
func ParseBoundingBox(str_bbox string) (*BoundingBox, error) {

	parts := strings.Split(str_bbox, ",")

	if len(parts) != 4 {
		return nil, fmt.Errorf("Invalid bounding box '%s', expected west,south,east,north", str_bbox)
	}

	coords := make([]float64, 4)

	for i, str_c := range parts {

		c, err := strconv.ParseFloat(strings.TrimSpace(str_c), 64)

		if err != nil {
			return nil, fmt.Errorf("Invalid bounding box coordinate '%s', %w", str_c, err)
		}

		coords[i] = c
	}

	return NewBoundingBox(coords[0], coords[1], coords[2], coords[3])
}

func (b *BoundingBox) Validate() error {

	if !inRange(b.West, 180) || !inRange(b.East, 180) {
		return fmt.Errorf("Invalid bounding box, longitudes must be in (-180, 180]")
	}

	if !inRange(b.South, 90) || !inRange(b.North, 90) {
		return fmt.Errorf("Invalid bounding box, latitudes must be in (-90, 90]")
	}

	if b.West >= b.East {
		return fmt.Errorf("Invalid bounding box, west (%f) must be less than east (%f)", b.West, b.East)
	}

	if b.South >= b.North {
		return fmt.Errorf("Invalid bounding box, south (%f) must be less than north (%f)", b.South, b.North)
	}

	return nil
}

func (b *BoundingBox) Bound() orb.Bound {

	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Padded returns the bounds of b grown by d degrees on every side, clamped to valid
// longitude and latitude ranges.
func (b *BoundingBox) Padded(d float64) orb.Bound {

	bound := b.Bound().Pad(d)

	bound.Min[0] = max(bound.Min[0], -180.0)
	bound.Max[0] = min(bound.Max[0], 180.0)
	bound.Min[1] = max(bound.Min[1], -90.0)
	bound.Max[1] = min(bound.Max[1], 90.0)

	return bound
}

func (b *BoundingBox) String() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.West, b.South, b.East, b.North)
}

func inRange(v float64, limit float64) bool {
	return v > -limit && v <= limit
}
