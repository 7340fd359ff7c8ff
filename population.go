package boundaries

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// PopulationIndex maps a region's identity code to a population count.
type PopulationIndex map[string]int64

// Merge copies every entry of other into idx, replacing existing entries.
func (idx PopulationIndex) Merge(other PopulationIndex) {

	for k, v := range other {
		idx[k] = v
	}
}

// ParsePopulation parses a population value which may be a number or a locale-formatted
// string like "1,234,567" or "1 234 567".
func ParsePopulation(v any) (int64, bool) {

	switch n := v.(type) {
	case float64:
		return fromFloat(n)
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		f, err := n.Float64()

		if err != nil {
			return 0, false
		}

		return fromFloat(f)
	case string:
		return parsePopulationString(n)
	}

	return 0, false
}

func parsePopulationString(str_n string) (int64, bool) {

	str_n = strings.TrimSpace(str_n)

	str_n = strings.Map(func(r rune) rune {

		switch r {
		case ',', '_', ' ', '\u00a0', '\u202f', '\'':
			return -1
		default:
			return r
		}

	}, str_n)

	if str_n == "" {
		return 0, false
	}

	i, err := strconv.ParseInt(str_n, 10, 64)

	if err == nil {
		return i, i >= 0
	}

	f, err := strconv.ParseFloat(str_n, 64)

	if err != nil {
		return 0, false
	}

	return fromFloat(f)
}

func fromFloat(f float64) (int64, bool) {

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}

	return int64(math.Round(f)), true
}
