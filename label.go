package boundaries

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// DeriveIdentity returns the (trimmed) string value of id_property.
func DeriveIdentity(props geojson.Properties, id_property string) (string, error) {

	id, ok := StringProperty(props, id_property)

	if !ok {
		return "", fmt.Errorf("Missing %s property", id_property)
	}

	return id, nil
}

// DeriveName returns the value of name_property. If that is empty the first non-empty
// value of applicable is used instead.
func DeriveName(props geojson.Properties, name_property string, applicable []string) (string, error) {

	name, ok := StringProperty(props, name_property)

	if ok {
		return name, nil
	}

	name, ok = DeriveDisplayName(props, applicable)

	if ok {
		return name, nil
	}

	return "", fmt.Errorf("Missing %s property", name_property)
}

// DeriveDisplayName returns the first non-empty string value among applicable.
func DeriveDisplayName(props geojson.Properties, applicable []string) (string, bool) {

	for _, k := range applicable {

		v, ok := props[k].(string)

		if !ok {
			continue
		}

		v = strings.TrimSpace(v)

		if v != "" {
			return v, true
		}
	}

	return "", false
}

// StringProperty returns the value of k as a trimmed string. Numeric values are formatted
// without exponents so that codes like 6075 do not become 6.075e+03.
func StringProperty(props geojson.Properties, k string) (string, bool) {

	var str_v string

	switch v := props[k].(type) {
	case string:
		str_v = v
	case float64:
		str_v = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		str_v = strconv.Itoa(v)
	case int64:
		str_v = strconv.FormatInt(v, 10)
	case json.Number:
		str_v = v.String()
	default:
		return "", false
	}

	str_v = strings.TrimSpace(str_v)

	if str_v == "" {
		return "", false
	}

	return str_v, true
}
