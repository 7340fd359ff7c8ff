// Package catalog provides the static, per-country tables describing each dataset that can
// be extracted: display metadata and the provider property names used to read identity,
// name, unit type and population values.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed countries/*.yaml
var FS embed.FS

var ErrUnknownCountry = errors.New("Unknown country")

var ErrUnknownDataset = errors.New("Unknown dataset")

type Descriptor struct {
	DatasetID                string            `yaml:"id" json:"datasetId"`
	DisplayName              string            `yaml:"display_name" json:"displayName"`
	UnitSingular             string            `yaml:"unit_singular" json:"unitSingular"`
	UnitPlural               string            `yaml:"unit_plural" json:"unitPlural"`
	Source                   string            `yaml:"source" json:"source"`
	IDProperty               string            `yaml:"id_property" json:"idProperty"`
	NameProperty             string            `yaml:"name_property" json:"nameProperty"`
	ApplicableNameProperties []string          `yaml:"applicable_name_properties" json:"applicableNameProperties"`
	UnitTypeProperty         string            `yaml:"unit_type_property,omitempty" json:"unitTypeProperty,omitempty"`
	UnitTypeCodeMap          map[string]string `yaml:"unit_type_code_map,omitempty" json:"unitTypeCodeMap,omitempty"`
	PopulationProperty       string            `yaml:"population_property,omitempty" json:"populationProperty,omitempty"`
}

type Country struct {
	Code     string        `yaml:"country"`
	Datasets []*Descriptor `yaml:"datasets"`
}

var load_once sync.Once
var load_err error
var countries map[string]*Country

func load() error {

	load_once.Do(func() {

		c, err := loadCountries(FS)

		if err != nil {
			load_err = err
			return
		}

		countries = c
	})

	return load_err
}

func loadCountries(catalog_fs fs.FS) (map[string]*Country, error) {

	paths, err := fs.Glob(catalog_fs, "countries/*.yaml")

	if err != nil {
		return nil, fmt.Errorf("Failed to list catalog files, %w", err)
	}

	c := make(map[string]*Country)

	for _, path := range paths {

		body, err := fs.ReadFile(catalog_fs, path)

		if err != nil {
			return nil, fmt.Errorf("Failed to read %s, %w", path, err)
		}

		var country *Country

		err = yaml.Unmarshal(body, &country)

		if err != nil {
			return nil, fmt.Errorf("Failed to parse %s, %w", path, err)
		}

		if country == nil || country.Code == "" {
			return nil, fmt.Errorf("%s is missing a country code", filepath.Base(path))
		}

		err = validateCountry(country)

		if err != nil {
			return nil, fmt.Errorf("Invalid catalog %s, %w", path, err)
		}

		country.Code = strings.ToUpper(country.Code)
		c[country.Code] = country
	}

	return c, nil
}

func validateCountry(c *Country) error {

	seen := make(map[string]bool)

	for _, d := range c.Datasets {

		if d.DatasetID == "" {
			return fmt.Errorf("Dataset is missing an id")
		}

		if seen[d.DatasetID] {
			return fmt.Errorf("Duplicate dataset %s", d.DatasetID)
		}

		seen[d.DatasetID] = true

		if d.IDProperty == "" || d.NameProperty == "" {
			return fmt.Errorf("Dataset %s is missing id or name property", d.DatasetID)
		}

		if len(d.UnitTypeCodeMap) > 0 && d.UnitTypeProperty == "" {
			return fmt.Errorf("Dataset %s defines unit type codes without a unit type property", d.DatasetID)
		}

		normalized := make(map[string]string, len(d.UnitTypeCodeMap))

		for code, label := range d.UnitTypeCodeMap {
			normalized[NormalizeUnitTypeCode(code)] = label
		}

		d.UnitTypeCodeMap = normalized
	}

	return nil
}

// NormalizeUnitTypeCode trims and upper-cases a raw unit type code.
func NormalizeUnitTypeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Countries returns the sorted list of country codes with a catalog.
func Countries() ([]string, error) {

	err := load()

	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(countries))

	for code := range countries {
		codes = append(codes, code)
	}

	sort.Strings(codes)
	return codes, nil
}

// Datasets returns the dataset ids for country in their canonical order.
func Datasets(country string) ([]string, error) {

	c, err := lookupCountry(country)

	if err != nil {
		return nil, err
	}

	ids := make([]string, len(c.Datasets))

	for i, d := range c.Datasets {
		ids[i] = d.DatasetID
	}

	return ids, nil
}

// CanonicalOrder is an alias for Datasets; the order datasets are declared in a country's
// catalog is the order they are listed in the dataset index.
func CanonicalOrder(country string) ([]string, error) {
	return Datasets(country)
}

func Lookup(country string, dataset_id string) (*Descriptor, error) {

	c, err := lookupCountry(country)

	if err != nil {
		return nil, err
	}

	for _, d := range c.Datasets {

		if d.DatasetID == dataset_id {
			return d, nil
		}
	}

	available := make([]string, len(c.Datasets))

	for i, d := range c.Datasets {
		available[i] = d.DatasetID
	}

	return nil, fmt.Errorf("%w '%s' for %s (available: %s)", ErrUnknownDataset, dataset_id, c.Code, strings.Join(available, ", "))
}

// IsAllowed reports whether dataset_id may be requested for country.
func IsAllowed(country string, dataset_id string) bool {

	ids, err := Datasets(country)

	if err != nil {
		return false
	}

	return slices.Contains(ids, dataset_id)
}

func lookupCountry(country string) (*Country, error) {

	err := load()

	if err != nil {
		return nil, err
	}

	c, ok := countries[strings.ToUpper(country)]

	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownCountry, country)
	}

	return c, nil
}
