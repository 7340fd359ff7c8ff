// Package index maintains the data_index.json manifest which lists, per city, the datasets
// which have been generated.
package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/natefinch/atomic"
	"github.com/sfomuseum/go-sfomuseum-boundaries/catalog"
)

const FILENAME string = "data_index.json"

// Entry describes a generated dataset for a city.
type Entry struct {
	DatasetID    string `json:"datasetId"`
	DisplayName  string `json:"displayName"`
	UnitSingular string `json:"unitSingular"`
	UnitPlural   string `json:"unitPlural"`
	Source       string `json:"source"`
	// Size is the size, in bytes, of the dataset file.
	Size int64 `json:"size"`
}

// NewEntry returns an Entry for the dataset described by desc whose output is size bytes.
func NewEntry(desc *catalog.Descriptor, size int64) *Entry {

	e := &Entry{
		DatasetID:    desc.DatasetID,
		DisplayName:  desc.DisplayName,
		UnitSingular: desc.UnitSingular,
		UnitPlural:   desc.UnitPlural,
		Source:       desc.Source,
		Size:         size,
	}

	return e
}

// Manifest maps city codes to the datasets generated for them.
type Manifest map[string][]*Entry

// Load reads the manifest at path. A missing or unparseable file yields an empty manifest.
func Load(path string) (Manifest, error) {

	body, err := os.ReadFile(path)

	if err != nil {

		if errors.Is(err, fs.ErrNotExist) {
			return make(Manifest), nil
		}

		return nil, fmt.Errorf("Failed to read %s, %w", path, err)
	}

	var m Manifest

	err = json.Unmarshal(body, &m)

	if err != nil {
		slog.Warn("Index is corrupt, starting from an empty manifest", "path", path, "error", err)
		return make(Manifest), nil
	}

	if m == nil {
		m = make(Manifest)
	}

	for city, entries := range m {

		entries = slices.DeleteFunc(entries, func(e *Entry) bool {
			return e == nil || e.DatasetID == ""
		})

		m[city] = dedupeEntries(entries)
	}

	return m, nil
}

// dedupeEntries keeps one entry per dataset id, the last one listed.
func dedupeEntries(entries []*Entry) []*Entry {

	deduped := make([]*Entry, 0, len(entries))
	seen := make(map[string]int)

	for _, e := range entries {

		i, ok := seen[e.DatasetID]

		if ok {
			deduped[i] = e
			continue
		}

		seen[e.DatasetID] = len(deduped)
		deduped = append(deduped, e)
	}

	return deduped
}

// Upsert records entry for city in the manifest at path, replacing any existing entry for
// the same dataset, and rewrites the whole manifest. country is the (catalog) country of
// city and determines the order of its datasets.
func Upsert(path string, city string, entry *Entry, country string) error {

	if entry == nil || entry.DatasetID == "" {
		return fmt.Errorf("Invalid index entry")
	}

	m, err := Load(path)

	if err != nil {
		return err
	}

	m.Upsert(city, entry)
	m.Sort(map[string]string{city: country})

	return Write(path, m)
}

// Upsert replaces the entry for entry.DatasetID under city, or appends it.
func (m Manifest) Upsert(city string, entry *Entry) {

	entries := m[city]

	for i, e := range entries {

		if e.DatasetID == entry.DatasetID {
			entries[i] = entry
			m[city] = entries
			return
		}
	}

	m[city] = append(entries, entry)
}

// Sort orders the datasets of every city. countries maps city codes to country codes;
// the country of cities not listed is inferred from their dataset ids.
func (m Manifest) Sort(countries map[string]string) {

	for city, entries := range m {

		country, ok := countries[city]

		if !ok {
			country = inferCountry(entries)
		}

		var order []string

		if country != "" {
			order, _ = catalog.CanonicalOrder(country)
		}

		sortEntries(entries, order)
	}
}

// sortEntries sorts entries by their position in order; datasets not in order follow,
// sorted by id.
func sortEntries(entries []*Entry, order []string) {

	rank := func(id string) int {

		i := slices.Index(order, id)

		if i == -1 {
			return len(order)
		}

		return i
	}

	sort.SliceStable(entries, func(i, j int) bool {

		ri := rank(entries[i].DatasetID)
		rj := rank(entries[j].DatasetID)

		if ri != rj {
			return ri < rj
		}

		return entries[i].DatasetID < entries[j].DatasetID
	})
}

// inferCountry returns the first country (in code order) whose catalog lists every one of
// entries' dataset ids, or failing that the country listing the most of them.
func inferCountry(entries []*Entry) string {

	countries, err := catalog.Countries()

	if err != nil {
		return ""
	}

	best := ""
	best_count := 0

	for _, country := range countries {

		ids, err := catalog.Datasets(country)

		if err != nil {
			continue
		}

		count := 0

		for _, e := range entries {

			if slices.Contains(ids, e.DatasetID) {
				count += 1
			}
		}

		if count == len(entries) && count > 0 {
			return country
		}

		if count > best_count {
			best = country
			best_count = count
		}
	}

	return best
}

// Write atomically replaces the file at path with m, indented by two spaces.
func Write(path string, m Manifest) error {

	err := os.MkdirAll(filepath.Dir(path), 0755)

	if err != nil {
		return fmt.Errorf("Failed to create %s, %w", filepath.Dir(path), err)
	}

	body, err := json.MarshalIndent(m, "", "  ")

	if err != nil {
		return fmt.Errorf("Failed to marshal index, %w", err)
	}

	body = append(body, '\n')

	err = atomic.WriteFile(path, bytes.NewReader(body))

	if err != nil {
		return fmt.Errorf("Failed to write %s, %w", path, err)
	}

	slog.Debug("Wrote index", "path", path, "cities", len(m))
	return nil
}

// Cities returns the sorted city codes in m.
func (m Manifest) Cities() []string {

	cities := make([]string, 0, len(m))

	for city := range m {
		cities = append(cities, city)
	}

	sort.Strings(cities)
	return cities
}
