// Package featurestore loads the artefacts the scoring consumer needs
// to turn a CSV scoring-queue line into a model input vector: the
// feature order, the per-column categorical maps, and the model file
// itself, then exposes a pluggable Predictor to run inference.
package featurestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CategoricalMap maps an observed string value to an integer index, as
// produced by the training pipeline's StringIndexer-equivalent step.
// A value absent from the map is treated as "unseen": its index is
// len(map) (the "keep" convention of the original indexer).
type CategoricalMap map[string]int

func (m CategoricalMap) Index(value string) float64 {
	if idx, ok := m[value]; ok {
		return float64(idx)
	}
	return float64(len(m))
}

// Store holds the loaded feature order and categorical maps for one
// running scoring consumer.
type Store struct {
	FeatureOrder       []string
	CategoricalColumns []string
	maps               map[string]CategoricalMap
}

// LoadFeatureOrder reads the JSON array of feature names, in the exact
// order the model expects its input vector (numeric features first,
// then "<col>_index" categorical features, mirroring the training
// pipeline's VectorAssembler column order).
func LoadFeatureOrder(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feature order: %w", err)
	}
	var order []string
	if err := json.Unmarshal(b, &order); err != nil {
		return nil, fmt.Errorf("parsing feature order: %w", err)
	}
	return order, nil
}

// categoricalColumns derives the set of base categorical column names
// ("proto", "state", "saddr", "daddr", ...) from a feature order that
// encodes them as "<col>_index" entries.
func categoricalColumns(order []string) []string {
	var cols []string
	for _, f := range order {
		if col, ok := strings.CutSuffix(f, "_index"); ok {
			cols = append(cols, col)
		}
	}
	return cols
}

// Open loads the feature order and, for every categorical column it
// names, the matching "string_indexer_<col>_map.json" file from mapDir
// (grounded on the training pipeline's MAPS_DIR/string_indexer_<feature>_map.json layout).
func Open(featureOrderPath, mapDir string) (*Store, error) {
	order, err := LoadFeatureOrder(featureOrderPath)
	if err != nil {
		return nil, err
	}
	cols := categoricalColumns(order)
	maps := make(map[string]CategoricalMap, len(cols))
	for _, col := range cols {
		p := filepath.Join(mapDir, fmt.Sprintf("string_indexer_%s_map.json", col))
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading categorical map for %s: %w", col, err)
		}
		var m CategoricalMap
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("parsing categorical map for %s: %w", col, err)
		}
		maps[col] = m
	}
	return &Store{FeatureOrder: order, CategoricalColumns: cols, maps: maps}, nil
}

func (s *Store) Map(column string) (CategoricalMap, bool) {
	m, ok := s.maps[column]
	return m, ok
}

// NewStore builds a Store directly from in-memory maps, for tests and
// for callers that already have the artefacts loaded some other way.
func NewStore(order []string, maps map[string]CategoricalMap) *Store {
	return &Store{FeatureOrder: order, CategoricalColumns: categoricalColumns(order), maps: maps}
}
