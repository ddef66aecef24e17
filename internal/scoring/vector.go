package scoring

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tfg-ids/fusion/internal/featurestore"
)

// Vectorize turns a decoded scoring row into the model input vector, in
// the feature store's declared order: numeric columns parsed directly,
// categorical "<col>_index" columns resolved through the matching
// CategoricalMap (§4.4). An unparseable numeric value falls back to
// 0.0, matching str2f()'s exception handling.
func Vectorize(row Row, store *featurestore.Store) ([]float64, error) {
	out := make([]float64, len(store.FeatureOrder))
	for i, feature := range store.FeatureOrder {
		if col, ok := strings.CutSuffix(feature, "_index"); ok {
			m, ok := store.Map(col)
			if !ok {
				return nil, fmt.Errorf("no categorical map loaded for column %q", col)
			}
			out[i] = m.Index(strings.TrimSpace(row.String(sourceColumn(col))))
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row.String(feature)), 64)
		if err != nil {
			v = 0.0
		}
		out[i] = v
	}
	return out, nil
}

// sourceColumn maps a training-time categorical feature name to the
// scoring-row column that carries it: the original training pipeline
// names the address columns "srcip"/"dstip" while the Argus-derived CSV
// row carries them as "saddr"/"daddr" (§4.4).
func sourceColumn(trainingName string) string {
	switch trainingName {
	case "srcip":
		return "saddr"
	case "dstip":
		return "daddr"
	default:
		return trainingName
	}
}
