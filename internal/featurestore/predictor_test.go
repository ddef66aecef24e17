package featurestore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUPredictor_PredictProbaAppliesRulesAndSigmoid(t *testing.T) {
	dir := t.TempDir()
	model := cpuModel{
		Intercept: 0,
		Rules: []treeRule{
			{FeatureIndex: 0, Threshold: 0.5, WeightBelow: -5, WeightAbove: 5},
		},
	}
	b, err := json.Marshal(model)
	require.NoError(t, err)
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	p, err := LoadCPUPredictor(path)
	require.NoError(t, err)
	defer p.Close()

	probs, err := p.PredictProba([][]float64{{0.1}, {0.9}})
	require.NoError(t, err)
	require.Len(t, probs, 2)
	assert.Less(t, probs[0], 0.5, "below-threshold row should score low")
	assert.Greater(t, probs[1], 0.5, "above-threshold row should score high")
}

func TestCPUPredictor_OutOfRangeFeatureIndexIsIgnored(t *testing.T) {
	p := &CPUPredictor{model: cpuModel{Rules: []treeRule{{FeatureIndex: 5, Threshold: 0, WeightBelow: -9, WeightAbove: 9}}}}
	probs, err := p.PredictProba([][]float64{{1.0}})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(0), probs[0], 1e-9)
}

func TestAcceleratorPredictor_PredictProbaDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req acceleratorRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		probs := make([]float64, len(req.Rows))
		for i := range probs {
			probs[i] = 0.75
		}
		require.NoError(t, json.NewEncoder(w).Encode(acceleratorResponse{Probabilities: probs}))
	}))
	defer srv.Close()

	p := NewAcceleratorPredictor(srv.URL)
	probs, err := p.PredictProba([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.75, 0.75}, probs)
}

func TestAcceleratorPredictor_MismatchedRowCountErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(acceleratorResponse{Probabilities: []float64{0.5}}))
	}))
	defer srv.Close()

	p := NewAcceleratorPredictor(srv.URL)
	_, err := p.PredictProba([][]float64{{1}, {2}})
	assert.Error(t, err)
}
