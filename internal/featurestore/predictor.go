package featurestore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"
)

// Predictor scores a batch of feature vectors, returning one attack
// probability per row (§4.4: "invocation of a classifier that returns
// per-record attack probability"). A pluggable backend lets the same
// batching logic above it run whether the model is in-process (CPU) or
// behind an accelerator sidecar (the GPU-backed cuML model of the
// original system, reached here over HTTP rather than linked
// in-process, since cuML has no Go binding).
type Predictor interface {
	PredictProba(batch [][]float64) ([]float64, error)
	Close() error
}

// treeRule is one linear-cut rule of a simple additive scoring model: a
// threshold on a single feature index that nudges the running logit up
// or down, sufficient to stand in for an exported random-forest model
// artefact without requiring a native Go ML runtime.
type treeRule struct {
	FeatureIndex int     `json:"feature_index"`
	Threshold    float64 `json:"threshold"`
	WeightBelow  float64 `json:"weight_below"`
	WeightAbove  float64 `json:"weight_above"`
}

type cpuModel struct {
	Rules     []treeRule `json:"rules"`
	Intercept float64    `json:"intercept"`
}

// CPUPredictor loads a JSON-encoded rule set exported from the training
// pipeline and evaluates it row by row, entirely in-process, squashing
// the accumulated logit through a sigmoid to produce a probability.
type CPUPredictor struct {
	model cpuModel
}

// LoadCPUPredictor reads the model artefact at path.
func LoadCPUPredictor(path string) (*CPUPredictor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", path, err)
	}
	var m cpuModel
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parsing model %s: %w", path, err)
	}
	return &CPUPredictor{model: m}, nil
}

func (p *CPUPredictor) PredictProba(batch [][]float64) ([]float64, error) {
	probs := make([]float64, len(batch))
	for i, row := range batch {
		probs[i] = p.predictRow(row)
	}
	return probs, nil
}

func (p *CPUPredictor) predictRow(row []float64) float64 {
	logit := p.model.Intercept
	for _, r := range p.model.Rules {
		if r.FeatureIndex < 0 || r.FeatureIndex >= len(row) {
			continue
		}
		if row[r.FeatureIndex] <= r.Threshold {
			logit += r.WeightBelow
		} else {
			logit += r.WeightAbove
		}
	}
	return sigmoid(logit)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func (p *CPUPredictor) Close() error { return nil }

// AcceleratorPredictor forwards a batch to an out-of-process sidecar
// (the accelerator-backed model server) over HTTP, for deployments
// where the real GPU model is hosted outside the Go process.
type AcceleratorPredictor struct {
	addr   string
	client *http.Client
}

func NewAcceleratorPredictor(addr string) *AcceleratorPredictor {
	return &AcceleratorPredictor{addr: addr, client: &http.Client{Timeout: 5 * time.Second}}
}

type acceleratorRequest struct {
	Rows [][]float64 `json:"rows"`
}

type acceleratorResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

func (p *AcceleratorPredictor) PredictProba(batch [][]float64) ([]float64, error) {
	body, err := json.Marshal(acceleratorRequest{Rows: batch})
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Post(p.addr+"/predict", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("accelerator request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("accelerator returned status %s", resp.Status)
	}
	var out acceleratorResponse
	if err := json.NewDecoder(bufio.NewReader(resp.Body)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding accelerator response: %w", err)
	}
	if len(out.Probabilities) != len(batch) {
		return nil, fmt.Errorf("accelerator returned %d probabilities for %d rows", len(out.Probabilities), len(batch))
	}
	return out.Probabilities, nil
}

func (p *AcceleratorPredictor) Close() error { return nil }
