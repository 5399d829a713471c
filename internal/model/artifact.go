// Package model loads trained scoring artifacts and remote inference clients
// and exposes them as capabilities.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Artifact kinds.
const (
	KindLogistic = "logistic"
	KindZScore   = "zscore"
	KindLinear   = "linear"
)

// Artifact is the on-disk form of a trained model. Training happens
// elsewhere; this package only evaluates the exported parameters.
type Artifact struct {
	Kind     string   `json:"kind"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Features []string `json:"features"`

	// Linear parameters (logistic, linear).
	Weights []float64 `json:"weights,omitempty"`
	Bias    float64   `json:"bias,omitempty"`

	// Standardization applied before the weights; empty means identity.
	Means  []float64 `json:"means,omitempty"`
	Scales []float64 `json:"scales,omitempty"`

	// Threshold is the z-score beyond which a slot is out of distribution.
	Threshold float64 `json:"threshold,omitempty"`

	// Accuracy is the validation accuracy recorded at training time.
	Accuracy float64 `json:"accuracy,omitempty"`
}

var errInvalidArtifact = errors.New("invalid artifact")

// ReadArtifact reads and validates an artifact of the given kind and dimension.
func ReadArtifact(path, kind string, dim int) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := a.validate(kind, dim); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &a, nil
}

func (a *Artifact) validate(kind string, dim int) error {
	if a.Kind != kind {
		return fmt.Errorf("%w: expected kind %q, got %q", errInvalidArtifact, kind, a.Kind)
	}
	if len(a.Features) != dim {
		return fmt.Errorf("%w: expected %d features, got %d", errInvalidArtifact, dim, len(a.Features))
	}

	switch kind {
	case KindLogistic, KindLinear:
		if len(a.Weights) != dim {
			return fmt.Errorf("%w: expected %d weights, got %d", errInvalidArtifact, dim, len(a.Weights))
		}
	case KindZScore:
		if len(a.Means) != dim || len(a.Scales) != dim {
			return fmt.Errorf("%w: z-score model needs %d means and scales", errInvalidArtifact, dim)
		}
		if a.Threshold <= 0 {
			return fmt.Errorf("%w: z-score threshold must be positive", errInvalidArtifact)
		}
	}

	if len(a.Means) != 0 && len(a.Means) != dim {
		return fmt.Errorf("%w: expected %d means, got %d", errInvalidArtifact, dim, len(a.Means))
	}
	if len(a.Scales) != 0 && len(a.Scales) != dim {
		return fmt.Errorf("%w: expected %d scales, got %d", errInvalidArtifact, dim, len(a.Scales))
	}
	for _, w := range a.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: non-finite weight", errInvalidArtifact)
		}
	}
	return nil
}

// standardize returns (x - mean) / scale for slot i. Zero scales are treated as 1.
func (a *Artifact) standardize(i int, x float64) float64 {
	if len(a.Means) > i {
		x -= a.Means[i]
	}
	if len(a.Scales) > i && a.Scales[i] != 0 {
		x /= a.Scales[i]
	}
	return x
}
