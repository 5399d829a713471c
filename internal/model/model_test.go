package model

import (
	"context"
	"encoding/json"
	"image"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/quantra/internal/domain"
)

func writeArtifact(t *testing.T, dir, name string, a Artifact) {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "f"
	}
	return out
}

func zeros(n int) []float64 {
	return make([]float64, n)
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func TestLogistic(t *testing.T) {
	ctx := context.Background()
	m := NewLogistic(&Artifact{Kind: KindLogistic, Features: names(2), Weights: []float64{2, -1}, Bias: 0})

	p, err := m.PredictProbability(ctx, domain.FeatureVector{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)

	p, _ = m.PredictProbability(ctx, domain.FeatureVector{1, 0})
	assert.InDelta(t, 1/(1+math.Exp(-2)), p, 1e-9)

	attr, err := m.Attribute(ctx, domain.FeatureVector{1, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, -3}, attr)

	_, err = m.PredictProbability(ctx, domain.FeatureVector{1})
	assert.ErrorIs(t, err, domain.ErrFeatureMismatch)
}

func TestZScore(t *testing.T) {
	ctx := context.Background()
	m := NewZScore(&Artifact{
		Kind:      KindZScore,
		Features:  names(2),
		Means:     []float64{100, 0},
		Scales:    []float64{10, 1},
		Threshold: 3,
	})

	d, err := m.DecisionFunction(ctx, domain.FeatureVector{100, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	out, _ := m.PredictOutlier(ctx, domain.FeatureVector{120, 0})
	assert.False(t, out)

	out, _ = m.PredictOutlier(ctx, domain.FeatureVector{150, 0})
	assert.True(t, out)
	d, _ = m.DecisionFunction(ctx, domain.FeatureVector{150, 0})
	assert.Less(t, d, 0.0)
}

func TestLinear(t *testing.T) {
	m := NewLinear(&Artifact{Kind: KindLinear, Name: "spending", Version: "v2", Features: names(3), Weights: []float64{1, 2, 0}, Bias: 5, Accuracy: 0.9})

	y, err := m.Predict(context.Background(), domain.FeatureVector{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 10.0, y)
	assert.Equal(t, "spending-v2", m.Name())
	assert.Equal(t, 0.9, m.Accuracy())
}

func TestReadArtifactValidation(t *testing.T) {
	dir := t.TempDir()

	writeArtifact(t, dir, "wrong-kind.json", Artifact{Kind: KindLinear, Features: names(2), Weights: zeros(2)})
	_, err := ReadArtifact(filepath.Join(dir, "wrong-kind.json"), KindLogistic, 2)
	assert.ErrorIs(t, err, errInvalidArtifact)

	writeArtifact(t, dir, "wrong-dim.json", Artifact{Kind: KindLogistic, Features: names(3), Weights: zeros(3)})
	_, err = ReadArtifact(filepath.Join(dir, "wrong-dim.json"), KindLogistic, 2)
	assert.ErrorIs(t, err, errInvalidArtifact)

	writeArtifact(t, dir, "zscore.json", Artifact{Kind: KindZScore, Features: names(2), Means: zeros(2), Scales: ones(2)})
	_, err = ReadArtifact(filepath.Join(dir, "zscore.json"), KindZScore, 2)
	assert.ErrorIs(t, err, errInvalidArtifact, "threshold is required")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0o644))
	_, err = ReadArtifact(filepath.Join(dir, "garbage.json"), KindLogistic, 2)
	assert.Error(t, err)

	_, err = ReadArtifact(filepath.Join(dir, "missing.json"), KindLogistic, 2)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyDirectory", func(t *testing.T) {
		set := Load(ctx, domain.ModelsConfig{Dir: t.TempDir()}, domain.RemoteConfig{}, domain.BreakerConfig{})
		for name, present := range set.Summary() {
			assert.False(t, present, name)
		}
	})

	t.Run("BestEffort", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, FraudClassifierFile, Artifact{
			Kind: KindLogistic, Features: names(domain.FeatureDimension), Weights: zeros(domain.FeatureDimension),
		})
		writeArtifact(t, dir, DefaultRiskClassifierFile, Artifact{
			Kind: KindLogistic, Features: names(2), Weights: zeros(2),
		})
		writeArtifact(t, dir, SpendingForecastFile, Artifact{
			Kind: KindLinear, Features: names(ForecastDimension), Weights: zeros(ForecastDimension),
		})

		set := Load(ctx, domain.ModelsConfig{Dir: dir}, domain.RemoteConfig{OCRURL: "http://ocr.local"}, domain.BreakerConfig{})
		assert.True(t, set.Fraud.Available())
		assert.True(t, set.Attribution.Available())
		assert.False(t, set.DefaultRisk.Available(), "wrong dimension must not load")
		assert.True(t, set.Spending.Available())
		assert.False(t, set.Income.Available())
		assert.False(t, set.Anomaly.Available())
		assert.True(t, set.OCR.Available())
		assert.False(t, set.Face.Available())
	})
}

func TestRemoteClient(t *testing.T) {
	ctx := context.Background()
	img := image.NewGray(image.Rect(0, 0, 4, 4))

	t.Run("DocumentValidator", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req imageRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Image == "" {
				http.Error(w, "missing image", http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]float64{"probability": 0.93})
		}))
		defer srv.Close()

		v := NewRemoteDocumentValidator(NewRemoteClient("doc", srv.URL, 0, domain.BreakerConfig{}))
		p, err := v.ValidateDocument(ctx, img)
		require.NoError(t, err)
		assert.Equal(t, 0.93, p)
	})

	t.Run("FaceMatcher", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/locate", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"boxes": [][4]int{{0, 0, 2, 2}}})
		})
		mux.HandleFunc("/encode", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2}})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		f := NewRemoteFaceMatcher(NewRemoteClient("face", srv.URL, 0, domain.BreakerConfig{}))
		boxes, err := f.LocateFaces(ctx, img)
		require.NoError(t, err)
		require.Len(t, boxes, 1)
		assert.Equal(t, image.Rect(0, 0, 2, 2), boxes[0])

		emb, err := f.EncodeFace(ctx, img, boxes[0])
		require.NoError(t, err)
		assert.Equal(t, domain.Embedding{0.1, 0.2}, emb)
		assert.InDelta(t, 0.0, f.Distance(emb, emb), 1e-12)
	})

	t.Run("BreakerOpens", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "down", http.StatusInternalServerError)
		}))
		defer srv.Close()

		x := NewRemoteTextExtractor(NewRemoteClient("ocr", srv.URL, 0, domain.BreakerConfig{ConsecutiveFailures: 2, Timeout: 60}))
		for i := 0; i < 2; i++ {
			_, err := x.ExtractText(ctx, img)
			require.Error(t, err)
		}

		_, err := x.ExtractText(ctx, img)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestEuclideanDistance(t *testing.T) {
	assert.InDelta(t, 5.0, EuclideanDistance(domain.Embedding{0, 0}, domain.Embedding{3, 4}), 1e-12)
	assert.True(t, math.IsInf(EuclideanDistance(domain.Embedding{1}, domain.Embedding{1, 2}), 1))
}
