package domain

import (
	"context"
	"image"
)

// Classifier produces the positive-class probability for a feature vector.
type Classifier interface {
	// Dimension is the vector length the classifier was trained on.
	Dimension() int
	PredictProbability(ctx context.Context, v FeatureVector) (float64, error)
}

// OutlierDetector flags vectors that fall outside the training distribution.
// DecisionFunction is positive for inliers and negative for outliers.
type OutlierDetector interface {
	Dimension() int
	PredictOutlier(ctx context.Context, v FeatureVector) (bool, error)
	DecisionFunction(ctx context.Context, v FeatureVector) (float64, error)
}

// Attributor returns the signed per-slot contribution of a vector to a model output.
type Attributor interface {
	Attribute(ctx context.Context, v FeatureVector) ([]float64, error)
}

// Regressor predicts a continuous value.
type Regressor interface {
	Dimension() int
	Predict(ctx context.Context, v FeatureVector) (float64, error)
	// Accuracy is the validation accuracy recorded with the artifact.
	Accuracy() float64
	Name() string
}

// DocumentValidator scores document authenticity, returning a probability in [0,1].
type DocumentValidator interface {
	ValidateDocument(ctx context.Context, img image.Image) (float64, error)
}

// TextExtractor runs OCR over a grayscale image.
type TextExtractor interface {
	ExtractText(ctx context.Context, img *image.Gray) (string, error)
}

// Embedding is a face encoding.
type Embedding []float64

// FaceMatcher detects, encodes and compares faces.
type FaceMatcher interface {
	LocateFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error)
	EncodeFace(ctx context.Context, img image.Image, box image.Rectangle) (Embedding, error)
	Distance(a, b Embedding) float64
}

// Capability is an optional dependency whose presence is decided once at
// startup. Callers branch on Get instead of probing for nil.
type Capability[T any] struct {
	value   T
	present bool
}

// Present wraps a loaded capability.
func Present[T any](v T) Capability[T] {
	return Capability[T]{value: v, present: true}
}

// Absent returns a capability that was not loaded.
func Absent[T any]() Capability[T] {
	return Capability[T]{}
}

// Get returns the capability and whether it is present.
func (c Capability[T]) Get() (T, bool) {
	return c.value, c.present
}

// Available reports whether the capability is present.
func (c Capability[T]) Available() bool {
	return c.present
}
