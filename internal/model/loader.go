package model

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/metrics"
)

// Artifact file names inside the models directory.
const (
	FraudClassifierFile       = "fraud_classifier.json"
	AnomalyDetectorFile       = "anomaly_detector.json"
	DefaultRiskClassifierFile = "default_risk_classifier.json"
	SpendingForecastFile      = "spending_forecast.json"
	IncomeForecastFile        = "income_forecast.json"
)

// Capability names used in logs and metrics.
const (
	CapFraud       = "fraud_classifier"
	CapAttribution = "fraud_attribution"
	CapAnomaly     = "anomaly_detector"
	CapDefaultRisk = "default_risk_classifier"
	CapSpending    = "spending_forecast"
	CapIncome      = "income_forecast"
	CapDocument    = "document_validator"
	CapOCR         = "ocr"
	CapFace        = "face_matcher"
)

// RiskDimension is the length of the default-risk aggregate vector.
const RiskDimension = 4

// ForecastDimension is the length of a forecast regressor input.
const ForecastDimension = 3

// Set is the read-only collection of capabilities resolved at startup.
type Set struct {
	Fraud       domain.Capability[domain.Classifier]
	Attribution domain.Capability[domain.Attributor]
	Anomaly     domain.Capability[domain.OutlierDetector]
	DefaultRisk domain.Capability[domain.Classifier]
	Spending    domain.Capability[domain.Regressor]
	Income      domain.Capability[domain.Regressor]
	Document    domain.Capability[domain.DocumentValidator]
	OCR         domain.Capability[domain.TextExtractor]
	Face        domain.Capability[domain.FaceMatcher]
}

// Summary reports which capabilities are present.
func (s *Set) Summary() map[string]bool {
	return map[string]bool{
		CapFraud:       s.Fraud.Available(),
		CapAttribution: s.Attribution.Available(),
		CapAnomaly:     s.Anomaly.Available(),
		CapDefaultRisk: s.DefaultRisk.Available(),
		CapSpending:    s.Spending.Available(),
		CapIncome:      s.Income.Available(),
		CapDocument:    s.Document.Available(),
		CapOCR:         s.OCR.Available(),
		CapFace:        s.Face.Available(),
	}
}

// Load resolves every capability once. Artifacts load concurrently and
// independently: a failure or panic leaves only that capability absent and
// is never retried.
func Load(ctx context.Context, models domain.ModelsConfig, remote domain.RemoteConfig, breaker domain.BreakerConfig) *Set {
	set := &Set{}
	dir := models.Dir

	var wg conc.WaitGroup
	load := func(name string, fn func() error) {
		wg.Go(func() {
			var pc panics.Catcher
			var err error
			pc.Try(func() { err = fn() })
			if r := pc.Recovered(); r != nil {
				err = r.AsError()
			}
			if err != nil {
				slog.WarnContext(ctx, "model not loaded, using fallback",
					"capability", name,
					"error", err,
				)
				return
			}
			slog.InfoContext(ctx, "model loaded", "capability", name)
		})
	}

	load(CapFraud, func() error {
		a, err := ReadArtifact(filepath.Join(dir, FraudClassifierFile), KindLogistic, domain.FeatureDimension)
		if err != nil {
			return err
		}
		m := NewLogistic(a)
		set.Fraud = domain.Present[domain.Classifier](m)
		set.Attribution = domain.Present[domain.Attributor](m)
		return nil
	})

	load(CapAnomaly, func() error {
		a, err := ReadArtifact(filepath.Join(dir, AnomalyDetectorFile), KindZScore, domain.FeatureDimension)
		if err != nil {
			return err
		}
		set.Anomaly = domain.Present[domain.OutlierDetector](NewZScore(a))
		return nil
	})

	load(CapDefaultRisk, func() error {
		a, err := ReadArtifact(filepath.Join(dir, DefaultRiskClassifierFile), KindLogistic, RiskDimension)
		if err != nil {
			return err
		}
		set.DefaultRisk = domain.Present[domain.Classifier](NewLogistic(a))
		return nil
	})

	load(CapSpending, func() error {
		a, err := ReadArtifact(filepath.Join(dir, SpendingForecastFile), KindLinear, ForecastDimension)
		if err != nil {
			return err
		}
		set.Spending = domain.Present[domain.Regressor](NewLinear(a))
		return nil
	})

	load(CapIncome, func() error {
		a, err := ReadArtifact(filepath.Join(dir, IncomeForecastFile), KindLinear, ForecastDimension)
		if err != nil {
			return err
		}
		set.Income = domain.Present[domain.Regressor](NewLinear(a))
		return nil
	})

	wg.Wait()

	timeout := time.Duration(remote.Timeout) * time.Second
	if remote.DocumentURL != "" {
		c := NewRemoteClient(CapDocument, remote.DocumentURL, timeout, breaker)
		set.Document = domain.Present[domain.DocumentValidator](NewRemoteDocumentValidator(c))
	}
	if remote.OCRURL != "" {
		c := NewRemoteClient(CapOCR, remote.OCRURL, timeout, breaker)
		set.OCR = domain.Present[domain.TextExtractor](NewRemoteTextExtractor(c))
	}
	if remote.FaceURL != "" {
		c := NewRemoteClient(CapFace, remote.FaceURL, timeout, breaker)
		set.Face = domain.Present[domain.FaceMatcher](NewRemoteFaceMatcher(c))
	}

	for name, present := range set.Summary() {
		v := 0.0
		if present {
			v = 1
		}
		metrics.ModelsLoaded.WithLabelValues(name).Set(v)
	}

	return set
}
