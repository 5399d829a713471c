// Package kyc runs identity verification: document quality, OCR field
// extraction and face matching, aggregated into a single verdict.
package kyc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/metrics"
	"github.com/opensource-finance/quantra/internal/model"
	"github.com/opensource-finance/quantra/internal/scoring"
)

var tracer = otel.Tracer("quantra-kyc")

const (
	// ValidDocumentScore is the minimum document score accepted as valid.
	ValidDocumentScore = 80.0

	// VerifiedScore is the minimum overall score of a verified user.
	VerifiedScore = 80.0

	// FaceMatchThreshold is the embedding distance below which faces match.
	FaceMatchThreshold = 0.6

	// OCRConfidence is reported with successful text extraction.
	OCRConfidence = 0.85

	// sharpnessScale converts Laplacian variance into a 0-100 quality score.
	sharpnessScale = 10.0
)

// Recommendations.
const (
	RecUploadDocument    = "Upload document image"
	RecValidDocument     = "Upload a valid document"
	RecVerifyInformation = "Verify personal information matches"
	RecClearFace         = "Upload a clear face photo"
	RecUploadBothImages  = "Upload both document and face images"
)

// Step names.
const (
	StepDocument = "document"
	StepOCR      = "ocr"
	StepFace     = "face"
)

var (
	errOCRUnavailable  = errors.New("OCR not available")
	errFaceUnavailable = errors.New("face matching not available")
	errNoFace          = errors.New("could not detect face in one or both images")
)

// Orchestrator runs the verification steps in order. It keeps no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	document domain.Capability[domain.DocumentValidator]
	ocr      domain.Capability[domain.TextExtractor]
	face     domain.Capability[domain.FaceMatcher]
}

// New creates an orchestrator from resolved capabilities.
func New(document domain.Capability[domain.DocumentValidator], ocr domain.Capability[domain.TextExtractor], face domain.Capability[domain.FaceMatcher]) *Orchestrator {
	return &Orchestrator{document: document, ocr: ocr, face: face}
}

// NewFromSet creates an orchestrator from a loaded model set.
func NewFromSet(set *model.Set) *Orchestrator {
	return New(set.Document, set.OCR, set.Face)
}

// VerifyDocument scores document authenticity. Decode failures produce an
// unsuccessful check with a zero score.
func (o *Orchestrator) VerifyDocument(ctx context.Context, documentImage, documentType string) domain.DocumentCheck {
	img, err := DecodeImage(documentImage)
	if err != nil {
		return domain.DocumentCheck{DocumentType: documentType, Error: err.Error()}
	}
	return o.verifyDocument(ctx, img, documentType)
}

func (o *Orchestrator) verifyDocument(ctx context.Context, img image.Image, documentType string) domain.DocumentCheck {
	ctx, span := tracer.Start(ctx, "kyc.document")
	defer span.End()

	score, source := o.documentScore(ctx, img)
	check := domain.DocumentCheck{
		Success:      true,
		Valid:        score >= ValidDocumentScore,
		Score:        score,
		DocumentType: documentType,
		Source:       source,
	}

	span.SetAttributes(
		attribute.String("score.source", string(source)),
		attribute.Bool("document.valid", check.Valid),
	)
	return check
}

// documentScore prefers the validator and falls back to image sharpness.
func (o *Orchestrator) documentScore(ctx context.Context, img image.Image) (float64, domain.ScoreSource) {
	validator, ok := o.document.Get()
	if !ok {
		metrics.Fallback(model.CapDocument, scoring.ReasonAbsent)
		return sharpnessScore(img), domain.SourceRules
	}

	p, err := validator.ValidateDocument(ctx, img)
	if err == nil && (math.IsNaN(p) || p < 0 || p > 1) {
		err = fmt.Errorf("probability %v outside [0,1]", p)
	}
	if err != nil {
		slog.WarnContext(ctx, "document validator failed, using sharpness",
			"capability", model.CapDocument,
			"error", err,
		)
		metrics.Fallback(model.CapDocument, scoring.ReasonInferenceError)
		return sharpnessScore(img), domain.SourceRules
	}
	return roundScore(p * 100), domain.SourceModel
}

func sharpnessScore(img image.Image) float64 {
	return roundScore(math.Min(100, LaplacianVariance(Grayscale(img))/sharpnessScale))
}

// roundScore rounds a 0-100 score to four decimals so that products such as
// 0.3*100 land on their exact value before threshold comparisons.
func roundScore(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// ExtractText runs OCR over the document and parses its fields.
func (o *Orchestrator) ExtractText(ctx context.Context, documentImage string) domain.TextExtraction {
	if !o.ocr.Available() {
		return domain.TextExtraction{Fields: map[string]string{}, Error: errOCRUnavailable.Error()}
	}
	img, err := DecodeImage(documentImage)
	if err != nil {
		return domain.TextExtraction{Fields: map[string]string{}, Error: err.Error()}
	}
	return o.extractText(ctx, img)
}

func (o *Orchestrator) extractText(ctx context.Context, img image.Image) domain.TextExtraction {
	ctx, span := tracer.Start(ctx, "kyc.ocr")
	defer span.End()

	extractor, ok := o.ocr.Get()
	if !ok {
		return domain.TextExtraction{Fields: map[string]string{}, Error: errOCRUnavailable.Error()}
	}

	text, err := extractor.ExtractText(ctx, Grayscale(img))
	if err != nil {
		slog.WarnContext(ctx, "text extraction failed",
			"capability", model.CapOCR,
			"error", err,
		)
		span.RecordError(err)
		metrics.Fallback(model.CapOCR, scoring.ReasonInferenceError)
		return domain.TextExtraction{Fields: map[string]string{}, Error: err.Error()}
	}

	return domain.TextExtraction{
		Success:    true,
		Fields:     ParseFields(text),
		Confidence: OCRConfidence,
	}
}

// MatchFace compares the face on the document with the selfie.
func (o *Orchestrator) MatchFace(ctx context.Context, documentImage, faceImage string) domain.FaceMatch {
	doc, err := DecodeImage(documentImage)
	if err != nil {
		return domain.FaceMatch{Error: err.Error()}
	}
	face, err := DecodeImage(faceImage)
	if err != nil {
		return domain.FaceMatch{Error: err.Error()}
	}
	return o.matchFace(ctx, doc, face)
}

func (o *Orchestrator) matchFace(ctx context.Context, doc, face image.Image) domain.FaceMatch {
	ctx, span := tracer.Start(ctx, "kyc.face")
	defer span.End()

	matcher, ok := o.face.Get()
	if !ok {
		metrics.Fallback(model.CapFace, scoring.ReasonAbsent)
		return domain.FaceMatch{Error: errFaceUnavailable.Error()}
	}

	fail := func(err error) domain.FaceMatch {
		span.RecordError(err)
		return domain.FaceMatch{Error: err.Error()}
	}

	docEmb, err := encodeFirst(ctx, matcher, doc)
	if err != nil {
		return fail(err)
	}
	faceEmb, err := encodeFirst(ctx, matcher, face)
	if err != nil {
		return fail(err)
	}

	distance := matcher.Distance(docEmb, faceEmb)
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return fail(errors.New("face embeddings are not comparable"))
	}

	match := domain.FaceMatch{
		Success:   true,
		Matched:   distance < FaceMatchThreshold,
		Score:     roundScore(math.Max(0, 100-distance*100)),
		Distance:  distance,
		Threshold: FaceMatchThreshold,
	}
	span.SetAttributes(attribute.Bool("face.matched", match.Matched))
	return match
}

// encodeFirst encodes the first face located in img.
func encodeFirst(ctx context.Context, matcher domain.FaceMatcher, img image.Image) (domain.Embedding, error) {
	boxes, err := matcher.LocateFaces(ctx, img)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, errNoFace
	}
	return matcher.EncodeFace(ctx, img, boxes[0])
}

// Verify runs document validation, text extraction and face matching in
// order and aggregates the result. Missing inputs skip a step and never
// fail the call.
func (o *Orchestrator) Verify(ctx context.Context, req domain.VerificationRequest) domain.VerificationResult {
	ctx, span := tracer.Start(ctx, "kyc.verify")
	defer span.End()

	st := &state{
		recommendations: []string{},
		fields:          map[string]string{},
	}

	var doc image.Image
	var docErr error
	if req.DocumentImage != "" {
		doc, docErr = DecodeImage(req.DocumentImage)
	}

	// Document validation.
	switch {
	case req.DocumentImage == "":
		st.recommend(RecUploadDocument)
		st.step(StepDocument, domain.StepSkipped, "no document image")
	case docErr != nil:
		st.push(0)
		st.recommend(RecValidDocument)
		st.step(StepDocument, domain.StepFailed, docErr.Error())
	default:
		check := o.verifyDocument(ctx, doc, req.DocumentType)
		st.checks.DocumentValid = check.Valid
		st.push(check.Score)
		if !check.Valid {
			st.recommend(RecValidDocument)
		}
		st.step(StepDocument, domain.StepCompleted, "")
	}

	// Text extraction.
	switch {
	case req.DocumentImage == "":
		st.step(StepOCR, domain.StepSkipped, "no document image")
	case !o.ocr.Available():
		st.step(StepOCR, domain.StepSkipped, errOCRUnavailable.Error())
	case docErr != nil:
		st.step(StepOCR, domain.StepFailed, docErr.Error())
	default:
		ext := o.extractText(ctx, doc)
		if !ext.Success {
			st.step(StepOCR, domain.StepFailed, ext.Error)
			break
		}
		st.fields = ext.Fields
		if req.DocumentNumber != "" {
			st.checks.InformationMatch = InformationMatches(req.DocumentNumber, ext.Fields[domain.FieldDocumentNumber])
			if !st.checks.InformationMatch {
				st.recommend(RecVerifyInformation)
			}
		}
		st.step(StepOCR, domain.StepCompleted, "")
	}

	// Face matching.
	if req.DocumentImage == "" || req.FaceImage == "" {
		st.recommend(RecUploadBothImages)
		st.step(StepFace, domain.StepSkipped, "document and face images required")
	} else {
		match := o.faceStep(ctx, doc, docErr, req.FaceImage)
		st.checks.FaceMatch = match.Matched
		if match.Success {
			st.push(match.Score)
			st.step(StepFace, domain.StepCompleted, "")
		} else {
			st.step(StepFace, domain.StepFailed, match.Error)
		}
		if !match.Matched {
			st.recommend(RecClearFace)
		}
	}

	score := st.mean()
	verified := score >= VerifiedScore && st.checks.DocumentValid && st.checks.FaceMatch

	span.SetAttributes(
		attribute.Bool("verified", verified),
		attribute.Float64("kyc.score", score),
	)
	metrics.VerificationsTotal.WithLabelValues(strconv.FormatBool(verified)).Inc()

	return domain.VerificationResult{
		UserID:          req.UserID,
		Verified:        verified,
		Score:           score,
		Checks:          st.checks,
		Recommendations: st.recommendations,
		ExtractedFields: st.fields,
		Steps:           st.steps,
	}
}

func (o *Orchestrator) faceStep(ctx context.Context, doc image.Image, docErr error, faceImage string) domain.FaceMatch {
	if docErr != nil {
		return domain.FaceMatch{Error: docErr.Error()}
	}
	face, err := DecodeImage(faceImage)
	if err != nil {
		return domain.FaceMatch{Error: err.Error()}
	}
	return o.matchFace(ctx, doc, face)
}

// state is the request-local record of a verification.
type state struct {
	checks          domain.VerificationChecks
	scores          []float64
	recommendations []string
	fields          map[string]string
	steps           []domain.StepOutcome
}

func (s *state) push(score float64) {
	s.scores = append(s.scores, score)
}

func (s *state) recommend(r string) {
	s.recommendations = append(s.recommendations, r)
}

func (s *state) step(name string, status domain.StepStatus, detail string) {
	s.steps = append(s.steps, domain.StepOutcome{Step: name, Status: status, Detail: detail})
}

func (s *state) mean() float64 {
	if len(s.scores) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.scores {
		sum += v
	}
	return roundScore(sum / float64(len(s.scores)))
}
