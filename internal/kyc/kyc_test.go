package kyc

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/quantra/internal/domain"
)

type stubValidator struct {
	p   float64
	err error
}

func (v stubValidator) ValidateDocument(context.Context, image.Image) (float64, error) {
	return v.p, v.err
}

type stubOCR struct {
	text string
	err  error
}

func (o stubOCR) ExtractText(context.Context, *image.Gray) (string, error) {
	return o.text, o.err
}

type stubFaces struct {
	distance float64
	noFaces  bool
}

func (f stubFaces) LocateFaces(context.Context, image.Image) ([]image.Rectangle, error) {
	if f.noFaces {
		return nil, nil
	}
	return []image.Rectangle{image.Rect(0, 0, 4, 4)}, nil
}

func (f stubFaces) EncodeFace(context.Context, image.Image, image.Rectangle) (domain.Embedding, error) {
	return domain.Embedding{1, 2, 3}, nil
}

func (f stubFaces) Distance(domain.Embedding, domain.Embedding) float64 {
	return f.distance
}

func encodePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func checkerboard(t *testing.T) string {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return encodePNG(t, img)
}

func flat(t *testing.T) string {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	return encodePNG(t, img)
}

func TestVerifyNoImages(t *testing.T) {
	o := New(domain.Absent[domain.DocumentValidator](), domain.Absent[domain.TextExtractor](), domain.Absent[domain.FaceMatcher]())
	res := o.Verify(context.Background(), domain.VerificationRequest{UserID: "u1", DocumentType: "passport"})

	assert.False(t, res.Verified)
	assert.Equal(t, 0.0, res.Score)
	assert.False(t, res.Checks.DocumentValid)
	assert.False(t, res.Checks.FaceMatch)
	assert.Equal(t, []string{RecUploadDocument, RecUploadBothImages}, res.Recommendations)
	assert.Empty(t, res.ExtractedFields)

	require.Len(t, res.Steps, 3)
	for _, s := range res.Steps {
		assert.Equal(t, domain.StepSkipped, s.Status)
	}
}

func TestVerifyAggregation(t *testing.T) {
	ctx := context.Background()
	doc, face := checkerboard(t), checkerboard(t)

	t.Run("ValidDocumentAndMatchedFace", func(t *testing.T) {
		o := New(
			domain.Present[domain.DocumentValidator](stubValidator{p: 0.9}),
			domain.Absent[domain.TextExtractor](),
			domain.Present[domain.FaceMatcher](stubFaces{distance: 0.3}),
		)
		res := o.Verify(ctx, domain.VerificationRequest{UserID: "u1", DocumentImage: doc, FaceImage: face})

		assert.Equal(t, 80.0, res.Score)
		assert.True(t, res.Verified)
		assert.True(t, res.Checks.DocumentValid)
		assert.True(t, res.Checks.FaceMatch)
		assert.Empty(t, res.Recommendations)
		assert.Equal(t, []domain.StepOutcome{
			{Step: StepDocument, Status: domain.StepCompleted},
			{Step: StepOCR, Status: domain.StepSkipped, Detail: "OCR not available"},
			{Step: StepFace, Status: domain.StepCompleted},
		}, res.Steps)
	})

	t.Run("HighAverageCannotCompensate", func(t *testing.T) {
		o := New(
			domain.Present[domain.DocumentValidator](stubValidator{p: 0.79}),
			domain.Absent[domain.TextExtractor](),
			domain.Present[domain.FaceMatcher](stubFaces{distance: 0}),
		)
		res := o.Verify(ctx, domain.VerificationRequest{UserID: "u1", DocumentImage: doc, FaceImage: face})
		assert.InDelta(t, 89.5, res.Score, 1e-9)
		assert.False(t, res.Verified)
		assert.Equal(t, []string{RecValidDocument}, res.Recommendations)
	})

	t.Run("ValidatorFailureUsesSharpness", func(t *testing.T) {
		o := New(
			domain.Present[domain.DocumentValidator](stubValidator{err: errors.New("boom")}),
			domain.Absent[domain.TextExtractor](),
			domain.Absent[domain.FaceMatcher](),
		)
		check := o.VerifyDocument(ctx, doc, "passport")
		assert.True(t, check.Success)
		assert.Equal(t, 100.0, check.Score)
		assert.Equal(t, domain.SourceRules, check.Source)
	})

	t.Run("MissingFaceImage", func(t *testing.T) {
		o := New(
			domain.Present[domain.DocumentValidator](stubValidator{p: 0.95}),
			domain.Absent[domain.TextExtractor](),
			domain.Present[domain.FaceMatcher](stubFaces{distance: 0.1}),
		)
		res := o.Verify(ctx, domain.VerificationRequest{UserID: "u1", DocumentImage: doc})
		assert.Equal(t, 95.0, res.Score)
		assert.False(t, res.Verified)
		assert.Equal(t, []string{RecUploadBothImages}, res.Recommendations)
	})

	t.Run("UndecodableDocument", func(t *testing.T) {
		o := New(
			domain.Absent[domain.DocumentValidator](),
			domain.Present[domain.TextExtractor](stubOCR{text: "x"}),
			domain.Present[domain.FaceMatcher](stubFaces{distance: 0.1}),
		)
		res := o.Verify(ctx, domain.VerificationRequest{UserID: "u1", DocumentImage: "not an image", FaceImage: face})
		assert.Equal(t, 0.0, res.Score)
		assert.False(t, res.Verified)
		assert.Equal(t, []string{RecValidDocument, RecClearFace}, res.Recommendations)
		require.Len(t, res.Steps, 3)
		for _, s := range res.Steps {
			assert.Equal(t, domain.StepFailed, s.Status)
		}
	})
}

func TestVerifyInformationMatch(t *testing.T) {
	ctx := context.Background()
	doc, face := checkerboard(t), checkerboard(t)
	o := New(
		domain.Present[domain.DocumentValidator](stubValidator{p: 0.9}),
		domain.Present[domain.TextExtractor](stubOCR{text: "JOHN DOE\nP1234567\n01/02/1990 01/02/2030"}),
		domain.Present[domain.FaceMatcher](stubFaces{distance: 0.3}),
	)

	t.Run("Matches", func(t *testing.T) {
		res := o.Verify(ctx, domain.VerificationRequest{UserID: "u1", DocumentNumber: "p1234567", DocumentImage: doc, FaceImage: face})
		assert.True(t, res.Checks.InformationMatch)
		assert.Equal(t, "P1234567", res.ExtractedFields[domain.FieldDocumentNumber])
		assert.Equal(t, "JOHN DOE", res.ExtractedFields[domain.FieldName])
		assert.Empty(t, res.Recommendations)
	})

	t.Run("MismatchIsAdvisory", func(t *testing.T) {
		res := o.Verify(ctx, domain.VerificationRequest{UserID: "u1", DocumentNumber: "X999", DocumentImage: doc, FaceImage: face})
		assert.False(t, res.Checks.InformationMatch)
		assert.True(t, res.Verified)
		assert.Equal(t, []string{RecVerifyInformation}, res.Recommendations)
	})
}

func TestMatchFace(t *testing.T) {
	ctx := context.Background()
	img := checkerboard(t)

	t.Run("ThresholdIsStrict", func(t *testing.T) {
		o := New(domain.Absent[domain.DocumentValidator](), domain.Absent[domain.TextExtractor](), domain.Present[domain.FaceMatcher](stubFaces{distance: 0.6}))
		m := o.MatchFace(ctx, img, img)
		assert.True(t, m.Success)
		assert.False(t, m.Matched)
		assert.Equal(t, 40.0, m.Score)
		assert.Equal(t, FaceMatchThreshold, m.Threshold)
	})

	t.Run("ScoreFloorsAtZero", func(t *testing.T) {
		o := New(domain.Absent[domain.DocumentValidator](), domain.Absent[domain.TextExtractor](), domain.Present[domain.FaceMatcher](stubFaces{distance: 1.4}))
		m := o.MatchFace(ctx, img, img)
		assert.Equal(t, 0.0, m.Score)
	})

	t.Run("NoFaceDetected", func(t *testing.T) {
		o := New(
			domain.Present[domain.DocumentValidator](stubValidator{p: 0.9}),
			domain.Absent[domain.TextExtractor](),
			domain.Present[domain.FaceMatcher](stubFaces{noFaces: true}),
		)
		m := o.MatchFace(ctx, img, img)
		assert.False(t, m.Success)
		assert.NotEmpty(t, m.Error)

		res := o.Verify(ctx, domain.VerificationRequest{UserID: "u1", DocumentImage: img, FaceImage: img})
		assert.Equal(t, 90.0, res.Score)
		assert.False(t, res.Verified)
		assert.Equal(t, []string{RecClearFace}, res.Recommendations)
	})

	t.Run("Unavailable", func(t *testing.T) {
		o := New(domain.Absent[domain.DocumentValidator](), domain.Absent[domain.TextExtractor](), domain.Absent[domain.FaceMatcher]())
		m := o.MatchFace(ctx, img, img)
		assert.False(t, m.Success)
		assert.False(t, m.Matched)
	})
}

func TestDocumentSharpness(t *testing.T) {
	ctx := context.Background()
	o := New(domain.Absent[domain.DocumentValidator](), domain.Absent[domain.TextExtractor](), domain.Absent[domain.FaceMatcher]())

	sharp := o.VerifyDocument(ctx, checkerboard(t), "id")
	assert.True(t, sharp.Valid)
	assert.Equal(t, 100.0, sharp.Score)
	assert.Equal(t, "id", sharp.DocumentType)

	blurry := o.VerifyDocument(ctx, flat(t), "id")
	assert.True(t, blurry.Success)
	assert.False(t, blurry.Valid)
	assert.Equal(t, 0.0, blurry.Score)
}

func TestExtractText(t *testing.T) {
	ctx := context.Background()

	t.Run("Unavailable", func(t *testing.T) {
		o := New(domain.Absent[domain.DocumentValidator](), domain.Absent[domain.TextExtractor](), domain.Absent[domain.FaceMatcher]())
		ext := o.ExtractText(ctx, checkerboard(t))
		assert.False(t, ext.Success)
		assert.Equal(t, "OCR not available", ext.Error)
		assert.NotNil(t, ext.Fields)
	})

	t.Run("Fields", func(t *testing.T) {
		o := New(domain.Absent[domain.DocumentValidator](), domain.Present[domain.TextExtractor](stubOCR{text: "ID CARD\nAB123456\n02/01/1990"}), domain.Absent[domain.FaceMatcher]())
		ext := o.ExtractText(ctx, checkerboard(t))
		require.True(t, ext.Success)
		assert.Equal(t, OCRConfidence, ext.Confidence)
		assert.Equal(t, "AB123456", ext.Fields[domain.FieldDocumentNumber])
		assert.Equal(t, "ID CARD", ext.Fields[domain.FieldName])
		assert.Equal(t, "02/01/1990", ext.Fields[domain.FieldDateOfBirth])
	})
}

func TestParseFields(t *testing.T) {
	fields := ParseFields("PASSPORT\nJANE Q PUBLIC\nNo 123456789012\nDOB 01/02/1990\nEXP 03/04/2031")
	assert.Equal(t, "123456789012", fields[domain.FieldDocumentNumber])
	assert.Equal(t, "JANE Q PUBLIC", fields[domain.FieldName])
	assert.Equal(t, "01/02/1990", fields[domain.FieldDateOfBirth])
	assert.Equal(t, "03/04/2031", fields[domain.FieldExpiryDate])

	empty := ParseFields("")
	assert.Equal(t, map[string]string{domain.FieldRawText: ""}, empty)
}

func TestDecodeImage(t *testing.T) {
	raw := checkerboard(t)

	img, err := DecodeImage("data:image/png;base64," + raw)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())

	_, err = DecodeImage("!!!")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = DecodeImage(base64.StdEncoding.EncodeToString([]byte("plain text")))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestInformationMatches(t *testing.T) {
	assert.True(t, InformationMatches("ab12", "XAB123"))
	assert.False(t, InformationMatches("ab99", "XAB123"))
}
