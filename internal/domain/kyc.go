package domain

// VerificationRequest carries the inputs of a KYC verification.
// Images are base64 encoded; every field except UserID is optional.
type VerificationRequest struct {
	UserID         string `json:"userId" validate:"required"`
	DocumentType   string `json:"documentType,omitempty"`
	DocumentNumber string `json:"documentNumber,omitempty"`
	DocumentImage  string `json:"documentImage,omitempty"`
	FaceImage      string `json:"faceImage,omitempty"`
}

// VerificationChecks are the individual KYC outcomes.
type VerificationChecks struct {
	DocumentValid    bool `json:"documentValid"`
	FaceMatch        bool `json:"faceMatch"`
	InformationMatch bool `json:"informationMatch"`
}

// VerificationResult is the aggregate KYC verdict.
type VerificationResult struct {
	UserID          string             `json:"userId,omitempty"`
	Verified        bool               `json:"verified"`
	Score           float64            `json:"score"`
	Checks          VerificationChecks `json:"checks"`
	Recommendations []string           `json:"recommendations"`
	ExtractedFields map[string]string  `json:"extractedFields"`
	Steps           []StepOutcome      `json:"steps"`
}

// StepStatus describes how a KYC step ended.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// StepOutcome is the trace entry of one KYC step.
type StepOutcome struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// DocumentCheck is the result of document validation.
type DocumentCheck struct {
	Success      bool        `json:"success"`
	Valid        bool        `json:"valid"`
	Score        float64     `json:"score"`
	DocumentType string      `json:"documentType,omitempty"`
	Source       ScoreSource `json:"source,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// TextExtraction is the result of OCR over a document image.
type TextExtraction struct {
	Success    bool              `json:"success"`
	Fields     map[string]string `json:"extractedText"`
	Confidence float64           `json:"confidence,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// FaceMatch is the result of comparing the document face with a selfie.
type FaceMatch struct {
	Success   bool    `json:"success"`
	Matched   bool    `json:"matched"`
	Score     float64 `json:"score"`
	Distance  float64 `json:"distance,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Extracted document field keys.
const (
	FieldRawText        = "rawText"
	FieldDocumentNumber = "documentNumber"
	FieldName           = "name"
	FieldDateOfBirth    = "dateOfBirth"
	FieldExpiryDate     = "expiryDate"
)
