package api

import (
	"net/http"

	"github.com/opensource-finance/quantra/internal/domain"
)

// DocumentRequest is the body of POST /kyc/document and POST /kyc/ocr.
type DocumentRequest struct {
	DocumentImage string `json:"documentImage" validate:"required"`
	DocumentType  string `json:"documentType,omitempty"`
}

// FaceMatchRequest is the body of POST /kyc/face-match.
type FaceMatchRequest struct {
	DocumentImage string `json:"documentImage" validate:"required"`
	FaceImage     string `json:"faceImage" validate:"required"`
}

// VerifyKYC handles POST /kyc/verify.
func (h *Handler) VerifyKYC(w http.ResponseWriter, r *http.Request) {
	var req domain.VerificationRequest
	if !h.decode(w, r, &req) {
		return
	}

	result := h.svc.KYC.Verify(r.Context(), req)

	h.record(w, r, &domain.Assessment{
		Kind:      domain.KindVerification,
		SubjectID: req.UserID,
		Score:     result.Score,
		Flagged:   !result.Verified,
	}, result)

	writeJSON(w, http.StatusOK, result)
}

// VerifyDocument handles POST /kyc/document.
func (h *Handler) VerifyDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.KYC.VerifyDocument(r.Context(), req.DocumentImage, req.DocumentType))
}

// ExtractText handles POST /kyc/ocr.
func (h *Handler) ExtractText(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.KYC.ExtractText(r.Context(), req.DocumentImage))
}

// MatchFace handles POST /kyc/face-match.
func (h *Handler) MatchFace(w http.ResponseWriter, r *http.Request) {
	var req FaceMatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.KYC.MatchFace(r.Context(), req.DocumentImage, req.FaceImage))
}
