package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remiblancher/certwizard/internal/api/dto"
	apierrors "github.com/remiblancher/certwizard/internal/api/errors"
	"github.com/remiblancher/certwizard/internal/api/service"
)

// AlgorithmHandler serves the capability registry and the extension
// validator.
type AlgorithmHandler struct {
	service *service.SessionService
}

// NewAlgorithmHandler creates a new AlgorithmHandler.
func NewAlgorithmHandler(s *service.SessionService) *AlgorithmHandler {
	return &AlgorithmHandler{service: s}
}

// List handles GET /api/v1/algorithms
func (h *AlgorithmHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.Algorithms(r.Context()))
}

// Get handles GET /api/v1/algorithms/{name}
func (h *AlgorithmHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	resp, err := h.service.Algorithm(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusNotFound, apierrors.NewNotFound("Algorithm", name))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ValidateExtension handles POST /api/v1/extensions/validate
func (h *AlgorithmHandler) ValidateExtension(w http.ResponseWriter, r *http.Request) {
	var req dto.ExtensionValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.ValidateExtension(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
