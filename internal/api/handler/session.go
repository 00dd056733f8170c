package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/remiblancher/certwizard/internal/api/dto"
	apierrors "github.com/remiblancher/certwizard/internal/api/errors"
	"github.com/remiblancher/certwizard/internal/api/service"
)

// maxDraftSize bounds uploaded drafts.
const maxDraftSize = 1 << 20

// CBORContentType is the media type of saved drafts.
const CBORContentType = "application/cbor"

// SessionHandler handles request session endpoints.
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(s *service.SessionService) *SessionHandler {
	return &SessionHandler{service: s}
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.SessionCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.KeyPairAlgorithm == "" {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("keypair_algorithm is required"))
		return
	}

	resp, err := h.service.Create(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, resp, err)
}

// SetIssuer handles PUT /api/v1/sessions/{id}/issuer
func (h *SessionHandler) SetIssuer(w http.ResponseWriter, r *http.Request) {
	var name dto.SubjectInfo
	if !decodeJSON(w, r, &name) {
		return
	}
	resp, err := h.service.SetIssuer(r.Context(), chi.URLParam(r, "id"), name)
	h.respond(w, resp, err)
}

// SetSubject handles PUT /api/v1/sessions/{id}/subject
func (h *SessionHandler) SetSubject(w http.ResponseWriter, r *http.Request) {
	var name dto.SubjectInfo
	if !decodeJSON(w, r, &name) {
		return
	}
	resp, err := h.service.SetSubject(r.Context(), chi.URLParam(r, "id"), name)
	h.respond(w, resp, err)
}

// SetDates handles PUT /api/v1/sessions/{id}/dates
func (h *SessionHandler) SetDates(w http.ResponseWriter, r *http.Request) {
	var req dto.DatesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.service.SetDates(r.Context(), chi.URLParam(r, "id"), &req)
	h.respond(w, resp, err)
}

// AddExtension handles POST /api/v1/sessions/{id}/extensions
func (h *SessionHandler) AddExtension(w http.ResponseWriter, r *http.Request) {
	var ext dto.ExtensionInfo
	if !decodeJSON(w, r, &ext) {
		return
	}
	resp, err := h.service.AddExtension(r.Context(), chi.URLParam(r, "id"), ext)
	h.respond(w, resp, err)
}

// EditExtension handles PUT /api/v1/sessions/{id}/extensions/{index}
func (h *SessionHandler) EditExtension(w http.ResponseWriter, r *http.Request) {
	index, ok := extensionIndex(w, r)
	if !ok {
		return
	}
	var ext dto.ExtensionInfo
	if !decodeJSON(w, r, &ext) {
		return
	}
	resp, err := h.service.EditExtension(r.Context(), chi.URLParam(r, "id"), index, ext)
	h.respond(w, resp, err)
}

// RemoveExtension handles DELETE /api/v1/sessions/{id}/extensions/{index}
func (h *SessionHandler) RemoveExtension(w http.ResponseWriter, r *http.Request) {
	index, ok := extensionIndex(w, r)
	if !ok {
		return
	}
	resp, err := h.service.RemoveExtension(r.Context(), chi.URLParam(r, "id"), index)
	h.respond(w, resp, err)
}

// Advance handles POST /api/v1/sessions/{id}/advance
func (h *SessionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Advance(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, resp, err)
}

// Retreat handles POST /api/v1/sessions/{id}/retreat
func (h *SessionHandler) Retreat(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Retreat(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, resp, err)
}

// Cancel handles POST /api/v1/sessions/{id}/cancel and DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, resp, err)
}

// Finish handles POST /api/v1/sessions/{id}/finish
func (h *SessionHandler) Finish(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Finish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// SaveDraft handles GET /api/v1/sessions/{id}/draft
func (h *SessionHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.SaveDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", CBORContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ResumeDraft handles POST /api/v1/sessions/draft
func (h *SessionHandler) ResumeDraft(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxDraftSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Failed to read draft"))
		return
	}
	if len(data) == 0 || len(data) > maxDraftSize {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Draft body is empty or too large"))
		return
	}

	resp, err := h.service.ResumeDraft(r.Context(), data)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *SessionHandler) respond(w http.ResponseWriter, resp *dto.SessionResponse, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func extensionIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Extension index must be an integer"))
		return 0, false
	}
	return index, true
}
