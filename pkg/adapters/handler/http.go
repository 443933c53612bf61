package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

type HTTPHandler struct {
	service ports.LinkService
	log     logging.Logger
}

func NewHTTPHandler(service ports.LinkService, log logging.Logger) *HTTPHandler {
	return &HTTPHandler{service: service, log: log}
}

// CreateLinkRequest payload
type CreateLinkRequest struct {
	TargetURL string `json:"target_url"`
	Title     string `json:"title"`
	Slug      string `json:"slug,omitempty"`
	Flow      string `json:"flow,omitempty"`
}

// SetCredentialRequest payload
type SetCredentialRequest struct {
	APIKey string `json:"api_key"`
}

// Create Link
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, h.log, domain.ErrInvalidInput)
		return
	}

	link, err := h.service.CreateLink(r.Context(), owner(r), req.Slug, req.TargetURL, req.Title, req.Flow)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// List Links
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	links, count, err := h.service.ListLinks(r.Context(), owner(r), page, limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  links,
		"total": count,
		"page":  page,
		"limit": limit,
	})
}

// Get Stats for a Link
func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, r, h.log, domain.ErrInvalidInput)
		return
	}

	stats, err := h.service.GetLinkStats(r.Context(), owner(r), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.service.ListCredentials(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": creds})
}

func (h *HTTPHandler) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req SetCredentialRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, h.log, domain.ErrInvalidInput)
		return
	}
	if err := h.service.SetCredential(r.Context(), owner(r), r.PathValue("provider"), req.APIKey); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owner is set by AuthMiddleware on every /api/v1 route.
func owner(r *http.Request) string {
	if u := userFromContext(r.Context()); u != nil {
		return u.Email
	}
	return ""
}
