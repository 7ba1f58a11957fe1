package submissions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/project-intake/pkg/logging"
)

// Handler serves the admin view of recorded submissions.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new submissions handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// Routes mounts the admin submission endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{submissionID}", h.Get)
	return r
}

// ListResponse is the response for listing submissions
type ListResponse struct {
	Submissions []Submission `json:"submissions"`
	Count       int          `json:"count"`
	Limit       int          `json:"limit"`
}

// List handles GET /admin/submissions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	items, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list submissions", "error", err)
		http.Error(w, "failed to list submissions", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []Submission{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListResponse{Submissions: items, Count: len(items), Limit: limit})
}

// Get handles GET /admin/submissions/{submissionID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")
	s, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			http.Error(w, "submission not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get submission", "id", id, "error", err)
		http.Error(w, "failed to get submission", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
