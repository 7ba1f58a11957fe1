package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/project-intake/pkg/logging"
)

// ClientKeyHeader carries the browser's stable draft key.
const ClientKeyHeader = "X-Intake-Client"

const (
	maxMultipartMemory = 32 << 20
	maxFilesPerRequest = 10
	// maxUploadRequestBytes admits maxFilesPerRequest files at the policy
	// limit plus form overhead, so oversize files still get a policy message.
	maxUploadRequestBytes = maxFilesPerRequest*MaxAttachmentBytes + 1<<20
)

// Handler exposes intake sessions over HTTP.
type Handler struct {
	registry    *Registry
	coordinator *Coordinator
	validate    *validator.Validate
	logger      *logging.Logger

	maxUploadBytes int64
}

// NewHandler creates an intake handler.
func NewHandler(registry *Registry, coordinator *Coordinator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		registry:    registry,
		coordinator: coordinator,
		validate:    validator.New(),
		logger:      logger,

		maxUploadBytes: maxUploadRequestBytes,
	}
}

type openSessionRequest struct {
	ClientKey string `json:"client_key" validate:"omitempty,max=128"`
}

type fieldRequest struct {
	Value string `json:"value" validate:"max=10000"`
}

type serviceRequest struct {
	Service string `json:"service" validate:"required"`
}

type attachmentMeta struct {
	Name         string `json:"name" validate:"required,max=255"`
	Size         int64  `json:"size" validate:"gte=0"`
	Type         string `json:"type"`
	LastModified int64  `json:"lastModified"`
}

type attachmentsRequest struct {
	Files []attachmentMeta `json:"files" validate:"required,min=1,dive"`
}

type attachmentsResponse struct {
	Accepted []Attachment `json:"accepted"`
	Rejected []rejection  `json:"rejected"`
	Session  View         `json:"session"`
}

type rejection struct {
	Name    string `json:"name"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type validationResponse struct {
	Error   string           `json:"error"`
	Fields  map[Field]string `json:"fields"`
	Session View             `json:"session"`
}

// Routes returns the /intake sub-router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/catalog", h.GetCatalog)
	r.Get("/suggestions", h.GetSuggestions)
	r.Post("/sessions", h.OpenSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.CloseSession)
		r.Put("/fields/{field}", h.SetField)
		r.Post("/fields/{field}/focus", h.FocusField)
		r.Post("/fields/{field}/blur", h.BlurField)
		r.Post("/fields/{field}/suggestions/select", h.SelectSuggestion)
		r.Put("/service", h.SelectService)
		r.Post("/next", h.Next)
		r.Post("/back", h.Back)
		r.Post("/attachments", h.AddAttachments)
		r.Delete("/attachments/{attachmentID}", h.RemoveAttachment)
		r.Get("/progress", h.StreamProgress)
		r.Delete("/draft", h.ClearDraft)
		r.Post("/submit", h.Submit)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return h.validate.Struct(dst)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return s, true
}

func fieldParam(w http.ResponseWriter, r *http.Request) (Field, bool) {
	f, ok := ParseField(chi.URLParam(r, "field"))
	if !ok {
		http.Error(w, "unknown field", http.StatusBadRequest)
		return "", false
	}
	return f, true
}

// GetCatalog handles GET /intake/catalog.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.cfg.Catalog)
}

// GetSuggestions handles GET /intake/suggestions?field=&q=.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	f, ok := ParseField(r.URL.Query().Get("field"))
	if !ok {
		http.Error(w, "unknown field", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"field": f,
		"items": h.registry.cfg.Catalog.Suggest(f, r.URL.Query().Get("q")),
	})
}

// OpenSession handles POST /intake/sessions.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := h.decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	key := strings.TrimSpace(req.ClientKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get(ClientKeyHeader))
	}
	s, restored := h.registry.Open(r.Context(), key)
	h.logger.Debug("session opened over http", "session_id", s.ID(), "restored", restored)
	writeJSON(w, http.StatusCreated, s.View())
}

// GetSession handles GET /intake/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// CloseSession handles DELETE /intake/sessions/{sessionID}.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	h.registry.Close(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// SetField handles PUT /intake/sessions/{sessionID}/fields/{field}.
func (h *Handler) SetField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	f, ok := fieldParam(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if err := h.decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.SetField(f, req.Value); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// FocusField handles POST /intake/sessions/{sessionID}/fields/{field}/focus.
func (h *Handler) FocusField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	f, ok := fieldParam(w, r)
	if !ok {
		return
	}
	_ = s.Focus(f)
	writeJSON(w, http.StatusOK, s.View())
}

// BlurField handles POST /intake/sessions/{sessionID}/fields/{field}/blur.
func (h *Handler) BlurField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	f, ok := fieldParam(w, r)
	if !ok {
		return
	}
	_ = s.Blur(f)
	writeJSON(w, http.StatusOK, s.View())
}

// SelectSuggestion handles POST .../fields/{field}/suggestions/select.
func (h *Handler) SelectSuggestion(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	f, ok := fieldParam(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if err := h.decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	_ = s.SelectSuggestion(f, req.Value)
	writeJSON(w, http.StatusOK, s.View())
}

// SelectService handles PUT /intake/sessions/{sessionID}/service.
func (h *Handler) SelectService(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req serviceRequest
	if err := h.decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.SelectService(req.Service); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// Next handles POST /intake/sessions/{sessionID}/next.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := s.Next(); err != nil {
		h.writeValidation(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// Back handles POST /intake/sessions/{sessionID}/back.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Back()
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) writeValidation(w http.ResponseWriter, s *Session, err error) {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
		Error:   ve.Error(),
		Fields:  ve.Fields,
		Session: s.View(),
	})
}

// AddAttachments handles POST /intake/sessions/{sessionID}/attachments.
// It accepts multipart uploads (field "files") or a JSON list of file
// metadata.
func (h *Handler) AddAttachments(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var files []FileInfo
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		parsed, err := h.readMultipart(r)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("upload request too large", "session_id", s.ID(), "limit", tooLarge.Limit)
			http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		if err != nil {
			h.logger.Error("failed to read upload", "session_id", s.ID(), "error", err)
			http.Error(w, "Invalid upload", http.StatusBadRequest)
			return
		}
		files = parsed
	} else {
		var req attachmentsRequest
		if err := h.decode(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		for _, m := range req.Files {
			files = append(files, FileInfo{Name: m.Name, SizeBytes: m.Size, MIMEType: m.Type, LastModified: m.LastModified})
		}
	}

	accepted, rejected := s.AddAttachments(files)
	resp := attachmentsResponse{
		Accepted: accepted,
		Rejected: make([]rejection, 0, len(rejected)),
	}
	if resp.Accepted == nil {
		resp.Accepted = []Attachment{}
	}
	for _, pe := range rejected {
		resp.Rejected = append(resp.Rejected, rejection{Name: pe.Name, Reason: pe.Reason, Message: pe.Message})
	}
	resp.Session = s.View()
	writeJSON(w, http.StatusOK, resp)
}

// readMultipart loads accepted-size files into memory; the request's temp
// files are gone once the handler returns but uploads continue after.
func (h *Handler) readMultipart(r *http.Request) ([]FileInfo, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, err
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var files []FileInfo
	for _, fh := range r.MultipartForm.File["files"] {
		info := FileInfo{
			Name:      fh.Filename,
			SizeBytes: fh.Size,
			MIMEType:  fh.Header.Get("Content-Type"),
		}
		if CheckAttachment(info) == nil {
			content, err := readPart(fh)
			if err != nil {
				return nil, err
			}
			info.Content = bytes.NewReader(content)
		}
		files = append(files, info)
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxAttachmentBytes+1))
}

// RemoveAttachment handles DELETE .../attachments/{attachmentID}.
func (h *Handler) RemoveAttachment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RemoveAttachment(chi.URLParam(r, "attachmentID")); err != nil {
		http.Error(w, "attachment not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// ClearDraft handles DELETE /intake/sessions/{sessionID}/draft.
func (h *Handler) ClearDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.ClearSaved(r.Context()); err != nil {
		h.logger.Warn("clear saved draft failed", "session_id", s.ID(), "error", err)
	}
	writeJSON(w, http.StatusOK, s.View())
}

// Submit handles POST /intake/sessions/{sessionID}/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	// Dispatches outlive a dropped client connection.
	ctx := context.WithoutCancel(r.Context())
	result, err := h.coordinator.Submit(ctx, s)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrNotFinalStep), errors.Is(err, ErrSubmissionInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.writeValidation(w, s, err)
	}
}
