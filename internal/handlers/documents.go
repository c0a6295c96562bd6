package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"minerva-backend/internal/middleware"
	"minerva-backend/internal/models"
	"minerva-backend/internal/rag"
)

const maxDocumentBytes = 20 << 20 // 20MB upload cap

type documentRepository interface {
	Create(ctx context.Context, d *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Document, error)
}

type jobRepository interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type documentEngine interface {
	Supported(fileName string) bool
	Answer(ctx context.Context, ownerID uuid.UUID, query string, topK int) (*models.RagAnswer, error)
}

type fileUploader interface {
	Upload(data []byte, suggestedName string) (string, error)
}

type videoResolver interface {
	GetTitle(videoID string) (string, error)
}

type DocumentHandler struct {
	docRepo documentRepository
	jobRepo jobRepository
	engine  documentEngine
	files   fileUploader
	youtube videoResolver
	enqueue func(ctx context.Context, job *models.Job) error
}

func NewDocumentHandler(
	docRepo documentRepository,
	jobRepo jobRepository,
	engine documentEngine,
	files fileUploader,
	youtube videoResolver,
	enqueue func(ctx context.Context, job *models.Job) error,
) *DocumentHandler {
	return &DocumentHandler{
		docRepo: docRepo,
		jobRepo: jobRepo,
		engine:  engine,
		files:   files,
		youtube: youtube,
		enqueue: enqueue,
	}
}

// Upload accepts a document file, stores it, and queues ingestion into the
// caller's vector namespace. Indexing happens asynchronously; the response
// carries the job to watch.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart form", r))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "A file is required", r))
		return
	}
	defer file.Close()

	if !h.engine.Supported(header.Filename) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unsupported file type. Supported: .txt, .pdf, .docx", r))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read upload", r))
		return
	}
	if len(data) > maxDocumentBytes {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "File exceeds the 20MB limit", r))
		return
	}

	fileURL, err := h.files.Upload(data, header.Filename)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store upload", r))
		return
	}

	doc := &models.Document{
		ID:         uuid.New(),
		UserID:     userID,
		SourceType: "file",
		FileName:   header.Filename,
		Status:     "pending",
	}
	if err := h.docRepo.Create(r.Context(), doc); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create document", r))
		return
	}

	job, err := h.queueIngestion(r.Context(), userID, doc.ID, models.IngestionJobConfig{
		FilePath: path.Base(fileURL),
		FileName: header.Filename,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue ingestion", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"document": doc,
		"job_id":   job.ID,
	})
}

// IngestYouTube queues transcript ingestion for a YouTube video.
func (h *DocumentHandler) IngestYouTube(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.IngestYouTubeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	videoID := parseVideoID(req.URL)
	if videoID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid YouTube URL", r))
		return
	}

	// Title lookup is best-effort; ingestion proceeds under a placeholder
	// name when metadata is unavailable.
	title, err := h.youtube.GetTitle(videoID)
	if err != nil || title == "" {
		title = "YouTube video " + videoID
	}

	doc := &models.Document{
		ID:         uuid.New(),
		UserID:     userID,
		SourceType: "youtube",
		FileName:   title,
		SourceURL:  &req.URL,
		Status:     "pending",
	}
	if err := h.docRepo.Create(r.Context(), doc); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create document", r))
		return
	}

	job, err := h.queueIngestion(r.Context(), userID, doc.ID, models.IngestionJobConfig{
		FileName: title,
		VideoID:  videoID,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue ingestion", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"document": doc,
		"job_id":   job.ID,
	})
}

func (h *DocumentHandler) queueIngestion(ctx context.Context, userID, documentID uuid.UUID, cfg models.IngestionJobConfig) (*models.Job, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        "document-ingestion",
		ReferenceID: documentID,
		ConfigJSON:  cfgJSON,
		Status:      "pending",
	}
	if err := h.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := h.enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	docs, err := h.docRepo.ListByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list documents", r))
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid document ID", r))
		return
	}

	doc, err := h.docRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Document not found", r))
		return
	}
	if doc.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// Query answers a question against the caller's indexed documents.
func (h *DocumentHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.QueryDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	answer, err := h.engine.Answer(r.Context(), userID, req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Query is required", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("AI_ERROR", "Failed to answer the query", r))
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

var bareVideoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// parseVideoID accepts watch, short-link, shorts, and embed URL forms, plus
// a bare 11-character video id.
func parseVideoID(raw string) string {
	raw = strings.TrimSpace(raw)
	if bareVideoIDPattern.MatchString(raw) {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	switch host {
	case "youtu.be":
		id := strings.TrimPrefix(u.Path, "/")
		if bareVideoIDPattern.MatchString(id) {
			return id
		}
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); bareVideoIDPattern.MatchString(id) {
			return id
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id := strings.TrimPrefix(u.Path, prefix)
				id = strings.SplitN(id, "/", 2)[0]
				if bareVideoIDPattern.MatchString(id) {
					return id
				}
			}
		}
	}
	return ""
}
