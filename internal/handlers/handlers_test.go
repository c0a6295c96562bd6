package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"minerva-backend/internal/middleware"
	"minerva-backend/internal/models"
	"minerva-backend/internal/repository"
	"minerva-backend/internal/services"
)

func authedRequest(r *http.Request, userID uuid.UUID) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
	return r.WithContext(ctx)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

// ──── Chat handler ────

type stubTurnProcessor struct {
	resp    *models.TurnResponse
	err     error
	lastReq models.TurnRequest
	voice   *services.VoiceInput
}

func (s *stubTurnProcessor) ProcessTurn(ctx context.Context, userID uuid.UUID, req models.TurnRequest, voice *services.VoiceInput) (*models.TurnResponse, error) {
	s.lastReq = req
	s.voice = voice
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func TestChatHandler_ProcessTurn_JSON(t *testing.T) {
	convID := uuid.New()
	proc := &stubTurnProcessor{resp: &models.TurnResponse{
		Success:        true,
		ConversationID: convID,
		Reply:          "done",
	}}
	h := NewChatHandler(proc)

	body, _ := json.Marshal(models.TurnRequest{Text: "hello", ConversationID: &convID})
	req := httptest.NewRequest("POST", "/api/v1/chat/turns", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.ProcessTurn(rec, authedRequest(req, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp models.TurnResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Reply != "done" || resp.ConversationID != convID {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if proc.voice != nil {
		t.Fatal("JSON turn must not carry voice input")
	}
}

func TestChatHandler_ProcessTurn_InvalidBody(t *testing.T) {
	h := NewChatHandler(&stubTurnProcessor{})

	req := httptest.NewRequest("POST", "/api/v1/chat/turns", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.ProcessTurn(rec, authedRequest(req, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("error code = %s", resp.Error.Code)
	}
}

func TestChatHandler_ProcessTurn_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"text": "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"forbidden", &services.ForbiddenError{Message: "nope"}, http.StatusForbidden, "FORBIDDEN"},
		{"ai failure", &services.AIError{Message: "failed to transcribe the audio"}, http.StatusInternalServerError, "AI_ERROR"},
		{"unexpected", fmt.Errorf("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewChatHandler(&stubTurnProcessor{err: tt.err})

			body, _ := json.Marshal(models.TurnRequest{Text: "hi"})
			req := httptest.NewRequest("POST", "/api/v1/chat/turns", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			h.ProcessTurn(rec, authedRequest(req, uuid.New()))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if resp := decodeError(t, rec); resp.Error.Code != tt.wantCode {
				t.Fatalf("error code = %s, want %s", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestChatHandler_ProcessTurn_Multipart(t *testing.T) {
	agentID := uuid.New()
	proc := &stubTurnProcessor{resp: &models.TurnResponse{Success: true, Reply: "ok"}}
	h := NewChatHandler(proc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("recipient_id", agentID.String())

	part, _ := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="audio"; filename="turn.mp3"`},
		"Content-Type":        {"audio/mpeg"},
	})
	part.Write([]byte("fake audio bytes"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/chat/turns", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.ProcessTurn(rec, authedRequest(req, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if proc.voice == nil {
		t.Fatal("multipart turn must carry voice input")
	}
	if proc.voice.MIMEType != "audio/mpeg" {
		t.Fatalf("voice mime = %q", proc.voice.MIMEType)
	}
	if proc.lastReq.RecipientID == nil || *proc.lastReq.RecipientID != agentID {
		t.Fatal("recipient_id form field not parsed")
	}
}

// ──── Document handler ────

type stubDocRepo struct {
	docs    map[uuid.UUID]*models.Document
	created []*models.Document
}

func newStubDocRepo() *stubDocRepo {
	return &stubDocRepo{docs: make(map[uuid.UUID]*models.Document)}
}

func (s *stubDocRepo) Create(ctx context.Context, d *models.Document) error {
	s.created = append(s.created, d)
	s.docs[d.ID] = d
	return nil
}

func (s *stubDocRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return d, nil
}

func (s *stubDocRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Document, error) {
	var out []*models.Document
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

type stubJobRepo struct {
	jobs    map[uuid.UUID]*models.Job
	created []*models.Job
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: make(map[uuid.UUID]*models.Job)}
}

func (s *stubJobRepo) Create(ctx context.Context, j *models.Job) error {
	s.created = append(s.created, j)
	s.jobs[j.ID] = j
	return nil
}

func (s *stubJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return j, nil
}

type stubEngine struct {
	answer *models.RagAnswer
	err    error
}

func (s *stubEngine) Supported(fileName string) bool {
	return strings.HasSuffix(fileName, ".txt") || strings.HasSuffix(fileName, ".pdf") || strings.HasSuffix(fileName, ".docx")
}

func (s *stubEngine) Answer(ctx context.Context, ownerID uuid.UUID, query string, topK int) (*models.RagAnswer, error) {
	return s.answer, s.err
}

type stubUploader struct{ url string }

func (s *stubUploader) Upload(data []byte, suggestedName string) (string, error) {
	return s.url, nil
}

type stubVideoResolver struct {
	title string
	err   error
}

func (s *stubVideoResolver) GetTitle(videoID string) (string, error) { return s.title, s.err }

func newTestDocumentHandler(docRepo *stubDocRepo, jobRepo *stubJobRepo, enqueued *[]*models.Job) *DocumentHandler {
	enqueue := func(ctx context.Context, job *models.Job) error {
		*enqueued = append(*enqueued, job)
		return nil
	}
	return NewDocumentHandler(docRepo, jobRepo,
		&stubEngine{answer: &models.RagAnswer{Success: true, Answer: "grounded"}},
		&stubUploader{url: "http://localhost:8080/files/abc.pdf"},
		&stubVideoResolver{title: "Intro to Distributed Systems"},
		enqueue)
}

func multipartFile(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestDocumentHandler_Upload(t *testing.T) {
	docRepo := newStubDocRepo()
	jobRepo := newStubJobRepo()
	var enqueued []*models.Job
	h := newTestDocumentHandler(docRepo, jobRepo, &enqueued)

	userID := uuid.New()
	buf, contentType := multipartFile(t, "file", "notes.txt", []byte("chapter one"))
	req := httptest.NewRequest("POST", "/api/v1/documents/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, authedRequest(req, userID))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", rec.Code, rec.Body.String())
	}
	if len(docRepo.created) != 1 || docRepo.created[0].Status != "pending" {
		t.Fatalf("expected one pending document, got %+v", docRepo.created)
	}
	if len(enqueued) != 1 {
		t.Fatalf("expected one queued job, got %d", len(enqueued))
	}
	if enqueued[0].ReferenceID != docRepo.created[0].ID {
		t.Fatal("job must reference the created document")
	}

	var cfg models.IngestionJobConfig
	if err := json.Unmarshal(enqueued[0].ConfigJSON, &cfg); err != nil {
		t.Fatalf("bad job config: %v", err)
	}
	if cfg.FilePath != "abc.pdf" || cfg.FileName != "notes.txt" {
		t.Fatalf("job config = %+v", cfg)
	}
}

func TestDocumentHandler_Upload_UnsupportedType(t *testing.T) {
	docRepo := newStubDocRepo()
	jobRepo := newStubJobRepo()
	var enqueued []*models.Job
	h := newTestDocumentHandler(docRepo, jobRepo, &enqueued)

	buf, contentType := multipartFile(t, "file", "malware.exe", []byte("MZ"))
	req := httptest.NewRequest("POST", "/api/v1/documents/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, authedRequest(req, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(docRepo.created) != 0 || len(enqueued) != 0 {
		t.Fatal("rejected upload must not create documents or jobs")
	}
}

func TestDocumentHandler_IngestYouTube(t *testing.T) {
	docRepo := newStubDocRepo()
	jobRepo := newStubJobRepo()
	var enqueued []*models.Job
	h := newTestDocumentHandler(docRepo, jobRepo, &enqueued)

	body, _ := json.Marshal(models.IngestYouTubeRequest{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	req := httptest.NewRequest("POST", "/api/v1/documents/youtube", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.IngestYouTube(rec, authedRequest(req, uuid.New()))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", rec.Code, rec.Body.String())
	}
	if docRepo.created[0].FileName != "Intro to Distributed Systems" {
		t.Fatalf("document name = %q, want the video title", docRepo.created[0].FileName)
	}

	var cfg models.IngestionJobConfig
	json.Unmarshal(enqueued[0].ConfigJSON, &cfg)
	if cfg.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("video id = %q", cfg.VideoID)
	}
}

func TestDocumentHandler_IngestYouTube_InvalidURL(t *testing.T) {
	docRepo := newStubDocRepo()
	jobRepo := newStubJobRepo()
	var enqueued []*models.Job
	h := newTestDocumentHandler(docRepo, jobRepo, &enqueued)

	body, _ := json.Marshal(models.IngestYouTubeRequest{URL: "https://example.com/not-a-video"})
	req := httptest.NewRequest("POST", "/api/v1/documents/youtube", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.IngestYouTube(rec, authedRequest(req, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(docRepo.created) != 0 {
		t.Fatal("invalid URL must not create a document")
	}
}

func TestDocumentHandler_Get_Ownership(t *testing.T) {
	docRepo := newStubDocRepo()
	jobRepo := newStubJobRepo()
	var enqueued []*models.Job
	h := newTestDocumentHandler(docRepo, jobRepo, &enqueued)

	owner := uuid.New()
	doc := &models.Document{ID: uuid.New(), UserID: owner, FileName: "notes.txt"}
	docRepo.Create(context.Background(), doc)

	r := chi.NewRouter()
	r.Get("/documents/{id}", h.Get)

	req := httptest.NewRequest("GET", "/documents/"+doc.ID.String(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(req, uuid.New())) // not the owner

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestDocumentHandler_Query(t *testing.T) {
	docRepo := newStubDocRepo()
	jobRepo := newStubJobRepo()
	var enqueued []*models.Job
	h := newTestDocumentHandler(docRepo, jobRepo, &enqueued)

	body, _ := json.Marshal(models.QueryDocumentsRequest{Query: "what is raft"})
	req := httptest.NewRequest("POST", "/api/v1/documents/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Query(rec, authedRequest(req, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var answer models.RagAnswer
	json.NewDecoder(rec.Body).Decode(&answer)
	if !answer.Success || answer.Answer != "grounded" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestParseVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=1s", "dQw4w9WgXcQ"},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://example.com/watch?v=dQw4w9WgXcQ", ""},
		{"https://www.youtube.com/watch", ""},
		{"not a url at all", ""},
	}

	for _, tt := range tests {
		if got := parseVideoID(tt.url); got != tt.want {
			t.Errorf("parseVideoID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

// ──── Conversation handler ────

type stubConversationStore struct {
	conversations []*models.Conversation
	messages      []*models.Message
	err           error
}

func (s *stubConversationStore) ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	return s.conversations, s.err
}

func (s *stubConversationStore) GetMessages(ctx context.Context, requestingUserID, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.messages, nil
}

func TestConversationHandler_GetMessages_NotParticipant(t *testing.T) {
	h := NewConversationHandler(&stubConversationStore{err: repository.ErrNotParticipant})

	r := chi.NewRouter()
	r.Get("/conversations/{id}/messages", h.GetMessages)

	req := httptest.NewRequest("GET", "/conversations/"+uuid.New().String()+"/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(req, uuid.New()))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "FORBIDDEN" {
		t.Fatalf("error code = %s", resp.Error.Code)
	}
}

func TestConversationHandler_List_Empty(t *testing.T) {
	h := NewConversationHandler(&stubConversationStore{})

	req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	rec := httptest.NewRecorder()
	h.List(rec, authedRequest(req, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"conversations":[]`) {
		t.Fatalf("empty list must serialize as [], got %s", rec.Body.String())
	}
}
