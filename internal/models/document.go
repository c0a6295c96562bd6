package models

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	SourceType string    `json:"source_type"` // "file" | "youtube"
	FileName   string    `json:"file_name"`
	SourceURL  *string   `json:"source_url"`
	Status     string    `json:"status"` // "pending" | "processing" | "completed" | "failed"
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentChunk is one overlapping window of an ingested document, stored in
// the vector index under the owner's namespace. Immutable after ingestion.
type DocumentChunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	OwnerID    uuid.UUID
	FileName   string
	ChunkIndex int
	Text       string
}

// RagSource attributes part of a grounded answer to an indexed chunk.
type RagSource struct {
	FileName    string  `json:"file_name"`
	Score       float32 `json:"score"`
	TextPreview string  `json:"text_preview"`
}

// RagAnswer is the result of one retrieval-augmented query. A query that
// matches nothing is still a success; Answer then says so in plain words.
type RagAnswer struct {
	Success bool        `json:"success"`
	Answer  string      `json:"answer"`
	Sources []RagSource `json:"sources"`
}

type IngestResult struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkCount int       `json:"chunk_count"`
}

type QueryDocumentsRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type IngestYouTubeRequest struct {
	URL string `json:"url"`
}
