package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"minerva-backend/internal/models"
	"minerva-backend/internal/vectorstore"
)

// NoMatchAnswer is returned when a query matches nothing in the owner's
// namespace. An empty index is not an error.
const NoMatchAnswer = "I couldn't find relevant information in your documents."

const (
	defaultTopK       = 5
	maxContextChars   = 9000
	sourcePreviewSize = 200
)

var ErrEmptyQuery = errors.New("query must not be empty")

// Generator produces free text from a prompt.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into vectors for indexing and querying.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor pulls plain text out of an uploaded document, enforcing the
// supported-type whitelist.
type Extractor interface {
	Supported(fileName string) bool
	ExtractText(data []byte, fileName string) (string, error)
}

// Engine is the document retrieval engine. It owns the chunking policy and
// the per-user namespace convention; storage and model calls go through the
// injected collaborators.
type Engine struct {
	index     vectorstore.Index
	embedder  Embedder
	generator Generator
	extractor Extractor

	windowSize int
	overlap    int
	nsPrefix   string
}

func NewEngine(index vectorstore.Index, embedder Embedder, generator Generator, extractor Extractor) *Engine {
	return &Engine{
		index:      index,
		embedder:   embedder,
		generator:  generator,
		extractor:  extractor,
		windowSize: DefaultWindowSize,
		overlap:    DefaultOverlap,
		nsPrefix:   "user-",
	}
}

// SetNamespacePrefix overrides the default "user-" namespace prefix.
func (e *Engine) SetNamespacePrefix(prefix string) {
	if prefix != "" {
		e.nsPrefix = prefix
	}
}

// Namespace returns the vector-index partition for one owner.
func (e *Engine) Namespace(ownerID uuid.UUID) string {
	return e.nsPrefix + ownerID.String()
}

// Supported reports whether the file type is on the ingestion whitelist.
func (e *Engine) Supported(fileName string) bool {
	return e.extractor.Supported(fileName)
}

// Ingest extracts plain text from an uploaded file and indexes it under the
// owner's namespace. Extraction failure aborts the whole ingestion; nothing
// is written to the index in that case.
func (e *Engine) Ingest(ctx context.Context, ownerID, documentID uuid.UUID, fileName string, data []byte) (int, error) {
	if !e.extractor.Supported(fileName) {
		return 0, fmt.Errorf("unsupported document type: %s", fileName)
	}

	text, err := e.extractor.ExtractText(data, fileName)
	if err != nil {
		return 0, fmt.Errorf("failed to extract text from %s: %w", fileName, err)
	}

	return e.IngestText(ctx, ownerID, documentID, fileName, text)
}

// IngestText chunks, embeds and indexes already-extracted plain text.
func (e *Engine) IngestText(ctx context.Context, ownerID, documentID uuid.UUID, fileName, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("document %s has no extractable text", fileName)
	}

	chunks := ChunkText(text, e.windowSize, e.overlap)

	embeddings, err := e.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	vectors := make([]vectorstore.Vector, 0, len(chunks))
	for i, chunk := range chunks {
		vectors = append(vectors, vectorstore.Vector{
			ID:     uuid.New().String(),
			Values: embeddings[i],
			Payload: map[string]any{
				"document_id": documentID.String(),
				"file_name":   fileName,
				"chunk_index": i,
				"text":        chunk,
			},
		})
	}

	if err := e.index.Upsert(ctx, e.Namespace(ownerID), vectors); err != nil {
		return 0, fmt.Errorf("failed to index %s: %w", fileName, err)
	}

	return len(chunks), nil
}

// Answer embeds the query, retrieves the owner's nearest chunks and asks the
// model to answer strictly from them, with source attribution.
func (e *Engine) Answer(ctx context.Context, ownerID uuid.UUID, query string, topK int) (*models.RagAnswer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	queryVec, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := e.index.Query(ctx, e.Namespace(ownerID), queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	if len(matches) == 0 {
		return &models.RagAnswer{Success: true, Answer: NoMatchAnswer}, nil
	}

	contextBlock, sources := buildContext(matches)

	prompt := buildAnswerPrompt(query, contextBlock)
	answer, err := e.generator.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate grounded answer: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = NoMatchAnswer
	}

	return &models.RagAnswer{
		Success: true,
		Answer:  answer,
		Sources: sources,
	}, nil
}

// buildContext concatenates match texts with file attribution into a bounded
// block and collects the source list.
func buildContext(matches []vectorstore.Match) (string, []models.RagSource) {
	var b strings.Builder
	sources := make([]models.RagSource, 0, len(matches))

	for _, m := range matches {
		text, _ := m.Payload["text"].(string)
		fileName, _ := m.Payload["file_name"].(string)
		if fileName == "" {
			fileName = "unknown"
		}

		if b.Len() > 0 && b.Len()+len(text) > maxContextChars {
			break
		}
		fmt.Fprintf(&b, "[Source: %s]\n%s\n\n", fileName, text)

		preview := text
		if len(preview) > sourcePreviewSize {
			preview = preview[:sourcePreviewSize] + "..."
		}
		sources = append(sources, models.RagSource{
			FileName:    fileName,
			Score:       m.Score,
			TextPreview: preview,
		})
	}

	return b.String(), sources
}

func buildAnswerPrompt(query, contextBlock string) string {
	var b strings.Builder
	b.WriteString("You are answering a question using only the document excerpts below.\n")
	b.WriteString("Rules: answer strictly from the excerpts; cite the source file names you used; ")
	b.WriteString("if the excerpts do not contain the answer, say explicitly that the documents do not cover it.\n\n")
	b.WriteString("---EXCERPTS START---\n")
	b.WriteString(contextBlock)
	b.WriteString("---EXCERPTS END---\n\n")
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n")
	return b.String()
}
