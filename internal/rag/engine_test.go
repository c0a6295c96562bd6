package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"

	"minerva-backend/internal/vectorstore"
)

// memoryIndex is an in-memory vectorstore.Index with cosine ranking,
// namespaced like the real one.
type memoryIndex struct {
	vectors map[string][]vectorstore.Vector
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{vectors: make(map[string][]vectorstore.Vector)}
}

func (m *memoryIndex) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	m.vectors[namespace] = append(m.vectors[namespace], vectors...)
	return nil
}

func (m *memoryIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]vectorstore.Match, error) {
	var matches []vectorstore.Match
	for _, v := range m.vectors[namespace] {
		matches = append(matches, vectorstore.Match{
			ID:      v.ID,
			Score:   cosine(vector, v.Values),
			Payload: v.Payload,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *memoryIndex) Close() error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// letterEmbedder is a deterministic embedding: letter-frequency vectors.
// Similar texts get similar vectors, which is all the ranking tests need.
type letterEmbedder struct{}

func (letterEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

func (e letterEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := e.EmbedText(ctx, t)
		out[i] = v
	}
	return out, nil
}

type echoGenerator struct {
	prompt string
}

func (g *echoGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return "grounded answer", nil
}

type textExtractor struct{}

func (textExtractor) Supported(fileName string) bool {
	return strings.HasSuffix(fileName, ".txt")
}

func (textExtractor) ExtractText(data []byte, fileName string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty file")
	}
	return string(data), nil
}

func newTestEngine() (*Engine, *memoryIndex, *echoGenerator) {
	index := newMemoryIndex()
	gen := &echoGenerator{}
	return NewEngine(index, letterEmbedder{}, gen, textExtractor{}), index, gen
}

func TestAnswer_EmptyQueryRejected(t *testing.T) {
	e, _, _ := newTestEngine()
	_, err := e.Answer(context.Background(), uuid.New(), "   ", 5)
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
}

func TestAnswer_EmptyNamespaceIsSuccess(t *testing.T) {
	e, _, _ := newTestEngine()
	answer, err := e.Answer(context.Background(), uuid.New(), "anything at all", 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !answer.Success {
		t.Error("No-match answer must still be a success")
	}
	if answer.Answer != NoMatchAnswer {
		t.Errorf("Expected no-match answer, got %q", answer.Answer)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("Expected zero sources, got %d", len(answer.Sources))
	}
}

func TestIngest_UnsupportedTypeRejectedBeforeIndexing(t *testing.T) {
	e, index, _ := newTestEngine()
	_, err := e.Ingest(context.Background(), uuid.New(), uuid.New(), "report.exe", []byte("binary"))
	if err == nil {
		t.Fatal("Expected error for unsupported type")
	}
	if len(index.vectors) != 0 {
		t.Error("Nothing should be indexed for a rejected document")
	}
}

func TestIngest_ExtractionFailureLeavesIndexUntouched(t *testing.T) {
	e, index, _ := newTestEngine()
	_, err := e.Ingest(context.Background(), uuid.New(), uuid.New(), "notes.txt", nil)
	if err == nil {
		t.Fatal("Expected extraction error")
	}
	if len(index.vectors) != 0 {
		t.Error("Failed extraction must not write partial index entries")
	}
}

func TestRoundTrip_IngestedChunkIsRetrievable(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()
	owner := uuid.New()

	text := "The quarterly marketing budget was approved at twelve thousand dollars. " +
		strings.Repeat("Unrelated filler about logistics and shipping routes. ", 40)
	chunkCount, err := e.Ingest(ctx, owner, uuid.New(), "budget.txt", []byte(text))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if chunkCount < 1 {
		t.Fatalf("Expected at least one chunk, got %d", chunkCount)
	}

	answer, err := e.Answer(ctx, owner, "quarterly marketing budget approved dollars", 5)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	found := false
	for _, s := range answer.Sources {
		if s.FileName == "budget.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected budget.txt among sources, got %+v", answer.Sources)
	}
}

func TestAnswer_NamespaceIsolation(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	_, err := e.IngestText(ctx, alice, uuid.New(), "alice.txt", "alice notes about project alpha")
	if err != nil {
		t.Fatalf("IngestText failed: %v", err)
	}

	answer, err := e.Answer(ctx, bob, "project alpha", 5)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if answer.Answer != NoMatchAnswer {
		t.Errorf("Bob must not see Alice's documents, got %q", answer.Answer)
	}
}

func TestAnswer_DeterministicOrdering(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()
	owner := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := e.IngestText(ctx, owner, uuid.New(), fmt.Sprintf("doc%d.txt", i),
			fmt.Sprintf("document number %d talks about topic %d", i, i))
		if err != nil {
			t.Fatalf("IngestText failed: %v", err)
		}
	}

	first, err := e.Answer(ctx, owner, "document number one", 3)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	second, err := e.Answer(ctx, owner, "document number one", 3)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if len(first.Sources) != len(second.Sources) {
		t.Fatalf("Source counts differ: %d vs %d", len(first.Sources), len(second.Sources))
	}
	for i := range first.Sources {
		if first.Sources[i].FileName != second.Sources[i].FileName {
			t.Errorf("Ordering changed at %d: %s vs %s", i, first.Sources[i].FileName, second.Sources[i].FileName)
		}
	}
}

func TestAnswer_PromptCarriesAttributedContext(t *testing.T) {
	e, _, gen := newTestEngine()
	ctx := context.Background()
	owner := uuid.New()

	_, err := e.IngestText(ctx, owner, uuid.New(), "handbook.txt", "vacation policy allows twenty days")
	if err != nil {
		t.Fatalf("IngestText failed: %v", err)
	}

	if _, err := e.Answer(ctx, owner, "vacation policy days", 5); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if !strings.Contains(gen.prompt, "[Source: handbook.txt]") {
		t.Error("Prompt should attribute excerpts to their files")
	}
	if !strings.Contains(gen.prompt, "vacation policy allows twenty days") {
		t.Error("Prompt should include the chunk text")
	}
	if !strings.Contains(gen.prompt, "Question: vacation policy days") {
		t.Error("Prompt should end with the question")
	}
}
