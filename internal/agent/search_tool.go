package agent

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"

	"minerva-backend/internal/models"
)

// DocumentSearcher answers free-text questions over one user's document
// index.
type DocumentSearcher interface {
	Answer(ctx context.Context, ownerID uuid.UUID, query string, topK int) (*models.RagAnswer, error)
}

type searchTool struct {
	searcher DocumentSearcher
	topK     int
}

func NewSearchDocumentsTool(searcher DocumentSearcher, topK int) Tool {
	if topK <= 0 {
		topK = 5
	}
	return &searchTool{searcher: searcher, topK: topK}
}

func (t *searchTool) Name() string { return ToolSearchDocuments }

func (t *searchTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        ToolSearchDocuments,
		Description: "Search the user's uploaded documents and answer from them. Use for questions about the user's own files, notes or knowledge base.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {Type: genai.TypeString, Description: "The question to answer from the documents"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *searchTool) Execute(ctx context.Context, userID uuid.UUID, args map[string]any) string {
	query, err := argString(args, "query")
	if err != nil {
		logToolFailure(ToolSearchDocuments, err)
		return fmt.Sprintf("Could not search the documents: %v.", err)
	}

	answer, err := t.searcher.Answer(ctx, userID, query, t.topK)
	if err != nil {
		logToolFailure(ToolSearchDocuments, err)
		return "Nothing could be retrieved from the documents right now."
	}

	if answer.Answer == "" {
		return "Nothing relevant was found in the documents."
	}
	return answer.Answer
}
