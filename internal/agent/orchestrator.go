package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"

	"minerva-backend/internal/models"
)

// FallbackAnswer is returned whenever a run cannot produce a proper reply:
// the model kept requesting tools past the iteration ceiling, or the model
// call itself failed. The turn degrades instead of erroring.
const FallbackAnswer = "I couldn't complete that request. Please rephrase it or try something simpler."

const defaultToolTimeout = 30 * time.Second

const systemPromptTemplate = `You are Minerva, a personal assistant that replies inside a chat conversation.

Tool selection policy, in priority order:
1. If the user asks to send an email, use send_email.
2. If the user asks about scheduling, availability or meetings, use create_calendar_event or query_calendar_range.
3. If the user asks a question that their own documents could answer, use search_documents.
4. Otherwise answer directly in plain text.

Calendar timestamps must be ISO-8601 with the explicit UTC offset %s (the user's local timezone). Never use the Z suffix.
Keep replies concise and conversational. After a tool runs, confirm the outcome to the user in natural language.`

// Orchestrator drives the model/tool loop for one turn. It is stateless
// across runs and safe for concurrent use.
type Orchestrator struct {
	llm           LanguageModel
	tools         []Tool
	toolsByName   map[string]Tool
	declarations  []*genai.FunctionDeclaration
	maxIterations int
	toolTimeout   time.Duration
	system        string
}

// NewOrchestrator builds the loop around a model, a tool set and a hard
// iteration ceiling. The ceiling counts model calls; however many tools fan
// out inside one iteration, they count as a single step.
func NewOrchestrator(llm LanguageModel, tools []Tool, maxIterations int, tzOffset string) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = 6
	}

	byName := make(map[string]Tool, len(tools))
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
		decls = append(decls, t.Declaration())
	}

	return &Orchestrator{
		llm:           llm,
		tools:         tools,
		toolsByName:   byName,
		declarations:  decls,
		maxIterations: maxIterations,
		toolTimeout:   defaultToolTimeout,
		system:        fmt.Sprintf(systemPromptTemplate, tzOffset),
	}
}

// Run executes the loop: model call, then tool fan-out if requested, then
// back to the model, until it produces plain text or hits the ceiling. The
// history is consumed once and never mutated; each iteration appends to a
// fresh copy. Run never returns an error to the caller - every failure path
// degrades to FallbackAnswer.
func (o *Orchestrator) Run(ctx context.Context, history []models.ChatMessage, userID uuid.UUID) string {
	messages := historyToMessages(history)

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		reply, err := o.llm.Invoke(ctx, o.system, messages, o.declarations)
		if err != nil {
			log.Printf("WARNING: agent model call failed on iteration %d, falling back: %v", iteration, err)
			return FallbackAnswer
		}

		if len(reply.ToolCalls) == 0 {
			answer := strings.TrimSpace(reply.Content)
			if answer == "" {
				log.Printf("WARNING: agent model returned empty final answer on iteration %d", iteration)
				return FallbackAnswer
			}
			return answer
		}

		results := o.executeAll(ctx, userID, reply.ToolCalls)

		next := make([]Message, len(messages), len(messages)+2)
		copy(next, messages)
		next = append(next, Message{
			Role:      RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})
		next = append(next, Message{
			Role:        RoleTool,
			ToolResults: results,
		})
		messages = next
	}

	log.Printf("WARNING: agent hit the iteration ceiling (%d model calls), falling back", o.maxIterations)
	return FallbackAnswer
}

// executeAll runs the requested tools concurrently; they are independent by
// contract. Order of results matches order of requests so the model sees a
// stable mapping.
func (o *Orchestrator) executeAll(ctx context.Context, userID uuid.UUID, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			results[i] = ToolResult{
				Name:    call.Name,
				Content: o.executeOne(ctx, userID, call),
			}
		}(i, call)
	}
	wg.Wait()

	return results
}

func (o *Orchestrator) executeOne(ctx context.Context, userID uuid.UUID, call ToolCall) (result string) {
	tool, ok := o.toolsByName[call.Name]
	if !ok {
		log.Printf("WARNING: agent model requested unknown tool %q", call.Name)
		return fmt.Sprintf("There is no tool named %q.", call.Name)
	}

	// One slow tool must not stall the whole turn.
	toolCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARNING: tool %s panicked: %v", call.Name, r)
			result = fmt.Sprintf("The %s tool failed unexpectedly.", call.Name)
		}
	}()

	return tool.Execute(toolCtx, userID, call.Args)
}
