package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
)

// Tool names form a closed set; the orchestrator rejects anything else the
// model invents.
const (
	ToolSendEmail           = "send_email"
	ToolCreateCalendarEvent = "create_calendar_event"
	ToolQueryCalendarRange  = "query_calendar_range"
	ToolSearchDocuments     = "search_documents"
)

// Tool is one capability the model may request. Execute never returns an
// error: internal failures are converted into a user-facing textual result so
// the loop always has something to feed back to the model.
type Tool interface {
	Name() string
	Declaration() *genai.FunctionDeclaration
	Execute(ctx context.Context, userID uuid.UUID, args map[string]any) string
}

// argString reads a required string argument, trimming whitespace.
func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("argument %q is empty", key)
	}
	return s, nil
}

// argStringSlice reads an optional list-of-strings argument.
func argStringSlice(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// parseOffsetTimestamp validates the agent's calendar timestamp convention:
// ISO-8601 with an explicit numeric UTC offset. "Z" is rejected on purpose so
// the model keeps using the configured local offset.
func parseOffsetTimestamp(value string) (time.Time, error) {
	if strings.HasSuffix(value, "Z") {
		return time.Time{}, fmt.Errorf("timestamp %q must carry an explicit UTC offset, not Z", value)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is not valid ISO-8601 with offset: %w", value, err)
	}
	return t, nil
}

func logToolFailure(name string, err error) {
	log.Printf("WARNING: tool %s degraded to textual error result: %v", name, err)
}
