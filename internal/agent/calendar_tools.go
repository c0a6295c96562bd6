package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
)

// CalendarEvent is one event to create.
type CalendarEvent struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// CalendarEntry is one event returned from a range query.
type CalendarEntry struct {
	Summary string
	Start   time.Time
	End     time.Time
}

// CalendarAuthError marks provider authentication failures; range queries
// treat it as "no events" to keep the loop alive.
type CalendarAuthError struct{ Err error }

func (e *CalendarAuthError) Error() string { return fmt.Sprintf("calendar authentication failed: %v", e.Err) }
func (e *CalendarAuthError) Unwrap() error { return e.Err }

// CalendarProvider is the external calendar the two calendar tools talk to.
type CalendarProvider interface {
	CreateEvent(ctx context.Context, event CalendarEvent) (string, error)
	ListEvents(ctx context.Context, start, end time.Time) ([]CalendarEntry, error)
	Configured() bool
}

type createEventTool struct {
	provider CalendarProvider
}

func NewCreateEventTool(provider CalendarProvider) Tool {
	return &createEventTool{provider: provider}
}

func (t *createEventTool) Name() string { return ToolCreateCalendarEvent }

func (t *createEventTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        ToolCreateCalendarEvent,
		Description: "Create one calendar event. Timestamps must be ISO-8601 with an explicit UTC offset (for example 2026-09-01T15:00:00-03:00), never Z.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"summary":     {Type: genai.TypeString, Description: "Event title"},
				"description": {Type: genai.TypeString, Description: "Optional event details"},
				"start":       {Type: genai.TypeString, Description: "Start timestamp, ISO-8601 with offset"},
				"end":         {Type: genai.TypeString, Description: "End timestamp, ISO-8601 with offset"},
				"attendees":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Attendee email addresses"},
			},
			Required: []string{"summary", "start", "end"},
		},
	}
}

func (t *createEventTool) Execute(ctx context.Context, userID uuid.UUID, args map[string]any) string {
	if t.provider == nil || !t.provider.Configured() {
		return "The calendar service is not configured, so the event could not be created."
	}

	summary, err := argString(args, "summary")
	if err != nil {
		logToolFailure(ToolCreateCalendarEvent, err)
		return fmt.Sprintf("Could not create the event: %v.", err)
	}

	startRaw, err := argString(args, "start")
	if err != nil {
		logToolFailure(ToolCreateCalendarEvent, err)
		return fmt.Sprintf("Could not create the event: %v.", err)
	}
	start, err := parseOffsetTimestamp(startRaw)
	if err != nil {
		logToolFailure(ToolCreateCalendarEvent, err)
		return fmt.Sprintf("Could not create the event: %v.", err)
	}

	endRaw, err := argString(args, "end")
	if err != nil {
		logToolFailure(ToolCreateCalendarEvent, err)
		return fmt.Sprintf("Could not create the event: %v.", err)
	}
	end, err := parseOffsetTimestamp(endRaw)
	if err != nil {
		logToolFailure(ToolCreateCalendarEvent, err)
		return fmt.Sprintf("Could not create the event: %v.", err)
	}

	if !end.After(start) {
		return "Could not create the event: the end time must be after the start time."
	}

	description := ""
	if d, ok := args["description"].(string); ok {
		description = strings.TrimSpace(d)
	}

	event := CalendarEvent{
		Summary:     summary,
		Description: description,
		Start:       start,
		End:         end,
		Attendees:   argStringSlice(args, "attendees"),
	}

	link, err := t.provider.CreateEvent(ctx, event)
	if err != nil {
		logToolFailure(ToolCreateCalendarEvent, err)
		return "Failed to create the calendar event. The calendar provider rejected the request."
	}

	if link != "" {
		return fmt.Sprintf("Created event %q from %s to %s: %s", summary, start.Format(time.RFC3339), end.Format(time.RFC3339), link)
	}
	return fmt.Sprintf("Created event %q from %s to %s.", summary, start.Format(time.RFC3339), end.Format(time.RFC3339))
}

type queryCalendarTool struct {
	provider CalendarProvider
}

func NewQueryCalendarTool(provider CalendarProvider) Tool {
	return &queryCalendarTool{provider: provider}
}

func (t *queryCalendarTool) Name() string { return ToolQueryCalendarRange }

func (t *queryCalendarTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        ToolQueryCalendarRange,
		Description: "List the user's calendar events between two timestamps. Timestamps must be ISO-8601 with an explicit UTC offset, never Z.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"start": {Type: genai.TypeString, Description: "Range start, ISO-8601 with offset"},
				"end":   {Type: genai.TypeString, Description: "Range end, ISO-8601 with offset"},
			},
			Required: []string{"start", "end"},
		},
	}
}

func (t *queryCalendarTool) Execute(ctx context.Context, userID uuid.UUID, args map[string]any) string {
	if t.provider == nil || !t.provider.Configured() {
		return "The calendar service is not configured, so availability could not be checked."
	}

	startRaw, err := argString(args, "start")
	if err != nil {
		logToolFailure(ToolQueryCalendarRange, err)
		return fmt.Sprintf("Could not query the calendar: %v.", err)
	}
	start, err := parseOffsetTimestamp(startRaw)
	if err != nil {
		logToolFailure(ToolQueryCalendarRange, err)
		return fmt.Sprintf("Could not query the calendar: %v.", err)
	}

	endRaw, err := argString(args, "end")
	if err != nil {
		logToolFailure(ToolQueryCalendarRange, err)
		return fmt.Sprintf("Could not query the calendar: %v.", err)
	}
	end, err := parseOffsetTimestamp(endRaw)
	if err != nil {
		logToolFailure(ToolQueryCalendarRange, err)
		return fmt.Sprintf("Could not query the calendar: %v.", err)
	}

	entries, err := t.provider.ListEvents(ctx, start, end)
	if err != nil {
		// An expired or revoked credential reads as an empty calendar rather
		// than killing the turn.
		var authErr *CalendarAuthError
		if errors.As(err, &authErr) {
			logToolFailure(ToolQueryCalendarRange, err)
			return "No events found in that period."
		}
		logToolFailure(ToolQueryCalendarRange, err)
		return "Failed to query the calendar for that period."
	}

	if len(entries) == 0 {
		return "No events found in that period."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Events between %s and %s:\n", start.Format("Mon Jan 2 15:04"), end.Format("Mon Jan 2 15:04"))
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s to %s\n", e.Summary, e.Start.Format("Mon Jan 2 15:04"), e.End.Format("15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}
