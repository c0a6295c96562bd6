package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"minerva-backend/internal/models"
)

func TestParseOffsetTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"explicit negative offset", "2026-09-01T15:00:00-03:00", false},
		{"explicit positive offset", "2026-09-01T15:00:00+02:00", false},
		{"zulu suffix rejected", "2026-09-01T15:00:00Z", true},
		{"missing offset rejected", "2026-09-01T15:00:00", true},
		{"garbage rejected", "next tuesday", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseOffsetTimestamp(tc.value)
			if tc.wantErr && err == nil {
				t.Errorf("Expected error for %q", tc.value)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected error for %q: %v", tc.value, err)
			}
		})
	}
}

type stubSender struct {
	configured bool
	err        error
	sentTo     string
	subject    string
}

func (s *stubSender) Send(ctx context.Context, to, subject, body string) error {
	s.sentTo = to
	s.subject = subject
	return s.err
}

func (s *stubSender) Configured() bool { return s.configured }

func TestEmailTool(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("unconfigured transport", func(t *testing.T) {
		tool := NewEmailTool(&stubSender{configured: false})
		result := tool.Execute(ctx, userID, map[string]any{
			"to": "alice@example.com", "subject": "X", "body": "Y",
		})
		if !strings.Contains(result, "not configured") {
			t.Errorf("Expected not-configured result, got %q", result)
		}
	})

	t.Run("successful send", func(t *testing.T) {
		sender := &stubSender{configured: true}
		tool := NewEmailTool(sender)
		result := tool.Execute(ctx, userID, map[string]any{
			"to": "alice@example.com", "subject": "X", "body": "Y",
		})
		if sender.sentTo != "alice@example.com" {
			t.Errorf("Expected send to alice, got %q", sender.sentTo)
		}
		if !strings.Contains(result, "Email sent to alice@example.com") {
			t.Errorf("Unexpected success result %q", result)
		}
	})

	t.Run("transport failure becomes text", func(t *testing.T) {
		tool := NewEmailTool(&stubSender{configured: true, err: errors.New("smtp down")})
		result := tool.Execute(ctx, userID, map[string]any{
			"to": "alice@example.com", "subject": "X", "body": "Y",
		})
		if !strings.Contains(result, "Failed to send") {
			t.Errorf("Expected failure text, got %q", result)
		}
	})

	t.Run("invalid address", func(t *testing.T) {
		tool := NewEmailTool(&stubSender{configured: true})
		result := tool.Execute(ctx, userID, map[string]any{
			"to": "not-an-address", "subject": "X", "body": "Y",
		})
		if !strings.Contains(result, "does not look like a valid address") {
			t.Errorf("Expected address validation text, got %q", result)
		}
	})

	t.Run("missing argument", func(t *testing.T) {
		tool := NewEmailTool(&stubSender{configured: true})
		result := tool.Execute(ctx, userID, map[string]any{"to": "alice@example.com"})
		if !strings.Contains(result, "Could not send the email") {
			t.Errorf("Expected argument error text, got %q", result)
		}
	})

	t.Run("cancelled context unblocks a stalled transport", func(t *testing.T) {
		tool := NewEmailTool(&blockingSender{})
		shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		done := make(chan string, 1)
		go func() {
			done <- tool.Execute(shortCtx, userID, map[string]any{
				"to": "alice@example.com", "subject": "X", "body": "Y",
			})
		}()

		select {
		case result := <-done:
			if !strings.Contains(result, "Failed to send") {
				t.Errorf("Expected failure text, got %q", result)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Execute did not return after the context deadline")
		}
	})
}

// blockingSender hangs until its context is cancelled, like an SMTP server
// that accepts the connection and then goes silent.
type blockingSender struct{}

func (s *blockingSender) Send(ctx context.Context, to, subject, body string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingSender) Configured() bool { return true }

type stubCalendar struct {
	configured bool
	createErr  error
	listErr    error
	entries    []CalendarEntry
	created    *CalendarEvent
}

func (s *stubCalendar) CreateEvent(ctx context.Context, event CalendarEvent) (string, error) {
	s.created = &event
	return "https://calendar.example/e/1", s.createErr
}

func (s *stubCalendar) ListEvents(ctx context.Context, start, end time.Time) ([]CalendarEntry, error) {
	return s.entries, s.listErr
}

func (s *stubCalendar) Configured() bool { return s.configured }

func TestCreateEventTool(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("valid event", func(t *testing.T) {
		cal := &stubCalendar{configured: true}
		tool := NewCreateEventTool(cal)
		result := tool.Execute(ctx, userID, map[string]any{
			"summary":   "Standup",
			"start":     "2026-09-01T10:00:00-03:00",
			"end":       "2026-09-01T10:30:00-03:00",
			"attendees": []any{"bob@example.com"},
		})
		if cal.created == nil {
			t.Fatal("Expected event to reach the provider")
		}
		if len(cal.created.Attendees) != 1 || cal.created.Attendees[0] != "bob@example.com" {
			t.Errorf("Attendees not parsed: %+v", cal.created.Attendees)
		}
		if !strings.Contains(result, "Created event") {
			t.Errorf("Unexpected result %q", result)
		}
	})

	t.Run("zulu timestamp rejected", func(t *testing.T) {
		cal := &stubCalendar{configured: true}
		tool := NewCreateEventTool(cal)
		result := tool.Execute(ctx, userID, map[string]any{
			"summary": "Standup",
			"start":   "2026-09-01T10:00:00Z",
			"end":     "2026-09-01T10:30:00Z",
		})
		if cal.created != nil {
			t.Error("Event should not reach the provider with a Z timestamp")
		}
		if !strings.Contains(result, "Could not create the event") {
			t.Errorf("Unexpected result %q", result)
		}
	})

	t.Run("end before start rejected", func(t *testing.T) {
		tool := NewCreateEventTool(&stubCalendar{configured: true})
		result := tool.Execute(ctx, userID, map[string]any{
			"summary": "Standup",
			"start":   "2026-09-01T11:00:00-03:00",
			"end":     "2026-09-01T10:00:00-03:00",
		})
		if !strings.Contains(result, "end time must be after") {
			t.Errorf("Unexpected result %q", result)
		}
	})
}

func TestQueryCalendarTool(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	args := map[string]any{
		"start": "2026-09-01T00:00:00-03:00",
		"end":   "2026-09-02T00:00:00-03:00",
	}

	t.Run("auth failure reads as empty calendar", func(t *testing.T) {
		cal := &stubCalendar{configured: true, listErr: &CalendarAuthError{Err: errors.New("token expired")}}
		tool := NewQueryCalendarTool(cal)
		result := tool.Execute(ctx, userID, args)
		if result != "No events found in that period." {
			t.Errorf("Expected empty-calendar result on auth failure, got %q", result)
		}
	})

	t.Run("no events", func(t *testing.T) {
		tool := NewQueryCalendarTool(&stubCalendar{configured: true})
		if result := tool.Execute(ctx, userID, args); result != "No events found in that period." {
			t.Errorf("Unexpected result %q", result)
		}
	})

	t.Run("events enumerated", func(t *testing.T) {
		start, _ := time.Parse(time.RFC3339, "2026-09-01T10:00:00-03:00")
		cal := &stubCalendar{configured: true, entries: []CalendarEntry{
			{Summary: "Standup", Start: start, End: start.Add(30 * time.Minute)},
		}}
		tool := NewQueryCalendarTool(cal)
		result := tool.Execute(ctx, userID, args)
		if !strings.Contains(result, "Standup") {
			t.Errorf("Expected event in enumeration, got %q", result)
		}
	})
}

type stubSearcher struct {
	answer *models.RagAnswer
	err    error
	query  string
}

func (s *stubSearcher) Answer(ctx context.Context, ownerID uuid.UUID, query string, topK int) (*models.RagAnswer, error) {
	s.query = query
	return s.answer, s.err
}

func TestSearchDocumentsTool(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("answer passed through", func(t *testing.T) {
		searcher := &stubSearcher{answer: &models.RagAnswer{Success: true, Answer: "The budget is 12k."}}
		tool := NewSearchDocumentsTool(searcher, 5)
		result := tool.Execute(ctx, userID, map[string]any{"query": "what is the budget?"})
		if result != "The budget is 12k." {
			t.Errorf("Unexpected result %q", result)
		}
		if searcher.query != "what is the budget?" {
			t.Errorf("Query not forwarded, got %q", searcher.query)
		}
	})

	t.Run("engine failure becomes text", func(t *testing.T) {
		tool := NewSearchDocumentsTool(&stubSearcher{err: errors.New("index down")}, 5)
		result := tool.Execute(ctx, userID, map[string]any{"query": "anything"})
		if !strings.Contains(result, "Nothing could be retrieved") {
			t.Errorf("Unexpected result %q", result)
		}
	})
}
