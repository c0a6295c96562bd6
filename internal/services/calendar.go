package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"minerva-backend/internal/agent"
)

// CalendarService talks to Google Calendar with a service-account
// credential. Without a credential it reports itself unconfigured and the
// calendar tools degrade to textual refusals.
type CalendarService struct {
	svc        *calendar.Service
	calendarID string
}

func NewCalendarService(credentialsJSON, calendarID string) (*CalendarService, error) {
	if credentialsJSON == "" {
		log.Println("⚠ Calendar service not configured (no credentials)")
		return &CalendarService{calendarID: calendarID}, nil
	}

	svc, err := calendar.NewService(context.Background(), option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	return &CalendarService{svc: svc, calendarID: calendarID}, nil
}

func (s *CalendarService) Configured() bool { return s.svc != nil }

func (s *CalendarService) CreateEvent(ctx context.Context, event agent.CalendarEvent) (string, error) {
	if s.svc == nil {
		return "", fmt.Errorf("calendar service is not configured")
	}

	ev := &calendar.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}
	for _, a := range event.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: a})
	}

	created, err := s.svc.Events.Insert(s.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", wrapCalendarErr(err)
	}

	return created.HtmlLink, nil
}

func (s *CalendarService) ListEvents(ctx context.Context, start, end time.Time) ([]agent.CalendarEntry, error) {
	if s.svc == nil {
		return nil, fmt.Errorf("calendar service is not configured")
	}

	res, err := s.svc.Events.List(s.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(50).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapCalendarErr(err)
	}

	entries := make([]agent.CalendarEntry, 0, len(res.Items))
	for _, item := range res.Items {
		entry := agent.CalendarEntry{Summary: item.Summary}
		if item.Start != nil {
			entry.Start = parseEventTime(item.Start)
		}
		if item.End != nil {
			entry.End = parseEventTime(item.End)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// wrapCalendarErr turns credential failures into CalendarAuthError so the
// query tool can treat them as an empty calendar.
func wrapCalendarErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 401 || apiErr.Code == 403) {
		return &agent.CalendarAuthError{Err: err}
	}
	return fmt.Errorf("calendar API error: %w", err)
}

// parseEventTime reads either a timed or an all-day event boundary.
func parseEventTime(edt *calendar.EventDateTime) time.Time {
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return t
		}
	}
	if edt.Date != "" {
		if t, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
