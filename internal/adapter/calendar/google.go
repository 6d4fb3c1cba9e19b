package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	domaincal "github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

// Google uses the Calendar v3 client library.
type Google struct {
	endpoint   string
	httpClient *http.Client
}

var (
	_ Adapter     = (*Google)(nil)
	_ EventEditor = (*Google)(nil)
)

// NewGoogle builds the adapter. endpoint overrides the API base path when set.
func NewGoogle(endpoint string, client *http.Client) *Google {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Google{endpoint: endpoint, httpClient: client}
}

func (g *Google) Provider() domaincal.Provider { return domaincal.Google }

func (g *Google) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	client := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google calendar service: %w", err)
	}
	return svc, nil
}

func (g *Google) ListCalendars(ctx context.Context, accessToken string) ([]domaincal.Calendar, error) {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, googleError("list_calendars", err)
	}
	calendars := make([]domaincal.Calendar, 0, len(list.Items))
	for _, item := range list.Items {
		name := item.Summary
		if item.SummaryOverride != "" {
			name = item.SummaryOverride
		}
		calendars = append(calendars, domaincal.Calendar{
			ID:          item.Id,
			Name:        name,
			Description: item.Description,
			TimeZone:    item.TimeZone,
			Primary:     item.Primary,
			ReadOnly:    item.AccessRole == "reader" || item.AccessRole == "freeBusyReader",
			Color:       item.BackgroundColor,
			Provider:    domaincal.Google,
		})
	}
	return calendars, nil
}

func (g *Google) ListEvents(ctx context.Context, accessToken string, query domaincal.EventQuery) (*domaincal.EventPage, error) {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	calendarID := googleCalendarID(query.CalendarID)
	call := svc.Events.List(calendarID).Context(ctx).SingleEvents(true).OrderBy("startTime")
	if query.TimeMin != nil {
		call = call.TimeMin(query.TimeMin.Format(time.RFC3339))
	}
	if query.TimeMax != nil {
		call = call.TimeMax(query.TimeMax.Format(time.RFC3339))
	}
	if query.MaxResults > 0 {
		call = call.MaxResults(int64(query.MaxResults))
	}
	if query.PageToken != "" {
		call = call.PageToken(query.PageToken)
	}
	if query.Search != "" {
		call = call.Q(query.Search)
	}
	if query.ShowDeleted {
		call = call.ShowDeleted(true)
	}
	events, err := call.Do()
	if err != nil {
		return nil, googleError("list_events", err)
	}
	page := &domaincal.EventPage{Events: make([]domaincal.Event, 0, len(events.Items)), NextPageToken: events.NextPageToken}
	for _, item := range events.Items {
		page.Events = append(page.Events, fromGoogleEvent(calendarID, item))
	}
	return page, nil
}

func (g *Google) CreateEvent(ctx context.Context, accessToken, calendarID string, in domaincal.EventInput) (*domaincal.Event, error) {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	calendarID = googleCalendarID(calendarID)
	created, err := svc.Events.Insert(calendarID, toGoogleEvent(in)).Context(ctx).Do()
	if err != nil {
		return nil, googleError("create_event", err)
	}
	event := fromGoogleEvent(calendarID, created)
	return &event, nil
}

func (g *Google) GetEvent(ctx context.Context, accessToken, calendarID, eventID string) (*domaincal.Event, error) {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	calendarID = googleCalendarID(calendarID)
	found, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, googleError("get_event", err)
	}
	event := fromGoogleEvent(calendarID, found)
	return &event, nil
}

func (g *Google) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, in domaincal.EventInput) (*domaincal.Event, error) {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	calendarID = googleCalendarID(calendarID)
	updated, err := svc.Events.Update(calendarID, eventID, toGoogleEvent(in)).Context(ctx).Do()
	if err != nil {
		return nil, googleError("update_event", err)
	}
	event := fromGoogleEvent(calendarID, updated)
	return &event, nil
}

func (g *Google) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(googleCalendarID(calendarID), eventID).Context(ctx).Do(); err != nil {
		return googleError("delete_event", err)
	}
	return nil
}

func googleCalendarID(id string) string {
	if isDefaultCalendar(id) {
		return "primary"
	}
	return id
}

func googleError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		upstream := &domaincal.UpstreamError{
			Provider: domaincal.Google,
			Op:       op,
			Status:   apiErr.Code,
			Message:  apiErr.Message,
			Kind:     domaincal.ErrUpstreamAPI,
		}
		if len(apiErr.Errors) > 0 {
			upstream.Code = apiErr.Errors[0].Reason
		}
		return upstream
	}
	return &domaincal.UpstreamError{Provider: domaincal.Google, Op: op, Message: err.Error(), Kind: domaincal.ErrUpstreamAPI}
}

func toGoogleEvent(in domaincal.EventInput) *gcal.Event {
	event := &gcal.Event{
		Summary:     in.Title,
		Description: in.Description,
		Location:    in.Location,
		Start:       toGoogleTime(in.Start),
		End:         toGoogleTime(in.End),
	}
	for _, a := range in.Attendees {
		event.Attendees = append(event.Attendees, &gcal.EventAttendee{
			Email:       a.Email,
			DisplayName: a.Name,
			Optional:    a.Optional,
		})
	}
	return event
}

func toGoogleTime(t domaincal.EventTime) *gcal.EventDateTime {
	out := &gcal.EventDateTime{TimeZone: t.TimeZone}
	if t.DateTime != nil {
		out.DateTime = t.DateTime.Format(time.RFC3339)
	} else {
		out.Date = t.Date
	}
	return out
}

func fromGoogleEvent(calendarID string, e *gcal.Event) domaincal.Event {
	event := domaincal.Event{
		ID:          e.Id,
		CalendarID:  calendarID,
		Title:       e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       fromGoogleTime(e.Start),
		End:         fromGoogleTime(e.End),
		AllDay:      e.Start != nil && e.Start.Date != "",
		Status:      e.Status,
		URL:         e.HtmlLink,
		Provider:    domaincal.Google,
	}
	if e.Organizer != nil {
		event.Organizer = e.Organizer.Email
	}
	for _, a := range e.Attendees {
		event.Attendees = append(event.Attendees, domaincal.Attendee{
			Email:    a.Email,
			Name:     a.DisplayName,
			Status:   a.ResponseStatus,
			Optional: a.Optional,
		})
	}
	return event
}

func fromGoogleTime(t *gcal.EventDateTime) domaincal.EventTime {
	if t == nil {
		return domaincal.EventTime{}
	}
	out := domaincal.EventTime{Date: t.Date, TimeZone: t.TimeZone}
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(t.DateTime)); err == nil {
			out.DateTime = &parsed
		}
	}
	return out
}
