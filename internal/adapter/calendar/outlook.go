package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	domaincal "github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

const (
	graphBaseURL    = "https://graph.microsoft.com/v1.0"
	graphTimeLayout = "2006-01-02T15:04:05.9999999"
)

// Outlook calls Microsoft Graph with all times returned in UTC.
type Outlook struct {
	rest restClient
}

var (
	_ Adapter     = (*Outlook)(nil)
	_ EventEditor = (*Outlook)(nil)
)

func NewOutlook(baseURL string, client *http.Client) *Outlook {
	if baseURL == "" {
		baseURL = graphBaseURL
	}
	rest := newRESTClient(domaincal.Outlook, baseURL, client)
	rest.headers = map[string]string{"Prefer": `outlook.timezone="UTC"`}
	return &Outlook{rest: rest}
}

func (o *Outlook) Provider() domaincal.Provider { return domaincal.Outlook }

type graphCalendar struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Color             string `json:"hexColor"`
	IsDefaultCalendar bool   `json:"isDefaultCalendar"`
	CanEdit           bool   `json:"canEdit"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEmail struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type graphAttendee struct {
	EmailAddress graphEmail `json:"emailAddress"`
	Type         string     `json:"type,omitempty"`
	Status       *struct {
		Response string `json:"response"`
	} `json:"status,omitempty"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphEvent struct {
	ID          string          `json:"id,omitempty"`
	Subject     string          `json:"subject"`
	Body        *graphBody      `json:"body,omitempty"`
	BodyPreview string          `json:"bodyPreview,omitempty"`
	Start       *graphDateTime  `json:"start,omitempty"`
	End         *graphDateTime  `json:"end,omitempty"`
	Location    *graphLocation  `json:"location,omitempty"`
	IsAllDay    bool            `json:"isAllDay"`
	IsCancelled bool            `json:"isCancelled,omitempty"`
	WebLink     string          `json:"webLink,omitempty"`
	Organizer   *graphAttendee  `json:"organizer,omitempty"`
	Attendees   []graphAttendee `json:"attendees,omitempty"`
}

func (o *Outlook) ListCalendars(ctx context.Context, accessToken string) ([]domaincal.Calendar, error) {
	var resp struct {
		Value []graphCalendar `json:"value"`
	}
	if err := o.rest.do(ctx, accessToken, request{op: "list_calendars", method: http.MethodGet, path: "/me/calendars"}, &resp); err != nil {
		return nil, err
	}
	calendars := make([]domaincal.Calendar, 0, len(resp.Value))
	for _, c := range resp.Value {
		calendars = append(calendars, domaincal.Calendar{
			ID:       c.ID,
			Name:     c.Name,
			Primary:  c.IsDefaultCalendar,
			ReadOnly: !c.CanEdit,
			Color:    c.Color,
			Provider: domaincal.Outlook,
		})
	}
	return calendars, nil
}

func (o *Outlook) ListEvents(ctx context.Context, accessToken string, query domaincal.EventQuery) (*domaincal.EventPage, error) {
	req := request{op: "list_events", method: http.MethodGet, path: outlookEventsPath(query.CalendarID)}
	// Graph pages through opaque nextLink URLs; they already carry the query.
	if isAbsoluteURL(query.PageToken) {
		if !o.rest.sameOrigin(query.PageToken) {
			return nil, domaincal.NewValidationError("pageToken", "pageToken must be a Microsoft Graph nextLink")
		}
		req.path = query.PageToken
	} else {
		params := url.Values{}
		if query.MaxResults > 0 {
			params.Set("$top", strconv.Itoa(query.MaxResults))
		}
		if query.TimeMin != nil && query.TimeMax != nil {
			params.Set("$filter", fmt.Sprintf("start/dateTime ge '%s' and end/dateTime le '%s'",
				query.TimeMin.UTC().Format(time.RFC3339), query.TimeMax.UTC().Format(time.RFC3339)))
		}
		params.Set("$orderby", "start/dateTime")
		req.query = params
	}

	var resp struct {
		Value    []graphEvent `json:"value"`
		NextLink string       `json:"@odata.nextLink"`
	}
	if err := o.rest.do(ctx, accessToken, req, &resp); err != nil {
		return nil, err
	}
	page := &domaincal.EventPage{Events: make([]domaincal.Event, 0, len(resp.Value)), NextPageToken: resp.NextLink}
	for _, e := range resp.Value {
		if e.IsCancelled && !query.ShowDeleted {
			continue
		}
		page.Events = append(page.Events, fromGraphEvent(query.CalendarID, e))
	}
	return page, nil
}

func (o *Outlook) CreateEvent(ctx context.Context, accessToken, calendarID string, in domaincal.EventInput) (*domaincal.Event, error) {
	path := "/me/events"
	if !isDefaultCalendar(calendarID) {
		path = "/me/calendars/" + url.PathEscape(calendarID) + "/events"
	}
	var created graphEvent
	if err := o.rest.do(ctx, accessToken, request{op: "create_event", method: http.MethodPost, path: path, body: toGraphEvent(in)}, &created); err != nil {
		return nil, err
	}
	event := fromGraphEvent(calendarID, created)
	return &event, nil
}

func (o *Outlook) GetEvent(ctx context.Context, accessToken, calendarID, eventID string) (*domaincal.Event, error) {
	var found graphEvent
	if err := o.rest.do(ctx, accessToken, request{op: "get_event", method: http.MethodGet, path: "/me/events/" + url.PathEscape(eventID)}, &found); err != nil {
		return nil, err
	}
	event := fromGraphEvent(calendarID, found)
	return &event, nil
}

func (o *Outlook) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, in domaincal.EventInput) (*domaincal.Event, error) {
	var updated graphEvent
	req := request{op: "update_event", method: http.MethodPatch, path: "/me/events/" + url.PathEscape(eventID), body: toGraphEvent(in)}
	if err := o.rest.do(ctx, accessToken, req, &updated); err != nil {
		return nil, err
	}
	event := fromGraphEvent(calendarID, updated)
	return &event, nil
}

func (o *Outlook) DeleteEvent(ctx context.Context, accessToken, _ string, eventID string) error {
	return o.rest.do(ctx, accessToken, request{op: "delete_event", method: http.MethodDelete, path: "/me/events/" + url.PathEscape(eventID)}, nil)
}

func outlookEventsPath(calendarID string) string {
	if isDefaultCalendar(calendarID) {
		return "/me/calendar/events"
	}
	return "/me/calendars/" + url.PathEscape(calendarID) + "/events"
}

func toGraphEvent(in domaincal.EventInput) graphEvent {
	allDay := in.Start.DateTime == nil && in.Start.Date != ""
	event := graphEvent{
		Subject:  in.Title,
		Start:    toGraphTime(in.Start),
		End:      toGraphTime(in.End),
		IsAllDay: allDay,
	}
	if in.Description != "" {
		event.Body = &graphBody{ContentType: "HTML", Content: in.Description}
	}
	if in.Location != "" {
		event.Location = &graphLocation{DisplayName: in.Location}
	}
	for _, a := range in.Attendees {
		kind := "required"
		if a.Optional {
			kind = "optional"
		}
		event.Attendees = append(event.Attendees, graphAttendee{
			EmailAddress: graphEmail{Address: a.Email, Name: a.Name},
			Type:         kind,
		})
	}
	return event
}

func toGraphTime(t domaincal.EventTime) *graphDateTime {
	if t.DateTime != nil {
		tz := t.TimeZone
		value := t.DateTime.UTC()
		if tz != "" {
			if loc, err := time.LoadLocation(tz); err == nil {
				value = t.DateTime.In(loc)
			} else {
				tz = ""
			}
		}
		if tz == "" {
			tz = "UTC"
		}
		return &graphDateTime{DateTime: value.Format("2006-01-02T15:04:05"), TimeZone: tz}
	}
	tz := t.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	return &graphDateTime{DateTime: t.Date + "T00:00:00", TimeZone: tz}
}

func fromGraphEvent(calendarID string, e graphEvent) domaincal.Event {
	event := domaincal.Event{
		ID:          e.ID,
		CalendarID:  calendarID,
		Title:       e.Subject,
		Description: e.BodyPreview,
		Start:       fromGraphTime(e.Start, e.IsAllDay),
		End:         fromGraphTime(e.End, e.IsAllDay),
		AllDay:      e.IsAllDay,
		URL:         e.WebLink,
		Status:      "confirmed",
		Provider:    domaincal.Outlook,
	}
	if e.Body != nil && e.Body.Content != "" && event.Description == "" {
		event.Description = e.Body.Content
	}
	if e.IsCancelled {
		event.Status = "cancelled"
	}
	if e.Location != nil {
		event.Location = e.Location.DisplayName
	}
	if e.Organizer != nil {
		event.Organizer = e.Organizer.EmailAddress.Address
	}
	for _, a := range e.Attendees {
		attendee := domaincal.Attendee{
			Email:    a.EmailAddress.Address,
			Name:     a.EmailAddress.Name,
			Optional: a.Type == "optional",
		}
		if a.Status != nil {
			attendee.Status = a.Status.Response
		}
		event.Attendees = append(event.Attendees, attendee)
	}
	return event
}

func fromGraphTime(t *graphDateTime, allDay bool) domaincal.EventTime {
	if t == nil || t.DateTime == "" {
		return domaincal.EventTime{}
	}
	loc := time.UTC
	if t.TimeZone != "" {
		if l, err := time.LoadLocation(t.TimeZone); err == nil {
			loc = l
		}
	}
	parsed, err := time.ParseInLocation(graphTimeLayout, t.DateTime, loc)
	if err != nil {
		return domaincal.EventTime{TimeZone: t.TimeZone}
	}
	if allDay {
		return domaincal.EventTime{Date: parsed.Format("2006-01-02"), TimeZone: t.TimeZone}
	}
	return domaincal.EventTime{DateTime: &parsed, TimeZone: t.TimeZone}
}
