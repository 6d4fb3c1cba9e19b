package calendar

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	domaincal "github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

const calendlyBaseURL = "https://api.calendly.com"

// Calendly has no writable calendar; events are created by booking an
// invitee against an event type.
type Calendly struct {
	rest restClient
}

var (
	_ Adapter   = (*Calendly)(nil)
	_ Scheduler = (*Calendly)(nil)
)

func NewCalendly(baseURL string, client *http.Client) *Calendly {
	if baseURL == "" {
		baseURL = calendlyBaseURL
	}
	return &Calendly{rest: newRESTClient(domaincal.Calendly, baseURL, client)}
}

func (c *Calendly) Provider() domaincal.Provider { return domaincal.Calendly }

// CalendlyUser is the owner of a Calendly access token.
type CalendlyUser struct {
	URI                 string `json:"uri"`
	Name                string `json:"name"`
	Email               string `json:"email"`
	Timezone            string `json:"timezone"`
	SchedulingURL       string `json:"scheduling_url"`
	CurrentOrganization string `json:"current_organization"`
}

type calendlyPagination struct {
	NextPageToken string `json:"next_page_token"`
}

type calendlyEventType struct {
	URI           string `json:"uri"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Active        bool   `json:"active"`
	Duration      int    `json:"duration"`
	Kind          string `json:"kind"`
	SchedulingURL string `json:"scheduling_url"`
	Color         string `json:"color"`
}

type calendlyScheduledEvent struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	EventType string    `json:"event_type"`
	Location  *struct {
		Type     string `json:"type"`
		Location string `json:"location"`
		JoinURL  string `json:"join_url"`
	} `json:"location"`
}

type calendlyInvitee struct {
	URI       string    `json:"uri"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Event     string    `json:"event"`
	CancelURL string    `json:"cancel_url"`
	CreatedAt time.Time `json:"created_at"`
}

// CurrentUser returns the user the access token belongs to.
func (c *Calendly) CurrentUser(ctx context.Context, accessToken string) (*CalendlyUser, error) {
	var resp struct {
		Resource CalendlyUser `json:"resource"`
	}
	if err := c.rest.do(ctx, accessToken, request{op: "current_user", method: http.MethodGet, path: "/users/me"}, &resp); err != nil {
		return nil, err
	}
	return &resp.Resource, nil
}

// ListCalendars returns the single booking calendar of the user.
func (c *Calendly) ListCalendars(ctx context.Context, accessToken string) ([]domaincal.Calendar, error) {
	user, err := c.CurrentUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return []domaincal.Calendar{{
		ID:       user.URI,
		Name:     user.Name,
		TimeZone: user.Timezone,
		Primary:  true,
		ReadOnly: true,
		Provider: domaincal.Calendly,
	}}, nil
}

func (c *Calendly) ListEvents(ctx context.Context, accessToken string, query domaincal.EventQuery) (*domaincal.EventPage, error) {
	user, err := c.CurrentUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("user", user.URI)
	params.Set("sort", "start_time:asc")
	if query.TimeMin != nil {
		params.Set("min_start_time", query.TimeMin.UTC().Format(time.RFC3339))
	}
	if query.TimeMax != nil {
		params.Set("max_start_time", query.TimeMax.UTC().Format(time.RFC3339))
	}
	if query.Status != "" {
		params.Set("status", query.Status)
	}
	if query.MaxResults > 0 {
		params.Set("count", strconv.Itoa(query.MaxResults))
	}
	if query.PageToken != "" {
		params.Set("page_token", query.PageToken)
	}

	var resp struct {
		Collection []calendlyScheduledEvent `json:"collection"`
		Pagination calendlyPagination       `json:"pagination"`
	}
	req := request{op: "list_events", method: http.MethodGet, path: "/scheduled_events", query: params}
	if err := c.rest.do(ctx, accessToken, req, &resp); err != nil {
		return nil, err
	}
	page := &domaincal.EventPage{Events: make([]domaincal.Event, 0, len(resp.Collection)), NextPageToken: resp.Pagination.NextPageToken}
	for _, e := range resp.Collection {
		page.Events = append(page.Events, fromCalendlyEvent(user.URI, e))
	}
	return page, nil
}

// CreateEvent books an invitee. calendarID names the event type URI and the
// first attendee becomes the invitee.
func (c *Calendly) CreateEvent(ctx context.Context, accessToken, calendarID string, in domaincal.EventInput) (*domaincal.Event, error) {
	req := domaincal.InviteeRequest{EventType: calendarID, Location: in.Location}
	if isDefaultCalendar(calendarID) {
		req.EventType = ""
	}
	if in.Start.DateTime != nil {
		req.StartTime = *in.Start.DateTime
	}
	if len(in.Attendees) > 0 {
		req.Invitee = domaincal.Invitee{Email: in.Attendees[0].Email, Name: in.Attendees[0].Name, TimeZone: in.Start.TimeZone}
	}
	booking, err := c.CreateInvitee(ctx, accessToken, req)
	if err != nil {
		return nil, err
	}
	event := &domaincal.Event{
		ID:         booking.Event,
		CalendarID: req.EventType,
		Title:      in.Title,
		Location:   in.Location,
		Start:      in.Start,
		End:        in.End,
		Status:     booking.Status,
		URL:        booking.URI,
		Attendees:  []domaincal.Attendee{{Email: booking.Email, Name: booking.Name, Status: booking.Status}},
		Provider:   domaincal.Calendly,
	}
	return event, nil
}

func (c *Calendly) EventTypes(ctx context.Context, accessToken string, query domaincal.EventTypeQuery) (*domaincal.EventTypePage, error) {
	user, err := c.CurrentUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("user", user.URI)
	if query.Count > 0 {
		params.Set("count", strconv.Itoa(query.Count))
	}
	if query.PageToken != "" {
		params.Set("page_token", query.PageToken)
	}
	if query.Active != nil {
		params.Set("active", strconv.FormatBool(*query.Active))
	}

	var resp struct {
		Collection []calendlyEventType `json:"collection"`
		Pagination calendlyPagination  `json:"pagination"`
	}
	req := request{op: "list_event_types", method: http.MethodGet, path: "/event_types", query: params}
	if err := c.rest.do(ctx, accessToken, req, &resp); err != nil {
		return nil, err
	}
	page := &domaincal.EventTypePage{EventTypes: make([]domaincal.EventType, 0, len(resp.Collection)), NextPageToken: resp.Pagination.NextPageToken}
	for _, et := range resp.Collection {
		page.EventTypes = append(page.EventTypes, domaincal.EventType{
			URI:           et.URI,
			Name:          et.Name,
			Slug:          et.Slug,
			Active:        et.Active,
			Duration:      et.Duration,
			Kind:          et.Kind,
			SchedulingURL: et.SchedulingURL,
			Color:         et.Color,
		})
	}
	return page, nil
}

type calendlyInviteeBody struct {
	EventType string `json:"event_type"`
	StartTime string `json:"start_time"`
	Invitee   struct {
		Email    string `json:"email"`
		Name     string `json:"name,omitempty"`
		Timezone string `json:"timezone,omitempty"`
	} `json:"invitee"`
	Location *calendlyLocation `json:"location,omitempty"`
}

type calendlyLocation struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
}

func (c *Calendly) CreateInvitee(ctx context.Context, accessToken string, in domaincal.InviteeRequest) (*domaincal.Booking, error) {
	if in.EventType == "" {
		return nil, domaincal.Required("event_type")
	}
	if in.StartTime.IsZero() {
		return nil, domaincal.Required("start_time")
	}
	if in.Invitee.Email == "" {
		return nil, domaincal.Required("invitee.email")
	}

	var body calendlyInviteeBody
	body.EventType = in.EventType
	body.StartTime = in.StartTime.UTC().Format(time.RFC3339)
	body.Invitee.Email = in.Invitee.Email
	body.Invitee.Name = in.Invitee.Name
	body.Invitee.Timezone = in.Invitee.TimeZone
	if in.Location != "" {
		body.Location = &calendlyLocation{Kind: "physical", Location: in.Location}
	}

	var resp struct {
		Resource calendlyInvitee `json:"resource"`
	}
	req := request{op: "create_invitee", method: http.MethodPost, path: "/invitees", body: body}
	if err := c.rest.do(ctx, accessToken, req, &resp); err != nil {
		return nil, err
	}
	r := resp.Resource
	return &domaincal.Booking{
		URI:       r.URI,
		Email:     r.Email,
		Name:      r.Name,
		Status:    r.Status,
		Event:     r.Event,
		CancelURL: r.CancelURL,
		CreatedAt: r.CreatedAt,
	}, nil
}

func fromCalendlyEvent(calendarID string, e calendlyScheduledEvent) domaincal.Event {
	start, end := e.StartTime, e.EndTime
	event := domaincal.Event{
		ID:         e.URI,
		CalendarID: calendarID,
		Title:      e.Name,
		Start:      domaincal.EventTime{DateTime: &start, TimeZone: "UTC"},
		End:        domaincal.EventTime{DateTime: &end, TimeZone: "UTC"},
		Status:     e.Status,
		URL:        e.URI,
		Provider:   domaincal.Calendly,
	}
	if e.Location != nil {
		event.Location = firstNonEmpty(e.Location.Location, e.Location.JoinURL)
	}
	return event
}
