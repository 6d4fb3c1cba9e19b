package calendar

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domaincal "github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

const (
	hubspotBaseURL    = "https://api.hubapi.com"
	hubspotCalendarID = "meetings"
	hubspotMaxLimit   = 100
)

var hubspotMeetingProperties = []string{
	"hs_meeting_title",
	"hs_meeting_body",
	"hs_meeting_location",
	"hs_meeting_start_time",
	"hs_meeting_end_time",
	"hs_meeting_outcome",
	"hs_meeting_external_url",
}

// HubSpot exposes CRM meeting engagements as a single calendar.
type HubSpot struct {
	rest restClient
}

var _ Adapter = (*HubSpot)(nil)

func NewHubSpot(baseURL string, client *http.Client) *HubSpot {
	if baseURL == "" {
		baseURL = hubspotBaseURL
	}
	return &HubSpot{rest: newRESTClient(domaincal.HubSpot, baseURL, client)}
}

func (h *HubSpot) Provider() domaincal.Provider { return domaincal.HubSpot }

type hubspotMeeting struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	Archived   bool              `json:"archived"`
}

// ListCalendars returns the synthetic meetings calendar; HubSpot has no calendar listing.
func (h *HubSpot) ListCalendars(_ context.Context, _ string) ([]domaincal.Calendar, error) {
	return []domaincal.Calendar{{
		ID:       hubspotCalendarID,
		Name:     "HubSpot Meetings",
		Primary:  true,
		Provider: domaincal.HubSpot,
	}}, nil
}

func (h *HubSpot) ListEvents(ctx context.Context, accessToken string, query domaincal.EventQuery) (*domaincal.EventPage, error) {
	limit := query.MaxResults
	if limit <= 0 || limit > hubspotMaxLimit {
		limit = hubspotMaxLimit
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("properties", strings.Join(hubspotMeetingProperties, ","))
	if query.PageToken != "" {
		params.Set("after", query.PageToken)
	}
	if query.ShowDeleted {
		params.Set("archived", "true")
	}

	var resp struct {
		Results []hubspotMeeting `json:"results"`
		Paging  *struct {
			Next *struct {
				After string `json:"after"`
			} `json:"next"`
		} `json:"paging"`
	}
	req := request{op: "list_events", method: http.MethodGet, path: "/crm/v3/objects/meetings", query: params}
	if err := h.rest.do(ctx, accessToken, req, &resp); err != nil {
		return nil, err
	}

	page := &domaincal.EventPage{Events: make([]domaincal.Event, 0, len(resp.Results))}
	if resp.Paging != nil && resp.Paging.Next != nil {
		page.NextPageToken = resp.Paging.Next.After
	}
	// The list endpoint has no time filter; the window is applied here.
	for _, m := range resp.Results {
		event := fromHubSpotMeeting(m)
		if !inWindow(event.Start.DateTime, query.TimeMin, query.TimeMax) {
			continue
		}
		page.Events = append(page.Events, event)
	}
	return page, nil
}

func (h *HubSpot) CreateEvent(ctx context.Context, accessToken, _ string, in domaincal.EventInput) (*domaincal.Event, error) {
	if in.Start.DateTime == nil {
		return nil, domaincal.NewValidationError("event.start.dateTime", "event.start.dateTime is required for HubSpot meetings")
	}
	props := map[string]string{
		"hs_timestamp":          in.Start.DateTime.UTC().Format(time.RFC3339),
		"hs_meeting_title":      in.Title,
		"hs_meeting_start_time": in.Start.DateTime.UTC().Format(time.RFC3339),
	}
	if in.End.DateTime != nil {
		props["hs_meeting_end_time"] = in.End.DateTime.UTC().Format(time.RFC3339)
	}
	if in.Description != "" {
		props["hs_meeting_body"] = in.Description
	}
	if in.Location != "" {
		props["hs_meeting_location"] = in.Location
	}

	var created hubspotMeeting
	body := map[string]any{"properties": props}
	req := request{op: "create_event", method: http.MethodPost, path: "/crm/v3/objects/meetings", body: body}
	if err := h.rest.do(ctx, accessToken, req, &created); err != nil {
		return nil, err
	}
	event := fromHubSpotMeeting(created)
	return &event, nil
}

func fromHubSpotMeeting(m hubspotMeeting) domaincal.Event {
	p := m.Properties
	event := domaincal.Event{
		ID:          m.ID,
		CalendarID:  hubspotCalendarID,
		Title:       p["hs_meeting_title"],
		Description: p["hs_meeting_body"],
		Location:    p["hs_meeting_location"],
		Start:       hubspotTime(p["hs_meeting_start_time"]),
		End:         hubspotTime(p["hs_meeting_end_time"]),
		Status:      strings.ToLower(p["hs_meeting_outcome"]),
		URL:         p["hs_meeting_external_url"],
		Provider:    domaincal.HubSpot,
	}
	if m.Archived {
		event.Status = "cancelled"
	}
	return event
}

func hubspotTime(value string) domaincal.EventTime {
	if value == "" {
		return domaincal.EventTime{}
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return domaincal.EventTime{DateTime: &parsed, TimeZone: "UTC"}
	}
	// Older portals return epoch milliseconds.
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		parsed := time.UnixMilli(ms).UTC()
		return domaincal.EventTime{DateTime: &parsed, TimeZone: "UTC"}
	}
	return domaincal.EventTime{}
}

func inWindow(start, from, until *time.Time) bool {
	if start == nil {
		return from == nil && until == nil
	}
	if from != nil && start.Before(*from) {
		return false
	}
	if until != nil && !start.Before(*until) {
		return false
	}
	return true
}
