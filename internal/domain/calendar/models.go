package calendar

import "time"

// Calendar is the provider-neutral calendar description.
type Calendar struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	TimeZone    string   `json:"timeZone,omitempty"`
	Primary     bool     `json:"primary"`
	ReadOnly    bool     `json:"readOnly"`
	Color       string   `json:"color,omitempty"`
	Provider    Provider `json:"provider"`
}

// EventTime is either a timed instant or an all-day date.
type EventTime struct {
	DateTime *time.Time `json:"dateTime,omitempty"`
	Date     string     `json:"date,omitempty"`
	TimeZone string     `json:"timeZone,omitempty"`
}

// IsZero reports whether neither form is set.
func (t EventTime) IsZero() bool {
	return (t.DateTime == nil || t.DateTime.IsZero()) && t.Date == ""
}

// Attendee is one invited participant.
type Attendee struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Event is the provider-neutral event.
type Event struct {
	ID          string     `json:"id"`
	CalendarID  string     `json:"calendarId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	AllDay      bool       `json:"allDay"`
	Status      string     `json:"status,omitempty"`
	URL         string     `json:"url,omitempty"`
	Organizer   string     `json:"organizer,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	Provider    Provider   `json:"provider"`
}

// EventQuery is the normalized event filter. Adapters map the fields their
// provider understands and ignore the rest.
type EventQuery struct {
	CalendarID  string
	TimeMin     *time.Time
	TimeMax     *time.Time
	MaxResults  int
	PageToken   string
	Search      string
	Status      string
	ShowDeleted bool
}

// EventPage is one page of events.
type EventPage struct {
	Events        []Event `json:"events"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// EventInput carries the fields needed to create or replace an event.
type EventInput struct {
	Title       string
	Description string
	Location    string
	Start       EventTime
	End         EventTime
	Attendees   []Attendee
}

// EventType is a Calendly bookable event type.
type EventType struct {
	URI           string `json:"uri"`
	Name          string `json:"name"`
	Slug          string `json:"slug,omitempty"`
	Active        bool   `json:"active"`
	Duration      int    `json:"duration"`
	Kind          string `json:"kind,omitempty"`
	SchedulingURL string `json:"schedulingUrl,omitempty"`
	Color         string `json:"color,omitempty"`
}

// EventTypeQuery filters event types.
type EventTypeQuery struct {
	Count     int
	PageToken string
	Active    *bool
}

// EventTypePage is one page of event types.
type EventTypePage struct {
	EventTypes    []EventType `json:"eventTypes"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// Invitee identifies the person booking a Calendly slot.
type Invitee struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	TimeZone string `json:"timezone,omitempty"`
}

// InviteeRequest books Calendly's analog of an event.
type InviteeRequest struct {
	EventType string
	StartTime time.Time
	Invitee   Invitee
	Location  string
}

// Booking is the created Calendly invitee.
type Booking struct {
	URI       string    `json:"uri"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Status    string    `json:"status,omitempty"`
	Event     string    `json:"event,omitempty"`
	CancelURL string    `json:"cancelUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}
