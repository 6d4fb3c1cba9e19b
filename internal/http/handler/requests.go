package handler

import (
	"errors"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

var (
	required = validation.Required.Error("is required")
	email    = is.Email.Error("must be a valid email")
	rfc3339  = validation.Date(time.RFC3339).Error("must be an RFC3339 timestamp")
)

// httpURL accepts empty values; combine with required where needed.
func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return errors.New("must be a valid URL starting with http:// or https://")
	}
	return is.URL.Validate(s)
}

type connectRequest struct {
	RedirectURI      string `json:"redirect_uri"`
	RedirectURICamel string `json:"redirectUri"`
	UserID           string `json:"user_id"`
}

func (r connectRequest) redirect() string {
	if v := strings.TrimSpace(r.RedirectURI); v != "" {
		return v
	}
	return strings.TrimSpace(r.RedirectURICamel)
}

func (r connectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RedirectURI, validation.By(httpURL)),
		validation.Field(&r.RedirectURICamel, validation.By(httpURL)),
		validation.Field(&r.UserID, validation.Length(1, 255)),
	)
}

type tokenRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
}

func (r tokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, required),
		validation.Field(&r.RedirectURI, validation.By(httpURL)),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, required),
	)
}

type eventTimePayload struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
	TimeZone string `json:"timeZone"`
}

func (t eventTimePayload) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.DateTime, rfc3339),
		validation.Field(&t.Date, validation.Date("2006-01-02").Error("must be a YYYY-MM-DD date")),
	)
}

func (t eventTimePayload) empty() bool {
	return strings.TrimSpace(t.DateTime) == "" && strings.TrimSpace(t.Date) == ""
}

func (t eventTimePayload) toDomain() calendar.EventTime {
	out := calendar.EventTime{Date: strings.TrimSpace(t.Date), TimeZone: strings.TrimSpace(t.TimeZone)}
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(t.DateTime)); err == nil {
		out.DateTime = &ts
	}
	return out
}

type attendeePayload struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Optional bool   `json:"optional"`
}

func (a attendeePayload) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Email, required, email),
	)
}

type eventPayload struct {
	Title       string            `json:"title"`
	Summary     string            `json:"summary"`
	Description string            `json:"description"`
	Location    string            `json:"location"`
	Start       eventTimePayload  `json:"start"`
	End         eventTimePayload  `json:"end"`
	Attendees   []attendeePayload `json:"attendees"`
}

func (e eventPayload) title() string {
	if v := strings.TrimSpace(e.Title); v != "" {
		return v
	}
	return strings.TrimSpace(e.Summary)
}

// validate applies the rules of p. Calendly events are bookings and need an
// invitee in place of an end time.
func (e eventPayload) validate(p calendar.Provider) error {
	check := func(ok func() bool, msg string) validation.Rule {
		return validation.By(func(interface{}) error {
			if !ok() {
				return errors.New(msg)
			}
			return nil
		})
	}
	hasTitle := func() bool { return e.title() != "" }
	hasStart := func() bool { return !e.Start.empty() }
	hasEnd := func() bool { return !e.End.empty() }
	hasStartTime := func() bool { return strings.TrimSpace(e.Start.DateTime) != "" }

	var titleRules, startRules, endRules, attendeeRules []validation.Rule
	switch p {
	case calendar.Google, calendar.Outlook:
		titleRules = append(titleRules, check(hasTitle, "is required"))
		startRules = append(startRules, check(hasStart, "is required"))
		endRules = append(endRules, check(hasEnd, "is required"))
	case calendar.HubSpot:
		startRules = append(startRules, check(hasStartTime, "is required"))
	case calendar.Calendly:
		startRules = append(startRules, check(hasStartTime, "is required"))
		attendeeRules = append(attendeeRules, validation.Required.Error("must name the invitee"))
	}
	return validation.ValidateStruct(&e,
		validation.Field(&e.Title, titleRules...),
		validation.Field(&e.Start, startRules...),
		validation.Field(&e.End, endRules...),
		validation.Field(&e.Attendees, attendeeRules...),
	)
}

func (e eventPayload) toDomain() calendar.EventInput {
	in := calendar.EventInput{
		Title:       e.title(),
		Description: e.Description,
		Location:    e.Location,
		Start:       e.Start.toDomain(),
		End:         e.End.toDomain(),
	}
	for _, a := range e.Attendees {
		in.Attendees = append(in.Attendees, calendar.Attendee{
			Email:    strings.TrimSpace(a.Email),
			Name:     a.Name,
			Optional: a.Optional,
		})
	}
	return in
}

type eventRequest struct {
	CalendarID string       `json:"calendarId"`
	Event      eventPayload `json:"event"`
}

func (r eventRequest) validate(p calendar.Provider) error {
	if err := r.Event.validate(p); err != nil {
		return validation.Errors{"event": err}
	}
	return nil
}

type inviteePayload struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

func (i inviteePayload) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Email, required, email),
	)
}

type inviteeRequest struct {
	EventType string         `json:"event_type"`
	StartTime string         `json:"start_time"`
	Invitee   inviteePayload `json:"invitee"`
	Location  string         `json:"location"`
}

func (r inviteeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EventType, required),
		validation.Field(&r.StartTime, required, rfc3339),
		validation.Field(&r.Invitee),
	)
}

func (r inviteeRequest) toDomain() calendar.InviteeRequest {
	start, _ := time.Parse(time.RFC3339, strings.TrimSpace(r.StartTime))
	return calendar.InviteeRequest{
		EventType: strings.TrimSpace(r.EventType),
		StartTime: start,
		Invitee: calendar.Invitee{
			Email:    strings.TrimSpace(r.Invitee.Email),
			Name:     r.Invitee.Name,
			TimeZone: r.Invitee.Timezone,
		},
		Location: r.Location,
	}
}

// validationError turns ozzo errors into a ValidationError naming the first
// offending field by its dotted JSON path, e.g. "invitee.email is required".
func validationError(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		var internal validation.InternalError
		if errors.As(err, &internal) {
			return internal
		}
		return &calendar.ValidationError{Message: err.Error()}
	}
	field, msg := firstFieldError("", errs)
	return &calendar.ValidationError{Field: field, Message: strings.TrimSpace(field + " " + msg)}
}

func firstFieldError(prefix string, errs validation.Errors) (string, string) {
	keys := make([]string, 0, len(errs))
	for k, v := range errs {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		var nested validation.Errors
		if errors.As(errs[k], &nested) {
			return firstFieldError(path, nested)
		}
		return path, errs[k].Error()
	}
	return prefix, "is invalid"
}
