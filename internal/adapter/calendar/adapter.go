package calendar

import (
	"context"
	"fmt"
	"net/http"

	"github.com/smallbiznis/calendar-gateway/internal/config"
	domaincal "github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

// Adapter translates normalized calendar operations into one provider's API.
type Adapter interface {
	Provider() domaincal.Provider
	ListCalendars(ctx context.Context, accessToken string) ([]domaincal.Calendar, error)
	ListEvents(ctx context.Context, accessToken string, query domaincal.EventQuery) (*domaincal.EventPage, error)
	CreateEvent(ctx context.Context, accessToken, calendarID string, in domaincal.EventInput) (*domaincal.Event, error)
}

// EventEditor is implemented by providers that address single events.
type EventEditor interface {
	GetEvent(ctx context.Context, accessToken, calendarID, eventID string) (*domaincal.Event, error)
	UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, in domaincal.EventInput) (*domaincal.Event, error)
	DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error
}

// Scheduler is Calendly's booking surface.
type Scheduler interface {
	EventTypes(ctx context.Context, accessToken string, query domaincal.EventTypeQuery) (*domaincal.EventTypePage, error)
	CreateInvitee(ctx context.Context, accessToken string, req domaincal.InviteeRequest) (*domaincal.Booking, error)
}

// Set holds the calendar adapter of every supported provider.
type Set struct {
	Google   *Google
	Outlook  *Outlook
	Calendly *Calendly
	HubSpot  *HubSpot
}

// NewSet builds all four adapters from configuration.
func NewSet(cfg config.Config, client *http.Client) *Set {
	return &Set{
		Google:   NewGoogle(cfg.Google.APIBaseURL, client),
		Outlook:  NewOutlook(cfg.Outlook.APIBaseURL, client),
		Calendly: NewCalendly(cfg.Calendly.APIBaseURL, client),
		HubSpot:  NewHubSpot(cfg.HubSpot.APIBaseURL, client),
	}
}

// For selects the adapter of p.
func (s *Set) For(p domaincal.Provider) (Adapter, error) {
	switch p {
	case domaincal.Google:
		return s.Google, nil
	case domaincal.Outlook:
		return s.Outlook, nil
	case domaincal.Calendly:
		return s.Calendly, nil
	case domaincal.HubSpot:
		return s.HubSpot, nil
	}
	return nil, fmt.Errorf("calendar adapter %q: %w", p, domaincal.ErrUnknownProvider)
}

// Editor returns the single-event surface of p, or ErrUnsupported.
func (s *Set) Editor(p domaincal.Provider) (EventEditor, error) {
	switch p {
	case domaincal.Google:
		return s.Google, nil
	case domaincal.Outlook:
		return s.Outlook, nil
	case domaincal.Calendly, domaincal.HubSpot:
		return nil, domaincal.Unsupported(p, "single event operations")
	}
	return nil, fmt.Errorf("calendar adapter %q: %w", p, domaincal.ErrUnknownProvider)
}

// Scheduler returns the booking surface of p, or ErrUnsupported.
func (s *Set) Scheduler(p domaincal.Provider) (Scheduler, error) {
	if p == domaincal.Calendly {
		return s.Calendly, nil
	}
	if !p.Valid() {
		return nil, fmt.Errorf("calendar adapter %q: %w", p, domaincal.ErrUnknownProvider)
	}
	return nil, domaincal.Unsupported(p, "invitee scheduling")
}

func isDefaultCalendar(id string) bool {
	switch id {
	case "", "primary", "calendar":
		return true
	}
	return false
}
