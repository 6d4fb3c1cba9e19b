package integration

import (
	"time"

	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	"github.com/smallbiznis/calendar-gateway/internal/domain/oauth"
)

// Log payloads describe a call without ever carrying credentials.

func connectSummary(out *ConnectOutput) map[string]any {
	if out == nil {
		return nil
	}
	return map[string]any{"state_issued": out.State != ""}
}

func exchangeSummary(out *ExchangeOutput) map[string]any {
	if out == nil {
		return nil
	}
	summary := tokenSummary(out.Token)
	summary["stored"] = out.Account != nil
	return summary
}

func tokenSummary(tok *oauth.Token) map[string]any {
	summary := map[string]any{}
	if tok == nil {
		return summary
	}
	summary["token_type"] = tok.TokenType
	summary["has_refresh_token"] = tok.RefreshToken != ""
	if tok.Scope != "" {
		summary["scope"] = tok.Scope
	}
	if tok.ExpiresIn > 0 {
		summary["expires_in"] = tok.ExpiresIn
	}
	return summary
}

func querySummary(query calendar.EventQuery) map[string]any {
	summary := map[string]any{}
	if query.CalendarID != "" {
		summary["calendarId"] = query.CalendarID
	}
	if query.TimeMin != nil {
		summary["timeMin"] = query.TimeMin.UTC().Format(time.RFC3339)
	}
	if query.TimeMax != nil {
		summary["timeMax"] = query.TimeMax.UTC().Format(time.RFC3339)
	}
	if query.MaxResults > 0 {
		summary["maxResults"] = query.MaxResults
	}
	if query.PageToken != "" {
		summary["paged"] = true
	}
	return summary
}

func pageSummary(page *calendar.EventPage) map[string]any {
	if page == nil {
		return nil
	}
	return map[string]any{"count": len(page.Events), "has_more": page.NextPageToken != ""}
}

func inputSummary(calendarID string, in calendar.EventInput) map[string]any {
	return map[string]any{
		"calendarId": calendarID,
		"title":      in.Title,
		"attendees":  len(in.Attendees),
	}
}

func eventSummary(event *calendar.Event) map[string]any {
	if event == nil {
		return nil
	}
	return map[string]any{"id": event.ID, "status": event.Status}
}
