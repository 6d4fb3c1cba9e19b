package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	"github.com/smallbiznis/calendar-gateway/internal/domain/oauth"
	"github.com/smallbiznis/calendar-gateway/internal/service/integration"
)

// IntegrationHandler serves the per-provider gateway routes. The provider is
// fixed when a route is registered.
type IntegrationHandler struct {
	Integration integration.Service
	now         func() time.Time
}

// NewIntegrationHandler creates the handler set.
func NewIntegrationHandler(svc integration.Service) *IntegrationHandler {
	return &IntegrationHandler{Integration: svc, now: time.Now}
}

// Connect returns the provider authorization URL.
func (h *IntegrationHandler) Connect(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req connectRequest
		if err := bindJSON(c, &req); err != nil {
			respondError(c, p, "Failed to generate auth URL", err)
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, p, "Failed to generate auth URL", validationError(err))
			return
		}

		out, err := h.Integration.Connect(c.Request.Context(), p, integration.ConnectInput{
			RedirectURI: req.redirect(),
			UserID:      req.UserID,
		})
		if err != nil {
			respondError(c, p, "Failed to generate auth URL", err)
			return
		}

		resp := gin.H{"authUrl": out.AuthURL}
		if p == calendar.Google {
			resp["authUri"] = out.AuthURL
		}
		if out.State != "" {
			resp["state"] = out.State
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Token exchanges an authorization code.
func (h *IntegrationHandler) Token(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to exchange code for tokens"
		var req tokenRequest
		if err := bindJSON(c, &req); err != nil {
			respondError(c, p, title, err)
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, p, title, validationError(err))
			return
		}

		out, err := h.Integration.ExchangeCode(c.Request.Context(), p, integration.ExchangeInput{
			Code:        strings.TrimSpace(req.Code),
			RedirectURI: strings.TrimSpace(req.RedirectURI),
			State:       strings.TrimSpace(req.State),
		})
		if err != nil {
			respondError(c, p, title, err)
			return
		}

		resp := h.tokenResponse(p, out.Token)
		if out.Account != nil {
			resp["account"] = out.Account
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Refresh trades a refresh token for a new access token.
func (h *IntegrationHandler) Refresh(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to refresh access token"
		var req refreshRequest
		if err := bindJSON(c, &req); err != nil {
			respondError(c, p, title, err)
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, p, title, validationError(err))
			return
		}

		tok, err := h.Integration.Refresh(c.Request.Context(), p, strings.TrimSpace(req.RefreshToken))
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusOK, h.tokenResponse(p, tok))
	}
}

// Revoke invalidates the bearer token upstream.
func (h *IntegrationHandler) Revoke(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to revoke connection"
		token, err := bearerToken(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		if err := h.Integration.Revoke(c.Request.Context(), p, token); err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": p.DisplayName() + " connection revoked successfully"})
	}
}

// Calendars lists the caller's calendars.
func (h *IntegrationHandler) Calendars(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to get calendars"
		token, err := bearerToken(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		calendars, err := h.Integration.ListCalendars(c.Request.Context(), p, token)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"calendars": nonNil(calendars)})
	}
}

// Events lists events in a window.
func (h *IntegrationHandler) Events(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to get events"
		token, err := bearerToken(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		query, err := parseEventQuery(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		page, err := h.Integration.ListEvents(c.Request.Context(), p, token, query)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusOK, eventPageResponse(page))
	}
}

// CreateEvent creates an event; for Calendly it books an invitee.
func (h *IntegrationHandler) CreateEvent(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to create event"
		token, err := bearerToken(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		req, err := bindEvent(c, p)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		event, err := h.Integration.CreateEvent(c.Request.Context(), p, token, strings.TrimSpace(req.CalendarID), req.Event.toDomain())
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"event": event})
	}
}

// GetEvent fetches one event.
func (h *IntegrationHandler) GetEvent(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to get event"
		token, err := bearerToken(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		event, err := h.Integration.GetEvent(c.Request.Context(), p, token, c.Query("calendarId"), c.Param("eventId"))
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"event": event})
	}
}

// UpdateEvent replaces the mutable fields of one event.
func (h *IntegrationHandler) UpdateEvent(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to update event"
		token, err := bearerToken(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		req, err := bindEvent(c, p)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		calendarID := strings.TrimSpace(req.CalendarID)
		if calendarID == "" {
			calendarID = c.Query("calendarId")
		}
		event, err := h.Integration.UpdateEvent(c.Request.Context(), p, token, calendarID, c.Param("eventId"), req.Event.toDomain())
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"event": event})
	}
}

// DeleteEvent removes one event.
func (h *IntegrationHandler) DeleteEvent(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to delete event"
		token, err := bearerToken(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		if err := h.Integration.DeleteEvent(c.Request.Context(), p, token, c.Query("calendarId"), c.Param("eventId")); err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully"})
	}
}

// EventTypes lists Calendly event types.
func (h *IntegrationHandler) EventTypes(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to retrieve event types"
		token, err := bearerToken(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		query := calendar.EventTypeQuery{PageToken: c.Query("page_token")}
		if raw := c.Query("count"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				respondError(c, p, title, calendar.NewValidationError("count", "count must be a positive integer"))
				return
			}
			query.Count = n
		}
		if raw := c.Query("active"); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				respondError(c, p, title, calendar.NewValidationError("active", "active must be true or false"))
				return
			}
			query.Active = &active
		}

		page, err := h.Integration.EventTypes(c.Request.Context(), p, token, query)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		resp := gin.H{"eventTypes": nonNil(page.EventTypes)}
		if page.NextPageToken != "" {
			resp["nextPageToken"] = page.NextPageToken
		}
		c.JSON(http.StatusOK, resp)
	}
}

// CreateInvitee books a Calendly slot.
func (h *IntegrationHandler) CreateInvitee(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to create invitee"
		token, err := bearerToken(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		var req inviteeRequest
		if err := bindJSON(c, &req); err != nil {
			respondError(c, p, title, err)
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, p, title, validationError(err))
			return
		}
		booking, err := h.Integration.CreateInvitee(c.Request.Context(), p, token, req.toDomain())
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"invitee": booking})
	}
}

// Account reports the stored connection of a user.
func (h *IntegrationHandler) Account(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := h.Integration.Account(c.Request.Context(), p, c.Param("userId"))
		if err != nil {
			respondError(c, p, "Failed to load account", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account": account})
	}
}

// AccountCalendars lists calendars with the stored credential.
func (h *IntegrationHandler) AccountCalendars(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		calendars, err := h.Integration.AccountCalendars(c.Request.Context(), p, c.Param("userId"))
		if err != nil {
			respondError(c, p, "Failed to get calendars", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"calendars": nonNil(calendars)})
	}
}

// AccountEvents lists events with the stored credential.
func (h *IntegrationHandler) AccountEvents(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to get events"
		query, err := parseEventQuery(c)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		page, err := h.Integration.AccountEvents(c.Request.Context(), p, c.Param("userId"), query)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusOK, eventPageResponse(page))
	}
}

// AccountCreateEvent creates an event with the stored credential.
func (h *IntegrationHandler) AccountCreateEvent(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Failed to create event"
		req, err := bindEvent(c, p)
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		event, err := h.Integration.AccountCreateEvent(c.Request.Context(), p, c.Param("userId"), strings.TrimSpace(req.CalendarID), req.Event.toDomain())
		if err != nil {
			respondError(c, p, title, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"event": event})
	}
}

// Disconnect revokes and forgets the stored connection of a user.
func (h *IntegrationHandler) Disconnect(p calendar.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := h.Integration.Disconnect(c.Request.Context(), p, c.Param("userId"))
		if err != nil {
			respondError(c, p, "Failed to disconnect account", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": p.DisplayName() + " account disconnected",
			"revoked": out.Revoked,
		})
	}
}

func bindEvent(c *gin.Context, p calendar.Provider) (eventRequest, error) {
	var req eventRequest
	if err := bindJSON(c, &req); err != nil {
		return req, err
	}
	if err := req.validate(p); err != nil {
		return req, validationError(err)
	}
	return req, nil
}

func parseEventQuery(c *gin.Context) (calendar.EventQuery, error) {
	query := calendar.EventQuery{
		CalendarID: c.Query("calendarId"),
		PageToken:  c.Query("pageToken"),
		Search:     c.Query("q"),
		Status:     c.Query("status"),
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"timeMin", &query.TimeMin}, {"timeMax", &query.TimeMax}} {
		raw := strings.TrimSpace(c.Query(bound.name))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, calendar.NewValidationError(bound.name, "%s must be an RFC3339 timestamp", bound.name)
		}
		*bound.dst = &ts
	}
	if raw := c.Query("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return query, calendar.NewValidationError("maxResults", "maxResults must be a positive integer")
		}
		query.MaxResults = n
	}
	if raw := c.Query("showDeleted"); raw != "" {
		query.ShowDeleted, _ = strconv.ParseBool(raw)
	}
	return query, nil
}

func eventPageResponse(page *calendar.EventPage) gin.H {
	resp := gin.H{"events": nonNil(page.Events)}
	if page.NextPageToken != "" {
		resp["nextPageToken"] = page.NextPageToken
	}
	return resp
}

// tokenResponse renders the provider token. Google clients expect an absolute
// expiry_date in milliseconds; the others get expires_in seconds.
func (h *IntegrationHandler) tokenResponse(p calendar.Provider, tok *oauth.Token) gin.H {
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	resp := gin.H{
		"access_token":  tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"token_type":    tokenType,
		"scope":         tok.Scope,
	}
	now := h.now()
	switch p {
	case calendar.Google:
		if !tok.Expiry.IsZero() || tok.ExpiresIn > 0 {
			resp["expiry_date"] = tok.ExpiresAt(now, 0).UnixMilli()
		}
	default:
		expiresIn := tok.ExpiresIn
		if expiresIn == 0 && tok.Expiry.After(now) {
			expiresIn = int64(tok.Expiry.Sub(now).Seconds())
		}
		resp["expires_in"] = expiresIn
	}
	if p == calendar.Calendly {
		for _, key := range []string{"owner", "organization"} {
			if v, ok := tok.Raw[key]; ok && v != nil {
				resp[key] = v
			}
		}
	}
	return resp
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
