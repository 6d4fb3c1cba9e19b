// Package integration orchestrates provider adapters, stored credentials and
// the integration audit log.
package integration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	calendaradapter "github.com/smallbiznis/calendar-gateway/internal/adapter/calendar"
	oauthadapter "github.com/smallbiznis/calendar-gateway/internal/adapter/oauth"
	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	"github.com/smallbiznis/calendar-gateway/internal/domain/oauth"
	"github.com/smallbiznis/calendar-gateway/internal/metrics"
	"github.com/smallbiznis/calendar-gateway/internal/repository"
)

// Service defines the gateway operations exposed over HTTP.
type Service interface {
	Connect(ctx context.Context, p calendar.Provider, in ConnectInput) (*ConnectOutput, error)
	ExchangeCode(ctx context.Context, p calendar.Provider, in ExchangeInput) (*ExchangeOutput, error)
	Refresh(ctx context.Context, p calendar.Provider, refreshToken string) (*oauth.Token, error)
	Revoke(ctx context.Context, p calendar.Provider, token string) error

	ListCalendars(ctx context.Context, p calendar.Provider, accessToken string) ([]calendar.Calendar, error)
	ListEvents(ctx context.Context, p calendar.Provider, accessToken string, query calendar.EventQuery) (*calendar.EventPage, error)
	CreateEvent(ctx context.Context, p calendar.Provider, accessToken, calendarID string, in calendar.EventInput) (*calendar.Event, error)
	GetEvent(ctx context.Context, p calendar.Provider, accessToken, calendarID, eventID string) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, p calendar.Provider, accessToken, calendarID, eventID string, in calendar.EventInput) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, p calendar.Provider, accessToken, calendarID, eventID string) error
	EventTypes(ctx context.Context, p calendar.Provider, accessToken string, query calendar.EventTypeQuery) (*calendar.EventTypePage, error)
	CreateInvitee(ctx context.Context, p calendar.Provider, accessToken string, req calendar.InviteeRequest) (*calendar.Booking, error)

	Account(ctx context.Context, p calendar.Provider, userID string) (*AccountStatus, error)
	AccountCalendars(ctx context.Context, p calendar.Provider, userID string) ([]calendar.Calendar, error)
	AccountEvents(ctx context.Context, p calendar.Provider, userID string, query calendar.EventQuery) (*calendar.EventPage, error)
	AccountCreateEvent(ctx context.Context, p calendar.Provider, userID, calendarID string, in calendar.EventInput) (*calendar.Event, error)
	Disconnect(ctx context.Context, p calendar.Provider, userID string) (*DisconnectOutput, error)
}

// ConnectInput starts an authorization. UserID is optional; when set, a
// state value ties the later code exchange to the user.
type ConnectInput struct {
	RedirectURI string
	UserID      string
}

// ConnectOutput carries the provider authorization URL.
type ConnectOutput struct {
	AuthURL string
	State   string
}

// ExchangeInput completes an authorization.
type ExchangeInput struct {
	Code        string
	RedirectURI string
	State       string
}

// ExchangeOutput is the provider token plus the stored account when a user was bound.
type ExchangeOutput struct {
	Token   *oauth.Token
	Account *AccountStatus
}

// AccountStatus describes a stored connection without its credentials.
type AccountStatus struct {
	UserID            string            `json:"userId"`
	Provider          calendar.Provider `json:"provider"`
	ExternalAccountID string            `json:"externalAccountId,omitempty"`
	Scope             string            `json:"scope,omitempty"`
	ExpiresAt         *time.Time        `json:"expiresAt,omitempty"`
	Expired           bool              `json:"expired"`
	ConnectedAt       time.Time         `json:"connectedAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// DisconnectOutput reports whether the provider confirmed revocation.
type DisconnectOutput struct {
	Revoked bool
}

// TokenManager is the credential surface the service depends on.
type TokenManager interface {
	Account(ctx context.Context, userID string, provider calendar.Provider) (domain.ConnectedAccount, error)
	AccessToken(ctx context.Context, userID string, provider calendar.Provider) (string, error)
	Store(ctx context.Context, userID string, provider calendar.Provider, tok *oauth.Token) (domain.ConnectedAccount, error)
	Forget(ctx context.Context, userID string, provider calendar.Provider) (bool, error)
	ForgetToken(ctx context.Context, provider calendar.Provider, token string) (int64, error)
}

// OAuthAdapters resolves the OAuth adapter of a provider.
type OAuthAdapters interface {
	For(p calendar.Provider) (oauthadapter.Adapter, error)
}

// CalendarAdapters resolves the calendar surfaces of a provider.
type CalendarAdapters interface {
	For(p calendar.Provider) (calendaradapter.Adapter, error)
	Editor(p calendar.Provider) (calendaradapter.EventEditor, error)
	Scheduler(p calendar.Provider) (calendaradapter.Scheduler, error)
}

type service struct {
	oauth     OAuthAdapters
	calendars CalendarAdapters
	tokens    TokenManager
	states    repository.OAuthStateStore
	logs      repository.IntegrationLogRepository
	cfg       config.Config
	now       func() time.Time
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewService wires the integration service. states and logs may be nil.
func NewService(
	oauthAdapters OAuthAdapters,
	calendars CalendarAdapters,
	tokens TokenManager,
	states repository.OAuthStateStore,
	logs repository.IntegrationLogRepository,
	cfg config.Config,
	logger *zap.Logger,
) Service {
	return &service{
		oauth:     oauthAdapters,
		calendars: calendars,
		tokens:    tokens,
		states:    states,
		logs:      logs,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
		tracer:    otel.Tracer("github.com/smallbiznis/calendar-gateway/internal/service/integration"),
	}
}

func (s *service) Connect(ctx context.Context, p calendar.Provider, in ConnectInput) (out *ConnectOutput, err error) {
	ctx, span := s.startSpan(ctx, "Integration.Connect", p)
	defer span.End()
	userID := strings.TrimSpace(in.UserID)
	defer func() {
		s.record(ctx, span, entry{provider: p, userID: userID, action: "connect",
			request:  map[string]any{"redirect_uri": in.RedirectURI, "user_id": userID},
			response: connectSummary(out)}, err)
	}()

	adapter, err := s.oauth.For(p)
	if err != nil {
		return nil, err
	}

	var state string
	if userID != "" {
		if s.states == nil {
			return nil, &calendar.ConfigurationError{Provider: p, Setting: "oauth state store"}
		}
		state = uuid.NewString()
	}
	authURL, err := adapter.AuthorizationURL(strings.TrimSpace(in.RedirectURI), state)
	if err != nil {
		return nil, err
	}
	if state != "" {
		payload := oauth.State{
			State:       state,
			Provider:    string(p),
			UserID:      userID,
			RedirectURI: strings.TrimSpace(in.RedirectURI),
			CreatedAt:   s.now().UTC(),
		}
		if err := s.states.SaveState(ctx, state, payload, s.stateTTL()); err != nil {
			return nil, fmt.Errorf("persist oauth state: %w", err)
		}
	}
	return &ConnectOutput{AuthURL: authURL, State: state}, nil
}

func (s *service) ExchangeCode(ctx context.Context, p calendar.Provider, in ExchangeInput) (out *ExchangeOutput, err error) {
	ctx, span := s.startSpan(ctx, "Integration.ExchangeCode", p)
	defer span.End()
	var userID string
	defer func() {
		s.record(ctx, span, entry{provider: p, userID: userID, action: "exchange_code",
			request:  map[string]any{"redirect_uri": in.RedirectURI, "has_state": in.State != ""},
			response: exchangeSummary(out)}, err)
	}()

	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, calendar.Required("code")
	}
	adapter, err := s.oauth.For(p)
	if err != nil {
		return nil, err
	}

	redirectURI := strings.TrimSpace(in.RedirectURI)
	if in.State != "" {
		state, err := s.consumeState(ctx, p, in.State)
		if err != nil {
			return nil, err
		}
		userID = state.UserID
		if redirectURI == "" {
			redirectURI = state.RedirectURI
		}
	}

	tok, err := adapter.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}
	out = &ExchangeOutput{Token: tok}
	if userID == "" {
		return out, nil
	}
	account, err := s.tokens.Store(ctx, userID, p, tok)
	if err != nil {
		return nil, fmt.Errorf("store connected account: %w", err)
	}
	out.Account = s.status(account)
	return out, nil
}

func (s *service) consumeState(ctx context.Context, p calendar.Provider, value string) (*oauth.State, error) {
	if s.states == nil {
		return nil, &calendar.ConfigurationError{Provider: p, Setting: "oauth state store"}
	}
	state, err := s.states.ConsumeState(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("load oauth state: %w", err)
	}
	if state == nil {
		return nil, &calendar.ValidationError{Field: "state", Message: "state is invalid or expired", Err: oauth.ErrInvalidState}
	}
	if !strings.EqualFold(state.Provider, string(p)) {
		return nil, &calendar.ValidationError{Field: "state", Message: "state was issued for another provider", Err: oauth.ErrStateMismatch}
	}
	return state, nil
}

func (s *service) Refresh(ctx context.Context, p calendar.Provider, refreshToken string) (tok *oauth.Token, err error) {
	ctx, span := s.startSpan(ctx, "Integration.Refresh", p)
	defer span.End()
	defer func() {
		s.record(ctx, span, entry{provider: p, action: "refresh_token", response: tokenSummary(tok)}, err)
	}()

	if strings.TrimSpace(refreshToken) == "" {
		return nil, calendar.Required("refresh_token")
	}
	adapter, err := s.oauth.For(p)
	if err != nil {
		return nil, err
	}
	return adapter.Refresh(ctx, strings.TrimSpace(refreshToken))
}

func (s *service) Revoke(ctx context.Context, p calendar.Provider, token string) (err error) {
	ctx, span := s.startSpan(ctx, "Integration.Revoke", p)
	defer span.End()
	var removed int64
	defer func() {
		s.record(ctx, span, entry{provider: p, action: "revoke_token", response: map[string]any{"local_accounts_removed": removed}}, err)
	}()

	adapter, err := s.oauth.For(p)
	if err != nil {
		return err
	}
	if err := adapter.Revoke(ctx, token); err != nil {
		return err
	}
	removed, err = s.tokens.ForgetToken(ctx, p, token)
	if err != nil {
		return fmt.Errorf("clear revoked credentials: %w", err)
	}
	return nil
}

func (s *service) ListCalendars(ctx context.Context, p calendar.Provider, accessToken string) (calendars []calendar.Calendar, err error) {
	ctx, span := s.startSpan(ctx, "Integration.ListCalendars", p)
	defer span.End()
	defer func() {
		s.record(ctx, span, entry{provider: p, action: "list_calendars", response: map[string]any{"count": len(calendars)}}, err)
	}()

	adapter, err := s.calendars.For(p)
	if err != nil {
		return nil, err
	}
	return adapter.ListCalendars(ctx, accessToken)
}

func (s *service) ListEvents(ctx context.Context, p calendar.Provider, accessToken string, query calendar.EventQuery) (page *calendar.EventPage, err error) {
	ctx, span := s.startSpan(ctx, "Integration.ListEvents", p)
	defer span.End()
	defer func() {
		s.record(ctx, span, entry{provider: p, action: "list_events", request: querySummary(query), response: pageSummary(page)}, err)
	}()

	if err := validateWindow(query); err != nil {
		return nil, err
	}
	adapter, err := s.calendars.For(p)
	if err != nil {
		return nil, err
	}
	return adapter.ListEvents(ctx, accessToken, query)
}

func (s *service) CreateEvent(ctx context.Context, p calendar.Provider, accessToken, calendarID string, in calendar.EventInput) (event *calendar.Event, err error) {
	ctx, span := s.startSpan(ctx, "Integration.CreateEvent", p)
	defer span.End()
	defer func() {
		s.record(ctx, span, entry{provider: p, action: "create_event", request: inputSummary(calendarID, in), response: eventSummary(event)}, err)
	}()

	adapter, err := s.calendars.For(p)
	if err != nil {
		return nil, err
	}
	return adapter.CreateEvent(ctx, accessToken, calendarID, in)
}

func (s *service) GetEvent(ctx context.Context, p calendar.Provider, accessToken, calendarID, eventID string) (event *calendar.Event, err error) {
	ctx, span := s.startSpan(ctx, "Integration.GetEvent", p)
	defer span.End()
	defer func() {
		s.record(ctx, span, entry{provider: p, action: "get_event", request: map[string]any{"calendarId": calendarID, "eventId": eventID}, response: eventSummary(event)}, err)
	}()

	editor, err := s.calendars.Editor(p)
	if err != nil {
		return nil, err
	}
	return editor.GetEvent(ctx, accessToken, calendarID, eventID)
}

func (s *service) UpdateEvent(ctx context.Context, p calendar.Provider, accessToken, calendarID, eventID string, in calendar.EventInput) (event *calendar.Event, err error) {
	ctx, span := s.startSpan(ctx, "Integration.UpdateEvent", p)
	defer span.End()
	defer func() {
		request := inputSummary(calendarID, in)
		request["eventId"] = eventID
		s.record(ctx, span, entry{provider: p, action: "update_event", request: request, response: eventSummary(event)}, err)
	}()

	editor, err := s.calendars.Editor(p)
	if err != nil {
		return nil, err
	}
	return editor.UpdateEvent(ctx, accessToken, calendarID, eventID, in)
}

func (s *service) DeleteEvent(ctx context.Context, p calendar.Provider, accessToken, calendarID, eventID string) (err error) {
	ctx, span := s.startSpan(ctx, "Integration.DeleteEvent", p)
	defer span.End()
	defer func() {
		s.record(ctx, span, entry{provider: p, action: "delete_event", request: map[string]any{"calendarId": calendarID, "eventId": eventID}}, err)
	}()

	editor, err := s.calendars.Editor(p)
	if err != nil {
		return err
	}
	return editor.DeleteEvent(ctx, accessToken, calendarID, eventID)
}

func (s *service) EventTypes(ctx context.Context, p calendar.Provider, accessToken string, query calendar.EventTypeQuery) (page *calendar.EventTypePage, err error) {
	ctx, span := s.startSpan(ctx, "Integration.EventTypes", p)
	defer span.End()
	defer func() {
		var count int
		if page != nil {
			count = len(page.EventTypes)
		}
		s.record(ctx, span, entry{provider: p, action: "list_event_types", request: map[string]any{"count": query.Count}, response: map[string]any{"count": count}}, err)
	}()

	scheduler, err := s.calendars.Scheduler(p)
	if err != nil {
		return nil, err
	}
	return scheduler.EventTypes(ctx, accessToken, query)
}

func (s *service) CreateInvitee(ctx context.Context, p calendar.Provider, accessToken string, req calendar.InviteeRequest) (booking *calendar.Booking, err error) {
	ctx, span := s.startSpan(ctx, "Integration.CreateInvitee", p)
	defer span.End()
	defer func() {
		response := map[string]any{}
		if booking != nil {
			response["uri"] = booking.URI
			response["status"] = booking.Status
		}
		s.record(ctx, span, entry{provider: p, action: "create_invitee",
			request:  map[string]any{"event_type": req.EventType, "start_time": req.StartTime},
			response: response}, err)
	}()

	scheduler, err := s.calendars.Scheduler(p)
	if err != nil {
		return nil, err
	}
	return scheduler.CreateInvitee(ctx, accessToken, req)
}

func (s *service) Account(ctx context.Context, p calendar.Provider, userID string) (*AccountStatus, error) {
	ctx, span := s.startSpan(ctx, "Integration.Account", p)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, calendar.Required("userId")
	}
	account, err := s.tokens.Account(ctx, userID, p)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.status(account), nil
}

func (s *service) AccountCalendars(ctx context.Context, p calendar.Provider, userID string) (calendars []calendar.Calendar, err error) {
	ctx, span := s.startSpan(ctx, "Integration.AccountCalendars", p)
	defer span.End()
	defer func() {
		s.record(ctx, span, entry{provider: p, userID: userID, action: "list_calendars", response: map[string]any{"count": len(calendars)}}, err)
	}()

	accessToken, adapter, err := s.accountAdapter(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	return adapter.ListCalendars(ctx, accessToken)
}

func (s *service) AccountEvents(ctx context.Context, p calendar.Provider, userID string, query calendar.EventQuery) (page *calendar.EventPage, err error) {
	ctx, span := s.startSpan(ctx, "Integration.AccountEvents", p)
	defer span.End()
	defer func() {
		s.record(ctx, span, entry{provider: p, userID: userID, action: "list_events", request: querySummary(query), response: pageSummary(page)}, err)
	}()

	if err := validateWindow(query); err != nil {
		return nil, err
	}
	accessToken, adapter, err := s.accountAdapter(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	return adapter.ListEvents(ctx, accessToken, query)
}

func (s *service) AccountCreateEvent(ctx context.Context, p calendar.Provider, userID, calendarID string, in calendar.EventInput) (event *calendar.Event, err error) {
	ctx, span := s.startSpan(ctx, "Integration.AccountCreateEvent", p)
	defer span.End()
	defer func() {
		s.record(ctx, span, entry{provider: p, userID: userID, action: "create_event", request: inputSummary(calendarID, in), response: eventSummary(event)}, err)
	}()

	accessToken, adapter, err := s.accountAdapter(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	return adapter.CreateEvent(ctx, accessToken, calendarID, in)
}

func (s *service) Disconnect(ctx context.Context, p calendar.Provider, userID string) (out *DisconnectOutput, err error) {
	ctx, span := s.startSpan(ctx, "Integration.Disconnect", p)
	defer span.End()
	var revokeErr error
	defer func() {
		response := map[string]any{}
		if out != nil {
			response["revoked"] = out.Revoked
		}
		if revokeErr != nil {
			response["revoke_error"] = revokeErr.Error()
		}
		s.record(ctx, span, entry{provider: p, userID: userID, action: "disconnect", response: response}, err)
	}()

	if strings.TrimSpace(userID) == "" {
		return nil, calendar.Required("userId")
	}
	account, err := s.tokens.Account(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	adapter, err := s.oauth.For(p)
	if err != nil {
		return nil, err
	}

	out = &DisconnectOutput{}
	credential := account.RefreshToken
	if credential == "" {
		credential = account.AccessToken
	}
	if revokeErr = adapter.Revoke(ctx, credential); revokeErr != nil {
		s.log().Warn("upstream revoke failed during disconnect",
			zap.String("provider", string(p)),
			zap.String("user_id", userID),
			zap.Error(revokeErr),
		)
	} else {
		out.Revoked = true
	}

	// Local credentials are cleared whatever the provider answered.
	if _, err := s.tokens.Forget(ctx, userID, p); err != nil {
		return nil, fmt.Errorf("clear connected account: %w", err)
	}
	return out, nil
}

func (s *service) accountAdapter(ctx context.Context, p calendar.Provider, userID string) (string, calendaradapter.Adapter, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, calendar.Required("userId")
	}
	adapter, err := s.calendars.For(p)
	if err != nil {
		return "", nil, err
	}
	accessToken, err := s.tokens.AccessToken(ctx, userID, p)
	if err != nil {
		return "", nil, err
	}
	return accessToken, adapter, nil
}

func (s *service) status(account domain.ConnectedAccount) *AccountStatus {
	return &AccountStatus{
		UserID:            account.UserID,
		Provider:          account.Provider,
		ExternalAccountID: account.ExternalAccountID,
		Scope:             account.Scope,
		ExpiresAt:         account.ExpiresAt,
		Expired:           !account.Valid(s.now(), 0),
		ConnectedAt:       account.CreatedAt,
		UpdatedAt:         account.UpdatedAt,
	}
}

func (s *service) stateTTL() time.Duration {
	if s.cfg.OAuthStateTTL > 0 {
		return s.cfg.OAuthStateTTL
	}
	return 10 * time.Minute
}

func validateWindow(query calendar.EventQuery) error {
	if query.TimeMin != nil && query.TimeMax != nil && !query.TimeMax.After(*query.TimeMin) {
		return calendar.NewValidationError("timeMax", "timeMax must be after timeMin")
	}
	if query.MaxResults < 0 {
		return calendar.NewValidationError("maxResults", "maxResults must be positive")
	}
	return nil
}

type entry struct {
	provider calendar.Provider
	userID   string
	action   string
	request  any
	response any
}

// record closes an operation: span status, audit log line, metric and
// integration log row. Log persistence failures never fail the operation.
func (s *service) record(ctx context.Context, span trace.Span, e entry, err error) {
	status := domain.LogSuccess
	var message string
	if err != nil {
		status = domain.LogFailed
		message = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, message)
	}
	metrics.IntegrationActionsTotal.WithLabelValues(string(e.provider), e.action, string(status)).Inc()
	s.audit(e.action, "provider", e.provider, "user_id", e.userID, "status", status, "error", message)

	if s.logs == nil {
		return
	}
	logEntry := domain.IntegrationLogEntry{
		UserID:          e.userID,
		Provider:        e.provider,
		Action:          e.action,
		RequestPayload:  e.request,
		ResponsePayload: e.response,
		Status:          status,
		ErrorMessage:    message,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.logs.Append(context.WithoutCancel(ctx), logEntry); err != nil {
		s.log().Warn("integration log write failed", zap.String("action", e.action), zap.Error(err))
	}
}

func (s *service) startSpan(ctx context.Context, name string, p calendar.Provider) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("provider", string(p))))
}

func (s *service) audit(event string, attrs ...any) {
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", s.now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		if str, ok := attrs[i+1].(string); ok && str == "" {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	s.log().Info("audit", fields...)
}

func (s *service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
