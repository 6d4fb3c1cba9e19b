package integration_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	calendaradapter "github.com/smallbiznis/calendar-gateway/internal/adapter/calendar"
	oauthadapter "github.com/smallbiznis/calendar-gateway/internal/adapter/oauth"
	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	"github.com/smallbiznis/calendar-gateway/internal/domain/oauth"
	"github.com/smallbiznis/calendar-gateway/internal/service/integration"
)

type fakeOAuth struct {
	provider  calendar.Provider
	revokeErr error
	revoked   []string
	exchanged []string
}

func (f *fakeOAuth) Provider() calendar.Provider { return f.provider }

func (f *fakeOAuth) AuthorizationURL(redirectURI, state string) (string, error) {
	if redirectURI == "" {
		return "", calendar.Required("redirect_uri")
	}
	q := url.Values{"redirect_uri": {redirectURI}}
	if state != "" {
		q.Set("state", state)
	}
	return "https://auth.example/authorize?" + q.Encode(), nil
}

func (f *fakeOAuth) ExchangeCode(_ context.Context, code, redirectURI string) (*oauth.Token, error) {
	f.exchanged = append(f.exchanged, code+"|"+redirectURI)
	return &oauth.Token{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, TokenType: "Bearer", ExpiresIn: 3600}, nil
}

func (f *fakeOAuth) Refresh(_ context.Context, refreshToken string) (*oauth.Token, error) {
	return &oauth.Token{AccessToken: "fresh", RefreshToken: refreshToken, ExpiresIn: 3600}, nil
}

func (f *fakeOAuth) Revoke(_ context.Context, token string) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, token)
	return nil
}

type fakeOAuthSet map[calendar.Provider]*fakeOAuth

func (s fakeOAuthSet) For(p calendar.Provider) (oauthadapter.Adapter, error) {
	a, ok := s[p]
	if !ok {
		return nil, calendar.ErrUnknownProvider
	}
	return a, nil
}

type fakeCalendar struct {
	provider  calendar.Provider
	lastToken string
	events    []calendar.Event
}

func (f *fakeCalendar) Provider() calendar.Provider { return f.provider }

func (f *fakeCalendar) ListCalendars(_ context.Context, accessToken string) ([]calendar.Calendar, error) {
	f.lastToken = accessToken
	return []calendar.Calendar{{ID: "primary", Name: "Main", Primary: true, Provider: f.provider}}, nil
}

func (f *fakeCalendar) ListEvents(_ context.Context, accessToken string, _ calendar.EventQuery) (*calendar.EventPage, error) {
	f.lastToken = accessToken
	return &calendar.EventPage{Events: f.events}, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, accessToken, calendarID string, in calendar.EventInput) (*calendar.Event, error) {
	f.lastToken = accessToken
	return &calendar.Event{ID: "evt-1", CalendarID: calendarID, Title: in.Title, Provider: f.provider}, nil
}

type fakeCalendars struct{ adapter *fakeCalendar }

func (s fakeCalendars) For(calendar.Provider) (calendaradapter.Adapter, error) { return s.adapter, nil }

func (s fakeCalendars) Editor(p calendar.Provider) (calendaradapter.EventEditor, error) {
	return nil, calendar.Unsupported(p, "single event operations")
}

func (s fakeCalendars) Scheduler(p calendar.Provider) (calendaradapter.Scheduler, error) {
	return nil, calendar.Unsupported(p, "invitee scheduling")
}

type memoryStates struct {
	mu     sync.Mutex
	states map[string]oauth.State
	ttl    time.Duration
}

func (m *memoryStates) SaveState(_ context.Context, key string, state oauth.State, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = map[string]oauth.State{}
	}
	m.states[key] = state
	m.ttl = ttl
	return nil
}

func (m *memoryStates) ConsumeState(_ context.Context, key string) (*oauth.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[key]
	if !ok {
		return nil, nil
	}
	delete(m.states, key)
	return &state, nil
}

type fakeTokens struct {
	accounts map[string]domain.ConnectedAccount
	forgot   []string
}

func key(userID string, p calendar.Provider) string { return userID + ":" + string(p) }

func (f *fakeTokens) Account(_ context.Context, userID string, p calendar.Provider) (domain.ConnectedAccount, error) {
	account, ok := f.accounts[key(userID, p)]
	if !ok {
		return domain.ConnectedAccount{}, fmt.Errorf("lookup: %w", calendar.ErrNotConnected)
	}
	return account, nil
}

func (f *fakeTokens) AccessToken(ctx context.Context, userID string, p calendar.Provider) (string, error) {
	account, err := f.Account(ctx, userID, p)
	if err != nil {
		return "", err
	}
	return account.AccessToken, nil
}

func (f *fakeTokens) Store(_ context.Context, userID string, p calendar.Provider, tok *oauth.Token) (domain.ConnectedAccount, error) {
	if f.accounts == nil {
		f.accounts = map[string]domain.ConnectedAccount{}
	}
	account := domain.ConnectedAccount{ID: 1, UserID: userID, Provider: p, AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	f.accounts[key(userID, p)] = account
	return account, nil
}

func (f *fakeTokens) Forget(_ context.Context, userID string, p calendar.Provider) (bool, error) {
	_, ok := f.accounts[key(userID, p)]
	delete(f.accounts, key(userID, p))
	f.forgot = append(f.forgot, key(userID, p))
	return ok, nil
}

func (f *fakeTokens) ForgetToken(_ context.Context, p calendar.Provider, token string) (int64, error) {
	var n int64
	for k, account := range f.accounts {
		if account.Provider == p && (account.AccessToken == token || account.RefreshToken == token) {
			delete(f.accounts, k)
			n++
		}
	}
	f.forgot = append(f.forgot, "token:"+token)
	return n, nil
}

type recordingLogs struct {
	mu      sync.Mutex
	entries []domain.IntegrationLogEntry
	err     error
}

func (r *recordingLogs) Append(_ context.Context, entry domain.IntegrationLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.err
}

func (r *recordingLogs) last(t *testing.T) domain.IntegrationLogEntry {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.entries)
	return r.entries[len(r.entries)-1]
}

type fixture struct {
	svc      integration.Service
	oauth    fakeOAuthSet
	calendar *fakeCalendar
	states   *memoryStates
	tokens   *fakeTokens
	logs     *recordingLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		oauth: fakeOAuthSet{
			calendar.Google:  {provider: calendar.Google},
			calendar.Outlook: {provider: calendar.Outlook, revokeErr: calendar.Unsupported(calendar.Outlook, "token revocation")},
		},
		calendar: &fakeCalendar{provider: calendar.Google},
		states:   &memoryStates{},
		tokens:   &fakeTokens{accounts: map[string]domain.ConnectedAccount{}},
		logs:     &recordingLogs{},
	}
	cfg := config.Config{OAuthStateTTL: 5 * time.Minute}
	f.svc = integration.NewService(f.oauth, fakeCalendars{adapter: f.calendar}, f.tokens, f.states, f.logs, cfg, zap.NewNop())
	return f
}

func TestConnectWithUserIssuesState(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Connect(context.Background(), calendar.Google, integration.ConnectInput{RedirectURI: "https://app/cb", UserID: "user-1"})
	require.NoError(t, err)
	require.NotEmpty(t, out.State)
	require.Contains(t, out.AuthURL, "state="+out.State)
	require.Equal(t, 5*time.Minute, f.states.ttl)

	saved := f.states.states[out.State]
	require.Equal(t, "user-1", saved.UserID)
	require.Equal(t, "google", saved.Provider)
	require.Equal(t, "https://app/cb", saved.RedirectURI)

	entry := f.logs.last(t)
	require.Equal(t, "connect", entry.Action)
	require.Equal(t, domain.LogSuccess, entry.Status)
}

func TestConnectWithoutUserSkipsState(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Connect(context.Background(), calendar.Google, integration.ConnectInput{RedirectURI: "https://app/cb"})
	require.NoError(t, err)
	require.Empty(t, out.State)
	require.NotContains(t, out.AuthURL, "state=")
	require.Empty(t, f.states.states)
}

func TestConnectMissingRedirectIsValidationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Connect(context.Background(), calendar.Google, integration.ConnectInput{})
	require.ErrorIs(t, err, calendar.ErrValidation)

	entry := f.logs.last(t)
	require.Equal(t, domain.LogFailed, entry.Status)
	require.Equal(t, "redirect_uri is required", entry.ErrorMessage)
}

func TestExchangeCodeWithStateStoresAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	connect, err := f.svc.Connect(ctx, calendar.Google, integration.ConnectInput{RedirectURI: "https://app/cb", UserID: "user-1"})
	require.NoError(t, err)

	out, err := f.svc.ExchangeCode(ctx, calendar.Google, integration.ExchangeInput{Code: "abc", State: connect.State})
	require.NoError(t, err)
	require.Equal(t, "access-abc", out.Token.AccessToken)
	require.NotNil(t, out.Account)
	require.Equal(t, "user-1", out.Account.UserID)
	require.Equal(t, []string{"abc|https://app/cb"}, f.oauth[calendar.Google].exchanged)

	entry := f.logs.last(t)
	require.Equal(t, "exchange_code", entry.Action)
	require.Equal(t, "user-1", entry.UserID)
	require.NotContains(t, fmt.Sprint(entry.ResponsePayload), "access-abc")

	// A state is good for one exchange only.
	_, err = f.svc.ExchangeCode(ctx, calendar.Google, integration.ExchangeInput{Code: "abc", State: connect.State})
	require.ErrorIs(t, err, calendar.ErrValidation)
	require.ErrorIs(t, err, oauth.ErrInvalidState)
}

func TestExchangeCodeRejectsForeignState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	connect, err := f.svc.Connect(ctx, calendar.Google, integration.ConnectInput{RedirectURI: "https://app/cb", UserID: "user-1"})
	require.NoError(t, err)

	_, err = f.svc.ExchangeCode(ctx, calendar.Outlook, integration.ExchangeInput{Code: "abc", State: connect.State})
	require.ErrorIs(t, err, oauth.ErrStateMismatch)
	require.Empty(t, f.tokens.accounts)
}

func TestExchangeCodeWithoutStateIsStateless(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.ExchangeCode(context.Background(), calendar.Google, integration.ExchangeInput{Code: "xyz", RedirectURI: "https://app/cb"})
	require.NoError(t, err)
	require.Nil(t, out.Account)
	require.Empty(t, f.tokens.accounts)
}

func TestExchangeCodeRequiresCode(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ExchangeCode(context.Background(), calendar.Google, integration.ExchangeInput{})
	require.EqualError(t, err, "code is required")
}

func TestRevokeClearsMatchingAccounts(t *testing.T) {
	f := newFixture(t)
	f.tokens.accounts[key("user-1", calendar.Google)] = domain.ConnectedAccount{UserID: "user-1", Provider: calendar.Google, AccessToken: "a", RefreshToken: "r"}

	require.NoError(t, f.svc.Revoke(context.Background(), calendar.Google, "r"))
	require.Equal(t, []string{"r"}, f.oauth[calendar.Google].revoked)
	require.Empty(t, f.tokens.accounts)
}

func TestRevokeUnsupportedHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.tokens.accounts[key("user-1", calendar.Outlook)] = domain.ConnectedAccount{UserID: "user-1", Provider: calendar.Outlook, AccessToken: "a"}

	err := f.svc.Revoke(context.Background(), calendar.Outlook, "a")
	require.ErrorIs(t, err, calendar.ErrUnsupported)
	require.Len(t, f.tokens.accounts, 1)
	require.Empty(t, f.tokens.forgot)
}

func TestDisconnectForgetsEvenWhenRevokeFails(t *testing.T) {
	f := newFixture(t)
	f.tokens.accounts[key("user-1", calendar.Outlook)] = domain.ConnectedAccount{UserID: "user-1", Provider: calendar.Outlook, AccessToken: "a", RefreshToken: "r"}

	out, err := f.svc.Disconnect(context.Background(), calendar.Outlook, "user-1")
	require.NoError(t, err)
	require.False(t, out.Revoked)
	require.Empty(t, f.tokens.accounts)
}

func TestDisconnectRevokesRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.tokens.accounts[key("user-1", calendar.Google)] = domain.ConnectedAccount{UserID: "user-1", Provider: calendar.Google, AccessToken: "a", RefreshToken: "r"}

	out, err := f.svc.Disconnect(context.Background(), calendar.Google, "user-1")
	require.NoError(t, err)
	require.True(t, out.Revoked)
	require.Equal(t, []string{"r"}, f.oauth[calendar.Google].revoked)
}

func TestDisconnectUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Disconnect(context.Background(), calendar.Google, "nobody")
	require.ErrorIs(t, err, calendar.ErrNotConnected)
}

func TestAccountEventsUsesStoredToken(t *testing.T) {
	f := newFixture(t)
	f.calendar.events = []calendar.Event{{ID: "e1"}, {ID: "e2"}}
	f.tokens.accounts[key("user-1", calendar.Google)] = domain.ConnectedAccount{UserID: "user-1", Provider: calendar.Google, AccessToken: "stored"}

	page, err := f.svc.AccountEvents(context.Background(), calendar.Google, "user-1", calendar.EventQuery{})
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	require.Equal(t, "stored", f.calendar.lastToken)

	entry := f.logs.last(t)
	require.Equal(t, "list_events", entry.Action)
	require.Equal(t, map[string]any{"count": 2, "has_more": false}, entry.ResponsePayload)
}

func TestAccountEventsNotConnected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AccountEvents(context.Background(), calendar.Google, "user-1", calendar.EventQuery{})
	require.ErrorIs(t, err, calendar.ErrNotConnected)
	require.Equal(t, domain.LogFailed, f.logs.last(t).Status)
}

func TestListEventsRejectsInvertedWindow(t *testing.T) {
	f := newFixture(t)
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	until := from.Add(-time.Hour)

	_, err := f.svc.ListEvents(context.Background(), calendar.Google, "tok", calendar.EventQuery{TimeMin: &from, TimeMax: &until})
	require.EqualError(t, err, "timeMax must be after timeMin")
}

func TestLogFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.logs.err = errors.New("database unavailable")

	calendars, err := f.svc.ListCalendars(context.Background(), calendar.Google, "tok")
	require.NoError(t, err)
	require.Len(t, calendars, 1)
}

func TestEditorUnsupportedSurfacesError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetEvent(context.Background(), calendar.HubSpot, "tok", "meetings", "1")
	require.ErrorIs(t, err, calendar.ErrUnsupported)
	require.Equal(t, "get_event", f.logs.last(t).Action)
}
