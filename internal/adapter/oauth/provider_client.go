package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

const maxResponseBytes = 1 << 20

// providerClient performs the raw HTTP calls x/oauth2 does not cover, such as revocation.
type providerClient struct {
	provider   calendar.Provider
	httpClient *http.Client
}

func newProviderClient(provider calendar.Provider, client *http.Client) providerClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return providerClient{provider: provider, httpClient: client}
}

type basicAuth struct {
	username string
	password string
}

// postForm submits a form-encoded request and discards a successful body.
func (c providerClient) postForm(ctx context.Context, op, endpoint string, data url.Values, auth *basicAuth) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if auth != nil {
		req.SetBasicAuth(auth.username, auth.password)
	}
	return c.send(req, op)
}

func (c providerClient) delete(ctx context.Context, op, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	return c.send(req, op)
}

func (c providerClient) send(req *http.Request, op string) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &calendar.UpstreamError{Provider: c.provider, Op: op, Message: err.Error(), Kind: calendar.ErrUpstreamAuth}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		upstream := &calendar.UpstreamError{Provider: c.provider, Op: op, Status: resp.StatusCode, Kind: calendar.ErrUpstreamAuth}
		upstream.Code, upstream.Message = parseErrorBody(body)
		return upstream
	}
	return nil
}

// withClient makes x/oauth2 use the adapter's HTTP client.
func (c providerClient) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// upstreamError converts an x/oauth2 failure into the gateway taxonomy.
func (c providerClient) upstreamError(op string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		upstream := &calendar.UpstreamError{
			Provider: c.provider,
			Op:       op,
			Code:     retrieve.ErrorCode,
			Message:  retrieve.ErrorDescription,
			Kind:     calendar.ErrUpstreamAuth,
		}
		if retrieve.Response != nil {
			upstream.Status = retrieve.Response.StatusCode
		}
		if upstream.Code == "" && upstream.Message == "" {
			upstream.Code, upstream.Message = parseErrorBody(retrieve.Body)
		}
		return upstream
	}
	return &calendar.UpstreamError{Provider: c.provider, Op: op, Message: err.Error(), Kind: calendar.ErrUpstreamAuth}
}

// parseErrorBody extracts an error code and message from the common provider error shapes.
func parseErrorBody(body []byte) (string, string) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", strings.TrimSpace(string(body))
	}
	code := stringValue(raw["error"])
	message := stringValue(coalesce(raw["error_description"], raw["message"], raw["title"]))
	if nested, ok := raw["error"].(map[string]any); ok {
		code = stringValue(nested["code"])
		message = stringValue(coalesce(message, nested["message"]))
	}
	if code == "" && message == "" {
		message = strings.TrimSpace(string(body))
	}
	return code, message
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func coalesce(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return v
			}
		case nil:
			continue
		default:
			return v
		}
	}
	return nil
}
