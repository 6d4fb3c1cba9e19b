package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	domaincal "github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

const maxResponseBytes = 4 << 20

// restClient issues bearer-authenticated JSON calls against one provider API.
type restClient struct {
	provider   domaincal.Provider
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
}

func newRESTClient(provider domaincal.Provider, baseURL string, client *http.Client) restClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return restClient{
		provider:   provider,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

type request struct {
	op     string
	method string
	// path is relative to baseURL unless it is an absolute URL.
	path  string
	query url.Values
	body  any
}

func (c restClient) do(ctx context.Context, accessToken string, in request, out any) error {
	target := in.path
	if isAbsoluteURL(target) {
		if !c.sameOrigin(target) {
			return fmt.Errorf("%s: refusing %s request outside %s: %w", c.provider, in.op, c.baseURL, domaincal.ErrValidation)
		}
	} else {
		target = c.baseURL + target
	}
	if len(in.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + in.query.Encode()
	}

	var body io.Reader
	if in.body != nil {
		payload, err := json.Marshal(in.body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", in.op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, in.method, target, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", in.op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if in.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domaincal.UpstreamError{Provider: c.provider, Op: in.op, Message: err.Error(), Kind: domaincal.ErrUpstreamAPI}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", in.op, err)
	}
	if resp.StatusCode >= 300 {
		upstream := &domaincal.UpstreamError{Provider: c.provider, Op: in.op, Status: resp.StatusCode, Kind: domaincal.ErrUpstreamAPI}
		upstream.Code, upstream.Message = parseAPIError(raw)
		return upstream
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", in.op, err)
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// sameOrigin reports whether raw shares scheme and host with baseURL. The
// bearer token is only ever sent there.
func (c restClient) sameOrigin(raw string) bool {
	target, err := url.Parse(raw)
	if err != nil {
		return false
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return target.User == nil &&
		strings.EqualFold(target.Scheme, base.Scheme) &&
		strings.EqualFold(target.Host, base.Host)
}

// apiError covers the Graph, Calendly and HubSpot error envelopes.
type apiError struct {
	Error    json.RawMessage `json:"error"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Category string          `json:"category"`
}

type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseAPIError(raw []byte) (string, string) {
	var env apiError
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", strings.TrimSpace(string(raw))
	}
	if len(env.Error) > 0 {
		var nested graphError
		if err := json.Unmarshal(env.Error, &nested); err == nil && (nested.Code != "" || nested.Message != "") {
			return nested.Code, nested.Message
		}
		var code string
		if err := json.Unmarshal(env.Error, &code); err == nil && code != "" {
			return code, firstNonEmpty(env.Message, env.Title)
		}
	}
	code := firstNonEmpty(env.Category, env.Title)
	message := firstNonEmpty(env.Message, env.Title)
	if code == "" && message == "" {
		message = strings.TrimSpace(string(raw))
	}
	return code, message
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
