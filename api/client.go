package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/kit/log"

	"github.com/deskhq/deskchat/credential"
)

// Client is the REST client for the desk chat API
type Client struct {
	baseURL    string
	httpClient *client.Client
	creds      credential.Provider
}

// ClientOption is a function to configure the client
type ClientOption func(*Client)

// WithHertzClient sets a custom Hertz client
func WithHertzClient(httpClient *client.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new REST client. The credential provider is re-read on
// every request so a refreshed token pair is picked up immediately.
func NewClient(baseURL string, creds credential.Provider, opts ...ClientOption) (*Client, error) {
	httpClient, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithClientReadTimeout(30*time.Second),
		client.WithWriteTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		creds:      creds,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// MustNewClient creates a new REST client and panics on error
func MustNewClient(baseURL string, creds credential.Provider, opts ...ClientOption) *Client {
	c, err := NewClient(baseURL, creds, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// expirySkew refreshes the pair slightly early so a request is not sent with
// a token that dies in flight.
const expirySkew = 30 * time.Second

// do makes an authenticated request, refreshing the token pair and retrying
// exactly once when the server reports an expired access token. A token whose
// expiry claim is already past (or within expirySkew) is refreshed before the
// first attempt.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, result interface{}) error {
	creds, err := c.creds.Load()
	if err != nil || creds.Empty() {
		return &Error{Reason: ReasonRequireLogin}
	}

	if expiringSoon(creds) {
		// On refresh failure keep the stale token; the reactive retry
		// below still applies.
		if refreshed, rerr := c.refresh(ctx, creds); rerr == nil {
			creds = refreshed
		}
	}

	respBody, status, err := c.roundTrip(ctx, method, path, query, body, creds.AccessToken)
	if err != nil {
		return err
	}

	if apiErr := probeError(respBody, status); apiErr != nil {
		if !apiErr.IsExpiredToken() {
			return apiErr
		}

		refreshed, rerr := c.refresh(ctx, creds)
		if rerr != nil {
			return rerr
		}
		respBody, status, err = c.roundTrip(ctx, method, path, query, body, refreshed.AccessToken)
		if err != nil {
			return err
		}
		if apiErr := probeError(respBody, status); apiErr != nil {
			return apiErr
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// expiringSoon reports whether the access token's expiry claim is past or
// imminent. Tokens without a readable claim fall back to the reactive path.
func expiringSoon(creds credential.Credentials) bool {
	exp, err := creds.AccessExpiry()
	if err != nil {
		return false
	}
	return time.Until(exp) < expirySkew
}

// roundTrip makes a single HTTP request and returns the raw response body and
// status code.
func (c *Client) roundTrip(ctx context.Context, method, path string, query map[string]string, body interface{}, token string) ([]byte, int, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, v)
		}
		reqURL += "?" + values.Encode()
	}

	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(method)
	req.SetRequestURI(reqURL)
	req.Header.Set("Authorization", "Bearer "+token)

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBody(jsonBody)
	}

	if err := c.httpClient.Do(ctx, req, resp); err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, resp.StatusCode(), nil
}

// refresh exchanges the current pair for a fresh one and persists it
func (c *Client) refresh(ctx context.Context, creds credential.Credentials) (credential.Credentials, error) {
	log.CtxInfo(ctx, "access token expired, refreshing")

	respBody, status, err := c.roundTrip(ctx, consts.MethodGet, "/api/member/refresh",
		map[string]string{"refreshToken": creds.RefreshToken}, nil, creds.AccessToken)
	if err != nil {
		return credential.Credentials{}, fmt.Errorf("failed to refresh token: %w", err)
	}
	if apiErr := probeError(respBody, status); apiErr != nil {
		return credential.Credentials{}, fmt.Errorf("refresh rejected: %w", apiErr)
	}

	var refreshed credential.Credentials
	if err := json.Unmarshal(respBody, &refreshed); err != nil {
		return credential.Credentials{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if refreshed.Empty() {
		return credential.Credentials{}, &Error{Reason: ReasonRequireLogin}
	}

	if err := c.creds.Store(refreshed); err != nil {
		return credential.Credentials{}, fmt.Errorf("failed to persist refreshed credentials: %w", err)
	}
	return refreshed, nil
}

// probeError checks whether the response carries a failure: a structured
// {"error": ...} payload, or a non-2xx status without one (crashed backends
// and intermediaries answer with empty or HTML bodies). List responses are
// JSON arrays and never carry a payload.
func probeError(body []byte, status int) *Error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var apiErr Error
		if err := json.Unmarshal(trimmed, &apiErr); err == nil && apiErr.Reason != "" {
			apiErr.Status = status
			return &apiErr
		}
	}
	if status < 200 || status >= 300 {
		return &Error{Status: status}
	}
	return nil
}

// get makes a GET request with query parameters
func (c *Client) get(ctx context.Context, path string, query map[string]string, result interface{}) error {
	return c.do(ctx, consts.MethodGet, path, query, nil, result)
}

// post makes a POST request
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, consts.MethodPost, path, nil, body, result)
}

// put makes a PUT request
func (c *Client) put(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, consts.MethodPut, path, nil, body, result)
}
