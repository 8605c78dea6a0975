package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habedi/rebaton/auth"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the production RebatOn API.
	DefaultBaseURL = "https://api.rebaton.com"
	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 30 * time.Second
	// RequestIDHeader correlates a request with its replay.
	RequestIDHeader = "X-Request-ID"
)

// DefaultPublicPaths never carry a bearer token and never trigger a refresh.
var DefaultPublicPaths = []string{"/public-deals", "/auth/login", "/auth/register"}

// Request is a replayable description of an API call. Body holds the encoded
// payload so the request can be sent again after a token refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	id      string
	retried bool
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Decode unmarshals the response body into out. An empty body is not an error.
func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		log.Error().Err(err).Str("body_preview", preview(r.Body)).Msg("Failed to parse response JSON")
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Client calls the RebatOn API, attaching the stored bearer token and recovering
// from rejected access tokens through the refresh coordinator.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Auth       *auth.Coordinator
	UserAgent  string

	publicPaths    []string
	isTokenExpired TokenExpiredFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the timeout of the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.UserAgent = ua }
}

// WithPublicPaths replaces the public endpoint allow-list.
func WithPublicPaths(paths ...string) Option {
	return func(c *Client) { c.publicPaths = append([]string(nil), paths...) }
}

// WithTokenExpiredPredicate replaces the check that recognizes a server-declared
// token expiry.
func WithTokenExpiredPredicate(fn TokenExpiredFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.isTokenExpired = fn
		}
	}
}

// New creates a Client for baseURL using coordinator for token handling.
func New(baseURL string, coordinator *auth.Coordinator, opts ...Option) *Client {
	c := &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		HTTPClient:     &http.Client{Timeout: DefaultTimeout},
		Auth:           coordinator,
		UserAgent:      "rebaton-client",
		publicPaths:    append([]string(nil), DefaultPublicPaths...),
		isTokenExpired: DefaultTokenExpired,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWithStore wires a coordinator that refreshes against the same backend.
func NewWithStore(baseURL string, storer auth.TokenStorer, opts ...Option) *Client {
	c := New(baseURL, nil, opts...)
	refresher := &RefreshClient{BaseURL: c.BaseURL, HTTPClient: c.HTTPClient, UserAgent: c.UserAgent}
	c.Auth = auth.NewCoordinator(storer, refresher)
	return c
}

// IsPublic reports whether path is on the public allow-list.
func (c *Client) IsPublic(path string) bool {
	for _, p := range c.publicPaths {
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// Do sends req. A 401 on a protected endpoint triggers (or joins) a token refresh
// and the request is replayed once with the new token.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	r := *req
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	r.id = uuid.NewString()
	return c.do(ctx, &r)
}

func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	public := c.IsPublic(req.Path)

	var token string
	if !public && c.Auth != nil {
		t, err := c.Auth.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		token = t
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	apiErr := newAPIError(req, resp)
	if public || c.Auth == nil {
		return nil, apiErr
	}

	if c.isTokenExpired(apiErr) {
		if err := c.Auth.ForceLogout(ctx, auth.ReasonTokenExpired); err != nil {
			log.Error().Err(err).Msg("Failed to invalidate session")
		}
		return nil, fmt.Errorf("%w: %w", auth.ErrSessionExpired, apiErr)
	}

	if apiErr.StatusCode != http.StatusUnauthorized {
		return nil, apiErr
	}
	if req.retried {
		return nil, fmt.Errorf("%w: %w", auth.ErrAlreadyRetried, apiErr)
	}

	if _, err := c.Auth.Refresh(ctx, token); err != nil {
		return nil, err
	}
	req.retried = true
	log.Debug().Str("method", req.Method).Str("path", req.Path).Str("request_id", req.id).Msg("Replaying request with refreshed token")
	return c.do(ctx, req)
}

// send performs one HTTP exchange and reads the whole body.
func (c *Client) send(ctx context.Context, req *Request, token string) (*Response, error) {
	urlStr, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, urlStr, body)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Str("url", urlStr).Msg("Failed to create HTTP request object")
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}
	if req.id != "" {
		httpReq.Header.Set(RequestIDHeader, req.id)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	log.Debug().Str("method", req.Method).Str("path", req.Path).Str("request_id", req.id).Bool("retry", req.retried).Msg("Sending HTTP request")
	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("HTTP request failed")
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer closeResponseBody(httpResp)

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		log.Error().Err(err).Str("path", req.Path).Msg("Failed to read response body")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("method", req.Method).Str("path", req.Path).Int("status", httpResp.StatusCode).Msg("HTTP request finished")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		RequestID:  req.id,
	}, nil
}

// resolve joins path to the base URL and merges query into any query already in path.
func (c *Client) resolve(path string, query url.Values) (string, error) {
	joined := c.BaseURL + "/" + strings.TrimLeft(path, "/")
	u, err := url.Parse(joined)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", joined, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// call JSON-encodes in, sends the request and decodes the response into out.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, in, out any) error {
	req := &Request{Method: method, Path: path}
	if in != nil {
		var err error
		if req, err = jsonRequest(method, path, in); err != nil {
			return err
		}
	}
	req.Query = query
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Get sends a GET request and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends a POST request with in as JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPost, path, nil, in, out)
}

// Put sends a PUT request with in as JSON body and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPut, path, nil, in, out)
}

// Patch sends a PATCH request with in as JSON body and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPatch, path, nil, in, out)
}

// Delete sends a DELETE request and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodDelete, path, nil, nil, out)
}

func closeResponseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, 1024*1024)
	_ = resp.Body.Close()
}

func preview(body []byte) string {
	return string(body[:min(len(body), 200)])
}
