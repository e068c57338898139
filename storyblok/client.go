// Package storyblok is a read-only client for the Storyblok content delivery
// API and the plain-text extractor for story content trees.
//
// Every operation returns either a *Response holding the decoded body or an
// error. Transport failures (dial errors, timeouts, non-2xx statuses) and
// undecodable bodies are always reported as *APIError, so callers can turn
// them into data with errors.As and APIError.Result.
package storyblok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m4xw311/storyblok-agent/errors"
)

const (
	DefaultBaseURL = "https://api.storyblok.com/v2/cdn"
	DefaultTimeout = 30 * time.Second

	// publishedVersion is the only content version this client reads.
	publishedVersion = "published"
)

// ErrMissingToken is returned by NewClient when no API token is given.
var ErrMissingToken = fmt.Errorf("missing STORYBLOK_API_TOKEN in environment: %w", errors.ErrConfig)

// Client performs authenticated GET requests against one base URL. It holds
// only configuration set at construction and is safe for concurrent use.
type Client struct {
	token      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout overrides DefaultTimeout. It has no effect together with
// WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient substitutes the HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client. An empty token fails with ErrMissingToken.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// GetStory fetches a single story by its slug. Each slug segment is path
// escaped, so "?", "#" and "%" stay part of the slug.
func (c *Client) GetStory(ctx context.Context, slug string) (*Response, error) {
	slug = strings.Trim(slug, "/")
	if slug == "" {
		return nil, errors.New("slug must not be empty")
	}
	segments := strings.Split(slug, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return c.request(ctx, "stories/"+strings.Join(segments, "/"), nil)
}

// ListStories lists stories, restricted to a folder when prefix is set.
func (c *Client) ListStories(ctx context.Context, prefix string) (*Response, error) {
	params := url.Values{}
	if prefix != "" {
		params.Set("starts_with", prefix)
	}
	return c.request(ctx, "stories", params)
}

// SearchStories runs a full-text search across stories.
func (c *Client) SearchStories(ctx context.Context, term string) (*Response, error) {
	params := url.Values{}
	params.Set("search_term", term)
	return c.request(ctx, "stories", params)
}

// FilterStories returns stories whose field matches value.
func (c *Client) FilterStories(ctx context.Context, field, value string) (*Response, error) {
	params := url.Values{}
	params.Set(fmt.Sprintf("filter_query[%s][in]", field), value)
	return c.request(ctx, "stories", params)
}

// GetLinks returns the link tree of the space.
func (c *Client) GetLinks(ctx context.Context) (*Response, error) {
	return c.request(ctx, "links", nil)
}

// GetTags returns every tag of the space.
func (c *Client) GetTags(ctx context.Context) (*Response, error) {
	return c.request(ctx, "tags", nil)
}

func (c *Client) request(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.token)
	params.Set("version", publishedVersion)

	u, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint %q", endpoint)
	}
	u.RawQuery = params.Encode()
	shown := c.redact(u.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request for %s", shown)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("storyblok request failed", "endpoint", endpoint, "err", c.redact(err.Error()))
		return nil, transportError(nil, c.redact(err.Error()))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	slog.Debug("storyblok request", "endpoint", endpoint, "status", res.StatusCode, "bytes", len(body), "took", time.Since(start))

	status := res.StatusCode
	if status < 200 || status > 299 {
		return nil, transportError(&status, statusMessage(res, shown))
	}
	if err != nil {
		return nil, transportError(&status, c.redact(err.Error()))
	}

	payload, ok := decode(body)
	if !ok {
		return nil, decodeError(status, body)
	}
	return &Response{Status: status, Payload: payload, Raw: body}, nil
}

// decode parses body keeping numbers as json.Number.
func decode(body []byte) (any, bool) {
	if !json.Valid(body) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func statusMessage(res *http.Response, shown string) string {
	class := "Client"
	if res.StatusCode >= 500 {
		class = "Server"
	}
	reason := strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)))
	if reason == "" {
		reason = http.StatusText(res.StatusCode)
	}
	return fmt.Sprintf("%d %s Error: %s for url: %s", res.StatusCode, class, reason, shown)
}

// redact hides the API token in anything shown to users or the model.
func (c *Client) redact(s string) string {
	s = strings.ReplaceAll(s, url.QueryEscape(c.token), "REDACTED")
	return strings.ReplaceAll(s, c.token, "REDACTED")
}
