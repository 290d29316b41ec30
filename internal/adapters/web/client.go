// Package web talks to the public paper APIs: arXiv, Unpaywall, Semantic
// Scholar and Brave Search.
package web

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"paperflow/internal/application"
)

// Endpoints are the API base URLs. Tests point them at an httptest server.
type Endpoints struct {
	ArxivAPI        string
	ArxivPDF        string
	Unpaywall       string
	SemanticScholar string
	Brave           string
}

// DefaultEndpoints are the public production APIs
var DefaultEndpoints = Endpoints{
	ArxivAPI:        "https://export.arxiv.org/api/query",
	ArxivPDF:        "https://arxiv.org/pdf",
	Unpaywall:       "https://api.unpaywall.org/v2",
	SemanticScholar: "https://api.semanticscholar.org/graph/v1",
	Brave:           "https://api.search.brave.com/res/v1/web/search",
}

// Client resolves, downloads and searches papers on the web
type Client struct {
	http       *http.Client
	endpoints  Endpoints
	email      string
	scholarKey string
	braveKey   string
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithEndpoints points the client at other API hosts
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

// WithEmail sets the contact address Unpaywall requires
func WithEmail(email string) Option {
	return func(c *Client) { c.email = email }
}

// WithScholarKey sets the Semantic Scholar API key (optional, raises rate limits)
func WithScholarKey(key string) Option {
	return func(c *Client) { c.scholarKey = key }
}

// WithBraveKey sets the Brave Search subscription token
func WithBraveKey(key string) Option {
	return func(c *Client) { c.braveKey = key }
}

// NewClient creates a Client with a per-request timeout
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		endpoints: DefaultEndpoints,
		logger:    slog.Default().With("component", "web"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get issues a GET and returns the response once the status is 2xx.
// The caller closes the body.
func (c *Client) get(ctx context.Context, op, rawURL string, query url.Values, header http.Header) (*http.Response, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, application.Fatal(op, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", "paperflow")

	c.logger.Debug("Requesting.", "op", op, "url", rawURL)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, application.Transient(op, err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyStatus(op, resp.StatusCode, string(msg))
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, op, rawURL string, query url.Values, header http.Header, v any) error {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Accept", "application/json")
	resp, err := c.get(ctx, op, rawURL, query, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return application.Fatal(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) getFeed(ctx context.Context, op string, query url.Values) (*atomFeed, error) {
	resp, err := c.get(ctx, op, c.endpoints.ArxivAPI, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, application.Fatal(op, fmt.Errorf("failed to decode arXiv feed: %w", err))
	}
	return &feed, nil
}

// classifyStatus maps an HTTP status onto the error types commands report
func classifyStatus(op string, code int, body string) error {
	err := fmt.Errorf("HTTP %d %s", code, http.StatusText(code))
	if body != "" {
		err = fmt.Errorf("%w: %s", err, body)
	}
	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, application.ErrNotFound)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return application.Fatal(op, fmt.Errorf("%w (check the API key)", err))
	case code == http.StatusTooManyRequests || code >= 500:
		return application.Transient(op, err)
	default:
		return application.Fatal(op, err)
	}
}

// atomFeed is the subset of the arXiv Atom response paperflow reads
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Authors []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

func (e atomEntry) authorNames() []string {
	names := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}
