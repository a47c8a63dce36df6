// Package arcgis talks to the ArcGIS REST API of a portal (ArcGIS Online or
// Enterprise) and publishes features to hosted feature layers.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenExpiration is the requested token lifetime in minutes.
const tokenExpiration = 120

// Options configures a Client.
type Options struct {
	// URL is the portal root, e.g. https://www.arcgis.com.
	URL      string
	Username string
	Password string

	// Timeout bounds each request. Ignored when HTTPClient is set.
	Timeout time.Duration

	HTTPClient *http.Client
}

// Client is a minimal ArcGIS REST client. It is safe for sequential use by
// one run; the token is cached after Authenticate.
type Client struct {
	portal   string
	username string
	password string
	http     *http.Client

	mu    sync.Mutex
	token string
}

// NewClient creates a client for the portal in opts.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		portal:   strings.TrimRight(opts.URL, "/"),
		username: opts.Username,
		password: opts.Password,
		http:     hc,
	}
}

// Username returns the account the client signs in as.
func (c *Client) Username() string { return c.username }

func (c *Client) sharingURL(path string) string {
	return c.portal + "/sharing/rest/" + strings.TrimLeft(path, "/")
}

func (c *Client) userContentURL(parts ...string) string {
	p := "content/users/" + url.PathEscape(c.username)
	for _, part := range parts {
		if part != "" {
			p += "/" + part
		}
	}
	return c.sharingURL(p)
}

type tokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// Authenticate obtains a token for the configured account.
func (c *Client) Authenticate(ctx context.Context) error {
	params := url.Values{
		"username":   {c.username},
		"password":   {c.password},
		"referer":    {"arcsync"},
		"client":     {"referer"},
		"expiration": {fmt.Sprint(tokenExpiration)},
	}
	var resp tokenResponse
	if err := c.call(ctx, http.MethodPost, c.sharingURL("generateToken"), params, &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if resp.Token == "" {
		return fmt.Errorf("%w: portal returned no token", ErrAuthentication)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	slog.Debug("arcgis token acquired", "user", c.username,
		"expires", time.UnixMilli(resp.Expires).UTC().Format(time.RFC3339))
	return nil
}

func (c *Client) authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// get issues a GET request with params in the query string.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.call(ctx, http.MethodGet, endpoint, c.withToken(params), out)
}

// post issues a form-encoded POST request.
func (c *Client) post(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.call(ctx, http.MethodPost, endpoint, c.withToken(params), out)
}

func (c *Client) withToken(params url.Values) url.Values {
	if params == nil {
		params = url.Values{}
	}
	c.mu.Lock()
	if c.token != "" {
		params.Set("token", c.token)
	}
	c.mu.Unlock()
	return params
}

// call performs one request, maps non-2xx and error envelopes to errors and
// decodes the JSON body into out. Requests are never retried.
func (c *Client) call(ctx context.Context, method, endpoint string, params url.Values, out any) error {
	params.Set("f", "json")

	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	body, err := readAndClose(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	slog.Debug("arcgis request", "method", method, "url", endpoint,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The endpoint is reported without its query so tokens stay out of logs.
		return &HTTPError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("json parse error: %w body=%s", err, snippet(body, 500))
	}
	if envelope.Error != nil {
		return envelope.Error
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("json parse error: %w body=%s", err, snippet(body, 500))
	}
	return nil
}

func readAndClose(rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	return io.ReadAll(rc)
}
