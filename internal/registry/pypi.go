// Package registry checks whether a package is published on a PyPI-compatible
// index through its JSON API.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBaseURL is the public Python Package Index.
const DefaultBaseURL = "https://pypi.org"

// Existence is the outcome of a package lookup.
type Existence int

const (
	// Unknown means the index could not give an answer (network error,
	// unexpected status).
	Unknown Existence = iota
	Exists
	Absent
)

func (e Existence) String() string {
	switch e {
	case Exists:
		return "exists"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// Client queries GET {base}/pypi/{name}/json.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a registry client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Lookup reports whether name is published on the index. It never returns
// an error: failures are reported as Unknown and logged.
func (c *Client) Lookup(ctx context.Context, name string) Existence {
	endpoint := fmt.Sprintf("%s/pypi/%s/json", c.baseURL, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn("failed to build registry request", "package", name, "error", err)
		return Unknown
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("registry lookup failed", "package", name, "error", err)
		return Unknown
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused; the body itself is not needed.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK:
		return Exists
	case http.StatusNotFound:
		return Absent
	default:
		c.logger.Warn("unexpected registry status", "package", name, "status", resp.StatusCode)
		return Unknown
	}
}
