// Package client provides the HTTP client for the location search endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"location_mapper/internal/locations/transport"
	"location_mapper/internal/taxonomy"
	"location_mapper/platform/apperr"
	"location_mapper/platform/logger"
)

const (
	// DefaultURL is the endpoint the public listing frontend uses to fill its location filter.
	DefaultURL       = "https://www.imovirtual.com/api/locations"
	DefaultUserAgent = "Mozilla/5.0 (compatible; LocationMapper/1.0)"

	maxBodyBytes = 8 << 20
)

// Mode selects the request style.
type Mode string

const (
	ModeREST    Mode = "rest"
	ModeGraphQL Mode = "graphql"
)

// ParseMode validates a mode name. The empty string selects ModeREST.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeREST:
		return ModeREST, nil
	case ModeGraphQL:
		return ModeGraphQL, nil
	default:
		return "", fmt.Errorf("unknown location search mode %q", s)
	}
}

// Options configure a Client.
type Options struct {
	URL       string
	Mode      Mode
	Timeout   time.Duration
	UserAgent string
}

// Client is the HTTP client for the location search endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	mode       Mode
	userAgent  string
	log        *logger.Logger
}

// New creates a new location search client.
func New(opts Options, log *logger.Logger) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Mode == "" {
		opts.Mode = ModeREST
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		url:        opts.URL,
		mode:       opts.Mode,
		userAgent:  opts.UserAgent,
		log:        log,
	}
}

// Query searches for term and returns the matching candidates.
func (c *Client) Query(ctx context.Context, term string) ([]taxonomy.Candidate, error) {
	req, err := c.newRequest(ctx, term)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "create request", err).WithOp("client.Query")
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("location search request failed", "term", term, "error", err)
		return nil, classify(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Success - continue to decode
	case resp.StatusCode == http.StatusNotFound:
		// No location matches this term - not an error
		c.log.Debug("location search no match", "term", term)
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.RateLimited("location search rate limited").
			WithOp("client.Query").
			WithDetails(map[string]string{"retryAfter": resp.Header.Get("Retry-After")})
	case resp.StatusCode >= http.StatusInternalServerError:
		c.log.Warn("location search upstream error", "status", resp.StatusCode, "term", term)
		return nil, apperr.Unreachable("location search upstream error", fmt.Errorf("status %d", resp.StatusCode)).WithOp("client.Query")
	default:
		c.log.Error("location search rejected request", "status", resp.StatusCode, "term", term)
		return nil, apperr.Unreachable("location search rejected request", fmt.Errorf("status %d", resp.StatusCode)).
			WithOp("client.Query").
			WithDetails(map[string]int{"status": resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(err)
	}

	candidates, err := transport.Parse(body)
	if err != nil {
		c.log.Warn("location search payload rejected", "term", term, "error", err)
		return nil, err
	}
	return candidates, nil
}

func (c *Client) newRequest(ctx context.Context, term string) (*http.Request, error) {
	if c.mode == ModeGraphQL {
		payload, err := json.Marshal(transport.GraphQLRequest{
			Query:     transport.SearchLocationsQuery,
			Variables: map[string]any{"query": term},
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return nil, err
	}
	params := u.Query()
	params.Set("q", term)
	u.RawQuery = params.Encode()
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

// classify maps a transport failure to a fetch error kind. Cancellation is returned as is so
// callers can tell an abandoned request from a failed one.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Timeout("location search timed out", err).WithOp("client.Query")
	}
	return apperr.Unreachable("location search unreachable", err).WithOp("client.Query")
}
