package slskd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ErrNotFound marks a 404 from the daemon. Callers that expect one (status
// probes on finished transfers, deletes of reaped searches) log it at debug
// and move on.
var ErrNotFound = errors.New("slskd: not found")

// errMalformed marks a response body that did not decode. The poll loop and
// list endpoints treat it as an empty result.
var errMalformed = errors.New("slskd: malformed response")

const (
	requestRetries = 3
	retryBaseDelay = 500 * time.Millisecond
)

// Client drives the slskd HTTP API. A single mutex serializes every
// outbound request, held across the full round-trip including 429 retries,
// so concurrent syncs never interleave daemon calls.
type Client struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
	log        *log.Logger

	mu      sync.Mutex
	limiter *searchLimiter

	activeMu sync.Mutex
	active   map[string]struct{}
}

// NewClient creates a new slskd API client. baseURL is the daemon root
// without the /api/v0 suffix.
func NewClient(baseURL, apiKey string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		apiBase:    baseURL + "/api/v0",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.With("component", "slskd"),
		limiter:    newSearchLimiter(searchWindowLimit, searchWindow),
		active:     make(map[string]struct{}),
	}
}

// do performs one API call under the client lock. 429 responses are retried
// up to three times with doubling backoff; 404 maps to ErrNotFound; bodies
// that fail to decode map to errMalformed.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doLocked(ctx, method, path, body, out)
}

func (c *Client) doLocked(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req, payload != nil)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < requestRetries {
			resp.Body.Close()
			delay := retryBaseDelay << attempt
			c.log.Warn("rate limited by daemon, backing off", "path", path, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		return c.readResponse(resp, path, out)
	}
}

func (c *Client) readResponse(resp *http.Response, path string, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.Warn("malformed daemon response", "path", path, "err", err)
		return errMalformed
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
}

// CheckConnection verifies the daemon is reachable, probing the session
// endpoint first and falling back to the search list on older daemons.
func (c *Client) CheckConnection(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/session", nil, nil)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, errMalformed) {
		if ferr := c.do(ctx, http.MethodGet, "/searches", nil, nil); ferr == nil {
			return nil
		}
	}
	return fmt.Errorf("daemon unreachable: %w", err)
}

// registerSearch marks a search id as owned by a live search loop.
func (c *Client) registerSearch(id string) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	c.active[id] = struct{}{}
}

func (c *Client) unregisterSearch(id string) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	delete(c.active, id)
}

func (c *Client) searchActive(id string) bool {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	_, ok := c.active[id]
	return ok
}

// CancelSearches withdraws every live search. Poll loops notice the
// withdrawal on their next tick and return what they have accumulated.
func (c *Client) CancelSearches() {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	for id := range c.active {
		delete(c.active, id)
	}
}
