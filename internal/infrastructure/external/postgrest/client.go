// Package postgrest implements an entity-store client speaking the
// PostgREST wire protocol, plus repository adapters over it. It is the
// store backend used for hosted deployments where the API has no direct
// database access.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/circuitbreaker"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the store client.
type ClientConfig struct {
	// BaseURL is the PostgREST endpoint root, e.g. "https://x.supabase.co/rest/v1".
	BaseURL string

	// APIKey is sent as both "apikey" and bearer token.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RetryConfig controls retry behavior for read requests.
	RetryConfig retry.Config

	// Logger for structured logging.
	Logger *logger.Logger

	// Debug enables request logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:     baseURL,
		Timeout:     30 * time.Second,
		RetryConfig: retry.DefaultConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is a thin PostgREST HTTP client. Reads are retried with
// backoff; writes are executed exactly once — write recovery belongs to
// the application layer, never to the transport. A circuit breaker
// sits in front of both so a dead store fails fast instead of tying up
// every request in timeouts.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewClient creates a new store client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	log := config.Logger.With(logger.Component("postgrest"))

	breaker := circuitbreaker.New("postgrest",
		circuitbreaker.WithIsFailure(storeUnavailable),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("store circuit state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		}),
	)

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retrier: retry.New(config.RetryConfig),
		breaker: breaker,
		logger:  log,
	}
}

// storeUnavailable reports whether an error means the store itself is
// down, as opposed to a business outcome like a conflict or a missing
// row. Only availability problems trip the circuit.
func storeUnavailable(err error) bool {
	var se *shared.StoreError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// Select fetches rows from a table into out (a pointer to a slice).
// The request is retried on transient failures.
func (c *Client) Select(ctx context.Context, table string, q Query, out interface{}) error {
	_, err := c.doRead(ctx, table, q, out, false)
	return err
}

// SelectWithCount fetches rows and the exact total match count,
// independent of the range applied by limit/offset.
func (c *Client) SelectWithCount(ctx context.Context, table string, q Query, out interface{}) (int, error) {
	return c.doRead(ctx, table, q, out, true)
}

// Insert creates rows. body can be a single object or a slice for bulk
// inserts. When out is non-nil the created representation is decoded
// into it.
func (c *Client) Insert(ctx context.Context, table string, body interface{}, out interface{}) error {
	return c.doWrite(ctx, http.MethodPost, table, Query{}, body, out)
}

// Update patches rows matched by the query and decodes the updated
// representation into out when non-nil.
func (c *Client) Update(ctx context.Context, table string, q Query, body interface{}, out interface{}) error {
	return c.doWrite(ctx, http.MethodPatch, table, q, body, out)
}

// Delete removes rows matched by the query.
func (c *Client) Delete(ctx context.Context, table string, q Query) error {
	return c.doWrite(ctx, http.MethodDelete, table, q, nil, nil)
}

// IsHealthy checks if the store endpoint is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/", nil)
	if err != nil {
		return false
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// Ping reports an error when the store endpoint is unreachable. Backs
// readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsHealthy(ctx) {
		return fmt.Errorf("postgrest: endpoint %s is unreachable", c.config.BaseURL)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) doRead(ctx context.Context, table string, q Query, out interface{}, withCount bool) (int, error) {
	fullURL := c.buildURL(table, q)
	var total int

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doReadOnce(ctx, fullURL, out, withCount, &total)
	})
	return total, err
}

func (c *Client) doReadOnce(ctx context.Context, fullURL string, out interface{}, withCount bool, total *int) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("create request: %w", err))
		}
		c.setHeaders(req)
		if withCount {
			req.Header.Set("Prefer", "count=exact")
		}

		if c.config.Debug {
			c.logger.Debug("store request", logger.String("method", http.MethodGet), logger.String("url", fullURL))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(fmt.Errorf("http request: %w", err))
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Retryable(fmt.Errorf("read response: %w", err))
		}

		if resp.StatusCode >= 500 {
			return retry.Retryable(mapStoreError(resp.StatusCode, respBody))
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(mapStoreError(resp.StatusCode, respBody))
		}

		if withCount {
			*total = parseContentRangeTotal(resp.Header.Get("Content-Range"))
		}
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
			}
		}
		return nil
	})
}

func (c *Client) doWrite(ctx context.Context, method, table string, q Query, body, out interface{}) error {
	fullURL := c.buildURL(table, q)

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doWriteOnce(ctx, method, fullURL, bodyReader, out)
	})
}

func (c *Client) doWriteOnce(ctx context.Context, method, fullURL string, bodyReader io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	if out != nil {
		req.Header.Set("Prefer", "return=representation")
	} else {
		req.Header.Set("Prefer", "return=minimal")
	}

	if c.config.Debug {
		c.logger.Debug("store request", logger.String("method", method), logger.String("url", fullURL))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return mapStoreError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) buildURL(table string, q Query) string {
	params := q.Encode()
	if len(params) == 0 {
		return c.config.BaseURL + "/" + table
	}
	return c.config.BaseURL + "/" + table + "?" + params.Encode()
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("apikey", c.config.APIKey)
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// storeErrorBody is the PostgREST error envelope.
type storeErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// mapStoreError turns an error response into a structured StoreError so
// callers can branch on kinds instead of response text.
func mapStoreError(status int, body []byte) error {
	var e storeErrorBody
	_ = json.Unmarshal(body, &e)

	switch {
	case e.Code == "23505" || status == http.StatusConflict:
		return shared.ConflictError(status, string(body))
	case e.Code == "PGRST204":
		return shared.UnknownColumnError(status, unknownColumnFromMessage(e.Message), string(body))
	case e.Code == "PGRST116" || status == http.StatusNotFound:
		return &shared.StoreError{Kind: shared.ErrNotFound, Status: status, Body: string(body)}
	default:
		return &shared.StoreError{Kind: shared.ErrStoreFailure, Status: status, Body: string(body)}
	}
}

// unknownColumnFromMessage extracts the column name from a schema-cache
// miss message, e.g.
//
//	Could not find the 'cor' column of 'kanban_cards' in the schema cache
func unknownColumnFromMessage(msg string) string {
	start := strings.IndexByte(msg, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(msg[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

// parseContentRangeTotal reads the total from a "0-9/42" range header.
// Returns 0 when the header is absent or the count is unknown ("*").
func parseContentRangeTotal(header string) int {
	idx := strings.LastIndexByte(header, '/')
	if idx < 0 {
		return 0
	}
	total, err := strconv.Atoi(header[idx+1:])
	if err != nil {
		return 0
	}
	return total
}
