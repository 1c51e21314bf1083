package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/rankgate/rankgate/internal/config"
	ierr "github.com/rankgate/rankgate/internal/errors"
	"github.com/rankgate/rankgate/internal/httpclient"
	"github.com/rankgate/rankgate/internal/logger"
	"github.com/rankgate/rankgate/internal/sentry"
)

// HTTPClient is the production Authorizer Client. It owns a process-wide
// connection pool (shared across concurrent searches) configured once at
// construction, the way the Authorizer Client's resource policy requires:
// no per-request client creation.
type HTTPClient struct {
	cfg        config.AuthzConfig
	logger     *logger.Logger
	sentry     *sentry.Service
	retryable  *retryablehttp.Client
	httpClient *http.Client
	transport  *http.Transport
	pool       chan struct{}
	stopSweep  chan struct{}
}

// NewHTTPClient builds the Authorizer Client's transport. The pool
// ceiling, idle time, and lifetime map onto the stdlib transport's
// connection-pool knobs; retryablehttp supplies structured retry logging
// on top of cenkalti/backoff's bounded per-call backoff.
func NewHTTPClient(cfg *config.Configuration, log *logger.Logger, sentrySvc *sentry.Service) *HTTPClient {
	maxLifeTime := cfg.Authz.PoolMaxLifeTime

	dialer := &net.Dialer{}
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.Authz.PoolMaxConnections,
		MaxIdleConnsPerHost: cfg.Authz.PoolMaxConnections,
		IdleConnTimeout:     cfg.Authz.PoolMaxIdleTime,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil || maxLifeTime <= 0 {
				return conn, err
			}
			return newLifetimeConn(conn, maxLifeTime), nil
		},
	}

	base := &http.Client{Transport: transport}

	retryable := retryablehttp.NewClient()
	retryable.HTTPClient = base
	retryable.Logger = log.GetRetryableHTTPLogger()
	retryable.RetryMax = cfg.Authz.MaxRetries
	retryable.RetryWaitMin = 50 * time.Millisecond
	retryable.RetryWaitMax = 500 * time.Millisecond

	poolSize := cfg.Authz.PoolMaxConnections
	if poolSize <= 0 {
		poolSize = 500
	}

	c := &HTTPClient{
		cfg:        cfg.Authz,
		logger:     log,
		sentry:     sentrySvc,
		retryable:  retryable,
		httpClient: retryable.StandardClient(),
		transport:  transport,
		pool:       make(chan struct{}, poolSize),
		stopSweep:  make(chan struct{}),
	}
	go c.evictionSweep()
	return c
}

// evictionSweep periodically closes idle connections so MaxIdleTime is
// actually enforced against the pool rather than only against a single
// connection's own idle timer; stopped by Close.
func (c *HTTPClient) evictionSweep() {
	interval := c.cfg.PoolMaxIdleTime
	if interval <= 0 {
		interval = 90 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.transport.CloseIdleConnections()
		case <-c.stopSweep:
			return
		}
	}
}

// Close stops the background eviction sweep and releases idle connections.
// Idempotent is not required here: one HTTPClient is closed once, at
// process shutdown.
func (c *HTTPClient) Close() {
	close(c.stopSweep)
	c.transport.CloseIdleConnections()
}

// lifetimeConn wraps a net.Conn so it force-closes once maxLifeTime has
// elapsed since it was dialed, even if still idle-fresh by
// IdleConnTimeout's reckoning — the stdlib transport has no native
// per-connection max-lifetime knob, so this is the DialContext-level
// equivalent of sql.DB's SetConnMaxLifetime.
type lifetimeConn struct {
	net.Conn
	timer *time.Timer
}

func newLifetimeConn(conn net.Conn, maxLifeTime time.Duration) net.Conn {
	lc := &lifetimeConn{Conn: conn}
	lc.timer = time.AfterFunc(maxLifeTime, func() {
		_ = conn.Close()
	})
	return lc
}

func (c *lifetimeConn) Close() error {
	c.timer.Stop()
	return c.Conn.Close()
}

// acquire bounds pending-acquire against the connection pool ceiling; if
// the wait exceeds the configured timeout it reports false so the caller
// can fail closed rather than queue indefinitely.
func (c *HTTPClient) acquire(ctx context.Context) bool {
	timer := time.NewTimer(c.cfg.PoolPendingAcquireTimeout)
	defer timer.Stop()

	select {
	case c.pool <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

func (c *HTTPClient) release() { <-c.pool }

type batchCheckRequest struct {
	UserIDs []string `json:"userIds"`
	UserID  string   `json:"userId"`
}

type batchCheckResponse struct {
	UserID             string   `json:"userId"`
	AuthorizedEventIDs []string `json:"authorizedEventIds"`
}

// CheckBatch implements Client. It never returns an error the caller must
// act on: a failed call returns an empty map plus a logged, wrapped
// AuthTransient diagnostic error, equivalent to "authorized nothing in this
// batch", per the fail-closed-empty policy. A pending-acquire timeout
// returns an empty map with a nil error.
func (c *HTTPClient) CheckBatch(ctx context.Context, eventIDs []string, userID string, deadline time.Duration) (map[string]struct{}, error) {
	if len(eventIDs) == 0 {
		return map[string]struct{}{}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if !c.acquire(callCtx) {
		c.logger.Warnf("authorizer pool pending-acquire timed out, treating batch as empty")
		return map[string]struct{}{}, nil
	}
	defer c.release()

	span, callCtx := c.sentry.StartAuthzSpan(callCtx, "authz.batch_check", map[string]interface{}{"batch_size": len(eventIDs)})
	if span != nil {
		defer span.Finish()
	}

	var resp batchCheckResponse
	err := c.callWithBackoff(callCtx, func() error {
		body, marshalErr := json.Marshal(batchCheckRequest{UserIDs: eventIDs, UserID: userID})
		if marshalErr != nil {
			return marshalErr
		}

		req, reqErr := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.PDPURL+"/batch-check", bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		c.decorate(req)

		httpResp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= 500 {
			return fmt.Errorf("authorizer returned %d", httpResp.StatusCode)
		}
		if httpResp.StatusCode >= 400 {
			body, _ := io.ReadAll(httpResp.Body)
			return backoff.Permanent(httpclient.NewError(httpResp.StatusCode, body))
		}

		return json.NewDecoder(httpResp.Body).Decode(&resp)
	})
	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			c.logger.Warnf("authorization batch-check rejected with status %d, treating as empty", httpErr.StatusCode)
		} else {
			c.logger.Warnf("authorization batch-check failed, treating as empty: %v", err)
		}
		return map[string]struct{}{}, ierr.Wrap(err, ierr.ErrCodeAuthTransient, "batch-check call failed")
	}

	out := make(map[string]struct{}, len(resp.AuthorizedEventIDs))
	for _, id := range resp.AuthorizedEventIDs {
		out[id] = struct{}{}
	}
	return out, nil
}

type enumerateResponse struct {
	UserID    string   `json:"userId"`
	EventIDs  []string `json:"eventIds"`
}

// EnumerateForUser implements Client. The authorization service's GET
// enumeration endpoint has two response shapes across subsystems — a
// wrapped object and a bare array — so this accepts both rather than
// guessing which is canonical.
func (c *HTTPClient) EnumerateForUser(ctx context.Context, userID string, deadline time.Duration) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if !c.acquire(callCtx) {
		c.logger.Warnf("authorizer pool pending-acquire timed out, treating enumeration as empty")
		return nil, nil
	}
	defer c.release()

	span, callCtx := c.sentry.StartAuthzSpan(callCtx, "authz.enumerate_for_user", map[string]interface{}{"user_id": userID})
	if span != nil {
		defer span.Finish()
	}

	var raw json.RawMessage
	err := c.callWithBackoff(callCtx, func() error {
		url := fmt.Sprintf("%s/enumerate-for-user?userId=%s", c.cfg.PDPURL, userID)
		req, reqErr := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
		if reqErr != nil {
			return reqErr
		}
		c.decorate(req)

		httpResp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= 500 {
			return fmt.Errorf("authorizer returned %d", httpResp.StatusCode)
		}
		if httpResp.StatusCode >= 400 {
			errBody, _ := io.ReadAll(httpResp.Body)
			return backoff.Permanent(httpclient.NewError(httpResp.StatusCode, errBody))
		}

		body, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			return readErr
		}
		raw = body
		return nil
	})
	if err != nil {
		c.logger.Warnf("authorization enumerate-for-user failed, treating as empty: %v", err)
		return nil, ierr.Wrap(err, ierr.ErrCodeAuthTransient, "enumerate-for-user call failed")
	}

	return decodeEnumerateResponse(raw)
}

// decodeEnumerateResponse tolerates both the wrapped-object and bare-array
// response shapes rather than guessing which subsystem this deployment
// talks to.
func decodeEnumerateResponse(raw json.RawMessage) ([]string, error) {
	var bare []string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}

	var wrapped enumerateResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.EventIDs, nil
}

func (c *HTTPClient) decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// callWithBackoff retries op with bounded exponential backoff, never
// extending past the caller's own context deadline — the per-call deadline
// is the outer bound, backoff just fills it more aggressively than naive
// retry-on-interval would.
func (c *HTTPClient) callWithBackoff(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(op, backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)))
}
