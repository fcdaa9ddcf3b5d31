package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// AuditQueryOptions filters audit queries. Zero values are omitted.
type AuditQueryOptions struct {
	StartDate         *time.Time
	EndDate           *time.Time
	Team              string
	ServerCanonicalID string
	ToolName          string
	Decision          string
	Actor             string
	Limit             int
	Offset            int
}

func (o *AuditQueryOptions) queryValues() url.Values {
	values := url.Values{}
	if o == nil {
		return values
	}
	if o.StartDate != nil {
		values.Set("start_date", o.StartDate.Format(time.RFC3339))
	}
	if o.EndDate != nil {
		values.Set("end_date", o.EndDate.Format(time.RFC3339))
	}
	if o.Team != "" {
		values.Set("team", o.Team)
	}
	if o.ServerCanonicalID != "" {
		values.Set("server_canonical_id", o.ServerCanonicalID)
	}
	if o.ToolName != "" {
		values.Set("tool_name", o.ToolName)
	}
	if o.Decision != "" {
		values.Set("decision", o.Decision)
	}
	if o.Actor != "" {
		values.Set("actor", o.Actor)
	}
	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		values.Set("offset", strconv.Itoa(o.Offset))
	}
	return values
}

// QueryAudit searches recorded decision events, newest first
func (c *APIClient) QueryAudit(ctx context.Context, opts *AuditQueryOptions) (*models.AuditQueryResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, APIPathAudit, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = opts.queryValues().Encode()

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("audit query request failed: %w", err)
	}
	defer resp.Body.Close()

	var page models.AuditQueryResponse
	if err := c.handleResponse(resp, &page); err != nil {
		return nil, fmt.Errorf("failed to parse audit response: %w", err)
	}
	return &page, nil
}

// AuditStats aggregates audit events over the filter window
func (c *APIClient) AuditStats(ctx context.Context, opts *AuditQueryOptions) (*models.AuditStats, error) {
	req, err := c.newRequest(ctx, http.MethodGet, APIPathAuditStats, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = opts.queryValues().Encode()

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("audit stats request failed: %w", err)
	}
	defer resp.Body.Close()

	var stats models.AuditStats
	if err := c.handleResponse(resp, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse audit stats response: %w", err)
	}
	return &stats, nil
}

// StreamAudit tails the live audit feed over a websocket. Events arrive on
// the first channel until the context is cancelled or the hub disconnects
// this consumer for lagging.
func (c *APIClient) StreamAudit(ctx context.Context) (<-chan models.AuditEvent, <-chan error) {
	eventCh := make(chan models.AuditEvent)
	errCh := make(chan error, 1)

	wsURL, err := c.streamURL(APIPathAuditStream)
	if err != nil {
		errCh <- err
		close(eventCh)
		close(errCh)
		return eventCh, errCh
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	for key, value := range c.config.Headers {
		header.Set(key, value)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.Timeout,
	}
	if c.config.TLSInsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			errCh <- fmt.Errorf("%w: audit stream handshake returned %d", statusError(resp.StatusCode), resp.StatusCode)
		} else {
			errCh <- fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		close(eventCh)
		close(errCh)
		return eventCh, errCh
	}

	// The read loop only notices cancellation on its next frame, so a
	// watcher closes the connection to unblock it.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go func() {
		defer close(eventCh)
		defer close(errCh)
		defer conn.Close()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					errCh <- fmt.Errorf("audit stream closed: %w", err)
				}
				return
			}

			var event models.AuditEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				errCh <- fmt.Errorf("failed to decode audit event: %w", err)
				return
			}

			select {
			case eventCh <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return eventCh, errCh
}

// streamURL rewrites the configured base URL onto the websocket scheme
func (c *APIClient) streamURL(path string) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme for streaming: %s", base.Scheme)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + path
	return base.String(), nil
}
