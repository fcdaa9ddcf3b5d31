package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// SubmitScan queues a scan for the server and returns the Pending scan
func (c *APIClient) SubmitScan(ctx context.Context, serverID string) (*models.Scan, error) {
	if serverID == "" {
		return nil, fmt.Errorf("server ID cannot be empty")
	}

	var scan models.Scan
	if err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/%s/scan", APIPathServers, serverID), nil, &scan); err != nil {
		return nil, fmt.Errorf("failed to submit scan: %w", err)
	}
	return &scan, nil
}

// UploadScanReport records scanner output for a locally declared server
func (c *APIClient) UploadScanReport(ctx context.Context, serverID string, req *models.UploadScanRequest) (*models.Scan, error) {
	if serverID == "" {
		return nil, fmt.Errorf("server ID cannot be empty")
	}
	if req == nil {
		return nil, fmt.Errorf("upload request cannot be nil")
	}

	var scan models.Scan
	if err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/%s/scan/upload", APIPathServers, serverID), req, &scan); err != nil {
		return nil, fmt.Errorf("failed to upload scan report: %w", err)
	}
	return &scan, nil
}

// LatestScan gets the most recent scan of the server
func (c *APIClient) LatestScan(ctx context.Context, serverID string) (*models.Scan, error) {
	if serverID == "" {
		return nil, fmt.Errorf("server ID cannot be empty")
	}

	var scan models.Scan
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/%s/scan/latest", APIPathServers, serverID), nil, &scan); err != nil {
		return nil, fmt.Errorf("failed to get latest scan: %w", err)
	}
	return &scan, nil
}

// ListScans lists the server's scan history, newest first
func (c *APIClient) ListScans(ctx context.Context, serverID string, limit, offset int) ([]models.Scan, error) {
	if serverID == "" {
		return nil, fmt.Errorf("server ID cannot be empty")
	}

	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/%s/scans", APIPathServers, serverID), nil)
	if err != nil {
		return nil, err
	}
	query := req.URL.Query()
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	req.URL.RawQuery = query.Encode()

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list scans request failed: %w", err)
	}
	defer resp.Body.Close()

	var scans []models.Scan
	if err := c.handleResponse(resp, &scans); err != nil {
		return nil, fmt.Errorf("failed to parse scans response: %w", err)
	}
	return scans, nil
}

// GetScan gets a single scan
func (c *APIClient) GetScan(ctx context.Context, serverID, scanID string) (*models.Scan, error) {
	if serverID == "" || scanID == "" {
		return nil, fmt.Errorf("server ID and scan ID cannot be empty")
	}

	var scan models.Scan
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/%s/scans/%s", APIPathServers, serverID, scanID), nil, &scan); err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return &scan, nil
}

// CancelScan stops a queued or running scan
func (c *APIClient) CancelScan(ctx context.Context, serverID, scanID string) (*models.Scan, error) {
	if serverID == "" || scanID == "" {
		return nil, fmt.Errorf("server ID and scan ID cannot be empty")
	}

	var scan models.Scan
	if err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/%s/scans/%s/cancel", APIPathServers, serverID, scanID), nil, &scan); err != nil {
		return nil, fmt.Errorf("failed to cancel scan: %w", err)
	}
	return &scan, nil
}

// WatchScan follows a scan's progress over the server-sent event stream.
// The event channel closes when the scan reaches a terminal status or the
// context is cancelled.
func (c *APIClient) WatchScan(ctx context.Context, serverID, scanID string) (<-chan models.ScanWatchEvent, <-chan error) {
	eventCh := make(chan models.ScanWatchEvent)
	errCh := make(chan error, 1)

	if serverID == "" || scanID == "" {
		errCh <- fmt.Errorf("server ID and scan ID cannot be empty")
		close(eventCh)
		close(errCh)
		return eventCh, errCh
	}

	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/%s/scans/%s/watch", APIPathServers, serverID, scanID), nil)
	if err != nil {
		errCh <- err
		close(eventCh)
		close(errCh)
		return eventCh, errCh
	}
	req.Header.Set("Accept", "text/event-stream")
	c.setAuthHeader(req)

	// The stream outlives the configured request timeout, so it bypasses
	// the retrying Do path and relies on the context for cancellation.
	httpClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := httpClient.Do(req)
	if err != nil {
		errCh <- fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		close(eventCh)
		close(errCh)
		return eventCh, errCh
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errCh <- c.handleResponse(resp, nil)
		close(eventCh)
		close(errCh)
		return eventCh, errCh
	}

	go func() {
		defer close(eventCh)
		defer close(errCh)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		eventName := ""
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event:") {
				eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}

			if eventName == "error" {
				var serverErr struct {
					Error string `json:"error"`
				}
				msg := payload
				if json.Unmarshal([]byte(payload), &serverErr) == nil && serverErr.Error != "" {
					msg = serverErr.Error
				}
				errCh <- fmt.Errorf("scan watch failed: %s", msg)
				return
			}

			var event models.ScanWatchEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				errCh <- fmt.Errorf("failed to decode scan event: %w", err)
				return
			}

			select {
			case eventCh <- event:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()

	return eventCh, errCh
}
