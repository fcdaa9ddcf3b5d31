// Package client provides a Go client for the MCPWarden governance API. It
// covers the registry lifecycle (register, scan, approve), the policy and
// audit surfaces, and the public MCP catalog.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/utils"
)

// API paths
const (
	APIPathHealth       = "/healthz"
	APIPathReady        = "/readyz"
	APIPathServers      = "/registry/servers"
	APIPathServersByCID = "/registry/servers/by-canonical-id"
	APIPathAudit        = "/registry/audit"
	APIPathAuditStats   = "/registry/audit/stats"
	APIPathAuditStream  = "/registry/audit/stream"
	APIPathPolicyCheck  = "/registry/policy/check"
	APIPathPolicyReload = "/registry/policy/reload"
	APIPathCatalog      = "/mcp/servers"
	APIPathAdapters     = "/mcp/adapters"
)

// Common errors. Every method wraps one of these so callers can branch with
// errors.Is regardless of the message the server attached.
var (
	ErrNotFound         = fmt.Errorf("resource not found")
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrForbidden        = fmt.Errorf("forbidden")
	ErrBadRequest       = fmt.Errorf("bad request")
	ErrConflict         = fmt.Errorf("conflict")
	ErrServerError      = fmt.Errorf("server error")
	ErrUnavailable      = fmt.Errorf("service unavailable")
	ErrTimeout          = fmt.Errorf("request timeout")
	ErrConnectionFailed = fmt.Errorf("connection failed")
)

// ClientOption represents a functional option for configuring the client
type ClientOption func(*ClientConfig) error

// ClientConfig represents the configuration for the client
type ClientConfig struct {
	BaseURL               string
	Timeout               time.Duration
	MaxRetries            int
	RetryDelay            time.Duration
	UserAgent             string
	Token                 string
	HTTPClient            *http.Client
	Headers               map[string]string
	TLSInsecureSkipVerify bool
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    "http://localhost:8080",
		Timeout:    time.Second * 30,
		MaxRetries: 3,
		RetryDelay: time.Second * 1,
		UserAgent:  "MCPWardenClient/1.0",
		Headers:    make(map[string]string),
	}
}

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(config *ClientConfig) error {
		if baseURL == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		if _, err := url.Parse(baseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		config.BaseURL = baseURL
		return nil
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(config *ClientConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		config.Timeout = timeout
		return nil
	}
}

// WithRetryOptions sets the retry options
func WithRetryOptions(maxRetries int, retryDelay time.Duration) ClientOption {
	return func(config *ClientConfig) error {
		if maxRetries < 0 {
			return fmt.Errorf("max retries must be non-negative")
		}
		if retryDelay < 0 {
			return fmt.Errorf("retry delay must be non-negative")
		}
		config.MaxRetries = maxRetries
		config.RetryDelay = retryDelay
		return nil
	}
}

// WithUserAgent sets the user agent
func WithUserAgent(userAgent string) ClientOption {
	return func(config *ClientConfig) error {
		if userAgent == "" {
			return fmt.Errorf("user agent cannot be empty")
		}
		config.UserAgent = userAgent
		return nil
	}
}

// WithToken sets the bearer token presented on every request
func WithToken(token string) ClientOption {
	return func(config *ClientConfig) error {
		config.Token = token
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(config *ClientConfig) error {
		if client == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		config.HTTPClient = client
		return nil
	}
}

// WithHeader adds an HTTP header sent on every request
func WithHeader(key, value string) ClientOption {
	return func(config *ClientConfig) error {
		if key == "" {
			return fmt.Errorf("header key cannot be empty")
		}
		if config.Headers == nil {
			config.Headers = make(map[string]string)
		}
		config.Headers[key] = value
		return nil
	}
}

// WithTLSInsecureSkipVerify disables TLS certificate verification
func WithTLSInsecureSkipVerify(skip bool) ClientOption {
	return func(config *ClientConfig) error {
		config.TLSInsecureSkipVerify = skip
		return nil
	}
}

// Client defines the interface for the MCPWarden API client
type Client interface {
	// Health
	Health(ctx context.Context) (map[string]interface{}, error)
	Ready(ctx context.Context) (map[string]interface{}, error)

	// Servers
	RegisterServer(ctx context.Context, req *models.RegisterServerRequest) (*models.Server, error)
	ListServers(ctx context.Context, opts *ListServersOptions) ([]models.Server, error)
	GetServer(ctx context.Context, id string) (*models.Server, error)
	GetServerByCanonicalID(ctx context.Context, canonicalID string) (*models.Server, error)
	UpdateServer(ctx context.Context, id string, req *models.UpdateServerRequest) (*models.Server, error)
	DeleteServer(ctx context.Context, id string) error

	// Scans
	SubmitScan(ctx context.Context, serverID string) (*models.Scan, error)
	UploadScanReport(ctx context.Context, serverID string, req *models.UploadScanRequest) (*models.Scan, error)
	LatestScan(ctx context.Context, serverID string) (*models.Scan, error)
	ListScans(ctx context.Context, serverID string, limit, offset int) ([]models.Scan, error)
	GetScan(ctx context.Context, serverID, scanID string) (*models.Scan, error)
	CancelScan(ctx context.Context, serverID, scanID string) (*models.Scan, error)
	WatchScan(ctx context.Context, serverID, scanID string) (<-chan models.ScanWatchEvent, <-chan error)

	// Approvals
	ApproveServer(ctx context.Context, serverID string, req *models.ApproveRequest) (*models.Approval, error)
	DenyServer(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Approval, error)
	SuspendServer(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Approval, error)
	ReinstateServer(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Approval, error)
	DeprecateServer(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Approval, error)
	RequestApproval(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Server, error)
	ListApprovals(ctx context.Context, serverID string, limit, offset int) ([]models.Approval, error)

	// Audit
	QueryAudit(ctx context.Context, opts *AuditQueryOptions) (*models.AuditQueryResponse, error)
	AuditStats(ctx context.Context, opts *AuditQueryOptions) (*models.AuditStats, error)
	StreamAudit(ctx context.Context) (<-chan models.AuditEvent, <-chan error)

	// Policy
	CheckPolicy(ctx context.Context, req *models.PolicyCheckRequest) (*models.PolicyCheckResponse, error)
	ReloadPolicy(ctx context.Context) error

	// Catalog
	Catalog(ctx context.Context) ([]models.CatalogServer, error)

	// Raw HTTP
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// APIClient implements the Client interface
type APIClient struct {
	config     ClientConfig
	httpClient *http.Client
	token      string
}

var _ Client = (*APIClient)(nil)

// NewClient creates a new API client
func NewClient(opts ...ClientOption) (*APIClient, error) {
	config := DefaultClientConfig()

	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, fmt.Errorf("option application failed: %w", err)
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: config.TLSInsecureSkipVerify},
		}
		httpClient = &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		}
	}

	return &APIClient{
		config:     config,
		httpClient: httpClient,
		token:      config.Token,
	}, nil
}

// SetToken replaces the bearer token for subsequent requests
func (c *APIClient) SetToken(token string) {
	c.token = token
}

// buildURL builds the full URL for a given path
func (c *APIClient) buildURL(path string) string {
	baseURL := strings.TrimSuffix(c.config.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// setAuthHeader sets the Authorization header for a request
func (c *APIClient) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
}

// newRequest creates a new HTTP request
func (c *APIClient) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	url := c.buildURL(path)

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// envelope mirrors the server's response wrapper with the data left raw so
// it can be decoded into the caller's target type.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

// statusError maps an HTTP status code onto one of the sentinel errors
func statusError(statusCode int) error {
	switch statusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	case http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return ErrServerError
	}
}

// handleResponse decodes the response body into out. Enveloped bodies are
// unwrapped; endpoints that return their payload at the top level (audit
// queries, the catalog, the probes) decode directly.
func (c *APIClient) handleResponse(resp *http.Response, out interface{}) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return fmt.Errorf("failed to read response body: %w", readErr)
		}
		return fmt.Errorf("%w: failed to read response body: %w", statusError(resp.StatusCode), readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if resp.StatusCode == http.StatusNoContent || out == nil {
			return nil
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err == nil && env.Success {
			if len(env.Data) == 0 || string(env.Data) == "null" {
				return nil
			}
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("failed to decode response data: %w", err)
			}
			return nil
		}

		// Not enveloped; the payload is the body itself.
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
		return nil
	}

	baseErr := statusError(resp.StatusCode)

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		if env.Error.Code != "" {
			return fmt.Errorf("%w: API error (%s): %s", baseErr, env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("%w: %s", baseErr, env.Error.Message)
	}

	bodySnippet := string(body)
	if len(bodySnippet) > 100 {
		bodySnippet = bodySnippet[:100] + "..."
	}
	return fmt.Errorf("%w (status %d, body: %s)", baseErr, resp.StatusCode, bodySnippet)
}

// Do sends an HTTP request, retrying timeouts and 5xx responses
func (c *APIClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" {
		c.setAuthHeader(req)
	}

	var reqBodyBytes []byte
	if req.Body != nil {
		var err error
		reqBodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for retry: %w", err)
		}
	}

	var resp *http.Response
	var err error

	for retry := 0; retry <= c.config.MaxRetries; retry++ {
		if reqBodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(reqBodyBytes))
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
				if retry < c.config.MaxRetries {
					time.Sleep(c.config.RetryDelay)
					continue
				}
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}

		if resp.StatusCode >= 500 && resp.StatusCode < 600 && retry < c.config.MaxRetries {
			resp.Body.Close()
			time.Sleep(c.config.RetryDelay)
			continue
		}

		break
	}

	return resp, err
}

// doRequest is a helper to make a request and decode its response
func (c *APIClient) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, out)
}

// Health checks the liveness endpoint
func (c *APIClient) Health(ctx context.Context) (map[string]interface{}, error) {
	var result map[string]interface{}
	err := c.doRequest(ctx, http.MethodGet, APIPathHealth, nil, &result)
	return result, err
}

// Ready checks the readiness endpoint
func (c *APIClient) Ready(ctx context.Context) (map[string]interface{}, error) {
	var result map[string]interface{}
	err := c.doRequest(ctx, http.MethodGet, APIPathReady, nil, &result)
	return result, err
}
