package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// ListServersOptions filters and paginates a server listing
type ListServersOptions struct {
	Status    string
	OwnerTeam string
	Tag       string
	Query     string
	Limit     int
	Offset    int
}

// queryValues converts the options to URL query parameters
func (o *ListServersOptions) queryValues() url.Values {
	query := url.Values{}
	if o == nil {
		return query
	}
	if o.Status != "" {
		query.Set("status", o.Status)
	}
	if o.OwnerTeam != "" {
		query.Set("owner_team", o.OwnerTeam)
	}
	if o.Tag != "" {
		query.Set("tag", o.Tag)
	}
	if o.Query != "" {
		query.Set("q", o.Query)
	}
	if o.Limit > 0 {
		query.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		query.Set("offset", strconv.Itoa(o.Offset))
	}
	return query
}

// RegisterServer registers an MCP server and returns the Draft registration
func (c *APIClient) RegisterServer(ctx context.Context, req *models.RegisterServerRequest) (*models.Server, error) {
	if req == nil {
		return nil, fmt.Errorf("registration request cannot be nil")
	}

	var server models.Server
	if err := c.doRequest(ctx, http.MethodPost, APIPathServers, req, &server); err != nil {
		return nil, fmt.Errorf("failed to register server: %w", err)
	}
	return &server, nil
}

// ListServers lists registrations visible to the caller
func (c *APIClient) ListServers(ctx context.Context, opts *ListServersOptions) ([]models.Server, error) {
	req, err := c.newRequest(ctx, http.MethodGet, APIPathServers, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = opts.queryValues().Encode()

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list servers request failed: %w", err)
	}
	defer resp.Body.Close()

	var servers []models.Server
	if err := c.handleResponse(resp, &servers); err != nil {
		return nil, fmt.Errorf("failed to parse servers response: %w", err)
	}
	return servers, nil
}

// GetServer gets a server by its row id
func (c *APIClient) GetServer(ctx context.Context, id string) (*models.Server, error) {
	if id == "" {
		return nil, fmt.Errorf("server ID cannot be empty")
	}

	var server models.Server
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/%s", APIPathServers, id), nil, &server); err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return &server, nil
}

// GetServerByCanonicalID gets a server by canonical id. Slashes inside the
// id are sent as-is; the server reads the id from the path remainder.
func (c *APIClient) GetServerByCanonicalID(ctx context.Context, canonicalID string) (*models.Server, error) {
	if canonicalID == "" {
		return nil, fmt.Errorf("canonical ID cannot be empty")
	}

	var server models.Server
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/%s", APIPathServersByCID, canonicalID), nil, &server); err != nil {
		return nil, fmt.Errorf("failed to get server by canonical id: %w", err)
	}
	return &server, nil
}

// UpdateServer applies the non-nil fields of the update request
func (c *APIClient) UpdateServer(ctx context.Context, id string, req *models.UpdateServerRequest) (*models.Server, error) {
	if id == "" {
		return nil, fmt.Errorf("server ID cannot be empty")
	}
	if req == nil {
		return nil, fmt.Errorf("update request cannot be nil")
	}

	var server models.Server
	if err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("%s/%s", APIPathServers, id), req, &server); err != nil {
		return nil, fmt.Errorf("failed to update server: %w", err)
	}
	return &server, nil
}

// DeleteServer removes a registration and its scan and approval history
func (c *APIClient) DeleteServer(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("server ID cannot be empty")
	}

	if err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("%s/%s", APIPathServers, id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	return nil
}

// Catalog lists the Approved servers with their adapter URLs. The catalog
// is public and needs no token.
func (c *APIClient) Catalog(ctx context.Context) ([]models.CatalogServer, error) {
	var result struct {
		Servers []models.CatalogServer `json:"servers"`
	}
	if err := c.doRequest(ctx, http.MethodGet, APIPathCatalog, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	return result.Servers, nil
}
