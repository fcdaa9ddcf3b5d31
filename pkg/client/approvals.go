package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// RequestApproval moves a passed server into the review queue
func (c *APIClient) RequestApproval(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Server, error) {
	if serverID == "" {
		return nil, fmt.Errorf("server ID cannot be empty")
	}
	if req == nil {
		return nil, fmt.Errorf("decision request cannot be nil")
	}

	var server models.Server
	if err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/%s/request-approval", APIPathServers, serverID), req, &server); err != nil {
		return nil, fmt.Errorf("failed to request approval: %w", err)
	}
	return &server, nil
}

// ApproveServer admits the server for enforced traffic
func (c *APIClient) ApproveServer(ctx context.Context, serverID string, req *models.ApproveRequest) (*models.Approval, error) {
	if req == nil {
		return nil, fmt.Errorf("approve request cannot be nil")
	}
	return c.decide(ctx, serverID, "approve", req)
}

// DenyServer rejects a pending approval request
func (c *APIClient) DenyServer(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Approval, error) {
	if req == nil {
		return nil, fmt.Errorf("decision request cannot be nil")
	}
	return c.decide(ctx, serverID, "deny", req)
}

// SuspendServer temporarily pulls an approved server out of enforced traffic
func (c *APIClient) SuspendServer(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Approval, error) {
	if req == nil {
		return nil, fmt.Errorf("decision request cannot be nil")
	}
	return c.decide(ctx, serverID, "suspend", req)
}

// ReinstateServer returns a suspended server to the approved state
func (c *APIClient) ReinstateServer(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Approval, error) {
	if req == nil {
		return nil, fmt.Errorf("decision request cannot be nil")
	}
	return c.decide(ctx, serverID, "reinstate", req)
}

// DeprecateServer retires the server from the registry
func (c *APIClient) DeprecateServer(ctx context.Context, serverID string, req *models.DecisionRequest) (*models.Approval, error) {
	if req == nil {
		return nil, fmt.Errorf("decision request cannot be nil")
	}
	return c.decide(ctx, serverID, "deprecate", req)
}

// ListApprovals lists the server's decision history, newest first
func (c *APIClient) ListApprovals(ctx context.Context, serverID string, limit, offset int) ([]models.Approval, error) {
	if serverID == "" {
		return nil, fmt.Errorf("server ID cannot be empty")
	}

	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/%s/approvals", APIPathServers, serverID), nil)
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
		return nil, fmt.Errorf("list approvals request failed: %w", err)
	}
	defer resp.Body.Close()

	var approvals []models.Approval
	if err := c.handleResponse(resp, &approvals); err != nil {
		return nil, fmt.Errorf("failed to parse approvals response: %w", err)
	}
	return approvals, nil
}

func (c *APIClient) decide(ctx context.Context, serverID, action string, req interface{}) (*models.Approval, error) {
	if serverID == "" {
		return nil, fmt.Errorf("server ID cannot be empty")
	}

	var approval models.Approval
	if err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/%s/%s", APIPathServers, serverID, action), req, &approval); err != nil {
		return nil, fmt.Errorf("failed to %s server: %w", action, err)
	}
	return &approval, nil
}
