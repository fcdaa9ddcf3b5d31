package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// CheckPolicy evaluates a hypothetical tool call without recording it
func (c *APIClient) CheckPolicy(ctx context.Context, req *models.PolicyCheckRequest) (*models.PolicyCheckResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("policy check request cannot be nil")
	}

	var result models.PolicyCheckResponse
	if err := c.doRequest(ctx, http.MethodPost, APIPathPolicyCheck, req, &result); err != nil {
		return nil, fmt.Errorf("failed to check policy: %w", err)
	}
	return &result, nil
}

// ReloadPolicy rebuilds the enforcement snapshot from the registry
func (c *APIClient) ReloadPolicy(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodPost, APIPathPolicyReload, nil, nil); err != nil {
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	return nil
}
