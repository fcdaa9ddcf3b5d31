// Package registry implements the server lifecycle service: registration,
// access-scoped reads, updates with approval invalidation, scan submission,
// and the approval decision operations. Every operation takes the
// authenticated principal and performs its own authorization; authentication
// itself happens upstream.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/distribution/reference"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/metrics"
	"github.com/vantagesec/mcpwarden/internal/models"
)

// List pagination bounds. Callers that ask for nothing get a page; callers
// that ask for too much get the cap.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Orchestrator is the scan-side dependency of the registry. It is satisfied
// by *scan.Orchestrator.
type Orchestrator interface {
	Launch(ctx context.Context, server *models.Server, triggeredBy string) (*models.Scan, error)
	Cancel(ctx context.Context, scan *models.Scan) error
}

// ListFilter narrows a listing. Zero values mean "no constraint"; Limit is
// defaulted and capped server-side.
type ListFilter struct {
	Status    *models.ServerStatus
	OwnerTeam string
	Tag       string
	Query     string
	Offset    int
	Limit     int
}

// Service is the registry's operation surface.
type Service interface {
	Register(ctx context.Context, principal models.Principal, req *models.RegisterServerRequest) (*models.Server, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.Server, error)
	GetByCanonicalID(ctx context.Context, principal models.Principal, canonicalID string) (*models.Server, error)
	List(ctx context.Context, principal models.Principal, filter ListFilter) ([]models.Server, int64, error)
	Update(ctx context.Context, principal models.Principal, id string, req *models.UpdateServerRequest) (*models.Server, error)
	Delete(ctx context.Context, principal models.Principal, id string) error

	SubmitForScan(ctx context.Context, principal models.Principal, id string) (*models.Scan, error)
	UploadLocalScan(ctx context.Context, principal models.Principal, id string, req *models.UploadScanRequest) (*models.Scan, error)
	GetScan(ctx context.Context, principal models.Principal, serverID, scanID string) (*models.Scan, error)
	ListScans(ctx context.Context, principal models.Principal, serverID string, offset, limit int) ([]models.Scan, int64, error)
	LatestScan(ctx context.Context, principal models.Principal, serverID string) (*models.Scan, error)
	CancelScan(ctx context.Context, principal models.Principal, serverID, scanID string) (*models.Scan, error)

	Approve(ctx context.Context, principal models.Principal, id string, req *models.ApproveRequest) (*models.Approval, error)
	Deny(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Approval, error)
	Suspend(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Approval, error)
	Reinstate(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Approval, error)
	Deprecate(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Approval, error)
	RequestApproval(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Server, error)
	ListApprovals(ctx context.Context, principal models.Principal, serverID string, offset, limit int) ([]models.Approval, int64, error)

	// IsApproved is the policy engine's fast path; it carries no principal
	// because admission checks are not access-scoped.
	IsApproved(ctx context.Context, canonicalID string) (bool, error)
}

type service struct {
	servers      repositories.ServerRepository
	scans        repositories.ScanRepository
	approvals    repositories.ApprovalRepository
	orchestrator Orchestrator
	cfg          *config.Config
	log          *logrus.Logger
}

// NewService creates the registry service over its repositories and the scan
// orchestrator.
func NewService(
	servers repositories.ServerRepository,
	scans repositories.ScanRepository,
	approvals repositories.ApprovalRepository,
	orchestrator Orchestrator,
	cfg *config.Config,
	log *logrus.Logger,
) Service {
	return &service{
		servers:      servers,
		scans:        scans,
		approvals:    approvals,
		orchestrator: orchestrator,
		cfg:          cfg,
		log:          log,
	}
}

// Register creates a server in Draft owned by the calling principal.
func (s *service) Register(ctx context.Context, principal models.Principal, req *models.RegisterServerRequest) (*models.Server, error) {
	if principal.ID == "" {
		return nil, fmt.Errorf("%w: registration requires an authenticated principal", models.ErrForbidden)
	}

	canonicalID := strings.ToLower(strings.TrimSpace(req.CanonicalID))
	if err := models.ValidateCanonicalID(canonicalID); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	if !req.SourceType.Valid() {
		return nil, fmt.Errorf("%w: unknown source type", models.ErrInvalidArgument)
	}
	if err := validateSource(req.SourceType, req.SourceURL); err != nil {
		return nil, err
	}

	ownerTeam := req.OwnerTeam
	if ownerTeam == "" {
		ownerTeam = principal.Team
	}

	server := &models.Server{
		CanonicalID:   canonicalID,
		Name:          req.Name,
		Description:   req.Description,
		OwnerTeam:     ownerTeam,
		SourceType:    req.SourceType,
		SourceURL:     req.SourceURL,
		Version:       req.Version,
		Status:        models.StatusDraft,
		DeclaredTools: req.DeclaredTools,
		MCPConfig:     req.MCPConfig,
		TestEndpoint:  req.TestEndpoint,
		Tags:          req.Tags,
		CreatedBy:     principal.ID,
	}

	if err := s.servers.Create(ctx, server); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: canonical id %q is already registered", models.ErrConflict, canonicalID)
		}
		return nil, err
	}

	metrics.RecordRegistration(server.SourceType.String())
	s.log.WithFields(logrus.Fields{
		"server_id":    server.ID,
		"canonical_id": server.CanonicalID,
		"source_type":  server.SourceType.String(),
		"owner_team":   server.OwnerTeam,
		"created_by":   principal.ID,
	}).Info("Server registered")

	return server, nil
}

// Get returns a server by id after the access check.
func (s *service) Get(ctx context.Context, principal models.Principal, id string) (*models.Server, error) {
	return s.loadChecked(ctx, principal, id)
}

// GetByCanonicalID returns a server by canonical id after the access check.
func (s *service) GetByCanonicalID(ctx context.Context, principal models.Principal, canonicalID string) (*models.Server, error) {
	server, err := s.servers.GetByCanonicalID(ctx, strings.ToLower(canonicalID))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if !principal.CanAccess(server) {
		return nil, fmt.Errorf("%w: server %s belongs to team %q", models.ErrForbidden, server.CanonicalID, server.OwnerTeam)
	}
	return server, nil
}

// List returns the servers the principal can see. Non-admins are scoped to
// their own registrations and their teams' servers inside the query itself so
// pagination counts stay truthful.
func (s *service) List(ctx context.Context, principal models.Principal, filter ListFilter) ([]models.Server, int64, error) {
	repoFilter := repositories.ServerFilter{
		Status:    filter.Status,
		OwnerTeam: filter.OwnerTeam,
		Tag:       filter.Tag,
		Query:     filter.Query,
		Offset:    filter.Offset,
		Limit:     normalizeLimit(filter.Limit),
	}
	if !principal.IsAdmin() {
		repoFilter.Access = &repositories.AccessScope{
			PrincipalID: principal.ID,
			Teams:       principal.AllTeams(),
		}
	}
	return s.servers.List(ctx, repoFilter)
}

// Update mutates a registration. The canonical id is immutable by request
// shape. A material change (version, source url, declared tools, transport
// config) to an Approved server demotes it to Draft so it must be re-scanned
// and re-approved.
func (s *service) Update(ctx context.Context, principal models.Principal, id string, req *models.UpdateServerRequest) (*models.Server, error) {
	server, err := s.loadChecked(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	version := server.Version
	sourceURL := server.SourceURL
	declaredTools := server.DeclaredTools
	mcpConfig := server.MCPConfig
	if req.Version != nil {
		version = *req.Version
	}
	if req.SourceURL != nil {
		sourceURL = *req.SourceURL
	}
	if req.DeclaredTools != nil {
		declaredTools = *req.DeclaredTools
	}
	if req.MCPConfig != nil {
		mcpConfig = *req.MCPConfig
	}
	material := server.MaterialChange(version, sourceURL, declaredTools, mcpConfig)

	if req.SourceURL != nil && *req.SourceURL != server.SourceURL {
		if err := validateSource(server.SourceType, *req.SourceURL); err != nil {
			return nil, err
		}
	}

	if req.Name != nil {
		server.Name = *req.Name
	}
	if req.Description != nil {
		server.Description = *req.Description
	}
	if req.OwnerTeam != nil {
		server.OwnerTeam = *req.OwnerTeam
	}
	if req.TestEndpoint != nil {
		server.TestEndpoint = *req.TestEndpoint
	}
	if req.Tags != nil {
		server.Tags = *req.Tags
	}
	server.Version = version
	server.SourceURL = sourceURL
	server.DeclaredTools = declaredTools
	server.MCPConfig = mcpConfig

	demoted := false
	if server.Status == models.StatusApproved && material {
		server.Status = models.StatusDraft
		demoted = true
	}

	if err := s.servers.Update(ctx, server); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	entry := s.log.WithFields(logrus.Fields{
		"server_id":    server.ID,
		"canonical_id": server.CanonicalID,
		"updated_by":   principal.ID,
	})
	if demoted {
		entry.Warn("Material change invalidated approval, server returned to draft")
	} else {
		entry.Info("Server updated")
	}

	return server, nil
}

// Delete removes a server and, by schema cascade, its scans and approvals.
// Audit events are keyed by canonical id snapshot and survive.
func (s *service) Delete(ctx context.Context, principal models.Principal, id string) error {
	server, err := s.loadChecked(ctx, principal, id)
	if err != nil {
		return err
	}

	if err := s.servers.Delete(ctx, server.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.ErrNotFound
		}
		return err
	}

	s.log.WithFields(logrus.Fields{
		"server_id":    server.ID,
		"canonical_id": server.CanonicalID,
		"deleted_by":   principal.ID,
	}).Info("Server deleted")
	return nil
}

// IsApproved reports whether the canonical id names an Approved server.
// Unknown servers are simply not approved.
func (s *service) IsApproved(ctx context.Context, canonicalID string) (bool, error) {
	server, err := s.servers.GetByCanonicalID(ctx, strings.ToLower(canonicalID))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return server.Status == models.StatusApproved, nil
}

// loadChecked fetches a server by id and enforces the access predicate.
func (s *service) loadChecked(ctx context.Context, principal models.Principal, id string) (*models.Server, error) {
	server, err := s.servers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if !principal.CanAccess(server) {
		return nil, fmt.Errorf("%w: server %s belongs to team %q", models.ErrForbidden, server.CanonicalID, server.OwnerTeam)
	}
	return server, nil
}

// validateSource checks the source reference for source types that carry one.
// Container images must parse as distribution references; repository and
// artifact sources must at least be well-formed URLs.
func validateSource(sourceType models.SourceType, sourceURL string) error {
	switch sourceType {
	case models.SourceLocalDeclared:
		return nil
	case models.SourceContainerImage:
		if sourceURL == "" {
			return fmt.Errorf("%w: source url is required for %s servers", models.ErrInvalidArgument, sourceType)
		}
		if _, err := reference.ParseNormalizedNamed(sourceURL); err != nil {
			return fmt.Errorf("%w: invalid image reference %q: %v", models.ErrInvalidArgument, sourceURL, err)
		}
	default:
		if sourceURL == "" {
			return fmt.Errorf("%w: source url is required for %s servers", models.ErrInvalidArgument, sourceType)
		}
		if _, err := url.ParseRequestURI(sourceURL); err != nil {
			return fmt.Errorf("%w: invalid source url %q", models.ErrInvalidArgument, sourceURL)
		}
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
