// Package policy implements the synchronous admission check run on every
// governed tool call. Decisions come from an immutable in-memory snapshot of
// the policy configuration plus at most one indexed registry read, so the
// hot path stays sub-millisecond and never writes.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/metrics"
	"github.com/vantagesec/mcpwarden/internal/models"
)

// ServerSource is the engine's single registry dependency: a canonical-id
// lookup. It is satisfied by repositories.ServerRepository. Admission checks
// are not access-scoped, so the engine reads the repository directly.
type ServerSource interface {
	GetByCanonicalID(ctx context.Context, canonicalID string) (*models.Server, error)
}

// Decision is the verdict for one tool invocation.
type Decision struct {
	Code            models.Decision
	Reason          string
	ServerRiskScore *float64
}

// Allowed reports whether the call may proceed.
func (d Decision) Allowed() bool {
	return d.Code.Allowed()
}

// snapshot is one immutable compiled view of the policy configuration.
// Lookup keys are lowercased once here so Decide never allocates for case
// folding.
type snapshot struct {
	enforceRegistryOnly     bool
	riskThreshold           float64
	requireAdminForHighRisk bool
	globalToolDenylist      map[string]struct{}
	deniedToolCategories    []string
	teamAllowlists          map[string]map[string]struct{}
	teamDenylists           map[string]map[string]struct{}
	bypassPrincipals        map[string]struct{}
}

// Engine evaluates admission decisions against the current snapshot.
type Engine struct {
	servers ServerSource
	cfg     *config.Config
	snap    atomic.Pointer[snapshot]
	log     *logrus.Logger
}

// NewEngine compiles the initial snapshot from the config and returns a
// ready engine.
func NewEngine(servers ServerSource, cfg *config.Config, log *logrus.Logger) *Engine {
	e := &Engine{
		servers: servers,
		cfg:     cfg,
		log:     log,
	}
	e.snap.Store(compile(cfg))
	return e
}

// Reload atomically swaps in a snapshot compiled from the current config.
// In-flight decisions finish under the snapshot they started with.
func (e *Engine) Reload() {
	s := compile(e.cfg)
	e.snap.Store(s)
	e.log.WithFields(logrus.Fields{
		"enforce_registry_only": s.enforceRegistryOnly,
		"risk_threshold":        s.riskThreshold,
		"denylisted_tools":      len(s.globalToolDenylist),
		"denied_categories":     len(s.deniedToolCategories),
		"team_allowlists":       len(s.teamAllowlists),
		"team_denylists":        len(s.teamDenylists),
		"bypass_principals":     len(s.bypassPrincipals),
	}).Info("Policy snapshot reloaded")
}

// Decide evaluates the admission rules in order and returns on the first
// match. The rule order is part of the contract: break-glass bypass, then
// registry admission, then the risk gate, then tool denylists, then team
// scoping, then allow.
func (e *Engine) Decide(ctx context.Context, principal models.Principal, serverCanonicalID, toolName string) Decision {
	start := time.Now()
	decision := e.decide(ctx, principal, serverCanonicalID, toolName)
	metrics.RecordPolicyEval(time.Since(start).Seconds())
	return decision
}

func (e *Engine) decide(ctx context.Context, principal models.Principal, serverCanonicalID, toolName string) Decision {
	snap := e.snap.Load()
	canonicalID := strings.ToLower(serverCanonicalID)
	tool := strings.ToLower(toolName)

	if _, ok := snap.bypassPrincipals[principal.ID]; ok {
		return Decision{Code: models.DecisionAllowed, Reason: "bypass principal"}
	}

	// The single registry read. Its result also feeds the risk gate and the
	// audit decoration, so it happens even when registry-only admission is
	// off.
	var riskScore *float64
	server, err := e.servers.GetByCanonicalID(ctx, canonicalID)
	switch {
	case err == nil:
		riskScore = server.LatestRiskScore
	case errors.Is(err, repositories.ErrNotFound):
		server = nil
	default:
		e.log.WithError(err).WithField("canonical_id", canonicalID).Error("Policy registry lookup failed")
		return Decision{Code: models.DecisionError, Reason: "registry lookup failed"}
	}

	if snap.enforceRegistryOnly {
		if server == nil {
			return Decision{
				Code:   models.DecisionDeniedServerNotApproved,
				Reason: fmt.Sprintf("server %q is not registered", serverCanonicalID),
			}
		}
		if server.Status != models.StatusApproved {
			return Decision{
				Code:            models.DecisionDeniedServerNotApproved,
				Reason:          fmt.Sprintf("server %q is %s, not Approved", serverCanonicalID, server.Status),
				ServerRiskScore: riskScore,
			}
		}
	}

	if snap.requireAdminForHighRisk && riskScore != nil && *riskScore > snap.riskThreshold && !principal.IsAdmin() {
		return Decision{
			Code:            models.DecisionDeniedHighRisk,
			Reason:          fmt.Sprintf("risk score %.2f exceeds threshold %.2f and caller is not an admin", *riskScore, snap.riskThreshold),
			ServerRiskScore: riskScore,
		}
	}

	if _, ok := snap.globalToolDenylist[tool]; ok {
		return Decision{
			Code:            models.DecisionDeniedToolDenylisted,
			Reason:          fmt.Sprintf("tool %q is globally denylisted", toolName),
			ServerRiskScore: riskScore,
		}
	}

	for _, category := range snap.deniedToolCategories {
		if strings.Contains(tool, category) {
			return Decision{
				Code:            models.DecisionDeniedToolDenylisted,
				Reason:          fmt.Sprintf("tool %q matches denied category %q", toolName, category),
				ServerRiskScore: riskScore,
			}
		}
	}

	team := strings.ToLower(principal.Team)
	if team != "" {
		if allowlist, ok := snap.teamAllowlists[team]; ok && len(allowlist) > 0 {
			if _, ok := allowlist[canonicalID]; !ok {
				return Decision{
					Code:            models.DecisionDeniedTeamNotAuthorized,
					Reason:          fmt.Sprintf("server %q is not on team %q's allowlist", serverCanonicalID, principal.Team),
					ServerRiskScore: riskScore,
				}
			}
		}
		if denylist, ok := snap.teamDenylists[team]; ok {
			if _, ok := denylist[canonicalID]; ok {
				return Decision{
					Code:            models.DecisionDeniedTeamNotAuthorized,
					Reason:          fmt.Sprintf("server %q is denylisted for team %q", serverCanonicalID, principal.Team),
					ServerRiskScore: riskScore,
				}
			}
		}
	}

	return Decision{Code: models.DecisionAllowed, ServerRiskScore: riskScore}
}

// compile lowers the policy config into the snapshot's lookup structures.
func compile(cfg *config.Config) *snapshot {
	p := cfg.Policy
	s := &snapshot{
		enforceRegistryOnly:     p.EnforceRegistryOnly,
		riskThreshold:           p.RiskThreshold,
		requireAdminForHighRisk: p.RequireAdminForHighRisk,
		globalToolDenylist:      lowerSet(p.GlobalToolDenylist),
		deniedToolCategories:    lowerSlice(p.DeniedToolCategories),
		teamAllowlists:          lowerListMap(p.TeamAllowlists),
		teamDenylists:           lowerListMap(p.TeamDenylists),
		bypassPrincipals:        make(map[string]struct{}, len(p.BypassAllowedPrincipals)),
	}
	for _, id := range p.BypassAllowedPrincipals {
		if id != "" {
			s.bypassPrincipals[id] = struct{}{}
		}
	}
	return s
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func lowerSlice(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func lowerListMap(m map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(m))
	for team, servers := range m {
		out[strings.ToLower(team)] = lowerSet(servers)
	}
	return out
}
