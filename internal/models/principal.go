package models

import "strings"

// Role names recognized in principal claims.
const (
	RoleAdmin    = "admin"
	RoleSecurity = "security"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Principal is the authenticated caller as asserted by the upstream identity
// provider. The service trusts these claims; it performs authorization, not
// authentication.
type Principal struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Team  string   `json:"team,omitempty"`
	Teams []string `json:"teams,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// AnonymousPrincipal stands in when a request carries no identity at the
// enforcement boundary.
func AnonymousPrincipal() Principal {
	return Principal{ID: "anonymous"}
}

// HasRole reports whether the principal carries the role (case-insensitive)
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal may enact approval-class operations.
// The security role is deliberately equivalent here.
func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin) || p.HasRole(RoleSecurity)
}

// InTeam reports whether the principal belongs to the team, considering both
// the primary team claim and the multi-team claim.
func (p Principal) InTeam(team string) bool {
	if team == "" {
		return false
	}
	if strings.EqualFold(p.Team, team) {
		return true
	}
	for _, t := range p.Teams {
		if strings.EqualFold(t, team) {
			return true
		}
	}
	return false
}

// AllTeams returns the primary and multi-team claims as one deduplicated list.
func (p Principal) AllTeams() []string {
	teams := make([]string, 0, len(p.Teams)+1)
	if p.Team != "" {
		teams = append(teams, p.Team)
	}
	for _, team := range p.Teams {
		if team == "" || strings.EqualFold(team, p.Team) {
			continue
		}
		teams = append(teams, team)
	}
	return teams
}

// CanAccess is the registry's access predicate: admins see everything, a
// creator sees their own registrations, and team members see their team's.
func (p Principal) CanAccess(server *Server) bool {
	if p.IsAdmin() {
		return true
	}
	if server == nil {
		return false
	}
	if p.ID != "" && p.ID == server.CreatedBy {
		return true
	}
	return p.InTeam(server.OwnerTeam)
}
