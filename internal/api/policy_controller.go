package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/middleware"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/policy"
	"github.com/vantagesec/mcpwarden/internal/utils"
)

// PolicyController handles policy administration API requests
type PolicyController struct {
	engine *policy.Engine
	log    *logrus.Logger
}

// NewPolicyController creates a new policy controller
func NewPolicyController(engine *policy.Engine, log *logrus.Logger) *PolicyController {
	return &PolicyController{
		engine: engine,
		log:    log,
	}
}

// Check godoc
// @Summary Dry-run an admission decision
// @Description Evaluates the policy rules for a hypothetical caller without forwarding traffic or writing audit events.
// @Tags Policy
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param check body models.PolicyCheckRequest true "Hypothetical call"
// @Success 200 {object} utils.Response{data=models.PolicyCheckResponse} "Decision"
// @Failure 400 {object} utils.Response "Missing server or tool"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Requires the admin or security role"
// @Router /registry/policy/check [post]
func (ctrl *PolicyController) Check(c *gin.Context) {
	var req models.PolicyCheckRequest
	if !utils.BindJSON(c, &req) {
		return
	}

	subject := models.Principal{
		ID:    req.PrincipalID,
		Team:  req.Team,
		Roles: req.Roles,
	}
	if subject.ID == "" {
		subject = models.AnonymousPrincipal()
	}

	verdict := ctrl.engine.Decide(c.Request.Context(), subject, req.ServerCanonicalID, req.ToolName)

	ctrl.log.WithFields(logrus.Fields{
		"checked_by": middleware.GetPrincipal(c).ID,
		"subject":    subject.ID,
		"server":     req.ServerCanonicalID,
		"tool":       req.ToolName,
		"decision":   verdict.Code.String(),
	}).Info("Policy dry-run evaluated")

	utils.SuccessResponse(c, models.PolicyCheckResponse{
		Decision:        verdict.Code,
		Reason:          verdict.Reason,
		ServerRiskScore: verdict.ServerRiskScore,
	})
}

// Reload godoc
// @Summary Reload the policy snapshot
// @Description Recompiles the decision rules from the current configuration and swaps them in atomically. In-flight decisions finish under the snapshot they started with.
// @Tags Policy
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Response "Snapshot swapped"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Requires the admin or security role"
// @Router /registry/policy/reload [post]
func (ctrl *PolicyController) Reload(c *gin.Context) {
	ctrl.engine.Reload()

	ctrl.log.WithField("actor", middleware.GetPrincipal(c).ID).Info("Policy snapshot reloaded via API")

	utils.SuccessResponse(c, gin.H{"status": "reloaded"})
}
