package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/middleware"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/registry"
	"github.com/vantagesec/mcpwarden/internal/utils"
)

// scanWatchPollInterval is how often an open scan watch re-reads the scan
// row. Progress moves at reconciler pace, so polling faster buys nothing.
const scanWatchPollInterval = 2 * time.Second

// RegistryController handles server registration and lifecycle API requests
type RegistryController struct {
	svc registry.Service
	log *logrus.Logger
}

// NewRegistryController creates a new registry controller
func NewRegistryController(svc registry.Service, log *logrus.Logger) *RegistryController {
	return &RegistryController{
		svc: svc,
		log: log,
	}
}

// Register godoc
// @Summary Register an MCP server
// @Description Creates a Draft registration owned by the calling principal.
// @Tags Servers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param server body models.RegisterServerRequest true "Registration"
// @Success 201 {object} utils.Response{data=models.Server} "Server registered"
// @Failure 400 {object} utils.Response "Invalid registration"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 409 {object} utils.Response "Canonical id already registered"
// @Router /registry/servers [post]
func (ctrl *RegistryController) Register(c *gin.Context) {
	var req models.RegisterServerRequest
	if !utils.BindJSON(c, &req) {
		return
	}

	server, err := ctrl.svc.Register(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, server)
}

// List godoc
// @Summary List servers
// @Description Lists registrations visible to the caller, newest first.
// @Tags Servers
// @Produce json
// @Security BearerAuth
// @Param status query string false "Lifecycle status name" example(Approved)
// @Param owner_team query string false "Owning team"
// @Param tag query string false "Tag"
// @Param q query string false "Substring match on canonical id or name"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset"
// @Success 200 {object} utils.Response{data=[]models.Server} "Servers"
// @Failure 400 {object} utils.Response "Unknown status name"
// @Failure 401 {object} utils.Response "Authentication required"
// @Router /registry/servers [get]
func (ctrl *RegistryController) List(c *gin.Context) {
	var req models.ListServersRequest
	if !utils.BindQuery(c, &req) {
		return
	}

	filter := registry.ListFilter{
		OwnerTeam: req.OwnerTeam,
		Tag:       req.Tag,
		Query:     req.Query,
		Offset:    req.Offset,
		Limit:     req.Limit,
	}
	if req.Status != "" {
		status, err := models.ParseServerStatus(req.Status)
		if err != nil {
			utils.BadRequest(c, "Unknown server status: "+req.Status)
			return
		}
		filter.Status = &status
	}

	servers, total, err := ctrl.svc.List(c.Request.Context(), middleware.GetPrincipal(c), filter)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.PaginatedResponse(c, servers, filter.Limit, filter.Offset, total)
}

// Get godoc
// @Summary Get a server
// @Tags Servers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Success 200 {object} utils.Response{data=models.Server} "Server"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "Unknown or inaccessible server"
// @Router /registry/servers/{id} [get]
func (ctrl *RegistryController) Get(c *gin.Context) {
	server, err := ctrl.svc.Get(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, server)
}

// GetByCanonicalID godoc
// @Summary Get a server by canonical id
// @Description Canonical ids may contain slashes, so the id is taken from the remainder of the path.
// @Tags Servers
// @Produce json
// @Security BearerAuth
// @Param canonical_id path string true "Canonical id" example(acme/search-tools)
// @Success 200 {object} utils.Response{data=models.Server} "Server"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "Unknown or inaccessible server"
// @Router /registry/servers/by-canonical-id/{canonical_id} [get]
func (ctrl *RegistryController) GetByCanonicalID(c *gin.Context) {
	canonicalID := strings.TrimPrefix(c.Param("canonical_id"), "/")

	server, err := ctrl.svc.GetByCanonicalID(c.Request.Context(), middleware.GetPrincipal(c), canonicalID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, server)
}

// Update godoc
// @Summary Update a server
// @Description Applies the non-nil fields. A material change to an Approved server demotes it to Draft.
// @Tags Servers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param server body models.UpdateServerRequest true "Fields to update"
// @Success 200 {object} utils.Response{data=models.Server} "Updated server"
// @Failure 400 {object} utils.Response "Invalid update"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Not the owner"
// @Failure 404 {object} utils.Response "Unknown server"
// @Router /registry/servers/{id} [put]
func (ctrl *RegistryController) Update(c *gin.Context) {
	var req models.UpdateServerRequest
	if !utils.BindJSON(c, &req) {
		return
	}

	server, err := ctrl.svc.Update(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"), &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, server)
}

// Delete godoc
// @Summary Delete a server
// @Description Removes the registration and its scans and approvals. Audit events survive under the canonical id snapshot.
// @Tags Servers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Success 204 "Deleted"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Not the owner"
// @Failure 404 {object} utils.Response "Unknown server"
// @Router /registry/servers/{id} [delete]
func (ctrl *RegistryController) Delete(c *gin.Context) {
	if err := ctrl.svc.Delete(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id")); err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.NoContentResponse(c)
}

// SubmitScan godoc
// @Summary Submit a server for scanning
// @Description Queues a scan workload and returns the Pending scan. Poll the scan or watch it for progress.
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Success 202 {object} utils.Response{data=models.Scan} "Scan queued"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "Unknown server"
// @Failure 409 {object} utils.Response "A scan is already in flight"
// @Router /registry/servers/{id}/scan [post]
func (ctrl *RegistryController) SubmitScan(c *gin.Context) {
	scan, err := ctrl.svc.SubmitForScan(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.AcceptedResponse(c, scan)
}

// UploadScan godoc
// @Summary Upload a local scan report
// @Description Accepts scanner output for a LocalDeclared server and applies the usual pass/fail rules.
// @Tags Scans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param report body models.UploadScanRequest true "Scanner output"
// @Success 200 {object} utils.Response{data=models.Scan} "Recorded scan"
// @Failure 400 {object} utils.Response "Unparseable scanner output"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "Unknown server"
// @Failure 409 {object} utils.Response "Server is not LocalDeclared"
// @Router /registry/servers/{id}/scan/upload [post]
func (ctrl *RegistryController) UploadScan(c *gin.Context) {
	var req models.UploadScanRequest
	if !utils.BindJSON(c, &req) {
		return
	}

	scan, err := ctrl.svc.UploadLocalScan(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"), &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, scan)
}

// LatestScan godoc
// @Summary Get the most recent scan
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Success 200 {object} utils.Response{data=models.Scan} "Latest scan"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "No scans yet"
// @Router /registry/servers/{id}/scan/latest [get]
func (ctrl *RegistryController) LatestScan(c *gin.Context) {
	scan, err := ctrl.svc.LatestScan(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, scan)
}

// ListScans godoc
// @Summary List scan history
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset"
// @Success 200 {object} utils.Response{data=[]models.Scan} "Scans, newest first"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "Unknown server"
// @Router /registry/servers/{id}/scans [get]
func (ctrl *RegistryController) ListScans(c *gin.Context) {
	var page models.PageRequest
	if !utils.BindQuery(c, &page) {
		return
	}

	scans, total, err := ctrl.svc.ListScans(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"), page.Offset, page.Limit)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.PaginatedResponse(c, scans, page.Limit, page.Offset, total)
}

// GetScan godoc
// @Summary Get a scan
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param scanId path string true "Scan id"
// @Success 200 {object} utils.Response{data=models.Scan} "Scan"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "Unknown scan"
// @Router /registry/servers/{id}/scans/{scanId} [get]
func (ctrl *RegistryController) GetScan(c *gin.Context) {
	scan, err := ctrl.svc.GetScan(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"), c.Param("scanId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, scan)
}

// WatchScan godoc
// @Summary Watch a scan
// @Description Streams scan progress as server-sent events. One frame per status change; the stream closes once the scan is terminal.
// @Tags Scans
// @Produce text/event-stream
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param scanId path string true "Scan id"
// @Success 200 {object} models.ScanWatchEvent "Event frames"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "Unknown scan"
// @Router /registry/servers/{id}/scans/{scanId}/watch [get]
func (ctrl *RegistryController) WatchScan(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	serverID := c.Param("id")
	scanID := c.Param("scanId")

	current, err := ctrl.svc.GetScan(c.Request.Context(), principal, serverID, scanID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(scanWatchPollInterval)
	defer ticker.Stop()

	seq := 0
	sent := false
	lastStatus := current.Status

	c.Stream(func(w io.Writer) bool {
		if !sent || current.Status != lastStatus {
			seq++
			frame := models.ScanWatchEvent{
				ScanID:       current.ID,
				ServerID:     current.ServerID,
				Status:       current.Status,
				RiskScore:    current.RiskScore,
				ErrorMessage: current.ErrorMessage,
				ObservedAt:   time.Now().UTC(),
			}
			payload, err := json.Marshal(frame)
			if err != nil {
				ctrl.log.WithError(err).Error("Failed to marshal scan watch frame")
				return false
			}
			sse.Encode(w, sse.Event{
				Event: "scan",
				Data:  string(payload),
				Id:    fmt.Sprintf("%s-%d", current.ID, seq),
			})
			sent = true
			lastStatus = current.Status
			return !current.Status.Terminal()
		}

		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
		}

		next, err := ctrl.svc.GetScan(c.Request.Context(), principal, serverID, scanID)
		if err != nil {
			ctrl.log.WithError(err).Debug("Scan watch lost its scan")
			sse.Encode(w, sse.Event{
				Event: "error",
				Data:  fmt.Sprintf(`{"error": %q}`, "scan no longer readable"),
			})
			return false
		}
		current = next
		return true
	})
}

// CancelScan godoc
// @Summary Cancel a running scan
// @Description Stops the workload and records the scan as Cancelled; the server moves to ScannedFail.
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param scanId path string true "Scan id"
// @Success 200 {object} utils.Response{data=models.Scan} "Cancelled scan"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "Unknown scan"
// @Failure 409 {object} utils.Response "Scan already finished"
// @Router /registry/servers/{id}/scans/{scanId}/cancel [post]
func (ctrl *RegistryController) CancelScan(c *gin.Context) {
	scan, err := ctrl.svc.CancelScan(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"), c.Param("scanId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, scan)
}

// Approve godoc
// @Summary Approve a server
// @Description Admits the server for enforced traffic. Approving over a failed scan requires an override reason.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param decision body models.ApproveRequest true "Approval"
// @Success 200 {object} utils.Response{data=models.Approval} "Recorded approval"
// @Failure 400 {object} utils.Response "Missing reason or override"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Requires the admin or security role"
// @Failure 404 {object} utils.Response "Unknown server"
// @Failure 409 {object} utils.Response "Status does not permit approval"
// @Router /registry/servers/{id}/approve [post]
func (ctrl *RegistryController) Approve(c *gin.Context) {
	var req models.ApproveRequest
	if !utils.BindJSON(c, &req) {
		return
	}

	approval, err := ctrl.svc.Approve(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"), &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, approval)
}

// Deny godoc
// @Summary Deny a server
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param decision body models.DecisionRequest true "Denial"
// @Success 200 {object} utils.Response{data=models.Approval} "Recorded denial"
// @Failure 400 {object} utils.Response "Missing reason"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Requires the admin or security role"
// @Failure 404 {object} utils.Response "Unknown server"
// @Router /registry/servers/{id}/deny [post]
func (ctrl *RegistryController) Deny(c *gin.Context) {
	ctrl.decide(c, ctrl.svc.Deny)
}

// Suspend godoc
// @Summary Suspend an approved server
// @Description Temporarily pulls the server out of enforced traffic without discarding its approval history.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param decision body models.DecisionRequest true "Suspension"
// @Success 200 {object} utils.Response{data=models.Approval} "Recorded suspension"
// @Failure 400 {object} utils.Response "Missing reason"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Requires the admin or security role"
// @Failure 404 {object} utils.Response "Unknown server"
// @Failure 409 {object} utils.Response "Only Approved servers can be suspended"
// @Router /registry/servers/{id}/suspend [post]
func (ctrl *RegistryController) Suspend(c *gin.Context) {
	ctrl.decide(c, ctrl.svc.Suspend)
}

// Reinstate godoc
// @Summary Reinstate a suspended server
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param decision body models.DecisionRequest true "Reinstatement"
// @Success 200 {object} utils.Response{data=models.Approval} "Recorded reinstatement"
// @Failure 400 {object} utils.Response "Missing reason"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Requires the admin or security role"
// @Failure 404 {object} utils.Response "Unknown server"
// @Failure 409 {object} utils.Response "Only Suspended servers can be reinstated"
// @Router /registry/servers/{id}/reinstate [post]
func (ctrl *RegistryController) Reinstate(c *gin.Context) {
	ctrl.decide(c, ctrl.svc.Reinstate)
}

// Deprecate godoc
// @Summary Deprecate a server
// @Description Retires the server permanently. Deprecated is a terminal status.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param decision body models.DecisionRequest true "Deprecation"
// @Success 200 {object} utils.Response{data=models.Approval} "Recorded deprecation"
// @Failure 400 {object} utils.Response "Missing reason"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Requires the admin or security role"
// @Failure 404 {object} utils.Response "Unknown server"
// @Router /registry/servers/{id}/deprecate [post]
func (ctrl *RegistryController) Deprecate(c *gin.Context) {
	ctrl.decide(c, ctrl.svc.Deprecate)
}

// decide runs one reason-carrying approval operation end to end.
func (ctrl *RegistryController) decide(
	c *gin.Context,
	op func(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Approval, error),
) {
	var req models.DecisionRequest
	if !utils.BindJSON(c, &req) {
		return
	}

	approval, err := op(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"), &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, approval)
}

// RequestApproval godoc
// @Summary Request approval for a scanned server
// @Description Moves a ScannedPass server into the PendingApproval review queue.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param request body models.DecisionRequest true "Request context"
// @Success 200 {object} utils.Response{data=models.Server} "Server now pending approval"
// @Failure 400 {object} utils.Response "Missing reason"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 403 {object} utils.Response "Not the owner"
// @Failure 404 {object} utils.Response "Unknown server"
// @Failure 409 {object} utils.Response "Server has not passed a scan"
// @Router /registry/servers/{id}/request-approval [post]
func (ctrl *RegistryController) RequestApproval(c *gin.Context) {
	var req models.DecisionRequest
	if !utils.BindJSON(c, &req) {
		return
	}

	server, err := ctrl.svc.RequestApproval(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"), &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, server)
}

// ListApprovals godoc
// @Summary List the approval trail
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server id"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset"
// @Success 200 {object} utils.Response{data=[]models.Approval} "Decisions, newest first"
// @Failure 401 {object} utils.Response "Authentication required"
// @Failure 404 {object} utils.Response "Unknown server"
// @Router /registry/servers/{id}/approvals [get]
func (ctrl *RegistryController) ListApprovals(c *gin.Context) {
	var page models.PageRequest
	if !utils.BindQuery(c, &page) {
		return
	}

	approvals, total, err := ctrl.svc.ListApprovals(c.Request.Context(), middleware.GetPrincipal(c), c.Param("id"), page.Offset, page.Limit)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.PaginatedResponse(c, approvals, page.Limit, page.Offset, total)
}
