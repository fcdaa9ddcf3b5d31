package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/audit"
	"github.com/vantagesec/mcpwarden/internal/middleware"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/utils"
)

// streamWriteWait bounds one websocket write before the consumer is
// considered gone.
const streamWriteWait = 10 * time.Second

// WebsocketUpgrader defines the websocket upgrader settings for live tails
var WebsocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The bearer token is the access control; origin checks add
		// nothing for non-browser MCP clients.
		return true
	},
}

// AuditController handles audit trail API requests
type AuditController struct {
	recorder *audit.Recorder
	hub      *audit.Hub
	log      *logrus.Logger
}

// NewAuditController creates a new audit controller
func NewAuditController(recorder *audit.Recorder, hub *audit.Hub, log *logrus.Logger) *AuditController {
	return &AuditController{
		recorder: recorder,
		hub:      hub,
		log:      log,
	}
}

// Query godoc
// @Summary Query audit events
// @Description Returns decision events newest first. The response carries the effective limit and offset after clamping.
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param start_date query string false "RFC 3339 lower bound"
// @Param end_date query string false "RFC 3339 upper bound"
// @Param team query string false "Calling team"
// @Param server_canonical_id query string false "Server canonical id"
// @Param tool_name query string false "Tool name"
// @Param decision query string false "Decision code name" example(DeniedToolDenylisted)
// @Param actor query string false "Principal id"
// @Param limit query int false "Page size, at most 1000" default(100)
// @Param offset query int false "Page offset"
// @Success 200 {object} models.AuditQueryResponse "Events"
// @Failure 400 {object} utils.Response "Malformed filter"
// @Failure 401 {object} utils.Response "Authentication required"
// @Router /registry/audit [get]
func (ctrl *AuditController) Query(c *gin.Context) {
	var filter models.AuditFilter
	if !utils.BindQuery(c, &filter) {
		return
	}
	filter.Normalize()

	events, total, err := ctrl.recorder.Query(c.Request.Context(), filter)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AuditQueryResponse{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// Stats godoc
// @Summary Aggregate audit events
// @Description Totals, per-decision counts, busiest servers and teams, and mean decision latency over the filter window.
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param start_date query string false "RFC 3339 lower bound"
// @Param end_date query string false "RFC 3339 upper bound"
// @Param team query string false "Calling team"
// @Param server_canonical_id query string false "Server canonical id"
// @Success 200 {object} models.AuditStats "Aggregates"
// @Failure 400 {object} utils.Response "Malformed filter"
// @Failure 401 {object} utils.Response "Authentication required"
// @Router /registry/audit/stats [get]
func (ctrl *AuditController) Stats(c *gin.Context) {
	var filter models.AuditFilter
	if !utils.BindQuery(c, &filter) {
		return
	}
	filter.Normalize()

	stats, err := ctrl.recorder.Stats(c.Request.Context(), filter)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Stream godoc
// @Summary Tail audit events live
// @Description Upgrades to a websocket and delivers every recorded event as a JSON text frame. Slow consumers are disconnected rather than allowed to stall the pipeline.
// @Tags Audit
// @Security BearerAuth
// @Success 101 "Switching protocols"
// @Failure 401 {object} utils.Response "Authentication required"
// @Router /registry/audit/stream [get]
func (ctrl *AuditController) Stream(c *gin.Context) {
	ws, err := WebsocketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctrl.log.WithError(err).Error("Failed to upgrade audit stream to websocket")
		return
	}
	defer ws.Close()

	sub := ctrl.hub.Subscribe()
	defer sub.Close()

	principal := middleware.GetPrincipal(c)
	ctrl.log.WithFields(logrus.Fields{
		"actor":       principal.ID,
		"subscribers": ctrl.hub.Subscribers(),
	}).Info("Audit live tail attached")

	// Drain control frames so pings are answered and a client close is
	// noticed even while no events flow.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-sub.C:
			if !ok {
				if sub.Dropped() {
					deadline := time.Now().Add(streamWriteWait)
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "stream lagged"),
						deadline)
				}
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
