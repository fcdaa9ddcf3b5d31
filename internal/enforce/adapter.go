// Package enforce is the admission boundary for governed MCP traffic. The
// adapter sits in front of the proxy routes, extracts the caller, target
// server, and tool from each request, asks the policy engine for a verdict,
// and emits one audit event per gated call. It is the only component that
// touches the HTTP layer; the engine and registry stay transport-agnostic.
package enforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/metrics"
	"github.com/vantagesec/mcpwarden/internal/middleware"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/policy"
)

const (
	defaultMaxRequestBytes = 1 << 20

	limiterCleanupInterval = time.Minute
)

// EventSink receives completed audit events. Record must not block; the
// audit recorder satisfies this.
type EventSink interface {
	Record(event *models.AuditEvent)
}

// Adapter gates proxy-facing routes with the policy engine. It owns the
// per-user and per-team token buckets and a janitor that evicts idle ones.
type Adapter struct {
	engine *policy.Engine
	sink   EventSink
	cfg    *config.Config
	log    *logrus.Logger
	users  *keyedLimiter
	teams  *keyedLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

// NewAdapter wires the adapter and starts the limiter janitor when rate
// limits are configured.
func NewAdapter(engine *policy.Engine, sink EventSink, cfg *config.Config, log *logrus.Logger) *Adapter {
	a := &Adapter{
		engine: engine,
		sink:   sink,
		cfg:    cfg,
		log:    log,
		users:  newKeyedLimiter(cfg.Enforcement.RateLimitPerUser),
		teams:  newKeyedLimiter(cfg.Enforcement.RateLimitPerTeam),
		stop:   make(chan struct{}),
	}
	if a.users != nil || a.teams != nil {
		go a.janitor()
	}
	return a
}

// Close stops the limiter janitor.
func (a *Adapter) Close() {
	a.stopOnce.Do(func() {
		close(a.stop)
	})
}

// Middleware returns the gin handler that gates enforced paths. Requests
// outside the enforced path set pass through untouched.
func (a *Adapter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.cfg.Enforcement.Enabled || !enforcedPath(c.Request.URL.EscapedPath()) {
			c.Next()
			return
		}
		a.gate(c)
	}
}

// deniedResponse is the body returned on a blocked call.
type deniedResponse struct {
	Error             string `json:"error"`
	Reason            string `json:"reason,omitempty"`
	Decision          string `json:"decision"`
	ServerCanonicalID string `json:"serverCanonicalId"`
	ToolName          string `json:"toolName,omitempty"`
	TraceID           string `json:"traceId"`
}

// rpcProbe is the slice of a JSON-RPC body the adapter needs. tools/call
// carries the real tool name in params.
type rpcProbe struct {
	Method string `json:"method"`
	Params struct {
		Name string `json:"name"`
	} `json:"params"`
}

// gate runs the enforcement steps for one request on an enforced path.
func (a *Adapter) gate(c *gin.Context) {
	// The escaped path keeps percent-encoded slashes inside the id segment
	// intact until after the segment cut.
	canonicalID := canonicalIDFromPath(c.Request.URL.EscapedPath())
	if canonicalID == "" {
		a.log.WithField("path", c.Request.URL.Path).Debug("No adapter id in enforced path, bypassing enforcement")
		c.Next()
		return
	}

	principal := middleware.GetPrincipal(c)
	traceID := c.GetString("request_id")
	start := time.Now()

	maxBytes := a.cfg.Enforcement.MaxRequestPayloadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxRequestBytes
	}

	prefix, err := a.bufferBody(c, maxBytes)
	if err != nil {
		a.log.WithError(err).WithField("path", c.Request.URL.Path).Debug("Unreadable request body, bypassing enforcement")
		c.Next()
		return
	}
	requestSize := c.Request.ContentLength
	if requestSize < 0 {
		requestSize = int64(len(prefix))
	}

	// The size guard runs before tool extraction. An oversized body is
	// truncated at the read limit and would never parse, so checking parse
	// first would let every oversized payload slip past the guard.
	if requestSize > maxBytes || int64(len(prefix)) > maxBytes {
		a.finish(c, outcome{
			decision:    models.DecisionDeniedPayloadTooLarge,
			reason:      "request payload exceeds configured limit",
			canonicalID: canonicalID,
			principal:   principal,
			traceID:     traceID,
			requestSize: requestSize,
			start:       start,
		})
		return
	}

	toolName, ok := toolNameFromBody(prefix)
	if !ok {
		a.log.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"server": canonicalID,
		}).Debug("No tool method in request body, bypassing enforcement")
		c.Next()
		return
	}

	if !a.users.Allow(principal.ID) {
		a.finish(c, outcome{
			decision:    models.DecisionDeniedRateLimited,
			reason:      "per-user rate limit exceeded",
			canonicalID: canonicalID,
			toolName:    toolName,
			principal:   principal,
			traceID:     traceID,
			requestSize: requestSize,
			start:       start,
		})
		return
	}
	if !a.teams.Allow(principal.Team) {
		a.finish(c, outcome{
			decision:    models.DecisionDeniedRateLimited,
			reason:      "per-team rate limit exceeded",
			canonicalID: canonicalID,
			toolName:    toolName,
			principal:   principal,
			traceID:     traceID,
			requestSize: requestSize,
			start:       start,
		})
		return
	}

	verdict := a.engine.Decide(c.Request.Context(), principal, canonicalID, toolName)
	out := outcome{
		decision:    verdict.Code,
		reason:      verdict.Reason,
		riskScore:   verdict.ServerRiskScore,
		canonicalID: canonicalID,
		toolName:    toolName,
		principal:   principal,
		traceID:     traceID,
		requestSize: requestSize,
		start:       start,
	}

	switch {
	case verdict.Code == models.DecisionError:
		if a.enforcing() {
			a.record(c, out)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "policy evaluation failed",
				"traceId": traceID,
			})
			return
		}
		a.forward(c, out)
	case verdict.Allowed():
		a.forward(c, out)
	default:
		a.finish(c, out)
	}
}

// outcome carries everything finish and forward need to respond and emit
// the audit event.
type outcome struct {
	decision    models.Decision
	reason      string
	riskScore   *float64
	canonicalID string
	toolName    string
	principal   models.Principal
	traceID     string
	requestSize int64
	start       time.Time
}

// finish settles a denied call: enforce mode blocks with 403, audit mode
// forwards anyway and records the would-deny verdict.
func (a *Adapter) finish(c *gin.Context, out outcome) {
	if !a.enforcing() {
		a.forward(c, out)
		return
	}
	a.record(c, out)
	a.log.WithFields(logrus.Fields{
		"server":   out.canonicalID,
		"tool":     out.toolName,
		"actor":    out.principal.ID,
		"decision": out.decision.String(),
		"reason":   out.reason,
	}).Info("Blocked tool call")
	c.AbortWithStatusJSON(http.StatusForbidden, deniedResponse{
		Error:             "request blocked by policy",
		Reason:            out.reason,
		Decision:          out.decision.String(),
		ServerCanonicalID: out.canonicalID,
		ToolName:          out.toolName,
		TraceID:           out.traceID,
	})
}

// forward hands the request downstream under the configured timeout, then
// records the event with the observed response size. A deadline hit on an
// allowed call is recorded as TimedOut.
func (a *Adapter) forward(c *gin.Context, out outcome) {
	ctx := c.Request.Context()
	if timeoutMs := a.cfg.Enforcement.DefaultTimeoutMs; timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
	}

	c.Next()

	if out.decision == models.DecisionAllowed && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		out.decision = models.DecisionTimedOut
		out.reason = "downstream call exceeded timeout"
	}
	a.record(c, out)
}

// record emits the audit event and metrics for a settled call.
func (a *Adapter) record(c *gin.Context, out outcome) {
	latency := time.Since(out.start)

	responseSize := int64(c.Writer.Size())
	if responseSize < 0 {
		responseSize = 0
	}
	if limit := a.cfg.Enforcement.MaxResponsePayloadBytes; limit > 0 && responseSize > limit {
		a.log.WithFields(logrus.Fields{
			"server": out.canonicalID,
			"size":   responseSize,
		}).Warn("Downstream response exceeds configured payload limit")
	}

	a.sink.Record(&models.AuditEvent{
		Actor:             out.principal.ID,
		ActorEmail:        out.principal.Email,
		Team:              out.principal.Team,
		ServerCanonicalID: out.canonicalID,
		ToolName:          out.toolName,
		Decision:          out.decision,
		Reason:            out.reason,
		LatencyMs:         float64(latency.Microseconds()) / 1000.0,
		RequestSize:       out.requestSize,
		ResponseSize:      responseSize,
		TraceID:           out.traceID,
		SourceIP:          c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
		ServerRiskScore:   out.riskScore,
	})
	metrics.RecordToolCall(out.decision.String(), out.canonicalID, out.toolName, out.principal.Team, latency.Seconds())
}

// enforcing reports whether denies block. Any other mode value falls back
// to audit behaviour; config validation rejects unknown modes at startup.
func (a *Adapter) enforcing() bool {
	return strings.EqualFold(a.cfg.Enforcement.Mode, "enforce")
}

// bufferBody reads up to maxBytes+1 of the request body and splices the
// prefix back so downstream handlers see the full stream.
func (a *Adapter) bufferBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil, nil
	}
	prefix, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
	if err != nil {
		return nil, err
	}
	c.Request.Body = replayBody{io.MultiReader(bytes.NewReader(prefix), c.Request.Body), c.Request.Body}
	return prefix, nil
}

// replayBody chains the buffered prefix with the unread remainder while
// keeping the original closer.
type replayBody struct {
	io.Reader
	closer io.ReadCloser
}

func (r replayBody) Close() error {
	return r.closer.Close()
}

// toolNameFromBody pulls the invoked tool out of a JSON-RPC payload. The
// method field names the call; tools/call carries the actual tool in
// params.name. Returns ok=false when no method is recoverable.
func toolNameFromBody(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	var probe rpcProbe
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", false
	}
	if probe.Method == "" {
		return "", false
	}
	if probe.Method == "tools/call" && probe.Params.Name != "" {
		return probe.Params.Name, true
	}
	return probe.Method, true
}

// enforcedPath reports whether the request path is subject to enforcement.
func enforcedPath(path string) bool {
	return strings.Contains(path, "/adapters/") ||
		strings.Contains(path, "/tools/") ||
		strings.HasSuffix(path, "/mcp")
}

// canonicalIDFromPath extracts the target server from the first path
// segment after adapters/. Slash-bearing canonical ids arrive
// percent-encoded, so the segment is unescaped after the cut.
func canonicalIDFromPath(path string) string {
	const marker = "/adapters/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return ""
	}
	segment := path[idx+len(marker):]
	if slash := strings.IndexByte(segment, '/'); slash >= 0 {
		segment = segment[:slash]
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	return strings.ToLower(strings.TrimSpace(segment))
}

// janitor evicts idle rate-limit buckets until Close.
func (a *Adapter) janitor() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.users.Cleanup(limiterIdleAge)
			a.teams.Cleanup(limiterIdleAge)
		case <-a.stop:
			return
		}
	}
}
