package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoggingMiddleware logs HTTP requests and responses
type LoggingMiddleware struct {
	logger         *logrus.Logger
	logRequestBody bool
	logHeaders     bool
	maxBodyLogSize int
}

// LoggingOption configures the logging middleware
type LoggingOption func(*LoggingMiddleware)

// WithRequestBodyLogging enables logging of request bodies
func WithRequestBodyLogging(enabled bool) LoggingOption {
	return func(m *LoggingMiddleware) {
		m.logRequestBody = enabled
	}
}

// WithHeaderLogging enables logging of request headers
func WithHeaderLogging(enabled bool) LoggingOption {
	return func(m *LoggingMiddleware) {
		m.logHeaders = enabled
	}
}

// WithMaxBodyLogSize sets the maximum size of request bodies to log
func WithMaxBodyLogSize(sizeBytes int) LoggingOption {
	return func(m *LoggingMiddleware) {
		m.maxBodyLogSize = sizeBytes
	}
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *logrus.Logger, opts ...LoggingOption) *LoggingMiddleware {
	m := &LoggingMiddleware{
		logger:         logger,
		logRequestBody: false,
		logHeaders:     false,
		maxBodyLogSize: 1024,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Logger returns a gin middleware function for logging requests
func (m *LoggingMiddleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		var requestBody []byte
		if m.logRequestBody && c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			if len(bodyBytes) > m.maxBodyLogSize {
				requestBody = bodyBytes[:m.maxBodyLogSize]
			} else {
				requestBody = bodyBytes
			}
			// Replace request body so the handler can read it again
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		var requestHeaders map[string][]string
		if m.logHeaders {
			requestHeaders = make(map[string][]string)
			for k, v := range c.Request.Header {
				switch k {
				case "Authorization", "Cookie", "X-Api-Key":
					requestHeaders[k] = []string{"[REDACTED]"}
				default:
					requestHeaders[k] = v
				}
			}
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		fullPath := path
		if raw != "" {
			fullPath = path + "?" + raw
		}

		fields := logrus.Fields{
			"status":     statusCode,
			"latency":    latency.String(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       fullPath,
			"request_id": c.GetString("request_id"),
			"user_agent": c.Request.UserAgent(),
		}

		if principal := GetPrincipal(c); principal.ID != "" && principal.ID != "anonymous" {
			fields["actor"] = principal.ID
		}

		if m.logRequestBody && len(requestBody) > 0 {
			fields["request_body"] = string(requestBody)
		}

		if m.logHeaders && len(requestHeaders) > 0 {
			fields["request_headers"] = requestHeaders
		}

		if errorMessage != "" {
			fields["error"] = errorMessage
		}

		logEntry := m.logger.WithFields(fields)

		switch {
		case statusCode >= 500:
			logEntry.Error("Request processed with error")
		case statusCode >= 400:
			logEntry.Warn("Request processed with warning")
		default:
			logEntry.Info("Request processed")
		}
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}
