package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/auth"
	"github.com/vantagesec/mcpwarden/internal/models"
)

// principalKey is the gin context key the authenticated principal is stored
// under.
const principalKey = "principal"

// Authentication errors
var (
	ErrAuthHeaderMissing = errors.New("authorization header is required")
	ErrInvalidAuthHeader = errors.New("invalid authorization header format")
	ErrTokenVerification = errors.New("failed to verify token")
)

// AuthMiddleware turns bearer tokens into principals for the registry API
type AuthMiddleware struct {
	verifier auth.Verifier
	log      *logrus.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier auth.Verifier, log *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		log:      log,
	}
}

// RequirePrincipal ensures the request carries a valid identity
func (m *AuthMiddleware) RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := m.extractPrincipal(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.Set(principalKey, *principal)
		c.Next()
	}
}

// OptionalPrincipal attaches an identity when one is presented and lets the
// request through either way. The enforcement layer treats requests without
// identity as anonymous rather than rejecting them outright.
func (m *AuthMiddleware) OptionalPrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := m.extractPrincipal(c)
		if err != nil {
			if !errors.Is(err, ErrAuthHeaderMissing) {
				m.log.WithError(err).Debug("Ignoring unusable bearer token")
			}
			c.Set(principalKey, models.AnonymousPrincipal())
		} else {
			c.Set(principalKey, *principal)
		}
		c.Next()
	}
}

// RequireAdmin ensures the principal may enact approval-class operations.
// It must run after RequirePrincipal.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if !principal.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access denied: requires the admin or security role",
			})
			return
		}
		c.Next()
	}
}

// extractPrincipal pulls the bearer token from the Authorization header and
// verifies it
func (m *AuthMiddleware) extractPrincipal(c *gin.Context) (*models.Principal, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, ErrAuthHeaderMissing
	}

	headerParts := strings.SplitN(authHeader, " ", 2)
	if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "Bearer") {
		return nil, ErrInvalidAuthHeader
	}

	principal, err := m.verifier.Verify(c.Request.Context(), headerParts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenVerification, err)
	}

	return principal, nil
}

// GetPrincipal returns the principal stored by the auth middleware, or the
// anonymous principal when none was attached.
func GetPrincipal(c *gin.Context) models.Principal {
	value, exists := c.Get(principalKey)
	if !exists {
		return models.AnonymousPrincipal()
	}

	principal, ok := value.(models.Principal)
	if !ok {
		return models.AnonymousPrincipal()
	}

	return principal
}
