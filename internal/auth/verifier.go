package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// Token verification errors
var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("token has expired")
	ErrTokenNotYetValid     = errors.New("token not yet valid")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
	ErrInvalidClaims        = errors.New("invalid token claims")
	ErrInvalidIssuer        = errors.New("invalid token issuer")
	ErrInvalidAudience      = errors.New("invalid token audience")
	ErrMissingSubject       = errors.New("token has no subject")
)

// Claims are the identity claims this service understands. The upstream
// identity provider issues them; this service only reads them.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Team  string   `json:"team,omitempty"`
	Teams []string `json:"teams,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier turns a bearer token into an authenticated principal.
type Verifier interface {
	Verify(ctx context.Context, tokenString string) (*models.Principal, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, tokenString string) (*models.Principal, error)

// Verify calls f
func (f VerifierFunc) Verify(ctx context.Context, tokenString string) (*models.Principal, error) {
	return f(ctx, tokenString)
}

// Config controls token verification. With an empty Secret the signature is
// not re-checked here: the deployment fronts this service with a gateway that
// already validated it, and we only decode the claims.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
}

// JWTVerifier validates JWT bearer tokens and extracts principals
type JWTVerifier struct {
	config Config
	log    *logrus.Logger
}

// NewJWTVerifier creates a new JWT verifier with the provided configuration
func NewJWTVerifier(config Config, log *logrus.Logger) *JWTVerifier {
	if config.Secret == "" {
		log.Warn("No auth secret configured; token signatures will not be re-verified")
	}
	return &JWTVerifier{
		config: config,
		log:    log,
	}
}

// Verify parses the token, validates it per the configuration, and returns
// the principal it asserts.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*models.Principal, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	var claims Claims
	if v.config.Secret != "" {
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidSigningMethod
			}
			return []byte(v.config.Secret), nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrExpiredToken
			}
			if errors.Is(err, jwt.ErrTokenNotValidYet) {
				return nil, ErrTokenNotYetValid
			}
			v.log.WithError(err).Debug("Token validation failed")
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if !token.Valid {
			return nil, ErrInvalidToken
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
			v.log.WithError(err).Debug("Token decoding failed")
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		// Expiry still applies even when we trust the gateway's signature check
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			return nil, ErrExpiredToken
		}
	}

	if err := v.validateClaims(&claims); err != nil {
		return nil, err
	}

	principal := principalFromClaims(&claims)
	return &principal, nil
}

// validateClaims checks issuer, audience, and subject against the configuration
func (v *JWTVerifier) validateClaims(claims *Claims) error {
	if v.config.Issuer != "" && claims.Issuer != v.config.Issuer {
		return ErrInvalidIssuer
	}

	if v.config.Audience != "" {
		found := false
		for _, aud := range claims.Audience {
			if aud == v.config.Audience {
				found = true
				break
			}
		}
		if !found {
			return ErrInvalidAudience
		}
	}

	if claims.Subject == "" {
		return ErrMissingSubject
	}

	return nil
}

// principalFromClaims maps verified claims onto a principal
func principalFromClaims(claims *Claims) models.Principal {
	return models.Principal{
		ID:    claims.Subject,
		Email: claims.Email,
		Team:  claims.Team,
		Teams: claims.Teams,
		Roles: claims.Roles,
	}
}
