package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dancefloor/competition-api/internal/config"
	"github.com/dancefloor/competition-api/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware validates bearer tokens on protected routes. Tokens are
// self-issued HS256 by default; when a JWKS endpoint is configured,
// externally issued RS256/ES256 tokens are accepted instead.
type AuthMiddleware struct {
	config   *config.JWTConfig
	logger   *logrus.Logger
	jwkCache *jwk.Cache
}

func NewAuthMiddleware(cfg *config.JWTConfig, logger *logrus.Logger) (*AuthMiddleware, error) {
	m := &AuthMiddleware{
		config: cfg,
		logger: logger,
	}

	if cfg.JWKSEndpoint != "" {
		cache := jwk.NewCache(context.Background())
		if err := cache.Register(cfg.JWKSEndpoint, jwk.WithMinRefreshInterval(cfg.CacheTTL)); err != nil {
			return nil, fmt.Errorf("failed to register JWKS endpoint: %w", err)
		}

		// Pre-fetch the keys
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := cache.Refresh(ctx, cfg.JWKSEndpoint); err != nil {
			logger.WithError(err).Warn("Failed to pre-fetch JWKS, will try during first request")
		}
		m.jwkCache = cache
	}

	return m, nil
}

// Authenticate validates the bearer token and stores the claims in the
// request context.
func (a *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return a.unauthorizedError(c, "MISSING_AUTHORIZATION", "Authorization header is required")
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			return a.unauthorizedError(c, "INVALID_TOKEN_FORMAT", "Authorization header must be Bearer token")
		}

		tokenString := authHeader[len(bearerPrefix):]
		if tokenString == "" {
			return a.unauthorizedError(c, "MISSING_TOKEN", "Token is required")
		}

		claims, err := a.ValidateToken(c.Context(), tokenString)
		if err != nil {
			a.logger.WithError(err).WithField("path", c.Path()).Debug("Token validation failed")
			return a.unauthorizedError(c, "INVALID_TOKEN", "Token validation failed")
		}

		c.Locals("user_claims", claims)
		if userID, ok := claims["sub"].(string); ok {
			c.Locals("user_id", userID)
		}
		if role, ok := claims["role"].(string); ok {
			c.Locals("user_role", role)
		}

		return c.Next()
	}
}

// RequireRole guards a route group behind a role claim. Authenticate must
// have run first.
func (a *AuthMiddleware) RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		current := GetUserRole(c)
		for _, role := range roles {
			if current == role {
				return c.Next()
			}
		}

		a.logger.WithFields(logrus.Fields{
			"path":     c.Path(),
			"role":     current,
			"required": roles,
		}).Warn("Role check failed")

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": fiber.Map{
				"code":     "FORBIDDEN",
				"message":  "Insufficient role for this resource",
				"trace_id": c.Get("X-Request-ID"),
			},
		})
	}
}

// ValidateToken verifies a token and returns its claims. Refresh tokens are
// rejected here; they are only accepted by the refresh endpoint.
func (a *AuthMiddleware) ValidateToken(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	claims, err := a.parseToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if typ, _ := claims["typ"].(string); typ == "refresh" {
		return nil, fmt.Errorf("refresh token used as access token")
	}
	return claims, nil
}

// ValidateRefreshToken verifies a refresh token and returns its claims.
func (a *AuthMiddleware) ValidateRefreshToken(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	claims, err := a.parseToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if typ, _ := claims["typ"].(string); typ != "refresh" {
		return nil, fmt.Errorf("not a refresh token")
	}
	return claims, nil
}

func (a *AuthMiddleware) parseToken(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	var token *jwt.Token
	var err error

	if a.jwkCache != nil {
		token, err = jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			keyID, ok := token.Header["kid"].(string)
			if !ok {
				return nil, fmt.Errorf("kid not found in token header")
			}

			set, err := a.jwkCache.Get(ctx, a.config.JWKSEndpoint)
			if err != nil {
				return nil, fmt.Errorf("failed to get JWK set: %w", err)
			}

			key, found := set.LookupKeyID(keyID)
			if !found {
				return nil, fmt.Errorf("key with ID %s not found", keyID)
			}

			var verifyKey interface{}
			if err := key.Raw(&verifyKey); err != nil {
				return nil, fmt.Errorf("failed to get raw key: %w", err)
			}
			return verifyKey, nil
		}, jwt.WithValidMethods([]string{"RS256", "ES256"}))
	} else {
		token, err = jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(a.config.Secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
	}

	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("failed to get token claims")
	}

	if err := a.validateClaims(claims); err != nil {
		return nil, fmt.Errorf("claims validation failed: %w", err)
	}

	return claims, nil
}

// validateClaims validates JWT standard claims
func (a *AuthMiddleware) validateClaims(claims jwt.MapClaims) error {
	if exp, ok := claims["exp"].(float64); ok {
		if time.Now().Unix() > int64(exp) {
			return fmt.Errorf("token has expired")
		}
	} else {
		return fmt.Errorf("exp claim is required")
	}

	if nbf, ok := claims["nbf"].(float64); ok {
		if time.Now().Unix() < int64(nbf) {
			return fmt.Errorf("token not valid yet")
		}
	}

	if iss, ok := claims["iss"].(string); ok {
		if iss != a.config.Issuer {
			return fmt.Errorf("invalid issuer: expected %s, got %s", a.config.Issuer, iss)
		}
	} else {
		return fmt.Errorf("iss claim is required")
	}

	if aud, ok := claims["aud"]; ok {
		switch v := aud.(type) {
		case string:
			if v != a.config.Audience {
				return fmt.Errorf("invalid audience: expected %s, got %s", a.config.Audience, v)
			}
		case []interface{}:
			found := false
			for _, audience := range v {
				if audStr, ok := audience.(string); ok && audStr == a.config.Audience {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("invalid audience: %s not found in %v", a.config.Audience, v)
			}
		default:
			return fmt.Errorf("aud claim must be string or array")
		}
	} else {
		return fmt.Errorf("aud claim is required")
	}

	return nil
}

// unauthorizedError returns a standardized unauthorized error response
func (a *AuthMiddleware) unauthorizedError(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{
			"code":     code,
			"message":  message,
			"trace_id": c.Get("X-Request-ID"),
		},
	})
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("user_id").(string); ok {
		return userID
	}
	return ""
}

// GetUserRole extracts the role claim from context
func GetUserRole(c *fiber.Ctx) models.Role {
	if role, ok := c.Locals("user_role").(string); ok {
		return models.Role(role)
	}
	return ""
}

// GetUserClaims extracts user claims from context
func GetUserClaims(c *fiber.Ctx) jwt.MapClaims {
	if claims, ok := c.Locals("user_claims").(jwt.MapClaims); ok {
		return claims
	}
	return nil
}
