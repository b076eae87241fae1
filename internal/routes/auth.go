package routes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dancefloor/competition-api/internal/config"
	"github.com/dancefloor/competition-api/internal/kv"
	"github.com/dancefloor/competition-api/internal/middleware"
	"github.com/dancefloor/competition-api/internal/models"
	"github.com/dancefloor/competition-api/internal/session"
	apperrors "github.com/dancefloor/competition-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	sessions *session.Store
	store    kv.Store
	auth     *middleware.AuthMiddleware
	jwtCfg   *config.JWTConfig
	logger   *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions *session.Store, store kv.Store, auth *middleware.AuthMiddleware, jwtCfg *config.JWTConfig, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		store:    store,
		auth:     auth,
		jwtCfg:   jwtCfg,
		logger:   logger,
	}
}

// Login handles user login
// @Summary User login
// @Description Authenticate user and return token pair
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 401 {object} map[string]interface{} "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestError(c, "INVALID_REQUEST", "Invalid request body")
	}

	user, err := h.sessions.Login(c.Context(), req.Email, req.Secret)
	if err != nil {
		return respondAppError(c, err)
	}

	token, refreshToken, expiresIn, err := h.issueTokens(c.Context(), user)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue tokens")
		return internalError(c, "TOKEN_ERROR", "Failed to generate token")
	}

	h.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("User logged in successfully")

	return c.JSON(models.AuthResponse{
		User:         user,
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}

// Register handles user registration
// @Summary User registration
// @Description Register a new user and log them in
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration data"
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} map[string]interface{} "Invalid email"
// @Failure 409 {object} map[string]interface{} "Email already exists"
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestError(c, "INVALID_REQUEST", "Invalid request body")
	}

	user, err := h.sessions.Register(c.Context(), req)
	if err != nil {
		return respondAppError(c, err)
	}

	token, refreshToken, expiresIn, err := h.issueTokens(c.Context(), user)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue tokens")
		return internalError(c, "TOKEN_ERROR", "Failed to generate token")
	}

	h.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("User registered successfully")

	return c.Status(fiber.StatusCreated).JSON(models.AuthResponse{
		User:         user,
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}

// Refresh rotates a refresh token into a fresh token pair
// @Summary Refresh tokens
// @Description Exchange a valid refresh token for a new token pair
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.RefreshRequest true "Refresh token"
// @Success 200 {object} models.AuthResponse
// @Failure 401 {object} map[string]interface{} "Invalid refresh token"
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req models.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestError(c, "INVALID_REQUEST", "Invalid request body")
	}

	claims, err := h.auth.ValidateRefreshToken(c.Context(), req.RefreshToken)
	if err != nil {
		h.logger.WithError(err).Debug("Refresh token validation failed")
		return unauthorizedError(c, "INVALID_TOKEN", "Refresh token validation failed")
	}

	jti, _ := claims["jti"].(string)
	sub, _ := claims["sub"].(string)
	if jti == "" || sub == "" {
		return unauthorizedError(c, "INVALID_TOKEN", "Refresh token is missing claims")
	}

	// The token must still be on the allowlist; logout revokes it
	allowKey := fmt.Sprintf("%s:%s", kv.RefreshPrefix, jti)
	if _, err := h.store.Get(c.Context(), allowKey); err != nil {
		if kv.IsNotFound(err) {
			return unauthorizedError(c, "TOKEN_REVOKED", "Refresh token has been revoked")
		}
		h.logger.WithError(err).Error("Failed to check refresh allowlist")
		return internalError(c, "TOKEN_ERROR", "Failed to validate refresh token")
	}

	user, ok := h.sessions.UserByID(sub)
	if !ok {
		return unauthorizedError(c, "INVALID_TOKEN", "Unknown user")
	}

	// Rotate: revoke the old token before issuing the new pair
	if err := h.store.Delete(c.Context(), allowKey); err != nil {
		h.logger.WithError(err).Warn("Failed to revoke rotated refresh token")
	}

	token, refreshToken, expiresIn, err := h.issueTokens(c.Context(), user)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue tokens")
		return internalError(c, "TOKEN_ERROR", "Failed to generate token")
	}

	return c.JSON(models.AuthResponse{
		User:         user,
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}

// Me returns the user behind the bearer token
// @Summary Current user
// @Description Get the authenticated user's profile
// @Tags Auth
// @Produce json
// @Success 200 {object} map[string]interface{} "User"
// @Failure 401 {object} map[string]interface{} "Unauthorized"
// @Router /auth/me [get]
// @Security Bearer
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	user, ok := h.sessions.UserByID(userID)
	if !ok {
		return unauthorizedError(c, "UNKNOWN_USER", "Token subject is not a known user")
	}

	return c.JSON(fiber.Map{"user": user})
}

// Logout clears the current session and revokes the refresh token
// @Summary Logout
// @Description Clear the session and revoke the presented refresh token
// @Tags Auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Redirect target"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	// Revoke the refresh token when the client presents one
	var req models.RefreshRequest
	if err := c.BodyParser(&req); err == nil && req.RefreshToken != "" {
		if claims, err := h.auth.ValidateRefreshToken(c.Context(), req.RefreshToken); err == nil {
			if jti, _ := claims["jti"].(string); jti != "" {
				allowKey := fmt.Sprintf("%s:%s", kv.RefreshPrefix, jti)
				if err := h.store.Delete(c.Context(), allowKey); err != nil {
					h.logger.WithError(err).Warn("Failed to revoke refresh token on logout")
				}
			}
		}
	}

	loginPath := h.sessions.Logout(c.Context())

	h.logger.Info("User logged out")

	return c.JSON(fiber.Map{
		"redirect_to": loginPath,
	})
}

// issueTokens generates an access and a refresh token for the user and
// records the refresh token's jti on the allowlist.
func (h *AuthHandler) issueTokens(ctx context.Context, user models.User) (string, string, int, error) {
	now := time.Now()
	expiresIn := int(h.jwtCfg.AccessTTL.Seconds())

	accessClaims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"exp":   now.Add(h.jwtCfg.AccessTTL).Unix(),
		"iat":   now.Unix(),
		"iss":   h.jwtCfg.Issuer,
		"aud":   h.jwtCfg.Audience,
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(h.jwtCfg.Secret))
	if err != nil {
		return "", "", 0, err
	}

	jti := uuid.New().String()
	refreshClaims := jwt.MapClaims{
		"sub": user.ID,
		"typ": "refresh",
		"jti": jti,
		"exp": now.Add(h.jwtCfg.RefreshTTL).Unix(),
		"iat": now.Unix(),
		"iss": h.jwtCfg.Issuer,
		"aud": h.jwtCfg.Audience,
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(h.jwtCfg.Secret))
	if err != nil {
		return "", "", 0, err
	}

	allowKey := fmt.Sprintf("%s:%s", kv.RefreshPrefix, jti)
	if err := h.store.SetTTL(ctx, allowKey, user.ID, h.jwtCfg.RefreshTTL); err != nil {
		return "", "", 0, fmt.Errorf("failed to record refresh token: %w", err)
	}

	return accessToken, refreshToken, expiresIn, nil
}

// respondAppError translates a store error into the standard error envelope.
func respondAppError(c *fiber.Ctx, err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewAppError(apperrors.CodeInternalError, "Internal server error", err)
	}

	return c.Status(appErr.HTTPStatus()).JSON(fiber.Map{
		"error": fiber.Map{
			"code":     appErr.Code,
			"message":  appErr.Message,
			"trace_id": c.Get("X-Request-ID"),
		},
	})
}
