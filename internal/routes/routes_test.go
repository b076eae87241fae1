package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dancefloor/competition-api/internal/competition"
	"github.com/dancefloor/competition-api/internal/config"
	"github.com/dancefloor/competition-api/internal/kv"
	"github.com/dancefloor/competition-api/internal/middleware"
	"github.com/dancefloor/competition-api/internal/models"
	"github.com/dancefloor/competition-api/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app      *fiber.App
	sessions *session.Store
	store    *kv.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Issuer:     "competition-api",
			Audience:   "competition-app",
			Secret:     "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		Session: config.SessionConfig{SeedTestUser: true, LoginPath: "/login"},
		Storage: config.StorageConfig{CompetitionRetainLimit: 10},
		RateLimit: config.RateLimitConfig{
			Enabled: false,
		},
		Observability: config.ObservabilityConfig{MetricsPath: "/metrics"},
	}

	auth, err := middleware.NewAuthMiddleware(&cfg.JWT, logger)
	require.NoError(t, err)

	// The idempotency middleware degrades to pass-through when its cache is
	// unreachable, which is what this unreachable client exercises.
	deadRedis := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})

	mem := kv.NewMemory()
	mgr := &middleware.Manager{
		Auth:        auth,
		Idempotency: middleware.NewIdempotencyMiddleware(deadRedis, logger),
		RateLimit:   middleware.NewRateLimitMiddleware(&cfg.RateLimit, deadRedis, logger),
		ErrorLogger: middleware.NewErrorLoggerMiddleware(logger),
		Store:       mem,
		Config:      cfg,
		Logger:      logger,
	}

	sessions := session.NewStore(mem, &cfg.Session, logger)
	require.NoError(t, sessions.Initialize(context.Background()))

	competitions := competition.NewStore(mem, sessions, cfg.Storage.CompetitionRetainLimit, logger)
	require.NoError(t, competitions.Initialize(context.Background()))

	app := fiber.New()
	Setup(app, cfg, logger, mgr, sessions, competitions)

	return &testEnv{app: app, sessions: sessions, store: mem}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == fiber.MethodPost || method == fiber.MethodPatch {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func login(t *testing.T, e *testEnv, email, password string) models.AuthResponse {
	t.Helper()

	resp := e.request(t, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var auth models.AuthResponse
	decode(t, resp, &auth)
	return auth
}

func register(t *testing.T, e *testEnv, email string, role models.Role) models.AuthResponse {
	t.Helper()

	resp := e.request(t, fiber.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"email":    email,
		"password": "secret1",
		"name":     "Somebody",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var auth models.AuthResponse
	decode(t, resp, &auth)
	return auth
}

func TestAuthEndpoints(t *testing.T) {
	t.Run("login returns tokens and a redacted user", func(t *testing.T) {
		e := newTestEnv(t)

		auth := login(t, e, "test@example.com", "test123")
		assert.NotEmpty(t, auth.Token)
		assert.NotEmpty(t, auth.RefreshToken)
		assert.Equal(t, "1", auth.User.ID)
		assert.Empty(t, auth.User.Secret)
		assert.Equal(t, int(time.Hour.Seconds()), auth.ExpiresIn)
	})

	t.Run("wrong password is a 401 envelope", func(t *testing.T) {
		e := newTestEnv(t)

		resp := e.request(t, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{
			"email":    "test@example.com",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		decode(t, resp, &body)
		assert.Equal(t, "INVALID_CREDENTIALS", body.Error.Code)
		assert.Equal(t, "Invalid password", body.Error.Message)
	})

	t.Run("register then me", func(t *testing.T) {
		e := newTestEnv(t)

		auth := register(t, e, "judge@example.com", models.RoleJudge)

		resp := e.request(t, fiber.MethodGet, "/api/v1/auth/me", auth.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			User models.User `json:"user"`
		}
		decode(t, resp, &body)
		assert.Equal(t, auth.User.ID, body.User.ID)
		assert.Equal(t, models.RoleJudge, body.User.Role)
		assert.Empty(t, body.User.Secret)
	})

	t.Run("duplicate email is a 409", func(t *testing.T) {
		e := newTestEnv(t)

		resp := e.request(t, fiber.MethodPost, "/api/v1/auth/register", "", fiber.Map{
			"email":    "TEST@EXAMPLE.COM",
			"password": "x",
			"name":     "Dup",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("me without a token is a 401", func(t *testing.T) {
		e := newTestEnv(t)

		resp := e.request(t, fiber.MethodGet, "/api/v1/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("refresh rotates the token pair", func(t *testing.T) {
		e := newTestEnv(t)
		auth := login(t, e, "test@example.com", "test123")

		resp := e.request(t, fiber.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{
			"refreshToken": auth.RefreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var rotated models.AuthResponse
		decode(t, resp, &rotated)
		assert.NotEmpty(t, rotated.Token)
		assert.NotEqual(t, auth.RefreshToken, rotated.RefreshToken)

		// The rotated-out token is now revoked
		resp = e.request(t, fiber.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{
			"refreshToken": auth.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("an access token cannot refresh", func(t *testing.T) {
		e := newTestEnv(t)
		auth := login(t, e, "test@example.com", "test123")

		resp := e.request(t, fiber.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{
			"refreshToken": auth.Token,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("logout clears the session and points at login", func(t *testing.T) {
		e := newTestEnv(t)
		auth := login(t, e, "test@example.com", "test123")

		resp := e.request(t, fiber.MethodPost, "/api/v1/auth/logout", "", fiber.Map{
			"refreshToken": auth.RefreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		decode(t, resp, &body)
		assert.Equal(t, "/login", body["redirect_to"])
		assert.False(t, e.sessions.Authenticated())

		// The revoked refresh token no longer works
		resp = e.request(t, fiber.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{
			"refreshToken": auth.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestCompetitionEndpoints(t *testing.T) {
	t.Run("dancer cannot create competitions", func(t *testing.T) {
		e := newTestEnv(t)
		auth := login(t, e, "test@example.com", "test123")

		resp := e.request(t, fiber.MethodPost, "/api/v1/competitions/", auth.Token, fiber.Map{
			"name": "Nope Cup",
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("organizer lifecycle", func(t *testing.T) {
		e := newTestEnv(t)
		auth := register(t, e, "org@example.com", models.RoleOrganizer)

		resp := e.request(t, fiber.MethodPost, "/api/v1/competitions/", auth.Token, fiber.Map{
			"name":                  "City Open",
			"date":                  time.Now().AddDate(0, 2, 0),
			"max_dancers":           16,
			"registration_deadline": time.Now().AddDate(0, 1, 0),
			"deadline_time":         "18:00",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created struct {
			Competition models.Competition `json:"competition"`
		}
		decode(t, resp, &created)
		assert.Equal(t, auth.User.ID, created.Competition.OrganizerID)
		assert.Equal(t, models.StatusUpcoming, created.Competition.Status)

		// Everyone can read it back
		resp = e.request(t, fiber.MethodGet, "/api/v1/competitions/"+created.Competition.ID, auth.Token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		// Partial update of a single field
		resp = e.request(t, fiber.MethodPatch, "/api/v1/competitions/"+created.Competition.ID, auth.Token, fiber.Map{
			"location": "Main Hall",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var updated struct {
			Competition models.Competition `json:"competition"`
		}
		decode(t, resp, &updated)
		assert.Equal(t, "Main Hall", updated.Competition.Location)
		assert.Equal(t, "City Open", updated.Competition.Name)

		// The organizer view contains it
		resp = e.request(t, fiber.MethodGet, "/api/v1/competitions/mine", auth.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var mine struct {
			Total int `json:"total"`
		}
		decode(t, resp, &mine)
		assert.Equal(t, 1, mine.Total)

		// Delete it
		resp = e.request(t, fiber.MethodDelete, "/api/v1/competitions/"+created.Competition.ID, auth.Token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp = e.request(t, fiber.MethodGet, "/api/v1/competitions/"+created.Competition.ID, auth.Token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("dancer registration", func(t *testing.T) {
		e := newTestEnv(t)
		org := register(t, e, "org@example.com", models.RoleOrganizer)

		resp := e.request(t, fiber.MethodPost, "/api/v1/competitions/", org.Token, fiber.Map{
			"name":                  "Tiny Cup",
			"date":                  time.Now().AddDate(0, 2, 0),
			"max_dancers":           1,
			"registration_deadline": time.Now().AddDate(0, 1, 0),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created struct {
			Competition models.Competition `json:"competition"`
		}
		decode(t, resp, &created)
		compID := created.Competition.ID

		dancer := login(t, e, "test@example.com", "test123")

		regBody := fiber.Map{
			"personal_info":  fiber.Map{"first_name": "Test", "last_name": "Dancer", "email": "test@example.com"},
			"dance_role":     "leader",
			"payment_method": "paypal",
		}

		resp = e.request(t, fiber.MethodPost, "/api/v1/competitions/"+compID+"/registrations", dancer.Token, regBody)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		// Registering twice reports the duplicate, not the full house
		resp = e.request(t, fiber.MethodPost, "/api/v1/competitions/"+compID+"/registrations", dancer.Token, regBody)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		var dup struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		decode(t, resp, &dup)
		assert.Equal(t, "ALREADY_REGISTERED", dup.Error.Code)
	})
}

func TestPageGuard(t *testing.T) {
	t.Run("anonymous visitor is sent to login", func(t *testing.T) {
		e := newTestEnv(t)

		resp := e.request(t, fiber.MethodGet, "/dashboard", "", nil)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	t.Run("anonymous visitor may see login and register", func(t *testing.T) {
		e := newTestEnv(t)

		for _, path := range []string{"/login", "/register"} {
			resp := e.request(t, fiber.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		}
	})

	t.Run("dancer lands on the dancer dashboard", func(t *testing.T) {
		e := newTestEnv(t)
		login(t, e, "test@example.com", "test123")

		resp := e.request(t, fiber.MethodGet, "/dashboard", "", nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/dashboard/dancer", resp.Header.Get("Location"))

		resp = e.request(t, fiber.MethodGet, "/dashboard/dancer", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		// Another role's dashboard bounces through the generic one
		resp = e.request(t, fiber.MethodGet, "/dashboard/admin", "", nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	})

	t.Run("logged-in visitor cannot revisit login", func(t *testing.T) {
		e := newTestEnv(t)
		login(t, e, "test@example.com", "test123")

		resp := e.request(t, fiber.MethodGet, "/login", "", nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/dashboard/dancer", resp.Header.Get("Location"))
	})
}

func TestSystemEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp := e.request(t, fiber.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.request(t, fiber.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.request(t, fiber.MethodGet, "/version", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.request(t, fiber.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminEndpoints(t *testing.T) {
	e := newTestEnv(t)

	dancer := login(t, e, "test@example.com", "test123")
	resp := e.request(t, fiber.MethodGet, "/api/v1/admin/stats", dancer.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := register(t, e, "admin@example.com", models.RoleAdmin)
	resp = e.request(t, fiber.MethodGet, "/api/v1/admin/stats", admin.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		Users        int `json:"users"`
		Competitions int `json:"competitions"`
	}
	decode(t, resp, &stats)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 0, stats.Competitions)

	resp = e.request(t, fiber.MethodPost, "/api/v1/admin/flush-transient", admin.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
