// Package session owns the user directory and the current authenticated
// session. All state is mirrored synchronously into the key-value store so a
// restart rehydrates the same session.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/dancefloor/competition-api/internal/config"
	"github.com/dancefloor/competition-api/internal/kv"
	"github.com/dancefloor/competition-api/internal/metrics"
	"github.com/dancefloor/competition-api/internal/models"
	apperrors "github.com/dancefloor/competition-api/pkg/errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Dashboard route targets resolved from a user's role.
const (
	PathDashboard          = "/dashboard"
	PathDancerDashboard    = "/dashboard/dancer"
	PathJudgeDashboard     = "/dashboard/judge"
	PathOrganizerDashboard = "/dashboard/organizer"
	PathAdminDashboard     = "/dashboard/admin"
)

// testUser is the account seeded into an empty directory so a fresh
// deployment is immediately usable.
var testUser = models.User{
	ID:        "1",
	Email:     "test@example.com",
	Secret:    "test123",
	Name:      "Test User",
	Role:      models.RoleDancer,
	CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}

// Store owns the user directory and current session.
type Store struct {
	mu     sync.Mutex
	kv     kv.Store
	logger *logrus.Logger
	cfg    *config.SessionConfig

	users         []models.User
	current       *models.User // always redacted
	authenticated bool
	initialized   bool

	nowFn func() time.Time
}

// NewStore creates a session store over the given key-value adapter.
func NewStore(store kv.Store, cfg *config.SessionConfig, logger *logrus.Logger) *Store {
	return &Store{
		kv:     store,
		logger: logger,
		cfg:    cfg,
		nowFn:  time.Now,
	}
}

// Initialize loads the persisted user directory and the last-known current
// user. It is idempotent and must run before any guard decision. An empty
// directory is seeded with the default test user when configured.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, err := s.kv.Get(ctx, kv.KeyUsers); err == nil {
		var users []models.User
		if jsonErr := json.Unmarshal([]byte(data), &users); jsonErr != nil {
			s.logger.WithError(jsonErr).Error("Failed to decode persisted user directory")
			return apperrors.NewAppError(apperrors.CodeInternalError, "corrupt user directory", jsonErr)
		}
		s.users = users
	} else if !kv.IsNotFound(err) {
		s.logger.WithError(err).Error("Failed to load user directory")
		return apperrors.WrapError(err, "failed to load user directory")
	}

	if data, err := s.kv.Get(ctx, kv.KeyCurrentUser); err == nil {
		var current models.User
		if jsonErr := json.Unmarshal([]byte(data), &current); jsonErr != nil {
			s.logger.WithError(jsonErr).Error("Failed to decode persisted session")
		} else {
			redacted := current.Redacted()
			s.current = &redacted
			s.authenticated = true
		}
	} else if !kv.IsNotFound(err) {
		s.logger.WithError(err).Error("Failed to load persisted session")
	}

	// Ensure we always have at least the test user
	if len(s.users) == 0 && s.cfg.SeedTestUser {
		s.users = []models.User{testUser}
	}

	s.initialized = true
	return nil
}

// Initialized reports whether Initialize has completed at least once.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Login authenticates a user by case-sensitive email and exact secret match.
// On success the redacted user becomes the current session and is persisted.
func (s *Store) Login(ctx context.Context, email, secret string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user *models.User
	for i := range s.users {
		if s.users[i].Email == email {
			user = &s.users[i]
			break
		}
	}

	if user == nil {
		metrics.RecordStoreOperation("session", "login", apperrors.NewAppError(apperrors.CodeInvalidCredentials, "", nil))
		s.logger.WithField("email", email).Warn("Login failed: no account for email")
		return models.User{}, apperrors.NewAppError(apperrors.CodeInvalidCredentials, "No account found with this email", nil)
	}

	if user.Secret != secret {
		metrics.RecordStoreOperation("session", "login", apperrors.NewAppError(apperrors.CodeInvalidCredentials, "", nil))
		s.logger.WithField("email", email).Warn("Login failed: secret mismatch")
		return models.User{}, apperrors.NewAppError(apperrors.CodeInvalidCredentials, "Invalid password", nil)
	}

	redacted := user.Redacted()
	s.current = &redacted
	s.authenticated = true
	s.saveToStorage(ctx)

	metrics.RecordStoreOperation("session", "login", nil)
	s.logger.WithFields(logrus.Fields{
		"user_id": redacted.ID,
		"role":    redacted.Role,
	}).Info("User logged in")

	return redacted, nil
}

// Register creates a new user, logs them in immediately and persists both the
// directory and the session.
func (s *Store) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		metrics.RecordStoreOperation("session", "register", apperrors.NewAppError(apperrors.CodeInvalidEmail, "", nil))
		return models.User{}, apperrors.NewAppError(apperrors.CodeInvalidEmail, "Please enter a valid email address", nil)
	}

	// Duplicate check is case-insensitive even though login matches exactly
	lower := strings.ToLower(req.Email)
	for i := range s.users {
		if strings.ToLower(s.users[i].Email) == lower {
			metrics.RecordStoreOperation("session", "register", apperrors.NewAppError(apperrors.CodeEmailExists, "", nil))
			return models.User{}, apperrors.NewAppError(apperrors.CodeEmailExists, "An account with this email already exists", nil)
		}
	}

	role := req.Role
	if !role.Valid() {
		role = models.RoleDancer
	}

	now := s.nowFn()
	newUser := models.User{
		ID:        uuid.New().String(),
		Email:     req.Email,
		Secret:    req.Secret,
		Name:      req.Name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.users = append(s.users, newUser)

	redacted := newUser.Redacted()
	s.current = &redacted
	s.authenticated = true
	s.saveToStorage(ctx)

	metrics.RecordStoreOperation("session", "register", nil)
	s.logger.WithFields(logrus.Fields{
		"user_id": newUser.ID,
		"role":    newUser.Role,
	}).Info("User registered")

	return redacted, nil
}

// Logout clears the current session and removes the persisted session key.
// It returns the login path for the caller's navigation side effect.
func (s *Store) Logout(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.authenticated = false
	if err := s.kv.Delete(ctx, kv.KeyCurrentUser); err != nil {
		s.logger.WithError(err).Error("Failed to remove persisted session")
	}

	metrics.RecordStoreOperation("session", "logout", nil)
	return s.cfg.LoginPath
}

// CurrentUser returns the redacted current user, if authenticated.
func (s *Store) CurrentUser() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated || s.current == nil {
		return models.User{}, false
	}
	return *s.current, true
}

// Authenticated reports whether a session is active.
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Role predicates: all false when unauthenticated.

func (s *Store) IsAdmin() bool     { return s.currentRole() == models.RoleAdmin }
func (s *Store) IsJudge() bool     { return s.currentRole() == models.RoleJudge }
func (s *Store) IsOrganizer() bool { return s.currentRole() == models.RoleOrganizer }
func (s *Store) IsDancer() bool    { return s.currentRole() == models.RoleDancer }

func (s *Store) currentRole() models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated || s.current == nil {
		return ""
	}
	return s.current.Role
}

// DashboardPath maps a role to its canonical dashboard route. Unknown roles
// fall back to the generic dashboard.
func DashboardPath(role models.Role) string {
	switch role {
	case models.RoleDancer:
		return PathDancerDashboard
	case models.RoleJudge:
		return PathJudgeDashboard
	case models.RoleOrganizer:
		return PathOrganizerDashboard
	case models.RoleAdmin:
		return PathAdminDashboard
	default:
		return PathDashboard
	}
}

// UserByID looks up a user in the directory. The returned user is redacted.
func (s *Store) UserByID(id string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			return s.users[i].Redacted(), true
		}
	}
	return models.User{}, false
}

// UserByEmail looks up a user by exact email. The returned user keeps its
// secret; callers must redact before exposing it.
func (s *Store) UserByEmail(email string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].Email == email {
			return s.users[i], true
		}
	}
	return models.User{}, false
}

// UserCount returns the directory size.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// saveToStorage mirrors the current session and the directory into the
// key-value store. Write failures are logged but do not roll back in-memory
// state. Callers hold the mutex.
func (s *Store) saveToStorage(ctx context.Context) {
	if s.current != nil {
		if data, err := json.Marshal(s.current); err == nil {
			if err := s.kv.Set(ctx, kv.KeyCurrentUser, string(data)); err != nil {
				s.logger.WithError(err).Error("Failed to persist current session")
			}
		}
		if data, err := json.Marshal(s.users); err == nil {
			if err := s.kv.Set(ctx, kv.KeyUsers, string(data)); err != nil {
				s.logger.WithError(err).Error("Failed to persist user directory")
			}
		}
	}
}
