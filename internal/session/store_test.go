package session

import (
	"context"
	"testing"

	"github.com/dancefloor/competition-api/internal/config"
	"github.com/dancefloor/competition-api/internal/kv"
	"github.com/dancefloor/competition-api/internal/models"
	apperrors "github.com/dancefloor/competition-api/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.SessionConfig {
	return &config.SessionConfig{
		SeedTestUser: true,
		LoginPath:    "/login",
	}
}

func newTestStore(t *testing.T, store kv.Store) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	s := NewStore(store, testConfig(), logger)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func TestInitialize_SeedsTestUser(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	assert.Equal(t, 1, s.UserCount())

	user, ok := s.UserByID("1")
	require.True(t, ok)
	assert.Equal(t, "test@example.com", user.Email)
	assert.Equal(t, models.RoleDancer, user.Role)
	assert.Empty(t, user.Secret, "lookups must return redacted users")

	assert.False(t, s.Authenticated(), "seeding must not log anyone in")
}

func TestInitialize_SkipsSeedWhenDisabled(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := testConfig()
	cfg.SeedTestUser = false

	s := NewStore(kv.NewMemory(), cfg, logger)
	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, 0, s.UserCount())
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		s := newTestStore(t, kv.NewMemory())

		user, err := s.Login(ctx, "test@example.com", "test123")
		require.NoError(t, err)
		assert.Equal(t, "1", user.ID)
		assert.Empty(t, user.Secret)
		assert.True(t, s.Authenticated())
		assert.True(t, s.IsDancer())
	})

	t.Run("unknown email", func(t *testing.T) {
		s := newTestStore(t, kv.NewMemory())

		_, err := s.Login(ctx, "nobody@example.com", "test123")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidCredentials))
		assert.Contains(t, err.Error(), "No account found with this email")
		assert.False(t, s.Authenticated())
	})

	t.Run("wrong secret", func(t *testing.T) {
		s := newTestStore(t, kv.NewMemory())

		_, err := s.Login(ctx, "test@example.com", "wrong")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidCredentials))
		assert.Contains(t, err.Error(), "Invalid password")
	})

	t.Run("email match is case sensitive", func(t *testing.T) {
		s := newTestStore(t, kv.NewMemory())

		_, err := s.Login(ctx, "Test@Example.com", "test123")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidCredentials))
		assert.Contains(t, err.Error(), "No account found with this email")
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and logs in", func(t *testing.T) {
		s := newTestStore(t, kv.NewMemory())

		user, err := s.Register(ctx, models.RegisterRequest{
			Email:  "anna@example.com",
			Secret: "hunter2",
			Name:   "Anna",
			Role:   models.RoleOrganizer,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, models.RoleOrganizer, user.Role)
		assert.Empty(t, user.Secret)
		assert.True(t, s.Authenticated())
		assert.True(t, s.IsOrganizer())
		assert.Equal(t, 2, s.UserCount())
	})

	t.Run("rejects email without at sign", func(t *testing.T) {
		s := newTestStore(t, kv.NewMemory())

		_, err := s.Register(ctx, models.RegisterRequest{Email: "not-an-email", Secret: "x"})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidEmail))
		assert.False(t, s.Authenticated())
	})

	t.Run("rejects empty email", func(t *testing.T) {
		s := newTestStore(t, kv.NewMemory())

		_, err := s.Register(ctx, models.RegisterRequest{Email: "", Secret: "x"})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidEmail))
	})

	t.Run("duplicate email is case insensitive", func(t *testing.T) {
		s := newTestStore(t, kv.NewMemory())

		_, err := s.Register(ctx, models.RegisterRequest{Email: "TEST@EXAMPLE.COM", Secret: "x"})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeEmailExists))
		assert.Equal(t, 1, s.UserCount())
	})

	t.Run("invalid role falls back to dancer", func(t *testing.T) {
		s := newTestStore(t, kv.NewMemory())

		user, err := s.Register(ctx, models.RegisterRequest{
			Email:  "bob@example.com",
			Secret: "x",
			Role:   models.Role("WIZARD"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.RoleDancer, user.Role)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newTestStore(t, mem)

	_, err := s.Login(ctx, "test@example.com", "test123")
	require.NoError(t, err)

	target := s.Logout(ctx)
	assert.Equal(t, "/login", target)
	assert.False(t, s.Authenticated())

	_, ok := s.CurrentUser()
	assert.False(t, ok)

	_, err = mem.Get(ctx, kv.KeyCurrentUser)
	assert.True(t, kv.IsNotFound(err), "persisted session must be removed")
}

func TestInitialize_RehydratesSession(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()

	first := newTestStore(t, mem)
	registered, err := first.Register(ctx, models.RegisterRequest{
		Email:  "carla@example.com",
		Secret: "s3cret",
		Name:   "Carla",
		Role:   models.RoleJudge,
	})
	require.NoError(t, err)

	// A fresh store over the same storage sees the directory and the session
	second := newTestStore(t, mem)
	assert.Equal(t, 2, second.UserCount())
	assert.True(t, second.Authenticated())

	current, ok := second.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, registered.ID, current.ID)
	assert.Equal(t, models.RoleJudge, current.Role)
	assert.Empty(t, current.Secret)

	// And the rehydrated directory still authenticates the original secret
	_, err = second.Login(ctx, "carla@example.com", "s3cret")
	assert.NoError(t, err)
}

func TestInitialize_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, kv.NewMemory())

	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))
	assert.Equal(t, 1, s.UserCount(), "repeated initialization must not duplicate the seed user")
}

func TestDashboardPath(t *testing.T) {
	assert.Equal(t, PathDancerDashboard, DashboardPath(models.RoleDancer))
	assert.Equal(t, PathJudgeDashboard, DashboardPath(models.RoleJudge))
	assert.Equal(t, PathOrganizerDashboard, DashboardPath(models.RoleOrganizer))
	assert.Equal(t, PathAdminDashboard, DashboardPath(models.RoleAdmin))
	assert.Equal(t, PathDashboard, DashboardPath(models.Role("unknown")))
	assert.Equal(t, PathDashboard, DashboardPath(""))
}
