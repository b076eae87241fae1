package guard

import (
	"testing"

	"github.com/dancefloor/competition-api/internal/models"
	"github.com/dancefloor/competition-api/internal/session"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		state    State
		allow    bool
		redirect string
	}{
		{
			name:     "authenticated dancer visiting login goes to dancer dashboard",
			path:     PathLogin,
			state:    State{Authenticated: true, Role: models.RoleDancer},
			redirect: session.PathDancerDashboard,
		},
		{
			name:     "authenticated admin visiting register goes to admin dashboard",
			path:     PathRegister,
			state:    State{Authenticated: true, Role: models.RoleAdmin},
			redirect: session.PathAdminDashboard,
		},
		{
			name:  "anonymous visitor may see login",
			path:  PathLogin,
			state: State{},
			allow: true,
		},
		{
			name:  "anonymous visitor may see register",
			path:  PathRegister,
			state: State{},
			allow: true,
		},
		{
			name:     "anonymous visitor anywhere else goes to login",
			path:     "/dashboard/judge",
			state:    State{},
			redirect: PathLogin,
		},
		{
			name:     "anonymous visitor on competitions goes to login",
			path:     "/competitions/abc/manage",
			state:    State{},
			redirect: PathLogin,
		},
		{
			name:     "generic dashboard resolves to role dashboard",
			path:     session.PathDashboard,
			state:    State{Authenticated: true, Role: models.RoleJudge},
			redirect: session.PathJudgeDashboard,
		},
		{
			name:     "generic dashboard with trailing slash resolves too",
			path:     session.PathDashboard + "/",
			state:    State{Authenticated: true, Role: models.RoleOrganizer},
			redirect: session.PathOrganizerDashboard,
		},
		{
			name:  "dancer may enter dancer dashboard",
			path:  session.PathDancerDashboard,
			state: State{Authenticated: true, Role: models.RoleDancer},
			allow: true,
		},
		{
			name:  "judge may enter nested judge dashboard pages",
			path:  session.PathJudgeDashboard + "/scoring",
			state: State{Authenticated: true, Role: models.RoleJudge},
			allow: true,
		},
		{
			name:     "dancer on admin dashboard bounces to generic dashboard",
			path:     session.PathAdminDashboard,
			state:    State{Authenticated: true, Role: models.RoleDancer},
			redirect: session.PathDashboard,
		},
		{
			name:     "judge on organizer dashboard bounces to generic dashboard",
			path:     session.PathOrganizerDashboard + "/events",
			state:    State{Authenticated: true, Role: models.RoleJudge},
			redirect: session.PathDashboard,
		},
		{
			name:  "organizer may manage competitions",
			path:  "/competitions/abc/manage",
			state: State{Authenticated: true, Role: models.RoleOrganizer},
			allow: true,
		},
		{
			name:     "dancer cannot manage competitions",
			path:     "/competitions/abc/manage",
			state:    State{Authenticated: true, Role: models.RoleDancer},
			redirect: session.PathDashboard,
		},
		{
			name:     "admin cannot manage competitions either",
			path:     "/competitions/abc",
			state:    State{Authenticated: true, Role: models.RoleAdmin},
			redirect: session.PathDashboard,
		},
		{
			name:  "unrelated authenticated page is allowed",
			path:  "/profile",
			state: State{Authenticated: true, Role: models.RoleDancer},
			allow: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Decide(tt.path, tt.state)
			assert.Equal(t, tt.allow, decision.Allow)
			if !tt.allow {
				assert.Equal(t, tt.redirect, decision.RedirectTo)
			}
		})
	}
}

// A role mismatch redirect must land on a path the same state is allowed to
// resolve, so following redirects always terminates.
func TestDecide_RedirectChainsTerminate(t *testing.T) {
	states := []State{
		{},
		{Authenticated: true, Role: models.RoleDancer},
		{Authenticated: true, Role: models.RoleJudge},
		{Authenticated: true, Role: models.RoleOrganizer},
		{Authenticated: true, Role: models.RoleAdmin},
		{Authenticated: true, Role: "unknown"},
	}
	paths := []string{
		PathLogin, PathRegister,
		session.PathDashboard,
		session.PathDancerDashboard,
		session.PathJudgeDashboard,
		session.PathOrganizerDashboard,
		session.PathAdminDashboard,
		"/competitions/abc/manage",
		"/profile",
	}

	for _, st := range states {
		for _, start := range paths {
			path := start
			for hops := 0; ; hops++ {
				decision := Decide(path, st)
				if decision.Allow {
					break
				}
				assert.Less(t, hops, 5, "redirect chain from %q for %+v did not terminate", start, st)
				path = decision.RedirectTo
			}
		}
	}
}
