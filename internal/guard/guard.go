// Package guard enforces the role-based navigation policy. The decision
// procedure is pure and terminating; redirects for a role mismatch always go
// through the generic dashboard so no redirect chain can loop.
package guard

import (
	"strings"
	"sync"

	"github.com/dancefloor/competition-api/internal/metrics"
	"github.com/dancefloor/competition-api/internal/models"
	"github.com/dancefloor/competition-api/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Public entry points that never require a session.
const (
	PathLogin    = "/login"
	PathRegister = "/register"
)

// roleDashboards maps each role-scoped dashboard prefix to the role allowed
// to enter it.
var roleDashboards = map[string]models.Role{
	session.PathDancerDashboard:    models.RoleDancer,
	session.PathJudgeDashboard:     models.RoleJudge,
	session.PathOrganizerDashboard: models.RoleOrganizer,
	session.PathAdminDashboard:     models.RoleAdmin,
}

// State is the session snapshot a decision is made against.
type State struct {
	Authenticated bool
	Role          models.Role
}

// Decision is the outcome of evaluating a navigation attempt.
type Decision struct {
	Allow      bool
	RedirectTo string // set when Allow is false
}

func allow() Decision             { return Decision{Allow: true} }
func redirect(to string) Decision { return Decision{RedirectTo: to} }

// Decide evaluates the navigation policy for a target path. First matching
// rule wins:
//
//  1. authenticated on a public route        -> role dashboard
//  2. unauthenticated on a public route      -> allow
//  3. unauthenticated anywhere else          -> login
//  4. the generic dashboard                  -> role dashboard
//  5. a role-scoped dashboard of other role  -> generic dashboard
//  6. competition management without the
//     organizer role                         -> generic dashboard
//  7. anything else                          -> allow
func Decide(path string, st State) Decision {
	public := isPublic(path)

	if public && st.Authenticated {
		return redirect(session.DashboardPath(st.Role))
	}
	if public {
		return allow()
	}
	if !st.Authenticated {
		return redirect(PathLogin)
	}

	if path == session.PathDashboard || path == session.PathDashboard+"/" {
		target := session.DashboardPath(st.Role)
		if target == session.PathDashboard {
			// Unknown role: serve the generic dashboard rather than
			// redirecting to the same path.
			return allow()
		}
		return redirect(target)
	}

	for prefix, role := range roleDashboards {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			if st.Role != role {
				// Route through the generic dashboard, never directly to
				// another role's dashboard, so rule evaluation terminates.
				return redirect(session.PathDashboard)
			}
			return allow()
		}
	}

	if strings.HasPrefix(path, "/competitions/") && st.Role != models.RoleOrganizer {
		return redirect(session.PathDashboard)
	}

	return allow()
}

func isPublic(path string) bool {
	return path == PathLogin || path == PathRegister
}

// Middleware returns the Fiber handler that applies the decision table to
// page navigation. The session store is rehydrated from storage exactly once
// before the first decision.
func Middleware(sessions *session.Store, logger *logrus.Logger) fiber.Handler {
	var rehydrate sync.Once

	return func(c *fiber.Ctx) error {
		rehydrate.Do(func() {
			if err := sessions.Initialize(c.Context()); err != nil {
				logger.WithError(err).Error("Session rehydration failed")
			}
		})

		st := State{}
		if user, ok := sessions.CurrentUser(); ok {
			st.Authenticated = true
			st.Role = user.Role
		}

		decision := Decide(c.Path(), st)
		if decision.Allow {
			metrics.RecordGuardDecision("allow")
			return c.Next()
		}

		metrics.RecordGuardDecision("redirect")
		logger.WithFields(logrus.Fields{
			"path":     c.Path(),
			"redirect": decision.RedirectTo,
			"role":     st.Role,
		}).Debug("Route guard redirect")

		return c.Redirect(decision.RedirectTo, fiber.StatusFound)
	}
}
