package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeadlineInstant(t *testing.T) {
	day := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		deadlineTime string
		want         time.Time
	}{
		{
			name:         "valid time of day",
			deadlineTime: "18:30",
			want:         time.Date(2026, 9, 12, 18, 30, 0, 0, time.UTC),
		},
		{
			name:         "midnight",
			deadlineTime: "00:00",
			want:         time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "empty falls back to end of day",
			deadlineTime: "",
			want:         time.Date(2026, 9, 12, 23, 59, 0, 0, time.UTC),
		},
		{
			name:         "malformed falls back to end of day",
			deadlineTime: "6pm",
			want:         time.Date(2026, 9, 12, 23, 59, 0, 0, time.UTC),
		},
		{
			name:         "out of range hour falls back to end of day",
			deadlineTime: "25:00",
			want:         time.Date(2026, 9, 12, 23, 59, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Competition{RegistrationDeadline: day, DeadlineTime: tt.deadlineTime}
			assert.True(t, tt.want.Equal(c.DeadlineInstant()),
				"want %v, got %v", tt.want, c.DeadlineInstant())
		})
	}
}

func TestAcceptsRegistrations(t *testing.T) {
	c := Competition{
		RegistrationDeadline: time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
		DeadlineTime:         "18:30",
	}
	deadline := time.Date(2026, 9, 12, 18, 30, 0, 0, time.UTC)

	assert.True(t, c.AcceptsRegistrations(deadline.Add(-time.Hour)))
	assert.True(t, c.AcceptsRegistrations(deadline), "open up to and including the instant")
	assert.False(t, c.AcceptsRegistrations(deadline.Add(time.Second)))
}

func TestHasRegistration(t *testing.T) {
	c := Competition{Registrations: []Registration{{UserID: "u1"}, {UserID: "u2"}}}

	assert.True(t, c.HasRegistration("u1"))
	assert.False(t, c.HasRegistration("u3"))

	var empty Competition
	assert.False(t, empty.HasRegistration("u1"))
}

func TestUserRedacted(t *testing.T) {
	u := User{ID: "1", Email: "a@b.c", Secret: "hunter2", Role: RoleDancer}

	r := u.Redacted()
	assert.Empty(t, r.Secret)
	assert.Equal(t, u.ID, r.ID)
	assert.Equal(t, "hunter2", u.Secret, "redaction must not mutate the original")
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleDancer.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("WIZARD").Valid())
	assert.False(t, Role("").Valid())
}
