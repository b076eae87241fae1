package models

import "time"

// CompetitionStatus is the lifecycle state of a competition
type CompetitionStatus string

const (
	StatusUpcoming  CompetitionStatus = "upcoming"
	StatusOngoing   CompetitionStatus = "ongoing"
	StatusCompleted CompetitionStatus = "completed"
)

// DanceRole is the role a dancer registers under
type DanceRole string

const (
	DanceRoleLeader   DanceRole = "leader"
	DanceRoleFollower DanceRole = "follower"
)

// RegistrationStatus is the lifecycle state of a registration
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// PaymentMethods holds the independently toggleable accepted payment methods
type PaymentMethods struct {
	PayPal bool `json:"paypal"`
	Stripe bool `json:"stripe"`
	Cash   bool `json:"cash"`
}

// PersonalInfo is the registrant's contact block
type PersonalInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Instagram string `json:"instagram,omitempty"`
}

// Registration represents a dancer's registration in a competition
type Registration struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	CompetitionID string             `json:"competition_id"`
	PersonalInfo  PersonalInfo       `json:"personal_info"`
	DanceRole     DanceRole          `json:"dance_role"`
	PaymentMethod string             `json:"payment_method"`
	Status        RegistrationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Competition represents a dance competition. The registration deadline is a
// date plus a separate clock time so organizers can close at, say, 18:30 on
// the given day rather than at midnight.
type Competition struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Date                 time.Time         `json:"date"`
	Location             string            `json:"location"`
	MaxDancers           int               `json:"max_dancers"` // 0 means unlimited
	CurrentRound         int               `json:"current_round"`
	TotalRounds          int               `json:"total_rounds"`
	Status               CompetitionStatus `json:"status"`
	RegistrationDeadline time.Time         `json:"registration_deadline"`
	DeadlineTime         string            `json:"deadline_time"` // "HH:MM"
	EntryFee             float64           `json:"entry_fee"`
	Rules                string            `json:"rules"`
	OrganizerID          string            `json:"organizer_id"`
	BannerImage          string            `json:"banner_image,omitempty"` // inline base64
	DanceStyle           string            `json:"dance_style"`
	PaymentMethods       PaymentMethods    `json:"payment_methods"`
	UpdatedAt            time.Time         `json:"updated_at"`
	Registrations        []Registration    `json:"registrations,omitempty"`
}

// DeadlineInstant combines the deadline date with the stored time-of-day into
// a single instant. A malformed or empty time-of-day falls back to the end of
// the deadline day so a date-only deadline stays open for the whole day.
func (c *Competition) DeadlineInstant() time.Time {
	d := c.RegistrationDeadline
	hour, minute := 23, 59
	if len(c.DeadlineTime) == 5 && c.DeadlineTime[2] == ':' {
		h := int(c.DeadlineTime[0]-'0')*10 + int(c.DeadlineTime[1]-'0')
		m := int(c.DeadlineTime[3]-'0')*10 + int(c.DeadlineTime[4]-'0')
		if h >= 0 && h < 24 && m >= 0 && m < 60 {
			hour, minute = h, m
		}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location())
}

// AcceptsRegistrations reports whether registration is open at the given
// instant. Registration stays open up to and including the deadline instant.
func (c *Competition) AcceptsRegistrations(now time.Time) bool {
	return !now.After(c.DeadlineInstant())
}

// HasRegistration reports whether the user already holds a registration.
func (c *Competition) HasRegistration(userID string) bool {
	for i := range c.Registrations {
		if c.Registrations[i].UserID == userID {
			return true
		}
	}
	return false
}

// CreateCompetitionRequest carries the organizer-provided fields for a new
// competition. Computed fields (id, round, status, organizer, updated-at) are
// synthesized by the store.
type CreateCompetitionRequest struct {
	Name                 string         `json:"name" validate:"required"`
	Date                 time.Time      `json:"date" validate:"required"`
	Location             string         `json:"location"`
	MaxDancers           int            `json:"max_dancers"`
	TotalRounds          int            `json:"total_rounds"`
	RegistrationDeadline time.Time      `json:"registration_deadline"`
	DeadlineTime         string         `json:"deadline_time"`
	EntryFee             float64        `json:"entry_fee"`
	Rules                string         `json:"rules"`
	BannerImage          string         `json:"banner_image,omitempty"`
	DanceStyle           string         `json:"dance_style"`
	PaymentMethods       PaymentMethods `json:"payment_methods"`
}

// UpdateCompetitionRequest is a partial update: nil fields keep their previous
// value, so a provided zero (e.g. max_dancers=0 for unlimited) is
// distinguishable from an omitted field.
type UpdateCompetitionRequest struct {
	Name                 *string            `json:"name,omitempty"`
	Date                 *time.Time         `json:"date,omitempty"`
	Location             *string            `json:"location,omitempty"`
	MaxDancers           *int               `json:"max_dancers,omitempty"`
	CurrentRound         *int               `json:"current_round,omitempty"`
	TotalRounds          *int               `json:"total_rounds,omitempty"`
	Status               *CompetitionStatus `json:"status,omitempty"`
	RegistrationDeadline *time.Time         `json:"registration_deadline,omitempty"`
	DeadlineTime         *string            `json:"deadline_time,omitempty"`
	EntryFee             *float64           `json:"entry_fee,omitempty"`
	Rules                *string            `json:"rules,omitempty"`
	BannerImage          *string            `json:"banner_image,omitempty"`
	DanceStyle           *string            `json:"dance_style,omitempty"`
	PaymentMethods       *PaymentMethods    `json:"payment_methods,omitempty"`
}

// RegisterForCompetitionRequest carries a dancer's registration details.
type RegisterForCompetitionRequest struct {
	PersonalInfo  PersonalInfo `json:"personal_info"`
	DanceRole     DanceRole    `json:"dance_role" validate:"required"`
	PaymentMethod string       `json:"payment_method" validate:"required"`
}
