// Package competition owns the competition collection and its nested
// registrations. The whole collection is JSON round-tripped through the
// key-value store on every mutation.
package competition

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dancefloor/competition-api/internal/kv"
	"github.com/dancefloor/competition-api/internal/metrics"
	"github.com/dancefloor/competition-api/internal/models"
	"github.com/dancefloor/competition-api/internal/session"
	apperrors "github.com/dancefloor/competition-api/pkg/errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store owns the competition collection.
type Store struct {
	mu       sync.Mutex
	kv       kv.Store
	sessions *session.Store
	logger   *logrus.Logger

	competitions []models.Competition

	// retainLimit is how many competitions survive a quota-exceeded cleanup.
	retainLimit int

	nowFn func() time.Time
}

// NewStore creates a competition store. Ownership of created competitions is
// attributed from the session store's current user.
func NewStore(store kv.Store, sessions *session.Store, retainLimit int, logger *logrus.Logger) *Store {
	return &Store{
		kv:          store,
		sessions:    sessions,
		logger:      logger,
		retainLimit: retainLimit,
		nowFn:       time.Now,
	}
}

// Initialize loads the persisted collection. Idempotent; date fields come
// back as proper instants since time.Time round-trips through RFC 3339.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.kv.Get(ctx, kv.KeyCompetitions)
	if err != nil {
		if kv.IsNotFound(err) {
			s.competitions = nil
			return nil
		}
		s.logger.WithError(err).Error("Failed to load competitions")
		return apperrors.WrapError(err, "failed to load competitions")
	}

	var competitions []models.Competition
	if err := json.Unmarshal([]byte(data), &competitions); err != nil {
		s.logger.WithError(err).Error("Failed to decode persisted competitions")
		return apperrors.NewAppError(apperrors.CodeInternalError, "corrupt competition collection", err)
	}
	s.competitions = competitions
	return nil
}

// Create synthesizes a new competition from organizer-provided fields and
// persists the collection. Ownership is attributed to the current session
// user.
func (s *Store) Create(ctx context.Context, req models.CreateCompetitionRequest) (models.Competition, error) {
	current, ok := s.sessions.CurrentUser()
	if !ok {
		return models.Competition{}, apperrors.NewAppError(apperrors.CodeUnauthenticated, "No active session", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	comp := models.Competition{
		ID:                   uuid.New().String(),
		Name:                 req.Name,
		Date:                 req.Date,
		Location:             req.Location,
		MaxDancers:           req.MaxDancers,
		CurrentRound:         0,
		TotalRounds:          req.TotalRounds,
		Status:               models.StatusUpcoming,
		RegistrationDeadline: req.RegistrationDeadline,
		DeadlineTime:         req.DeadlineTime,
		EntryFee:             req.EntryFee,
		Rules:                req.Rules,
		OrganizerID:          current.ID,
		BannerImage:          req.BannerImage,
		DanceStyle:           req.DanceStyle,
		PaymentMethods:       req.PaymentMethods,
		UpdatedAt:            s.nowFn(),
	}

	s.competitions = append(s.competitions, comp)
	s.saveToStorage(ctx)

	metrics.RecordStoreOperation("competition", "create", nil)
	s.logger.WithFields(logrus.Fields{
		"competition_id": comp.ID,
		"organizer_id":   comp.OrganizerID,
	}).Info("Competition created")

	return comp, nil
}

// Update merges the provided fields over the existing record. Nil fields keep
// their previous value, so zero values remain expressible.
func (s *Store) Update(ctx context.Context, id string, req models.UpdateCompetitionRequest) (models.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		metrics.RecordStoreOperation("competition", "update", apperrors.NewAppError(apperrors.CodeNotFound, "", nil))
		return models.Competition{}, apperrors.NewAppErrorf(apperrors.CodeNotFound, nil, "Competition %s not found", id)
	}

	comp := &s.competitions[idx]
	if req.Name != nil {
		comp.Name = *req.Name
	}
	if req.Date != nil {
		comp.Date = *req.Date
	}
	if req.Location != nil {
		comp.Location = *req.Location
	}
	if req.MaxDancers != nil {
		comp.MaxDancers = *req.MaxDancers
	}
	if req.CurrentRound != nil {
		comp.CurrentRound = *req.CurrentRound
	}
	if req.TotalRounds != nil {
		comp.TotalRounds = *req.TotalRounds
	}
	if req.Status != nil {
		comp.Status = *req.Status
	}
	if req.RegistrationDeadline != nil {
		comp.RegistrationDeadline = *req.RegistrationDeadline
	}
	if req.DeadlineTime != nil {
		comp.DeadlineTime = *req.DeadlineTime
	}
	if req.EntryFee != nil {
		comp.EntryFee = *req.EntryFee
	}
	if req.Rules != nil {
		comp.Rules = *req.Rules
	}
	if req.BannerImage != nil {
		comp.BannerImage = *req.BannerImage
	}
	if req.DanceStyle != nil {
		comp.DanceStyle = *req.DanceStyle
	}
	if req.PaymentMethods != nil {
		comp.PaymentMethods = *req.PaymentMethods
	}
	comp.UpdatedAt = s.nowFn()

	s.saveToStorage(ctx)

	metrics.RecordStoreOperation("competition", "update", nil)
	return *comp, nil
}

// Delete removes a competition and persists the collection.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		metrics.RecordStoreOperation("competition", "delete", apperrors.NewAppError(apperrors.CodeNotFound, "", nil))
		return apperrors.NewAppErrorf(apperrors.CodeNotFound, nil, "Competition %s not found", id)
	}

	s.competitions = append(s.competitions[:idx], s.competitions[idx+1:]...)
	s.saveToStorage(ctx)

	metrics.RecordStoreOperation("competition", "delete", nil)
	s.logger.WithField("competition_id", id).Info("Competition deleted")
	return nil
}

// ByID looks up a competition. The miss is logged, matching the store's
// debugging conventions.
func (s *Store) ByID(id string) (models.Competition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		s.logger.WithField("competition_id", id).Debug("Competition lookup miss")
		return models.Competition{}, false
	}
	return s.competitions[idx], true
}

// All returns a snapshot of the full collection.
func (s *Store) All() []models.Competition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Competition, len(s.competitions))
	copy(out, s.competitions)
	return out
}

// OrganizerCompetitions is the derived view of competitions owned by the
// current session user. It is recomputed on every access, never cached.
func (s *Store) OrganizerCompetitions() []models.Competition {
	current, ok := s.sessions.CurrentUser()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Competition
	for i := range s.competitions {
		if s.competitions[i].OrganizerID == current.ID {
			out = append(out, s.competitions[i])
		}
	}
	return out
}

// Register appends a pending registration for the current session user. The
// rules run in order: competition must exist, registration must still be
// open, the user must not already be registered, and capacity (when nonzero)
// must not be reached.
func (s *Store) Register(ctx context.Context, competitionID string, req models.RegisterForCompetitionRequest) (models.Registration, error) {
	current, ok := s.sessions.CurrentUser()
	if !ok {
		return models.Registration{}, apperrors.NewAppError(apperrors.CodeUnauthenticated, "No active session", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(competitionID)
	if idx < 0 {
		metrics.RecordRegistration("not_found")
		return models.Registration{}, apperrors.NewAppErrorf(apperrors.CodeNotFound, nil, "Competition %s not found", competitionID)
	}
	comp := &s.competitions[idx]

	if !comp.AcceptsRegistrations(s.nowFn()) {
		metrics.RecordRegistration("closed")
		return models.Registration{}, apperrors.NewAppError(apperrors.CodeRegistrationClosed, "Registration deadline has passed", nil)
	}

	if comp.HasRegistration(current.ID) {
		metrics.RecordRegistration("duplicate")
		return models.Registration{}, apperrors.NewAppError(apperrors.CodeAlreadyRegistered, "You are already registered for this competition", nil)
	}

	if comp.MaxDancers > 0 && len(comp.Registrations) >= comp.MaxDancers {
		metrics.RecordRegistration("full")
		return models.Registration{}, apperrors.NewAppError(apperrors.CodeCompetitionFull, "Competition has reached its capacity", nil)
	}

	reg := models.Registration{
		ID:            uuid.New().String(),
		UserID:        current.ID,
		CompetitionID: comp.ID,
		PersonalInfo:  req.PersonalInfo,
		DanceRole:     req.DanceRole,
		PaymentMethod: req.PaymentMethod,
		Status:        models.RegistrationPending,
		CreatedAt:     s.nowFn(),
	}

	if comp.Registrations == nil {
		comp.Registrations = []models.Registration{}
	}
	comp.Registrations = append(comp.Registrations, reg)
	s.saveToStorage(ctx)

	metrics.RecordRegistration("accepted")
	s.logger.WithFields(logrus.Fields{
		"competition_id":  comp.ID,
		"registration_id": reg.ID,
		"user_id":         current.ID,
	}).Info("Dancer registered for competition")

	return reg, nil
}

// Save persists the current collection. Exposed for callers that mutate
// through Update-style flows outside the store; normal actions persist
// themselves.
func (s *Store) Save(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveToStorage(ctx)
}

// Count returns the number of competitions held in memory.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.competitions)
}

func (s *Store) indexOf(id string) int {
	for i := range s.competitions {
		if s.competitions[i].ID == id {
			return i
		}
	}
	return -1
}

// saveToStorage writes the whole collection. A quota-exceeded write keeps
// only the most recently updated competitions and retries once; if the retry
// also fails, state stays in-memory until a future successful write. Callers
// hold the mutex.
func (s *Store) saveToStorage(ctx context.Context) {
	data, err := json.Marshal(s.competitions)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode competitions")
		return
	}

	err = s.kv.Set(ctx, kv.KeyCompetitions, string(data))
	if err == nil {
		return
	}

	if !kv.IsQuotaExceeded(err) {
		s.logger.WithError(err).Error("Failed to persist competitions")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"competitions": len(s.competitions),
		"retained":     s.retainLimit,
	}).Warn("Storage quota exceeded, retaining most recent competitions")
	metrics.RecordQuotaCleanup()

	sort.SliceStable(s.competitions, func(i, j int) bool {
		return s.competitions[i].UpdatedAt.After(s.competitions[j].UpdatedAt)
	})
	if len(s.competitions) > s.retainLimit {
		s.competitions = s.competitions[:s.retainLimit]
	}

	data, err = json.Marshal(s.competitions)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode trimmed competitions")
		return
	}
	if err := s.kv.Set(ctx, kv.KeyCompetitions, string(data)); err != nil {
		s.logger.WithError(err).Error("Retry after quota cleanup failed, state is in-memory only")
	}
}
