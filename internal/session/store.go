package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timeplanner/internal/events"
	"timeplanner/internal/metrics"
	"timeplanner/internal/model"
	"timeplanner/internal/propagation"
	"timeplanner/internal/reservation"
	"timeplanner/internal/validation"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Config holds store settings.
type Config struct {
	// TTL is how long an idle session is kept. Default: 30 minutes.
	TTL time.Duration

	// QueuePoolSize is the number of selectable queues. Default: 4.
	QueuePoolSize int
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher sends session, schedule and reservation events to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store manages editing sessions.
type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	config    Config
	blank     model.WeeklySchedule
	oracle    reservation.Oracle
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewStore creates a session store. Queue checks go to oracle.
func NewStore(oracle reservation.Oracle, config Config, logger *zerolog.Logger, opts ...Option) *Store {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}
	if config.QueuePoolSize <= 0 {
		config.QueuePoolSize = model.DefaultQueuePoolSize
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sessions").Logger()
	}
	s := &Store{
		sessions: make(map[string]*Session),
		config:   config,
		blank:    model.DefaultSchedule(),
		oracle:   oracle,
		logger:   l,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueuePoolSize returns the configured number of queues.
func (st *Store) QueuePoolSize() int {
	return st.config.QueuePoolSize
}

// SetDefault replaces the schedule new sessions start from when none is
// supplied.
func (st *Store) SetDefault(s model.WeeklySchedule) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.blank = s
}

// Default returns the schedule new sessions start from.
func (st *Store) Default() model.WeeklySchedule {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.blank
}

// Validate checks a schedule with the store's queue pool.
func (st *Store) Validate(s model.WeeklySchedule) validation.Errors {
	return validation.ValidateWithOptions(s, validation.Options{QueuePoolSize: st.config.QueuePoolSize})
}

// Create opens a session over initial.
func (st *Store) Create(initial model.WeeklySchedule) *Session {
	id := uuid.NewString()
	now := st.now()

	trackerOpts := []reservation.Option{reservation.WithMetrics(st.metrics)}
	engineOpts := []propagation.Option{
		propagation.WithValidator(st.Validate),
		propagation.WithMetrics(st.metrics),
	}
	if st.publisher != nil {
		trackerOpts = append(trackerOpts, reservation.WithOnChange(func(r reservation.Reservation) {
			st.publish(events.TypeReservationChanged, id, r)
		}))
		engineOpts = append(engineOpts, propagation.WithPublisher(st.publisher, id))
	}

	logger := st.logger.With().Str("session", id).Logger()
	tracker := reservation.NewTracker(st.oracle, &logger, trackerOpts...)
	engineOpts = append(engineOpts, propagation.WithReservations(tracker))

	sess := &Session{
		ID:        id,
		CreatedAt: now,
		updatedAt: now,
		now:       st.now,
		engine:    propagation.NewEngine(initial, &logger, engineOpts...),
		tracker:   tracker,
	}

	st.mu.Lock()
	st.sessions[id] = sess
	n := len(st.sessions)
	st.mu.Unlock()

	st.metrics.SetSessions(n)
	st.publish(events.TypeSessionOpened, id, map[string]string{"id": id})
	st.logger.Info().Str("session", id).Msg("Session opened")
	return sess
}

// Get returns a live session.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if sess.IsExpired(st.config.TTL) {
		st.remove(id)
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete closes a session.
func (st *Store) Delete(id string) error {
	if !st.remove(id) {
		return ErrNotFound
	}
	return nil
}

func (st *Store) remove(id string) bool {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	delete(st.sessions, id)
	n := len(st.sessions)
	st.mu.Unlock()
	if !ok {
		return false
	}

	sess.close()
	st.metrics.SetSessions(n)
	st.publish(events.TypeSessionClosed, id, map[string]string{"id": id})
	st.logger.Info().Str("session", id).Msg("Session closed")
	return true
}

// Cleanup removes expired sessions.
func (st *Store) Cleanup() int {
	st.mu.RLock()
	var expired []string
	for id, sess := range st.sessions {
		if sess.IsExpired(st.config.TTL) {
			expired = append(expired, id)
		}
	}
	st.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if st.remove(id) {
			removed++
		}
	}
	return removed
}

// Len returns the number of open sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Run removes expired sessions every interval until ctx is done.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Cleanup(); n > 0 {
				st.logger.Debug().Int("removed", n).Msg("Expired sessions removed")
			}
		}
	}
}

// Close closes every session.
func (st *Store) Close() {
	st.mu.RLock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	st.mu.RUnlock()
	for _, id := range ids {
		st.remove(id)
	}
}

func (st *Store) publish(eventType, id string, payload any) {
	if st.publisher == nil {
		return
	}
	evt, err := events.New(eventType, id, payload)
	if err != nil {
		st.logger.Error().Err(err).Str("type", eventType).Msg("build event")
		return
	}
	st.publisher.Publish(evt)
}
