package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"timeplanner/internal/metrics"
	"timeplanner/internal/model"
)

// ErrDayInactive is returned when a queue is selected for a day that is not
// part of the schedule.
var ErrDayInactive = errors.New("day is not active")

// ErrClosed is returned by Select after Close.
var ErrClosed = errors.New("reservation tracker closed")

// Oracle answers whether a queue number is free on a weekday.
type Oracle interface {
	CheckQueueAvailability(ctx context.Context, dayIndex, queueNumber int) (bool, error)
}

// Reservation is the queue state of one day.
type Reservation struct {
	DayIndex    int       `json:"dayIndex"`
	QueueNumber int       `json:"queueNumber"`
	Status      Status    `json:"status"`
	Version     uint64    `json:"version"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type record struct {
	Reservation
	cancel context.CancelFunc
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithOnChange registers fn to be called after every committed state change.
// fn runs under the tracker lock, so each day's changes arrive in version
// order; it must not call back into the tracker.
func WithOnChange(fn func(Reservation)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// Tracker keeps one reservation per weekday. Every selection bumps the day's
// version; an oracle answer is applied only while its version is current.
type Tracker struct {
	oracle Oracle
	fsm    *FSM

	mu     sync.Mutex
	days   [model.DaysInWeek]record
	closed bool
	wg     sync.WaitGroup

	onChange func(Reservation)
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewTracker creates a tracker with every day idle.
func NewTracker(oracle Oracle, logger *zerolog.Logger, opts ...Option) *Tracker {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "reservation").Logger()
	}
	t := &Tracker{
		oracle: oracle,
		fsm:    NewFSM(),
		logger: l,
		now:    time.Now,
	}
	for i := range t.days {
		t.days[i].Reservation = Reservation{DayIndex: i, Status: StatusIdle}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Select moves the day to pending and starts an availability check for
// queueNumber. A previous check still in flight for the same day is cancelled
// and its answer will be ignored. Queue 0 clears the day.
//
// The check outlives ctx's cancellation but keeps its values.
func (t *Tracker) Select(ctx context.Context, dayIndex, queueNumber int) (Reservation, error) {
	if err := model.CheckIndex(dayIndex); err != nil {
		return Reservation{}, err
	}
	if queueNumber == 0 {
		return t.clear(dayIndex), nil
	}
	if queueNumber < 0 {
		return Reservation{}, fmt.Errorf("queue number %d: must be positive", queueNumber)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Reservation{}, ErrClosed
	}
	rec := &t.days[dayIndex]
	if !t.fsm.CanTransition(rec.Status, StatusPending) {
		t.mu.Unlock()
		return Reservation{}, fmt.Errorf("reservation %s -> %s not allowed", rec.Status, StatusPending)
	}
	if rec.cancel != nil {
		rec.cancel()
	}
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rec.cancel = cancel
	rec.Version++
	rec.QueueNumber = queueNumber
	rec.Status = StatusPending
	rec.UpdatedAt = t.now()
	snapshot := rec.Reservation
	t.wg.Add(1)
	t.notify(snapshot)
	t.mu.Unlock()

	t.logger.Debug().
		Int("day", dayIndex).
		Int("queue", queueNumber).
		Uint64("version", snapshot.Version).
		Msg("queue check started")

	go t.check(reqCtx, cancel, snapshot)
	return snapshot, nil
}

// Clear returns the day to idle and invalidates any check in flight.
func (t *Tracker) Clear(dayIndex int) error {
	if err := model.CheckIndex(dayIndex); err != nil {
		return err
	}
	t.clear(dayIndex)
	return nil
}

func (t *Tracker) clear(dayIndex int) Reservation {
	t.mu.Lock()
	rec := &t.days[dayIndex]
	if rec.cancel != nil {
		rec.cancel()
		rec.cancel = nil
	}
	changed := rec.Status != StatusIdle || rec.QueueNumber != 0
	rec.Version++
	rec.QueueNumber = 0
	rec.Status = StatusIdle
	rec.UpdatedAt = t.now()
	snapshot := rec.Reservation
	if changed {
		t.notify(snapshot)
	}
	t.mu.Unlock()
	return snapshot
}

func (t *Tracker) check(ctx context.Context, cancel context.CancelFunc, req Reservation) {
	defer t.wg.Done()
	defer cancel()

	start := time.Now()
	ok, err := t.oracle.CheckQueueAvailability(ctx, req.DayIndex, req.QueueNumber)
	t.metrics.ObserveQueueCheck(time.Since(start).Seconds())

	status := StatusUnavailable
	outcome := string(StatusUnavailable)
	switch {
	case err != nil:
		outcome = "error"
	case ok:
		status = StatusAvailable
		outcome = string(StatusAvailable)
	}

	t.mu.Lock()
	rec := &t.days[req.DayIndex]
	if current := rec.Version; current != req.Version {
		t.mu.Unlock()
		t.metrics.IncQueueCheck("stale")
		t.logger.Debug().
			Int("day", req.DayIndex).
			Int("queue", req.QueueNumber).
			Uint64("version", req.Version).
			Uint64("current", current).
			Msg("stale queue check dropped")
		return
	}
	if !t.fsm.CanTransition(rec.Status, status) {
		t.mu.Unlock()
		return
	}
	rec.Status = status
	rec.UpdatedAt = t.now()
	rec.cancel = nil
	t.notify(rec.Reservation)
	t.mu.Unlock()

	t.metrics.IncQueueCheck(outcome)
	if err != nil {
		t.logger.Warn().Err(err).
			Int("day", req.DayIndex).
			Int("queue", req.QueueNumber).
			Msg("queue check failed, treating as unavailable")
	}
}

func (t *Tracker) notify(r Reservation) {
	if t.onChange != nil {
		t.onChange(r)
	}
}

// Get returns the reservation of one day.
func (t *Tracker) Get(dayIndex int) (Reservation, error) {
	if err := model.CheckIndex(dayIndex); err != nil {
		return Reservation{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.days[dayIndex].Reservation, nil
}

// Snapshot returns the reservations of all days in index order.
func (t *Tracker) Snapshot() []Reservation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Reservation, 0, len(t.days))
	for _, rec := range t.days {
		out = append(out, rec.Reservation)
	}
	return out
}

// Wait blocks until every check in flight has finished or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels every check in flight and waits for them to return. Later
// selections fail with ErrClosed.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	for i := range t.days {
		if t.days[i].cancel != nil {
			t.days[i].cancel()
		}
	}
	t.mu.Unlock()
	t.wg.Wait()
}
