// Package session manages interactive editing sessions: one weekly schedule
// and its queue reservations per session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"timeplanner/internal/model"
	"timeplanner/internal/propagation"
	"timeplanner/internal/reservation"
	"timeplanner/internal/validation"
)

// View is the full state of a session as shown to the form.
type View struct {
	ID                string                    `json:"id"`
	Op                propagation.Op            `json:"op,omitempty"`
	Schedule          model.WeeklySchedule      `json:"schedule"`
	Errors            validation.Errors         `json:"errors"`
	BreakAppliedToAll bool                      `json:"breakAppliedToAll"`
	Reservations      []reservation.Reservation `json:"reservations"`
	UpdatedAt         time.Time                 `json:"updatedAt"`
}

// Session is one editing session. Operations are serialized.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	updatedAt time.Time
	now       func() time.Time

	engine  *propagation.Engine
	tracker *reservation.Tracker
}

// IsExpired checks if the session has been idle longer than timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.updatedAt) > timeout
}

// View returns the current state without changing it.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.engine.State())
}

func (s *Session) view(r propagation.Report) View {
	return View{
		ID:                s.ID,
		Op:                r.Op,
		Schedule:          r.Schedule,
		Errors:            r.Errors,
		BreakAppliedToAll: r.BreakAppliedToAll,
		Reservations:      s.tracker.Snapshot(),
		UpdatedAt:         s.updatedAt,
	}
}

func (s *Session) apply(op func() (propagation.Report, error)) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := op()
	if err != nil {
		return View{}, err
	}
	s.updatedAt = s.now()
	return s.view(r), nil
}

func (s *Session) AllowSchedule(allow bool) (View, error) {
	return s.apply(func() (propagation.Report, error) { return s.engine.AllowSchedule(allow) })
}

func (s *Session) SetTemplate(patch propagation.TemplatePatch) (View, error) {
	return s.apply(func() (propagation.Report, error) { return s.engine.SetTemplate(patch) })
}

func (s *Session) ApplyTemplateToAllDays(enable bool) (View, error) {
	return s.apply(func() (propagation.Report, error) { return s.engine.ApplyTemplateToAllDays(enable) })
}

func (s *Session) ApplyShiftToSelectedDays(patch model.IntervalPatch) (View, error) {
	return s.apply(func() (propagation.Report, error) { return s.engine.ApplyShiftToSelectedDays(patch) })
}

func (s *Session) ApplyBreakToSelectedDays(patch model.IntervalPatch) (View, error) {
	return s.apply(func() (propagation.Report, error) { return s.engine.ApplyBreakToSelectedDays(patch) })
}

func (s *Session) ApplyBreakToggleForAllActiveDays(enable bool) (View, error) {
	return s.apply(func() (propagation.Report, error) { return s.engine.ApplyBreakToggleForAllActiveDays(enable) })
}

func (s *Session) ToggleBreakForDay(index int, enable bool) (View, error) {
	return s.apply(func() (propagation.Report, error) { return s.engine.ToggleBreakForDay(index, enable) })
}

// SetDayActive flips a day's checkbox. Unchecking drops the day's queue
// reservation.
func (s *Session) SetDayActive(index int, active bool) (View, error) {
	return s.apply(func() (propagation.Report, error) { return s.engine.SetDayActive(index, active) })
}

// SelectQueue stores queueNumber on an active day and starts its
// availability check. Queue 0 clears the day's selection.
func (s *Session) SelectQueue(ctx context.Context, index, queueNumber int) (View, error) {
	if queueNumber == 0 {
		return s.ClearQueue(index)
	}
	if queueNumber < 0 {
		return View{}, fmt.Errorf("queue number %d: must be positive", queueNumber)
	}
	return s.apply(func() (propagation.Report, error) {
		sched := s.engine.Schedule()
		day, err := sched.Day(index)
		if err != nil {
			return propagation.Report{}, err
		}
		if !day.Active {
			return propagation.Report{}, fmt.Errorf("%w: %s", reservation.ErrDayInactive, model.DayName(index))
		}
		if _, err := s.tracker.Select(ctx, index, queueNumber); err != nil {
			return propagation.Report{}, err
		}
		r, err := s.engine.SetQueueSlot(index, queueNumber)
		if err != nil {
			_ = s.tracker.Clear(index)
			return r, err
		}
		return r, nil
	})
}

// ClearQueue empties the day's queue slot and returns its reservation to idle.
func (s *Session) ClearQueue(index int) (View, error) {
	return s.apply(func() (propagation.Report, error) {
		r, err := s.engine.SetQueueSlot(index, 0)
		if err != nil {
			return r, err
		}
		if err := s.tracker.Clear(index); err != nil {
			return r, err
		}
		return r, nil
	})
}

// Wait blocks until the session's availability checks have settled.
func (s *Session) Wait(ctx context.Context) error {
	return s.tracker.Wait(ctx)
}

func (s *Session) close() {
	s.tracker.Close()
}
