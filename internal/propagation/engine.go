package propagation

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"timeplanner/internal/events"
	"timeplanner/internal/metrics"
	"timeplanner/internal/model"
	"timeplanner/internal/validation"
)

// Op names a committed mutation.
type Op string

const (
	OpApplyTemplate     Op = "apply_template"
	OpApplyShift        Op = "apply_shift"
	OpApplyBreak        Op = "apply_break"
	OpToggleBreakAll    Op = "toggle_break_all"
	OpToggleBreakForDay Op = "toggle_break_day"
	OpSetDayActive      Op = "set_day_active"
	OpAllowSchedule     Op = "allow_schedule"
	OpSetTemplate       Op = "set_template"
	OpSetQueueSlot      Op = "set_queue_slot"
)

// Report is the outcome of one operation: the committed schedule and its
// field errors.
type Report struct {
	Op                Op                   `json:"op"`
	Schedule          model.WeeklySchedule `json:"schedule"`
	Errors            validation.Errors    `json:"errors"`
	BreakAppliedToAll bool                 `json:"breakAppliedToAll"`
}

// ValidateFunc checks a schedule after every mutation.
type ValidateFunc func(model.WeeklySchedule) validation.Errors

// ReservationResetter drops the queue reservation of a day that went inactive.
type ReservationResetter interface {
	Clear(dayIndex int) error
}

// TemplatePatch edits the all-days template.
type TemplatePatch struct {
	Shift model.IntervalPatch `json:"shift"`
	Break model.IntervalPatch `json:"break"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithSelector replaces the fan-out policy of the shift and break edits.
func WithSelector(sel Selector) Option {
	return func(e *Engine) {
		if sel != nil {
			e.selector = sel
		}
	}
}

func WithValidator(fn ValidateFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.validate = fn
		}
	}
}

func WithReservations(r ReservationResetter) Option {
	return func(e *Engine) { e.reservations = r }
}

// WithPublisher emits a schedule.changed event per committed operation,
// tagged with source.
func WithPublisher(p events.Publisher, source string) Option {
	return func(e *Engine) {
		e.publisher = p
		e.source = source
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine applies the bulk edits to one weekly schedule. Each operation works
// on a copy and swaps it in only when it succeeds.
type Engine struct {
	mu       sync.Mutex
	schedule model.WeeklySchedule

	selector     Selector
	validate     ValidateFunc
	reservations ReservationResetter
	publisher    events.Publisher
	source       string
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// NewEngine creates an engine over initial.
func NewEngine(initial model.WeeklySchedule, logger *zerolog.Logger, opts ...Option) *Engine {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "propagation").Logger()
	}
	e := &Engine{
		schedule: initial,
		selector: SelectActive,
		validate: validation.Validate,
		logger:   l,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schedule returns a copy of the current schedule.
func (e *Engine) Schedule() model.WeeklySchedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedule.Clone()
}

// Validate checks the current schedule.
func (e *Engine) Validate() validation.Errors {
	return e.validate(e.Schedule())
}

// State reports the current schedule without mutating it.
func (e *Engine) State() Report {
	s := e.Schedule()
	return Report{
		Schedule:          s,
		Errors:            e.validate(s),
		BreakAppliedToAll: BreakAppliedToAll(s),
	}
}

// ApplyTemplateToAllDays activates every day with the template shift, or
// deactivates every day. Deactivated days lose their queue slot and their
// reservation.
func (e *Engine) ApplyTemplateToAllDays(enable bool) (Report, error) {
	var released []int
	report, err := e.commit(OpApplyTemplate, func(s *model.WeeklySchedule) error {
		released = ApplyTemplateToAllDays(s, enable)
		return nil
	})
	if err != nil {
		return report, err
	}
	e.resetReservations(released...)
	return report, nil
}

// ApplyShiftToSelectedDays fans a shift edit out to the selected days.
func (e *Engine) ApplyShiftToSelectedDays(patch model.IntervalPatch) (Report, error) {
	return e.commit(OpApplyShift, func(s *model.WeeklySchedule) error {
		ApplyShiftToSelectedDays(s, patch, e.selector)
		return nil
	})
}

// ApplyBreakToSelectedDays fans a break edit out to the selected days.
func (e *Engine) ApplyBreakToSelectedDays(patch model.IntervalPatch) (Report, error) {
	return e.commit(OpApplyBreak, func(s *model.WeeklySchedule) error {
		ApplyBreakToSelectedDays(s, patch, e.selector)
		return nil
	})
}

func (e *Engine) ApplyBreakToggleForAllActiveDays(enable bool) (Report, error) {
	return e.commit(OpToggleBreakAll, func(s *model.WeeklySchedule) error {
		ApplyBreakToggleForAllActiveDays(s, enable)
		return nil
	})
}

func (e *Engine) ToggleBreakForDay(index int, enable bool) (Report, error) {
	return e.commit(OpToggleBreakForDay, func(s *model.WeeklySchedule) error {
		return ToggleBreakForDay(s, index, enable)
	})
}

// SetDayActive flips one day's active flag. A deactivated day loses its
// queue slot and its reservation.
func (e *Engine) SetDayActive(index int, active bool) (Report, error) {
	report, err := e.commit(OpSetDayActive, func(s *model.WeeklySchedule) error {
		return SetDayActive(s, index, active)
	})
	if err != nil {
		return report, err
	}
	if !active {
		e.resetReservations(index)
	}
	return report, nil
}

func (e *Engine) resetReservations(days ...int) {
	if e.reservations == nil {
		return
	}
	for _, i := range days {
		if err := e.reservations.Clear(i); err != nil {
			e.logger.Warn().Err(err).Int("day", i).Msg("reset reservation")
		}
	}
}

// AllowSchedule records the operator's answer; yes also applies the template
// to every day.
func (e *Engine) AllowSchedule(allow bool) (Report, error) {
	return e.commit(OpAllowSchedule, func(s *model.WeeklySchedule) error {
		s.AllowSchedule = allow
		if allow {
			ApplyTemplateToAllDays(s, true)
		}
		return nil
	})
}

// SetTemplate edits the template without touching any day.
func (e *Engine) SetTemplate(patch TemplatePatch) (Report, error) {
	return e.commit(OpSetTemplate, func(s *model.WeeklySchedule) error {
		s.AllDays.Shift = patch.Shift.ApplyTo(s.AllDays.Shift)
		s.AllDays.Break = patch.Break.ApplyTo(s.AllDays.Break)
		return nil
	})
}

func (e *Engine) SetQueueSlot(index, queue int) (Report, error) {
	return e.commit(OpSetQueueSlot, func(s *model.WeeklySchedule) error {
		return SetQueueSlot(s, index, queue)
	})
}

type changePayload struct {
	Op                Op   `json:"op"`
	Errors            int  `json:"errors"`
	BreakAppliedToAll bool `json:"breakAppliedToAll"`
}

func (e *Engine) commit(op Op, mutate func(*model.WeeklySchedule) error) (Report, error) {
	e.mu.Lock()
	next := e.schedule.Clone()
	if err := mutate(&next); err != nil {
		e.mu.Unlock()
		return Report{}, fmt.Errorf("%s: %w", op, err)
	}
	e.schedule = next
	e.mu.Unlock()

	report := Report{
		Op:                op,
		Schedule:          next,
		Errors:            e.validate(next),
		BreakAppliedToAll: BreakAppliedToAll(next),
	}

	e.metrics.IncPropagation(string(op))
	for _, kind := range report.Errors {
		e.metrics.AddValidationError(string(kind))
	}
	e.logger.Debug().
		Str("op", string(op)).
		Int("errors", len(report.Errors)).
		Bool("break_applied_to_all", report.BreakAppliedToAll).
		Msg("schedule updated")

	if e.publisher != nil {
		evt, err := events.New(events.TypeScheduleChanged, e.source, changePayload{
			Op:                op,
			Errors:            len(report.Errors),
			BreakAppliedToAll: report.BreakAppliedToAll,
		})
		if err != nil {
			e.logger.Error().Err(err).Msg("build schedule event")
		} else {
			e.publisher.Publish(evt)
		}
	}
	return report, nil
}
