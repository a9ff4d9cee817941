package model

import (
	"errors"
	"fmt"

	"timeplanner/internal/clock"
)

const (
	// DaysInWeek is the fixed cardinality of a weekly schedule.
	DaysInWeek = 7
	// NoBreakDay marks a day whose break is disabled.
	NoBreakDay = -1
	// DefaultQueuePoolSize is the number of queues offered per day.
	DefaultQueuePoolSize = 4
)

// ErrIndexOutOfRange is returned for day indexes outside 0..6.
var ErrIndexOutOfRange = errors.New("day index out of range")

// Interval is a start/end pair. Start is not required to precede End.
type Interval struct {
	Start clock.Instant `json:"start" yaml:"start"`
	End   clock.Instant `json:"end" yaml:"end"`
}

// IntervalPatch updates whichever side is non-nil.
type IntervalPatch struct {
	Start *clock.Instant `json:"start,omitempty"`
	End   *clock.Instant `json:"end,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p IntervalPatch) IsEmpty() bool {
	return p.Start == nil && p.End == nil
}

// ApplyTo returns iv with the supplied sides replaced.
func (p IntervalPatch) ApplyTo(iv Interval) Interval {
	if p.Start != nil {
		iv.Start = *p.Start
	}
	if p.End != nil {
		iv.End = *p.End
	}
	return iv
}

// DaySchedule is the state of one weekday.
type DaySchedule struct {
	Active        bool
	Shift         Interval
	BreakActive   bool
	Break         Interval
	BreakDayIndex int
	QueueSlot     int
}

// DayPatch is a partial update of a DaySchedule.
type DayPatch struct {
	Active        *bool
	Shift         IntervalPatch
	BreakActive   *bool
	Break         IntervalPatch
	BreakDayIndex *int
	QueueSlot     *int
}

func (p DayPatch) applyTo(d DaySchedule) DaySchedule {
	if p.Active != nil {
		d.Active = *p.Active
	}
	d.Shift = p.Shift.ApplyTo(d.Shift)
	if p.BreakActive != nil {
		d.BreakActive = *p.BreakActive
	}
	d.Break = p.Break.ApplyTo(d.Break)
	if p.BreakDayIndex != nil {
		d.BreakDayIndex = *p.BreakDayIndex
	}
	if p.QueueSlot != nil {
		d.QueueSlot = *p.QueueSlot
	}
	return d
}

// AllDaysTemplate is the master shift/break used to seed days in bulk.
// It has no active flag and is never checked against day invariants.
type AllDaysTemplate struct {
	Shift Interval
	Break Interval
}

// IndexedDay pairs a day with its position in the week.
type IndexedDay struct {
	Index int
	Day   DaySchedule
}

// WeeklySchedule owns the seven days, the template, and the display-only
// shop hours.
type WeeklySchedule struct {
	Days            [DaysInWeek]DaySchedule `json:"days" yaml:"days"`
	AllDays         AllDaysTemplate         `json:"allDays" yaml:"allDays"`
	ShopOpeningTime clock.Instant           `json:"shopOpeningTime" yaml:"shopOpeningTime"`
	ShopClosingTime clock.Instant           `json:"shopClosingTime" yaml:"shopClosingTime"`
	AllowSchedule   bool                    `json:"allowSchedule" yaml:"allowSchedule"`
}

// CheckIndex returns ErrIndexOutOfRange unless 0 <= index < 7.
func CheckIndex(index int) error {
	if index < 0 || index >= DaysInWeek {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}

// MustIndex panics on an out-of-range index. Day indexes never come from
// users directly, so a bad one is a defect.
func MustIndex(index int) int {
	if err := CheckIndex(index); err != nil {
		panic(err)
	}
	return index
}

// Day returns a copy of the day at index.
func (w *WeeklySchedule) Day(index int) (DaySchedule, error) {
	if err := CheckIndex(index); err != nil {
		return DaySchedule{}, err
	}
	return w.Days[index], nil
}

// SetDay merges patch into the day at index.
func (w *WeeklySchedule) SetDay(index int, patch DayPatch) error {
	if err := CheckIndex(index); err != nil {
		return err
	}
	w.Days[index] = patch.applyTo(w.Days[index])
	return nil
}

// ActiveDays returns the active days in index order.
func (w *WeeklySchedule) ActiveDays() []IndexedDay {
	return w.filter(func(d DaySchedule) bool { return d.Active })
}

// BreakEligibleDays returns the active days that have a break enabled.
func (w *WeeklySchedule) BreakEligibleDays() []IndexedDay {
	return w.filter(func(d DaySchedule) bool { return d.Active && d.BreakActive })
}

func (w *WeeklySchedule) filter(keep func(DaySchedule) bool) []IndexedDay {
	var out []IndexedDay
	for i, d := range w.Days {
		if keep(d) {
			out = append(out, IndexedDay{Index: i, Day: d})
		}
	}
	return out
}

// Clone returns an independent copy. Every field is a value, so a struct
// copy never aliases.
func (w *WeeklySchedule) Clone() WeeklySchedule {
	return *w
}

// DefaultSchedule mirrors a freshly opened form: every day inactive, every
// instant at the start of the reference day.
func DefaultSchedule() WeeklySchedule {
	midnight := clock.StartOfDay()
	blank := Interval{Start: midnight, End: midnight}

	var w WeeklySchedule
	for i := range w.Days {
		w.Days[i] = DaySchedule{
			Shift:         blank,
			Break:         blank,
			BreakDayIndex: NoBreakDay,
		}
	}
	w.AllDays = AllDaysTemplate{Shift: blank, Break: blank}
	w.ShopOpeningTime = midnight
	w.ShopClosingTime = midnight
	return w
}
