// Package propagation implements the bulk edit operations of the weekly
// schedule: broadcasting the all-days template and fanning shift and break
// edits out to the selected days.
package propagation

import (
	"timeplanner/internal/model"
)

// Selector decides which days a fan-out edit reaches.
type Selector func(day model.DaySchedule) bool

// SelectActive reaches the days currently opted in. Edits never reach
// inactive days, which would silently re-activate them.
func SelectActive(day model.DaySchedule) bool {
	return day.Active
}

// SelectAll reaches every day.
func SelectAll(model.DaySchedule) bool {
	return true
}

// ApplyTemplateToAllDays activates every day with the template shift, or
// deactivates every day. Deactivation keeps the shift so re-enabling restores
// it, and drops the queue slot like SetDayActive does; break fields are never
// touched. It returns the days that lost an active flag or a queue slot.
func ApplyTemplateToAllDays(s *model.WeeklySchedule, enable bool) []int {
	var released []int
	for i := range s.Days {
		d := &s.Days[i]
		if enable {
			d.Active = true
			d.Shift = s.AllDays.Shift
			continue
		}
		if d.Active || d.QueueSlot != 0 {
			released = append(released, i)
		}
		d.Active = false
		d.QueueSlot = 0
	}
	return released
}

// ApplyShiftToSelectedDays writes the supplied sides of patch onto the shift
// of every selected day. The other side of each interval is left as is.
func ApplyShiftToSelectedDays(s *model.WeeklySchedule, patch model.IntervalPatch, sel Selector) {
	for i := range s.Days {
		d := &s.Days[i]
		if !sel(*d) {
			continue
		}
		d.Shift = patch.ApplyTo(d.Shift)
	}
}

// ApplyBreakToSelectedDays stages the supplied sides of patch on the break of
// every selected day, regardless of its break flag, so that a later toggle
// finds the value in place.
func ApplyBreakToSelectedDays(s *model.WeeklySchedule, patch model.IntervalPatch, sel Selector) {
	for i := range s.Days {
		d := &s.Days[i]
		if !sel(*d) {
			continue
		}
		d.Break = patch.ApplyTo(d.Break)
	}
}

// ApplyBreakToggleForAllActiveDays enables the template break on every active
// day, or disables the break on every day.
func ApplyBreakToggleForAllActiveDays(s *model.WeeklySchedule, enable bool) {
	for i := range s.Days {
		d := &s.Days[i]
		if !enable {
			d.BreakActive = false
			d.BreakDayIndex = model.NoBreakDay
			continue
		}
		if !d.Active {
			continue
		}
		d.BreakActive = true
		d.BreakDayIndex = i
		d.Break = s.AllDays.Break
	}
}

// ToggleBreakForDay enables or disables the break of one day.
func ToggleBreakForDay(s *model.WeeklySchedule, index int, enable bool) error {
	if err := model.CheckIndex(index); err != nil {
		return err
	}
	d := &s.Days[index]
	d.BreakActive = enable
	if enable {
		d.BreakDayIndex = index
	} else {
		d.BreakDayIndex = model.NoBreakDay
	}
	return nil
}

// SetDayActive flips one day's active flag. Deactivating clears the queue
// slot; shift and break values are kept.
func SetDayActive(s *model.WeeklySchedule, index int, active bool) error {
	if err := model.CheckIndex(index); err != nil {
		return err
	}
	d := &s.Days[index]
	d.Active = active
	if !active {
		d.QueueSlot = 0
	}
	return nil
}

// SetQueueSlot stores the chosen queue number on one day.
func SetQueueSlot(s *model.WeeklySchedule, index, queue int) error {
	if err := model.CheckIndex(index); err != nil {
		return err
	}
	s.Days[index].QueueSlot = queue
	return nil
}

// BreakAppliedToAll is the derived "apply break on all days" flag: true when
// every active day has its break enabled.
func BreakAppliedToAll(s model.WeeklySchedule) bool {
	active, withBreak := 0, 0
	for _, d := range s.Days {
		if !d.Active {
			continue
		}
		active++
		if d.BreakActive {
			withBreak++
		}
	}
	return withBreak == active
}
