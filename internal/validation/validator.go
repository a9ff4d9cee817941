// Package validation checks the temporal invariants of a weekly schedule.
//
// Validation is a pure function of the schedule snapshot: it never mutates
// its input and keeps no state between calls. Problems are reported per
// field path and never as Go errors.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"timeplanner/internal/clock"
	"timeplanner/internal/model"
)

// ErrorKind classifies a field problem.
type ErrorKind string

const (
	InvalidTime           ErrorKind = "invalid_time"
	QueueRequired         ErrorKind = "queue_required"
	QueueOutOfRange       ErrorKind = "queue_out_of_range"
	BreakOutsideShift     ErrorKind = "break_outside_shift"
	BreakEndNotAfterStart ErrorKind = "break_end_not_after_start"
)

var kindMessages = map[ErrorKind]string{
	InvalidTime:           "Invalid time",
	QueueRequired:         "Queue number is required",
	QueueOutOfRange:       "Queue number is not offered",
	BreakOutsideShift:     "Break time must be within shift time",
	BreakEndNotAfterStart: "Break end time must be after break start time",
}

// Message returns the user-facing text for the kind.
func (k ErrorKind) Message() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return string(k)
}

// Describe returns the text shown next to path for kind.
func Describe(path FieldPath, kind ErrorKind) string {
	if kind == BreakOutsideShift {
		switch {
		case strings.HasSuffix(string(path), "."+FieldBreakStartTime):
			return "Break start time must be within shift time"
		case strings.HasSuffix(string(path), "."+FieldBreakEndTime):
			return "Break end time must be within shift time"
		}
	}
	return kind.Message()
}

// Field names as the schedule form submits them.
const (
	FieldStartTime      = "startTime"
	FieldEndTime        = "endTime"
	FieldQueueNumber    = "queueNumber"
	FieldBreakStartTime = "breakStartTime"
	FieldBreakEndTime   = "breakEndTime"
)

// FieldPath addresses one form field, e.g. "days[0].breakEndTime".
type FieldPath string

// DayField builds the path of a field on day index.
func DayField(index int, field string) FieldPath {
	return FieldPath(fmt.Sprintf("days[%d].%s", index, field))
}

// TemplateField builds the path of a field on the all-days template.
func TemplateField(field string) FieldPath {
	return FieldPath("allDays." + field)
}

// Errors maps a field path to the first rule it failed.
type Errors map[FieldPath]ErrorKind

// OK reports whether no field failed.
func (e Errors) OK() bool {
	return len(e) == 0
}

// Fields returns the failing paths sorted.
func (e Errors) Fields() []FieldPath {
	paths := make([]FieldPath, 0, len(e))
	for p := range e {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

// ForDay returns the subset of errors reported on day index.
func (e Errors) ForDay(index int) Errors {
	prefix := fmt.Sprintf("days[%d].", index)
	out := Errors{}
	for p, k := range e {
		if strings.HasPrefix(string(p), prefix) {
			out[p] = k
		}
	}
	return out
}

// Count returns how many fields failed with kind.
func (e Errors) Count(kind ErrorKind) int {
	n := 0
	for _, k := range e {
		if k == kind {
			n++
		}
	}
	return n
}

// Options tune the optional rules.
type Options struct {
	// QueuePoolSize enables the QueueOutOfRange rule when positive.
	QueuePoolSize int
}

// Validate checks every day independently. Inactive days are skipped.
func Validate(s model.WeeklySchedule) Errors {
	return ValidateWithOptions(s, Options{})
}

// ValidateWithOptions is Validate with the optional rules in opts.
func ValidateWithOptions(s model.WeeklySchedule, opts Options) Errors {
	errs := Errors{}

	if !s.AllDays.Shift.Start.IsValid() {
		errs[TemplateField(FieldStartTime)] = InvalidTime
	}
	if !s.AllDays.Shift.End.IsValid() {
		errs[TemplateField(FieldEndTime)] = InvalidTime
	}

	for i, d := range s.Days {
		validateDay(i, d, opts, errs)
	}
	return errs
}

func validateDay(index int, d model.DaySchedule, opts Options, errs Errors) {
	if !d.Active {
		return
	}

	if !d.Shift.Start.IsValid() {
		errs[DayField(index, FieldStartTime)] = InvalidTime
	}
	if !d.Shift.End.IsValid() {
		errs[DayField(index, FieldEndTime)] = InvalidTime
	}

	switch {
	case d.QueueSlot == 0:
		errs[DayField(index, FieldQueueNumber)] = QueueRequired
	case opts.QueuePoolSize > 0 && (d.QueueSlot < 1 || d.QueueSlot > opts.QueuePoolSize):
		errs[DayField(index, FieldQueueNumber)] = QueueOutOfRange
	}

	if !d.BreakActive {
		return
	}
	if kind, ok := checkBreakStart(d); !ok {
		errs[DayField(index, FieldBreakStartTime)] = kind
	}
	if kind, ok := checkBreakEnd(d); !ok {
		errs[DayField(index, FieldBreakEndTime)] = kind
	}
}

// checkBreakStart: valid, then shift.start <= break.start <= shift.end.
func checkBreakStart(d model.DaySchedule) (ErrorKind, bool) {
	start := d.Break.Start
	if !clock.IsValid(start) {
		return InvalidTime, false
	}
	if !within(d.Shift, start) {
		return BreakOutsideShift, false
	}
	return "", true
}

// checkBreakEnd: valid, then strictly after break.start, then within shift.
func checkBreakEnd(d model.DaySchedule) (ErrorKind, bool) {
	end := d.Break.End
	if !clock.IsValid(end) {
		return InvalidTime, false
	}
	if !end.After(d.Break.Start) {
		return BreakEndNotAfterStart, false
	}
	if !within(d.Shift, end) {
		return BreakOutsideShift, false
	}
	return "", true
}

// within is inclusive at both shift boundaries.
func within(shift model.Interval, at clock.Instant) bool {
	return shift.Start.SameOrBefore(at) && shift.End.SameOrAfter(at)
}
