package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"timeplanner/internal/clock"
)

// The wire shapes keep the flat field names the schedule form submits.

type dayWire struct {
	Active         bool          `json:"active" yaml:"active"`
	StartTime      clock.Instant `json:"startTime" yaml:"startTime"`
	EndTime        clock.Instant `json:"endTime" yaml:"endTime"`
	BreakActive    bool          `json:"breakActive" yaml:"breakActive"`
	BreakStartTime clock.Instant `json:"breakStartTime" yaml:"breakStartTime"`
	BreakEndTime   clock.Instant `json:"breakEndTime" yaml:"breakEndTime"`
	BreakDayIndex  int           `json:"breakDayIndex" yaml:"breakDayIndex"`
	QueueNumber    QueueNumber   `json:"queueNumber" yaml:"queueNumber"`
}

func toDayWire(d DaySchedule) dayWire {
	return dayWire{
		Active:         d.Active,
		StartTime:      d.Shift.Start,
		EndTime:        d.Shift.End,
		BreakActive:    d.BreakActive,
		BreakStartTime: d.Break.Start,
		BreakEndTime:   d.Break.End,
		BreakDayIndex:  d.BreakDayIndex,
		QueueNumber:    QueueNumber(d.QueueSlot),
	}
}

func (w dayWire) day() DaySchedule {
	return DaySchedule{
		Active:        w.Active,
		Shift:         Interval{Start: w.StartTime, End: w.EndTime},
		BreakActive:   w.BreakActive,
		Break:         Interval{Start: w.BreakStartTime, End: w.BreakEndTime},
		BreakDayIndex: w.BreakDayIndex,
		QueueSlot:     int(w.QueueNumber),
	}
}

func (d DaySchedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(toDayWire(d))
}

// UnmarshalJSON merges the payload over the current value.
func (d *DaySchedule) UnmarshalJSON(data []byte) error {
	w := toDayWire(*d)
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = w.day()
	return nil
}

func (d DaySchedule) MarshalYAML() (interface{}, error) {
	return toDayWire(d), nil
}

func (d *DaySchedule) UnmarshalYAML(value *yaml.Node) error {
	w := toDayWire(*d)
	if err := value.Decode(&w); err != nil {
		return err
	}
	*d = w.day()
	return nil
}

type templateWire struct {
	StartTime      clock.Instant `json:"startTime" yaml:"startTime"`
	EndTime        clock.Instant `json:"endTime" yaml:"endTime"`
	BreakStartTime clock.Instant `json:"breakStartTime" yaml:"breakStartTime"`
	BreakEndTime   clock.Instant `json:"breakEndTime" yaml:"breakEndTime"`
}

func toTemplateWire(t AllDaysTemplate) templateWire {
	return templateWire{
		StartTime:      t.Shift.Start,
		EndTime:        t.Shift.End,
		BreakStartTime: t.Break.Start,
		BreakEndTime:   t.Break.End,
	}
}

func (w templateWire) template() AllDaysTemplate {
	return AllDaysTemplate{
		Shift: Interval{Start: w.StartTime, End: w.EndTime},
		Break: Interval{Start: w.BreakStartTime, End: w.BreakEndTime},
	}
}

func (t AllDaysTemplate) MarshalJSON() ([]byte, error) {
	return json.Marshal(toTemplateWire(t))
}

func (t *AllDaysTemplate) UnmarshalJSON(data []byte) error {
	w := toTemplateWire(*t)
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = w.template()
	return nil
}

func (t AllDaysTemplate) MarshalYAML() (interface{}, error) {
	return toTemplateWire(t), nil
}

func (t *AllDaysTemplate) UnmarshalYAML(value *yaml.Node) error {
	w := toTemplateWire(*t)
	if err := value.Decode(&w); err != nil {
		return err
	}
	*t = w.template()
	return nil
}

type plainSchedule WeeklySchedule

// UnmarshalJSON starts from DefaultSchedule so omitted fields and days keep
// their form defaults (notably BreakDayIndex = -1). More than seven days is
// rejected.
func (w *WeeklySchedule) UnmarshalJSON(data []byte) error {
	p := plainSchedule(DefaultSchedule())
	aux := struct {
		*plainSchedule
		Days []json.RawMessage `json:"days"`
	}{plainSchedule: &p}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Days) > DaysInWeek {
		return fmt.Errorf("schedule has %d days, want %d", len(aux.Days), DaysInWeek)
	}
	for i, raw := range aux.Days {
		if err := p.Days[i].UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("days[%d]: %w", i, err)
		}
	}
	*w = WeeklySchedule(p)
	return nil
}

type scheduleYAML struct {
	Days            []yaml.Node     `yaml:"days"`
	AllDays         AllDaysTemplate `yaml:"allDays"`
	ShopOpeningTime clock.Instant   `yaml:"shopOpeningTime"`
	ShopClosingTime clock.Instant   `yaml:"shopClosingTime"`
	AllowSchedule   bool            `yaml:"allowSchedule"`
}

func (w *WeeklySchedule) UnmarshalYAML(value *yaml.Node) error {
	def := DefaultSchedule()
	aux := scheduleYAML{
		AllDays:         def.AllDays,
		ShopOpeningTime: def.ShopOpeningTime,
		ShopClosingTime: def.ShopClosingTime,
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if len(aux.Days) > DaysInWeek {
		return fmt.Errorf("schedule has %d days, want %d", len(aux.Days), DaysInWeek)
	}
	for i := range aux.Days {
		if err := def.Days[i].UnmarshalYAML(&aux.Days[i]); err != nil {
			return fmt.Errorf("days[%d]: %w", i, err)
		}
	}
	def.AllDays = aux.AllDays
	def.ShopOpeningTime = aux.ShopOpeningTime
	def.ShopClosingTime = aux.ShopClosingTime
	def.AllowSchedule = aux.AllowSchedule
	*w = def
	return nil
}

// QueueNumber decodes the queue select value: a number, a numeric string,
// or "" for "no queue selected".
type QueueNumber int

func (q *QueueNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return q.parse(s)
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("queue number must be an integer: %w", err)
	}
	*q = QueueNumber(n)
	return nil
}

func (q *QueueNumber) UnmarshalYAML(value *yaml.Node) error {
	return q.parse(value.Value)
}

func (q *QueueNumber) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*q = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("queue number must be an integer: %w", err)
	}
	*q = QueueNumber(n)
	return nil
}
