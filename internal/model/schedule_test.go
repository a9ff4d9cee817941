package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"timeplanner/internal/clock"
)

func ptr[T any](v T) *T { return &v }

func TestDefaultSchedule(t *testing.T) {
	w := DefaultSchedule()

	for i, d := range w.Days {
		assert.False(t, d.Active, "day %d", i)
		assert.False(t, d.BreakActive, "day %d", i)
		assert.Equal(t, NoBreakDay, d.BreakDayIndex, "day %d", i)
		assert.Equal(t, 0, d.QueueSlot, "day %d", i)
		assert.Equal(t, "00:00", clock.FormatHHMM(d.Shift.Start))
	}
	assert.Empty(t, w.ActiveDays())
	assert.False(t, w.AllowSchedule)
}

func TestDay_IndexOutOfRange(t *testing.T) {
	w := DefaultSchedule()

	for _, idx := range []int{-1, 7, 100} {
		_, err := w.Day(idx)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange), "index %d", idx)
		assert.ErrorIs(t, w.SetDay(idx, DayPatch{Active: ptr(true)}), ErrIndexOutOfRange)
	}

	d, err := w.Day(6)
	require.NoError(t, err)
	assert.Equal(t, NoBreakDay, d.BreakDayIndex)
}

func TestMustIndex_Panics(t *testing.T) {
	assert.Panics(t, func() { MustIndex(7) })
	assert.Equal(t, 3, MustIndex(3))
}

func TestSetDay_MergesPartialPatch(t *testing.T) {
	w := DefaultSchedule()
	require.NoError(t, w.SetDay(2, DayPatch{
		Active: ptr(true),
		Shift:  IntervalPatch{Start: ptr(clock.At(8, 0)), End: ptr(clock.At(17, 0))},
	}))
	require.NoError(t, w.SetDay(2, DayPatch{
		Shift:     IntervalPatch{End: ptr(clock.At(18, 0))},
		QueueSlot: ptr(3),
	}))

	d, err := w.Day(2)
	require.NoError(t, err)
	assert.True(t, d.Active)
	assert.Equal(t, "08:00", clock.FormatHHMM(d.Shift.Start))
	assert.Equal(t, "18:00", clock.FormatHHMM(d.Shift.End))
	assert.Equal(t, 3, d.QueueSlot)
	assert.Len(t, w.Days, DaysInWeek)
}

func TestActiveDays_PreservesOrder(t *testing.T) {
	w := DefaultSchedule()
	for _, i := range []int{5, 1, 3} {
		require.NoError(t, w.SetDay(i, DayPatch{Active: ptr(true)}))
	}
	require.NoError(t, w.SetDay(3, DayPatch{BreakActive: ptr(true), BreakDayIndex: ptr(3)}))
	// break flag on an inactive day does not make it eligible
	require.NoError(t, w.SetDay(6, DayPatch{BreakActive: ptr(true)}))

	var active []int
	for _, d := range w.ActiveDays() {
		active = append(active, d.Index)
	}
	assert.Equal(t, []int{1, 3, 5}, active)

	eligible := w.BreakEligibleDays()
	require.Len(t, eligible, 1)
	assert.Equal(t, 3, eligible[0].Index)

	// restartable
	assert.Equal(t, w.ActiveDays(), w.ActiveDays())
}

func TestClone_DoesNotAlias(t *testing.T) {
	w := DefaultSchedule()
	c := w.Clone()
	require.NoError(t, c.SetDay(0, DayPatch{Active: ptr(true), Shift: IntervalPatch{Start: ptr(clock.At(9, 0))}}))

	assert.False(t, w.Days[0].Active)
	assert.Equal(t, "00:00", clock.FormatHHMM(w.Days[0].Shift.Start))
}

func TestWeeklySchedule_DecodeFormPayload(t *testing.T) {
	payload := `{
		"allDays": {"startTime": "2025-01-06T08:00:00.000Z", "endTime": "2025-01-06T17:00:00.000Z"},
		"days": [
			{"active": true, "startTime": "2025-01-06T08:00:00.000Z", "endTime": "2025-01-06T17:00:00.000Z",
			 "breakActive": true, "breakStartTime": "13:00", "breakEndTime": "14:00", "breakDayIndex": 0, "queueNumber": 2},
			{"active": false, "queueNumber": ""}
		],
		"allowSchedule": true
	}`

	var w WeeklySchedule
	require.NoError(t, json.Unmarshal([]byte(payload), &w))

	assert.True(t, w.AllowSchedule)
	assert.Equal(t, "08:00", clock.FormatHHMM(w.AllDays.Shift.Start))
	assert.Equal(t, "00:00", clock.FormatHHMM(w.AllDays.Break.Start))

	monday := w.Days[0]
	assert.True(t, monday.Active)
	assert.True(t, monday.BreakActive)
	assert.Equal(t, 0, monday.BreakDayIndex)
	assert.Equal(t, 2, monday.QueueSlot)
	assert.Equal(t, "13:00", clock.FormatHHMM(monday.Break.Start))

	// omitted days keep form defaults
	assert.Equal(t, NoBreakDay, w.Days[1].BreakDayIndex)
	assert.Equal(t, NoBreakDay, w.Days[6].BreakDayIndex)
	assert.True(t, w.Days[6].Shift.Start.IsValid())

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"breakStartTime":"2000-01-01T13:00:00Z"`)
	assert.Contains(t, string(out), `"queueNumber":2`)
}

func TestWeeklySchedule_RejectsTooManyDays(t *testing.T) {
	days := make([]map[string]any, 8)
	for i := range days {
		days[i] = map[string]any{"active": false}
	}
	data, err := json.Marshal(map[string]any{"days": days})
	require.NoError(t, err)

	var w WeeklySchedule
	assert.Error(t, json.Unmarshal(data, &w))
}

func TestWeeklySchedule_RejectsNonIntegerQueue(t *testing.T) {
	var w WeeklySchedule
	err := json.Unmarshal([]byte(`{"days":[{"active":true,"queueNumber":"two"}]}`), &w)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"days":[{"active":true,"queueNumber":1.5}]}`), &w)
	assert.Error(t, err)
}

func TestWeeklySchedule_YAML(t *testing.T) {
	src := `
allDays:
  startTime: "09:00"
  endTime: "18:00"
days:
  - {active: true, startTime: "09:00", endTime: "18:00", queueNumber: 1}
  - {active: false}
  - {active: false}
  - {active: false}
  - {active: false}
  - {active: true, startTime: "10:00", endTime: "16:00", queueNumber: "3"}
  - {active: false}
`
	var w WeeklySchedule
	require.NoError(t, yaml.Unmarshal([]byte(src), &w))

	assert.Equal(t, "09:00", clock.FormatHHMM(w.AllDays.Shift.Start))
	assert.Equal(t, 3, w.Days[5].QueueSlot)
	assert.Equal(t, NoBreakDay, w.Days[0].BreakDayIndex)
	assert.Len(t, w.ActiveDays(), 2)
}

func TestDayNamesAndQueueOptions(t *testing.T) {
	assert.Equal(t, "Monday", DayName(0))
	assert.Equal(t, "Sunday", DayName(6))
	assert.Equal(t, "", DayName(7))
	assert.Equal(t, 4, DayIndexByName("friday"))
	assert.Equal(t, -1, DayIndexByName("funday"))

	assert.Equal(t, []int{1, 2, 3, 4}, QueueOptions(0))
	assert.Equal(t, []int{1, 2}, QueueOptions(2))
}
