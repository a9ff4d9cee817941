// Package clock models the clock instants a weekly schedule is made of.
package clock

import (
	"encoding/json"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReferenceDay is the calendar day every instant is normalized onto, so that
// comparisons only ever depend on the wall clock.
var ReferenceDay = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Layouts accepted by Parse, tried in order.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"15:04:05",
	"15:04",
}

// Ordering is the result of comparing two instants.
type Ordering int

const (
	Before Ordering = -1
	Same   Ordering = 0
	After  Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "same"
	}
}

// Instant is a point in time on the reference day. The zero value is invalid.
type Instant struct {
	t     time.Time
	valid bool
}

// At returns the instant hour:minute on the reference day.
func At(hour, minute int) Instant {
	return Instant{
		t:     time.Date(ReferenceDay.Year(), ReferenceDay.Month(), ReferenceDay.Day(), hour, minute, 0, 0, time.UTC),
		valid: true,
	}
}

// StartOfDay returns 00:00 on the reference day.
func StartOfDay() Instant {
	return At(0, 0)
}

// FromTime keeps the UTC wall clock of t and moves it onto the reference day,
// so equal absolute times give equal instants whatever their offset.
func FromTime(t time.Time) Instant {
	if t.IsZero() {
		return Instant{}
	}
	t = t.UTC()
	return Instant{
		t: time.Date(ReferenceDay.Year(), ReferenceDay.Month(), ReferenceDay.Day(),
			t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC),
		valid: true,
	}
}

// Parse reads RFC 3339 timestamps and HH:MM[:SS] clock strings. It never
// fails: unparsable input yields an invalid Instant.
func Parse(s string) Instant {
	s = strings.TrimSpace(s)
	if s == "" {
		return Instant{}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t)
		}
	}
	return Instant{}
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(s string) Instant {
	i := Parse(s)
	if !i.valid {
		panic("clock: invalid instant " + s)
	}
	return i
}

// IsValid reports whether i holds a parsed instant.
func IsValid(i Instant) bool {
	return i.valid
}

// IsValid reports whether i holds a parsed instant.
func (i Instant) IsValid() bool {
	return i.valid
}

// Time returns the instant on the reference day; zero time when invalid.
func (i Instant) Time() time.Time {
	if !i.valid {
		return time.Time{}
	}
	return i.t
}

// Compare orders a against b. Invalid instants sort before valid ones and
// are Same as each other; callers check validity first.
func Compare(a, b Instant) Ordering {
	switch {
	case !a.valid && !b.valid:
		return Same
	case !a.valid:
		return Before
	case !b.valid:
		return After
	case a.t.Before(b.t):
		return Before
	case a.t.After(b.t):
		return After
	default:
		return Same
	}
}

// The predicates below are false whenever either side is invalid.

func (i Instant) Before(o Instant) bool {
	return i.valid && o.valid && i.t.Before(o.t)
}

func (i Instant) After(o Instant) bool {
	return i.valid && o.valid && i.t.After(o.t)
}

func (i Instant) Same(o Instant) bool {
	return i.valid && o.valid && i.t.Equal(o.t)
}

func (i Instant) SameOrBefore(o Instant) bool {
	return i.Same(o) || i.Before(o)
}

func (i Instant) SameOrAfter(o Instant) bool {
	return i.Same(o) || i.After(o)
}

// FormatHHMM renders "15:04", or "" for an invalid instant.
func FormatHHMM(i Instant) string {
	if !i.valid {
		return ""
	}
	return i.t.Format("15:04")
}

func (i Instant) String() string {
	if !i.valid {
		return "invalid"
	}
	return FormatHHMM(i)
}

// Add shifts the instant by d, wrapping around the reference day.
func (i Instant) Add(d time.Duration) Instant {
	if !i.valid {
		return i
	}
	return FromTime(i.t.Add(d))
}

func (i Instant) encode() string {
	if !i.valid {
		return ""
	}
	return i.t.Format(time.RFC3339)
}

func (i Instant) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.encode())
}

// UnmarshalJSON accepts any string; garbage becomes an invalid instant so the
// validator can report it. null and non-string values are invalid as well.
func (i *Instant) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*i = Instant{}
		return nil
	}
	*i = Parse(s)
	return nil
}

func (i Instant) MarshalYAML() (interface{}, error) {
	return i.encode(), nil
}

func (i *Instant) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		*i = Instant{}
		return nil
	}
	*i = Parse(value.Value)
	return nil
}
