package vidquota

import "time"

// Clock supplies the current time. Usage windows and membership expiry are
// both derived from it, so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// UsageDayLayout is the layout of usage-window keys.
const UsageDayLayout = "2006-01-02"

// UsageDay returns the calendar day of t in loc, formatted as YYYY-MM-DD.
// A nil loc means UTC.
func UsageDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(UsageDayLayout)
}
