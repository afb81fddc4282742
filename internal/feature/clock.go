package feature

import (
	"time"

	"github.com/sells-group/leadscore/internal/model"
)

// Clock supplies "now". Label windows and run dates are anchored to it.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// TodayUTC returns the clock's current UTC calendar date at midnight.
func (c Clock) TodayUTC() time.Time {
	return c().UTC().Truncate(24 * time.Hour)
}

// RunDate returns the clock's current date in its own location, formatted
// as YYYY-MM-DD.
func (c Clock) RunDate() string {
	return c().Format(model.DateLayout)
}
