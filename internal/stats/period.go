package stats

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/1mb-dev/listenlog/internal/ledger"
)

// ErrUnknownPeriod is returned for a period name outside Periods.
var ErrUnknownPeriod = errors.New("unknown period")

// Period names accepted by Resolve.
const (
	Today     = "today"
	Yesterday = "yesterday"
	Week      = "week"
	LastWeek  = "lastweek"
	Month     = "month"
	LastMonth = "lastmonth"
	Year      = "year"
	All       = "all"
)

// Periods lists every valid period name.
var Periods = []string{Today, Yesterday, Week, LastWeek, Month, LastMonth, Year, All}

// Range is a resolved period: [From, To) in the configured location, and the
// breakdown granularity that suits it. From and To are zero for All.
type Range struct {
	Period string
	From   time.Time
	To     time.Time
	Bucket ledger.Bucket
}

// Resolve maps a period name to its time range relative to now in loc.
// Weeks start on Monday.
func Resolve(period string, now time.Time, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	p := strings.ToLower(strings.TrimSpace(period))
	r := Range{Period: p}

	switch p {
	case Today:
		r.From, r.To, r.Bucket = midnight, midnight.AddDate(0, 0, 1), ledger.BucketHour
	case Yesterday:
		r.From, r.To, r.Bucket = midnight.AddDate(0, 0, -1), midnight, ledger.BucketHour
	case Week, LastWeek:
		monday := midnight.AddDate(0, 0, -((int(now.Weekday()) + 6) % 7))
		if p == LastWeek {
			monday = monday.AddDate(0, 0, -7)
		}
		r.From, r.To, r.Bucket = monday, monday.AddDate(0, 0, 7), ledger.BucketWeekday
	case Month, LastMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		if p == LastMonth {
			first = first.AddDate(0, -1, 0)
		}
		r.From, r.To, r.Bucket = first, first.AddDate(0, 1, 0), ledger.BucketDay
	case Year:
		jan := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
		r.From, r.To, r.Bucket = jan, jan.AddDate(1, 0, 0), ledger.BucketMonth
	case All:
		r.Bucket = ledger.BucketMonth
	default:
		return Range{}, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownPeriod, period, strings.Join(Periods, ", "))
	}
	return r, nil
}

// Label is the human name of the period used in summaries.
func (r Range) Label() string {
	switch r.Period {
	case Today:
		return "today"
	case Yesterday:
		return "yesterday"
	case Week:
		return "this week"
	case LastWeek:
		return "last week"
	case Month:
		return "this month"
	case LastMonth:
		return "last month"
	case Year:
		return "this year"
	default:
		return "in total"
	}
}
