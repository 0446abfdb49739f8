package model

import (
	"fmt"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day in UTC. The zero value is the zero day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates an instant to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses a day in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("date must be in YYYY-MM-DD format: %w", err)
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String renders the day in YYYY-MM-DD format.
func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Before reports whether d falls before o.
func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

// Next returns the following day.
func (d Date) Next() Date {
	return DateOf(d.Time().AddDate(0, 0, 1))
}

// DateRange is an inclusive span of days.
type DateRange struct {
	Start Date
	End   Date
}

// Validate checks that the range is well formed.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range must have both start and end")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range %s ends before it starts", r)
	}
	return nil
}

// Days expands the range into its individual days, ascending.
func (r DateRange) Days() []Date {
	var days []Date
	for d := r.Start; !r.End.Before(d); d = d.Next() {
		days = append(days, d)
	}
	return days
}

// Contains reports whether the day falls inside the range.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !r.End.Before(d)
}

// String renders the range for logs and keys.
func (r DateRange) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + ".." + r.End.String()
}

// SortDates sorts days ascending and drops duplicates in place.
func SortDates(days []Date) []Date {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := days[:0]
	for i, d := range days {
		if i == 0 || d != days[i-1] {
			out = append(out, d)
		}
	}
	return out
}

// ContiguousRanges splits a sorted, de-duplicated day list into its maximal
// runs of consecutive days.
func ContiguousRanges(days []Date) []DateRange {
	var ranges []DateRange
	for _, d := range days {
		if n := len(ranges); n > 0 && ranges[n-1].End.Next() == d {
			ranges[n-1].End = d
			continue
		}
		ranges = append(ranges, DateRange{Start: d, End: d})
	}
	return ranges
}

// DiffDates returns the days of a that are not in b, preserving order.
// Both inputs must be sorted ascending.
func DiffDates(a, b []Date) []Date {
	index := make(map[Date]struct{}, len(b))
	for _, d := range b {
		index[d] = struct{}{}
	}
	var out []Date
	for _, d := range a {
		if _, ok := index[d]; !ok {
			out = append(out, d)
		}
	}
	return out
}

// IntersectDates returns the days present in both inputs, preserving the
// order of a. Both inputs must be sorted ascending.
func IntersectDates(a, b []Date) []Date {
	index := make(map[Date]struct{}, len(b))
	for _, d := range b {
		index[d] = struct{}{}
	}
	var out []Date
	for _, d := range a {
		if _, ok := index[d]; ok {
			out = append(out, d)
		}
	}
	return out
}
