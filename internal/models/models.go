package models

import (
	"fmt"
	"time"
)

// Date is a calendar date with no time zone or time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

var unixEpoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

const secondsPerDay = 24 * 60 * 60

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// DateFromDays is the inverse of DaysSinceEpoch.
func DateFromDays(days int32) Date {
	return DateOf(unixEpoch.AddDate(0, 0, int(days)))
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// DaysSinceEpoch returns the number of days since 1970-01-01, the Parquet DATE encoding.
func (d Date) DaysSinceEpoch() int32 {
	return int32(d.Time().Unix() / secondsPerDay)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// HourlySeries holds the parallel arrays of an Open-Meteo "hourly" block.
// The i-th entry of each value series belongs to Time[i].
type HourlySeries struct {
	Time        []string
	Temperature []float64
	Rain        []float64
	Showers     []float64
	Visibility  []float64
}

func (h HourlySeries) Len() int {
	return len(h.Time)
}

type DailyAggregate struct {
	Date        Date
	Temperature float64
	Rain        float64
	Showers     float64
	Visibility  float64
	Hours       int // hourly records merged into this day
}
