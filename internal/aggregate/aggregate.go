package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/lox/hourlyagg/internal/models"
)

// TimeLayout is the Open-Meteo hourly timestamp format. Timestamps carry no
// offset and are taken to be in the requested time zone already.
const TimeLayout = "2006-01-02T15:04"

var errTimestampLength = errors.New("timestamp is not YYYY-MM-DDTHH:MM")

// Aggregate sums temperature, rain, showers and visibility per calendar date.
// Days are returned in the order their first hour appears in the input.
// Any malformed timestamp or unequal series length fails the whole call.
func Aggregate(series models.HourlySeries) ([]models.DailyAggregate, error) {
	if err := checkLengths(series); err != nil {
		return nil, err
	}

	days := make([]models.DailyAggregate, 0)
	index := make(map[models.Date]int)

	for i, ts := range series.Time {
		// time.Parse accepts single-digit hours for "15".
		if len(ts) != len(TimeLayout) {
			return nil, &ParseError{Field: KeyTime, Index: i, Value: ts, Err: errTimestampLength}
		}
		t, err := time.Parse(TimeLayout, ts)
		if err != nil {
			return nil, &ParseError{Field: KeyTime, Index: i, Value: ts, Err: err}
		}
		date := models.DateOf(t)

		pos, ok := index[date]
		if !ok {
			pos = len(days)
			index[date] = pos
			days = append(days, models.DailyAggregate{Date: date})
		}

		day := &days[pos]
		day.Temperature += series.Temperature[i]
		day.Rain += series.Rain[i]
		day.Showers += series.Showers[i]
		day.Visibility += series.Visibility[i]
		day.Hours++
	}

	return days, nil
}

func checkLengths(series models.HourlySeries) error {
	n := len(series.Time)
	values := []struct {
		field string
		len   int
	}{
		{KeyTemperature, len(series.Temperature)},
		{KeyRain, len(series.Rain)},
		{KeyShowers, len(series.Showers)},
		{KeyVisibility, len(series.Visibility)},
	}
	for _, v := range values {
		if v.len != n {
			return &ParseError{
				Field: v.field,
				Index: -1,
				Err:   fmt.Errorf("%w: %d values for %d timestamps", ErrLengthMismatch, v.len, n),
			}
		}
	}
	return nil
}
