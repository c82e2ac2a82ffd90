package aggregate

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/lox/hourlyagg/internal/models"
)

// Keys of the Open-Meteo hourly block that are aggregated.
const (
	KeyHourly      = "hourly"
	KeyTime        = "time"
	KeyTemperature = "temperature_2m"
	KeyRain        = "rain"
	KeyShowers     = "showers"
	KeyVisibility  = "visibility"
)

// Pointers let a JSON null be told apart from 0.
type rawHourly struct {
	Time        []string   `mapstructure:"time"`
	Temperature []*float64 `mapstructure:"temperature_2m"`
	Rain        []*float64 `mapstructure:"rain"`
	Showers     []*float64 `mapstructure:"showers"`
	Visibility  []*float64 `mapstructure:"visibility"`
}

// DecodeHourly extracts the hourly series from a decoded API response.
// A missing or null "hourly" key yields an empty series.
func DecodeHourly(payload map[string]any) (models.HourlySeries, error) {
	v, ok := payload[KeyHourly]
	if !ok || v == nil {
		return models.HourlySeries{}, nil
	}

	block, ok := v.(map[string]any)
	if !ok {
		return models.HourlySeries{}, &ParseError{
			Field: KeyHourly,
			Index: -1,
			Err:   fmt.Errorf("expected object, got %T", v),
		}
	}

	var raw rawHourly
	if err := mapstructure.Decode(block, &raw); err != nil {
		return models.HourlySeries{}, &ParseError{Field: KeyHourly, Index: -1, Err: err}
	}

	series := models.HourlySeries{Time: raw.Time}
	var err error
	if series.Temperature, err = derefSeries(KeyTemperature, raw.Temperature); err != nil {
		return models.HourlySeries{}, err
	}
	if series.Rain, err = derefSeries(KeyRain, raw.Rain); err != nil {
		return models.HourlySeries{}, err
	}
	if series.Showers, err = derefSeries(KeyShowers, raw.Showers); err != nil {
		return models.HourlySeries{}, err
	}
	if series.Visibility, err = derefSeries(KeyVisibility, raw.Visibility); err != nil {
		return models.HourlySeries{}, err
	}
	return series, nil
}

var errNullValue = errors.New("null value")

func derefSeries(field string, in []*float64) ([]float64, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		if v == nil {
			return nil, &ParseError{Field: field, Index: i, Err: errNullValue}
		}
		out[i] = *v
	}
	return out, nil
}
