package parquetfile

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/lox/hourlyagg/internal/models"
)

// Read loads every row of a table produced by Write, in file order.
// Hours is not stored in the table and is left zero.
func Read(path string) ([]models.DailyAggregate, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Row), 1)
	if err != nil {
		return nil, fmt.Errorf("create reader: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]Row, n)
	if n > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
	}

	aggs := make([]models.DailyAggregate, 0, len(rows))
	for _, r := range rows {
		aggs = append(aggs, models.DailyAggregate{
			Date:        models.DateFromDays(r.Date),
			Temperature: r.Temperature,
			Rain:        r.Rain,
			Showers:     r.Showers,
			Visibility:  r.Visibility,
		})
	}
	return aggs, nil
}
