// Package parquetfile writes daily aggregates to a Parquet table and reads them back.
package parquetfile

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lox/hourlyagg/internal/models"
)

// DefaultFileName is where the CLI writes output when no path is given.
const DefaultFileName = "aggregated_hourly_data.parquet"

// Row is the on-disk schema. Date is the table's key column.
type Row struct {
	Date        int32   `parquet:"name=Date,type=INT32,convertedtype=DATE"`
	Temperature float64 `parquet:"name=Temperature,type=DOUBLE"`
	Rain        float64 `parquet:"name=Rain,type=DOUBLE"`
	Showers     float64 `parquet:"name=Showers,type=DOUBLE"`
	Visibility  float64 `parquet:"name=Visibility,type=DOUBLE"`
}

func rowFromAggregate(a models.DailyAggregate) Row {
	return Row{
		Date:        a.Date.DaysSinceEpoch(),
		Temperature: a.Temperature,
		Rain:        a.Rain,
		Showers:     a.Showers,
		Visibility:  a.Visibility,
	}
}

type WriteOptions struct {
	// Compression is SNAPPY, GZIP or NONE (case-insensitive). Empty means SNAPPY.
	Compression string
}

// WriteError wraps any failure to produce the output file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write parquet %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Write serialises aggs to path, replacing any existing file. Rows keep the
// order of aggs.
func Write(path string, aggs []models.DailyAggregate, opts WriteOptions) error {
	codec, err := compressionCodec(opts.Compression)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	var buf bytes.Buffer
	if err := encode(&buf, aggs, codec); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	if err := replaceFile(path, buf.Bytes()); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	log.Printf("parquet: wrote %d days to %s", len(aggs), path)
	return nil
}

func encode(buf *bytes.Buffer, aggs []models.DailyAggregate, codec parquet.CompressionCodec) (result error) {
	rowGroup := int64(len(aggs))
	if rowGroup == 0 {
		rowGroup = 1
	}

	pw, err := writer.NewParquetWriterFromWriter(buf, new(Row), rowGroup)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	pw.CompressionType = codec

	var errs error
	for _, a := range aggs {
		if err := pw.Write(rowFromAggregate(a)); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("write row %s: %w", a.Date, err))
			break
		}
	}

	// WriteStop panics on some malformed schemas instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			result = multierror.Append(errs, fmt.Errorf("finalise: panic: %v", r))
		}
	}()
	if err := pw.WriteStop(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("finalise: %w", err))
	}
	return errs
}

// replaceFile writes data next to path and renames it over the target so a
// failed write never leaves a truncated table behind.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	var errs error
	if err := tmp.Chmod(0o644); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("chmod temp file: %w", err))
	}
	if _, err := tmp.Write(data); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close temp file: %w", err))
	}
	if errs == nil {
		if err := os.Rename(tmp.Name(), path); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("rename: %w", err))
		}
	}
	if errs != nil {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			errs = multierror.Append(errs, fmt.Errorf("remove temp file: %w", err))
		}
	}
	return errs
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", name)
	}
}
