package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/lox/hourlyagg/internal/ingest"
	"github.com/lox/hourlyagg/internal/metrics"
	"github.com/lox/hourlyagg/internal/parquetfile"
	"github.com/lox/hourlyagg/internal/store"
)

type CLI struct {
	Run     RunCmd     `cmd:"" default:"withargs" help:"Fetch hourly data, aggregate it by date and write a Parquet file."`
	Inspect InspectCmd `cmd:"" help:"Print the rows of a Parquet output file."`
	Runs    RunsCmd    `cmd:"" help:"List recent ingest runs from the audit database."`
	Payload PayloadCmd `cmd:"" help:"Print an archived raw response from the audit database."`
}

type RunCmd struct {
	APIURL               string        `arg:"" name:"api_url" help:"URL returning hourly weather JSON (http, https or ftp)."`
	Output               string        `short:"o" env:"HOURLYAGG_OUTPUT" default:"aggregated_hourly_data.parquet" help:"Output Parquet path."`
	Compression          string        `env:"HOURLYAGG_COMPRESSION" default:"snappy" help:"Parquet compression codec (snappy, gzip or none)."`
	Timeout              time.Duration `env:"HOURLYAGG_TIMEOUT" default:"30s" help:"Timeout for a single request."`
	MaxElapsed           time.Duration `env:"HOURLYAGG_MAX_ELAPSED" default:"2m" help:"Retry budget for rate-limited responses (0 disables retry)."`
	DB                   string        `env:"HOURLYAGG_DB" help:"SQLite audit database path. Empty disables the store."`
	PayloadRetentionDays int           `env:"HOURLYAGG_PAYLOAD_RETENTION_DAYS" default:"0" help:"Prune archived responses older than this many days after a successful run (0 keeps all)."`
	MetricsFile          string        `env:"HOURLYAGG_METRICS_FILE" help:"Write Prometheus metrics to this textfile. Empty disables."`
}

func (c *RunCmd) Run(ctx context.Context, out io.Writer) error {
	if c.MetricsFile != "" {
		defer func() {
			if err := metrics.WriteTextfile(c.MetricsFile); err != nil {
				log.Printf("metrics: write %s: %v", c.MetricsFile, err)
			}
		}()
	}

	var st *store.Store
	if c.DB != "" {
		var err error
		st, err = store.Open(c.DB)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	fetcher := ingest.NewFetcher(ingest.FetcherOptions{Timeout: c.Timeout, MaxElapsed: c.MaxElapsed})
	pipeline := ingest.NewPipeline(fetcher, st, ingest.PipelineOptions{
		OutputPath:           c.Output,
		Compression:          c.Compression,
		PayloadRetentionDays: c.PayloadRetentionDays,
	})

	res, err := pipeline.Run(ctx, c.APIURL)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Aggregated data saved as '%s'.\n", res.OutputPath)
	return nil
}

type InspectCmd struct {
	File string `arg:"" type:"existingfile" help:"Parquet file to read."`
}

func (c *InspectCmd) Run(out io.Writer) error {
	rows, err := parquetfile.Read(c.File)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Date\tTemperature\tRain\tShowers\tVisibility")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%g\t%g\t%g\t%g\n", r.Date, r.Temperature, r.Rain, r.Showers, r.Visibility)
	}
	return w.Flush()
}

type RunsCmd struct {
	DB    string `required:"" env:"HOURLYAGG_DB" help:"SQLite audit database path."`
	Limit int    `default:"20" help:"Maximum number of runs to list."`
}

func (c *RunsCmd) Run(out io.Writer) error {
	st, err := store.Open(c.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	version, err := st.MigrationVersion()
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	runs, err := st.GetRecentIngestRuns(c.Limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	fmt.Fprintf(out, "%s (schema version %d)\n", c.DB, version)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tHOURS\tDAYS\tRESULT\tSOURCE")
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed"
			if r.ErrorMessage.Valid {
				result = "failed: " + r.ErrorMessage.String
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime),
			nullInt(r.HTTPStatus), nullInt(r.HoursParsed), nullInt(r.DaysAggregated),
			result, r.SourceURL)
	}
	return w.Flush()
}

func nullInt(v sql.NullInt64) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprint(v.Int64)
}

type PayloadCmd struct {
	ID int64  `arg:"" help:"Archived payload ID."`
	DB string `required:"" env:"HOURLYAGG_DB" help:"SQLite audit database path."`
}

func (c *PayloadCmd) Run(out io.Writer) error {
	st, err := store.Open(c.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	p, err := st.GetRawPayload(c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("payload %d not found", c.ID)
	}
	if err != nil {
		return err
	}

	log.Printf("payload %d: %s fetched %s", p.ID, p.SourceURL, p.FetchedAt.Local().Format(time.DateTime))
	_, err = out.Write(p.Body)
	return err
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("hourlyagg"),
		kong.Description("Aggregate hourly weather data into daily Parquet rows."),
		kong.UsageOnError(),
		kong.Writers(stdout, os.Stderr),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.BindTo(stdout, (*io.Writer)(nil)),
	)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run()
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		log.Fatalf("%v", err)
	}
}
