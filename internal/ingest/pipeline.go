package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/lox/hourlyagg/internal/aggregate"
	"github.com/lox/hourlyagg/internal/metrics"
	"github.com/lox/hourlyagg/internal/models"
	"github.com/lox/hourlyagg/internal/parquetfile"
	"github.com/lox/hourlyagg/internal/store"
)

type PipelineOptions struct {
	OutputPath  string
	Compression string
	// PayloadRetentionDays prunes archived payloads older than this after a
	// successful run. Zero keeps everything.
	PayloadRetentionDays int
}

// Result summarises a successful pipeline run.
type Result struct {
	OutputPath string
	Hours      int
	Days       []models.DailyAggregate
	Fetch      *FetchResult
	RunID      int64
	// PayloadID is the archived response, or 0 if it was not stored.
	PayloadID int64
}

// Pipeline fetches one hourly payload, aggregates it by date and writes the
// daily rows to Parquet. The store is optional.
type Pipeline struct {
	fetcher *Fetcher
	store   *store.Store
	opts    PipelineOptions
}

func NewPipeline(fetcher *Fetcher, st *store.Store, opts PipelineOptions) *Pipeline {
	if opts.OutputPath == "" {
		opts.OutputPath = parquetfile.DefaultFileName
	}
	return &Pipeline{fetcher: fetcher, store: st, opts: opts}
}

func (p *Pipeline) Run(ctx context.Context, sourceURL string) (*Result, error) {
	run := p.startRun(sourceURL)

	res, err := p.run(ctx, sourceURL, run)

	if run != nil {
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := p.store.CompleteIngestRun(run); cerr != nil {
			log.Printf("pipeline: complete ingest run %d: %v", run.ID, cerr)
		}
	}

	if err != nil {
		metrics.PipelineRuns.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.PipelineRuns.WithLabelValues("success").Inc()
	if run != nil {
		res.RunID = run.ID
		p.prunePayloads()
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, sourceURL string, run *store.IngestRun) (*Result, error) {
	payload, body, fetchResult, err := p.fetcher.Fetch(ctx, sourceURL)
	if run != nil && fetchResult != nil {
		run.HTTPStatus = sql.NullInt64{Int64: int64(fetchResult.HTTPStatus), Valid: fetchResult.HTTPStatus > 0}
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(fetchResult.ResponseSize), Valid: fetchResult.ResponseSize > 0}
		run.Attempts = sql.NullInt64{Int64: int64(fetchResult.Attempts), Valid: fetchResult.Attempts > 0}
	}
	if err != nil {
		return nil, err
	}

	payloadID := p.archivePayload(run, sourceURL, body)

	series, err := aggregate.DecodeHourly(payload)
	if err != nil {
		return nil, fmt.Errorf("decode hourly: %w", err)
	}

	days, err := aggregate.Aggregate(series)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	hours := series.Len()
	metrics.HoursAggregated.Add(float64(hours))
	log.Printf("pipeline: aggregated %d hours into %d days", hours, len(days))

	if run != nil {
		run.HoursParsed = sql.NullInt64{Int64: int64(hours), Valid: true}
		run.DaysAggregated = sql.NullInt64{Int64: int64(len(days)), Valid: true}
	}

	if err := parquetfile.Write(p.opts.OutputPath, days, parquetfile.WriteOptions{Compression: p.opts.Compression}); err != nil {
		return nil, err
	}
	metrics.DaysWritten.Add(float64(len(days)))

	if run != nil {
		run.OutputPath = sql.NullString{String: p.opts.OutputPath, Valid: true}
		if err := p.store.UpsertDailyAggregates(run.ID, sourceURL, days); err != nil {
			log.Printf("pipeline: store daily aggregates: %v", err)
		}
	}

	return &Result{
		OutputPath: p.opts.OutputPath,
		Hours:      hours,
		Days:       days,
		Fetch:      fetchResult,
		PayloadID:  payloadID,
	}, nil
}

func (p *Pipeline) startRun(sourceURL string) *store.IngestRun {
	if p.store == nil {
		return nil
	}
	run, err := p.store.StartIngestRun(sourceURL)
	if err != nil {
		log.Printf("pipeline: start ingest run: %v", err)
		return nil
	}
	return run
}

func (p *Pipeline) archivePayload(run *store.IngestRun, sourceURL string, body []byte) int64 {
	if run == nil || len(body) == 0 {
		return 0
	}
	id, err := p.store.StoreRawPayload(run.ID, sourceURL, body)
	if err != nil {
		log.Printf("pipeline: store raw payload: %v", err)
		return 0
	}
	if id == 0 {
		log.Printf("pipeline: payload unchanged since last archive")
	}
	return id
}

func (p *Pipeline) prunePayloads() {
	if p.opts.PayloadRetentionDays <= 0 {
		return
	}
	n, err := p.store.CleanupOldRawPayloads(p.opts.PayloadRetentionDays)
	if err != nil {
		log.Printf("pipeline: prune raw payloads: %v", err)
		return
	}
	if n > 0 {
		log.Printf("pipeline: pruned %d raw payloads older than %d days", n, p.opts.PayloadRetentionDays)
	}
}
