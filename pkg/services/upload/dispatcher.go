// Package upload turns one service's record batch into a sequence of chunked
// sink calls and aggregates their partial successes and failures.
package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/services/chunk"
)

// Sink is the ingestion endpoint a chunk is delivered to.
type Sink interface {
	UploadChunk(ctx context.Context, records []domain.BillingRecord, operation domain.UploadOperation) (map[string]any, error)
}

// interChunkPause spaces out sequential chunk uploads of one batch so the
// sink is not hammered back to back.
const interChunkPause = 500 * time.Millisecond

type Dispatcher struct {
	sink      Sink
	artifacts *ArtifactWriter
	dryRun    bool
	maxSize   int
	pause     time.Duration
}

type Options struct {
	// DryRun replaces uploads with one inspection artifact per chunk.
	DryRun bool
	// ArtifactDir is where dry-run artifacts land. Defaults to "dry_run".
	ArtifactDir string
	// MaxChunkSize overrides the safe payload ceiling, for tests.
	MaxChunkSize int
	// Pause overrides the inter-chunk delay, for tests.
	Pause time.Duration
}

func NewDispatcher(sink Sink, opts Options) *Dispatcher {
	d := &Dispatcher{
		sink:    sink,
		dryRun:  opts.DryRun,
		maxSize: opts.MaxChunkSize,
		pause:   opts.Pause,
	}
	if d.maxSize <= 0 {
		d.maxSize = chunk.SafePayloadSize
	}
	if d.pause <= 0 {
		d.pause = interChunkPause
	}
	if opts.DryRun {
		dir := opts.ArtifactDir
		if dir == "" {
			dir = "dry_run"
		}
		d.artifacts = NewArtifactWriter(dir)
	}
	return d
}

// Result summarizes one batch upload. Per-chunk failures are collected here
// rather than returned as errors so sibling chunks always get their attempt.
type Result struct {
	Service          string
	Date             string
	Operation        domain.UploadOperation
	DryRun           bool
	Records          int
	SizeBytes        int
	TotalChunks      int
	SuccessfulChunks int
	FailedChunks     int
	Errors           []string
	Artifacts        []string
}

// Failed reports whether any chunk of the batch was lost.
func (r *Result) Failed() bool {
	return r.FailedChunks > 0
}

// Upload delivers records under a single operation, chunking when the batch
// exceeds the payload ceiling. Every chunk of the batch carries the same
// operation; chunking never changes upload semantics. An empty batch is a
// no-op that reports zero chunks. The returned error covers only batch-level
// problems (bad operation, serialization); chunk delivery failures are
// reported through the Result.
func (d *Dispatcher) Upload(
	ctx context.Context,
	records []domain.BillingRecord,
	operation domain.UploadOperation,
	service, date string,
) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	result := &Result{
		Service:   service,
		Date:      date,
		Operation: operation,
		DryRun:    d.dryRun,
		Records:   len(records),
	}

	if len(records) == 0 {
		logger.Info().Str("service", service).Msg("nothing to upload")
		return result, nil
	}

	opString, err := operation.WireString()
	if err != nil {
		return nil, err
	}

	estimated, totalSize, err := chunk.Estimate(records, opString, d.maxSize)
	if err != nil {
		return nil, err
	}
	result.SizeBytes = totalSize

	var chunks [][]domain.BillingRecord
	if totalSize > d.maxSize {
		logger.Info().
			Str("service", service).
			Int("records", len(records)).
			Float64("size_mb", float64(totalSize)/1024/1024).
			Int("estimated_chunks", estimated).
			Msg("batch exceeds payload ceiling, splitting")
		chunks, err = chunk.Split(records, opString, d.maxSize)
		if err != nil {
			return nil, err
		}
	} else {
		chunks = [][]domain.BillingRecord{records}
	}
	result.TotalChunks = len(chunks)

	if d.dryRun {
		return result, d.writeArtifacts(ctx, result, chunks, opString)
	}

	for i, records := range chunks {
		if _, err := d.sink.UploadChunk(ctx, records, operation); err != nil {
			result.FailedChunks++
			result.Errors = append(result.Errors, fmt.Sprintf("chunk %d/%d: %v", i+1, len(chunks), err))
			logger.Error().
				Err(err).
				Str("service", service).
				Int("chunk", i+1).
				Int("chunks", len(chunks)).
				Msg("chunk upload failed")
			// Remaining chunks still get their attempt.
		} else {
			result.SuccessfulChunks++
			logger.Debug().
				Str("service", service).
				Int("chunk", i+1).
				Int("chunks", len(chunks)).
				Int("records", len(records)).
				Msg("chunk uploaded")
		}

		if i < len(chunks)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(d.pause):
			}
		}
	}

	if result.Failed() {
		logger.Warn().
			Str("service", service).
			Int("failed", result.FailedChunks).
			Int("total", result.TotalChunks).
			Msg("batch uploaded with failed chunks")
	} else {
		logger.Info().
			Str("service", service).
			Int("records", result.Records).
			Int("chunks", result.TotalChunks).
			Str("operation", opString).
			Msg("batch uploaded")
	}
	return result, nil
}

func (d *Dispatcher) writeArtifacts(
	ctx context.Context,
	result *Result,
	chunks [][]domain.BillingRecord,
	opString string,
) error {
	logger := zerolog.Ctx(ctx)
	for i, records := range chunks {
		name := result.Service
		if len(chunks) > 1 {
			name = fmt.Sprintf("%s_chunk%d", result.Service, i+1)
		}
		path, err := d.artifacts.Write(records, opString, name, result.Date)
		if err != nil {
			return fmt.Errorf("failed to write dry-run artifact: %w", err)
		}
		result.Artifacts = append(result.Artifacts, path)
		result.SuccessfulChunks++
	}
	logger.Info().
		Str("service", result.Service).
		Int("records", result.Records).
		Int("chunks", result.TotalChunks).
		Float64("size_mb", float64(result.SizeBytes)/1024/1024).
		Msg("dry run: would upload")
	return nil
}
