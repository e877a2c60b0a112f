package backfill

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/services/upload"
)

// Uploader delivers one service's batch. Satisfied by *upload.Dispatcher.
type Uploader interface {
	Upload(
		ctx context.Context,
		records []domain.BillingRecord,
		operation domain.UploadOperation,
		service, date string,
	) (*upload.Result, error)
}

// DayProcessor runs the fixed service pipeline for one calendar day. One
// service failing never blocks the rest; the outcome is a DayStats with
// per-service counts.
type DayProcessor struct {
	services   []Service
	dispatcher Uploader
}

func NewDayProcessor(services []Service, dispatcher Uploader) *DayProcessor {
	return &DayProcessor{services: services, dispatcher: dispatcher}
}

// ProcessDate replays one historical day using the date-window extractors.
func (p *DayProcessor) ProcessDate(ctx context.Context, day time.Time) *domain.DayStats {
	from, to := DayWindow(day)
	date := day.Format(dateLayout)
	return p.process(ctx, date, func(ctx context.Context, svc Service) ([]domain.BillingRecord, error) {
		return svc.ForDate(ctx, from, to)
	})
}

// ProcessCurrent covers the rolling window of standard mode. The date label
// is the previous UTC day, which is what the window reports on.
func (p *DayProcessor) ProcessCurrent(ctx context.Context) *domain.DayStats {
	date := time.Now().UTC().AddDate(0, 0, -1).Format(dateLayout)
	return p.process(ctx, date, func(ctx context.Context, svc Service) ([]domain.BillingRecord, error) {
		return svc.Current(ctx)
	})
}

func (p *DayProcessor) process(
	ctx context.Context,
	date string,
	fetch func(ctx context.Context, svc Service) ([]domain.BillingRecord, error),
) *domain.DayStats {
	logger := zerolog.Ctx(ctx)
	stats := domain.NewDayStats(date)

	for i, svc := range p.services {
		svcLogger := logger.With().Str("service", svc.Name).Str("date", date).Logger()
		svcCtx := svcLogger.WithContext(ctx)
		svcLogger.Info().Msg("processing service")

		// Exactly the first service in pipeline order is authoritative for
		// the day; every later one merges additively.
		operation := domain.OpSum
		if i == 0 {
			operation = domain.OpReplaceDrop
		}

		records, err := fetch(svcCtx, svc)
		if err != nil {
			svcLogger.Error().Err(err).Msg("service extraction failed")
			markFailed(stats, svc.Name)
			continue
		}

		if len(records) == 0 {
			// No data is a success, not a failure.
			svcLogger.Info().Msg("no data for service")
			markSucceeded(stats, svc.Name, 0)
			continue
		}

		result, err := p.dispatcher.Upload(svcCtx, records, operation, svc.Name, date)
		if err != nil {
			svcLogger.Error().Err(err).Msg("service upload failed")
			markFailed(stats, svc.Name)
			continue
		}
		if result.Failed() {
			// A batch with lost chunks counts as a failed service so the day
			// stays uncommitted and the resume retries it in full.
			svcLogger.Warn().
				Int("failed_chunks", result.FailedChunks).
				Int("total_chunks", result.TotalChunks).
				Strs("errors", result.Errors).
				Msg("service upload lost chunks")
			markFailed(stats, svc.Name)
			continue
		}

		markSucceeded(stats, svc.Name, len(records))
	}

	return stats
}

func markSucceeded(stats *domain.DayStats, service string, records int) {
	stats.Records[service] = records
	stats.SuccessfulServices++
	stats.Succeeded = append(stats.Succeeded, service)
}

func markFailed(stats *domain.DayStats, service string) {
	stats.FailedServices++
	stats.Failed = append(stats.Failed, service)
}
