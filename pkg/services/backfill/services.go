package backfill

import (
	"context"
	"time"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/store/sumologic"
)

// Service is one usage extractor in the day pipeline. Current covers the
// rolling window used by standard mode; ForDate covers an explicit backfill
// window. Both must be idempotent so resumed days can re-run them.
type Service struct {
	Name    string
	Current func(ctx context.Context) ([]domain.BillingRecord, error)
	ForDate func(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error)
}

// ServiceNames is the fixed pipeline order. The first service's upload
// clears the day (replace_drop); the rest merge additively (sum).
var ServiceNames = []string{
	"continuous logs",
	"frequent logs",
	"infrequent logs",
	"infrequent log scans",
	"metrics",
	"traces",
	"storage",
}

// DefaultServices wires the seven Sumo Logic extractors in pipeline order.
func DefaultServices(sumo *sumologic.Client) []Service {
	return []Service{
		{Name: "continuous logs", Current: sumo.ContinuousLogsCBF, ForDate: sumo.ContinuousLogsCBFForDate},
		{Name: "frequent logs", Current: sumo.FrequentLogsCBF, ForDate: sumo.FrequentLogsCBFForDate},
		{Name: "infrequent logs", Current: sumo.InfrequentLogsCBF, ForDate: sumo.InfrequentLogsCBFForDate},
		{Name: "infrequent log scans", Current: sumo.InfrequentLogScansCBF, ForDate: sumo.InfrequentLogScansCBFForDate},
		{Name: "metrics", Current: sumo.MetricsCBF, ForDate: sumo.MetricsCBFForDate},
		{Name: "traces", Current: sumo.TracesCBF, ForDate: sumo.TracesCBFForDate},
		{Name: "storage", Current: sumo.StorageCBF, ForDate: sumo.StorageCBFForDate},
	}
}
