package sumologic

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/models/domain"
)

// Row-level conversion failures are logged and skipped, never fatal: one
// malformed aggregation row must not sink a whole service's batch.

var storageDateFormats = []string{"2006-01-02", "01/02/06", "01/02/2006", "2006/01/02"}

func (c *Client) convertLogRecords(logger *zerolog.Logger, records []searchRecord) []domain.BillingRecord {
	results := make([]domain.BillingRecord, 0, len(records))
	for _, record := range records {
		usageStart, credits, err := parseUsageRow(record.Map)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping log usage record")
			continue
		}
		tier := record.Map["datatier"]
		results = append(results, domain.BillingRecord{
			UsageStart:  usageStart,
			ResourceID:  sourceCategoryID(record.Map["sourcecategory"]),
			UsageFamily: tier,
			LineItem:    "Usage",
			Description: fmt.Sprintf("%s logs ingested by Source Category", tier),
			Service:     fmt.Sprintf("Logs %s ingest", strings.ToLower(tier)),
			Account:     c.cfg.SumoOrgID,
			Region:      c.cfg.SumoDeployment,
			UsageUnits:  "credits",
			Operation:   "ingest",
			UsageAmount: formatCredits(credits),
			Cost:        formatCredits(credits * c.cfg.CostPerCredit),
		})
	}
	return results
}

func (c *Client) convertScanRecords(logger *zerolog.Logger, records []searchRecord) []domain.BillingRecord {
	results := make([]domain.BillingRecord, 0, len(records))
	for _, record := range records {
		usageStart, credits, err := parseUsageRow(record.Map)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping scan usage record")
			continue
		}
		results = append(results, domain.BillingRecord{
			UsageStart:  usageStart,
			ResourceID:  "username/" + strings.ToLower(record.Map["user_name"]),
			UsageFamily: "infrequent",
			LineItem:    "Usage",
			Description: "Infrequent logs scanned by user",
			Service:     "Logs infrequent scan",
			Account:     c.cfg.SumoOrgID,
			Region:      c.cfg.SumoDeployment,
			UsageUnits:  "credits",
			Operation:   "scan",
			UsageAmount: formatCredits(credits),
			Cost:        formatCredits(credits * c.cfg.CostPerCredit),
		})
	}
	return results
}

func (c *Client) convertTraceRecords(logger *zerolog.Logger, records []searchRecord) []domain.BillingRecord {
	results := make([]domain.BillingRecord, 0, len(records))
	for _, record := range records {
		usageStart, credits, err := parseUsageRow(record.Map)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping trace usage record")
			continue
		}
		results = append(results, domain.BillingRecord{
			UsageStart:  usageStart,
			ResourceID:  sourceCategoryID(record.Map["sourcecategory"]),
			UsageFamily: "traces",
			LineItem:    "Usage",
			Description: "tracing spans ingested by Source Category",
			Service:     "Traces ingest",
			Account:     c.cfg.SumoOrgID,
			Region:      c.cfg.SumoDeployment,
			UsageUnits:  "credits",
			Operation:   "ingest",
			UsageAmount: formatCredits(credits),
			Cost:        formatCredits(credits * c.cfg.CostPerCredit),
		})
	}
	return results
}

func (c *Client) convertMetricRecords(logger *zerolog.Logger, records []searchRecord) []domain.BillingRecord {
	results := make([]domain.BillingRecord, 0, len(records))
	for _, record := range records {
		usageStart, credits, err := parseUsageRow(record.Map)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping metrics usage record")
			continue
		}
		results = append(results, domain.BillingRecord{
			UsageStart:  usageStart,
			ResourceID:  sourceCategoryID(record.Map["sourcecategory"]),
			UsageFamily: "metrics",
			LineItem:    "Usage",
			Description: "daily average 1k datapoints ingested by Source Category",
			Service:     "Metrics ingest",
			Account:     c.cfg.SumoOrgID,
			Region:      c.cfg.SumoDeployment,
			UsageUnits:  "credits",
			Operation:   "ingest",
			UsageAmount: formatCredits(credits),
			Cost:        formatCredits(credits * c.cfg.CostPerCredit),
		})
	}
	return results
}

// convertStorageRows maps usage-report CSV rows into storage billing records.
// Each row can yield up to two records, one per storage credit column.
func (c *Client) convertStorageRows(logger *zerolog.Logger, rows []map[string]string) []domain.BillingRecord {
	type storageMeta struct {
		resourceID  string
		description string
		service     string
	}
	metrics := []struct {
		column string
		meta   storageMeta
	}{
		{"Storage Credits", storageMeta{"log storage", "log storage", "Logs storage"}},
		{"Infrequent Storage Credits", storageMeta{"infrequent log storage", "infrequent log storage", "Logs infrequent storage"}},
	}

	var results []domain.BillingRecord
	for _, row := range rows {
		date, err := parseStorageDate(row["Date"])
		if err != nil {
			logger.Warn().Str("date", row["Date"]).Msg("skipping storage row with unparseable date")
			continue
		}
		for _, m := range metrics {
			amount, err := strconv.ParseFloat(strings.TrimSpace(row[m.column]), 64)
			if err != nil || amount <= 0 {
				continue
			}
			results = append(results, domain.BillingRecord{
				UsageStart:  date.Format("2006-01-02"),
				ResourceID:  m.meta.resourceID,
				UsageFamily: "logs",
				LineItem:    "Usage",
				Description: m.meta.description,
				Service:     m.meta.service,
				Account:     c.cfg.SumoOrgID,
				Region:      c.cfg.SumoDeployment,
				UsageUnits:  "credits",
				Operation:   "ingest",
				UsageAmount: strconv.FormatFloat(amount, 'f', -1, 64),
				Cost:        formatCredits(amount * c.cfg.CostPerCredit),
			})
		}
	}
	return results
}

// parseUsageRow pulls the timeslice and credit amount common to every search
// based converter.
func parseUsageRow(row map[string]string) (usageStart string, credits float64, err error) {
	ms, err := strconv.ParseFloat(strings.TrimSpace(row["_timeslice"]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid _timeslice %q: %w", row["_timeslice"], err)
	}
	credits, err = strconv.ParseFloat(strings.TrimSpace(row["credits"]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid credits %q: %w", row["credits"], err)
	}
	ts := time.UnixMilli(int64(ms)).UTC()
	return ts.Format(time.RFC3339), credits, nil
}

func parseStorageDate(raw string) (time.Time, error) {
	cleaned := strings.Trim(strings.TrimSpace(raw), `"`)
	for _, format := range storageDateFormats {
		if t, err := time.Parse(format, cleaned); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func sourceCategoryID(sourceCategory string) string {
	return "sourcecategory/" + strings.ReplaceAll(strings.ToLower(sourceCategory), "/", "|")
}

func formatCredits(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
