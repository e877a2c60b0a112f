package sumologic

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/store/client"
)

// Each service exposes two extractor forms: the rolling current window (sized
// by QUERY_TIME_HOURS) and an explicit date window for backfill. Both are
// idempotent, so a resumed day can safely re-run them.

func (c *Client) currentWindow() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.Add(-time.Duration(c.cfg.QueryTimeHours * float64(time.Hour))), now
}

func (c *Client) ContinuousLogsCBF(ctx context.Context) ([]domain.BillingRecord, error) {
	from, to := c.currentWindow()
	return c.logsCBF(ctx, "Continuous", c.cfg.LogContinuousCreditRate, from, to)
}

func (c *Client) ContinuousLogsCBFForDate(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error) {
	return c.logsCBF(ctx, "Continuous", c.cfg.LogContinuousCreditRate, from, to)
}

func (c *Client) FrequentLogsCBF(ctx context.Context) ([]domain.BillingRecord, error) {
	from, to := c.currentWindow()
	return c.logsCBF(ctx, "Frequent", c.cfg.LogFrequentCreditRate, from, to)
}

func (c *Client) FrequentLogsCBFForDate(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error) {
	return c.logsCBF(ctx, "Frequent", c.cfg.LogFrequentCreditRate, from, to)
}

func (c *Client) InfrequentLogsCBF(ctx context.Context) ([]domain.BillingRecord, error) {
	from, to := c.currentWindow()
	return c.logsCBF(ctx, "Infrequent", c.cfg.LogInfrequentCreditRate, from, to)
}

func (c *Client) InfrequentLogsCBFForDate(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error) {
	return c.logsCBF(ctx, "Infrequent", c.cfg.LogInfrequentCreditRate, from, to)
}

func (c *Client) logsCBF(ctx context.Context, tier string, rate float64, from, to time.Time) ([]domain.BillingRecord, error) {
	records, err := c.searchRecords(ctx, logTierQuery(tier, rate), from, to, true)
	if err != nil {
		return nil, err
	}
	return c.convertLogRecords(zerolog.Ctx(ctx), records), nil
}

func (c *Client) InfrequentLogScansCBF(ctx context.Context) ([]domain.BillingRecord, error) {
	from, to := c.currentWindow()
	return c.scansCBF(ctx, from, to)
}

func (c *Client) InfrequentLogScansCBFForDate(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error) {
	return c.scansCBF(ctx, from, to)
}

func (c *Client) scansCBF(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error) {
	// Scan usage is attributed by query execution time, not receipt time.
	records, err := c.searchRecords(ctx, infrequentScanQuery(c.cfg.LogInfrequentScanCreditRate), from, to, false)
	if err != nil {
		return nil, err
	}
	return c.convertScanRecords(zerolog.Ctx(ctx), records), nil
}

func (c *Client) MetricsCBF(ctx context.Context) ([]domain.BillingRecord, error) {
	from, to := c.currentWindow()
	return c.metricsCBF(ctx, from, to)
}

func (c *Client) MetricsCBFForDate(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error) {
	return c.metricsCBF(ctx, from, to)
}

func (c *Client) metricsCBF(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error) {
	records, err := c.searchRecords(ctx, metricsQuery(c.cfg.MetricsCreditRate), from, to, true)
	if err != nil {
		return nil, err
	}
	return c.convertMetricRecords(zerolog.Ctx(ctx), records), nil
}

func (c *Client) TracesCBF(ctx context.Context) ([]domain.BillingRecord, error) {
	from, to := c.currentWindow()
	return c.tracesCBF(ctx, from, to)
}

func (c *Client) TracesCBFForDate(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error) {
	return c.tracesCBF(ctx, from, to)
}

func (c *Client) tracesCBF(ctx context.Context, from, to time.Time) ([]domain.BillingRecord, error) {
	records, err := c.searchRecords(ctx, tracesQuery(c.cfg.TracingCreditRate), from, to, true)
	if err != nil {
		return nil, err
	}
	return c.convertTraceRecords(zerolog.Ctx(ctx), records), nil
}

// StorageCBF reports storage credits for the previous UTC day.
func (c *Client) StorageCBF(ctx context.Context) ([]domain.BillingRecord, error) {
	return c.storageCBF(ctx, time.Now().UTC().AddDate(0, 0, -1))
}

// StorageCBFForDate reports storage credits for the day the window starts on.
func (c *Client) StorageCBFForDate(ctx context.Context, from, _ time.Time) ([]domain.BillingRecord, error) {
	return c.storageCBF(ctx, from)
}

func (c *Client) storageCBF(ctx context.Context, day time.Time) ([]domain.BillingRecord, error) {
	logger := zerolog.Ctx(ctx)

	rows, err := c.usageReportRows(ctx)
	if err != nil {
		return nil, err
	}

	target := day.UTC().Truncate(24 * time.Hour)
	var matched []map[string]string
	for _, row := range rows {
		rowDate, err := parseStorageDate(row["Date"])
		if err != nil {
			logger.Warn().Str("date", row["Date"]).Msg("skipping usage report row with unparseable date")
			continue
		}
		if rowDate.Equal(target) {
			matched = append(matched, row)
		}
	}
	logger.Debug().
		Int("rows", len(rows)).
		Int("matched", len(matched)).
		Str("day", target.Format("2006-01-02")).
		Msg("filtered usage report rows")

	return c.convertStorageRows(logger, matched), nil
}

type usageReportStatus struct {
	Status            string `json:"status"`
	ReportDownloadURL string `json:"reportDownloadURL"`
}

// usageReportRows exports the account usage report and parses the CSV it
// links to into one map per row, keyed by header.
func (c *Client) usageReportRows(ctx context.Context) ([]map[string]string, error) {
	raw, err := c.post(ctx, "/account/usage/report", map[string]any{
		"startDate":               nil,
		"endDate":                 nil,
		"groupBy":                 "day",
		"reportType":              "detailed",
		"includeDeploymentCharge": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start usage report export: %w", err)
	}
	var job struct {
		JobID json.Number `json:"jobId"`
	}
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode usage report job: %w", err)
	}

	var status usageReportStatus
	for {
		raw, err := c.get(ctx, "/account/usage/report/"+job.JobID.String()+"/status", nil)
		if err != nil {
			return nil, fmt.Errorf("failed to poll usage report job: %w", err)
		}
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, fmt.Errorf("failed to decode usage report status: %w", err)
		}
		if status.Status == "Success" {
			break
		}
		if status.Status == "Failed" || status.Status == "Cancelled" {
			return nil, fmt.Errorf("usage report export ended in state %s", status.Status)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(statusPollInterval):
		}
	}

	return c.downloadReportCSV(ctx, status.ReportDownloadURL)
}

func (c *Client) downloadReportCSV(ctx context.Context, downloadURL string) ([]map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download usage report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := client.CheckResponse(resp); err != nil {
		return nil, err
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage report header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []map[string]string
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read usage report row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, value := range fields {
			if i < len(header) {
				row[header[i]] = value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
