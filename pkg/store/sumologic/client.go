// Package sumologic implements the usage-telemetry side of the pipeline: the
// Sumo Logic search-job and usage-report APIs, plus conversion of their
// results into CBF billing records.
package sumologic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/services/config"
	"github.com/de-tools/sumocost/pkg/services/retry"
	"github.com/de-tools/sumocost/pkg/store/client"
)

const (
	apiVersion = "v1"
	// pageSize is the number of records fetched per search-job results call.
	pageSize = 1000

	statusPollInterval = 3 * time.Second
)

// Most deployments have two names, hence the duplicates.
var deploymentEndpoints = map[string]string{
	"prod": "https://api.sumologic.com/api",
	"us1":  "https://api.sumologic.com/api",
	"us2":  "https://api.us2.sumologic.com/api",
	"eu":   "https://api.eu.sumologic.com/api",
	"dub":  "https://api.eu.sumologic.com/api",
	"ca":   "https://api.ca.sumologic.com/api",
	"mon":  "https://api.ca.sumologic.com/api",
	"de":   "https://api.de.sumologic.com/api",
	"fra":  "https://api.de.sumologic.com/api",
	"au":   "https://api.au.sumologic.com/api",
	"syd":  "https://api.au.sumologic.com/api",
	"jp":   "https://api.jp.sumologic.com/api",
	"tky":  "https://api.jp.sumologic.com/api",
	"kr":   "https://api.kr.sumologic.com/api",
	"fed":  "https://api.fed.sumologic.com/api",
}

// Client talks to the Sumo Logic APIs for one deployment. All calls go
// through the shared retry policy so rate limiting is handled uniformly.
type Client struct {
	http     *http.Client
	endpoint string

	accessID  string
	accessKey string

	cfg    config.Config
	policy retry.Policy
}

func NewClient(cfg config.Config, policy retry.Policy) (*Client, error) {
	endpoint, ok := deploymentEndpoints[strings.ToLower(cfg.SumoDeployment)]
	if !ok {
		return nil, fmt.Errorf("unsupported Sumo Logic deployment %q", cfg.SumoDeployment)
	}
	return &Client{
		http:      client.New(),
		endpoint:  endpoint,
		accessID:  cfg.SumoAccessKey,
		accessKey: cfg.SumoSecretKey,
		cfg:       cfg,
		policy:    policy,
	}, nil
}

func (c *Client) url(path string) string {
	return c.endpoint + "/" + apiVersion + path
}

// do builds a fresh request per attempt so retried POST bodies are re-sent
// from the start.
func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	return retry.Do(ctx, c.policy, func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.accessID, c.accessKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("sumologic request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := client.CheckResponse(resp); err != nil {
			return nil, err
		}
		return io.ReadAll(resp.Body)
	})
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.url(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.url(path), raw)
}

type searchJob struct {
	ID string `json:"id"`
}

type searchJobStatus struct {
	State       string `json:"state"`
	RecordCount int    `json:"recordCount"`
}

// searchRecord is one aggregated row of a search job's results.
type searchRecord struct {
	Map map[string]string `json:"map"`
}

const (
	jobStateDone      = "DONE GATHERING RESULTS"
	jobStateCancelled = "CANCELLED"
	jobStateFailed    = "FAILED"
)

// searchRecords runs a search job synchronously: create, poll until done,
// then page through all result records.
func (c *Client) searchRecords(
	ctx context.Context,
	query string,
	from, to time.Time,
	byReceiptTime bool,
) ([]searchRecord, error) {
	logger := zerolog.Ctx(ctx)

	raw, err := c.post(ctx, "/search/jobs", map[string]any{
		"query":           query,
		"from":            from.UTC().Format("2006-01-02T15:04:05Z"),
		"to":              to.UTC().Format("2006-01-02T15:04:05Z"),
		"timeZone":        "UTC",
		"byReceiptTime":   byReceiptTime,
		"autoParsingMode": "AutoParse",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create search job: %w", err)
	}
	var job searchJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode search job response: %w", err)
	}

	status, err := c.waitForJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("job_id", job.ID).Int("records", status.RecordCount).Msg("search job done")

	records := make([]searchRecord, 0, status.RecordCount)
	for offset := 0; offset <= status.RecordCount; offset += pageSize {
		params := url.Values{}
		params.Set("limit", fmt.Sprintf("%d", pageSize))
		params.Set("offset", fmt.Sprintf("%d", offset))

		raw, err := c.get(ctx, "/search/jobs/"+job.ID+"/records", params)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch search job records: %w", err)
		}
		var page struct {
			Records []searchRecord `json:"records"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("failed to decode search job records: %w", err)
		}
		records = append(records, page.Records...)
		if len(page.Records) < pageSize {
			break
		}
	}
	return records, nil
}

func (c *Client) waitForJob(ctx context.Context, jobID string) (*searchJobStatus, error) {
	for {
		raw, err := c.get(ctx, "/search/jobs/"+jobID, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to poll search job %s: %w", jobID, err)
		}
		var status searchJobStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, fmt.Errorf("failed to decode search job status: %w", err)
		}

		switch status.State {
		case jobStateDone:
			return &status, nil
		case jobStateCancelled, jobStateFailed:
			return nil, fmt.Errorf("search job %s ended in state %s", jobID, status.State)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(statusPollInterval):
		}
	}
}
