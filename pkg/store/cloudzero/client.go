// Package cloudzero posts CBF chunks to an AnyCost stream connection.
package cloudzero

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/services/chunk"
	"github.com/de-tools/sumocost/pkg/services/config"
	"github.com/de-tools/sumocost/pkg/services/retry"
	"github.com/de-tools/sumocost/pkg/store/client"
)

type Client struct {
	http     *http.Client
	endpoint string
	authKey  string
	streamID string
	policy   retry.Policy
}

func NewClient(cfg config.Config, policy retry.Policy) *Client {
	return &Client{
		http:     client.New(),
		endpoint: cfg.CZURL,
		authKey:  cfg.CZAuthKey,
		streamID: cfg.CZStreamID,
		policy:   policy,
	}
}

// UploadChunk sends one size-bounded chunk as a billing drop. Delivery is
// at-least-once: a retried 429 may land twice and the API deduplicates by
// operation semantics, not by the caller.
func (c *Client) UploadChunk(
	ctx context.Context,
	records []domain.BillingRecord,
	operation domain.UploadOperation,
) (map[string]any, error) {
	opString, err := operation.WireString()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(chunk.NewEnvelope(records, opString))
	if err != nil {
		return nil, fmt.Errorf("failed to encode billing drop: %w", err)
	}

	u := fmt.Sprintf("%s/v2/connections/billing/anycost/%s/billing_drops", c.endpoint, c.streamID)

	raw, err := retry.Do(ctx, c.policy, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", c.authKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("cloudzero request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := client.CheckResponse(resp); err != nil {
			return nil, err
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode billing drop response: %w", err)
	}
	return result, nil
}
