package cloudzero

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/services/config"
	"github.com/de-tools/sumocost/pkg/services/retry"
	storeclient "github.com/de-tools/sumocost/pkg/store/client"
)

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Retryable:   storeclient.IsRateLimited,
	}
}

func testRecords() []domain.BillingRecord {
	return []domain.BillingRecord{{
		UsageStart:  "2024-03-15T00:00:00Z",
		ResourceID:  "sourcecategory/app|api",
		UsageAmount: "10.000000",
		Cost:        "1.500000",
	}}
}

func TestUploadChunk(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "created"}`))
	}))
	defer server.Close()

	c := NewClient(config.Config{
		CZURL:      server.URL,
		CZAuthKey:  "cz-key",
		CZStreamID: "conn-42",
	}, testPolicy())

	result, err := c.UploadChunk(context.Background(), testRecords(), domain.OpReplaceDrop)
	require.NoError(t, err)

	assert.Equal(t, "cz-key", gotAuth)
	assert.Equal(t, "/v2/connections/billing/anycost/conn-42/billing_drops", gotPath)
	assert.Equal(t, map[string]any{"status": "created"}, result)

	var envelope struct {
		Operation string                 `json:"operation"`
		Data      []domain.BillingRecord `json:"data"`
		Month     string                 `json:"month"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.Equal(t, "replace_drop", envelope.Operation)
	assert.Equal(t, testRecords(), envelope.Data)
	assert.Equal(t, "2024-03-15T00:00:00Z", envelope.Month)
}

func TestUploadChunk_RetriesRateLimits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(config.Config{CZURL: server.URL, CZAuthKey: "k", CZStreamID: "s"}, testPolicy())

	_, err := c.UploadChunk(context.Background(), testRecords(), domain.OpSum)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUploadChunk_ClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "bad api key"}`))
	}))
	defer server.Close()

	c := NewClient(config.Config{CZURL: server.URL, CZAuthKey: "k", CZStreamID: "s"}, testPolicy())

	_, err := c.UploadChunk(context.Background(), testRecords(), domain.OpSum)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "only rate limits are retried")

	var statusErr *storeclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestUploadChunk_InvalidOperation(t *testing.T) {
	c := NewClient(config.Config{CZURL: "http://unused", CZAuthKey: "k", CZStreamID: "s"}, testPolicy())
	_, err := c.UploadChunk(context.Background(), testRecords(), domain.UploadOperation(99))
	require.ErrorContains(t, err, "unknown upload operation")
}
