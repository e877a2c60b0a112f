package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/services/chunk"
)

type fakeSink struct {
	calls   []sinkCall
	failOn  map[int]error // 1-based call index
	nextIdx int
}

type sinkCall struct {
	records   []domain.BillingRecord
	operation domain.UploadOperation
}

func (f *fakeSink) UploadChunk(
	_ context.Context,
	records []domain.BillingRecord,
	operation domain.UploadOperation,
) (map[string]any, error) {
	f.nextIdx++
	f.calls = append(f.calls, sinkCall{records: records, operation: operation})
	if err := f.failOn[f.nextIdx]; err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

func makeRecords(n int) []domain.BillingRecord {
	records := make([]domain.BillingRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, domain.BillingRecord{
			UsageStart:  "2024-03-15T00:00:00Z",
			ResourceID:  fmt.Sprintf("sourcecategory/app|svc-%d", i),
			UsageAmount: "1.000000",
			Cost:        "0.150000",
		})
	}
	return records
}

func TestUpload_EmptyBatchIsANoOp(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, Options{Pause: time.Millisecond})

	result, err := d.Upload(context.Background(), nil, domain.OpSum, "metrics", "2024-03-15")
	require.NoError(t, err)

	assert.Zero(t, result.TotalChunks)
	assert.Empty(t, sink.calls)
	assert.False(t, result.Failed())
}

func TestUpload_SingleChunk(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, Options{Pause: time.Millisecond})

	records := makeRecords(5)
	result, err := d.Upload(context.Background(), records, domain.OpReplaceDrop, "metrics", "2024-03-15")
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalChunks)
	assert.Equal(t, 1, result.SuccessfulChunks)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, records, sink.calls[0].records)
	assert.Equal(t, domain.OpReplaceDrop, sink.calls[0].operation)
}

func TestUpload_ChunkedBatchKeepsOperationAndOrder(t *testing.T) {
	sink := &fakeSink{}
	records := makeRecords(30)

	// Force chunking with a ceiling that fits a handful of records.
	maxSize, err := chunk.PayloadSize(records[:5], "sum")
	require.NoError(t, err)
	d := NewDispatcher(sink, Options{MaxChunkSize: maxSize, Pause: time.Millisecond})

	result, err := d.Upload(context.Background(), records, domain.OpSum, "traces", "2024-03-15")
	require.NoError(t, err)

	require.Greater(t, result.TotalChunks, 1)
	assert.Equal(t, result.TotalChunks, result.SuccessfulChunks)

	var delivered []domain.BillingRecord
	for _, call := range sink.calls {
		assert.Equal(t, domain.OpSum, call.operation, "every chunk carries the batch operation")
		delivered = append(delivered, call.records...)
	}
	assert.Equal(t, records, delivered)
}

func TestUpload_FailedChunkDoesNotBlockSiblings(t *testing.T) {
	records := makeRecords(30)
	maxSize, err := chunk.PayloadSize(records[:10], "sum")
	require.NoError(t, err)

	sink := &fakeSink{failOn: map[int]error{2: errors.New("service unavailable")}}
	d := NewDispatcher(sink, Options{MaxChunkSize: maxSize, Pause: time.Millisecond})

	result, err := d.Upload(context.Background(), records, domain.OpSum, "traces", "2024-03-15")
	require.NoError(t, err, "chunk failures are reported in the result, not as an error")

	assert.True(t, result.Failed())
	assert.Equal(t, 1, result.FailedChunks)
	assert.Equal(t, result.TotalChunks-1, result.SuccessfulChunks)
	assert.Len(t, sink.calls, result.TotalChunks, "all chunks got their attempt")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "chunk 2/")
}

func TestUpload_InvalidOperation(t *testing.T) {
	d := NewDispatcher(&fakeSink{}, Options{Pause: time.Millisecond})
	_, err := d.Upload(context.Background(), makeRecords(1), domain.UploadOperation(0), "metrics", "2024-03-15")
	require.ErrorContains(t, err, "unknown upload operation")
}

func TestUpload_DryRunWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	sink := &fakeSink{}
	d := NewDispatcher(sink, Options{DryRun: true, ArtifactDir: dir, Pause: time.Millisecond})

	records := makeRecords(3)
	result, err := d.Upload(context.Background(), records, domain.OpReplaceDrop, "continuous logs", "2024-03-15")
	require.NoError(t, err)

	assert.Empty(t, sink.calls, "dry run never touches the sink")
	assert.True(t, result.DryRun)
	require.Len(t, result.Artifacts, 1)

	path := filepath.Join(dir, "2024-03-15_continuous_logs.json")
	assert.Equal(t, path, result.Artifacts[0])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var payload struct {
		Operation string                 `json:"operation"`
		Data      []domain.BillingRecord `json:"data"`
		Month     string                 `json:"month"`
		Metadata  struct {
			Service     string `json:"service"`
			RecordCount int    `json:"record_count"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "replace_drop", payload.Operation)
	assert.Equal(t, records, payload.Data)
	assert.Equal(t, "2024-03-15T00:00:00Z", payload.Month)
	assert.Equal(t, "continuous logs", payload.Metadata.Service)
	assert.Equal(t, 3, payload.Metadata.RecordCount)
}

func TestUpload_DryRunChunkedArtifactNames(t *testing.T) {
	dir := t.TempDir()
	records := makeRecords(20)
	maxSize, err := chunk.PayloadSize(records[:10], "sum")
	require.NoError(t, err)

	d := NewDispatcher(&fakeSink{}, Options{
		DryRun:       true,
		ArtifactDir:  dir,
		MaxChunkSize: maxSize,
		Pause:        time.Millisecond,
	})

	result, err := d.Upload(context.Background(), records, domain.OpSum, "metrics", "2024-03-15")
	require.NoError(t, err)

	require.Greater(t, result.TotalChunks, 1)
	assert.FileExists(t, filepath.Join(dir, "2024-03-15_metrics_chunk1.json"))
	assert.FileExists(t, filepath.Join(dir, "2024-03-15_metrics_chunk2.json"))
}
