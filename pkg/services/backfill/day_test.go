package backfill

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/services/upload"
)

type uploadCall struct {
	service   string
	operation domain.UploadOperation
	records   int
}

type fakeUploader struct {
	calls      []uploadCall
	failChunks map[string]bool
	errors     map[string]error
}

func (f *fakeUploader) Upload(
	_ context.Context,
	records []domain.BillingRecord,
	operation domain.UploadOperation,
	service, date string,
) (*upload.Result, error) {
	f.calls = append(f.calls, uploadCall{service: service, operation: operation, records: len(records)})
	if err := f.errors[service]; err != nil {
		return nil, err
	}
	result := &upload.Result{
		Service:          service,
		Date:             date,
		Operation:        operation,
		Records:          len(records),
		TotalChunks:      1,
		SuccessfulChunks: 1,
	}
	if f.failChunks[service] {
		result.SuccessfulChunks = 0
		result.FailedChunks = 1
		result.Errors = []string{"chunk 1/1: upload failed"}
	}
	return result, nil
}

func testServices(n int, records func(name string) []domain.BillingRecord, errs map[string]error) []Service {
	services := make([]Service, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("service-%d", i)
		fetch := func(name string) ([]domain.BillingRecord, error) {
			if err := errs[name]; err != nil {
				return nil, err
			}
			return records(name), nil
		}
		services = append(services, Service{
			Name: name,
			Current: func(_ context.Context) ([]domain.BillingRecord, error) {
				return fetch(name)
			},
			ForDate: func(_ context.Context, _, _ time.Time) ([]domain.BillingRecord, error) {
				return fetch(name)
			},
		})
	}
	return services
}

func oneRecord(string) []domain.BillingRecord {
	return []domain.BillingRecord{{UsageStart: "2024-01-15T00:00:00Z", UsageAmount: "1.000000"}}
}

func TestDayProcessor_FirstServiceReplacesDay(t *testing.T) {
	uploader := &fakeUploader{}
	processor := NewDayProcessor(testServices(3, oneRecord, nil), uploader)

	day, _ := ParseDate("2024-01-15", "day")
	stats := processor.ProcessDate(context.Background(), day)

	require.Len(t, uploader.calls, 3)
	assert.Equal(t, domain.OpReplaceDrop, uploader.calls[0].operation,
		"first upload of the day must clear previously uploaded data")
	assert.Equal(t, domain.OpSum, uploader.calls[1].operation)
	assert.Equal(t, domain.OpSum, uploader.calls[2].operation)
	assert.Equal(t, 3, stats.SuccessfulServices)
	assert.Zero(t, stats.FailedServices)
}

func TestDayProcessor_FailureIsolation(t *testing.T) {
	uploader := &fakeUploader{}
	errs := map[string]error{"service-2": errors.New("query timed out")}
	processor := NewDayProcessor(testServices(7, oneRecord, errs), uploader)

	day, _ := ParseDate("2024-01-15", "day")
	stats := processor.ProcessDate(context.Background(), day)

	assert.Equal(t, 6, stats.SuccessfulServices)
	assert.Equal(t, 1, stats.FailedServices)
	assert.Equal(t, []string{"service-2"}, stats.Failed)
	assert.Len(t, uploader.calls, 6, "failed extraction never reaches the uploader")
}

func TestDayProcessor_EmptyServiceSucceedsWithoutUpload(t *testing.T) {
	uploader := &fakeUploader{}
	empty := func(string) []domain.BillingRecord { return nil }
	processor := NewDayProcessor(testServices(2, empty, nil), uploader)

	day, _ := ParseDate("2024-01-15", "day")
	stats := processor.ProcessDate(context.Background(), day)

	assert.Empty(t, uploader.calls)
	assert.Equal(t, 2, stats.SuccessfulServices)
	assert.Zero(t, stats.TotalRecords())
}

func TestDayProcessor_LostChunksFailTheService(t *testing.T) {
	uploader := &fakeUploader{failChunks: map[string]bool{"service-1": true}}
	processor := NewDayProcessor(testServices(3, oneRecord, nil), uploader)

	day, _ := ParseDate("2024-01-15", "day")
	stats := processor.ProcessDate(context.Background(), day)

	assert.Equal(t, 2, stats.SuccessfulServices)
	assert.Equal(t, []string{"service-1"}, stats.Failed)
}

func TestDayProcessor_UploadErrorFailsTheService(t *testing.T) {
	uploader := &fakeUploader{errors: map[string]error{"service-0": errors.New("stream not found")}}
	processor := NewDayProcessor(testServices(2, oneRecord, nil), uploader)

	day, _ := ParseDate("2024-01-15", "day")
	stats := processor.ProcessDate(context.Background(), day)

	assert.Equal(t, []string{"service-0"}, stats.Failed)
	assert.Equal(t, []string{"service-1"}, stats.Succeeded)
}

func TestDayProcessor_ProcessCurrentUsesYesterday(t *testing.T) {
	uploader := &fakeUploader{}
	processor := NewDayProcessor(testServices(1, oneRecord, nil), uploader)

	stats := processor.ProcessCurrent(context.Background())

	expected := time.Now().UTC().AddDate(0, 0, -1).Format(dateLayout)
	assert.Equal(t, expected, stats.Date)
}
