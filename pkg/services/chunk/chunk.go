// Package chunk splits ordered billing record batches into payloads that fit
// under the AnyCost transport limit.
package chunk

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/de-tools/sumocost/pkg/models/domain"
)

const (
	// MaxPayloadSize is the hard transport cap on one billing_drops request.
	MaxPayloadSize = 10 * 1024 * 1024
	// SafePayloadSize leaves headroom below the hard cap for JSON overhead.
	SafePayloadSize = 8 * 1024 * 1024
)

// Envelope is the request body shape sent for every chunk. Month is derived
// from the first record's usage start.
type Envelope struct {
	Operation string                 `json:"operation"`
	Data      []domain.BillingRecord `json:"data"`
	Month     string                 `json:"month"`
}

// NewEnvelope wraps records with the operation and month fields.
func NewEnvelope(records []domain.BillingRecord, operation string) Envelope {
	month := ""
	if len(records) > 0 {
		month = records[0].UsageStart
	}
	return Envelope{Operation: operation, Data: records, Month: month}
}

// PayloadSize returns the serialized byte size of records plus the envelope.
func PayloadSize(records []domain.BillingRecord, operation string) (int, error) {
	raw, err := json.Marshal(NewEnvelope(records, operation))
	if err != nil {
		return 0, fmt.Errorf("failed to measure payload: %w", err)
	}
	return len(raw), nil
}

// Split partitions records into ordered chunks whose serialized size stays at
// or under maxSize. The strategy is one-pass greedy in insertion order: a
// record that would push the running chunk over the ceiling closes it and
// starts the next one. A single record larger than maxSize still becomes its
// own chunk; the ceiling is advisory per chunk, not a rejection. Concatenating
// the chunks reproduces the input exactly.
func Split(records []domain.BillingRecord, operation string, maxSize int) ([][]domain.BillingRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var chunks [][]domain.BillingRecord
	var current []domain.BillingRecord

	for _, record := range records {
		candidate := append(current, record)
		size, err := PayloadSize(candidate, operation)
		if err != nil {
			return nil, err
		}
		if size > maxSize && len(current) > 0 {
			chunks = append(chunks, current)
			current = []domain.BillingRecord{record}
		} else {
			current = candidate
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}

// Estimate reports the expected chunk count under maxSize and the total
// payload size without actually splitting. Used for pre-flight progress
// logging before a batch is uploaded.
func Estimate(records []domain.BillingRecord, operation string, maxSize int) (chunks, totalSize int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}
	totalSize, err = PayloadSize(records, operation)
	if err != nil {
		return 0, 0, err
	}
	chunks = (totalSize + maxSize - 1) / maxSize
	if chunks < 1 {
		chunks = 1
	}
	return chunks, totalSize, nil
}
