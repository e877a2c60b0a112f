package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/services/chunk"
)

// ArtifactWriter serializes would-be upload payloads to disk for inspection.
// One file per chunk, named by date and service so a CI run or a human can
// diff what a real run would have sent.
type ArtifactWriter struct {
	dir   string
	runID string
}

func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{dir: dir, runID: uuid.NewString()}
}

type artifactMetadata struct {
	Service     string `json:"service"`
	Date        string `json:"date"`
	RecordCount int    `json:"record_count"`
	GeneratedAt string `json:"generated_at"`
	RunID       string `json:"run_id"`
}

type artifact struct {
	Operation string                 `json:"operation"`
	Data      []domain.BillingRecord `json:"data"`
	Month     string                 `json:"month"`
	Metadata  artifactMetadata       `json:"metadata"`
}

// Write stores one chunk's payload and returns the file path.
func (w *ArtifactWriter) Write(records []domain.BillingRecord, operation, service, date string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}

	envelope := chunk.NewEnvelope(records, operation)
	payload := artifact{
		Operation: envelope.Operation,
		Data:      envelope.Data,
		Month:     envelope.Month,
		Metadata: artifactMetadata{
			Service:     service,
			Date:        date,
			RecordCount: len(records),
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			RunID:       w.runID,
		},
	}

	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode artifact: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.json", date, sanitizeServiceName(service)))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}

func sanitizeServiceName(service string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "_")
	return replacer.Replace(service)
}
