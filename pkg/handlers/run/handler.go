package run

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/models/api"
	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/services/backfill"
)

// Launcher executes one run to completion. Satisfied by
// *backfill.Orchestrator.
type Launcher interface {
	Run(ctx context.Context, opts backfill.RunOptions) (*domain.RunSummary, error)
}

// Handler triggers runs and reports on the most recent one. Only a single
// run may be in flight: the pipeline holds exclusive ownership of the state
// file and the ingest connection, so overlapping runs would corrupt both.
type Handler struct {
	launcher Launcher
	logger   zerolog.Logger

	mu     sync.Mutex
	latest *api.Run
}

func NewHandler(launcher Launcher, logger zerolog.Logger) *Handler {
	return &Handler{launcher: launcher, logger: logger}
}

// StartRun accepts a run request and executes it in the background. An empty
// body runs the standard rolling window.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	var req api.RunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	h.mu.Lock()
	if h.latest != nil && h.latest.State == api.RunStateRunning {
		inFlight := *h.latest
		h.mu.Unlock()
		writeJSON(w, logger, http.StatusConflict, map[string]any{
			"error": "a run is already in progress",
			"run":   inFlight,
		})
		return
	}

	run := &api.Run{
		ID:        uuid.NewString(),
		State:     api.RunStateRunning,
		Request:   req,
		StartedAt: time.Now().UTC(),
	}
	h.latest = run
	accepted := *run
	h.mu.Unlock()

	go h.execute(run.ID, req)

	writeJSON(w, logger, http.StatusAccepted, accepted)
}

// execute runs in the background, detached from the request context so a
// closed connection does not abort a multi-hour backfill.
func (h *Handler) execute(id string, req api.RunRequest) {
	runLogger := h.logger.With().Str("run", id).Logger()
	ctx := runLogger.WithContext(context.Background())

	summary, err := h.launcher.Run(ctx, backfill.RunOptions{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Days:      req.Days,
		DryRun:    req.DryRun,
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil || h.latest.ID != id {
		return
	}
	finished := time.Now().UTC()
	h.latest.FinishedAt = &finished
	if err != nil {
		runLogger.Error().Err(err).Msg("run failed")
		h.latest.State = api.RunStateFailed
		h.latest.Error = err.Error()
		return
	}
	h.latest.State = api.RunStateCompleted
	h.latest.Summary = api.NewRunSummary(summary)
}

// LatestRun reports the most recent run, running or finished.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		writeError(w, logger, http.StatusNotFound, "no runs yet")
		return
	}
	writeJSON(w, logger, http.StatusOK, *h.latest)
}

func writeJSON(w http.ResponseWriter, logger *zerolog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, logger *zerolog.Logger, status int, message string) {
	writeJSON(w, logger, status, map[string]string{"error": message})
}
