package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/photoreel-api/internal/composition"
	"github.com/maauso/photoreel-api/internal/config"
	"github.com/maauso/photoreel-api/internal/job"
	"github.com/maauso/photoreel-api/internal/preflight"
	"github.com/maauso/photoreel-api/internal/storage"
)

// videoKeyPrefix is prepended to the job ID to build the published object key.
const videoKeyPrefix = "videos/"

// DefaultMaxBodyBytes caps a POST /compositions body.
const DefaultMaxBodyBytes int64 = 1 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.ComposeService
	publisher          storage.Publisher
	validator          *validator.Validate
	logger             *slog.Logger
	defaults           composition.Config
	healthCheck        func(ctx context.Context) []preflight.Result
	audioTracks        []composition.AudioSelection
	enableAsyncProcess bool
	maxBodyBytes       int64
	baseCtx            context.Context
	wg                 sync.WaitGroup
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateComposition only submits the job and returns
// without running it.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithPublisher sets where finished videos are published. Without one the
// video stays in the scratch output directory.
func WithPublisher(p storage.Publisher) HandlerOption {
	return func(h *Handlers) {
		h.publisher = p
	}
}

// WithBaseContext sets the context background compositions run under.
// Cancelling it stops every running encoder and fails the jobs.
func WithBaseContext(ctx context.Context) HandlerOption {
	return func(h *Handlers) {
		h.baseCtx = ctx
	}
}

// WithMaxBodyBytes caps the size of a composition request body.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithDefaults sets the composition defaults merged into every request.
func WithDefaults(d config.Defaults) HandlerOption {
	return func(h *Handlers) {
		h.defaults = d.Composition()
	}
}

// WithHealthCheck sets the checks reported by GET /health.
func WithHealthCheck(fn func(ctx context.Context) []preflight.Result) HandlerOption {
	return func(h *Handlers) {
		h.healthCheck = fn
	}
}

// WithAudioTracks sets the music keys listed by GET /audio-tracks.
func WithAudioTracks(keys []composition.AudioSelection) HandlerOption {
	return func(h *Handlers) {
		h.audioTracks = keys
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.ComposeService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		defaults:           composition.Defaults(),
		enableAsyncProcess: true, // Default to enabled
		maxBodyBytes:       DefaultMaxBodyBytes,
		baseCtx:            context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Wait blocks until every background composition has finished.
func (h *Handlers) Wait() {
	h.wg.Wait()
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.healthCheck == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	checks := h.healthCheck(r.Context())
	if !preflight.AllPassed(checks) {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}

// ListAudioTracks handles GET /audio-tracks requests.
func (h *Handlers) ListAudioTracks(w http.ResponseWriter, r *http.Request) {
	tracks := make([]string, 0, len(h.audioTracks))
	for _, k := range h.audioTracks {
		tracks = append(tracks, string(k))
	}
	writeJSON(w, http.StatusOK, AudioTracksResponse{Tracks: tracks})
}

// CreateComposition handles POST /compositions requests.
func (h *Handlers) CreateComposition(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	var req CreateCompositionRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "REQUEST_TOO_LARGE")
			return
		}
		h.logger.Warn("failed to decode request body",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request shape; value ranges are checked by the service
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	submitted, err := h.service.Submit(r.Context(), req.toDomain(h.defaults))
	if err != nil {
		var verr *composition.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to submit composition",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create composition", "JOB_CREATION_FAILED")
		return
	}

	annotateJob(r.Context(), submitted.ID)
	h.logger.Info("composition submitted",
		slog.String("request_id", requestID),
		slog.String("job_id", submitted.ID),
		slog.Int("photos", len(req.Photos)),
	)

	// The job outlives the request; it stops only when the base context does
	if h.enableAsyncProcess {
		h.wg.Add(1)
		go func(jobID string) {
			defer h.wg.Done()
			h.runAndPublish(h.baseCtx, requestID, jobID)
		}(submitted.ID)
	}

	writeJSON(w, http.StatusAccepted, CreateCompositionResponse{
		ID:     submitted.ID,
		Status: string(submitted.Status),
	})
}

// runAndPublish runs a submitted job and hands the video to the publisher.
// Failures are recorded on the job by the service; publish failures are only
// logged and leave the video in scratch.
func (h *Handlers) runAndPublish(ctx context.Context, requestID, jobID string) {
	logger := h.logger.With(slog.String("request_id", requestID))

	res, err := h.service.Run(ctx, jobID)
	if err != nil {
		logger.Error("background composition failed",
			slog.String("job_id", jobID),
			slog.String("kind", composition.Kind(err)),
			slog.String("error", err.Error()),
		)
		return
	}
	if h.publisher == nil {
		return
	}

	url, err := h.publisher.Publish(ctx, videoKeyPrefix+jobID+".mp4", res.OutputPath, res.ContentType)
	if err != nil {
		logger.Error("failed to publish video",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := h.service.MarkPublished(ctx, jobID, url); err != nil {
		logger.Error("failed to record published video",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("video published",
		slog.String("job_id", jobID),
		slog.String("url", url),
	)
}

// ListCompositions handles GET /compositions requests.
func (h *Handlers) ListCompositions(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list compositions",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list compositions", "JOB_FETCH_FAILED")
		return
	}

	resp := ListCompositionsResponse{Compositions: make([]CompositionResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Compositions = append(resp.Compositions, toCompositionResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetComposition handles GET /compositions/{id} requests.
func (h *Handlers) GetComposition(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	annotateJob(r.Context(), jobID)
	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompositionResponse(found))
}

// DeleteCompositionVideo handles DELETE /compositions/{id}/video requests.
// It removes the local copy of the video; a published copy is untouched.
func (h *Handlers) DeleteCompositionVideo(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	annotateJob(r.Context(), jobID)
	if err := h.service.DeleteOutput(r.Context(), jobID); err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	if errors.Is(err, job.ErrJobInProgress) {
		writeError(w, http.StatusConflict, "job is still in progress", "JOB_IN_PROGRESS")
		return
	}
	if errors.Is(err, storage.ErrInvalidJobID) {
		writeError(w, http.StatusBadRequest, "invalid job ID", "INVALID_JOB_ID")
		return
	}
	h.logger.Error("failed to get job",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
