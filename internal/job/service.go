package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/maauso/photoreel-api/internal/composition"
	"github.com/maauso/photoreel-api/internal/encoder"
	"github.com/maauso/photoreel-api/internal/graph"
	"github.com/maauso/photoreel-api/internal/stage"
)

// ErrJobNotRunnable is returned by Run for a job that did not pass validation
// or has already been run.
var ErrJobNotRunnable = errors.New("job is not runnable")

// ErrJobInProgress is returned when an operation needs a finished job.
var ErrJobInProgress = errors.New("job is still in progress")

// Stager resolves photos and music into local files under a job directory.
type Stager interface {
	Stage(ctx context.Context, jobDir string, photos []composition.PhotoInput, sel composition.AudioSelection) (*stage.Staged, error)
}

// Encoder runs a filter graph and writes the video to outputPath.
type Encoder interface {
	Encode(ctx context.Context, g *graph.FilterGraph, outputPath string, cfg composition.Config, onProgress func(encoder.Progress)) error
}

// Workspace hands out per-job scratch locations.
type Workspace interface {
	JobDir(jobID string) (string, error)
	OutputPath(jobID string) (string, error)
	RemoveJobDir(jobID string) error
	RemoveOutput(jobID string) error
}

// Progress checkpoints reported while a job runs.
const (
	progressStaged  = 10
	progressBuilt   = 30
	progressEncoded = 99
)

// ComposeService drives a composition job from validation to a finished video.
// Jobs are independent; each one gets its own scratch directory keyed by its ID.
type ComposeService struct {
	repo          Repository
	stager        Stager
	encoder       Encoder
	workspace     Workspace
	logger        *slog.Logger
	limits        composition.Limits
	encodeTimeout time.Duration
}

// ServiceOption configures a ComposeService.
type ServiceOption func(*ComposeService)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *ComposeService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLimits sets the request limits checked during validation.
func WithLimits(l composition.Limits) ServiceOption {
	return func(s *ComposeService) {
		s.limits = l
	}
}

// WithEncodeTimeout bounds a single encoder run. Zero disables the bound.
func WithEncodeTimeout(d time.Duration) ServiceOption {
	return func(s *ComposeService) {
		if d >= 0 {
			s.encodeTimeout = d
		}
	}
}

// NewComposeService creates a ComposeService.
func NewComposeService(repo Repository, stager Stager, enc Encoder, ws Workspace, opts ...ServiceOption) *ComposeService {
	s := &ComposeService{
		repo:          repo,
		stager:        stager,
		encoder:       enc,
		workspace:     ws,
		logger:        slog.Default(),
		limits:        composition.DefaultLimits(),
		encodeTimeout: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compose validates, stages, builds and encodes in one call and returns the
// local result. It is the synchronous form of Submit followed by Run.
func (s *ComposeService) Compose(ctx context.Context, photos []composition.PhotoInput, audio composition.AudioSelection, cfg composition.Config) (composition.Result, error) {
	job, err := s.Submit(ctx, Request{Photos: photos, Audio: audio, Config: cfg})
	if err != nil {
		return composition.Result{}, err
	}
	return s.Run(ctx, job.ID)
}

// Submit records a new job and validates its request. A rejected request
// leaves a FAILED job behind and never touches the scratch area.
func (s *ComposeService) Submit(ctx context.Context, req Request) (*Job, error) {
	job := New(req)
	if err := job.TransitionTo(StatusValidating); err != nil {
		return nil, err
	}
	s.logTransition(job)

	if err := composition.Validate(req.Photos, req.Config, s.limits); err != nil {
		jobErr := &composition.JobError{JobID: job.ID, Stage: stageName(StatusValidating), Err: err}
		_ = job.Fail(jobErr)
		s.logger.Warn("composition request rejected",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		s.save(ctx, job)
		return job.Clone(), jobErr
	}

	s.logger.Info("composition job accepted",
		slog.String("job_id", job.ID),
		slog.Int("photos", len(req.Photos)),
		slog.String("audio", string(req.Audio)),
		slog.String("transition", string(req.Config.TransitionMode)),
	)
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	return job.Clone(), nil
}

// Run executes a submitted job through staging, building and encoding. The
// job directory is removed whatever the outcome; the output survives only on
// success.
func (s *ComposeService) Run(ctx context.Context, jobID string) (composition.Result, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return composition.Result{}, err
	}
	if job.GetStatus() != StatusValidating {
		return composition.Result{}, fmt.Errorf("%w: %s is %s", ErrJobNotRunnable, jobID, job.GetStatus())
	}

	start := time.Now()
	res, err := s.execute(ctx, job)
	if err != nil {
		failedAt := stageName(job.GetStatus())
		jobErr := &composition.JobError{JobID: job.ID, Stage: failedAt, Err: err}
		if failErr := job.Fail(jobErr); failErr != nil {
			s.logger.Error("failed to mark job failed",
				slog.String("job_id", job.ID),
				slog.String("error", failErr.Error()),
			)
		}
		s.logger.Error("composition job failed",
			slog.String("job_id", job.ID),
			slog.String("stage", failedAt),
			slog.String("kind", composition.Kind(err)),
			slog.String("error", err.Error()),
		)
		s.save(ctx, job)
		return composition.Result{}, jobErr
	}

	if err := job.Succeed(res); err != nil {
		return composition.Result{}, &composition.JobError{JobID: job.ID, Stage: stageName(job.GetStatus()), Err: fmt.Errorf("%w: %v", composition.ErrInternal, err)}
	}
	s.logTransition(job)
	s.logger.Info("composition job succeeded",
		slog.String("job_id", job.ID),
		slog.String("output", res.OutputPath),
		slog.Int64("size", res.Size),
		slog.Float64("total_duration", res.TotalDurationSeconds),
		slog.Duration("elapsed", time.Since(start)),
	)
	s.save(ctx, job)
	return res, nil
}

// execute runs the pipeline stages. Cleanup runs on every exit path,
// including a panic, which is reported as ErrInternal.
func (s *ComposeService) execute(ctx context.Context, job *Job) (res composition.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("composition job panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
			)
			err = fmt.Errorf("%w: panic: %v", composition.ErrInternal, r)
		}
		s.cleanup(job.ID, err != nil)
	}()

	jobDir, err := s.workspace.JobDir(job.ID)
	if err != nil {
		return res, fmt.Errorf("%w: %v", composition.ErrInternal, err)
	}
	outputPath, err := s.workspace.OutputPath(job.ID)
	if err != nil {
		return res, fmt.Errorf("%w: %v", composition.ErrInternal, err)
	}
	req := job.Request

	if err := s.advance(ctx, job, StatusStaging); err != nil {
		return res, err
	}
	staged, err := s.stager.Stage(ctx, jobDir, req.Photos, req.Audio)
	if err != nil {
		return res, err
	}
	s.progress(ctx, job, progressStaged)

	if err := s.advance(ctx, job, StatusBuilding); err != nil {
		return res, err
	}
	g, err := graph.Build(staged.Photos, staged.Music, req.Config)
	if err != nil {
		return res, fmt.Errorf("%w: %v", composition.ErrInternal, err)
	}
	s.progress(ctx, job, progressBuilt)

	if err := s.advance(ctx, job, StatusEncoding); err != nil {
		return res, err
	}
	encodeCtx := ctx
	if s.encodeTimeout > 0 {
		var cancel context.CancelFunc
		encodeCtx, cancel = context.WithTimeout(ctx, s.encodeTimeout)
		defer cancel()
	}
	err = s.encoder.Encode(encodeCtx, g, outputPath, req.Config, func(p encoder.Progress) {
		job.UpdateProgress(progressBuilt + int(p.Fraction*(progressEncoded-progressBuilt)))
		s.save(ctx, job)
	})
	if err != nil {
		return res, err
	}

	fi, err := os.Stat(outputPath)
	if err != nil {
		return res, fmt.Errorf("%w: stat output: %v", composition.ErrInternal, err)
	}
	return composition.Result{
		JobID:                job.ID,
		OutputPath:           outputPath,
		ContentType:          composition.ContentTypeMP4,
		Size:                 fi.Size(),
		TotalDurationSeconds: g.TotalDuration,
	}, nil
}

// MarkPublished records where a finished job's video was published.
func (s *ComposeService) MarkPublished(ctx context.Context, jobID, url string) error {
	return s.repo.Update(ctx, jobID, func(j *Job) error {
		if j.Status != StatusSucceeded {
			return fmt.Errorf("%w: %s is %s", ErrJobNotRunnable, jobID, j.Status)
		}
		j.SetVideoURL(url)
		if _, err := os.Stat(j.OutputPath); errors.Is(err, os.ErrNotExist) {
			j.ClearOutput()
		}
		return nil
	})
}

// DeleteOutput removes the local video of a finished job. It is idempotent.
func (s *ComposeService) DeleteOutput(ctx context.Context, jobID string) error {
	j, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !j.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobInProgress, jobID, j.GetStatus())
	}
	if err := s.workspace.RemoveOutput(jobID); err != nil {
		return err
	}
	return s.repo.Update(ctx, jobID, func(j *Job) error {
		j.ClearOutput()
		return nil
	})
}

// GetJob retrieves a job by ID.
func (s *ComposeService) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.FindByID(ctx, jobID)
}

// ListJobs returns every known job, newest first.
func (s *ComposeService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

func (s *ComposeService) advance(ctx context.Context, job *Job, status Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := job.TransitionTo(status); err != nil {
		return fmt.Errorf("%w: %v", composition.ErrInternal, err)
	}
	s.logTransition(job)
	s.save(ctx, job)
	return nil
}

func (s *ComposeService) progress(ctx context.Context, job *Job, p int) {
	job.UpdateProgress(p)
	s.save(ctx, job)
}

func (s *ComposeService) cleanup(jobID string, failed bool) {
	if err := s.workspace.RemoveJobDir(jobID); err != nil {
		s.logger.Warn("failed to remove job directory",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
	if !failed {
		return
	}
	if err := s.workspace.RemoveOutput(jobID); err != nil {
		s.logger.Warn("failed to remove job output",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// save persists the job even when ctx was cancelled so the failure is
// still visible to status queries.
func (s *ComposeService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Warn("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ComposeService) logTransition(job *Job) {
	s.logger.Info("job stage",
		slog.String("job_id", job.ID),
		slog.String("stage", stageName(job.GetStatus())),
	)
}

func stageName(s Status) string {
	return strings.ToLower(string(s))
}
