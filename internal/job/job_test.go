package job

import (
	"errors"
	"strings"
	"testing"

	"github.com/maauso/photoreel-api/internal/composition"
)

func sampleRequest() Request {
	return Request{
		Photos: []composition.PhotoInput{{Source: "https://example.com/a.jpg"}, {Source: "/tmp/b.png", DurationSeconds: 4}},
		Audio:  composition.AudioEpic,
		Config: composition.Defaults(),
	}
}

func TestNew(t *testing.T) {
	job := New(sampleRequest())

	if !strings.HasPrefix(job.ID, "job-") {
		t.Errorf("expected job ID with job- prefix, got %q", job.ID)
	}
	if job.Status != StatusIdle {
		t.Errorf("expected status %s, got %s", StatusIdle, job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
	if len(job.Request.Photos) != 2 {
		t.Errorf("expected 2 photos, got %d", len(job.Request.Photos))
	}
}

func TestNewWithID(t *testing.T) {
	id := "test-job-123"
	job := NewWithID(id, sampleRequest())

	if job.ID != id {
		t.Errorf("expected ID %s, got %s", id, job.ID)
	}
	if job.Status != StatusIdle {
		t.Errorf("expected status %s, got %s", StatusIdle, job.Status)
	}
}

func TestNew_CopiesPhotos(t *testing.T) {
	req := sampleRequest()
	job := New(req)

	req.Photos[0].Source = "changed"
	if job.Request.Photos[0].Source == "changed" {
		t.Error("job should not share the caller's photo slice")
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"IDLE to VALIDATING", StatusIdle, StatusValidating, false},
		{"VALIDATING to STAGING", StatusValidating, StatusStaging, false},
		{"STAGING to BUILDING", StatusStaging, StatusBuilding, false},
		{"BUILDING to ENCODING", StatusBuilding, StatusEncoding, false},
		{"ENCODING to SUCCEEDED", StatusEncoding, StatusSucceeded, false},
		{"IDLE to FAILED", StatusIdle, StatusFailed, false},
		{"VALIDATING to FAILED", StatusValidating, StatusFailed, false},
		{"STAGING to FAILED", StatusStaging, StatusFailed, false},
		{"BUILDING to FAILED", StatusBuilding, StatusFailed, false},
		{"ENCODING to FAILED", StatusEncoding, StatusFailed, false},
		// stages cannot be skipped
		{"IDLE to STAGING", StatusIdle, StatusStaging, true},
		{"VALIDATING to ENCODING", StatusValidating, StatusEncoding, true},
		{"STAGING to SUCCEEDED", StatusStaging, StatusSucceeded, true},
		// or repeated backwards
		{"ENCODING to STAGING", StatusEncoding, StatusStaging, true},
		// terminal states are final
		{"SUCCEEDED to FAILED", StatusSucceeded, StatusFailed, true},
		{"FAILED to IDLE", StatusFailed, StatusIdle, true},
		{"FAILED to FAILED", StatusFailed, StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test", Request{})
			job.Status = tt.from

			err := job.TransitionTo(tt.to)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
				if job.Status != tt.from {
					t.Errorf("status changed to %s on a rejected transition", job.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if job.Status != tt.to {
				t.Errorf("expected status %s, got %s", tt.to, job.Status)
			}
		})
	}
}

func TestJob_TransitionTimestamps(t *testing.T) {
	job := New(Request{})
	for _, s := range []Status{StatusValidating, StatusStaging} {
		if err := job.TransitionTo(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if job.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set when staging starts")
	}
	if !job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be unset before a terminal state")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New(Request{})
	_ = job.TransitionTo(StatusValidating)
	_ = job.TransitionTo(StatusStaging)

	cause := &composition.JobError{JobID: job.ID, Stage: "staging", Err: &composition.AssetFetchError{Index: 2, URL: "https://x/y.jpg", Err: errors.New("404")}}
	if err := job.Fail(cause); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.FailedStage != StatusStaging {
		t.Errorf("expected failed stage %s, got %s", StatusStaging, job.FailedStage)
	}
	if job.ErrorKind != composition.KindAssetFetch {
		t.Errorf("expected error kind %s, got %s", composition.KindAssetFetch, job.ErrorKind)
	}
	if !strings.Contains(job.Error, "fetch photo 2") {
		t.Errorf("expected error message to name the photo, got %q", job.Error)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}

	if err := job.Fail(errors.New("again")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition when failing twice, got %v", err)
	}
	if job.ErrorKind != composition.KindAssetFetch {
		t.Error("second Fail must not overwrite the original error")
	}
}

func TestJob_Succeed(t *testing.T) {
	job := New(Request{})
	for _, s := range []Status{StatusValidating, StatusStaging, StatusBuilding, StatusEncoding} {
		_ = job.TransitionTo(s)
	}

	err := job.Succeed(composition.Result{
		JobID:                job.ID,
		OutputPath:           "/tmp/out.mp4",
		ContentType:          composition.ContentTypeMP4,
		Size:                 1234,
		TotalDurationSeconds: 7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusSucceeded {
		t.Errorf("expected status %s, got %s", StatusSucceeded, job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}
	if job.OutputPath != "/tmp/out.mp4" || job.Size != 1234 || job.TotalDuration != 7 {
		t.Errorf("result not recorded: %+v", job)
	}
}

func TestJob_SucceedRequiresEncoding(t *testing.T) {
	job := New(Request{})
	_ = job.TransitionTo(StatusValidating)

	if err := job.Succeed(composition.Result{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusIdle, false},
		{StatusValidating, false},
		{StatusStaging, false},
		{StatusBuilding, false},
		{StatusEncoding, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test", Request{})
			job.Status = tt.status
			if job.IsTerminal() != tt.terminal {
				t.Errorf("expected IsTerminal() = %v for status %s", tt.terminal, tt.status)
			}
		})
	}
}

func TestJob_UpdateProgress(t *testing.T) {
	job := New(Request{})

	job.UpdateProgress(50)
	if job.Progress != 50 {
		t.Errorf("expected progress 50, got %d", job.Progress)
	}

	job.UpdateProgress(40)
	if job.Progress != 50 {
		t.Errorf("expected progress to stay at 50, got %d", job.Progress)
	}

	job.UpdateProgress(150)
	if job.Progress != 100 {
		t.Errorf("expected progress clamped to 100, got %d", job.Progress)
	}

	other := New(Request{})
	other.UpdateProgress(-10)
	if other.Progress != 0 {
		t.Errorf("expected progress clamped to 0, got %d", other.Progress)
	}
}

func TestJob_SetVideoURL(t *testing.T) {
	job := New(Request{})
	job.OutputPath = "/tmp/out.mp4"

	job.SetVideoURL("https://cdn.example.com/videos/out.mp4")
	if job.VideoURL != "https://cdn.example.com/videos/out.mp4" {
		t.Errorf("unexpected VideoURL %s", job.VideoURL)
	}

	job.ClearOutput()
	if job.OutputPath != "" {
		t.Error("expected OutputPath to be cleared")
	}
	if job.VideoURL == "" {
		t.Error("ClearOutput should keep the published URL")
	}
}

func TestJob_Clone(t *testing.T) {
	job := New(sampleRequest())
	job.Status = StatusEncoding
	job.Progress = 50

	clone := job.Clone()

	if clone.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, clone.ID)
	}
	if clone.Status != job.Status {
		t.Errorf("expected Status %s, got %s", job.Status, clone.Status)
	}
	if clone.Progress != job.Progress {
		t.Errorf("expected Progress %d, got %d", job.Progress, clone.Progress)
	}
	if clone.Request.Config != job.Request.Config {
		t.Error("expected config to be copied")
	}

	// Verify clone is independent
	clone.Status = StatusSucceeded
	if job.Status == StatusSucceeded {
		t.Error("modifying clone should not affect original")
	}

	clone.Request.Photos[0].Source = "changed"
	if job.Request.Photos[0].Source == "changed" {
		t.Error("modifying clone photos should not affect original")
	}
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	job := New(Request{})

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = job.GetStatus()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = job.TransitionTo(StatusValidating)
			job.UpdateProgress(i)
		}
		done <- true
	}()

	<-done
	<-done
}
