package job

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepository_Save(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(Request{})

	err := repo.Save(ctx, job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify it was saved
	saved, err := repo.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, saved.ID)
	}
}

func TestMemoryRepository_Save_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(Request{})

	// Save initial
	_ = repo.Save(ctx, job)

	// Update job
	_ = job.TransitionTo(StatusValidating)
	job.Progress = 50
	_ = repo.Save(ctx, job)

	// Verify update
	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.Status != StatusValidating {
		t.Errorf("expected status %s, got %s", StatusValidating, saved.Status)
	}
	if saved.Progress != 50 {
		t.Errorf("expected progress 50, got %d", saved.Progress)
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "nonexistent")
	if err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_FindByID_ReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(Request{})
	_ = repo.Save(ctx, job)

	// Get job
	found, _ := repo.FindByID(ctx, job.ID)

	// Modify returned job
	found.Progress = 99
	_ = found.TransitionTo(StatusValidating)

	// Original in repo should be unchanged
	original, _ := repo.FindByID(ctx, job.ID)
	if original.Progress != 0 {
		t.Error("modifying returned job should not affect repository")
	}
	if original.Status != StatusIdle {
		t.Error("modifying returned job status should not affect repository")
	}
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	// Empty list
	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected 0 jobs, got %d", len(jobs))
	}

	// Add jobs
	job1 := New(Request{})
	job2 := New(Request{})
	job2.CreatedAt = job1.CreatedAt.Add(time.Second)
	_ = repo.Save(ctx, job1)
	_ = repo.Save(ctx, job2)

	jobs, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != job2.ID {
		t.Errorf("expected newest job first, got %s", jobs[0].ID)
	}
}

func TestMemoryRepository_List_ReturnsClones(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(Request{})
	_ = repo.Save(ctx, job)

	// Get list
	jobs, _ := repo.List(ctx)

	// Modify returned job
	jobs[0].Progress = 99

	// Original in repo should be unchanged
	original, _ := repo.FindByID(ctx, job.ID)
	if original.Progress != 0 {
		t.Error("modifying listed job should not affect repository")
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(Request{})
	_ = repo.Save(ctx, job)

	err := repo.Delete(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify deleted
	_, err = repo.FindByID(ctx, job.ID)
	if err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_Delete_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	err := repo.Delete(ctx, "nonexistent")
	if err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	done := make(chan bool)

	// Concurrent writes
	go func() {
		for i := 0; i < 100; i++ {
			job := New(Request{})
			_ = repo.Save(ctx, job)
		}
		done <- true
	}()

	// Concurrent reads
	go func() {
		for i := 0; i < 100; i++ {
			_, _ = repo.List(ctx)
		}
		done <- true
	}()

	<-done
	<-done
	// If no race conditions, test passes
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(Request{})
	_ = repo.Save(ctx, job)

	err := repo.Update(ctx, job.ID, func(j *Job) error {
		j.UpdateProgress(40)
		return j.TransitionTo(StatusValidating)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.Progress != 40 || saved.Status != StatusValidating {
		t.Errorf("update not applied: progress=%d status=%s", saved.Progress, saved.Status)
	}
}

func TestMemoryRepository_Update_ErrorDiscardsChanges(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New(Request{})
	_ = repo.Save(ctx, job)

	boom := errors.New("boom")
	err := repo.Update(ctx, job.ID, func(j *Job) error {
		j.UpdateProgress(90)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.Progress != 0 {
		t.Errorf("expected progress 0 after failed update, got %d", saved.Progress)
	}
}

func TestMemoryRepository_Update_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.Update(context.Background(), "nonexistent", func(*Job) error { return nil })
	if err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
