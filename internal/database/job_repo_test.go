package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kdimtricp/vtrack/internal/models"
)

func TestJobRepository_InsertGet(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))
	ctx := context.Background()

	job := models.NewJob("job-1", "video", "clip.mp4")
	if err := repo.Insert(ctx, job); err != nil {
		t.Fatalf("Failed to insert job: %v", err)
	}

	got, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status != "pending" || got.Kind != "video" || got.Input != "clip.mp4" {
		t.Errorf("Unexpected job: %+v", got)
	}
	if got.OutputURL != nil || got.FinishedAt != nil {
		t.Errorf("Expected no output and no finish time: %+v", got)
	}
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("CreatedAt %v, want %v", got.CreatedAt, job.CreatedAt)
	}
}

func TestJobRepository_GetNotFound(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestJobRepository_Update(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))
	ctx := context.Background()

	job := models.NewJob("job-1", "video", "clip.mp4")
	if err := repo.Insert(ctx, job); err != nil {
		t.Fatalf("Failed to insert job: %v", err)
	}

	url := "/static/results/result_clip.mp4"
	finished := time.Now()
	job.Status = "completed"
	job.Progress = 100
	job.FramesProcessed = 42
	job.ProcessingTime = 1.5
	job.OutputURL = &url
	job.FinishedAt = &finished
	if err := repo.Update(ctx, job); err != nil {
		t.Fatalf("Failed to update job: %v", err)
	}

	got, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if got.Status != "completed" || got.FramesProcessed != 42 || got.Progress != 100 {
		t.Errorf("Unexpected job: %+v", got)
	}
	if got.OutputURL == nil || *got.OutputURL != url {
		t.Errorf("Unexpected output url: %v", got.OutputURL)
	}
	if got.FinishedAt == nil {
		t.Error("Expected finish time")
	}

	missing := models.NewJob("nope", "video", "x.mp4")
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestJobRepository_MarkInterrupted(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))
	ctx := context.Background()

	pending := models.NewJob("a", "video", "a.mp4")
	running := models.NewJob("b", "video", "b.mp4")
	running.Status = "in_progress"
	done := models.NewJob("c", "video", "c.mp4")
	done.Status = "completed"
	for _, j := range []*models.Job{pending, running, done} {
		if err := repo.Insert(ctx, j); err != nil {
			t.Fatalf("Failed to insert job: %v", err)
		}
	}

	n, err := repo.MarkInterrupted(ctx)
	if err != nil {
		t.Fatalf("Failed to mark interrupted: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 interrupted jobs, got %d", n)
	}

	for _, id := range []string{"a", "b"} {
		got, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if got.Status != "failed" || got.Error == "" {
			t.Errorf("Job %s not failed: %+v", id, got)
		}
	}
	got, _ := repo.Get(ctx, "c")
	if got.Status != "completed" {
		t.Errorf("Completed job was touched: %+v", got)
	}
}

func TestJobRepository_List(t *testing.T) {
	repo := NewJobRepository(setupTestDB(t))
	ctx := context.Background()

	older := models.NewJob("old", "video", "a.mp4")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := models.NewJob("new", "video", "b.mp4")
	for _, j := range []*models.Job{older, newer} {
		if err := repo.Insert(ctx, j); err != nil {
			t.Fatalf("Failed to insert job: %v", err)
		}
	}

	list, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Errorf("Unexpected order: %v", list)
	}
}
