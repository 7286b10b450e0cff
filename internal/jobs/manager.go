package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"github.com/kdimtricp/vtrack/internal/models"
)

var ErrNotFound = errors.New("job not found")

// ProgressFunc is called by a task after each processed frame. total is zero
// when the frame count is unknown.
type ProgressFunc func(processed, total int)

// Task is the body of a job. It runs on its own goroutine; the context is not
// cancelled while the job runs.
type Task func(ctx context.Context, jobID string, report ProgressFunc) (Result, error)

// Store persists job history. Insert is called on submission and Update once
// the job reaches a terminal state. Get reports unknown ids with
// models.ErrJobNotFound.
type Store interface {
	Insert(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
}

// Manager runs submitted tasks in the background and answers status queries.
type Manager struct {
	log   logs.Log
	store Store

	jobs   map[string]*Job
	jobsMu sync.RWMutex
	wg     sync.WaitGroup
}

// NewManager creates a Manager. store may be nil, in which case history is kept
// in memory only.
func NewManager(log logs.Log, store Store) *Manager {
	return &Manager{
		log:   log,
		store: store,
		jobs:  make(map[string]*Job),
	}
}

// Submit starts task on a new goroutine and returns immediately.
func (m *Manager) Submit(kind, input string, task Task) *Job {
	job := newJob(uuid.New().String(), kind, input)

	m.jobsMu.Lock()
	m.jobs[job.ID] = job
	m.jobsMu.Unlock()

	if m.store != nil {
		if err := m.store.Insert(context.Background(), Record(job)); err != nil {
			m.log.Warnf("Failed to record job %v: %v", job.ID, err)
		}
	}

	m.wg.Add(1)
	go m.run(job, task)
	return job
}

func (m *Manager) run(job *Job, task Task) {
	defer m.wg.Done()

	report := func(processed, total int) {
		job.transition(InProgress{
			Progress:        Progress(processed, total),
			FramesProcessed: processed,
			TotalFrames:     total,
		})
	}

	result, err := m.safeRun(job, task, report)
	if err != nil {
		m.log.Errorf("Job %v (%v) failed: %v", job.ID, job.Kind, err)
		job.transition(Failed{Err: err})
	} else {
		m.log.Infof("Job %v (%v) completed: %v frames in %.2fs", job.ID, job.Kind, result.FramesProcessed, result.ProcessingTime.Seconds())
		job.transition(Completed{Result: result})
	}

	if m.store != nil {
		if err := m.store.Update(context.Background(), Record(job)); err != nil {
			m.log.Warnf("Failed to update job %v: %v", job.ID, err)
		}
	}
}

func (m *Manager) safeRun(job *Job, task Task, report ProgressFunc) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("Job %v panic: %v\n%s", job.ID, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(context.Background(), job.ID, report)
}

// Get returns a job by id. Jobs from earlier runs of the process are loaded
// from the store.
func (m *Manager) Get(id string) (*Job, error) {
	m.jobsMu.RLock()
	job, ok := m.jobs[id]
	m.jobsMu.RUnlock()
	if ok {
		return job, nil
	}

	if m.store == nil {
		return nil, ErrNotFound
	}
	rec, err := m.store.Get(context.Background(), id)
	if errors.Is(err, models.ErrJobNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	return FromRecord(rec), nil
}

// Wait blocks until every submitted job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Record converts a job to its persisted form.
func Record(j *Job) *models.Job {
	rec := &models.Job{
		ID:        j.ID,
		Kind:      j.Kind,
		Input:     j.Input,
		CreatedAt: j.CreatedAt,
	}
	st := j.State()
	rec.Status = string(st.Status())
	switch s := st.(type) {
	case InProgress:
		rec.Progress = s.Progress
		rec.FramesProcessed = s.FramesProcessed
	case Completed:
		rec.Progress = 100
		rec.FramesProcessed = s.Result.FramesProcessed
		rec.ProcessingTime = s.Result.ProcessingTime.Seconds()
		rec.OutputURL = s.Result.OutputURL
	case Failed:
		rec.Error = s.Err.Error()
	}
	if st.Terminal() {
		now := time.Now()
		rec.FinishedAt = &now
	}
	return rec
}

// FromRecord rebuilds a detached job from history.
func FromRecord(rec *models.Job) *Job {
	j := newJob(rec.ID, rec.Kind, rec.Input)
	j.CreatedAt = rec.CreatedAt
	switch Status(rec.Status) {
	case StatusInProgress:
		j.state = InProgress{Progress: rec.Progress, FramesProcessed: rec.FramesProcessed}
	case StatusCompleted:
		j.state = Completed{Result: Result{
			ProcessingTime:  time.Duration(rec.ProcessingTime * float64(time.Second)),
			FramesProcessed: rec.FramesProcessed,
			OutputURL:       rec.OutputURL,
		}}
	case StatusFailed:
		j.state = Failed{Err: errors.New(rec.Error)}
	}
	return j
}
