package jobs

import (
	"sync"
	"time"
)

// Job is one submitted task. Its state only moves forward:
// pending → in_progress → completed | failed.
type Job struct {
	ID        string
	Kind      string
	Input     string
	CreatedAt time.Time

	mu      sync.RWMutex
	state   State
	changed chan struct{}
}

func newJob(id, kind, input string) *Job {
	return &Job{
		ID:        id,
		Kind:      kind,
		Input:     input,
		CreatedAt: time.Now(),
		state:     Pending{},
		changed:   make(chan struct{}),
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Changed returns a channel that is closed on the next state change.
func (j *Job) Changed() <-chan struct{} {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.changed
}

// transition applies next if it does not move the job backwards. Progress
// within in_progress never decreases.
func (j *Job) transition(next State) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	cur := j.state
	if cur.Terminal() || next.rank() < cur.rank() {
		return false
	}
	if p, ok := cur.(InProgress); ok {
		if n, ok := next.(InProgress); ok && n.Progress < p.Progress {
			n.Progress = p.Progress
			next = n
		}
	}

	j.state = next
	close(j.changed)
	j.changed = make(chan struct{})
	return true
}
