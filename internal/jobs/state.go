// Package jobs runs background tasks and tracks their state until they finish.
package jobs

import "time"

// Status names a state on the wire and in the job history table.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// State is one of Pending, InProgress, Completed or Failed. Each case carries
// only the fields that are valid for it.
type State interface {
	Status() Status
	Terminal() bool
	rank() int
}

type Pending struct{}

// InProgress is reported after each processed frame. Progress is in [0, 100]
// and stays at zero when the total frame count is unknown.
type InProgress struct {
	Progress        float64
	FramesProcessed int
	TotalFrames     int
}

type Completed struct {
	Result Result
}

type Failed struct {
	Err error
}

func (Pending) Status() Status    { return StatusPending }
func (InProgress) Status() Status { return StatusInProgress }
func (Completed) Status() Status  { return StatusCompleted }
func (Failed) Status() Status     { return StatusFailed }

func (Pending) Terminal() bool    { return false }
func (InProgress) Terminal() bool { return false }
func (Completed) Terminal() bool  { return true }
func (Failed) Terminal() bool     { return true }

func (Pending) rank() int    { return 0 }
func (InProgress) rank() int { return 1 }
func (Completed) rank() int  { return 2 }
func (Failed) rank() int     { return 2 }

// Result summarizes a finished batch run. OutputURL is nil when no output video
// was requested.
type Result struct {
	ProcessingTime  time.Duration `json:"-"`
	FramesProcessed int           `json:"frames_processed"`
	OutputURL       *string       `json:"output_video_url"`
}

// Progress computes the percentage of processed frames, capped at 100. A zero
// total means the count is unknown.
func Progress(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(processed) / float64(total) * 100
	return min(p, 100)
}
