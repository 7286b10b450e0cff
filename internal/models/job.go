package models

import (
	"errors"
	"time"
)

// ErrJobNotFound is returned by job stores for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// Job is the persisted record of a background job.
type Job struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	Input           string     `json:"input"`
	Status          string     `json:"status"`
	Progress        float64    `json:"progress"`
	FramesProcessed int        `json:"frames_processed"`
	ProcessingTime  float64    `json:"processing_time"`
	OutputURL       *string    `json:"output_url"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

func NewJob(id, kind, input string) *Job {
	return &Job{
		ID:        id,
		Kind:      kind,
		Input:     input,
		Status:    "pending",
		CreatedAt: time.Now(),
	}
}
