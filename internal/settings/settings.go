// Package settings holds the detection parameters that can be changed while the
// server is running.
package settings

import (
	"errors"
	"sync"
)

var (
	ErrConfThreshold = errors.New("conf_threshold must be between 0 and 1")
	ErrTrailLength   = errors.New("trail_length must be at least 1")
	ErrFadeSteps     = errors.New("fade_steps must be at least 1")
)

// Values is a snapshot of every tunable.
type Values struct {
	ConfThreshold float64 `json:"conf_threshold"`
	TrailLength   int     `json:"trail_length"`
	FadeSteps     int     `json:"fade_steps"`
}

func Defaults() Values {
	return Values{ConfThreshold: 0.5, TrailLength: 30, FadeSteps: 10}
}

func (v Values) Validate() error {
	if v.ConfThreshold < 0 || v.ConfThreshold > 1 {
		return ErrConfThreshold
	}
	if v.TrailLength < 1 {
		return ErrTrailLength
	}
	if v.FadeSteps < 1 {
		return ErrFadeSteps
	}
	return nil
}

// Settings is safe for concurrent use. Changes only affect work done after the
// change; frames already annotated are not revisited.
type Settings struct {
	mu sync.RWMutex
	v  Values
}

func New(v Values) (*Settings, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &Settings{v: v}, nil
}

func (s *Settings) Get() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Update replaces all values at once, or none if v is invalid.
func (s *Settings) Update(v Values) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
	return nil
}

func (s *Settings) ConfThreshold() float64 { return s.Get().ConfThreshold }
func (s *Settings) TrailLength() int        { return s.Get().TrailLength }
func (s *Settings) FadeSteps() int          { return s.Get().FadeSteps }

func (s *Settings) SetConfThreshold(c float64) error {
	return s.modify(func(v *Values) { v.ConfThreshold = c })
}

func (s *Settings) SetTrailLength(n int) error {
	return s.modify(func(v *Values) { v.TrailLength = n })
}

func (s *Settings) SetFadeSteps(n int) error {
	return s.modify(func(v *Values) { v.FadeSteps = n })
}

func (s *Settings) modify(fn func(v *Values)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.v
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.v = next
	return nil
}
