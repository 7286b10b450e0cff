package frame

import (
	"fmt"
	"sync"
)

// MemorySource serves frames that are already decoded, such as a single
// uploaded image.
type MemorySource struct {
	mu     sync.Mutex
	info   Info
	frames []*Frame
	next   int
	opened bool
	closed bool
	// OpenErr, when set, makes Open fail.
	OpenErr error
}

// NewMemorySource creates a source over frames. Width and height are taken from
// the first frame when info leaves them unset.
func NewMemorySource(info Info, frames ...*Frame) *MemorySource {
	if len(frames) > 0 {
		if info.Width == 0 {
			info.Width = frames[0].Width()
		}
		if info.Height == 0 {
			info.Height = frames[0].Height()
		}
	}
	if info.TotalFrames == 0 {
		info.TotalFrames = len(frames)
	}
	return &MemorySource{info: info, frames: frames}
}

func (s *MemorySource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return fmt.Errorf("%w: %v", ErrOpen, s.OpenErr)
	}
	if s.closed {
		return fmt.Errorf("%w: source closed", ErrOpen)
	}
	s.opened = true
	return nil
}

func (s *MemorySource) Read() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened || s.closed || s.next >= len(s.frames) {
		return nil, false
	}
	f := s.frames[s.next]
	f.Index = s.next
	s.next++
	return f, true
}

func (s *MemorySource) Err() error { return nil }

func (s *MemorySource) Info() Info { return s.info }

func (s *MemorySource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (s *MemorySource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
