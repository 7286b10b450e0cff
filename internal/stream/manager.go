package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"github.com/kdimtricp/vtrack/internal/annotate"
	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/kdimtricp/vtrack/internal/settings"
)

var ErrNotFound = errors.New("stream not found")

// Manager starts and stops live streams and keeps the registry in step.
type Manager struct {
	Log         logs.Log
	Registry    *Registry
	Publisher   Publisher
	Trackers    detect.Factory
	Settings    *settings.Settings
	OpenDevice  func() frame.Source
	FrameRate   float64
	StopTimeout time.Duration
}

// Start creates a stream with a fresh id, opens the camera and registers the
// stream. Nothing is registered when the camera cannot be opened.
func (m *Manager) Start(confThreshold float64) (*LiveStream, error) {
	id := uuid.New().String()
	s := NewLiveStream(Config{
		ID:            id,
		ConfThreshold: confThreshold,
		FrameRate:     m.FrameRate,
		StopTimeout:   m.StopTimeout,
	}, m.Log, m.OpenDevice(), m.Trackers.Session(id), annotate.NewFromSettings(m.Settings), m.Publisher)

	if err := s.Start(); err != nil {
		return nil, err
	}
	m.Registry.Register(s)
	return s, nil
}

// Stop stops stream id, releases its camera and removes it from the registry.
func (m *Manager) Stop(id string) error {
	s, ok := m.Registry.Lookup(id)
	if !ok {
		return ErrNotFound
	}
	s.Stop()
	m.Registry.Remove(id)
	m.Log.Infof("Stream %v stopped", id)
	return nil
}

// StopAll stops every registered stream concurrently.
func (m *Manager) StopAll() {
	var wg sync.WaitGroup
	for _, s := range m.Registry.List() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.Stop(id)
		}(s.ID())
	}
	wg.Wait()
}
