package stream

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kdimtricp/vtrack/internal/detect"
)

// Registry is the table of active streams. Entries are only removed
// explicitly; removing a stream does not stop it.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*LiveStream
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*LiveStream)}
}

// Register inserts s under its id. Ids are generated, so a collision is a bug.
func (r *Registry) Register(s *LiveStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.streams[s.ID()]; exists {
		panic(fmt.Sprintf("stream %v registered twice", s.ID()))
	}
	r.streams[s.ID()] = s
}

func (r *Registry) Lookup(id string) (*LiveStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	return s, ok
}

// Remove deletes the entry for id and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[id]
	delete(r.streams, id)
	return ok
}

// List returns all registered streams ordered by id.
func (r *Registry) List() []*LiveStream {
	r.mu.RLock()
	list := make([]*LiveStream, 0, len(r.streams))
	for _, s := range r.streams {
		list = append(list, s)
	}
	r.mu.RUnlock()

	slices.SortFunc(list, func(a, b *LiveStream) int { return strings.Compare(a.ID(), b.ID()) })
	return list
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// LatestDetections returns the latest detections of stream id.
func (r *Registry) LatestDetections(id string) ([]detect.TrackedObject, bool) {
	s, ok := r.Lookup(id)
	if !ok {
		return nil, false
	}
	return s.LatestDetections(), true
}
