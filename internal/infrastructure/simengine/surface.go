package simengine

import (
	"sync"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
)

// Surface records what is rendered into it.
type Surface struct {
	id string

	mu      sync.Mutex
	trackID string
	opts    ports.PlayOptions
	renders int
	clears  int
}

func NewSurface(id string) *Surface {
	return &Surface{id: id}
}

func (s *Surface) ID() string { return s.id }

func (s *Surface) Render(trackID string, opts ports.PlayOptions) {
	s.mu.Lock()
	s.trackID = trackID
	s.opts = opts
	s.renders++
	s.mu.Unlock()
}

func (s *Surface) Clear() {
	s.mu.Lock()
	s.trackID = ""
	s.opts = ports.PlayOptions{}
	s.clears++
	s.mu.Unlock()
}

// Playing returns the track currently rendered, if any.
func (s *Surface) Playing() (string, ports.PlayOptions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackID, s.opts, s.trackID != ""
}

func (s *Surface) Renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

func (s *Surface) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}
