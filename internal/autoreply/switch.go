package autoreply

import "sync/atomic"

const (
	StatusActive = "active"
	StatusPaused = "paused"
)

// Switch is the process-wide auto-reply toggle.
type Switch struct {
	paused atomic.Bool
}

func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.paused.Store(!enabled)
	return s
}

func (s *Switch) Enabled() bool { return !s.paused.Load() }

func (s *Switch) Pause() string {
	s.paused.Store(true)
	return StatusPaused
}

func (s *Switch) Resume() string {
	s.paused.Store(false)
	return StatusActive
}

func (s *Switch) Status() string {
	if s.paused.Load() {
		return StatusPaused
	}
	return StatusActive
}
