package player

import (
	"io"
	"time"
)

// Interface defines the sink contract for dependency injection and testing.
type Interface interface {
	Start(src io.ReadCloser, formatHint string, gain float64, base time.Duration) (<-chan Event, error)
	Stop()
	Pause()
	Resume()
	State() State
	Position() time.Duration
	SetGain(mult float64)
	SetVolume(level float64)
	Volume() float64
	SetMuted(muted bool)
	Muted() bool
}

// Verify Player implements Interface at compile time.
var _ Interface = (*Player)(nil)
