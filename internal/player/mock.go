package player

import (
	"io"
	"sync"
	"time"
)

// Mock is a test double for Player.
type Mock struct {
	mu sync.Mutex

	state       State
	position    time.Duration
	volumeLevel float64
	muted       bool
	gain        float64

	startErr   error
	startCalls []StartCall
	events     chan Event
}

// StartCall records one Start invocation.
type StartCall struct {
	FormatHint string
	Gain       float64
	Base       time.Duration
}

// NewMock creates a new mock player for testing.
func NewMock() *Mock {
	return &Mock{state: Stopped, volumeLevel: 1.0}
}

func (m *Mock) Start(src io.ReadCloser, formatHint string, gain float64, base time.Duration) (<-chan Event, error) {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.startCalls = append(m.startCalls, StartCall{FormatHint: formatHint, Gain: gain, Base: base})
	if m.startErr != nil {
		src.Close()
		return nil, m.startErr
	}

	m.state = Playing
	m.position = base
	m.gain = gain
	m.events = make(chan Event, eventChanSize)
	return m.events, nil
}

func (m *Mock) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Stopped
	m.events = nil
}

func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Playing {
		m.state = Paused
	}
}

func (m *Mock) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Paused {
		m.state = Playing
	}
}

func (m *Mock) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) SetGain(mult float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gain = mult
}

func (m *Mock) SetVolume(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumeLevel = level
}

func (m *Mock) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumeLevel
}

func (m *Mock) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

func (m *Mock) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// Test helpers

func (m *Mock) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

func (m *Mock) SetPosition(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = d
}

func (m *Mock) StartCalls() []StartCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]StartCall, len(m.startCalls))
	copy(calls, m.startCalls)
	return calls
}

func (m *Mock) Gain() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gain
}

// Emit delivers an event to the current session's channel, simulating the
// decode pipeline. No-op when stopped.
func (m *Mock) Emit(e Event) {
	m.mu.Lock()
	ch := m.events
	m.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	default:
	}
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
