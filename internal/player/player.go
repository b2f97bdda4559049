// Package player is the decoder/sink adapter: it pulls encoded bytes from a
// stream, decodes them to PCM, applies the configured gain and writes frames
// to the audio device. The playback position is derived from frames consumed
// by the sink, independent of network arrival timing.
package player

import (
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// State is the sink-level state. The playback controller layers its own
// richer machine (Loading/Stalled/...) on top of this.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// EventKind identifies a pipeline event reported by the sink.
type EventKind int

const (
	// EventFinished: the stream decoded and played to its end.
	EventFinished EventKind = iota
	// EventError: decoding failed; Err carries the cause.
	EventError
	// EventStarved: the sample buffer ran dry before end of stream. The
	// sink keeps the device fed with silence until samples arrive.
	EventStarved
	// EventResumed: samples are flowing again after a starvation.
	EventResumed
)

// Event is reported on the channel returned by Start.
type Event struct {
	Kind EventKind
	Err  error
}

const (
	speakerBufferLen = time.Second / 10
	sampleChanSize   = 8192
	eventChanSize    = 16
)

var (
	speakerInitialized bool
	speakerSampleRate  beep.SampleRate
)

// Player owns the audio output. One stream plays at a time; Start tears
// down any previous stream first.
type Player struct {
	mu sync.Mutex

	state   State
	session *session
	ctrl    *beep.Ctrl
	gain    *effects.Gain
	volume  *effects.Volume

	volumeLevel float64
	muted       bool
}

// New creates an idle player at full volume.
func New() *Player {
	return &Player{state: Stopped, volumeLevel: 1.0}
}

// Start decodes src as the given format and plays it. gain is the linear
// ReplayGain multiplier, base the playback position the stream starts at
// (non-zero after a seek). The returned channel reports pipeline events; it
// is never closed, so callers must stop reading when they tear the pipeline
// down.
func (p *Player) Start(src io.ReadCloser, formatHint string, gain float64, base time.Duration) (<-chan Event, error) {
	p.Stop()

	streamer, format, err := decode(formatHint, src)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !speakerInitialized {
		speakerSampleRate = format.SampleRate
		if err := speaker.Init(speakerSampleRate, speakerSampleRate.N(speakerBufferLen)); err != nil {
			closeIfCloser(streamer)
			src.Close()
			return nil, &OutputError{Err: err}
		}
		speakerInitialized = true
	}

	sess := &session{
		src:        src,
		sampleCh:   make(chan [2]float64, sampleChanSize),
		quit:       make(chan struct{}),
		events:     make(chan Event, eventChanSize),
		sampleRate: format.SampleRate,
		base:       base,
	}
	p.session = sess

	go sess.decodeLoop(streamer)

	sink := &sinkStreamer{session: sess}
	var play beep.Streamer = sink
	if format.SampleRate != speakerSampleRate {
		play = beep.Resample(4, format.SampleRate, speakerSampleRate, sink)
	}

	p.gain = &effects.Gain{Streamer: play, Gain: gain - 1}
	p.volume = &effects.Volume{
		Streamer: p.gain,
		Base:     2,
		Volume:   levelToVolume(p.volumeLevel),
		Silent:   p.muted || p.volumeLevel == 0,
	}
	p.ctrl = &beep.Ctrl{Streamer: p.volume, Paused: false}
	p.state = Playing

	speaker.Play(beep.Seq(p.ctrl, beep.Callback(func() {
		sess.send(Event{Kind: EventFinished})
	})))

	return sess.events, nil
}

// Stop halts playback and releases the stream source. Safe to call in any
// state and more than once.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Stopped {
		return
	}

	speaker.Clear()

	if p.session != nil {
		p.session.close()
		p.session = nil
	}
	p.ctrl = nil
	p.gain = nil
	p.volume = nil
	p.state = Stopped
}

// Pause pauses output. No-op unless playing.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Playing || p.ctrl == nil {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
	p.state = Paused
}

// Resume resumes paused output. No-op unless paused.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Paused || p.ctrl == nil {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
	p.state = Playing
}

// State returns the sink state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Position returns the stream's base position plus the time represented by
// the frames the sink has consumed so far.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()

	if sess == nil {
		return 0
	}
	return sess.position()
}

// SetGain updates the ReplayGain multiplier of the live stream.
func (p *Player) SetGain(mult float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gain == nil {
		return
	}
	speaker.Lock()
	p.gain.Gain = mult - 1
	speaker.Unlock()
}

func closeIfCloser(s beep.Streamer) {
	if c, ok := s.(io.Closer); ok {
		c.Close()
	}
}

// session is one decode pipeline instance: decode goroutine, sample buffer
// and sink bookkeeping.
type session struct {
	src      io.ReadCloser
	sampleCh chan [2]float64
	quit     chan struct{}
	quitOnce sync.Once
	events   chan Event

	sampleRate beep.SampleRate
	base       time.Duration

	posMu    sync.Mutex
	consumed int
}

func (s *session) close() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.src.Close()
}

// send delivers an event without ever blocking the audio path.
func (s *session) send(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

func (s *session) addConsumed(n int) {
	s.posMu.Lock()
	s.consumed += n
	s.posMu.Unlock()
}

func (s *session) position() time.Duration {
	s.posMu.Lock()
	n := s.consumed
	s.posMu.Unlock()
	return s.base + s.sampleRate.D(n)
}

// decodeLoop pulls PCM from the decoder into the sample buffer. It is the
// only goroutine allowed to block on the encoded stream.
func (s *session) decodeLoop(streamer beep.Streamer) {
	defer func() {
		closeIfCloser(streamer)
		close(s.sampleCh)
	}()

	buf := make([][2]float64, 512)
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		n, ok := streamer.Stream(buf)
		for i := 0; i < n; i++ {
			select {
			case s.sampleCh <- buf[i]:
			case <-s.quit:
				return
			}
		}
		if !ok {
			if err := streamer.Err(); err != nil {
				s.send(Event{Kind: EventError, Err: err})
			}
			return
		}
	}
}

// sinkStreamer feeds the speaker from the sample buffer with non-blocking
// reads: an empty buffer produces silence rather than blocking the audio
// device on the network.
type sinkStreamer struct {
	session *session
	starved bool
	done    bool
}

func (ss *sinkStreamer) Stream(samples [][2]float64) (int, bool) {
	s := ss.session
	filled := 0

	pulling := true
	for filled < len(samples) && !ss.done && pulling {
		select {
		case sample, more := <-s.sampleCh:
			if !more {
				ss.done = true
			} else {
				samples[filled] = sample
				filled++
			}
		default:
			// Buffer dry; emit silence for the rest of this batch.
			pulling = false
		}
	}

	if filled > 0 {
		s.addConsumed(filled)
		if ss.starved {
			ss.starved = false
			s.send(Event{Kind: EventResumed})
		}
	}

	if ss.done && filled == 0 {
		return 0, false
	}

	if filled == 0 && !ss.done && !ss.starved {
		ss.starved = true
		s.send(Event{Kind: EventStarved})
	}

	for i := filled; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (ss *sinkStreamer) Err() error { return nil }
