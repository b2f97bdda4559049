// Package playback coordinates the streaming pipeline: it supervises the
// fetcher, ring buffer and audio sink for one track at a time, runs the
// transport state machine and fans events out to subscribers (UI, MPRIS,
// scrobbler). All state transitions happen on a single command loop, so
// concurrent transport commands and pipeline events are never raced.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/subwave/internal/fetch"
	"github.com/llehouerou/subwave/internal/player"
	"github.com/llehouerou/subwave/internal/replaygain"
	"github.com/llehouerou/subwave/internal/ringbuf"
)

// URLSource resolves a track ID to a streaming URL. Implemented by the
// Subsonic client. format and maxBitRate request server-side transcoding;
// zero values stream the original file.
type URLSource interface {
	StreamURL(id, format string, maxBitRate int) string
}

// Fetcher opens HTTP byte streams with optional range offsets. Implemented
// by fetch.Fetcher.
type Fetcher interface {
	Open(ctx context.Context, url string, offset int64) (*fetch.Stream, error)
}

// Options tune the controller. Zero values select the defaults.
type Options struct {
	// Prebuffer is how many bytes must be buffered before playback
	// starts.
	Prebuffer int
	// BufferSize is the ring buffer capacity in bytes.
	BufferSize int
	// RetryAttempts is the reconnect budget per track for transient
	// network failures. A negative value disables reconnects entirely;
	// zero selects the default.
	RetryAttempts int
	// RetryDelay is the base backoff, doubled on each attempt.
	RetryDelay time.Duration
	// GainMode selects the initial ReplayGain mode.
	GainMode replaygain.Mode
	// TranscodeFormat, when set, asks the server to transcode every
	// stream. Formats the decoder cannot handle are transcoded to mp3
	// regardless.
	TranscodeFormat string
	// TranscodeMaxBitRate caps the transcode bitrate in kbit/s.
	TranscodeMaxBitRate int

	// Logger receives pipeline diagnostics. Defaults to a disabled
	// logger.
	Logger *zerolog.Logger
}

func (o *Options) withDefaults() {
	if o.Prebuffer <= 0 {
		o.Prebuffer = 128 << 10
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 2 << 20
	}
	if o.Prebuffer > o.BufferSize {
		o.Prebuffer = o.BufferSize
	}
	switch {
	case o.RetryAttempts < 0:
		o.RetryAttempts = 0
	case o.RetryAttempts == 0:
		o.RetryAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
}

// Controller is the playback state machine. One instance per application.
type Controller struct {
	player  player.Interface
	fetcher Fetcher
	urls    URLSource
	opts    Options
	log     zerolog.Logger

	cmdCh   chan command
	pipeCh  chan pipeEvent
	done    chan struct{}
	stopped chan struct{}

	mu       sync.RWMutex
	state    State
	gainMode replaygain.Mode
	gainInfo replaygain.Result
	lastErr  *Error

	subs   []*Subscription
	subsMu sync.RWMutex

	// Loop-owned; never touched outside the command loop.
	queue *Queue
	cur   *pipeline
	gen   uint64

	closeOnce sync.Once
}

type command struct {
	fn    func() error
	reply chan error
}

// New creates a controller and starts its command loop.
func New(p player.Interface, f Fetcher, urls URLSource, opts Options) *Controller {
	opts.withDefaults()
	c := &Controller{
		player:   p,
		fetcher:  f,
		urls:     urls,
		opts:     opts,
		log:      *opts.Logger,
		cmdCh:    make(chan command),
		pipeCh:   make(chan pipeEvent, 32),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		state:    StateIdle,
		gainMode: opts.GainMode,
		queue:    NewQueue(),
	}
	go c.loop()
	return c
}

// Close tears down the pipeline and stops the command loop. Subsequent
// operations return ErrClosed.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.stopped

		c.subsMu.Lock()
		for _, sub := range c.subs {
			sub.close()
		}
		c.subs = nil
		c.subsMu.Unlock()
	})
	return nil
}

// Subscribe creates a new event subscription.
func (c *Controller) Subscribe() *Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	sub := newSubscription()
	c.subs = append(c.subs, sub)
	return sub
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the failure that put the controller in StateError, nil
// otherwise.
func (c *Controller) LastError() *Error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Position returns the playback position of the current track.
func (c *Controller) Position() time.Duration {
	if !c.State().IsActive() {
		return 0
	}
	return c.player.Position()
}

// GainMode returns the active ReplayGain mode.
func (c *Controller) GainMode() replaygain.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gainMode
}

// GainInfo returns the normalization applied to the current track.
func (c *Controller) GainInfo() replaygain.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gainInfo
}

// Volume returns the user volume level in [0, 1].
func (c *Controller) Volume() float64 { return c.player.Volume() }

// Muted returns whether output is muted.
func (c *Controller) Muted() bool { return c.player.Muted() }

// Current returns a copy of the current track, nil when the queue is empty.
func (c *Controller) Current() *Track {
	var t *Track
	_ = c.do(func() error {
		t = c.queue.Current()
		return nil
	})
	return t
}

// Tracks returns a snapshot of the queue.
func (c *Controller) Tracks() []Track {
	var out []Track
	_ = c.do(func() error {
		out = c.queue.Tracks()
		return nil
	})
	return out
}

// Index returns the current queue index, -1 when empty.
func (c *Controller) Index() int {
	i := -1
	_ = c.do(func() error {
		i = c.queue.Index()
		return nil
	})
	return i
}

// SetQueue replaces the queue. Any running pipeline is torn down and the
// controller returns to Idle; call Play to start the first track.
func (c *Controller) SetQueue(tracks []Track) error {
	return c.do(func() error {
		c.teardown()
		c.queue.Replace(tracks)
		c.setState(StateIdle)
		c.emitQueue()
		return nil
	})
}

// Enqueue appends tracks to the queue without touching playback.
func (c *Controller) Enqueue(tracks ...Track) error {
	return c.do(func() error {
		c.queue.Append(tracks...)
		c.emitQueue()
		return nil
	})
}

// ClearQueue stops playback and empties the queue.
func (c *Controller) ClearQueue() error {
	return c.do(func() error {
		c.teardown()
		c.queue.Clear()
		c.setState(StateIdle)
		c.emitQueue()
		return nil
	})
}

// Play starts the current queue track from Idle or Error, and resumes from
// Paused. No-op while Loading, Playing or Stalled.
func (c *Controller) Play() error {
	return c.do(func() error {
		switch c.stateLocked() {
		case StatePlaying, StateLoading, StateStalled:
			return nil
		case StatePaused:
			c.player.Resume()
			c.setState(StatePlaying)
			return nil
		default: // Idle, Error
			return c.playCurrent()
		}
	})
}

// PlayTrackAt jumps to the given queue index and starts it.
func (c *Controller) PlayTrackAt(index int) error {
	return c.do(func() error {
		prev, prevIdx := c.queue.Current(), c.queue.Index()
		if !c.queue.SetIndex(index) {
			return fmt.Errorf("playback: index %d out of range", index)
		}
		if err := c.startCurrent(0, false); err != nil {
			return err
		}
		c.emitTrackChange(prev, prevIdx)
		return nil
	})
}

// Pause suspends output. Only legal while Playing.
func (c *Controller) Pause() error {
	return c.do(func() error {
		if st := c.stateLocked(); st != StatePlaying {
			return fmt.Errorf("%w: pause in state %s", ErrInvalidTransition, st)
		}
		c.player.Pause()
		c.setState(StatePaused)
		return nil
	})
}

// Toggle pauses when playing, resumes when paused, starts playback
// otherwise.
func (c *Controller) Toggle() error {
	return c.do(func() error {
		switch c.stateLocked() {
		case StatePlaying:
			c.player.Pause()
			c.setState(StatePaused)
			return nil
		case StatePaused:
			c.player.Resume()
			c.setState(StatePlaying)
			return nil
		case StateLoading, StateStalled:
			return nil
		default:
			return c.playCurrent()
		}
	})
}

// Stop tears down the pipeline and returns to Idle. Not legal from Idle.
func (c *Controller) Stop() error {
	return c.do(func() error {
		if st := c.stateLocked(); st == StateIdle {
			return fmt.Errorf("%w: stop in state %s", ErrInvalidTransition, st)
		}
		c.teardown()
		c.clearError()
		c.setState(StateIdle)
		return nil
	})
}

// Next skips to the following track, wrapping to the first after the last.
func (c *Controller) Next() error {
	return c.do(func() error { return c.skip((*Queue).Next) })
}

// Previous moves to the preceding track, staying on the first.
func (c *Controller) Previous() error {
	return c.do(func() error { return c.skip((*Queue).Previous) })
}

// skip is deliberately legal from StateError: a track that failed must not
// block moving through the rest of the queue, so Error accepts Play, Stop,
// Next and Previous while rejecting Pause and seeks.
func (c *Controller) skip(move func(*Queue) bool) error {
	st := c.stateLocked()
	if st == StateIdle {
		return fmt.Errorf("%w: skip in state %s", ErrInvalidTransition, st)
	}
	prev, prevIdx := c.queue.Current(), c.queue.Index()
	if !move(c.queue) {
		return ErrEmptyQueue
	}
	if err := c.startCurrent(0, false); err != nil {
		return err
	}
	c.emitTrackChange(prev, prevIdx)
	return nil
}

// SeekTo restarts the pipeline at the given position. Legal while Playing,
// Paused or Stalled; a seek while paused stays paused.
func (c *Controller) SeekTo(pos time.Duration) error {
	return c.do(func() error { return c.seekTo(pos) })
}

// Seek moves relative to the current position.
func (c *Controller) Seek(delta time.Duration) error {
	return c.do(func() error { return c.seekTo(c.player.Position() + delta) })
}

func (c *Controller) seekTo(pos time.Duration) error {
	st := c.stateLocked()
	if st != StatePlaying && st != StatePaused && st != StateStalled {
		return fmt.Errorf("%w: seek in state %s", ErrInvalidTransition, st)
	}
	t := c.queue.Current()
	if t == nil {
		return ErrEmptyQueue
	}
	if pos < 0 {
		pos = 0
	}
	if t.Duration > 0 && pos > t.Duration {
		pos = t.Duration
	}
	if err := c.startCurrent(pos, st == StatePaused); err != nil {
		return err
	}
	c.emitPosition(pos)
	return nil
}

// SetGainMode switches ReplayGain normalization and applies the recomputed
// multiplier to the live stream.
func (c *Controller) SetGainMode(mode replaygain.Mode) error {
	return c.do(func() error {
		c.mu.Lock()
		c.gainMode = mode
		c.mu.Unlock()

		var res replaygain.Result
		if t := c.queue.Current(); t != nil {
			res = replaygain.Normalize(t.Gain, mode)
		} else {
			res = replaygain.Normalize(replaygain.Tags{}, mode)
		}
		c.mu.Lock()
		c.gainInfo = res
		c.mu.Unlock()

		if c.cur != nil {
			c.player.SetGain(res.Multiplier)
		}
		c.emitGain(GainChange{Mode: mode, Applied: res})
		return nil
	})
}

// SetVolume sets the user volume level in [0, 1].
func (c *Controller) SetVolume(level float64) error {
	return c.do(func() error {
		if level < 0 {
			level = 0
		}
		if level > 1 {
			level = 1
		}
		c.player.SetVolume(level)
		c.emitVolume(VolumeChange{Level: level, Muted: c.player.Muted()})
		return nil
	})
}

// SetMuted mutes or unmutes output without losing the volume level.
func (c *Controller) SetMuted(muted bool) error {
	return c.do(func() error {
		c.player.SetMuted(muted)
		c.emitVolume(VolumeChange{Level: c.player.Volume(), Muted: muted})
		return nil
	})
}

// do runs fn on the command loop and waits for its result.
func (c *Controller) do(fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmdCh <- cmd:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.stopped:
		return ErrClosed
	}
}

func (c *Controller) loop() {
	defer close(c.stopped)
	for {
		select {
		case cmd := <-c.cmdCh:
			cmd.reply <- cmd.fn()
		case ev := <-c.pipeCh:
			c.handlePipe(ev)
		case <-c.done:
			c.teardown()
			return
		}
	}
}

func (c *Controller) stateLocked() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// setState records a transition and emits exactly one StateChange when the
// state actually changed.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	if prev == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("state change")
	c.subsMu.RLock()
	for _, sub := range c.subs {
		sub.sendState(StateChange{Previous: prev, Current: s})
	}
	c.subsMu.RUnlock()
}

func (c *Controller) clearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
}

func (c *Controller) emitTrackChange(prev *Track, prevIdx int) {
	cur, idx := c.queue.Current(), c.queue.Index()
	if prev != nil && cur != nil && prev.ID == cur.ID && prevIdx == idx {
		return
	}
	e := TrackChange{Previous: prev, Current: cur, PreviousIndex: prevIdx, Index: idx}
	c.subsMu.RLock()
	for _, sub := range c.subs {
		sub.sendTrack(e)
	}
	c.subsMu.RUnlock()
}

func (c *Controller) emitQueue() {
	e := QueueChange{Tracks: c.queue.Tracks(), Index: c.queue.Index()}
	c.subsMu.RLock()
	for _, sub := range c.subs {
		sub.sendQueue(e)
	}
	c.subsMu.RUnlock()
}

func (c *Controller) emitPosition(pos time.Duration) {
	c.subsMu.RLock()
	for _, sub := range c.subs {
		sub.sendPosition(pos)
	}
	c.subsMu.RUnlock()
}

func (c *Controller) emitVolume(e VolumeChange) {
	c.subsMu.RLock()
	for _, sub := range c.subs {
		sub.sendVolume(e)
	}
	c.subsMu.RUnlock()
}

func (c *Controller) emitGain(e GainChange) {
	c.subsMu.RLock()
	for _, sub := range c.subs {
		sub.sendGain(e)
	}
	c.subsMu.RUnlock()
}

func (c *Controller) emitError(e ErrorEvent) {
	c.subsMu.RLock()
	for _, sub := range c.subs {
		sub.sendError(e)
	}
	c.subsMu.RUnlock()
}

// playCurrent starts the current queue track from the beginning, emitting a
// TrackChange.
func (c *Controller) playCurrent() error {
	prev, prevIdx := c.queue.Current(), c.queue.Index()
	if err := c.startCurrent(0, false); err != nil {
		return err
	}
	// Starting from Idle/Error is a track change even when the index did
	// not move.
	e := TrackChange{Previous: prev, Current: c.queue.Current(), PreviousIndex: prevIdx, Index: c.queue.Index()}
	c.subsMu.RLock()
	for _, sub := range c.subs {
		sub.sendTrack(e)
	}
	c.subsMu.RUnlock()
	return nil
}

// pipeline is one fetch/buffer/decode instance. Events from older
// generations are discarded by the loop.
type pipeline struct {
	gen   uint64
	track Track

	ctx    context.Context
	cancel context.CancelFunc
	buf    *ringbuf.Buffer

	url     string
	suffix  string
	byteOff int64
	base    time.Duration

	primed       bool
	resumePaused bool
	netDone      bool
	attempt      int
	resumeAt     int64
	retryTimer   *time.Timer
}

// startCurrent tears down any running pipeline and primes a new one for the
// current queue track at the given position.
func (c *Controller) startCurrent(base time.Duration, resumePaused bool) error {
	t := c.queue.Current()
	if t == nil {
		return ErrEmptyQueue
	}
	c.teardown()
	c.clearError()

	suffix := t.Suffix
	format := c.opts.TranscodeFormat
	if format == "" && !player.Supports(suffix) {
		format = "mp3"
	}
	if format != "" {
		suffix = format
	}
	url := c.urls.StreamURL(t.ID, format, c.opts.TranscodeMaxBitRate)

	res := replaygain.Normalize(t.Gain, c.GainMode())
	c.mu.Lock()
	c.gainInfo = res
	c.mu.Unlock()
	c.emitGain(GainChange{Mode: c.GainMode(), Applied: res})

	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	p := &pipeline{
		gen:          c.gen,
		track:        *t,
		ctx:          ctx,
		cancel:       cancel,
		buf:          ringbuf.New(c.opts.BufferSize),
		url:          url,
		suffix:       suffix,
		byteOff:      t.byteOffset(base),
		base:         base,
		resumePaused: resumePaused,
	}
	p.resumeAt = p.byteOff
	c.cur = p
	c.setState(StateLoading)

	c.log.Debug().
		Str("track", t.ID).
		Str("title", t.Title).
		Int64("offset", p.byteOff).
		Uint64("gen", p.gen).
		Msg("starting pipeline")

	go c.runFetch(ctx, p.gen, p.buf, url, p.byteOff, true, false)
	return nil
}

// teardown cancels the current pipeline. Safe to call when none is running.
func (c *Controller) teardown() {
	p := c.cur
	if p == nil {
		return
	}
	if p.retryTimer != nil {
		p.retryTimer.Stop()
	}
	p.cancel()
	p.buf.Close()
	c.player.Stop()
	c.cur = nil
}

type pipeKind int

const (
	pipeOpened pipeKind = iota
	pipePrimed
	pipeFetchDone
	pipeFetchError
	pipeRetry
	pipeStarved
	pipeResumed
	pipeFinished
	pipeDecodeError
)

type pipeEvent struct {
	gen  uint64
	kind pipeKind
	err  error
	// offset is the actual stream start for pipeOpened and the resume
	// point for pipeFetchError.
	offset int64
}

func (c *Controller) sendPipe(ev pipeEvent) {
	select {
	case c.pipeCh <- ev:
	case <-c.done:
	}
}

func (c *Controller) handlePipe(ev pipeEvent) {
	p := c.cur
	if p == nil || ev.gen != p.gen {
		c.log.Debug().Uint64("gen", ev.gen).Msg("discarding stale pipeline event")
		return
	}
	switch ev.kind {
	case pipeOpened:
		if ev.offset != p.resumeAt {
			// Server ignored the range request; the stream restarts
			// from the beginning and so does the position clock.
			c.log.Warn().
				Int64("requested", p.resumeAt).
				Int64("actual", ev.offset).
				Msg("server ignored range request")
			p.base = 0
		}
		p.resumeAt = ev.offset
	case pipePrimed:
		c.startSink(p)
	case pipeFetchDone:
		p.netDone = true
	case pipeFetchError:
		c.handleFetchError(p, ev)
	case pipeRetry:
		go c.runFetch(p.ctx, p.gen, p.buf, p.url, p.resumeAt, false, p.primed)
	case pipeStarved:
		if !p.netDone && c.stateLocked() == StatePlaying {
			c.setState(StateStalled)
		}
	case pipeResumed:
		p.attempt = 0
		if c.stateLocked() == StateStalled {
			c.setState(StatePlaying)
		}
	case pipeFinished:
		c.handleFinished()
	case pipeDecodeError:
		kind := ErrorDecode
		var oe *player.OutputError
		if errors.As(ev.err, &oe) {
			kind = ErrorOutput
		}
		c.fail(p, &Error{Kind: kind, TrackID: p.track.ID, Err: ev.err})
	}
}

// startSink hands the primed buffer to the audio sink. Called once per
// pipeline, when enough bytes are buffered for decoding to start.
func (c *Controller) startSink(p *pipeline) {
	if p.primed {
		return
	}
	p.primed = true

	events, err := c.player.Start(p.buf, p.suffix, c.GainInfo().Multiplier, p.base)
	if err != nil {
		kind := ErrorDecode
		var oe *player.OutputError
		if errors.As(err, &oe) {
			kind = ErrorOutput
		}
		c.fail(p, &Error{Kind: kind, TrackID: p.track.ID, Err: err})
		return
	}
	go c.forwardSink(p.gen, events, p.ctx.Done())

	if p.resumePaused {
		c.player.Pause()
		c.setState(StatePaused)
	} else {
		c.setState(StatePlaying)
	}
}

// forwardSink tags sink events with the pipeline generation so the loop can
// discard events from a torn-down pipeline.
func (c *Controller) forwardSink(gen uint64, events <-chan player.Event, cancel <-chan struct{}) {
	for {
		select {
		case e := <-events:
			var kind pipeKind
			switch e.Kind {
			case player.EventFinished:
				kind = pipeFinished
			case player.EventError:
				kind = pipeDecodeError
			case player.EventStarved:
				kind = pipeStarved
			case player.EventResumed:
				kind = pipeResumed
			default:
				continue
			}
			c.sendPipe(pipeEvent{gen: gen, kind: kind, err: e.Err})
		case <-cancel:
			return
		case <-c.done:
			return
		}
	}
}

// handleFetchError retries transient failures within the attempt budget and
// fails the track otherwise.
func (c *Controller) handleFetchError(p *pipeline, ev pipeEvent) {
	if errors.Is(ev.err, context.Canceled) || errors.Is(ev.err, ringbuf.ErrClosed) {
		return
	}
	kind := classifyFetch(ev.err)
	if kind == ErrorNetwork && retryable(ev.err) && p.attempt < c.opts.RetryAttempts {
		p.attempt++
		p.resumeAt = ev.offset
		delay := c.opts.RetryDelay << (p.attempt - 1)
		c.log.Warn().
			Err(ev.err).
			Int("attempt", p.attempt).
			Dur("delay", delay).
			Msg("stream interrupted, scheduling reconnect")
		if c.stateLocked() == StatePlaying {
			c.setState(StateStalled)
		}
		gen := p.gen
		p.retryTimer = time.AfterFunc(delay, func() {
			c.sendPipe(pipeEvent{gen: gen, kind: pipeRetry})
		})
		return
	}
	c.fail(p, &Error{Kind: kind, TrackID: p.track.ID, Err: ev.err})
}

// fail puts the controller in StateError for the given track. Decode
// failures skip to the next queued track so one bad file does not halt the
// queue.
func (c *Controller) fail(p *pipeline, perr *Error) {
	track := p.track
	c.teardown()

	c.mu.Lock()
	c.lastErr = perr
	c.mu.Unlock()
	c.setState(StateError)

	c.log.Error().Err(perr.Err).
		Str("track", track.ID).
		Stringer("kind", perr.Kind).
		Msg("playback failed")
	c.emitError(ErrorEvent{Track: &track, Err: perr})

	if perr.Kind == ErrorDecode && c.queue.HasNext() {
		prev, prevIdx := c.queue.Current(), c.queue.Index()
		c.queue.Advance()
		if err := c.startCurrent(0, false); err != nil {
			c.log.Error().Err(err).Msg("failed to skip past broken track")
			return
		}
		c.emitTrackChange(prev, prevIdx)
	}
}

// handleFinished advances the queue when a track plays to its end, or
// returns to Idle at the end of the queue.
func (c *Controller) handleFinished() {
	prev, prevIdx := c.queue.Current(), c.queue.Index()
	c.teardown()
	if !c.queue.Advance() {
		c.setState(StateIdle)
		return
	}
	if err := c.startCurrent(0, false); err != nil {
		c.log.Error().Err(err).Msg("failed to start next track")
		c.setState(StateIdle)
		return
	}
	c.emitTrackChange(prev, prevIdx)
}

const fetchChunkSize = 32 << 10

// runFetch streams track bytes into the ring buffer. The initial fetch of a
// pipeline reports the actual stream start, so a server that ignores range
// requests degrades a seek into a restart. A reconnect skips anything the
// buffer already received, so the decoder never sees duplicate bytes even
// without server range support. primed is true once the sink has started;
// until then the prebuffer threshold is reported when reached.
func (c *Controller) runFetch(ctx context.Context, gen uint64, buf *ringbuf.Buffer, url string, offset int64, initial, primed bool) {
	st, err := c.fetcher.Open(ctx, url, offset)
	if err != nil {
		c.sendPipe(pipeEvent{gen: gen, kind: pipeFetchError, err: err, offset: offset})
		return
	}
	defer st.Body.Close()

	if initial {
		c.sendPipe(pipeEvent{gen: gen, kind: pipeOpened, offset: st.Offset})
		offset = st.Offset
	} else if st.Offset < offset {
		if _, err := io.CopyN(io.Discard, st.Body, offset-st.Offset); err != nil {
			c.sendPipe(pipeEvent{gen: gen, kind: pipeFetchError, err: err, offset: offset})
			return
		}
	}

	primedSent := primed
	written := offset
	chunk := make([]byte, fetchChunkSize)
	for {
		n, rerr := st.Body.Read(chunk)
		if n > 0 {
			if _, werr := buf.Write(chunk[:n]); werr != nil {
				// Pipeline torn down while we were blocked on a
				// full buffer.
				return
			}
			written += int64(n)
			if !primedSent && buf.Buffered() >= c.opts.Prebuffer {
				primedSent = true
				c.sendPipe(pipeEvent{gen: gen, kind: pipePrimed})
			}
		}
		switch {
		case rerr == io.EOF:
			if !primedSent {
				c.sendPipe(pipeEvent{gen: gen, kind: pipePrimed})
			}
			buf.CloseWrite()
			c.sendPipe(pipeEvent{gen: gen, kind: pipeFetchDone})
			return
		case rerr != nil:
			c.sendPipe(pipeEvent{gen: gen, kind: pipeFetchError, err: rerr, offset: written})
			return
		}
	}
}
