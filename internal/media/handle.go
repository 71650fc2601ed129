package media

import (
	"fmt"
	"math"
	"sync"
)

// Options carries the optional per-handle callbacks. Any of them may be nil.
type Options struct {
	// OnSuccess fires when playback reaches STOPPED.
	OnSuccess func()
	// OnError receives native errors for this handle.
	OnError func(*Error)
	// OnStatus receives every STATE update.
	OnStatus func(State)
	// OnCreated fires once the native side accepted the create command.
	OnCreated func()
}

// PlayOptions are forwarded to the native engine with startPlayingAudio
type PlayOptions struct {
	NumberOfLoops               int
	PlayAudioWhenScreenIsLocked *bool
}

func (o PlayOptions) args() map[string]any {
	args := make(map[string]any)
	if o.NumberOfLoops > 0 {
		args["numberOfLoops"] = o.NumberOfLoops
	}
	if o.PlayAudioWhenScreenIsLocked != nil {
		args["playAudioWhenScreenIsLocked"] = *o.PlayAudioWhenScreenIsLocked
	}
	return args
}

// Handle is the in-memory proxy for one native media resource
type Handle struct {
	session *Session
	id      string
	src     string
	opts    Options
	created *Call

	mu       sync.Mutex
	duration float64
	position float64
	state    State
	lastErr  *Error
}

func newHandle(s *Session, id, src string, opts Options) *Handle {
	return &Handle{
		session:  s,
		id:       id,
		src:      src,
		opts:     opts,
		duration: -1,
		position: -1,
	}
}

func (h *Handle) ID() string  { return h.id }
func (h *Handle) Src() string { return h.src }

// Created is the call for the create command issued at construction
func (h *Handle) Created() *Call {
	return h.created
}

// Duration returns the cached duration in seconds, -1 when unknown
func (h *Handle) Duration() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

// Position returns the cached position in seconds, -1 when unknown
func (h *Handle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

// State returns the last state reported by the native layer
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastError returns the most recent error reported for this handle
func (h *Handle) LastError() *Error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *Handle) Play(opts PlayOptions) *Call {
	return h.session.dispatch(h, OpPlay, h.src, opts.args())
}

// Stop stops playback. The cached position resets to 0 on success.
func (h *Handle) Stop() *Call {
	return h.session.dispatch(h, OpStop)
}

// SeekTo moves playback to ms milliseconds. The cached position takes
// the value the native side replies with.
func (h *Handle) SeekTo(ms int) *Call {
	return h.session.dispatch(h, OpSeekTo, ms)
}

func (h *Handle) Pause() *Call {
	return h.session.dispatch(h, OpPause)
}

// CurrentPosition asks the native side for the position and caches it
func (h *Handle) CurrentPosition() *Call {
	return h.session.dispatch(h, OpCurrentPosition)
}

func (h *Handle) StartRecord() *Call {
	return h.session.dispatch(h, OpStartRecord, h.src)
}

func (h *Handle) StopRecord() *Call {
	return h.session.dispatch(h, OpStopRecord)
}

func (h *Handle) PauseRecord() *Call {
	return h.session.dispatch(h, OpPauseRecord)
}

func (h *Handle) ResumeRecord() *Call {
	return h.session.dispatch(h, OpResumeRecord)
}

// Release frees the native resource. The handle leaves the registry
// once the native side confirms.
func (h *Handle) Release() *Call {
	return h.session.dispatch(h, OpRelease)
}

// SetVolume sets the playback volume in [0, 1]
func (h *Handle) SetVolume(volume float64) *Call {
	if math.IsNaN(volume) || volume < 0 || volume > 1 {
		return failedCall(OpSetVolume, fmt.Errorf("%w: volume %v outside [0, 1]", ErrInvalidArgument, volume))
	}
	return h.session.dispatch(h, OpSetVolume, volume)
}

// SetRate sets the playback rate in (0, 4]
func (h *Handle) SetRate(rate float64) *Call {
	if math.IsNaN(rate) || rate <= 0 || rate > 4 {
		return failedCall(OpSetRate, fmt.Errorf("%w: rate %v outside (0, 4]", ErrInvalidArgument, rate))
	}
	return h.session.dispatch(h, OpSetRate, rate)
}

func (h *Handle) CurrentAmplitude() *Call {
	return h.session.dispatch(h, OpCurrentAmplitude)
}

func (h *Handle) setPosition(p float64) {
	h.mu.Lock()
	h.position = p
	h.mu.Unlock()
}

func (h *Handle) setDuration(d float64) {
	h.mu.Lock()
	h.duration = d
	h.mu.Unlock()
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) reportError(err *Error) {
	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()

	if h.opts.OnError != nil {
		h.opts.OnError(err)
	}
}
