// Package sim is an in-process stand-in for a native media engine. It
// keeps per-id playback bookkeeping and reports status the way a device
// engine does, without touching audio.
package sim

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/audiolibrelab/mediactl/internal/media"
)

type Options struct {
	// Duration in seconds reported for every source
	Duration float64
	// Amplitude reported while recording
	Amplitude float64
	// CompleteAfter ends playback with STOPPED after this wall time. Zero
	// means playback runs until stopped.
	CompleteAfter time.Duration
}

type track struct {
	src       string
	state     media.State
	position  float64
	volume    float64
	rate      float64
	recording bool
	paused    bool
	loops     int
	playGen   int
}

type event struct {
	id      string
	msgType media.MsgType
	value   any
}

// Engine implements media.Bridge and media.StatusSource
type Engine struct {
	opts Options

	mu      sync.Mutex
	tracks  map[string]*track
	channel media.ReplyFunc
	status  media.StatusFunc
	timers  map[string]*time.Timer
	closed  bool
}

func New(opts Options) *Engine {
	return &Engine{
		opts:   opts,
		tracks: make(map[string]*track),
		timers: make(map[string]*time.Timer),
	}
}

// HandleStatus sets the receiver used when no message channel is open
func (e *Engine) HandleStatus(fn media.StatusFunc) {
	e.mu.Lock()
	e.status = fn
	e.mu.Unlock()
}

// Close stops pending completion timers
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	return nil
}

// Exec applies one command. Status events are emitted before the reply,
// and never while the engine lock is held.
func (e *Engine) Exec(cmd media.Command, reply media.ReplyFunc) {
	if reply == nil {
		reply = func(any, error) {}
	}

	if cmd.Method == media.OpMessageChannel.Method() {
		e.mu.Lock()
		e.channel = reply
		e.mu.Unlock()
		slog.Debug("Simulated message channel opened")
		return
	}

	value, events, err := e.apply(cmd)
	e.emit(events)
	reply(value, err)
}

func (e *Engine) apply(cmd media.Command) (any, []event, error) {
	if len(cmd.Args) == 0 {
		return nil, nil, &media.Error{Code: media.ErrAborted, Message: fmt.Sprintf("%s: missing media id", cmd.Method)}
	}
	id, ok := cmd.Args[0].(string)
	if !ok {
		return nil, nil, &media.Error{Code: media.ErrAborted, Message: fmt.Sprintf("%s: media id must be a string", cmd.Method)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, nil, &media.Error{Code: media.ErrAborted, Message: "engine closed"}
	}

	if cmd.Method == media.OpCreate.Method() {
		src, _ := argString(cmd.Args, 1)
		e.tracks[id] = &track{src: src, volume: 1, rate: 1}
		return nil, nil, nil
	}

	t, ok := e.tracks[id]
	if !ok {
		return nil, nil, &media.Error{Code: media.ErrAborted, Message: "unknown media id " + id}
	}

	switch cmd.Method {
	case media.OpPlay.Method():
		if opts, ok := argMap(cmd.Args, 2); ok {
			if n, ok := opts["numberOfLoops"].(int); ok {
				t.loops = n
			}
		}
		t.state = media.StateRunning
		t.playGen++
		e.scheduleCompletion(id, t.playGen)
		return nil, []event{
			{id, media.MsgState, float64(media.StateStarting)},
			{id, media.MsgDuration, e.opts.Duration},
			{id, media.MsgState, float64(media.StateRunning)},
		}, nil

	case media.OpPause.Method():
		if t.state != media.StateRunning {
			return nil, nil, &media.Error{Code: media.ErrNoneSupported, Message: "not playing"}
		}
		t.state = media.StatePaused
		e.cancelCompletion(id)
		return nil, []event{{id, media.MsgState, float64(media.StatePaused)}}, nil

	case media.OpStop.Method():
		t.state = media.StateStopped
		t.position = 0
		e.cancelCompletion(id)
		return nil, []event{{id, media.MsgState, float64(media.StateStopped)}}, nil

	case media.OpSeekTo.Method():
		ms, ok := argNumber(cmd.Args, 1)
		if !ok {
			return nil, nil, &media.Error{Code: media.ErrAborted, Message: "seek position must be a number"}
		}
		t.position = math.Max(0, math.Min(ms/1000, e.opts.Duration))
		return t.position, []event{{id, media.MsgPosition, t.position}}, nil

	case media.OpCurrentPosition.Method():
		return t.position, nil, nil

	case media.OpStartRecord.Method():
		if t.recording {
			return nil, nil, &media.Error{Code: media.ErrAborted, Message: "already recording"}
		}
		t.recording = true
		t.paused = false
		t.state = media.StateRunning
		return nil, []event{{id, media.MsgState, float64(media.StateRunning)}}, nil

	case media.OpStopRecord.Method():
		if !t.recording {
			return nil, nil, &media.Error{Code: media.ErrAborted, Message: "not recording"}
		}
		t.recording = false
		t.paused = false
		t.state = media.StateStopped
		return nil, []event{{id, media.MsgState, float64(media.StateStopped)}}, nil

	case media.OpPauseRecord.Method():
		if !t.recording || t.paused {
			return nil, nil, &media.Error{Code: media.ErrAborted, Message: "not recording"}
		}
		t.paused = true
		t.state = media.StatePaused
		return nil, []event{{id, media.MsgState, float64(media.StatePaused)}}, nil

	case media.OpResumeRecord.Method():
		if !t.recording || !t.paused {
			return nil, nil, &media.Error{Code: media.ErrAborted, Message: "recording not paused"}
		}
		t.paused = false
		t.state = media.StateRunning
		return nil, []event{{id, media.MsgState, float64(media.StateRunning)}}, nil

	case media.OpRelease.Method():
		e.cancelCompletion(id)
		delete(e.tracks, id)
		return nil, nil, nil

	case media.OpSetVolume.Method():
		v, ok := argNumber(cmd.Args, 1)
		if !ok {
			return nil, nil, &media.Error{Code: media.ErrAborted, Message: "volume must be a number"}
		}
		t.volume = v
		return nil, nil, nil

	case media.OpSetRate.Method():
		r, ok := argNumber(cmd.Args, 1)
		if !ok {
			return nil, nil, &media.Error{Code: media.ErrAborted, Message: "rate must be a number"}
		}
		t.rate = r
		return nil, nil, nil

	case media.OpCurrentAmplitude.Method():
		if t.recording && !t.paused {
			return e.opts.Amplitude, nil, nil
		}
		return 0.0, nil, nil
	}

	return nil, nil, &media.Error{Code: media.ErrNoneSupported, Message: "unsupported action " + cmd.Method}
}

// scheduleCompletion must be called with e.mu held
func (e *Engine) scheduleCompletion(id string, gen int) {
	if e.opts.CompleteAfter <= 0 {
		return
	}
	e.cancelCompletion(id)
	e.timers[id] = time.AfterFunc(e.opts.CompleteAfter, func() { e.complete(id, gen) })
}

// cancelCompletion must be called with e.mu held
func (e *Engine) cancelCompletion(id string) {
	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) complete(id string, gen int) {
	e.mu.Lock()
	t, ok := e.tracks[id]
	if !ok || e.closed || t.playGen != gen || t.state != media.StateRunning {
		e.mu.Unlock()
		return
	}
	delete(e.timers, id)

	if t.loops > 1 {
		t.loops--
		t.position = 0
		e.scheduleCompletion(id, gen)
		e.mu.Unlock()
		return
	}
	t.state = media.StateStopped
	t.position = 0
	e.mu.Unlock()

	e.emit([]event{{id, media.MsgState, float64(media.StateStopped)}})
}

func (e *Engine) emit(events []event) {
	if len(events) == 0 {
		return
	}
	e.mu.Lock()
	channel, status := e.channel, e.status
	e.mu.Unlock()

	for _, ev := range events {
		switch {
		case channel != nil:
			channel(media.ChannelMessage{
				Action: "status",
				Status: &media.StatusPayload{ID: ev.id, MsgType: ev.msgType, Value: ev.value},
			}, nil)
		case status != nil:
			status(ev.id, ev.msgType, ev.value)
		default:
			slog.Debug("Simulated status dropped, no receiver", "id", ev.id, "msg_type", ev.msgType)
		}
	}
}

// Snapshot is the engine-side view of one media id, for tests and diagnostics
type Snapshot struct {
	Src       string
	State     media.State
	Position  float64
	Volume    float64
	Rate      float64
	Recording bool
}

// Inspect returns the engine-side state of id
func (e *Engine) Inspect(id string) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tracks[id]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Src:       t.src,
		State:     t.state,
		Position:  t.position,
		Volume:    t.volume,
		Rate:      t.rate,
		Recording: t.recording,
	}, true
}

func argString(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

func argMap(args []any, i int) (map[string]any, bool) {
	if i >= len(args) {
		return nil, false
	}
	m, ok := args[i].(map[string]any)
	return m, ok
}

func argNumber(args []any, i int) (float64, bool) {
	if i >= len(args) {
		return 0, false
	}
	switch n := args[i].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
